package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/LabyrinthianWebsite/fantastic-waddle/archive"
	"github.com/LabyrinthianWebsite/fantastic-waddle/database"
	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
	"github.com/LabyrinthianWebsite/fantastic-waddle/media"
	"github.com/LabyrinthianWebsite/fantastic-waddle/models"
	"github.com/LabyrinthianWebsite/fantastic-waddle/repository"
	"github.com/go-chi/chi/v5"
	"gorm.io/gorm"
)

type SetHandler struct {
	ModelRepo repository.ModelRepositoryInterface
	SetRepo   repository.SetRepositoryInterface
	MediaRepo repository.MediaRepositoryInterface
	Store     media.Store
}

func (h *SetHandler) ListModelSets(w http.ResponseWriter, r *http.Request) {
	modelID, ok := parseID(chi.URLParam(r, "model_id"))
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Invalid model ID")
		return
	}
	if _, err := h.ModelRepo.GetByID(modelID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Model not found")
		} else {
			logging.Error("Error fetching model %d: %v", modelID, err)
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to fetch model")
		}
		return
	}

	sets, err := h.SetRepo.ListByModel(modelID)
	if err != nil {
		logging.Error("Error listing sets for model %d: %v", modelID, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to retrieve sets")
		return
	}
	if sets == nil {
		sets = []models.Set{}
	}
	writeJSON(w, http.StatusOK, sets)
}

// getSet resolves {set_id} and writes the error response itself
func (h *SetHandler) getSet(w http.ResponseWriter, r *http.Request) (*models.Set, bool) {
	setID, ok := parseID(chi.URLParam(r, "set_id"))
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Invalid set ID")
		return nil, false
	}
	set, err := h.SetRepo.GetByID(setID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Set not found")
		} else {
			logging.Error("Error fetching set %d: %v", setID, err)
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to fetch set")
		}
		return nil, false
	}
	return set, true
}

func (h *SetHandler) GetSet(w http.ResponseWriter, r *http.Request) {
	set, ok := h.getSet(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// ListSetMedia returns a set's media, by ingestion order unless ?sort= names another order
func (h *SetHandler) ListSetMedia(w http.ResponseWriter, r *http.Request) {
	set, ok := h.getSet(w, r)
	if !ok {
		return
	}

	order := r.URL.Query().Get("sort")
	if order == "" {
		order = database.DefaultSortOrder
	}
	if !database.IsValidSortOrder(order) {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, fmt.Sprintf("Invalid sort order %q", order))
		return
	}

	items, err := h.MediaRepo.ListBySetOrdered(set.ID, order)
	if err != nil {
		logging.Error("Error listing media for set %d: %v", set.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to retrieve media")
		return
	}
	if items == nil {
		items = []models.Media{}
	}
	writeJSON(w, http.StatusOK, items)
}

// DownloadSetZip streams a set's originals back out as a zip, in sort order
func (h *SetHandler) DownloadSetZip(w http.ResponseWriter, r *http.Request) {
	set, ok := h.getSet(w, r)
	if !ok {
		return
	}

	items, err := h.MediaRepo.ListBySetOrdered(set.ID, database.SortManual)
	if err != nil {
		logging.Error("Error listing media for set %d zip: %v", set.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to retrieve media")
		return
	}
	if len(items) == 0 {
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Set has no media")
		return
	}

	files := make([]archive.ZipFile, 0, len(items))
	for _, m := range items {
		full, err := h.Store.GetFullPath(m.OriginalPath)
		if err != nil {
			logging.Warn("DownloadSetZip: skipping media %d: %v", m.ID, err)
			continue
		}
		files = append(files, archive.ZipFile{Name: m.Filename, SourcePath: full})
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", set.Slug+".zip"))
	w.WriteHeader(http.StatusOK)

	// headers are gone by now, a failure can only be logged
	n, err := archive.WriteZip(w, files)
	if err != nil {
		logging.Error("DownloadSetZip: set %d: %v", set.ID, err)
		return
	}
	logging.Info("DownloadSetZip: streamed %d file(s) of set %d", n, set.ID)
}

// DeleteMedia removes the row, its files, and refreshes the set's counters
func (h *SetHandler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	mediaID, ok := parseID(chi.URLParam(r, "media_id"))
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Invalid media ID")
		return
	}

	m, err := h.MediaRepo.GetByID(mediaID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Media not found")
		} else {
			logging.Error("Error fetching media %d: %v", mediaID, err)
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to fetch media")
		}
		return
	}

	if err := h.MediaRepo.Delete(m.ID); err != nil {
		logging.Error("Error deleting media %d: %v", m.ID, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to delete media")
		return
	}

	paths := []string{m.OriginalPath}
	if m.DisplayPath != nil && *m.DisplayPath != m.OriginalPath {
		paths = append(paths, *m.DisplayPath)
	}
	if m.ThumbPath != nil {
		paths = append(paths, *m.ThumbPath)
	}
	for _, p := range paths {
		if err := h.Store.Delete(p); err != nil {
			logging.Error("DeleteMedia: failed to remove %s: %v", p, err)
		}
	}

	if err := h.SetRepo.RecomputeAggregates(m.SetID); err != nil {
		logging.Error("DeleteMedia: failed to recompute aggregates for set %d: %v", m.SetID, err)
	}

	w.WriteHeader(http.StatusNoContent)
}
