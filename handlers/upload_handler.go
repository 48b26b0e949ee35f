package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/LabyrinthianWebsite/fantastic-waddle/archive"
	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
	"github.com/LabyrinthianWebsite/fantastic-waddle/repository"
	"github.com/LabyrinthianWebsite/fantastic-waddle/services"
	"github.com/LabyrinthianWebsite/fantastic-waddle/workers"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const archiveField = "archive"

// IngestSubmitter queues archives for ingestion; workers.IngestProcessor implements it
type IngestSubmitter interface {
	Submit(modelID uint, archivePath string, keepArchive bool) (string, <-chan workers.IngestOutcome, error)
}

type UploadHandler struct {
	ModelRepo      repository.ModelRepositoryInterface
	Ingest         IngestSubmitter
	UploadTempPath string
	MaxUploadBytes int64
}

// UploadArchive streams the multipart "archive" field to a temp file, hands it
// to the ingest workers and replies with the run summary once the job is done.
func (h *UploadHandler) UploadArchive(w http.ResponseWriter, r *http.Request) {
	modelID, ok := parseID(chi.URLParam(r, "model_id"))
	if !ok {
		WriteAPIError(w, http.StatusBadRequest, CodeBadRequest, "Invalid model ID")
		return
	}

	// reject before reading a possibly huge body
	if _, err := h.ModelRepo.GetByID(modelID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Model not found")
		} else {
			logging.Error("Error fetching model %d for upload: %v", modelID, err)
			WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Failed to fetch model")
		}
		return
	}

	if h.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	}

	tempPath, status, err := h.receiveArchive(r)
	if err != nil {
		code := CodeBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status, code = http.StatusRequestEntityTooLarge, CodeUploadTooLarge
		} else if status == http.StatusInternalServerError {
			code = CodeInternal
		}
		logging.Warn("UploadArchive: model %d: %v", modelID, err)
		WriteAPIError(w, status, code, err.Error())
		return
	}

	jobID, done, err := h.Ingest.Submit(modelID, tempPath, false)
	if err != nil {
		os.Remove(tempPath)
		switch {
		case errors.Is(err, workers.ErrQueueFull):
			WriteAPIError(w, http.StatusServiceUnavailable, CodeQueueFull, "Too many uploads in progress, try again later")
		default:
			WriteAPIError(w, http.StatusServiceUnavailable, CodeServiceStopping, err.Error())
		}
		return
	}
	logging.Info("UploadArchive: model %d: queued job %s", modelID, jobID)

	select {
	case outcome := <-done:
		h.writeOutcome(w, modelID, outcome)
	case <-r.Context().Done():
		// the job keeps running; progress is still published on the websocket
		logging.Warn("UploadArchive: client went away while job %s was running", jobID)
	}
}

// receiveArchive copies the archive part to UploadTempPath/<uuid>.zip. The
// returned status is meaningful only when err is non-nil.
func (h *UploadHandler) receiveArchive(r *http.Request) (string, int, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return "", http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err)
	}

	if err := os.MkdirAll(h.UploadTempPath, 0755); err != nil {
		return "", http.StatusInternalServerError, fmt.Errorf("failed to create upload dir: %w", err)
	}

	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", http.StatusBadRequest, fmt.Errorf("malformed upload data: %w", err)
		}
		if part.FormName() != archiveField {
			part.Close()
			continue
		}

		tempPath := filepath.Join(h.UploadTempPath, uuid.NewString()+".zip")
		out, err := os.Create(tempPath)
		if err != nil {
			part.Close()
			return "", http.StatusInternalServerError, fmt.Errorf("failed to create temp upload: %w", err)
		}
		n, err := io.Copy(out, part)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		part.Close()
		if err != nil {
			os.Remove(tempPath)
			return "", http.StatusBadRequest, fmt.Errorf("failed to receive archive: %w", err)
		}
		logging.Info("UploadArchive: received %s (%d bytes) as %s", part.FileName(), n, filepath.Base(tempPath))
		return tempPath, http.StatusOK, nil
	}

	return "", http.StatusBadRequest, fmt.Errorf("missing %q file field", archiveField)
}

func (h *UploadHandler) writeOutcome(w http.ResponseWriter, modelID uint, outcome workers.IngestOutcome) {
	if outcome.Err == nil {
		writeJSON(w, http.StatusOK, outcome.Result)
		return
	}
	switch {
	case errors.Is(outcome.Err, services.ErrModelNotFound):
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "Model not found")
	case errors.Is(outcome.Err, archive.ErrInvalidArchive):
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidArchive, outcome.Err.Error())
	default:
		logging.Error("UploadArchive: job %s for model %d failed: %v", outcome.JobID, modelID, outcome.Err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "Ingestion failed")
	}
}
