package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/LabyrinthianWebsite/fantastic-waddle/archive"
	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
	"github.com/LabyrinthianWebsite/fantastic-waddle/media"
	"github.com/LabyrinthianWebsite/fantastic-waddle/metrics"
	"github.com/LabyrinthianWebsite/fantastic-waddle/models"
	"github.com/LabyrinthianWebsite/fantastic-waddle/realtime"
	"github.com/LabyrinthianWebsite/fantastic-waddle/repository"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// ErrModelNotFound is returned when the upload targets a model that does not exist
var ErrModelNotFound = errors.New("model not found")

// Notifier receives ingestion progress events
type Notifier interface {
	Notify(event realtime.Event)
}

// UploadResult summarizes one archive ingestion
type UploadResult struct {
	Success        bool        `json:"success"`
	SetsCreated    int         `json:"setsCreated"`
	FilesProcessed int         `json:"filesProcessed"`
	FilesSkipped   int         `json:"filesSkipped"`
	Errors         []string    `json:"errors"`
	Warnings       []string    `json:"warnings,omitempty"`
	Sets           []SetResult `json:"sets"`
}

// SetResult is the per-set part of an UploadResult
type SetResult struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Slug      string `json:"slug"`
	Created   bool   `json:"created"`
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Errors    int    `json:"errors"`
}

// ContentHasher computes the duplicate-detection digest of a staged file
type ContentHasher interface {
	Hash(path string, kind media.Kind) (string, error)
}

// IngestOptions tweak a single run
type IngestOptions struct {
	JobID       string // used in progress events
	KeepArchive bool   // leave the archive file in place when done
}

// IngestionService turns an uploaded archive into sets and media for one model
type IngestionService struct {
	models    repository.ModelRepositoryInterface
	studios   repository.StudioRepositoryInterface
	sets      repository.SetRepositoryInterface
	mediaRepo repository.MediaRepositoryInterface
	store     media.Store
	processor *media.Processor
	hasher    ContentHasher
	cascade   *CascadeService
	notifier  Notifier
	setLocks  *keyedMutex
}

func NewIngestionService(
	modelRepo repository.ModelRepositoryInterface,
	studios repository.StudioRepositoryInterface,
	sets repository.SetRepositoryInterface,
	mediaRepo repository.MediaRepositoryInterface,
	store media.Store,
	processor *media.Processor,
	hasher ContentHasher,
	cascade *CascadeService,
	notifier Notifier,
) *IngestionService {
	return &IngestionService{
		models:    modelRepo,
		studios:   studios,
		sets:      sets,
		mediaRepo: mediaRepo,
		store:     store,
		processor: processor,
		hasher:    hasher,
		cascade:   cascade,
		notifier:  notifier,
		setLocks:  newKeyedMutex(),
	}
}

// ingestRun carries the state of one archive ingestion through every stage
type ingestRun struct {
	svc     *IngestionService
	ctx     context.Context
	opts    IngestOptions
	archive *archive.Archive
	model   *models.Model
	studio  *models.Studio
	result  *UploadResult
}

// IngestArchive ingests archivePath into sets owned by modelID. Only a
// missing model or an unreadable archive return an error; every other
// problem is recorded in the result. The archive file is removed on every
// path unless opts.KeepArchive is set.
func (s *IngestionService) IngestArchive(ctx context.Context, modelID uint, archivePath string, opts IngestOptions) (*UploadResult, error) {
	start := time.Now()
	if !opts.KeepArchive {
		defer func() {
			if err := os.Remove(archivePath); err != nil && !os.IsNotExist(err) {
				logging.Warn("ingest: Failed to remove archive %s: %v", archivePath, err)
			}
		}()
	}

	model, err := s.models.GetByID(modelID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.IngestRunsTotal.WithLabelValues("model_not_found").Inc()
			return nil, fmt.Errorf("%w: %d", ErrModelNotFound, modelID)
		}
		metrics.IngestRunsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to load model %d: %w", modelID, err)
	}

	var studio *models.Studio
	if model.StudioID != nil {
		studio, err = s.studios.GetByID(*model.StudioID)
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				metrics.IngestRunsTotal.WithLabelValues("error").Inc()
				return nil, fmt.Errorf("failed to load studio %d: %w", *model.StudioID, err)
			}
			logging.Warn("ingest: Studio %d of model %d is missing, storing as independent", *model.StudioID, model.ID)
		}
	}

	a, err := archive.Open(archivePath)
	if err != nil {
		metrics.IngestRunsTotal.WithLabelValues("invalid_archive").Inc()
		return nil, err
	}
	defer a.Close()

	structure := archive.InferSets(a.Entries())
	logging.Info("ingest: Model %s: %d sets, %d files inferred from %s", model.Slug, len(structure.Sets), structure.FileCount(), filepath.Base(archivePath))

	run := &ingestRun{
		svc:     s,
		ctx:     ctx,
		opts:    opts,
		archive: a,
		model:   model,
		studio:  studio,
		result: &UploadResult{
			Success: true,
			Errors:  append([]string{}, structure.Errors...),
			Sets:    []SetResult{},
		},
	}
	run.notify(realtime.Event{Status: "started"})

	for _, set := range structure.Sets {
		run.ingestSet(set)
	}

	r := run.result
	run.notify(realtime.Event{Status: "finished", Processed: r.FilesProcessed, Skipped: r.FilesSkipped})
	metrics.IngestRunsTotal.WithLabelValues("ok").Inc()
	metrics.IngestRunDuration.Observe(time.Since(start).Seconds())
	logging.Info("ingest: Model %s done in %s: %d sets created, %d processed, %d skipped, %d errors",
		model.Slug, time.Since(start).Round(time.Millisecond), r.SetsCreated, r.FilesProcessed, r.FilesSkipped, len(r.Errors))
	return r, nil
}

func (r *ingestRun) notify(event realtime.Event) {
	if r.svc.notifier == nil {
		return
	}
	event.Type = "ingest"
	event.Job = r.opts.JobID
	event.ModelID = r.model.ID
	r.svc.notifier.Notify(event)
}

func (r *ingestRun) studioSlug() string {
	if r.studio == nil {
		return media.IndependentStudioSlug
	}
	return r.studio.Slug
}

func (r *ingestRun) addError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	r.result.Errors = append(r.result.Errors, msg)
	logging.Warn("ingest: %s", msg)
}

// resolveSet reuses the model's set with this name or creates a new one
func (r *ingestRun) resolveSet(name string) (*models.Set, bool, error) {
	existing, err := r.svc.sets.FindByModelAndName(r.model.ID, name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	setSlug, err := UniqueSlug(SetSlugBase(r.model.Slug, name), r.svc.sets.SlugExists)
	if err != nil {
		return nil, false, err
	}
	set := &models.Set{ModelID: r.model.ID, Name: name, Slug: setSlug}
	err = r.svc.sets.Create(set)
	if err == nil {
		return set, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, err
	}

	// another writer took the name or the slug between the check and the insert
	if existing, findErr := r.svc.sets.FindByModelAndName(r.model.ID, name); findErr == nil {
		return existing, false, nil
	}
	setSlug, err = UniqueSlug(SetSlugBase(r.model.Slug, name), r.svc.sets.SlugExists)
	if err != nil {
		return nil, false, err
	}
	set = &models.Set{ModelID: r.model.ID, Name: name, Slug: setSlug}
	if err := r.svc.sets.Create(set); err != nil {
		return nil, false, err
	}
	return set, true, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (r *ingestRun) ingestSet(inferred archive.InferredSet) {
	unlock := r.svc.setLocks.Lock(fmt.Sprintf("%d/%s", r.model.ID, inferred.Name))
	defer unlock()

	set, created, err := r.resolveSet(inferred.Name)
	if err != nil {
		r.addError("%s: failed to create set: %v", inferred.Name, err)
		return
	}
	if created {
		r.result.SetsCreated++
		metrics.IngestSetsCreatedTotal.Inc()
	}
	sr := SetResult{ID: set.ID, Name: set.Name, Slug: set.Slug, Created: created}
	defer func() { r.result.Sets = append(r.result.Sets, sr) }()

	dirs, err := r.svc.store.EnsureSetDirs(r.studioSlug(), set.Slug)
	if err != nil {
		r.addError("%s: failed to create directories: %v", inferred.Name, err)
		return
	}
	defer os.RemoveAll(dirs.StagingDir)

	// a reused set continues after its highest sort order
	sortOrder, err := r.svc.mediaRepo.NextSortOrder(set.ID)
	if err != nil {
		r.addError("%s: failed to read sort order: %v", inferred.Name, err)
		return
	}

	r.notify(realtime.Event{Set: set.Name, Status: "set"})
	for _, entry := range inferred.Files {
		if r.ctx.Err() != nil {
			r.addError("%s: ingestion interrupted: %v", inferred.Name, r.ctx.Err())
			break
		}

		m, duplicate, err := r.safeIngestFile(set, dirs, entry, sortOrder)
		switch {
		case err != nil:
			sr.Errors++
			r.addError("%s: %v", entry.Path, err)
			metrics.IngestFilesTotal.WithLabelValues("error").Inc()
			r.notify(realtime.Event{Set: set.Name, File: entry.Path, Status: "error", Error: err.Error()})
		case duplicate:
			sr.Skipped++
			r.result.FilesSkipped++
			metrics.IngestFilesTotal.WithLabelValues("duplicate").Inc()
			r.notify(realtime.Event{Set: set.Name, File: entry.Path, Status: "duplicate"})
		default:
			sortOrder++
			sr.Processed++
			r.result.FilesProcessed++
			metrics.IngestFilesTotal.WithLabelValues("processed").Inc()
			r.notify(realtime.Event{Set: set.Name, File: entry.Path, Status: "processed", Processed: sr.Processed})
			// the first processed file of a coverless set becomes its cover here
			r.svc.cascade.Propagate(r.ctx, m)
		}
	}

	if err := r.svc.sets.RecomputeAggregates(set.ID); err != nil {
		r.addError("%s: failed to update set counters: %v", inferred.Name, err)
	}
}

// storedFilename builds "<base>-<hash fragment><ext>", adding a counter if
// that name is already on disk
func storedFilename(dir, entryPath, hash string) string {
	original := path.Base(entryPath)
	ext := strings.ToLower(path.Ext(original))
	base := slug.Make(strings.TrimSuffix(original, path.Ext(original)))
	if base == "" {
		base = "file"
	}
	frag := media.HashFragment(hash)
	if frag == "" {
		frag = uuid.NewString()[:8]
	}

	name := fmt.Sprintf("%s-%s%s", base, frag, ext)
	for i := 2; ; i++ {
		if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
			return name
		}
		name = fmt.Sprintf("%s-%s-%d%s", base, frag, i, ext)
	}
}

// safeIngestFile turns a panic in a decoder into an error for this file only
func (r *ingestRun) safeIngestFile(set *models.Set, dirs media.SetDirs, entry archive.Entry, sortOrder int) (m *models.Media, duplicate bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("ingest: Recovered panic on %s: %v", entry.Path, rec)
			m, duplicate, err = nil, false, fmt.Errorf("panic while processing: %v", rec)
		}
	}()
	return r.ingestFile(set, dirs, entry, sortOrder)
}

// ingestFile runs one archive entry through extraction, dedup, storage and
// derivatives. duplicate is true when the set already holds the same hash.
func (r *ingestRun) ingestFile(set *models.Set, dirs media.SetDirs, entry archive.Entry, sortOrder int) (*models.Media, bool, error) {
	start := time.Now()

	staged := filepath.Join(dirs.StagingDir, uuid.NewString()+".part")
	if _, err := r.archive.ExtractTo(entry, staged); err != nil {
		return nil, false, fmt.Errorf("extraction failed: %w", err)
	}
	// a no-op once the file has been adopted into the store
	defer os.Remove(staged)

	cls, err := media.Classify(staged)
	if err != nil {
		return nil, false, fmt.Errorf("classification failed: %w", err)
	}
	if cls.Kind == media.KindImage {
		if err := r.svc.processor.CheckImage(staged); err != nil {
			return nil, false, err
		}
	}

	var hashPtr *string
	hash, err := r.svc.hasher.Hash(staged, cls.Kind)
	if err != nil {
		metrics.IngestHashFailuresTotal.Inc()
		warning := fmt.Sprintf("%s: hashing failed, duplicate detection disabled: %v", entry.Path, err)
		r.result.Warnings = append(r.result.Warnings, warning)
		logging.Warn("ingest: %s", warning)
		hash = ""
	} else {
		hashPtr = &hash
		if _, err := r.svc.mediaRepo.GetByHash(set.ID, hash); err == nil {
			logging.Debug("ingest: %s duplicates existing media in set %s", entry.Path, set.Slug)
			return nil, true, nil
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, fmt.Errorf("duplicate check failed: %w", err)
		}
	}

	filename := storedFilename(dirs.MediaDir, entry.Path, hash)
	d, err := r.svc.processor.ProcessMedia(r.ctx, staged, cls, dirs, filename)
	if err != nil {
		return nil, false, fmt.Errorf("processing failed: %w", err)
	}

	m := &models.Media{
		SetID:        set.ID,
		Filename:     path.Base(entry.Path),
		OriginalPath: d.OriginalPath,
		DisplayPath:  &d.DisplayPath,
		ThumbPath:    d.ThumbPath,
		Kind:         cls.Kind.String(),
		MimeType:     cls.MimeType,
		Width:        d.Width,
		Height:       d.Height,
		Duration:     d.Duration,
		SortOrder:    sortOrder,
		Hash:         hashPtr,
	}

	if full, err := r.svc.store.GetFullPath(d.OriginalPath); err == nil {
		if info, err := os.Stat(full); err == nil {
			m.Size = info.Size()
		}
		if cls.Kind == media.KindImage {
			if meta, err := media.GetImageMetadata(full); err == nil {
				m.TakenAt, m.CameraMake, m.CameraModel = meta.TakenAt, meta.CameraMake, meta.CameraModel
			}
		}
	}
	if m.Size == 0 {
		m.Size = entry.Size
	}

	if err := r.svc.mediaRepo.Create(m); err != nil {
		r.svc.processor.RemoveDerivatives(d)
		return nil, false, fmt.Errorf("failed to record media: %w", err)
	}

	metrics.IngestFileDuration.WithLabelValues(cls.Kind.String()).Observe(time.Since(start).Seconds())
	return m, false, nil
}
