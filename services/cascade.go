package services

import (
	"context"
	"fmt"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
	"github.com/LabyrinthianWebsite/fantastic-waddle/media"
	"github.com/LabyrinthianWebsite/fantastic-waddle/metrics"
	"github.com/LabyrinthianWebsite/fantastic-waddle/models"
	"github.com/LabyrinthianWebsite/fantastic-waddle/repository"
)

// CoverGenerator renders the cover pair of an entity from a source image
type CoverGenerator interface {
	GenerateCover(kind media.CoverKind, slug, srcPath string) (*media.CoverPaths, error)
}

// CascadeService backfills missing covers up the Set -> Model -> Studio chain
// from a freshly ingested media item. Populated levels are never touched.
type CascadeService struct {
	sets    repository.SetRepositoryInterface
	models  repository.ModelRepositoryInterface
	studios repository.StudioRepositoryInterface
	covers  CoverGenerator
	store   media.Store
}

func NewCascadeService(
	sets repository.SetRepositoryInterface,
	modelRepo repository.ModelRepositoryInterface,
	studios repository.StudioRepositoryInterface,
	covers CoverGenerator,
	store media.Store,
) *CascadeService {
	return &CascadeService{
		sets:    sets,
		models:  modelRepo,
		studios: studios,
		covers:  covers,
		store:   store,
	}
}

// cascadeLevel is one rung of the hierarchy
type cascadeLevel interface {
	Name() string
	CoverKind() media.CoverKind
	Slug() string
	HasThumbnail() bool
	SetThumbnail(paths *media.CoverPaths) error
	// Parent returns nil at the top of the chain
	Parent() (cascadeLevel, error)
}

type setLevel struct {
	svc *CascadeService
	set *models.Set
}

func (l *setLevel) Name() string               { return "set" }
func (l *setLevel) CoverKind() media.CoverKind { return media.CoverKindSet }
func (l *setLevel) Slug() string               { return l.set.Slug }
func (l *setLevel) HasThumbnail() bool         { return l.set.HasCover() }

func (l *setLevel) SetThumbnail(paths *media.CoverPaths) error {
	if err := l.svc.sets.UpdateCover(l.set.ID, paths.Path, paths.ThumbPath); err != nil {
		return err
	}
	l.set.CoverPath, l.set.CoverThumbPath = &paths.Path, &paths.ThumbPath
	return nil
}

func (l *setLevel) Parent() (cascadeLevel, error) {
	model, err := l.svc.models.GetByID(l.set.ModelID)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %d of set %d: %w", l.set.ModelID, l.set.ID, err)
	}
	return &modelLevel{svc: l.svc, model: model}, nil
}

type modelLevel struct {
	svc   *CascadeService
	model *models.Model
}

func (l *modelLevel) Name() string               { return "model" }
func (l *modelLevel) CoverKind() media.CoverKind { return media.CoverKindModel }
func (l *modelLevel) Slug() string               { return l.model.Slug }
func (l *modelLevel) HasThumbnail() bool         { return l.model.HasProfile() }

func (l *modelLevel) SetThumbnail(paths *media.CoverPaths) error {
	if err := l.svc.models.UpdateProfile(l.model.ID, paths.Path, paths.ThumbPath); err != nil {
		return err
	}
	l.model.ProfilePath, l.model.ProfileThumbPath = &paths.Path, &paths.ThumbPath
	return nil
}

func (l *modelLevel) Parent() (cascadeLevel, error) {
	if l.model.StudioID == nil {
		return nil, nil
	}
	studio, err := l.svc.studios.GetByID(*l.model.StudioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load studio %d of model %d: %w", *l.model.StudioID, l.model.ID, err)
	}
	return &studioLevel{svc: l.svc, studio: studio}, nil
}

type studioLevel struct {
	svc    *CascadeService
	studio *models.Studio
}

func (l *studioLevel) Name() string               { return "studio" }
func (l *studioLevel) CoverKind() media.CoverKind { return media.CoverKindStudio }
func (l *studioLevel) Slug() string               { return l.studio.Slug }
func (l *studioLevel) HasThumbnail() bool         { return l.studio.HasLogo() }

func (l *studioLevel) SetThumbnail(paths *media.CoverPaths) error {
	if err := l.svc.studios.UpdateLogo(l.studio.ID, paths.Path, paths.ThumbPath); err != nil {
		return err
	}
	l.studio.LogoPath, l.studio.LogoThumbPath = &paths.Path, &paths.ThumbPath
	return nil
}

func (l *studioLevel) Parent() (cascadeLevel, error) { return nil, nil }

// sourcePath is the display file (poster frame for videos), falling back to the original
func (s *CascadeService) sourcePath(m *models.Media) (string, error) {
	rel := m.OriginalPath
	if m.DisplayPath != nil && *m.DisplayPath != "" {
		rel = *m.DisplayPath
	}
	return s.store.GetFullPath(rel)
}

// Propagate walks up from the media's set and fills every level that has no
// cover yet. Failures are logged and never returned: the media row is
// already committed when this runs.
func (s *CascadeService) Propagate(ctx context.Context, m *models.Media) {
	src, err := s.sourcePath(m)
	if err != nil {
		logging.Warn("cascade: No usable source for media %d: %v", m.ID, err)
		return
	}

	set, err := s.sets.GetByID(m.SetID)
	if err != nil {
		logging.Warn("cascade: Failed to load set %d for media %d: %v", m.SetID, m.ID, err)
		return
	}

	var level cascadeLevel = &setLevel{svc: s, set: set}
	for level != nil {
		if ctx.Err() != nil {
			return
		}
		s.ensureThumbnail(level, src, m.ID)

		parent, err := level.Parent()
		if err != nil {
			logging.Warn("cascade: %v", err)
			return
		}
		level = parent
	}
}

func (s *CascadeService) ensureThumbnail(level cascadeLevel, src string, mediaID uint) {
	if level.HasThumbnail() {
		return
	}

	paths, err := s.covers.GenerateCover(level.CoverKind(), level.Slug(), src)
	if err != nil {
		logging.Warn("cascade: Failed to generate %s cover for %s from media %d: %v", level.Name(), level.Slug(), mediaID, err)
		metrics.CascadeUpdatesTotal.WithLabelValues(level.Name(), "error").Inc()
		return
	}
	if err := level.SetThumbnail(paths); err != nil {
		logging.Warn("cascade: Failed to record %s cover for %s: %v", level.Name(), level.Slug(), err)
		metrics.CascadeUpdatesTotal.WithLabelValues(level.Name(), "error").Inc()
		return
	}

	logging.Info("cascade: Filled %s cover for %s from media %d", level.Name(), level.Slug(), mediaID)
	metrics.CascadeUpdatesTotal.WithLabelValues(level.Name(), "filled").Inc()
}
