package repository

import (
	"github.com/LabyrinthianWebsite/fantastic-waddle/models"
)

// StudioRepositoryInterface defines the methods for studio data operations
type StudioRepositoryInterface interface {
	Create(studio *models.Studio) error
	GetByID(id uint) (*models.Studio, error)
	GetBySlug(slug string) (*models.Studio, error)
	UpdateLogo(studioID uint, logoPath, logoThumbPath string) error
}

// ModelRepositoryInterface defines the methods for model data operations
type ModelRepositoryInterface interface {
	Create(model *models.Model) error
	GetByID(id uint) (*models.Model, error)
	GetBySlug(slug string) (*models.Model, error)
	UpdateProfile(modelID uint, profilePath, profileThumbPath string) error
}

// SetRepositoryInterface defines the methods for set data operations
type SetRepositoryInterface interface {
	Create(set *models.Set) error
	GetByID(id uint) (*models.Set, error)
	FindByModelAndName(modelID uint, name string) (*models.Set, error)
	SlugExists(slug string) (bool, error)
	ListByModel(modelID uint) ([]models.Set, error)
	UpdateCover(setID uint, coverPath, coverThumbPath string) error
	RecomputeAggregates(setID uint) error
}

// MediaRepositoryInterface defines the methods for media data operations
type MediaRepositoryInterface interface {
	Create(media *models.Media) error
	GetByID(id uint) (*models.Media, error)
	GetByHash(setID uint, hash string) (*models.Media, error)
	NextSortOrder(setID uint) (int, error)
	ListBySet(setID uint) ([]models.Media, error)
	ListBySetOrdered(setID uint, order string) ([]models.Media, error)
	Delete(id uint) error
}
