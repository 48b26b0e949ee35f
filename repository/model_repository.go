package repository

import (
	"fmt"
	"time"

	"github.com/LabyrinthianWebsite/fantastic-waddle/models"
	"gorm.io/gorm"
)

// ModelRepository handles database operations for Model entities
type ModelRepository struct {
	DB *gorm.DB
}

func NewModelRepository(db *gorm.DB) *ModelRepository {
	return &ModelRepository{DB: db}
}

func (r *ModelRepository) Create(model *models.Model) error {
	now := time.Now().Unix()
	if model.CreatedAt == 0 {
		model.CreatedAt = now
	}
	if model.UpdatedAt == 0 {
		model.UpdatedAt = now
	}
	if err := r.DB.Create(model).Error; err != nil {
		return fmt.Errorf("failed to create model %s: %w", model.Name, err)
	}
	return nil
}

// GetByID retrieves a model by its ID, without its studio
func (r *ModelRepository) GetByID(id uint) (*models.Model, error) {
	var model models.Model
	err := r.DB.First(&model, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get model by ID %d: %w", id, err)
	}
	return &model, nil
}

func (r *ModelRepository) GetBySlug(slug string) (*models.Model, error) {
	var model models.Model
	err := r.DB.Where("slug = ?", slug).First(&model).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get model by slug %s: %w", slug, err)
	}
	return &model, nil
}

// UpdateProfile sets both profile image paths of a model
func (r *ModelRepository) UpdateProfile(modelID uint, profilePath, profileThumbPath string) error {
	result := r.DB.Model(&models.Model{}).Where("id = ?", modelID).Updates(map[string]interface{}{
		"profile_path":       profilePath,
		"profile_thumb_path": profileThumbPath,
		"updated_at":         time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update profile for model ID %d: %w", modelID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
