package repository

import (
	"fmt"
	"sort"
	"time"

	"github.com/LabyrinthianWebsite/fantastic-waddle/database"
	"github.com/LabyrinthianWebsite/fantastic-waddle/models"
	"github.com/facette/natsort"
	"gorm.io/gorm"
)

// SetRepository handles database operations for Set entities
type SetRepository struct {
	DB *gorm.DB
}

func NewSetRepository(db *gorm.DB) *SetRepository {
	return &SetRepository{DB: db}
}

// Create inserts a new set. ModelID is required.
func (r *SetRepository) Create(set *models.Set) error {
	if set.ModelID == 0 {
		return fmt.Errorf("failed to create set %s: model ID is required", set.Name)
	}
	now := time.Now().Unix()
	if set.CreatedAt == 0 {
		set.CreatedAt = now
	}
	if set.UpdatedAt == 0 {
		set.UpdatedAt = now
	}
	if err := r.DB.Create(set).Error; err != nil {
		return fmt.Errorf("failed to create set %s: %w", set.Name, err)
	}
	return nil
}

func (r *SetRepository) GetByID(id uint) (*models.Set, error) {
	var set models.Set
	err := r.DB.First(&set, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get set by ID %d: %w", id, err)
	}
	return &set, nil
}

// FindByModelAndName returns gorm.ErrRecordNotFound when the model has no set with that name
func (r *SetRepository) FindByModelAndName(modelID uint, name string) (*models.Set, error) {
	var set models.Set
	err := r.DB.Where("model_id = ? AND name = ?", modelID, name).First(&set).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find set %q for model %d: %w", name, modelID, err)
	}
	return &set, nil
}

func (r *SetRepository) SlugExists(slug string) (bool, error) {
	var count int64
	if err := r.DB.Model(&models.Set{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check set slug %s: %w", slug, err)
	}
	return count > 0, nil
}

// ListByModel returns a model's sets in natural name order ("Set 2" before "Set 10")
func (r *SetRepository) ListByModel(modelID uint) ([]models.Set, error) {
	var sets []models.Set
	if err := r.DB.Where("model_id = ?", modelID).Find(&sets).Error; err != nil {
		return nil, fmt.Errorf("failed to list sets for model %d: %w", modelID, err)
	}
	sort.SliceStable(sets, func(i, j int) bool {
		return natsort.Compare(sets[i].Name, sets[j].Name)
	})
	return sets, nil
}

func (r *SetRepository) UpdateCover(setID uint, coverPath, coverThumbPath string) error {
	result := r.DB.Model(&models.Set{}).Where("id = ?", setID).Updates(map[string]interface{}{
		"cover_path":       coverPath,
		"cover_thumb_path": coverThumbPath,
		"updated_at":       time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update cover for set ID %d: %w", setID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// RecomputeAggregates refreshes image/video counts and total size from the media table
func (r *SetRepository) RecomputeAggregates(setID uint) error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return database.RecomputeSetAggregates(sqlDB, setID)
}
