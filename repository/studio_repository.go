package repository

import (
	"fmt"
	"time"

	"github.com/LabyrinthianWebsite/fantastic-waddle/models"
	"gorm.io/gorm"
)

// StudioRepository handles database operations for Studio entities
type StudioRepository struct {
	DB *gorm.DB
}

func NewStudioRepository(db *gorm.DB) *StudioRepository {
	return &StudioRepository{DB: db}
}

func (r *StudioRepository) Create(studio *models.Studio) error {
	now := time.Now().Unix()
	if studio.CreatedAt == 0 {
		studio.CreatedAt = now
	}
	if studio.UpdatedAt == 0 {
		studio.UpdatedAt = now
	}
	if err := r.DB.Create(studio).Error; err != nil {
		return fmt.Errorf("failed to create studio %s: %w", studio.Name, err)
	}
	return nil
}

func (r *StudioRepository) GetByID(id uint) (*models.Studio, error) {
	var studio models.Studio
	err := r.DB.First(&studio, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get studio by ID %d: %w", id, err)
	}
	return &studio, nil
}

func (r *StudioRepository) GetBySlug(slug string) (*models.Studio, error) {
	var studio models.Studio
	err := r.DB.Where("slug = ?", slug).First(&studio).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get studio by slug %s: %w", slug, err)
	}
	return &studio, nil
}

// UpdateLogo sets both logo paths of a studio
func (r *StudioRepository) UpdateLogo(studioID uint, logoPath, logoThumbPath string) error {
	result := r.DB.Model(&models.Studio{}).Where("id = ?", studioID).Updates(map[string]interface{}{
		"logo_path":       logoPath,
		"logo_thumb_path": logoThumbPath,
		"updated_at":      time.Now().Unix(),
	})
	if result.Error != nil {
		return fmt.Errorf("failed to update logo for studio ID %d: %w", studioID, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
