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

// MediaRepository handles database operations for Media entities
type MediaRepository struct {
	DB *gorm.DB
}

func NewMediaRepository(db *gorm.DB) *MediaRepository {
	return &MediaRepository{DB: db}
}

func (r *MediaRepository) Create(media *models.Media) error {
	if media.CreatedAt == 0 {
		media.CreatedAt = time.Now().Unix()
	}
	if err := r.DB.Create(media).Error; err != nil {
		return fmt.Errorf("failed to create media %s in set %d: %w", media.Filename, media.SetID, err)
	}
	return nil
}

func (r *MediaRepository) GetByID(id uint) (*models.Media, error) {
	var media models.Media
	err := r.DB.First(&media, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get media by ID %d: %w", id, err)
	}
	return &media, nil
}

// GetByHash looks up the media row holding hash within a set
func (r *MediaRepository) GetByHash(setID uint, hash string) (*models.Media, error) {
	var media models.Media
	err := r.DB.Where("set_id = ? AND hash = ?", setID, hash).First(&media).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get media by hash in set %d: %w", setID, err)
	}
	return &media, nil
}

func (r *MediaRepository) NextSortOrder(setID uint) (int, error) {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return 0, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return database.NextSortOrder(sqlDB, setID)
}

// ListBySet returns a set's media ordered by sort_order
func (r *MediaRepository) ListBySet(setID uint) ([]models.Media, error) {
	return r.ListBySetOrdered(setID, database.SortManual)
}

// ListBySetOrdered returns a set's media in one of the database.Sort* orders
func (r *MediaRepository) ListBySetOrdered(setID uint, order string) ([]models.Media, error) {
	if !database.IsValidSortOrder(order) {
		order = database.DefaultSortOrder
	}
	var media []models.Media
	if err := r.DB.Where("set_id = ?", setID).Order(database.MediaOrderClause(order)).Find(&media).Error; err != nil {
		return nil, fmt.Errorf("failed to list media for set %d: %w", setID, err)
	}
	if order == database.SortFilenameNat {
		sort.SliceStable(media, func(i, j int) bool {
			return natsort.Compare(media[i].Filename, media[j].Filename)
		})
	}
	return media, nil
}

func (r *MediaRepository) Delete(id uint) error {
	result := r.DB.Delete(&models.Media{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete media ID %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
