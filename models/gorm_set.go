package models

// Set is a named grouping of media belonging to exactly one Model.
// ImageCount, VideoCount and TotalSize are a cache recomputed from the media table.
type Set struct {
	ID             uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	ModelID        uint    `gorm:"not null;uniqueIndex:idx_set_model_name" json:"model_id"`
	Name           string  `gorm:"not null;uniqueIndex:idx_set_model_name" json:"name"`
	Slug           string  `gorm:"not null;unique" json:"slug"`
	CoverPath      *string `gorm:"" json:"cover_path,omitempty"`       // Nullable
	CoverThumbPath *string `gorm:"" json:"cover_thumb_path,omitempty"` // Nullable
	ImageCount     int     `gorm:"not null;default:0" json:"image_count"`
	VideoCount     int     `gorm:"not null;default:0" json:"video_count"`
	TotalSize      int64   `gorm:"not null;default:0" json:"total_size"`
	CreatedAt      int64   `gorm:"not null" json:"created_at"`
	UpdatedAt      int64   `gorm:"not null" json:"updated_at"`

	Media []Media `gorm:"foreignKey:SetID;constraint:OnDelete:CASCADE" json:"media,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Set) TableName() string {
	return "sets"
}

func (s *Set) HasCover() bool {
	return s.CoverPath != nil && *s.CoverPath != "" && s.CoverThumbPath != nil && *s.CoverThumbPath != ""
}
