package models

// Model represents a performer or subject, optionally owned by a Studio.
// A nil StudioID means the model is independent.
type Model struct {
	ID               uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	StudioID         *uint   `gorm:"index" json:"studio_id,omitempty"`
	Name             string  `gorm:"not null" json:"name"`
	Slug             string  `gorm:"not null;unique" json:"slug"`
	ProfilePath      *string `gorm:"" json:"profile_path,omitempty"`       // Nullable
	ProfileThumbPath *string `gorm:"" json:"profile_thumb_path,omitempty"` // Nullable
	IsActive         bool    `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        int64   `gorm:"not null" json:"created_at"`
	UpdatedAt        int64   `gorm:"not null" json:"updated_at"`

	Studio *Studio `gorm:"foreignKey:StudioID" json:"studio,omitempty"`
	Sets   []Set   `gorm:"foreignKey:ModelID;constraint:OnDelete:CASCADE" json:"sets,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Model) TableName() string {
	return "models"
}

func (m *Model) HasProfile() bool {
	return m.ProfilePath != nil && *m.ProfilePath != "" && m.ProfileThumbPath != nil && *m.ProfileThumbPath != ""
}
