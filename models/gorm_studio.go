package models

// Studio represents a top-level organizational unit using GORM.
// It corresponds to the 'studios' table.
type Studio struct {
	ID            uint    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string  `gorm:"not null" json:"name"`
	Slug          string  `gorm:"not null;unique" json:"slug"`
	Description   *string `gorm:"" json:"description,omitempty"`
	Website       *string `gorm:"" json:"website,omitempty"`
	LogoPath      *string `gorm:"" json:"logo_path,omitempty"`       // Nullable
	LogoThumbPath *string `gorm:"" json:"logo_thumb_path,omitempty"` // Nullable
	CreatedAt     int64   `gorm:"not null" json:"created_at"`
	UpdatedAt     int64   `gorm:"not null" json:"updated_at"`

	// Relationships
	Models []Model `gorm:"foreignKey:StudioID;constraint:OnDelete:CASCADE" json:"models,omitempty"`
}

// TableName explicitly sets the table name for GORM.
func (Studio) TableName() string {
	return "studios"
}

// HasLogo reports whether both logo paths are populated.
func (s *Studio) HasLogo() bool {
	return s.LogoPath != nil && *s.LogoPath != "" && s.LogoThumbPath != nil && *s.LogoThumbPath != ""
}
