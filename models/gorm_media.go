package models

const (
	MediaKindImage = "image"
	MediaKindVideo = "video"
)

// Media represents one ingested file. It corresponds to the 'media' table.
// (set_id, hash) is unique; a NULL hash never collides.
type Media struct {
	ID           uint     `gorm:"primaryKey;autoIncrement" json:"id"`
	SetID        uint     `gorm:"not null;index;uniqueIndex:idx_media_set_hash" json:"set_id"`
	Filename     string   `gorm:"not null" json:"filename"`
	OriginalPath string   `gorm:"not null" json:"original_path"`
	DisplayPath  *string  `gorm:"" json:"display_path,omitempty"`
	ThumbPath    *string  `gorm:"" json:"thumb_path,omitempty"`
	Kind         string   `gorm:"not null" json:"kind"`
	MimeType     string   `gorm:"not null" json:"mime_type"`
	Size         int64    `gorm:"not null" json:"size"`
	Width        *int     `gorm:"" json:"width,omitempty"`    // Nullable
	Height       *int     `gorm:"" json:"height,omitempty"`   // Nullable
	Duration     *float64 `gorm:"" json:"duration,omitempty"` // Nullable, seconds, video only
	SortOrder    int      `gorm:"not null;default:0;index" json:"sort_order"`
	Hash         *string  `gorm:"uniqueIndex:idx_media_set_hash" json:"hash,omitempty"` // Nullable

	TakenAt     *int64  `gorm:"" json:"taken_at,omitempty"`
	CameraMake  *string `gorm:"" json:"camera_make,omitempty"`
	CameraModel *string `gorm:"" json:"camera_model,omitempty"`

	CreatedAt int64 `gorm:"not null" json:"created_at"`
}

// TableName explicitly sets the table name for GORM.
func (Media) TableName() string {
	return "media"
}
