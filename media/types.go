// media/types.go
package media

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type AssetType string

const (
	AssetTypeMedia     AssetType = "media"  // originals and display copies
	AssetTypeThumbnail AssetType = "thumbs" // per-media webp thumbnails
	AssetTypeCover     AssetType = "covers" // set/model/studio covers
)

// Kind is the closed set of media variants the pipeline knows how to ingest.
type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	default:
		return "unknown"
	}
}

// CoverKind names the covers subtree an entity's cover lives in.
type CoverKind string

const (
	CoverKindSet    CoverKind = "sets"
	CoverKindModel  CoverKind = "models"
	CoverKindStudio CoverKind = "studios"
)

// Metadata struct
// Contains EXIF, dimension and duration information
type Metadata struct {
	Width       *int     `json:"width,omitempty"`
	Height      *int     `json:"height,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	CameraMake  *string  `json:"camera_make,omitempty"`
	CameraModel *string  `json:"camera_model,omitempty"`
	TakenAt     *int64   `json:"taken_at,omitempty"`
}

var supportedImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
	".bmp": true, ".tif": true, ".tiff": true,
}

var supportedVideoExtensions = map[string]bool{
	".mp4": true, ".m4v": true, ".mov": true, ".webm": true, ".mkv": true, ".avi": true,
}

// browsers render these directly, so a display copy within bounds can be the original bytes
var webDisplayMimes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// IsSupportedFile checks the extension against the image and video lists
func IsSupportedFile(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return supportedImageExtensions[ext] || supportedVideoExtensions[ext]
}

// IsRasterImage checks if the filename has a supported raster image extension
func IsRasterImage(filename string) bool {
	return supportedImageExtensions[strings.ToLower(filepath.Ext(filename))]
}

// Classification is the result of sniffing a file's content.
type Classification struct {
	Kind     Kind
	MimeType string
}

// Classify decides the media variant from the file's content, not its name.
func Classify(path string) (Classification, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return Classification{}, fmt.Errorf("failed to detect mime type of %s: %w", filepath.Base(path), err)
	}

	mime := mt.String()
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}

	switch {
	case strings.HasPrefix(mime, "image/"):
		return Classification{Kind: KindImage, MimeType: mime}, nil
	case strings.HasPrefix(mime, "video/"):
		return Classification{Kind: KindVideo, MimeType: mime}, nil
	}
	return Classification{Kind: KindUnknown, MimeType: mime}, fmt.Errorf("unsupported content type %s", mime)
}
