package media

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
	"github.com/rwcarlsen/goexif/exif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// ErrImageTooLarge is returned when an image header declares more pixels
// than the configured limit allows
var ErrImageTooLarge = errors.New("image exceeds pixel limit")

// CheckPixelLimit reads only the image header of path and fails when
// width*height is above maxPixels. A limit of zero or less disables the check.
// Files whose header cannot be decoded pass; the full decode reports them.
func CheckPixelLimit(path string, maxPixels int64) error {
	if maxPixels <= 0 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	config, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil
	}
	if config.Width <= 0 || config.Height <= 0 {
		return nil
	}
	if int64(config.Width)*int64(config.Height) > maxPixels {
		return fmt.Errorf("%w: %dx%d is above %d pixels", ErrImageTooLarge, config.Width, config.Height, maxPixels)
	}
	return nil
}

// helper to safely get a string tag, trimming null terminators
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.StringVal()
	if err != nil {
		val = tag.String()
	}
	val = strings.TrimSpace(strings.Trim(strings.TrimRight(val, "\x00"), `"`))
	if val == "" {
		return nil
	}
	return &val
}

// GetImageMetadata reads pixel dimensions and the EXIF fields we keep.
// Missing or malformed EXIF is not an error.
func GetImageMetadata(filePath string) (*Metadata, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	meta := &Metadata{}
	config, _, err := image.DecodeConfig(file)
	if err == nil {
		w, h := config.Width, config.Height
		meta.Width = &w
		meta.Height = &h
	} else {
		logging.Warn("metadata: Could not decode config for dimensions of %s: %v", filepath.Base(filePath), err)
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("metadata: failed to seek file %s: %w", filePath, err)
	}

	// only JPEG APP1 blocks are read; other formats keep dimensions only
	exifData, err := readExif(file)
	if err != nil {
		if !errors.Is(err, errNoExif) {
			logging.Warn("metadata: Ignoring EXIF of %s: %v", filepath.Base(filePath), err)
		}
		return meta, nil
	}

	meta.CameraMake = getString(exifData, exif.Make)
	meta.CameraModel = getString(exifData, exif.Model)
	if dt, err := exifData.DateTime(); err == nil {
		ts := dt.Unix()
		meta.TakenAt = &ts
	}

	return meta, nil
}
