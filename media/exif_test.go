package media

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetImageMetadataReadsExif(t *testing.T) {
	path := writeJPEGWithExif(t, t.TempDir(), "camera.jpg", exifTIFF(1))

	meta, err := GetImageMetadata(path)
	require.NoError(t, err)
	require.NotNil(t, meta.Width)
	assert.Equal(t, 64, *meta.Width)
	require.NotNil(t, meta.CameraMake)
	assert.Equal(t, "Acme", *meta.CameraMake)
	assert.Nil(t, meta.CameraModel)

	want, err := time.ParseInLocation("2006:01:02 15:04:05", "2021:06:15 10:30:00", time.Local)
	require.NoError(t, err)
	require.NotNil(t, meta.TakenAt)
	assert.Equal(t, want.Unix(), *meta.TakenAt)
}

func TestGetImageMetadataIgnoresOversizedExifCount(t *testing.T) {
	path := writeJPEGWithExif(t, t.TempDir(), "hostile.jpg", exifTIFF(0xC0000001))

	meta, err := GetImageMetadata(path)
	require.NoError(t, err)
	require.NotNil(t, meta.Width)
	assert.Equal(t, 64, *meta.Width)
	assert.Equal(t, 48, *meta.Height)
	assert.Nil(t, meta.CameraMake)
	assert.Nil(t, meta.TakenAt)
}

func TestGetImageMetadataWithoutExif(t *testing.T) {
	dir := t.TempDir()
	for _, path := range []string{writeJPEG(t, dir, "plain.jpg", 32, 16), writePNG(t, dir, "plain.png", 32, 16, true)} {
		meta, err := GetImageMetadata(path)
		require.NoError(t, err, path)
		assert.Equal(t, 32, *meta.Width)
		assert.Nil(t, meta.TakenAt)
	}
}

func TestValidateTIFF(t *testing.T) {
	assert.NoError(t, validateTIFF(exifTIFF(1)))

	err := validateTIFF(exifTIFF(0xC0000001))
	assert.True(t, errors.Is(err, ErrExifBounds), "got %v", err)

	// value offset past the end of the block
	data := exifTIFF(1)
	data[18] = 0xF0
	assert.True(t, errors.Is(validateTIFF(data), ErrExifBounds))

	// IFD0 pointing at itself through the next-IFD link
	data = exifTIFF(1)
	data[34] = 8
	assert.NoError(t, validateTIFF(data))

	assert.Error(t, validateTIFF([]byte("XX\x2a\x00\x08\x00\x00\x00")))
	assert.Error(t, validateTIFF([]byte("II")))
}

func TestReadJPEGExif(t *testing.T) {
	path := writeJPEGWithExif(t, t.TempDir(), "camera.jpg", exifTIFF(1))
	raw := readFile(t, path)

	tiff, err := readJPEGExif(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, exifTIFF(1), tiff)

	_, err = readJPEGExif(bytes.NewReader(readFile(t, writeJPEG(t, t.TempDir(), "plain.jpg", 8, 8))))
	assert.True(t, errors.Is(err, errNoExif))

	_, err = readJPEGExif(bytes.NewReader([]byte("not a jpeg")))
	assert.True(t, errors.Is(err, errNoExif))

	// APP1 cut short
	_, err = readJPEGExif(bytes.NewReader(raw[:20]))
	assert.Error(t, err)
}
