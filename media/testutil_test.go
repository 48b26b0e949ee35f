package media

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// gradient gives the perceptual hash something to work with
func gradient(w, h int, opaque bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := uint8(255)
			if !opaque && x < w/2 {
				a = 64
			}
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 90, A: a})
		}
	}
	return img
}

func writeJPEG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, jpeg.Encode(f, gradient(w, h, true), &jpeg.Options{Quality: 90}))
	return path
}

func writePNG(t *testing.T, dir, name string, w, h int, opaque bool) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, gradient(w, h, opaque)))
	return path
}

func newTestStore(t *testing.T) *LocalStorage {
	t.Helper()
	store, err := NewLocalStorage(t.TempDir(), nil)
	require.NoError(t, err)
	return store
}

// exifTIFF builds a little-endian TIFF block holding Make "Acme" in IFD0 and
// DateTimeOriginal in the EXIF sub-IFD. exifPointerCount is the count field
// of the sub-IFD pointer, normally 1.
func exifTIFF(exifPointerCount uint32) []byte {
	le := binary.LittleEndian
	var b bytes.Buffer
	put := func(v interface{}) { _ = binary.Write(&b, le, v) }

	b.WriteString("II")
	put(uint16(42))
	put(uint32(8))

	put(uint16(2))
	put(uint16(0x010F)) // Make
	put(uint16(2))
	put(uint32(5))
	put(uint32(38))
	put(uint16(0x8769)) // ExifIFD
	put(uint16(4))
	put(exifPointerCount)
	put(uint32(44))
	put(uint32(0))
	b.WriteString("Acme\x00\x00")

	put(uint16(1))
	put(uint16(0x9003)) // DateTimeOriginal
	put(uint16(2))
	put(uint32(20))
	put(uint32(62))
	put(uint32(0))
	b.WriteString("2021:06:15 10:30:00\x00")
	return b.Bytes()
}

// writeJPEGWithExif writes a JPEG with tiff spliced in as an APP1 segment
func writeJPEGWithExif(t *testing.T, dir, name string, tiff []byte) string {
	t.Helper()
	var img bytes.Buffer
	require.NoError(t, jpeg.Encode(&img, gradient(64, 48, true), &jpeg.Options{Quality: 90}))
	raw := img.Bytes()

	var out bytes.Buffer
	out.Write(raw[:2])
	out.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&out, binary.BigEndian, uint16(2+6+len(tiff)))
	out.WriteString("Exif\x00\x00")
	out.Write(tiff)
	out.Write(raw[2:])

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0644))
	return path
}

// writePNGHeader writes a PNG that is only a signature and an IHDR chunk
// declaring w x h, enough for DecodeConfig but never fully decodable
func writePNGHeader(t *testing.T, dir, name string, w, h uint32) string {
	t.Helper()
	var ihdr bytes.Buffer
	ihdr.WriteString("IHDR")
	_ = binary.Write(&ihdr, binary.BigEndian, w)
	_ = binary.Write(&ihdr, binary.BigEndian, h)
	ihdr.Write([]byte{8, 2, 0, 0, 0}) // 8-bit RGB

	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(&out, binary.BigEndian, uint32(ihdr.Len()-4))
	out.Write(ihdr.Bytes())
	_ = binary.Write(&out, binary.BigEndian, crc32.ChecksumIEEE(ihdr.Bytes()))

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, out.Bytes(), 0644))
	return path
}

func readFile(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}
