package media

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	"golang.org/x/crypto/blake2b"
)

const (
	perceptualHashPrefix = "p:"
	contentHashPrefix    = "b2:"
)

// Hasher computes the duplicate-detection digest of a stored file. Images get
// a perceptual hash so recompressed copies collide; everything else gets a
// BLAKE2b-256 digest of the raw bytes. Images above maxPixels are refused
// before decoding.
type Hasher struct {
	maxPixels int64
}

func NewHasher(maxPixels int64) *Hasher {
	return &Hasher{maxPixels: maxPixels}
}

// Hash returns a digest of the form "p:<16 hex>" or "b2:<64 hex>"
func (h *Hasher) Hash(path string, kind Kind) (string, error) {
	switch kind {
	case KindImage:
		return h.perceptual(path)
	default:
		return h.content(path)
	}
}

func (h *Hasher) perceptual(path string) (string, error) {
	if err := CheckPixelLimit(path, h.maxPixels); err != nil {
		return "", fmt.Errorf("hasher: %w", err)
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("hasher: failed to decode %s: %w", filepath.Base(path), err)
	}
	ph, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("hasher: perceptual hash failed for %s: %w", filepath.Base(path), err)
	}
	return fmt.Sprintf("%s%016x", perceptualHashPrefix, ph.GetHash()), nil
}

func (h *Hasher) content(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hasher: failed to open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	digest, err := blake2b.New256(nil)
	if err != nil {
		return "", fmt.Errorf("hasher: failed to init blake2b: %w", err)
	}
	if _, err := io.Copy(digest, f); err != nil {
		return "", fmt.Errorf("hasher: failed to read %s: %w", filepath.Base(path), err)
	}
	return contentHashPrefix + hex.EncodeToString(digest.Sum(nil)), nil
}

// HashFragment is the short piece of a digest used to make stored filenames unique
func HashFragment(hash string) string {
	for _, prefix := range []string{perceptualHashPrefix, contentHashPrefix} {
		if len(hash) > len(prefix) && hash[:len(prefix)] == prefix {
			hash = hash[len(prefix):]
			break
		}
	}
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}
