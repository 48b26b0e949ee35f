package media

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
	vipsAvailable   bool
)

// InitVips starts libvips once. Display encoding falls back to imaging when
// this was never called.
func InitVips() error {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return nil
	}

	// vips only gets to speak at warning and above unless we are debugging
	vipsLogLevel := vips.LogLevelWarning
	if logging.IsDebugEnabled() {
		vipsLogLevel = vips.LogLevelInfo
	}
	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("vips: [%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("vips: [%s] %s", domain, msg)
		default:
			logging.Debug("vips: [%s] %s", domain, msg)
		}
	}, vipsLogLevel)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
	})

	vipsInitialized = true
	vipsAvailable = true
	logging.Info("vips: libvips initialized (version: %s)", vips.Version)
	return nil
}

// ShutdownVips cleans up libvips resources
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		vipsAvailable = false
		logging.Info("vips: libvips shutdown complete")
	}
}

// IsVipsAvailable returns whether libvips is initialized and available
func IsVipsAvailable() bool {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()
	return vipsAvailable
}

// encodeProgressiveJPEG loads srcPath with libvips, shrinks it into a
// width x height box and exports an interlaced JPEG.
func encodeProgressiveJPEG(srcPath string, width, height, quality int) ([]byte, error) {
	if !IsVipsAvailable() {
		return nil, fmt.Errorf("libvips not available")
	}

	ref, err := vips.LoadImageFromFile(srcPath, vips.NewImportParams())
	if err != nil {
		return nil, fmt.Errorf("vips failed to load %s: %w", filepath.Base(srcPath), err)
	}
	defer ref.Close()

	if ref.Width() != width || ref.Height() != height {
		if err := ref.Thumbnail(width, height, vips.InterestingNone); err != nil {
			return nil, fmt.Errorf("vips resize failed: %w", err)
		}
	}

	buf, _, err := ref.ExportJpeg(&vips.JpegExportParams{
		Quality:        quality,
		Interlace:      true,
		StripMetadata:  true,
		OptimizeCoding: true,
	})
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}

	logging.Debug("vips: Encoded progressive display for %s (%dx%d)", filepath.Base(srcPath), width, height)
	return buf, nil
}
