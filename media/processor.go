package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

const (
	ThumbnailFileExtension = ".webp"
	CoverFileName          = "cover.jpg"
	CoverThumbFileName     = "cover_thumb.webp"
)

// ProcessorOptions are the derivative sizes and qualities
type ProcessorOptions struct {
	ThumbnailWidth   int
	ThumbnailHeight  int
	ThumbnailQuality int
	DisplayMaxSize   int
	DisplayQuality   int
	CoverMaxSize     int
	MaxImagePixels   int64
}

// DefaultMaxImagePixels bounds the decoded size of a source image (100MP)
const DefaultMaxImagePixels int64 = 100_000_000

// DefaultProcessorOptions matches the config defaults
func DefaultProcessorOptions() ProcessorOptions {
	return ProcessorOptions{
		ThumbnailWidth:   300,
		ThumbnailHeight:  400,
		ThumbnailQuality: 80,
		DisplayMaxSize:   2048,
		DisplayQuality:   85,
		CoverMaxSize:     1200,
		MaxImagePixels:   DefaultMaxImagePixels,
	}
}

// Processor handles media transformations like thumbnailing and resizing. it
// relies on a Store implementation for saving the results.
type Processor struct {
	store Store
	opts  ProcessorOptions
	video *VideoTool
}

func NewProcessor(store Store, opts ProcessorOptions, video *VideoTool) *Processor {
	return &Processor{store: store, opts: opts, video: video}
}

// CheckImage refuses images whose header declares more than MaxImagePixels
func (p *Processor) CheckImage(path string) error {
	return CheckPixelLimit(path, p.opts.MaxImagePixels)
}

// DisplayResult describes a written display derivative. Image is the decoded
// display-sized picture, reused as the thumbnail source.
type DisplayResult struct {
	Path   string
	Width  int
	Height int
	Image  image.Image
}

// Derivatives are the stored paths and measurements of one ingested file
type Derivatives struct {
	OriginalPath string
	DisplayPath  string
	ThumbPath    *string
	Width        *int
	Height       *int
	Duration     *float64
}

// CoverPaths are the two files written for a set/model/studio cover
type CoverPaths struct {
	Path      string
	ThumbPath string
}

func baseName(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

func hasAlpha(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}

// saveEncoded streams encode's output into the store through a pipe
func (p *Processor) saveEncoded(assetType AssetType, relDir, filename string, encode func(w io.Writer) error) (string, error) {
	reader, writer := io.Pipe()
	defer reader.Close()

	go func() {
		if err := encode(writer); err != nil {
			writer.CloseWithError(fmt.Errorf("encoding %s failed: %w", filename, err))
			return
		}
		writer.Close()
	}()

	return p.store.Save(assetType, relDir, filename, reader)
}

func encodeWebP(img image.Image, quality int) func(w io.Writer) error {
	return func(w io.Writer) error {
		options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
		if err != nil {
			return err
		}
		return webp.Encode(w, img, options)
	}
}

// GenerateThumbnail crops src to fill the thumbnail box and stores it as WebP.
// returns relative path to saved thumb or error.
func (p *Processor) GenerateThumbnail(src image.Image, relDir, name string) (string, error) {
	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return "", fmt.Errorf("invalid source image dimensions: %dx%d", b.Dx(), b.Dy())
	}

	thumb := imaging.Fill(src, p.opts.ThumbnailWidth, p.opts.ThumbnailHeight, imaging.Center, imaging.Lanczos)
	savedRelPath, err := p.saveEncoded(AssetTypeThumbnail, relDir, baseName(name)+ThumbnailFileExtension, encodeWebP(thumb, p.opts.ThumbnailQuality))
	if err != nil {
		return "", fmt.Errorf("failed to save thumbnail via store: %w", err)
	}
	return savedRelPath, nil
}

// GenerateDisplay writes the display copy of an image into relDir. The long
// edge is bounded by DisplayMaxSize and the image is never upscaled; a web
// format already within bounds is copied unchanged.
func (p *Processor) GenerateDisplay(srcPath, mimeType, relDir, name string) (*DisplayResult, error) {
	if err := p.CheckImage(srcPath); err != nil {
		return nil, err
	}
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(srcPath), err)
	}
	return p.writeDisplay(img, srcPath, mimeType, relDir, name)
}

func (p *Processor) writeDisplay(img image.Image, srcPath, mimeType, relDir, name string) (*DisplayResult, error) {
	b := img.Bounds()
	maxSize := p.opts.DisplayMaxSize

	if b.Dx() <= maxSize && b.Dy() <= maxSize && srcPath != "" && webDisplayMimes[mimeType] {
		src, err := os.Open(srcPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s for display copy: %w", filepath.Base(srcPath), err)
		}
		defer src.Close()
		relPath, err := p.store.Save(AssetTypeMedia, relDir, name, src)
		if err != nil {
			return nil, fmt.Errorf("failed to save display copy: %w", err)
		}
		return &DisplayResult{Path: relPath, Width: b.Dx(), Height: b.Dy(), Image: img}, nil
	}

	// Fit leaves images inside the box untouched
	resized := imaging.Fit(img, maxSize, maxSize, imaging.Lanczos)
	w, h := resized.Bounds().Dx(), resized.Bounds().Dy()

	var (
		relPath string
		err     error
	)
	if hasAlpha(resized) {
		relPath, err = p.saveEncoded(AssetTypeMedia, relDir, baseName(name)+".png", func(out io.Writer) error {
			return imaging.Encode(out, resized, imaging.PNG)
		})
	} else {
		relPath, err = p.saveJPEG(resized, srcPath, relDir, baseName(name)+".jpg", w, h)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save display derivative: %w", err)
	}

	return &DisplayResult{Path: relPath, Width: w, Height: h, Image: resized}, nil
}

// saveJPEG prefers a progressive libvips encode from the source file and
// falls back to a baseline imaging encode of the already resized image.
func (p *Processor) saveJPEG(img image.Image, srcPath, relDir, filename string, w, h int) (string, error) {
	if srcPath != "" && IsVipsAvailable() {
		buf, err := encodeProgressiveJPEG(srcPath, w, h, p.opts.DisplayQuality)
		if err == nil {
			return p.store.Save(AssetTypeMedia, relDir, filename, bytes.NewReader(buf))
		}
		logging.Warn("processor: vips display encode failed for %s, using imaging: %v", filepath.Base(srcPath), err)
	}
	return p.saveEncoded(AssetTypeMedia, relDir, filename, func(out io.Writer) error {
		return imaging.Encode(out, img, imaging.JPEG, imaging.JPEGQuality(p.opts.DisplayQuality))
	})
}

// ProcessMedia moves a staged file into the set's media dir and builds its
// derivatives. The display copy is required; the thumbnail is best effort.
// Everything written is removed again when an error is returned.
func (p *Processor) ProcessMedia(ctx context.Context, stagedPath string, cls Classification, dirs SetDirs, filename string) (*Derivatives, error) {
	origRel, err := p.store.Adopt(AssetTypeMedia, dirs.RelDir, filename, stagedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to store original: %w", err)
	}
	origFull, err := p.store.GetFullPath(origRel)
	if err != nil {
		p.store.Delete(origRel)
		return nil, err
	}

	d := &Derivatives{OriginalPath: origRel}
	var display *DisplayResult

	switch cls.Kind {
	case KindImage:
		display, err = p.GenerateDisplay(origFull, cls.MimeType, dirs.DisplayRelDir(), filename)
		if err == nil {
			w, h := display.Width, display.Height
			d.Width, d.Height = &w, &h
		}
	case KindVideo:
		display, err = p.processVideo(ctx, origFull, dirs, filename, d)
	default:
		err = fmt.Errorf("unsupported media kind %s", cls.Kind)
	}
	if err != nil {
		p.store.Delete(origRel)
		return nil, err
	}
	d.DisplayPath = display.Path

	thumbRel, err := p.GenerateThumbnail(display.Image, dirs.RelDir, filename)
	if err != nil {
		logging.Warn("processor: Thumbnail skipped for %s: %v", filename, err)
	} else {
		d.ThumbPath = &thumbRel
	}

	return d, nil
}

// processVideo probes the clip and stores a poster frame as its display copy
func (p *Processor) processVideo(ctx context.Context, path string, dirs SetDirs, filename string, d *Derivatives) (*DisplayResult, error) {
	if p.video == nil {
		return nil, fmt.Errorf("video processing is not configured")
	}

	info, err := p.video.Probe(ctx, path)
	if err != nil {
		logging.Warn("processor: ffprobe failed for %s, continuing without duration: %v", filename, err)
	}
	if info.Duration > 0 {
		dur := info.Duration
		d.Duration = &dur
	}

	frame, _ := p.video.PosterFrame(ctx, path, info)
	if info.Width > 0 && info.Height > 0 {
		w, h := info.Width, info.Height
		d.Width, d.Height = &w, &h
	}

	// posters are always re-encoded, so no source path for the copy shortcut
	return p.writeDisplay(frame, "", "", dirs.DisplayRelDir(), baseName(filename)+".jpg")
}

// RemoveDerivatives deletes every stored file of d
func (p *Processor) RemoveDerivatives(d *Derivatives) {
	if d == nil {
		return
	}
	for _, rel := range []string{d.OriginalPath, d.DisplayPath} {
		if err := p.store.Delete(rel); err != nil {
			logging.Error("processor: Failed to remove %s: %v", rel, err)
		}
	}
	if d.ThumbPath != nil {
		if err := p.store.Delete(*d.ThumbPath); err != nil {
			logging.Error("processor: Failed to remove %s: %v", *d.ThumbPath, err)
		}
	}
}

// GenerateCover writes covers/<kind>/<slug>/cover.jpg and cover_thumb.webp
// from srcPath, replacing earlier files of the same entity.
func (p *Processor) GenerateCover(kind CoverKind, slug, srcPath string) (*CoverPaths, error) {
	if slug == "" {
		return nil, fmt.Errorf("cover slug cannot be empty")
	}
	if err := p.CheckImage(srcPath); err != nil {
		return nil, err
	}
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode cover source %s: %w", filepath.Base(srcPath), err)
	}

	relDir := filepath.Join(string(kind), slug)
	cover := imaging.Fit(img, p.opts.CoverMaxSize, p.opts.CoverMaxSize, imaging.Lanczos)
	if hasAlpha(cover) {
		bg := imaging.New(cover.Bounds().Dx(), cover.Bounds().Dy(), color.White)
		cover = imaging.Overlay(bg, cover, image.Pt(0, 0), 1.0)
	}

	coverRel, err := p.saveEncoded(AssetTypeCover, relDir, CoverFileName, func(out io.Writer) error {
		return imaging.Encode(out, cover, imaging.JPEG, imaging.JPEGQuality(p.opts.DisplayQuality))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save cover: %w", err)
	}

	thumb := imaging.Fill(img, p.opts.ThumbnailWidth, p.opts.ThumbnailHeight, imaging.Center, imaging.Lanczos)
	thumbRel, err := p.saveEncoded(AssetTypeCover, relDir, CoverThumbFileName, encodeWebP(thumb, p.opts.ThumbnailQuality))
	if err != nil {
		p.store.Delete(coverRel)
		return nil, fmt.Errorf("failed to save cover thumbnail: %w", err)
	}

	logging.Info("processor: Generated %s cover for %s", strings.TrimSuffix(string(kind), "s"), slug)
	return &CoverPaths{Path: coverRel, ThumbPath: thumbRel}, nil
}
