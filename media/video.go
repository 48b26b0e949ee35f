package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"

	"github.com/disintegration/imaging"
)

const (
	frameOffsetFraction = 0.10
	minFrameOffset      = 1.0
	maxFrameOffset      = 30.0

	placeholderWidth  = 640
	placeholderHeight = 360
)

// VideoInfo is what ffprobe tells us about the first video stream
type VideoInfo struct {
	Duration float64
	Width    int
	Height   int
}

// VideoTool shells out to ffprobe/ffmpeg. A VideoTool with missing binaries
// still works: PosterFrame hands back a placeholder.
type VideoTool struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

func NewVideoTool(ffmpegPath, ffprobePath string, timeout time.Duration) *VideoTool {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if p, err := exec.LookPath(ffmpegPath); err == nil {
		ffmpegPath = p
	} else {
		logging.Warn("video: ffmpeg not found at '%s', video posters will use a placeholder", ffmpegPath)
	}
	if p, err := exec.LookPath(ffprobePath); err == nil {
		ffprobePath = p
	} else {
		logging.Warn("video: ffprobe not found at '%s', video durations will be unknown", ffprobePath)
	}
	return &VideoTool{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, timeout: timeout}
}

type ffprobeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads duration and dimensions of a video file
func (v *VideoTool) Probe(ctx context.Context, path string) (VideoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, v.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:format=duration",
		"-of", "json",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe failed for %s: %w, stderr: %s", filepath.Base(path), err, stderr.String())
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return VideoInfo{}, fmt.Errorf("invalid ffprobe output for %s: %w", filepath.Base(path), err)
	}

	info := VideoInfo{}
	if len(out.Streams) > 0 {
		info.Width = out.Streams[0].Width
		info.Height = out.Streams[0].Height
	}
	if out.Format.Duration != "" {
		if d, err := strconv.ParseFloat(out.Format.Duration, 64); err == nil && d > 0 {
			info.Duration = d
		}
	}
	return info, nil
}

// FrameOffset picks the poster time: 10% into the clip, kept between 1s and
// 30s. Clips shorter than a second are sampled from the start.
func FrameOffset(duration float64) float64 {
	if duration < minFrameOffset {
		return 0
	}
	offset := duration * frameOffsetFraction
	if offset < minFrameOffset {
		return minFrameOffset
	}
	if offset > maxFrameOffset {
		return maxFrameOffset
	}
	return offset
}

// ExtractFrame grabs a single frame at offset seconds
func (v *VideoTool) ExtractFrame(ctx context.Context, path string, offset float64) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, v.ffmpegPath,
		"-ss", strconv.FormatFloat(offset, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "png",
		"-",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg failed for %s: %w, stderr: %s", filepath.Base(path), err, stderr.String())
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", filepath.Base(path))
	}

	img, _, err := image.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

// PosterFrame never fails: any ffmpeg problem yields a placeholder so a
// missing toolchain cannot block ingestion.
func (v *VideoTool) PosterFrame(ctx context.Context, path string, info VideoInfo) (image.Image, bool) {
	img, err := v.ExtractFrame(ctx, path, FrameOffset(info.Duration))
	if err != nil {
		logging.Warn("video: Using placeholder poster for %s: %v", filepath.Base(path), err)
		return PlaceholderFrame(info.Width, info.Height), false
	}
	return img, true
}

// PlaceholderFrame is a neutral grey still, sized like the video when known
func PlaceholderFrame(width, height int) image.Image {
	if width <= 0 || height <= 0 {
		width, height = placeholderWidth, placeholderHeight
	}
	return imaging.New(width, height, color.NRGBA{R: 0x80, G: 0x80, B: 0x80, A: 0xff})
}
