package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
)

const (
	DefaultMediaSubDir  = "media"
	DefaultThumbsSubDir = "thumbs"
	DefaultCoversSubDir = "covers"
)

const (
	defaultIngestQueueSize   = 16
	defaultNumIngestWorkers  = 2
	defaultThumbnailWidth    = 300
	defaultThumbnailHeight   = 400
	defaultThumbnailQuality  = 80
	defaultDisplayMaxSize    = 2048
	defaultDisplayQuality    = 85
	defaultCoverMaxSize      = 1200
	defaultMaxImagePixels    = 100_000_000
	defaultUploadTempMaxAge  = 24 * time.Hour
	defaultSweepSchedule     = "@every 1h"
	defaultLogMaxSizeMB      = 50
	defaultLogMaxBackups     = 5
	defaultLogMaxAgeDays     = 28
	defaultMaxUploadBytes    = 16 << 30 // 16GiB
	defaultVideoProbeTimeout = 30 * time.Second
)

type Config struct {
	// database path
	DatabasePath string

	// media storage configuration
	MediaStoragePath string // root for all stored assets
	MediaPath        string // full-calculated path for originals and display copies
	ThumbsPath       string // full-calculated path for media thumbnails
	CoversPath       string // full-calculated path for set/model/studio covers
	UploadTempPath   string // where uploaded archives are streamed before ingestion

	// derivative settings
	ThumbnailWidth   int
	ThumbnailHeight  int
	ThumbnailQuality int
	DisplayMaxSize   int // longest side
	DisplayQuality   int
	CoverMaxSize     int
	MaxImagePixels   int64 // images declaring more pixels are refused before decoding

	// video tooling
	FFmpegPath        string
	FFprobePath       string
	VideoProbeTimeout time.Duration
	UseVips           bool

	// worker settings
	IngestQueueSize  int
	NumIngestWorkers int

	// upload limits and temp cleanup
	MaxUploadBytes   int64
	UploadTempMaxAge time.Duration
	SweepSchedule    string

	// logging
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int

	// http
	Port           string
	AllowedOrigins []string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		logging.Warn("Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvDurationOrDefault(envVar string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil || val <= 0 {
		logging.Warn("Invalid %s '%s'. Using default %s. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvBoolOrDefault(envVar string, defaultVal bool) bool {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		logging.Warn("Invalid %s '%s'. Using default %t.", envVar, valStr, defaultVal)
		return defaultVal
	}
	return val
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", "catalog.db")

	mediaStorage := getEnvOrDefault("MEDIA_STORAGE_PATH", filepath.Join(".", "media_storage"))
	absMediaStorage, err := filepath.Abs(mediaStorage)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for media storage '%s': %w", mediaStorage, err)
	}

	mediaSubDir := getEnvOrDefault("MEDIA_SUBDIR", DefaultMediaSubDir)
	thumbsSubDir := getEnvOrDefault("THUMBS_SUBDIR", DefaultThumbsSubDir)
	coversSubDir := getEnvOrDefault("COVERS_SUBDIR", DefaultCoversSubDir)

	uploadTemp := getEnvOrDefault("UPLOAD_TEMP_PATH", filepath.Join(os.TempDir(), "catalog_uploads"))
	absUploadTemp, err := filepath.Abs(uploadTemp)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for upload temp dir '%s': %w", uploadTemp, err)
	}

	var origins []string
	for _, o := range strings.Split(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:5173"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	cfg := Config{
		DatabasePath:      dbPath,
		MediaStoragePath:  absMediaStorage,
		MediaPath:         filepath.Join(absMediaStorage, mediaSubDir),
		ThumbsPath:        filepath.Join(absMediaStorage, thumbsSubDir),
		CoversPath:        filepath.Join(absMediaStorage, coversSubDir),
		UploadTempPath:    absUploadTemp,
		ThumbnailWidth:    getEnvIntOrDefault("THUMBNAIL_WIDTH", defaultThumbnailWidth),
		ThumbnailHeight:   getEnvIntOrDefault("THUMBNAIL_HEIGHT", defaultThumbnailHeight),
		ThumbnailQuality:  getEnvIntOrDefault("THUMBNAIL_QUALITY", defaultThumbnailQuality),
		DisplayMaxSize:    getEnvIntOrDefault("DISPLAY_MAX_SIZE", defaultDisplayMaxSize),
		DisplayQuality:    getEnvIntOrDefault("DISPLAY_QUALITY", defaultDisplayQuality),
		CoverMaxSize:      getEnvIntOrDefault("COVER_MAX_SIZE", defaultCoverMaxSize),
		MaxImagePixels:    int64(getEnvIntOrDefault("MAX_IMAGE_PIXELS", defaultMaxImagePixels)),
		FFmpegPath:        getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		FFprobePath:       getEnvOrDefault("FFPROBE_PATH", "ffprobe"),
		VideoProbeTimeout: getEnvDurationOrDefault("VIDEO_PROBE_TIMEOUT", defaultVideoProbeTimeout),
		UseVips:           getEnvBoolOrDefault("USE_VIPS", true),
		IngestQueueSize:   getEnvIntOrDefault("INGEST_QUEUE_SIZE", defaultIngestQueueSize),
		NumIngestWorkers:  getEnvIntOrDefault("NUM_INGEST_WORKERS", defaultNumIngestWorkers),
		MaxUploadBytes:    int64(getEnvIntOrDefault("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		UploadTempMaxAge:  getEnvDurationOrDefault("UPLOAD_TEMP_MAX_AGE", defaultUploadTempMaxAge),
		SweepSchedule:     getEnvOrDefault("UPLOAD_SWEEP_SCHEDULE", defaultSweepSchedule),
		LogFile:           os.Getenv("LOG_FILE"),
		LogMaxSizeMB:      getEnvIntOrDefault("LOG_MAX_SIZE_MB", defaultLogMaxSizeMB),
		LogMaxBackups:     getEnvIntOrDefault("LOG_MAX_BACKUPS", defaultLogMaxBackups),
		LogMaxAgeDays:     getEnvIntOrDefault("LOG_MAX_AGE_DAYS", defaultLogMaxAgeDays),
		Port:              getEnvOrDefault("PORT", "8080"),
		AllowedOrigins:    origins,
	}

	return cfg, nil
}
