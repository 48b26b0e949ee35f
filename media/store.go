package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
)

const (
	// IndependentStudioSlug keys the layout of models with no studio
	IndependentStudioSlug = "independent"

	displaySubDir = "display"
	stagingSubDir = ".incoming"
)

// Store defines the interface for saving, retrieving, and deleting media assets
type Store interface {
	// Save stores data from reader under assetType/relativeDir/filename and
	// returns the path relative to the storage root
	Save(assetType AssetType, relativeDir string, filename string, data io.Reader) (string, error)
	// Adopt moves an existing file (usually a staged archive entry) into the store
	Adopt(assetType AssetType, relativeDir string, filename string, srcPath string) (string, error)
	// Get retrieves a reader for an asset
	Get(relativePath string) (io.ReadCloser, os.FileInfo, error)
	// Delete removes an asset
	Delete(relativePath string) error
	// GetFullPath returns the absolute filesystem path for a relative asset path
	GetFullPath(relativePath string) (string, error)
	// EnsureSetDirs creates the media, display, thumbnail and staging dirs of a set
	EnsureSetDirs(studioSlug, setSlug string) (SetDirs, error)
}

// SetDirs holds the directories of one set. RelDir is the studio/set key
// shared by the media and thumbs trees.
type SetDirs struct {
	RelDir     string
	MediaDir   string
	DisplayDir string
	ThumbsDir  string
	StagingDir string
}

// DisplayRelDir is the relative dir (inside the media tree) of a set's display copies
func (d SetDirs) DisplayRelDir() string {
	return filepath.Join(d.RelDir, displaySubDir)
}

// LocalStorage implements the Store interface using the local filesystem
type LocalStorage struct {
	basePath        string               // absolute path to the MEDIA_STORAGE_PATH
	resolvedPathMap map[AssetType]string // maps AssetType to full absolute path
}

// NewLocalStorage creates a new local filesystem store
func NewLocalStorage(basePath string, subDirs map[AssetType]string) (*LocalStorage, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	resolvedPaths := make(map[AssetType]string)
	for _, assetType := range []AssetType{AssetTypeMedia, AssetTypeThumbnail, AssetTypeCover} {
		subDir, ok := subDirs[assetType]
		if !ok || subDir == "" {
			subDir = string(assetType)
		}
		fullPath := filepath.Join(absBasePath, subDir)
		if !isWithin(absBasePath, fullPath) {
			return nil, fmt.Errorf("invalid subdirectory configuration: '%s' resolves outside base path '%s'", subDir, absBasePath)
		}
		resolvedPaths[assetType] = fullPath
	}

	logging.Info("media.store: Initialized LocalStorage at %s", absBasePath)
	return &LocalStorage{
		basePath:        absBasePath,
		resolvedPathMap: resolvedPaths,
	}, nil
}

// BasePath returns the absolute storage root
func (ls *LocalStorage) BasePath() string {
	return ls.basePath
}

// AssetDir returns the absolute root of an asset tree
func (ls *LocalStorage) AssetDir(assetType AssetType) (string, error) {
	dirPath, ok := ls.resolvedPathMap[assetType]
	if !ok {
		return "", fmt.Errorf("unknown asset type '%s'", assetType)
	}
	return dirPath, nil
}

func isWithin(root, path string) bool {
	clean := filepath.Clean(path)
	return clean == root || strings.HasPrefix(clean, root+string(os.PathSeparator))
}

// resolveDir joins relativeDir onto the asset tree and creates it
func (ls *LocalStorage) resolveDir(assetType AssetType, relativeDir string) (string, error) {
	baseAssetDir, err := ls.AssetDir(assetType)
	if err != nil {
		return "", err
	}

	targetDir := filepath.Join(baseAssetDir, relativeDir)
	if !isWithin(baseAssetDir, targetDir) {
		return "", fmt.Errorf("invalid relative directory '%s'", relativeDir)
	}
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory '%s': %w", targetDir, err)
	}
	return targetDir, nil
}

func (ls *LocalStorage) relative(fullPath string) (string, error) {
	relativePath, err := filepath.Rel(ls.basePath, fullPath)
	if err != nil {
		logging.Error("media.store: Error calculating relative path for '%s' from '%s': %v", fullPath, ls.basePath, err)
		return "", fmt.Errorf("internal error calculating relative path: %w", err)
	}
	return filepath.ToSlash(relativePath), nil
}

func validFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty for LocalStorage")
	}
	if filename != filepath.Base(filename) || filename == "." || filename == ".." {
		return fmt.Errorf("invalid filename '%s'", filename)
	}
	return nil
}

// EnsureSetDirs is idempotent; an empty studioSlug maps to the independent tree
func (ls *LocalStorage) EnsureSetDirs(studioSlug, setSlug string) (SetDirs, error) {
	if studioSlug == "" {
		studioSlug = IndependentStudioSlug
	}
	if setSlug == "" {
		return SetDirs{}, fmt.Errorf("set slug cannot be empty")
	}
	relDir := filepath.Join(studioSlug, setSlug)

	mediaDir, err := ls.resolveDir(AssetTypeMedia, relDir)
	if err != nil {
		return SetDirs{}, err
	}
	displayDir, err := ls.resolveDir(AssetTypeMedia, filepath.Join(relDir, displaySubDir))
	if err != nil {
		return SetDirs{}, err
	}
	stagingDir, err := ls.resolveDir(AssetTypeMedia, filepath.Join(relDir, stagingSubDir))
	if err != nil {
		return SetDirs{}, err
	}
	thumbsDir, err := ls.resolveDir(AssetTypeThumbnail, relDir)
	if err != nil {
		return SetDirs{}, err
	}

	return SetDirs{
		RelDir:     relDir,
		MediaDir:   mediaDir,
		DisplayDir: displayDir,
		ThumbsDir:  thumbsDir,
		StagingDir: stagingDir,
	}, nil
}

// Save writes data to the store, replacing any file with the same name
func (ls *LocalStorage) Save(assetType AssetType, relativeDir string, filename string, data io.Reader) (string, error) {
	if err := validFilename(filename); err != nil {
		return "", err
	}
	targetDir, err := ls.resolveDir(assetType, relativeDir)
	if err != nil {
		return "", err
	}

	fullSavePath := filepath.Join(targetDir, filename)

	outFile, err := os.Create(fullSavePath)
	if err != nil {
		return "", fmt.Errorf("failed to create destination file '%s': %w", fullSavePath, err)
	}
	defer outFile.Close()

	_, err = io.Copy(outFile, data)
	if err != nil {
		outFile.Close()
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to write data to '%s': %w", fullSavePath, err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(fullSavePath)
		return "", fmt.Errorf("failed to close '%s': %w", fullSavePath, err)
	}

	return ls.relative(fullSavePath)
}

// Adopt renames srcPath into the store, falling back to a copy across devices
func (ls *LocalStorage) Adopt(assetType AssetType, relativeDir string, filename string, srcPath string) (string, error) {
	if err := validFilename(filename); err != nil {
		return "", err
	}
	targetDir, err := ls.resolveDir(assetType, relativeDir)
	if err != nil {
		return "", err
	}
	fullSavePath := filepath.Join(targetDir, filename)

	if err := os.Rename(srcPath, fullSavePath); err == nil {
		return ls.relative(fullSavePath)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("failed to open '%s' for adoption: %w", srcPath, err)
	}
	relPath, err := ls.Save(assetType, relativeDir, filename, src)
	src.Close()
	if err != nil {
		return "", err
	}
	os.Remove(srcPath)
	return relPath, nil
}

func (ls *LocalStorage) Get(relativePath string) (io.ReadCloser, os.FileInfo, error) {
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("asset not found at '%s': %w", relativePath, err)
		}
		return nil, nil, fmt.Errorf("failed to open asset '%s': %w", relativePath, err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("failed to stat asset '%s': %w", relativePath, err)
	}

	return file, info, nil
}

// Delete removes an asset file
func (ls *LocalStorage) Delete(relativePath string) error {
	if relativePath == "" {
		return nil
	}
	fullPath, err := ls.GetFullPath(relativePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	err = os.Remove(fullPath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete asset '%s': %w", relativePath, err)
	}
	if err == nil {
		logging.Debug("media.store: Deleted asset %s", fullPath)
	}
	return nil
}

// GetFullPath calculates the absolute path and performs security check
func (ls *LocalStorage) GetFullPath(relativePath string) (string, error) {
	cleanRelativePath := filepath.Clean(filepath.FromSlash(relativePath))

	absFullPath, err := filepath.Abs(filepath.Join(ls.basePath, cleanRelativePath))
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", relativePath, err)
	}

	if !isWithin(ls.basePath, absFullPath) || absFullPath == ls.basePath {
		return "", fmt.Errorf("invalid path: access denied for '%s'", relativePath)
	}

	return absFullPath, nil
}
