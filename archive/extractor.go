package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
)

// maxInMemoryEntry bounds Extract; larger entries must go through ExtractTo
const maxInMemoryEntry = 64 << 20

var (
	// ErrInvalidArchive is returned when the upload is not a readable zip
	ErrInvalidArchive = errors.New("invalid archive")
	// ErrUnsafePath marks entries that would escape the extraction root
	ErrUnsafePath = errors.New("unsafe entry path")
	// ErrEntryTooLarge is returned by Extract for entries above maxInMemoryEntry
	ErrEntryTooLarge = errors.New("entry too large to extract into memory")
)

// Entry is one member of the archive. Path always uses forward slashes.
type Entry struct {
	Path  string
	IsDir bool
	Size  int64

	file *zip.File
}

// Archive reads entries on demand from the zip central directory, so the
// archive is never decompressed as a whole.
type Archive struct {
	path    string
	f       *os.File
	reader  *zip.Reader
	entries []Entry
}

// Open opens a zip file for random access. The caller must Close it.
func Open(archivePath string) (*Archive, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %v", ErrInvalidArchive, filepath.Base(archivePath), err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: failed to stat %s: %v", ErrInvalidArchive, filepath.Base(archivePath), err)
	}

	reader, err := zip.NewReader(f, info.Size())
	if errors.Is(err, zip.ErrInsecurePath) && reader != nil {
		// unsafe names are rejected per entry instead
		err = nil
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArchive, filepath.Base(archivePath), err)
	}

	a := &Archive{path: archivePath, f: f, reader: reader}
	for _, zf := range reader.File {
		name := strings.ReplaceAll(zf.Name, "\\", "/")
		a.entries = append(a.entries, Entry{
			Path:  name,
			IsDir: zf.FileInfo().IsDir() || strings.HasSuffix(name, "/"),
			Size:  int64(zf.UncompressedSize64),
			file:  zf,
		})
	}

	logging.Info("archive: Opened %s (%d entries)", filepath.Base(archivePath), len(a.entries))
	return a, nil
}

// Entries returns the members in central-directory order
func (a *Archive) Entries() []Entry {
	return a.entries
}

// Close releases the archive's file handle
func (a *Archive) Close() error {
	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}

// CheckPath rejects absolute paths and any ".." segment
func CheckPath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || path.IsAbs(p) || (len(p) > 1 && p[1] == ':') {
		return fmt.Errorf("%w: %q", ErrUnsafePath, p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %q", ErrUnsafePath, p)
		}
	}
	return nil
}

func (a *Archive) open(e Entry) (io.ReadCloser, error) {
	if e.file == nil {
		return nil, fmt.Errorf("entry %s does not belong to this archive", e.Path)
	}
	if e.IsDir {
		return nil, fmt.Errorf("entry %s is a directory", e.Path)
	}
	if err := CheckPath(e.Path); err != nil {
		return nil, err
	}
	rc, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open entry %s: %w", e.Path, err)
	}
	return rc, nil
}

// Extract reads a small entry into memory
func (a *Archive) Extract(e Entry) ([]byte, error) {
	if e.Size > maxInMemoryEntry {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrEntryTooLarge, e.Path, e.Size)
	}
	rc, err := a.open(e)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxInMemoryEntry+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read entry %s: %w", e.Path, err)
	}
	if int64(len(data)) > maxInMemoryEntry {
		return nil, fmt.Errorf("%w: %s", ErrEntryTooLarge, e.Path)
	}
	return data, nil
}

// ExtractTo streams an entry to dest. A partially written dest is removed.
func (a *Archive) ExtractTo(e Entry, dest string) (int64, error) {
	rc, err := a.open(e)
	if err != nil {
		return 0, err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", dest, err)
	}

	n, err := io.Copy(out, rc)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return 0, fmt.Errorf("failed to extract entry %s: %w", e.Path, err)
	}
	return n, nil
}
