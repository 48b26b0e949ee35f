package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
)

// ZipFile is one file to pack: Name inside the archive, SourcePath on disk
type ZipFile struct {
	Name       string
	SourcePath string
}

// WriteZip streams files into a zip written to w. Unreadable files are
// skipped and logged; it fails only if nothing could be written or the
// writer itself breaks. Returns the number of files written.
func WriteZip(w io.Writer, files []ZipFile) (int, error) {
	zipWriter := zip.NewWriter(w)

	written := 0
	seen := make(map[string]int)
	for _, file := range files {
		name := file.Name
		if n := seen[name]; n > 0 {
			ext := path.Ext(name)
			name = fmt.Sprintf("%s_%d%s", name[:len(name)-len(ext)], n, ext)
		}
		seen[file.Name]++

		fileToZip, err := os.Open(file.SourcePath)
		if err != nil {
			logging.Warn("zipper: Failed to open file %s for zipping: %v. Skipping.", file.SourcePath, err)
			continue
		}

		// media is already compressed, store it as-is
		writer, err := zipWriter.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Store})
		if err != nil {
			fileToZip.Close()
			return written, fmt.Errorf("failed to create zip entry %s: %w", name, err)
		}

		_, err = io.Copy(writer, fileToZip)
		fileToZip.Close()
		if err != nil {
			return written, fmt.Errorf("failed to write %s to zip: %w", name, err)
		}
		written++
	}

	if written == 0 && len(files) > 0 {
		zipWriter.Close()
		return 0, fmt.Errorf("none of the %d files could be read", len(files))
	}

	if err := zipWriter.Close(); err != nil {
		return written, fmt.Errorf("failed to finalize zip writer: %w", err)
	}
	return written, nil
}
