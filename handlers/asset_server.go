package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
	"github.com/go-chi/chi/v5"
)

// AssetServer creates a handler to serve static files from one asset directory.
// It is mounted on a wildcard route and reads the relative path from chi's "*" param:
//
//	r.Get("/thumbs/*", AssetServer(thumbsDir))
func AssetServer(assetDir string) http.HandlerFunc {
	fullAssetDirPath := filepath.Clean(assetDir)
	logging.Info("Serving assets from directory: %s", fullAssetDirPath)

	return func(w http.ResponseWriter, r *http.Request) {
		relativePath := chi.URLParam(r, "*")
		if relativePath == "" || strings.Contains(relativePath, "..") {
			http.Error(w, "Invalid asset path", http.StatusBadRequest)
			return
		}

		cleanedAssetPath := filepath.Clean(filepath.Join(fullAssetDirPath, filepath.FromSlash(relativePath)))
		if !strings.HasPrefix(cleanedAssetPath, fullAssetDirPath+string(filepath.Separator)) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			logging.Warn("SECURITY: Attempted asset access outside designated directory: Request='%s', Resolved='%s', Allowed Base='%s'",
				r.URL.Path, cleanedAssetPath, fullAssetDirPath)
			return
		}

		info, err := os.Stat(cleanedAssetPath)
		if os.IsNotExist(err) {
			http.NotFound(w, r)
			return
		} else if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			logging.Error("Error stating asset file %s: %v", cleanedAssetPath, err)
			return
		}
		if info.IsDir() {
			http.NotFound(w, r)
			return
		}

		cacheDuration := 24 * time.Hour
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(cacheDuration.Seconds())))
		w.Header().Set("Expires", time.Now().Add(cacheDuration).Format(http.TimeFormat))

		http.ServeFile(w, r, cleanedAssetPath)
	}
}
