package handlers

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LabyrinthianWebsite/fantastic-waddle/archive"
	"github.com/LabyrinthianWebsite/fantastic-waddle/database"
	"github.com/LabyrinthianWebsite/fantastic-waddle/media"
	"github.com/LabyrinthianWebsite/fantastic-waddle/models"
	"github.com/LabyrinthianWebsite/fantastic-waddle/repository"
	"github.com/LabyrinthianWebsite/fantastic-waddle/services"
	"github.com/LabyrinthianWebsite/fantastic-waddle/workers"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeSubmitter struct {
	received []byte
	path     string
	outcome  workers.IngestOutcome
	err      error
}

func (f *fakeSubmitter) Submit(modelID uint, archivePath string, keepArchive bool) (string, <-chan workers.IngestOutcome, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	f.path = archivePath
	f.received, _ = os.ReadFile(archivePath)
	os.Remove(archivePath) // the pipeline owns the archive from here on
	ch := make(chan workers.IngestOutcome, 1)
	out := f.outcome
	out.JobID = "job-1"
	ch <- out
	return "job-1", ch, nil
}

type fixture struct {
	db        *gorm.DB
	store     *media.LocalStorage
	modelRepo *repository.ModelRepository
	setRepo   *repository.SetRepository
	mediaRepo *repository.MediaRepository
	model     *models.Model
	tempDir   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.InitGormDB(filepath.Join(t.TempDir(), "catalog.db"), logger.Silent)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrateModels(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	store, err := media.NewLocalStorage(t.TempDir(), nil)
	require.NoError(t, err)

	f := &fixture{
		db:        db,
		store:     store,
		modelRepo: repository.NewModelRepository(db),
		setRepo:   repository.NewSetRepository(db),
		mediaRepo: repository.NewMediaRepository(db),
		tempDir:   t.TempDir(),
	}
	f.model = &models.Model{Name: "Jane", Slug: "jane", IsActive: true}
	require.NoError(t, f.modelRepo.Create(f.model))
	return f
}

func (f *fixture) router(sub IngestSubmitter) http.Handler {
	uh := &UploadHandler{ModelRepo: f.modelRepo, Ingest: sub, UploadTempPath: f.tempDir, MaxUploadBytes: 1 << 20}
	sh := &SetHandler{ModelRepo: f.modelRepo, SetRepo: f.setRepo, MediaRepo: f.mediaRepo, Store: f.store}

	r := chi.NewRouter()
	r.Use(MetricsMiddleware)
	r.Route("/api", func(r chi.Router) {
		r.Post("/models/{model_id}/upload", uh.UploadArchive)
		r.Get("/models/{model_id}/sets", sh.ListModelSets)
		r.Get("/sets/{set_id}", sh.GetSet)
		r.Get("/sets/{set_id}/media", sh.ListSetMedia)
		r.Get("/sets/{set_id}/zip", sh.DownloadSetZip)
		r.Delete("/media/{media_id}", sh.DeleteMedia)
	})
	return r
}

func (f *fixture) addMedia(t *testing.T, set *models.Set, name, content string, order int) *models.Media {
	t.Helper()
	rel, err := f.store.Save(media.AssetTypeMedia, "independent/"+set.Slug, name, strings.NewReader(content))
	require.NoError(t, err)
	m := &models.Media{
		SetID: set.ID, Filename: name, OriginalPath: rel, DisplayPath: &rel,
		Kind: models.MediaKindImage, MimeType: "image/jpeg", Size: int64(len(content)), SortOrder: order,
	}
	require.NoError(t, f.mediaRepo.Create(m))
	require.NoError(t, f.setRepo.RecomputeAggregates(set.ID))
	return m
}

func multipartBody(t *testing.T, field, filename string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decodeAPIError(t *testing.T, rec *httptest.ResponseRecorder) APIErrorDetail {
	t.Helper()
	var resp APIErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Errors, 1)
	return resp.Errors[0]
}

func TestUploadArchive_Success(t *testing.T) {
	f := newFixture(t)
	sub := &fakeSubmitter{outcome: workers.IngestOutcome{Result: &services.UploadResult{Success: true, SetsCreated: 1, FilesProcessed: 2, Errors: []string{}}}}

	body, ctype := multipartBody(t, "archive", "upload.zip", []byte("zip-bytes"))
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/models/%d/upload", f.model.ID), body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	f.router(sub).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res services.UploadResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.FilesProcessed)

	assert.Equal(t, "zip-bytes", string(sub.received))
	assert.Equal(t, f.tempDir, filepath.Dir(sub.path))
	assert.Equal(t, ".zip", filepath.Ext(sub.path))
}

func TestUploadArchive_Errors(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		url    string
		field  string
		sub    *fakeSubmitter
		status int
		code   string
	}{
		{"bad id", "/api/models/abc/upload", "archive", &fakeSubmitter{}, http.StatusBadRequest, CodeBadRequest},
		{"unknown model", "/api/models/999/upload", "archive", &fakeSubmitter{}, http.StatusNotFound, CodeNotFound},
		{"missing field", fmt.Sprintf("/api/models/%d/upload", f.model.ID), "file", &fakeSubmitter{}, http.StatusBadRequest, CodeBadRequest},
		{"queue full", fmt.Sprintf("/api/models/%d/upload", f.model.ID), "archive", &fakeSubmitter{err: workers.ErrQueueFull}, http.StatusServiceUnavailable, CodeQueueFull},
		{"invalid archive", fmt.Sprintf("/api/models/%d/upload", f.model.ID), "archive",
			&fakeSubmitter{outcome: workers.IngestOutcome{Err: fmt.Errorf("%w: bad zip", archive.ErrInvalidArchive)}}, http.StatusBadRequest, CodeInvalidArchive},
		{"model deleted meanwhile", fmt.Sprintf("/api/models/%d/upload", f.model.ID), "archive",
			&fakeSubmitter{outcome: workers.IngestOutcome{Err: services.ErrModelNotFound}}, http.StatusNotFound, CodeNotFound},
		{"unexpected failure", fmt.Sprintf("/api/models/%d/upload", f.model.ID), "archive",
			&fakeSubmitter{outcome: workers.IngestOutcome{Err: errors.New("disk on fire")}}, http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ctype := multipartBody(t, tc.field, "upload.zip", []byte("zip-bytes"))
			req := httptest.NewRequest(http.MethodPost, tc.url, body)
			req.Header.Set("Content-Type", ctype)
			rec := httptest.NewRecorder()
			f.router(tc.sub).ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeAPIError(t, rec).Code)
		})
	}

	// rejected uploads do not linger in the temp dir
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadArchive_TooLarge(t *testing.T) {
	f := newFixture(t)
	body, ctype := multipartBody(t, "archive", "upload.zip", bytes.Repeat([]byte("x"), 2<<20))
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/models/%d/upload", f.model.ID), body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	f.router(&fakeSubmitter{}).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, CodeUploadTooLarge, decodeAPIError(t, rec).Code)
}

func TestListModelSets_NaturalOrder(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"Set 10", "Set 2", "Set 1"} {
		require.NoError(t, f.setRepo.Create(&models.Set{ModelID: f.model.ID, Name: name, Slug: "jane-" + strings.ReplaceAll(strings.ToLower(name), " ", "-")}))
	}

	rec := httptest.NewRecorder()
	f.router(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/models/%d/sets", f.model.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var sets []models.Set
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&sets))
	var names []string
	for _, s := range sets {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"Set 1", "Set 2", "Set 10"}, names)

	rec = httptest.NewRecorder()
	f.router(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/models/77/sets", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSetMedia(t *testing.T) {
	f := newFixture(t)
	set := &models.Set{ModelID: f.model.ID, Name: "Beach", Slug: "jane-beach"}
	require.NoError(t, f.setRepo.Create(set))
	f.addMedia(t, set, "b.jpg", "bbb", 0)
	f.addMedia(t, set, "a.jpg", "aa", 1)

	get := func(url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		f.router(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		return rec
	}

	rec := get(fmt.Sprintf("/api/sets/%d/media", set.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	var items []models.Media
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	require.Len(t, items, 2)
	assert.Equal(t, "b.jpg", items[0].Filename)

	rec = get(fmt.Sprintf("/api/sets/%d/media?sort=filename_asc", set.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&items))
	assert.Equal(t, "a.jpg", items[0].Filename)

	assert.Equal(t, http.StatusBadRequest, get(fmt.Sprintf("/api/sets/%d/media?sort=random", set.ID)).Code)
	assert.Equal(t, http.StatusNotFound, get("/api/sets/4242/media").Code)

	rec = get(fmt.Sprintf("/api/sets/%d", set.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.Set
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, 2, got.ImageCount)
	assert.EqualValues(t, 5, got.TotalSize)
}

func TestDownloadSetZip(t *testing.T) {
	f := newFixture(t)
	set := &models.Set{ModelID: f.model.ID, Name: "Beach", Slug: "jane-beach"}
	require.NoError(t, f.setRepo.Create(set))

	rec := httptest.NewRecorder()
	f.router(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/sets/%d/zip", set.ID), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.addMedia(t, set, "one.jpg", "first", 0)
	f.addMedia(t, set, "two.jpg", "second", 1)

	rec = httptest.NewRecorder()
	f.router(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/sets/%d/zip", set.ID), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "jane-beach.zip")

	data := rec.Body.Bytes()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "one.jpg", zr.File[0].Name)
	rc, err := zr.File[1].Open()
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "second", string(content))
}

func TestDeleteMedia(t *testing.T) {
	f := newFixture(t)
	set := &models.Set{ModelID: f.model.ID, Name: "Beach", Slug: "jane-beach"}
	require.NoError(t, f.setRepo.Create(set))
	keep := f.addMedia(t, set, "keep.jpg", "12345", 0)
	gone := f.addMedia(t, set, "gone.jpg", "123", 1)

	goneFull, err := f.store.GetFullPath(gone.OriginalPath)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.router(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/media/%d", gone.ID), nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	assert.NoFileExists(t, goneFull)
	_, err = f.mediaRepo.GetByID(gone.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = f.mediaRepo.GetByID(keep.ID)
	assert.NoError(t, err)

	updated, err := f.setRepo.GetByID(set.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.ImageCount)
	assert.EqualValues(t, 5, updated.TotalSize)

	rec = httptest.NewRecorder()
	f.router(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/api/media/%d", gone.ID), nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAssetServer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "acme", "beach"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "acme", "beach", "a.webp"), []byte("webp"), 0644))

	r := chi.NewRouter()
	r.Get("/api/thumbs/*", AssetServer(dir))

	get := func(url string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		return rec
	}

	rec := get("/api/thumbs/acme/beach/a.webp")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "webp", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Cache-Control"), "max-age=")

	assert.Equal(t, http.StatusNotFound, get("/api/thumbs/acme/beach/missing.webp").Code)
	assert.Equal(t, http.StatusNotFound, get("/api/thumbs/acme/beach").Code)
	assert.Equal(t, http.StatusBadRequest, get("/api/thumbs/acme/..%2f..%2fetc/passwd").Code)
}
