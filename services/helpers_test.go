package services

import (
	"archive/zip"
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/LabyrinthianWebsite/fantastic-waddle/database"
	"github.com/LabyrinthianWebsite/fantastic-waddle/media"
	"github.com/LabyrinthianWebsite/fantastic-waddle/models"
	"github.com/LabyrinthianWebsite/fantastic-waddle/realtime"
	"github.com/LabyrinthianWebsite/fantastic-waddle/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (n *recordingNotifier) Notify(e realtime.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) statuses() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Status)
	}
	return out
}

type testEnv struct {
	db         *gorm.DB
	store      *media.LocalStorage
	processor  *media.Processor
	studioRepo *repository.StudioRepository
	modelRepo  *repository.ModelRepository
	setRepo    *repository.SetRepository
	mediaRepo  *repository.MediaRepository
	cascade    *CascadeService
	svc        *IngestionService
	notifier   *recordingNotifier
	studio     *models.Studio
	model      *models.Model
}

func newTestEnv(t *testing.T) *testEnv {
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
	video := media.NewVideoTool(filepath.Join(t.TempDir(), "ffmpeg"), filepath.Join(t.TempDir(), "ffprobe"), time.Second)
	processor := media.NewProcessor(store, media.DefaultProcessorOptions(), video)

	env := &testEnv{
		db:         db,
		store:      store,
		processor:  processor,
		studioRepo: repository.NewStudioRepository(db),
		modelRepo:  repository.NewModelRepository(db),
		setRepo:    repository.NewSetRepository(db),
		mediaRepo:  repository.NewMediaRepository(db),
		notifier:   &recordingNotifier{},
	}
	env.cascade = NewCascadeService(env.setRepo, env.modelRepo, env.studioRepo, processor, store)
	env.svc = NewIngestionService(env.modelRepo, env.studioRepo, env.setRepo, env.mediaRepo, store, processor, media.NewHasher(0), env.cascade, env.notifier)

	env.studio = &models.Studio{Name: "Acme Studio", Slug: "acme"}
	require.NoError(t, env.studioRepo.Create(env.studio))
	env.model = &models.Model{Name: "Jane Doe", Slug: "jane-doe", StudioID: &env.studio.ID, IsActive: true}
	require.NoError(t, env.modelRepo.Create(env.model))
	return env
}

// noiseJPEG renders coarse random blocks so every seed hashes differently
func noiseJPEG(t *testing.T, seed int64, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	const cells = 8
	shades := make([]uint8, cells*cells)
	for i := range shades {
		shades[i] = uint8(rng.Intn(256))
	}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := shades[(y*cells/h)*cells+(x*cells/w)]
			img.Set(x, y, color.RGBA{R: v, G: 255 - v, B: v / 2, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// fakeMP4 is just enough of an ftyp box for content sniffing
func fakeMP4() []byte {
	b := []byte{0x00, 0x00, 0x00, 0x18}
	b = append(b, []byte("ftypmp42")...)
	b = append(b, 0x00, 0x00, 0x00, 0x00)
	b = append(b, []byte("mp42isom")...)
	return append(b, bytes.Repeat([]byte{0x00}, 64)...)
}

type zipEntry struct {
	name string
	data []byte
}

func writeArchive(t *testing.T, entries ...zipEntry) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		w, err := zw.Create(e.name)
		require.NoError(t, err)
		_, err = w.Write(e.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return p
}

func (env *testEnv) sortOrders(t *testing.T, setID uint) []int {
	t.Helper()
	list, err := env.mediaRepo.ListBySet(setID)
	require.NoError(t, err)
	out := make([]int, 0, len(list))
	for _, m := range list {
		out = append(out, m.SortOrder)
	}
	return out
}

// rebuild swaps the set repository and hasher the ingestion service uses
func (env *testEnv) rebuild(sets repository.SetRepositoryInterface, hasher ContentHasher) {
	env.svc = NewIngestionService(env.modelRepo, env.studioRepo, sets, env.mediaRepo, env.store, env.processor, hasher, env.cascade, env.notifier)
}
