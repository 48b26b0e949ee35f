package media

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSetDirs(t *testing.T) {
	store := newTestStore(t)

	dirs, err := store.EnsureSetDirs("", "alice-summer")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("independent", "alice-summer"), dirs.RelDir)

	for _, dir := range []string{dirs.MediaDir, dirs.DisplayDir, dirs.ThumbsDir, dirs.StagingDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	assert.Equal(t, filepath.Join(store.BasePath(), "thumbs", "independent", "alice-summer"), dirs.ThumbsDir)

	again, err := store.EnsureSetDirs("", "alice-summer")
	require.NoError(t, err)
	assert.Equal(t, dirs, again)

	_, err = store.EnsureSetDirs("acme", "")
	assert.Error(t, err)
}

func TestGetFullPathRejectsTraversal(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetFullPath("../../etc/passwd")
	assert.Error(t, err)

	full, err := store.GetFullPath("media/acme/set/a.jpg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(full, store.BasePath()))
}

func TestSaveRejectsBadNames(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save(AssetTypeMedia, "x", "", strings.NewReader("data"))
	assert.Error(t, err)
	_, err = store.Save(AssetTypeMedia, "x", "../evil.jpg", strings.NewReader("data"))
	assert.Error(t, err)
	_, err = store.Save(AssetTypeMedia, "../../outside", "a.jpg", strings.NewReader("data"))
	assert.Error(t, err)
}

func TestAdoptMovesFile(t *testing.T) {
	store := newTestStore(t)
	src := filepath.Join(t.TempDir(), "staged.tmp")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

	rel, err := store.Adopt(AssetTypeMedia, filepath.Join("acme", "set"), "a.jpg", src)
	require.NoError(t, err)
	assert.Equal(t, "media/acme/set/a.jpg", rel)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))

	rc, info, err := store.Get(rel)
	require.NoError(t, err)
	defer rc.Close()
	assert.EqualValues(t, len("payload"), info.Size())

	require.NoError(t, store.Delete(rel))
	require.NoError(t, store.Delete(rel), "deleting twice is not an error")
}
