package archive

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestZip(t *testing.T, files map[string][]byte, order []string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "upload.zip")
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(files[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return p
}

func entries(paths ...string) []Entry {
	out := make([]Entry, 0, len(paths))
	for _, p := range paths {
		out = append(out, Entry{Path: p, IsDir: p[len(p)-1] == '/'})
	}
	return out
}

func setNames(st Structure) []string {
	names := make([]string, 0, len(st.Sets))
	for _, s := range st.Sets {
		names = append(names, s.Name)
	}
	return names
}

func TestInferSetsWrapperDirectory(t *testing.T) {
	st := InferSets(entries("root/", "root/SetA/", "root/SetA/1.jpg", "root/SetA/2.jpg", "root/SetB/1.jpg"))

	assert.Equal(t, []string{"SetA", "SetB"}, setNames(st))
	assert.Len(t, st.Sets[0].Files, 2)
	assert.Len(t, st.Sets[1].Files, 1)
	assert.Empty(t, st.Errors)
	assert.Equal(t, 3, st.FileCount())
}

func TestInferSetsNoWrapper(t *testing.T) {
	st := InferSets(entries("SetA/1.jpg"))

	assert.Equal(t, []string{"SetA"}, setNames(st))
	assert.Empty(t, st.Errors)
}

func TestInferSetsOrphanFile(t *testing.T) {
	st := InferSets(entries("orphan.jpg"))

	assert.Empty(t, st.Sets)
	require.Len(t, st.Errors, 1)
	assert.Contains(t, st.Errors[0], "not in a set folder")
}

func TestInferSetsPreservesArchiveOrder(t *testing.T) {
	st := InferSets(entries("B/3.jpg", "A/1.jpg", "B/1.jpg", "A/2.png", "B/2.mp4"))

	assert.Equal(t, []string{"B", "A"}, setNames(st))
	var got []string
	for _, f := range st.Sets[0].Files {
		got = append(got, f.Path)
	}
	assert.Equal(t, []string{"B/3.jpg", "B/1.jpg", "B/2.mp4"}, got)
}

func TestInferSetsMixedDepthsPerFile(t *testing.T) {
	st := InferSets(entries("Summer/1.jpg", "wrap/Summer/2.jpg", "wrap/Winter/1.jpg"))

	assert.Equal(t, []string{"Summer", "Winter"}, setNames(st))
	assert.Len(t, st.Sets[0].Files, 2)
}

func TestInferSetsIgnoresEmptySegments(t *testing.T) {
	st := InferSets(entries("Beach//1.jpg", "wrap//City/2.jpg", "Beach/ /3.jpg", "//4.jpg"))

	assert.Equal(t, []string{"Beach", "City"}, setNames(st))
	assert.Len(t, st.Sets[0].Files, 2)
	assert.Len(t, st.Sets[1].Files, 1)
	for _, s := range st.Sets {
		assert.NotEmpty(t, s.Name)
	}
	require.Len(t, st.Errors, 1)
	assert.Contains(t, st.Errors[0], "not in a set folder")
}

func TestInferSetsFiltersUnsupportedAndNoise(t *testing.T) {
	st := InferSets(entries(
		"SetA/1.jpg",
		"SetA/readme.txt",
		"__MACOSX/SetA/._1.jpg",
		"SetA/.DS_Store",
		"SetA/../../evil.jpg",
	))

	assert.Equal(t, []string{"SetA"}, setNames(st))
	assert.Len(t, st.Sets[0].Files, 1)
	require.Len(t, st.Errors, 2)
	assert.Contains(t, st.Errors[0], "unsupported file type")
	assert.Contains(t, st.Errors[1], "unsafe path")
}

func TestOpenAndExtract(t *testing.T) {
	files := map[string][]byte{
		"SetA/1.jpg": []byte("first"),
		"SetA/2.jpg": []byte("second"),
	}
	a, err := Open(writeTestZip(t, files, []string{"SetA/1.jpg", "SetA/2.jpg"}))
	require.NoError(t, err)
	defer a.Close()

	es := a.Entries()
	require.Len(t, es, 2)
	assert.Equal(t, "SetA/1.jpg", es[0].Path)
	assert.EqualValues(t, 5, es[0].Size)

	data, err := a.Extract(es[0])
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	dest := filepath.Join(t.TempDir(), "out.bin")
	n, err := a.ExtractTo(es[1], dest)
	require.NoError(t, err)
	assert.EqualValues(t, 6, n)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestOpenRejectsCorruptArchive(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.zip")
	require.NoError(t, os.WriteFile(p, []byte("this is not a zip file"), 0644))

	_, err := Open(p)
	assert.ErrorIs(t, err, ErrInvalidArchive)

	_, err = Open(filepath.Join(t.TempDir(), "missing.zip"))
	assert.ErrorIs(t, err, ErrInvalidArchive)
}

func TestExtractRejectsUnsafeEntry(t *testing.T) {
	a, err := Open(writeTestZip(t, map[string][]byte{"../escape.jpg": []byte("x")}, []string{"../escape.jpg"}))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.ExtractTo(a.Entries()[0], filepath.Join(t.TempDir(), "x"))
	assert.ErrorIs(t, err, ErrUnsafePath)
}

func TestWriteZip(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.jpg")
	require.NoError(t, os.WriteFile(a, []byte("aaa"), 0644))

	var buf bytes.Buffer
	n, err := WriteZip(&buf, []ZipFile{
		{Name: "photo.jpg", SourcePath: a},
		{Name: "photo.jpg", SourcePath: a},
		{Name: "missing.jpg", SourcePath: filepath.Join(dir, "missing.jpg")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, "photo.jpg", zr.File[0].Name)
	assert.Equal(t, "photo_1.jpg", zr.File[1].Name)

	_, err = WriteZip(&bytes.Buffer{}, []ZipFile{{Name: "x.jpg", SourcePath: filepath.Join(dir, "nope")}})
	assert.Error(t, err)
}
