package storage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/waterquality/pkg/models"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "uploads"), filepath.Join(dir, "models"), filepath.Join(dir, "results"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSecureFilename(t *testing.T) {
	assert.Equal(t, "data.csv", SecureFilename("data.csv"))
	assert.Equal(t, "passwd", SecureFilename("../../etc/passwd"))
	assert.Equal(t, "evil.csv", SecureFilename(`C:\tmp\evil.csv`))
	assert.Equal(t, "my_data_2024.csv", SecureFilename("my data 2024.csv"))
	assert.Equal(t, "file", SecureFilename(".."))
}

func TestSaveArtifactRoundTrip(t *testing.T) {
	store := newTestStore(t)
	payload := bytes.Repeat([]byte(`{"kind":"ridge"}`), 100)

	info, err := store.SaveArtifact(models.ModelKindRidge, payload)
	require.NoError(t, err)
	assert.Len(t, info.Version, 16)
	assert.Equal(t, models.ModelKindRidge, info.Kind)
	assert.Equal(t, "Ridge", info.Name)
	assert.Less(t, info.Size, int64(len(payload)))

	loaded, loadedInfo, err := store.LoadArtifact(info.Version)
	require.NoError(t, err)
	assert.Equal(t, payload, loaded)
	assert.Equal(t, info.Version, loadedInfo.Version)
}

func TestSaveArtifactIsContentAddressed(t *testing.T) {
	store := newTestStore(t)

	a, err := store.SaveArtifact(models.ModelKindXGBoost, []byte("model-a"))
	require.NoError(t, err)
	again, err := store.SaveArtifact(models.ModelKindXGBoost, []byte("model-a"))
	require.NoError(t, err)
	b, err := store.SaveArtifact(models.ModelKindXGBoost, []byte("model-b"))
	require.NoError(t, err)

	assert.Equal(t, a.Version, again.Version)
	assert.NotEqual(t, a.Version, b.Version)

	artifacts, err := store.ListArtifacts()
	require.NoError(t, err)
	assert.Len(t, artifacts, 2)
}

func TestSaveArtifactRefreshesExistingTime(t *testing.T) {
	store := newTestStore(t)

	a, err := store.SaveArtifact(models.ModelKindRidge, []byte("ridge"))
	require.NoError(t, err)
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(store.modelDir, a.File), past, past))

	again, err := store.SaveArtifact(models.ModelKindRidge, []byte("ridge"))
	require.NoError(t, err)
	assert.True(t, again.CreatedAt.After(past.Add(time.Hour)))
}

func TestLoadArtifactNotFound(t *testing.T) {
	store := newTestStore(t)
	_, _, err := store.LoadArtifact("0000000000000000")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestDeleteArtifact(t *testing.T) {
	store := newTestStore(t)
	info, err := store.SaveArtifact(models.ModelKindSVR, []byte("svr"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteArtifact(info.Version))
	_, err = store.FindArtifact(info.Version)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestListArtifactsIgnoresForeignFiles(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.modelDir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(store.modelDir, "broken.model.zst"), []byte("x"), 0644))

	artifacts, err := store.ListArtifacts()
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestSaveUpload(t *testing.T) {
	store := newTestStore(t)
	path, err := store.SaveUpload("../water quality.csv", strings.NewReader("Temp,pH\n1,7\n"))
	require.NoError(t, err)
	assert.Equal(t, store.uploadDir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, "_water_quality.csv"))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Temp,pH\n1,7\n", string(content))

	uploads, err := store.ListUploads()
	require.NoError(t, err)
	assert.Len(t, uploads, 1)
}

func TestSaveAndOpenResult(t *testing.T) {
	store := newTestStore(t)
	_, err := store.SaveResult("predictions_1.csv", func(w io.Writer) error {
		_, err := io.WriteString(w, "predicted_WQI\n12.5\n")
		return err
	})
	require.NoError(t, err)

	f, err := store.OpenResult("predictions_1.csv")
	require.NoError(t, err)
	defer f.Close()
	content, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "predicted_WQI\n12.5\n", string(content))
}

func TestOpenResultRejectsTraversal(t *testing.T) {
	store := newTestStore(t)
	for _, name := range []string{"", "../secret", "a/b.csv", ".."} {
		_, err := store.OpenResult(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
	_, err := store.SaveResult("../x.csv", func(io.Writer) error { return nil })
	assert.ErrorIs(t, err, ErrInvalidName)
}

func TestSaveResultFailureLeavesNoFile(t *testing.T) {
	store := newTestStore(t)
	_, err := store.SaveResult("partial.csv", func(w io.Writer) error {
		_, _ = io.WriteString(w, "half")
		return assert.AnError
	})
	require.Error(t, err)

	results, err := store.ListResults()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestPruneUploads(t *testing.T) {
	store := newTestStore(t)
	oldPath, err := store.SaveUpload("old.csv", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = store.SaveUpload("new.csv", strings.NewReader("b"))
	require.NoError(t, err)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(oldPath, past, past))

	removed, err := store.PruneUploads(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	uploads, err := store.ListUploads()
	require.NoError(t, err)
	require.Len(t, uploads, 1)
	assert.True(t, strings.HasSuffix(uploads[0].Name, "new.csv"))
}
