package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/mimir-aip/waterquality/pkg/models"
)

// ErrArtifactNotFound is returned when no artifact matches a version
var ErrArtifactNotFound = errors.New("artifact not found")

// ErrInvalidName is returned for file names that would escape their directory
var ErrInvalidName = errors.New("invalid file name")

const artifactSuffix = ".model.zst"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ArtifactInfo describes a stored model artifact
type ArtifactInfo struct {
	Version   string           `json:"version"`
	Kind      models.ModelKind `json:"model_kind"`
	Name      string           `json:"model_name"`
	File      string           `json:"file"`
	Size      int64            `json:"size"`
	CreatedAt time.Time        `json:"created_at"`
}

// FileInfo describes an uploaded dataset or a results file
type FileInfo struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileStore keeps uploads, prediction results and model artifacts on disk.
// Model artifacts are immutable: their version is derived from their content
// and they are written once with an atomic rename.
type FileStore struct {
	uploadDir  string
	modelDir   string
	resultsDir string

	mu      sync.RWMutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewFileStore creates a new file-based storage instance
func NewFileStore(uploadDir, modelDir, resultsDir string) (*FileStore, error) {
	for _, dir := range []string{uploadDir, modelDir, resultsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create %s directory: %w", dir, err)
		}
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &FileStore{
		uploadDir:  uploadDir,
		modelDir:   modelDir,
		resultsDir: resultsDir,
		encoder:    encoder,
		decoder:    decoder,
	}, nil
}

// Close releases the compression codecs
func (fs *FileStore) Close() error {
	fs.decoder.Close()
	return fs.encoder.Close()
}

// SecureFilename strips directories and replaces characters outside
// [A-Za-z0-9._-] so the name is safe to join onto a storage directory.
func SecureFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	return name
}

// SaveUpload stores an uploaded dataset under a timestamped name and returns
// its path.
func (fs *FileStore) SaveUpload(name string, r io.Reader) (string, error) {
	stored := time.Now().UTC().Format("20060102_150405") + "_" + SecureFilename(name)
	path := filepath.Join(fs.uploadDir, stored)
	if err := writeAtomic(path, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	}); err != nil {
		return "", fmt.Errorf("failed to save upload: %w", err)
	}
	return path, nil
}

// SaveResult writes a results file atomically and returns its path
func (fs *FileStore) SaveResult(name string, write func(io.Writer) error) (string, error) {
	if SecureFilename(name) != name {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	path := filepath.Join(fs.resultsDir, name)
	if err := writeAtomic(path, write); err != nil {
		return "", fmt.Errorf("failed to save result: %w", err)
	}
	return path, nil
}

// OpenResult opens a results file for download. Names containing path
// separators or parent references are rejected.
func (fs *FileStore) OpenResult(name string) (*os.File, error) {
	if name == "" || SecureFilename(name) != name {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	f, err := os.Open(filepath.Join(fs.resultsDir, name))
	if err != nil {
		return nil, err
	}
	return f, nil
}

// SaveArtifact compresses and stores a serialized model. Saving identical
// content twice returns the existing artifact with its time refreshed.
func (fs *FileStore) SaveArtifact(kind models.ModelKind, payload []byte) (*ArtifactInfo, error) {
	sum := sha256.Sum256(payload)
	version := hex.EncodeToString(sum[:])[:16]
	path := fs.artifactPath(kind, version)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		now := time.Now()
		if err := os.Chtimes(path, now, now); err != nil {
			return nil, fmt.Errorf("failed to refresh artifact: %w", err)
		}
		return artifactInfo(path)
	}

	compressed := fs.encoder.EncodeAll(payload, nil)
	if err := writeAtomic(path, func(w io.Writer) error {
		_, err := w.Write(compressed)
		return err
	}); err != nil {
		return nil, fmt.Errorf("failed to save artifact: %w", err)
	}
	return artifactInfo(path)
}

// LoadArtifact returns the decompressed payload of an artifact
func (fs *FileStore) LoadArtifact(version string) ([]byte, *ArtifactInfo, error) {
	info, err := fs.FindArtifact(version)
	if err != nil {
		return nil, nil, err
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()

	compressed, err := os.ReadFile(filepath.Join(fs.modelDir, info.File))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read artifact %s: %w", version, err)
	}
	payload, err := fs.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decompress artifact %s: %w", version, err)
	}
	return payload, info, nil
}

// FindArtifact looks up an artifact by version
func (fs *FileStore) FindArtifact(version string) (*ArtifactInfo, error) {
	artifacts, err := fs.ListArtifacts()
	if err != nil {
		return nil, err
	}
	for _, a := range artifacts {
		if a.Version == version {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, version)
}

// ListArtifacts returns every stored artifact, newest first
func (fs *FileStore) ListArtifacts() ([]*ArtifactInfo, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	entries, err := os.ReadDir(fs.modelDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	var out []*ArtifactInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), artifactSuffix) {
			continue
		}
		info, err := artifactInfo(filepath.Join(fs.modelDir, entry.Name()))
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Version < out[j].Version
	})
	return out, nil
}

// DeleteArtifact removes an artifact by version
func (fs *FileStore) DeleteArtifact(version string) error {
	info, err := fs.FindArtifact(version)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	return os.Remove(filepath.Join(fs.modelDir, info.File))
}

// ListUploads returns the stored uploads
func (fs *FileStore) ListUploads() ([]*FileInfo, error) {
	return listFiles(fs.uploadDir)
}

// ListResults returns the stored results files
func (fs *FileStore) ListResults() ([]*FileInfo, error) {
	return listFiles(fs.resultsDir)
}

// PruneUploads deletes uploads last modified before cutoff
func (fs *FileStore) PruneUploads(cutoff time.Time) (int, error) {
	return pruneFiles(fs.uploadDir, cutoff)
}

// PruneResults deletes results files last modified before cutoff
func (fs *FileStore) PruneResults(cutoff time.Time) (int, error) {
	return pruneFiles(fs.resultsDir, cutoff)
}

func (fs *FileStore) artifactPath(kind models.ModelKind, version string) string {
	return filepath.Join(fs.modelDir, string(kind)+"_"+version+artifactSuffix)
}

// artifactInfo parses <kind>_<version>.model.zst
func artifactInfo(path string) (*ArtifactInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(filepath.Base(path), artifactSuffix)
	sep := strings.LastIndex(base, "_")
	if sep <= 0 {
		return nil, fmt.Errorf("malformed artifact name %q", filepath.Base(path))
	}
	kind := models.ModelKind(base[:sep])
	return &ArtifactInfo{
		Version:   base[sep+1:],
		Kind:      kind,
		Name:      kind.DisplayName(),
		File:      filepath.Base(path),
		Size:      stat.Size(),
		CreatedAt: stat.ModTime().UTC(),
	}, nil
}

func listFiles(dir string) ([]*FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var out []*FileInfo
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, &FileInfo{
			Name:      entry.Name(),
			Path:      filepath.Join(dir, entry.Name()),
			Size:      info.Size(),
			UpdatedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func pruneFiles(dir string, cutoff time.Time) (int, error) {
	files, err := listFiles(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, f := range files {
		if f.UpdatedAt.Before(cutoff) {
			if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return removed, fmt.Errorf("failed to remove %s: %w", f.Name, err)
			}
			removed++
		}
	}
	return removed, nil
}

// writeAtomic writes to a temporary file in the target directory and renames
// it into place.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
