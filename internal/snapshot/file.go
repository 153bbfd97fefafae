// Package snapshot stores the opportunity collection as a JSON document.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/david/launchpad/internal/models"
)

// FileStore reads and atomically replaces a snapshot file.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads the snapshot. A missing file yields an error matching
// fs.ErrNotExist.
func (s *FileStore) Load(_ context.Context) (models.Snapshot, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}

	var snap models.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", s.Path, err)
	}
	if snap.Opportunities == nil {
		snap.Opportunities = []models.Opportunity{}
	}
	return snap, nil
}

// Save writes the snapshot to a temp file in the same directory and renames
// it over the old one, so readers never see a partial document.
func (s *FileStore) Save(_ context.Context, snap models.Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Encode renders a snapshot with two-space indentation and without HTML
// escaping, so names like "R&D" stay readable.
func Encode(snap models.Snapshot) ([]byte, error) {
	if snap.Opportunities == nil {
		snap.Opportunities = []models.Opportunity{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(snap); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}
