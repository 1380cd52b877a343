package filestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/crab-wise/tryst-scraper/internal/entity"
)

// ProgressFile rewrites the advisory progress snapshot atomically
// (temp file + rename) so readers never observe a torn write.
type ProgressFile struct {
	mu   sync.Mutex
	path string
}

// NewProgressFile returns a snapshot writer for path.
func NewProgressFile(path string) *ProgressFile {
	return &ProgressFile{path: path}
}

// Write replaces the snapshot on disk.
func (p *ProgressFile) Write(snap *entity.ProgressSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	tmp := p.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write progress %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p.path); err != nil {
		return fmt.Errorf("replace progress %s: %w", p.path, err)
	}
	return nil
}

// WriteStats persists the final run statistics next to the progress file.
func WriteStats(path string, stats *entity.RunStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stats: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create stats dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write stats %s: %w", path, err)
	}
	return nil
}
