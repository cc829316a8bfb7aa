// Package storage persists capture artifacts and extracted records to disk
// and enforces the retention policy.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pageshot-ai/pageshot/config"
	"github.com/pageshot-ai/pageshot/models"
)

// Store writes screenshots and record JSON files under a single output
// directory. File names are derived from the URL hash plus a timestamp, so
// repeated captures of the same page never clobber each other.
type Store struct {
	dir          string
	keepDays     int
	cleanupShots bool

	stop chan struct{}
}

// NewStore creates the output directory if needed and starts the retention
// sweeper.
func NewStore(cfg config.StorageConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create output dir: %w", err)
	}
	s := &Store{
		dir:          cfg.OutputDir,
		keepDays:     cfg.KeepDays,
		cleanupShots: cfg.CleanupShots,
		stop:         make(chan struct{}),
	}
	if s.keepDays > 0 {
		go s.sweepLoop()
	}
	return s, nil
}

// PersistArtifact writes the screenshot PNG and records its path on the
// artifact.
func (s *Store) PersistArtifact(artifact *models.CaptureArtifact, target models.Target) error {
	name := fmt.Sprintf("%s_%s.png", urlHash(target.URL), artifact.CapturedAt.Format("20060102T150405"))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, artifact.PNG, 0o644); err != nil {
		return fmt.Errorf("storage: write screenshot: %w", err)
	}
	artifact.Path = path
	return nil
}

// PersistRecord writes the extracted record next to its screenshot, with
// enough context to interpret the file on its own.
func (s *Store) PersistRecord(rec models.Record, target models.Target, artifact *models.CaptureArtifact) error {
	doc := map[string]any{
		"url":         target.URL,
		"kind":        target.Kind,
		"engine":      artifact.Engine,
		"captured_at": artifact.CapturedAt.Format(time.RFC3339),
		"record":      rec,
	}
	body, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal record: %w", err)
	}

	name := fmt.Sprintf("%s_%s.json", urlHash(target.URL), artifact.CapturedAt.Format("20060102T150405"))
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		return fmt.Errorf("storage: write record: %w", err)
	}
	return nil
}

// MaybeDiscard removes the persisted screenshot when the policy says shots
// are only needed until their record is extracted.
func (s *Store) MaybeDiscard(artifact *models.CaptureArtifact) {
	if !s.cleanupShots || artifact.Path == "" {
		return
	}
	if err := os.Remove(artifact.Path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to discard screenshot", "path", artifact.Path, "error", err)
		return
	}
	artifact.Path = ""
}

// Close stops the retention sweeper.
func (s *Store) Close() {
	close(s.stop)
}

// sweepLoop deletes expired files hourly.
func (s *Store) sweepLoop() {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	s.Sweep()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep removes files older than the retention window. It returns the
// number of files deleted.
func (s *Store) Sweep() int {
	cutoff := time.Now().AddDate(0, 0, -s.keepDays)
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		slog.Warn("retention sweep failed", "dir", s.dir, "error", err)
		return 0
	}

	deleted := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".png" && ext != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil {
			slog.Warn("retention sweep: remove failed", "file", e.Name(), "error", err)
			continue
		}
		deleted++
	}
	if deleted > 0 {
		slog.Info("retention sweep done", "dir", s.dir, "deleted", deleted)
	}
	return deleted
}

// urlHash returns a short stable file name stem for a URL.
func urlHash(rawURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(rawURL)))
	return hex.EncodeToString(sum[:8])
}
