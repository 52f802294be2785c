// File: internal/ledger/ledger.go

// Package ledger keeps the durable record of previously published items.
// The file is a JSON array ordered most-recent-first; it is the single
// source of cross-run truth for deduplication. An unreadable ledger degrades
// to empty history rather than failing the run: staying able to publish wins
// over strict auditability here.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is one published item as recorded on disk.
type Entry struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// legacyShape is the pre-history file format: {"descriptions": ["...", ...]}.
type legacyShape struct {
	Descriptions []string `json:"descriptions"`
}

// Ledger reads and appends the publish history at a fixed path. It never
// caches entries across calls; every check re-reads the file.
type Ledger struct {
	path   string
	logger *zap.Logger
}

// New creates a ledger over the given file path.
func New(path string, logger *zap.Logger) *Ledger {
	return &Ledger{path: path, logger: logger.Named("ledger")}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string { return l.path }

// Load returns the recorded entries, most recent first. A missing or
// unparsable file is reported as empty history, not an error.
func (l *Ledger) Load() []Entry {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		if !os.IsNotExist(err) {
			l.logger.Warn("Ledger unreadable; treating as empty history.",
				zap.String("path", l.path), zap.Error(err))
		}
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err == nil {
		return entries
	}

	// Legacy shape: bare description strings map to entries with empty
	// title and image.
	var legacy legacyShape
	if err := json.Unmarshal(raw, &legacy); err == nil && legacy.Descriptions != nil {
		entries = make([]Entry, 0, len(legacy.Descriptions))
		for _, d := range legacy.Descriptions {
			entries = append(entries, Entry{Description: strings.TrimSpace(d)})
		}
		return entries
	}

	l.logger.Warn("Ledger contents unparsable; treating as empty history.",
		zap.String("path", l.path))
	return nil
}

// Contains reports whether the normalized description matches an existing
// entry exactly. The set is recomputed on every call so that externally
// introduced duplicates cannot confuse selection.
func (l *Ledger) Contains(description string) bool {
	normalized := strings.TrimSpace(description)
	for _, e := range l.Load() {
		if strings.TrimSpace(e.Description) == normalized {
			return true
		}
	}
	return false
}

// Append prepends the entry and rewrites the file atomically: the new
// content lands in a temp file in the same directory and replaces the ledger
// with a rename, so a concurrent reader never observes a partial write.
// The parent directory is created if missing.
func (l *Ledger) Append(entry Entry) error {
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ledger: creating directory %s: %w", dir, err)
	}

	history := append([]Entry{entry}, l.Load()...)

	raw, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return fmt.Errorf("ledger: encoding history: %w", err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(l.path), uuid.NewString()))
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("ledger: writing temp file: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("ledger: replacing %s: %w", l.path, err)
	}

	l.logger.Info("Recorded entry in publish history.",
		zap.String("title", entry.Title), zap.Int("entries", len(history)))
	return nil
}
