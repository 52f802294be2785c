// File: internal/media/staging.go

// Package media manages the per-run staging directory: downloaded images,
// page-source snapshots, and the fetched feed copy all land here and the
// whole directory is cleared at the end of the run.
package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Staging is a scratch directory owned by a single run.
type Staging struct {
	dir    string
	logger *zap.Logger
}

// NewStaging prepares the staging directory, clearing any leftovers from a
// previous run.
func NewStaging(dir string, logger *zap.Logger) (*Staging, error) {
	s := &Staging{dir: dir, logger: logger.Named("staging")}
	if err := s.Clean(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the staging directory path.
func (s *Staging) Dir() string { return s.dir }

// Clean empties the staging directory, creating it if needed.
func (s *Staging) Clean() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("media: clearing staging dir: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("media: creating staging dir: %w", err)
	}
	return nil
}

// WriteFile stores content under the given name inside the staging dir.
func (s *Staging) WriteFile(name string, content []byte) (string, error) {
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("media: writing %s: %w", name, err)
	}
	return path, nil
}

// DownloadImage fetches the image at rawURL into the staging directory and
// returns the local path. Failures are soft: an empty or invalid URL, or a
// failed download, returns "" with the reason logged. The caller publishes
// without media in that case.
func (s *Staging) DownloadImage(ctx context.Context, client *http.Client, rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		s.logger.Warn("Skipping invalid image URL.", zap.String("url", rawURL))
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		s.logger.Warn("Cannot build image request.", zap.String("url", rawURL), zap.Error(err))
		return ""
	}

	resp, err := client.Do(req)
	if err != nil {
		s.logger.Warn("Image download failed.", zap.String("url", rawURL), zap.Error(err))
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Warn("Image download returned non-OK status.",
			zap.String("url", rawURL), zap.Int("status", resp.StatusCode))
		return ""
	}

	name := filepath.Base(parsed.Path)
	if name == "" || name == "/" || name == "." {
		name = "image.jpg"
	}
	// Prefix with a fresh id so repeated basenames from different hosts
	// cannot collide inside one staging dir.
	path := filepath.Join(s.dir, uuid.NewString()[:8]+"-"+name)

	out, err := os.Create(path)
	if err != nil {
		s.logger.Warn("Cannot create staged image file.", zap.String("path", path), zap.Error(err))
		return ""
	}
	defer out.Close()

	if _, err := io.Copy(out, io.LimitReader(resp.Body, 64<<20)); err != nil {
		s.logger.Warn("Image download interrupted.", zap.String("url", rawURL), zap.Error(err))
		os.Remove(path)
		return ""
	}

	s.logger.Info("Downloaded image to staging.", zap.String("url", rawURL), zap.String("path", path))
	return path
}

// Remove deletes the staging directory entirely.
func (s *Staging) Remove() error {
	return os.RemoveAll(s.dir)
}
