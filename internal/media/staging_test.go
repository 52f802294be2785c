// File: internal/media/staging_test.go
package media

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestStaging(t *testing.T) *Staging {
	t.Helper()
	s, err := NewStaging(filepath.Join(t.TempDir(), "staging"), zap.NewNop())
	require.NoError(t, err)
	return s
}

func TestNewStaging_ClearsLeftovers(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "staging")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	stale := filepath.Join(dir, "stale.jpg")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	_, err := NewStaging(dir, zap.NewNop())
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
	assert.DirExists(t, dir)
}

func TestWriteFile(t *testing.T) {
	s := newTestStaging(t)

	path, err := s.WriteFile("page_source.html", []byte("<html></html>"))
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html></html>", string(content))
}

func TestDownloadImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/img/photo.jpg" {
			w.Write([]byte("jpeg-bytes"))
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	s := newTestStaging(t)

	t.Run("successful download", func(t *testing.T) {
		path := s.DownloadImage(context.Background(), server.Client(), server.URL+"/img/photo.jpg")
		require.NotEmpty(t, path)
		assert.True(t, strings.HasSuffix(path, "-photo.jpg"))

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "jpeg-bytes", string(content))
	})

	t.Run("empty url is soft no-op", func(t *testing.T) {
		assert.Empty(t, s.DownloadImage(context.Background(), server.Client(), ""))
	})

	t.Run("invalid url is soft failure", func(t *testing.T) {
		assert.Empty(t, s.DownloadImage(context.Background(), server.Client(), "not-a-url"))
	})

	t.Run("404 is soft failure", func(t *testing.T) {
		assert.Empty(t, s.DownloadImage(context.Background(), server.Client(), server.URL+"/missing.png"))
	})
}

func TestRemove(t *testing.T) {
	s := newTestStaging(t)
	_, err := s.WriteFile("x", []byte("y"))
	require.NoError(t, err)

	require.NoError(t, s.Remove())
	assert.NoDirExists(t, s.Dir())
}
