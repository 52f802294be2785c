// File: internal/publisher/publisher_test.go
package publisher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepress/internal/browser"
	"github.com/xkilldash9x/pagepress/internal/config"
	"github.com/xkilldash9x/pagepress/internal/ledger"
	"github.com/xkilldash9x/pagepress/internal/media"
	"github.com/xkilldash9x/pagepress/internal/secrets"
)

const (
	testPassphrase = "correct horse battery staple"
	testPageName   = "The Legal Mind"
)

// stubHandle is a scripted element for the fake page.
type stubHandle struct {
	page *fakePage
	id   string
}

func (h *stubHandle) ScrollIntoView(context.Context) error { return nil }
func (h *stubHandle) Click(context.Context) error          { h.page.record("click:" + h.id); return nil }
func (h *stubHandle) ScriptClick(context.Context) error {
	h.page.record("scriptClick:" + h.id)
	return nil
}
func (h *stubHandle) Focus(context.Context) error             { return nil }
func (h *stubHandle) IsFocused(context.Context) (bool, error) { return true, nil }
func (h *stubHandle) IsVisible(context.Context) (bool, error) { return true, nil }
func (h *stubHandle) IsEnabled(context.Context) (bool, error) { return true, nil }
func (h *stubHandle) SetFiles(_ context.Context, paths []string) error {
	h.page.record("setFiles:" + h.id)
	h.page.mu.Lock()
	defer h.page.mu.Unlock()
	h.page.uploads = append(h.page.uploads, paths...)
	return nil
}
func (h *stubHandle) FormFileInput(context.Context) (browser.Handle, error) {
	h.page.mu.Lock()
	defer h.page.mu.Unlock()
	return h.page.formInput, nil
}
func (h *stubHandle) Describe() string { return h.id }

// fakePage implements browser.Driver over a static map of locator patterns
// to elements, recording all interactions.
type fakePage struct {
	mu        sync.Mutex
	elements  map[string]browser.Handle
	formInput browser.Handle
	log       []string
	uploads   []string
	cookies   []secrets.Cookie
	quits     int
}

func newFakePage() *fakePage {
	return &fakePage{elements: make(map[string]browser.Handle)}
}

// serve registers an element under one concrete locator pattern.
func (p *fakePage) serve(id string, patterns ...string) *stubHandle {
	h := &stubHandle{page: p, id: id}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pattern := range patterns {
		p.elements[pattern] = h
	}
	return h
}

func (p *fakePage) record(event string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = append(p.log, event)
}

func (p *fakePage) events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.log...)
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.record("navigate:" + url)
	return nil
}
func (p *fakePage) CurrentURL(context.Context) (string, error) { return "", nil }
func (p *fakePage) Refresh(context.Context) error {
	p.record("refresh")
	return nil
}
func (p *fakePage) PageSource(context.Context) (string, error) {
	return "<html></html>", nil
}
func (p *fakePage) SetCookies(_ context.Context, cookies []secrets.Cookie) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cookies = cookies
	return nil
}
func (p *fakePage) ClearCookies(context.Context) error {
	p.record("clearCookies")
	return nil
}
func (p *fakePage) Cookies(context.Context) ([]secrets.Cookie, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cookies, nil
}
func (p *fakePage) Find(_ context.Context, loc browser.Locator) ([]browser.Handle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok := p.elements[loc.Pattern]; ok {
		return []browser.Handle{h}, nil
	}
	return nil, nil
}
func (p *fakePage) Eval(context.Context, string, any) error { return nil }
func (p *fakePage) Quit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quits++
	return nil
}

func (p *fakePage) InsertText(_ context.Context, text string) error {
	p.record("type:" + text)
	return nil
}
func (p *fakePage) SelectAll(context.Context) error     { p.record("selectAll"); return nil }
func (p *fakePage) Delete(context.Context) error        { p.record("delete"); return nil }
func (p *fakePage) SoftLineBreak(context.Context) error { p.record("softBreak"); return nil }

// servePostFlow registers every element of the happy-path UI.
func servePostFlow(p *fakePage) {
	p.serve("profile-menu", `div[aria-label="Account"]`)
	p.serve("page-item", `//span[normalize-space(text())="`+testPageName+`"]/ancestor::div[@role="menuitem"]`)
	p.serve("page-header", `//h1[normalize-space(text())="`+testPageName+`"]`)
	p.serve("create-post", `//span[normalize-space(text())="What's on your mind?"]/ancestor::div[@role="button"]`)
	p.serve("composer", `[data-lexical-editor] [data-lexical-text='true']`)
	p.serve("next-button", `//div[@role="dialog"]//div[@role="button" and .//span[normalize-space(text())="Next"]]`)
	p.serve("post-button", `//div[@role='button']//span[normalize-space(text())='Post']`)
}

func testConfig(t *testing.T, feedURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.NewDefaultConfig()
	cfg.Secrets.BlobPath = filepath.Join(dir, "cookies.json.encrypted")
	cfg.Secrets.Passphrase = testPassphrase
	cfg.Feed.URL = feedURL
	cfg.Feed.Timeout = 5 * time.Second
	cfg.Ledger.Path = filepath.Join(dir, "posted_content.json")
	cfg.Publish.TargetURL = "https://example.com/"
	cfg.Publish.PageName = testPageName
	cfg.Publish.StagingDir = filepath.Join(dir, "staging")
	cfg.Publish.StageTimeout = 400 * time.Millisecond
	cfg.Publish.PollInterval = 20 * time.Millisecond
	cfg.Publish.SettleDelay = 0

	require.NoError(t, secrets.Seal(cfg.Secrets.BlobPath, testPassphrase, []secrets.Cookie{
		{Name: "c_user", Value: "123", Domain: ".example.com"},
	}))
	return cfg
}

func feedServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestPublisher(t *testing.T, cfg *config.Config, page *fakePage) *Publisher {
	t.Helper()
	led := ledger.New(cfg.Ledger.Path, zap.NewNop())
	staging, err := media.NewStaging(cfg.Publish.StagingDir, zap.NewNop())
	require.NoError(t, err)
	return New(cfg, page, led, staging, http.DefaultClient, zap.NewNop())
}

func TestRunPublishesNextItem(t *testing.T) {
	srv := feedServer(t, `[
		{"title": "X", "description": "<p>Hello</p>", "image": ""},
		{"title": "Y", "description": "<p>Later</p>", "image": ""}
	]`)
	cfg := testConfig(t, srv.URL)

	page := newFakePage()
	servePostFlow(page)
	pub := newTestPublisher(t, cfg, page)

	require.NoError(t, pub.Run(context.Background()))

	events := page.events()
	assert.Contains(t, events, "navigate:https://example.com/")
	assert.Contains(t, events, "click:create-post")
	assert.Contains(t, events, "type:Hello")
	assert.Contains(t, events, "click:next-button")
	assert.Contains(t, events, "click:post-button")

	entries := ledger.New(cfg.Ledger.Path, zap.NewNop()).Load()
	require.Len(t, entries, 1)
	assert.Equal(t, "X", entries[0].Title)
	assert.Equal(t, "<p>Hello</p>", entries[0].Description)

	assert.Equal(t, 1, page.quits, "driver must be released exactly once")
}

func TestRunSecondTimeIsNoop(t *testing.T) {
	srv := feedServer(t, `[{"title": "X", "description": "<p>Hello</p>", "image": ""}]`)
	cfg := testConfig(t, srv.URL)

	first := newFakePage()
	servePostFlow(first)
	require.NoError(t, newTestPublisher(t, cfg, first).Run(context.Background()))

	// Unchanged feed against the updated ledger: selection returns nothing
	// and the browser never touches the page.
	second := newFakePage()
	servePostFlow(second)
	require.NoError(t, newTestPublisher(t, cfg, second).Run(context.Background()))

	assert.Empty(t, second.events(), "second run must not interact with the page")
	assert.Equal(t, 1, second.quits)

	entries := ledger.New(cfg.Ledger.Path, zap.NewNop()).Load()
	assert.Len(t, entries, 1)
}

func TestRunSubmitFailureLeavesLedgerUntouched(t *testing.T) {
	srv := feedServer(t, `[{"title": "X", "description": "<p>Hello</p>", "image": ""}]`)
	cfg := testConfig(t, srv.URL)

	page := newFakePage()
	servePostFlow(page)
	// Remove the final Post button: submission cannot be confirmed.
	page.mu.Lock()
	delete(page.elements, `//div[@role='button']//span[normalize-space(text())='Post']`)
	page.mu.Unlock()

	err := newTestPublisher(t, cfg, page).Run(context.Background())

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageSubmitted, stageErr.Stage)

	// Recording happens strictly after a confirmed submit.
	assert.Empty(t, ledger.New(cfg.Ledger.Path, zap.NewNop()).Load())
	assert.Equal(t, 1, page.quits, "browser released on the failure path too")
}

func TestRunWrongPassphraseFailsClosed(t *testing.T) {
	srv := feedServer(t, `[]`)
	cfg := testConfig(t, srv.URL)
	cfg.Secrets.Passphrase = "not the passphrase"

	page := newFakePage()
	err := newTestPublisher(t, cfg, page).Run(context.Background())

	require.ErrorIs(t, err, secrets.ErrDecryptionFailed)
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageIdle, stageErr.Stage)
	assert.Equal(t, 1, page.quits)
}

func TestRunFeedFailureAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	cfg := testConfig(t, srv.URL)

	page := newFakePage()
	err := newTestPublisher(t, cfg, page).Run(context.Background())

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageFeedLoaded, stageErr.Stage)
	assert.Equal(t, 1, page.quits)
}

func TestRunUploadFailureIsSoft(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(imgSrv.Close)

	srv := feedServer(t, `[{"title": "X", "description": "<p>Hello</p>", "image": "`+imgSrv.URL+`/pic.jpg"}]`)
	cfg := testConfig(t, srv.URL)

	// Happy-path UI but no media trigger and no file inputs anywhere.
	page := newFakePage()
	servePostFlow(page)

	require.NoError(t, newTestPublisher(t, cfg, page).Run(context.Background()))

	assert.Empty(t, page.uploads)
	entries := ledger.New(cfg.Ledger.Path, zap.NewNop()).Load()
	require.Len(t, entries, 1, "post proceeds without its media")
}

func TestRunAttachesMediaViaFormInput(t *testing.T) {
	imgSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("jpeg-bytes"))
	}))
	t.Cleanup(imgSrv.Close)

	srv := feedServer(t, `[{"title": "X", "description": "<p>Hello</p>", "image": "`+imgSrv.URL+`/pic.jpg"}]`)
	cfg := testConfig(t, srv.URL)

	page := newFakePage()
	servePostFlow(page)
	page.serve("media-trigger", `//div[@role="dialog"]//div[@aria-label="Photo/video"]`)
	page.formInput = &stubHandle{page: page, id: "form-file-input"}

	require.NoError(t, newTestPublisher(t, cfg, page).Run(context.Background()))

	require.Len(t, page.uploads, 1)
	assert.Contains(t, page.uploads[0], "pic.jpg")
}

func TestStageErrorUnwraps(t *testing.T) {
	cause := browser.ErrElementNotFound
	err := failAt(StageComposing, cause)
	assert.ErrorIs(t, err, browser.ErrElementNotFound)
	assert.Contains(t, err.Error(), "composing")
}
