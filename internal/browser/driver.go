// File: internal/browser/driver.go

// Package browser contains the resilient interaction layer: a driver
// capability surface over a real browser, a multi-strategy resolution engine
// that turns locator lists into live element handles, and an action executor
// with interception-safe fallbacks.
package browser

import (
	"context"
	"errors"

	"github.com/xkilldash9x/pagepress/internal/secrets"
)

var (
	// ErrElementNotFound means resolution exhausted every strategy within
	// its timeout without producing a usable element.
	ErrElementNotFound = errors.New("browser: element not found")
	// ErrActionRejected means the driver refused the primary action
	// (interception, not interactable). The actor recovers via the scripted
	// fallback; the error only surfaces if the fallback fails too.
	ErrActionRejected = errors.New("browser: action rejected")
	// ErrUploadFailed is the soft failure for media attachment. Callers
	// decide whether to continue without media.
	ErrUploadFailed = errors.New("browser: upload failed")
)

// Handle is a live element handle bound to one concrete DOM node. All
// fallback operations act on this node directly; they never re-resolve the
// locator, since re-resolution could bind to a different element after a
// partial state change.
type Handle interface {
	// ScrollIntoView centers the node in the viewport.
	ScrollIntoView(ctx context.Context) error
	// Click performs the driver-native click.
	Click(ctx context.Context) error
	// ScriptClick invokes the node's click handler programmatically.
	ScriptClick(ctx context.Context) error
	// Focus gives the node input focus.
	Focus(ctx context.Context) error
	// IsFocused checks document.activeElement against this node. An element
	// "existing" is not the same as holding focus; this is the direct state
	// check resolution relies on instead of trusting the focus call.
	IsFocused(ctx context.Context) (bool, error)
	// IsVisible reports whether the node has positive dimensions and is not
	// hidden by style.
	IsVisible(ctx context.Context) (bool, error)
	// IsEnabled reports whether the node accepts input (not disabled).
	IsEnabled(ctx context.Context) (bool, error)
	// SetFiles assigns local paths to a file input node.
	SetFiles(ctx context.Context, paths []string) error
	// FormFileInput locates a file input under the same <form> as this
	// node. Returns nil when the node has no enclosing form or the form has
	// no file input.
	FormFileInput(ctx context.Context) (Handle, error)
	// Describe identifies the handle for logs.
	Describe() string
}

// Keyboard exposes raw key dispatch. Keys go to the focused element, which
// the resolution engine has already verified.
type Keyboard interface {
	// InsertText types literal text at the current focus.
	InsertText(ctx context.Context, text string) error
	// SelectAll issues the select-all chord (content-editable regions do
	// not expose a programmatic clear).
	SelectAll(ctx context.Context) error
	// Delete presses the Delete key.
	Delete(ctx context.Context) error
	// SoftLineBreak issues Shift+Enter: a line break that does not commit
	// a paragraph or submit.
	SoftLineBreak(ctx context.Context) error
}

// Driver is the capability surface the pipeline needs from a browser. The
// core depends only on this interface, never on a concrete implementation.
type Driver interface {
	Keyboard

	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Refresh(ctx context.Context) error
	PageSource(ctx context.Context) (string, error)

	// SetCookies installs session records; unusable records are skipped.
	SetCookies(ctx context.Context, cookies []secrets.Cookie) error
	ClearCookies(ctx context.Context) error
	Cookies(ctx context.Context) ([]secrets.Cookie, error)

	// Find returns handles for every node currently matching the locator.
	// It probes once without waiting; polling is the resolver's job.
	Find(ctx context.Context, loc Locator) ([]Handle, error)

	// Eval runs a script in the page and decodes its result into out
	// (out may be nil to discard).
	Eval(ctx context.Context, script string, out any) error

	// Quit releases the browser. Safe to call more than once.
	Quit() error
}
