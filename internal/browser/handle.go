// File: internal/browser/handle.go
package browser

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// isUsableJS decides whether a node can actually be interacted with: it must
// occupy space, not be styled out of the render tree, and not sit behind a
// zero-opacity overlay state.
const isUsableJS = `function() {
	const rect = this.getBoundingClientRect();
	if (rect.width <= 0 || rect.height <= 0) { return false; }
	const style = window.getComputedStyle(this);
	if (style.display === 'none' || style.visibility === 'hidden') { return false; }
	if (parseFloat(style.opacity) === 0) { return false; }
	return true;
}`

// chromeHandle binds element operations to one concrete DOM node through its
// backend node ID. The binding survives locator drift: once resolved, every
// fallback acts on this node and never re-queries the page.
type chromeHandle struct {
	chrome *Chrome
	node   *cdp.Node
	loc    Locator
}

func (h *chromeHandle) Describe() string {
	return fmt.Sprintf("%s[node=%d]", h.loc.String(), h.node.BackendNodeID)
}

func (h *chromeHandle) ScrollIntoView(ctx context.Context) error {
	return h.chrome.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.ScrollIntoViewIfNeeded().WithBackendNodeID(h.node.BackendNodeID).Do(ctx)
	}))
}

func (h *chromeHandle) Click(ctx context.Context) error {
	return h.chrome.run(ctx, chromedp.MouseClickNode(h.node))
}

func (h *chromeHandle) ScriptClick(ctx context.Context) error {
	return h.callOn(ctx, `function() { this.click(); }`, nil)
}

func (h *chromeHandle) Focus(ctx context.Context) error {
	return h.chrome.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.Focus().WithBackendNodeID(h.node.BackendNodeID).Do(ctx)
	}))
}

func (h *chromeHandle) IsFocused(ctx context.Context) (bool, error) {
	var focused bool
	err := h.callOn(ctx, `function() { return document.activeElement === this; }`, &focused)
	return focused, err
}

func (h *chromeHandle) IsVisible(ctx context.Context) (bool, error) {
	var visible bool
	err := h.callOn(ctx, isUsableJS, &visible)
	return visible, err
}

func (h *chromeHandle) IsEnabled(ctx context.Context) (bool, error) {
	var enabled bool
	err := h.callOn(ctx,
		`function() { return !this.disabled && this.getAttribute('aria-disabled') !== 'true'; }`,
		&enabled)
	return enabled, err
}

func (h *chromeHandle) SetFiles(ctx context.Context, paths []string) error {
	return h.chrome.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return dom.SetFileInputFiles(paths).WithBackendNodeID(h.node.BackendNodeID).Do(ctx)
	}))
}

// FormFileInput walks up to the node's enclosing form and returns its file
// input, if any. The lookup runs in-page so it sees the live tree, but the
// returned handle is node-bound like any other.
func (h *chromeHandle) FormFileInput(ctx context.Context) (Handle, error) {
	var found Handle
	err := h.chrome.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		objID, release, err := h.resolve(ctx)
		if err != nil {
			return err
		}
		defer release(ctx)

		res, _, err := runtime.CallFunctionOn(
			`function() {
				const form = this.closest('form');
				if (!form) { return null; }
				return form.querySelector('input[type="file"]');
			}`).
			WithObjectID(objID).
			WithSilent(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if res == nil || res.ObjectID == "" {
			return nil
		}

		node, err := dom.DescribeNode().WithObjectID(res.ObjectID).Do(ctx)
		if err != nil {
			return err
		}
		found = &chromeHandle{
			chrome: h.chrome,
			node:   node,
			loc:    CSS(`input[type="file"]`),
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return found, nil
}

// callOn runs a this-bound function on the node and decodes its return value
// into out (out may be nil).
func (h *chromeHandle) callOn(ctx context.Context, fn string, out any) error {
	return h.chrome.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		objID, release, err := h.resolve(ctx)
		if err != nil {
			return err
		}
		defer release(ctx)

		res, exc, err := runtime.CallFunctionOn(fn).
			WithObjectID(objID).
			WithReturnByValue(true).
			WithSilent(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return fmt.Errorf("script on %s: %s", h.Describe(), exc.Error())
		}
		if out != nil && res != nil && res.Value != nil {
			return json.Unmarshal(res.Value, out)
		}
		return nil
	}))
}

// resolve materializes a JS object for the node so functions can bind to it.
func (h *chromeHandle) resolve(ctx context.Context) (runtime.RemoteObjectID, func(context.Context), error) {
	obj, err := dom.ResolveNode().WithBackendNodeID(h.node.BackendNodeID).Do(ctx)
	if err != nil {
		return "", nil, fmt.Errorf("resolving %s: %w", h.Describe(), err)
	}
	release := func(ctx context.Context) {
		_ = runtime.ReleaseObject(obj.ObjectID).Do(ctx)
	}
	return obj.ObjectID, release, nil
}
