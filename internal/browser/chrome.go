// File: internal/browser/chrome.go
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepress/internal/config"
	"github.com/xkilldash9x/pagepress/internal/secrets"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Chrome drives a Chrome instance over CDP and implements Driver. The
// browser is an exclusively-owned resource: acquired once at run start,
// released by Quit on every exit path.
type Chrome struct {
	logger      *zap.Logger
	ctx         context.Context
	ctxCancel   context.CancelFunc
	allocCancel context.CancelFunc
	quitOnce    sync.Once
}

// NewChrome launches a browser configured from cfg and returns the driver.
func NewChrome(parent context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Chrome, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, execOptions(cfg)...)
	browserCtx, ctxCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(logger.Named("chromedp").Sugar().Errorf))

	c := &Chrome{
		logger:      logger.Named("chrome"),
		ctx:         browserCtx,
		ctxCancel:   ctxCancel,
		allocCancel: allocCancel,
	}

	// Force the browser process up now so launch failures surface here,
	// not in the middle of the workflow.
	if err := chromedp.Run(browserCtx); err != nil {
		c.Quit()
		return nil, fmt.Errorf("browser: launching chrome: %w", err)
	}

	c.logger.Info("Browser launched.", zap.Bool("headless", cfg.Headless))
	return c, nil
}

// execOptions translates BrowserConfig into chromedp allocator options.
func execOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-notifications", true),
	)

	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.WindowWidth > 0 && cfg.WindowHeight > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight))
	}
	if cfg.Headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	// Extra flags from config, both boolean and key=value forms.
	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if key, value, found := strings.Cut(arg, "="); found {
			opts = append(opts, chromedp.Flag(key, value))
		} else if arg != "" {
			opts = append(opts, chromedp.Flag(arg, true))
		}
	}
	return opts
}

// run executes chromedp actions against the browser context while honoring
// the caller's context for cancellation and deadlines.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	c.logger.Debug("Navigating.", zap.String("url", url))
	return c.run(ctx, chromedp.Navigate(url))
}

func (c *Chrome) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := c.run(ctx, chromedp.Location(&url))
	return url, err
}

func (c *Chrome) Refresh(ctx context.Context) error {
	return c.run(ctx, chromedp.Reload())
}

func (c *Chrome) PageSource(ctx context.Context) (string, error) {
	var source string
	err := c.run(ctx, chromedp.OuterHTML("html", &source, chromedp.ByQuery))
	return source, err
}

// SetCookies installs the usable session records into the browser.
func (c *Chrome) SetCookies(ctx context.Context, cookies []secrets.Cookie) error {
	return c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, ck := range secrets.Sanitize(cookies) {
			p := network.SetCookie(ck.Name, ck.Value).
				WithDomain(ck.Domain).
				WithPath(ck.Path).
				WithSecure(ck.Secure).
				WithHTTPOnly(ck.HTTPOnly)
			if ck.Expiry > 0 {
				expiry := cdp.TimeSinceEpoch(time.Unix(int64(ck.Expiry), 0))
				p = p.WithExpires(&expiry)
			}
			if ss := sameSite(ck.SameSite); ss != "" {
				p = p.WithSameSite(ss)
			}
			if err := p.Do(ctx); err != nil {
				return fmt.Errorf("setting cookie %s: %w", ck.Name, err)
			}
		}
		return nil
	}))
}

func (c *Chrome) ClearCookies(ctx context.Context) error {
	return c.run(ctx, network.ClearBrowserCookies())
}

// Cookies lists the browser's current cookies in session-record form.
func (c *Chrome) Cookies(ctx context.Context) ([]secrets.Cookie, error) {
	var out []secrets.Cookie
	err := c.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		out = make([]secrets.Cookie, 0, len(cookies))
		for _, ck := range cookies {
			out = append(out, secrets.Cookie{
				Name:     ck.Name,
				Value:    ck.Value,
				Domain:   ck.Domain,
				Path:     ck.Path,
				Expiry:   secrets.UnixSeconds(int64(ck.Expires)),
				HTTPOnly: ck.HTTPOnly,
				Secure:   ck.Secure,
				SameSite: ck.SameSite.String(),
			})
		}
		return nil
	}))
	return out, err
}

func sameSite(s string) network.CookieSameSite {
	switch strings.ToLower(s) {
	case "strict":
		return network.CookieSameSiteStrict
	case "lax":
		return network.CookieSameSiteLax
	case "none", "no_restriction":
		return network.CookieSameSiteNone
	default:
		return ""
	}
}

// Find probes once for nodes matching the locator. ByCSS uses the query
// engine; ByXPath and ByText go through the DOM search API.
func (c *Chrome) Find(ctx context.Context, loc Locator) ([]Handle, error) {
	var nodes []*cdp.Node
	var action chromedp.Action
	switch loc.Mechanism {
	case ByCSS:
		action = chromedp.Nodes(loc.Pattern, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))
	case ByXPath, ByText:
		action = chromedp.Nodes(loc.AsXPath(), &nodes, chromedp.BySearch, chromedp.AtLeast(0))
	default:
		return nil, fmt.Errorf("browser: unknown locator mechanism %q", loc.Mechanism)
	}

	if err := c.run(ctx, action); err != nil {
		return nil, err
	}

	handles := make([]Handle, 0, len(nodes))
	for _, node := range nodes {
		handles = append(handles, &chromeHandle{chrome: c, node: node, loc: loc})
	}
	return handles, nil
}

func (c *Chrome) Eval(ctx context.Context, script string, out any) error {
	return c.run(ctx, chromedp.Evaluate(script, evalTarget(out),
		func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithReturnByValue(true).WithAwaitPromise(true).WithSilent(true)
		}))
}

// evalTarget substitutes a raw-message sink when the caller discards the
// result; the evaluate action requires a non-nil decode target.
func evalTarget(out any) any {
	if out != nil {
		return out
	}
	return new(jsoniter.RawMessage)
}

// -- Keyboard --

func (c *Chrome) InsertText(ctx context.Context, text string) error {
	return c.run(ctx, input.InsertText(text))
}

func (c *Chrome) SelectAll(ctx context.Context) error {
	return c.run(ctx, chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl)))
}

func (c *Chrome) Delete(ctx context.Context) error {
	return c.run(ctx, chromedp.KeyEvent(kb.Delete))
}

func (c *Chrome) SoftLineBreak(ctx context.Context) error {
	return c.run(ctx, chromedp.KeyEvent(kb.Enter, chromedp.KeyModifiers(input.ModifierShift)))
}

// Quit tears the browser down. Idempotent.
func (c *Chrome) Quit() error {
	c.quitOnce.Do(func() {
		c.logger.Info("Closing browser.")
		c.ctxCancel()
		c.allocCancel()
	})
	return nil
}
