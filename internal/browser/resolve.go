// File: internal/browser/resolve.go
package browser

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultProbeTimeout = 2 * time.Second

// ResolveOptions bound one resolution attempt.
type ResolveOptions struct {
	// Timeout is the overall deadline for the attempt.
	Timeout time.Duration
	// PollInterval paces full sweeps over the strategy list.
	PollInterval time.Duration
	// ProbeTimeout bounds each individual locator probe. Must be much
	// smaller than Timeout; defaults to 2s.
	ProbeTimeout time.Duration
	// WantFocus additionally clicks and focuses the element, then verifies
	// focus with a direct activeElement check. Used before typing.
	WantFocus bool
}

func (o ResolveOptions) probeTimeout() time.Duration {
	if o.ProbeTimeout > 0 {
		return o.ProbeTimeout
	}
	return defaultProbeTimeout
}

// Resolver turns locator strategy lists into live, verified element handles.
type Resolver struct {
	driver Driver
	logger *zap.Logger
}

// NewResolver creates a resolver over the given driver.
func NewResolver(driver Driver, logger *zap.Logger) *Resolver {
	return &Resolver{driver: driver, logger: logger.Named("resolver")}
}

// Resolve sweeps the strategy list in order until the deadline, returning
// the first element that is not merely present but verified usable. A
// strategy that matches a node failing verification is skipped without
// error; only exhausting every strategy across the full timeout fails, with
// ErrElementNotFound.
func (r *Resolver) Resolve(ctx context.Context, locators []Locator, opts ResolveOptions) (Handle, error) {
	if len(locators) == 0 {
		return nil, fmt.Errorf("%w: empty strategy list", ErrElementNotFound)
	}

	deadline := time.Now().Add(opts.Timeout)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	// One sweep per poll interval; the first is immediate.
	limiter := rate.NewLimiter(rate.Every(opts.PollInterval), 1)

	for {
		for _, loc := range locators {
			if err := runCtx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrElementNotFound, err)
			}

			handle, err := r.probe(runCtx, loc, opts)
			if err != nil {
				r.logger.Debug("Strategy probe failed; trying next.",
					zap.String("locator", loc.String()), zap.Error(err))
				continue
			}
			if handle != nil {
				r.logger.Debug("Resolved element.", zap.String("locator", loc.String()))
				return handle, nil
			}
		}

		if time.Now().After(deadline) {
			break
		}
		if err := limiter.Wait(runCtx); err != nil {
			break
		}
	}

	return nil, fmt.Errorf("%w: no strategy matched within %s (%d strategies)",
		ErrElementNotFound, opts.Timeout, len(locators))
}

// probe attempts one locator once: find candidates, then bring the first
// usable one into an interactable state and verify it. A nil, nil return
// means "nothing usable yet".
func (r *Resolver) probe(ctx context.Context, loc Locator, opts ResolveOptions) (Handle, error) {
	probeCtx, cancel := context.WithTimeout(ctx, opts.probeTimeout())
	defer cancel()

	handles, err := r.driver.Find(probeCtx, loc)
	if err != nil {
		return nil, err
	}

	for _, h := range handles {
		ok, err := r.verify(probeCtx, h, opts.WantFocus)
		if err != nil || !ok {
			continue
		}
		return h, nil
	}
	return nil, nil
}

// verify confirms the handle is actually usable, not just attached to the
// DOM. Existence and interactability are different properties; this checks
// the latter directly rather than trusting the preparatory calls.
func (r *Resolver) verify(ctx context.Context, h Handle, wantFocus bool) (bool, error) {
	if err := h.ScrollIntoView(ctx); err != nil {
		return false, err
	}

	visible, err := h.IsVisible(ctx)
	if err != nil || !visible {
		return false, err
	}

	if !wantFocus {
		return true, nil
	}

	// Typing targets need real focus. Click first (editors often install
	// their caret on click), fall back to a scripted click on the same
	// node, then force focus and check activeElement.
	if err := h.Click(ctx); err != nil {
		if err := h.ScriptClick(ctx); err != nil {
			return false, err
		}
	}
	if err := h.Focus(ctx); err != nil {
		return false, err
	}
	return h.IsFocused(ctx)
}
