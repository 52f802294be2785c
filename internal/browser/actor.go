// File: internal/browser/actor.go
package browser

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Actor performs guarded interactions on top of the resolution engine.
// Every action resolves its element once; if the driver rejects the primary
// action the fallback runs against the already-resolved handle.
type Actor struct {
	driver   Driver
	resolver *Resolver
	logger   *zap.Logger
	opts     ResolveOptions
}

// NewActor creates an actor with the given default resolution bounds.
func NewActor(driver Driver, logger *zap.Logger, opts ResolveOptions) *Actor {
	return &Actor{
		driver:   driver,
		resolver: NewResolver(driver, logger),
		logger:   logger.Named("actor"),
		opts:     opts,
	}
}

// Click resolves the element and clicks it, recovering from interception
// with a scripted click on the same handle.
func (a *Actor) Click(ctx context.Context, locators []Locator) error {
	handle, err := a.resolver.Resolve(ctx, locators, a.opts)
	if err != nil {
		return err
	}
	return a.clickHandle(ctx, handle)
}

func (a *Actor) clickHandle(ctx context.Context, handle Handle) error {
	if err := handle.Click(ctx); err != nil {
		a.logger.Debug("Native click rejected; using scripted click.",
			zap.String("element", handle.Describe()), zap.Error(err))
		if err := handle.ScriptClick(ctx); err != nil {
			return fmt.Errorf("%w: click and scripted fallback both failed: %v", ErrActionRejected, err)
		}
	}
	return nil
}

// TypeMultiline resolves a focused text target, clears it with a
// select-all/delete keyboard sequence, and inserts the lines separated by
// soft line breaks so the whole text stays in a single post.
func (a *Actor) TypeMultiline(ctx context.Context, locators []Locator, lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	opts := a.opts
	opts.WantFocus = true
	handle, err := a.resolver.Resolve(ctx, locators, opts)
	if err != nil {
		return err
	}

	if err := a.driver.SelectAll(ctx); err != nil {
		return fmt.Errorf("%w: select-all: %v", ErrActionRejected, err)
	}
	if err := a.driver.Delete(ctx); err != nil {
		return fmt.Errorf("%w: clearing field: %v", ErrActionRejected, err)
	}

	for i, line := range lines {
		if err := a.driver.InsertText(ctx, line); err != nil {
			return fmt.Errorf("%w: inserting text: %v", ErrActionRejected, err)
		}
		if i < len(lines)-1 {
			if err := a.driver.SoftLineBreak(ctx); err != nil {
				return fmt.Errorf("%w: line break: %v", ErrActionRejected, err)
			}
		}
	}

	a.logger.Debug("Typed multiline content.",
		zap.String("element", handle.Describe()), zap.Int("lines", len(lines)))
	return nil
}

// UploadFile attaches a local file without triggering the native OS file
// dialog, which cannot be automated. It first looks for a file input scoped
// under the same form as the visible trigger and assigns the path directly;
// failing that, it clicks the trigger and scans the page for the first
// visible-and-enabled file input. Returns false on failure rather than an
// error: the caller decides whether a post without media is acceptable.
func (a *Actor) UploadFile(ctx context.Context, triggerLocators []Locator, path string) bool {
	trigger, err := a.resolver.Resolve(ctx, triggerLocators, a.opts)
	if err != nil {
		a.logger.Warn("Upload trigger not found.", zap.Error(err))
		return false
	}

	if input, err := trigger.FormFileInput(ctx); err == nil && input != nil {
		if err := input.SetFiles(ctx, []string{path}); err == nil {
			a.logger.Info("Attached media via form-scoped file input.", zap.String("path", path))
			return true
		}
		a.logger.Debug("Form-scoped file input rejected assignment; falling back.",
			zap.String("input", input.Describe()))
	}

	// Fallback: open the picker UI through the trigger, then feed the first
	// live file input on the page. The click may spawn inputs that did not
	// exist before it.
	if err := a.clickHandle(ctx, trigger); err != nil {
		a.logger.Warn("Upload trigger not clickable.", zap.Error(err))
		return false
	}

	inputs, err := a.driver.Find(ctx, CSS(`input[type="file"]`))
	if err != nil {
		a.logger.Warn("Cannot enumerate file inputs.", zap.Error(err))
		return false
	}
	for _, input := range inputs {
		visible, err := input.IsVisible(ctx)
		if err != nil || !visible {
			continue
		}
		enabled, err := input.IsEnabled(ctx)
		if err != nil || !enabled {
			continue
		}
		if err := input.SetFiles(ctx, []string{path}); err != nil {
			a.logger.Debug("File input rejected assignment.",
				zap.String("input", input.Describe()), zap.Error(err))
			continue
		}
		a.logger.Info("Attached media via fallback file input.", zap.String("path", path))
		return true
	}

	a.logger.Warn("No file input accepted the upload.",
		zap.String("path", path), zap.Error(ErrUploadFailed))
	return false
}
