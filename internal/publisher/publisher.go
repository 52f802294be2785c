// File: internal/publisher/publisher.go

// Package publisher runs the end-to-end publish workflow as a strictly
// forward state machine. Each stage retries only at the resolution engine's
// bounded-timeout granularity; any failure past that boundary aborts the
// remaining stages and releases the browser.
//
// Posting is at-least-once: the ledger records an item strictly after the
// submit action is confirmed, so a crash between submit and record can lead
// to a duplicate post on the next run. That window is accepted in exchange
// for never marking an item posted when it was not.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/pagepress/internal/browser"
	"github.com/xkilldash9x/pagepress/internal/config"
	"github.com/xkilldash9x/pagepress/internal/content"
	"github.com/xkilldash9x/pagepress/internal/ledger"
	"github.com/xkilldash9x/pagepress/internal/media"
	"github.com/xkilldash9x/pagepress/internal/secrets"
)

// Stage identifies where the workflow currently is, or where it failed.
type Stage string

const (
	StageIdle          Stage = "idle"
	StageAuthenticated Stage = "authenticated"
	StageFeedLoaded    Stage = "feed_loaded"
	StageItemSelected  Stage = "item_selected"
	StageComposing     Stage = "composing"
	StageMediaAttached Stage = "media_attached"
	StageReviewReady   Stage = "review_ready"
	StageSubmitted     Stage = "submitted"
	StageRecorded      Stage = "recorded"
	StageDone          Stage = "done"
)

// StageError wraps a failure with the stage it occurred in. Any stage can
// transition here; there is no recovery back into the forward path.
type StageError struct {
	Stage Stage
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("publish failed at stage %s: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error { return e.Cause }

func failAt(stage Stage, err error) error {
	return &StageError{Stage: stage, Cause: err}
}

// Publisher owns one publish run: unlock the session, select the next
// unposted item, drive the page UI to post it, and record it in the ledger.
type Publisher struct {
	cfg     *config.Config
	driver  browser.Driver
	actor   *browser.Actor
	resolve *browser.Resolver
	ledger  *ledger.Ledger
	staging *media.Staging
	client  *http.Client
	logger  *zap.Logger
}

// New assembles a publisher over an already-launched driver. The driver is
// owned by the publisher from here on: Run quits it on every exit path.
func New(cfg *config.Config, driver browser.Driver, led *ledger.Ledger, staging *media.Staging, client *http.Client, logger *zap.Logger) *Publisher {
	opts := browser.ResolveOptions{
		Timeout:      cfg.Publish.StageTimeout,
		PollInterval: cfg.Publish.PollInterval,
	}
	return &Publisher{
		cfg:     cfg,
		driver:  driver,
		actor:   browser.NewActor(driver, logger, opts),
		resolve: browser.NewResolver(driver, logger),
		ledger:  led,
		staging: staging,
		client:  client,
		logger:  logger.Named("publisher"),
	}
}

// Run executes the workflow to completion. A nil error covers both a
// successful post and "nothing new to post".
func (p *Publisher) Run(ctx context.Context) (err error) {
	defer func() {
		if cleanErr := p.staging.Clean(); cleanErr != nil {
			p.logger.Warn("Staging cleanup failed.", zap.Error(cleanErr))
		}
		if quitErr := p.driver.Quit(); quitErr != nil {
			p.logger.Warn("Browser shutdown reported an error.", zap.Error(quitErr))
		}
	}()

	// Secret unlock is CPU-bound key stretching and the feed fetch is
	// network-bound; neither needs the browser yet, so they run together.
	var (
		cookies []secrets.Cookie
		feed    []content.Item
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var unlockErr error
		cookies, unlockErr = secrets.Unlock(p.cfg.Secrets.BlobPath, p.cfg.Secrets.Passphrase)
		return unlockErr
	})
	g.Go(func() error {
		fetchCtx, cancel := context.WithTimeout(gctx, p.cfg.Feed.Timeout)
		defer cancel()
		var fetchErr error
		feed, fetchErr = content.FetchFeed(fetchCtx, p.client, p.cfg.Feed.URL)
		return fetchErr
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, content.ErrFeedFetch) {
			return failAt(StageFeedLoaded, err)
		}
		return failAt(StageIdle, err)
	}
	p.logger.Info("Session unlocked and feed fetched.",
		zap.Int("cookies", len(cookies)), zap.Int("feed_items", len(feed)))

	history := p.ledger.Load()
	item := content.SelectNext(feed, history)
	if item == nil {
		// Exhausted feed is clean completion, not an error.
		p.logger.Info("No new content to post.", zap.Int("history", len(history)))
		return nil
	}
	p.logger.Info("Selected next item.", zap.String("title", item.Title))

	if err := p.authenticate(ctx, cookies); err != nil {
		return failAt(StageAuthenticated, err)
	}
	if err := p.enterPageContext(ctx); err != nil {
		return failAt(StageFeedLoaded, err)
	}
	if err := p.compose(ctx, item); err != nil {
		return failAt(StageComposing, err)
	}
	p.attachMedia(ctx, item)
	if err := p.review(ctx); err != nil {
		return failAt(StageReviewReady, err)
	}
	if err := p.submit(ctx); err != nil {
		return failAt(StageSubmitted, err)
	}

	// Strictly after the confirmed submit. Failing to record is surfaced,
	// since silence here would guarantee a duplicate next run.
	if err := p.record(item); err != nil {
		return failAt(StageRecorded, err)
	}

	p.settle(ctx, "post-submit")
	p.logger.Info("Publish run complete.", zap.String("title", item.Title))
	return nil
}

// authenticate loads the target site, installs the decrypted session and
// refreshes so the page picks it up.
func (p *Publisher) authenticate(ctx context.Context, cookies []secrets.Cookie) error {
	if err := p.driver.Navigate(ctx, p.cfg.Publish.TargetURL); err != nil {
		return fmt.Errorf("navigating to target: %w", err)
	}
	if err := p.driver.ClearCookies(ctx); err != nil {
		return fmt.Errorf("clearing cookies: %w", err)
	}
	if err := p.driver.SetCookies(ctx, cookies); err != nil {
		return fmt.Errorf("installing session cookies: %w", err)
	}
	if err := p.driver.Refresh(ctx); err != nil {
		return fmt.Errorf("refreshing session: %w", err)
	}

	p.snapshot(ctx, "page_source.html")
	p.dismissNotificationPopup(ctx)
	return nil
}

// enterPageContext switches the account context to the configured page and
// confirms the switch through the page header before composing.
func (p *Publisher) enterPageContext(ctx context.Context) error {
	pageName := p.cfg.Publish.PageName
	if pageName == "" {
		p.logger.Debug("No page name configured; posting as the logged-in account.")
		return nil
	}

	if err := p.actor.Click(ctx, profileMenuLocators); err != nil {
		return fmt.Errorf("opening profile menu: %w", err)
	}
	if err := p.actor.Click(ctx, pageMenuItemLocators(pageName)); err != nil {
		return fmt.Errorf("selecting page %q: %w", pageName, err)
	}

	// The switch happens asynchronously; the header carrying the page name
	// is the completion predicate.
	if _, err := p.resolve.Resolve(ctx, pageHeaderLocators(pageName), p.resolveOptions()); err != nil {
		return fmt.Errorf("confirming page context %q: %w", pageName, err)
	}
	p.logger.Info("Page context confirmed.", zap.String("page", pageName))
	return nil
}

// compose opens the post dialog and types the item's description.
func (p *Publisher) compose(ctx context.Context, item *content.Item) error {
	if err := p.actor.Click(ctx, createPostLocators); err != nil {
		return fmt.Errorf("opening composer: %w", err)
	}

	// The dialog renders asynchronously; composer presence is the predicate.
	if _, err := p.resolve.Resolve(ctx, composerLocators, p.resolveOptions()); err != nil {
		return fmt.Errorf("waiting for composer: %w", err)
	}
	p.snapshot(ctx, "composer_source.html")

	lines := content.Lines(item.Description)
	if len(lines) == 0 {
		lines = []string{strings.TrimSpace(item.Description)}
	}
	if err := p.actor.TypeMultiline(ctx, composerLocators, lines); err != nil {
		return fmt.Errorf("entering content: %w", err)
	}
	return nil
}

// attachMedia downloads the item's image and attaches it. Every failure in
// here is soft: a post without its image beats no post at all.
func (p *Publisher) attachMedia(ctx context.Context, item *content.Item) {
	imagePath := p.staging.DownloadImage(ctx, p.client, item.Image)
	if imagePath == "" {
		return
	}
	if !p.actor.UploadFile(ctx, mediaTriggerLocators, imagePath) {
		p.logger.Warn("Continuing without media.", zap.String("image", item.Image))
		return
	}
	// Upload progress has no DOM predicate to poll; fixed settle budget.
	p.settle(ctx, "media-upload")
}

// review advances the two-step dialog to its final confirmation screen.
func (p *Publisher) review(ctx context.Context) error {
	if err := p.actor.Click(ctx, nextButtonLocators); err != nil {
		return fmt.Errorf("advancing to review: %w", err)
	}
	p.settle(ctx, "review-transition")
	return nil
}

// submit performs the final Post action.
func (p *Publisher) submit(ctx context.Context) error {
	if err := p.actor.Click(ctx, postButtonLocators); err != nil {
		return fmt.Errorf("submitting post: %w", err)
	}
	p.logger.Info("Post submitted.")
	return nil
}

// record appends the posted item to the ledger.
func (p *Publisher) record(item *content.Item) error {
	entry := ledger.Entry{
		Title:       strings.TrimSpace(item.Title),
		Description: strings.TrimSpace(item.Description),
		Image:       strings.TrimSpace(item.Image),
	}
	if err := p.ledger.Append(entry); err != nil {
		return fmt.Errorf("recording posted item: %w", err)
	}
	p.logger.Info("Item recorded in ledger.")
	return nil
}

// dismissNotificationPopup blocks the browser-notification prompt if it is
// on screen. Best effort: absence of the prompt is the common case.
func (p *Publisher) dismissNotificationPopup(ctx context.Context) {
	opts := p.resolveOptions()
	if opts.Timeout > 5*time.Second {
		opts.Timeout = 5 * time.Second
	}
	handle, err := p.resolve.Resolve(ctx, notificationBlockLocators, opts)
	if err != nil {
		if errors.Is(err, browser.ErrElementNotFound) {
			p.logger.Debug("No notification popup present.")
			return
		}
		p.logger.Warn("Notification popup check failed.", zap.Error(err))
		return
	}
	if err := handle.Click(ctx); err != nil {
		if err := handle.ScriptClick(ctx); err != nil {
			p.logger.Warn("Could not dismiss notification popup.", zap.Error(err))
			return
		}
	}
	p.logger.Info("Blocked notification popup.")
}

// snapshot saves the current page source into the staging dir for
// post-mortem inspection of selector drift. Failures only log.
func (p *Publisher) snapshot(ctx context.Context, name string) {
	source, err := p.driver.PageSource(ctx)
	if err != nil {
		p.logger.Debug("Page source capture failed.", zap.Error(err))
		return
	}
	if _, err := p.staging.WriteFile(name, []byte(source)); err != nil {
		p.logger.Debug("Page source write failed.", zap.Error(err))
	}
}

// settle waits out the configured budget for asynchronous UI work that
// exposes no completion predicate. Cancellation cuts it short.
func (p *Publisher) settle(ctx context.Context, reason string) {
	if p.cfg.Publish.SettleDelay <= 0 {
		return
	}
	p.logger.Debug("Settling.", zap.String("reason", reason),
		zap.Duration("delay", p.cfg.Publish.SettleDelay))
	select {
	case <-ctx.Done():
	case <-time.After(p.cfg.Publish.SettleDelay):
	}
}

func (p *Publisher) resolveOptions() browser.ResolveOptions {
	return browser.ResolveOptions{
		Timeout:      p.cfg.Publish.StageTimeout,
		PollInterval: p.cfg.Publish.PollInterval,
	}
}
