// File: cmd/harvest.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepress/internal/browser"
	"github.com/xkilldash9x/pagepress/internal/config"
	"github.com/xkilldash9x/pagepress/internal/observability"
	"github.com/xkilldash9x/pagepress/internal/secrets"
)

const (
	sessionCookieName  = "c_user"
	twoStepURLFragment = "/two_step_verification/authentication"
	loginPollInterval  = time.Second
)

var loginEmailLocators = []browser.Locator{
	browser.CSS(`#email`),
	browser.CSS(`input[name="email"]`),
}

var loginPasswordLocators = []browser.Locator{
	browser.CSS(`#pass`),
	browser.CSS(`input[name="pass"]`),
}

var loginButtonLocators = []browser.Locator{
	browser.CSS(`button[name="login"]`),
	browser.CSS(`button[type="submit"]`),
	browser.XPath(`//*[starts-with(@id, "u_0_5_")]`),
}

// newHarvestCmd creates the `harvest` command: log into the target site,
// capture the session cookies and seal them into the encrypted blob the
// `post` command consumes.
func newHarvestCmd() *cobra.Command {
	harvestCmd := &cobra.Command{
		Use:   "harvest",
		Short: "Log in, capture session cookies and seal them into the encrypted blob",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if cfg.Secrets.Passphrase == "" {
				return fmt.Errorf("PAGEPRESS_DECRYPT_KEY is missing from the environment")
			}
			email := os.Getenv("PAGEPRESS_LOGIN_EMAIL")
			password := os.Getenv("PAGEPRESS_LOGIN_PASSWORD")
			if email == "" || password == "" {
				return fmt.Errorf("PAGEPRESS_LOGIN_EMAIL and PAGEPRESS_LOGIN_PASSWORD must be set")
			}

			// Two-step verification needs a human in front of a visible
			// browser window.
			browserCfg := cfg.Browser
			browserCfg.Headless = false

			driver, err := browser.NewChrome(ctx, browserCfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = driver.Quit() }()

			timeout, _ := cmd.Flags().GetDuration("login-timeout")
			cookies, err := harvestSession(ctx, driver, cfg, email, password, timeout, logger)
			if err != nil {
				return err
			}

			if err := secrets.Seal(cfg.Secrets.BlobPath, cfg.Secrets.Passphrase, cookies); err != nil {
				return fmt.Errorf("sealing cookie blob: %w", err)
			}
			logger.Info("Session sealed.",
				zap.String("path", cfg.Secrets.BlobPath), zap.Int("cookies", len(cookies)))
			fmt.Printf("Encrypted session written to %s\n", cfg.Secrets.BlobPath)
			return nil
		},
	}

	harvestCmd.Flags().Duration("login-timeout", 2*time.Minute,
		"how long to wait for login (including manual two-step verification)")

	return harvestCmd
}

// harvestSession performs the login and waits until a session cookie shows
// up, tolerating a manual two-step verification detour.
func harvestSession(ctx context.Context, driver browser.Driver, cfg *config.Config, email, password string, timeout time.Duration, logger *zap.Logger) ([]secrets.Cookie, error) {
	if err := driver.Navigate(ctx, cfg.Publish.TargetURL); err != nil {
		return nil, fmt.Errorf("navigating to login page: %w", err)
	}

	opts := browser.ResolveOptions{
		Timeout:      cfg.Publish.StageTimeout,
		PollInterval: cfg.Publish.PollInterval,
	}
	actor := browser.NewActor(driver, logger, opts)

	if err := actor.TypeMultiline(ctx, loginEmailLocators, []string{email}); err != nil {
		return nil, fmt.Errorf("entering email: %w", err)
	}
	if err := actor.TypeMultiline(ctx, loginPasswordLocators, []string{password}); err != nil {
		return nil, fmt.Errorf("entering password: %w", err)
	}
	if err := actor.Click(ctx, loginButtonLocators); err != nil {
		return nil, fmt.Errorf("clicking login: %w", err)
	}

	if err := waitForSession(ctx, driver, timeout, logger); err != nil {
		return nil, err
	}

	// Let the post-login redirects finish before reading the cookie jar.
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(cfg.Publish.SettleDelay):
	}

	cookies, err := driver.Cookies(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading session cookies: %w", err)
	}
	return secrets.Sanitize(cookies), nil
}

// waitForSession polls until the session cookie exists. A two-step
// verification page pauses the wait rather than failing it: the operator
// completes the challenge in the open browser window.
func waitForSession(ctx context.Context, driver browser.Driver, timeout time.Duration, logger *zap.Logger) error {
	deadline := time.Now().Add(timeout)
	twoStepNoticeShown := false

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(loginPollInterval):
		}

		url, err := driver.CurrentURL(ctx)
		if err == nil && strings.Contains(url, twoStepURLFragment) {
			if !twoStepNoticeShown {
				logger.Info("Two-step verification pending; complete it in the browser window.")
				twoStepNoticeShown = true
			}
			continue
		}

		cookies, err := driver.Cookies(ctx)
		if err != nil {
			continue
		}
		for _, ck := range cookies {
			if ck.Name == sessionCookieName {
				logger.Info("Authenticated session detected.")
				return nil
			}
		}
	}
	return fmt.Errorf("login not confirmed within %s (session cookie %q never appeared)", timeout, sessionCookieName)
}
