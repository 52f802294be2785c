// File: cmd/post.go
package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepress/internal/browser"
	"github.com/xkilldash9x/pagepress/internal/config"
	"github.com/xkilldash9x/pagepress/internal/ledger"
	"github.com/xkilldash9x/pagepress/internal/media"
	"github.com/xkilldash9x/pagepress/internal/observability"
	"github.com/xkilldash9x/pagepress/internal/publisher"
)

// newPostCmd creates the `post` command: one full publish run.
func newPostCmd() *cobra.Command {
	postCmd := &cobra.Command{
		Use:   "post",
		Short: "Publish the next unposted feed item",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			if err := viper.BindPFlag("browser.headless", cmd.Flags().Lookup("headless")); err != nil {
				return err
			}
			if err := viper.BindPFlag("feed.url", cmd.Flags().Lookup("feed")); err != nil {
				return err
			}
			if err := viper.BindPFlag("publish.settle_delay", cmd.Flags().Lookup("settle")); err != nil {
				return err
			}
			return viper.BindPFlags(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				return err
			}
			if cfg.Feed.URL == "" {
				return fmt.Errorf("feed.url is required (flag --feed or config)")
			}
			if cfg.Secrets.Passphrase == "" {
				return fmt.Errorf("PAGEPRESS_DECRYPT_KEY is missing from the environment")
			}

			staging, err := media.NewStaging(cfg.Publish.StagingDir, logger)
			if err != nil {
				return fmt.Errorf("preparing staging directory: %w", err)
			}

			driver, err := browser.NewChrome(ctx, cfg.Browser, logger)
			if err != nil {
				return err
			}

			pub := publisher.New(cfg, driver,
				ledger.New(cfg.Ledger.Path, logger),
				staging,
				&http.Client{Timeout: cfg.Feed.Timeout},
				logger)

			if err := pub.Run(ctx); err != nil {
				var stageErr *publisher.StageError
				if errors.As(err, &stageErr) {
					logger.Error("Publish run failed",
						zap.String("stage", string(stageErr.Stage)), zap.Error(stageErr.Cause))
				}
				return err
			}
			return nil
		},
	}

	postCmd.Flags().Bool("headless", true, "run the browser headless")
	postCmd.Flags().String("feed", "", "content feed URL")
	postCmd.Flags().Duration("settle", 15*time.Second, "settle delay after state-changing actions")

	return postCmd
}
