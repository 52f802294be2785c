// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger  LoggerConfig  `mapstructure:"logger" yaml:"logger"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Secrets SecretsConfig `mapstructure:"secrets" yaml:"secrets"`
	Feed    FeedConfig    `mapstructure:"feed" yaml:"feed"`
	Ledger  LedgerConfig  `mapstructure:"ledger" yaml:"ledger"`
	Publish PublishConfig `mapstructure:"publish" yaml:"publish"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig controls the Chrome instance the publisher drives.
// Headless is an explicit configuration value, not a mutable package flag;
// it flows into driver construction and nowhere else.
type BrowserConfig struct {
	Headless     bool     `mapstructure:"headless" yaml:"headless"`
	UserAgent    string   `mapstructure:"user_agent" yaml:"user_agent"`
	WindowWidth  int      `mapstructure:"window_width" yaml:"window_width"`
	WindowHeight int      `mapstructure:"window_height" yaml:"window_height"`
	Args         []string `mapstructure:"args" yaml:"args"`
}

// SecretsConfig locates the encrypted cookie blob and its passphrase.
// The passphrase itself never appears in the config file; it is bound to
// the PAGEPRESS_DECRYPT_KEY environment variable.
type SecretsConfig struct {
	BlobPath   string `mapstructure:"blob_path" yaml:"blob_path"`
	Passphrase string `mapstructure:"passphrase" yaml:"-"`
}

// FeedConfig describes where the content feed document is fetched from.
type FeedConfig struct {
	URL     string        `mapstructure:"url" yaml:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// LedgerConfig locates the publish-history file.
type LedgerConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PublishConfig holds the workflow settings for a publish run.
type PublishConfig struct {
	TargetURL  string `mapstructure:"target_url" yaml:"target_url"`
	PageName   string `mapstructure:"page_name" yaml:"page_name"`
	StagingDir string `mapstructure:"staging_dir" yaml:"staging_dir"`

	// StageTimeout bounds element resolution per workflow stage.
	// PollInterval paces the strategy sweeps inside that window.
	// SettleDelay is the fixed budget after state-changing actions for
	// which no completion predicate exists.
	StageTimeout time.Duration `mapstructure:"stage_timeout" yaml:"stage_timeout"`
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	SettleDelay  time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pagepress")
	v.SetDefault("logger.log_file", "pagepress.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/140.0.0.0 Safari/537.36")
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)

	// -- Secrets --
	v.SetDefault("secrets.blob_path", "cookies.json.encrypted")

	// -- Feed --
	v.SetDefault("feed.timeout", "30s")

	// -- Ledger --
	v.SetDefault("ledger.path", "posted_content.json")

	// -- Publish --
	v.SetDefault("publish.target_url", "https://www.facebook.com/")
	v.SetDefault("publish.staging_dir", "temp")
	v.SetDefault("publish.stage_timeout", "15s")
	v.SetDefault("publish.poll_interval", "500ms")
	v.SetDefault("publish.settle_delay", "15s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data.
	v.BindEnv("secrets.passphrase", "PAGEPRESS_DECRYPT_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the passphrase if Unmarshal didn't pick it up.
	if cfg.Secrets.Passphrase == "" {
		cfg.Secrets.Passphrase = os.Getenv("PAGEPRESS_DECRYPT_KEY")
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// expandPaths resolves "~" prefixes in the configured file locations.
func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Secrets.BlobPath, &c.Ledger.Path, &c.Publish.StagingDir, &c.Logger.LogFile} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("cannot expand path %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Secrets.BlobPath == "" {
		return fmt.Errorf("secrets.blob_path is a required configuration field")
	}
	if c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is a required configuration field")
	}
	if c.Publish.TargetURL == "" {
		return fmt.Errorf("publish.target_url is a required configuration field")
	}
	if c.Publish.StageTimeout <= 0 {
		return fmt.Errorf("publish.stage_timeout must be a positive duration")
	}
	if c.Publish.PollInterval <= 0 {
		return fmt.Errorf("publish.poll_interval must be a positive duration")
	}
	if c.Publish.PollInterval >= c.Publish.StageTimeout {
		return fmt.Errorf("publish.poll_interval must be shorter than publish.stage_timeout")
	}
	return nil
}
