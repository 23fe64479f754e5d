package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config struct for environment variables.
type Config struct {
	LogLevel          string `envconfig:"LOG_LEVEL" default:"INFO"`
	DiscordWebhookURL string `envconfig:"DISCORD_WEBHOOK_URL"`
	DBPath            string `envconfig:"DB_PATH" default:"updaterd.db"`

	// InstallPath is the binary replaced by downloaded updates. Empty means the
	// running executable.
	InstallPath string `envconfig:"INSTALL_PATH"`

	Updater struct {
		InitialDelay     time.Duration `split_words:"true" default:"30s"`
		CheckInterval    time.Duration `split_words:"true" default:"4h"`
		CheckTimeout     time.Duration `split_words:"true" default:"30s"`
		WaitPoll         time.Duration `split_words:"true" default:"500ms"`
		WaitAttempts     int           `split_words:"true" default:"70"`
		ProgressInterval time.Duration `split_words:"true" default:"1s"`
		KeepBackupFor    time.Duration `split_words:"true" default:"72h"`
		Disabled         bool          `split_words:"true"`
	}

	Github struct {
		Owner     string `split_words:"true"`
		Repo      string `split_words:"true"`
		Token     string `split_words:"true"`
		APIURL    string `envconfig:"API_URL" default:"https://api.github.com"`
		AssetName string `split_words:"true"`
		Checksums string `split_words:"true" default:"checksums.txt"`
	}

	Web struct {
		BindAddress     string        `split_words:"true" default:"127.0.0.1:9092"`
		ReadTimeout     time.Duration `split_words:"true" default:"30s"`
		WriteTimeout    time.Duration `split_words:"true" default:"0s"`
		IdleTimeout     time.Duration `split_words:"true" default:"5s"`
		ShutdownTimeout time.Duration `split_words:"true" default:"30s"`
		Username        string        `split_words:"true"`
		Password        string        `split_words:"true"`
	}

	Telemetry struct {
		Enabled      bool   `split_words:"true" default:"true"`
		ServiceName  string `split_words:"true" default:"updaterd"`
		OTLPEndpoint string `envconfig:"OTLP_ENDPOINT"`
		OTLPInsecure bool   `envconfig:"OTLP_INSECURE"`
	}
}

// LoadConfig reads environment variables and populates the Config struct.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("error processing env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate reports every inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Github.Owner == "" || c.Github.Repo == "" {
		errs = append(errs, errors.New("GITHUB_OWNER and GITHUB_REPO are required"))
	}

	if _, err := url.ParseRequestURI(c.Github.APIURL); err != nil {
		errs = append(errs, fmt.Errorf("GITHUB_API_URL: %w", err))
	}

	if c.Updater.CheckTimeout <= 0 {
		errs = append(errs, errors.New("UPDATER_CHECK_TIMEOUT must be positive"))
	}

	if c.Updater.WaitPoll <= 0 || c.Updater.WaitAttempts <= 0 {
		errs = append(errs, errors.New("UPDATER_WAIT_POLL and UPDATER_WAIT_ATTEMPTS must be positive"))
	}

	if c.Updater.CheckInterval <= 0 {
		errs = append(errs, errors.New("UPDATER_CHECK_INTERVAL must be positive"))
	}

	if (c.Web.Username == "") != (c.Web.Password == "") {
		errs = append(errs, errors.New("WEB_USERNAME and WEB_PASSWORD must be set together"))
	}

	if c.DiscordWebhookURL != "" {
		if _, err := url.ParseRequestURI(c.DiscordWebhookURL); err != nil {
			errs = append(errs, fmt.Errorf("DISCORD_WEBHOOK_URL: %w", err))
		}
	}

	return errors.Join(errs...)
}

// WaitCeiling is how long a caller waits for an in-flight check before
// releasing its guard.
func (c *Config) WaitCeiling() time.Duration {
	return time.Duration(c.Updater.WaitAttempts) * c.Updater.WaitPoll
}

func (c *Config) SlogLevel() slog.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
