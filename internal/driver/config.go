package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

// Config holds the settings of a driver run.
type Config struct {
	// Timeout bounds each test, from spawn until its result is read.
	Timeout time.Duration `mapstructure:"timeout"`
	// Parallel is the number of child processes run at once.
	Parallel int `mapstructure:"parallel"`
	// MailboxDir is where result channels are created, one subdirectory per run.
	MailboxDir string `mapstructure:"mailbox_dir"`
	// HistoryDir holds the run history. Empty keeps history in memory for the run only.
	HistoryDir string `mapstructure:"history_dir"`
	// PollInitial and PollMax bound the backoff between polls of a result channel.
	PollInitial time.Duration `mapstructure:"poll_initial"`
	PollMax     time.Duration `mapstructure:"poll_max"`
	// FailedFirst runs tests that failed last time before the others.
	FailedFirst bool `mapstructure:"failed_first"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Timeout:     defaultTimeout,
		Parallel:    runtime.GOMAXPROCS(0),
		MailboxDir:  filepath.Join(os.TempDir(), "forktest-mailboxes"),
		PollInitial: defaultPollInitial,
		PollMax:     defaultPollMax,
		FailedFirst: true,
	}
}

// LoadConfig reads settings from FORKTEST_* environment variables and, when path is not empty,
// from the config file at path. Unset values keep their defaults.
func LoadConfig(path string) (Config, error) {
	defaults := DefaultConfig()
	v := viper.New()

	v.SetEnvPrefix("FORKTEST")
	v.AutomaticEnv()

	v.SetDefault("timeout", defaults.Timeout)
	v.SetDefault("parallel", defaults.Parallel)
	v.SetDefault("mailbox_dir", defaults.MailboxDir)
	v.SetDefault("history_dir", defaults.HistoryDir)
	v.SetDefault("poll_initial", defaults.PollInitial)
	v.SetDefault("poll_max", defaults.PollMax)
	v.SetDefault("failed_first", defaults.FailedFirst)

	if path != "" {
		v.SetConfigFile(path)

		err := v.ReadInConfig()
		if err != nil {
			return Config{}, fmt.Errorf("%w: reading %s: %w", ErrConfig, path, err)
		}
	}

	var config Config

	err := v.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}

	return config, config.Validate()
}

// Validate checks that the settings can drive a run.
func (c Config) Validate() error {
	switch {
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrConfig, c.Timeout)
	case c.Parallel < 1:
		return fmt.Errorf("%w: parallel must be at least 1, got %d", ErrConfig, c.Parallel)
	case c.MailboxDir == "":
		return fmt.Errorf("%w: mailbox_dir is required", ErrConfig)
	case c.PollInitial <= 0 || c.PollMax < c.PollInitial:
		return fmt.Errorf("%w: poll interval must satisfy 0 < poll_initial <= poll_max, got %s and %s",
			ErrConfig, c.PollInitial, c.PollMax)
	}

	return nil
}

// Exported variables.
var (
	ErrConfig = errors.New("invalid driver configuration")
)

const (
	defaultTimeout     = 10 * time.Second
	defaultPollInitial = 5 * time.Millisecond
	defaultPollMax     = 250 * time.Millisecond
)
