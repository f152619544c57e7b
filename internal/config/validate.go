package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"remindbot/pkg/logx"
)

const (
	DefaultTimezone    = "UTC"
	DefaultRetention   = 7 * 24 * time.Hour
	DefaultFireTimeout = 30 * time.Second
	DefaultSweep       = "@every 1h"
	DefaultResync      = "@every 10m"
	DefaultHTTPAddr    = "127.0.0.1:8089"
)

// Validate checks values that can be checked without side effects.
func Validate(cfg *Config) error {
	var errs []error
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, fmt.Errorf("telegram.token is required (or set %s)", EnvTelegramToken))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if !logx.ValidLevel(cfg.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if _, err := cfg.Location(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Reminders.MaxPerUser < 0 {
		errs = append(errs, errors.New("reminders.max_per_user must be >= 0"))
	}
	if cfg.Reminders.AdvanceCap < 0 {
		errs = append(errs, errors.New("reminders.advance_cap must be >= 0"))
	}
	for _, f := range []struct{ path, raw string }{
		{"reminders.fire_timeout", cfg.Reminders.FireTimeout},
		{"reminders.retention", cfg.Reminders.Retention},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"housekeeping.timeout", cfg.Housekeeping.Timeout},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := cfg.SnoozeOptions(); err != nil {
		errs = append(errs, err)
	}
	if n := cfg.Notifier; n != nil {
		if n.Workers < 0 || n.QueueSize < 0 || n.RatePerSec < 0 || n.RetryMax < 0 {
			errs = append(errs, errors.New("notifier: numeric values must be >= 0"))
		}
		for _, f := range []struct{ path, raw string }{
			{"notifier.retry_base", n.RetryBase},
			{"notifier.dedup_window", n.DedupWindow},
		} {
			if _, err := ParseDurationField(f.path, f.raw); err != nil {
				errs = append(errs, err)
			}
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "", "file", "sqlite", "memory":
	case "postgres", "postgresql", "pg":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for postgres (or set %s)", EnvStorageDSN))
		}
	case "redis":
		if strings.TrimSpace(cfg.Storage.Addr) == "" {
			errs = append(errs, fmt.Errorf("storage.addr is required for redis (or set %s)", EnvRedisAddr))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	return errors.Join(errs...)
}

// Location resolves reminders.timezone.
func (c *Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Reminders.Timezone)
	if name == "" {
		name = DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("reminders.timezone: %w", err)
	}
	return loc, nil
}

// SnoozeOptions resolves reminders.snooze_options; nil means the built-in set.
func (c *Config) SnoozeOptions() ([]time.Duration, error) {
	if len(c.Reminders.SnoozeOptions) == 0 {
		return nil, nil
	}
	out := make([]time.Duration, 0, len(c.Reminders.SnoozeOptions))
	for i, raw := range c.Reminders.SnoozeOptions {
		d, err := ParseDurationField(fmt.Sprintf("reminders.snooze_options[%d]", i), raw)
		if err != nil {
			return nil, err
		}
		if d <= 0 {
			return nil, fmt.Errorf("reminders.snooze_options[%d]: must be > 0", i)
		}
		out = append(out, d)
	}
	return out, nil
}

// LogConfig maps the logging section onto logx.
func (c *Config) LogConfig() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
		Alerts: logx.AlertConfig{
			Enabled:    c.Logging.Alerts.Enabled && c.Telegram.AlertChatID != 0,
			MinLevel:   c.Logging.Alerts.MinLevel,
			RatePerSec: c.Logging.Alerts.RatePerSec,
		},
	}
}
