package app

import (
	"strings"
	"time"

	"remindbot/internal/config"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/httpapi"
	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
)

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		Addr:        strings.TrimSpace(sc.Addr),
		Password:    sc.Password,
		DB:          sc.DB,
		KeyPrefix:   sc.KeyPrefix,
		BusyTimeout: busy,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notifier.Config{RetryMax: 3, DedupWindow: 10 * time.Minute}, nil
	}
	base, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	window, err := config.ParseDurationOrDefault("notifier.dedup_window", n.DedupWindow, 10*time.Minute)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Workers:     n.Workers,
		QueueSize:   n.QueueSize,
		RatePerSec:  n.RatePerSec,
		RetryMax:    n.RetryMax,
		RetryBase:   base,
		DedupWindow: window,
	}, nil
}

// reminderOptions maps the reminders section. Clock, parser, logger and bus are filled
// in by the caller.
func reminderOptions(cfg *config.Config) (reminder.Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return reminder.Options{}, err
	}
	fire, err := config.ParseDurationOrDefault("reminders.fire_timeout", cfg.Reminders.FireTimeout, config.DefaultFireTimeout)
	if err != nil {
		return reminder.Options{}, err
	}
	snooze, err := cfg.SnoozeOptions()
	if err != nil {
		return reminder.Options{}, err
	}
	return reminder.Options{
		Location:      loc,
		MaxPerOwner:   cfg.Reminders.MaxPerUser,
		AdvanceCap:    cfg.Reminders.AdvanceCap,
		FireTimeout:   fire,
		SnoozeOptions: snooze,
	}, nil
}

type housekeeping struct {
	sched     scheduler.Config
	sweep     string
	resync    string
	timeout   time.Duration
	retention time.Duration
}

func mapHousekeeping(cfg *config.Config) (housekeeping, error) {
	loc, err := cfg.Location()
	if err != nil {
		return housekeeping{}, err
	}
	hk := cfg.Housekeeping
	timeout, err := config.ParseDurationOrDefault("housekeeping.timeout", hk.Timeout, 2*time.Minute)
	if err != nil {
		return housekeeping{}, err
	}
	retention, err := config.ParseDurationOrDefault("reminders.retention", cfg.Reminders.Retention, config.DefaultRetention)
	if err != nil {
		return housekeeping{}, err
	}
	out := housekeeping{
		sched:     scheduler.Config{Enabled: hk.Enabled, Location: loc, DefaultTimeout: timeout},
		sweep:     strings.TrimSpace(hk.SweepSchedule),
		resync:    strings.TrimSpace(hk.ResyncSchedule),
		timeout:   timeout,
		retention: retention,
	}
	if out.sweep == "" {
		out.sweep = config.DefaultSweep
	}
	if out.resync == "" {
		out.resync = config.DefaultResync
	}
	for _, s := range []string{out.sweep, out.resync} {
		if _, err := scheduler.ParseSchedule(s); err != nil {
			return housekeeping{}, err
		}
	}
	return out, nil
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	addr := strings.TrimSpace(cfg.HTTP.Addr)
	if addr == "" {
		addr = config.DefaultHTTPAddr
	}
	return httpapi.Config{
		Enabled:       cfg.HTTP.Enabled,
		Addr:          addr,
		Token:         cfg.HTTP.Token,
		AllowInsecure: cfg.HTTP.AllowInsecure,
		Pprof:         cfg.HTTP.Pprof,
		ReadTimeout:   10 * time.Second,
		WriteTimeout:  60 * time.Second,
		IdleTimeout:   2 * time.Minute,
	}
}

// validateMapped rejects configs that pass Validate but fail component mapping.
func validateMapped(cfg *config.Config) error {
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := reminderOptions(cfg); err != nil {
		return err
	}
	_, err := mapHousekeeping(cfg)
	return err
}
