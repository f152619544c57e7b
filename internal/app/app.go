package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"remindbot/internal/bot"
	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/httpapi"
	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	"remindbot/internal/timeparse"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
	"remindbot/pkg/systemd"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store     storage.Store
	reminders *reminder.Service
	notif     *notifier.Service
	adapter   kit.Adapter
	cmdm      *router.Manager
	sched     *scheduler.Service
	http      *httpapi.Service

	retention  atomic.Int64
	reconciled atomic.Bool
	updates    chan kit.Update
}

// New loads the config and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateMapped(cfg); err != nil {
		return nil, err
	}

	logSvc, root := logx.New(cfg.LogConfig(), nil)
	log := root.With(logx.String("comp", "app"))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, PollTimeout: pollTimeout}, root)
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(ctx, sc, root)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	notif := notifier.New(ncfg, bot.NewSender(ad), root, bus)

	opts, err := reminderOptions(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	opts.Parser = timeparse.New(opts.Location)
	opts.Logger = root
	opts.Bus = bus
	reminders := reminder.New(store, notif, opts)

	cmdm := router.New(root, ad)
	b := bot.New(reminders, root)
	cmdm.SetRegistry(b.Commands(), b.Callbacks())
	cmdm.SetAccess(cfg.Telegram.OwnerUserIDs, cfg.Telegram.AllowedUserIDs)

	hk, err := mapHousekeeping(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	sched := scheduler.New(hk.sched, root, bus)

	a := &App{
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       bus,
		store:     store,
		reminders: reminders,
		notif:     notif,
		adapter:   ad,
		cmdm:      cmdm,
		sched:     sched,
		http:      httpapi.New(mapHTTPConfig(cfg), root),
		updates:   make(chan kit.Update, 256),
	}
	a.retention.Store(int64(hk.retention))
	if err := a.registerHousekeeping(hk); err != nil {
		_ = store.Close()
		return nil, err
	}
	a.registerOps(ad)

	// Operator alerts go through the notifier so they share its rate limit.
	logSvc.SetAlertSender(func(ctx context.Context, text string) error {
		chat := a.cfgm.Get().Telegram.AlertChatID
		if chat == 0 {
			return nil
		}
		return notif.Notify(ctx, notifier.Message{Destination: strconv.FormatInt(chat, 10), Text: text})
	})

	log.Info("app built",
		logx.String("storage", sc.Driver),
		logx.String("tz", opts.Location.String()),
		logx.Int("max_per_user", opts.MaxPerOwner),
	)
	return a, nil
}

func (a *App) registerHousekeeping(hk housekeeping) error {
	if err := a.sched.Add("reminders.sweep", hk.sweep, hk.timeout, func(ctx context.Context) error {
		_, err := a.reminders.Sweep(ctx, time.Duration(a.retention.Load()))
		return err
	}); err != nil {
		return fmt.Errorf("housekeeping.sweep_schedule: %w", err)
	}
	if err := a.sched.Add("reminders.resync", hk.resync, hk.timeout, func(ctx context.Context) error {
		_, err := a.reminders.Resync(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("housekeeping.resync_schedule: %w", err)
	}
	return nil
}

func (a *App) registerOps(ad *telegram.Adapter) {
	a.http.SetHealth(func(context.Context) error {
		return a.healthy()
	})
	a.http.Register("reminders", func(context.Context) any { return a.reminders.Stats() })
	a.http.Register("notifier", func(context.Context) any { return a.notif.Stats() })
	a.http.Register("scheduler", func(context.Context) any { return a.sched.Snapshot() })
	a.http.Register("eventbus", func(context.Context) any { return map[string]uint64{"dropped": a.bus.Dropped()} })
	a.http.Register("supervisors", func(context.Context) any {
		out := map[string]rtsup.Snapshot{}
		for name, sup := range map[string]*rtsup.Supervisor{
			"app":      a.sup,
			"telegram": ad.Supervisor(),
			"router":   a.cmdm.Supervisor(),
			"notifier": a.notif.Supervisor(),
			"http":     a.http.Supervisor(),
		} {
			if sup != nil {
				out[name] = sup.Snapshot()
			}
		}
		return out
	})
}

// healthy fails until the first reconcile lands and after the supervisor is cancelled.
func (a *App) healthy() error {
	switch {
	case a.sup == nil:
		return errors.New("not started")
	case a.sup.Context().Err() != nil:
		return errors.New("stopping")
	case !a.reconciled.Load():
		return errors.New("reconcile pending")
	}
	return nil
}

// Done is closed when the app supervisor context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()

	// Transactional config reload: reject what the components could not apply.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateMapped(cfg) })

	a.notif.Start(run)
	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}

	// Reconcile before taking commands so restored timers exist before anyone can snooze.
	if err := a.reconcile(ctx); err != nil {
		a.log.Error("startup reconcile failed; retrying in background", logx.Err(err))
		a.sup.GoRestart("reminders.reconcile", a.reconcile, rtsup.WithRestartBackoff(2*time.Second, time.Minute))
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	if err := a.cmdm.SyncMenu(ctx); err != nil {
		a.log.Warn("command menu sync failed", logx.Err(err))
	}

	a.sched.Start(run)
	if err := a.http.Start(run); err != nil {
		a.log.Error("ops endpoint disabled", logx.Err(err))
	}

	a.startAudit()
	a.startReload()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.Go("systemd.watchdog", func(c context.Context) error {
		return systemd.Watchdog(c, a.log, func() bool { return a.sup.Context().Err() == nil })
	})

	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify READY failed", logx.Err(err))
	}
	a.log.Info("app started")
	return nil
}

func (a *App) reconcile(ctx context.Context) error {
	rep, err := a.reminders.Reconcile(ctx)
	if err != nil {
		return err
	}
	a.reconciled.Store(true)
	_, _ = systemd.Status(fmt.Sprintf("%d reminders, %d timers", rep.Total, a.reminders.Timers().Len()))
	return nil
}

func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
}

// Reload re-reads the config file now. Subscribers apply it like a watched change.
func (a *App) Reload(ctx context.Context) error {
	if _, err := a.cfgm.Reload(ctx); err != nil && !errors.Is(err, config.ErrUnchanged) {
		return err
	}
	return nil
}

// applyConfig pushes the hot-reloadable parts of next into the running components.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(next.LogConfig())
	a.cmdm.SetAccess(next.Telegram.OwnerUserIDs, next.Telegram.AllowedUserIDs)
	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	if hk, err := mapHousekeeping(next); err == nil {
		a.retention.Store(int64(hk.retention))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("some changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
}

// startAudit copies reminder lifecycle events into the store's audit log.
func (a *App) startAudit() {
	events, unsub := a.bus.Subscribe(256, "reminder.")
	log := a.log.With(logx.String("comp", "audit"))
	a.sup.Go("audit", func(c context.Context) error {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return nil
			case e, ok := <-events:
				if !ok {
					return nil
				}
				entry, ok := auditEntry(e)
				if !ok {
					continue
				}
				wctx, cancel := context.WithTimeout(c, 5*time.Second)
				if err := a.store.AppendAudit(wctx, entry); err != nil {
					log.Warn("audit append failed", logx.String("action", entry.Action), logx.String("reminder_id", entry.ReminderID), logx.Err(err))
				}
				cancel()
			}
		}
	})
}

func auditEntry(e eventbus.Event) (storage.AuditEntry, bool) {
	d, ok := e.Data.(reminder.EventData)
	if !ok {
		return storage.AuditEntry{}, false
	}
	return storage.AuditEntry{
		At:          e.Time,
		Action:      strings.TrimPrefix(e.Type, "reminder."),
		ReminderID:  d.ID,
		OwnerID:     d.OwnerID,
		Destination: d.Destination,
		FireAt:      d.FireAt,
		Detail:      d.Detail,
	}, true
}

// Stop shuts components down in dependency order, each step bounded so one component
// cannot stall the whole stop.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	if _, err := systemd.Stopping(); err != nil {
		a.log.Warn("sd_notify STOPPING failed", logx.Err(err))
	}

	// Cancel the run context first so background loops start unwinding immediately.
	a.sup.Cancel()

	a.step(ctx, "http", time.Second, a.http.Stop)
	a.step(ctx, "scheduler", 2*time.Second, a.sched.Stop)
	// Reminders before notifier and adapter: in-flight fires still deliver.
	a.step(ctx, "reminders", 5*time.Second, a.reminders.Stop)
	a.step(ctx, "notifier", 2*time.Second, a.notif.Stop)
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })
	// Finally, wait for supervised goroutines (config watch/reload, dispatcher, audit).
	a.step(ctx, "supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	return a.logs.Close()
}

func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	// Respect the caller's deadline; never extend it.
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped: deadline reached", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		took := time.Since(start)
		if took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		// Leak signal: observe when/if the step eventually finishes.
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", time.Since(start)), logx.Err(err))
		}()
	}
}
