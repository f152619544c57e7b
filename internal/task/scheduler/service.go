package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

const defaultTimeout = 5 * time.Minute

func New(cfg Config, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log.With(logx.String("comp", "scheduler")),
		bus: bus,
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) location() *time.Location {
	if s.cfg.Location != nil {
		return s.cfg.Location
	}
	return time.Local
}

// Add registers (or replaces, by name) a job. Invalid schedules are rejected before
// anything changes. Jobs added before Start are armed when Start runs.
func (s *Service) Add(name, schedule string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	if ps.Kind == SpecCron {
		if _, err := s.parser.Parse(ps.Cron); err != nil {
			return fmt.Errorf("invalid cron %q: %w", ps.Cron, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	d := &scheduleDef{name: name, spec: ps, timeout: timeout, job: job, running: &atomic.Bool{}, runs: &atomic.Uint64{}}
	s.defs = append(s.defs, d)
	if s.c != nil {
		s.armLocked(d)
	}
	return nil
}

// Remove drops a job by name. A run already in progress finishes.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	i := slices.IndexFunc(s.defs, func(d *scheduleDef) bool { return d.name == name })
	if i < 0 {
		return false
	}
	if s.c != nil && s.defs[i].entryID != 0 {
		s.c.Remove(s.defs[i].entryID)
	}
	s.defs = slices.Delete(s.defs, i, i+1)
	return true
}

func (s *Service) armLocked(d *scheduleDef) {
	job := cron.FuncJob(func() { s.run(d) })
	if d.spec.Kind == SpecInterval {
		sched, jitter := intervalWithSpread(d.spec.Every, time.Now().In(s.location()))
		d.startupSpread = jitter
		d.entryID = s.c.Schedule(sched, job)
	} else {
		d.startupSpread = 0
		id, err := s.c.AddJob(d.spec.Cron, job)
		if err != nil {
			// Add validated the expression already.
			s.log.Error("schedule register failed", logx.String("name", d.name), logx.String("spec", d.spec.Cron), logx.Err(err))
			return
		}
		d.entryID = id
	}
	s.log.Debug("schedule registered",
		logx.String("name", d.name),
		logx.String("spec", d.spec.String()),
		logx.Duration("timeout", s.timeoutFor(d)),
		logx.Duration("startup_spread", d.startupSpread),
	)
}

func (s *Service) timeoutFor(d *scheduleDef) time.Duration {
	switch {
	case d.timeout > 0:
		return d.timeout
	case s.cfg.DefaultTimeout > 0:
		return s.cfg.DefaultTimeout
	}
	return defaultTimeout
}

// Start arms every registered job. It is a no-op when disabled or already running.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return
	}
	s.runCtx, s.runCancel = context.WithCancel(context.WithoutCancel(ctx))
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(s.location()))
	for _, d := range s.defs {
		s.armLocked(d)
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.String("tz", s.location().String()), logx.Int("schedules", len(s.defs)))
}

// Stop halts triggering, cancels in-flight runs and waits for them until ctx is done.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.c
	s.c = nil
	cancel := s.runCancel
	for _, d := range s.defs {
		d.entryID = 0
	}
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	cancel()
	cronDone := c.Stop().Done()

	done := make(chan struct{})
	go func() {
		<-cronDone
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow triggers a job immediately, outside its schedule. Overlap rules still apply.
func (s *Service) RunNow(name string) bool {
	s.mu.Lock()
	i := slices.IndexFunc(s.defs, func(d *scheduleDef) bool { return d.name == name })
	var d *scheduleDef
	if i >= 0 {
		d = s.defs[i]
	}
	running := s.c != nil
	s.mu.Unlock()
	if d == nil || !running {
		return false
	}
	go s.run(d)
	return true
}

func (s *Service) run(d *scheduleDef) {
	if !d.running.CompareAndSwap(false, true) {
		s.log.Warn("previous run still in progress; skipping", logx.String("name", d.name))
		s.publish(EventTaskSkipped, TaskEvent{Name: d.name})
		return
	}
	defer d.running.Store(false)

	s.mu.Lock()
	if s.c == nil {
		s.mu.Unlock()
		return
	}
	parent := s.runCtx
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(parent, s.timeoutFor(d))
	defer cancel()

	start := time.Now()
	err := s.call(ctx, d)
	took := time.Since(start)
	d.runs.Add(1)

	item := HistoryItem{Name: d.name, Started: start, Duration: took}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task failed", logx.String("name", d.name), logx.Duration("took", took), logx.Err(err))
		s.publish(EventTaskFailed, TaskEvent{Name: d.name, Duration: took, Error: err.Error()})
	} else {
		s.log.Debug("task finished", logx.String("name", d.name), logx.Duration("took", took))
		s.publish(EventTaskFinished, TaskEvent{Name: d.name, Duration: took})
	}
	s.record(item)
}

func (s *Service) call(ctx context.Context, d *scheduleDef) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("panic in task", logx.String("name", d.name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return d.job(ctx)
}

func (s *Service) record(it HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, it)
	if len(s.history) > historySize {
		s.history = slices.Delete(s.history, 0, len(s.history)-historySize)
	}
}

func (s *Service) publish(typ string, data TaskEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: data})
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Enabled: s.cfg.Enabled, Timezone: s.location().String(), Running: s.c != nil}
	for _, d := range s.defs {
		it := ScheduleInfo{
			Name:          d.name,
			Spec:          d.spec.String(),
			Timeout:       s.timeoutFor(d),
			StartupSpread: d.startupSpread,
			Running:       d.running.Load(),
			Runs:          d.runs.Load(),
		}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		snap.Schedules = append(snap.Schedules, it)
	}
	s.mu.Unlock()

	s.hmu.Lock()
	snap.History = slices.Clone(s.history)
	s.hmu.Unlock()
	return snap
}
