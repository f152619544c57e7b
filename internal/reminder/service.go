package reminder

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"remindbot/internal/eventbus"
	"remindbot/pkg/logx"
)

const (
	defaultFireTimeout = 30 * time.Second
	maxWriteAttempts   = 3
)

// Options configures a Service. Zero values fall back to defaults.
type Options struct {
	Location      *time.Location
	Clock         Clock
	Parser        TimeParser
	Logger        logx.Logger
	Bus           eventbus.Bus
	MaxPerOwner   int
	AdvanceCap    int
	FireTimeout   time.Duration
	SnoozeOptions []time.Duration
	NewID         func() string
}

// ReconcileReport summarises one Reconcile pass.
type ReconcileReport struct {
	At        time.Time     `json:"at"`
	Total     int           `json:"total"`
	Scheduled int           `json:"scheduled"`
	Advanced  int           `json:"advanced"`
	Expired   int           `json:"expired"`
	Failed    int           `json:"failed"`
	Took      time.Duration `json:"took"`
}

// Stats is a point-in-time view used by the ops endpoint.
type Stats struct {
	LiveTimers    int              `json:"live_timers"`
	InFlightFires int64            `json:"in_flight_fires"`
	Fired         uint64           `json:"fired"`
	LastReconcile *ReconcileReport `json:"last_reconcile,omitempty"`
}

// Service is the reminder scheduler. It owns the timer registry: every live timer was
// installed by it and Stop cancels them all.
type Service struct {
	store  Store
	sink   Sink
	parser TimeParser
	clock  Clock
	loc    *time.Location
	log    logx.Logger
	bus    eventbus.Bus
	newID  func() string
	timers *Registry

	maxPerOwner int
	advanceCap  int
	fireTimeout time.Duration
	snooze      []time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
	running  atomic.Int64
	fired    atomic.Uint64
	last     atomic.Pointer[ReconcileReport]
}

func New(store Store, sink Sink, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Parser == nil {
		panic("reminder: Options.Parser is required")
	}
	if opts.Logger.IsZero() {
		opts.Logger = logx.Nop()
	}
	if opts.NewID == nil {
		opts.NewID = newID
	}
	if opts.AdvanceCap <= 0 {
		opts.AdvanceCap = DefaultAdvanceCap
	}
	if opts.FireTimeout <= 0 {
		opts.FireTimeout = defaultFireTimeout
	}
	if len(opts.SnoozeOptions) == 0 {
		opts.SnoozeOptions = DefaultSnoozeOptions
	}
	return &Service{
		store:       zonedStore{Store: store, loc: opts.Location},
		sink:        sink,
		parser:      opts.Parser,
		clock:       opts.Clock,
		loc:         opts.Location,
		log:         opts.Logger.With(logx.String("comp", "reminder")),
		bus:         opts.Bus,
		newID:       opts.NewID,
		timers:      NewRegistry(),
		maxPerOwner: opts.MaxPerOwner,
		advanceCap:  opts.AdvanceCap,
		fireTimeout: opts.FireTimeout,
		snooze:      append([]time.Duration(nil), opts.SnoozeOptions...),
	}
}

// newID returns a time-ordered UUIDv7, falling back to v4 if the clock source fails.
func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func (s *Service) Location() *time.Location { return s.loc }

func (s *Service) Timers() *Registry { return s.timers }

func (s *Service) SnoozeOptions() []time.Duration {
	return append([]time.Duration(nil), s.snooze...)
}

func (s *Service) now() time.Time { return s.clock.Now().In(s.loc) }

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Create parses req.RawTime, persists a new pending record and arms its timer.
//
// A resolved time that is not after "now" is pushed one day forward ("9am" asked at
// 9:30 means tomorrow); if it is still not in the future the request fails with
// ErrTimeInPast.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Record, error) {
	if s.isClosed() {
		return Record{}, ErrStopped
	}
	if !req.Recurrence.Valid() {
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidRecurrence, string(req.Recurrence))
	}

	ref := s.now()
	at, err := s.parser.Parse(req.RawTime, ref)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrUnparsableTime, err)
	}
	if !at.After(ref) {
		at = at.AddDate(0, 0, 1)
	}
	if !at.After(s.now()) {
		return Record{}, ErrTimeInPast
	}

	if s.maxPerOwner > 0 {
		pending, err := s.List(ctx, req.OwnerID)
		if err != nil {
			return Record{}, err
		}
		n := 0
		for _, r := range pending {
			if !r.Terminal() {
				n++
			}
		}
		if n >= s.maxPerOwner {
			return Record{}, fmt.Errorf("%w (limit %d)", ErrTooMany, s.maxPerOwner)
		}
	}

	now := s.now()
	rec := Record{
		ID:          s.newID(),
		OwnerID:     req.OwnerID,
		Destination: req.Destination,
		FireAt:      at.In(s.loc),
		Title:       req.Title,
		Recurrence:  req.Recurrence,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	stored, err := s.store.Insert(ctx, rec)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	s.schedule(stored)
	s.publish(EventCreated, stored, "")
	s.log.Info("reminder created",
		logx.String("reminder_id", stored.ID),
		logx.String("owner", stored.OwnerID),
		logx.Time("fire_at", stored.FireAt),
		logx.String("recurrence", stored.Recurrence.String()),
	)
	return stored, nil
}

// schedule arms the timer for r. Records due at or before now are left alone.
func (s *Service) schedule(r Record) bool {
	delay := r.FireAt.Sub(s.clock.Now())
	if delay <= 0 || s.isClosed() {
		return false
	}
	s.timers.Install(r.ID, func(token uint64) Handle {
		return s.clock.AfterFunc(delay, func() { s.onTimer(r, token) })
	})
	return true
}

func (s *Service) onTimer(r Record, token uint64) {
	if !s.timers.Claim(r.ID, token) {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	s.running.Add(1)
	defer s.running.Add(-1)

	defer func() {
		if rec := recover(); rec != nil {
			s.log.Error("panic in fire handler",
				logx.String("reminder_id", r.ID),
				logx.Any("panic", rec),
				logx.Stack(string(debug.Stack())),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.fireTimeout)
	defer cancel()
	s.fire(ctx, r)
}

// fire delivers r, then commits the post-fire state: the next occurrence for a recurring
// reminder, triggered otherwise. Nothing is written when the stored record moved on since
// r was scheduled.
func (s *Service) fire(ctx context.Context, r Record) {
	log := s.log.With(logx.String("reminder_id", r.ID))
	s.fired.Add(1)

	if err := s.sink.Deliver(ctx, r.Destination, FireText(r), FireActions(r.ID, s.snooze)); err != nil {
		log.Warn("reminder delivery failed", logx.Err(err))
	} else {
		log.Info("reminder fired", logx.String("destination", r.Destination))
	}
	s.publish(EventFired, r, "")

	cur, err := s.store.Find(ctx, r.ID, "")
	switch {
	case errors.Is(err, ErrRecordNotFound):
		log.Debug("fired reminder was deleted")
		return
	case err != nil:
		log.Error("re-fetch after fire failed; leaving record as is", logx.Err(err))
		return
	}
	if cur.Version != r.Version {
		log.Info("reminder changed while firing; keeping the newer state",
			logx.Int64("fired_version", r.Version),
			logx.Int64("stored_version", cur.Version),
		)
		return
	}

	if cur.Recurrence != None {
		if next, ok := Advance(cur.FireAt, cur.Recurrence, s.clock.Now(), s.advanceCap); ok {
			cur.FireAt = next.In(s.loc)
			cur.Triggered = false
			if stored, ok := s.commitFire(ctx, log, cur); ok {
				s.schedule(stored)
				s.publish(EventAdvanced, stored, "")
			}
			return
		}
		log.Info("recurrence exhausted", logx.String("recurrence", cur.Recurrence.String()))
	}
	cur.Triggered = true
	s.commitFire(ctx, log, cur)
}

func (s *Service) commitFire(ctx context.Context, log logx.Logger, r Record) (Record, bool) {
	r.UpdatedAt = s.now()
	stored, err := s.store.Update(ctx, r)
	switch {
	case errors.Is(err, ErrVersionConflict), errors.Is(err, ErrRecordNotFound):
		log.Info("reminder changed while firing; post-fire write dropped", logx.Err(err))
		return Record{}, false
	case err != nil:
		log.Error("post-fire write failed", logx.Err(err))
		return Record{}, false
	}
	return stored, true
}

// Snooze moves the reminder to now+d, clears triggered and re-arms its timer.
func (s *Service) Snooze(ctx context.Context, id, ownerID string, d time.Duration) (Record, error) {
	if s.isClosed() {
		return Record{}, ErrStopped
	}
	if d <= 0 {
		return Record{}, ErrInvalidDuration
	}
	for attempt := 1; ; attempt++ {
		cur, err := s.store.Find(ctx, id, ownerID)
		if err != nil {
			return Record{}, s.lookupErr(err)
		}
		now := s.now()
		cur.FireAt = now.Add(d)
		cur.Triggered = false
		cur.UpdatedAt = now

		stored, err := s.store.Update(ctx, cur)
		if errors.Is(err, ErrVersionConflict) && attempt < maxWriteAttempts {
			s.log.Debug("snooze conflict; retrying", logx.String("reminder_id", id), logx.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return Record{}, s.lookupErr(err)
		}
		s.schedule(stored)
		s.publish(EventSnoozed, stored, d.String())
		s.log.Info("reminder snoozed",
			logx.String("reminder_id", id),
			logx.Duration("by", d),
			logx.Time("fire_at", stored.FireAt),
		)
		return stored, nil
	}
}

// Cancel stops the reminder's timer and deletes the record. Cancelling an unknown id, or
// one owned by someone else, returns ErrNotFound.
func (s *Service) Cancel(ctx context.Context, id, ownerID string) error {
	cur, err := s.store.Find(ctx, id, ownerID)
	if err != nil {
		return s.lookupErr(err)
	}
	s.timers.Cancel(id)
	if err := s.store.Delete(ctx, id); err != nil {
		return s.lookupErr(err)
	}
	s.publish(EventCancelled, cur, "")
	s.log.Info("reminder cancelled", logx.String("reminder_id", id), logx.String("owner", ownerID))
	return nil
}

func (s *Service) lookupErr(err error) error {
	if errors.Is(err, ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// Get returns one record, scoped to ownerID when it is non-empty.
func (s *Service) Get(ctx context.Context, id, ownerID string) (Record, error) {
	r, err := s.store.Find(ctx, id, ownerID)
	if err != nil {
		return Record{}, s.lookupErr(err)
	}
	return r, nil
}

// List returns the owner's records ordered by FireAt. An empty ownerID lists everything.
func (s *Service) List(ctx context.Context, ownerID string) ([]Record, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	out := all[:0]
	for _, r := range all {
		if ownerID == "" || r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FireAt.Equal(out[j].FireAt) {
			return out[i].FireAt.Before(out[j].FireAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Reconcile rebuilds the timers from the store. Future records are armed; elapsed
// recurring records skip to their next future occurrence; everything else that elapsed is
// deleted. Failures on single records are counted and logged, never fatal.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	start := s.clock.Now()
	rep := ReconcileReport{At: start.In(s.loc)}

	recs, err := s.store.List(ctx)
	if err != nil {
		return rep, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	rep.Total = len(recs)

	for _, r := range recs {
		log := s.log.With(logx.String("reminder_id", r.ID))
		switch {
		case r.FireAt.After(start):
			if s.schedule(r) {
				rep.Scheduled++
			}
		case r.Recurrence != None:
			next, ok := Advance(r.FireAt, r.Recurrence, start, s.advanceCap)
			if !ok {
				s.expire(ctx, log, r, &rep)
				continue
			}
			r.FireAt = next.In(s.loc)
			r.Triggered = false
			r.UpdatedAt = s.now()
			stored, err := s.store.Update(ctx, r)
			if err != nil {
				rep.Failed++
				log.Warn("reconcile: advance failed", logx.Err(err))
				continue
			}
			s.schedule(stored)
			s.publish(EventAdvanced, stored, "reconcile")
			rep.Advanced++
		default:
			s.expire(ctx, log, r, &rep)
		}
	}

	rep.Took = s.clock.Now().Sub(start)
	s.last.Store(&rep)
	s.log.Info("reconcile done",
		logx.Int("total", rep.Total),
		logx.Int("scheduled", rep.Scheduled),
		logx.Int("advanced", rep.Advanced),
		logx.Int("expired", rep.Expired),
		logx.Int("failed", rep.Failed),
		logx.Duration("took", rep.Took),
	)
	return rep, nil
}

func (s *Service) expire(ctx context.Context, log logx.Logger, r Record, rep *ReconcileReport) {
	if err := s.store.Delete(ctx, r.ID); err != nil && !errors.Is(err, ErrRecordNotFound) {
		rep.Failed++
		log.Warn("reconcile: delete failed", logx.Err(err))
		return
	}
	s.timers.Cancel(r.ID)
	s.publish(EventExpired, r, "")
	rep.Expired++
}

// Sweep deletes terminal records whose FireAt is older than retention.
func (s *Service) Sweep(ctx context.Context, retention time.Duration) (int, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	cutoff := s.clock.Now().Add(-retention)
	n := 0
	for _, r := range recs {
		if !r.Terminal() || !r.FireAt.Before(cutoff) {
			continue
		}
		if err := s.store.Delete(ctx, r.ID); err != nil && !errors.Is(err, ErrRecordNotFound) {
			s.log.Warn("sweep: delete failed", logx.String("reminder_id", r.ID), logx.Err(err))
			continue
		}
		s.publish(EventExpired, r, "sweep")
		n++
	}
	if n > 0 {
		s.log.Info("sweep removed terminal reminders", logx.Int("count", n))
	}
	return n, nil
}

// Resync arms pending future records that have no live timer, such as those left behind
// by a failed post-fire re-fetch. Existing timers are never replaced.
func (s *Service) Resync(ctx context.Context) (int, error) {
	recs, err := s.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	now := s.clock.Now()
	n := 0
	for _, r := range recs {
		if r.Triggered || !r.FireAt.After(now) || s.isClosed() {
			continue
		}
		delay := r.FireAt.Sub(now)
		if s.timers.InstallIfAbsent(r.ID, func(token uint64) Handle {
			return s.clock.AfterFunc(delay, func() { s.onTimer(r, token) })
		}) {
			n++
		}
	}
	if n > 0 {
		s.log.Info("resync armed missing timers", logx.Int("count", n))
	}
	return n, nil
}

func (s *Service) Stats() Stats {
	return Stats{
		LiveTimers:    s.timers.Len(),
		InFlightFires: s.running.Load(),
		Fired:         s.fired.Load(),
		LastReconcile: s.last.Load(),
	}
}

// Stop cancels every live timer and waits for fire handlers already running.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	n := s.timers.CancelAll()
	s.log.Info("reminder timers cancelled", logx.Int("count", n))

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
