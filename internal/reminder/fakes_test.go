package reminder

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// fakeClock runs timers synchronously from Advance.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	was := !t.stopped && !t.fired
	t.stopped = true
	return was
}

func newFakeClock(now time.Time) *fakeClock { return &fakeClock{now: now} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d, firing due timers in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()
	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(c.now) {
			c.now = next.at
		}
		c.mu.Unlock()
		next.f()
	}
}

// Set jumps the clock without firing anything.
func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// pending counts timers that are armed and not fired.
func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

type memStore struct {
	mu   sync.Mutex
	recs map[string]Record

	insertErr error
	findErr   error
	listErr   error
}

func newMemStore() *memStore { return &memStore{recs: map[string]Record{}} }

func (m *memStore) Insert(_ context.Context, r Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return Record{}, m.insertErr
	}
	if _, ok := m.recs[r.ID]; ok {
		return Record{}, ErrDuplicateID
	}
	r.Version = 1
	m.recs[r.ID] = r
	return r, nil
}

func (m *memStore) Find(_ context.Context, id, owner string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return Record{}, m.findErr
	}
	r, ok := m.recs[id]
	if !ok || (owner != "" && r.OwnerID != owner) {
		return Record{}, ErrRecordNotFound
	}
	return r, nil
}

func (m *memStore) Update(_ context.Context, r Record) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.recs[r.ID]
	if !ok {
		return Record{}, ErrRecordNotFound
	}
	if cur.Version != r.Version {
		return Record{}, ErrVersionConflict
	}
	r.Version++
	m.recs[r.ID] = r
	return r, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[id]; !ok {
		return ErrRecordNotFound
	}
	delete(m.recs, id)
	return nil
}

func (m *memStore) List(context.Context) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]Record, 0, len(m.recs))
	for _, r := range m.recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) get(id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	return r, ok
}

func (m *memStore) put(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs[r.ID] = r
}

type delivery struct {
	destination string
	text        string
	actions     []Action
}

type fakeSink struct {
	mu         sync.Mutex
	deliveries []delivery
	err        error
	onDeliver  func(d delivery)
}

func (s *fakeSink) Deliver(_ context.Context, dest, text string, actions []Action) error {
	d := delivery{destination: dest, text: text, actions: actions}
	s.mu.Lock()
	s.deliveries = append(s.deliveries, d)
	hook, err := s.onDeliver, s.err
	s.mu.Unlock()
	if hook != nil {
		hook(d)
	}
	return err
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deliveries)
}

func (s *fakeSink) last() delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries[len(s.deliveries)-1]
}

var errBoom = errors.New("boom")
