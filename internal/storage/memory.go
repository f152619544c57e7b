package storage

import (
	"context"
	"sort"
	"sync"

	"remindbot/internal/reminder"
)

// recordSet holds reminders by id and implements the version check shared by the
// memory and file drivers. Callers serialize access.
type recordSet map[string]reminder.Record

func (m recordSet) insert(r reminder.Record) (reminder.Record, error) {
	if _, ok := m[r.ID]; ok {
		return reminder.Record{}, reminder.ErrDuplicateID
	}
	r.Version = 1
	m[r.ID] = r
	return r, nil
}

func (m recordSet) find(id, ownerID string) (reminder.Record, error) {
	r, ok := m[id]
	if !ok || (ownerID != "" && r.OwnerID != ownerID) {
		return reminder.Record{}, reminder.ErrRecordNotFound
	}
	return r, nil
}

func (m recordSet) update(r reminder.Record) (reminder.Record, error) {
	cur, ok := m[r.ID]
	if !ok {
		return reminder.Record{}, reminder.ErrRecordNotFound
	}
	if cur.Version != r.Version {
		return reminder.Record{}, reminder.ErrVersionConflict
	}
	r.Version = cur.Version + 1
	m[r.ID] = r
	return r, nil
}

func (m recordSet) remove(id string) error {
	if _, ok := m[id]; !ok {
		return reminder.ErrRecordNotFound
	}
	delete(m, id)
	return nil
}

func (m recordSet) list() []reminder.Record {
	out := make([]reminder.Record, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// memoryStore keeps everything in process memory. Audit entries are retained
// up to a bound so tests can inspect them.
type memoryStore struct {
	mu      sync.Mutex
	records recordSet
	audit   []AuditEntry
	closed  bool
}

const memoryAuditCap = 1024

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{records: recordSet{}}
}

func (s *memoryStore) Insert(ctx context.Context, r reminder.Record) (reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return reminder.Record{}, ErrClosed
	}
	return s.records.insert(r)
}

func (s *memoryStore) Find(ctx context.Context, id, ownerID string) (reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return reminder.Record{}, ErrClosed
	}
	return s.records.find(id, ownerID)
}

func (s *memoryStore) Update(ctx context.Context, r reminder.Record) (reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return reminder.Record{}, ErrClosed
	}
	return s.records.update(r)
}

func (s *memoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.records.remove(id)
}

func (s *memoryStore) List(ctx context.Context) ([]reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.records.list(), nil
}

func (s *memoryStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if len(s.audit) >= memoryAuditCap {
		s.audit = append(s.audit[:0], s.audit[len(s.audit)-memoryAuditCap/2:]...)
	}
	s.audit = append(s.audit, e)
	return nil
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
