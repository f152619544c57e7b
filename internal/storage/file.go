package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.audit.jsonl             (append-only JSON Lines)
//   - <prefix>.reminders.snapshot.json (periodic snapshot)
//   - <prefix>.reminders.journal.jsonl (append-only journal)
//
// The journal is compacted into the snapshot every compactEvery writes and on Close.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditFile *os.File

	snapshotPath string
	journalFile  *os.File
	records      recordSet

	writes int
}

const compactEvery = 1000

const (
	opPut = "put"
	opDel = "del"
)

type journalRecord struct {
	Op     string           `json:"op"`
	ID     string           `json:"id"`
	Record *reminder.Record `json:"record,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := pathOrDefault(cfg.Path)

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	auditPath := prefix + ".audit.jsonl"
	snapPath := prefix + ".reminders.snapshot.json"
	journalPath := prefix + ".reminders.journal.jsonl"

	records := recordSet{}
	if err := loadSnapshot(snapPath, records); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	skipped, err := replayJournal(journalPath, records)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if skipped > 0 {
		log.Warn("skipped unreadable journal lines", logx.Int("lines", skipped))
	}

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}

	log.Info("file store opened", logx.String("prefix", prefix), logx.Int("records", len(records)))
	return &fileStore{
		log:          log,
		auditFile:    af,
		snapshotPath: snapPath,
		journalFile:  jf,
		records:      records,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.journalFile != nil {
		if err := s.compactLocked(); err != nil {
			errs = append(errs, err)
		}
		errs = append(errs, s.journalFile.Close())
		s.journalFile = nil
	}
	if s.auditFile != nil {
		errs = append(errs, s.auditFile.Close())
		s.auditFile = nil
	}
	return errors.Join(errs...)
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return ErrClosed
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Insert(ctx context.Context, r reminder.Record) (reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return reminder.Record{}, ErrClosed
	}
	out, err := s.records.insert(r)
	if err != nil {
		return reminder.Record{}, err
	}
	if err := s.appendLocked(journalRecord{Op: opPut, ID: out.ID, Record: &out}); err != nil {
		delete(s.records, out.ID)
		return reminder.Record{}, err
	}
	return out, nil
}

func (s *fileStore) Find(ctx context.Context, id, ownerID string) (reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return reminder.Record{}, ErrClosed
	}
	return s.records.find(id, ownerID)
}

func (s *fileStore) Update(ctx context.Context, r reminder.Record) (reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return reminder.Record{}, ErrClosed
	}
	prev := s.records[r.ID]
	out, err := s.records.update(r)
	if err != nil {
		return reminder.Record{}, err
	}
	if err := s.appendLocked(journalRecord{Op: opPut, ID: out.ID, Record: &out}); err != nil {
		s.records[prev.ID] = prev
		return reminder.Record{}, err
	}
	return out, nil
}

func (s *fileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return ErrClosed
	}
	prev, ok := s.records[id]
	if err := s.records.remove(id); err != nil {
		return err
	}
	if err := s.appendLocked(journalRecord{Op: opDel, ID: id}); err != nil {
		if ok {
			s.records[id] = prev
		}
		return err
	}
	return nil
}

func (s *fileStore) List(ctx context.Context) ([]reminder.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return nil, ErrClosed
	}
	return s.records.list(), nil
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	if err := json.NewEncoder(s.journalFile).Encode(rec); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Warn("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.records.list()); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func loadSnapshot(path string, out recordSet) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var list []reminder.Record
	if err := json.NewDecoder(f).Decode(&list); err != nil {
		return err
	}
	for _, r := range list {
		out[r.ID] = r
	}
	return nil
}

// replayJournal applies journal lines on top of the snapshot. A torn trailing line
// from a crash is skipped and counted.
func replayJournal(path string, out recordSet) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	skipped := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		var jr journalRecord
		if err := json.Unmarshal(sc.Bytes(), &jr); err != nil || jr.ID == "" {
			skipped++
			continue
		}
		switch jr.Op {
		case opPut:
			if jr.Record == nil {
				skipped++
				continue
			}
			out[jr.ID] = *jr.Record
		case opDel:
			delete(out, jr.ID)
		default:
			skipped++
		}
	}
	return skipped, sc.Err()
}
