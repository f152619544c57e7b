package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var sqliteSchema string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

const reminderColumns = `id, owner_id, destination, fire_at, title, recurrence, triggered, created_at, updated_at, version`

func openSQLite(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	path := pathOrDefault(cfg.Path)
	if filepath.Ext(path) == "" {
		path += ".db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Insert(ctx context.Context, r reminder.Record) (reminder.Record, error) {
	r.Version = 1
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reminders(`+reminderColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.OwnerID, r.Destination, fmtTime(r.FireAt), r.Title, string(r.Recurrence),
		boolInt(r.Triggered), fmtTime(r.CreatedAt), fmtTime(r.UpdatedAt), r.Version,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return reminder.Record{}, reminder.ErrDuplicateID
		}
		return reminder.Record{}, err
	}
	return r, nil
}

func (s *sqliteStore) Find(ctx context.Context, id, ownerID string) (reminder.Record, error) {
	q := `SELECT ` + reminderColumns + ` FROM reminders WHERE id = ?`
	args := []any{id}
	if ownerID != "" {
		q += ` AND owner_id = ?`
		args = append(args, ownerID)
	}
	r, err := scanSQLite(s.db.QueryRowContext(ctx, q, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.Record{}, reminder.ErrRecordNotFound
	}
	return r, err
}

func (s *sqliteStore) Update(ctx context.Context, r reminder.Record) (reminder.Record, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE reminders SET owner_id=?, destination=?, fire_at=?, title=?, recurrence=?, triggered=?,
		 created_at=?, updated_at=?, version=version+1
		 WHERE id=? AND version=?`,
		r.OwnerID, r.Destination, fmtTime(r.FireAt), r.Title, string(r.Recurrence), boolInt(r.Triggered),
		fmtTime(r.CreatedAt), fmtTime(r.UpdatedAt), r.ID, r.Version,
	)
	if err != nil {
		return reminder.Record{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return reminder.Record{}, err
	}
	if n == 0 {
		return reminder.Record{}, s.missOrConflict(ctx, r.ID)
	}
	r.Version++
	return r, nil
}

func (s *sqliteStore) missOrConflict(ctx context.Context, id string) error {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM reminders WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.ErrRecordNotFound
	}
	if err != nil {
		return err
	}
	return reminder.ErrVersionConflict
}

func (s *sqliteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reminders WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return reminder.ErrRecordNotFound
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context) ([]reminder.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reminderColumns+` FROM reminders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []reminder.Record
	for rows.Next() {
		r, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	var fireAt any
	if !e.FireAt.IsZero() {
		fireAt = fmtTime(e.FireAt)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, action, reminder_id, owner_id, destination, fire_at, detail)
		 VALUES(?,?,?,?,?,?,?)`,
		fmtTime(e.At), e.Action, e.ReminderID, nullStr(e.OwnerID), nullStr(e.Destination), fireAt, nullStr(e.Detail),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (reminder.Record, error) {
	var (
		r                       reminder.Record
		rec                     string
		triggered               int
		fireAt, created, update string
	)
	if err := row.Scan(&r.ID, &r.OwnerID, &r.Destination, &fireAt, &r.Title, &rec, &triggered, &created, &update, &r.Version); err != nil {
		return reminder.Record{}, err
	}
	r.Recurrence = reminder.Recurrence(rec)
	r.Triggered = triggered != 0
	var err error
	if r.FireAt, err = parseTime(fireAt); err != nil {
		return reminder.Record{}, fmt.Errorf("reminder %s fire_at: %w", r.ID, err)
	}
	if r.CreatedAt, err = parseTime(created); err != nil {
		return reminder.Record{}, fmt.Errorf("reminder %s created_at: %w", r.ID, err)
	}
	if r.UpdatedAt, err = parseTime(update); err != nil {
		return reminder.Record{}, fmt.Errorf("reminder %s updated_at: %w", r.ID, err)
	}
	return r, nil
}

func fmtTime(t time.Time) string { return t.Format(time.RFC3339Nano) }

func parseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
