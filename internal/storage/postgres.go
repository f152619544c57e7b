package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgUniqueViolation = "23505"

const postgresSchema = `
CREATE TABLE IF NOT EXISTS reminders (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	destination TEXT NOT NULL,
	fire_at     TIMESTAMPTZ NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	recurrence  TEXT NOT NULL DEFAULT '',
	triggered   BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	version     BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS reminders_owner_idx ON reminders(owner_id);
CREATE TABLE IF NOT EXISTS reminder_audit (
	id          BIGSERIAL PRIMARY KEY,
	at          TIMESTAMPTZ NOT NULL,
	action      TEXT NOT NULL,
	reminder_id TEXT NOT NULL,
	owner_id    TEXT,
	destination TEXT,
	fire_at     TIMESTAMPTZ,
	detail      TEXT
);`

type postgresStore struct {
	db  *pgxpool.Pool
	log logx.Logger
}

func openPostgres(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("storage.dsn is required for postgres driver")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, err
	}
	log.Info("postgres store opened")
	return &postgresStore{db: pool, log: log}, nil
}

func (s *postgresStore) Close() error {
	s.db.Close()
	return nil
}

func (s *postgresStore) Insert(ctx context.Context, r reminder.Record) (reminder.Record, error) {
	r.Version = 1
	_, err := s.db.Exec(ctx,
		`INSERT INTO reminders (`+reminderColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		r.ID, r.OwnerID, r.Destination, r.FireAt, r.Title, string(r.Recurrence),
		r.Triggered, r.CreatedAt, r.UpdatedAt, r.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return reminder.Record{}, reminder.ErrDuplicateID
		}
		return reminder.Record{}, err
	}
	return r, nil
}

func (s *postgresStore) Find(ctx context.Context, id, ownerID string) (reminder.Record, error) {
	q := `SELECT ` + reminderColumns + ` FROM reminders WHERE id = $1`
	args := []any{id}
	if ownerID != "" {
		q += ` AND owner_id = $2`
		args = append(args, ownerID)
	}
	r, err := scanPostgres(s.db.QueryRow(ctx, q, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return reminder.Record{}, reminder.ErrRecordNotFound
	}
	return r, err
}

func (s *postgresStore) Update(ctx context.Context, r reminder.Record) (reminder.Record, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE reminders SET owner_id = $1, destination = $2, fire_at = $3, title = $4, recurrence = $5,
		 triggered = $6, created_at = $7, updated_at = $8, version = version + 1
		 WHERE id = $9 AND version = $10`,
		r.OwnerID, r.Destination, r.FireAt, r.Title, string(r.Recurrence), r.Triggered,
		r.CreatedAt, r.UpdatedAt, r.ID, r.Version,
	)
	if err != nil {
		return reminder.Record{}, err
	}
	if tag.RowsAffected() == 0 {
		var one int
		err := s.db.QueryRow(ctx, `SELECT 1 FROM reminders WHERE id = $1`, r.ID).Scan(&one)
		if errors.Is(err, pgx.ErrNoRows) {
			return reminder.Record{}, reminder.ErrRecordNotFound
		}
		if err != nil {
			return reminder.Record{}, err
		}
		return reminder.Record{}, reminder.ErrVersionConflict
	}
	r.Version++
	return r, nil
}

func (s *postgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return reminder.ErrRecordNotFound
	}
	return nil
}

func (s *postgresStore) List(ctx context.Context) ([]reminder.Record, error) {
	rows, err := s.db.Query(ctx, `SELECT `+reminderColumns+` FROM reminders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]reminder.Record, 0, 16)
	for rows.Next() {
		r, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (s *postgresStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	var fireAt *time.Time
	if !e.FireAt.IsZero() {
		fireAt = &e.FireAt
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO reminder_audit (at, action, reminder_id, owner_id, destination, fire_at, detail)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.At, e.Action, e.ReminderID, nullStr(e.OwnerID), nullStr(e.Destination), fireAt, nullStr(e.Detail),
	)
	return err
}

func scanPostgres(row pgx.Row) (reminder.Record, error) {
	var (
		r   reminder.Record
		rec string
	)
	err := row.Scan(&r.ID, &r.OwnerID, &r.Destination, &r.FireAt, &r.Title, &rec,
		&r.Triggered, &r.CreatedAt, &r.UpdatedAt, &r.Version)
	if err != nil {
		return reminder.Record{}, err
	}
	r.Recurrence = reminder.Recurrence(rec)
	return r, nil
}
