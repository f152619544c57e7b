package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"remindbot/internal/reminder"
	logx "remindbot/pkg/logx"

	"github.com/go-redis/redis/v8"
)

// redisStore keeps one JSON value per reminder under <prefix>reminder:<id> and the
// id index in the set <prefix>reminders. Writes run under WATCH so a concurrent
// writer aborts the transaction instead of overwriting.
type redisStore struct {
	client *redis.Client
	prefix string
	log    logx.Logger
}

const (
	defaultRedisPrefix = "remindbot:"
	auditStreamMaxLen  = 10000
)

func openRedis(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("storage.addr is required for redis driver")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	log.Info("redis store opened", logx.String("addr", addr), logx.String("prefix", prefix))
	return &redisStore{client: client, prefix: prefix, log: log}, nil
}

func (s *redisStore) recordKey(id string) string { return s.prefix + "reminder:" + id }
func (s *redisStore) indexKey() string         { return s.prefix + "reminders" }
func (s *redisStore) auditKey() string         { return s.prefix + "audit" }

func (s *redisStore) Close() error { return s.client.Close() }

// stringGetter is satisfied by both *redis.Client and *redis.Tx.
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *redisStore) Insert(ctx context.Context, r reminder.Record) (reminder.Record, error) {
	r.Version = 1
	data, err := json.Marshal(r)
	if err != nil {
		return reminder.Record{}, err
	}
	key := s.recordKey(r.ID)
	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return reminder.ErrDuplicateID
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, s.indexKey(), r.ID)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return reminder.Record{}, reminder.ErrDuplicateID
	}
	if err != nil {
		return reminder.Record{}, err
	}
	return r, nil
}

func (s *redisStore) Find(ctx context.Context, id, ownerID string) (reminder.Record, error) {
	r, err := s.get(ctx, s.client, id)
	if err != nil {
		return reminder.Record{}, err
	}
	if ownerID != "" && r.OwnerID != ownerID {
		return reminder.Record{}, reminder.ErrRecordNotFound
	}
	return r, nil
}

func (s *redisStore) get(ctx context.Context, c stringGetter, id string) (reminder.Record, error) {
	b, err := c.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return reminder.Record{}, reminder.ErrRecordNotFound
	}
	if err != nil {
		return reminder.Record{}, err
	}
	var r reminder.Record
	if err := json.Unmarshal(b, &r); err != nil {
		return reminder.Record{}, err
	}
	return r, nil
}

func (s *redisStore) Update(ctx context.Context, r reminder.Record) (reminder.Record, error) {
	key := s.recordKey(r.ID)
	var out reminder.Record
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := s.get(ctx, tx, r.ID)
		if err != nil {
			return err
		}
		if cur.Version != r.Version {
			return reminder.ErrVersionConflict
		}
		out = r
		out.Version = cur.Version + 1
		data, err := json.Marshal(out)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return reminder.Record{}, reminder.ErrVersionConflict
	}
	if err != nil {
		return reminder.Record{}, err
	}
	return out, nil
}

func (s *redisStore) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.recordKey(id))
		pipe.SRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return reminder.ErrRecordNotFound
	}
	return nil
}

func (s *redisStore) List(ctx context.Context) ([]reminder.Record, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([]reminder.Record, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Index entry without a value; drop it.
			s.client.SRem(ctx, s.indexKey(), ids[i])
			continue
		}
		var r reminder.Record
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			s.log.Warn("skip corrupt reminder", logx.String("id", ids[i]), logx.Err(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *redisStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.auditKey(),
		MaxLen: auditStreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"action": e.Action, "entry": string(data)},
	}).Err()
}
