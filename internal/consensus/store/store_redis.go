package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"veritas/internal/consensus/models"
	"veritas/pkg/domain"
	"veritas/pkg/platform/sentinel"
	"veritas/pkg/platform/tx"
)

const maxExecuteRetries = 5

// RedisStore keeps one JSON document per query. Updates use WATCH so
// concurrent writers from other processes fail cleanly instead of losing
// votes. Writes inside a transaction register compensations that restore
// the previous document.
type RedisStore struct {
	client *redis.Client
	prefix string
	// openKey is a sorted set of unresolved expiring queries scored by
	// expiry (unix seconds).
	openKey string
}

// NewRedis namespaces all keys under prefix; an empty prefix means "veritas".
func NewRedis(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "veritas"
	}
	return &RedisStore{client: client, prefix: prefix, openKey: prefix + ":queries:open"}
}

func (s *RedisStore) queryKey(id domain.QueryID) string {
	return s.prefix + ":query:" + id.String()
}

func (s *RedisStore) Create(ctx context.Context, q *models.Query) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("marshal query: %w", err)
	}
	key := s.queryKey(q.ID)
	ok, err := s.client.SetNX(ctx, key, data, 0).Result()
	if err != nil {
		return fmt.Errorf("create query: %w", err)
	}
	if !ok {
		return sentinel.ErrConflict
	}
	if q.HasExpiry() && !q.Resolved {
		if err := s.client.ZAdd(ctx, s.openKey, redis.Z{
			Score:  float64(q.ExpiresAt.Unix()),
			Member: q.ID.String(),
		}).Err(); err != nil {
			_ = s.client.Del(context.WithoutCancel(ctx), key).Err()
			return fmt.Errorf("index query: %w", err)
		}
	}

	tx.OnRollback(ctx, func(ctx context.Context) {
		pipe := s.client.TxPipeline()
		pipe.Del(ctx, key)
		pipe.ZRem(ctx, s.openKey, q.ID.String())
		_, _ = pipe.Exec(ctx)
	})
	return nil
}

func (s *RedisStore) Find(ctx context.Context, id domain.QueryID) (*models.Query, error) {
	data, err := s.client.Get(ctx, s.queryKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find query: %w", err)
	}
	return decode(data)
}

func (s *RedisStore) Execute(ctx context.Context, id domain.QueryID, validate func(*models.Query) error, mutate func(*models.Query)) (*models.Query, error) {
	key := s.queryKey(id)
	var (
		updated  *models.Query
		previous []byte
	)
	txf := func(rtx *redis.Tx) error {
		data, err := rtx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return sentinel.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load query: %w", err)
		}
		q, err := decode(data)
		if err != nil {
			return err
		}
		if err := validate(q); err != nil {
			return err
		}
		mutate(q)
		next, err := json.Marshal(q)
		if err != nil {
			return fmt.Errorf("marshal query: %w", err)
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			if q.Resolved {
				pipe.ZRem(ctx, s.openKey, id.String())
			}
			return nil
		})
		if err != nil {
			return err
		}
		updated, previous = q, data
		return nil
	}

	for range maxExecuteRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.compensate(ctx, id, previous)
		return updated, nil
	}
	return nil, fmt.Errorf("update query %s: %w", id, sentinel.ErrUnavailable)
}

func (s *RedisStore) compensate(ctx context.Context, id domain.QueryID, previous []byte) {
	prev, err := decode(previous)
	if err != nil {
		return
	}
	tx.OnRollback(ctx, func(ctx context.Context) {
		pipe := s.client.TxPipeline()
		pipe.Set(ctx, s.queryKey(id), previous, 0)
		if prev.HasExpiry() && !prev.Resolved {
			pipe.ZAdd(ctx, s.openKey, redis.Z{
				Score:  float64(prev.ExpiresAt.Unix()),
				Member: id.String(),
			})
		}
		_, _ = pipe.Exec(ctx)
	})
}

func (s *RedisStore) ListOpenExpired(ctx context.Context, now time.Time, limit int) ([]*models.Query, error) {
	opt := &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}
	if limit > 0 {
		opt.Count = int64(limit)
	}
	ids, err := s.client.ZRangeByScore(ctx, s.openKey, opt).Result()
	if err != nil {
		return nil, fmt.Errorf("list expired queries: %w", err)
	}

	out := make([]*models.Query, 0, len(ids))
	for _, raw := range ids {
		id, err := domain.ParseQueryID(raw)
		if err != nil {
			continue
		}
		q, err := s.Find(ctx, id)
		if errors.Is(err, sentinel.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !q.Resolved && q.IsExpired(now) {
			out = append(out, q)
		}
	}
	return out, nil
}

func decode(data []byte) (*models.Query, error) {
	var q models.Query
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("decode query: %w", err)
	}
	return &q, nil
}
