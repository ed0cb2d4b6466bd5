package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ALT-F4-LLC/porter/internal/model"
)

const (
	redisKeyPrefix = "porter:session:"
	redisExpiryKey = "porter:sessions:expiry"

	// redisGrace keeps an expired session readable long enough for the
	// sweeper to clean up the files it owns.
	redisGrace = 24 * time.Hour
)

// RedisStore keeps sessions in Redis. Every session key is also indexed in
// a sorted set scored by expiry so expired sessions can be listed.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisStore connects to the Redis server at rawURL
// (redis://[:password@]host:port/db).
func NewRedisStore(rawURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return NewRedisStoreFromClient(redis.NewClient(opts)), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

type redisEnvelope struct {
	Kind      string          `json:"kind"`
	Operator  string          `json:"operator"`
	Token     string          `json:"token"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func redisKey(kind, operator string) string {
	return redisKeyPrefix + kind + ":" + operator
}

func (s *RedisStore) Put(ctx context.Context, r Record) error {
	data, err := json.Marshal(redisEnvelope{
		Kind:      r.Kind,
		Operator:  r.Operator,
		Token:     r.Token,
		Payload:   r.Payload,
		CreatedAt: r.CreatedAt.UTC(),
		ExpiresAt: r.ExpiresAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding session: %w", err)
	}

	key := redisKey(r.Kind, r.Operator)
	ttl := r.ExpiresAt.Sub(s.now()) + redisGrace
	if ttl <= 0 {
		ttl = time.Second
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, key, data, ttl)
	pipe.ZAdd(ctx, redisExpiryKey, &redis.Z{Score: float64(r.ExpiresAt.Unix()), Member: key})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("storing session: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, kind, operator string) (*Record, error) {
	rec, err := s.read(ctx, redisKey(kind, operator))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.E(model.KindSession, kind, model.ErrSessionNotFound)
		}
		return nil, err
	}
	if !s.now().Before(rec.ExpiresAt) {
		return nil, model.E(model.KindSession, kind, model.ErrSessionNotFound)
	}
	return rec, nil
}

func (s *RedisStore) Delete(ctx context.Context, kind, operator string) error {
	key := redisKey(kind, operator)
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.ZRem(ctx, redisExpiryKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

func (s *RedisStore) Expired(ctx context.Context, now time.Time) ([]Record, error) {
	keys, err := s.client.ZRangeByScore(ctx, redisExpiryKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now.Unix(), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("listing expired sessions: %w", err)
	}

	var out []Record
	for _, key := range keys {
		rec, err := s.read(ctx, key)
		switch {
		case errors.Is(err, redis.Nil):
			// Already gone; only the index entry is left.
		case err != nil:
			return nil, err
		case rec.ExpiresAt.After(now):
			// Refreshed since it was indexed.
			continue
		default:
			out = append(out, *rec)
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return nil, fmt.Errorf("deleting session: %w", err)
			}
		}
		if err := s.client.ZRem(ctx, redisExpiryKey, key).Err(); err != nil {
			return nil, fmt.Errorf("unindexing session: %w", err)
		}
	}
	return out, nil
}

func (s *RedisStore) read(ctx context.Context, key string) (*Record, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, err
		}
		return nil, fmt.Errorf("reading session: %w", err)
	}
	var env redisEnvelope
	if err := json.Unmarshal(val, &env); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &Record{
		Kind:      env.Kind,
		Operator:  env.Operator,
		Token:     env.Token,
		Payload:   []byte(env.Payload),
		CreatedAt: env.CreatedAt,
		ExpiresAt: env.ExpiresAt,
	}, nil
}
