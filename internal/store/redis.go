package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"github.com/guardian-card/guardian-core/internal/model"
)

// RedisConfig configures the Redis token and dwell store.
type RedisConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Password  string `yaml:"password" mapstructure:"password"`
	DB        int    `yaml:"db" mapstructure:"db"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// RedisStore keeps override tokens and dwell windows in Redis so several
// guardian instances share them. It implements TokenStore and DwellStore.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// takeTokenScript drops expired tokens for the triple, then pops the token
// with the earliest expiry.
// KEYS[1] = token zset for (user, merchant, amount)
// ARGV[1] = now, unix microseconds
var takeTokenScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local ids = redis.call("ZRANGE", KEYS[1], 0, 0)
if #ids == 0 then
    return 0
end
redis.call("ZREM", KEYS[1], ids[1])
return 1
`)

// recordDwellScript evicts pings older than the cutoff, appends one and
// returns the window size.
// KEYS[1] = dwell zset
// ARGV[1] = cutoff (unix micros), ARGV[2] = ping time (unix micros)
// ARGV[3] = member, ARGV[4] = key ttl in milliseconds
var recordDwellScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[1])
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[3])
redis.call("PEXPIRE", KEYS[1], ARGV[4])
return redis.call("ZCARD", KEYS[1])
`)

// sweepTokensScript drops expired tokens from one triple's zset and removes
// the key from the index once it is empty. Running both in one script keeps
// a concurrent InsertToken from being dropped from the index.
// KEYS[1] = token zset, KEYS[2] = token index set
// ARGV[1] = now, unix microseconds
var sweepTokensScript = redis.NewScript(`
local n = redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
if redis.call("ZCARD", KEYS[1]) == 0 then
    redis.call("SREM", KEYS[2], KEYS[1])
end
return n
`)

// NewRedis connects to Redis and verifies the connection.
func NewRedis(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrapf(err, "redis: ping %s", cfg.Addr)
	}
	return NewRedisFromClient(client, cfg.KeyPrefix), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "guardian"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// tokenKey length-prefixes user and merchant so separators inside either
// cannot make two triples share a key.
func (r *RedisStore) tokenKey(userID, merchant string, amountCents int64) string {
	return fmt.Sprintf("%s:tokens:%d:%s:%d:%s:%d", r.prefix, len(userID), userID, len(merchant), merchant, amountCents)
}

func (r *RedisStore) tokenIndexKey() string { return r.prefix + ":tokens:index" }

func (r *RedisStore) positionKey(userID string) string { return r.prefix + ":pos:" + userID }

func (r *RedisStore) dwellKey(userID string) string { return r.prefix + ":dwell:" + userID }

func micros(t time.Time) string { return strconv.FormatInt(t.UnixMicro(), 10) }

// InsertToken implements TokenStore.
func (r *RedisStore) InsertToken(ctx context.Context, tok model.OverrideToken) error {
	key := r.tokenKey(tok.UserID, tok.Merchant, tok.AmountCents)
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAdd(ctx, key, redis.Z{Score: float64(tok.ExpiresAt.UnixMicro()), Member: tok.ID})
		p.SAdd(ctx, r.tokenIndexKey(), key)
		return nil
	})
	return eris.Wrapf(err, "redis: insert token %s", tok.ID)
}

// TakeToken implements TokenStore.
func (r *RedisStore) TakeToken(ctx context.Context, userID, merchant string, amountCents int64, now time.Time) (bool, error) {
	n, err := takeTokenScript.Run(ctx, r.client, []string{r.tokenKey(userID, merchant, amountCents)}, micros(now)).Int()
	if err != nil {
		return false, eris.Wrapf(err, "redis: take token %s/%s", userID, merchant)
	}
	return n == 1, nil
}

// DeleteExpiredTokens implements TokenStore.
func (r *RedisStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int, error) {
	keys, err := r.client.SMembers(ctx, r.tokenIndexKey()).Result()
	if err != nil {
		return 0, eris.Wrap(err, "redis: list token keys")
	}
	deleted := 0
	for _, key := range keys {
		n, err := sweepTokensScript.Run(ctx, r.client, []string{key, r.tokenIndexKey()}, micros(now)).Int()
		if err != nil {
			return deleted, eris.Wrapf(err, "redis: sweep %s", key)
		}
		deleted += n
	}
	return deleted, nil
}

// SwapPosition implements DwellStore.
func (r *RedisStore) SwapPosition(ctx context.Context, userID string, pos model.Position) (*model.Position, error) {
	data, err := json.Marshal(pos)
	if err != nil {
		return nil, eris.Wrap(err, "redis: marshal position")
	}
	old, err := r.client.GetSet(ctx, r.positionKey(userID), data).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: swap position %s", userID)
	}
	var prev model.Position
	if err := json.Unmarshal(old, &prev); err != nil {
		return nil, eris.Wrapf(err, "redis: decode position %s", userID)
	}
	return &prev, nil
}

// RecordDwell implements DwellStore.
func (r *RedisStore) RecordDwell(ctx context.Context, userID string, at time.Time, window time.Duration) (int, error) {
	ttl := window.Milliseconds()
	if ttl <= 0 {
		ttl = 1
	}
	member := micros(at) + ":" + uuid.New().String()
	n, err := recordDwellScript.Run(ctx, r.client, []string{r.dwellKey(userID)},
		micros(at.Add(-window)), micros(at), member, ttl,
	).Int()
	if err != nil {
		return 0, eris.Wrapf(err, "redis: record dwell %s", userID)
	}
	return n, nil
}
