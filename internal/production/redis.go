package production

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/comalice/harel"
	"github.com/comalice/harel/internal/core"
)

// RedisStore keeps the latest snapshot of each machine in Redis, with a
// sorted-set index of machine ids scored by expiry.
type RedisStore struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL expires snapshots that were not saved for ttl.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix. The default is "harel:machine:".
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore connects to the Redis server at address.
func NewRedisStore(address, password string, db int, opts ...RedisOption) *RedisStore {
	return NewRedisStoreFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewRedisStoreFromClient uses an existing client.
func NewRedisStoreFromClient(client *backend.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "harel:machine:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) key(machineID string) string {
	return s.prefix + machineID
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "index"
}

// farFuture scores index entries without a TTL.
const farFuture = 4102444800 // 2100-01-01

func (s *RedisStore) Save(ctx context.Context, machineID string, snap harel.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	score := float64(farFuture)
	if s.ttl > 0 {
		score = float64(time.Now().Add(s.ttl).Unix())
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.key(machineID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: machineID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save to redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Load(ctx context.Context, machineID string) (harel.Snapshot, error) {
	val, err := s.client.Get(ctx, s.key(machineID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return harel.Snapshot{}, fmt.Errorf("machine %q: %w", machineID, core.ErrNotFound)
		}
		return harel.Snapshot{}, fmt.Errorf("get from redis: %w", err)
	}
	var snap harel.Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return harel.Snapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Delete removes a machine's snapshot and index entry.
func (s *RedisStore) Delete(ctx context.Context, machineID string) error {
	pipe := s.client.Pipeline()
	pipe.Del(ctx, s.key(machineID))
	pipe.ZRem(ctx, s.indexKey(), machineID)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the ids of machines whose snapshot has not expired. Expired
// index entries are pruned on the way.
func (s *RedisStore) List(ctx context.Context) ([]string, error) {
	now := float64(time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", fmt.Sprintf("%f", now)).Err(); err != nil {
		return nil, fmt.Errorf("prune expired machines: %w", err)
	}
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	return ids, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
