// Package snapshot caches the latest market depth of each instrument in
// Redis so readers can serve it without touching the engine.
package snapshot

import (
	"context"
	"encoding/json"
	"time"

	"lob/internal/engine"
	"lob/internal/orderbook"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "lob:depth:"

var ErrNoSnapshot = errors.New("no snapshot")

// Client is the subset of redis.Cmdable the store uses.
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// Snapshot is the cached view of one market.
type Snapshot struct {
	Instrument string          `json:"instrument"`
	Sequence   uint64          `json:"sequence"`
	Depth      orderbook.Depth `json:"depth"`
	Time       time.Time       `json:"time"`
}

type Store struct {
	client Client
	ttl    time.Duration
}

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, cfg Config) (*Store, *redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, errors.Wrapf(err, "ping redis %s", cfg.Addr)
	}
	return NewStoreWithClient(rdb, cfg.TTL), rdb, nil
}

func NewStoreWithClient(c Client, ttl time.Duration) *Store {
	return &Store{client: c, ttl: ttl}
}

func Key(instrument string) string {
	return keyPrefix + instrument
}

// Publish stores the batch's depth, replacing the previous snapshot.
func (s *Store) Publish(ctx context.Context, b engine.Batch) error {
	data, err := json.Marshal(Snapshot{
		Instrument: b.Instrument,
		Sequence:   b.Sequence,
		Depth:      b.Depth,
		Time:       b.Time,
	})
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if err := s.client.Set(ctx, Key(b.Instrument), data, s.ttl).Err(); err != nil {
		return errors.Wrapf(err, "store snapshot %s", b.Instrument)
	}
	return nil
}

// Load returns the cached snapshot of instrument, or ErrNoSnapshot.
func (s *Store) Load(ctx context.Context, instrument string) (Snapshot, error) {
	data, err := s.client.Get(ctx, Key(instrument)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, errors.Wrapf(err, "load snapshot %s", instrument)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, errors.Wrapf(err, "decode snapshot %s", instrument)
	}
	return snap, nil
}
