package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fabfab/codemind/llm"
)

const DefaultSnapshotKey = "codemind:workspace"

// ErrNoSnapshot is returned by Load when nothing has been saved yet.
var ErrNoSnapshot = errors.New("no snapshot saved")

// Snapshots persists workspace snapshots.
type Snapshots interface {
	Load(ctx context.Context) (Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
}

// RedisSnapshots keeps the workspace snapshot under a single Redis key.
type RedisSnapshots struct {
	rdb     *redis.Client
	key     string
	catalog llm.Catalog
}

func NewRedisSnapshots(rdb *redis.Client, key string, catalog llm.Catalog) *RedisSnapshots {
	if key == "" {
		key = DefaultSnapshotKey
	}
	return &RedisSnapshots{rdb: rdb, key: key, catalog: catalog}
}

func (s *RedisSnapshots) Load(ctx context.Context) (Snapshot, error) {
	data, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	return Decode(data, s.catalog)
}

func (s *RedisSnapshots) Save(ctx context.Context, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}
