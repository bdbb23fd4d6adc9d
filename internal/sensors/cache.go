package sensors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aerofarm/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func snapshotKey(deviceID int64) string {
	return fmt.Sprintf("sensors:latest:%d", deviceID)
}

// SnapshotReader is the store fallback used when the cache misses.
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context, deviceID int64) (*models.SensorSnapshot, error)
}

// SnapshotCache keeps the most recent reading per device in Redis, falling
// back to the sensor log when a device has no cached entry. It implements the
// engine's SnapshotSource.
type SnapshotCache struct {
	rdb   *redis.Client
	store SnapshotReader
	ttl   time.Duration
	log   zerolog.Logger
}

// NewSnapshotCache wires the cache over rdb with store as fallback.
func NewSnapshotCache(rdb *redis.Client, store SnapshotReader, ttl time.Duration, logger zerolog.Logger) *SnapshotCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &SnapshotCache{
		rdb:   rdb,
		store: store,
		ttl:   ttl,
		log:   logger.With().Str("component", "snapshot_cache").Logger(),
	}
}

// Put caches a freshly ingested reading.
func (c *SnapshotCache) Put(ctx context.Context, snap models.SensorSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, snapshotKey(snap.DeviceID), raw, c.ttl).Err()
}

// LatestSnapshot returns the cached reading for deviceID, hitting the store
// on a miss. (nil, nil) means the device has never reported.
func (c *SnapshotCache) LatestSnapshot(ctx context.Context, deviceID int64) (*models.SensorSnapshot, error) {
	raw, err := c.rdb.Get(ctx, snapshotKey(deviceID)).Bytes()
	if err == nil {
		var snap models.SensorSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			return &snap, nil
		}
		c.log.Warn().Int64("device_id", deviceID).Msg("corrupt cached snapshot, falling back to store")
	} else if !errors.Is(err, redis.Nil) {
		c.log.Debug().Int64("device_id", deviceID).Err(err).Msg("snapshot cache read failed")
	}
	return c.store.LatestSnapshot(ctx, deviceID)
}
