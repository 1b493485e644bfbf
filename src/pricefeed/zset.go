package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/onemorebsmith/francpay-core/src/model"
	"github.com/pkg/errors"
)

const DefaultCacheKey = "francpay:fre_price_snapshots"

type ZSet struct {
	client *redis.Client
	key    string
}

func NewZSet(cache *redis.Client, key string) ZSet {
	return ZSet{
		key:    key,
		client: cache,
	}
}

type ZSetKVP = redis.Z

func (zz *ZSet) AddValues(ctx context.Context, keys ...ZSetKVP) (int64, error) {
	cmd := zz.client.ZAddArgs(ctx, zz.key, redis.ZAddArgs{
		NX:      true,
		Members: keys,
	})
	return cmd.Result()
}

// GetLatest returns up to count members, highest score first
func (zz *ZSet) GetLatest(ctx context.Context, count int64) ([]string, error) {
	if count <= 0 {
		count = 1
	}
	data := zz.client.ZRevRange(ctx, zz.key, 0, count-1)
	if data.Err() != nil {
		return nil, data.Err()
	}
	return data.Val(), nil
}

func (zz *ZSet) Count(ctx context.Context) (int64, error) {
	cmd := zz.client.ZCount(ctx, zz.key, "-inf", "+inf")
	return cmd.Val(), cmd.Err()
}

func (zz *ZSet) RemoveByScore(ctx context.Context, min, max int64) (int64, error) {
	cmd := zz.client.ZRemRangeByScore(ctx, zz.key, fmt.Sprintf("%d", min), fmt.Sprintf("%d", max))
	return cmd.Val(), cmd.Err()
}

// SnapshotCache keeps recent snapshots in a redis sorted set scored by fetch
// time in unix millis
type SnapshotCache struct {
	zset ZSet
}

func NewSnapshotCache(client *redis.Client, key string) *SnapshotCache {
	if key == "" {
		key = DefaultCacheKey
	}
	return &SnapshotCache{zset: NewZSet(client, key)}
}

func (c *SnapshotCache) Put(ctx context.Context, snap model.PriceSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "failed encoding snapshot")
	}
	_, err = c.zset.AddValues(ctx, ZSetKVP{
		Score:  float64(snap.FetchedAt.UnixMilli()),
		Member: string(raw),
	})
	return errors.Wrap(err, "failed caching snapshot")
}

// Latest returns the most recent cached snapshot or ErrNoSnapshot
func (c *SnapshotCache) Latest(ctx context.Context) (model.PriceSnapshot, error) {
	members, err := c.zset.GetLatest(ctx, 1)
	if err != nil {
		return model.PriceSnapshot{}, errors.Wrap(err, "failed reading cached snapshot")
	}
	if len(members) == 0 {
		return model.PriceSnapshot{}, ErrNoSnapshot
	}
	snap := model.PriceSnapshot{}
	if err := json.Unmarshal([]byte(members[0]), &snap); err != nil {
		return model.PriceSnapshot{}, errors.Wrap(err, "failed decoding cached snapshot")
	}
	return snap, nil
}

// Prune drops snapshots fetched before cutoff
func (c *SnapshotCache) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	removed, err := c.zset.RemoveByScore(ctx, 0, cutoff.UnixMilli()-1)
	return removed, errors.Wrap(err, "failed pruning snapshot cache")
}
