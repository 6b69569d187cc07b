package redisx

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Timers keeps deferred jobs in one sorted set scored by fire time. Several sweepers
// may poll the set; ZREM decides which of them owns a due job.
type Timers struct {
	rdb redis.Cmdable
	key string
}

func NewTimers(rdb redis.Cmdable) *Timers { return &Timers{rdb: rdb, key: KeyTimers} }

func (t *Timers) Add(ctx context.Context, member string, fireAt time.Time) error {
	return t.rdb.ZAdd(ctx, t.key, redis.Z{Score: float64(fireAt.UnixMilli()), Member: member}).Err()
}

func (t *Timers) Remove(ctx context.Context, member string) error {
	return t.rdb.ZRem(ctx, t.key, member).Err()
}

func (t *Timers) Due(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return t.rdb.ZRangeByScore(ctx, t.key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
}

func (t *Timers) Claim(ctx context.Context, member string) (bool, error) {
	n, err := t.rdb.ZRem(ctx, t.key, member).Result()
	return n == 1, err
}
