package redisx

import "time"

const (
	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Deferred order timers, one sorted set scored by fire time (unix ms).
	KeyTimers = "timers:orders"
)

var TTLDedup = 48 * time.Hour
