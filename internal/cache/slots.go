// Package cache keeps computed day schedules in Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"barbershop/internal/availability"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	keyPrefix = "slots"
	genPrefix = "slotsgen"
)

// SlotCache is a read/write-through cache of day schedules. A nil client or
// non-positive TTL disables it; every call then becomes a no-op miss.
type SlotCache struct {
	redis  *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewSlotCache(client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *SlotCache {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SlotCache{redis: client, ttl: ttl, logger: logger}
}

// Enabled reports whether a Redis client is configured.
func (c *SlotCache) Enabled() bool {
	return c != nil && c.redis != nil && c.ttl > 0
}

func Key(barberID string, date time.Time, durationMinutes int) string {
	return fmt.Sprintf("%s:%s:%s:%d", keyPrefix, barberID, date.Format("2006-01-02"), durationMinutes)
}

// generationKey counts invalidations of a day. An empty barberID is the
// shop-wide counter, bumped by invalidations that cover every barber.
func generationKey(barberID string, date time.Time) string {
	if barberID == "" {
		return fmt.Sprintf("%s:%s", genPrefix, date.Format("2006-01-02"))
	}
	return fmt.Sprintf("%s:%s:%s", genPrefix, date.Format("2006-01-02"), barberID)
}

// entry is the stored value: a schedule tagged with the generation it was computed under.
type entry struct {
	Generation string                   `json:"generation"`
	Schedule   availability.DaySchedule `json:"schedule"`
}

// Generation returns the current invalidation generation of the barber's day.
// Callers read it before loading the data they compute from and hand it to Set.
// It is empty when the cache is disabled or Redis fails.
func (c *SlotCache) Generation(ctx context.Context, barberID string, date time.Time) string {
	if !c.Enabled() {
		return ""
	}
	vals, err := c.redis.MGet(ctx, generationKey(barberID, date), generationKey("", date)).Result()
	if err != nil {
		c.logger.Warn().Err(err).Msg("Slot cache generation read failed")
		return ""
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = "0"
		if str, ok := v.(string); ok {
			parts[i] = str
		}
	}
	return parts[0] + "." + parts[1]
}

// Get loads the schedule cached for the key. ok is false on miss, on any error, and
// when the entry was computed under an older generation than the current one.
func (c *SlotCache) Get(ctx context.Context, barberID string, date time.Time, durationMinutes int) (availability.DaySchedule, bool) {
	if !c.Enabled() {
		return availability.DaySchedule{}, false
	}
	current := c.Generation(ctx, barberID, date)
	if current == "" {
		return availability.DaySchedule{}, false
	}
	val, err := c.redis.Get(ctx, Key(barberID, date, durationMinutes)).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Msg("Slot cache read failed")
		}
		return availability.DaySchedule{}, false
	}
	var e entry
	if err := json.Unmarshal([]byte(val), &e); err != nil || e.Generation != current {
		return availability.DaySchedule{}, false
	}
	return e.Schedule, true
}

// Set stores day under generation, as returned by Generation before day was
// computed. An empty generation is not stored.
func (c *SlotCache) Set(ctx context.Context, barberID string, date time.Time, durationMinutes int, generation string, day availability.DaySchedule) {
	if !c.Enabled() || generation == "" {
		return
	}
	data, err := json.Marshal(entry{Generation: generation, Schedule: day})
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, Key(barberID, date, durationMinutes), data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Slot cache write failed")
	}
}

// Invalidate bumps the day's generation and drops every cached duration of the
// barber's day. An empty barberID does so for all barbers.
//
// The generation outlives every entry written before the bump, so a schedule
// computed before the invalidation and stored after it is never served.
func (c *SlotCache) Invalidate(ctx context.Context, barberID string, date time.Time) error {
	if !c.Enabled() {
		return nil
	}
	gen := generationKey(barberID, date)
	pipe := c.redis.TxPipeline()
	pipe.Incr(ctx, gen)
	pipe.Expire(ctx, gen, 2*c.ttl+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("bump %s: %w", gen, err)
	}

	barber := barberID
	if barber == "" {
		barber = "*"
	}
	pattern := fmt.Sprintf("%s:%s:%s:*", keyPrefix, barber, date.Format("2006-01-02"))

	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("scan %s: %w", pattern, err)
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete cached slots: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Ping is used by the readiness probe; a disabled cache is always ready.
func (c *SlotCache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}
