package cache

import (
	"context"
	"testing"
	"time"

	"barbershop/internal/availability"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, ttl time.Duration) (*SlotCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSlotCache(client, ttl, nil), mr
}

func sampleDay(t *testing.T, date time.Time) availability.DaySchedule {
	t.Helper()
	day, err := availability.ComputeDailySlots(
		availability.SlotRequest{Date: date, DurationMinutes: 60, GranularityMinutes: 60},
		&availability.WorkingHours{Weekday: date.Weekday(), StartTime: "09:00", EndTime: "12:00", IsWorking: true},
		nil,
	)
	require.NoError(t, err)
	return day
}

func TestSlotCache_RoundTrip(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_, ok := c.Get(ctx, "b1", date, 60)
	assert.False(t, ok)

	want := sampleDay(t, date)
	gen := c.Generation(ctx, "b1", date)
	assert.Equal(t, "0.0", gen)
	c.Set(ctx, "b1", date, 60, gen, want)
	assert.True(t, mr.Exists("slots:b1:2026-03-10:60"))

	got, ok := c.Get(ctx, "b1", date, 60)
	require.True(t, ok)
	assert.True(t, got.IsWorkingDay)
	require.Len(t, got.Slots, len(want.Slots))
	for i := range want.Slots {
		assert.True(t, want.Slots[i].Start.Equal(got.Slots[i].Start))
		assert.Equal(t, want.Slots[i].Label, got.Slots[i].Label)
	}

	mr.FastForward(2 * time.Minute)
	_, ok = c.Get(ctx, "b1", date, 60)
	assert.False(t, ok, "entry expires after ttl")
}

func TestSlotCache_Invalidate(t *testing.T) {
	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	next := date.AddDate(0, 0, 1)
	day := sampleDay(t, date)

	c.Set(ctx, "b1", date, 30, c.Generation(ctx, "b1", date), day)
	c.Set(ctx, "b1", date, 60, c.Generation(ctx, "b1", date), day)
	c.Set(ctx, "b1", next, 60, c.Generation(ctx, "b1", next), day)
	c.Set(ctx, "b2", date, 60, c.Generation(ctx, "b2", date), day)

	require.NoError(t, c.Invalidate(ctx, "b1", date))
	assert.False(t, mr.Exists(Key("b1", date, 30)))
	assert.False(t, mr.Exists(Key("b1", date, 60)))
	assert.True(t, mr.Exists(Key("b1", next, 60)))
	assert.True(t, mr.Exists(Key("b2", date, 60)))

	require.NoError(t, c.Invalidate(ctx, "", date))
	assert.False(t, mr.Exists(Key("b2", date, 60)))
	assert.True(t, mr.Exists(Key("b1", next, 60)))
}

func TestSlotCache_Disabled(t *testing.T) {
	c := NewSlotCache(nil, time.Minute, nil)
	ctx := context.Background()
	date := time.Now()

	assert.False(t, c.Enabled())
	assert.Empty(t, c.Generation(ctx, "b1", date))
	c.Set(ctx, "b1", date, 60, "0.0", availability.DaySchedule{})
	_, ok := c.Get(ctx, "b1", date, 60)
	assert.False(t, ok)
	assert.NoError(t, c.Invalidate(ctx, "b1", date))
	assert.NoError(t, c.Ping(ctx))
}

func TestSlotCache_StaleGenerationNotServed(t *testing.T) {
	c, mr := newTestCache(t, time.Hour)
	ctx := context.Background()
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	day := sampleDay(t, date)

	// computed, then a write invalidates the day before the result is stored
	before := c.Generation(ctx, "b1", date)
	require.NoError(t, c.Invalidate(ctx, "b1", date))
	c.Set(ctx, "b1", date, 60, before, day)
	assert.True(t, mr.Exists(Key("b1", date, 60)))

	_, ok := c.Get(ctx, "b1", date, 60)
	assert.False(t, ok, "entry from an older generation")

	after := c.Generation(ctx, "b1", date)
	assert.Equal(t, "1.0", after)
	c.Set(ctx, "b1", date, 60, after, day)
	_, ok = c.Get(ctx, "b1", date, 60)
	assert.True(t, ok)

	// shop-wide invalidation moves every barber's generation
	require.NoError(t, c.Invalidate(ctx, "", date))
	c.Set(ctx, "b1", date, 60, after, day)
	_, ok = c.Get(ctx, "b1", date, 60)
	assert.False(t, ok)
	assert.Equal(t, "1.1", c.Generation(ctx, "b1", date))
	assert.Equal(t, "0.1", c.Generation(ctx, "b2", date))

	// garbage in the slot key is a miss, not an error
	require.NoError(t, mr.Set(Key("b2", date, 60), "not json"))
	_, ok = c.Get(ctx, "b2", date, 60)
	assert.False(t, ok)
}
