package database

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"barbershop/internal/availability"
	"barbershop/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTaken = errors.New("taken")

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.CreateBarber(context.Background(), &models.Barber{ID: "b1", Name: "Sam", IsActive: true}))
	return db
}

func slotAt(hour int) (time.Time, time.Time) {
	start := time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC)
	return start, start.Add(time.Hour)
}

func newAppointment(id string, hour int) *models.Appointment {
	start, end := slotAt(hour)
	return &models.Appointment{
		ID:              id,
		BarberID:        "b1",
		CustomerName:    "Alex",
		CustomerEmail:   "alex@example.com",
		Service:         "Haircut",
		DurationMinutes: 60,
		StartTime:       start,
		EndTime:         end,
		Status:          models.StatusPending,
	}
}

// conflictGate rejects the write when the engine reports any conflict.
func conflictGate(barberID string, start, end time.Time, excludeID string) GateFunc {
	return func(existing []availability.Interval) error {
		res, err := availability.CheckConflict(barberID, start, end, existing, excludeID)
		if err != nil {
			return err
		}
		if !res.Available {
			return errTaken
		}
		return nil
	}
}

func book(db *DB, a *models.Appointment) error {
	return db.CreateAppointmentChecked(context.Background(), a, conflictGate(a.BarberID, a.StartTime, a.EndTime, ""))
}

func TestWorkingHours_UpsertAndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	missing, err := db.GetWorkingHours(ctx, "b1", time.Monday)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, db.UpsertWorkingHours(ctx, &models.WorkingHours{
		BarberID: "b1", Weekday: time.Monday, StartTime: "09:00", EndTime: "17:00", IsWorking: true,
	}))
	require.NoError(t, db.UpsertWorkingHours(ctx, &models.WorkingHours{
		BarberID: "b1", Weekday: time.Monday, StartTime: "10:00", EndTime: "18:00", IsWorking: true,
	}))
	require.NoError(t, db.UpsertWorkingHours(ctx, &models.WorkingHours{
		BarberID: "b1", Weekday: time.Sunday, IsWorking: false,
	}))

	got, err := db.GetWorkingHours(ctx, "b1", time.Monday)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "10:00", got.StartTime)
	assert.Equal(t, "18:00", got.EndTime)

	week, err := db.ListWorkingHours(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, week, 2, "one row per weekday")
	assert.Equal(t, time.Sunday, week[0].Weekday)
	assert.False(t, week[0].IsWorking)

	err = db.UpsertWorkingHours(ctx, &models.WorkingHours{
		BarberID: "b1", Weekday: time.Tuesday, StartTime: "18:00", EndTime: "09:00", IsWorking: true,
	})
	assert.Error(t, err)
}

func TestCreateAppointmentChecked(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, book(db, newAppointment("a1", 10)))

	err := book(db, newAppointment("a2", 10))
	assert.ErrorIs(t, err, errTaken)

	// back-to-back is fine
	require.NoError(t, book(db, newAppointment("a3", 11)))

	got, err := db.GetAppointment(ctx, "a1")
	require.NoError(t, err)
	start, end := slotAt(10)
	assert.True(t, got.StartTime.Equal(start))
	assert.True(t, got.EndTime.Equal(end))
	assert.Equal(t, models.StatusPending, got.Status)

	_, err = db.GetAppointment(ctx, "a2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAppointmentChecked_CancelledFreesSlot(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, book(db, newAppointment("a1", 10)))
	require.NoError(t, db.UpdateAppointmentStatus(ctx, "a1", models.StatusPending, models.StatusCancelled))

	require.NoError(t, book(db, newAppointment("a2", 10)))
}

func TestCreateAppointmentChecked_Blockout(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	start, _ := slotAt(9)
	_, end := slotAt(12)
	require.NoError(t, db.CreateBlockout(ctx, &models.Blockout{ID: "x1", StartTime: start, EndTime: end, Reason: "holiday"}))

	err := book(db, newAppointment("a1", 10))
	assert.ErrorIs(t, err, errTaken, "shop-wide blockout applies to every barber")

	require.NoError(t, db.DeleteBlockout(ctx, "x1"))
	require.NoError(t, book(db, newAppointment("a1", 10)))
	assert.ErrorIs(t, db.DeleteBlockout(ctx, "x1"), ErrNotFound)
}

func TestCreateAppointmentChecked_Concurrent(t *testing.T) {
	db := newTestDB(t)

	const bookers = 8
	var wg sync.WaitGroup
	errs := make([]error, bookers)
	for i := 0; i < bookers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = book(db, newAppointment(fmt.Sprintf("a%d", i), 14))
		}(i)
	}
	wg.Wait()

	var ok, taken int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, errTaken):
			taken++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, bookers-1, taken)
}

func TestRescheduleAppointmentChecked(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, book(db, newAppointment("a1", 10)))
	require.NoError(t, book(db, newAppointment("a2", 12)))

	// Overlapping its own old slot is allowed.
	newStart := time.Date(2026, 3, 10, 10, 30, 0, 0, time.UTC)
	newEnd := newStart.Add(time.Hour)
	moved, err := db.RescheduleAppointmentChecked(ctx, "a1", newStart, newEnd, conflictGate("b1", newStart, newEnd, "a1"))
	require.NoError(t, err)
	assert.True(t, moved.StartTime.Equal(newStart))

	// Onto a2 is not.
	start, end := slotAt(12)
	_, err = db.RescheduleAppointmentChecked(ctx, "a1", start, end, conflictGate("b1", start, end, "a1"))
	assert.ErrorIs(t, err, errTaken)

	_, err = db.RescheduleAppointmentChecked(ctx, "missing", start, end, conflictGate("b1", start, end, "missing"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAppointmentStatus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, book(db, newAppointment("a1", 10)))

	require.NoError(t, db.UpdateAppointmentStatus(ctx, "a1", models.StatusPending, models.StatusConfirmed))

	err := db.UpdateAppointmentStatus(ctx, "a1", models.StatusPending, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrConcurrentModification)

	err = db.UpdateAppointmentStatus(ctx, "nope", models.StatusPending, models.StatusCancelled)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListIntervalsAndAppointments(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreateBarber(ctx, &models.Barber{ID: "b2", Name: "Kim", IsActive: true}))

	require.NoError(t, book(db, newAppointment("a1", 10)))
	other := newAppointment("o1", 10)
	other.BarberID = "b2"
	other.CustomerEmail = "ALEX@example.com"
	require.NoError(t, book(db, other))

	start, _ := slotAt(15)
	require.NoError(t, db.CreateBlockout(ctx, &models.Blockout{
		ID: "x1", BarberID: "b1", StartTime: start.AddDate(0, 0, -1), EndTime: start,
	}))

	dayStart, dayEnd := availability.DayBounds(start)
	intervals, err := db.ListIntervals(ctx, "b1", dayStart, dayEnd)
	require.NoError(t, err)
	require.Len(t, intervals, 2)
	assert.Equal(t, availability.KindBlockout, intervals[0].Kind, "multi-day blockout from the day before")
	assert.Equal(t, "a1", intervals[1].ID)

	byEmail, err := db.ListAppointmentsByEmail(ctx, "alex@example.com")
	require.NoError(t, err)
	assert.Len(t, byEmail, 2, "email lookup ignores case")

	pending, err := db.ListAppointments(ctx, AppointmentFilter{
		BarberID: "b2",
		Statuses: []models.AppointmentStatus{models.StatusPending},
	})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "o1", pending[0].ID)

	blockouts, err := db.ListBlockouts(ctx, "b1", dayStart, dayEnd)
	require.NoError(t, err)
	assert.Len(t, blockouts, 1)
}

func TestBarbers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateBarber(ctx, &models.Barber{ID: "b0", Name: "Ann", IsActive: true}))
	require.NoError(t, db.SetBarberActive(ctx, "b1", false))

	active, err := db.ListBarbers(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Ann", active[0].Name)

	b, err := db.GetBarber(ctx, "b1")
	require.NoError(t, err)
	assert.False(t, b.IsActive)

	_, err = db.GetBarber(ctx, "zzz")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackupAndCleanup(t *testing.T) {
	db := newTestDB(t)
	dir := t.TempDir()

	path, err := db.Backup(context.Background(), dir, time.Now())
	require.NoError(t, err)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	old := filepath.Join(dir, backupPrefix+"20000101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	removed, err := CleanupBackups(dir, 7, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Base(old)}, removed)

	_, err = os.Stat(path)
	assert.NoError(t, err, "fresh backup survives")
}
