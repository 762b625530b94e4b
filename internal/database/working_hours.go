package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"barbershop/internal/models"
)

// UpsertWorkingHours stores the row for (barber, weekday), replacing any previous one.
func (db *DB) UpsertWorkingHours(ctx context.Context, w *models.WorkingHours) error {
	if err := w.Validate(); err != nil {
		return err
	}
	w.UpdatedAt = time.Now().UTC()

	_, err := db.ExecContext(ctx, `
		INSERT INTO working_hours (barber_id, weekday, start_time, end_time, is_working, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(barber_id, weekday) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			is_working = excluded.is_working,
			updated_at = excluded.updated_at`,
		w.BarberID, int(w.Weekday), w.StartTime, w.EndTime, w.IsWorking, unix(w.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert working hours: %w", err)
	}
	return nil
}

// GetWorkingHours returns the row for the weekday, or nil when none is stored.
// A missing row means the barber does not work that day.
func (db *DB) GetWorkingHours(ctx context.Context, barberID string, weekday time.Weekday) (*models.WorkingHours, error) {
	var w models.WorkingHours
	var day int
	var updated int64
	err := db.QueryRowContext(ctx, `
		SELECT barber_id, weekday, start_time, end_time, is_working, updated_at
		FROM working_hours
		WHERE barber_id = ? AND weekday = ?`,
		barberID, int(weekday),
	).Scan(&w.BarberID, &day, &w.StartTime, &w.EndTime, &w.IsWorking, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	w.Weekday = time.Weekday(day)
	w.UpdatedAt = fromUnix(updated)
	return &w, nil
}

// ListWorkingHours returns the stored week of a barber ordered by weekday.
func (db *DB) ListWorkingHours(ctx context.Context, barberID string) ([]models.WorkingHours, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT barber_id, weekday, start_time, end_time, is_working, updated_at
		FROM working_hours
		WHERE barber_id = ?
		ORDER BY weekday`, barberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	week := make([]models.WorkingHours, 0, 7)
	for rows.Next() {
		var w models.WorkingHours
		var day int
		var updated int64
		if err := rows.Scan(&w.BarberID, &day, &w.StartTime, &w.EndTime, &w.IsWorking, &updated); err != nil {
			return nil, err
		}
		w.Weekday = time.Weekday(day)
		w.UpdatedAt = fromUnix(updated)
		week = append(week, w)
	}
	return week, rows.Err()
}
