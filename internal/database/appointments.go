package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"barbershop/internal/availability"
	"barbershop/internal/models"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const appointmentColumns = `id, barber_id, customer_name, customer_email, customer_phone, service,
	duration_minutes, start_time, end_time, status, notes, created_at, updated_at`

// AppointmentFilter narrows ListAppointments. Zero fields are ignored.
type AppointmentFilter struct {
	BarberID string
	Email    string
	From     time.Time // appointments ending after From
	To       time.Time // appointments starting before To
	Statuses []models.AppointmentStatus
	Limit    int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (*models.Appointment, error) {
	var a models.Appointment
	var status string
	var start, end, created, updated int64
	err := row.Scan(&a.ID, &a.BarberID, &a.CustomerName, &a.CustomerEmail, &a.CustomerPhone, &a.Service,
		&a.DurationMinutes, &start, &end, &status, &a.Notes, &created, &updated)
	if err != nil {
		return nil, err
	}
	a.Status = models.AppointmentStatus(status)
	a.StartTime = fromUnix(start)
	a.EndTime = fromUnix(end)
	a.CreatedAt = fromUnix(created)
	a.UpdatedAt = fromUnix(updated)
	return &a, nil
}

func (db *DB) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	return getAppointment(ctx, db, id)
}

func getAppointment(ctx context.Context, q queryer, id string) (*models.Appointment, error) {
	row := q.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	a, err := scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// ListAppointments returns appointments matching f ordered by start time.
func (db *DB) ListAppointments(ctx context.Context, f AppointmentFilter) ([]models.Appointment, error) {
	var where []string
	var args []any

	if f.BarberID != "" {
		where = append(where, "barber_id = ?")
		args = append(args, f.BarberID)
	}
	if f.Email != "" {
		where = append(where, "customer_email = ? COLLATE NOCASE")
		args = append(args, strings.TrimSpace(f.Email))
	}
	if !f.From.IsZero() {
		where = append(where, "end_time > ?")
		args = append(args, unix(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "start_time < ?")
		args = append(args, unix(f.To))
	}
	if len(f.Statuses) > 0 {
		marks := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			marks[i] = "?"
			args = append(args, string(st))
		}
		where = append(where, "status IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_time, id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// ListAppointmentsByEmail returns every appointment booked with the email, newest first.
func (db *DB) ListAppointmentsByEmail(ctx context.Context, email string) ([]models.Appointment, error) {
	list, err := db.ListAppointments(ctx, AppointmentFilter{Email: email})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(list)-1; i < j; i, j = i+1, j-1 {
		list[i], list[j] = list[j], list[i]
	}
	return list, nil
}

// ListIntervals returns appointments of every status plus blockouts of the barber
// (and shop-wide ones) that overlap [from, to).
func (db *DB) ListIntervals(ctx context.Context, barberID string, from, to time.Time) ([]availability.Interval, error) {
	return listIntervals(ctx, db, barberID, from, to)
}

func listIntervals(ctx context.Context, q queryer, barberID string, from, to time.Time) ([]availability.Interval, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, barber_id, 'appointment', status, start_time, end_time
		FROM appointments
		WHERE barber_id = ? AND start_time < ? AND end_time > ?
		UNION ALL
		SELECT id, COALESCE(barber_id, ''), 'blockout', '', start_time, end_time
		FROM blockouts
		WHERE (barber_id = ? OR barber_id IS NULL) AND start_time < ? AND end_time > ?
		ORDER BY 5, 1`,
		barberID, unix(to), unix(from),
		barberID, unix(to), unix(from),
	)
	if err != nil {
		return nil, fmt.Errorf("list intervals: %w", err)
	}
	defer rows.Close()

	out := make([]availability.Interval, 0)
	for rows.Next() {
		var iv availability.Interval
		var kind, status string
		var start, end int64
		if err := rows.Scan(&iv.ID, &iv.BarberID, &kind, &status, &start, &end); err != nil {
			return nil, err
		}
		iv.Kind = availability.Kind(kind)
		iv.Status = models.AppointmentStatus(status)
		iv.Start = fromUnix(start)
		iv.End = fromUnix(end)
		out = append(out, iv)
	}
	return out, rows.Err()
}

// CreateAppointmentChecked reads the intervals overlapping a, runs gate on them and
// inserts a, all in one immediate transaction. A gate error aborts the insert and is
// returned unchanged.
func (db *DB) CreateAppointmentChecked(ctx context.Context, a *models.Appointment, gate GateFunc) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	existing, err := listIntervals(ctx, tx, a.BarberID, a.StartTime, a.EndTime)
	if err != nil {
		return err
	}
	if err := gate(existing); err != nil {
		return err
	}

	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err = tx.ExecContext(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.BarberID, a.CustomerName, a.CustomerEmail, a.CustomerPhone, a.Service,
		a.DurationMinutes, unix(a.StartTime), unix(a.EndTime), string(a.Status), a.Notes,
		unix(now), unix(now),
	)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// RescheduleAppointmentChecked moves an appointment that still holds time to
// [start, end) after gate approves the overlapping intervals. The appointment's own
// interval is part of what gate sees; callers exclude it by ID.
func (db *DB) RescheduleAppointmentChecked(
	ctx context.Context,
	id string,
	start, end time.Time,
	gate GateFunc,
) (*models.Appointment, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := getAppointment(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	existing, err := listIntervals(ctx, tx, current.BarberID, start, end)
	if err != nil {
		return nil, err
	}
	if err := gate(existing); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE appointments
		SET start_time = ?, end_time = ?, duration_minutes = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		unix(start), unix(end), int(end.Sub(start)/time.Minute), unix(now), id, string(current.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return nil, ErrConcurrentModification
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	current.StartTime, current.EndTime = fromUnix(unix(start)), fromUnix(unix(end))
	current.DurationMinutes = int(end.Sub(start) / time.Minute)
	current.UpdatedAt = fromUnix(unix(now))
	return current, nil
}

// UpdateAppointmentStatus moves id from one status to another. It fails with
// ErrConcurrentModification when the stored status is no longer from.
func (db *DB) UpdateAppointmentStatus(ctx context.Context, id string, from, to models.AppointmentStatus) error {
	res, err := db.ExecContext(ctx, `
		UPDATE appointments SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), unix(time.Now()), id, string(from),
	)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		if _, getErr := db.GetAppointment(ctx, id); errors.Is(getErr, ErrNotFound) {
			return ErrNotFound
		}
		return ErrConcurrentModification
	}
	return nil
}
