package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"barbershop/internal/models"
)

// CreateBlockout stores b. An empty BarberID closes the whole shop.
func (db *DB) CreateBlockout(ctx context.Context, b *models.Blockout) error {
	if !b.StartTime.Before(b.EndTime) {
		return fmt.Errorf("blockout must end after it starts")
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO blockouts (id, barber_id, start_time, end_time, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID, nullString(b.BarberID), unix(b.StartTime), unix(b.EndTime), b.Reason, unix(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert blockout: %w", err)
	}
	return nil
}

func (db *DB) GetBlockout(ctx context.Context, id string) (*models.Blockout, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, barber_id, start_time, end_time, reason, created_at
		FROM blockouts WHERE id = ?`, id)
	b, err := scanBlockout(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (db *DB) DeleteBlockout(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM blockouts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

// ListBlockouts returns blockouts of the barber and shop-wide ones that overlap
// [from, to). An empty barberID lists all of them.
func (db *DB) ListBlockouts(ctx context.Context, barberID string, from, to time.Time) ([]models.Blockout, error) {
	query := `
		SELECT id, barber_id, start_time, end_time, reason, created_at
		FROM blockouts
		WHERE start_time < ? AND end_time > ?`
	args := []any{unix(to), unix(from)}
	if barberID != "" {
		query += ` AND (barber_id = ? OR barber_id IS NULL)`
		args = append(args, barberID)
	}
	query += ` ORDER BY start_time, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Blockout, 0)
	for rows.Next() {
		b, err := scanBlockout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func scanBlockout(row rowScanner) (*models.Blockout, error) {
	var b models.Blockout
	var barber sql.NullString
	var start, end, created int64
	if err := row.Scan(&b.ID, &barber, &start, &end, &b.Reason, &created); err != nil {
		return nil, err
	}
	b.BarberID = barber.String
	b.StartTime = fromUnix(start)
	b.EndTime = fromUnix(end)
	b.CreatedAt = fromUnix(created)
	return &b, nil
}
