package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"barbershop/internal/models"
)

// CreateBarber inserts a barber. CreatedAt is set when zero.
func (db *DB) CreateBarber(ctx context.Context, b *models.Barber) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO barbers (id, name, is_active, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.Name, b.IsActive, unix(b.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert barber: %w", err)
	}
	return nil
}

func (db *DB) GetBarber(ctx context.Context, id string) (*models.Barber, error) {
	var b models.Barber
	var created int64
	err := db.QueryRowContext(ctx,
		`SELECT id, name, is_active, created_at FROM barbers WHERE id = ?`, id,
	).Scan(&b.ID, &b.Name, &b.IsActive, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	b.CreatedAt = fromUnix(created)
	return &b, nil
}

// ListBarbers returns barbers ordered by name; activeOnly hides inactive ones.
func (db *DB) ListBarbers(ctx context.Context, activeOnly bool) ([]models.Barber, error) {
	query := `SELECT id, name, is_active, created_at FROM barbers`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY name, id`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	barbers := make([]models.Barber, 0)
	for rows.Next() {
		var b models.Barber
		var created int64
		if err := rows.Scan(&b.ID, &b.Name, &b.IsActive, &created); err != nil {
			return nil, err
		}
		b.CreatedAt = fromUnix(created)
		barbers = append(barbers, b)
	}
	return barbers, rows.Err()
}

func (db *DB) SetBarberActive(ctx context.Context, id string, active bool) error {
	res, err := db.ExecContext(ctx, `UPDATE barbers SET is_active = ? WHERE id = ?`, active, id)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
