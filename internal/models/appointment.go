package models

import "time"

// Barber is a member of staff who can be booked.
type Barber struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// Appointment is a customer booking with one barber.
type Appointment struct {
	ID              string            `json:"id"`
	BarberID        string            `json:"barber_id"`
	CustomerName    string            `json:"customer_name"`
	CustomerEmail   string            `json:"customer_email"`
	CustomerPhone   string            `json:"customer_phone,omitempty"`
	Service         string            `json:"service"`
	DurationMinutes int               `json:"duration_minutes"`
	StartTime       time.Time         `json:"start_time"`
	EndTime         time.Time         `json:"end_time"`
	Status          AppointmentStatus `json:"status"`
	Notes           string            `json:"notes,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Duration returns the booked length.
func (a *Appointment) Duration() time.Duration {
	return a.EndTime.Sub(a.StartTime)
}

// OverlapsWith checks if two appointments overlap.
// Uses half-open [start, end) semantics: back-to-back appointments do not overlap.
func (a *Appointment) OverlapsWith(other *Appointment) bool {
	return a.StartTime.Before(other.EndTime) && other.StartTime.Before(a.EndTime)
}

// IsUpcoming reports whether the appointment starts after now and still holds its slot.
func (a *Appointment) IsUpcoming(now time.Time) bool {
	return a.StartTime.After(now) && a.Status.OccupiesTime()
}
