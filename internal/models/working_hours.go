package models

import (
	"fmt"
	"time"
)

// WorkingHours is a barber's weekly schedule for one weekday.
// There is at most one row per (BarberID, Weekday).
type WorkingHours struct {
	BarberID  string       `json:"barber_id"`
	Weekday   time.Weekday `json:"weekday"`    // 0-6 (Sunday-Saturday)
	StartTime string       `json:"start_time"` // "09:00"
	EndTime   string       `json:"end_time"`   // "17:00"
	IsWorking bool         `json:"is_working"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Validate checks the weekday range and, for working days, the HH:MM window.
func (w *WorkingHours) Validate() error {
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return fmt.Errorf("weekday must be 0-6, got %d", w.Weekday)
	}
	if !w.IsWorking {
		return nil
	}
	start, err := ParseClock(w.StartTime)
	if err != nil {
		return fmt.Errorf("start_time: %w", err)
	}
	end, err := ParseClock(w.EndTime)
	if err != nil {
		return fmt.Errorf("end_time: %w", err)
	}
	if end <= start {
		return fmt.Errorf("end_time %s must be after start_time %s", w.EndTime, w.StartTime)
	}
	return nil
}

// ParseClock parses a wall-clock "HH:MM" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time format %q; expected HH:MM", s)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
