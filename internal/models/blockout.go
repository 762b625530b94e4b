package models

import "time"

// Blockout is a manually declared window when a barber is not available.
// It may span several days.
type Blockout struct {
	ID        string    `json:"id"`
	BarberID  string    `json:"barber_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ContainsDate checks if the blockout covers any part of the calendar day of date.
func (b *Blockout) ContainsDate(date time.Time) bool {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	return b.StartTime.Before(dayEnd) && dayStart.Before(b.EndTime)
}
