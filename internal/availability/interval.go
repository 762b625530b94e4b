package availability

import (
	"errors"
	"fmt"
	"time"

	"barbershop/internal/models"
)

var (
	// ErrInvalidInterval means an interval with end <= start reached the engine.
	// It is a caller bug, never a scheduling outcome.
	ErrInvalidInterval = errors.New("invalid interval")
	// ErrInvalidRequest means a slot request had non-positive duration or granularity,
	// or working hours for the wrong weekday.
	ErrInvalidRequest = errors.New("invalid slot request")
)

// Kind tells where an occupied interval comes from.
type Kind string

const (
	KindAppointment Kind = "appointment"
	KindBlockout    Kind = "blockout"
)

// Interval is a half-open [Start, End) range of a barber's time.
type Interval struct {
	ID       string
	BarberID string // empty means "applies to the barber being queried"
	Kind     Kind
	Status   models.AppointmentStatus // appointments only
	Start    time.Time
	End      time.Time
}

// FromAppointment converts a stored appointment into an interval.
func FromAppointment(a *models.Appointment) Interval {
	return Interval{
		ID:       a.ID,
		BarberID: a.BarberID,
		Kind:     KindAppointment,
		Status:   a.Status,
		Start:    a.StartTime,
		End:      a.EndTime,
	}
}

// FromBlockout converts a stored blockout into an interval.
func FromBlockout(b *models.Blockout) Interval {
	return Interval{
		ID:       b.ID,
		BarberID: b.BarberID,
		Kind:     KindBlockout,
		Start:    b.StartTime,
		End:      b.EndTime,
	}
}

// Validate fails with ErrInvalidInterval when End is not after Start.
func (i Interval) Validate() error {
	if !i.Start.Before(i.End) {
		return fmt.Errorf("%w: %s %q ends at %s, not after start %s",
			ErrInvalidInterval, i.Kind, i.ID, i.End.Format(time.RFC3339), i.Start.Format(time.RFC3339))
	}
	return nil
}

// Occupies reports whether the interval blocks time. Blockouts always do;
// appointments only while their status holds the slot.
func (i Interval) Occupies() bool {
	if i.Kind == KindBlockout {
		return true
	}
	return i.Status.OccupiesTime()
}

// Overlaps reports whether [start, end) intersects the interval.
func (i Interval) Overlaps(start, end time.Time) bool {
	return isOverlapping(start, end, i.Start, i.End)
}

func (i Interval) appliesTo(barberID string) bool {
	return i.BarberID == "" || barberID == "" || i.BarberID == barberID
}

func isOverlapping(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && start2.Before(end1)
}

func validateAll(intervals []Interval) error {
	for _, iv := range intervals {
		if err := iv.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// HoursFrom adapts a stored schedule row for the engine. A nil row stays nil.
func HoursFrom(w *models.WorkingHours) *WorkingHours {
	if w == nil {
		return nil
	}
	return &WorkingHours{
		Weekday:   w.Weekday,
		StartTime: w.StartTime,
		EndTime:   w.EndTime,
		IsWorking: w.IsWorking,
	}
}
