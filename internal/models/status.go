package models

// AppointmentStatus is the lifecycle state of an appointment.
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusNoShow    AppointmentStatus = "no_show"
)

var statusTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
	StatusCompleted: {},
	StatusCancelled: {},
	StatusNoShow:    {},
}

// ParseStatus returns the status named by s and whether it is known.
func ParseStatus(s string) (AppointmentStatus, bool) {
	st := AppointmentStatus(s)
	_, ok := statusTransitions[st]
	return st, ok
}

// CanTransition reports whether an appointment may move from one status to another.
func CanTransition(from, to AppointmentStatus) bool {
	for _, s := range statusTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// OccupiesTime reports whether an appointment in this status blocks the barber's calendar.
// Cancelled and no-show appointments never do, regardless of when they were cancelled.
func (s AppointmentStatus) OccupiesTime() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted:
		return true
	default:
		return false
	}
}

// IsFinal reports whether no further transitions are possible.
func (s AppointmentStatus) IsFinal() bool {
	return len(statusTransitions[s]) == 0
}
