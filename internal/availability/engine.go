// Package availability computes bookable slots for a barber's day and gates
// appointment writes with a half-open interval conflict check.
//
// Everything here is pure: the same inputs always produce the same output and
// nothing is read from or written to storage. The conflict check is advisory
// unless the caller runs it inside the write transaction that inserts the row.
package availability

import (
	"fmt"
	"sort"
	"time"
)

// LabelLayout renders slot labels such as "9:00 AM".
const LabelLayout = "3:04 PM"

// WorkingHours is the schedule row for the requested weekday.
type WorkingHours struct {
	Weekday   time.Weekday
	StartTime string // "09:00"
	EndTime   string // "17:00"
	IsWorking bool
}

// SlotRequest describes one day to be split into slots.
type SlotRequest struct {
	BarberID           string
	Date               time.Time // any instant of the day, in shop time
	DurationMinutes    int
	GranularityMinutes int

	// NotBefore disables candidates that start earlier (e.g. now + minimum notice).
	// Zero means no lower bound.
	NotBefore time.Time
	// IncludeUnavailable also returns blocked candidates with Disabled set.
	IncludeUnavailable bool
}

// Slot represents a candidate booking window [Start, End).
type Slot struct {
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Label    string    `json:"label"`
	Disabled bool      `json:"disabled"`
}

// Window is an effective opening window.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// DaySchedule is the result of ComputeDailySlots.
type DaySchedule struct {
	IsWorkingDay bool    `json:"isWorkingDay"`
	WorkingHours *Window `json:"workingHours,omitempty"`
	Slots        []Slot  `json:"slots"`
}

// SlotInfo is a simplified representation for UI.
type SlotInfo struct {
	Time           string `json:"time"`           // "9:00 AM"
	StartTimestamp string `json:"startTimestamp"` // RFC3339
	Disabled       bool   `json:"disabled"`
}

// ConflictKind names what blocked a proposed interval.
type ConflictKind string

const (
	ConflictNone        ConflictKind = ""
	ConflictAppointment ConflictKind = "APPOINTMENT"
	ConflictBlockout    ConflictKind = "BLOCKOUT"
)

// ConflictResult is the outcome of CheckConflict.
type ConflictResult struct {
	Available     bool         `json:"available"`
	Kind          ConflictKind `json:"conflictKind,omitempty"`
	ConflictingID string       `json:"-"`
}

// ComputeDailySlots walks the working window of req.Date in granularity steps and
// returns every candidate of the requested duration that ends by closing time and
// overlaps no occupied interval. Cancelled and no-show appointments are ignored here,
// so callers pass all appointments unfiltered.
//
// A nil or non-working hours row yields IsWorkingDay=false and no slots; that is a
// normal result, not an error.
func ComputeDailySlots(req SlotRequest, hours *WorkingHours, occupied []Interval) (DaySchedule, error) {
	if req.DurationMinutes <= 0 || req.GranularityMinutes <= 0 {
		return DaySchedule{}, fmt.Errorf("%w: duration %d and granularity %d must be positive",
			ErrInvalidRequest, req.DurationMinutes, req.GranularityMinutes)
	}
	if err := validateAll(occupied); err != nil {
		return DaySchedule{}, err
	}

	if hours == nil || !hours.IsWorking {
		return DaySchedule{IsWorkingDay: false, Slots: []Slot{}}, nil
	}
	if hours.Weekday != req.Date.Weekday() {
		return DaySchedule{}, fmt.Errorf("%w: working hours for %s given for %s",
			ErrInvalidRequest, hours.Weekday, req.Date.Weekday())
	}

	dayStart, err := parseTimeOnDate(req.Date, hours.StartTime)
	if err != nil {
		return DaySchedule{}, fmt.Errorf("parse start time: %w", err)
	}
	dayEnd, err := parseTimeOnDate(req.Date, hours.EndTime)
	if err != nil {
		return DaySchedule{}, fmt.Errorf("parse end time: %w", err)
	}
	if !dayStart.Before(dayEnd) {
		return DaySchedule{}, fmt.Errorf("%w: working hours %s-%s", ErrInvalidInterval, hours.StartTime, hours.EndTime)
	}

	busy := busyOnDay(req.BarberID, req.Date, occupied)
	duration := time.Duration(req.DurationMinutes) * time.Minute
	step := time.Duration(req.GranularityMinutes) * time.Minute

	slots := make([]Slot, 0)
	for cursor := dayStart; !cursor.Add(duration).After(dayEnd); cursor = cursor.Add(step) {
		slotEnd := cursor.Add(duration)

		blocked := overlapsAny(cursor, slotEnd, busy)
		if !req.NotBefore.IsZero() && cursor.Before(req.NotBefore) {
			blocked = true
		}
		if blocked && !req.IncludeUnavailable {
			continue
		}

		slots = append(slots, Slot{
			Start:    cursor,
			End:      slotEnd,
			Label:    cursor.Format(LabelLayout),
			Disabled: blocked,
		})
	}

	return DaySchedule{
		IsWorkingDay: true,
		WorkingHours: &Window{Start: dayStart, End: dayEnd},
		Slots:        slots,
	}, nil
}

// CheckConflict decides whether [start, end) is free for barberID. excludeID skips the
// appointment being rescheduled so it never conflicts with its own stored interval.
// Appointment conflicts are reported before blockout conflicts; within a kind the
// earliest interval wins.
func CheckConflict(barberID string, start, end time.Time, existing []Interval, excludeID string) (ConflictResult, error) {
	proposed := Interval{ID: "proposed", Kind: KindAppointment, Start: start, End: end}
	if err := proposed.Validate(); err != nil {
		return ConflictResult{}, err
	}
	if err := validateAll(existing); err != nil {
		return ConflictResult{}, err
	}

	var apptHit, blockHit *Interval
	for i := range existing {
		iv := &existing[i]
		if iv.Kind == KindAppointment && excludeID != "" && iv.ID == excludeID {
			continue
		}
		if !iv.appliesTo(barberID) || !iv.Occupies() || !iv.Overlaps(start, end) {
			continue
		}
		switch iv.Kind {
		case KindBlockout:
			if blockHit == nil || iv.Start.Before(blockHit.Start) {
				blockHit = iv
			}
		default:
			if apptHit == nil || iv.Start.Before(apptHit.Start) {
				apptHit = iv
			}
		}
	}

	switch {
	case apptHit != nil:
		return ConflictResult{Kind: ConflictAppointment, ConflictingID: apptHit.ID}, nil
	case blockHit != nil:
		return ConflictResult{Kind: ConflictBlockout, ConflictingID: blockHit.ID}, nil
	default:
		return ConflictResult{Available: true}, nil
	}
}

// ToSlotInfo converts slots to SlotInfo for UI.
func ToSlotInfo(slots []Slot) []SlotInfo {
	result := make([]SlotInfo, len(slots))
	for i, s := range slots {
		result[i] = SlotInfo{
			Time:           s.Label,
			StartTimestamp: s.Start.Format(time.RFC3339),
			Disabled:       s.Disabled,
		}
	}
	return result
}

// GetAvailableSlots returns only enabled slots.
func GetAvailableSlots(slots []Slot) []Slot {
	available := make([]Slot, 0, len(slots))
	for _, s := range slots {
		if !s.Disabled {
			available = append(available, s)
		}
	}
	return available
}

// DayBounds returns [00:00, next 00:00) of date's calendar day in its location.
func DayBounds(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1)
}

// busyOnDay keeps occupying intervals of the barber that touch date's calendar day,
// sorted by start.
func busyOnDay(barberID string, date time.Time, occupied []Interval) []Interval {
	from, to := DayBounds(date)
	busy := make([]Interval, 0, len(occupied))
	for _, iv := range occupied {
		if !iv.appliesTo(barberID) || !iv.Occupies() || !iv.Overlaps(from, to) {
			continue
		}
		busy = append(busy, iv)
	}
	sort.SliceStable(busy, func(i, j int) bool {
		return busy[i].Start.Before(busy[j].Start)
	})
	return busy
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if !b.Start.Before(end) {
			// sorted by start: nothing later can overlap
			return false
		}
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func parseTimeOnDate(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time format %q; expected HH:MM", clock)
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}
