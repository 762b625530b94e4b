// Package booking runs the appointment use cases on top of the availability engine
// and the sqlite store.
package booking

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"barbershop/internal/availability"
	"barbershop/internal/database"
	"barbershop/internal/events"
	"barbershop/internal/metrics"
	"barbershop/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrSlotTaken          = errors.New("time slot already booked")
	ErrBarberUnavailable  = errors.New("barber not available during this time")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrNotFound           = errors.New("not found")
	ErrBarberInactive     = errors.New("barber is not accepting bookings")
	ErrTooSoon            = errors.New("appointment starts too soon")
	ErrTooFar             = errors.New("appointment is too far in the future")
	ErrOutsideHours       = errors.New("appointment is outside working hours")
	ErrNotReschedulable   = errors.New("appointment can no longer be rescheduled")
	ErrValidation         = errors.New("validation failed")
	ErrConcurrentModified = errors.New("appointment was changed concurrently")
)

// Repository is the storage the service needs; *database.DB implements it.
type Repository interface {
	GetBarber(ctx context.Context, id string) (*models.Barber, error)
	ListBarbers(ctx context.Context, activeOnly bool) ([]models.Barber, error)
	CreateBarber(ctx context.Context, b *models.Barber) error

	GetWorkingHours(ctx context.Context, barberID string, weekday time.Weekday) (*models.WorkingHours, error)
	ListWorkingHours(ctx context.Context, barberID string) ([]models.WorkingHours, error)
	UpsertWorkingHours(ctx context.Context, w *models.WorkingHours) error

	ListIntervals(ctx context.Context, barberID string, from, to time.Time) ([]availability.Interval, error)
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	ListAppointments(ctx context.Context, f database.AppointmentFilter) ([]models.Appointment, error)
	ListAppointmentsByEmail(ctx context.Context, email string) ([]models.Appointment, error)
	CreateAppointmentChecked(ctx context.Context, a *models.Appointment, gate database.GateFunc) error
	RescheduleAppointmentChecked(ctx context.Context, id string, start, end time.Time, gate database.GateFunc) (*models.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, id string, from, to models.AppointmentStatus) error

	CreateBlockout(ctx context.Context, b *models.Blockout) error
	GetBlockout(ctx context.Context, id string) (*models.Blockout, error)
	DeleteBlockout(ctx context.Context, id string) error
	ListBlockouts(ctx context.Context, barberID string, from, to time.Time) ([]models.Blockout, error)
}

// SlotCache stores computed day schedules; *cache.SlotCache implements it.
type SlotCache interface {
	Generation(ctx context.Context, barberID string, date time.Time) string
	Get(ctx context.Context, barberID string, date time.Time, durationMinutes int) (availability.DaySchedule, bool)
	Set(ctx context.Context, barberID string, date time.Time, durationMinutes int, generation string, day availability.DaySchedule)
	Invalidate(ctx context.Context, barberID string, date time.Time) error
}

type Publisher interface {
	Publish(event events.Event)
}

type Options struct {
	Location           *time.Location
	GranularityMinutes int
	MinAdvance         time.Duration
	MaxAdvance         time.Duration
	Now                func() time.Time
}

type Service struct {
	repo   Repository
	cache  SlotCache
	bus    Publisher
	opts   Options
	logger *zerolog.Logger
}

// NewService wires the service. cache and bus may be nil.
func NewService(repo Repository, cache SlotCache, bus Publisher, opts Options, logger *zerolog.Logger) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.GranularityMinutes <= 0 {
		opts.GranularityMinutes = 30
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{repo: repo, cache: cache, bus: bus, opts: opts, logger: logger}
}

// Location is the shop time zone.
func (s *Service) Location() *time.Location {
	return s.opts.Location
}

// BookRequest is a customer's booking.
type BookRequest struct {
	BarberID        string
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Service         string
	DurationMinutes int
	Start           time.Time
	Notes           string
}

func (r BookRequest) validate() error {
	var problems []string
	if strings.TrimSpace(r.BarberID) == "" {
		problems = append(problems, "barber_id is required")
	}
	if strings.TrimSpace(r.CustomerName) == "" {
		problems = append(problems, "customer_name is required")
	}
	if _, err := mail.ParseAddress(r.CustomerEmail); err != nil {
		problems = append(problems, "customer_email is invalid")
	}
	if r.DurationMinutes <= 0 {
		problems = append(problems, "duration_minutes must be positive")
	}
	if r.Start.IsZero() {
		problems = append(problems, "start is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// ListBarbers returns active barbers when activeOnly is set.
func (s *Service) ListBarbers(ctx context.Context, activeOnly bool) ([]models.Barber, error) {
	return s.repo.ListBarbers(ctx, activeOnly)
}

func (s *Service) CreateBarber(ctx context.Context, name string) (*models.Barber, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	b := &models.Barber{ID: uuid.NewString(), Name: name, IsActive: true}
	if err := s.repo.CreateBarber(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GetDaySchedule returns every candidate slot of the barber's day for the duration.
// Slots that are taken or start before now + minimum notice come back disabled;
// callers that only want bookable ones keep availability.GetAvailableSlots of them.
func (s *Service) GetDaySchedule(ctx context.Context, barberID string, date time.Time, durationMinutes int) (availability.DaySchedule, error) {
	if _, err := s.activeBarber(ctx, barberID); err != nil {
		return availability.DaySchedule{}, err
	}

	day := s.localDay(date)
	started := time.Now()

	// Read before the intervals load: a write committed after that read bumps
	// the generation, and the entry stored below is then never served.
	var generation string
	if s.cache != nil {
		generation = s.cache.Generation(ctx, barberID, day)
	}

	schedule, hit := s.cachedSchedule(ctx, barberID, day, durationMinutes)
	if !hit {
		var err error
		schedule, err = s.computeSchedule(ctx, barberID, day, durationMinutes)
		if err != nil {
			return availability.DaySchedule{}, err
		}
		if s.cache != nil {
			s.cache.Set(ctx, barberID, day, durationMinutes, generation, schedule)
		}
		metrics.ObserveSlotCompute(time.Since(started).Seconds())
	}

	notBefore := s.opts.Now().Add(s.opts.MinAdvance)
	for i := range schedule.Slots {
		if schedule.Slots[i].Start.Before(notBefore) {
			schedule.Slots[i].Disabled = true
		}
	}
	return schedule, nil
}

func (s *Service) cachedSchedule(ctx context.Context, barberID string, day time.Time, durationMinutes int) (availability.DaySchedule, bool) {
	if s.cache == nil {
		metrics.IncSlotQuery("disabled")
		return availability.DaySchedule{}, false
	}
	schedule, ok := s.cache.Get(ctx, barberID, day, durationMinutes)
	if ok {
		metrics.IncSlotQuery("hit")
	} else {
		metrics.IncSlotQuery("miss")
	}
	return schedule, ok
}

// computeSchedule is cacheable: it does not depend on the current time.
func (s *Service) computeSchedule(ctx context.Context, barberID string, day time.Time, durationMinutes int) (availability.DaySchedule, error) {
	hours, err := s.repo.GetWorkingHours(ctx, barberID, day.Weekday())
	if err != nil {
		return availability.DaySchedule{}, fmt.Errorf("load working hours: %w", err)
	}

	from, to := availability.DayBounds(day)
	occupied, err := s.repo.ListIntervals(ctx, barberID, from, to)
	if err != nil {
		return availability.DaySchedule{}, err
	}

	return availability.ComputeDailySlots(availability.SlotRequest{
		BarberID:           barberID,
		Date:               day,
		DurationMinutes:    durationMinutes,
		GranularityMinutes: s.opts.GranularityMinutes,
		IncludeUnavailable: true,
	}, availability.HoursFrom(hours), occupied)
}

// CheckAvailability is the binary form of the engine against stored intervals.
func (s *Service) CheckAvailability(ctx context.Context, barberID string, start, end time.Time, excludeID string) (availability.ConflictResult, error) {
	if !start.Before(end) {
		return availability.ConflictResult{}, fmt.Errorf("%w: end must be after start", availability.ErrInvalidInterval)
	}
	if _, err := s.activeBarber(ctx, barberID); err != nil {
		return availability.ConflictResult{}, err
	}
	existing, err := s.repo.ListIntervals(ctx, barberID, start, end)
	if err != nil {
		return availability.ConflictResult{}, err
	}
	return availability.CheckConflict(barberID, start, end, existing, excludeID)
}

// Book creates a pending appointment. The conflict check and the insert run in one
// storage transaction, so two racing requests for the same time cannot both succeed.
func (s *Service) Book(ctx context.Context, req BookRequest) (*models.Appointment, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if _, err := s.activeBarber(ctx, req.BarberID); err != nil {
		return nil, err
	}

	start := req.Start.In(s.opts.Location)
	end := start.Add(time.Duration(req.DurationMinutes) * time.Minute)
	if err := s.checkWindow(ctx, req.BarberID, start, end); err != nil {
		return nil, err
	}

	appt := &models.Appointment{
		ID:              uuid.NewString(),
		BarberID:        req.BarberID,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerEmail:   strings.ToLower(strings.TrimSpace(req.CustomerEmail)),
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		Service:         strings.TrimSpace(req.Service),
		DurationMinutes: req.DurationMinutes,
		StartTime:       start,
		EndTime:         end,
		Status:          models.StatusPending,
		Notes:           req.Notes,
	}

	err := s.repo.CreateAppointmentChecked(ctx, appt, conflictGate(appt.BarberID, start, end, ""))
	if err != nil {
		return nil, s.mapConflict(err)
	}

	s.logger.Info().
		Str("appointment_id", appt.ID).
		Str("barber_id", appt.BarberID).
		Time("start", appt.StartTime).
		Msg("Appointment booked")

	s.publish(ctx, events.Event{
		Type:        events.AppointmentCreated,
		BarberID:    appt.BarberID,
		Appointment: appt,
		Days:        []time.Time{start},
	})
	return appt, nil
}

// Reschedule moves an appointment to newStart, keeping its duration. The appointment's
// own stored interval is excluded from the conflict check.
func (s *Service) Reschedule(ctx context.Context, id string, newStart time.Time) (*models.Appointment, error) {
	current, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status != models.StatusPending && current.Status != models.StatusConfirmed {
		return nil, fmt.Errorf("%w: status is %s", ErrNotReschedulable, current.Status)
	}

	start := newStart.In(s.opts.Location)
	end := start.Add(current.Duration())
	if err := s.checkWindow(ctx, current.BarberID, start, end); err != nil {
		return nil, err
	}

	moved, err := s.repo.RescheduleAppointmentChecked(ctx, id, start, end, conflictGate(current.BarberID, start, end, id))
	if err != nil {
		return nil, s.mapConflict(err)
	}

	s.logger.Info().
		Str("appointment_id", id).
		Time("from", current.StartTime).
		Time("to", moved.StartTime).
		Msg("Appointment rescheduled")

	s.publish(ctx, events.Event{
		Type:          events.AppointmentRescheduled,
		BarberID:      moved.BarberID,
		Appointment:   moved,
		PreviousStart: current.StartTime,
		Days:          []time.Time{current.StartTime, start},
	})
	return moved, nil
}

// ChangeStatus applies one lifecycle transition. Cancelling or marking a no-show
// releases the appointment's time.
func (s *Service) ChangeStatus(ctx context.Context, id string, to models.AppointmentStatus) (*models.Appointment, error) {
	current, err := s.GetAppointment(ctx, id)
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(current.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, to)
	}

	if err := s.repo.UpdateAppointmentStatus(ctx, id, current.Status, to); err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, database.ErrConcurrentModification):
			return nil, ErrConcurrentModified
		}
		return nil, err
	}

	previous := current.Status
	current.Status = to
	current.UpdatedAt = s.opts.Now().UTC()

	s.logger.Info().
		Str("appointment_id", id).
		Str("from", string(previous)).
		Str("to", string(to)).
		Msg("Appointment status changed")

	s.publish(ctx, events.Event{
		Type:           events.AppointmentStatusChanged,
		BarberID:       current.BarberID,
		Appointment:    current,
		PreviousStatus: previous,
		Days:           []time.Time{current.StartTime},
	})
	return current, nil
}

func (s *Service) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	a, err := s.repo.GetAppointment(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	return a, err
}

// Lookup returns a customer's appointments by email, newest first.
func (s *Service) Lookup(ctx context.Context, email string) ([]models.Appointment, error) {
	email = strings.TrimSpace(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: email is invalid", ErrValidation)
	}
	return s.repo.ListAppointmentsByEmail(ctx, email)
}

func (s *Service) ListAppointments(ctx context.Context, f database.AppointmentFilter) ([]models.Appointment, error) {
	return s.repo.ListAppointments(ctx, f)
}

// SetWorkingHours replaces the barber's row for w.Weekday.
func (s *Service) SetWorkingHours(ctx context.Context, w *models.WorkingHours) error {
	if _, err := s.barber(ctx, w.BarberID); err != nil {
		return err
	}
	if err := w.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	if err := s.repo.UpsertWorkingHours(ctx, w); err != nil {
		return err
	}
	s.publish(ctx, events.Event{Type: events.WorkingHoursUpdated, BarberID: w.BarberID})
	return nil
}

func (s *Service) ListWorkingHours(ctx context.Context, barberID string) ([]models.WorkingHours, error) {
	if _, err := s.barber(ctx, barberID); err != nil {
		return nil, err
	}
	return s.repo.ListWorkingHours(ctx, barberID)
}

// AddBlockout stores a blockout and returns the appointments it overlaps. Those
// appointments are not touched; the admin decides what to do with them.
func (s *Service) AddBlockout(ctx context.Context, b *models.Blockout) ([]models.Appointment, error) {
	if !b.StartTime.Before(b.EndTime) {
		return nil, fmt.Errorf("%w: end must be after start", ErrValidation)
	}
	if b.BarberID != "" {
		if _, err := s.barber(ctx, b.BarberID); err != nil {
			return nil, err
		}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if err := s.repo.CreateBlockout(ctx, b); err != nil {
		return nil, err
	}

	affected, err := s.repo.ListAppointments(ctx, database.AppointmentFilter{
		BarberID: b.BarberID,
		From:     b.StartTime,
		To:       b.EndTime,
		Statuses: []models.AppointmentStatus{models.StatusPending, models.StatusConfirmed},
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("blockout_id", b.ID).
		Str("barber_id", b.BarberID).
		Int("affected", len(affected)).
		Msg("Blockout added")

	s.publish(ctx, events.Event{
		Type:     events.BlockoutCreated,
		BarberID: b.BarberID,
		Blockout: b,
		Days:     s.daysCovered(b.StartTime, b.EndTime),
	})
	return affected, nil
}

func (s *Service) RemoveBlockout(ctx context.Context, id string) error {
	b, err := s.repo.GetBlockout(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := s.repo.DeleteBlockout(ctx, id); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	s.publish(ctx, events.Event{
		Type:     events.BlockoutDeleted,
		BarberID: b.BarberID,
		Blockout: b,
		Days:     s.daysCovered(b.StartTime, b.EndTime),
	})
	return nil
}

func (s *Service) ListBlockouts(ctx context.Context, barberID string, from, to time.Time) ([]models.Blockout, error) {
	return s.repo.ListBlockouts(ctx, barberID, from, to)
}

// InvalidateCache drops cached schedules touched by an event. It is subscribed to the bus.
func (s *Service) InvalidateCache(e events.Event) error {
	if s.cache == nil {
		return nil
	}
	ctx := context.Background()
	if e.Type == events.WorkingHoursUpdated {
		// Weekly hours change every future date; drop the bookable horizon.
		e.Days = s.daysCovered(s.opts.Now(), s.opts.Now().Add(s.horizon()))
	}
	var errs []error
	for _, day := range e.Days {
		if err := s.cache.Invalidate(ctx, e.BarberID, s.localDay(day)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// checkWindow enforces notice, horizon and working hours for [start, end).
func (s *Service) checkWindow(ctx context.Context, barberID string, start, end time.Time) error {
	now := s.opts.Now()
	if start.Before(now.Add(s.opts.MinAdvance)) {
		return ErrTooSoon
	}
	if start.After(now.Add(s.horizon())) {
		return ErrTooFar
	}

	hours, err := s.repo.GetWorkingHours(ctx, barberID, start.Weekday())
	if err != nil {
		return fmt.Errorf("load working hours: %w", err)
	}
	if hours == nil || !hours.IsWorking {
		return ErrOutsideHours
	}
	opens, err := models.ParseClock(hours.StartTime)
	if err != nil {
		return err
	}
	closes, err := models.ParseClock(hours.EndTime)
	if err != nil {
		return err
	}
	if start.Before(clockOn(start, opens)) || end.After(clockOn(start, closes)) {
		return ErrOutsideHours
	}
	return nil
}

func (s *Service) horizon() time.Duration {
	if s.opts.MaxAdvance <= 0 {
		return 60 * 24 * time.Hour
	}
	return s.opts.MaxAdvance
}

type conflictError struct {
	kind availability.ConflictKind
	id   string
}

func (e *conflictError) Error() string {
	return fmt.Sprintf("conflict with %s %s", e.kind, e.id)
}

func conflictGate(barberID string, start, end time.Time, excludeID string) database.GateFunc {
	return func(existing []availability.Interval) error {
		res, err := availability.CheckConflict(barberID, start, end, existing, excludeID)
		if err != nil {
			return err
		}
		if !res.Available {
			return &conflictError{kind: res.Kind, id: res.ConflictingID}
		}
		return nil
	}
}

func (s *Service) mapConflict(err error) error {
	var ce *conflictError
	if errors.As(err, &ce) {
		metrics.IncBookingConflict(string(ce.kind))
		s.logger.Debug().Str("kind", string(ce.kind)).Str("conflicting_id", ce.id).Msg("Booking rejected")
		if ce.kind == availability.ConflictBlockout {
			return ErrBarberUnavailable
		}
		return ErrSlotTaken
	}
	switch {
	case errors.Is(err, database.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, database.ErrConcurrentModification):
		return ErrConcurrentModified
	}
	return err
}

func (s *Service) activeBarber(ctx context.Context, id string) (*models.Barber, error) {
	b, err := s.barber(ctx, id)
	if err != nil {
		return nil, err
	}
	if !b.IsActive {
		return nil, ErrBarberInactive
	}
	return b, nil
}

func (s *Service) barber(ctx context.Context, id string) (*models.Barber, error) {
	b, err := s.repo.GetBarber(ctx, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("barber %s: %w", id, ErrNotFound)
	}
	return b, err
}

func (s *Service) publish(_ context.Context, e events.Event) {
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

// localDay returns midnight of t's calendar day in shop time.
func (s *Service) localDay(t time.Time) time.Time {
	start, _ := availability.DayBounds(t.In(s.opts.Location))
	return start
}

// daysCovered lists shop-local midnights of every day [from, to) touches.
func (s *Service) daysCovered(from, to time.Time) []time.Time {
	var days []time.Time
	for day := s.localDay(from); day.Before(to); day = day.AddDate(0, 0, 1) {
		days = append(days, day)
	}
	return days
}

// clockOn places a wall-clock offset on day's date without drifting across DST changes.
func clockOn(day time.Time, clock time.Duration) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(),
		int(clock/time.Hour), int(clock%time.Hour/time.Minute), 0, 0, day.Location())
}
