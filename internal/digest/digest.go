// Package digest posts the next day's appointments to the admin chat once a day.
package digest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"barbershop/internal/database"
	"barbershop/internal/models"

	"github.com/rs/zerolog"
)

type Source interface {
	ListAppointments(ctx context.Context, f database.AppointmentFilter) ([]models.Appointment, error)
	ListBarbers(ctx context.Context, activeOnly bool) ([]models.Barber, error)
}

// Sink delivers the finished text, e.g. (*notify.Notifier).Enqueue.
type Sink func(text string) error

type Config struct {
	Location *time.Location
	// At is the time of day (offset from local midnight) after which the digest is sent.
	At            time.Duration
	CheckInterval time.Duration
	Now           func() time.Time
}

type Scheduler struct {
	cfg    Config
	source Source
	sink   Sink
	logger *zerolog.Logger

	mu          sync.Mutex
	lastRunDate string // YYYY-MM-DD, shop time
}

func NewScheduler(cfg Config, source Source, sink Sink, logger *zerolog.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{cfg: cfg, source: source, sink: sink, logger: logger}
}

// Start checks the clock every CheckInterval until ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().
		Str("daily_time", s.formatTime()).
		Str("timezone", s.cfg.Location.String()).
		Msg("Digest scheduler started")

	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAndRun(ctx)
		}
	}
}

// checkAndRun sends at most one digest per local day, the first time the clock
// is past the configured time. A process started late in the day still sends.
func (s *Scheduler) checkAndRun(ctx context.Context) bool {
	now := s.cfg.Now().In(s.cfg.Location)
	today := now.Format("2006-01-02")
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.cfg.Location)
	if now.Before(midnight.Add(s.cfg.At)) {
		return false
	}

	s.mu.Lock()
	if s.lastRunDate == today {
		s.mu.Unlock()
		return false
	}
	s.lastRunDate = today
	s.mu.Unlock()

	if err := s.RunNow(ctx, midnight.AddDate(0, 0, 1)); err != nil {
		s.logger.Error().Err(err).Str("date", today).Msg("Digest failed")
	}
	return true
}

// RunNow builds and sends the digest for day.
func (s *Scheduler) RunNow(ctx context.Context, day time.Time) error {
	text, count, err := s.Build(ctx, day)
	if err != nil {
		return err
	}
	if err := s.sink(text); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	s.logger.Info().
		Str("day", day.Format("2006-01-02")).
		Int("appointments", count).
		Msg("Digest sent")
	return nil
}

// Build renders the pending and confirmed appointments of day grouped by barber.
func (s *Scheduler) Build(ctx context.Context, day time.Time) (string, int, error) {
	day = day.In(s.cfg.Location)
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.cfg.Location)

	appts, err := s.source.ListAppointments(ctx, database.AppointmentFilter{
		From:     from,
		To:       from.AddDate(0, 0, 1),
		Statuses: []models.AppointmentStatus{models.StatusPending, models.StatusConfirmed},
	})
	if err != nil {
		return "", 0, fmt.Errorf("list appointments: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Schedule for %s", from.Format("Mon Jan 2"))
	if len(appts) == 0 {
		b.WriteString("\nNo appointments.")
		return b.String(), 0, nil
	}

	barbers, err := s.source.ListBarbers(ctx, false)
	if err != nil {
		return "", 0, fmt.Errorf("list barbers: %w", err)
	}
	names := make(map[string]string, len(barbers))
	for _, br := range barbers {
		names[br.ID] = br.Name
	}

	byBarber := map[string][]models.Appointment{}
	for _, a := range appts {
		byBarber[a.BarberID] = append(byBarber[a.BarberID], a)
	}
	ids := make([]string, 0, len(byBarber))
	for id := range byBarber {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return nameOr(names, ids[i]) < nameOr(names, ids[j]) })

	for _, id := range ids {
		list := byBarber[id]
		sort.Slice(list, func(i, j int) bool { return list[i].StartTime.Before(list[j].StartTime) })

		fmt.Fprintf(&b, "\n\n%s (%d)", nameOr(names, id), len(list))
		for _, a := range list {
			mark := ""
			if a.Status == models.StatusPending {
				mark = " [unconfirmed]"
			}
			fmt.Fprintf(&b, "\n%s %s, %s%s",
				a.StartTime.In(s.cfg.Location).Format("15:04"), a.CustomerName, a.Service, mark)
		}
	}
	return b.String(), len(appts), nil
}

func (s *Scheduler) formatTime() string {
	return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).Add(s.cfg.At).Format("15:04")
}

func nameOr(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return id
}
