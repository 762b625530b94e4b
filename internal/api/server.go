// Package api exposes the booking service over JSON HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"barbershop/internal/availability"
	"barbershop/internal/booking"
	"barbershop/internal/database"
	"barbershop/internal/models"

	"github.com/rs/zerolog"
)

// BookingService is implemented by *booking.Service.
type BookingService interface {
	Location() *time.Location
	ListBarbers(ctx context.Context, activeOnly bool) ([]models.Barber, error)
	CreateBarber(ctx context.Context, name string) (*models.Barber, error)
	GetDaySchedule(ctx context.Context, barberID string, date time.Time, durationMinutes int) (availability.DaySchedule, error)
	CheckAvailability(ctx context.Context, barberID string, start, end time.Time, excludeID string) (availability.ConflictResult, error)
	Book(ctx context.Context, req booking.BookRequest) (*models.Appointment, error)
	Reschedule(ctx context.Context, id string, newStart time.Time) (*models.Appointment, error)
	ChangeStatus(ctx context.Context, id string, to models.AppointmentStatus) (*models.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	Lookup(ctx context.Context, email string) ([]models.Appointment, error)
	ListAppointments(ctx context.Context, f database.AppointmentFilter) ([]models.Appointment, error)
	SetWorkingHours(ctx context.Context, w *models.WorkingHours) error
	ListWorkingHours(ctx context.Context, barberID string) ([]models.WorkingHours, error)
	AddBlockout(ctx context.Context, b *models.Blockout) ([]models.Appointment, error)
	RemoveBlockout(ctx context.Context, id string) error
	ListBlockouts(ctx context.Context, barberID string, from, to time.Time) ([]models.Blockout, error)
}

type Config struct {
	AdminKey        string
	MaxBodyBytes    int64
	RateLimitPerMin int
	RateLimitBurst  int
	// TrustProxy keys the rate limit on X-Forwarded-For instead of the peer address.
	TrustProxy bool
	// MaxDurationMinutes caps the service length accepted by the slot listing.
	MaxDurationMinutes int
}

type HTTPServer struct {
	svc     BookingService
	cfg     Config
	logger  *zerolog.Logger
	limiter *RateLimiter
	handler http.Handler
}

func NewHTTPServer(svc BookingService, cfg Config, logger *zerolog.Logger) *HTTPServer {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	if cfg.RateLimitPerMin <= 0 {
		cfg.RateLimitPerMin = 60
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 10
	}
	if cfg.MaxDurationMinutes <= 0 {
		cfg.MaxDurationMinutes = 8 * 60
	}

	s := &HTTPServer{
		svc:     svc,
		cfg:     cfg,
		logger:  logger,
		limiter: NewRateLimiter(cfg.RateLimitPerMin, cfg.RateLimitBurst, cfg.TrustProxy),
	}
	s.handler = s.routes()
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) routes() http.Handler {
	public := http.NewServeMux()
	public.HandleFunc("GET /api/barbers", s.handleListBarbers)
	public.HandleFunc("GET /api/barbers/{id}/hours", s.handleListHours)
	public.HandleFunc("GET /api/barbers/{id}/slots", s.handleSlots)
	public.HandleFunc("POST /api/availability/check", s.handleCheckAvailability)
	public.HandleFunc("POST /api/appointments", s.handleBook)
	public.HandleFunc("GET /api/appointments", s.handleLookup)
	public.HandleFunc("GET /api/appointments/{id}", s.handleGetAppointment)
	public.HandleFunc("POST /api/appointments/{id}/reschedule", s.handleReschedule)
	public.HandleFunc("POST /api/appointments/{id}/cancel", s.handleCancel)

	admin := http.NewServeMux()
	admin.HandleFunc("GET /api/admin/barbers", s.handleAdminListBarbers)
	admin.HandleFunc("POST /api/admin/barbers", s.handleCreateBarber)
	admin.HandleFunc("PUT /api/admin/barbers/{id}/hours", s.handleSetHours)
	admin.HandleFunc("GET /api/admin/blockouts", s.handleListBlockouts)
	admin.HandleFunc("POST /api/admin/blockouts", s.handleCreateBlockout)
	admin.HandleFunc("DELETE /api/admin/blockouts/{id}", s.handleDeleteBlockout)
	admin.HandleFunc("GET /api/admin/appointments", s.handleAdminAppointments)
	admin.HandleFunc("POST /api/admin/appointments/{id}/status", s.handleChangeStatus)
	admin.HandleFunc("POST /api/admin/appointments/{id}/reschedule", s.handleAdminReschedule)
	admin.HandleFunc("GET /api/admin/export", s.handleExport)

	root := http.NewServeMux()
	root.Handle("/api/admin/", s.requireAdmin(admin))
	root.Handle("/api/", Chain(public, s.limiter.Middleware()))

	return Chain(root,
		WithRequestID,
		WithRecover(s.logger),
		WithAccessLog(s.logger),
		WithBodyLimit(s.cfg.MaxBodyBytes),
	)
}

// AdminKeyHeader carries the shared admin secret.
const AdminKeyHeader = "X-Api-Key"

func (s *HTTPServer) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(AdminKeyHeader)
		if s.cfg.AdminKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.AdminKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
