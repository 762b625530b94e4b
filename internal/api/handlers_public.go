package api

import (
	"net/http"
	"strconv"
	"strings"

	"barbershop/internal/availability"
	"barbershop/internal/booking"
	"barbershop/internal/models"
)

// slotsResponse is the slot listing for one barber and day.
type slotsResponse struct {
	BarberID        string                  `json:"barberId"`
	Date            string                  `json:"date"`
	DurationMinutes int                     `json:"durationMinutes"`
	IsWorkingDay    bool                    `json:"isWorkingDay"`
	WorkingHours    *availability.Window    `json:"workingHours,omitempty"`
	Slots           []availability.SlotInfo `json:"slots"`
}

type checkAvailabilityRequest struct {
	BarberID  string `json:"barber_id"`
	Start     string `json:"start"` // RFC3339
	End       string `json:"end"`   // RFC3339
	ExcludeID string `json:"exclude_id,omitempty"`
}

type bookRequest struct {
	BarberID        string `json:"barber_id"`
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	CustomerPhone   string `json:"customer_phone,omitempty"`
	Service         string `json:"service"`
	DurationMinutes int    `json:"duration_minutes"`
	Start           string `json:"start"` // RFC3339
	Notes           string `json:"notes,omitempty"`
}

type rescheduleRequest struct {
	Email string `json:"email,omitempty"`
	Start string `json:"start"` // RFC3339
}

type cancelRequest struct {
	Email string `json:"email"`
}

// GET /api/barbers
func (s *HTTPServer) handleListBarbers(w http.ResponseWriter, r *http.Request) {
	barbers, err := s.svc.ListBarbers(r.Context(), true)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"barbers": barbers})
}

// GET /api/barbers/{id}/hours
func (s *HTTPServer) handleListHours(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	hours, err := s.svc.ListWorkingHours(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"barber_id": id, "hours": hours})
}

// GET /api/barbers/{id}/slots?date=YYYY-MM-DD&duration=60[&all=true]
func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	barberID := r.PathValue("id")
	q := r.URL.Query()

	date, err := s.parseDate(q.Get("date"), "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	duration, err := strconv.Atoi(q.Get("duration"))
	if err != nil || duration <= 0 {
		writeError(w, http.StatusBadRequest, "duration must be a positive number of minutes")
		return
	}
	if duration > s.cfg.MaxDurationMinutes {
		writeError(w, http.StatusBadRequest, "duration exceeds maximum of "+strconv.Itoa(s.cfg.MaxDurationMinutes)+" minutes")
		return
	}

	includeAll := false
	if v := q.Get("all"); v != "" {
		includeAll, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "all must be true or false")
			return
		}
	}

	day, err := s.svc.GetDaySchedule(r.Context(), barberID, date, duration)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	slots := day.Slots
	if !includeAll {
		slots = availability.GetAvailableSlots(slots)
	}

	writeJSON(w, http.StatusOK, slotsResponse{
		BarberID:        barberID,
		Date:            date.Format("2006-01-02"),
		DurationMinutes: duration,
		IsWorkingDay:    day.IsWorkingDay,
		WorkingHours:    day.WorkingHours,
		Slots:           availability.ToSlotInfo(slots),
	})
}

// POST /api/availability/check
func (s *HTTPServer) handleCheckAvailability(w http.ResponseWriter, r *http.Request) {
	var req checkAvailabilityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.BarberID) == "" {
		writeError(w, http.StatusBadRequest, "barber_id is required")
		return
	}
	start, err := parseTimestamp(req.Start, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := parseTimestamp(req.End, "end")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.svc.CheckAvailability(r.Context(), req.BarberID, start, end, req.ExcludeID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// POST /api/appointments
func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request) {
	var req bookRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := parseTimestamp(req.Start, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	appt, err := s.svc.Book(r.Context(), booking.BookRequest{
		BarberID:        req.BarberID,
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerPhone:   req.CustomerPhone,
		Service:         req.Service,
		DurationMinutes: req.DurationMinutes,
		Start:           start,
		Notes:           req.Notes,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/appointments/"+appt.ID)
	writeJSON(w, http.StatusCreated, appt)
}

// GET /api/appointments?email=...
func (s *HTTPServer) handleLookup(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}
	list, err := s.svc.Lookup(r.Context(), email)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

// GET /api/appointments/{id}?email=
// The response carries customer contact details, so the booking email is required.
func (s *HTTPServer) handleGetAppointment(w http.ResponseWriter, r *http.Request) {
	appt, ok := s.ownsAppointment(w, r, r.PathValue("id"), strings.TrimSpace(r.URL.Query().Get("email")))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// POST /api/appointments/{id}/reschedule
// The customer proves ownership with the booking email.
func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	var req rescheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := parseTimestamp(req.Start, "start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	if _, ok := s.ownsAppointment(w, r, id, req.Email); !ok {
		return
	}

	appt, err := s.svc.Reschedule(r.Context(), id, start)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// POST /api/appointments/{id}/cancel
func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id := r.PathValue("id")
	if _, ok := s.ownsAppointment(w, r, id, req.Email); !ok {
		return
	}

	appt, err := s.svc.ChangeStatus(r.Context(), id, models.StatusCancelled)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// ownsAppointment answers 404 both for unknown IDs and for a wrong email.
func (s *HTTPServer) ownsAppointment(w http.ResponseWriter, r *http.Request, id, email string) (*models.Appointment, bool) {
	if email == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return nil, false
	}
	appt, err := s.svc.GetAppointment(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return nil, false
	}
	if !sameEmail(appt.CustomerEmail, email) {
		writeError(w, http.StatusNotFound, booking.ErrNotFound.Error())
		return nil, false
	}
	return appt, true
}
