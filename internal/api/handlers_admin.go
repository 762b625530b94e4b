package api

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"barbershop/internal/database"
	"barbershop/internal/export"
	"barbershop/internal/models"
)

type createBarberRequest struct {
	Name string `json:"name"`
}

type hoursEntry struct {
	Weekday   int    `json:"weekday"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	IsWorking bool   `json:"is_working"`
}

type setHoursRequest struct {
	Hours []hoursEntry `json:"hours"`
}

type createBlockoutRequest struct {
	BarberID string `json:"barber_id,omitempty"` // empty closes the whole shop
	Start    string `json:"start"`
	End      string `json:"end"`
	Reason   string `json:"reason,omitempty"`
}

type createBlockoutResponse struct {
	Blockout             *models.Blockout     `json:"blockout"`
	AffectedAppointments []models.Appointment `json:"affected_appointments"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// GET /api/admin/barbers
func (s *HTTPServer) handleAdminListBarbers(w http.ResponseWriter, r *http.Request) {
	barbers, err := s.svc.ListBarbers(r.Context(), false)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"barbers": barbers})
}

// POST /api/admin/barbers
func (s *HTTPServer) handleCreateBarber(w http.ResponseWriter, r *http.Request) {
	var req createBarberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.svc.CreateBarber(r.Context(), req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

// PUT /api/admin/barbers/{id}/hours
// Only the weekdays present in the body are replaced.
func (s *HTTPServer) handleSetHours(w http.ResponseWriter, r *http.Request) {
	var req setHoursRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Hours) == 0 {
		writeError(w, http.StatusBadRequest, "hours must not be empty")
		return
	}

	barberID := r.PathValue("id")
	seen := make(map[int]bool, len(req.Hours))
	rows := make([]*models.WorkingHours, 0, len(req.Hours))
	for _, h := range req.Hours {
		if seen[h.Weekday] {
			writeError(w, http.StatusBadRequest, "weekday listed more than once")
			return
		}
		seen[h.Weekday] = true
		row := &models.WorkingHours{
			BarberID:  barberID,
			Weekday:   time.Weekday(h.Weekday),
			StartTime: h.StartTime,
			EndTime:   h.EndTime,
			IsWorking: h.IsWorking,
		}
		if err := row.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rows = append(rows, row)
	}

	for _, row := range rows {
		if err := s.svc.SetWorkingHours(r.Context(), row); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
	}

	week, err := s.svc.ListWorkingHours(r.Context(), barberID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"barber_id": barberID, "hours": week})
}

// GET /api/admin/blockouts?barber_id=&from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleListBlockouts(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.dateRange(w, r)
	if !ok {
		return
	}
	list, err := s.svc.ListBlockouts(r.Context(), r.URL.Query().Get("barber_id"), from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"blockouts": list})
}

// POST /api/admin/blockouts
func (s *HTTPServer) handleCreateBlockout(w http.ResponseWriter, r *http.Request) {
	var req createBlockoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
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

	b := &models.Blockout{BarberID: req.BarberID, StartTime: start, EndTime: end, Reason: strings.TrimSpace(req.Reason)}
	affected, err := s.svc.AddBlockout(r.Context(), b)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createBlockoutResponse{Blockout: b, AffectedAppointments: affected})
}

// DELETE /api/admin/blockouts/{id}
func (s *HTTPServer) handleDeleteBlockout(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.RemoveBlockout(r.Context(), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/admin/appointments?barber_id=&email=&status=a,b&from=&to=
func (s *HTTPServer) handleAdminAppointments(w http.ResponseWriter, r *http.Request) {
	from, to, ok := s.dateRange(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := database.AppointmentFilter{
		BarberID: q.Get("barber_id"),
		Email:    q.Get("email"),
		From:     from,
		To:       to,
	}
	if raw := q.Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, known := models.ParseStatus(strings.TrimSpace(part))
			if !known {
				writeError(w, http.StatusBadRequest, "unknown status "+part)
				return
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	list, err := s.svc.ListAppointments(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": list})
}

// POST /api/admin/appointments/{id}/status
func (s *HTTPServer) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, known := models.ParseStatus(req.Status)
	if !known {
		writeError(w, http.StatusBadRequest, "unknown status "+req.Status)
		return
	}
	appt, err := s.svc.ChangeStatus(r.Context(), r.PathValue("id"), st)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// POST /api/admin/appointments/{id}/reschedule
func (s *HTTPServer) handleAdminReschedule(w http.ResponseWriter, r *http.Request) {
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
	appt, err := s.svc.Reschedule(r.Context(), r.PathValue("id"), start)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// GET /api/admin/export?month=YYYY-MM
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	month, err := time.ParseInLocation("2006-01", r.URL.Query().Get("month"), s.svc.Location())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid month format; expected YYYY-MM")
		return
	}

	appts, err := s.svc.ListAppointments(r.Context(), database.AppointmentFilter{
		From: month,
		To:   month.AddDate(0, 1, 0),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	barbers, err := s.svc.ListBarbers(r.Context(), false)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	names := make(map[string]string, len(barbers))
	for _, b := range barbers {
		names[b.ID] = b.Name
	}

	var buf bytes.Buffer
	if err := export.WriteAppointments(&buf, month, appts, names, s.svc.Location()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(month)+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// dateRange reads optional from/to dates; to is inclusive. Defaults cover the
// next 30 days.
func (s *HTTPServer) dateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	now := time.Now().In(s.svc.Location())
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	to := from.AddDate(0, 0, 30)

	var err error
	if v := q.Get("from"); v != "" {
		if from, err = s.parseDate(v, "from"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return time.Time{}, time.Time{}, false
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = s.parseDate(v, "to"); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return time.Time{}, time.Time{}, false
		}
		to = to.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before or equal to to")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
