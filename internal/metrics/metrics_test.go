package metrics

import (
	"testing"

	"barbershop/internal/events"
	"barbershop/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSubscribe_CountsEvents(t *testing.T) {
	Register()
	Register()

	bus := events.NewEventBus(nil)
	Subscribe(bus)

	before := testutil.ToFloat64(appointmentsBooked.WithLabelValues("metrics-b1"))
	bus.Publish(events.Event{Type: events.AppointmentCreated, BarberID: "metrics-b1"})
	bus.Publish(events.Event{Type: events.AppointmentCreated, BarberID: "metrics-b1"})
	assert.Equal(t, before+2, testutil.ToFloat64(appointmentsBooked.WithLabelValues("metrics-b1")))

	cancelled := testutil.ToFloat64(statusChanges.WithLabelValues("cancelled"))
	bus.Publish(events.Event{
		Type:        events.AppointmentStatusChanged,
		Appointment: &models.Appointment{Status: models.StatusCancelled},
	})
	assert.Equal(t, cancelled+1, testutil.ToFloat64(statusChanges.WithLabelValues("cancelled")))
}

func TestIncBookingConflict(t *testing.T) {
	before := testutil.ToFloat64(bookingConflicts.WithLabelValues("BLOCKOUT"))
	IncBookingConflict("BLOCKOUT")
	assert.Equal(t, before+1, testutil.ToFloat64(bookingConflicts.WithLabelValues("BLOCKOUT")))
}
