package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventBus_PublishToSubscribers(t *testing.T) {
	bus := NewEventBus(nil)

	var got []string
	bus.Subscribe(func(e Event) error {
		got = append(got, "first:"+e.Type)
		return errors.New("ignored")
	}, AppointmentCreated, BlockoutCreated)
	bus.Subscribe(func(e Event) error {
		got = append(got, "second:"+e.Type)
		assert.False(t, e.CreatedAt.IsZero())
		return nil
	}, AppointmentCreated)

	bus.Publish(Event{Type: AppointmentCreated, BarberID: "b1"})
	bus.Publish(Event{Type: BlockoutCreated})
	bus.Publish(Event{Type: WorkingHoursUpdated})

	assert.Equal(t, []string{
		"first:" + AppointmentCreated,
		"second:" + AppointmentCreated,
		"first:" + BlockoutCreated,
	}, got)
}

func TestAllScheduleEvents_CoversAppointmentEvents(t *testing.T) {
	assert.Subset(t, AllScheduleEvents(), AllAppointmentEvents())
}
