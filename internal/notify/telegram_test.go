package notify

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"barbershop/internal/events"
	"barbershop/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
	errs []error
	done chan struct{}
}

func newFakeSender(errs ...error) *fakeSender {
	return &fakeSender{errs: errs, done: make(chan struct{}, 10)}
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return tgbotapi.Message{}, err
		}
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	f.done <- struct{}{}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) messages() []tgbotapi.MessageConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]tgbotapi.MessageConfig(nil), f.sent...)
}

func testAppointment() *models.Appointment {
	return &models.Appointment{
		ID:              "a1",
		BarberID:        "b1",
		CustomerName:    "Alex",
		CustomerEmail:   "alex@example.com",
		CustomerPhone:   "555-0100",
		Service:         "Haircut",
		DurationMinutes: 45,
		StartTime:       time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		Status:          models.StatusPending,
	}
}

func newTestNotifier(api Sender) *Notifier {
	logger := zerolog.New(io.Discard)
	return NewNotifier(api, Config{
		ChatID:    42,
		PerSecond: 1000,
		Retry:     RetryConfig{MaxRetries: 2, RetryDelays: []time.Duration{time.Millisecond}},
	}, &logger)
}

func TestFormat(t *testing.T) {
	a := testAppointment()

	text, ok := Format(events.Event{Type: events.AppointmentCreated, Appointment: a}, time.UTC)
	require.True(t, ok)
	assert.Contains(t, text, "New booking: Alex")
	assert.Contains(t, text, "Tue Mar 10, 2:00 PM (45 min)")
	assert.Contains(t, text, "alex@example.com, 555-0100")

	moved := *a
	moved.StartTime = a.StartTime.Add(2 * time.Hour)
	text, ok = Format(events.Event{Type: events.AppointmentRescheduled, Appointment: &moved, PreviousStart: a.StartTime}, time.UTC)
	require.True(t, ok)
	assert.Contains(t, text, "2:00 PM -> Tue Mar 10, 4:00 PM")

	confirmed := *a
	confirmed.Status = models.StatusConfirmed
	_, ok = Format(events.Event{Type: events.AppointmentStatusChanged, Appointment: &confirmed}, time.UTC)
	assert.False(t, ok, "confirmations are not announced")

	cancelled := *a
	cancelled.Status = models.StatusCancelled
	text, ok = Format(events.Event{Type: events.AppointmentStatusChanged, Appointment: &cancelled}, time.UTC)
	require.True(t, ok)
	assert.Contains(t, text, "Cancelled: Alex")

	text, ok = Format(events.Event{Type: events.BlockoutCreated, Blockout: &models.Blockout{
		StartTime: a.StartTime, EndTime: a.StartTime.Add(time.Hour), Reason: "Holiday",
	}}, time.UTC)
	require.True(t, ok)
	assert.Contains(t, text, "whole shop")
	assert.Contains(t, text, "Holiday")

	_, ok = Format(events.Event{Type: events.WorkingHoursUpdated}, time.UTC)
	assert.False(t, ok)
}

func TestNotifier_DeliversQueuedMessages(t *testing.T) {
	api := newFakeSender()
	n := newTestNotifier(api)
	bus := events.NewEventBus(nil)
	n.Subscribe(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go n.Run(ctx)

	bus.Publish(events.Event{Type: events.AppointmentCreated, Appointment: testAppointment()})

	select {
	case <-api.done:
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
	msgs := api.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(42), msgs[0].ChatID)
}

func TestNotifier_RetriesRateLimit(t *testing.T) {
	api := newFakeSender(&tgbotapi.Error{Code: 429, Message: "Too Many Requests"}, nil)
	n := newTestNotifier(api)

	err := n.sendWithRetry(context.Background(), tgbotapi.NewMessage(42, "hi"))
	require.NoError(t, err)
	assert.Len(t, api.messages(), 1)
}

func TestNotifier_DoesNotRetryRejected(t *testing.T) {
	api := newFakeSender(&tgbotapi.Error{Code: 403, Message: "Forbidden"}, nil)
	n := newTestNotifier(api)

	err := n.sendWithRetry(context.Background(), tgbotapi.NewMessage(42, "hi"))
	assert.Error(t, err)
	assert.Empty(t, api.messages())
}

func TestNotifier_QueueFull(t *testing.T) {
	logger := zerolog.New(io.Discard)
	n := NewNotifier(newFakeSender(), Config{ChatID: 1, QueueSize: 1}, &logger)

	e := events.Event{Type: events.AppointmentCreated, Appointment: testAppointment()}
	require.NoError(t, n.Handle(e))
	assert.Error(t, n.Handle(e))
}

func TestNotifier_EnqueueFull(t *testing.T) {
	logger := zerolog.New(io.Discard)
	n := NewNotifier(newFakeSender(), Config{ChatID: 42, QueueSize: 1}, &logger)

	require.NoError(t, n.Enqueue("Schedule for Tue Mar 10"))
	assert.EqualError(t, n.Enqueue("second"), "notification queue is full")
}
