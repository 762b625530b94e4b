package digest

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"barbershop/internal/database"
	"barbershop/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSource struct {
	mock.Mock
}

func (m *mockSource) ListAppointments(ctx context.Context, f database.AppointmentFilter) ([]models.Appointment, error) {
	args := m.Called(ctx, f)
	list, _ := args.Get(0).([]models.Appointment)
	return list, args.Error(1)
}

func (m *mockSource) ListBarbers(ctx context.Context, activeOnly bool) ([]models.Barber, error) {
	args := m.Called(ctx, activeOnly)
	list, _ := args.Get(0).([]models.Barber)
	return list, args.Error(1)
}

func at(day, hour, min int) time.Time {
	return time.Date(2026, 3, day, hour, min, 0, 0, time.UTC)
}

func newScheduler(src Source, now *time.Time, sent *[]string) *Scheduler {
	logger := zerolog.New(io.Discard)
	return NewScheduler(Config{
		Location: time.UTC,
		At:       19 * time.Hour,
		Now:      func() time.Time { return *now },
	}, src, func(text string) error {
		*sent = append(*sent, text)
		return nil
	}, &logger)
}

func TestBuild(t *testing.T) {
	src := &mockSource{}
	src.On("ListAppointments", mock.Anything, database.AppointmentFilter{
		From:     at(10, 0, 0),
		To:       at(11, 0, 0),
		Statuses: []models.AppointmentStatus{models.StatusPending, models.StatusConfirmed},
	}).Return([]models.Appointment{
		{BarberID: "b2", CustomerName: "Lee", Service: "Shave", StartTime: at(10, 9, 0), Status: models.StatusConfirmed},
		{BarberID: "b1", CustomerName: "Alex", Service: "Haircut", StartTime: at(10, 14, 0), Status: models.StatusPending},
		{BarberID: "b1", CustomerName: "Jo", Service: "Beard", StartTime: at(10, 10, 30), Status: models.StatusConfirmed},
	}, nil)
	src.On("ListBarbers", mock.Anything, false).Return([]models.Barber{
		{ID: "b1", Name: "Kim"}, {ID: "b2", Name: "Sam"},
	}, nil)

	var sent []string
	now := at(9, 19, 0)
	s := newScheduler(src, &now, &sent)

	text, count, err := s.Build(context.Background(), at(10, 12, 0))
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, "Schedule for Tue Mar 10"+
		"\n\nKim (2)\n10:30 Jo, Beard\n14:00 Alex, Haircut [unconfirmed]"+
		"\n\nSam (1)\n09:00 Lee, Shave", text)
	src.AssertExpectations(t)
}

func TestBuild_Empty(t *testing.T) {
	src := &mockSource{}
	src.On("ListAppointments", mock.Anything, mock.Anything).Return(nil, nil)

	var sent []string
	now := at(9, 19, 0)
	text, count, err := newScheduler(src, &now, &sent).Build(context.Background(), at(10, 0, 0))
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, "Schedule for Tue Mar 10\nNo appointments.", text)
	src.AssertNotCalled(t, "ListBarbers", mock.Anything, mock.Anything)
}

func TestCheckAndRun_OncePerDay(t *testing.T) {
	src := &mockSource{}
	src.On("ListAppointments", mock.Anything, mock.Anything).Return(nil, nil)

	var sent []string
	now := at(9, 18, 59)
	s := newScheduler(src, &now, &sent)
	ctx := context.Background()

	assert.False(t, s.checkAndRun(ctx), "before the configured time")

	now = at(9, 19, 0)
	assert.True(t, s.checkAndRun(ctx))
	now = at(9, 22, 0)
	assert.False(t, s.checkAndRun(ctx), "already sent today")

	now = at(10, 20, 0)
	assert.True(t, s.checkAndRun(ctx))

	require.Len(t, sent, 2)
	assert.Contains(t, sent[0], "Tue Mar 10")
	assert.Contains(t, sent[1], "Wed Mar 11")
}

func TestRunNow_Errors(t *testing.T) {
	src := &mockSource{}
	src.On("ListAppointments", mock.Anything, mock.Anything).Return(nil, errors.New("db closed"))

	logger := zerolog.New(io.Discard)
	s := NewScheduler(Config{}, src, func(string) error { return nil }, &logger)
	assert.ErrorContains(t, s.RunNow(context.Background(), at(10, 0, 0)), "db closed")

	ok := &mockSource{}
	ok.On("ListAppointments", mock.Anything, mock.Anything).Return(nil, nil)
	s = NewScheduler(Config{}, ok, func(string) error { return errors.New("queue full") }, &logger)
	assert.ErrorContains(t, s.RunNow(context.Background(), at(10, 0, 0)), "queue full")
}
