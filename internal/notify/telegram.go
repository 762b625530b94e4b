// Package notify posts booking activity to the shop's Telegram admin chat.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"barbershop/internal/events"
	"barbershop/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender is the part of *tgbotapi.BotAPI the notifier uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// RetryConfig holds configuration for retry logic.
type RetryConfig struct {
	MaxRetries  int
	RetryDelays []time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:  3,
		RetryDelays: []time.Duration{time.Second, 5 * time.Second, 30 * time.Second},
	}
}

type Config struct {
	ChatID    int64
	Location  *time.Location
	QueueSize int
	// PerSecond caps outgoing messages; Telegram allows about one per second per chat.
	PerSecond float64
	Retry     RetryConfig
}

// Notifier formats events into messages and delivers them from a single worker,
// so a slow Telegram API never delays a booking request.
type Notifier struct {
	api     Sender
	cfg     Config
	queue   chan tgbotapi.MessageConfig
	limiter *rate.Limiter
	logger  *zerolog.Logger
}

// NewBotAPI connects to Telegram with the bot token.
func NewBotAPI(token string, debug bool) (*tgbotapi.BotAPI, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot api: %w", err)
	}
	api.Debug = debug
	return api, nil
}

func NewNotifier(api Sender, cfg Config, logger *zerolog.Logger) *Notifier {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.PerSecond <= 0 {
		cfg.PerSecond = 1
	}
	if cfg.Retry.MaxRetries == 0 && len(cfg.Retry.RetryDelays) == 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	return &Notifier{
		api:     api,
		cfg:     cfg,
		queue:   make(chan tgbotapi.MessageConfig, cfg.QueueSize),
		limiter: rate.NewLimiter(rate.Limit(cfg.PerSecond), 1),
		logger:  logger,
	}
}

// Subscribe routes appointment and blockout events to the notifier.
func (n *Notifier) Subscribe(bus *events.EventBus) {
	bus.Subscribe(n.Handle,
		events.AppointmentCreated,
		events.AppointmentRescheduled,
		events.AppointmentStatusChanged,
		events.BlockoutCreated,
	)
}

// Handle queues a message for the event. It never blocks; when the queue is full
// the message is dropped and an error returned.
func (n *Notifier) Handle(e events.Event) error {
	text, ok := Format(e, n.cfg.Location)
	if !ok {
		return nil
	}
	return n.Enqueue(text)
}

// Enqueue queues plain text for the admin chat without blocking.
func (n *Notifier) Enqueue(text string) error {
	msg := tgbotapi.NewMessage(n.cfg.ChatID, text)
	select {
	case n.queue <- msg:
		return nil
	default:
		return errors.New("notification queue is full")
	}
}

// Run delivers queued messages until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-n.queue:
			if err := n.sendWithRetry(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
				n.logger.Error().Err(err).Int64("chat_id", msg.ChatID).Msg("Failed to deliver notification")
			}
		}
	}
}

func (n *Notifier) sendWithRetry(ctx context.Context, msg tgbotapi.MessageConfig) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	delays := n.cfg.Retry.RetryDelays
	var lastErr error
	for attempt := 0; attempt <= n.cfg.Retry.MaxRetries; attempt++ {
		_, err := n.api.Send(msg)
		if err == nil {
			return nil
		}
		lastErr = err

		wait := delayFor(attempt, delays)
		var tgErr *tgbotapi.Error
		if errors.As(err, &tgErr) {
			switch tgErr.Code {
			case 429:
				if tgErr.RetryAfter > 0 {
					wait = time.Duration(tgErr.RetryAfter) * time.Second
				}
				n.logger.Info().Dur("retry_after", wait).Int("attempt", attempt).Msg("Rate limited by Telegram, waiting")
			case 400, 403:
				return fmt.Errorf("telegram rejected message: %w", err)
			}
		}
		if attempt == n.cfg.Retry.MaxRetries {
			break
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func delayFor(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return time.Second
	}
	if attempt < len(delays) {
		return delays[attempt]
	}
	return delays[len(delays)-1]
}

// Format renders an event as an admin chat message. ok is false for events that
// are not announced.
func Format(e events.Event, loc *time.Location) (string, bool) {
	const layout = "Mon Jan 2, 3:04 PM"

	switch e.Type {
	case events.AppointmentCreated:
		a := e.Appointment
		if a == nil {
			return "", false
		}
		return fmt.Sprintf("New booking: %s\n%s with barber %s\n%s (%d min)\n%s",
			a.CustomerName, a.Service, a.BarberID, a.StartTime.In(loc).Format(layout), a.DurationMinutes,
			contact(a)), true

	case events.AppointmentRescheduled:
		a := e.Appointment
		if a == nil {
			return "", false
		}
		return fmt.Sprintf("Rescheduled: %s\n%s -> %s",
			a.CustomerName, e.PreviousStart.In(loc).Format(layout), a.StartTime.In(loc).Format(layout)), true

	case events.AppointmentStatusChanged:
		a := e.Appointment
		if a == nil {
			return "", false
		}
		switch a.Status {
		case models.StatusCancelled:
			return fmt.Sprintf("Cancelled: %s at %s", a.CustomerName, a.StartTime.In(loc).Format(layout)), true
		case models.StatusNoShow:
			return fmt.Sprintf("No-show: %s at %s", a.CustomerName, a.StartTime.In(loc).Format(layout)), true
		}
		return "", false

	case events.BlockoutCreated:
		b := e.Blockout
		if b == nil {
			return "", false
		}
		who := "whole shop"
		if b.BarberID != "" {
			who = "barber " + b.BarberID
		}
		text := fmt.Sprintf("Blocked %s: %s - %s", who, b.StartTime.In(loc).Format(layout), b.EndTime.In(loc).Format(layout))
		if b.Reason != "" {
			text += "\n" + b.Reason
		}
		return text, true
	}
	return "", false
}

func contact(a *models.Appointment) string {
	parts := []string{a.CustomerEmail}
	if a.CustomerPhone != "" {
		parts = append(parts, a.CustomerPhone)
	}
	return strings.Join(parts, ", ")
}
