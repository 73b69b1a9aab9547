package escalation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/propertyline/triage/internal/db"
	"github.com/propertyline/triage/internal/models"
	"github.com/propertyline/triage/internal/notify"
)

const DefaultInterval = time.Minute

const sweepPageSize = 50

type Escalation struct {
	TicketID string    `json:"ticket_id"`
	Urgency  string    `json:"urgency"`
	Reasons  []string  `json:"reasons"`
	At       time.Time `json:"at"`
}

// Sweeper periodically evaluates open tickets and announces the ones that need a human.
// A ticket is announced once per process.
type Sweeper struct {
	Tickets    db.TicketStore
	Properties db.PropertyStore
	Log        db.NotificationLog
	Events     notify.EventPublisher
	Logger     zerolog.Logger
	Interval   time.Duration
	Now        func() time.Time

	mu       sync.Mutex
	notified map[string]bool
}

func (s *Sweeper) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Run sweeps until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Logger.Info().Dur("interval", interval).Msg("escalation sweeper started")
	for {
		if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
			s.Logger.Error().Err(err).Msg("escalation sweep failed")
		}
		select {
		case <-ctx.Done():
			s.Logger.Info().Msg("escalation sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce evaluates every open ticket and returns the newly escalated ones.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]Escalation, error) {
	var open []models.Ticket
	for _, status := range []models.TicketStatus{models.TicketCreated, models.TicketDispatched, models.TicketInProgress} {
		for offset := 0; ; offset += sweepPageSize {
			ts, err := s.Tickets.ListTickets(ctx, db.TicketFilter{Status: status, Limit: sweepPageSize, Offset: offset})
			if err != nil {
				return nil, fmt.Errorf("list %s tickets: %w", status, err)
			}
			open = append(open, ts...)
			if len(ts) < sweepPageSize {
				break
			}
		}
	}

	now := s.now()
	var out []Escalation
	for _, t := range open {
		if s.alreadyNotified(t.ID) {
			continue
		}
		in, err := s.input(ctx, t)
		if err != nil {
			return out, err
		}
		reasons := Reasons(in, now)
		if len(reasons) == 0 {
			continue
		}
		esc := Escalation{TicketID: t.ID, Urgency: t.Urgency.String(), Reasons: reasons, At: now}
		out = append(out, esc)
		s.markNotified(t.ID)

		s.Logger.Warn().
			Str("ticket_id", t.ID).
			Str("urgency", esc.Urgency).
			Strs("reasons", reasons).
			Dur("age", now.Sub(t.CreatedAt)).
			Msg("ticket escalated")
		if s.Events != nil {
			s.Events.Publish(ctx, notify.EventTicketEscalated, map[string]any{
				"ticket_id": t.ID,
				"urgency":   esc.Urgency,
				"reasons":   reasons,
			})
		}
	}
	return out, nil
}

// Check evaluates a single ticket without recording it as announced.
func (s *Sweeper) Check(ctx context.Context, ticketID string) (Escalation, error) {
	t, err := s.Tickets.GetTicket(ctx, ticketID)
	if err != nil {
		return Escalation{}, err
	}
	in, err := s.input(ctx, t)
	if err != nil {
		return Escalation{}, err
	}
	now := s.now()
	return Escalation{TicketID: t.ID, Urgency: t.Urgency.String(), Reasons: Reasons(in, now), At: now}, nil
}

func (s *Sweeper) input(ctx context.Context, t models.Ticket) (Input, error) {
	in := Input{Ticket: t}
	if s.Properties != nil && t.PropertyID != "" {
		p, err := s.Properties.GetProperty(ctx, t.PropertyID)
		switch {
		case errors.Is(err, models.ErrNotFound):
		case err != nil:
			return Input{}, fmt.Errorf("get property %s: %w", t.PropertyID, err)
		default:
			in.PropertyVIP = p.VIP
		}
	}
	if s.Log != nil {
		records, err := s.Log.ListNotifications(ctx, t.ID)
		if err != nil {
			return Input{}, fmt.Errorf("list notifications for %s: %w", t.ID, err)
		}
		in.Notifications = records
	}
	return in, nil
}

func (s *Sweeper) alreadyNotified(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notified[id]
}

func (s *Sweeper) markNotified(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.notified == nil {
		s.notified = map[string]bool{}
	}
	s.notified[id] = true
}
