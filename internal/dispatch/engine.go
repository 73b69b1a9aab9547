package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/propertyline/triage/internal/db"
	"github.com/propertyline/triage/internal/models"
	"github.com/propertyline/triage/internal/notify"
)

const (
	ReasonAssigned          = "ASSIGNED"
	ReasonEmergencyFallback = "ASSIGNED_EMERGENCY_FALLBACK"
	ReasonNoTechnician      = "NO_TECHNICIAN_AVAILABLE"
)

const defaultBatchConcurrency = 4

var tracer = otel.Tracer("github.com/propertyline/triage/internal/dispatch")

type Result struct {
	TicketID      string                      `json:"ticket_id"`
	Success       bool                        `json:"success"`
	Technician    *models.Technician          `json:"technician,omitempty"`
	Message       string                      `json:"message"`
	ETA           *time.Time                  `json:"eta,omitempty"`
	ReasonCode    string                      `json:"reason_code"`
	Candidates    []ScoredCandidate           `json:"candidates,omitempty"`
	Notifications []models.NotificationRecord `json:"notifications,omitempty"`
}

type BatchItem struct {
	TicketID string `json:"ticket_id"`
	Result   Result `json:"result"`
	Error    string `json:"error,omitempty"`
}

// Dispatcher is what the conversation agent needs from the engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, ticketID string) (Result, error)
}

type Engine struct {
	Tickets          db.TicketStore
	Registry         db.TechnicianRegistry
	Log              db.NotificationLog
	Sender           notify.Sender
	Events           notify.EventPublisher
	Logger           zerolog.Logger
	BatchConcurrency int
	Now              func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Engine) publish(ctx context.Context, event string, payload map[string]any) {
	if e.Events != nil {
		e.Events.Publish(ctx, event, payload)
	}
}

// Dispatch picks, reserves and notifies the best available technician for a CREATED ticket.
// A missing technician is reported in the result, not as an error.
func (e *Engine) Dispatch(ctx context.Context, ticketID string) (Result, error) {
	ctx, span := tracer.Start(ctx, "dispatch.ticket", trace.WithAttributes(attribute.String("ticket.id", ticketID)))
	defer span.End()

	ticket, err := e.Tickets.GetTicket(ctx, ticketID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}
	if ticket.Status != models.TicketCreated {
		return Result{}, fmt.Errorf("%w: ticket %s is %s", models.ErrInvalidTransition, ticket.ID, ticket.Status)
	}

	class := ticket.ClassificationOrDefault()
	skills := class.Skills()

	available, err := e.Registry.QueryAvailable(ctx, skills)
	if err != nil {
		return Result{}, fmt.Errorf("query technicians: %w", err)
	}

	var ranked []ScoredCandidate
	fallback := false
	switch {
	case len(available) > 0:
		ranked = Rank(available, ticket.Urgency, skills)
	case ticket.Urgency == models.UrgencyEmergency:
		all, err := e.Registry.QueryAllAvailable(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("query technicians: %w", err)
		}
		if len(all) == 0 {
			return e.fail(ctx, ticket, nil, "No technicians available for emergency dispatch"), nil
		}
		ranked = byResponseTime(all, ticket.Urgency, skills)
		fallback = true
	default:
		return e.fail(ctx, ticket, nil, fmt.Sprintf("No technicians available with skills: %s", strings.Join(skills, ", "))), nil
	}

	for _, c := range ranked {
		ok, err := e.Registry.TryReserve(ctx, c.Technician.ID, ticket.ID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return Result{}, fmt.Errorf("reserve technician %s: %w", c.Technician.ID, err)
		}
		if !ok {
			e.Logger.Debug().Str("ticket_id", ticket.ID).Str("technician_id", c.Technician.ID).Msg("technician taken, trying next candidate")
			continue
		}

		assigned, err := e.Tickets.AssignTicket(ctx, ticket.ID, c.Technician.ID)
		if err != nil {
			if rerr := e.Registry.Release(ctx, c.Technician.ID); rerr != nil {
				e.Logger.Error().Err(rerr).Str("technician_id", c.Technician.ID).Msg("release after failed assignment")
			}
			return Result{}, fmt.Errorf("assign ticket %s: %w", ticket.ID, err)
		}

		reason := ReasonAssigned
		if fallback {
			reason = ReasonEmergencyFallback
		}
		return e.succeed(ctx, assigned, class, c.Technician, ranked, reason), nil
	}

	return e.fail(ctx, ticket, ranked, "All matching technicians were reserved by other requests"), nil
}

func (e *Engine) succeed(ctx context.Context, ticket models.Ticket, class models.Classification, tech models.Technician, ranked []ScoredCandidate, reason string) Result {
	eta := e.now().Add(time.Duration(tech.ResponseTimeMinutes) * time.Minute)
	tech.Available = false
	techTicket := ticket.ID
	tech.CurrentTicketID = &techTicket

	res := Result{
		TicketID:   ticket.ID,
		Success:    true,
		Technician: &tech,
		Message:    fmt.Sprintf("Technician %s dispatched successfully", tech.Name),
		ETA:        &eta,
		ReasonCode: reason,
		Candidates: ranked,
	}
	res.Notifications = append(res.Notifications,
		e.notify(ctx, ticket.ID, tech.Phone, technicianMessage(ticket, class)),
		e.notify(ctx, ticket.ID, ticket.TenantPhone, tenantMessage(ticket, tech, eta)),
	)

	e.Logger.Info().
		Str("ticket_id", ticket.ID).
		Str("technician_id", tech.ID).
		Str("urgency", ticket.Urgency.String()).
		Str("reason_code", reason).
		Int("candidates", len(ranked)).
		Time("eta", eta).
		Msg("ticket dispatched")
	e.publish(ctx, notify.EventTicketDispatched, map[string]any{
		"ticket_id":     ticket.ID,
		"technician_id": tech.ID,
		"urgency":       ticket.Urgency.String(),
		"reason_code":   reason,
		"eta":           eta,
	})
	return res
}

func (e *Engine) fail(ctx context.Context, ticket models.Ticket, ranked []ScoredCandidate, msg string) Result {
	e.Logger.Warn().
		Str("ticket_id", ticket.ID).
		Str("urgency", ticket.Urgency.String()).
		Str("category", string(ticket.Category)).
		Msg(msg)
	e.publish(ctx, notify.EventTicketDispatchFailed, map[string]any{
		"ticket_id":   ticket.ID,
		"urgency":     ticket.Urgency.String(),
		"reason_code": ReasonNoTechnician,
	})
	return Result{
		TicketID:   ticket.ID,
		Success:    false,
		Message:    msg,
		ReasonCode: ReasonNoTechnician,
		Candidates: ranked,
	}
}

// notify sends one message and records it whatever the delivery outcome.
func (e *Engine) notify(ctx context.Context, ticketID, recipient, message string) models.NotificationRecord {
	status := models.DeliveryFailed
	if e.Sender != nil {
		s, err := e.Sender.Send(ctx, recipient, message)
		status = s
		if err != nil {
			status = models.DeliveryFailed
			e.Logger.Warn().Err(err).Str("ticket_id", ticketID).Str("recipient", recipient).Msg("notification delivery failed")
		}
	}
	rec := models.NotificationRecord{
		ID:        uuid.NewString(),
		TicketID:  ticketID,
		Recipient: recipient,
		Channel:   models.ChannelSMS,
		Message:   message,
		Status:    status,
		CreatedAt: e.now(),
	}
	if e.Log != nil {
		if err := e.Log.AppendNotification(ctx, rec); err != nil {
			e.Logger.Error().Err(err).Str("ticket_id", ticketID).Msg("record notification")
		}
	}
	return rec
}

// BatchDispatch dispatches independent tickets concurrently. Items come back in input order;
// a per-ticket error never stops the others.
func (e *Engine) BatchDispatch(ctx context.Context, ticketIDs []string) ([]BatchItem, error) {
	limit := e.BatchConcurrency
	if limit <= 0 {
		limit = defaultBatchConcurrency
	}
	items := make([]BatchItem, len(ticketIDs))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, id := range ticketIDs {
		g.Go(func() error {
			items[i].TicketID = id
			if err := ctx.Err(); err != nil {
				items[i].Error = err.Error()
				return nil
			}
			res, err := e.Dispatch(ctx, id)
			if err != nil {
				items[i].Error = err.Error()
				return nil
			}
			items[i].Result = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return items, ctx.Err()
}

// Release marks the job finished: the technician's current ticket is completed
// and the technician goes back into the pool.
func (e *Engine) Release(ctx context.Context, technicianID string) (*models.Ticket, error) {
	tech, err := e.Registry.GetTechnician(ctx, technicianID)
	if err != nil {
		return nil, err
	}

	var completed *models.Ticket
	if tech.CurrentTicketID != nil {
		t, err := e.Tickets.GetTicket(ctx, *tech.CurrentTicketID)
		switch {
		case errors.Is(err, models.ErrNotFound):
		case err != nil:
			return nil, err
		case t.CanTransition(models.TicketCompleted):
			t, err = e.Tickets.UpdateTicketStatus(ctx, t.ID, models.TicketCompleted)
			if err != nil {
				return nil, fmt.Errorf("complete ticket %s: %w", *tech.CurrentTicketID, err)
			}
			completed = &t
		}
	}

	if err := e.Registry.Release(ctx, technicianID); err != nil {
		return nil, err
	}

	ev := e.Logger.Info().Str("technician_id", technicianID)
	if completed != nil {
		ev = ev.Str("ticket_id", completed.ID)
		e.publish(ctx, notify.EventTicketCompleted, map[string]any{
			"ticket_id":     completed.ID,
			"technician_id": technicianID,
		})
	}
	ev.Msg("technician released")
	return completed, nil
}

// SetStatus moves a ticket through its lifecycle. Closing a ticket frees its technician.
func (e *Engine) SetStatus(ctx context.Context, ticketID string, status models.TicketStatus) (models.Ticket, error) {
	if status == models.TicketDispatched {
		return models.Ticket{}, fmt.Errorf("%w: use dispatch to assign a technician", models.ErrInvalidTransition)
	}
	t, err := e.Tickets.UpdateTicketStatus(ctx, ticketID, status)
	if err != nil {
		return models.Ticket{}, err
	}
	if status.Terminal() && t.AssignedTo != nil {
		if err := e.Registry.Release(ctx, *t.AssignedTo); err != nil && !errors.Is(err, models.ErrNotFound) {
			return t, fmt.Errorf("release technician %s: %w", *t.AssignedTo, err)
		}
	}
	if status == models.TicketCompleted {
		e.publish(ctx, notify.EventTicketCompleted, map[string]any{"ticket_id": t.ID})
	}
	e.Logger.Info().Str("ticket_id", t.ID).Str("status", string(status)).Msg("ticket status changed")
	return t, nil
}
