package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/propertyline/triage/internal/classifier"
	"github.com/propertyline/triage/internal/db"
	"github.com/propertyline/triage/internal/dispatch"
	"github.com/propertyline/triage/internal/models"
	"github.com/propertyline/triage/internal/notify"
)

const (
	Greeting         = "Thank you for calling your property maintenance emergency line. I can help you right away. Please describe what's happening."
	RepromptMessage  = "I didn't hear anything. Please describe your maintenance issue."
	ApologyMessage   = "I apologize, but I'm having trouble processing your request. Let me transfer you to our backup line."
	EscalationNotice = "Let me transfer you to a property manager who can better assist you."
	Goodbye          = "Thank you for calling. Goodbye!"

	DefaultManagerLine   = "+1800MANAGER"
	DefaultBackupLine    = "+1800BACKUP"
	DefaultLowConfidence = 0.75
	DefaultPropertyID    = "PROP-001"
	DefaultUnit          = "101"

	maxFollowUpRounds = 1
)

var tracer = otel.Tracer("github.com/propertyline/triage/internal/conversation")

// TenantResolver maps a caller phone to a property and unit.
type TenantResolver interface {
	ResolveTenant(ctx context.Context, phone string) (propertyID string, unit string, err error)
}

type TurnResult struct {
	SessionID      string                 `json:"session_id"`
	ResponseText   string                 `json:"response_text"`
	NextAction     NextAction             `json:"next_action,omitempty"`
	FollowUps      []string               `json:"follow_ups,omitempty"`
	Classification *models.Classification `json:"classification,omitempty"`
	State          models.CallState       `json:"state"`
	TicketID       *string                `json:"ticket_id,omitempty"`
	Dispatch       *dispatch.Result       `json:"dispatch,omitempty"`
	TransferTo     string                 `json:"transfer_to,omitempty"`
}

// Agent runs the per-call state machine. Turns for one session are serialised;
// different sessions proceed independently.
type Agent struct {
	Calls      db.CallStore
	Tickets    db.TicketStore
	Tenants    TenantResolver
	Classifier classifier.Classifier
	Dispatcher dispatch.Dispatcher
	Events     notify.EventPublisher
	Logger     zerolog.Logger

	LowConfidence float64
	ManagerLine   string
	BackupLine    string
	Now           func() time.Time

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	inflight map[string]context.CancelFunc
}

func (a *Agent) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now().UTC()
}

func (a *Agent) lowConfidence() float64 {
	if a.LowConfidence > 0 {
		return a.LowConfidence
	}
	return DefaultLowConfidence
}

func (a *Agent) managerLine() string {
	if a.ManagerLine != "" {
		return a.ManagerLine
	}
	return DefaultManagerLine
}

func (a *Agent) backupLine() string {
	if a.BackupLine != "" {
		return a.BackupLine
	}
	return DefaultBackupLine
}

func (a *Agent) sessionLock(id string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.locks == nil {
		a.locks = map[string]*sync.Mutex{}
	}
	l, ok := a.locks[id]
	if !ok {
		l = &sync.Mutex{}
		a.locks[id] = l
	}
	return l
}

func (a *Agent) forget(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.locks, id)
}

func (a *Agent) track(id string, cancel context.CancelFunc) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.inflight == nil {
		a.inflight = map[string]context.CancelFunc{}
	}
	a.inflight[id] = cancel
}

func (a *Agent) untrack(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.inflight, id)
}

func (a *Agent) cancelInflight(id string) {
	a.mu.Lock()
	cancel, ok := a.inflight[id]
	a.mu.Unlock()
	if ok {
		cancel()
	}
}

// Start opens a session for a new call and returns the greeting.
func (a *Agent) Start(ctx context.Context, callID, phone string) (TurnResult, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return TurnResult{}, fmt.Errorf("%w: caller phone is required", models.ErrValidation)
	}
	if strings.TrimSpace(callID) == "" {
		callID = uuid.NewString()
	}

	now := a.now()
	session := models.CallSession{
		ID:          callID,
		CallerPhone: phone,
		State:       models.CallNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	session.Transcript = append(session.Transcript, models.Turn{Speaker: models.SpeakerAgent, Text: Greeting, At: now})
	session.State = models.CallGathering
	if err := a.Calls.CreateCall(ctx, session); err != nil {
		return TurnResult{}, fmt.Errorf("create call: %w", err)
	}

	a.Logger.Info().Str("call_id", session.ID).Str("phone", phone).Msg("call started")
	return TurnResult{SessionID: session.ID, ResponseText: Greeting, State: session.State}, nil
}

// HandleUtterance processes one tenant utterance. Validation, unknown and closed
// sessions come back as errors; every other failure becomes an apology and a
// transfer to the backup line.
func (a *Agent) HandleUtterance(ctx context.Context, sessionID, utterance string) (res TurnResult, err error) {
	text := strings.TrimSpace(utterance)
	if text == "" {
		return TurnResult{}, fmt.Errorf("%w: utterance is empty", models.ErrValidation)
	}

	lock := a.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := a.Calls.GetCall(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}
	if session.State == models.CallTerminated {
		return TurnResult{}, fmt.Errorf("%w: %s", models.ErrSessionClosed, sessionID)
	}

	ctx, span := tracer.Start(ctx, "conversation.turn", trace.WithAttributes(
		attribute.String("call.id", sessionID),
		attribute.String("call.state", string(session.State)),
	))
	defer span.End()

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	a.track(sessionID, cancel)
	defer a.untrack(sessionID)

	session.Transcript = append(session.Transcript, models.Turn{Speaker: models.SpeakerTenant, Text: text, At: a.now()})

	defer func() {
		if r := recover(); r != nil {
			a.Logger.Error().Str("call_id", sessionID).Interface("panic", r).Msg("turn panicked")
			res, err = a.apologize(ctx, session), nil
		}
	}()

	if session.State == models.CallContinuing {
		res, err = a.followUp(turnCtx, &session, text)
	} else {
		res, err = a.firstReport(turnCtx, &session, text)
	}
	if err != nil {
		if turnCtx.Err() != nil && ctx.Err() == nil {
			return TurnResult{}, fmt.Errorf("%w: %s hung up", models.ErrSessionClosed, sessionID)
		}
		a.Logger.Error().Err(err).Str("call_id", sessionID).Msg("turn failed")
		return a.apologize(ctx, session), nil
	}
	return res, nil
}

func (a *Agent) firstReport(ctx context.Context, s *models.CallSession, text string) (TurnResult, error) {
	scenario := MatchScenario(text)
	kw, err := a.Classifier.Classify(ctx, s.TenantText())
	if err != nil {
		return TurnResult{}, fmt.Errorf("classify: %w", err)
	}

	class := scenario.Classification.Clone()
	action := scenario.NextAction
	if scenario.Key == DefaultScenario.Key {
		if kw.Category != models.CategoryGeneral {
			class = kw.Clone()
		}
		// Emergencies outside the scripted scenarios are dispatched without follow-ups.
		if kw.Urgency == models.UrgencyEmergency {
			class.Urgency = models.UrgencyEmergency
			class.SafetyRisk = true
			class.EstimatedCost = classifier.EstimateCost(class.Category, class.Urgency)
			class.Keywords = mergeKeywords(class.Keywords, kw.Keywords)
			action = ActionDispatch
		}
	} else {
		class.Keywords = mergeKeywords(class.Keywords, kw.Keywords)
	}

	s.State = models.CallClassified
	s.ScenarioKey = scenario.Key
	s.Classification = &class

	a.Logger.Info().
		Str("call_id", s.ID).
		Str("scenario", scenario.Key).
		Str("category", string(class.Category)).
		Str("urgency", class.Urgency.String()).
		Float64("confidence", class.Confidence).
		Str("next_action", string(action)).
		Msg("utterance classified")

	unused := unusedFollowUps(scenario.FollowUps, s.AskedFollowUps)
	canAsk := len(unused) > 0 && s.FollowUpRounds < maxFollowUpRounds

	switch {
	case action == ActionEscalate:
		return a.escalate(ctx, s, scenario.Response)
	case action == ActionDispatch && class.Urgency != models.UrgencyEmergency && class.Confidence < a.lowConfidence() && canAsk:
		return a.ask(ctx, s, scenario.Response, unused)
	case action == ActionDispatch:
		return a.dispatch(ctx, s, scenario.Response)
	case canAsk:
		return a.ask(ctx, s, scenario.Response, unused)
	default:
		return a.dispatch(ctx, s, scenario.Response)
	}
}

func (a *Agent) followUp(ctx context.Context, s *models.CallSession, reply string) (TurnResult, error) {
	var prior models.Classification
	if s.Classification != nil {
		prior = s.Classification.Clone()
	} else {
		prior = DefaultScenario.Classification.Clone()
	}

	var response string
	if reinforces(reply) {
		prior.Urgency = prior.Urgency.Upgrade()
		prior.PropertyDamage = true
		prior.Description = strings.TrimSuffix(prior.Description, " - urgent") + " - urgent"
		response = "I understand this is urgent. I'm dispatching a technician immediately."
		if prior.Category == models.CategoryPlumbing {
			response += " Please turn off the water valve behind the fixture if you can."
		}
	} else {
		response = "Thank you for that information. I'll create a maintenance request for you."
	}
	s.Classification = &prior
	s.PendingFollowUp = nil

	a.Logger.Info().
		Str("call_id", s.ID).
		Str("urgency", prior.Urgency.String()).
		Bool("property_damage", prior.PropertyDamage).
		Msg("follow-up processed")
	return a.dispatch(ctx, s, response)
}

func (a *Agent) ask(ctx context.Context, s *models.CallSession, lead string, unused []string) (TurnResult, error) {
	question := unused[0]
	s.AskedFollowUps = append(s.AskedFollowUps, question)
	s.PendingFollowUp = append([]string(nil), unused[1:]...)
	s.FollowUpRounds++
	s.State = models.CallContinuing

	text := strings.TrimSpace(lead + " " + question)
	if err := a.save(ctx, s, text); err != nil {
		return TurnResult{}, err
	}
	return TurnResult{
		SessionID:      s.ID,
		ResponseText:   text,
		NextAction:     ActionContinue,
		FollowUps:      unused,
		Classification: s.Classification,
		State:          s.State,
	}, nil
}

func (a *Agent) dispatch(ctx context.Context, s *models.CallSession, lead string) (TurnResult, error) {
	if err := ctx.Err(); err != nil {
		return TurnResult{}, err
	}
	s.State = models.CallDispatching
	class := *s.Classification

	propertyID, unit, err := a.resolveTenant(ctx, s.CallerPhone)
	if err != nil {
		return TurnResult{}, err
	}

	ticket, err := a.Tickets.CreateTicket(ctx, models.Ticket{
		ID:             uuid.NewString(),
		CallID:         s.ID,
		Title:          fmt.Sprintf("%s: %s", class.Urgency, class.Description),
		Description:    class.Description,
		Category:       class.Category,
		Urgency:        class.Urgency,
		Status:         models.TicketCreated,
		PropertyID:     propertyID,
		Unit:           unit,
		TenantPhone:    s.CallerPhone,
		Classification: &class,
		CreatedAt:      a.now(),
	})
	if err != nil {
		return TurnResult{}, fmt.Errorf("create ticket: %w", err)
	}
	ticketID := ticket.ID
	s.TicketID = &ticketID
	if a.Events != nil {
		a.Events.Publish(ctx, notify.EventTicketCreated, map[string]any{
			"ticket_id":   ticket.ID,
			"call_id":     s.ID,
			"urgency":     ticket.Urgency.String(),
			"category":    string(ticket.Category),
			"property_id": ticket.PropertyID,
		})
	}

	// A hangup between creating and dispatching withdraws the ticket.
	if err := ctx.Err(); err != nil {
		if _, cerr := a.Tickets.UpdateTicketStatus(context.WithoutCancel(ctx), ticket.ID, models.TicketCancelled); cerr != nil {
			a.Logger.Error().Err(cerr).Str("ticket_id", ticket.ID).Msg("cancel ticket after hangup")
		}
		return TurnResult{}, err
	}

	result, err := a.Dispatcher.Dispatch(ctx, ticket.ID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("dispatch ticket %s: %w", ticket.ID, err)
	}

	var ack string
	if result.Success && result.Technician != nil && result.ETA != nil {
		ack = fmt.Sprintf("Great news! %s has been dispatched and will arrive by %s. You'll receive a text message shortly with their contact information.",
			result.Technician.Name, result.ETA.Format(time.Kitchen))
	} else {
		ack = "I've created your maintenance request. A technician will be assigned shortly and you'll receive a text message with updates."
	}

	s.State = models.CallTerminated
	text := strings.Join([]string{lead, ack, Goodbye}, " ")
	if err := a.save(ctx, s, text); err != nil {
		return TurnResult{}, err
	}
	a.forget(s.ID)

	return TurnResult{
		SessionID:      s.ID,
		ResponseText:   text,
		NextAction:     ActionDispatch,
		Classification: s.Classification,
		State:          s.State,
		TicketID:       s.TicketID,
		Dispatch:       &result,
	}, nil
}

func (a *Agent) escalate(ctx context.Context, s *models.CallSession, lead string) (TurnResult, error) {
	s.State = models.CallEscalating
	text := strings.TrimSpace(lead + " " + EscalationNotice)
	s.State = models.CallTerminated
	if err := a.save(ctx, s, text); err != nil {
		return TurnResult{}, err
	}
	a.forget(s.ID)

	a.Logger.Info().Str("call_id", s.ID).Str("transfer_to", a.managerLine()).Msg("call escalated to manager")
	return TurnResult{
		SessionID:      s.ID,
		ResponseText:   text,
		NextAction:     ActionEscalate,
		Classification: s.Classification,
		State:          s.State,
		TransferTo:     a.managerLine(),
	}, nil
}

// apologize is the universal fallback: the caller always hears something and is
// handed to the backup line.
func (a *Agent) apologize(ctx context.Context, s models.CallSession) TurnResult {
	s.State = models.CallTerminated
	if err := a.save(context.WithoutCancel(ctx), &s, ApologyMessage); err != nil {
		a.Logger.Error().Err(err).Str("call_id", s.ID).Msg("save call after failure")
	}
	a.forget(s.ID)
	return TurnResult{
		SessionID:      s.ID,
		ResponseText:   ApologyMessage,
		NextAction:     ActionEscalate,
		Classification: s.Classification,
		State:          models.CallTerminated,
		TicketID:       s.TicketID,
		TransferTo:     a.backupLine(),
	}
}

// Hangup ends the call without creating a ticket and cancels any classification in flight.
func (a *Agent) Hangup(ctx context.Context, sessionID string) error {
	a.cancelInflight(sessionID)

	lock := a.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := a.Calls.GetCall(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.State == models.CallTerminated {
		return nil
	}
	session.State = models.CallTerminated
	session.UpdatedAt = a.now()
	if err := a.Calls.UpdateCall(ctx, session); err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	a.forget(sessionID)
	a.Logger.Info().Str("call_id", sessionID).Msg("caller hung up")
	return nil
}

func (a *Agent) save(ctx context.Context, s *models.CallSession, agentText string) error {
	now := a.now()
	s.Transcript = append(s.Transcript, models.Turn{Speaker: models.SpeakerAgent, Text: agentText, At: now})
	s.UpdatedAt = now
	if err := a.Calls.UpdateCall(ctx, *s); err != nil {
		return fmt.Errorf("update call: %w", err)
	}
	return nil
}

func (a *Agent) resolveTenant(ctx context.Context, phone string) (string, string, error) {
	if a.Tenants == nil {
		return DefaultPropertyID, DefaultUnit, nil
	}
	propertyID, unit, err := a.Tenants.ResolveTenant(ctx, phone)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return DefaultPropertyID, DefaultUnit, nil
	case err != nil:
		return "", "", fmt.Errorf("resolve tenant: %w", err)
	}
	return propertyID, unit, nil
}

func unusedFollowUps(all, asked []string) []string {
	var out []string
	for _, q := range all {
		used := false
		for _, a := range asked {
			if a == q {
				used = true
				break
			}
		}
		if !used {
			out = append(out, q)
		}
	}
	return out
}

func mergeKeywords(dst []string, extra []string) []string {
	for _, k := range extra {
		found := false
		for _, d := range dst {
			if strings.EqualFold(d, k) {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, k)
		}
	}
	return dst
}
