package escalation

import (
	"testing"
	"time"

	"github.com/propertyline/triage/internal/models"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func ticketAged(age time.Duration, urg models.Urgency, status models.TicketStatus) models.Ticket {
	return models.Ticket{ID: "t1", Urgency: urg, Status: status, CreatedAt: now.Add(-age)}
}

func TestEmergencyRuleBoundary(t *testing.T) {
	early := Input{Ticket: ticketAged(14*time.Minute+59*time.Second, models.UrgencyEmergency, models.TicketCreated)}
	if Evaluate(early, now) {
		t.Fatalf("should not escalate at 14:59")
	}
	late := Input{Ticket: ticketAged(15*time.Minute+time.Second, models.UrgencyEmergency, models.TicketCreated)}
	if !Evaluate(late, now) {
		t.Fatalf("should escalate at 15:01")
	}
	if r := Reasons(late, now); len(r) != 1 || r[0] != ReasonEmergencyUnassigned {
		t.Fatalf("unexpected reasons %v", r)
	}
	dispatched := Input{Ticket: ticketAged(time.Hour, models.UrgencyEmergency, models.TicketDispatched)}
	if Evaluate(dispatched, now) {
		t.Fatalf("dispatched tickets are not unassigned")
	}
}

func TestVIPRule(t *testing.T) {
	in := Input{Ticket: ticketAged(0, models.UrgencyLow, models.TicketCreated), PropertyVIP: true}
	if r := Reasons(in, now); len(r) != 1 || r[0] != ReasonVIPUnassigned {
		t.Fatalf("unexpected reasons %v", r)
	}
	in.Ticket.Status = models.TicketInProgress
	if Evaluate(in, now) {
		t.Fatalf("VIP rule only applies while CREATED")
	}
}

func TestSafetyRule(t *testing.T) {
	tk := ticketAged(9*time.Minute, models.UrgencyHigh, models.TicketCreated)
	tk.Classification = &models.Classification{SafetyRisk: true}
	if Evaluate(Input{Ticket: tk}, now) {
		t.Fatalf("too early for the safety rule")
	}
	tk.CreatedAt = now.Add(-11 * time.Minute)
	if r := Reasons(Input{Ticket: tk}, now); len(r) != 1 || r[0] != ReasonSafetyRiskUnaddressed {
		t.Fatalf("unexpected reasons %v", r)
	}
}

func TestNotificationFailureRule(t *testing.T) {
	failed := models.NotificationRecord{TicketID: "t1", Channel: models.ChannelSMS, Status: models.DeliveryFailed}
	sent := models.NotificationRecord{TicketID: "t1", Channel: models.ChannelSMS, Status: models.DeliverySent}
	in := Input{
		Ticket:        ticketAged(0, models.UrgencyLow, models.TicketDispatched),
		Notifications: []models.NotificationRecord{failed, failed, sent},
	}
	if Evaluate(in, now) {
		t.Fatalf("two failures must not escalate")
	}
	in.Notifications = append(in.Notifications, failed)
	if r := Reasons(in, now); len(r) != 1 || r[0] != ReasonNotificationFailures {
		t.Fatalf("unexpected reasons %v", r)
	}
}
