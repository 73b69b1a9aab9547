package escalation

import (
	"time"

	"github.com/propertyline/triage/internal/models"
)

const (
	ReasonEmergencyUnassigned   = "EMERGENCY_UNASSIGNED"
	ReasonVIPUnassigned         = "VIP_UNASSIGNED"
	ReasonSafetyRiskUnaddressed = "SAFETY_RISK_UNADDRESSED"
	ReasonNotificationFailures  = "NOTIFICATION_FAILURES"
)

const (
	EmergencyWindow        = 15 * time.Minute
	SafetyWindow           = 10 * time.Minute
	MaxFailedNotifications = 2
)

type Input struct {
	Ticket        models.Ticket
	PropertyVIP   bool
	Notifications []models.NotificationRecord
}

// Evaluate reports whether the ticket needs a human.
func Evaluate(in Input, now time.Time) bool {
	return len(Reasons(in, now)) > 0
}

// Reasons lists every escalation rule that holds for the ticket at now.
func Reasons(in Input, now time.Time) []string {
	t := in.Ticket
	age := now.Sub(t.CreatedAt)
	unassigned := t.Status == models.TicketCreated

	var out []string
	if t.Urgency == models.UrgencyEmergency && unassigned && age > EmergencyWindow {
		out = append(out, ReasonEmergencyUnassigned)
	}
	if in.PropertyVIP && unassigned {
		out = append(out, ReasonVIPUnassigned)
	}
	if t.Classification != nil && t.Classification.SafetyRisk && unassigned && age > SafetyWindow {
		out = append(out, ReasonSafetyRiskUnaddressed)
	}
	if failedDeliveries(in.Ticket.ID, in.Notifications) > MaxFailedNotifications {
		out = append(out, ReasonNotificationFailures)
	}
	return out
}

func failedDeliveries(ticketID string, records []models.NotificationRecord) int {
	n := 0
	for _, r := range records {
		if r.Status != models.DeliveryFailed || (r.Channel != "" && r.Channel != models.ChannelSMS) {
			continue
		}
		if r.TicketID != "" && ticketID != "" && r.TicketID != ticketID {
			continue
		}
		n++
	}
	return n
}
