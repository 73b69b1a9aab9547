package models

import (
	"fmt"
	"strings"
	"time"
)

type Urgency int

const (
	UrgencyLow Urgency = iota
	UrgencyMedium
	UrgencyHigh
	UrgencyEmergency
)

var urgencyNames = [...]string{"LOW", "MEDIUM", "HIGH", "EMERGENCY"}

func (u Urgency) String() string {
	if u < UrgencyLow || u > UrgencyEmergency {
		return fmt.Sprintf("Urgency(%d)", int(u))
	}
	return urgencyNames[u]
}

// Upgrade returns the next tier, saturating at EMERGENCY.
func (u Urgency) Upgrade() Urgency {
	if u >= UrgencyEmergency {
		return UrgencyEmergency
	}
	return u + 1
}

func (u Urgency) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

func (u *Urgency) UnmarshalText(b []byte) error {
	v, err := ParseUrgency(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

func ParseUrgency(value string) (Urgency, error) {
	v := strings.ToUpper(strings.TrimSpace(value))
	for i, name := range urgencyNames {
		if v == name {
			return Urgency(i), nil
		}
	}
	return UrgencyLow, fmt.Errorf("%w: unknown urgency %q", ErrValidation, value)
}

type Category string

const (
	CategoryPlumbing   Category = "plumbing"
	CategoryElectrical Category = "electrical"
	CategoryHVAC       Category = "hvac"
	CategoryAppliance  Category = "appliance"
	// CategorySecurity has cost estimates but no keyword trigger yet.
	CategorySecurity Category = "security"
	CategoryGeneral  Category = "general"
)

type Vulnerability string

const (
	VulnerabilityNone     Vulnerability = "none"
	VulnerabilityElderly  Vulnerability = "elderly"
	VulnerabilityDisabled Vulnerability = "disabled"
	VulnerabilityChildren Vulnerability = "children"
)

type CostRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type Classification struct {
	Category              Category      `json:"category"`
	Urgency               Urgency       `json:"urgency"`
	Confidence            float64       `json:"confidence" validate:"gte=0,lte=1"`
	Keywords              []string      `json:"keywords"`
	EstimatedCost         CostRange     `json:"estimated_cost"`
	RequiredSkills        []string      `json:"required_skills"`
	TimeEstimateHours     float64       `json:"time_estimate_hours"`
	Description           string        `json:"description"`
	SafetyRisk            bool          `json:"safety_risk"`
	PropertyDamage        bool          `json:"property_damage"`
	TenantVulnerability   Vulnerability `json:"tenant_vulnerability"`
	FollowUpRequired      bool          `json:"follow_up_required"`
	PreventiveMaintenance []string      `json:"preventive_maintenance"`
}

// Skills returns the required skills, falling back to the category.
func (c Classification) Skills() []string {
	if len(c.RequiredSkills) > 0 {
		return c.RequiredSkills
	}
	return []string{string(c.Category)}
}

// Clone returns a deep copy so scenario templates are never mutated.
func (c Classification) Clone() Classification {
	out := c
	out.Keywords = append([]string(nil), c.Keywords...)
	out.RequiredSkills = append([]string(nil), c.RequiredSkills...)
	out.PreventiveMaintenance = append([]string(nil), c.PreventiveMaintenance...)
	return out
}

type CallState string

const (
	CallNew         CallState = "NEW"
	CallGathering   CallState = "GATHERING"
	CallClassified  CallState = "CLASSIFIED"
	CallContinuing  CallState = "CONTINUING"
	CallDispatching CallState = "DISPATCHING"
	CallEscalating  CallState = "ESCALATING"
	CallTerminated  CallState = "TERMINATED"
)

type Turn struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

const (
	SpeakerTenant = "tenant"
	SpeakerAgent  = "agent"
)

type CallSession struct {
	ID              string          `json:"id"`
	CallerPhone     string          `json:"caller_phone"`
	Transcript      []Turn          `json:"transcript"`
	Classification  *Classification `json:"classification,omitempty"`
	State           CallState       `json:"state"`
	ScenarioKey     string          `json:"scenario_key,omitempty"`
	FollowUpRounds  int             `json:"follow_up_rounds"`
	AskedFollowUps  []string        `json:"asked_follow_ups,omitempty"`
	PendingFollowUp []string        `json:"pending_follow_ups,omitempty"`
	TicketID        *string         `json:"ticket_id,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// TenantText joins everything the tenant has said so far.
func (s CallSession) TenantText() string {
	parts := make([]string, 0, len(s.Transcript))
	for _, t := range s.Transcript {
		if t.Speaker == SpeakerTenant {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}

type TicketStatus string

const (
	TicketCreated    TicketStatus = "CREATED"
	TicketDispatched TicketStatus = "DISPATCHED"
	TicketInProgress TicketStatus = "IN_PROGRESS"
	TicketCompleted  TicketStatus = "COMPLETED"
	TicketCancelled  TicketStatus = "CANCELLED"
)

var ticketStatusRank = map[TicketStatus]int{
	TicketCreated:    0,
	TicketDispatched: 1,
	TicketInProgress: 2,
	TicketCompleted:  3,
}

func (s TicketStatus) Terminal() bool {
	return s == TicketCompleted || s == TicketCancelled
}

type Ticket struct {
	ID             string          `json:"id"`
	CallID         string          `json:"call_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       Category        `json:"category"`
	Urgency        Urgency         `json:"urgency"`
	Status         TicketStatus    `json:"status"`
	PropertyID     string          `json:"property_id"`
	Unit           string          `json:"unit"`
	TenantPhone    string          `json:"tenant_phone"`
	AssignedTo     *string         `json:"assigned_to"`
	Classification *Classification `json:"classification,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// CanTransition reports whether the lifecycle allows moving to next.
// Statuses only move forward; CANCELLED is reachable from any non-terminal status.
func (t Ticket) CanTransition(next TicketStatus) bool {
	if t.Status.Terminal() {
		return false
	}
	if next == TicketCancelled {
		return true
	}
	cur, ok := ticketStatusRank[t.Status]
	if !ok {
		return false
	}
	to, ok := ticketStatusRank[next]
	return ok && to > cur
}

// ReferenceNumber is the short code read back to tenants.
func (t Ticket) ReferenceNumber() string {
	id := strings.ReplaceAll(t.ID, "-", "")
	if len(id) > 6 {
		id = id[len(id)-6:]
	}
	return strings.ToUpper(id)
}

// ClassificationOrDefault returns the stored classification or one derived from the ticket columns.
func (t Ticket) ClassificationOrDefault() Classification {
	if t.Classification != nil {
		return *t.Classification
	}
	return Classification{
		Category:            t.Category,
		Urgency:             t.Urgency,
		RequiredSkills:      []string{string(t.Category)},
		SafetyRisk:          t.Urgency == UrgencyEmergency,
		TenantVulnerability: VulnerabilityNone,
	}
}

type Technician struct {
	ID                  string    `json:"id" validate:"required"`
	Name                string    `json:"name" validate:"required"`
	Phone               string    `json:"phone" validate:"required"`
	Email               string    `json:"email,omitempty" validate:"omitempty,email"`
	Skills              []string  `json:"skills" validate:"required,min=1"`
	Available           bool      `json:"available"`
	Rating              float64   `json:"rating" validate:"gte=0,lte=5"`
	ResponseTimeMinutes int       `json:"response_time_minutes" validate:"gte=0"`
	HourlyRate          float64   `json:"hourly_rate" validate:"gte=0"`
	EmergencyRate       float64   `json:"emergency_rate" validate:"gte=0"`
	MaxJobs             int       `json:"max_jobs" validate:"gte=0"`
	Zone                string    `json:"zone"`
	CurrentTicketID     *string   `json:"current_ticket_id,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func (t Technician) HasAnySkill(skills []string) bool {
	return len(t.MatchedSkills(skills)) > 0
}

// MatchedSkills returns the members of skills that the technician has.
func (t Technician) MatchedSkills(skills []string) []string {
	var out []string
	for _, want := range skills {
		for _, have := range t.Skills {
			if strings.EqualFold(strings.TrimSpace(have), strings.TrimSpace(want)) {
				out = append(out, want)
				break
			}
		}
	}
	return out
}

type Property struct {
	ID      string `json:"id"`
	Address string `json:"address"`
	VIP     bool   `json:"vip"`
}

type DeliveryStatus string

const (
	DeliverySent      DeliveryStatus = "sent"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
)

const ChannelSMS = "sms"

type NotificationRecord struct {
	ID        string         `json:"id"`
	TicketID  string         `json:"ticket_id"`
	Recipient string         `json:"recipient"`
	Channel   string         `json:"channel"`
	Message   string         `json:"message"`
	Status    DeliveryStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
}
