package conversation

import (
	"strings"

	"github.com/propertyline/triage/internal/models"
)

type NextAction string

const (
	ActionContinue NextAction = "continue"
	ActionDispatch NextAction = "dispatch"
	ActionEscalate NextAction = "escalate"
)

// Scenario is one scripted situation the agent recognises.
type Scenario struct {
	Key            string
	Triggers       []string
	Response       string
	Classification models.Classification
	NextAction     NextAction
	FollowUps      []string
}

// Matches reports whether the lower-cased text contains one of the triggers.
func (s Scenario) Matches(text string) bool {
	for _, t := range s.Triggers {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}

// Scenarios are evaluated in order; the first match wins.
var Scenarios = []Scenario{
	{
		Key:        "flooding",
		Triggers:   []string{"flood", "water everywhere"},
		Response:   "I understand there's flooding at your property. This is an emergency situation. Please turn off the water main if it's safe to do so. I'm dispatching help immediately.",
		NextAction: ActionDispatch,
		Classification: models.Classification{
			Category:              models.CategoryPlumbing,
			Urgency:               models.UrgencyEmergency,
			Confidence:            0.98,
			Keywords:              []string{"flood", "water", "emergency"},
			EstimatedCost:         models.CostRange{Min: 200, Max: 800},
			RequiredSkills:        []string{"plumbing", "water_damage"},
			TimeEstimateHours:     3,
			Description:           "Major flooding requiring immediate attention",
			SafetyRisk:            true,
			PropertyDamage:        true,
			TenantVulnerability:   models.VulnerabilityNone,
			FollowUpRequired:      true,
			PreventiveMaintenance: []string{"Regular pipe inspection", "Install water sensors"},
		},
	},
	{
		Key:        "no heat",
		Triggers:   []string{"no heat", "freezing"},
		Response:   "I understand you have no heat. This is an urgent issue and I'm getting a technician to you right away. In the meantime, please use any space heaters safely.",
		NextAction: ActionDispatch,
		Classification: models.Classification{
			Category:              models.CategoryHVAC,
			Urgency:               models.UrgencyHigh,
			Confidence:            0.95,
			Keywords:              []string{"heat", "cold", "hvac"},
			EstimatedCost:         models.CostRange{Min: 150, Max: 500},
			RequiredSkills:        []string{"hvac"},
			TimeEstimateHours:     2,
			Description:           "No heat in cold weather",
			SafetyRisk:            true,
			TenantVulnerability:   models.VulnerabilityNone,
			FollowUpRequired:      true,
			PreventiveMaintenance: []string{"Annual HVAC inspection"},
		},
	},
	{
		Key:        "electrical",
		Triggers:   []string{"electrical", "sparks"},
		Response:   "Electrical issues can be dangerous. For your safety, please avoid using that outlet or circuit and don't touch any exposed wires. I'm sending an electrician immediately.",
		NextAction: ActionDispatch,
		Classification: models.Classification{
			Category:              models.CategoryElectrical,
			Urgency:               models.UrgencyEmergency,
			Confidence:            0.97,
			Keywords:              []string{"electrical", "sparks", "outlet"},
			EstimatedCost:         models.CostRange{Min: 100, Max: 400},
			RequiredSkills:        []string{"electrical"},
			TimeEstimateHours:     2,
			Description:           "Electrical safety hazard",
			SafetyRisk:            true,
			PropertyDamage:        true,
			TenantVulnerability:   models.VulnerabilityNone,
			FollowUpRequired:      true,
			PreventiveMaintenance: []string{"Electrical system inspection"},
		},
	},
	{
		Key:        "toilet",
		Triggers:   []string{"toilet"},
		Response:   "I understand your toilet is having issues.",
		NextAction: ActionContinue,
		FollowUps:  []string{"Is this your only bathroom?", "Is water overflowing?"},
		Classification: models.Classification{
			Category:              models.CategoryPlumbing,
			Urgency:               models.UrgencyMedium,
			Confidence:            0.85,
			Keywords:              []string{"toilet", "bathroom", "plumbing"},
			EstimatedCost:         models.CostRange{Min: 75, Max: 250},
			RequiredSkills:        []string{"plumbing"},
			TimeEstimateHours:     1.5,
			Description:           "Toilet malfunction",
			TenantVulnerability:   models.VulnerabilityNone,
			PreventiveMaintenance: []string{"Regular toilet maintenance"},
		},
	},
	{
		Key:        "manager request",
		Triggers:   []string{"property manager", "speak to a manager", "talk to a person", "real person"},
		Response:   "Of course.",
		NextAction: ActionEscalate,
		Classification: models.Classification{
			Category:            models.CategoryGeneral,
			Urgency:             models.UrgencyMedium,
			Confidence:          0.9,
			Keywords:            []string{"manager"},
			EstimatedCost:       models.CostRange{Min: 50, Max: 200},
			RequiredSkills:      []string{"general"},
			TimeEstimateHours:   2,
			Description:         "Tenant asked for a property manager",
			TenantVulnerability: models.VulnerabilityNone,
		},
	},
}

// DefaultScenario applies when nothing in Scenarios matches.
var DefaultScenario = Scenario{
	Key:        "default",
	Response:   "I understand you're having a maintenance issue.",
	NextAction: ActionContinue,
	FollowUps:  []string{"Can you describe the problem in more detail?", "Is there any immediate danger?"},
	Classification: models.Classification{
		Category:              models.CategoryGeneral,
		Urgency:               models.UrgencyMedium,
		Confidence:            0.70,
		Keywords:              []string{"maintenance", "repair"},
		EstimatedCost:         models.CostRange{Min: 50, Max: 200},
		RequiredSkills:        []string{"general"},
		TimeEstimateHours:     2,
		Description:           "General maintenance issue",
		TenantVulnerability:   models.VulnerabilityNone,
		PreventiveMaintenance: []string{},
	},
}

// MatchScenario returns the first scenario triggered by text, or DefaultScenario.
func MatchScenario(text string) Scenario {
	lower := strings.ToLower(text)
	for _, s := range Scenarios {
		if s.Matches(lower) {
			return s
		}
	}
	return DefaultScenario
}

// LookupScenario finds a scenario by key, including the default.
func LookupScenario(key string) (Scenario, bool) {
	for _, s := range Scenarios {
		if s.Key == key {
			return s, true
		}
	}
	if key == DefaultScenario.Key {
		return DefaultScenario, true
	}
	return Scenario{}, false
}

var reinforcingPhrases = []string{"only bathroom", "overflowing"}

func reinforces(reply string) bool {
	lower := strings.ToLower(reply)
	for _, p := range reinforcingPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
