package classifier

import (
	"context"
	"reflect"
	"testing"

	"github.com/propertyline/triage/internal/models"
)

func TestClassifyFloodIsPlumbingEmergency(t *testing.T) {
	for _, text := range []string{
		"My apartment is flooding! Water is coming from the ceiling!",
		"FLOOD in the basement",
		"there's a small Flood near the sink",
	} {
		c := ClassifyText(text)
		if c.Urgency != models.UrgencyEmergency {
			t.Fatalf("%q: expected EMERGENCY, got %s", text, c.Urgency)
		}
		if c.Category != models.CategoryPlumbing {
			t.Fatalf("%q: expected plumbing, got %s", text, c.Category)
		}
		if c.EstimatedCost.Min > c.EstimatedCost.Max {
			t.Fatalf("%q: cost min > max: %+v", text, c.EstimatedCost)
		}
		if !c.SafetyRisk || !c.PropertyDamage || !c.FollowUpRequired {
			t.Fatalf("%q: expected risk flags set, got %+v", text, c)
		}
	}
}

func TestClassifyUrgencyTiers(t *testing.T) {
	cases := []struct {
		text     string
		urgency  models.Urgency
		category models.Category
	}{
		{"I smell gas in the kitchen", models.UrgencyEmergency, models.CategoryGeneral},
		{"there are sparks from the outlet", models.UrgencyEmergency, models.CategoryElectrical},
		{"we have no heat since yesterday", models.UrgencyHigh, models.CategoryHVAC},
		{"no hot water in the shower", models.UrgencyHigh, models.CategoryGeneral},
		{"the kitchen sink has a slow drip", models.UrgencyMedium, models.CategoryPlumbing},
		{"fridge is not working", models.UrgencyMedium, models.CategoryAppliance},
		{"the hallway light is dim", models.UrgencyLow, models.CategoryElectrical},
		{"paint is peeling", models.UrgencyLow, models.CategoryGeneral},
	}
	for _, tc := range cases {
		c := ClassifyText(tc.text)
		if c.Urgency != tc.urgency || c.Category != tc.category {
			t.Fatalf("%q: expected %s/%s, got %s/%s", tc.text, tc.urgency, tc.category, c.Urgency, c.Category)
		}
		if len(c.RequiredSkills) != 1 || c.RequiredSkills[0] != string(tc.category) {
			t.Fatalf("%q: expected required skills [%s], got %v", tc.text, tc.category, c.RequiredSkills)
		}
	}
}

func TestClassifyDerivedFields(t *testing.T) {
	c := ClassifyText("the pipe is broken")
	if c.Urgency != models.UrgencyMedium {
		t.Fatalf("expected MEDIUM, got %s", c.Urgency)
	}
	if c.TimeEstimateHours != 3 {
		t.Fatalf("expected 3h estimate, got %v", c.TimeEstimateHours)
	}
	if c.Description != "MEDIUM plumbing issue requiring attention" {
		t.Fatalf("unexpected description: %s", c.Description)
	}
	if c.Confidence != 0.85 {
		t.Fatalf("expected confidence 0.85, got %v", c.Confidence)
	}
	if c.SafetyRisk || c.PropertyDamage || c.FollowUpRequired {
		t.Fatalf("expected no risk flags for MEDIUM, got %+v", c)
	}
	if c.EstimatedCost != (models.CostRange{Min: 100, Max: 300}) {
		t.Fatalf("unexpected cost: %+v", c.EstimatedCost)
	}
}

func TestClassifyDeterministic(t *testing.T) {
	text := "Water leak under the sink and the outlet sparks"
	a, _ := KeywordClassifier{}.Classify(context.Background(), text)
	b, _ := KeywordClassifier{}.Classify(context.Background(), text)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("expected identical results, got %+v and %+v", a, b)
	}
}

func TestCostTableInvariants(t *testing.T) {
	categories := []models.Category{
		models.CategoryPlumbing, models.CategoryElectrical, models.CategoryHVAC,
		models.CategoryAppliance, models.CategorySecurity, models.CategoryGeneral,
	}
	for _, cat := range categories {
		for u := models.UrgencyLow; u <= models.UrgencyEmergency; u++ {
			r := EstimateCost(cat, u)
			if r.Min > r.Max || r.Min <= 0 {
				t.Fatalf("%s/%s: bad range %+v", cat, u, r)
			}
		}
	}
	for _, text := range []string{"", "???", "sewage backing up", "washer broken", "AC is loud"} {
		c := ClassifyText(text)
		if c.EstimatedCost.Min > c.EstimatedCost.Max {
			t.Fatalf("%q: min > max", text)
		}
		if c.Confidence < 0 || c.Confidence > 1 {
			t.Fatalf("%q: confidence out of range: %v", text, c.Confidence)
		}
	}
}
