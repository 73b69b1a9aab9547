package classifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/propertyline/triage/internal/models"
)

const keywordConfidence = 0.85

var urgencyTiers = []struct {
	urgency  models.Urgency
	keywords []string
}{
	{models.UrgencyEmergency, []string{"flood", "gas", "fire", "sparks", "electrical smell", "sewage"}},
	{models.UrgencyHigh, []string{"no heat", "no hot water", "only toilet", "broken lock"}},
	{models.UrgencyMedium, []string{"leak", "drip", "broken", "not working"}},
}

var categoryGroups = []struct {
	category models.Category
	keywords []string
}{
	{models.CategoryPlumbing, []string{"toilet", "sink", "pipe", "flood", "leak"}},
	{models.CategoryElectrical, []string{"electrical", "outlet", "light", "power"}},
	{models.CategoryHVAC, []string{"heat", "ac", "air", "temperature"}},
	{models.CategoryAppliance, []string{"appliance", "fridge", "stove", "washer"}},
}

// costTable is indexed by urgency: LOW, MEDIUM, HIGH, EMERGENCY.
var costTable = map[models.Category][4]models.CostRange{
	models.CategoryPlumbing:   {{Min: 50, Max: 150}, {Min: 100, Max: 300}, {Min: 200, Max: 500}, {Min: 300, Max: 1000}},
	models.CategoryElectrical: {{Min: 75, Max: 200}, {Min: 150, Max: 350}, {Min: 250, Max: 600}, {Min: 400, Max: 1200}},
	models.CategoryHVAC:       {{Min: 100, Max: 250}, {Min: 200, Max: 400}, {Min: 300, Max: 700}, {Min: 500, Max: 1500}},
	models.CategoryAppliance:  {{Min: 50, Max: 150}, {Min: 100, Max: 250}, {Min: 150, Max: 400}, {Min: 200, Max: 600}},
	models.CategoryGeneral:    {{Min: 50, Max: 100}, {Min: 75, Max: 200}, {Min: 100, Max: 300}, {Min: 150, Max: 500}},
	models.CategorySecurity:   {{Min: 100, Max: 200}, {Min: 150, Max: 300}, {Min: 200, Max: 500}, {Min: 300, Max: 800}},
}

// EstimateCost looks up the fixed cost range for a category and urgency.
func EstimateCost(category models.Category, urgency models.Urgency) models.CostRange {
	row, ok := costTable[category]
	if !ok {
		row = costTable[models.CategoryGeneral]
	}
	if urgency < models.UrgencyLow || urgency > models.UrgencyEmergency {
		urgency = models.UrgencyLow
	}
	return row[urgency]
}

// KeywordClassifier is the deterministic classifier. It never fails.
type KeywordClassifier struct{}

func (KeywordClassifier) Classify(_ context.Context, transcript string) (models.Classification, error) {
	return ClassifyText(transcript), nil
}

// ClassifyText is the pure form of KeywordClassifier.Classify.
func ClassifyText(transcript string) models.Classification {
	text := strings.ToLower(transcript)

	urgency := models.UrgencyLow
	var matched []string
	for _, tier := range urgencyTiers {
		hits := containsAny(text, tier.keywords)
		if len(hits) > 0 {
			urgency = tier.urgency
			matched = append(matched, hits...)
			break
		}
	}

	category := models.CategoryGeneral
	for _, group := range categoryGroups {
		hits := containsAny(text, group.keywords)
		if len(hits) > 0 {
			category = group.category
			matched = appendUnique(matched, hits...)
			break
		}
	}

	highRisk := urgency == models.UrgencyEmergency || urgency == models.UrgencyHigh
	return models.Classification{
		Category:              category,
		Urgency:               urgency,
		Confidence:            keywordConfidence,
		Keywords:              matched,
		EstimatedCost:         EstimateCost(category, urgency),
		RequiredSkills:        []string{string(category)},
		TimeEstimateHours:     timeEstimate(urgency),
		Description:           fmt.Sprintf("%s %s issue requiring attention", urgency, category),
		SafetyRisk:            urgency == models.UrgencyEmergency,
		PropertyDamage:        highRisk,
		TenantVulnerability:   models.VulnerabilityNone,
		FollowUpRequired:      highRisk,
		PreventiveMaintenance: []string{},
	}
}

func timeEstimate(u models.Urgency) float64 {
	switch u {
	case models.UrgencyEmergency:
		return 1
	case models.UrgencyHigh:
		return 2
	default:
		return 3
	}
}

func containsAny(text string, keywords []string) []string {
	var out []string
	for _, k := range keywords {
		if strings.Contains(text, k) {
			out = append(out, k)
		}
	}
	return out
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
