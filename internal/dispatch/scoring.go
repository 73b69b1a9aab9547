package dispatch

import (
	"sort"

	"github.com/propertyline/triage/internal/models"
)

type ScoredCandidate struct {
	Technician    models.Technician `json:"technician"`
	Score         float64           `json:"score"`
	MatchedSkills []string          `json:"matched_skills"`
}

// Score rates a technician for a ticket. Higher is better.
func Score(t models.Technician, urgency models.Urgency, required []string) float64 {
	matched := len(t.MatchedSkills(required))

	score := t.Rating
	score += float64(60-t.ResponseTimeMinutes) / 12
	score += 2 * float64(matched)
	if urgency == models.UrgencyEmergency && t.ResponseTimeMinutes <= 20 {
		score += 3
	}
	if urgency != models.UrgencyEmergency {
		avgRate := (t.HourlyRate + t.EmergencyRate) / 2
		score -= avgRate / 50
	}
	return score
}

// Rank scores candidates and orders them best first.
// Ties go to the faster responder, then to the lower id.
func Rank(techs []models.Technician, urgency models.Urgency, required []string) []ScoredCandidate {
	out := make([]ScoredCandidate, 0, len(techs))
	for _, t := range techs {
		out = append(out, ScoredCandidate{
			Technician:    t,
			Score:         Score(t, urgency, required),
			MatchedSkills: t.MatchedSkills(required),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Technician.ResponseTimeMinutes != out[j].Technician.ResponseTimeMinutes {
			return out[i].Technician.ResponseTimeMinutes < out[j].Technician.ResponseTimeMinutes
		}
		return out[i].Technician.ID < out[j].Technician.ID
	})
	return out
}

// byResponseTime orders emergency fallback candidates fastest first.
func byResponseTime(techs []models.Technician, urgency models.Urgency, required []string) []ScoredCandidate {
	out := make([]ScoredCandidate, 0, len(techs))
	for _, t := range techs {
		out = append(out, ScoredCandidate{Technician: t, Score: Score(t, urgency, required)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Technician.ResponseTimeMinutes != out[j].Technician.ResponseTimeMinutes {
			return out[i].Technician.ResponseTimeMinutes < out[j].Technician.ResponseTimeMinutes
		}
		return out[i].Technician.ID < out[j].Technician.ID
	})
	return out
}
