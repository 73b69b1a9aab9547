package dispatch

import (
	"testing"

	"github.com/propertyline/triage/internal/models"
)

func TestScoreMonotonicInRating(t *testing.T) {
	for _, urg := range []models.Urgency{models.UrgencyLow, models.UrgencyMedium, models.UrgencyHigh, models.UrgencyEmergency} {
		prev := -1e9
		for _, r := range []float64{1, 2, 3.5, 4.8, 5} {
			s := Score(plumber("x", r, 25), urg, []string{"plumbing"})
			if s <= prev {
				t.Fatalf("score not increasing with rating at %s: %v <= %v", urg, s, prev)
			}
			prev = s
		}
	}
}

func TestScoreFormula(t *testing.T) {
	tech := plumber("x", 4, 12)
	// 4 + 48/12 + 2*1 + 3
	if got := Score(tech, models.UrgencyEmergency, []string{"plumbing", "hvac"}); got != 13 {
		t.Fatalf("emergency score = %v", got)
	}
	// 4 + 4 + 2 - 100/50
	if got := Score(tech, models.UrgencyMedium, []string{"plumbing"}); got != 8 {
		t.Fatalf("medium score = %v", got)
	}
}

func TestRankTieBreak(t *testing.T) {
	a := plumber("b", 4, 24)
	b := plumber("a", 4, 24)
	c := plumber("c", 5, 36)
	ranked := Rank([]models.Technician{a, c, b}, models.UrgencyHigh, []string{"plumbing"})
	got := []string{ranked[0].Technician.ID, ranked[1].Technician.ID, ranked[2].Technician.ID}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("rank order = %v, want %v", got, want)
		}
	}
}
