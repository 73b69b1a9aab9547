package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/propertyline/triage/internal/models"
)

// HTTPClassifier calls a remote classification service at {BaseURL}/classify.
type HTTPClassifier struct {
	BaseURL  string
	Client   *http.Client
	CacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

type cacheEntry struct {
	value models.Classification
	exp   time.Time
}

type classifyRequest struct {
	Transcript string `json:"transcript"`
}

type classifyResponse struct {
	Category       string   `json:"category"`
	Urgency        string   `json:"urgency"`
	Confidence     float64  `json:"confidence"`
	Keywords       []string `json:"keywords"`
	RequiredSkills []string `json:"required_skills"`
	Description    string   `json:"description"`
	SafetyRisk     bool     `json:"safety_risk"`
	PropertyDamage bool     `json:"property_damage"`
	Vulnerability  string   `json:"tenant_vulnerability"`
	TimeEstimate   float64  `json:"time_estimate_hours"`
	Preventive     []string `json:"preventive_maintenance"`
}

func (h *HTTPClassifier) Classify(ctx context.Context, transcript string) (models.Classification, error) {
	if strings.TrimSpace(h.BaseURL) == "" {
		return models.Classification{}, fmt.Errorf("%w: base url is not set", models.ErrClassifierUnavailable)
	}
	if h.Client == nil {
		h.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if v, ok := h.cacheGet(transcript); ok {
		return v, nil
	}

	b, _ := json.Marshal(classifyRequest{Transcript: transcript})
	url := strings.TrimRight(h.BaseURL, "/") + "/classify"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return models.Classification{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.Client.Do(req)
	if err != nil {
		return models.Classification{}, fmt.Errorf("%w: %v", models.ErrClassifierUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Classification{}, fmt.Errorf("%w: http %s", models.ErrClassifierUnavailable, resp.Status)
	}

	var r classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return models.Classification{}, fmt.Errorf("%w: decode: %v", models.ErrClassifierUnavailable, err)
	}
	out, err := r.toClassification()
	if err != nil {
		return models.Classification{}, err
	}
	h.cacheSet(transcript, out)
	return out, nil
}

func (r classifyResponse) toClassification() (models.Classification, error) {
	urgency, err := models.ParseUrgency(r.Urgency)
	if err != nil {
		return models.Classification{}, fmt.Errorf("%w: %v", models.ErrClassifierUnavailable, err)
	}
	category := models.Category(strings.ToLower(strings.TrimSpace(r.Category)))
	if _, ok := costTable[category]; !ok {
		category = models.CategoryGeneral
	}
	confidence := r.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	vuln := models.Vulnerability(r.Vulnerability)
	if vuln == "" {
		vuln = models.VulnerabilityNone
	}
	hours := r.TimeEstimate
	if hours <= 0 {
		hours = timeEstimate(urgency)
	}
	skills := r.RequiredSkills
	if len(skills) == 0 {
		skills = []string{string(category)}
	}
	desc := r.Description
	if desc == "" {
		desc = fmt.Sprintf("%s %s issue requiring attention", urgency, category)
	}
	highRisk := urgency == models.UrgencyEmergency || urgency == models.UrgencyHigh
	return models.Classification{
		Category:              category,
		Urgency:               urgency,
		Confidence:            confidence,
		Keywords:              r.Keywords,
		EstimatedCost:         EstimateCost(category, urgency),
		RequiredSkills:        skills,
		TimeEstimateHours:     hours,
		Description:           desc,
		SafetyRisk:            r.SafetyRisk || urgency == models.UrgencyEmergency,
		PropertyDamage:        r.PropertyDamage || highRisk,
		TenantVulnerability:   vuln,
		FollowUpRequired:      highRisk,
		PreventiveMaintenance: r.Preventive,
	}, nil
}

func (h *HTTPClassifier) cacheGet(key string) (models.Classification, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if e, ok := h.cache[key]; ok {
		if time.Now().Before(e.exp) {
			return e.value.Clone(), true
		}
		delete(h.cache, key)
	}
	return models.Classification{}, false
}

func (h *HTTPClassifier) cacheSet(key string, value models.Classification) {
	if h.CacheTTL <= 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cache == nil {
		h.cache = map[string]cacheEntry{}
	}
	h.cache[key] = cacheEntry{value: value.Clone(), exp: time.Now().Add(h.CacheTTL)}
}
