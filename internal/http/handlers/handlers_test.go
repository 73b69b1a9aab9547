package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/propertyline/triage/internal/classifier"
	"github.com/propertyline/triage/internal/conversation"
	"github.com/propertyline/triage/internal/db"
	"github.com/propertyline/triage/internal/dispatch"
	"github.com/propertyline/triage/internal/escalation"
	"github.com/propertyline/triage/internal/models"
	"github.com/propertyline/triage/internal/notify"
)

func newTestRouter(t *testing.T) (*gin.Engine, *db.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := db.NewMemoryStore()
	store.SeedDemo()
	engine := &dispatch.Engine{
		Tickets:  store,
		Registry: store,
		Log:      store,
		Sender:   &notify.LogSender{Logger: zerolog.Nop()},
		Logger:   zerolog.Nop(),
	}
	h := &Handler{
		Repo: store,
		Agent: &conversation.Agent{
			Calls:      store,
			Tickets:    store,
			Tenants:    store,
			Classifier: classifier.KeywordClassifier{},
			Dispatcher: engine,
			Logger:     zerolog.Nop(),
		},
		Engine:    engine,
		Sweeper:   &escalation.Sweeper{Tickets: store, Properties: store, Log: store, Logger: zerolog.Nop()},
		Validator: validator.New(),
		Logger:    zerolog.Nop(),
	}

	r := gin.New()
	r.POST("/api/calls", h.StartCall)
	r.GET("/api/calls/:id", h.CallDetails)
	r.POST("/api/calls/:id/utterances", h.Utterance)
	r.POST("/api/calls/:id/hangup", h.Hangup)
	r.GET("/api/tickets/:id", h.TicketDetails)
	r.GET("/api/tickets/:id/escalation", h.EscalationCheck)
	r.POST("/api/tickets/:id/dispatch", h.Dispatch)
	r.PUT("/api/technicians/:id", h.UpsertTechnician)
	return r, store
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestCallFlowOverHTTP(t *testing.T) {
	r, _ := newTestRouter(t)

	w, body := do(t, r, http.MethodPost, "/api/calls", map[string]string{"call_id": "c1", "phone": "+15550001111"})
	if w.Code != http.StatusCreated || body["response_text"] != conversation.Greeting {
		t.Fatalf("start: %d %v", w.Code, body)
	}

	w, body = do(t, r, http.MethodPost, "/api/calls/c1/utterances", map[string]string{"text": "There is water everywhere in my kitchen"})
	if w.Code != http.StatusOK {
		t.Fatalf("utterance: %d %v", w.Code, body)
	}
	if body["next_action"] != "dispatch" || body["state"] != "TERMINATED" {
		t.Fatalf("unexpected turn: %v", body)
	}
	class, _ := body["classification"].(map[string]any)
	if class["urgency"] != "EMERGENCY" {
		t.Fatalf("expected EMERGENCY urgency, got %v", class["urgency"])
	}
	ticketID, _ := body["ticket_id"].(string)
	if ticketID == "" {
		t.Fatalf("missing ticket id")
	}

	w, body = do(t, r, http.MethodGet, "/api/tickets/"+ticketID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ticket: %d %v", w.Code, body)
	}
	if n, _ := body["notifications"].([]any); len(n) != 2 {
		t.Fatalf("expected 2 notifications, got %v", body["notifications"])
	}

	w, body = do(t, r, http.MethodPost, "/api/calls/c1/utterances", map[string]string{"text": "hello?"})
	if w.Code != http.StatusConflict || errorCode(body) != "SESSION_CLOSED" {
		t.Fatalf("expected 409, got %d %v", w.Code, body)
	}
}

func TestUtteranceErrors(t *testing.T) {
	r, _ := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/calls", map[string]string{"call_id": "c2", "phone": "+15550001111"})

	w, body := do(t, r, http.MethodPost, "/api/calls/c2/utterances", map[string]string{"text": "  "})
	if w.Code != http.StatusBadRequest || errorCode(body) != "VALIDATION_ERROR" {
		t.Fatalf("expected 400, got %d %v", w.Code, body)
	}
	e := body["error"].(map[string]any)
	details, _ := e["details"].(map[string]any)
	if details["reprompt"] != conversation.RepromptMessage {
		t.Fatalf("expected re-prompt text, got %v", e["details"])
	}

	w, body = do(t, r, http.MethodPost, "/api/calls/nope/utterances", map[string]string{"text": "flood"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %v", w.Code, body)
	}

	w, _ = do(t, r, http.MethodPost, "/api/calls", map[string]string{"call_id": "c3"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing phone should be rejected, got %d", w.Code)
	}
}

func TestHangupEndsCall(t *testing.T) {
	r, _ := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/calls", map[string]string{"call_id": "c4", "phone": "+15550001111"})

	w, _ := do(t, r, http.MethodPost, "/api/calls/c4/hangup", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("hangup: %d", w.Code)
	}
	w, body := do(t, r, http.MethodGet, "/api/calls/c4", nil)
	if w.Code != http.StatusOK || body["state"] != "TERMINATED" {
		t.Fatalf("unexpected call: %d %v", w.Code, body)
	}
}

func TestDispatchUnknownTicket(t *testing.T) {
	r, _ := newTestRouter(t)
	w, body := do(t, r, http.MethodPost, "/api/tickets/missing/dispatch", nil)
	if w.Code != http.StatusNotFound || errorCode(body) != "NOT_FOUND" {
		t.Fatalf("expected 404, got %d %v", w.Code, body)
	}
}

func TestUpsertTechnicianValidation(t *testing.T) {
	r, store := newTestRouter(t)
	w, body := do(t, r, http.MethodPut, "/api/technicians/t9", map[string]any{"name": "No Skills", "phone": "+1555"})
	if w.Code != http.StatusBadRequest || errorCode(body) != "VALIDATION_ERROR" {
		t.Fatalf("expected validation error, got %d %v", w.Code, body)
	}

	w, body = do(t, r, http.MethodPut, "/api/technicians/t9", map[string]any{
		"name": "Pat Lee", "phone": "+15559999999", "skills": []string{"appliance"},
		"available": true, "rating": 4.4, "response_time_minutes": 35,
	})
	if w.Code != http.StatusOK || body["id"] != "t9" {
		t.Fatalf("upsert: %d %v", w.Code, body)
	}
	if _, err := store.GetTechnician(t.Context(), "t9"); err != nil {
		t.Fatalf("technician not stored: %v", err)
	}
}

func TestUpsertTechnicianKeepsAvailability(t *testing.T) {
	r, store := newTestRouter(t)
	ctx := t.Context()
	if _, err := store.CreateTicket(ctx, models.Ticket{ID: "tk-1", Urgency: models.UrgencyMedium, Category: models.CategoryPlumbing}); err != nil {
		t.Fatalf("create: %v", err)
	}
	ok, err := store.TryReserve(ctx, "1", "tk-1")
	if err != nil || !ok {
		t.Fatalf("reserve: %v %v", ok, err)
	}

	w, body := do(t, r, http.MethodPut, "/api/technicians/1", map[string]any{
		"name": "John Smith", "phone": "+1234567890", "skills": []string{"plumbing"},
		"available": true, "rating": 4.8, "response_time_minutes": 25,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("upsert: %d %v", w.Code, body)
	}
	tech, _ := store.GetTechnician(ctx, "1")
	if tech.Available || tech.CurrentTicketID == nil || *tech.CurrentTicketID != "tk-1" {
		t.Fatalf("edit must not free a reserved technician: %+v", tech)
	}
	if ok, _ := store.TryReserve(ctx, "1", "tk-2"); ok {
		t.Fatalf("reserved technician was booked twice")
	}

	w, body = do(t, r, http.MethodPut, "/api/technicians/2", map[string]any{
		"name": "Maria Garcia", "phone": "+1234567891", "skills": []string{"electrical"},
		"rating": 4.9, "response_time_minutes": 30,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("upsert: %d %v", w.Code, body)
	}
	if tech, _ := store.GetTechnician(ctx, "2"); !tech.Available {
		t.Fatalf("omitting available must not take a free technician out of the pool")
	}
}
