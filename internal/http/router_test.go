package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/propertyline/triage/internal/config"
	"github.com/propertyline/triage/internal/db"
	"github.com/propertyline/triage/internal/dispatch"
	"github.com/propertyline/triage/internal/escalation"
	"github.com/propertyline/triage/internal/http/middleware"
)

func TestRouterAdminKeyAndRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := db.NewMemoryStore()
	store.SeedDemo()
	svc := Services{
		Repo:    store,
		Engine:  &dispatch.Engine{Tickets: store, Registry: store, Log: store, Logger: zerolog.Nop()},
		Sweeper: &escalation.Sweeper{Tickets: store, Properties: store, Log: store, Logger: zerolog.Nop()},
	}
	r := Router(config.Config{AdminKey: "secret", CORSAllowed: "*"}, svc, zerolog.Nop())

	req, _ := http.NewRequest(http.MethodPost, "/api/escalations/sweep", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without key, got %d", w.Code)
	}

	req, _ = http.NewRequest(http.MethodPost, "/api/escalations/sweep", nil)
	req.Header.Set("X-Admin-Key", "secret")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with key, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.HasPrefix(w.Header().Get(middleware.RequestIDHeader), "req_") {
		t.Fatalf("missing request id header")
	}

	req, _ = http.NewRequest(http.MethodGet, "/api/technicians", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "John Smith") {
		t.Fatalf("technicians: %d %s", w.Code, w.Body.String())
	}
}
