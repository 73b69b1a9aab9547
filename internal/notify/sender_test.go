package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/propertyline/triage/internal/models"
)

func TestHTTPSenderDelivered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing auth header")
		}
		var req smsRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.To != "+1555" || req.Body != "hello" || req.From != "+1800" {
			t.Errorf("unexpected payload %+v", req)
		}
		_ = json.NewEncoder(w).Encode(smsResponse{ID: "m1", Status: "delivered"})
	}))
	defer srv.Close()

	s := HTTPSender{BaseURL: srv.URL, From: "+1800", APIKey: "k"}
	status, err := s.Send(context.Background(), "+1555", "hello")
	if err != nil || status != models.DeliveryDelivered {
		t.Fatalf("expected delivered, got %s %v", status, err)
	}
}

func TestHTTPSenderGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	status, err := HTTPSender{BaseURL: srv.URL}.Send(context.Background(), "+1555", "hello")
	if status != models.DeliveryFailed || !errors.Is(err, models.ErrNotificationDelivery) {
		t.Fatalf("expected failed delivery, got %s %v", status, err)
	}
}

func TestLogSenderFailFor(t *testing.T) {
	s := &LogSender{Logger: zerolog.Nop(), FailFor: map[string]bool{"+1bad": true}}
	if status, err := s.Send(context.Background(), "+1good", "a"); err != nil || status != models.DeliverySent {
		t.Fatalf("expected sent, got %s %v", status, err)
	}
	if status, err := s.Send(context.Background(), "+1bad", "b"); err == nil || status != models.DeliveryFailed {
		t.Fatalf("expected failure, got %s %v", status, err)
	}
	if len(s.Sent()) != 2 {
		t.Fatalf("expected both attempts recorded, got %d", len(s.Sent()))
	}
}

func TestParseBrokers(t *testing.T) {
	got := ParseBrokers(" a:9092, ,b:9092 ")
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
	p := NewProducer(nil, "topic", zerolog.Nop())
	p.Publish(context.Background(), EventTicketCreated, nil)
	if err := p.Close(); err != nil {
		t.Fatalf("no-op producer close: %v", err)
	}
}

func TestPublishDoesNotStallOnUnreachableBroker(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:1"}, "ticket-events", zerolog.Nop())
	if !p.writer.Async {
		t.Fatalf("writer must be async")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	p.Publish(ctx, EventTicketCreated, map[string]any{"ticket_id": "t-1"})
	if elapsed := time.Since(start); elapsed > publishTimeout+time.Second {
		t.Fatalf("publish blocked for %s", elapsed)
	}
}
