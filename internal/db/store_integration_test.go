package db

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"

	"github.com/propertyline/triage/internal/models"
)

func TestStoreReserveIntegration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := New(ctx, url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	techID := "it-" + uuid.NewString()
	if err := store.UpsertTechnician(ctx, models.Technician{ID: techID, Name: "Integration", Phone: "+100", Skills: []string{"plumbing"}, Available: true, Rating: 4, ResponseTimeMinutes: 15}); err != nil {
		t.Fatalf("upsert technician: %v", err)
	}

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryReserve(ctx, techID, "ticket")
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			if ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected exactly one reservation, got %d", wins)
	}
	if err := store.Release(ctx, techID); err != nil {
		t.Fatalf("release: %v", err)
	}
}

func TestStoreTicketRoundTripIntegration(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := New(ctx, url)
	if err != nil {
		t.Fatalf("db connect: %v", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	class := models.Classification{Category: models.CategoryHVAC, Urgency: models.UrgencyHigh, Confidence: 0.9, SafetyRisk: true}
	created, err := store.CreateTicket(ctx, models.Ticket{
		ID: uuid.NewString(), CallID: uuid.NewString(), Title: "HIGH: No heat", Category: models.CategoryHVAC,
		Urgency: models.UrgencyHigh, PropertyID: "PROP-001", Unit: "101", TenantPhone: "+1555", Classification: &class,
	})
	if err != nil {
		t.Fatalf("create ticket: %v", err)
	}
	got, err := store.GetTicket(ctx, created.ID)
	if err != nil {
		t.Fatalf("get ticket: %v", err)
	}
	if got.Urgency != models.UrgencyHigh || got.Status != models.TicketCreated || got.Classification == nil || !got.Classification.SafetyRisk {
		t.Fatalf("unexpected ticket: %+v", got)
	}
}
