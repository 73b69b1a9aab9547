package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/propertyline/triage/internal/models"
)

func TestMemoryTryReserveIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	_ = store.UpsertTechnician(ctx, models.Technician{ID: "t1", Name: "A", Phone: "1", Skills: []string{"plumbing"}, Available: true})

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryReserve(ctx, "t1", "ticket")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
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

	tech, _ := store.GetTechnician(ctx, "t1")
	if tech.Available || tech.CurrentTicketID == nil || *tech.CurrentTicketID != "ticket" {
		t.Fatalf("expected reserved technician, got %+v", tech)
	}
	if err := store.Release(ctx, "t1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := store.TryReserve(ctx, "t1", "ticket-2"); !ok {
		t.Fatalf("expected reservation after release")
	}
}

func TestMemoryTryReserveUnknownTechnician(t *testing.T) {
	_, err := NewMemoryStore().TryReserve(context.Background(), "missing", "ticket")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryQueryAvailableFiltersBySkill(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SeedDemo()

	techs, _ := store.QueryAvailable(ctx, []string{"plumbing"})
	if len(techs) != 1 || techs[0].ID != "1" {
		t.Fatalf("expected only technician 1 (3 is unavailable), got %+v", techs)
	}
	techs, _ = store.QueryAvailable(ctx, []string{"hvac", "appliance"})
	if len(techs) != 1 || techs[0].ID != "2" {
		t.Fatalf("expected technician 2, got %+v", techs)
	}
	all, _ := store.QueryAllAvailable(ctx)
	if len(all) != 2 || all[0].ID != "1" {
		t.Fatalf("expected available technicians ordered by response time, got %+v", all)
	}
}

func TestMemoryTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if _, err := store.CreateTicket(ctx, models.Ticket{ID: "tk1", CallID: "c1", Category: models.CategoryPlumbing}); err != nil {
		t.Fatalf("create: %v", err)
	}
	tk, err := store.AssignTicket(ctx, "tk1", "t1")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if tk.Status != models.TicketDispatched || tk.AssignedTo == nil || *tk.AssignedTo != "t1" {
		t.Fatalf("unexpected ticket after assign: %+v", tk)
	}
	if _, err := store.AssignTicket(ctx, "tk1", "t2"); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected second assign to fail, got %v", err)
	}
	if _, err := store.UpdateTicketStatus(ctx, "tk1", models.TicketCreated); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected backward transition to fail, got %v", err)
	}
	if _, err := store.UpdateTicketStatus(ctx, "tk1", models.TicketCompleted); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if _, err := store.UpdateTicketStatus(ctx, "tk1", models.TicketCancelled); !errors.Is(err, models.ErrInvalidTransition) {
		t.Fatalf("expected cancel of completed ticket to fail, got %v", err)
	}
	if _, err := store.GetTicket(ctx, "nope"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryCallIsCopied(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	s := models.CallSession{ID: "c1", Transcript: []models.Turn{{Speaker: models.SpeakerTenant, Text: "hi"}}}
	_ = store.CreateCall(ctx, s)
	s.Transcript[0].Text = "changed"
	got, _ := store.GetCall(ctx, "c1")
	if got.Transcript[0].Text != "hi" {
		t.Fatalf("expected stored call to be isolated from caller mutation")
	}
}
