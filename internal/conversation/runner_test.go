package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/propertyline/triage/internal/models"
)

type scriptedCall struct {
	mu          sync.Mutex
	utterances  []any // string or error
	spoken      []string
	transferred []string
	ended       bool
}

func (c *scriptedCall) NextUtterance(context.Context, time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.utterances) == 0 {
		return "", ErrCallerHungUp
	}
	next := c.utterances[0]
	c.utterances = c.utterances[1:]
	if err, ok := next.(error); ok {
		return "", err
	}
	return next.(string), nil
}

func (c *scriptedCall) Speak(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spoken = append(c.spoken, text)
	return nil
}

func (c *scriptedCall) TransferToHuman(_ context.Context, dest string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transferred = append(c.transferred, dest)
	return nil
}

func (c *scriptedCall) EndCall(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended = true
	return nil
}

func TestRunnerDispatchesAfterSilence(t *testing.T) {
	a, store := newAgent(t)
	call := &scriptedCall{utterances: []any{ErrUtteranceTimeout, "", "my toilet is broken", "it's overflowing"}}
	r := &CallRunner{Agent: a, MaxReprompts: 2, Logger: zerolog.Nop()}

	if err := r.Run(context.Background(), call, "run-1", callerPhone); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !call.ended {
		t.Fatalf("call not ended")
	}
	if call.spoken[0] != Greeting || call.spoken[1] != RepromptMessage || call.spoken[2] != RepromptMessage {
		t.Fatalf("unexpected prompts: %q", call.spoken)
	}
	last := call.spoken[len(call.spoken)-1]
	if !strings.Contains(last, "dispatched") {
		t.Fatalf("expected dispatch acknowledgement, got %q", last)
	}
	session, _ := store.GetCall(context.Background(), "run-1")
	if session.State != models.CallTerminated || session.TicketID == nil {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestRunnerTransfersAfterTooManyReprompts(t *testing.T) {
	a, store := newAgent(t)
	call := &scriptedCall{utterances: []any{ErrUtteranceTimeout, ErrUtteranceTimeout, ErrUtteranceTimeout}}
	r := &CallRunner{Agent: a, MaxReprompts: 2, Logger: zerolog.Nop()}

	if err := r.Run(context.Background(), call, "run-2", callerPhone); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(call.transferred) != 1 || call.transferred[0] != DefaultBackupLine {
		t.Fatalf("expected backup transfer, got %v", call.transferred)
	}
	if call.spoken[len(call.spoken)-1] != ApologyMessage || !call.ended {
		t.Fatalf("expected apology then end, got %q", call.spoken)
	}
	session, _ := store.GetCall(context.Background(), "run-2")
	if session.State != models.CallTerminated || session.TicketID != nil {
		t.Fatalf("unexpected session: %+v", session)
	}
}

func TestRunnerCallerHangsUp(t *testing.T) {
	a, store := newAgent(t)
	call := &scriptedCall{utterances: []any{"my toilet won't flush"}}
	r := &CallRunner{Agent: a, Logger: zerolog.Nop()}

	if err := r.Run(context.Background(), call, "run-3", callerPhone); err != nil {
		t.Fatalf("hangup should not be an error: %v", err)
	}
	session, _ := store.GetCall(context.Background(), "run-3")
	if session.State != models.CallTerminated || session.TicketID != nil {
		t.Fatalf("expected terminated session without ticket: %+v", session)
	}
}

func TestRunnerEscalationTransfersToManager(t *testing.T) {
	a, _ := newAgent(t)
	call := &scriptedCall{utterances: []any{"can I talk to a person please"}}
	r := &CallRunner{Agent: a, Logger: zerolog.Nop()}

	if err := r.Run(context.Background(), call, "run-4", callerPhone); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(call.transferred) != 1 || call.transferred[0] != DefaultManagerLine || !call.ended {
		t.Fatalf("expected manager transfer, got %v", call.transferred)
	}
}
