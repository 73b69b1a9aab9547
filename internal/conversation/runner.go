package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/propertyline/triage/internal/models"
)

var (
	ErrUtteranceTimeout = errors.New("no utterance before timeout")
	ErrCallerHungUp     = errors.New("caller hung up")
)

// TelephonySession is one live phone call.
type TelephonySession interface {
	// NextUtterance blocks for the next recognised phrase, returning ErrUtteranceTimeout
	// when the caller stays silent and ErrCallerHungUp when the line drops.
	NextUtterance(ctx context.Context, timeout time.Duration) (string, error)
	Speak(ctx context.Context, text string) error
	TransferToHuman(ctx context.Context, destination string) error
	EndCall(ctx context.Context) error
}

const (
	DefaultUtteranceTimeout = 10 * time.Second
	DefaultMaxReprompts     = 2
)

// CallRunner drives a whole call through the Agent.
type CallRunner struct {
	Agent            *Agent
	UtteranceTimeout time.Duration
	MaxReprompts     int
	Logger           zerolog.Logger
}

func (r *CallRunner) timeout() time.Duration {
	if r.UtteranceTimeout > 0 {
		return r.UtteranceTimeout
	}
	return DefaultUtteranceTimeout
}

func (r *CallRunner) maxReprompts() int {
	if r.MaxReprompts > 0 {
		return r.MaxReprompts
	}
	return DefaultMaxReprompts
}

func (r *CallRunner) Run(ctx context.Context, call TelephonySession, callID, phone string) error {
	start, err := r.Agent.Start(ctx, callID, phone)
	if err != nil {
		r.Logger.Error().Err(err).Str("phone", phone).Msg("start call")
		return r.bail(ctx, call)
	}
	sessionID := start.SessionID
	if err := call.Speak(ctx, start.ResponseText); err != nil {
		return r.hangup(ctx, sessionID, err)
	}

	silent := 0
	for {
		text, err := call.NextUtterance(ctx, r.timeout())
		switch {
		case errors.Is(err, ErrUtteranceTimeout):
			if done, err := r.reprompt(ctx, call, sessionID, &silent); done {
				return err
			}
			continue
		case err != nil:
			return r.hangup(ctx, sessionID, err)
		}

		res, err := r.Agent.HandleUtterance(ctx, sessionID, text)
		switch {
		case errors.Is(err, models.ErrValidation):
			if done, err := r.reprompt(ctx, call, sessionID, &silent); done {
				return err
			}
			continue
		case errors.Is(err, models.ErrSessionClosed):
			return call.EndCall(ctx)
		case err != nil:
			r.Logger.Error().Err(err).Str("call_id", sessionID).Msg("handle utterance")
			_ = r.Agent.Hangup(context.WithoutCancel(ctx), sessionID)
			return r.bail(ctx, call)
		}
		silent = 0

		if err := call.Speak(ctx, res.ResponseText); err != nil {
			return r.hangup(ctx, sessionID, err)
		}
		if res.TransferTo != "" {
			if err := call.TransferToHuman(ctx, res.TransferTo); err != nil {
				r.Logger.Error().Err(err).Str("call_id", sessionID).Str("to", res.TransferTo).Msg("transfer call")
			}
		}
		if res.State == models.CallTerminated {
			return call.EndCall(ctx)
		}
	}
}

// reprompt asks again after silence. Past the limit the caller is sent to the backup line.
func (r *CallRunner) reprompt(ctx context.Context, call TelephonySession, sessionID string, silent *int) (bool, error) {
	*silent++
	if *silent > r.maxReprompts() {
		r.Logger.Warn().Str("call_id", sessionID).Int("reprompts", *silent-1).Msg("caller silent, transferring")
		_ = r.Agent.Hangup(context.WithoutCancel(ctx), sessionID)
		return true, r.bail(ctx, call)
	}
	if err := call.Speak(ctx, RepromptMessage); err != nil {
		return true, r.hangup(ctx, sessionID, err)
	}
	return false, nil
}

func (r *CallRunner) bail(ctx context.Context, call TelephonySession) error {
	_ = call.Speak(ctx, ApologyMessage)
	if err := call.TransferToHuman(ctx, r.Agent.backupLine()); err != nil {
		r.Logger.Error().Err(err).Msg("transfer to backup line")
	}
	return call.EndCall(ctx)
}

func (r *CallRunner) hangup(ctx context.Context, sessionID string, cause error) error {
	if err := r.Agent.Hangup(context.WithoutCancel(ctx), sessionID); err != nil {
		r.Logger.Error().Err(err).Str("call_id", sessionID).Msg("hangup session")
	}
	if errors.Is(cause, ErrCallerHungUp) {
		return nil
	}
	return cause
}
