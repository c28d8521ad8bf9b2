package approval

import (
	"context"
	"log/slog"
	"time"
)

// Gate applies a deadline policy around a Channel. A prompt that outlives the
// deadline resolves as a denial, it never blocks a turn forever.
type Gate struct {
	channel Channel
	timeout time.Duration
}

// NewGate wires a channel with a decision deadline. A zero timeout denies
// immediately without consulting the channel; a negative timeout disables the
// deadline.
func NewGate(channel Channel, timeout time.Duration) *Gate {
	return &Gate{channel: channel, timeout: timeout}
}

// RequestDecision blocks until the channel produces a decision, the deadline
// passes, or ctx is done. Deadline expiry resolves to a denial so the pending
// action can never execute by default.
func (g *Gate) RequestDecision(ctx context.Context, pending *PendingApproval) (Decision, error) {
	if g.timeout == 0 {
		return Decision{Approved: false, Reason: "timeout"}, nil
	}

	promptCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		promptCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	decision, err := g.channel.Prompt(promptCtx, pending)
	if err != nil {
		if ctx.Err() != nil {
			return Decision{}, ctx.Err()
		}
		if promptCtx.Err() != nil {
			slog.Warn("approval timed out, denying",
				"approval_id", pending.ID,
				"tool", pending.Tool,
				"patient_id", pending.PatientID)
			return Decision{Approved: false, Reason: "timeout"}, nil
		}
		return Decision{}, err
	}
	return decision, nil
}
