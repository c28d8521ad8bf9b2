// Package reasoner turns a patient's conversation into the next proposed
// step: either a tool call or a terminal reply.
package reasoner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/carelane/carelane/internal/config"
	"github.com/carelane/carelane/internal/convo"
	"github.com/carelane/carelane/internal/tool"
)

// ToolCall is a proposed tool invocation with raw, not yet validated
// arguments.
type ToolCall struct {
	Name      string
	Arguments json.RawMessage
}

// Proposal is the reasoner's next step. Exactly one of Tool or Reply is set;
// RawText carries whatever prose accompanied a tool call.
type Proposal struct {
	Tool    *ToolCall
	Reply   string
	RawText string
}

// IsToolCall reports whether the proposal asks to invoke a tool.
func (p Proposal) IsToolCall() bool {
	return p.Tool != nil
}

// Request is everything a proposer sees for one step: the conversation so
// far, the tool catalog, and an optional corrective hint from a failed
// validation.
type Request struct {
	PatientID string
	Turns     []convo.Turn
	Tools     []tool.Descriptor
	Hint      string
}

// Proposer produces the next step for a conversation.
type Proposer interface {
	Propose(ctx context.Context, req Request) (Proposal, error)
}

const systemPrompt = `You are a scheduling assistant for a medical practice.
You help patients check doctor availability, book appointments, cancel
appointments, and review their bookings. Use the provided tools for anything
involving the schedule; never invent availability. Dates use DD-MM-YYYY and
times use 24h HH:MM. When no tool is needed, answer in one or two short
sentences.`

// New builds the configured provider.
func New(cfg config.ModelConfig) (Proposer, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAI(cfg.APIKey, cfg.BaseURL, cfg.Name), nil
	case "anthropic":
		return NewAnthropic(cfg.APIKey, cfg.Name), nil
	default:
		return nil, fmt.Errorf("unknown model provider: %s", cfg.Provider)
	}
}
