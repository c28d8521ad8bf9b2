// Package orchestrator drives one patient turn through the propose, validate,
// approve, execute, respond cycle.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/carelane/carelane/internal/approval"
	"github.com/carelane/carelane/internal/concurrency"
	"github.com/carelane/carelane/internal/convo"
	careErrors "github.com/carelane/carelane/internal/errors"
	"github.com/carelane/carelane/internal/logger"
	"github.com/carelane/carelane/internal/reasoner"
	"github.com/carelane/carelane/internal/tool"

	"github.com/oklog/ulid/v2"
)

// State names the orchestrator's position in the turn cycle.
type State string

const (
	StateIdle            State = "idle"
	StateProposing       State = "proposing"
	StateValidating      State = "validating"
	StateApprovalPending State = "approval_pending"
	StateExecuting       State = "executing"
	StateResponding      State = "responding"
	StateFailed          State = "failed"
)

// TurnResult is the outcome of one patient turn. PendingApproval reports that
// the turn passed through the approval gate; Approved carries the decision.
type TurnResult struct {
	TraceID         string `json:"trace_id"`
	Reply           string `json:"reply"`
	State           State  `json:"state"`
	ErrKind         string `json:"err_kind,omitempty"`
	ToolUsed        string `json:"tool_used,omitempty"`
	PendingApproval bool   `json:"pending_approval"`
	Approved        *bool  `json:"approved,omitempty"`
	Reprompts       int    `json:"reprompts"`
}

// Orchestrator serializes turns per patient and owns the turn state machine.
type Orchestrator struct {
	registry    *tool.Registry
	contexts    *convo.Store
	proposer    reasoner.Proposer
	gate        *approval.Gate
	resolver    *approval.ResolverChannel
	locks       *concurrency.KeyedLock
	repromptMax int
}

func New(registry *tool.Registry, contexts *convo.Store, proposer reasoner.Proposer, gate *approval.Gate, repromptMax int) *Orchestrator {
	if repromptMax < 0 {
		repromptMax = 0
	}
	return &Orchestrator{
		registry:    registry,
		contexts:    contexts,
		proposer:    proposer,
		gate:        gate,
		locks:       concurrency.NewKeyedLock(),
		repromptMax: repromptMax,
	}
}

// ExecuteTurn runs a single patient message through the full cycle. Turns for
// the same patient are serialized; the call blocks while an approval is
// pending and resolves it within the turn.
func (o *Orchestrator) ExecuteTurn(ctx context.Context, patientID, message string) (TurnResult, error) {
	if patientID == "" {
		return TurnResult{}, careErrors.Orchestration("empty patient id")
	}

	o.locks.Lock(patientID)
	defer o.locks.Unlock(patientID)

	traceID := ulid.Make().String()
	ctx = logger.WithTraceID(ctx, traceID)
	ctx = logger.WithPatientID(ctx, patientID)

	result := TurnResult{TraceID: traceID, State: StateIdle}

	o.contexts.AppendTurn(patientID, convo.RoleUser, message)
	o.contexts.SetLastError(patientID, "")

	hint := ""
	for attempt := 0; ; attempt++ {
		result.State = StateProposing
		snapshot := o.contexts.GetOrCreate(patientID)

		proposal, err := o.proposer.Propose(ctx, reasoner.Request{
			PatientID: patientID,
			Turns:     snapshot.Turns,
			Tools:     o.registry.Descriptors(),
			Hint:      hint,
		})
		if err != nil {
			return o.fail(patientID, result, careErrors.Orchestration("proposer: %v", err))
		}
		if !proposal.IsToolCall() && proposal.Reply == "" {
			return o.fail(patientID, result, careErrors.Orchestration("proposer returned neither a tool call nor a reply"))
		}

		if !proposal.IsToolCall() {
			return o.respond(patientID, result, proposal.Reply), nil
		}

		result.State = StateValidating
		args, err := o.registry.Validate(proposal.Tool.Name, proposal.Tool.Arguments)
		if err != nil {
			if careErrors.Recoverable(err) && attempt < o.repromptMax {
				hint = err.Error()
				result.Reprompts++
				slog.Debug("re-prompting after rejected proposal",
					"trace_id", traceID,
					"tool", proposal.Tool.Name,
					"attempt", attempt+1,
					"error", err)
				continue
			}
			return o.fail(patientID, result, err)
		}

		return o.execute(ctx, patientID, result, proposal.Tool.Name, args)
	}
}

func (o *Orchestrator) execute(ctx context.Context, patientID string, result TurnResult, name string, args tool.Args) (TurnResult, error) {
	spec, err := o.registry.Resolve(name)
	if err != nil {
		return o.fail(patientID, result, err)
	}
	result.ToolUsed = name

	if spec.RequiresApproval {
		result.State = StateApprovalPending
		result.PendingApproval = true

		pending := approval.NewPending(patientID, name, summarize(name, args), map[string]interface{}(args))
		if err := o.contexts.SetPending(patientID, pending); err != nil {
			return o.fail(patientID, result, err)
		}

		decision, err := o.gate.RequestDecision(ctx, pending)
		o.contexts.ClearPending(patientID)
		if err != nil {
			return o.fail(patientID, result, careErrors.Wrap(err, "approval"))
		}

		approved := decision.Approved
		result.Approved = &approved
		if !decision.Approved {
			kind := careErrors.ErrApprovalDenied
			if decision.Reason == "timeout" {
				kind = careErrors.ErrApprovalTimeout
			}
			reply := "The action was not approved"
			if decision.Reason != "" {
				reply = fmt.Sprintf("%s (%s)", reply, decision.Reason)
			}
			result.ErrKind = careErrors.Category(kind)
			o.contexts.SetLastError(patientID, result.ErrKind)
			return o.respond(patientID, result, reply+". Nothing was changed."), nil
		}
	}

	// A turn abandoned while waiting on approval must not execute.
	if err := ctx.Err(); err != nil {
		return o.fail(patientID, result, careErrors.Wrap(err, "turn cancelled before execution"))
	}

	result.State = StateExecuting
	output, err := spec.Handler(ctx, args)
	if err != nil {
		if careErrors.Classify(err) == careErrors.ClassDomain || careErrors.Classify(err) == careErrors.ClassValidation {
			result.ErrKind = careErrors.Category(err)
			o.contexts.SetLastError(patientID, result.ErrKind)
			return o.respond(patientID, result, domainReply(err)), nil
		}
		return o.fail(patientID, result, err)
	}

	return o.respond(patientID, result, output), nil
}

func (o *Orchestrator) respond(patientID string, result TurnResult, reply string) TurnResult {
	result.State = StateResponding
	o.contexts.AppendTurn(patientID, convo.RoleAssistant, reply)
	result.Reply = reply
	result.State = StateIdle
	return result
}

func (o *Orchestrator) fail(patientID string, result TurnResult, err error) (TurnResult, error) {
	result.State = StateFailed
	result.ErrKind = careErrors.Category(err)
	o.contexts.SetLastError(patientID, result.ErrKind)
	slog.Error("turn failed",
		"trace_id", result.TraceID,
		"patient_id", patientID,
		"err_kind", result.ErrKind,
		"error", err)
	return result, err
}

// UseResolver attaches the resolver channel backing the gate, enabling
// SubmitDecision and PendingApprovals.
func (o *Orchestrator) UseResolver(resolver *approval.ResolverChannel) {
	o.resolver = resolver
}

// SubmitDecision forwards an external decision to the resolver channel backing
// the gate, when one is configured.
func (o *Orchestrator) SubmitDecision(id string, decision approval.Decision) error {
	if o.resolver == nil {
		return careErrors.Unavailable("no decision channel configured")
	}
	return o.resolver.Resolve(id, decision)
}

// PendingApprovals lists approvals currently waiting on a decision.
func (o *Orchestrator) PendingApprovals() []*approval.PendingApproval {
	if o.resolver == nil {
		return nil
	}
	return o.resolver.Waiting()
}

// Snapshot exposes a patient's context for transports and diagnostics.
func (o *Orchestrator) Snapshot(patientID string) (convo.Context, bool) {
	return o.contexts.Snapshot(patientID)
}

func summarize(name string, args tool.Args) string {
	raw, err := json.Marshal(map[string]interface{}(args))
	if err != nil {
		return name
	}
	return fmt.Sprintf("%s %s", name, raw)
}

func domainReply(err error) string {
	switch careErrors.Category(err) {
	case "SlotConflictError":
		return "That slot has just been taken. Please pick another time."
	case "NotFoundError":
		return "I could not find that appointment under your patient id."
	default:
		return fmt.Sprintf("I could not complete that: %v.", err)
	}
}
