package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carelane/carelane/internal/approval"
	"github.com/carelane/carelane/internal/convo"
	careErrors "github.com/carelane/carelane/internal/errors"
	"github.com/carelane/carelane/internal/reasoner"
	"github.com/carelane/carelane/internal/schedule"
	"github.com/carelane/carelane/internal/tool"
	"github.com/carelane/carelane/internal/tool/builtin"
)

// scriptedProposer replays proposals in order and records the hints it saw.
type scriptedProposer struct {
	proposals []reasoner.Proposal
	hints     []string
	idx       int
}

func (s *scriptedProposer) Propose(ctx context.Context, req reasoner.Request) (reasoner.Proposal, error) {
	s.hints = append(s.hints, req.Hint)
	if s.idx >= len(s.proposals) {
		return reasoner.Proposal{Reply: "out of script"}, nil
	}
	p := s.proposals[s.idx]
	s.idx++
	return p, nil
}

func toolCall(name, args string) reasoner.Proposal {
	return reasoner.Proposal{Tool: &reasoner.ToolCall{Name: name, Arguments: json.RawMessage(args)}}
}

func newStore(t *testing.T) *schedule.MemoryStore {
	t.Helper()
	store := schedule.NewMemoryStore()
	store.AddSlot("john doe", "general dentist", "12-08-2026", "10:30")
	store.AddSlot("john doe", "general dentist", "12-08-2026", "11:00")
	return store
}

func newOrchestrator(t *testing.T, store schedule.Store, proposer reasoner.Proposer, channel approval.Channel) *Orchestrator {
	t.Helper()
	registry, err := tool.NewRegistry(builtin.Specs(store)...)
	require.NoError(t, err)
	gate := approval.NewGate(channel, time.Second)
	return New(registry, convo.NewStore(20), proposer, gate, 2)
}

func TestTerminalReply(t *testing.T) {
	proposer := &scriptedProposer{proposals: []reasoner.Proposal{{Reply: "Hello! How can I help?"}}}
	orch := newOrchestrator(t, newStore(t), proposer, approval.AutoChannel{Approved: true})

	result, err := orch.ExecuteTurn(context.Background(), "p1", "hi")
	require.NoError(t, err)
	require.Equal(t, StateIdle, result.State)
	require.Equal(t, "Hello! How can I help?", result.Reply)
	require.Empty(t, result.ErrKind)

	snapshot, ok := orch.Snapshot("p1")
	require.True(t, ok)
	require.Len(t, snapshot.Turns, 2)
	require.Equal(t, convo.RoleAssistant, snapshot.Turns[1].Role)
}

func TestReadToolSkipsApproval(t *testing.T) {
	proposer := &scriptedProposer{proposals: []reasoner.Proposal{
		toolCall("check_availability", `{"doctor":"john doe","date":"12-08-2026"}`),
	}}
	// A denying channel proves the gate is never consulted for reads.
	orch := newOrchestrator(t, newStore(t), proposer, approval.AutoChannel{Approved: false})

	result, err := orch.ExecuteTurn(context.Background(), "p1", "when is dr doe free?")
	require.NoError(t, err)
	require.Equal(t, StateIdle, result.State)
	require.Equal(t, "check_availability", result.ToolUsed)
	require.Nil(t, result.Approved)
	require.False(t, result.PendingApproval)
	require.Contains(t, result.Reply, "10:30")
}

func TestApprovedBookingExecutes(t *testing.T) {
	store := newStore(t)
	proposer := &scriptedProposer{proposals: []reasoner.Proposal{
		toolCall("book_appointment", `{"doctor":"john doe","date":"12-08-2026","slot":"10:30"}`),
	}}
	orch := newOrchestrator(t, store, proposer, approval.AutoChannel{Approved: true})

	result, err := orch.ExecuteTurn(context.Background(), "p1", "book dr doe at 10:30")
	require.NoError(t, err)
	require.Equal(t, StateIdle, result.State)
	require.NotNil(t, result.Approved)
	require.True(t, *result.Approved)
	require.True(t, result.PendingApproval)
	require.Contains(t, result.Reply, "Booked Dr. John Doe")

	slots, err := store.CheckAvailability(context.Background(), "john doe", "12-08-2026")
	require.NoError(t, err)
	require.Equal(t, []string{"11:00"}, slots)
}

func TestDeniedBookingDoesNotExecute(t *testing.T) {
	store := newStore(t)
	proposer := &scriptedProposer{proposals: []reasoner.Proposal{
		toolCall("book_appointment", `{"doctor":"john doe","date":"12-08-2026","slot":"10:30"}`),
	}}
	orch := newOrchestrator(t, store, proposer, approval.AutoChannel{Approved: false, Reason: "patient asked to hold"})

	result, err := orch.ExecuteTurn(context.Background(), "p1", "book dr doe at 10:30")
	require.NoError(t, err)
	require.Equal(t, StateIdle, result.State)
	require.Equal(t, "ApprovalDenied", result.ErrKind)
	require.Contains(t, result.Reply, "Nothing was changed")

	// The slot is untouched and the pending action is cleared.
	slots, err := store.CheckAvailability(context.Background(), "john doe", "12-08-2026")
	require.NoError(t, err)
	require.Len(t, slots, 2)
	snapshot, _ := orch.Snapshot("p1")
	require.Nil(t, snapshot.Pending)
}

func TestApprovalTimeoutDenies(t *testing.T) {
	store := newStore(t)
	resolver := approval.NewResolverChannel()
	proposer := &scriptedProposer{proposals: []reasoner.Proposal{
		toolCall("book_appointment", `{"doctor":"john doe","date":"12-08-2026","slot":"10:30"}`),
	}}
	registry, err := tool.NewRegistry(builtin.Specs(store)...)
	require.NoError(t, err)
	orch := New(registry, convo.NewStore(20), proposer, approval.NewGate(resolver, 20*time.Millisecond), 2)

	result, err := orch.ExecuteTurn(context.Background(), "p1", "book dr doe at 10:30")
	require.NoError(t, err)
	require.Equal(t, "ApprovalTimeout", result.ErrKind)
	require.Contains(t, result.Reply, "timeout")

	slots, err := store.CheckAvailability(context.Background(), "john doe", "12-08-2026")
	require.NoError(t, err)
	require.Len(t, slots, 2)
}

func TestRepromptOnValidationError(t *testing.T) {
	proposer := &scriptedProposer{proposals: []reasoner.Proposal{
		toolCall("check_availability", `{"doctor":"john doe"}`), // missing date
		toolCall("check_availability", `{"doctor":"john doe","date":"12-08-2026"}`),
	}}
	orch := newOrchestrator(t, newStore(t), proposer, approval.AutoChannel{Approved: true})

	result, err := orch.ExecuteTurn(context.Background(), "p1", "when is dr doe free?")
	require.NoError(t, err)
	require.Equal(t, StateIdle, result.State)
	require.Equal(t, 1, result.Reprompts)

	// The second proposal saw the rejection as a hint.
	require.Len(t, proposer.hints, 2)
	require.Empty(t, proposer.hints[0])
	require.Contains(t, proposer.hints[1], "date")
}

func TestRepromptBudgetExhausted(t *testing.T) {
	bad := toolCall("check_availability", `{"doctor":"john doe"}`)
	proposer := &scriptedProposer{proposals: []reasoner.Proposal{bad, bad, bad, bad}}
	orch := newOrchestrator(t, newStore(t), proposer, approval.AutoChannel{Approved: true})

	result, err := orch.ExecuteTurn(context.Background(), "p1", "when is dr doe free?")
	require.ErrorIs(t, err, careErrors.ErrSchemaValidation)
	require.Equal(t, StateFailed, result.State)
	require.Equal(t, "SchemaValidationError", result.ErrKind)
	require.Equal(t, 2, result.Reprompts)
	require.Equal(t, 3, proposer.idx)
}

func TestUnknownToolReprompts(t *testing.T) {
	proposer := &scriptedProposer{proposals: []reasoner.Proposal{
		toolCall("reschedule_appointment", `{}`),
		{Reply: "I cannot do that, but I can book or cancel appointments."},
	}}
	orch := newOrchestrator(t, newStore(t), proposer, approval.AutoChannel{Approved: true})

	result, err := orch.ExecuteTurn(context.Background(), "p1", "move my appointment")
	require.NoError(t, err)
	require.Equal(t, StateIdle, result.State)
	require.Equal(t, 1, result.Reprompts)
}

func TestSlotConflictIsNotReprompted(t *testing.T) {
	store := newStore(t)
	_, err := store.Book(context.Background(), "john doe", "12-08-2026", "10:30", "other-patient")
	require.NoError(t, err)

	book := toolCall("book_appointment", `{"doctor":"john doe","date":"12-08-2026","slot":"10:30"}`)
	proposer := &scriptedProposer{proposals: []reasoner.Proposal{book, book}}
	orch := newOrchestrator(t, store, proposer, approval.AutoChannel{Approved: true})

	result, err := orch.ExecuteTurn(context.Background(), "p1", "book dr doe at 10:30")
	require.NoError(t, err)
	require.Equal(t, StateIdle, result.State)
	require.Equal(t, "SlotConflictError", result.ErrKind)
	require.Zero(t, result.Reprompts)
	require.Equal(t, 1, proposer.idx)
	require.Contains(t, result.Reply, "pick another time")
}

func TestExternalResolverApproves(t *testing.T) {
	store := newStore(t)
	resolver := approval.NewResolverChannel()
	proposer := &scriptedProposer{proposals: []reasoner.Proposal{
		toolCall("book_appointment", `{"doctor":"john doe","date":"12-08-2026","slot":"10:30"}`),
	}}
	registry, err := tool.NewRegistry(builtin.Specs(store)...)
	require.NoError(t, err)
	orch := New(registry, convo.NewStore(20), proposer, approval.NewGate(resolver, time.Second), 2)
	orch.UseResolver(resolver)

	done := make(chan TurnResult, 1)
	go func() {
		result, err := orch.ExecuteTurn(context.Background(), "p1", "book dr doe at 10:30")
		if err != nil {
			t.Error(err)
		}
		done <- result
	}()

	var pendingID string
	require.Eventually(t, func() bool {
		waiting := orch.PendingApprovals()
		if len(waiting) != 1 {
			return false
		}
		pendingID = waiting[0].ID
		return true
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, orch.SubmitDecision(pendingID, approval.Decision{Approved: true}))

	result := <-done
	require.Contains(t, result.Reply, "Booked Dr. John Doe")

	// A late duplicate decision is ignored; an unknown id is rejected.
	require.NoError(t, orch.SubmitDecision(pendingID, approval.Decision{Approved: false}))
	err = orch.SubmitDecision("no-such-approval", approval.Decision{Approved: true})
	require.ErrorIs(t, err, careErrors.ErrNotFound)
}

func TestTurnsSerializedPerPatient(t *testing.T) {
	store := newStore(t)
	book := toolCall("book_appointment", `{"doctor":"john doe","date":"12-08-2026","slot":"10:30"}`)
	proposer := &scriptedProposer{proposals: []reasoner.Proposal{book, book}}
	orch := newOrchestrator(t, store, proposer, approval.AutoChannel{Approved: true})

	results := make(chan TurnResult, 2)
	for i := 0; i < 2; i++ {
		go func() {
			result, _ := orch.ExecuteTurn(context.Background(), "p1", "book dr doe at 10:30")
			results <- result
		}()
	}

	var kinds []string
	for i := 0; i < 2; i++ {
		kinds = append(kinds, (<-results).ErrKind)
	}

	// Exactly one of the two turns got the slot.
	booked, err := store.List(context.Background(), "p1")
	require.NoError(t, err)
	active := 0
	for _, appt := range booked {
		if appt.Status == schedule.StatusBooked {
			active++
		}
	}
	require.Equal(t, 1, active)
	require.Contains(t, kinds, "SlotConflictError")
}
