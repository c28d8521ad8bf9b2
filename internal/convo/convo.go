// Package convo keeps per-patient conversation state: the turn history, the
// last error surfaced to the patient, and at most one pending approval.
package convo

import (
	"sync"
	"time"

	"github.com/carelane/carelane/internal/approval"
	careErrors "github.com/carelane/carelane/internal/errors"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	// DefaultMaxTurns bounds a context's history. Older turns are evicted
	// first once the bound is hit.
	DefaultMaxTurns = 50
)

// Turn is a single utterance in a patient's conversation.
type Turn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Context is the working state for one patient.
type Context struct {
	PatientID string                    `json:"patient_id"`
	Turns     []Turn                    `json:"turns"`
	Pending   *approval.PendingApproval `json:"pending,omitempty"`
	LastError string                    `json:"last_error,omitempty"`
}

// Store holds contexts keyed by patient id. All methods are safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	contexts map[string]*Context
	maxTurns int
	now      func() time.Time
}

func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		contexts: make(map[string]*Context),
		maxTurns: maxTurns,
		now:      time.Now,
	}
}

func (s *Store) getOrCreateLocked(patientID string) *Context {
	c, ok := s.contexts[patientID]
	if !ok {
		c = &Context{PatientID: patientID}
		s.contexts[patientID] = c
	}
	return c
}

// GetOrCreate returns a snapshot of the patient's context, creating an empty
// one on first use.
func (s *Store) GetOrCreate(patientID string) Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.getOrCreateLocked(patientID))
}

// AppendTurn records an utterance, evicting the oldest turn when the history
// is full.
func (s *Store) AppendTurn(patientID, role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.getOrCreateLocked(patientID)
	c.Turns = append(c.Turns, Turn{Role: role, Text: text, Timestamp: s.now()})
	if len(c.Turns) > s.maxTurns {
		c.Turns = append(c.Turns[:0], c.Turns[len(c.Turns)-s.maxTurns:]...)
	}
}

// SetPending parks an approval on the context. A context admits at most one
// pending action at a time.
func (s *Store) SetPending(patientID string, pending *approval.PendingApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := s.getOrCreateLocked(patientID)
	if c.Pending != nil {
		return careErrors.Conflict("patient %s already has a pending action", patientID)
	}
	c.Pending = pending
	return nil
}

// ClearPending removes the parked approval, if any.
func (s *Store) ClearPending(patientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(patientID).Pending = nil
}

// SetLastError records the error text surfaced on the patient's last turn.
// An empty string clears it.
func (s *Store) SetLastError(patientID, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getOrCreateLocked(patientID).LastError = text
}

// Snapshot returns a copy of the context, or false when the patient has no
// state yet.
func (s *Store) Snapshot(patientID string) (Context, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contexts[patientID]
	if !ok {
		return Context{}, false
	}
	return snapshot(c), true
}

func snapshot(c *Context) Context {
	out := Context{
		PatientID: c.PatientID,
		LastError: c.LastError,
	}
	out.Turns = append(out.Turns, c.Turns...)
	if c.Pending != nil {
		pending := *c.Pending
		out.Pending = &pending
	}
	return out
}
