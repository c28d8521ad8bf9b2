package approval

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
)

// Decision is a human (or policy) verdict on a proposed state mutation.
type Decision struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// PendingApproval describes a tool call that is parked until someone decides
// on it. Args hold the already validated arguments so execution after an
// approval does not re-run the proposer.
type PendingApproval struct {
	ID        string                 `json:"id"`
	PatientID string                 `json:"patient_id"`
	Tool      string                 `json:"tool"`
	Args      map[string]interface{} `json:"args"`
	Summary   string                 `json:"summary"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewPending builds a PendingApproval with a fresh id.
func NewPending(patientID, tool, summary string, args map[string]interface{}) *PendingApproval {
	return &PendingApproval{
		ID:        ulid.Make().String(),
		PatientID: patientID,
		Tool:      tool,
		Args:      args,
		Summary:   summary,
		CreatedAt: time.Now(),
	}
}

// ArgsJSON renders the pending arguments for display. Failures degrade to an
// empty object rather than aborting a prompt.
func (p *PendingApproval) ArgsJSON() string {
	raw, err := json.Marshal(p.Args)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// Channel obtains a decision for a pending approval. Implementations block
// until a decision is available or ctx is done.
type Channel interface {
	Prompt(ctx context.Context, pending *PendingApproval) (Decision, error)
}
