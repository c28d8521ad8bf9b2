package sim

import (
	"time"
)

// TurnTrace records one turn of a scenario for the report.
type TurnTrace struct {
	Message   string `json:"message"`
	State     string `json:"state"`
	ErrKind   string `json:"err_kind,omitempty"`
	Reply     string `json:"reply"`
	Reprompts int    `json:"reprompts,omitempty"`
}

// ScenarioTrace is the full record of one scenario run.
type ScenarioTrace struct {
	ID         string        `json:"id"`
	Seed       int64         `json:"seed"`
	FinalState string        `json:"final_state"`
	Elapsed    time.Duration `json:"elapsed"`
	Turns      []TurnTrace   `json:"turns"`
}

// Timing summarizes scenario wall times for one run.
type Timing struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
	Avg time.Duration `json:"avg"`
}

// Report aggregates counters across all scenarios of one run. Counters are
// merged by addition, so the aggregation order does not matter and concurrent
// runs of the same seed produce identical reports. Traces are sorted by
// scenario id once the run completes.
type Report struct {
	RunID            string          `json:"run_id"`
	Seed             int64           `json:"seed"`
	Policy           string          `json:"policy"`
	Scenarios        int             `json:"scenarios"`
	Turns            int             `json:"turns"`
	Reprompts        int             `json:"reprompts"`
	Succeeded        int             `json:"succeeded"`
	FailedValidation int             `json:"failed_validation"`
	FailedApproval   int             `json:"failed_approval"`
	FailedExecution  int             `json:"failed_execution"`
	Booked           int             `json:"booked"`
	Cancelled        int             `json:"cancelled"`
	Denied           int             `json:"denied"`
	Conflicts        int             `json:"conflicts"`
	Failures         int             `json:"failures"`
	Mismatches       int             `json:"mismatches"`
	Kinds            map[string]int  `json:"kinds"`
	Timing           Timing          `json:"timing"`
	Traces           []ScenarioTrace `json:"traces,omitempty"`
	StartedAt        time.Time       `json:"started_at"`
	FinishedAt       time.Time       `json:"finished_at"`

	elapsedSum time.Duration
}

// Scenario outcome classes, decided by the first error of the run.
const (
	outcomeSucceeded  = "succeeded"
	outcomeValidation = "failed_validation"
	outcomeApproval   = "failed_approval"
	outcomeExecution  = "failed_execution"
)

// classifyOutcome maps an error kind to the outcome class of the scenario.
func classifyOutcome(kind string) string {
	switch kind {
	case "":
		return outcomeSucceeded
	case "SchemaValidationError", "UnknownToolError":
		return outcomeValidation
	case "ApprovalDenied", "ApprovalTimeout":
		return outcomeApproval
	default:
		return outcomeExecution
	}
}

// scenarioStats is one worker's contribution to the report.
type scenarioStats struct {
	turns      int
	reprompts  int
	booked     int
	cancelled  int
	denied     int
	conflicts  int
	failures   int
	mismatches int
	outcome    string
	kinds      map[string]int
	trace      ScenarioTrace
}

func (s *scenarioStats) countKind(kind string) {
	if kind == "" {
		return
	}
	if s.kinds == nil {
		s.kinds = make(map[string]int)
	}
	s.kinds[kind]++
}

func (r *Report) absorb(s scenarioStats) {
	r.Scenarios++
	r.Turns += s.turns
	r.Reprompts += s.reprompts
	r.Booked += s.booked
	r.Cancelled += s.cancelled
	r.Denied += s.denied
	r.Conflicts += s.conflicts
	r.Failures += s.failures
	r.Mismatches += s.mismatches
	switch s.outcome {
	case outcomeValidation:
		r.FailedValidation++
	case outcomeApproval:
		r.FailedApproval++
	case outcomeExecution:
		r.FailedExecution++
	default:
		r.Succeeded++
	}
	for kind, n := range s.kinds {
		r.Kinds[kind] += n
	}
	elapsed := s.trace.Elapsed
	if r.Scenarios == 1 || elapsed < r.Timing.Min {
		r.Timing.Min = elapsed
	}
	if elapsed > r.Timing.Max {
		r.Timing.Max = elapsed
	}
	r.elapsedSum += elapsed
	r.Traces = append(r.Traces, s.trace)
}
