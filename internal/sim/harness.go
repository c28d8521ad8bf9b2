// Package sim runs Monte Carlo journeys through the orchestrator against a
// sandboxed schedule, without a model or a network.
package sim

import (
	"context"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/carelane/carelane/internal/approval"
	"github.com/carelane/carelane/internal/concurrency"
	"github.com/carelane/carelane/internal/convo"
	careErrors "github.com/carelane/carelane/internal/errors"
	"github.com/carelane/carelane/internal/orchestrator"
	"github.com/carelane/carelane/internal/schedule"
	"github.com/carelane/carelane/internal/tool"
	"github.com/carelane/carelane/internal/tool/builtin"
)

// Options configure one simulation run.
type Options struct {
	Count       int
	Concurrency int
	Seed        int64
	Policy      string
	RepromptMax int
}

// Harness runs simulations and remembers the last report.
type Harness struct {
	mu   sync.Mutex
	last *Report
}

func NewHarness() *Harness {
	return &Harness{}
}

// Run generates opts.Count scenarios from the seed and executes them against
// clones of base. Scenarios never touch base, so the real schedule is
// unaffected.
func (h *Harness) Run(ctx context.Context, base *schedule.MemoryStore, opts Options) (*Report, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	if opts.Count <= 0 {
		return nil, careErrors.Wrap(careErrors.ErrSimulationConfig, "count must be positive")
	}
	return h.RunScenarios(ctx, base, Generate(opts.Count, opts.Seed, opts.Policy), opts)
}

// RunScenarios executes an explicit scenario list, generated or loaded from a
// file.
func (h *Harness) RunScenarios(ctx context.Context, base *schedule.MemoryStore, scenarios []Scenario, opts Options) (*Report, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	if len(scenarios) == 0 {
		return nil, careErrors.Wrap(careErrors.ErrSimulationConfig, "no scenarios to run")
	}
	if opts.RepromptMax <= 0 {
		opts.RepromptMax = 2
	}

	report := &Report{
		RunID:     ulid.Make().String(),
		Seed:      opts.Seed,
		Policy:    opts.Policy,
		Kinds:     make(map[string]int),
		StartedAt: time.Now(),
	}

	jobs := make(chan Scenario)
	results := make(chan scenarioStats)

	var workers sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		workers.Add(1)
		concurrency.SafeGo(func() {
			defer workers.Done()
			for scenario := range jobs {
				results <- runScenario(ctx, base, scenario, opts)
			}
		}, func(r interface{}) {
			slog.Error("simulation worker stopped", "panic", r)
		})
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for stats := range results {
			report.absorb(stats)
		}
	}()

	for _, scenario := range scenarios {
		select {
		case jobs <- scenario:
		case <-ctx.Done():
			close(jobs)
			workers.Wait()
			close(results)
			<-done
			return nil, ctx.Err()
		}
	}
	close(jobs)
	workers.Wait()
	close(results)
	<-done

	sort.Slice(report.Traces, func(i, j int) bool { return report.Traces[i].ID < report.Traces[j].ID })
	if report.Scenarios > 0 {
		report.Timing.Avg = report.elapsedSum / time.Duration(report.Scenarios)
	}
	report.FinishedAt = time.Now()

	h.mu.Lock()
	h.last = report
	h.mu.Unlock()

	slog.Info("simulation finished",
		"run_id", report.RunID,
		"scenarios", report.Scenarios,
		"turns", report.Turns,
		"booked", report.Booked,
		"failures", report.Failures,
		"mismatches", report.Mismatches)
	return report, nil
}

func validateOptions(opts Options) error {
	if opts.Concurrency <= 0 {
		return careErrors.Wrap(careErrors.ErrSimulationConfig, "concurrency must be positive")
	}
	switch opts.Policy {
	case PolicyAutoApprove, PolicyAutoDeny, PolicyScripted, PolicySeeded:
		return nil
	default:
		return careErrors.Wrap(careErrors.ErrSimulationConfig, "unknown approval policy: "+opts.Policy)
	}
}

// LastReport returns the most recent report, or ErrNotFound before any run.
func (h *Harness) LastReport() (*Report, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return nil, careErrors.NotFound("no simulation has run yet")
	}
	return h.last, nil
}

func runScenario(ctx context.Context, base *schedule.MemoryStore, scenario Scenario, opts Options) scenarioStats {
	rng := rand.New(rand.NewSource(scenario.Seed))

	sandbox := base.Clone()
	seedSandbox(sandbox, scenario, rng)

	started := time.Now()

	registry, err := tool.NewRegistry(builtin.Specs(sandbox)...)
	if err != nil {
		slog.Error("scenario registry setup failed", "scenario", scenario.ID, "error", err)
		return scenarioStats{failures: 1, outcome: outcomeExecution, trace: ScenarioTrace{ID: scenario.ID, Seed: scenario.Seed, FinalState: string(orchestrator.StateFailed)}}
	}

	policy := scenario.Policy
	if policy == "" {
		policy = opts.Policy
	}

	var channel approval.Channel
	switch policy {
	case PolicyAutoDeny:
		channel = approval.AutoChannel{Approved: false, Reason: "denied by policy"}
	case PolicyScripted:
		channel = approval.NewScriptedChannel(scenario.Decisions...)
	case PolicySeeded:
		channel = approval.NewSeededChannel(scenario.Seed, 0.5)
	default:
		channel = approval.AutoChannel{Approved: true}
	}

	proposer := &scenarioProposer{scenario: scenario, store: sandbox}
	// Policy channels answer immediately, so the gate runs without a deadline.
	orch := orchestrator.New(registry, convo.NewStore(convo.DefaultMaxTurns), proposer,
		approval.NewGate(channel, -1), opts.RepromptMax)

	stats := scenarioStats{trace: ScenarioTrace{ID: scenario.ID, Seed: scenario.Seed}}
	for _, step := range scenario.Steps {
		proposer.setStep(step)

		result, err := orch.ExecuteTurn(ctx, scenario.PatientID, step.Message)
		stats.turns++
		stats.reprompts += result.Reprompts
		stats.countKind(result.ErrKind)
		if stats.outcome == "" || stats.outcome == outcomeSucceeded {
			stats.outcome = classifyOutcome(result.ErrKind)
		}
		stats.trace.FinalState = string(result.State)
		stats.trace.Turns = append(stats.trace.Turns, TurnTrace{
			Message:   step.Message,
			State:     string(result.State),
			ErrKind:   result.ErrKind,
			Reply:     result.Reply,
			Reprompts: result.Reprompts,
		})

		if result.State == orchestrator.StateFailed || (err != nil && result.ErrKind == "") {
			stats.failures++
		}
		if step.WantKind != "*" && result.ErrKind != step.WantKind {
			stats.mismatches++
			slog.Debug("scenario outcome mismatch",
				"scenario", scenario.ID,
				"step", string(step.Kind),
				"want", step.WantKind,
				"got", result.ErrKind)
		}

		switch {
		case result.ToolUsed == "book_appointment" && result.ErrKind == "":
			stats.booked++
		case result.ToolUsed == "cancel_appointment" && result.ErrKind == "":
			stats.cancelled++
		case result.ErrKind == "ApprovalDenied" || result.ErrKind == "ApprovalTimeout":
			stats.denied++
		case result.ErrKind == "SlotConflictError":
			stats.conflicts++
		}
	}
	stats.trace.Elapsed = time.Since(started)
	return stats
}
