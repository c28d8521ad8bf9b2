package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"

	"charm.land/lipgloss/v2"
)

// AutoChannel resolves every prompt the same way without asking anyone. It is
// the default policy for simulation runs.
type AutoChannel struct {
	Approved bool
	Reason   string
}

func (a AutoChannel) Prompt(ctx context.Context, pending *PendingApproval) (Decision, error) {
	return Decision{Approved: a.Approved, Reason: a.Reason}, nil
}

// ScriptedChannel replays a fixed sequence of decisions, then keeps returning
// the last one. Used by tests and scripted simulation scenarios.
type ScriptedChannel struct {
	mu        sync.Mutex
	decisions []Decision
	idx       int
}

func NewScriptedChannel(decisions ...Decision) *ScriptedChannel {
	return &ScriptedChannel{decisions: decisions}
}

func (s *ScriptedChannel) Prompt(ctx context.Context, pending *PendingApproval) (Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.decisions) == 0 {
		return Decision{Approved: false, Reason: "no scripted decision"}, nil
	}
	d := s.decisions[s.idx]
	if s.idx < len(s.decisions)-1 {
		s.idx++
	}
	return d, nil
}

// SeededChannel approves with a fixed probability drawn from a seeded source,
// so a simulation scenario reproduces the same decisions run after run.
type SeededChannel struct {
	mu          sync.Mutex
	rng         *rand.Rand
	approveRate float64
}

func NewSeededChannel(seed int64, approveRate float64) *SeededChannel {
	return &SeededChannel{rng: rand.New(rand.NewSource(seed)), approveRate: approveRate}
}

func (s *SeededChannel) Prompt(ctx context.Context, pending *PendingApproval) (Decision, error) {
	s.mu.Lock()
	roll := s.rng.Float64()
	s.mu.Unlock()

	if roll < s.approveRate {
		return Decision{Approved: true}, nil
	}
	return Decision{Approved: false, Reason: "denied by policy"}, nil
}

var (
	promptTitleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	promptBodyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
)

// ConsoleChannel asks a human at a terminal. Anything other than y/yes is a
// denial.
type ConsoleChannel struct {
	In  io.Reader
	Out io.Writer
}

func (c *ConsoleChannel) Prompt(ctx context.Context, pending *PendingApproval) (Decision, error) {
	fmt.Fprintln(c.Out, promptTitleStyle.Render("Approval required"))
	fmt.Fprintln(c.Out, promptBodyStyle.Render(fmt.Sprintf("  %s %s", pending.Tool, pending.ArgsJSON())))
	if pending.Summary != "" {
		fmt.Fprintln(c.Out, promptBodyStyle.Render("  "+pending.Summary))
	}
	fmt.Fprint(c.Out, "Approve? [y/N]: ")

	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(c.In).ReadString('\n')
		ch <- answer{text: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case ans := <-ch:
		if ans.err != nil && ans.text == "" {
			return Decision{}, ans.err
		}
		switch strings.ToLower(strings.TrimSpace(ans.text)) {
		case "y", "yes":
			return Decision{Approved: true}, nil
		default:
			return Decision{Approved: false, Reason: "denied at console"}, nil
		}
	}
}
