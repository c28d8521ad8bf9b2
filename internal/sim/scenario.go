package sim

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/carelane/carelane/internal/approval"
	"github.com/carelane/carelane/internal/schedule"
)

// StepKind names the patient behavior a step drives through the orchestrator.
type StepKind string

const (
	StepChat    StepKind = "chat"     // small talk, no tool
	StepCheck   StepKind = "check"    // availability lookup
	StepBookBad StepKind = "book_bad" // malformed booking first, corrected on re-prompt
	StepBook    StepKind = "book"     // well-formed booking
	StepRebook  StepKind = "rebook"   // booking the same slot again
	StepCancel  StepKind = "cancel"   // cancel the booked appointment, if any
	StepList    StepKind = "list"     // list own appointments
)

// Step is one patient turn.  WantKind is the err_kind the turn is expected to
// end with; "*" means the outcome depends on a probabilistic approval policy
// and is not asserted.
type Step struct {
	Kind     StepKind `yaml:"kind"`
	Message  string   `yaml:"message"`
	WantKind string   `yaml:"want"`
}

// Scenario is one synthetic patient journey, fully determined by its seed.
// Decisions scripts the approval channel under the scripted policy: one entry
// per prompt, in order, with the last entry repeated once the script runs out.
type Scenario struct {
	ID        string              `yaml:"id"`
	Seed      int64               `yaml:"seed"`
	PatientID string              `yaml:"patient_id"`
	Policy    string              `yaml:"policy"`
	Doctor    string              `yaml:"doctor"`
	Date      string              `yaml:"date"`
	Slot      string              `yaml:"slot"`
	Decisions []approval.Decision `yaml:"decisions,omitempty"`
	Steps     []Step              `yaml:"steps"`
}

// Policies understood by the harness.
const (
	PolicyAutoApprove = "auto-approve"
	PolicyAutoDeny    = "auto-deny"
	PolicyScripted    = "scripted"
	PolicySeeded      = "seeded"
)

var simBaseDate = time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)

// Generate derives count scenarios from the master seed. The same inputs
// always produce the same scenarios.
func Generate(count int, masterSeed int64, policy string) []Scenario {
	scenarios := make([]Scenario, 0, count)
	for i := 0; i < count; i++ {
		seed := masterSeed<<16 + int64(i)
		scenarios = append(scenarios, generateOne(i, seed, policy))
	}
	return scenarios
}

func generateOne(index int, seed int64, policy string) Scenario {
	rng := rand.New(rand.NewSource(seed))

	doctor := schedule.Doctors[rng.Intn(len(schedule.Doctors))]
	date := simBaseDate.AddDate(0, 0, rng.Intn(14)).Format(schedule.DateLayout)
	slot := fmt.Sprintf("%02d:%02d", 9+rng.Intn(8), 30*rng.Intn(2))

	s := Scenario{
		ID:        fmt.Sprintf("scenario-%04d", index),
		Seed:      seed,
		PatientID: fmt.Sprintf("patient-%04d", index),
		Policy:    policy,
		Doctor:    doctor,
		Date:      date,
		Slot:      slot,
	}

	bookWant := ""
	switch policy {
	case PolicyAutoDeny, PolicyScripted:
		// Generated scenarios carry no decision script, and an empty
		// script denies every prompt.
		bookWant = "ApprovalDenied"
	case PolicySeeded:
		bookWant = "*"
	}

	if rng.Float64() < 0.3 {
		s.Steps = append(s.Steps, Step{Kind: StepChat, Message: "hello there"})
	}
	s.Steps = append(s.Steps, Step{
		Kind:    StepCheck,
		Message: fmt.Sprintf("is dr %s free on %s?", doctor, date),
	})

	bookKind := StepBook
	if rng.Float64() < 0.25 {
		bookKind = StepBookBad
	}
	s.Steps = append(s.Steps, Step{
		Kind:     bookKind,
		Message:  fmt.Sprintf("book dr %s on %s at %s", doctor, date, slot),
		WantKind: bookWant,
	})

	if policy == PolicyAutoApprove && rng.Float64() < 0.3 {
		s.Steps = append(s.Steps, Step{
			Kind:     StepRebook,
			Message:  fmt.Sprintf("book dr %s on %s at %s again", doctor, date, slot),
			WantKind: "SlotConflictError",
		})
	}

	s.Steps = append(s.Steps, Step{Kind: StepList, Message: "what do I have booked?"})

	if rng.Float64() < 0.4 {
		cancelWant := ""
		if policy == PolicySeeded {
			cancelWant = "*"
		}
		s.Steps = append(s.Steps, Step{
			Kind:     StepCancel,
			Message:  "please cancel my appointment",
			WantKind: cancelWant,
		})
	}

	return s
}

// Seed the sandbox so the scenario's target slot exists, plus noise slots
// around it.
func seedSandbox(store *schedule.MemoryStore, s Scenario, rng *rand.Rand) {
	store.AddSlot(s.Doctor, "general dentist", s.Date, s.Slot)
	for i := 0; i < 3; i++ {
		doctor := schedule.Doctors[rng.Intn(len(schedule.Doctors))]
		date := simBaseDate.AddDate(0, 0, rng.Intn(14)).Format(schedule.DateLayout)
		slot := fmt.Sprintf("%02d:%02d", 9+rng.Intn(8), 30*rng.Intn(2))
		store.AddSlot(doctor, "general dentist", date, slot)
	}
}
