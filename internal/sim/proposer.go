package sim

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/carelane/carelane/internal/reasoner"
	"github.com/carelane/carelane/internal/schedule"
)

// scenarioProposer stands in for the model during simulations. It derives the
// proposal for the current step from the scenario parameters and the live
// sandbox, so a run needs no network and stays deterministic.
type scenarioProposer struct {
	scenario Scenario
	store    schedule.Store
	step     Step
	attempt  int
}

func (p *scenarioProposer) setStep(step Step) {
	p.step = step
	p.attempt = 0
}

func (p *scenarioProposer) Propose(ctx context.Context, req reasoner.Request) (reasoner.Proposal, error) {
	attempt := p.attempt
	p.attempt++

	switch p.step.Kind {
	case StepChat:
		return reasoner.Proposal{Reply: "Hello! I can check availability, book, cancel, or list appointments."}, nil

	case StepCheck:
		return callProposal("check_availability", map[string]interface{}{
			"doctor": p.scenario.Doctor,
			"date":   p.scenario.Date,
		})

	case StepBookBad:
		if attempt == 0 {
			// First proposal omits the slot and is rejected by validation.
			return callProposal("book_appointment", map[string]interface{}{
				"doctor": p.scenario.Doctor,
				"date":   p.scenario.Date,
			})
		}
		return p.bookProposal()

	case StepBook, StepRebook:
		return p.bookProposal()

	case StepList:
		return callProposal("list_appointments", map[string]interface{}{})

	case StepCancel:
		appts, err := p.store.List(ctx, p.scenario.PatientID)
		if err != nil {
			return reasoner.Proposal{}, err
		}
		for _, appt := range appts {
			if appt.Status == schedule.StatusBooked {
				return callProposal("cancel_appointment", map[string]interface{}{
					"appointment_id": appt.ID,
				})
			}
		}
		return reasoner.Proposal{Reply: "You have no active appointment to cancel."}, nil

	default:
		return reasoner.Proposal{}, fmt.Errorf("unknown step kind: %s", p.step.Kind)
	}
}

func (p *scenarioProposer) bookProposal() (reasoner.Proposal, error) {
	return callProposal("book_appointment", map[string]interface{}{
		"doctor": p.scenario.Doctor,
		"date":   p.scenario.Date,
		"slot":   p.scenario.Slot,
	})
}

func callProposal(name string, args map[string]interface{}) (reasoner.Proposal, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return reasoner.Proposal{}, err
	}
	return reasoner.Proposal{Tool: &reasoner.ToolCall{Name: name, Arguments: raw}}, nil
}
