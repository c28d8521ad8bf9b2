package sim

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	careErrors "github.com/carelane/carelane/internal/errors"
	"github.com/carelane/carelane/internal/schedule"
)

var stepKinds = map[StepKind]bool{
	StepChat:    true,
	StepCheck:   true,
	StepBookBad: true,
	StepBook:    true,
	StepRebook:  true,
	StepCancel:  true,
	StepList:    true,
}

// LoadScenarioFile reads hand-written scenarios from a YAML file. These run
// instead of generated ones, for replaying a journey a simulation surfaced or
// pinning down a regression.
func LoadScenarioFile(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, careErrors.Wrap(careErrors.ErrSimulationConfig, fmt.Sprintf("read %s: %v", path, err))
	}

	var doc struct {
		Scenarios []Scenario `yaml:"scenarios"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, careErrors.Wrap(careErrors.ErrSimulationConfig, fmt.Sprintf("parse %s: %v", path, err))
	}
	if len(doc.Scenarios) == 0 {
		return nil, careErrors.Wrap(careErrors.ErrSimulationConfig, "no scenarios in "+path)
	}

	for i := range doc.Scenarios {
		s := &doc.Scenarios[i]
		if s.ID == "" {
			s.ID = fmt.Sprintf("file-%04d", i)
		}
		if s.PatientID == "" {
			s.PatientID = fmt.Sprintf("patient-%04d", i)
		}
		if err := validateScenario(s); err != nil {
			return nil, err
		}
	}
	return doc.Scenarios, nil
}

func validateScenario(s *Scenario) error {
	if !schedule.KnownDoctor(s.Doctor) {
		return careErrors.Wrap(careErrors.ErrSimulationConfig,
			fmt.Sprintf("%s: unknown doctor %q", s.ID, s.Doctor))
	}
	if _, err := time.Parse(schedule.DateLayout, s.Date); err != nil {
		return careErrors.Wrap(careErrors.ErrSimulationConfig,
			fmt.Sprintf("%s: date %q is not DD-MM-YYYY", s.ID, s.Date))
	}
	if _, err := time.Parse(schedule.SlotLayout, s.Slot); err != nil {
		return careErrors.Wrap(careErrors.ErrSimulationConfig,
			fmt.Sprintf("%s: slot %q is not HH:MM", s.ID, s.Slot))
	}
	switch s.Policy {
	case "", PolicyAutoApprove, PolicyAutoDeny, PolicyScripted, PolicySeeded:
	default:
		return careErrors.Wrap(careErrors.ErrSimulationConfig,
			fmt.Sprintf("%s: unknown approval policy %q", s.ID, s.Policy))
	}
	if s.Policy == PolicyScripted && len(s.Decisions) == 0 {
		return careErrors.Wrap(careErrors.ErrSimulationConfig, s.ID+": scripted policy needs decisions")
	}
	if len(s.Steps) == 0 {
		return careErrors.Wrap(careErrors.ErrSimulationConfig, s.ID+": no steps")
	}
	for _, step := range s.Steps {
		if !stepKinds[step.Kind] {
			return careErrors.Wrap(careErrors.ErrSimulationConfig,
				fmt.Sprintf("%s: unknown step kind %q", s.ID, step.Kind))
		}
	}
	return nil
}
