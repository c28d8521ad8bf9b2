package sim

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	careErrors "github.com/carelane/carelane/internal/errors"
	"github.com/carelane/carelane/internal/schedule"
)

const scenarioYAML = `scenarios:
  - id: booked-then-cancelled
    patient_id: patient-a
    doctor: john doe
    date: 05-09-2026
    slot: "10:30"
    steps:
      - kind: check
        message: is dr doe free?
      - kind: book
        message: book it
      - kind: cancel
        message: actually cancel it
  - doctor: emily johnson
    date: 06-09-2026
    slot: "09:00"
    policy: auto-deny
    steps:
      - kind: book
        message: book dr johnson
        want: ApprovalDenied
  - id: approved-on-second-ask
    patient_id: patient-c
    doctor: john doe
    date: 07-09-2026
    slot: "14:30"
    policy: scripted
    decisions:
      - approved: false
        reason: patient hesitated
      - approved: true
    steps:
      - kind: book
        message: book dr doe
        want: ApprovalDenied
      - kind: book
        message: yes book dr doe
`

func writeScenarioFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadScenarioFile(t *testing.T) {
	scenarios, err := LoadScenarioFile(writeScenarioFile(t, scenarioYAML))
	require.NoError(t, err)
	require.Len(t, scenarios, 3)
	require.Equal(t, "booked-then-cancelled", scenarios[0].ID)
	require.Equal(t, "file-0001", scenarios[1].ID)
	require.Equal(t, PolicyAutoDeny, scenarios[1].Policy)
	require.Equal(t, PolicyScripted, scenarios[2].Policy)
	require.Len(t, scenarios[2].Decisions, 2)
	require.False(t, scenarios[2].Decisions[0].Approved)
	require.True(t, scenarios[2].Decisions[1].Approved)
}

func TestLoadScenarioFileRejectsBadInput(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"unknown doctor", `scenarios:
  - doctor: dr strange
    date: 05-09-2026
    slot: "10:30"
    steps: [{kind: check, message: hi}]
`},
		{"bad date", `scenarios:
  - doctor: john doe
    date: 2026-09-05
    slot: "10:30"
    steps: [{kind: check, message: hi}]
`},
		{"unknown step kind", `scenarios:
  - doctor: john doe
    date: 05-09-2026
    slot: "10:30"
    steps: [{kind: teleport, message: hi}]
`},
		{"unknown policy", `scenarios:
  - doctor: john doe
    date: 05-09-2026
    slot: "10:30"
    policy: auto-aprove
    steps: [{kind: check, message: hi}]
`},
		{"scripted without decisions", `scenarios:
  - doctor: john doe
    date: 05-09-2026
    slot: "10:30"
    policy: scripted
    steps: [{kind: book, message: hi}]
`},
		{"empty", `scenarios: []`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadScenarioFile(writeScenarioFile(t, tc.yaml))
			require.ErrorIs(t, err, careErrors.ErrSimulationConfig)
		})
	}
}

func TestRunScenariosFromFile(t *testing.T) {
	scenarios, err := LoadScenarioFile(writeScenarioFile(t, scenarioYAML))
	require.NoError(t, err)

	report, err := NewHarness().RunScenarios(context.Background(), schedule.NewMemoryStore(), scenarios,
		Options{Concurrency: 2, Policy: PolicyAutoApprove})
	require.NoError(t, err)

	require.Equal(t, 3, report.Scenarios)
	require.Equal(t, 2, report.Booked)
	require.Equal(t, 1, report.Cancelled)
	require.Equal(t, 2, report.Denied)
	require.Zero(t, report.Mismatches)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, 2, report.FailedApproval)
}
