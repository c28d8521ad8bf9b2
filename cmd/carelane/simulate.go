package main

import (
	"fmt"
	"sort"
	"strconv"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/spf13/cobra"

	"github.com/carelane/carelane/internal/sim"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run Monte Carlo scheduling scenarios",
	Long:  `Runs seeded synthetic patient journeys against a sandbox copy of the schedule and prints the aggregate report. The same seed always yields the same report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}

		opts := simOptions()
		if cmd.Flags().Changed("count") {
			opts.Count, _ = cmd.Flags().GetInt("count")
		}
		if cmd.Flags().Changed("seed") {
			opts.Seed, _ = cmd.Flags().GetInt64("seed")
		}
		if cmd.Flags().Changed("policy") {
			opts.Policy, _ = cmd.Flags().GetString("policy")
		}
		if cmd.Flags().Changed("concurrency") {
			opts.Concurrency, _ = cmd.Flags().GetInt("concurrency")
		}

		harness := sim.NewHarness()
		var report *sim.Report
		if path, _ := cmd.Flags().GetString("scenarios"); path != "" {
			scenarios, err := sim.LoadScenarioFile(path)
			if err != nil {
				return err
			}
			report, err = harness.RunScenarios(cmd.Context(), store.Sandbox(), scenarios, opts)
			if err != nil {
				return err
			}
		} else {
			report, err = harness.Run(cmd.Context(), store.Sandbox(), opts)
			if err != nil {
				return err
			}
		}

		fmt.Println(renderReport(report))
		return nil
	},
}

func renderReport(report *sim.Report) string {
	purple := lipgloss.Color("99")
	gray := lipgloss.Color("245")

	headerStyle := lipgloss.NewStyle().Foreground(purple).Bold(true).Padding(0, 1)
	cellStyle := lipgloss.NewStyle().Foreground(gray).Padding(0, 1)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(purple)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return headerStyle
			}
			return cellStyle
		})

	t.Row("Run", report.RunID)
	t.Row("Seed", strconv.FormatInt(report.Seed, 10))
	t.Row("Policy", report.Policy)
	t.Row("Scenarios", strconv.Itoa(report.Scenarios))
	t.Row("Turns", strconv.Itoa(report.Turns))
	t.Row("Re-prompts", strconv.Itoa(report.Reprompts))
	t.Row("Succeeded", strconv.Itoa(report.Succeeded))
	t.Row("Failed validation", strconv.Itoa(report.FailedValidation))
	t.Row("Failed approval", strconv.Itoa(report.FailedApproval))
	t.Row("Failed execution", strconv.Itoa(report.FailedExecution))
	t.Row("Booked", strconv.Itoa(report.Booked))
	t.Row("Cancelled", strconv.Itoa(report.Cancelled))
	t.Row("Denied", strconv.Itoa(report.Denied))
	t.Row("Slot conflicts", strconv.Itoa(report.Conflicts))
	t.Row("Failures", strconv.Itoa(report.Failures))
	t.Row("Mismatches", strconv.Itoa(report.Mismatches))
	t.Row("Elapsed", report.FinishedAt.Sub(report.StartedAt).String())
	t.Row("Scenario min/max/avg", fmt.Sprintf("%s / %s / %s", report.Timing.Min, report.Timing.Max, report.Timing.Avg))

	kinds := make([]string, 0, len(report.Kinds))
	for kind := range report.Kinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		t.Row("  "+kind, strconv.Itoa(report.Kinds[kind]))
	}

	return t.String()
}

func init() {
	simulateCmd.Flags().Int("count", 0, "number of scenarios to run")
	simulateCmd.Flags().Int64("seed", 0, "master seed for scenario generation")
	simulateCmd.Flags().String("policy", "", "approval policy: auto-approve, auto-deny, scripted, or seeded")
	simulateCmd.Flags().Int("concurrency", 0, "number of scenario workers")
	simulateCmd.Flags().String("scenarios", "", "YAML file of hand-written scenarios to run instead of generated ones")
	rootCmd.AddCommand(simulateCmd)
}
