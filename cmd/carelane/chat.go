package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"github.com/spf13/cobra"

	"github.com/carelane/carelane/internal/approval"
)

var (
	chatPromptStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	chatReplyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the agent at the terminal",
	Long:  `Starts an interactive session for one patient. Booking and cancellation ask for confirmation inline before anything is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		patientID, _ := cmd.Flags().GetString("patient")
		if patientID == "" {
			return fmt.Errorf("--patient is required")
		}

		store, err := openStore()
		if err != nil {
			return err
		}

		channel := &approval.ConsoleChannel{In: os.Stdin, Out: os.Stdout}
		orch, err := buildOrchestrator(store, channel)
		if err != nil {
			return err
		}

		fmt.Println("Carelane scheduling assistant. Type 'exit' to quit.")
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print(chatPromptStyle.Render(patientID + "> "))
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return nil
			}

			result, err := orch.ExecuteTurn(cmd.Context(), patientID, line)
			if err != nil {
				fmt.Printf("error (%s): %v\n", result.ErrKind, err)
				continue
			}
			fmt.Println(chatReplyStyle.Render(result.Reply))
		}
	},
}

func init() {
	chatCmd.Flags().StringP("patient", "p", "", "patient id for this session")
	rootCmd.AddCommand(chatCmd)
}
