package builtin

import (
	"context"
	"fmt"
	"strings"
	"time"

	careErrors "github.com/carelane/carelane/internal/errors"
	"github.com/carelane/carelane/internal/logger"
	"github.com/carelane/carelane/internal/schedule"
	toolcore "github.com/carelane/carelane/internal/tool"
)

// Specs returns the closed tool catalog bound to the given store. The booking
// and cancellation tools mutate state and therefore require approval; the two
// read tools do not.
func Specs(store schedule.Store) []toolcore.Spec {
	return []toolcore.Spec{
		{
			Name:        "check_availability",
			Description: "List a doctor's available time slots on a given date.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"doctor": doctorProperty(),
					"date": map[string]interface{}{
						"type":        "string",
						"description": "Date in DD-MM-YYYY format",
					},
				},
				"required": []string{"doctor", "date"},
			},
			Handler: checkAvailabilityHandler(store),
		},
		{
			Name:        "book_appointment",
			Description: "Book a doctor's slot for the current patient. Requires the slot to be available.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"doctor": doctorProperty(),
					"date": map[string]interface{}{
						"type":        "string",
						"description": "Date in DD-MM-YYYY format",
					},
					"slot": map[string]interface{}{
						"type":        "string",
						"description": "Time slot in 24h HH:MM format",
					},
				},
				"required": []string{"doctor", "date", "slot"},
			},
			RequiresApproval: true,
			Handler:          bookHandler(store),
		},
		{
			Name:        "cancel_appointment",
			Description: "Cancel one of the current patient's booked appointments by appointment id.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"appointment_id": map[string]interface{}{
						"type":        "string",
						"description": "Appointment id as shown by list_appointments",
					},
				},
				"required": []string{"appointment_id"},
			},
			RequiresApproval: true,
			Handler:          cancelHandler(store),
		},
		{
			Name:        "list_appointments",
			Description: "List the current patient's appointments, including cancelled ones.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
			Handler: listHandler(store),
		},
	}
}

func doctorProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Doctor name, lowercase first and last name",
		"enum":        schedule.Doctors,
	}
}

func checkAvailabilityHandler(store schedule.Store) toolcore.Handler {
	return func(ctx context.Context, args toolcore.Args) (string, error) {
		date, err := parseDate(args.String("date"))
		if err != nil {
			return "", err
		}

		slots, err := store.CheckAvailability(ctx, args.String("doctor"), date)
		if err != nil {
			return "", err
		}
		if len(slots) == 0 {
			return fmt.Sprintf("Dr. %s has no availability on %s.", title(args.String("doctor")), date), nil
		}
		return fmt.Sprintf("Dr. %s is available on %s at: %s.", title(args.String("doctor")), date, strings.Join(slots, ", ")), nil
	}
}

func bookHandler(store schedule.Store) toolcore.Handler {
	return func(ctx context.Context, args toolcore.Args) (string, error) {
		date, err := parseDate(args.String("date"))
		if err != nil {
			return "", err
		}
		slot, err := parseSlot(args.String("slot"))
		if err != nil {
			return "", err
		}

		patientID := logger.GetPatientID(ctx)
		if patientID == "" {
			return "", careErrors.Orchestration("booking without a patient id")
		}

		appt, err := store.Book(ctx, args.String("doctor"), date, slot, patientID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Booked Dr. %s on %s at %s. Your appointment id is %s.",
			title(appt.Doctor), appt.Date, appt.Slot, appt.ID), nil
	}
}

func cancelHandler(store schedule.Store) toolcore.Handler {
	return func(ctx context.Context, args toolcore.Args) (string, error) {
		patientID := logger.GetPatientID(ctx)
		if patientID == "" {
			return "", careErrors.Orchestration("cancellation without a patient id")
		}

		id := strings.TrimSpace(args.String("appointment_id"))
		if err := store.Cancel(ctx, id, patientID); err != nil {
			return "", err
		}
		return fmt.Sprintf("Appointment %s has been cancelled.", id), nil
	}
}

func listHandler(store schedule.Store) toolcore.Handler {
	return func(ctx context.Context, args toolcore.Args) (string, error) {
		patientID := logger.GetPatientID(ctx)
		if patientID == "" {
			return "", careErrors.Orchestration("listing without a patient id")
		}

		appts, err := store.List(ctx, patientID)
		if err != nil {
			return "", err
		}
		if len(appts) == 0 {
			return "You have no appointments on record.", nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Appointments for patient %s:\n", patientID)
		for _, appt := range appts {
			fmt.Fprintf(&b, "- [%s] Dr. %s on %s at %s (%s)\n",
				appt.ID, title(appt.Doctor), appt.Date, appt.Slot, appt.Status)
		}
		return strings.TrimRight(b.String(), "\n"), nil
	}
}

func parseDate(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if _, err := time.Parse(schedule.DateLayout, trimmed); err != nil {
		return "", fmt.Errorf("%w: date (must be DD-MM-YYYY)", careErrors.ErrSchemaValidation)
	}
	return trimmed, nil
}

func parseSlot(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if _, err := time.Parse(schedule.SlotLayout, trimmed); err != nil {
		return "", fmt.Errorf("%w: slot (must be HH:MM)", careErrors.ErrSchemaValidation)
	}
	return trimmed, nil
}

func title(name string) string {
	words := strings.Fields(name)
	for i, w := range words {
		if len(w) > 0 {
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}
