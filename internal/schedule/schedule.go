package schedule

import (
	"context"
	"time"
)

// Date and slot formats follow the clinic roster data (DD-MM-YYYY, 24h HH:MM).
const (
	DateLayout = "02-01-2006"
	SlotLayout = "15:04"
)

type Status string

const (
	StatusAvailable Status = "available"
	StatusBooked    Status = "booked"
	StatusCancelled Status = "cancelled"
)

// Doctors is the clinic roster. Tool schemas enumerate it so the reasoner
// cannot propose a doctor that does not exist.
var Doctors = []string{
	"kevin anderson",
	"robert martinez",
	"susan davis",
	"daniel miller",
	"sarah wilson",
	"michael green",
	"lisa brown",
	"jane smith",
	"emily johnson",
	"john doe",
}

// Appointment is a booking record. Slot state transitions are monotone per
// appointment: booked, then optionally cancelled. Cancelling frees the
// underlying slot for a fresh booking.
type Appointment struct {
	ID        string    `json:"id"`
	Doctor    string    `json:"doctor"`
	Date      string    `json:"date"`
	Slot      string    `json:"slot"`
	PatientID string    `json:"patient_id"`
	Status    Status    `json:"status"`
	BookedAt  time.Time `json:"booked_at"`
}

// Store is the narrow persistence contract consumed by tool handlers.
//
// Implementations must serialize bookings per (doctor, date, slot) so that of
// N concurrent Book calls for the same slot at most one succeeds; the rest
// fail with ErrSlotConflict.
type Store interface {
	CheckAvailability(ctx context.Context, doctor, date string) ([]string, error)
	Book(ctx context.Context, doctor, date, slot, patientID string) (*Appointment, error)
	Cancel(ctx context.Context, appointmentID, patientID string) error
	List(ctx context.Context, patientID string) ([]Appointment, error)
}

// KnownDoctor reports whether name is on the roster.
func KnownDoctor(name string) bool {
	for _, d := range Doctors {
		if d == name {
			return true
		}
	}
	return false
}
