package schedule

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"time"

	careErrors "github.com/carelane/carelane/internal/errors"

	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

const (
	availabilityHeader = "doctor_name,specialization,date_slot,is_available,appointment_id"
	appointmentsHeader = "id,doctor_name,date_slot,patient_to_attend,status,booked_at"
)

// LockSettings bound how long a store waits for the file lock. Zero values
// fall back to defaults (30s timeout, 100ms retry).
type LockSettings struct {
	Timeout time.Duration
	Retry   time.Duration
}

// CSVStore persists the roster and bookings as CSV files next to each other:
// the availability file holds slot rows (date_slot is "DD-MM-YYYY HH:MM"), the
// appointments file holds booking records. Writes go through an atomic rename
// guarded by a file lock so concurrent processes cannot interleave partial
// writes.
type CSVStore struct {
	mem       *MemoryStore
	path      string
	apptsPath string
	lock      *flock.Flock
	lockWait  LockSettings
}

func OpenCSVStore(path string, lockWait LockSettings) (*CSVStore, error) {
	if lockWait.Timeout <= 0 {
		lockWait.Timeout = 30 * time.Second
	}
	if lockWait.Retry <= 0 {
		lockWait.Retry = 100 * time.Millisecond
	}

	s := &CSVStore{
		mem:       NewMemoryStore(),
		path:      path,
		apptsPath: filepath.Join(filepath.Dir(path), "appointments.csv"),
		lock:      flock.New(path + ".lock"),
		lockWait:  lockWait,
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// acquire takes the file lock, waiting up to the configured timeout so a
// wedged sibling process cannot block a turn forever.
func (s *CSVStore) acquire() (release func(), err error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.lockWait.Timeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(ctx, s.lockWait.Retry)
	if err != nil {
		return nil, careErrors.Unavailable("lock %s: %v", s.path, err)
	}
	if !locked {
		return nil, careErrors.Unavailable("lock %s: timed out after %s", s.path, s.lockWait.Timeout)
	}
	return func() { s.lock.Unlock() }, nil
}

func (s *CSVStore) load() error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return careErrors.Unavailable("read %s: %v", s.path, err)
	}

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return careErrors.Unavailable("parse %s: %v", s.path, err)
	}

	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == "doctor_name" {
			continue // header
		}
		if len(rec) < 4 {
			continue
		}

		date, slot, ok := splitDateSlot(rec[2])
		if !ok {
			continue
		}
		s.mem.AddSlot(strings.TrimSpace(rec[0]), strings.TrimSpace(rec[1]), date, slot)
	}

	// Appointments file is optional on first run.
	apptData, err := os.ReadFile(s.apptsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return careErrors.Unavailable("read %s: %v", s.apptsPath, err)
	}

	apptRecords, err := csv.NewReader(bytes.NewReader(apptData)).ReadAll()
	if err != nil {
		return careErrors.Unavailable("parse %s: %v", s.apptsPath, err)
	}

	for i, rec := range apptRecords {
		if i == 0 && len(rec) > 0 && rec[0] == "id" {
			continue
		}
		if len(rec) < 6 {
			continue
		}

		date, slot, ok := splitDateSlot(rec[2])
		if !ok {
			continue
		}

		bookedAt, _ := time.Parse(time.RFC3339, rec[5])
		s.mem.restoreAppointment(Appointment{
			ID:        rec[0],
			Doctor:    rec[1],
			Date:      date,
			Slot:      slot,
			PatientID: rec[3],
			Status:    Status(rec[4]),
			BookedAt:  bookedAt,
		})
	}

	return nil
}

func (s *CSVStore) persist() error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()

	rows, appts := s.mem.snapshot()

	var availability bytes.Buffer
	availability.WriteString(availabilityHeader + "\n")
	w := csv.NewWriter(&availability)
	for _, row := range rows {
		available := "False"
		if row.Available {
			available = "True"
		}
		w.Write([]string{
			row.Doctor,
			row.Specialization,
			row.Date + " " + row.Slot,
			available,
			row.AppointmentID,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return careErrors.Unavailable("encode %s: %v", s.path, err)
	}

	if err := atomic.WriteFile(s.path, bytes.NewReader(availability.Bytes())); err != nil {
		return careErrors.Unavailable("write %s: %v", s.path, err)
	}

	var bookings bytes.Buffer
	bookings.WriteString(appointmentsHeader + "\n")
	aw := csv.NewWriter(&bookings)
	for _, appt := range appts {
		aw.Write([]string{
			appt.ID,
			appt.Doctor,
			appt.Date + " " + appt.Slot,
			appt.PatientID,
			string(appt.Status),
			appt.BookedAt.UTC().Format(time.RFC3339),
		})
	}
	aw.Flush()
	if err := aw.Error(); err != nil {
		return careErrors.Unavailable("encode %s: %v", s.apptsPath, err)
	}

	if err := atomic.WriteFile(s.apptsPath, bytes.NewReader(bookings.Bytes())); err != nil {
		return careErrors.Unavailable("write %s: %v", s.apptsPath, err)
	}

	return nil
}

func (s *CSVStore) CheckAvailability(ctx context.Context, doctor, date string) ([]string, error) {
	return s.mem.CheckAvailability(ctx, doctor, date)
}

func (s *CSVStore) Book(ctx context.Context, doctor, date, slot, patientID string) (*Appointment, error) {
	appt, err := s.mem.Book(ctx, doctor, date, slot, patientID)
	if err != nil {
		return nil, err
	}
	if err := s.persist(); err != nil {
		// A booking the disk never saw must not linger in memory, or the
		// slot stays lost until restart.
		s.mem.releaseBooking(appt.ID)
		return nil, err
	}
	return appt, nil
}

func (s *CSVStore) Cancel(ctx context.Context, appointmentID, patientID string) error {
	if err := s.mem.Cancel(ctx, appointmentID, patientID); err != nil {
		return err
	}
	if err := s.persist(); err != nil {
		s.mem.rebook(appointmentID)
		return err
	}
	return nil
}

func (s *CSVStore) List(ctx context.Context, patientID string) ([]Appointment, error) {
	return s.mem.List(ctx, patientID)
}

// Sandbox returns an in-memory clone for simulation runs.
func (s *CSVStore) Sandbox() *MemoryStore {
	return s.mem.Clone()
}

func splitDateSlot(value string) (date, slot string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(value), " ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}
