package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	careErrors "github.com/carelane/carelane/internal/errors"

	"github.com/oklog/ulid/v2"
)

type slotKey struct {
	Doctor string
	Date   string
	Slot   string
}

type slotState struct {
	Specialization string
	Available      bool
	AppointmentID  string
}

// MemoryStore keeps the roster and bookings in memory. All mutations run under
// one mutex, which gives the per-slot compare-and-set the Store contract
// requires. It is the backing state for the CSV store and, cloned, the sandbox
// for simulation runs.
type MemoryStore struct {
	mu           sync.Mutex
	slots        map[slotKey]*slotState
	appointments map[string]*Appointment
	now          func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		slots:        make(map[slotKey]*slotState),
		appointments: make(map[string]*Appointment),
		now:          time.Now,
	}
}

// AddSlot registers bookable capacity. Used by the CSV loader and test/sim seeding.
func (s *MemoryStore) AddSlot(doctor, specialization, date, slot string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := slotKey{Doctor: doctor, Date: date, Slot: slot}
	if _, exists := s.slots[key]; exists {
		return
	}
	s.slots[key] = &slotState{Specialization: specialization, Available: true}
}

func (s *MemoryStore) CheckAvailability(ctx context.Context, doctor, date string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var available []string
	for key, state := range s.slots {
		if key.Doctor == doctor && key.Date == date && state.Available {
			available = append(available, key.Slot)
		}
	}
	sort.Strings(available)
	return available, nil
}

func (s *MemoryStore) Book(ctx context.Context, doctor, date, slot, patientID string) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := slotKey{Doctor: doctor, Date: date, Slot: slot}
	state, exists := s.slots[key]
	if !exists || !state.Available {
		return nil, fmt.Errorf("%s %s %s is not available: %w", doctor, date, slot, careErrors.ErrSlotConflict)
	}

	appt := &Appointment{
		ID:        ulid.Make().String(),
		Doctor:    doctor,
		Date:      date,
		Slot:      slot,
		PatientID: patientID,
		Status:    StatusBooked,
		BookedAt:  s.now(),
	}

	state.Available = false
	state.AppointmentID = appt.ID
	s.appointments[appt.ID] = appt

	return cloneAppointment(appt), nil
}

func (s *MemoryStore) Cancel(ctx context.Context, appointmentID, patientID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	appt, exists := s.appointments[appointmentID]
	if !exists || appt.PatientID != patientID || appt.Status != StatusBooked {
		return fmt.Errorf("no booked appointment %s for patient %s: %w", appointmentID, patientID, careErrors.ErrNotFound)
	}

	appt.Status = StatusCancelled

	key := slotKey{Doctor: appt.Doctor, Date: appt.Date, Slot: appt.Slot}
	if state, ok := s.slots[key]; ok && state.AppointmentID == appointmentID {
		state.Available = true
		state.AppointmentID = ""
	}

	return nil
}

func (s *MemoryStore) List(ctx context.Context, patientID string) ([]Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []Appointment
	for _, appt := range s.appointments {
		if appt.PatientID == patientID {
			result = append(result, *appt)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

// Clone returns an independent copy. Simulation scenarios run against clones so
// sandbox mutations never touch the real store.
func (s *MemoryStore) Clone() *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := NewMemoryStore()
	clone.now = s.now
	for key, state := range s.slots {
		copied := *state
		clone.slots[key] = &copied
	}
	for id, appt := range s.appointments {
		clone.appointments[id] = cloneAppointment(appt)
	}
	return clone
}

// snapshot returns all slot rows and appointments for persistence.
func (s *MemoryStore) snapshot() ([]slotRow, []Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]slotRow, 0, len(s.slots))
	for key, state := range s.slots {
		rows = append(rows, slotRow{
			Doctor:         key.Doctor,
			Specialization: state.Specialization,
			Date:           key.Date,
			Slot:           key.Slot,
			Available:      state.Available,
			AppointmentID:  state.AppointmentID,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Doctor != rows[j].Doctor {
			return rows[i].Doctor < rows[j].Doctor
		}
		if rows[i].Date != rows[j].Date {
			return rows[i].Date < rows[j].Date
		}
		return rows[i].Slot < rows[j].Slot
	})

	appts := make([]Appointment, 0, len(s.appointments))
	for _, appt := range s.appointments {
		appts = append(appts, *appt)
	}
	sort.Slice(appts, func(i, j int) bool { return appts[i].ID < appts[j].ID })

	return rows, appts
}

// releaseBooking undoes a booking that could not be persisted: the record is
// dropped and the slot goes back to available.
func (s *MemoryStore) releaseBooking(appointmentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, exists := s.appointments[appointmentID]
	if !exists {
		return
	}
	delete(s.appointments, appointmentID)

	key := slotKey{Doctor: appt.Doctor, Date: appt.Date, Slot: appt.Slot}
	if state, ok := s.slots[key]; ok && state.AppointmentID == appointmentID {
		state.Available = true
		state.AppointmentID = ""
	}
}

// rebook undoes a cancellation that could not be persisted.
func (s *MemoryStore) rebook(appointmentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	appt, exists := s.appointments[appointmentID]
	if !exists || appt.Status != StatusCancelled {
		return
	}
	appt.Status = StatusBooked

	key := slotKey{Doctor: appt.Doctor, Date: appt.Date, Slot: appt.Slot}
	if state, ok := s.slots[key]; ok {
		state.Available = false
		state.AppointmentID = appointmentID
	}
}

// restoreAppointment reattaches a persisted appointment record during load.
func (s *MemoryStore) restoreAppointment(appt Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appointments[appt.ID] = cloneAppointment(&appt)
	if appt.Status == StatusBooked {
		key := slotKey{Doctor: appt.Doctor, Date: appt.Date, Slot: appt.Slot}
		if state, ok := s.slots[key]; ok {
			state.Available = false
			state.AppointmentID = appt.ID
		}
	}
}

func cloneAppointment(a *Appointment) *Appointment {
	copied := *a
	return &copied
}

type slotRow struct {
	Doctor         string
	Specialization string
	Date           string
	Slot           string
	Available      bool
	AppointmentID  string
}
