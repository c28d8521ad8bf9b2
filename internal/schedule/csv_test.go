package schedule

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/require"

	careErrors "github.com/carelane/carelane/internal/errors"
)

func writeFixtureCSV(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "doctor_availability.csv")
	content := "doctor_name,specialization,date_slot,is_available,appointment_id\n" +
		"john doe,general_dentist,08-08-2024 10:00,True,\n" +
		"john doe,general_dentist,08-08-2024 10:30,True,\n" +
		"jane smith,orthodontist,09-08-2024 09:00,True,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestCSVStoreLoadsRoster(t *testing.T) {
	ctx := context.Background()
	store, err := OpenCSVStore(writeFixtureCSV(t), LockSettings{})
	require.NoError(t, err)

	slots, err := store.CheckAvailability(ctx, "john doe", "08-08-2024")
	require.NoError(t, err)
	require.Equal(t, []string{"10:00", "10:30"}, slots)
}

func TestCSVStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := writeFixtureCSV(t)

	store, err := OpenCSVStore(path, LockSettings{})
	require.NoError(t, err)

	appt, err := store.Book(ctx, "john doe", "08-08-2024", "10:00", "12345678")
	require.NoError(t, err)

	reopened, err := OpenCSVStore(path, LockSettings{})
	require.NoError(t, err)

	slots, err := reopened.CheckAvailability(ctx, "john doe", "08-08-2024")
	require.NoError(t, err)
	require.Equal(t, []string{"10:30"}, slots, "booked slot must stay booked after reopen")

	appts, err := reopened.List(ctx, "12345678")
	require.NoError(t, err)
	require.Len(t, appts, 1)
	require.Equal(t, appt.ID, appts[0].ID)
	require.Equal(t, StatusBooked, appts[0].Status)

	require.NoError(t, reopened.Cancel(ctx, appt.ID, "12345678"))

	again, err := OpenCSVStore(path, LockSettings{})
	require.NoError(t, err)
	slots, err = again.CheckAvailability(ctx, "john doe", "08-08-2024")
	require.NoError(t, err)
	require.Equal(t, []string{"10:00", "10:30"}, slots, "cancelled slot must be free after reopen")
}

func TestCSVStoreMissingFile(t *testing.T) {
	_, err := OpenCSVStore(filepath.Join(t.TempDir(), "missing.csv"), LockSettings{})
	require.Error(t, err)
}

func TestCSVStoreLockTimesOut(t *testing.T) {
	path := writeFixtureCSV(t)

	held := flock.New(path + ".lock")
	require.NoError(t, held.Lock())
	defer held.Unlock()

	_, err := OpenCSVStore(path, LockSettings{Timeout: 200 * time.Millisecond, Retry: 20 * time.Millisecond})
	require.ErrorIs(t, err, careErrors.ErrUnavailable)
}

func TestCSVStoreBookRollsBackWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "doctor_availability.csv")
	content := "doctor_name,specialization,date_slot,is_available,appointment_id\n" +
		"john doe,general_dentist,08-08-2024 10:00,True,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	store, err := OpenCSVStore(path, LockSettings{Timeout: 200 * time.Millisecond, Retry: 20 * time.Millisecond})
	require.NoError(t, err)

	// Removing the directory makes every write fail.
	require.NoError(t, os.RemoveAll(dir))

	_, err = store.Book(ctx, "john doe", "08-08-2024", "10:00", "12345678")
	require.ErrorIs(t, err, careErrors.ErrUnavailable)

	slots, err := store.CheckAvailability(ctx, "john doe", "08-08-2024")
	require.NoError(t, err)
	require.Equal(t, []string{"10:00"}, slots, "failed booking must release the slot")

	appts, err := store.List(ctx, "12345678")
	require.NoError(t, err)
	require.Empty(t, appts)
}

func TestCSVStoreCancelRollsBackWhenPersistFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "doctor_availability.csv")
	content := "doctor_name,specialization,date_slot,is_available,appointment_id\n" +
		"john doe,general_dentist,08-08-2024 10:00,True,\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	store, err := OpenCSVStore(path, LockSettings{Timeout: 200 * time.Millisecond, Retry: 20 * time.Millisecond})
	require.NoError(t, err)

	appt, err := store.Book(ctx, "john doe", "08-08-2024", "10:00", "12345678")
	require.NoError(t, err)

	require.NoError(t, os.RemoveAll(dir))

	err = store.Cancel(ctx, appt.ID, "12345678")
	require.ErrorIs(t, err, careErrors.ErrUnavailable)

	appts, err := store.List(ctx, "12345678")
	require.NoError(t, err)
	require.Len(t, appts, 1)
	require.Equal(t, StatusBooked, appts[0].Status, "failed cancellation must keep the booking")

	slots, err := store.CheckAvailability(ctx, "john doe", "08-08-2024")
	require.NoError(t, err)
	require.Empty(t, slots, "failed cancellation must keep the slot taken")
}

func TestCSVStoreSandboxIsolation(t *testing.T) {
	ctx := context.Background()
	store, err := OpenCSVStore(writeFixtureCSV(t), LockSettings{})
	require.NoError(t, err)

	sandbox := store.Sandbox()
	_, err = sandbox.Book(ctx, "jane smith", "09-08-2024", "09:00", "12345678")
	require.NoError(t, err)

	slots, err := store.CheckAvailability(ctx, "jane smith", "09-08-2024")
	require.NoError(t, err)
	require.Equal(t, []string{"09:00"}, slots)
}
