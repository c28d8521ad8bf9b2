package convo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carelane/carelane/internal/approval"
	careErrors "github.com/carelane/carelane/internal/errors"
)

func TestGetOrCreate(t *testing.T) {
	store := NewStore(10)

	c := store.GetOrCreate("p1")
	require.Equal(t, "p1", c.PatientID)
	require.Empty(t, c.Turns)
	require.Nil(t, c.Pending)
}

func TestAppendTurnEvictsOldestFirst(t *testing.T) {
	store := NewStore(3)
	for i := 0; i < 5; i++ {
		store.AppendTurn("p1", RoleUser, fmt.Sprintf("msg-%d", i))
	}

	c, ok := store.Snapshot("p1")
	require.True(t, ok)
	require.Len(t, c.Turns, 3)
	require.Equal(t, "msg-2", c.Turns[0].Text)
	require.Equal(t, "msg-4", c.Turns[2].Text)
}

func TestSetPendingConflict(t *testing.T) {
	store := NewStore(10)
	pending := approval.NewPending("p1", "book_appointment", "", nil)

	require.NoError(t, store.SetPending("p1", pending))

	err := store.SetPending("p1", approval.NewPending("p1", "cancel_appointment", "", nil))
	require.ErrorIs(t, err, careErrors.ErrConflict)

	// A second patient is unaffected.
	require.NoError(t, store.SetPending("p2", approval.NewPending("p2", "book_appointment", "", nil)))

	store.ClearPending("p1")
	require.NoError(t, store.SetPending("p1", pending))
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewStore(10)
	store.AppendTurn("p1", RoleUser, "hello")
	require.NoError(t, store.SetPending("p1", approval.NewPending("p1", "book_appointment", "", nil)))

	c, ok := store.Snapshot("p1")
	require.True(t, ok)

	c.Turns[0].Text = "mutated"
	c.Pending.Tool = "mutated"

	again, _ := store.Snapshot("p1")
	require.Equal(t, "hello", again.Turns[0].Text)
	require.Equal(t, "book_appointment", again.Pending.Tool)
}

func TestSnapshotUnknownPatient(t *testing.T) {
	store := NewStore(10)
	_, ok := store.Snapshot("ghost")
	require.False(t, ok)
}

func TestSetLastError(t *testing.T) {
	store := NewStore(10)
	store.SetLastError("p1", "slot already booked")

	c, _ := store.Snapshot("p1")
	require.Equal(t, "slot already booked", c.LastError)

	store.SetLastError("p1", "")
	c, _ = store.Snapshot("p1")
	require.Empty(t, c.LastError)
}
