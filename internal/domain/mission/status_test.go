package mission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	got, err := ParseStatus("  booked ")
	require.NoError(t, err)
	assert.Equal(t, StatusBooked, got)

	_, err = ParseStatus("TELEPORTED")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		ok   bool
	}{
		{StatusRequested, StatusOffered, true},
		{StatusRequested, StatusCancelled, true},
		{StatusRequested, StatusBooked, false},
		{StatusOffered, StatusBooked, true},
		{StatusOffered, StatusRequested, true}, // expired offer re-opens
		{StatusOffered, StatusCompleted, false},
		{StatusBooked, StatusInProgress, true},
		{StatusBooked, StatusOffered, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusCompleted, StatusRequested, false},
		{StatusCancelled, StatusOffered, false},
	}

	for _, tt := range tests {
		assert.Equalf(t, tt.ok, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusOffered.Terminal())
}

func TestItemSummary(t *testing.T) {
	assert.Equal(t, "", Summary(nil))

	items := []Item{
		{Name: "Box", Quantity: 3},
		{Name: "Mirror", Quantity: 1, Fragile: true},
		{Name: "Chair"}, // zero quantity renders as one
	}
	assert.Equal(t, "3x Box, 1x Mirror (fragile), 1x Chair", Summary(items))
}

func TestNewMissionValidation(t *testing.T) {
	m, err := NewMission("c-1", "client@example.com", "+77010000000",
		"Abay 10", "Dostyk 99", 12.4, 35, 18000, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusRequested, m.Status)
	assert.False(t, m.Booked)

	_, err = NewMission("c-1", "not-an-email", "", "Abay 10", "Dostyk 99", 1, 1, 1, nil)
	assert.ErrorIs(t, err, ErrInvalidClientEmail)

	_, err = NewMission("c-1", "client@example.com", "", "", "Dostyk 99", 1, 1, 1, nil)
	assert.ErrorIs(t, err, ErrEmptyAddress)
}

func TestSetStatusTracksBookedFlag(t *testing.T) {
	m, err := NewMission("c-1", "client@example.com", "", "Abay 10", "Dostyk 99", 1, 1, 1, nil)
	require.NoError(t, err)

	require.NoError(t, m.SetStatus(StatusBooked))
	assert.True(t, m.Booked)

	require.NoError(t, m.SetStatus(StatusCancelled))
	assert.False(t, m.Booked)

	assert.ErrorIs(t, m.SetStatus(Status("LOST")), ErrInvalidStatus)
}

func TestAssign(t *testing.T) {
	m, err := NewMission("c-1", "client@example.com", "", "Abay 10", "Dostyk 99", 1, 1, 1, nil)
	require.NoError(t, err)
	assert.False(t, m.HasDriver())

	m.Assign("d-1", "driver@example.com")
	require.True(t, m.HasDriver())
	assert.Equal(t, "driver@example.com", m.Driver.Email)
}
