package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateLayout(t *testing.T) {
	t.Run("full rows", func(t *testing.T) {
		layout := GenerateLayout(8)
		assert.Equal(t, []string{"1A", "1B", "1C", "1D", "2A", "2B", "2C", "2D"}, layout)
	})

	t.Run("partial last row", func(t *testing.T) {
		layout := GenerateLayout(6)
		assert.Equal(t, []string{"1A", "1B", "1C", "1D", "2A", "2B"}, layout)
	})

	t.Run("standard coach", func(t *testing.T) {
		layout := GenerateLayout(40)
		assert.Len(t, layout, 40)
		assert.Equal(t, "1A", layout[0])
		assert.Equal(t, "10D", layout[39])
	})

	t.Run("labels are unique", func(t *testing.T) {
		layout := GenerateLayout(57)
		seen := make(map[string]bool, len(layout))
		for _, seat := range layout {
			assert.False(t, seen[seat], "duplicate seat %s", seat)
			seen[seat] = true
		}
	})
}

func TestNewSeatMap(t *testing.T) {
	m, err := NewSeatMap("template-1", 40)
	assert.NoError(t, err)
	assert.Equal(t, 40, m.Capacity)
	assert.Len(t, m.Layout, 40)
	assert.True(t, m.HasSeat("5C"))
	assert.False(t, m.HasSeat("11A"))

	_, err = NewSeatMap("template-2", 0)
	assert.Error(t, err)

	_, err = NewSeatMap("template-3", -4)
	assert.Error(t, err)
}

func TestReservationStateTerminal(t *testing.T) {
	assert.False(t, ReservationHeld.Terminal())
	assert.True(t, ReservationConfirmed.Terminal())
	assert.True(t, ReservationReleased.Terminal())
	assert.True(t, ReservationExpired.Terminal())
}

func TestTripCountByState(t *testing.T) {
	trip := &Trip{
		SeatStates: map[string]SeatState{
			"1A": SeatAvailable,
			"1B": SeatHeld,
			"1C": SeatHeld,
			"1D": SeatConfirmed,
		},
	}
	assert.Equal(t, 1, trip.CountByState(SeatAvailable))
	assert.Equal(t, 2, trip.CountByState(SeatHeld))
	assert.Equal(t, 1, trip.CountByState(SeatConfirmed))
}
