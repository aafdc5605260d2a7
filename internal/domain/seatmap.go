package domain

import (
	"errors"
	"fmt"
)

// Coaches are laid out four seats across, columns A through D.
var seatColumns = []string{"A", "B", "C", "D"}

// SeatMap is the immutable physical layout a trip is scheduled from.
// Layout holds the ordered seat labels; each label is unique within the map.
type SeatMap struct {
	TemplateID string   `json:"template_id"`
	Capacity   int      `json:"capacity"`
	Layout     []string `json:"layout"`
}

// GenerateLayout produces row-by-row seat labels ("1A", "1B", ...) for the
// given capacity, truncating the last row when capacity is not a multiple of
// the column count.
func GenerateLayout(capacity int) []string {
	layout := make([]string, 0, capacity)
	for row := 1; len(layout) < capacity; row++ {
		for _, col := range seatColumns {
			if len(layout) == capacity {
				break
			}
			layout = append(layout, fmt.Sprintf("%d%s", row, col))
		}
	}
	return layout
}

func NewSeatMap(templateID string, capacity int) (SeatMap, error) {
	if capacity <= 0 {
		return SeatMap{}, errors.New("capacity must be positive")
	}
	return SeatMap{
		TemplateID: templateID,
		Capacity:   capacity,
		Layout:     GenerateLayout(capacity),
	}, nil
}

func (m SeatMap) HasSeat(seatID string) bool {
	for _, s := range m.Layout {
		if s == seatID {
			return true
		}
	}
	return false
}
