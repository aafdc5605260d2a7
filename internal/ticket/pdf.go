package ticket

import (
	"bytes"
	"fmt"

	"github.com/Boitumelo14/busbooking/internal/domain"
	"github.com/phpdave11/gofpdf"
)

// Renderer produces the e-ticket PDF handed to the customer once a booking is
// confirmed. One page per passenger.
type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

func (r *Renderer) Render(trip *domain.Trip, res *domain.Reservation) ([]byte, error) {
	if res.State != domain.ReservationConfirmed {
		return nil, fmt.Errorf("cannot render ticket for %s reservation %s", res.State, res.HoldID)
	}
	if len(res.Manifest) == 0 {
		return nil, fmt.Errorf("reservation %s has no passenger manifest", res.HoldID)
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	for _, p := range res.Manifest {
		pdf.AddPage()

		pdf.SetFont("Helvetica", "B", 20)
		pdf.Cell(0, 12, "Bus Ticket")
		pdf.Ln(16)

		pdf.SetFont("Helvetica", "", 12)
		pdf.Cell(0, 8, fmt.Sprintf("Booking reference: %s", res.HoldID))
		pdf.Ln(8)
		pdf.Cell(0, 8, fmt.Sprintf("Route: %s - %s", trip.Origin, trip.Destination))
		pdf.Ln(8)
		pdf.Cell(0, 8, fmt.Sprintf("Departure: %s", trip.DepartureTime.Format("02 Jan 2006 15:04")))
		pdf.Ln(8)
		pdf.Cell(0, 8, fmt.Sprintf("Passenger: %s", p.FullName))
		pdf.Ln(8)
		pdf.Cell(0, 8, fmt.Sprintf("Seat: %s", p.SeatID))
		pdf.Ln(12)

		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, fmt.Sprintf("Total paid: P%.2f", float64(res.Price.TotalCents)/100))
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render ticket pdf: %w", err)
	}
	return buf.Bytes(), nil
}
