package pricing

import (
	"fmt"

	"github.com/Boitumelo14/busbooking/config"
	"github.com/Boitumelo14/busbooking/internal/domain"
)

type SurchargeKind string

const (
	SurchargePercent SurchargeKind = "percent"
	SurchargeFlat    SurchargeKind = "flat"
)

// MethodFee is the surcharge rule for one payment method: a percentage of the
// subtotal (basis points) for card-like methods, a flat amount for
// mobile-money-like methods, zero for cash-like methods.
type MethodFee struct {
	Kind        SurchargeKind
	BasisPoints int64
	FlatCents   int64
}

// Table holds the fee configuration the calculator prices against.
type Table struct {
	ServiceFeeCents int64
	Methods         map[string]MethodFee
}

// DefaultTable mirrors the production fee schedule: 2.5% on cards, flat P5 on
// mobile money wallets, nothing on cash or bank transfer. Service fee is a
// flat P5 per booking.
func DefaultTable() Table {
	return Table{
		ServiceFeeCents: 500,
		Methods: map[string]MethodFee{
			"card":          {Kind: SurchargePercent, BasisPoints: 250},
			"orange_money":  {Kind: SurchargeFlat, FlatCents: 500},
			"myzaka":        {Kind: SurchargeFlat, FlatCents: 500},
			"smega":         {Kind: SurchargeFlat, FlatCents: 500},
			"bank_transfer": {Kind: SurchargeFlat, FlatCents: 0},
			"cash":          {Kind: SurchargeFlat, FlatCents: 0},
		},
	}
}

// TableFromConfig builds a fee table from the yaml config, falling back to the
// defaults when no methods are configured.
func TableFromConfig(cfg config.PricingConfig) Table {
	if len(cfg.Methods) == 0 {
		return DefaultTable()
	}
	methods := make(map[string]MethodFee, len(cfg.Methods))
	for name, m := range cfg.Methods {
		methods[name] = MethodFee{
			Kind:        SurchargeKind(m.Kind),
			BasisPoints: m.BasisPoints,
			FlatCents:   m.FlatCents,
		}
	}
	return Table{ServiceFeeCents: cfg.ServiceFeeCents, Methods: methods}
}

// Calculator computes fare breakdowns. It is a pure function over its table:
// no storage, no network, deterministic for a fixed configuration.
type Calculator struct {
	table Table
}

func NewCalculator(table Table) *Calculator {
	return &Calculator{table: table}
}

// Price returns the per-booking breakdown for passengerCount seats at
// baseFareCents each, paid with the given method. Percentage surcharges are
// rounded half up to the nearest cent.
func (c *Calculator) Price(baseFareCents int64, passengerCount int, method string) (domain.PriceQuote, error) {
	if baseFareCents < 0 {
		return domain.PriceQuote{}, fmt.Errorf("base fare must not be negative, got %d", baseFareCents)
	}
	if passengerCount <= 0 {
		return domain.PriceQuote{}, fmt.Errorf("passenger count must be positive, got %d", passengerCount)
	}

	fee, ok := c.table.Methods[method]
	if !ok {
		return domain.PriceQuote{}, fmt.Errorf("%w: %q", domain.ErrUnknownPaymentMethod, method)
	}

	subtotal := baseFareCents * int64(passengerCount)

	var surcharge int64
	switch fee.Kind {
	case SurchargePercent:
		surcharge = (subtotal*fee.BasisPoints + 5000) / 10000
	case SurchargeFlat:
		surcharge = fee.FlatCents
	default:
		return domain.PriceQuote{}, fmt.Errorf("unknown surcharge kind %q for method %q", fee.Kind, method)
	}

	return domain.PriceQuote{
		PaymentMethod:   method,
		SubtotalCents:   subtotal,
		ServiceFeeCents: c.table.ServiceFeeCents,
		SurchargeCents:  surcharge,
		TotalCents:      subtotal + c.table.ServiceFeeCents + surcharge,
	}, nil
}
