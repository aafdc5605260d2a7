package pricing

import (
	"testing"

	"github.com/Boitumelo14/busbooking/config"
	"github.com/Boitumelo14/busbooking/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestCalculator_Price_Determinism(t *testing.T) {
	calc := NewCalculator(DefaultTable())

	testCases := []struct {
		name           string
		baseFareCents  int64
		passengers     int
		method         string
		wantSubtotal   int64
		wantServiceFee int64
		wantSurcharge  int64
		wantTotal      int64
	}{
		{
			// P150 fare, two passengers, 2.5% card surcharge, flat P5 fee:
			// 300 + 5 + 7.50 = 312.50.
			name:           "two card passengers",
			baseFareCents:  15000,
			passengers:     2,
			method:         "card",
			wantSubtotal:   30000,
			wantServiceFee: 500,
			wantSurcharge:  750,
			wantTotal:      31250,
		},
		{
			name:           "single cash passenger",
			baseFareCents:  9800,
			passengers:     1,
			method:         "cash",
			wantSubtotal:   9800,
			wantServiceFee: 500,
			wantSurcharge:  0,
			wantTotal:      10300,
		},
		{
			name:           "mobile money flat surcharge",
			baseFareCents:  30500,
			passengers:     3,
			method:         "orange_money",
			wantSubtotal:   91500,
			wantServiceFee: 500,
			wantSurcharge:  500,
			wantTotal:      92500,
		},
		{
			name:           "bank transfer has no surcharge",
			baseFareCents:  7200,
			passengers:     4,
			method:         "bank_transfer",
			wantSubtotal:   28800,
			wantServiceFee: 500,
			wantSurcharge:  0,
			wantTotal:      29300,
		},
		{
			// 2.5% of 101 thebe is 2.525, rounded half up to 3.
			name:           "card surcharge rounds half up",
			baseFareCents:  101,
			passengers:     1,
			method:         "card",
			wantSubtotal:   101,
			wantServiceFee: 500,
			wantSurcharge:  3,
			wantTotal:      604,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			quote, err := calc.Price(tc.baseFareCents, tc.passengers, tc.method)
			assert.NoError(t, err)
			assert.Equal(t, tc.wantSubtotal, quote.SubtotalCents)
			assert.Equal(t, tc.wantServiceFee, quote.ServiceFeeCents)
			assert.Equal(t, tc.wantSurcharge, quote.SurchargeCents)
			assert.Equal(t, tc.wantTotal, quote.TotalCents)
			assert.Equal(t, tc.method, quote.PaymentMethod)
		})
	}
}

func TestCalculator_Price_UnknownMethod(t *testing.T) {
	calc := NewCalculator(DefaultTable())

	quote, err := calc.Price(15000, 1, "cheque")
	assert.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownPaymentMethod)
	assert.Zero(t, quote)
}

func TestCalculator_Price_InvalidInput(t *testing.T) {
	calc := NewCalculator(DefaultTable())

	_, err := calc.Price(-1, 1, "cash")
	assert.Error(t, err)

	_, err = calc.Price(15000, 0, "cash")
	assert.Error(t, err)
}

func TestTableFromConfig(t *testing.T) {
	t.Run("empty config falls back to defaults", func(t *testing.T) {
		table := TableFromConfig(config.PricingConfig{})
		assert.Equal(t, DefaultTable(), table)
	})

	t.Run("configured methods override defaults", func(t *testing.T) {
		table := TableFromConfig(config.PricingConfig{
			ServiceFeeCents: 300,
			Methods: map[string]config.MethodFeeConfig{
				"card": {Kind: "percent", BasisPoints: 150},
			},
		})

		assert.Equal(t, int64(300), table.ServiceFeeCents)
		assert.Len(t, table.Methods, 1)
		assert.Equal(t, MethodFee{Kind: SurchargePercent, BasisPoints: 150}, table.Methods["card"])
	})
}
