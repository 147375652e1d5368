package fees

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateDefaults(t *testing.T) {
	calc := NewCalculator(0, 0)

	cases := []struct {
		name          string
		amount        float64
		clientFee     float64
		freelancerFee float64
		net           float64
		total         float64
	}{
		{"round figures", 100, 5.00, 2.00, 98.00, 105.00},
		{"fractional rounding", 150.50, 7.53, 3.01, 147.49, 158.03},
		{"budget 500", 500, 25.00, 10.00, 490.00, 525.00},
		{"budget 900", 900, 45.00, 18.00, 882.00, 945.00},
		{"small amount", 0.10, 0.01, 0.00, 0.10, 0.11},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := calc.Calculate(tc.amount)
			require.NoError(t, err)
			require.Equal(t, tc.clientFee, got.ClientFee, "client fee")
			require.Equal(t, tc.freelancerFee, got.FreelancerFee, "freelancer fee")
			require.Equal(t, tc.net, got.NetAmount, "net amount")
			require.Equal(t, tc.total, got.TotalToEscrow, "total to escrow")
			require.Equal(t, round2(tc.amount), got.Amount)
		})
	}
}

func TestCalculateRejectsNonPositive(t *testing.T) {
	calc := NewCalculator(0.05, 0.02)
	for _, amount := range []float64{0, -1, -150.50} {
		_, err := calc.Calculate(amount)
		require.ErrorIs(t, err, ErrInvalidAmount, "amount %v", amount)
	}
}

func TestCalculateCustomRates(t *testing.T) {
	calc := NewCalculator(0.10, 0.05)
	got, err := calc.Calculate(200)
	require.NoError(t, err)
	require.Equal(t, 20.00, got.ClientFee)
	require.Equal(t, 10.00, got.FreelancerFee)
	require.Equal(t, 190.00, got.NetAmount)
	require.Equal(t, 220.00, got.TotalToEscrow)
}

func TestNetAndTotalDeriveFromExactInput(t *testing.T) {
	calc := NewCalculator(0, 0)
	got, err := calc.Calculate(150.50)
	require.NoError(t, err)
	// Each figure rounds from the exact input, not from rounded intermediates.
	require.Equal(t, round2(150.50-round2(150.50*0.02)), got.NetAmount)
	require.Equal(t, round2(150.50+round2(150.50*0.05)), got.TotalToEscrow)
}
