package fees

import (
	"errors"
	"math"
)

// Default platform rates. Overridable through configuration so fee tiers can
// change without a deploy.
const (
	DefaultClientRate     = 0.05
	DefaultFreelancerRate = 0.02
)

// ErrInvalidAmount is returned when a fee calculation is requested for a
// non-positive amount.
var ErrInvalidAmount = errors.New("fees: amount must be positive")

// Breakdown is the value object produced for one project amount. All figures
// are rounded to two decimal places.
type Breakdown struct {
	Amount        float64 `json:"amount"`
	ClientFee     float64 `json:"client_fee"`
	FreelancerFee float64 `json:"freelancer_fee"`
	NetAmount     float64 `json:"net_amount"`
	TotalToEscrow float64 `json:"total_to_escrow"`
}

// Calculator derives platform fees from a project amount. The zero value uses
// the default rates.
type Calculator struct {
	ClientRate     float64
	FreelancerRate float64
}

// NewCalculator builds a calculator, falling back to the default rate for any
// rate that is not positive.
func NewCalculator(clientRate, freelancerRate float64) Calculator {
	if clientRate <= 0 {
		clientRate = DefaultClientRate
	}
	if freelancerRate <= 0 {
		freelancerRate = DefaultFreelancerRate
	}
	return Calculator{ClientRate: clientRate, FreelancerRate: freelancerRate}
}

// Calculate computes the fee breakdown for amount. Each derived figure is
// rounded independently from the exact input, never from an already-rounded
// intermediate.
func (c Calculator) Calculate(amount float64) (Breakdown, error) {
	if amount <= 0 {
		return Breakdown{}, ErrInvalidAmount
	}
	clientRate := c.ClientRate
	if clientRate <= 0 {
		clientRate = DefaultClientRate
	}
	freelancerRate := c.FreelancerRate
	if freelancerRate <= 0 {
		freelancerRate = DefaultFreelancerRate
	}
	clientFee := round2(amount * clientRate)
	freelancerFee := round2(amount * freelancerRate)
	return Breakdown{
		Amount:        round2(amount),
		ClientFee:     clientFee,
		FreelancerFee: freelancerFee,
		NetAmount:     round2(amount - freelancerFee),
		TotalToEscrow: round2(amount + clientFee),
	}, nil
}

// round2 rounds half-up to two decimal places.
func round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
