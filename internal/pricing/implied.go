// Package pricing holds the Black-Scholes model and its inversion.
package pricing

import (
	"fmt"
	"math"
)

// SolverConfig controls the implied volatility root-find.
type SolverConfig struct {
	LowerBound    float64 `mapstructure:"lower_bound" json:"lower_bound"`       // lowest admissible volatility
	UpperBound    float64 `mapstructure:"upper_bound" json:"upper_bound"`       // highest admissible volatility
	Tolerance     float64 `mapstructure:"tolerance" json:"tolerance"`           // absolute tolerance on volatility
	MaxIterations int     `mapstructure:"max_iterations" json:"max_iterations"` // root finder iteration cap
}

// DefaultSolverConfig searches volatilities between 1e-6 and 400%.
func DefaultSolverConfig() SolverConfig {
	return SolverConfig{
		LowerBound:    1e-6,
		UpperBound:    4,
		Tolerance:     1e-6,
		MaxIterations: 100,
	}
}

// Validate checks the bracket and limits are usable.
func (c SolverConfig) Validate() error {
	if !(c.LowerBound > 0) || !(c.UpperBound > c.LowerBound) {
		return fmt.Errorf("invalid volatility bracket [%g, %g]", c.LowerBound, c.UpperBound)
	}
	if !(c.Tolerance > 0) {
		return fmt.Errorf("tolerance must be positive, got %g", c.Tolerance)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("max iterations must be at least 1, got %d", c.MaxIterations)
	}
	return nil
}

// ImpliedVolatility inverts BlackScholesPrice for sigma so that the model
// price matches observedPrice.
//
// Parameters:
//   - observedPrice: market price of the option
//   - S, K, T, r: spot, strike, years to expiry, risk-free rate
//   - kind: Call or Put
//   - cfg: bracket, tolerance and iteration cap
//
// Returns the volatility, or one of ErrNoUsableQuote, ErrExpired,
// ErrNoRootInBracket, ErrNumericDomain or ErrNoConvergence (wrapped).
// A non-positive price or maturity is never inverted.
func ImpliedVolatility(
	observedPrice, S, K, T, r float64,
	kind Kind,
	cfg SolverConfig,
) (float64, error) {

	if !(observedPrice > 0) {
		return 0, ErrNoUsableQuote
	}
	if !(T > 0) {
		return 0, ErrExpired
	}
	if !(S > 0) || !(K > 0) || !isFinite(r) || !isFinite(observedPrice) {
		return 0, fmt.Errorf("%w: S=%g K=%g r=%g price=%g", ErrNumericDomain, S, K, r, observedPrice)
	}

	objective := func(sigma float64) float64 {
		return BlackScholesPrice(kind, S, K, T, r, sigma) - observedPrice
	}

	sigma, err := Brent(objective, cfg.LowerBound, cfg.UpperBound, cfg.Tolerance, cfg.MaxIterations)
	if err != nil {
		return 0, err
	}
	if sigma < 0 || math.IsNaN(sigma) {
		return 0, fmt.Errorf("%w: sigma=%g", ErrNumericDomain, sigma)
	}
	return sigma, nil
}
