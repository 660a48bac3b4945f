package pricing

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var solverCfg = DefaultSolverConfig()

func TestImpliedVolatilityRoundTrip(t *testing.T) {
	cases := []struct {
		S, K, T, r float64
	}{
		{100, 100, 0.5, 0},
		{100, 80, 1.0, 0.01},
		{100, 120, 0.25, 0.03},
		{11000, 10500, 0.1, 0},
		{11000, 11800, 2.0, 0.02},
	}
	vols := []float64{0.05, 0.12, 0.2, 0.45, 0.9, 1.7, 3.2}

	for _, c := range cases {
		for _, kind := range []Kind{Call, Put} {
			for _, sigma := range vols {
				name := fmt.Sprintf("%s/S=%g/K=%g/T=%g/sigma=%g", kind, c.S, c.K, c.T, sigma)
				t.Run(name, func(t *testing.T) {
					price := BlackScholesPrice(kind, c.S, c.K, c.T, c.r, sigma)
					if BlackScholesVega(c.S, c.K, c.T, c.r, sigma) < 1e-4 {
						t.Skip("price insensitive to volatility")
					}
					iv, err := ImpliedVolatility(price, c.S, c.K, c.T, c.r, kind, solverCfg)
					require.NoError(t, err)
					assert.InDelta(t, sigma, iv, 1e-4)
				})
			}
		}
	}
}

func TestImpliedVolatilityATMScenario(t *testing.T) {
	price := BlackScholesPrice(Call, 100, 100, 0.5, 0, 0.2)
	require.InDelta(t, 5.6372, price, 1e-4)

	iv, err := ImpliedVolatility(price, 100, 100, 0.5, 0, Call, solverCfg)
	require.NoError(t, err)
	assert.InDelta(t, 0.2, iv, 1e-5)
}

func TestImpliedVolatilityZeroMaturity(t *testing.T) {
	_, err := ImpliedVolatility(5, 100, 100, 0, 0, Call, solverCfg)
	assert.ErrorIs(t, err, ErrExpired)

	_, err = ImpliedVolatility(5, 100, 100, -0.2, 0, Put, solverCfg)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestImpliedVolatilityNonPositivePrice(t *testing.T) {
	for _, price := range []float64{0, -5} {
		_, err := ImpliedVolatility(price, 100, 100, 0.5, 0, Call, solverCfg)
		assert.ErrorIs(t, err, ErrNoUsableQuote)
	}
}

func TestImpliedVolatilityNoRoot(t *testing.T) {
	ceiling := BlackScholesPrice(Call, 100, 100, 0.5, 0, solverCfg.UpperBound)
	_, err := ImpliedVolatility(ceiling+1, 100, 100, 0.5, 0, Call, solverCfg)
	assert.ErrorIs(t, err, ErrNoRootInBracket)

	// below intrinsic value: deep in-the-money put quoted too cheap
	_, err = ImpliedVolatility(10, 80, 100, 0.5, 0, Put, solverCfg)
	assert.ErrorIs(t, err, ErrNoRootInBracket)
}

func TestImpliedVolatilityBadInputs(t *testing.T) {
	_, err := ImpliedVolatility(5, 0, 100, 0.5, 0, Call, solverCfg)
	assert.ErrorIs(t, err, ErrNumericDomain)
	assert.Equal(t, "numeric_domain", Reason(err))
}

func TestImpliedVolatilityStaysInBracket(t *testing.T) {
	cfg := solverCfg
	cfg.UpperBound = 0.5
	price := BlackScholesPrice(Call, 100, 100, 0.5, 0, 0.8)
	_, err := ImpliedVolatility(price, 100, 100, 0.5, 0, Call, cfg)
	assert.ErrorIs(t, err, ErrNoRootInBracket)

	price = BlackScholesPrice(Call, 100, 100, 0.5, 0, 0.3)
	iv, err := ImpliedVolatility(price, 100, 100, 0.5, 0, Call, cfg)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, iv, cfg.LowerBound)
	assert.LessOrEqual(t, iv, cfg.UpperBound)
}

func TestSolverConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultSolverConfig().Validate())
	assert.Error(t, SolverConfig{LowerBound: 1, UpperBound: 0.5, Tolerance: 1e-6, MaxIterations: 10}.Validate())
	assert.Error(t, SolverConfig{LowerBound: 1e-6, UpperBound: 4, Tolerance: 0, MaxIterations: 10}.Validate())
	assert.Error(t, SolverConfig{LowerBound: 1e-6, UpperBound: 4, Tolerance: 1e-6}.Validate())
}

func TestReason(t *testing.T) {
	assert.Equal(t, "", Reason(nil))
	assert.Equal(t, "no_usable_quote", Reason(ErrNoUsableQuote))
	assert.Equal(t, "expired", Reason(ErrExpired))
	assert.Equal(t, "no_root_in_bracket", Reason(fmt.Errorf("wrap: %w", ErrNoRootInBracket)))
	assert.Equal(t, "no_convergence", Reason(ErrNoConvergence))
}
