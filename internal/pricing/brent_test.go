package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrentPolynomial(t *testing.T) {
	f := func(x float64) float64 { return (x - 1.5) * (x*x + 1) }
	root, err := Brent(f, 0, 4, 1e-12, 100)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, root, 1e-10)
}

func TestBrentTranscendental(t *testing.T) {
	root, err := Brent(math.Cos, 0, 3, 1e-12, 100)
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/2, root, 1e-10)
}

func TestBrentEndpointRoot(t *testing.T) {
	root, err := Brent(func(x float64) float64 { return x - 2 }, 2, 5, 1e-9, 10)
	require.NoError(t, err)
	assert.Equal(t, 2.0, root)
}

func TestBrentNotBracketed(t *testing.T) {
	_, err := Brent(func(x float64) float64 { return x*x + 1 }, -1, 1, 1e-9, 100)
	assert.ErrorIs(t, err, ErrNoRootInBracket)
}

func TestBrentNaNAtBracket(t *testing.T) {
	_, err := Brent(math.Log, -1, 2, 1e-9, 100)
	assert.ErrorIs(t, err, ErrNumericDomain)
}

func TestBrentIterationCap(t *testing.T) {
	calls := 0
	f := func(x float64) float64 {
		calls++
		return x - 0.123456789
	}
	_, err := Brent(f, 0, 1000, 1e-15, 1)
	assert.ErrorIs(t, err, ErrNoConvergence)
	assert.LessOrEqual(t, calls, 3)
}
