package pricing

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/stat/distuv"
)

// Kind is the option right.
type Kind string

const (
	Call Kind = "call"
	Put  Kind = "put"
)

// ParseKind accepts "call"/"c"/"OCE" and "put"/"p"/"OPE", case-insensitive.
// OCE and OPE are the class prefixes used by MEFF option tables.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c", "oce":
		return Call, nil
	case "put", "p", "ope":
		return Put, nil
	}
	return "", fmt.Errorf("unknown option kind %q", s)
}

// BlackScholesPrice calculates the price of a European option using the Black-Scholes model.
//
// Parameters:
//   - kind: Call or Put
//   - S: spot price of the underlying asset
//   - K: strike price of the option
//   - T: time to expiry in years
//   - r: risk-free interest rate (annual, continuously compounded)
//   - sigma: volatility of the underlying asset (annual, as a decimal)
//
// Returns:
//
//	The theoretical price of the option. A contract with no remaining life
//	(T <= 0) is worth 0 under this model. With T > 0 and sigma <= 0 the
//	discounted intrinsic value is returned, which is the sigma -> 0 limit.
func BlackScholesPrice(
	kind Kind,
	S float64, // spot
	K float64, // strike
	T float64, // time to expiry in years
	r float64, // risk-free rate
	sigma float64, // volatility
) float64 {

	if T <= 0 {
		return 0
	}

	discK := K * math.Exp(-r*T)
	if sigma <= 0 {
		if kind == Put {
			return math.Max(0, discK-S)
		}
		return math.Max(0, S-discK)
	}

	d1, d2 := dTerms(S, K, T, r, sigma)

	if kind == Put {
		return discK*normCDF(-d2) - S*normCDF(-d1)
	}
	return S*normCDF(d1) - discK*normCDF(d2)
}

// BlackScholesVega calculates the vega of a European option: the change in
// price for a unit (1.00) change in volatility. Calls and puts share it.
// Returns 0 if T or sigma is non-positive.
func BlackScholesVega(
	S float64,
	K float64,
	T float64,
	r float64,
	sigma float64,
) float64 {

	if T <= 0 || sigma <= 0 {
		return 0
	}

	d1, _ := dTerms(S, K, T, r, sigma)
	return S * normPDF(d1) * math.Sqrt(T)
}

func dTerms(S, K, T, r, sigma float64) (d1, d2 float64) {
	sqrtT := math.Sqrt(T)
	d1 = (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 = d1 - sigma*sqrtT
	return d1, d2
}

func normPDF(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}

func normCDF(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}
