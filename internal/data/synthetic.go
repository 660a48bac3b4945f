package data

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/contactkeval/option-volsurface/internal/pricing"
)

// synthDataProvider implements Data Provider generating synthetic data.
//
// Prices come from Black-Scholes with a smile that is quadratic in
// log-moneyness and rises slowly with maturity, so the implied volatility of
// every quoted row is known up to the bid/ask spread.
type synthDataProvider struct {
	seed      int64
	now       func() time.Time
	secondary Provider
}

func NewSyntheticProvider(seed int64, secondary Provider) *synthDataProvider {
	return &synthDataProvider{seed: seed, now: time.Now, secondary: secondary}
}

func (synthDataProv *synthDataProvider) Secondary() Provider {
	return synthDataProv.secondary
}

// SmileVol is the volatility the synthetic chain is priced with.
func SmileVol(moneyness, years float64) float64 {
	x := math.Log(moneyness)
	return 0.18 - 0.08*x + 0.6*x*x + 0.02*math.Sqrt(math.Max(years, 0))
}

func (synthDataProv *synthDataProvider) GetOptionChain(ctx context.Context, underlying string) (*Chain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(synthDataProv.seed))
	asOf := synthDataProv.now().UTC().Truncate(24 * time.Hour)
	spot := 100.0 + float64(rng.Intn(200))
	step := strikeStep(spot)

	chain := &Chain{
		Underlying:      strings.ToUpper(underlying),
		UnderlyingPrice: spot,
		AsOf:            asOf,
		Source:          "synthetic",
	}

	for _, expiry := range monthlyExpiries(asOf, 6) {
		years := expiry.Sub(asOf).Hours() / 24 / 365.25
		lo := math.Floor(spot*0.7/step) * step
		hi := math.Ceil(spot*1.3/step) * step
		for strike := lo; strike <= hi+1e-9; strike += step {
			vol := SmileVol(strike/spot, years)
			for _, kind := range []pricing.Kind{pricing.Call, pricing.Put} {
				q := RawQuote{Strike: strike, Expiry: expiry, Kind: string(kind)}

				// roughly one row in ten is left unquoted, as on illiquid wings
				if rng.Float64() < 0.1 {
					chain.Quotes = append(chain.Quotes, q)
					continue
				}

				fair := pricing.BlackScholesPrice(kind, spot, strike, years, 0, vol)
				half := math.Max(0.005, fair*0.01*rng.Float64())
				if fair-half > 0 {
					q.Bid = floatPtr(round2(fair - half))
				}
				q.Ask = floatPtr(round2(fair + half))
				q.Last = floatPtr(round2(fair))
				chain.Quotes = append(chain.Quotes, q)
			}
		}
	}

	return chain, nil
}

// monthlyExpiries returns the third Friday of each of the next n months.
func monthlyExpiries(from time.Time, n int) []time.Time {
	var out []time.Time
	first := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	for len(out) < n {
		offset := (int(time.Friday) - int(first.Weekday()) + 7) % 7
		third := first.AddDate(0, 0, offset+14)
		if third.After(from) {
			out = append(out, third)
		}
		first = first.AddDate(0, 1, 0)
	}
	return out
}

func strikeStep(spot float64) float64 {
	switch {
	case spot >= 10000:
		return 100
	case spot >= 1000:
		return 25
	case spot >= 100:
		return 5
	}
	return 1
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
