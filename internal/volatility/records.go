package volatility

import (
	"sort"

	"github.com/contactkeval/option-volsurface/internal/pricing"
)

// ExpiryLayout is the date format of Record.Expiry.
const ExpiryLayout = "2006-01-02"

// Record is one (expiry, strike) row of the volatility table handed to
// persistence, with the call and put volatilities side by side.
type Record struct {
	Expiry  string   `json:"expiry"`
	Strike  float64  `json:"strike"`
	VolCall *float64 `json:"implied_vol_call"`
	VolPut  *float64 `json:"implied_vol_put"`
}

// Records pivots results on (expiry, strike), sorted by expiry then strike.
// A side without an available volatility stays nil.
func Records(results []Result) []Record {
	type key struct {
		expiry string
		strike float64
	}
	index := map[key]int{}
	var out []Record

	for _, r := range results {
		k := key{r.Expiry.Format(ExpiryLayout), r.Strike}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, Record{Expiry: k.expiry, Strike: k.strike})
		}
		if !r.Available() {
			continue
		}
		v := *r.ImpliedVol
		if r.Kind == pricing.Put {
			out[i].VolPut = &v
		} else {
			out[i].VolCall = &v
		}
	}

	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Expiry != out[b].Expiry {
			return out[a].Expiry < out[b].Expiry
		}
		return out[a].Strike < out[b].Strike
	})
	return out
}

// Expiries lists the distinct expiries of records in ascending order.
func Expiries(records []Record) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, r := range records {
		if !seen[r.Expiry] {
			seen[r.Expiry] = true
			out = append(out, r.Expiry)
		}
	}
	sort.Strings(out)
	return out
}

// SmilePoint is one strike of a volatility smile.
type SmilePoint struct {
	Strike     float64 `json:"strike"`
	ImpliedVol float64 `json:"implied_vol"`
}

// Smile returns the kind's volatilities at one expiry by ascending strike.
// Strikes without a volatility on that side are left out.
func Smile(records []Record, expiry string, kind pricing.Kind) []SmilePoint {
	out := []SmilePoint{}
	for _, r := range records {
		if r.Expiry != expiry {
			continue
		}
		v := r.VolCall
		if kind == pricing.Put {
			v = r.VolPut
		}
		if v != nil {
			out = append(out, SmilePoint{Strike: r.Strike, ImpliedVol: *v})
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Strike < out[b].Strike })
	return out
}
