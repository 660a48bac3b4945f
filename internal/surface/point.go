// Package surface turns a volatility table into a regular
// (time to maturity, moneyness) grid for plotting.
package surface

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/contactkeval/option-volsurface/internal/logger"
	"github.com/contactkeval/option-volsurface/internal/volatility"
)

// Point is one implied volatility sample on the surface.
type Point struct {
	T   float64 `json:"time_to_maturity"`
	M   float64 `json:"moneyness"` // strike / underlying price
	Vol float64 `json:"implied_vol"`
}

// PointsFromRecords places every record with a volatility on the surface.
// The call volatility is used where present, else the put volatility.
// Records without either side, with an unreadable expiry or already
// expired are skipped.
func PointsFromRecords(records []volatility.Record, underlyingPrice float64, valuation time.Time) []Point {
	if !(underlyingPrice > 0) {
		return nil
	}
	points := make([]Point, 0, len(records))
	for _, r := range records {
		vol := r.VolCall
		if vol == nil {
			vol = r.VolPut
		}
		if vol == nil {
			continue
		}
		expiry, err := time.Parse(volatility.ExpiryLayout, r.Expiry)
		if err != nil {
			logger.Debugf("skipping record with expiry %q: %v", r.Expiry, err)
			continue
		}
		t := volatility.TimeToMaturity(expiry, valuation)
		if t <= 0 {
			continue
		}
		points = append(points, Point{T: t, M: r.Strike / underlyingPrice, Vol: *vol})
	}
	return points
}

// Aggregate merges samples sharing an exact (T, M) coordinate into one
// point carrying their mean volatility. Non-finite samples are dropped.
// The result is sorted by T then M.
func Aggregate(points []Point) []Point {
	type coord struct{ t, m float64 }
	groups := map[coord]stats.Float64Data{}
	var order []coord

	for _, p := range points {
		if !finite(p.T) || !finite(p.M) || !finite(p.Vol) {
			continue
		}
		c := coord{p.T, p.M}
		if _, ok := groups[c]; !ok {
			order = append(order, c)
		}
		groups[c] = append(groups[c], p.Vol)
	}

	out := make([]Point, 0, len(order))
	for _, c := range order {
		mean, err := stats.Mean(groups[c])
		if err != nil {
			continue
		}
		out = append(out, Point{T: c.t, M: c.m, Vol: mean})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].T != out[b].T {
			return out[a].T < out[b].T
		}
		return out[a].M < out[b].M
	})
	return out
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
