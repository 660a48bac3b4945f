package surface

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/contactkeval/option-volsurface/internal/logger"
)

// MinSamples is the fewest distinct, non-collinear samples a cubic surface
// can be built from.
const MinSamples = 4

// ErrInsufficientSamples is returned together with an all-NaN grid when the
// samples cannot support cubic interpolation.
var ErrInsufficientSamples = errors.New("insufficient samples for cubic interpolation")

// Grid is a regular surface in meshgrid layout: row i holds moneyness
// MAxis[i], column j holds time to maturity TAxis[j]. IV cells outside the
// convex hull of the samples are NaN.
type Grid struct {
	TAxis []float64
	MAxis []float64
	T     [][]float64
	M     [][]float64
	IV    [][]float64
}

// MarshalJSON writes the axes and the volatility matrix, with NaN cells as
// null.
func (g *Grid) MarshalJSON() ([]byte, error) {
	iv := make([][]*float64, len(g.IV))
	for i, row := range g.IV {
		iv[i] = nullable(row)
	}
	return json.Marshal(struct {
		TAxis []*float64   `json:"time_to_maturity"`
		MAxis []*float64   `json:"moneyness"`
		IV    [][]*float64 `json:"implied_vol"`
	}{nullable(g.TAxis), nullable(g.MAxis), iv})
}

func nullable(row []float64) []*float64 {
	out := make([]*float64, len(row))
	for i, v := range row {
		if !math.IsNaN(v) {
			v := v
			out[i] = &v
		}
	}
	return out
}

// Defined counts the cells holding a value.
func (g *Grid) Defined() int {
	n := 0
	for _, row := range g.IV {
		for _, v := range row {
			if !math.IsNaN(v) {
				n++
			}
		}
	}
	return n
}

// BuildGrid interpolates the samples onto a resolution x resolution grid
// spanning their time to maturity and moneyness ranges.
//
// Samples sharing a coordinate are averaged first. When fewer than
// MinSamples distinct points remain, or they are all collinear, the grid is
// still returned with every cell NaN, alongside ErrInsufficientSamples.
func BuildGrid(points []Point, resolution int) (*Grid, error) {
	if resolution < 2 {
		return nil, fmt.Errorf("grid resolution %d: need at least 2 points per axis", resolution)
	}

	samples := Aggregate(points)
	ts := make([]float64, len(samples))
	ms := make([]float64, len(samples))
	vs := make([]float64, len(samples))
	for i, p := range samples {
		ts[i], ms[i], vs[i] = p.T, p.M, p.Vol
	}

	grid := newGrid(ts, ms, resolution)
	if len(samples) < MinSamples {
		logger.Warnf("surface: %d distinct samples, need %d", len(samples), MinSamples)
		return grid, fmt.Errorf("%w: %d distinct points", ErrInsufficientSamples, len(samples))
	}

	tMin, tMax := floats.Min(ts), floats.Max(ts)
	mMin, mMax := floats.Min(ms), floats.Max(ms)
	if tMax == tMin || mMax == mMin {
		return grid, fmt.Errorf("%w: samples are collinear", ErrInsufficientSamples)
	}

	// Triangulate on unit-scaled coordinates so both axes weigh the same.
	xs := make([]float64, len(samples))
	ys := make([]float64, len(samples))
	for i := range samples {
		xs[i] = (ts[i] - tMin) / (tMax - tMin)
		ys[i] = (ms[i] - mMin) / (mMax - mMin)
	}
	tris := triangulate(xs, ys)
	if len(tris) == 0 {
		return grid, fmt.Errorf("%w: samples are collinear", ErrInsufficientSamples)
	}

	interp := newCubicInterpolator(xs, ys, vs, tris)
	for i := range grid.IV {
		for j := range grid.IV[i] {
			x := (grid.T[i][j] - tMin) / (tMax - tMin)
			y := (grid.M[i][j] - mMin) / (mMax - mMin)
			grid.IV[i][j] = interp.At(x, y)
		}
	}

	logger.Debugf("surface: %d samples, %d triangles, %d/%d cells defined",
		len(samples), len(tris), grid.Defined(), resolution*resolution)
	return grid, nil
}

// newGrid lays out the axes and fills IV with NaN.
func newGrid(ts, ms []float64, resolution int) *Grid {
	g := &Grid{
		TAxis: make([]float64, resolution),
		MAxis: make([]float64, resolution),
		T:     make([][]float64, resolution),
		M:     make([][]float64, resolution),
		IV:    make([][]float64, resolution),
	}
	if len(ts) > 0 {
		floats.Span(g.TAxis, floats.Min(ts), floats.Max(ts))
		floats.Span(g.MAxis, floats.Min(ms), floats.Max(ms))
	} else {
		for i := range g.TAxis {
			g.TAxis[i], g.MAxis[i] = math.NaN(), math.NaN()
		}
	}

	for i := 0; i < resolution; i++ {
		g.T[i] = make([]float64, resolution)
		g.M[i] = make([]float64, resolution)
		g.IV[i] = make([]float64, resolution)
		for j := 0; j < resolution; j++ {
			g.T[i][j] = g.TAxis[j]
			g.M[i][j] = g.MAxis[i]
			g.IV[i][j] = math.NaN()
		}
	}
	return g
}
