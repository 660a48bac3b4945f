package surface

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// cubicInterpolator is a piecewise cubic Bezier-triangle interpolant over
// a triangulation. Every patch matches the sample values at its corners and
// the estimated gradients along its edges, so the surface is continuous and
// reproduces linear data exactly.
type cubicInterpolator struct {
	xs, ys, fs []float64
	tris       [][3]int
	patches    [][10]float64
}

func newCubicInterpolator(xs, ys, fs []float64, tris [][3]int) *cubicInterpolator {
	gx, gy := vertexGradients(xs, ys, fs, tris)
	ci := &cubicInterpolator{xs: xs, ys: ys, fs: fs, tris: tris, patches: make([][10]float64, len(tris))}
	for k, t := range tris {
		ci.patches[k] = controlNet(xs, ys, fs, gx, gy, t)
	}
	return ci
}

// At evaluates the interpolant, returning NaN outside the triangulation.
func (ci *cubicInterpolator) At(x, y float64) float64 {
	const eps = 1e-9
	for k, t := range ci.tris {
		l1, l2, l3, ok := barycentric(ci.xs, ci.ys, t, x, y)
		if !ok || l1 < -eps || l2 < -eps || l3 < -eps {
			continue
		}
		return evalPatch(ci.patches[k], l1, l2, l3)
	}
	return math.NaN()
}

func barycentric(xs, ys []float64, t [3]int, x, y float64) (l1, l2, l3 float64, ok bool) {
	x1, y1 := xs[t[0]], ys[t[0]]
	x2, y2 := xs[t[1]], ys[t[1]]
	x3, y3 := xs[t[2]], ys[t[2]]
	det := (y2-y3)*(x1-x3) + (x3-x2)*(y1-y3)
	if det == 0 {
		return 0, 0, 0, false
	}
	l1 = ((y2-y3)*(x-x3) + (x3-x2)*(y-y3)) / det
	l2 = ((y3-y1)*(x-x3) + (x1-x3)*(y-y3)) / det
	l3 = 1 - l1 - l2
	return l1, l2, l3, true
}

// controlNet builds the ten ordinates of a cubic Bezier triangle in the
// order b300 b030 b003 b210 b201 b120 b021 b102 b012 b111.
func controlNet(xs, ys, fs, gx, gy []float64, t [3]int) [10]float64 {
	i, j, k := t[0], t[1], t[2]
	along := func(from, to int) float64 {
		return fs[from] + (gx[from]*(xs[to]-xs[from])+gy[from]*(ys[to]-ys[from]))/3
	}

	var b [10]float64
	b[0], b[1], b[2] = fs[i], fs[j], fs[k]
	b[3] = along(i, j)
	b[4] = along(i, k)
	b[5] = along(j, i)
	b[6] = along(j, k)
	b[7] = along(k, i)
	b[8] = along(k, j)

	e := b[3] + b[4] + b[5] + b[6] + b[7] + b[8]
	v := b[0] + b[1] + b[2]
	b[9] = e/4 - v/6
	return b
}

func evalPatch(b [10]float64, u, v, w float64) float64 {
	return b[0]*u*u*u + b[1]*v*v*v + b[2]*w*w*w +
		3*(b[3]*u*u*v+b[4]*u*u*w+b[5]*u*v*v+b[6]*v*v*w+b[7]*u*w*w+b[8]*v*w*w) +
		6*b[9]*u*v*w
}

// maxFitCond bounds the 2-norm condition number of a quadratic gradient
// fit on radius-scaled offsets.
const maxFitCond = 1e4

// vertexGradients estimates the gradient at every vertex by a least-squares
// fit. A quadratic fit over the vertex's two-ring is tried first, since the
// one-ring of a hull vertex lies on one side of it. When that system is
// short or badly conditioned, a plane is fitted to the one-ring. Vertices
// where neither is solvable get a zero gradient.
func vertexGradients(xs, ys, fs []float64, tris [][3]int) (gx, gy []float64) {
	n := len(xs)
	gx, gy = make([]float64, n), make([]float64, n)

	ring := make([]map[int]struct{}, n)
	for i := range ring {
		ring[i] = map[int]struct{}{}
	}
	for _, t := range tris {
		for a := 0; a < 3; a++ {
			for b := 0; b < 3; b++ {
				if a != b {
					ring[t[a]][t[b]] = struct{}{}
				}
			}
		}
	}

	offsets := func(i int, set map[int]struct{}) (dx, dy, df []float64) {
		for j := range set {
			dx = append(dx, xs[j]-xs[i])
			dy = append(dy, ys[j]-ys[i])
			df = append(df, fs[j]-fs[i])
		}
		return dx, dy, df
	}

	for i := 0; i < n; i++ {
		twoRing := map[int]struct{}{}
		for j := range ring[i] {
			twoRing[j] = struct{}{}
			for k := range ring[j] {
				twoRing[k] = struct{}{}
			}
		}
		delete(twoRing, i)

		if g, ok := fitGradient(offsets(i, twoRing)); ok {
			gx[i], gy[i] = g[0], g[1]
			continue
		}
		if g, ok := fitPlane(offsets(i, ring[i])); ok {
			gx[i], gy[i] = g[0], g[1]
		}
	}
	return gx, gy
}

// fitGradient fits f = gx*dx + gy*dy + a*dx^2/2 + b*dx*dy + c*dy^2/2 and
// returns (gx, gy). It needs more rows than unknowns and a well conditioned
// system.
func fitGradient(dx, dy, df []float64) ([2]float64, bool) {
	return solveGradient(dx, dy, df, 5, maxFitCond)
}

// fitPlane fits f = gx*dx + gy*dy.
func fitPlane(dx, dy, df []float64) ([2]float64, bool) {
	return solveGradient(dx, dy, df, 2, math.Inf(1))
}

func solveGradient(dx, dy, df []float64, cols int, maxCond float64) ([2]float64, bool) {
	rows := len(df)
	if rows < cols || (cols > 2 && rows == cols) {
		return [2]float64{}, false
	}

	// Offsets are scaled by the neighbourhood radius so the linear and
	// quadratic columns are of the same order.
	h := 0.0
	for r := range dx {
		h = math.Max(h, math.Hypot(dx[r], dy[r]))
	}
	if h == 0 {
		return [2]float64{}, false
	}

	a := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		x, y := dx[r]/h, dy[r]/h
		a.Set(r, 0, x)
		a.Set(r, 1, y)
		if cols == 5 {
			a.Set(r, 2, x*x/2)
			a.Set(r, 3, x*y)
			a.Set(r, 4, y*y/2)
		}
	}
	if c := mat.Cond(a, 2); math.IsInf(c, 1) || c > maxCond {
		return [2]float64{}, false
	}
	b := mat.NewVecDense(rows, append([]float64{}, df...))

	var x mat.VecDense
	if err := x.SolveVec(a, b); err != nil {
		return [2]float64{}, false
	}
	g := [2]float64{x.AtVec(0) / h, x.AtVec(1) / h}
	if !finite(g[0]) || !finite(g[1]) {
		return [2]float64{}, false
	}
	return g, true
}
