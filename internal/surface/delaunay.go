package surface

import (
	"math"

	"github.com/fogleman/delaunay"
)

// triangulate returns the Delaunay triangulation of the points (xs[i], ys[i])
// as counter-clockwise index triples. The triangles cover the convex hull of
// the points exactly. Collinear input yields no triangles.
func triangulate(xs, ys []float64) [][3]int {
	n := len(xs)
	if n < 3 {
		return nil
	}

	pts := make([]delaunay.Point, n)
	for i := range xs {
		pts[i] = delaunay.Point{X: xs[i], Y: ys[i]}
	}
	tri, err := delaunay.Triangulate(pts)
	if err != nil {
		return nil
	}

	var out [][3]int
	for k := 0; k+2 < len(tri.Triangles); k += 3 {
		a, b, c := tri.Triangles[k], tri.Triangles[k+1], tri.Triangles[k+2]
		o := orient(xs, ys, a, b, c)
		if math.Abs(o) < 1e-14 {
			continue
		}
		if o < 0 {
			b, c = c, b
		}
		out = append(out, [3]int{a, b, c})
	}
	return out
}

// orient is twice the signed area of (a, b, c); positive when
// counter-clockwise.
func orient(px, py []float64, a, b, c int) float64 {
	return (px[b]-px[a])*(py[c]-py[a]) - (py[b]-py[a])*(px[c]-px[a])
}
