package pricing

import (
	"fmt"
	"math"
)

// Brent finds a root of f inside [a, b] using Brent's method: inverse
// quadratic interpolation or secant steps when they make progress, bisection
// otherwise. f(a) and f(b) must have opposite signs (or one of them be zero).
//
// Errors:
//   - ErrNumericDomain if f is NaN or infinite at either end of the bracket
//   - ErrNoRootInBracket if f does not change sign over [a, b]
//   - ErrNoConvergence if maxIter iterations were not enough to reach tol
func Brent(f func(float64) float64, a, b, tol float64, maxIter int) (float64, error) {
	fa, fb := f(a), f(b)
	if !isFinite(fa) || !isFinite(fb) {
		return 0, fmt.Errorf("%w: f(%g)=%g f(%g)=%g", ErrNumericDomain, a, fa, b, fb)
	}
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}
	if math.Signbit(fa) == math.Signbit(fb) {
		return 0, fmt.Errorf("%w: f(%g)=%g f(%g)=%g", ErrNoRootInBracket, a, fa, b, fb)
	}

	// c is the previous best bracket end, d the last step, e the step before.
	c, fc := b, fb
	var d, e float64

	for i := 0; i < maxIter; i++ {
		if math.Signbit(fb) == math.Signbit(fc) {
			c, fc = a, fa
			d = b - a
			e = d
		}
		if math.Abs(fc) < math.Abs(fb) {
			a, b, c = b, c, b
			fa, fb, fc = fb, fc, fb
		}

		tol1 := 2*machEps*math.Abs(b) + 0.5*tol
		xm := 0.5 * (c - b)
		if math.Abs(xm) <= tol1 || fb == 0 {
			return b, nil
		}

		if math.Abs(e) >= tol1 && math.Abs(fa) > math.Abs(fb) {
			var p, q float64
			s := fb / fa
			if a == c {
				// secant
				p = 2 * xm * s
				q = 1 - s
			} else {
				// inverse quadratic interpolation
				qq := fa / fc
				r := fb / fc
				p = s * (2*xm*qq*(qq-r) - (b-a)*(r-1))
				q = (qq - 1) * (r - 1) * (s - 1)
			}
			if p > 0 {
				q = -q
			}
			p = math.Abs(p)

			min1 := 3*xm*q - math.Abs(tol1*q)
			min2 := math.Abs(e * q)
			if 2*p < math.Min(min1, min2) {
				e = d
				d = p / q
			} else {
				d = xm
				e = d
			}
		} else {
			d = xm
			e = d
		}

		a, fa = b, fb
		if math.Abs(d) > tol1 {
			b += d
		} else {
			b += math.Copysign(tol1, xm)
		}
		fb = f(b)
		if !isFinite(fb) {
			return 0, fmt.Errorf("%w: f(%g)=%g", ErrNumericDomain, b, fb)
		}
	}

	return 0, fmt.Errorf("%w after %d iterations", ErrNoConvergence, maxIter)
}

const machEps = 2.220446049250313e-16

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
