package privacy

import (
	"math"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

const (
	brentTol     = 2e-12
	brentMaxIter = 200
)

// brentRoot finds a root of f in [a, b] with Brent's method. f(a) and f(b)
// must have opposite signs.
func brentRoot(f func(float64) float64, a, b float64) (float64, error) {
	fa, fb := f(a), f(b)
	if fa == 0 {
		return a, nil
	}
	if fb == 0 {
		return b, nil
	}
	if math.Signbit(fa) == math.Signbit(fb) {
		return 0, errors.NewValueError("brentRoot", "root is not bracketed by the search interval")
	}

	c, fc := a, fa
	d := b - a
	e := d
	for iter := 0; iter < brentMaxIter; iter++ {
		if math.Signbit(fb) == math.Signbit(fc) {
			c, fc = a, fa
			d = b - a
			e = d
		}
		if math.Abs(fc) < math.Abs(fb) {
			a, b, c = b, c, b
			fa, fb, fc = fb, fc, fb
		}

		tol := 2*math.SmallestNonzeroFloat64 + 0.5*brentTol*math.Max(1, math.Abs(b))
		m := 0.5 * (c - b)
		if math.Abs(m) <= tol || fb == 0 {
			return b, nil
		}

		if math.Abs(e) >= tol && math.Abs(fa) > math.Abs(fb) {
			var p, q float64
			s := fb / fa
			if a == c {
				// secant
				p = 2 * m * s
				q = 1 - s
			} else {
				// inverse quadratic interpolation
				qa := fa / fc
				r := fb / fc
				p = s * (2*m*qa*(qa-r) - (b-a)*(r-1))
				q = (qa - 1) * (r - 1) * (s - 1)
			}
			if p > 0 {
				q = -q
			} else {
				p = -p
			}
			if 2*p < math.Min(3*m*q-math.Abs(tol*q), math.Abs(e*q)) {
				e = d
				d = p / q
			} else {
				d = m
				e = m
			}
		} else {
			d = m
			e = m
		}

		a, fa = b, fb
		if math.Abs(d) > tol {
			b += d
		} else if m > 0 {
			b += tol
		} else {
			b -= tol
		}
		fb = f(b)
	}
	return b, errors.NewNumericalInstabilityError("brentRoot", []float64{b, fb}, brentMaxIter)
}
