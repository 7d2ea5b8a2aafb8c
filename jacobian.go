package diffgrok

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// numjac estimates the Jacobian ∂f/∂y at (t, y) by one-sided finite
// differences, one column per state. f0 must hold f(t, y); it is reused
// unchanged across columns, so a full estimate costs n evaluations beyond
// the baseline. y is perturbed and restored in place. ftmp is scratch of
// length n.
func numjac(f Func, t float64, y, f0, ftmp []float64, dst *mat.Dense) {
	n := len(y)
	d := dst.RawMatrix()
	for j := 0; j < n; j++ {
		yj := y[j]
		delta := sqrtEps * math.Max(math.Abs(yj), 1)
		if yj < 0 {
			delta = -delta
		}
		y[j] = yj + delta
		f(t, y, ftmp)
		y[j] = yj
		inv := 1 / delta
		for i := 0; i < n; i++ {
			d.Data[i*d.Stride+j] = (ftmp[i] - f0[i]) * inv
		}
	}
}
