package diffgrok

import "math"

const (
	macheps = 0x1p-52
)

var sqrtEps = math.Sqrt(macheps)

// luFactor computes an LU factorization with partial pivoting of the n×n
// row-major matrix a, in place. piv records the row interchanges. It returns
// false when a pivot magnitude falls below √ε·‖a‖∞, which the step kernel
// treats as a stale-Jacobian or step-too-large signal.
func luFactor(a []float64, n int, piv []int) bool {
	var anorm float64
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < n; j++ {
			s += math.Abs(a[i*n+j])
		}
		if s > anorm {
			anorm = s
		}
	}
	tiny := sqrtEps * anorm
	for k := 0; k < n; k++ {
		p := k
		amax := math.Abs(a[k*n+k])
		for i := k + 1; i < n; i++ {
			if v := math.Abs(a[i*n+k]); v > amax {
				amax = v
				p = i
			}
		}
		if amax <= tiny || math.IsNaN(amax) {
			return false
		}
		piv[k] = p
		if p != k {
			for j := 0; j < n; j++ {
				a[k*n+j], a[p*n+j] = a[p*n+j], a[k*n+j]
			}
		}
		inv := 1 / a[k*n+k]
		for i := k + 1; i < n; i++ {
			m := a[i*n+k] * inv
			a[i*n+k] = m
			if m == 0 {
				continue
			}
			for j := k + 1; j < n; j++ {
				a[i*n+j] -= m * a[k*n+j]
			}
		}
	}
	return true
}

// luSolve solves the system given the factors and pivots produced by
// luFactor, overwriting b with the solution.
func luSolve(a []float64, n int, piv []int, b []float64) {
	for k := 0; k < n; k++ {
		if p := piv[k]; p != k {
			b[k], b[p] = b[p], b[k]
		}
		for i := k + 1; i < n; i++ {
			b[i] -= a[i*n+k] * b[k]
		}
	}
	for k := n - 1; k >= 0; k-- {
		for j := k + 1; j < n; j++ {
			b[k] -= a[k*n+j] * b[j]
		}
		b[k] /= a[k*n+k]
	}
}
