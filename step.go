package diffgrok

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// stepper holds the preallocated workspace for one stage of integration.
// Nothing here allocates after newStepper returns.
type stepper struct {
	mth *Method
	f   Func
	n   int

	atol, rtol float64

	y    []float64 // current state
	ynew []float64
	k    [][]float64 // stage vectors K₁..K_s
	ysum []float64   // stage argument y + Σa·K
	rhs  []float64
	f0   []float64 // f(t, y), shared with the Jacobian baseline
	ftmp []float64
	ft   []float64 // ∂f/∂t estimate, used only when the tableau carries dfdt

	jac *mat.Dense
	w   *mat.Dense
	piv []int

	stat *Stat
}

func newStepper(mth *Method, f Func, n int, atol, rtol float64, stat *Stat) *stepper {
	st := &stepper{
		mth:  mth,
		f:    f,
		n:    n,
		atol: atol,
		rtol: rtol,
		y:    make([]float64, n),
		ynew: make([]float64, n),
		k:    make([][]float64, mth.stages),
		ysum: make([]float64, n),
		rhs:  make([]float64, n),
		f0:   make([]float64, n),
		ftmp: make([]float64, n),
		jac:  mat.NewDense(n, n, nil),
		w:    mat.NewDense(n, n, nil),
		piv:  make([]int, n),
		stat: stat,
	}
	for i := range st.k {
		st.k[i] = make([]float64, n)
	}
	if mth.dfdt != nil {
		st.ft = make([]float64, n)
	}
	return st
}

// eval computes f(t, y) into dst with accounting.
func (st *stepper) eval(t float64, y, dst []float64) {
	st.f(t, y, dst)
	st.stat.Nfeval++
}

// refreshJac recomputes the Jacobian at (t, y) reusing f0 as the baseline.
func (st *stepper) refreshJac(t float64) {
	numjac(st.f, t, st.y, st.f0, st.ftmp, st.jac)
	st.stat.Nfeval += st.n
	st.stat.Njeval++
}

// formW assembles W = (1/(γh))·I − J and factors it. A false return means
// the factorization hit the singularity threshold.
func (st *stepper) formW(h float64) bool {
	n := st.n
	jd := st.jac.RawMatrix()
	wd := st.w.RawMatrix()
	diag := 1 / (st.mth.gamma * h)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			wd.Data[i*wd.Stride+j] = -jd.Data[i*jd.Stride+j]
		}
		wd.Data[i*wd.Stride+i] += diag
	}
	st.stat.Ndecomp++
	return luFactor(wd.Data, n, st.piv)
}

// estimateFt forward-differences f in t for the non-autonomous correction.
func (st *stepper) estimateFt(t, h float64) {
	delta := sqrtEps * math.Max(math.Abs(t), math.Abs(h))
	if delta == 0 {
		delta = sqrtEps
	}
	st.eval(t+delta, st.y, st.ft)
	floats.Sub(st.ft, st.f0)
	floats.Scale(1/delta, st.ft)
}

// step attempts one ROW step of size h from (t, y). It assumes f0 holds
// f(t, y) and W has been formed and factored for this h. It returns the
// weighted RMS error norm of the embedded estimate; the caller accepts the
// step iff the norm is at most 1.
func (st *stepper) step(t, h float64) float64 {
	mth := st.mth
	n := st.n
	wd := st.w.RawMatrix()
	if mth.dfdt != nil {
		st.estimateFt(t, h)
	}
	for i := 0; i < mth.stages; i++ {
		if i == 0 {
			copy(st.rhs, st.f0)
		} else {
			copy(st.ysum, st.y)
			for j := 0; j < i; j++ {
				floats.AddScaled(st.ysum, mth.a[i][j], st.k[j])
			}
			st.eval(t+mth.alphaSum[i]*h, st.ysum, st.rhs)
			for j := 0; j < i; j++ {
				floats.AddScaled(st.rhs, mth.c[i][j]/h, st.k[j])
			}
		}
		if mth.dfdt != nil && mth.dfdt[i] != 0 {
			floats.AddScaled(st.rhs, h*mth.dfdt[i], st.ft)
		}
		luSolve(wd.Data, n, st.piv, st.rhs)
		st.stat.Nlinsol++
		copy(st.k[i], st.rhs)
	}

	copy(st.ynew, st.y)
	for i := 0; i < mth.stages; i++ {
		floats.AddScaled(st.ynew, mth.m[i], st.k[i])
	}

	// weighted RMS of y_new − ŷ over atol + rtol·max(|y|, |y_new|)
	var sum float64
	for i := 0; i < n; i++ {
		var e float64
		for j := 0; j < mth.stages; j++ {
			e += (mth.m[j] - mth.mhat[j]) * st.k[j][i]
		}
		sc := st.atol + st.rtol*math.Max(math.Abs(st.y[i]), math.Abs(st.ynew[i]))
		r := e / sc
		sum += r * r
	}
	return math.Sqrt(sum / float64(n))
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
