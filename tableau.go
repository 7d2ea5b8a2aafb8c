package diffgrok

import "math"

// Method is a Rosenbrock-Wanner scheme. The coefficients are given in the
// standard (α, Γ, b, b̂) form of Hairer & Wanner IV.7 and transformed once,
// at package init, into the implementation form consumed by the step kernel:
//
//	(1/(γh)·I − J)·Kᵢ = f(t+αᵢh, y+ΣaᵢⱼKⱼ) + (1/h)·Σcᵢⱼ·Kⱼ [+ h·dᵢ·∂f/∂t]
//	y₁ = y + Σmᵢ·Kᵢ,  ŷ = y + Σm̂ᵢ·Kᵢ
//
// with a = αΓ⁻¹, C = −(strict Γ⁻¹), m = bᵀΓ⁻¹, m̂ = b̂ᵀΓ⁻¹. Only the tableau
// differs between methods; the step body is shared.
type Method struct {
	Name  string
	Order int

	stages   int
	embedded int
	gamma    float64

	// standard form
	alpha [][]float64
	g     [][]float64
	b     []float64
	bhat  []float64

	// ∂f/∂t stage coefficients in implementation form; nil for methods run
	// in autonomous form.
	dfdt []float64

	// implementation form, derived
	a        [][]float64
	c        [][]float64
	m        []float64
	mhat     []float64
	alphaSum []float64
}

// Supplied schemes. MRT is the Shampine–Reichelt modified Rosenbrock triple
// (the ode23s pair) with γ chosen for L-stability; ROS3PRw and ROS34PRw are
// the Rang W-method pairs, which keep their order when J is only an
// approximation of the true Jacobian.
var (
	MRT      = newMRT()
	ROS3PRw  = newROS3PRw()
	ROS34PRw = newROS34PRw()
)

// Methods lists the supplied schemes by lower-case name.
func Methods() map[string]*Method {
	return map[string]*Method{
		"mrt":      MRT,
		"ros3prw":  ROS3PRw,
		"ros34prw": ROS34PRw,
	}
}

func newMRT() *Method {
	d := 1 / (2 + math.Sqrt2)
	e32 := 6 + math.Sqrt2
	m := &Method{
		Name:     "MRT",
		Order:    3,
		stages:   3,
		embedded: 2,
		gamma:    d,
		alpha: [][]float64{
			{},
			{0.5},
			{0, 1},
		},
		g: [][]float64{
			{d},
			{-d, d},
			{(e32 - 2) * d, -e32 * d, d},
		},
		b:    []float64{0, 1, 0},
		bhat: []float64{-1. / 6., 4. / 3., -1. / 6.},
		dfdt: []float64{d, 0, d},
	}
	m.derive()
	return m
}

// Rang, J. Comput. Appl. Math. 286 (2015).
func newROS3PRw() *Method {
	const g = 7.8867513459481287e-01
	m := &Method{
		Name:     "ROS3PRw",
		Order:    3,
		stages:   3,
		embedded: 2,
		gamma:    g,
		alpha: [][]float64{
			{},
			{2.3660254037844388e+00},
			{5.0000000000000000e-01, 7.6794919243112270e-01},
		},
		g: [][]float64{
			{g},
			{-2.3660254037844388e+00, g},
			{-8.6791218280355165e-01, -8.7306695894642317e-01, g},
		},
		b:    []float64{5.0544867840851759e-01, -1.1571687603637559e-01, 6.1026819762785800e-01},
		bhat: []float64{2.8973180237214197e-01, 1.0000000000000000e-01, 6.1026819762785800e-01},
	}
	m.derive()
	return m
}

// Rang & Angermann stiffly accurate 4-stage W-scheme.
func newROS34PRw() *Method {
	const g = 4.3586652150845900e-01
	m := &Method{
		Name:     "ROS34PRw",
		Order:    4,
		stages:   4,
		embedded: 3,
		gamma:    g,
		alpha: [][]float64{
			{},
			{8.7173304301691801e-01},
			{8.4457060015369423e-01, -1.1299064236484185e-01},
			{0, 0, 1},
		},
		g: [][]float64{
			{g},
			{-8.7173304301691801e-01, g},
			{-9.0338057013044082e-01, 5.4180672388095326e-02, g},
			{2.4212380706095346e-01, -1.2232505839045147e+00, 5.4526025533510214e-01, g},
		},
		b:    []float64{2.4212380706095346e-01, -1.2232505839045147e+00, 1.5452602553351020e+00, 4.3586652150845900e-01},
		bhat: []float64{3.7810903145819369e-01, -9.6042292212423178e-02, 5.0000000000000000e-01, 2.1793326075422950e-01},
	}
	m.derive()
	return m
}

// derive computes the implementation-form coefficients from the standard
// form. ginv is Γ⁻¹, obtained by forward substitution on the lower
// triangular Γ.
func (mth *Method) derive() {
	s := mth.stages
	ginv := make([][]float64, s)
	for i := range ginv {
		ginv[i] = make([]float64, s)
	}
	for k := 0; k < s; k++ {
		ginv[k][k] = 1 / mth.gamma
		for i := k + 1; i < s; i++ {
			var sum float64
			for j := k; j < i; j++ {
				sum += mth.g[i][j] * ginv[j][k]
			}
			ginv[i][k] = -sum / mth.gamma
		}
	}

	mth.a = make([][]float64, s)
	mth.c = make([][]float64, s)
	mth.alphaSum = make([]float64, s)
	for i := 0; i < s; i++ {
		mth.a[i] = make([]float64, i)
		mth.c[i] = make([]float64, i)
		for j := 0; j < i; j++ {
			var sum float64
			for k := j; k < i; k++ {
				sum += mth.alpha[i][k] * ginv[k][j]
			}
			mth.a[i][j] = sum
			mth.c[i][j] = -ginv[i][j]
		}
		for _, v := range mth.alpha[i] {
			mth.alphaSum[i] += v
		}
	}

	mth.m = make([]float64, s)
	mth.mhat = make([]float64, s)
	for j := 0; j < s; j++ {
		var mj, mhj float64
		for i := j; i < s; i++ {
			mj += mth.b[i] * ginv[i][j]
			mhj += mth.bhat[i] * ginv[i][j]
		}
		mth.m[j] = mj
		mth.mhat[j] = mhj
	}
}
