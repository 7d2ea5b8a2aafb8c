package diffgrok

import (
	"math"
	"testing"
)

// Order conditions in standard ROW form: consistency Σb = 1 and, with
// βᵢ = Σⱼαᵢⱼ + Σⱼγᵢⱼ (diagonal included), the order-2 condition b·β = 1/2.
// Both pairs of weights of every supplied tableau satisfy them.
func TestTableauOrderConditions(t *testing.T) {
	for _, mth := range []*Method{MRT, ROS3PRw, ROS34PRw} {
		t.Run(mth.Name, func(t *testing.T) {
			s := mth.stages
			beta := make([]float64, s)
			for i := 0; i < s; i++ {
				for _, v := range mth.alpha[i] {
					beta[i] += v
				}
				for _, v := range mth.g[i] {
					beta[i] += v
				}
			}
			var sb, sbhat, b2, bhat2 float64
			for i := 0; i < s; i++ {
				sb += mth.b[i]
				sbhat += mth.bhat[i]
				b2 += mth.b[i] * beta[i]
				bhat2 += mth.bhat[i] * beta[i]
			}
			if math.Abs(sb-1) > 1e-12 {
				t.Errorf("Σb = %.16g, want 1", sb)
			}
			if math.Abs(sbhat-1) > 1e-12 {
				t.Errorf("Σb̂ = %.16g, want 1", sbhat)
			}
			if math.Abs(b2-0.5) > 1e-12 {
				t.Errorf("b·β = %.16g, want 1/2", b2)
			}
			if math.Abs(bhat2-0.5) > 1e-12 {
				t.Errorf("b̂·β = %.16g, want 1/2", bhat2)
			}
		})
	}
}

func TestTableauDerivedForm(t *testing.T) {
	for _, mth := range []*Method{MRT, ROS3PRw, ROS34PRw} {
		t.Run(mth.Name, func(t *testing.T) {
			s := mth.stages
			if mth.gamma <= 0 {
				t.Fatal("γ must be positive")
			}
			if len(mth.m) != s || len(mth.mhat) != s || len(mth.alphaSum) != s {
				t.Fatal("derived coefficient lengths")
			}
			var differs bool
			for i := 0; i < s; i++ {
				for j := 0; j < i; j++ {
					for _, v := range []float64{mth.a[i][j], mth.c[i][j]} {
						if math.IsNaN(v) || math.IsInf(v, 0) {
							t.Fatalf("non-finite derived coefficient at stage %d", i)
						}
					}
				}
				if mth.m[i] != mth.mhat[i] {
					differs = true
				}
			}
			if !differs {
				t.Error("embedded weights coincide with the solution weights; no error estimate")
			}
			if mth.embedded >= mth.Order {
				t.Error("embedded order must be below the solution order")
			}
		})
	}
}

// The derived implementation form must reproduce the standard form: applying
// the forward transform u = Γk to random stage data and running it through
// a = αΓ⁻¹ and m must land on the same stage arguments and solution update.
// C is not checked here.
func TestTableauTransformConsistency(t *testing.T) {
	for _, mth := range []*Method{MRT, ROS3PRw, ROS34PRw} {
		t.Run(mth.Name, func(t *testing.T) {
			s := mth.stages
			// deterministic pseudo-random stage scalars
			k := make([]float64, s)
			for i := range k {
				k[i] = math.Sin(float64(3*i+1)) + 0.1
			}
			u := make([]float64, s)
			for i := 0; i < s; i++ {
				for j := 0; j <= i; j++ {
					u[i] += mth.g[i][j] * k[j]
				}
			}
			// stage argument sums must agree: Σαᵢⱼkⱼ == Σaᵢⱼuⱼ
			for i := 0; i < s; i++ {
				var viaAlpha, viaA float64
				for j := 0; j < i; j++ {
					viaAlpha += mth.alpha[i][j] * k[j]
					viaA += mth.a[i][j] * u[j]
				}
				if math.Abs(viaAlpha-viaA) > 1e-12 {
					t.Errorf("stage %d argument mismatch: %g vs %g", i, viaAlpha, viaA)
				}
			}
			// solution update must agree: Σbᵢkᵢ == Σmᵢuᵢ
			var viaB, viaM float64
			for i := 0; i < s; i++ {
				viaB += mth.b[i] * k[i]
				viaM += mth.m[i] * u[i]
			}
			if math.Abs(viaB-viaM) > 1e-12 {
				t.Errorf("solution update mismatch: %g vs %g", viaB, viaM)
			}
		})
	}
}

func TestMethodsRegistry(t *testing.T) {
	reg := Methods()
	for name, mth := range map[string]*Method{"mrt": MRT, "ros3prw": ROS3PRw, "ros34prw": ROS34PRw} {
		if reg[name] != mth {
			t.Errorf("registry entry %q missing or wrong", name)
		}
	}
}
