// Package diffgrok solves initial-value problems for systems of ordinary
// differential equations, with emphasis on stiff systems, using
// Rosenbrock-Wanner linearly-implicit methods with embedded error estimation
// and adaptive step control. The model subpackage compiles a declarative
// textual model into a runnable Problem; multi-stage models are lowered into
// a Pipeline of chained solver runs.
package diffgrok

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// Config modifies solver behaviour. The zero value is completed from the
// problem tolerance by Solve; callers that need a split absolute/relative
// tolerance or cooperative cancellation fill it explicitly and use SolveWith.
type Config struct {
	AbsTol float64 `yaml:"atol"`
	RelTol float64 `yaml:"rtol"`
	// InitialStep bounds the first attempted step; zero means the output
	// grid step. Useful for problems with a fast initial transient.
	InitialStep float64 `yaml:"initialStep"`
	// MaxRejects caps consecutive step rejections at a single t.
	MaxRejects int `yaml:"maxRejects"`
	// JacInterval is the number of accepted steps one Jacobian may serve;
	// it is recomputed, even without a rejection, once more than that many
	// steps have been accepted since the last refresh.
	JacInterval int `yaml:"jacInterval"`
	// Interrupt, when non-nil, is polled at every accepted step; a true
	// return abandons the run with ErrInterrupted.
	Interrupt func() bool `yaml:"-"`
}

func (cfg *Config) fill(tol float64) {
	if cfg.AbsTol <= 0 {
		cfg.AbsTol = tol
	}
	if cfg.RelTol <= 0 {
		cfg.RelTol = tol
	}
	if cfg.MaxRejects <= 0 {
		cfg.MaxRejects = 10
	}
	if cfg.JacInterval <= 0 {
		cfg.JacInterval = 20
	}
}

// Stat accumulates run accounting over one integration.
type Stat struct {
	Nfeval    int // right-hand side evaluations
	Njeval    int // Jacobian estimates
	Ndecomp   int // LU factorizations
	Nlinsol   int // triangular solves
	Naccepted int
	Nrejected int
}

func (s *Stat) add(o Stat) {
	s.Nfeval += o.Nfeval
	s.Njeval += o.Njeval
	s.Ndecomp += o.Ndecomp
	s.Nlinsol += o.Nlinsol
	s.Naccepted += o.Naccepted
	s.Nrejected += o.Nrejected
}

// Solution holds the sampled result of an integration: the argument grid and
// one column per state component (or per declared output), in order.
type Solution struct {
	ArgName string
	Names   []string
	Arg     []float64
	Y       [][]float64
	Stat    Stat
}

// Len returns the number of samples.
func (s *Solution) Len() int { return len(s.Arg) }

// Column returns the column with the given name, or nil.
func (s *Solution) Column(name string) []float64 {
	if name == s.ArgName {
		return s.Arg
	}
	for i, n := range s.Names {
		if n == name {
			return s.Y[i]
		}
	}
	return nil
}

// controller constants (see the step-size controller notes in the README).
const (
	safety    = 0.9
	minFactor = 0.2
	maxFactor = 5.0
)

// Solve integrates the problem with the given method, sampling the solution
// on the uniform output grid defined by the problem argument.
func Solve(p *Problem, mth *Method) (*Solution, error) {
	var cfg Config
	return SolveWith(p, mth, cfg)
}

// SolveWith is Solve with explicit solver configuration.
func SolveWith(p *Problem, mth *Method, cfg Config) (*Solution, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	cfg.fill(p.Tolerance)
	return integrate(p, mth, cfg, "")
}

func integrate(p *Problem, mth *Method, cfg Config, stage string) (*Solution, error) {
	n := len(p.Initial)
	t0, t1, hout := p.Arg.Start, p.Arg.Finish, p.Arg.Step
	m := p.Arg.GridLen()

	sol := &Solution{
		ArgName: p.Arg.Name,
		Names:   p.names(),
		Arg:     make([]float64, m),
		Y:       make([][]float64, n),
	}
	for i := range sol.Y {
		sol.Y[i] = make([]float64, m)
	}

	st := newStepper(mth, p.Func, n, cfg.AbsTol, cfg.RelTol, &sol.Stat)
	copy(st.y, p.Initial)

	yprev := make([]float64, n)
	ysample := make([]float64, n)

	emit := func(k int, tk float64, y []float64) {
		sol.Arg[k] = tk
		for i := 0; i < n; i++ {
			sol.Y[i][k] = y[i]
		}
	}
	emit(0, t0, st.y)

	t := t0
	// the internal step never exceeds the output grid step
	h := math.Min(hout, t1-t0)
	if cfg.InitialStep > 0 && cfg.InitialStep < h {
		h = cfg.InitialStep
	}
	next := 1 // next output grid index
	pexp := -1 / float64(mth.embedded+1)

	st.eval(t, st.y, st.f0)
	st.refreshJac(t)
	sinceJac := 0
	rejects := 0
	retried := false // one automatic refresh+bisection before surfacing

	for next < m {
		hmin := macheps * math.Max(1, math.Abs(t))
		if h < hmin {
			return nil, &ConvergenceError{T: t, Stage: stage}
		}
		landing := false
		if t+h >= t1 {
			h = t1 - t
			landing = true
		}

		singular := !st.formW(h)
		if singular {
			if retried {
				return nil, &SingularError{T: t, Stage: stage}
			}
			st.refreshJac(t)
			sinceJac = 0
			h *= 0.5
			retried = true
			continue
		}

		errNorm := st.step(t, h)
		if math.IsNaN(errNorm) || math.IsInf(errNorm, 0) || !finite(st.ynew) {
			if retried {
				return nil, &NumericError{T: t, Stage: stage}
			}
			st.refreshJac(t)
			sinceJac = 0
			h *= 0.5
			retried = true
			continue
		}
		retried = false

		if errNorm > 1 {
			// reject: shrink without growth and refresh J before retrying
			sol.Stat.Nrejected++
			rejects++
			if rejects > cfg.MaxRejects {
				return nil, &ConvergenceError{T: t, Stage: stage, Rejections: rejects}
			}
			h *= math.Min(1, math.Max(minFactor, safety*math.Pow(errNorm, pexp)))
			st.refreshJac(t)
			sinceJac = 0
			continue
		}

		// accept
		sol.Stat.Naccepted++
		rejects = 0
		tprev := t
		copy(yprev, st.y)
		if landing {
			t = t1
		} else {
			t += h
		}
		copy(st.y, st.ynew)

		// emit grid samples that fell inside (tprev, t] by linear
		// interpolation; the grid itself is computed from the index so it
		// cannot drift.
		ulp := 4 * macheps * math.Max(1, math.Abs(t))
		for next < m {
			tk := t0 + float64(next)*hout
			if next == m-1 {
				tk = t1
			}
			if tk > t+ulp {
				break
			}
			theta := (tk - tprev) / (t - tprev)
			floats.SubTo(ysample, st.y, yprev)
			floats.Scale(theta, ysample)
			floats.Add(ysample, yprev)
			emit(next, tk, ysample)
			next++
		}
		if next >= m {
			break
		}

		if cfg.Interrupt != nil && cfg.Interrupt() {
			return nil, ErrInterrupted
		}

		st.eval(t, st.y, st.f0)
		if !finite(st.f0) {
			return nil, &NumericError{T: t, Stage: stage}
		}
		sinceJac++
		if sinceJac > cfg.JacInterval {
			st.refreshJac(t)
			sinceJac = 0
		}

		h *= math.Min(maxFactor, math.Max(minFactor, safety*math.Pow(errNorm, pexp)))
		if h > hout {
			h = hout
		}
	}

	// the last sample is t1 exactly
	emit(m-1, t1, st.y)
	return sol, nil
}
