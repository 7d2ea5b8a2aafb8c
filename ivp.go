package diffgrok

import (
	"math"
	"strconv"
)

// Arg describes the independent variable of a problem: its name, the
// integration range and the output grid step. Step is the interval between
// returned samples, not the internal integration step.
type Arg struct {
	Name   string
	Start  float64
	Finish float64
	Step   float64
}

// Span returns the length of the integration interval.
func (a Arg) Span() float64 { return a.Finish - a.Start }

// GridLen returns the number of output samples for the range and step.
func (a Arg) GridLen() int {
	return int(a.Span()/a.Step+0.5) + 1
}

// Func computes the right-hand side f(t, y) of the system, writing the
// result into dydt. Implementations must not allocate and must be pure
// aside from writing dydt.
type Func func(t float64, y, dydt []float64)

// Problem is an initial-value problem descriptor. The integrator borrows it
// for the duration of one Solve call and retains no reference afterwards.
type Problem struct {
	Name      string
	Arg       Arg
	Initial   []float64
	Func      Func
	Tolerance float64
	ColNames  []string
}

func (p *Problem) validate() error {
	n := len(p.Initial)
	if n < 1 {
		return configErrorf("empty initial state")
	}
	if p.Func == nil {
		return configErrorf("nil right-hand side")
	}
	if len(p.ColNames) != 0 && len(p.ColNames) != n {
		return configErrorf("%d column names for %d states", len(p.ColNames), n)
	}
	if p.Arg.Start >= p.Arg.Finish {
		return configErrorf("argument start %g must precede finish %g", p.Arg.Start, p.Arg.Finish)
	}
	if p.Arg.Step <= 0 {
		return configErrorf("argument step must be positive, got %g", p.Arg.Step)
	}
	if p.Arg.Step > p.Arg.Span() {
		return configErrorf("argument step %g exceeds range %g", p.Arg.Step, p.Arg.Span())
	}
	if !(p.Tolerance > 0 && p.Tolerance < 1) {
		return configErrorf("tolerance must be in (0, 1), got %g", p.Tolerance)
	}
	for i, v := range p.Initial {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return configErrorf("initial state %d is not finite", i)
		}
	}
	return nil
}

func (p *Problem) names() []string {
	if len(p.ColNames) == len(p.Initial) {
		return p.ColNames
	}
	names := make([]string, len(p.Initial))
	for i := range names {
		names[i] = "y" + strconv.Itoa(i)
	}
	return names
}
