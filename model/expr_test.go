package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compileFor(t *testing.T, src string, slots map[string]int) *Program {
	t.Helper()
	p, err := compileExpr(src, func(name string) (int, bool) {
		i, ok := slots[name]
		return i, ok
	})
	require.NoError(t, err, "compiling %q", src)
	return p
}

func TestExprEval(t *testing.T) {
	slots := map[string]int{"x": 0, "y": 1, "k_1": 2}
	ws := []float64{3, 4, 0.5}

	tests := []struct {
		src  string
		want float64
	}{
		{"1 + 2 * 3", 7},
		{"(1 + 2) * 3", 9},
		{"2 ^ 3 ^ 2", 512}, // right-associative
		{"-x + y", 1},
		{"-2 ^ 2", -4}, // unary binds looser than ^
		{"x * y - k_1", 11.5},
		{"10 / 4 / 5", 0.5},
		{"1.5e2 + 2E-1", 150.2},
		{"sqrt(x * x + y * y)", 5},
		{"min(x, y) + max(x, y)", 7},
		{"atan2(0, -1)", math.Pi},
		{"pow(y, 0.5)", 2},
		{"sign(-3) * abs(-2)", -2},
		{"floor(2.7) + ceil(2.2) + round(2.5)", 8},
		{"exp(log(x))", 3},
		{"log10(100)", 2},
		{"cos(pi)", -1},
		{"log(e)", 1},
		{"sin(0) + tan(0) + asin(0) + acos(1) + atan(0)", 0},
	}
	for _, tc := range tests {
		p := compileFor(t, tc.src, slots)
		stack := make([]float64, p.Depth())
		assert.InDelta(t, tc.want, p.Eval(ws, stack), 1e-12, "%q", tc.src)
	}
}

func TestExprUnknownName(t *testing.T) {
	_, err := compileExpr("x + nope", func(string) (int, bool) { return 0, false })
	var nerr *NameError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "x", nerr.Name) // first unresolved token wins
}

func TestExprUnknownFunction(t *testing.T) {
	_, err := compileExpr("sinh(1)", func(string) (int, bool) { return 0, false })
	var nerr *NameError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "sinh", nerr.Name)
}

func TestExprSyntaxErrors(t *testing.T) {
	for _, src := range []string{"", "1 +", "(1", "1 2", "min(1)", "sqrt(1, 2)", "1..2", "* 3"} {
		_, err := compileExpr(src, func(string) (int, bool) { return 0, true })
		assert.Error(t, err, "%q", src)
	}
}

func TestExprEvalAllocFree(t *testing.T) {
	slots := map[string]int{"x": 0, "y": 1}
	p := compileFor(t, "sqrt(x * x + y * y) + min(x, y) ^ 2", slots)
	ws := []float64{3, 4}
	stack := make([]float64, p.Depth())
	allocs := testing.AllocsPerRun(100, func() {
		p.Eval(ws, stack)
	})
	assert.Zero(t, allocs)
}

func TestCompiledFunc(t *testing.T) {
	src := `
#equations:
  dx/dt = v
  dv/dt = -w2 * x - c * v + f
#expressions:
  f = amp * sin(t)
#argument: t
  start = 0
  finish = 10
  step = 0.1
#inits:
  x = 1
  v = 0
#parameters:
  c = 0.1
  amp = 2
#constants:
  w2 = 4
`
	m, err := Parse(src)
	require.NoError(t, err)
	c, err := m.Compile()
	require.NoError(t, err)

	assert.Equal(t, []string{"x", "v"}, c.StateNames())
	ws := c.NewWorkspace()
	f := c.Func(ws)

	y := []float64{0.5, -1}
	out := make([]float64, 2)
	f(math.Pi/2, y, out)
	assert.InDelta(t, -1.0, out[0], 1e-15)
	// -4*0.5 - 0.1*(-1) + 2*sin(pi/2)
	assert.InDelta(t, -2+0.1+2, out[1], 1e-12)

	allocs := testing.AllocsPerRun(100, func() {
		f(1.0, y, out)
	})
	assert.Zero(t, allocs)
}

func TestCompileUnknownIdentifierInEquation(t *testing.T) {
	src := `
#equations:
  dx/dt = -k * x
#argument: t
  start = 0
  finish = 1
  step = 0.1
`
	m, err := Parse(src)
	require.NoError(t, err)
	_, err = m.Compile()
	var nerr *NameError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "k", nerr.Name)
}

func TestExpressionsReadEarlierExpressions(t *testing.T) {
	src := `
#equations:
  dx/dt = b
#expressions:
  a = 2 * x
  b = a + 1
#argument: t
  start = 0
  finish = 1
  step = 0.1
`
	m, err := Parse(src)
	require.NoError(t, err)
	c, err := m.Compile()
	require.NoError(t, err)
	ws := c.NewWorkspace()
	f := c.Func(ws)
	out := make([]float64, 1)
	f(0, []float64{3}, out)
	assert.Equal(t, 7.0, out[0])
}
