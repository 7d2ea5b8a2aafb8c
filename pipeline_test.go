package diffgrok

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datagrok-ai/DiffGrok/model"
)

const gaSource = `
#name: GA-production
#equations:
  dX/dt = rate * X
  dS/dt = -gamma * rate * X - lambda * X
  dP/dt = alpha * rate * X + beta * X
#expressions:
  rate = mu * S / (K + S)
#argument: t, growth
  start = 0
  finish = 60
  step = 0.1
#inits:
  X = 5
  S = 150
  P = 0
#parameters:
  mu = 0.09
  K = 120
  alpha = 2.1
  beta = 0.03
  gamma = 1.9
  lambda = 0.04
  overall = 100
#update: feeding
  S += 70
  duration = overall - _t1
#tolerance: 1e-8
`

func buildGA(t *testing.T) *Pipeline {
	t.Helper()
	m, err := model.Parse(gaSource)
	require.NoError(t, err)
	pl, err := BuildPipeline(m)
	require.NoError(t, err)
	return pl
}

func TestPipelineTwoStage(t *testing.T) {
	pl := buildGA(t)
	require.Equal(t, 2, pl.Stages())

	sol, err := pl.Run()
	require.NoError(t, err)

	// stage 1 emits 601 samples on [0, 60], stage 2 emits 401 on [60, 100];
	// both boundary samples are retained
	const m1, m2 = 601, 401
	require.Equal(t, m1+m2, sol.Len())
	assert.Equal(t, 0.0, sol.Arg[0])
	assert.Equal(t, 60.0, sol.Arg[m1-1])
	assert.Equal(t, 60.0, sol.Arg[m1])
	assert.Equal(t, 100.0, sol.Arg[sol.Len()-1])

	x, s, p := sol.Column("X"), sol.Column("S"), sol.Column("P")

	// components untouched by the update carry over bit-exactly
	assert.Equal(t, x[m1-1], x[m1])
	assert.Equal(t, p[m1-1], p[m1])
	// the substrate feed is applied to the committed final state verbatim
	assert.Equal(t, s[m1-1]+70, s[m1])

	// substrate is consumed within each stage
	assert.Less(t, s[m1-1], s[0])
	assert.Less(t, s[sol.Len()-1], s[m1])
	// biomass and product grow monotonically through the whole run
	for k := 1; k < sol.Len(); k++ {
		assert.GreaterOrEqual(t, x[k], x[k-1]-1e-9)
		assert.GreaterOrEqual(t, p[k], p[k-1]-1e-9)
	}
}

func TestPipelineSingleStage(t *testing.T) {
	src := `
#equations:
  dx/dt = -x
#argument: t
  start = 0
  finish = 2
  step = 0.1
#inits:
  x = 1
`
	m, err := model.Parse(src)
	require.NoError(t, err)
	pl, err := BuildPipeline(m)
	require.NoError(t, err)
	require.Equal(t, 1, pl.Stages())

	sol, err := pl.Run()
	require.NoError(t, err)
	require.Equal(t, 21, sol.Len())
	assert.InDelta(t, math.Exp(-2), sol.Column("x")[20], 1e-5)
}

func TestPipelineLoop(t *testing.T) {
	src := `
#equations:
  dx/dt = 0
#argument: t
  start = 0
  finish = 1
  step = 0.5
#inits:
  x = 1
#update: kick
  x += 1 + _count
  duration = 1
#loop: 3
`
	m, err := model.Parse(src)
	require.NoError(t, err)
	pl, err := BuildPipeline(m)
	require.NoError(t, err)

	sol, err := pl.Run()
	require.NoError(t, err)

	// 3 iterations × 2 stages × 3 samples each
	require.Equal(t, 18, sol.Len())
	assert.Equal(t, 6.0, sol.Arg[sol.Len()-1])

	x := sol.Column("x")
	// x is constant inside stages; kicks add 1+_count at each update:
	// iter 0: 1 → 2, iter 1 (wrap carries state): 2 → 4, iter 2: 4 → 7
	assert.Equal(t, 1.0, x[0])
	assert.Equal(t, 2.0, x[3])  // after first kick
	assert.Equal(t, 2.0, x[6])  // loop wrap does not alter state
	assert.Equal(t, 4.0, x[9])  // kick with _count = 1
	assert.Equal(t, 7.0, x[15]) // kick with _count = 2
	assert.Equal(t, 7.0, x[17])
}

func TestPipelineStepOverride(t *testing.T) {
	src := `
#equations:
  dx/dt = -x
#argument: t
  start = 0
  finish = 1
  step = 0.5
#inits:
  x = 1
#update: refine
  duration = 1
  step = 0.25
`
	m, err := model.Parse(src)
	require.NoError(t, err)
	pl, err := BuildPipeline(m)
	require.NoError(t, err)

	sol, err := pl.Run()
	require.NoError(t, err)
	// 3 samples at step 0.5, then 5 at step 0.25
	require.Equal(t, 8, sol.Len())
	assert.Equal(t, 1.0, sol.Arg[2])
	assert.Equal(t, 1.25, sol.Arg[4])
	assert.Equal(t, 2.0, sol.Arg[7])
}

func TestPipelineOutputs(t *testing.T) {
	src := gaSource + "#output:\n  t\n  S\n  rate\n"
	m, err := model.Parse(src)
	require.NoError(t, err)
	pl, err := BuildPipeline(m)
	require.NoError(t, err)

	sol, err := pl.Run()
	require.NoError(t, err)
	assert.Equal(t, []string{"S", "rate"}, sol.Names)

	s, rate := sol.Column("S"), sol.Column("rate")
	require.NotNil(t, rate)
	// the expression column is reconstructed from the state samples
	for _, k := range []int{0, 100, 601, sol.Len() - 1} {
		want := 0.09 * s[k] / (120 + s[k])
		assert.InDelta(t, want, rate[k], 1e-12, "sample %d", k)
	}
}

// An expression output must reflect each stage's own parameter state, not
// the final one, when an update block mutates a parameter it reads.
func TestPipelineExpressionOutputTracksParams(t *testing.T) {
	src := `
#equations:
  dx/dt = 0
#expressions:
  scaled = k * x
#argument: t
  start = 0
  finish = 1
  step = 0.5
#inits:
  x = 2
#parameters:
  k = 3
#update: rescale
  k = 10
  duration = 1
#output:
  t
  scaled
`
	m, err := model.Parse(src)
	require.NoError(t, err)
	pl, err := BuildPipeline(m)
	require.NoError(t, err)

	sol, err := pl.Run()
	require.NoError(t, err)
	require.Equal(t, 6, sol.Len())

	scaled := sol.Column("scaled")
	require.NotNil(t, scaled)
	// stage 1: k = 3, x = 2; stage 2: k = 10, x unchanged
	for k := 0; k < 3; k++ {
		assert.Equal(t, 6.0, scaled[k], "sample %d", k)
	}
	for k := 3; k < 6; k++ {
		assert.Equal(t, 20.0, scaled[k], "sample %d", k)
	}
}

func TestPipelineInputs(t *testing.T) {
	pl := buildGA(t)
	vec, err := model.InputVector(map[string]float64{"S": 200, "mu": 0.05}, pl.mdl)
	require.NoError(t, err)

	sol, err := ApplyPipeline(pl, vec)
	require.NoError(t, err)
	assert.Equal(t, 200.0, sol.Column("S")[0])

	def, err := pl.Run()
	require.NoError(t, err)
	assert.Equal(t, 150.0, def.Column("S")[0])
	// slower growth rate yields less biomass at the end
	assert.Less(t, sol.Column("X")[sol.Len()-1], def.Column("X")[def.Len()-1])
}

func TestPipelineStageError(t *testing.T) {
	src := `
#equations:
  dx/dt = -x
#argument: t
  start = 0
  finish = 1
  step = 0.5
#inits:
  x = 1
#update: broken
  duration = -5
`
	m, err := model.Parse(src)
	require.NoError(t, err)
	pl, err := BuildPipeline(m)
	require.NoError(t, err)

	_, err = pl.Run()
	var cerr *ConfigError
	require.ErrorAs(t, err, &cerr)
}

func TestPipelineErrorNamesStage(t *testing.T) {
	src := `
#equations:
  dx/dt = x * x
#argument: t, warmup
  start = 0
  finish = 0.2
  step = 0.1
#inits:
  x = 1
#update: explode
  x = 10
  duration = 2
`
	m, err := model.Parse(src)
	require.NoError(t, err)
	pl, err := BuildPipeline(m)
	require.NoError(t, err)

	_, err = pl.Run()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "explode"),
		"integration failure should carry the stage name, got: %v", err)
}
