package diffgrok

import (
	"strconv"

	"github.com/datagrok-ai/DiffGrok/model"
)

// defaultTolerance applies when a model carries no #tolerance section.
const defaultTolerance = 1e-7

// Pipeline is a compiled multi-stage simulation: a model lowered into a
// sequence of solver invocations with inter-stage workspace updates. A model
// without update blocks yields a single-stage pipeline.
type Pipeline struct {
	// Method selects the tableau for every stage. BuildPipeline defaults it
	// to ROS34PRw.
	Method *Method
	// Config carries solver configuration shared by all stages; zero fields
	// are completed from the model tolerance.
	Config Config

	mdl *model.Model
	c   *model.Compiled
	tol float64
}

// Stages returns the number of stages in one pass, not counting loop
// repetitions.
func (pl *Pipeline) Stages() int { return pl.c.NumUpdates() + 1 }

// BuildPipeline lowers a parsed model into a pipeline.
func BuildPipeline(m *model.Model) (*Pipeline, error) {
	c, err := m.Compile()
	if err != nil {
		return nil, err
	}
	return &Pipeline{
		Method: ROS34PRw,
		mdl:    m,
		c:      c,
		tol:    c.Tolerance(defaultTolerance),
	}, nil
}

// Run is ApplyPipeline with the model defaults as inputs.
func (pl *Pipeline) Run() (*Solution, error) {
	return ApplyPipeline(pl, nil)
}

// ApplyPipeline executes the pipeline over a positional input vector (see
// model.InputVector); nil means model defaults. Stages run strictly in
// order; each begins from its predecessor's committed final state with the
// update block applied. Per-stage solution arrays are concatenated with
// both boundary samples retained, so an update's effect is observable as
// the jump between t_k⁻ and t_k⁺.
func ApplyPipeline(pl *Pipeline, inputs []float64) (*Solution, error) {
	c := pl.c
	b := c.Bind
	ws := c.NewWorkspace()
	if inputs != nil {
		c.SetInputs(ws, inputs)
	} else {
		c.EvalInits(ws)
	}

	t0, t1, h := c.EvalArg(ws)
	span0, h0 := t1-t0, h

	cfg := pl.Config
	cfg.fill(pl.tol)

	loop := pl.mdl.Loop
	if loop < 1 {
		loop = 1
	}
	stages := pl.Stages()

	// expression output columns are reconstructed stage by stage, while the
	// stage's parameter state is still in the workspace (an update block may
	// mutate a parameter an expression reads)
	exprCols := make(map[int][]float64)
	for _, o := range pl.mdl.Outputs {
		if slot, ok := b.Lookup(o.Name); ok && slot >= b.NState && slot < b.NState+b.NExpr {
			exprCols[slot] = nil
		}
	}
	yrow := make([]float64, b.NState)

	var out *Solution
	rhs := c.Func(ws)
	for iter := 0; iter < loop; iter++ {
		ws[b.Count] = float64(iter)
		for si := 0; si < stages; si++ {
			first := iter == 0 && si == 0
			if !first {
				// expose the finished stage's bounds to the update block
				ws[b.T0], ws[b.T1], ws[b.H] = t0, t1, h
				span := t1 - t0
				if si > 0 {
					durSet, _ := c.ApplyUpdate(si-1, ws)
					if durSet {
						span = ws[b.Duration]
					}
					h = ws[b.H]
				} else {
					// loop wrap-around: restart the sequence geometry
					span, h = span0, h0
				}
				t0 = t1
				t1 = t0 + span
			}
			ws[b.T0], ws[b.T1], ws[b.H] = t0, t1, h

			prob := &Problem{
				Name:      stageName(pl.mdl, si),
				Arg:       Arg{Name: pl.mdl.Arg.Name, Start: t0, Finish: t1, Step: h},
				Initial:   append([]float64(nil), c.State(ws)...),
				Func:      rhs,
				Tolerance: pl.tol,
				ColNames:  c.StateNames(),
			}
			if err := prob.validate(); err != nil {
				return nil, err
			}
			sol, err := integrate(prob, pl.Method, cfg, prob.Name)
			if err != nil {
				return nil, err
			}

			if len(exprCols) > 0 {
				for k := 0; k < sol.Len(); k++ {
					for i := 0; i < b.NState; i++ {
						yrow[i] = sol.Y[i][k]
					}
					c.Snapshot(sol.Arg[k], yrow, ws)
					for slot := range exprCols {
						exprCols[slot] = append(exprCols[slot], ws[slot])
					}
				}
			}

			// commit the final state for the next stage
			final := c.State(ws)
			for i := range final {
				final[i] = sol.Y[i][sol.Len()-1]
			}

			if out == nil {
				out = sol
			} else {
				out.Arg = append(out.Arg, sol.Arg...)
				for i := range out.Y {
					out.Y[i] = append(out.Y[i], sol.Y[i]...)
				}
				out.Stat.add(sol.Stat)
			}
		}
	}

	return pl.filterOutputs(out, exprCols), nil
}

func stageName(m *model.Model, si int) string {
	if si == 0 {
		if m.Arg.Label != "" {
			return m.Arg.Label
		}
		return m.Name
	}
	ub := m.Updates[si-1]
	if ub.Label != "" {
		return ub.Label
	}
	return "stage " + strconv.Itoa(si+1)
}

// filterOutputs reduces the full state solution to the declared #output
// columns. Expression columns were accumulated per stage by ApplyPipeline.
func (pl *Pipeline) filterOutputs(sol *Solution, exprCols map[int][]float64) *Solution {
	outs := pl.mdl.Outputs
	if len(outs) == 0 {
		return sol
	}
	b := pl.c.Bind
	res := &Solution{
		ArgName: sol.ArgName,
		Names:   make([]string, 0, len(outs)),
		Arg:     sol.Arg,
		Stat:    sol.Stat,
	}
	for _, o := range outs {
		if o.Name == sol.ArgName {
			continue // the argument column is always first
		}
		slot, _ := b.Lookup(o.Name)
		col := exprCols[slot]
		if slot < b.NState {
			col = sol.Y[slot]
		}
		res.Names = append(res.Names, o.Name)
		res.Y = append(res.Y, col)
	}
	return res
}
