package model

// Compiled is a runnable lowering of a Model: the binding, the compiled
// programs for every expression in the section table, and a scratch stack
// sized for the deepest of them. All evaluation after Compile returns is
// allocation-free.
type Compiled struct {
	Model *Model
	Bind  *Binding

	exprs  []*Program
	eqs    []*Program
	inits  []initProg
	start  *Program
	finish *Program
	step   *Program

	updates  [][]update
	durSet   []bool // per update block: was duration assigned
	stepSet  []bool // per update block: was _h (or step) assigned
	stack    []float64
	paramIdx []int // workspace slot per parameter, declaration order
}

type initProg struct {
	slot int
	prog *Program
}

type update struct {
	slot int
	op   byte // '=', '+', '-', '*', '/'
	prog *Program
}

// Compile binds all names of the model into one flat index space and
// compiles every expression. It fails with a *NameError on unbound
// identifiers and a *ParseError on malformed expression syntax.
func (m *Model) Compile() (*Compiled, error) {
	b := m.bind()
	c := &Compiled{Model: m, Bind: b}

	var maxDepth int
	compile := func(src string, line int, section string) (*Program, error) {
		p, err := compileExpr(src, b.Lookup)
		if err != nil {
			if ne, ok := err.(*NameError); ok {
				return nil, ne
			}
			return nil, parseErrorf(line, section, "%v", err)
		}
		if p.depth > maxDepth {
			maxDepth = p.depth
		}
		return p, nil
	}

	var err error
	for _, ex := range m.Expressions {
		p, cerr := compile(ex.RHS, ex.Line, "expressions")
		if cerr != nil {
			return nil, cerr
		}
		c.exprs = append(c.exprs, p)
	}
	for _, eq := range m.Equations {
		p, cerr := compile(eq.RHS, eq.Line, "equations")
		if cerr != nil {
			return nil, cerr
		}
		c.eqs = append(c.eqs, p)
	}
	for _, in := range m.Inits {
		slot, ok := b.Lookup(in.Name)
		if !ok || slot >= b.NState {
			return nil, parseErrorf(in.Line, "inits", "init for non-state name %q", in.Name)
		}
		p, cerr := compile(in.RHS, in.Line, "inits")
		if cerr != nil {
			return nil, cerr
		}
		c.inits = append(c.inits, initProg{slot: slot, prog: p})
	}
	if c.start, err = compile(m.Arg.Start, m.Arg.Line, "argument"); err != nil {
		return nil, err
	}
	if c.finish, err = compile(m.Arg.Finish, m.Arg.Line, "argument"); err != nil {
		return nil, err
	}
	if c.step, err = compile(m.Arg.Step, m.Arg.Line, "argument"); err != nil {
		return nil, err
	}

	for _, ub := range m.Updates {
		var ups []update
		var durSet, stepSet bool
		for _, as := range ub.Assigns {
			name := as.Name
			if name == nameStep {
				name = nameH
			}
			slot, ok := b.Lookup(name)
			if !ok {
				return nil, &NameError{Name: as.Name, Context: "update"}
			}
			p, cerr := compile(as.RHS, as.Line, "update")
			if cerr != nil {
				return nil, cerr
			}
			ups = append(ups, update{slot: slot, op: as.Op[0], prog: p})
			if slot == b.Duration {
				durSet = true
			}
			if slot == b.H {
				stepSet = true
			}
		}
		c.updates = append(c.updates, ups)
		c.durSet = append(c.durSet, durSet)
		c.stepSet = append(c.stepSet, stepSet)
	}

	c.stack = make([]float64, maxDepth)
	c.paramIdx = make([]int, len(m.Parameters))
	for i, p := range m.Parameters {
		c.paramIdx[i] = b.Index[p.Name]
	}
	return c, nil
}

// NewWorkspace allocates a workspace with parameter and constant defaults
// filled in and everything else zero.
func (c *Compiled) NewWorkspace() []float64 {
	ws := make([]float64, c.Bind.Size())
	for i, p := range c.Model.Parameters {
		ws[c.paramIdx[i]] = p.Value
	}
	for _, k := range c.Model.Constants {
		ws[c.Bind.Index[k.Name]] = k.Value
	}
	return ws
}

// EvalInits writes the initial state values into the workspace state band.
// States without an init line start at zero.
func (c *Compiled) EvalInits(ws []float64) {
	for _, in := range c.inits {
		ws[in.slot] = in.prog.Eval(ws, c.stack)
	}
}

// EvalArg evaluates the argument range and output step over the workspace.
func (c *Compiled) EvalArg(ws []float64) (start, finish, step float64) {
	return c.start.Eval(ws, c.stack), c.finish.Eval(ws, c.stack), c.step.Eval(ws, c.stack)
}

// Tolerance returns the model's tolerance override, or def when absent.
func (c *Compiled) Tolerance(def float64) float64 {
	if c.Model.Tolerance > 0 {
		return c.Model.Tolerance
	}
	return def
}

// StateNames returns the state component names in equation order.
func (c *Compiled) StateNames() []string {
	return c.Bind.Names[:c.Bind.NState]
}

// State returns the workspace state band.
func (c *Compiled) State(ws []float64) []float64 {
	return ws[:c.Bind.NState]
}

// Func builds the right-hand side over the given workspace: copy t and y to
// their bound slots, evaluate expressions in declaration order (later ones
// may read earlier ones), then each equation into out. The closure performs
// no allocation and no name lookup.
func (c *Compiled) Func(ws []float64) func(t float64, y, out []float64) {
	b := c.Bind
	exprs := c.exprs
	eqs := c.eqs
	stack := c.stack
	return func(t float64, y, out []float64) {
		ws[b.Arg] = t
		copy(ws[:b.NState], y)
		base := b.NState
		for i, p := range exprs {
			ws[base+i] = p.Eval(ws, stack)
		}
		for i, p := range eqs {
			out[i] = p.Eval(ws, stack)
		}
	}
}

// Snapshot loads (t, y) into the workspace and evaluates the expression
// band, leaving both readable by slot. Used to reconstruct expression
// output columns from solved samples.
func (c *Compiled) Snapshot(t float64, y, ws []float64) {
	b := c.Bind
	ws[b.Arg] = t
	copy(ws[:b.NState], y)
	for i, p := range c.exprs {
		ws[b.NState+i] = p.Eval(ws, c.stack)
	}
}

// ApplyUpdate runs update block i against the workspace and reports whether
// the block assigned duration and the grid step.
func (c *Compiled) ApplyUpdate(i int, ws []float64) (durSet, stepSet bool) {
	for _, u := range c.updates[i] {
		v := u.prog.Eval(ws, c.stack)
		switch u.op {
		case '=':
			ws[u.slot] = v
		case '+':
			ws[u.slot] += v
		case '-':
			ws[u.slot] -= v
		case '*':
			ws[u.slot] *= v
		case '/':
			ws[u.slot] /= v
		}
	}
	return c.durSet[i], c.stepSet[i]
}

// NumUpdates returns the number of update blocks.
func (c *Compiled) NumUpdates() int { return len(c.updates) }
