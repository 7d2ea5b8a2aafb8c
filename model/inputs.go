package model

// InputNames returns the order of the positional input vector: parameters in
// declaration order, then initial state values in equation order.
func (m *Model) InputNames() []string {
	names := make([]string, 0, len(m.Parameters)+len(m.Equations))
	for _, p := range m.Parameters {
		names = append(names, p.Name)
	}
	for _, eq := range m.Equations {
		names = append(names, eq.State)
	}
	return names
}

// InputVector projects a keyed input map onto the positional vector the
// pipeline consumes. Missing keys take the model defaults (parameter values,
// evaluated inits); unknown keys are refused with a *NameError.
func InputVector(in map[string]float64, m *Model) ([]float64, error) {
	c, err := m.Compile()
	if err != nil {
		return nil, err
	}
	names := m.InputNames()
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	for k := range in {
		if _, ok := idx[k]; !ok {
			return nil, &NameError{Name: k, Context: "input"}
		}
	}

	ws := c.NewWorkspace()
	c.EvalInits(ws)
	vec := make([]float64, len(names))
	np := len(m.Parameters)
	for i := 0; i < np; i++ {
		vec[i] = m.Parameters[i].Value
	}
	copy(vec[np:], c.State(ws))
	for k, v := range in {
		vec[idx[k]] = v
	}
	// parameter overrides may feed inits that were not explicitly given
	if len(in) > 0 {
		for i := 0; i < np; i++ {
			ws[c.paramIdx[i]] = vec[i]
		}
		c.EvalInits(ws)
		for i, eq := range m.Equations {
			if _, given := in[eq.State]; !given {
				vec[np+i] = c.State(ws)[i]
			}
		}
	}
	return vec, nil
}

// SetInputs writes a positional input vector into the workspace: parameters
// first, then the state band.
func (c *Compiled) SetInputs(ws, vec []float64) {
	np := len(c.paramIdx)
	for i := 0; i < np; i++ {
		ws[c.paramIdx[i]] = vec[i]
	}
	copy(ws[:c.Bind.NState], vec[np:])
}
