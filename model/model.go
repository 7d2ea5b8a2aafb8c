// Package model parses the declarative block-structured model format and
// lowers it to an executable initial-value problem: a flat name→index
// binding over a shared scalar workspace, compiled expression programs, and
// a right-hand side closure that evaluates by index only.
package model

// Annotation carries the opaque trailing tags of a line: the {...} UI
// metadata and the [...] description. Both are preserved verbatim and never
// interpreted.
type Annotation struct {
	Meta string
	Desc string
}

// Equation is one differential equation d<State>/d<arg> = RHS.
type Equation struct {
	State string
	RHS   string
	Ann   Annotation
	Line  int

	argName string // as written; checked against the declared argument
}

// Assign is a <name> <op> <expr> line. Op is "=" everywhere except update
// blocks, which also admit the compound forms.
type Assign struct {
	Name string
	Op   string
	RHS  string
	Ann  Annotation
	Line int
}

// Param is a named scalar with a literal default value.
type Param struct {
	Name  string
	Value float64
	Ann   Annotation
	Line  int
}

// ArgSpec declares the independent variable: its range and the output grid
// step, each an expression over parameters and constants.
type ArgSpec struct {
	Name   string
	Label  string // optional stage label after the comma
	Start  string
	Finish string
	Step   string
	Line   int
}

// UpdateBlock is one #update section: the assignments applied to the
// carried workspace between two pipeline stages.
type UpdateBlock struct {
	Label   string
	Assigns []Assign
}

// Output selects one solution column by state or expression name.
type Output struct {
	Name string
	Ann  Annotation
}

// Model is a parsed model: the section table of the source text. It is
// inert; Compile turns it into something runnable.
type Model struct {
	Name        string
	Tags        []string
	Description string
	Meta        []string

	Equations   []Equation
	Expressions []Assign
	Arg         ArgSpec
	Inits       []Assign
	Parameters  []Param
	Constants   []Param
	Updates     []UpdateBlock
	Loop        int // 0 or 1 mean no repetition
	Outputs     []Output
	Tolerance   float64 // 0 when the section is absent
}

// Reserved workspace names. Update blocks may reassign the first three;
// everything may read all of them.
const (
	nameT0    = "_t0"
	nameT1    = "_t1"
	nameH     = "_h"
	nameCount = "_count"
	nameDur   = "duration"
	nameStep  = "step" // update-block alias for _h
)

// Binding maps every known identifier to a stable index into the shared
// workspace. States occupy [0, NState) and expressions the adjacent band
// [NState, NState+NExpr), so emitted closures address both with one linear
// scheme.
type Binding struct {
	Index map[string]int
	Names []string

	NState int
	NExpr  int

	Arg      int
	T0       int
	T1       int
	H        int
	Count    int
	Duration int // -1 when the model has no update blocks
}

// Size returns the workspace length.
func (b *Binding) Size() int { return len(b.Names) }

// Lookup resolves a name to its workspace slot.
func (b *Binding) Lookup(name string) (int, bool) {
	i, ok := b.Index[name]
	return i, ok
}

func (b *Binding) add(name string) int {
	i := len(b.Names)
	b.Index[name] = i
	b.Names = append(b.Names, name)
	return i
}

func (m *Model) bind() *Binding {
	b := &Binding{Index: make(map[string]int), Duration: -1}
	for _, eq := range m.Equations {
		b.add(eq.State)
	}
	b.NState = len(b.Names)
	for _, ex := range m.Expressions {
		b.add(ex.Name)
	}
	b.NExpr = len(b.Names) - b.NState
	for _, p := range m.Parameters {
		b.add(p.Name)
	}
	for _, c := range m.Constants {
		b.add(c.Name)
	}
	b.Arg = b.add(m.Arg.Name)
	b.T0 = b.add(nameT0)
	b.T1 = b.add(nameT1)
	b.H = b.add(nameH)
	b.Count = b.add(nameCount)
	if len(m.Updates) > 0 {
		// a model may declare duration itself (say, as a parameter); the
		// update block then shares its slot
		if i, ok := b.Index[nameDur]; ok {
			b.Duration = i
		} else {
			b.Duration = b.add(nameDur)
		}
	}
	return b
}
