package model

import "math"

// A compiled expression is a flat operator list evaluated against the shared
// scalar workspace with a caller-supplied stack. Evaluation is a straight
// walk that reads and writes by index; there is no name lookup and no
// allocation in the hot path.

type opcode uint8

const (
	opConst opcode = iota // push literal
	opLoad                // push workspace slot
	opAdd
	opSub
	opMul
	opDiv
	opPow
	opNeg
	opFn1 // unary function call, arg indexes fn1Table
	opFn2 // binary function call, arg indexes fn2Table
)

type instr struct {
	op  opcode
	arg int
	val float64
}

// Program is one compiled expression.
type Program struct {
	code  []instr
	depth int // maximum stack depth needed by Eval
}

// Depth returns the stack length Eval requires.
func (p *Program) Depth() int { return p.depth }

// Eval runs the program against the workspace. stack must be at least
// Depth() long.
func (p *Program) Eval(ws, stack []float64) float64 {
	sp := 0
	for i := range p.code {
		in := &p.code[i]
		switch in.op {
		case opConst:
			stack[sp] = in.val
			sp++
		case opLoad:
			stack[sp] = ws[in.arg]
			sp++
		case opAdd:
			sp--
			stack[sp-1] += stack[sp]
		case opSub:
			sp--
			stack[sp-1] -= stack[sp]
		case opMul:
			sp--
			stack[sp-1] *= stack[sp]
		case opDiv:
			sp--
			stack[sp-1] /= stack[sp]
		case opPow:
			sp--
			stack[sp-1] = math.Pow(stack[sp-1], stack[sp])
		case opNeg:
			stack[sp-1] = -stack[sp-1]
		case opFn1:
			stack[sp-1] = fn1Table[in.arg].f(stack[sp-1])
		case opFn2:
			sp--
			stack[sp-1] = fn2Table[in.arg].f(stack[sp-1], stack[sp])
		}
	}
	return stack[0]
}

type fn1 struct {
	name string
	f    func(float64) float64
}

type fn2 struct {
	name string
	f    func(float64, float64) float64
}

var fn1Table = []fn1{
	{"sin", math.Sin},
	{"cos", math.Cos},
	{"tan", math.Tan},
	{"asin", math.Asin},
	{"acos", math.Acos},
	{"atan", math.Atan},
	{"exp", math.Exp},
	{"log", math.Log},
	{"log10", math.Log10},
	{"sqrt", math.Sqrt},
	{"abs", math.Abs},
	{"floor", math.Floor},
	{"ceil", math.Ceil},
	{"round", math.Round},
	{"sign", sign},
}

var fn2Table = []fn2{
	{"atan2", math.Atan2},
	{"pow", math.Pow},
	{"min", math.Min},
	{"max", math.Max},
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return x // preserves ±0 and NaN
}

func lookupFn1(name string) (int, bool) {
	for i := range fn1Table {
		if fn1Table[i].name == name {
			return i, true
		}
	}
	return 0, false
}

func lookupFn2(name string) (int, bool) {
	for i := range fn2Table {
		if fn2Table[i].name == name {
			return i, true
		}
	}
	return 0, false
}

// named mathematical constants usable in any expression
var namedConsts = map[string]float64{
	"pi": math.Pi,
	"e":  math.E,
}
