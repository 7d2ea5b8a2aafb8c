package model

import (
	"strconv"
	"strings"
)

// Emit renders a parsed model back to source text. The output re-parses to
// a model structurally equal to the input; it is how a model travels to a
// worker, since closures do not.
func Emit(m *Model) string {
	var sb strings.Builder
	line := func(s string) {
		sb.WriteString(s)
		sb.WriteByte('\n')
	}
	assign := func(name, op, rhs string, ann Annotation) {
		sb.WriteString("  ")
		sb.WriteString(name)
		sb.WriteByte(' ')
		sb.WriteString(op)
		sb.WriteByte(' ')
		sb.WriteString(rhs)
		writeAnn(&sb, ann)
		sb.WriteByte('\n')
	}

	if m.Name != "" {
		line("#name: " + m.Name)
	}
	if len(m.Tags) > 0 {
		line("#tags: " + strings.Join(m.Tags, ", "))
	}
	if m.Description != "" {
		line("#description:")
		for _, dl := range strings.Split(m.Description, "\n") {
			line("  " + dl)
		}
	}

	line("#equations:")
	for _, eq := range m.Equations {
		assign("d"+eq.State+"/d"+m.Arg.Name, "=", eq.RHS, eq.Ann)
	}

	if len(m.Expressions) > 0 {
		line("#expressions:")
		for _, ex := range m.Expressions {
			assign(ex.Name, "=", ex.RHS, ex.Ann)
		}
	}

	if m.Arg.Label != "" {
		line("#argument: " + m.Arg.Name + ", " + m.Arg.Label)
	} else {
		line("#argument: " + m.Arg.Name)
	}
	assign("start", "=", m.Arg.Start, Annotation{})
	assign("finish", "=", m.Arg.Finish, Annotation{})
	assign("step", "=", m.Arg.Step, Annotation{})

	if len(m.Inits) > 0 {
		line("#inits:")
		for _, in := range m.Inits {
			assign(in.Name, "=", in.RHS, in.Ann)
		}
	}
	if len(m.Parameters) > 0 {
		line("#parameters:")
		for _, p := range m.Parameters {
			assign(p.Name, "=", ftoa(p.Value), p.Ann)
		}
	}
	if len(m.Constants) > 0 {
		line("#constants:")
		for _, c := range m.Constants {
			assign(c.Name, "=", ftoa(c.Value), c.Ann)
		}
	}
	for _, ub := range m.Updates {
		if ub.Label != "" {
			line("#update: " + ub.Label)
		} else {
			line("#update:")
		}
		for _, as := range ub.Assigns {
			assign(as.Name, as.Op, as.RHS, as.Ann)
		}
	}
	if m.Loop > 1 {
		line("#loop: " + strconv.Itoa(m.Loop))
	}
	if len(m.Outputs) > 0 {
		line("#output:")
		for _, out := range m.Outputs {
			sb.WriteString("  ")
			sb.WriteString(out.Name)
			writeAnn(&sb, out.Ann)
			sb.WriteByte('\n')
		}
	}
	if m.Tolerance > 0 {
		line("#tolerance: " + ftoa(m.Tolerance))
	}
	if len(m.Meta) > 0 {
		line("#meta:")
		for _, ml := range m.Meta {
			line("  " + ml)
		}
	}
	return sb.String()
}

func writeAnn(sb *strings.Builder, ann Annotation) {
	if ann.Meta != "" {
		sb.WriteString(" {")
		sb.WriteString(ann.Meta)
		sb.WriteByte('}')
	}
	if ann.Desc != "" {
		sb.WriteString(" [")
		sb.WriteString(ann.Desc)
		sb.WriteByte(']')
	}
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
