package model

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// The model source is line-oriented UTF-8. A line beginning with
// `#<section>:` opens a section whose body runs to the next directive or
// EOF. An optional inline label after the colon names the stage. `//`
// starts a comment; trailing `{...}` holds UI metadata and `[...]` a
// description, both preserved verbatim.

var knownSections = map[string]bool{
	"name": true, "tags": true, "description": true,
	"equations": true, "expressions": true, "argument": true,
	"inits": true, "parameters": true, "constants": true,
	"update": true, "output": true, "tolerance": true,
	"comment": true, "meta": true, "loop": true,
}

var equationLHS = regexp.MustCompile(`^d([A-Za-z_][A-Za-z0-9_]*)\s*/\s*d([A-Za-z_][A-Za-z0-9_]*)$`)

// Parse parses model source text. On any malformed input it returns a
// *ParseError carrying the line number and section; no partial model is
// returned.
func Parse(src string) (*Model, error) {
	m := &Model{}
	section := ""
	seenState := make(map[string]int)
	seenName := make(map[string]int) // any declared identifier → line

	declare := func(name string, line int) *ParseError {
		if strings.HasPrefix(name, "_") {
			return parseErrorf(line, section, "%q collides with the reserved name space", name)
		}
		if prev, ok := seenName[name]; ok {
			return parseErrorf(line, section, "%q already declared at line %d", name, prev)
		}
		seenName[name] = line
		return nil
	}

	for lineNo, raw := range strings.Split(src, "\n") {
		lineNo++
		line := strings.TrimSpace(stripComment(raw))
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			head, payload, _ := strings.Cut(line[1:], ":")
			head = strings.TrimSpace(head)
			payload = strings.TrimSpace(payload)
			if !knownSections[head] {
				return nil, parseErrorf(lineNo, head, "unknown section %q", head)
			}
			section = head
			switch section {
			case "name":
				m.Name = payload
			case "tags":
				for _, t := range strings.Split(payload, ",") {
					if t = strings.TrimSpace(t); t != "" {
						m.Tags = append(m.Tags, t)
					}
				}
			case "description":
				if payload != "" {
					m.Description = payload
				}
			case "argument":
				name, label, _ := strings.Cut(payload, ",")
				name = strings.TrimSpace(name)
				if !isIdent(name) {
					return nil, parseErrorf(lineNo, section, "bad argument name %q", name)
				}
				if m.Arg.Name != "" {
					return nil, parseErrorf(lineNo, section, "argument already declared")
				}
				m.Arg.Name = name
				m.Arg.Label = strings.TrimSpace(label)
				m.Arg.Line = lineNo
			case "update":
				m.Updates = append(m.Updates, UpdateBlock{Label: payload})
			case "loop":
				n, err := strconv.Atoi(payload)
				if err != nil || n < 1 {
					return nil, parseErrorf(lineNo, section, "loop count must be a positive integer, got %q", payload)
				}
				m.Loop = n
			case "tolerance":
				if payload != "" {
					v, err := strconv.ParseFloat(payload, 64)
					if err != nil {
						return nil, parseErrorf(lineNo, section, "bad tolerance %q", payload)
					}
					m.Tolerance = v
				}
			}
			continue
		}

		if section == "" {
			return nil, parseErrorf(lineNo, "", "text before any section: %q", line)
		}

		body, ann := splitAnnotations(line)
		body = strings.TrimSpace(body)

		switch section {
		case "comment":
			// ignored
		case "description":
			if m.Description != "" {
				m.Description += "\n"
			}
			m.Description += line
		case "meta":
			m.Meta = append(m.Meta, line)
		case "name":
			return nil, parseErrorf(lineNo, section, "unexpected body line")
		case "tags":
			for _, t := range strings.Split(body, ",") {
				if t = strings.TrimSpace(t); t != "" {
					m.Tags = append(m.Tags, t)
				}
			}
		case "equations":
			lhs, op, rhs, err := splitAssign(body)
			if err != nil || op != "=" {
				return nil, parseErrorf(lineNo, section, "equation must have the form d<name>/d<arg> = <expr>")
			}
			sub := equationLHS.FindStringSubmatch(strings.TrimSpace(lhs))
			if sub == nil {
				return nil, parseErrorf(lineNo, section, "bad equation left-hand side %q", lhs)
			}
			state, arg := sub[1], sub[2]
			if prev, dup := seenState[state]; dup {
				return nil, parseErrorf(lineNo, section, "state %q already declared at line %d", state, prev)
			}
			if perr := declare(state, lineNo); perr != nil {
				return nil, perr
			}
			seenState[state] = lineNo
			m.Equations = append(m.Equations, Equation{State: state, RHS: rhs, Ann: ann, Line: lineNo, argName: arg})
		case "expressions", "inits":
			name, op, rhs, err := splitAssign(body)
			if err != nil {
				return nil, parseErrorf(lineNo, section, "%v", err)
			}
			if op != "=" {
				return nil, parseErrorf(lineNo, section, "operator %s is only allowed in update blocks", op)
			}
			if !isIdent(name) {
				return nil, parseErrorf(lineNo, section, "bad name %q", name)
			}
			as := Assign{Name: name, Op: op, RHS: rhs, Ann: ann, Line: lineNo}
			if section == "expressions" {
				if perr := declare(name, lineNo); perr != nil {
					return nil, perr
				}
				m.Expressions = append(m.Expressions, as)
			} else {
				m.Inits = append(m.Inits, as)
			}
		case "parameters", "constants":
			name, op, rhs, err := splitAssign(body)
			if err != nil {
				return nil, parseErrorf(lineNo, section, "%v", err)
			}
			if op != "=" {
				return nil, parseErrorf(lineNo, section, "operator %s is only allowed in update blocks", op)
			}
			if !isIdent(name) {
				return nil, parseErrorf(lineNo, section, "bad name %q", name)
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rhs), 64)
			if err != nil {
				return nil, parseErrorf(lineNo, section, "%s value must be a number, got %q", section[:len(section)-1], rhs)
			}
			if perr := declare(name, lineNo); perr != nil {
				return nil, perr
			}
			p := Param{Name: name, Value: v, Ann: ann, Line: lineNo}
			if section == "parameters" {
				m.Parameters = append(m.Parameters, p)
			} else {
				m.Constants = append(m.Constants, p)
			}
		case "argument":
			if m.Arg.Name == "" {
				return nil, parseErrorf(lineNo, section, "argument name missing; write #argument: <name>")
			}
			name, op, rhs, err := splitAssign(body)
			if err != nil || op != "=" {
				return nil, parseErrorf(lineNo, section, "expected start/finish/step assignment")
			}
			switch name {
			case "start":
				m.Arg.Start = rhs
			case "finish":
				m.Arg.Finish = rhs
			case "step":
				m.Arg.Step = rhs
				if v, err := strconv.ParseFloat(strings.TrimSpace(rhs), 64); err == nil && v <= 0 {
					return nil, parseErrorf(lineNo, section, "step must be positive, got %g", v)
				}
			default:
				return nil, parseErrorf(lineNo, section, "unknown argument field %q", name)
			}
		case "update":
			name, op, rhs, err := splitAssign(body)
			if err != nil {
				return nil, parseErrorf(lineNo, section, "%v", err)
			}
			if !isIdent(name) {
				return nil, parseErrorf(lineNo, section, "bad name %q", name)
			}
			ub := &m.Updates[len(m.Updates)-1]
			ub.Assigns = append(ub.Assigns, Assign{Name: name, Op: op, RHS: rhs, Ann: ann, Line: lineNo})
		case "output":
			if !isIdent(body) {
				return nil, parseErrorf(lineNo, section, "bad output name %q", body)
			}
			m.Outputs = append(m.Outputs, Output{Name: body, Ann: ann})
		case "tolerance":
			v, err := strconv.ParseFloat(body, 64)
			if err != nil {
				return nil, parseErrorf(lineNo, section, "bad tolerance %q", body)
			}
			m.Tolerance = v
		case "loop":
			return nil, parseErrorf(lineNo, section, "loop takes its count inline; unexpected body line")
		}
	}

	if err := m.check(); err != nil {
		return nil, err
	}
	return m, nil
}

// check enforces the cross-section invariants once every section is in.
func (m *Model) check() error {
	if len(m.Equations) == 0 {
		return parseErrorf(0, "equations", "model declares no equations")
	}
	if m.Arg.Name == "" {
		return parseErrorf(0, "argument", "model declares no argument")
	}
	for _, eq := range m.Equations {
		if eq.argName != m.Arg.Name {
			return parseErrorf(eq.Line, "equations", "equation for %q differentiates by %q, declared argument is %q", eq.State, eq.argName, m.Arg.Name)
		}
	}
	if m.Arg.Start == "" || m.Arg.Finish == "" || m.Arg.Step == "" {
		return parseErrorf(m.Arg.Line, "argument", "argument needs start, finish and step")
	}
	states := make(map[string]bool, len(m.Equations))
	for _, eq := range m.Equations {
		states[eq.State] = true
	}
	for _, in := range m.Inits {
		if !states[in.Name] {
			return parseErrorf(in.Line, "inits", "init for non-state name %q", in.Name)
		}
	}
	exprs := make(map[string]bool, len(m.Expressions))
	for _, ex := range m.Expressions {
		exprs[ex.Name] = true
	}
	for _, out := range m.Outputs {
		if !states[out.Name] && !exprs[out.Name] && out.Name != m.Arg.Name {
			return parseErrorf(0, "output", "output %q is neither a state nor an expression", out.Name)
		}
	}
	if m.Tolerance < 0 || m.Tolerance >= 1 {
		return parseErrorf(0, "tolerance", "tolerance must be in (0, 1), got %g", m.Tolerance)
	}
	return nil
}

// stripComment removes a trailing // comment that is not inside a {...} or
// [...] annotation.
func stripComment(line string) string {
	depth := 0
	for i := 0; i+1 < len(line); i++ {
		switch line[i] {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
		case '/':
			if depth == 0 && line[i+1] == '/' {
				return line[:i]
			}
		}
	}
	return line
}

// splitAnnotations peels trailing {...} and [...] tags off a line, in any
// order, returning the remaining body and the annotation contents.
func splitAnnotations(line string) (string, Annotation) {
	var ann Annotation
	for {
		t := strings.TrimSpace(line)
		switch {
		case strings.HasSuffix(t, "}"):
			if i := strings.LastIndex(t, "{"); i >= 0 {
				ann.Meta = strings.TrimSpace(t[i+1 : len(t)-1])
				line = t[:i]
				continue
			}
		case strings.HasSuffix(t, "]"):
			if i := strings.LastIndex(t, "["); i >= 0 {
				ann.Desc = strings.TrimSpace(t[i+1 : len(t)-1])
				line = t[:i]
				continue
			}
		}
		return line, ann
	}
}

// splitAssign splits "<name> <op> <expr>" where op is one of = += -= *= /=.
func splitAssign(line string) (name, op, rhs string, err error) {
	i := strings.IndexByte(line, '=')
	if i <= 0 {
		return "", "", "", errors.New("expected an assignment")
	}
	op = "="
	left := line[:i]
	switch line[i-1] {
	case '+', '-', '*', '/':
		op = string(line[i-1]) + "="
		left = line[:i-1]
	}
	name = strings.TrimSpace(left)
	rhs = strings.TrimSpace(line[i+1:])
	if rhs == "" {
		return "", "", "", errors.New("empty right-hand side")
	}
	return name, op, rhs, nil
}
