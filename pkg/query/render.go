package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Render pretty-prints q back into the query grammar parser.Parse
// accepts. It is a left-inverse of parsing: parser.Parse(Render(q))
// produces a Query equal to q modulo whitespace.
func Render(q Query) string {
	var sb strings.Builder
	if len(q.Preamble) > 0 {
		sb.WriteString("(")
		first := true
		for k, v := range q.Preamble {
			if !first {
				sb.WriteString(", ")
			}
			first = false
			fmt.Fprintf(&sb, "%s=%s", k, renderValue(v))
		}
		sb.WriteString("):")
	}

	// Parts are stored reversed relative to textual order.
	for i := len(q.Parts) - 1; i >= 0; i-- {
		if i != len(q.Parts)-1 {
			sb.WriteString(" ")
		}
		sb.WriteString(renderPart(q.Parts[i]))
	}

	if q.Aggregate != nil {
		sb.WriteString(" ")
		sb.WriteString(renderAggregate(*q.Aggregate))
	}
	for _, s := range q.Sort {
		fmt.Fprintf(&sb, " sort %s %s", s.Name, s.Order)
	}
	if q.Limit != nil {
		fmt.Fprintf(&sb, " limit %d", *q.Limit)
	}
	return sb.String()
}

func renderPart(p Part) string {
	s := renderTerm(p.Term)
	if p.Pinned {
		s += "+"
	}
	if p.Navigation != nil {
		s += " " + renderNavigation(*p.Navigation)
	}
	return s
}

func renderNavigation(n Navigation) string {
	rng := ""
	if !(n.MinHops == 1 && n.MaxHops == 1) {
		if n.MaxHops >= MaxHops {
			rng = fmt.Sprintf("[%d:]", n.MinHops)
		} else if n.MinHops == n.MaxHops {
			rng = fmt.Sprintf("[%d]", n.MinHops)
		} else {
			rng = fmt.Sprintf("[%d:%d]", n.MinHops, n.MaxHops)
		}
	}
	edge := n.EdgeType
	switch n.Direction {
	case "out":
		return fmt.Sprintf("-%s%s->", edge, rng)
	case "in":
		return fmt.Sprintf("<-%s%s-", edge, rng)
	default:
		return fmt.Sprintf("-%s%s-", edge, rng)
	}
}

func renderTerm(t Term) string {
	switch v := t.(type) {
	case AllTerm:
		return "all"
	case IsTerm:
		return fmt.Sprintf("is(%s)", strings.Join(v.Kinds, ", "))
	case IdTerm:
		return fmt.Sprintf("id(%s)", v.ID)
	case Predicate:
		name := v.Name
		if v.Mod != ArrayModNone {
			name = string(v.Mod) + "." + name
		}
		return fmt.Sprintf("%s %s %s", name, v.Op, renderValue(v.Value))
	case FunctionTerm:
		args := v.Arg
		for _, a := range v.Args {
			args += ", " + renderValue(a)
		}
		return fmt.Sprintf("%s(%s)", v.Fn, args)
	case CombinedTerm:
		return fmt.Sprintf("(%s %s %s)", renderTerm(v.Left), v.Op, renderTerm(v.Right))
	default:
		return ""
	}
}

func renderAggregate(a Aggregate) string {
	var groups []string
	for _, g := range a.GroupVars {
		if g.As != "" {
			groups = append(groups, fmt.Sprintf("%s as %s", g.Name, g.As))
		} else {
			groups = append(groups, g.Name)
		}
	}
	var fns []string
	for _, f := range a.Functions {
		src := f.Source
		if f.SourceIsInt {
			src = strconv.Itoa(f.SourceInt)
		}
		opStr := ""
		for _, op := range f.Ops {
			opStr += fmt.Sprintf(" %s %v", op.Operator, op.Number)
		}
		fn := fmt.Sprintf("%s(%s%s)", f.Func, src, opStr)
		if f.As != "" {
			fn += " as " + f.As
		}
		fns = append(fns, fn)
	}
	return fmt.Sprintf("aggregate(%s: %s):", strings.Join(groups, ", "), strings.Join(fns, ", "))
}

func renderValue(v any) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case []any:
		parts := make([]string, len(t))
		for i, e := range t {
			parts[i] = renderValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", t)
	}
}
