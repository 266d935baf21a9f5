package query

import "strings"

// OnSection rewrites every variable reference in q that is not already
// absolute (doesn't start with "/") to be prefixed by prefix, e.g.
// OnSection(q, "reported") turns "name" into "reported.name" while
// leaving "/metadata.protected" untouched.
func OnSection(q Query, prefix string) Query {
	for i := range q.Parts {
		q.Parts[i].Term = onSectionTerm(q.Parts[i].Term, prefix)
	}
	if q.Aggregate != nil {
		agg := *q.Aggregate
		agg.GroupVars = append([]AggregateVariable(nil), agg.GroupVars...)
		for i, gv := range agg.GroupVars {
			agg.GroupVars[i].Name = onSectionName(gv.Name, prefix)
		}
		agg.Functions = append([]AggregateFunction(nil), agg.Functions...)
		for i, fn := range agg.Functions {
			if !fn.SourceIsInt {
				agg.Functions[i].Source = onSectionName(fn.Source, prefix)
			}
		}
		q.Aggregate = &agg
	}
	for i := range q.Sort {
		q.Sort[i].Name = onSectionName(q.Sort[i].Name, prefix)
	}
	return q
}

func onSectionName(name, prefix string) string {
	if strings.HasPrefix(name, "/") {
		return name
	}
	return prefix + "." + name
}

func onSectionTerm(t Term, prefix string) Term {
	switch v := t.(type) {
	case Predicate:
		v.Name = onSectionName(v.Name, prefix)
		return v
	case FunctionTerm:
		v.Arg = onSectionName(v.Arg, prefix)
		return v
	case CombinedTerm:
		v.Left = onSectionTerm(v.Left, prefix)
		v.Right = onSectionTerm(v.Right, prefix)
		return v
	default:
		return t
	}
}
