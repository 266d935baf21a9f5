package query

import "github.com/invgraph/graphcore/pkg/errs"

// isTrivialAggregate reports whether a is nil or declares no group
// variable and no function; anything else is "non-trivial" in the
// sense Combine cares about.
func isTrivialAggregate(a *Aggregate) bool {
	if a == nil {
		return true
	}
	return len(a.GroupVars) == 0 && len(a.Functions) == 0
}

// Combine merges two queries: the trailing part of a is stitched to
// the leading part of b with "and", limits combine as min, sorts
// concatenate. Combine fails when either side carries a non-trivial
// aggregate or a with() clause on the part being stitched.
func Combine(a, b Query) (Query, error) {
	if !isTrivialAggregate(a.Aggregate) || !isTrivialAggregate(b.Aggregate) {
		return Query{}, errs.InvalidQuery("cannot combine queries that carry an aggregation")
	}
	if len(a.Parts) == 0 {
		return Query{}, errs.InvalidQuery("cannot combine an empty query")
	}
	if len(b.Parts) == 0 {
		return Query{}, errs.InvalidQuery("cannot combine with an empty query")
	}

	// Parts are stored reversed: the textual-order trailing part of a
	// is a.Parts[0], and the textual-order leading part of b is
	// b.Parts[len(b.Parts)-1].
	aTrailing := a.Parts[0]
	bLeading := b.Parts[len(b.Parts)-1]
	if aTrailing.WithClause || bLeading.WithClause {
		return Query{}, errs.InvalidQuery("cannot combine across a with() clause")
	}

	merged := Part{
		Term:       CombinedTerm{Left: aTrailing.Term, Op: "and", Right: bLeading.Term},
		Pinned:     aTrailing.Pinned || bLeading.Pinned,
		Navigation: bLeading.Navigation,
	}

	var parts []Part
	parts = append(parts, b.Parts[:len(b.Parts)-1]...)
	parts = append(parts, merged)
	parts = append(parts, a.Parts[1:]...)

	out := Query{
		Parts:    parts,
		Preamble: mergePreamble(a.Preamble, b.Preamble),
		Sort:     append(append([]Sort(nil), a.Sort...), b.Sort...),
	}
	out.Limit = minLimit(a.Limit, b.Limit)
	if !isTrivialAggregate(a.Aggregate) {
		out.Aggregate = a.Aggregate
	} else if !isTrivialAggregate(b.Aggregate) {
		out.Aggregate = b.Aggregate
	}
	return out, nil
}

func mergePreamble(a, b map[string]any) map[string]any {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

func minLimit(a, b *int) *int {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case *a < *b:
		return a
	default:
		return b
	}
}
