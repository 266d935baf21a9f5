package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/invgraph/graphcore/pkg/errs"
	"github.com/invgraph/graphcore/pkg/graph"
)

// Evaluate runs q against g and returns the matching nodes, applying
// navigation, sort and limit. q.Aggregate is not applied.
func Evaluate(q Query, g *graph.GraphAccess) ([]graph.NodeView, error) {
	if len(q.Parts) == 0 {
		return nil, errs.InvalidQuery("query has no parts")
	}

	candidates := g.AllNodeIDs()
	for i := len(q.Parts) - 1; i >= 0; i-- {
		part := q.Parts[i]
		var matched []string
		for _, id := range candidates {
			view, ok := g.Peek(id)
			if !ok {
				continue
			}
			ok, err := matchTerm(part.Term, view)
			if err != nil {
				return nil, err
			}
			if ok {
				matched = append(matched, id)
			}
		}
		if part.Navigation != nil {
			matched = navigate(g, matched, *part.Navigation)
		}
		candidates = matched
	}

	views := make([]graph.NodeView, 0, len(candidates))
	for _, id := range candidates {
		if v, ok := g.Peek(id); ok {
			views = append(views, v)
		}
	}
	views = applySort(views, q.Sort)
	if q.Limit != nil && len(views) > *q.Limit {
		views = views[:*q.Limit]
	}
	return views, nil
}

func navigate(g *graph.GraphAccess, seed []string, nav Navigation) []string {
	et := graph.EdgeType(nav.EdgeType)
	if et == "" {
		et = graph.EdgeTypeDefault
	}
	seen := map[string]bool{}
	frontier := append([]string(nil), seed...)
	for hop := 1; hop <= nav.MaxHops && len(frontier) > 0; hop++ {
		var next []string
		for _, id := range frontier {
			for _, succ := range g.Successors(id, et, nav.Direction) {
				if hop >= nav.MinHops && !seen[succ] {
					seen[succ] = true
				}
				next = append(next, succ)
			}
		}
		frontier = next
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

func matchTerm(t Term, view graph.NodeView) (bool, error) {
	switch v := t.(type) {
	case AllTerm:
		return true, nil
	case IsTerm:
		for _, k := range v.Kinds {
			if k == view.Kind {
				return true, nil
			}
		}
		return false, nil
	case IdTerm:
		return view.ID == v.ID, nil
	case CombinedTerm:
		left, err := matchTerm(v.Left, view)
		if err != nil {
			return false, err
		}
		right, err := matchTerm(v.Right, view)
		if err != nil {
			return false, err
		}
		if v.Op == "and" {
			return left && right, nil
		}
		return left || right, nil
	case Predicate:
		return matchPredicate(v, view)
	case FunctionTerm:
		return false, errs.InvalidQuery(fmt.Sprintf("unsupported function %q", v.Fn))
	default:
		return false, errs.InvalidQuery("unknown term type")
	}
}

func matchPredicate(p Predicate, view graph.NodeView) (bool, error) {
	val, ok := lookupPath(view.Payload, p.Name)
	if !ok {
		return false, nil
	}
	switch p.Mod {
	case ArrayModForAll, ArrayModForAny, ArrayModForNone:
		arr, ok := val.([]any)
		if !ok {
			return false, nil
		}
		matchCount := 0
		for _, elem := range arr {
			if compare(elem, p.Op, p.Value) {
				matchCount++
			}
		}
		switch p.Mod {
		case ArrayModForAll:
			return matchCount == len(arr), nil
		case ArrayModForAny:
			return matchCount > 0, nil
		default:
			return matchCount == 0, nil
		}
	default:
		return compare(val, p.Op, p.Value), nil
	}
}

func lookupPath(raw json.RawMessage, path string) (any, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, false
	}
	for _, seg := range strings.Split(path, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return v, true
}

func compare(val any, op string, want any) bool {
	switch op {
	case "==":
		return fmt.Sprintf("%v", val) == fmt.Sprintf("%v", want)
	case "!=":
		return fmt.Sprintf("%v", val) != fmt.Sprintf("%v", want)
	case "=~":
		re, err := regexp.Compile(fmt.Sprintf("%v", want))
		return err == nil && re.MatchString(fmt.Sprintf("%v", val))
	case "!~":
		re, err := regexp.Compile(fmt.Sprintf("%v", want))
		return err != nil || !re.MatchString(fmt.Sprintf("%v", val))
	case "in":
		arr, ok := want.([]any)
		if !ok {
			return false
		}
		for _, e := range arr {
			if fmt.Sprintf("%v", e) == fmt.Sprintf("%v", val) {
				return true
			}
		}
		return false
	case "not in":
		return !compare(val, "in", want)
	case "<", "<=", ">", ">=":
		vf, vok := toFloat(val)
		wf, wok := toFloat(want)
		if !vok || !wok {
			return false
		}
		switch op {
		case "<":
			return vf < wf
		case "<=":
			return vf <= wf
		case ">":
			return vf > wf
		default:
			return vf >= wf
		}
	default:
		return false
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func applySort(views []graph.NodeView, sorts []Sort) []graph.NodeView {
	if len(sorts) == 0 {
		return views
	}
	out := append([]graph.NodeView(nil), views...)
	less := func(i, j int) bool {
		for _, s := range sorts {
			a, _ := lookupPath(out[i].Payload, s.Name)
			b, _ := lookupPath(out[j].Payload, s.Name)
			as, bs := fmt.Sprintf("%v", a), fmt.Sprintf("%v", b)
			if as == bs {
				continue
			}
			if s.Order == "desc" {
				return as > bs
			}
			return as < bs
		}
		return false
	}
	sort.SliceStable(out, less)
	return out
}
