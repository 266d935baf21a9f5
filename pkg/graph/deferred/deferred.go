// Package deferred resolves edges whose endpoints collector workers
// could only describe by search criteria at the time of reporting.
package deferred

import (
	"github.com/invgraph/graphcore/pkg/graph"
	"github.com/invgraph/graphcore/pkg/query"
)

// SelectorKind distinguishes a direct node-id reference from a search.
type SelectorKind int

const (
	ByNodeID SelectorKind = iota
	BySearchCriteria
)

// Selector names how to resolve one side of a DeferredEdge to a set of
// node ids.
type Selector struct {
	Kind  SelectorKind
	ID    string      // set when Kind == ByNodeID
	Query query.Query // set when Kind == BySearchCriteria
}

// DeferredEdge is one edge announcement a collector worker made during
// a task, to be resolved once the task's full graph is known.
type DeferredEdge struct {
	From     Selector
	To       Selector
	EdgeType graph.EdgeType
}

// Entry is a DeferredEdge persisted against a task, timestamped so
// Merge can apply the newer-timestamp-wins rule across runs.
type Entry struct {
	TaskID    string
	Edge      DeferredEdge
	Timestamp int64 // unix nanos; caller stamps this, Resolve never reads the clock
}

// ResolvedEdge is one edge produced by resolving a DeferredEdge's
// selectors against the stored graph.
type ResolvedEdge struct {
	From      string
	To        string
	EdgeType  graph.EdgeType
	Timestamp int64
}

func resolveSelector(sel Selector, g *graph.GraphAccess) ([]string, error) {
	if sel.Kind == ByNodeID {
		if _, ok := g.Peek(sel.ID); !ok {
			return nil, nil
		}
		return []string{sel.ID}, nil
	}
	views, err := query.Evaluate(sel.Query, g)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(views))
	for i, v := range views {
		ids[i] = v.ID
	}
	return ids, nil
}

// Resolve expands a DeferredEdge into the Cartesian product of its
// resolved from-ids and to-ids, as ResolvedEdge values stamped with
// timestamp.
func Resolve(edge DeferredEdge, g *graph.GraphAccess, timestamp int64) ([]ResolvedEdge, error) {
	fromIDs, err := resolveSelector(edge.From, g)
	if err != nil {
		return nil, err
	}
	toIDs, err := resolveSelector(edge.To, g)
	if err != nil {
		return nil, err
	}
	var out []ResolvedEdge
	for _, from := range fromIDs {
		for _, to := range toIDs {
			out = append(out, ResolvedEdge{From: from, To: to, EdgeType: edge.EdgeType, Timestamp: timestamp})
		}
	}
	return out, nil
}

// edgeKey identifies a resolved edge regardless of which task or
// timestamp produced it.
type edgeKey struct {
	from, to string
	edgeType graph.EdgeType
}

// Merge reconciles newly resolved edges against previously-resolved
// edges for the same (from, to, edge_type): the newer timestamp wins
// outright, and a tie keeps both (i.e. produces no deletion). It
// returns the edges to insert (idempotent — already-present edges are
// not re-counted) and the edges to delete (produced by an older,
// now-superseded task run and not reproduced by the new resolution).
func Merge(previous, current []ResolvedEdge) (toInsert, toDelete []ResolvedEdge) {
	currentByKey := map[edgeKey]ResolvedEdge{}
	for _, e := range current {
		currentByKey[edgeKey{e.From, e.To, e.EdgeType}] = e
		toInsert = append(toInsert, e)
	}
	previousByKey := map[edgeKey]ResolvedEdge{}
	for _, e := range previous {
		k := edgeKey{e.From, e.To, e.EdgeType}
		if existing, ok := previousByKey[k]; !ok || e.Timestamp > existing.Timestamp {
			previousByKey[k] = e
		}
	}

	// A previously-resolved edge survives only if the current
	// resolution reproduces the same key with a timestamp that isn't
	// older (a tie keeps both, never deleting). Anything not
	// reproduced at all was produced by an older, now-superseded run.
	for k, prev := range previousByKey {
		cur, stillPresent := currentByKey[k]
		if !stillPresent || cur.Timestamp < prev.Timestamp {
			toDelete = append(toDelete, prev)
		}
	}
	return toInsert, toDelete
}
