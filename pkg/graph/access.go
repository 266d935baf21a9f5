package graph

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/invgraph/graphcore/pkg/errs"
)

type internalNode struct {
	id      string
	kind    string
	payload map[string]any
	raw     json.RawMessage
	hash    string
	flat    string
	visited bool
}

type edgeEntry struct {
	edge    Edge
	visited bool
}

type graphData struct {
	nodes       map[string]*internalNode
	nodeOrder   []string
	edgesByType map[EdgeType][]*edgeEntry
}

// NodeView is the read projection of a node returned by GraphAccess.
type NodeView struct {
	ID          string
	Payload     json.RawMessage
	ContentHash string
	Flat        string
	Kind        string
}

// EdgePair is a (from, to) pair within a single, already-known edge type.
type EdgePair struct {
	From string
	To   string
}

// GraphAccess is a typed read view over an in-memory directed
// multigraph produced by Builder (for incoming subgraphs) or by a
// stored-graph adapter (for the persisted graph diff walks against).
//
// Both Node and HasEdge mark what they return as "visited": Diff walks
// the incoming graph calling Node on every reachable id and HasEdge for
// every edge it carries, then asks the *stored* graph's GraphAccess for
// NotVisitedNodes/NotVisitedEdges to discover what no longer appears in
// the new subgraph and must be deleted.
type GraphAccess struct {
	g *graphData
}

// NewGraphAccess wraps a set of nodes and edges directly, used by
// stored-graph adapters that hydrate from a durable backing store
// rather than from a Builder.
func NewGraphAccess(nodes []Node, edges []Edge) (*GraphAccess, error) {
	g := &graphData{
		nodes:       make(map[string]*internalNode, len(nodes)),
		edgesByType: make(map[EdgeType][]*edgeEntry),
	}
	for _, n := range nodes {
		hash, err := ContentHash(n.Reported)
		if err != nil {
			return nil, errs.ModelViolation(fmt.Sprintf("node %q: %v", n.ID, err))
		}
		var payload map[string]any
		_ = json.Unmarshal(n.Reported, &payload)
		g.nodes[n.ID] = &internalNode{
			id:      n.ID,
			kind:    n.Kind,
			payload: payload,
			raw:     n.Reported,
			hash:    hash,
			flat:    Flatten(n.Reported),
		}
		g.nodeOrder = append(g.nodeOrder, n.ID)
	}
	for _, e := range edges {
		g.edgesByType[e.Type] = append(g.edgesByType[e.Type], &edgeEntry{edge: e})
	}
	return &GraphAccess{g: g}, nil
}

// Node looks up a node by id. On first lookup of an id, the node is
// marked visited; subsequent lookups are idempotent.
func (a *GraphAccess) Node(id string) (NodeView, bool) {
	n, ok := a.g.nodes[id]
	if !ok {
		return NodeView{}, false
	}
	n.visited = true
	return NodeView{ID: n.id, Payload: n.raw, ContentHash: n.hash, Flat: n.flat, Kind: n.kind}, true
}

// Peek looks a node up without marking it visited.
func (a *GraphAccess) Peek(id string) (NodeView, bool) {
	n, ok := a.g.nodes[id]
	if !ok {
		return NodeView{}, false
	}
	return NodeView{ID: n.id, Payload: n.raw, ContentHash: n.hash, Flat: n.flat, Kind: n.kind}, true
}

// NotVisitedNodes returns every node never returned by Node, in
// insertion order.
func (a *GraphAccess) NotVisitedNodes() []NodeView {
	var out []NodeView
	for _, id := range a.g.nodeOrder {
		n := a.g.nodes[id]
		if !n.visited {
			out = append(out, NodeView{ID: n.id, Payload: n.raw, ContentHash: n.hash, Flat: n.flat, Kind: n.kind})
		}
	}
	return out
}

// HasEdge reports whether the given (from, to, edgeType) edge exists.
// A positive lookup marks the matching edge visited.
func (a *GraphAccess) HasEdge(from, to string, edgeType EdgeType) bool {
	for _, e := range a.g.edgesByType[edgeType] {
		if e.edge.From == from && e.edge.To == to {
			e.visited = true
			return true
		}
	}
	return false
}

// Edges returns all edges of a given type, in insertion order.
func (a *GraphAccess) Edges(edgeType EdgeType) []Edge {
	out := make([]Edge, 0, len(a.g.edgesByType[edgeType]))
	for _, e := range a.g.edgesByType[edgeType] {
		out = append(out, e.edge)
	}
	return out
}

// NotVisitedEdges returns the (from,to) pairs of edgeType never
// confirmed present via HasEdge, in insertion order.
func (a *GraphAccess) NotVisitedEdges(edgeType EdgeType) []EdgePair {
	var out []EdgePair
	for _, e := range a.g.edgesByType[edgeType] {
		if !e.visited {
			out = append(out, EdgePair{From: e.edge.From, To: e.edge.To})
		}
	}
	return out
}

// Root returns the id of the single node with no incoming default
// edge. Builder.CheckComplete guarantees uniqueness for graphs it
// produced; stored-graph adapters that didn't go through Builder get
// an IncompleteGraph error instead of an ambiguous answer.
func (a *GraphAccess) Root() (string, error) {
	hasIncoming := make(map[string]bool, len(a.g.nodes))
	for _, e := range a.g.edgesByType[EdgeTypeDefault] {
		hasIncoming[e.edge.To] = true
	}
	var roots []string
	for _, id := range a.g.nodeOrder {
		if !hasIncoming[id] {
			roots = append(roots, id)
		}
	}
	if len(roots) != 1 {
		sort.Strings(roots)
		return "", errs.IncompleteGraph(fmt.Sprintf("expected exactly one root, found %d: %v", len(roots), roots))
	}
	return roots[0], nil
}

// EdgeTypes is the closed set of edge types a graph may carry.
func (a *GraphAccess) EdgeTypes() map[EdgeType]bool {
	return AllowedEdgeTypes
}

// AllNodeIDs returns every node id in insertion order, regardless of
// visited state. Used by the query evaluator, which doesn't follow the
// visit/reachability protocol Diff relies on.
func (a *GraphAccess) AllNodeIDs() []string {
	return append([]string(nil), a.g.nodeOrder...)
}

// Successors returns the ids reachable from id via a single edge of
// edgeType in the given direction ("out", "in", or "inout").
func (a *GraphAccess) Successors(id string, edgeType EdgeType, direction string) []string {
	var out []string
	for _, e := range a.g.edgesByType[edgeType] {
		switch direction {
		case "out":
			if e.edge.From == id {
				out = append(out, e.edge.To)
			}
		case "in":
			if e.edge.To == id {
				out = append(out, e.edge.From)
			}
		default: // inout
			if e.edge.From == id {
				out = append(out, e.edge.To)
			} else if e.edge.To == id {
				out = append(out, e.edge.From)
			}
		}
	}
	return out
}
