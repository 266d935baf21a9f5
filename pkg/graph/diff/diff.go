// Package diff computes the ordered batch of operations needed to
// merge a freshly-ingested subgraph into a stored graph rooted at the
// same node.
package diff

import (
	"github.com/invgraph/graphcore/pkg/graph"
)

// OpKind identifies one operation in a merge batch.
type OpKind string

const (
	OpInsertNode OpKind = "insert_node"
	OpUpdateNode OpKind = "update_node"
	OpDeleteNode OpKind = "delete_node"
	OpInsertEdge OpKind = "insert_edge"
	OpDeleteEdge OpKind = "delete_edge"
)

// Op is a single step of a merge batch.
type Op struct {
	Kind OpKind
	Node *graph.Node // set for node ops
	Edge *graph.Edge // set for edge ops
}

// Batch is an ordered list of operations, safe to apply as a single
// transaction. Deletions are ordered leaves-first: a node with no
// outgoing default edge to another deleted node precedes its
// predecessors.
type Batch struct {
	Ops []Op
}

// Compute walks newGraph from root, diffing it against stored (the
// subgraph of the persisted graph reachable from the same root) and
// returns the batch of operations that brings stored in line with
// newGraph.
//
// stored must not have had Node/HasEdge called on it before Compute
// runs: Compute relies on NotVisitedNodes/NotVisitedEdges reflecting
// exactly what the walk below touches.
func Compute(newGraph, stored *graph.GraphAccess) (Batch, error) {
	root, err := newGraph.Root()
	if err != nil {
		return Batch{}, err
	}

	var batch Batch
	visited := map[string]bool{}
	queue := []string{root}

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if visited[id] {
			continue
		}
		visited[id] = true

		view, ok := newGraph.Node(id)
		if !ok {
			continue
		}
		storedView, found := stored.Node(id)
		switch {
		case !found:
			batch.Ops = append(batch.Ops, Op{Kind: OpInsertNode, Node: &graph.Node{
				ID: view.ID, Kind: view.Kind, Reported: view.Payload,
			}})
		case storedView.ContentHash != view.ContentHash:
			batch.Ops = append(batch.Ops, Op{Kind: OpUpdateNode, Node: &graph.Node{
				ID: view.ID, Kind: view.Kind, Reported: view.Payload,
			}})
		default:
			// equal: no-op, but node is marked visited on both sides above.
		}

		for et := range newGraph.EdgeTypes() {
			for _, e := range newGraph.Edges(et) {
				if e.From != id {
					continue
				}
				if !stored.HasEdge(e.From, e.To, et) {
					edge := e
					batch.Ops = append(batch.Ops, Op{Kind: OpInsertEdge, Edge: &edge})
				}
				queue = append(queue, e.To)
			}
		}
	}

	deletedNodes := map[string]bool{}
	for _, nv := range stored.NotVisitedNodes() {
		deletedNodes[nv.ID] = true
	}

	nodeOps := orderDeletionsLeavesFirst(deletedNodes, stored)
	batch.Ops = append(batch.Ops, nodeOps...)

	for et := range stored.EdgeTypes() {
		for _, pair := range stored.NotVisitedEdges(et) {
			if deletedNodes[pair.From] || deletedNodes[pair.To] {
				continue // already covered by the cascading node delete
			}
			edgeType := et
			batch.Ops = append(batch.Ops, Op{Kind: OpDeleteEdge, Edge: &graph.Edge{
				From: pair.From, To: pair.To, Type: edgeType,
			}})
		}
	}

	return batch, nil
}

// orderDeletionsLeavesFirst produces delete_node ops for the given node
// ids such that a node with no outgoing default edge into another
// to-be-deleted node precedes its predecessors — a node is only
// "ready" once all of its to-be-deleted default-edge successors have
// already been emitted.
func orderDeletionsLeavesFirst(ids map[string]bool, stored *graph.GraphAccess) []Op {
	remaining := make(map[string]bool, len(ids))
	for id := range ids {
		remaining[id] = true
	}

	var ops []Op
	for len(remaining) > 0 {
		progressed := false
		for id := range remaining {
			ready := true
			for _, succ := range stored.Successors(id, graph.EdgeTypeDefault, "out") {
				if remaining[succ] {
					ready = false
					break
				}
			}
			if ready {
				ops = append(ops, Op{Kind: OpDeleteNode, Node: &graph.Node{ID: id}})
				delete(remaining, id)
				progressed = true
			}
		}
		if !progressed {
			// cycle among to-be-deleted nodes: emit the rest in map
			// iteration order (not deterministic) rather than looping
			// forever.
			for id := range remaining {
				ops = append(ops, Op{Kind: OpDeleteNode, Node: &graph.Node{ID: id}})
				delete(remaining, id)
			}
		}
	}
	return ops
}
