package graph_test

import (
	"encoding/json"
	"testing"

	"github.com/invgraph/graphcore/pkg/graph"
	"github.com/invgraph/graphcore/pkg/model"
)

func buildSimple(t *testing.T) *graph.GraphAccess {
	t.Helper()
	b := graph.NewBuilder(nil)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	must(b.AddNode("1", json.RawMessage(`{"a":1}`), "Foo"))
	must(b.AddNode("2", json.RawMessage(`{"a":2}`), "Foo"))
	must(b.AddNode("3", json.RawMessage(`{"a":3}`), "Foo"))
	must(b.AddNode("9", json.RawMessage(`{"a":9}`), "Foo"))
	must(b.AddEdge("1", "2", graph.EdgeTypeDefault))
	must(b.AddEdge("2", "3", graph.EdgeTypeDefault))
	must(b.AddEdge("3", "9", graph.EdgeTypeDefault))
	must(b.AddEdge("1", "9", graph.EdgeTypeDelete))
	g, err := b.Build()
	must(err)
	return g
}

func TestAccessNodeMarksVisited(t *testing.T) {
	g := buildSimple(t)
	if len(g.NotVisitedNodes()) != 4 {
		t.Fatalf("expected 4 unvisited nodes before any lookup")
	}
	if _, ok := g.Node("1"); !ok {
		t.Fatalf("expected node 1 to exist")
	}
	remaining := g.NotVisitedNodes()
	if len(remaining) != 3 {
		t.Fatalf("expected 3 unvisited nodes after visiting 1, got %d", len(remaining))
	}
	for _, n := range remaining {
		if n.ID == "1" {
			t.Fatalf("node 1 should no longer be unvisited")
		}
	}
}

func TestPeekDoesNotMarkVisited(t *testing.T) {
	g := buildSimple(t)
	if _, ok := g.Peek("1"); !ok {
		t.Fatalf("expected node 1 to exist")
	}
	if len(g.NotVisitedNodes()) != 4 {
		t.Fatalf("Peek must not mark a node visited")
	}
}

func TestContentHashStableUnderKeyPermutation(t *testing.T) {
	a, err := graph.ContentHash(json.RawMessage(`{"a":1,"b":2}`))
	if err != nil {
		t.Fatal(err)
	}
	bHash, err := graph.ContentHash(json.RawMessage(`{"b":2,"a":1}`))
	if err != nil {
		t.Fatal(err)
	}
	if a != bHash {
		t.Fatalf("expected permutation-stable hash, got %s != %s", a, bHash)
	}
}

func TestRoot(t *testing.T) {
	g := buildSimple(t)
	root, err := g.Root()
	if err != nil {
		t.Fatal(err)
	}
	if root != "1" {
		t.Fatalf("expected root 1, got %s", root)
	}
}

func TestEdgeTypes(t *testing.T) {
	g := buildSimple(t)
	types := g.EdgeTypes()
	if !types[graph.EdgeTypeDefault] || !types[graph.EdgeTypeDelete] {
		t.Fatalf("expected both edge types allowed")
	}
}

// TestEdgesHasEdgeMarksVisited mirrors the original test_edges scenario:
// a fresh graph with nothing visited yet, where two has_edge lookups
// that find a match remove those specific edges from the later
// not_visited_edges result, while a non-matching lookup has no effect.
func TestEdgesHasEdgeMarksVisited(t *testing.T) {
	g := buildSimple(t)

	if !g.HasEdge("1", "2", graph.EdgeTypeDefault) {
		t.Fatalf("expected edge 1->2 to exist")
	}
	if !g.HasEdge("2", "3", graph.EdgeTypeDefault) {
		t.Fatalf("expected edge 2->3 to exist")
	}
	if g.HasEdge("1", "9", graph.EdgeTypeDefault) {
		t.Fatalf("edge 1->9 is a delete edge, not default")
	}

	remaining := g.NotVisitedEdges(graph.EdgeTypeDefault)
	if len(remaining) != 1 || remaining[0] != (graph.EdgePair{From: "3", To: "9"}) {
		t.Fatalf("expected only the unconfirmed default edge 3->9 to remain unvisited, got %v", remaining)
	}

	deleteRemaining := g.NotVisitedEdges(graph.EdgeTypeDelete)
	if len(deleteRemaining) != 1 || deleteRemaining[0] != (graph.EdgePair{From: "1", To: "9"}) {
		t.Fatalf("expected delete edge 1->9 to remain unvisited, got %v", deleteRemaining)
	}
}

func TestNotVisitedEdgesIndependentOfNodeVisits(t *testing.T) {
	g := buildSimple(t)
	// Visiting nodes must not affect edge-visited bookkeeping.
	g.Node("1")
	g.Node("2")
	g.Node("3")
	remaining := g.NotVisitedEdges(graph.EdgeTypeDefault)
	if len(remaining) != 3 {
		t.Fatalf("expected all three default edges still unvisited, got %v", remaining)
	}
}

func TestFlattenPreservesSourceOrder(t *testing.T) {
	raw := json.RawMessage(`{"id":"blub","d":"2021-06-18T10:31:34Z","i":0,"s":"hello","a":[{"a":"one"},{"b":"two"}]}`)
	got := graph.Flatten(raw)
	want := "blub 2021-06-18T10:31:34Z 0 hello one two"
	if got != want {
		t.Fatalf("Flatten: got %q, want %q", got, want)
	}
}

func TestModelValidationRejectsUnknownKind(t *testing.T) {
	m := model.New(model.ComplexKind{Fqn: "Foo"})
	b := graph.NewBuilder(m)
	if err := b.AddNode("1", json.RawMessage(`{}`), "Bar"); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
}
