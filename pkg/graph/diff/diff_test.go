package diff_test

import (
	"encoding/json"
	"testing"

	"github.com/invgraph/graphcore/pkg/graph"
	"github.com/invgraph/graphcore/pkg/graph/diff"
)

func build(t *testing.T, nodes map[string]string, edges [][3]string) *graph.GraphAccess {
	t.Helper()
	b := graph.NewBuilder(nil)
	for id, data := range nodes {
		if err := b.AddNode(id, json.RawMessage(data), "Foo"); err != nil {
			t.Fatal(err)
		}
	}
	for _, e := range edges {
		et := graph.EdgeType(e[2])
		if et == "" {
			et = graph.EdgeTypeDefault
		}
		if err := b.AddEdge(e[0], e[1], et); err != nil {
			t.Fatal(err)
		}
	}
	g, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestComputeInsertsNewNodeUnderStoredRoot(t *testing.T) {
	newG := build(t, map[string]string{
		"root": `{"a":1}`,
		"1":    `{"a":2}`,
	}, [][3]string{{"root", "1", "default"}})

	stored := build(t, map[string]string{"root": `{"a":1}`}, nil)

	batch, err := diff.Compute(newG, stored)
	if err != nil {
		t.Fatal(err)
	}
	var inserts int
	for _, op := range batch.Ops {
		if op.Kind == diff.OpInsertNode || op.Kind == diff.OpInsertEdge {
			inserts++
		}
	}
	if inserts != 2 {
		t.Fatalf("expected 1 insert_node + 1 insert_edge, got %d ops: %+v", inserts, batch.Ops)
	}
}

func TestComputeDeletesUnvisitedLeavesFirst(t *testing.T) {
	newG := build(t, map[string]string{"root": `{"a":1}`}, nil)
	stored := build(t, map[string]string{
		"root": `{"a":1}`,
		"mid":  `{"a":2}`,
		"leaf": `{"a":3}`,
	}, [][3]string{{"root", "mid", "default"}, {"mid", "leaf", "default"}})

	batch, err := diff.Compute(newG, stored)
	if err != nil {
		t.Fatal(err)
	}

	var order []string
	for _, op := range batch.Ops {
		if op.Kind == diff.OpDeleteNode {
			order = append(order, op.Node.ID)
		}
	}
	if len(order) != 2 {
		t.Fatalf("expected 2 delete_node ops, got %v", order)
	}
	leafIdx, midIdx := -1, -1
	for i, id := range order {
		if id == "leaf" {
			leafIdx = i
		}
		if id == "mid" {
			midIdx = i
		}
	}
	if leafIdx == -1 || midIdx == -1 || leafIdx > midIdx {
		t.Fatalf("expected leaf before mid, got %v", order)
	}
}

func TestComputeNoOpWhenUnchanged(t *testing.T) {
	newG := build(t, map[string]string{"root": `{"a":1}`, "1": `{"a":2}`}, [][3]string{{"root", "1", "default"}})
	stored := build(t, map[string]string{"root": `{"a":1}`, "1": `{"a":2}`}, [][3]string{{"root", "1", "default"}})

	batch, err := diff.Compute(newG, stored)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Ops) != 0 {
		t.Fatalf("expected empty batch for identical graphs, got %+v", batch.Ops)
	}
}
