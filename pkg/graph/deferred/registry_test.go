package deferred_test

import (
	"context"
	"testing"

	"github.com/invgraph/graphcore/pkg/graph"
	"github.com/invgraph/graphcore/pkg/graph/deferred"
	"github.com/invgraph/graphcore/pkg/store"
)

func buildResolveGraph(t *testing.T) *graph.GraphAccess {
	t.Helper()
	nodes := []graph.Node{
		{ID: "root", Kind: "graph_root", Reported: []byte(`{}`)},
		{ID: "n1", Kind: "instance", Reported: []byte(`{}`)},
		{ID: "n2", Kind: "instance", Reported: []byte(`{}`)},
	}
	edges := []graph.Edge{{From: "root", To: "n1", Type: graph.EdgeTypeDefault}}
	g, err := graph.NewGraphAccess(nodes, edges)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return g
}

func TestRegistryResolveAllInsertsNewlyRecordedEdge(t *testing.T) {
	entries := store.NewInMemory[deferred.Entry]()
	snapshots := store.NewInMemory[[]deferred.ResolvedEdge]()
	reg := deferred.NewRegistry(entries, snapshots)
	ctx := context.Background()

	edge := deferred.DeferredEdge{
		From:     deferred.Selector{Kind: deferred.ByNodeID, ID: "n1"},
		To:       deferred.Selector{Kind: deferred.ByNodeID, ID: "n2"},
		EdgeType: graph.EdgeTypeDefault,
	}
	if err := reg.RecordEdge(ctx, "task1", edge, 1); err != nil {
		t.Fatalf("record edge: %v", err)
	}

	toInsert, toDelete, err := reg.ResolveAll(ctx, buildResolveGraph(t))
	if err != nil {
		t.Fatalf("resolve all: %v", err)
	}
	if len(toDelete) != 0 {
		t.Fatalf("expected no deletes on first run, got %+v", toDelete)
	}
	if len(toInsert) != 1 || toInsert[0].From != "n1" || toInsert[0].To != "n2" {
		t.Fatalf("expected n1->n2 inserted, got %+v", toInsert)
	}
}

func TestRegistryResolveAllDeletesEdgeNoLongerAnnounced(t *testing.T) {
	entries := store.NewInMemory[deferred.Entry]()
	snapshots := store.NewInMemory[[]deferred.ResolvedEdge]()
	reg := deferred.NewRegistry(entries, snapshots)
	ctx := context.Background()
	g := buildResolveGraph(t)

	edge := deferred.DeferredEdge{
		From:     deferred.Selector{Kind: deferred.ByNodeID, ID: "n1"},
		To:       deferred.Selector{Kind: deferred.ByNodeID, ID: "n2"},
		EdgeType: graph.EdgeTypeDefault,
	}
	if err := reg.RecordEdge(ctx, "task1", edge, 1); err != nil {
		t.Fatalf("record edge: %v", err)
	}
	if _, _, err := reg.ResolveAll(ctx, g); err != nil {
		t.Fatalf("first resolve: %v", err)
	}

	if err := entries.Delete(ctx, "task1"); err != nil {
		t.Fatalf("delete entry: %v", err)
	}
	_, toDelete, err := reg.ResolveAll(ctx, g)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if len(toDelete) != 1 || toDelete[0].From != "n1" || toDelete[0].To != "n2" {
		t.Fatalf("expected n1->n2 deleted once no longer announced, got %+v", toDelete)
	}
}

func TestRegistryResolveAllSkipsUnknownNodeIDs(t *testing.T) {
	entries := store.NewInMemory[deferred.Entry]()
	snapshots := store.NewInMemory[[]deferred.ResolvedEdge]()
	reg := deferred.NewRegistry(entries, snapshots)
	ctx := context.Background()

	edge := deferred.DeferredEdge{
		From:     deferred.Selector{Kind: deferred.ByNodeID, ID: "n1"},
		To:       deferred.Selector{Kind: deferred.ByNodeID, ID: "does-not-exist"},
		EdgeType: graph.EdgeTypeDefault,
	}
	if err := reg.RecordEdge(ctx, "task1", edge, 1); err != nil {
		t.Fatalf("record edge: %v", err)
	}

	toInsert, _, err := reg.ResolveAll(ctx, buildResolveGraph(t))
	if err != nil {
		t.Fatalf("resolve all: %v", err)
	}
	if len(toInsert) != 0 {
		t.Fatalf("expected no edges resolved against an unknown node id, got %+v", toInsert)
	}
}
