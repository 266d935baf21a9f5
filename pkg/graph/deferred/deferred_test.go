package deferred_test

import (
	"testing"

	"github.com/invgraph/graphcore/pkg/graph"
	"github.com/invgraph/graphcore/pkg/graph/deferred"
)

func e(from, to string, ts int64) deferred.ResolvedEdge {
	return deferred.ResolvedEdge{From: from, To: to, EdgeType: graph.EdgeTypeDefault, Timestamp: ts}
}

func TestMergeInsertsAllCurrent(t *testing.T) {
	toInsert, toDelete := deferred.Merge(nil, []deferred.ResolvedEdge{e("a", "b", 1), e("a", "c", 1)})
	if len(toInsert) != 2 || len(toDelete) != 0 {
		t.Fatalf("expected 2 inserts 0 deletes, got %d/%d", len(toInsert), len(toDelete))
	}
}

func TestMergeDeletesUnreproducedOlderEdge(t *testing.T) {
	previous := []deferred.ResolvedEdge{e("a", "b", 1)}
	current := []deferred.ResolvedEdge{e("a", "c", 2)}
	_, toDelete := deferred.Merge(previous, current)
	if len(toDelete) != 1 || toDelete[0].To != "b" {
		t.Fatalf("expected a->b deleted, got %+v", toDelete)
	}
}

func TestMergeTieKeepsBoth(t *testing.T) {
	previous := []deferred.ResolvedEdge{e("a", "b", 5)}
	current := []deferred.ResolvedEdge{e("a", "b", 5)}
	toInsert, toDelete := deferred.Merge(previous, current)
	if len(toDelete) != 0 {
		t.Fatalf("expected no deletes on a tie, got %+v", toDelete)
	}
	if len(toInsert) != 1 {
		t.Fatalf("expected the reproduced edge still inserted (idempotent), got %+v", toInsert)
	}
}

func TestMergeNewerTimestampWins(t *testing.T) {
	previous := []deferred.ResolvedEdge{e("a", "b", 1)}
	current := []deferred.ResolvedEdge{e("a", "b", 2)}
	_, toDelete := deferred.Merge(previous, current)
	if len(toDelete) != 0 {
		t.Fatalf("expected no delete when the same edge is reproduced with a newer timestamp, got %+v", toDelete)
	}
}
