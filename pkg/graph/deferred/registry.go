package deferred

import (
	"context"

	"github.com/invgraph/graphcore/pkg/errs"
	"github.com/invgraph/graphcore/pkg/graph"
	"github.com/invgraph/graphcore/pkg/store"
)

// resolvedSnapshotID is the single EntityStore key under which the
// previous resolution run's ResolvedEdge set is kept, so the next run's
// Merge has something to reconcile against — mirrors
// resotocore.db.deferred_edge_db.PendingDeferredEdges keeping one
// snapshot per graph rather than per task.
const resolvedSnapshotID = "resolved"

// Registry persists pending DeferredEdge announcements from collector
// workers and the previously-resolved edge snapshot, driving the
// merge_outer_edges workflow step.
type Registry struct {
	entries   store.EntityStore[Entry]
	snapshots store.EntityStore[[]ResolvedEdge]
}

// NewRegistry builds a Registry backed by the given entity stores.
func NewRegistry(entries store.EntityStore[Entry], snapshots store.EntityStore[[]ResolvedEdge]) *Registry {
	return &Registry{entries: entries, snapshots: snapshots}
}

// RecordEdge stores one worker's deferred-edge announcement, keyed by
// the task that produced it — a later announcement from the same task
// replaces its earlier one.
func (r *Registry) RecordEdge(ctx context.Context, taskID string, edge DeferredEdge, timestamp int64) error {
	return r.entries.Put(ctx, taskID, Entry{TaskID: taskID, Edge: edge, Timestamp: timestamp})
}

// ResolveAll replays every stored DeferredEdge against g, merges the
// result against the previous run's snapshot, persists the new
// snapshot, and reports which edges must be inserted into or deleted
// from the stored graph.
func (r *Registry) ResolveAll(ctx context.Context, g *graph.GraphAccess) (toInsert, toDelete []ResolvedEdge, err error) {
	entries, err := r.entries.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	var current []ResolvedEdge
	for _, e := range entries {
		resolved, err := Resolve(e.Edge, g, e.Timestamp)
		if err != nil {
			return nil, nil, err
		}
		current = append(current, resolved...)
	}

	previous, err := r.snapshots.Get(ctx, resolvedSnapshotID)
	if err != nil && errs.KindOf(err) != errs.KindNotFound {
		return nil, nil, err
	}

	toInsert, toDelete = Merge(previous, current)
	if err := r.snapshots.Put(ctx, resolvedSnapshotID, current); err != nil {
		return nil, nil, err
	}
	return toInsert, toDelete, nil
}
