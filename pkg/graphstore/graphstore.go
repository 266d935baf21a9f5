// Package graphstore holds the persisted graph in memory, applying
// diff batches under a writer-priority lock and serving consistent
// snapshots to readers (queries). It is the concrete GraphSource the
// HTTP API and ingestion path share.
package graphstore

import (
	"bufio"
	"context"
	"encoding/json"
	"io"

	"github.com/invgraph/graphcore/pkg/errs"
	"github.com/invgraph/graphcore/pkg/graph"
	"github.com/invgraph/graphcore/pkg/graph/deferred"
	"github.com/invgraph/graphcore/pkg/graph/diff"
	"github.com/invgraph/graphcore/pkg/metrics"
	"github.com/invgraph/graphcore/pkg/model"
	"github.com/invgraph/graphcore/pkg/rwlock"
)

// Store is the single persisted graph, exposed to readers as a
// GraphAccess snapshot and mutated only through IngestNDJSON and
// ApplyDeferredEdges under the writer-priority lock so queries never see
// a partially-applied merge.
type Store struct {
	lock    *rwlock.RWLock
	model   *model.Model
	nodes   map[string]graph.Node
	edges   map[string]graph.Edge // keyed by from|to|type
	metrics *metrics.Metrics
}

// New creates an empty Store validating ingested node payloads against m.
func New(lock *rwlock.RWLock, m *model.Model) *Store {
	return &Store{lock: lock, model: m, nodes: map[string]graph.Node{}, edges: map[string]graph.Edge{}}
}

// SetMetrics attaches a Metrics collector; optional.
func (s *Store) SetMetrics(m *metrics.Metrics) { s.metrics = m }

func edgeKey(e graph.Edge) string { return e.From + "|" + e.To + "|" + string(e.Type) }

// CurrentGraph returns a read-only snapshot of the current persisted
// graph. It takes no lock itself and reads the maps that IngestNDJSON
// and ApplyDeferredEdges mutate, so callers hold Store.RLock (or the
// shared writer lock) around it.
func (s *Store) CurrentGraph() *graph.GraphAccess {
	nodes := make([]graph.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		nodes = append(nodes, n)
	}
	edges := make([]graph.Edge, 0, len(s.edges))
	for _, e := range s.edges {
		edges = append(edges, e)
	}
	ga, err := graph.NewGraphAccess(nodes, edges)
	if err != nil {
		// NewGraphAccess only fails on a bad content hash, which
		// IngestNDJSON's prior Build() call would already have
		// rejected — fall back to an empty graph rather than panic.
		ga, _ = graph.NewGraphAccess(nil, nil)
	}
	return ga
}

// RLock/RUnlock expose the underlying writer-priority lock so the HTTP
// layer can hold readers across Evaluate without a second lock type.
func (s *Store) RLock()   { s.lock.RLock() }
func (s *Store) RUnlock() { s.lock.RUnlock() }

// IngestNDJSON reads newline-delimited ingestion records (node and
// edge kinds per the wire format) and builds the incoming subgraph
// without holding a lock, then diffs it against the currently stored
// graph and applies the resulting batch under the writer lock,
// excluding readers for the duration of the merge.
func (s *Store) IngestNDJSON(r io.Reader) (diff.Batch, error) {
	b := graph.NewBuilder(s.model)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := b.AddRecord(json.RawMessage(append([]byte(nil), line...))); err != nil {
			return diff.Batch{}, err
		}
	}
	if err := scanner.Err(); err != nil {
		return diff.Batch{}, errs.Internal("read ingestion stream", err)
	}
	if err := b.CheckComplete(); err != nil {
		return diff.Batch{}, err
	}
	newGraph, err := b.Build()
	if err != nil {
		return diff.Batch{}, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	stored := s.CurrentGraph()
	batch, err := diff.Compute(newGraph, stored)
	if err != nil {
		return diff.Batch{}, err
	}
	s.applyLocked(batch)
	return batch, nil
}

// ApplyDeferredEdges resolves every pending deferred-edge announcement
// in reg against the current graph, merges the result against the
// previous run's resolution, and applies the resulting insert/delete
// set under the writer lock — the merge_outer_edges workflow step's
// actual work.
func (s *Store) ApplyDeferredEdges(ctx context.Context, reg *deferred.Registry) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	toInsert, toDelete, err := reg.ResolveAll(ctx, s.CurrentGraph())
	if err != nil {
		return err
	}
	counts := map[diff.OpKind]int{}
	for _, e := range toInsert {
		edge := graph.Edge{From: e.From, To: e.To, Type: e.EdgeType}
		s.edges[edgeKey(edge)] = edge
		counts[diff.OpInsertEdge]++
	}
	for _, e := range toDelete {
		edge := graph.Edge{From: e.From, To: e.To, Type: e.EdgeType}
		delete(s.edges, edgeKey(edge))
		counts[diff.OpDeleteEdge]++
	}
	if s.metrics != nil {
		for kind, n := range counts {
			s.metrics.DiffBatchSize.WithLabelValues(string(kind)).Observe(float64(n))
		}
	}
	return nil
}

func (s *Store) applyLocked(batch diff.Batch) {
	counts := map[diff.OpKind]int{}
	for _, op := range batch.Ops {
		counts[op.Kind]++
		switch op.Kind {
		case diff.OpInsertNode, diff.OpUpdateNode:
			s.nodes[op.Node.ID] = *op.Node
		case diff.OpDeleteNode:
			delete(s.nodes, op.Node.ID)
		case diff.OpInsertEdge:
			s.edges[edgeKey(*op.Edge)] = *op.Edge
		case diff.OpDeleteEdge:
			delete(s.edges, edgeKey(*op.Edge))
		}
	}
	if s.metrics != nil {
		for kind, n := range counts {
			s.metrics.DiffBatchSize.WithLabelValues(string(kind)).Observe(float64(n))
		}
	}
}
