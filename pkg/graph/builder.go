package graph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invgraph/graphcore/pkg/errs"
	"github.com/invgraph/graphcore/pkg/model"
)

// nodeRecord is the ingested record for a node: {"id": ..., "data": ..., "kind": ...}.
type nodeRecord struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
	Kind string          `json:"kind"`
}

// edgeRecord is the ingested record for an edge: {"from": ..., "to": ..., "edge_type": ...}.
type edgeRecord struct {
	From     string `json:"from"`
	To       string `json:"to"`
	EdgeType string `json:"edge_type"`
}

// Builder consumes an ordered stream of node/edge records and produces
// a validated GraphAccess. It mirrors GraphBuilder from the original
// model (see tests/core/model/graph_access_test.py's test_builder): a
// dangling edge or a multi-root graph fails check_complete with a
// descriptive message rather than silently succeeding.
type Builder struct {
	model *model.Model

	nodeOrder []string
	nodes     map[string]*nodeRecord
	edgeOrder map[EdgeType][]Edge
	edgeSeen  map[EdgeType]map[edgeKey]bool
}

// NewBuilder creates a Builder that validates node payloads against m.
// A nil model skips payload validation (useful for tests and tooling
// that only care about graph shape).
func NewBuilder(m *model.Model) *Builder {
	return &Builder{
		model:     m,
		nodes:     make(map[string]*nodeRecord),
		edgeOrder: make(map[EdgeType][]Edge),
		edgeSeen:  make(map[EdgeType]map[edgeKey]bool),
	}
}

// AddNode adds a node record: {"id": "<id>", "data": {...}, "kind": "<fqn>"}.
func (b *Builder) AddNode(id string, data json.RawMessage, kind string) error {
	if _, exists := b.nodes[id]; exists {
		return errs.IncompleteGraph(fmt.Sprintf("duplicate node id %q", id))
	}
	payload := map[string]any{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return errs.ModelViolation(fmt.Sprintf("node %q: invalid payload: %v", id, err))
		}
	}
	if b.model != nil {
		if err := b.model.Validate(kind, payload); err != nil {
			return err
		}
	}
	reencoded, err := json.Marshal(payload)
	if err != nil {
		return errs.ModelViolation(fmt.Sprintf("node %q: %v", id, err))
	}
	b.nodes[id] = &nodeRecord{ID: id, Data: reencoded, Kind: kind}
	b.nodeOrder = append(b.nodeOrder, id)
	return nil
}

// AddEdge adds an edge record. An empty edgeType defaults to "default".
func (b *Builder) AddEdge(from, to string, edgeType EdgeType) error {
	if edgeType == "" {
		edgeType = EdgeTypeDefault
	}
	if !AllowedEdgeTypes[edgeType] {
		return errs.InvalidQuery(fmt.Sprintf("unknown edge_type %q", edgeType))
	}
	key := edgeKey{From: from, To: to}
	if b.edgeSeen[edgeType] == nil {
		b.edgeSeen[edgeType] = make(map[edgeKey]bool)
	}
	if b.edgeSeen[edgeType][key] {
		return nil // duplicate (from,to,edge_type) is a no-op, not an error
	}
	b.edgeSeen[edgeType][key] = true
	b.edgeOrder[edgeType] = append(b.edgeOrder[edgeType], Edge{From: from, To: to, Type: edgeType})
	return nil
}

// AddRecord dispatches a raw NDJSON record to AddNode or AddEdge based
// on which fields are present, mirroring the original's single
// add_node(record) entrypoint that accepts either record shape.
func (b *Builder) AddRecord(raw json.RawMessage) error {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return errs.ModelViolation(fmt.Sprintf("invalid ingestion record: %v", err))
	}
	if _, isNode := probe["id"]; isNode {
		var nr nodeRecord
		if err := json.Unmarshal(raw, &nr); err != nil {
			return errs.ModelViolation(fmt.Sprintf("invalid node record: %v", err))
		}
		return b.AddNode(nr.ID, nr.Data, nr.Kind)
	}
	if _, isEdge := probe["from"]; isEdge {
		var er edgeRecord
		if err := json.Unmarshal(raw, &er); err != nil {
			return errs.ModelViolation(fmt.Sprintf("invalid edge record: %v", err))
		}
		return b.AddEdge(er.From, er.To, EdgeType(er.EdgeType))
	}
	return errs.ModelViolation("ingestion record is neither a node nor an edge")
}

// CheckComplete enforces that every edge endpoint names a known node
// and that the subgraph has exactly one root (a node with no incoming
// default edge).
func (b *Builder) CheckComplete() error {
	for _, edges := range b.edgeOrder {
		for _, e := range edges {
			if _, ok := b.nodes[e.From]; !ok {
				return errs.IncompleteGraph(fmt.Sprintf("vertex %s was used in an edge definition but not provided as vertex", e.From))
			}
			if _, ok := b.nodes[e.To]; !ok {
				return errs.IncompleteGraph(fmt.Sprintf("vertex %s was used in an edge definition but not provided as vertex", e.To))
			}
		}
	}
	roots := b.roots()
	if len(roots) != 1 {
		sort.Strings(roots)
		return errs.IncompleteGraph(fmt.Sprintf("given subgraph has %d roots: %v", len(roots), roots))
	}
	return nil
}

func (b *Builder) roots() []string {
	hasIncoming := make(map[string]bool, len(b.nodes))
	for _, e := range b.edgeOrder[EdgeTypeDefault] {
		hasIncoming[e.To] = true
	}
	var roots []string
	for _, id := range b.nodeOrder {
		if !hasIncoming[id] {
			roots = append(roots, id)
		}
	}
	return roots
}

// Build finalizes the builder into a read-only GraphAccess. It runs
// CheckComplete itself and returns its error if the graph is incomplete.
func (b *Builder) Build() (*GraphAccess, error) {
	if err := b.CheckComplete(); err != nil {
		return nil, err
	}
	g := &graphData{
		nodes:       make(map[string]*internalNode, len(b.nodes)),
		nodeOrder:   append([]string(nil), b.nodeOrder...),
		edgesByType: make(map[EdgeType][]*edgeEntry, len(b.edgeOrder)),
	}
	for id, nr := range b.nodes {
		hash, err := ContentHash(nr.Data)
		if err != nil {
			return nil, errs.ModelViolation(fmt.Sprintf("node %q: %v", id, err))
		}
		var payload map[string]any
		_ = json.Unmarshal(nr.Data, &payload)
		g.nodes[id] = &internalNode{
			id:      id,
			kind:    nr.Kind,
			payload: payload,
			raw:     nr.Data,
			hash:    hash,
			flat:    Flatten(nr.Data),
		}
	}
	for t, edges := range b.edgeOrder {
		entries := make([]*edgeEntry, len(edges))
		for i, e := range edges {
			entries[i] = &edgeEntry{edge: e}
		}
		g.edgesByType[t] = entries
	}
	return &GraphAccess{g: g}, nil
}

// Flatten projects a raw JSON payload to a single space-joined string
// of its leaf scalar values, recursing into nested objects and arrays
// in source (not sorted) order — object key order is significant here,
// unlike in ContentHash, so Flatten walks the raw bytes token by token
// instead of going through a map[string]any.
func Flatten(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var parts []string
	_ = flattenValue(dec, &parts)
	return strings.Join(parts, " ")
}

func flattenValue(dec *json.Decoder, parts *[]string) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			for dec.More() {
				if _, err := dec.Token(); err != nil { // key
					return err
				}
				if err := flattenValue(dec, parts); err != nil {
					return err
				}
			}
			_, err := dec.Token() // consume '}'
			return err
		case '[':
			for dec.More() {
				if err := flattenValue(dec, parts); err != nil {
					return err
				}
			}
			_, err := dec.Token() // consume ']'
			return err
		}
	case nil:
		// null contributes nothing
	case bool:
		*parts = append(*parts, fmt.Sprintf("%v", t))
	case json.Number:
		*parts = append(*parts, t.String())
	case string:
		*parts = append(*parts, t)
	}
	return nil
}
