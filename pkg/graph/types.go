// Package graph implements the in-memory directed multigraph the rest
// of graphcore operates on: node records with content hashes, typed
// edges, a builder that assembles a subgraph from an ingestion stream,
// and a read view (GraphAccess) used by diffing and querying.
package graph

import "encoding/json"

// EdgeType distinguishes the two edge kinds a stored graph can carry
// between the same pair of nodes.
type EdgeType string

const (
	EdgeTypeDefault EdgeType = "default"
	EdgeTypeDelete  EdgeType = "delete"
)

// AllowedEdgeTypes is the closed set of edge types a query or ingestion
// record may name.
var AllowedEdgeTypes = map[EdgeType]bool{
	EdgeTypeDefault: true,
	EdgeTypeDelete:  true,
}

// GraphRootID names the synthetic node that anchors unrelated account
// subgraphs together.
const GraphRootID = "graph_root"

// Node is one vertex of the stored or incoming graph.
type Node struct {
	ID       string
	Kind     string
	Reported json.RawMessage // cloud-supplied payload, canonical-hashed
	Desired  json.RawMessage // operator intent, not hashed
	Metadata json.RawMessage // lifecycle flags: protected, phantom, cleaned
}

// Edge connects two nodes by ID with a type. Parallel edges of
// different EdgeType between the same pair are permitted.
type Edge struct {
	From string
	To   string
	Type EdgeType
}

// edgeKey identifies an edge uniquely within a single EdgeType bucket.
type edgeKey struct {
	From string
	To   string
}
