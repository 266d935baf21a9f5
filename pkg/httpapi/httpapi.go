// Package httpapi exposes the CLI execution surface over HTTP:
// POST /cli/execute and POST /cli/evaluate, with content negotiation
// across JSON, NDJSON, YAML, plain text and DOT. Routing, middleware
// and error-response shape follow the teacher's
// services/workflow/service.go (gorilla/mux subrouter, request-ID
// middleware, writeErrorJSON-style structured error bodies).
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/invgraph/graphcore/pkg/errs"
	"github.com/invgraph/graphcore/pkg/graph"
	"github.com/invgraph/graphcore/pkg/graph/diff"
	"github.com/invgraph/graphcore/pkg/query"
	"github.com/invgraph/graphcore/pkg/query/parser"
	"github.com/invgraph/graphcore/pkg/rwlock"
)

type contextKey string

const requestIDKey contextKey = "requestID"

// GraphSource supplies the current stored graph snapshot that queries
// evaluate against, guarded by a writer-priority lock so a merge batch
// can exclude readers without starving them indefinitely.
type GraphSource interface {
	CurrentGraph() *graph.GraphAccess
}

// Ingester applies an NDJSON ingestion stream to the stored graph.
type Ingester interface {
	IngestNDJSON(r io.Reader) (diff.Batch, error)
}

// Service handles the CLI execution and ingestion HTTP surface,
// mirroring the teacher's Service struct in
// services/workflow/service.go: a thin handler layer depending on an
// interface, not a concrete store.
type Service struct {
	graphs   GraphSource
	ingester Ingester
	lock     *rwlock.RWLock
}

// NewService builds a Service reading from graphs, synchronized by lock.
func NewService(graphs GraphSource, ingester Ingester, lock *rwlock.RWLock) *Service {
	return &Service{graphs: graphs, ingester: ingester, lock: lock}
}

// requestIDMiddleware assigns a unique ID to each request for log
// correlation, reusing X-Request-ID if the client sent one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func reqID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey).(string)
	return id
}

// LoadRoutes mounts the CLI surface under /cli and the ingestion
// endpoint under /graph on parentRouter.
func (s *Service) LoadRoutes(parentRouter *mux.Router) {
	router := parentRouter.PathPrefix("/cli").Subrouter()
	router.StrictSlash(false)
	router.Use(requestIDMiddleware)

	router.HandleFunc("/execute", s.HandleExecute).Methods("POST")
	router.HandleFunc("/evaluate", s.HandleEvaluate).Methods("POST")

	graphRouter := parentRouter.PathPrefix("/graph").Subrouter()
	graphRouter.StrictSlash(false)
	graphRouter.Use(requestIDMiddleware)
	graphRouter.HandleFunc("/ingest", s.HandleIngest).Methods("POST")
}

// HandleIngest streams the request body as NDJSON ingestion records
// into the stored graph, resolving the diff batch under the writer
// lock, and returns a summary of the applied operations.
func (s *Service) HandleIngest(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	r.Body = http.MaxBytesReader(w, r.Body, 64<<20)

	batch, err := s.ingester.IngestNDJSON(r.Body)
	if err != nil {
		slog.Warn("ingestion failed", "requestId", rid, "error", err)
		writeError(w, err)
		return
	}

	counts := map[string]int{}
	for _, op := range batch.Ops {
		counts[string(op.Kind)]++
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{"applied": counts, "total": len(batch.Ops)})
}

// HandleEvaluate parses the request body as a query string and returns
// the parsed, simplified AST without running it — useful for clients
// validating a query before executing it against live data.
func (s *Service) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, errs.ParseError(err.Error(), -1))
		return
	}

	q, err := parser.Parse(body)
	if err != nil {
		slog.Warn("query parse failed", "requestId", rid, "error", err)
		writeError(w, err)
		return
	}
	q = query.SimplifyQuery(q)

	writeNegotiated(w, r, []graph.NodeView{}, map[string]any{"parsed": query.Render(q)})
}

// HandleExecute parses and evaluates a CLI query string against the
// current stored graph, returning matching nodes content-negotiated
// per the Accept header.
func (s *Service) HandleExecute(w http.ResponseWriter, r *http.Request) {
	rid := reqID(r)
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, errs.ParseError(err.Error(), -1))
		return
	}

	q, err := parser.Parse(body)
	if err != nil {
		slog.Warn("query parse failed", "requestId", rid, "error", err)
		writeError(w, err)
		return
	}
	q = query.SimplifyQuery(q)

	s.lock.RLock()
	g := s.graphs.CurrentGraph()
	views, err := query.Evaluate(q, g)
	s.lock.RUnlock()
	if err != nil {
		slog.Error("query evaluation failed", "requestId", rid, "error", err)
		writeError(w, err)
		return
	}

	writeNegotiated(w, r, views, nil)
}

func readBody(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	data := make([]byte, 0, 1024)
	buf := make([]byte, 1024)
	for {
		n, err := r.Body.Read(buf)
		data = append(data, buf[:n]...)
		if err != nil {
			break
		}
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty request body")
	}
	return string(data), nil
}

// negotiate picks a response format from the Accept header, defaulting
// to application/json when absent or unrecognized.
func negotiate(r *http.Request) string {
	accept := r.Header.Get("Accept")
	if accept == "" {
		return "application/json"
	}
	mt, _, err := mime.ParseMediaType(accept)
	if err != nil {
		return "application/json"
	}
	switch mt {
	case "application/x-ndjson", "application/yaml", "text/plain", "text/vnd.graphviz":
		return mt
	default:
		return "application/json"
	}
}

func writeNegotiated(w http.ResponseWriter, r *http.Request, views []graph.NodeView, extra map[string]any) {
	format := negotiate(r)
	w.Header().Set("Content-Type", format)
	w.WriteHeader(http.StatusOK)

	switch format {
	case "application/x-ndjson":
		writeNDJSON(w, views)
	case "application/yaml":
		writeYAML(w, views, extra)
	case "text/vnd.graphviz":
		writeDOT(w, views)
	case "text/plain":
		writePlain(w, views)
	default:
		writeJSON(w, views, extra)
	}
}

func writeJSON(w http.ResponseWriter, views []graph.NodeView, extra map[string]any) {
	if extra != nil {
		_ = json.NewEncoder(w).Encode(extra)
		return
	}
	_ = json.NewEncoder(w).Encode(views)
}

func writeNDJSON(w http.ResponseWriter, views []graph.NodeView) {
	enc := json.NewEncoder(w)
	for _, v := range views {
		_ = enc.Encode(v)
	}
}

func writePlain(w http.ResponseWriter, views []graph.NodeView) {
	for _, v := range views {
		fmt.Fprintf(w, "%s\n", v.ID)
	}
}

// statusFor maps an errs.Kind to the HTTP status the teacher's
// writeErrorJSON would have chosen, generalized from the two codes it
// hard-codes (NOT_FOUND, INTERNAL_ERROR) to the complete taxonomy.
func statusFor(kind errs.Kind) int {
	switch kind {
	case errs.KindParseError, errs.KindInvalidQuery, errs.KindModelViolation, errs.KindIncompleteGraph:
		return http.StatusBadRequest
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	case errs.KindTimeout:
		return http.StatusGatewayTimeout
	case errs.KindCancelled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes a structured JSON error body, same shape as the
// teacher's writeErrorJSON but with the status derived from the
// error's Kind instead of being chosen per call site.
func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    string(kind),
		"message": err.Error(),
	})
}
