package httpapi

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/invgraph/graphcore/pkg/graph"
	"github.com/invgraph/graphcore/pkg/graph/diff"
	"github.com/invgraph/graphcore/pkg/rwlock"
)

type fakeGraphSource struct{ g *graph.GraphAccess }

func (f fakeGraphSource) CurrentGraph() *graph.GraphAccess { return f.g }

type fakeIngester struct{ batch diff.Batch }

func (f fakeIngester) IngestNDJSON(r io.Reader) (diff.Batch, error) { return f.batch, nil }

func buildTestGraph(t *testing.T) *graph.GraphAccess {
	t.Helper()
	nodes := []graph.Node{
		{ID: "graph_root", Kind: "graph_root", Reported: []byte(`{}`)},
		{ID: "n1", Kind: "instance", Reported: []byte(`{"name":"web-1"}`)},
	}
	edges := []graph.Edge{{From: "graph_root", To: "n1", Type: graph.EdgeTypeDefault}}
	g, err := graph.NewGraphAccess(nodes, edges)
	if err != nil {
		t.Fatalf("build graph: %v", err)
	}
	return g
}

func TestHandleExecuteReturnsJSONByDefault(t *testing.T) {
	g := buildTestGraph(t)
	svc := NewService(fakeGraphSource{g: g}, nil, rwlock.New())

	router := mux.NewRouter()
	svc.LoadRoutes(router)

	req := httptest.NewRequest("POST", "/cli/execute", strings.NewReader(`is("instance")`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "n1") {
		t.Fatalf("expected n1 in response, got %s", rec.Body.String())
	}
}

func TestHandleExecuteNegotiatesNDJSON(t *testing.T) {
	g := buildTestGraph(t)
	svc := NewService(fakeGraphSource{g: g}, nil, rwlock.New())

	router := mux.NewRouter()
	svc.LoadRoutes(router)

	req := httptest.NewRequest("POST", "/cli/execute", strings.NewReader(`is("instance")`))
	req.Header.Set("Accept", "application/x-ndjson")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Header().Get("Content-Type") != "application/x-ndjson" {
		t.Fatalf("expected ndjson content type, got %s", rec.Header().Get("Content-Type"))
	}
}

func TestHandleExecuteBadQueryReturns400(t *testing.T) {
	g := buildTestGraph(t)
	svc := NewService(fakeGraphSource{g: g}, nil, rwlock.New())

	router := mux.NewRouter()
	svc.LoadRoutes(router)

	req := httptest.NewRequest("POST", "/cli/execute", strings.NewReader(`@@@not a query`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unparseable query, got %d", rec.Code)
	}
}

func TestHandleIngestReturnsAppliedOpSummary(t *testing.T) {
	g := buildTestGraph(t)
	node := graph.Node{ID: "n2", Kind: "instance", Reported: []byte(`{}`)}
	batch := diff.Batch{Ops: []diff.Op{{Kind: diff.OpInsertNode, Node: &node}}}
	svc := NewService(fakeGraphSource{g: g}, fakeIngester{batch: batch}, rwlock.New())

	router := mux.NewRouter()
	svc.LoadRoutes(router)

	req := httptest.NewRequest("POST", "/graph/ingest", strings.NewReader(`{"id":"n2","data":{},"kind":"instance"}`+"\n"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "insert_node") {
		t.Fatalf("expected insert_node in summary, got %s", rec.Body.String())
	}
}

func TestHandleEvaluateRendersParsedQuery(t *testing.T) {
	g := buildTestGraph(t)
	svc := NewService(fakeGraphSource{g: g}, nil, rwlock.New())

	router := mux.NewRouter()
	svc.LoadRoutes(router)

	req := httptest.NewRequest("POST", "/cli/evaluate", strings.NewReader(`is("instance")`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
