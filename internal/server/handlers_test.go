package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/coursegraph/internal/catalog"
	"github.com/hyperjump/coursegraph/internal/config"
	"github.com/hyperjump/coursegraph/internal/merge"
	"github.com/hyperjump/coursegraph/internal/models"
	"github.com/hyperjump/coursegraph/internal/normalize"
	"github.com/hyperjump/coursegraph/internal/ratings"
	"github.com/hyperjump/coursegraph/internal/search"
)

var fall = models.NewTerm("25", "fall")

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	raws := []models.RawCourseRecord{
		{Code: "CS101", Title: "Intro to Computing", Department: "Computer Science"},
		{Code: "CS201", Title: "Data Structures", Prerequisites: "Prerequisite: CS101", Department: "Computer Science"},
		{Code: "CS301", Title: "Algorithms", Prerequisites: "Prerequisite: CS201", Department: "Computer Science"},
	}
	normalized := make([]models.NormalizedCourseRecord, 0, len(raws))
	for _, r := range raws {
		normalized = append(normalized, normalize.Normalize(fall, r))
	}
	records := merge.Enrich(merge.Merge([]merge.Shard{{Records: normalized}}, nil), ratings.Table{})

	cat := catalog.New(catalog.LoaderFunc(func(_ context.Context, term models.Term) ([]models.EnrichedCourseRecord, error) {
		if term != fall {
			return nil, fmt.Errorf("%w: %s", models.ErrUnknownTerm, term)
		}
		return records, nil
	}))
	t.Cleanup(func() { _ = cat.Close() })
	if _, err := cat.Rebuild(context.Background(), fall); err != nil {
		t.Fatal(err)
	}

	engine := search.NewEngine(cat, &config.SearchConfig{DefaultLimit: 20, MaxLimit: 100})
	return NewServer(engine, cat, &config.ServerConfig{Port: 8080}, zap.NewNop()).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandleSearch(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/v1/search", `{"year":"25","term":"fall","query":"CS2","limit":5}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	// CS301 mentions CS201 in its prerequisites.
	if resp.TotalCount != 2 || resp.Matches[0].Code != "CS201" || resp.Limit != 5 {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestHandleSearch_Errors(t *testing.T) {
	h := newTestServer(t)
	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad body", `{"year":`, http.StatusBadRequest},
		{"missing term", `{"year":"25","query":"CS"}`, http.StatusBadRequest},
		{"unknown term", `{"year":"24","term":"fall","query":"CS"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/v1/search", tt.body)
			if w.Code != tt.want {
				t.Errorf("status: got %d want %d", w.Code, tt.want)
			}
			var out map[string]string
			if err := json.NewDecoder(w.Body).Decode(&out); err != nil || out["error"] == "" {
				t.Errorf("expected error body, got %q", w.Body.String())
			}
		})
	}
}

func TestHandleGraph(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/v1/graph", `{"year":"25","term":"fall","major":"cs","courses":["CS 301"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var resp models.GraphResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Nodes) != 2 || resp.Nodes[1] != (models.GraphNode{ID: "CS301", Selected: true}) {
		t.Errorf("nodes: got %+v", resp.Nodes)
	}
	if len(resp.Edges) != 1 || resp.Edges[0] != (models.GraphEdge{Source: "CS201", Target: "CS301"}) {
		t.Errorf("edges: got %+v", resp.Edges)
	}

	w = do(t, h, http.MethodPost, "/api/v1/graph", `{"year":"25","term":"fall","major":"MATH"}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown major status: got %d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/api/v1/graph", `{"year":"25","term":"fall"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing major status: got %d", w.Code)
	}
}

func TestHandleTermsAndReload(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodGet, "/api/v1/terms", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Terms []models.TermStatus `json:"terms"`
	}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if len(out.Terms) != 1 || out.Terms[0].Term != "25_fall" || out.Terms[0].Courses != 3 {
		t.Fatalf("terms: got %+v", out.Terms)
	}
	before := out.Terms[0].BuildID

	w = do(t, h, http.MethodPost, "/api/v1/terms/25_fall/reload", "")
	if w.Code != http.StatusOK {
		t.Fatalf("reload status: got %d, body %s", w.Code, w.Body.String())
	}
	var status models.TermStatus
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.BuildID == before {
		t.Error("reload should install a new build")
	}

	if w := do(t, h, http.MethodPost, "/api/v1/terms/26_spring/reload", ""); w.Code != http.StatusNotFound {
		t.Errorf("unknown term reload: got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/terms/fall/reload", ""); w.Code != http.StatusBadRequest {
		t.Errorf("malformed term reload: got %d", w.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	w := do(t, newTestServer(t), http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleGetCourses(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/api/get_courses", `{"searchTerm":"cs 101","itemsPerPage":10,"startFrom":0,"year":"25","term":"fall"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var courses []models.EnrichedCourseRecord
	if err := json.NewDecoder(w.Body).Decode(&courses); err != nil {
		t.Fatal(err)
	}
	if len(courses) != 1 || courses[0].Code != "CS101" {
		t.Errorf("courses: got %+v", courses)
	}

	w = do(t, h, http.MethodPost, "/api/get_courses", `{"searchTerm":"","year":"25","term":"fall"}`)
	if w.Code != http.StatusOK || w.Body.String() != "[]\n" {
		t.Errorf("blank search: got %d %q", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/api/get_courses", `{"searchTerm":"cs"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing year: got %d", w.Code)
	}
}

func TestHandleGenerateList(t *testing.T) {
	h := newTestServer(t)

	w := do(t, h, http.MethodPost, "/generate_a_list", `{"selectedMajorServ":"Computer Science","selectedCoursesServ":["CS201"],"year":"25","term":"fall"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}
	var out generateListResponse
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	classes := map[string]string{}
	for _, n := range out.Nodes {
		classes[n.Data.ID] = n.Classes
	}
	want := map[string]string{"CS101": "not_selected", "CS201": "selected", "CS301": "not_selected"}
	if len(classes) != len(want) {
		t.Fatalf("nodes: got %v", classes)
	}
	for id, c := range want {
		if classes[id] != c {
			t.Errorf("node %s: got %q want %q", id, classes[id], c)
		}
	}
	if len(out.Edges) != 2 || out.Edges[0].Data != (models.GraphEdge{Source: "CS101", Target: "CS201"}) {
		t.Errorf("edges: got %+v", out.Edges)
	}
}
