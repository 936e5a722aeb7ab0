package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/coursegraph/internal/config"
	"github.com/hyperjump/coursegraph/internal/ingest"
	"github.com/hyperjump/coursegraph/internal/merge"
	"github.com/hyperjump/coursegraph/internal/models"
	"github.com/hyperjump/coursegraph/internal/normalize"
	"github.com/hyperjump/coursegraph/internal/ratings"
)

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{
			name:     "flags after query are moved first",
			args:     []string{"data structures", "-term", "25_fall"},
			expected: []string{"-term", "25_fall", "data structures"},
		},
		{
			name:     "flags first returns unchanged",
			args:     []string{"-term", "25_fall", "cop"},
			expected: []string{"-term", "25_fall", "cop"},
		},
		{
			name:     "query only returns unchanged",
			args:     []string{"cop 3502"},
			expected: []string{"cop 3502"},
		},
		{
			name:     "empty args returns unchanged",
			args:     []string{},
			expected: []string{},
		},
		{
			name:     "multiple positionals then flags",
			args:     []string{"COP3502C", "COP3503C", "--major", "COP"},
			expected: []string{"--major", "COP", "COP3502C", "COP3503C"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reorderArgs(tt.args)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("reorderArgs() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestBuildSearchQuery(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected string
	}{
		{"single word", []string{"cop"}, "cop"},
		{"multiple words", []string{"cop", "3502"}, "cop 3502"},
		{"single quoted phrase", []string{"data struct"}, "data struct"},
		{"empty args", []string{}, ""},
		{"blank args", []string{"  ", "  "}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buildSearchQuery(tt.args)
			if got != tt.expected {
				t.Errorf("buildSearchQuery(%v) = %q, want %q", tt.args, got, tt.expected)
			}
		})
	}
}

func TestParseTerms(t *testing.T) {
	terms, err := parseTerms([]string{"25_Fall", "26_spring"})
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 2 || terms[0].String() != "25_fall" || terms[1].String() != "26_spring" {
		t.Errorf("parseTerms() = %v", terms)
	}
	if _, err := parseTerms([]string{"25_fall", "fall"}); err == nil {
		t.Error("expected error for a term without a year")
	}
}

func TestLoadConfig_prefersCwdConfigWhenDefaultPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
server:
  host: "localhost"
  port: 8080
storage:
  dataset_dir: "./datasets"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	origWd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = os.Chdir(origWd) }()
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(defaultConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	// cwd may resolve through a symlink (macOS /private/var); compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s (canon %s), want %s (canon %s)", resolved, resolvedCanon, configPath, configPathCanon)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
	if filepath.Base(cfg.Storage.DatasetDir) != "datasets" || !filepath.IsAbs(cfg.Storage.DatasetDir) {
		t.Errorf("dataset_dir = %q, want absolute path ending in datasets", cfg.Storage.DatasetDir)
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  dataset_dir: "./datasets"
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.DatasetDir != filepath.Join(dir, "datasets") {
		t.Errorf("dataset_dir = %q", cfg.Storage.DatasetDir)
	}
}

func TestHTTPHelpers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/search":
			var q models.SearchQuery
			if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(models.SearchResponse{Term: q.Year + "_" + q.Term, Query: q.Query})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/terms":
			_, _ = w.Write([]byte(`{"terms":[{"term":"25_fall","courses":3}]}`))
		default:
			http.Error(w, `{"error":"unknown term"}`, http.StatusNotFound)
		}
	}))
	defer srv.Close()

	var resp models.SearchResponse
	if err := postJSON(srv.URL+"/api/v1/search", &models.SearchQuery{Year: "25", Term: "fall", Query: "cop"}, &resp); err != nil {
		t.Fatalf("postJSON: %v", err)
	}
	if resp.Term != "25_fall" || resp.Query != "cop" {
		t.Errorf("postJSON response = %+v", resp)
	}

	var terms struct {
		Terms []models.TermStatus `json:"terms"`
	}
	if err := getJSON(srv.URL+"/api/v1/terms", &terms); err != nil {
		t.Fatalf("getJSON: %v", err)
	}
	if len(terms.Terms) != 1 || terms.Terms[0].Courses != 3 {
		t.Errorf("getJSON terms = %+v", terms)
	}

	var status models.TermStatus
	err := postJSON(srv.URL+"/api/v1/terms/99_winter/reload", nil, &status)
	if err == nil || !strings.Contains(err.Error(), "404") || !strings.Contains(err.Error(), "unknown term") {
		t.Errorf("postJSON error = %v, want 404 with body", err)
	}
}

func writeTestDataset(t *testing.T, dir string, term models.Term, raws ...models.RawCourseRecord) {
	t.Helper()
	normalized := make([]models.NormalizedCourseRecord, 0, len(raws))
	for _, raw := range raws {
		normalized = append(normalized, normalize.Normalize(term, raw))
	}
	records := merge.Enrich(normalized, ratings.NewTable(nil))
	if err := ingest.WriteDataset(filepath.Join(dir, ingest.DatasetFileName(term)), records); err != nil {
		t.Fatal(err)
	}
}

func TestCollectInstructorNames(t *testing.T) {
	dir := t.TempDir()
	fall := models.NewTerm("25", "fall")
	spring := models.NewTerm("26", "spring")
	writeTestDataset(t, dir, fall,
		models.RawCourseRecord{Code: "COP3502C", Section: "1", Instructors: []string{"Dr. Jane Doe", "John Smith"}},
		models.RawCourseRecord{Code: "COP3503C", Section: "1", Instructors: []string{"Jane Doe"}},
	)
	writeTestDataset(t, dir, spring,
		models.RawCourseRecord{Code: "MAC2311", Section: "2", Instructors: []string{"Ada Lovelace"}},
	)

	all, err := collectInstructorNames(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"ada lovelace", "jane doe", "john smith"}; !reflect.DeepEqual(all, want) {
		t.Errorf("all names = %v, want %v", all, want)
	}

	fallOnly, err := collectInstructorNames(dir, "25_fall")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"jane doe", "john smith"}; !reflect.DeepEqual(fallOnly, want) {
		t.Errorf("fall names = %v, want %v", fallOnly, want)
	}

	if _, err := collectInstructorNames(dir, "27_summer"); err == nil {
		t.Error("expected error for a term without a dataset")
	}
}

func TestInitializeComponents_searchesLocalDataset(t *testing.T) {
	dir := t.TempDir()
	term := models.NewTerm("25", "fall")
	writeTestDataset(t, dir, term,
		models.RawCourseRecord{Code: "COP3502C", Section: "1", Title: "Programming Fundamentals 1"},
		models.RawCourseRecord{Code: "COP3503C", Section: "1", Title: "Programming Fundamentals 2", Prerequisites: "COP3502C"},
		models.RawCourseRecord{Code: "MAC2311", Section: "1", Title: "Calculus 1"},
	)
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatasetDir = dir
	cfg.Storage.BleveIndexPath = ""

	components := initializeComponents(cfg, zap.NewNop())
	defer components.Close()
	status, err := components.Catalog.Rebuild(context.Background(), term)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	if status.Courses != 3 {
		t.Errorf("courses = %d, want 3", status.Courses)
	}

	res, err := components.Engine.Search(context.Background(), &models.SearchQuery{Year: "25", Term: "fall", Query: "programming"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if res.TotalCount != 2 {
		t.Errorf("programming matches = %d, want 2", res.TotalCount)
	}
}
