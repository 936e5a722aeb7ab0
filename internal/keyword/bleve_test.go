package keyword

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func testDocs() []*CourseDocument {
	return []*CourseDocument{
		{ID: "25_fall/COP3502C/1", Code: "COP3502C", CodeWithSpace: "COP 3502C", Title: "Programming Fundamentals 1", Instructors: []string{"jane doe"}},
		{ID: "25_fall/COP3503C/1", Code: "COP3503C", CodeWithSpace: "COP 3503C", Title: "Programming Fundamentals 2", Prerequisites: "COP 3502C"},
		{ID: "25_fall/MAC2311/~", Code: "MAC2311", CodeWithSpace: "MAC 2311", Title: "Calculus with Analytic Geometry 1", Description: "Limits, derivatives and integrals."},
	}
}

func newTestIndex(t *testing.T, path string) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	if err := idx.IndexBatch(context.Background(), testDocs()); err != nil {
		t.Fatalf("IndexBatch: %v", err)
	}
	return idx
}

func search(t *testing.T, idx *BleveIndex, q string) []string {
	t.Helper()
	ids, err := idx.Search(context.Background(), q)
	if err != nil {
		t.Fatalf("Search(%q): %v", q, err)
	}
	sort.Strings(ids)
	return ids
}

func TestBleveIndex_PrefixSearch(t *testing.T) {
	idx := newTestIndex(t, "")

	tests := []struct {
		query string
		want  []string
	}{
		{"COP", []string{"25_fall/COP3502C/1", "25_fall/COP3503C/1"}},
		{"cop350", []string{"25_fall/COP3502C/1", "25_fall/COP3503C/1"}},
		{"COP3502C", []string{"25_fall/COP3502C/1"}},
		{"cop 3502", []string{"25_fall/COP3502C/1", "25_fall/COP3503C/1"}},
		{"program fund 2", []string{"25_fall/COP3503C/1"}},
		{"deriv", []string{"25_fall/MAC2311/~"}},
		{"jane", []string{"25_fall/COP3502C/1"}},
		{"calc geom", []string{"25_fall/MAC2311/~"}},
		{"xyz", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := search(t, idx, tt.query)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestBleveIndex_EmptyQueryMatchesAll(t *testing.T) {
	idx := newTestIndex(t, "")
	for _, q := range []string{"", "   ", "&&"} {
		if got := search(t, idx, q); len(got) != 3 {
			t.Errorf("query %q: expected all 3 documents, got %v", q, got)
		}
	}
}

func TestBleveIndex_Tokens(t *testing.T) {
	idx := newTestIndex(t, "")
	got := idx.Tokens("COP 3502C  Programming cop")
	want := []string{"cop", "3502c", "programming"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBleveIndex_OnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bleve-build")
	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexBatch(context.Background(), testDocs()); err != nil {
		t.Fatal(err)
	}
	n, err := idx.DocCount()
	if err != nil || n != 3 {
		t.Fatalf("DocCount: %d, %v", n, err)
	}

	if _, err := NewBleveIndex(path); err == nil {
		t.Error("expected error when the path already exists")
	}

	if err := idx.Destroy(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("index directory should be removed, stat err = %v", err)
	}
}

func TestBleveIndex_EmptyIndex(t *testing.T) {
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	ids, err := idx.Search(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no results, got %v", ids)
	}
}
