package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/coursegraph/internal/config"
	"github.com/hyperjump/coursegraph/internal/merge"
	"github.com/hyperjump/coursegraph/internal/models"
	"github.com/hyperjump/coursegraph/internal/normalize"
	"github.com/hyperjump/coursegraph/internal/ratings"
)

var fall = models.NewTerm("25", "fall")

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		Storage: config.StorageConfig{
			DatasetDir:      filepath.Join(root, "datasets"),
			ShardDir:        filepath.Join(root, "shards"),
			RatingsJSONPath: filepath.Join(root, "ratings.json"),
		},
		Ingest: config.IngestConfig{ShardConcurrency: 2},
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
}

func writeShard(t *testing.T, cfg *config.Config, term models.Term, name, body string) {
	t.Helper()
	writeFile(t, filepath.Join(cfg.Storage.ShardDir, term.String(), name), body)
}

func readDataset(t *testing.T, path string) []models.EnrichedCourseRecord {
	t.Helper()
	records, err := ReadDataset(path)
	if err != nil {
		t.Fatalf("ReadDataset: %v", err)
	}
	return records
}

func TestParseDatasetName(t *testing.T) {
	tests := []struct {
		name string
		want models.Term
		ok   bool
	}{
		{"25_fall_final.json", models.NewTerm("25", "fall"), true},
		{"ucf_25_fall_final.json", models.NewTerm("25", "fall"), true},
		{"/data/ucf_main_26_Spring_final.json", models.NewTerm("26", "spring"), true},
		{"25_fall.json", models.Term{}, false},
		{"fall_final.json", models.Term{}, false},
		{"ucf_xx_fall_final.json", models.Term{}, false},
		{"25__final.json", models.Term{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseDatasetName(tt.name)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseDatasetName(%q) = %+v, %v, want %+v, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}

func TestListDatasets_PrefersCanonicalName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ucf_25_fall_final.json", "25_fall_final.json", "b_26_spring_final.json", "a_26_spring_final.json", "notes.txt"} {
		writeFile(t, filepath.Join(dir, name), "[]")
	}

	files, err := ListDatasets(dir)
	if err != nil {
		t.Fatalf("ListDatasets: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2", len(files))
	}
	if want := filepath.Join(dir, "25_fall_final.json"); files[0].Path != want {
		t.Errorf("files[0].Path = %s, want %s", files[0].Path, want)
	}
	if files[1].Term != models.NewTerm("26", "spring") {
		t.Errorf("files[1].Term = %+v, want 26 spring", files[1].Term)
	}
	if want := filepath.Join(dir, "a_26_spring_final.json"); files[1].Path != want {
		t.Errorf("files[1].Path = %s, want %s", files[1].Path, want)
	}

	missing, err := ListDatasets(filepath.Join(dir, "nope"))
	if err != nil || len(missing) != 0 {
		t.Errorf("ListDatasets(missing) = %v, %v, want empty and no error", missing, err)
	}
}

func TestDatasetLoader(t *testing.T) {
	dir := t.TempDir()
	loader := DatasetLoader{Dir: dir}

	if _, err := loader.Load(context.Background(), fall); !errors.Is(err, models.ErrUnknownTerm) {
		t.Errorf("Load(no dataset) error = %v, want ErrUnknownTerm", err)
	}

	writeFile(t, filepath.Join(dir, "ucf_25_fall_final.json"), `[{"code":"CS101","key":{"term":{"year":"25","term":"fall"},"department":"CS","number":"101","section":"~"}}]`)
	records, err := loader.Load(context.Background(), fall)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(records) != 1 || records[0].ID() != "25_fall/CS101/~" {
		t.Errorf("records = %+v, want one 25_fall/CS101/~", records)
	}

	writeFile(t, filepath.Join(dir, "25_fall_final.json"), `[{"code":`)
	if _, err := loader.Load(context.Background(), fall); err == nil {
		t.Error("expected error for a truncated dataset")
	}
}

func TestWriteDataset_NoNulls(t *testing.T) {
	records := merge.Enrich([]models.NormalizedCourseRecord{
		normalize.Normalize(fall, models.RawCourseRecord{Code: "CS101", Meetings: []string{"TBA"}}),
		normalize.Normalize(fall, models.RawCourseRecord{Code: "CS102", Meetings: []string{"MWF 9:00-9:50", "Online"}, Instructors: []string{"Staff"}}),
	}, ratings.Table{})
	path := filepath.Join(t.TempDir(), "out", DatasetFileName(fall))

	if err := WriteDataset(path, records); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "null") {
		t.Errorf("dataset contains null:\n%s", data)
	}

	back := readDataset(t, path)
	if len(back) != 2 || !back[0].Meetings[0].Unparseable || back[0].Meetings[0].Days == nil {
		t.Errorf("read back %+v, want the TBA sentinel with empty days", back)
	}
}

func TestPipeline_Run(t *testing.T) {
	cfg := testConfig(t)
	writeShard(t, cfg, fall, "a.json", `[{"code":"COP3502C","title":"Programming 1","section":"1","instructors":["Dr. Jane Doe"]}]`)
	writeShard(t, cfg, fall, "b.json", `[{"code":"COP 3502C","title":"Programming 1","section":"1","description":"Intro to programming"},{"code":"MAC2311"}]`)
	writeShard(t, cfg, fall, "c.json", `[{"code":`)
	writeShard(t, cfg, fall, "d.json", `[]`)
	writeShard(t, cfg, fall, "readme.txt", `ignored`)
	writeFile(t, cfg.Storage.RatingsJSONPath, `{"jane doe":{"avg_rating":4.5,"avg_difficulty":2.5,"source_id":"77"}}`)

	res, err := NewPipeline(cfg).Run(context.Background(), fall)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if want := filepath.Join(cfg.Storage.DatasetDir, "25_fall_final.json"); res.Path != want {
		t.Errorf("Path = %s, want %s", res.Path, want)
	}
	if res.Bytes <= 0 {
		t.Errorf("Bytes = %d, want positive", res.Bytes)
	}
	if st := res.Stats; st.Shards != 4 || st.FailedShards != 1 || st.EmptyShards != 1 || st.Records != 2 {
		t.Errorf("Stats = %+v, want 4 shards, 1 failed, 1 empty, 2 records", st)
	}
	if len(res.ShardErrors) != 1 || res.ShardErrors[0].Index != 2 {
		t.Fatalf("ShardErrors = %v, want one error for shard 2", res.ShardErrors)
	}

	records := readDataset(t, res.Path)
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].ID() != "25_fall/COP3502C/1" || records[0].Description != "Intro to programming" {
		t.Errorf("records[0] = %s %q, want COP3502C/1 with the filled description", records[0].ID(), records[0].Description)
	}
	if records[1].ID() != "25_fall/MAC2311/~" {
		t.Errorf("records[1] = %s, want 25_fall/MAC2311/~", records[1].ID())
	}
}

func TestPipeline_Run_RatingsJoin(t *testing.T) {
	cfg := testConfig(t)
	writeShard(t, cfg, fall, "a.json", `[{"code":"COP3502C","section":"1","title":"Programming 1","instructors":["Dr. Jane Doe","Staff"]}]`)
	writeFile(t, cfg.Storage.RatingsJSONPath, `{"Dr. Jane Doe":{"avg_rating":4.5,"avg_difficulty":2.5,"source_id":"77"}}`)

	res, err := NewPipeline(cfg).Run(context.Background(), fall)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.Rated != 1 {
		t.Errorf("Rated = %d, want 1", res.Stats.Rated)
	}

	records := readDataset(t, res.Path)
	if len(records[0].Instructors) != 1 {
		t.Fatalf("Instructors = %+v, want one", records[0].Instructors)
	}
	inst := records[0].Instructors[0]
	if inst.Name != "jane doe" || !inst.Rated || inst.Rating == nil || inst.Rating.SourceID != "77" {
		t.Errorf("instructor = %+v, want jane doe rated from source 77", inst)
	}
}

func TestPipeline_Run_MergesPriorDataset(t *testing.T) {
	cfg := testConfig(t)
	p := NewPipeline(cfg)
	writeShard(t, cfg, fall, "a.json", `[{"code":"CS101","title":"Intro","description":"Basics"}]`)
	if _, err := p.Run(context.Background(), fall); err != nil {
		t.Fatalf("Run: %v", err)
	}

	writeShard(t, cfg, fall, "a.json", `[{"code":"CS101","title":"Intro"},{"code":"CS102"}]`)
	res, err := p.Run(context.Background(), fall)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Stats.PriorRecords != 1 {
		t.Errorf("PriorRecords = %d, want 1", res.Stats.PriorRecords)
	}

	records := readDataset(t, res.Path)
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	if records[0].Description != "Basics" {
		t.Errorf("Description = %q, the fuller prior record should win", records[0].Description)
	}
	if records[1].Code != "CS102" {
		t.Errorf("records[1] = %s, want CS102", records[1].Code)
	}
}

func TestPipeline_Run_MissingShardDirKeepsPrior(t *testing.T) {
	cfg := testConfig(t)
	p := NewPipeline(cfg)
	writeShard(t, cfg, fall, "a.json", `[{"code":"CS101","title":"Intro"},{"code":"CS102"}]`)
	first, err := p.Run(context.Background(), fall)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want, err := os.ReadFile(first.Path)
	if err != nil {
		t.Fatal(err)
	}

	if err := os.RemoveAll(filepath.Join(cfg.Storage.ShardDir, fall.String())); err != nil {
		t.Fatal(err)
	}
	res, err := p.Run(context.Background(), fall)
	if err != nil {
		t.Fatalf("Run without shards: %v", err)
	}
	if res.Stats.Shards != 0 || res.Stats.PriorRecords != 2 || res.Stats.Records != 2 {
		t.Errorf("Stats = %+v, want 0 shards and the 2 prior records", res.Stats)
	}
	got, err := os.ReadFile(res.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(want) {
		t.Errorf("dataset changed:\n got %s\nwant %s", got, want)
	}
}

func TestPipeline_Run_Failures(t *testing.T) {
	cfg := testConfig(t)
	p := NewPipeline(cfg)
	final := filepath.Join(cfg.Storage.DatasetDir, "25_fall_final.json")

	// No shards and no prior dataset leaves nothing to publish.
	if _, err := p.Run(context.Background(), fall); !errors.Is(err, models.ErrEmptyDataset) {
		t.Errorf("Run(no shards) error = %v, want ErrEmptyDataset", err)
	}

	writeShard(t, cfg, fall, "a.json", `not json`)
	res, err := p.Run(context.Background(), fall)
	if !errors.Is(err, models.ErrEmptyDataset) {
		t.Errorf("Run(bad shard) error = %v, want ErrEmptyDataset", err)
	}
	if res == nil {
		t.Fatal("expected a result describing the failed shard")
	}
	if len(res.ShardErrors) != 1 {
		t.Errorf("ShardErrors = %v, want one", res.ShardErrors)
	}
	if _, err := os.Stat(final); !os.IsNotExist(err) {
		t.Errorf("dataset written despite failure: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Run(ctx, fall); !errors.Is(err, context.Canceled) {
		t.Errorf("Run(canceled) error = %v, want context.Canceled", err)
	}
}
