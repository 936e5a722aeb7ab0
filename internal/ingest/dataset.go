package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hyperjump/coursegraph/internal/models"
	"github.com/hyperjump/coursegraph/internal/storage"
)

const datasetSuffix = "_final.json"

// DatasetFile is a canonical dataset found on disk.
type DatasetFile struct {
	Term models.Term
	Path string
}

// DatasetFileName returns "<year>_<term>_final.json".
func DatasetFileName(term models.Term) string {
	return term.String() + datasetSuffix
}

// ParseDatasetName extracts the term from a dataset file name. Both
// "<year>_<term>_final.json" and "<prefix>_<year>_<term>_final.json" are accepted;
// the year must be numeric.
func ParseDatasetName(name string) (models.Term, bool) {
	base := filepath.Base(name)
	if !strings.HasSuffix(base, datasetSuffix) {
		return models.Term{}, false
	}
	parts := strings.Split(strings.TrimSuffix(base, datasetSuffix), "_")
	if len(parts) < 2 {
		return models.Term{}, false
	}
	year, term := parts[len(parts)-2], parts[len(parts)-1]
	if year == "" || term == "" || strings.TrimLeft(year, "0123456789") != "" {
		return models.Term{}, false
	}
	return models.NewTerm(year, term), true
}

// ListDatasets returns one dataset per term in dir, ordered by term. When a term
// has several files, the unprefixed name wins, then the first prefixed name in
// lexical order. A missing dir yields no datasets.
func ListDatasets(dir string) ([]DatasetFile, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset directory: %w", err)
	}
	byTerm := make(map[models.Term]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		term, ok := ParseDatasetName(e.Name())
		if !ok {
			continue
		}
		cur, seen := byTerm[term]
		if !seen || preferDatasetName(term, e.Name(), filepath.Base(cur)) {
			byTerm[term] = filepath.Join(dir, e.Name())
		}
	}
	out := make([]DatasetFile, 0, len(byTerm))
	for term, path := range byTerm {
		out = append(out, DatasetFile{Term: term, Path: path})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Term.String() < out[j].Term.String() })
	return out, nil
}

func preferDatasetName(term models.Term, candidate, current string) bool {
	canonical := DatasetFileName(term)
	if current == canonical {
		return false
	}
	if candidate == canonical {
		return true
	}
	return candidate < current
}

// FindDataset returns the dataset path of term in dir. It fails with
// models.ErrUnknownTerm when no file names the term.
func FindDataset(dir string, term models.Term) (string, error) {
	canonical := filepath.Join(dir, DatasetFileName(term))
	if _, err := os.Stat(canonical); err == nil {
		return canonical, nil
	}
	files, err := ListDatasets(dir)
	if err != nil {
		return "", err
	}
	for _, f := range files {
		if f.Term == term {
			return f.Path, nil
		}
	}
	return "", fmt.Errorf("%w: no dataset for %s in %s", models.ErrUnknownTerm, term, dir)
}

// ReadDataset decodes a dataset file.
func ReadDataset(path string) ([]models.EnrichedCourseRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	var records []models.EnrichedCourseRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// WriteDataset encodes records and atomically replaces path.
func WriteDataset(path string, records []models.EnrichedCourseRecord) error {
	if records == nil {
		records = []models.EnrichedCourseRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	if err := storage.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("failed to write dataset: %w", err)
	}
	return nil
}

// DatasetLoader reads term datasets from a directory for the catalog.
type DatasetLoader struct {
	Dir string
}

// Load finds and decodes the dataset of term.
func (l DatasetLoader) Load(ctx context.Context, term models.Term) ([]models.EnrichedCourseRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := FindDataset(l.Dir, term)
	if err != nil {
		return nil, err
	}
	return ReadDataset(path)
}
