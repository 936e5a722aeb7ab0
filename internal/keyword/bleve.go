package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	unicodetokenizer "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
)

// AnalyzerName is the analyzer used for every text field and for query strings:
// unicode word segmentation plus lowercasing. No stemming or stop words, so a
// query token prefixes exactly the words that appear in the record.
const AnalyzerName = "course_text"

const batchSize = 500

// BleveIndex implements KeywordIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
	path  string
}

func buildMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	err := im.AddCustomAnalyzer(AnalyzerName, map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicodetokenizer.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register analyzer: %w", err)
	}

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = AnalyzerName
	textFieldMapping.Store = false
	textFieldMapping.IncludeInAll = false
	for _, field := range SearchFields {
		docMapping.AddFieldMappingsAt(field, textFieldMapping)
	}
	im.AddDocumentMapping("course", docMapping)
	im.DefaultType = "course"
	im.DefaultMapping = docMapping
	im.DefaultAnalyzer = AnalyzerName
	return im, nil
}

// NewBleveIndex creates a new index. An empty path keeps the index in memory;
// otherwise it is created at path, which must not exist yet.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im, err := buildMapping()
	if err != nil {
		return nil, err
	}

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		return nil, fmt.Errorf("failed to create Bleve index: %s already exists", path)
	}
	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index, path: path}, nil
}

// IndexBatch indexes docs in batches.
func (b *BleveIndex) IndexBatch(ctx context.Context, docs []*CourseDocument) error {
	batch := b.index.NewBatch()
	for i, doc := range docs {
		if err := batch.Index(doc.ID, doc.fields()); err != nil {
			return fmt.Errorf("failed to add %s to batch: %w", doc.ID, err)
		}
		if batch.Size() >= batchSize || i == len(docs)-1 {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := b.index.Batch(batch); err != nil {
				return fmt.Errorf("failed to index batch: %w", err)
			}
			batch.Reset()
		}
	}
	return nil
}

// Tokens analyzes query with the index analyzer.
func (b *BleveIndex) Tokens(query string) []string {
	analyzer := b.index.Mapping().AnalyzerNamed(AnalyzerName)
	if analyzer == nil {
		return nil
	}
	stream := analyzer.Analyze([]byte(query))
	tokens := make([]string, 0, len(stream))
	seen := make(map[string]struct{}, len(stream))
	for _, tok := range stream {
		term := string(tok.Term)
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		tokens = append(tokens, term)
	}
	return tokens
}

// buildQuery returns a conjunction over query tokens, each a disjunction of
// per-field prefix queries. A query without tokens matches everything.
func (b *BleveIndex) buildQuery(query string) blevequery.Query {
	tokens := b.Tokens(query)
	if len(tokens) == 0 {
		return bleve.NewMatchAllQuery()
	}
	conjuncts := make([]blevequery.Query, 0, len(tokens))
	for _, tok := range tokens {
		disjuncts := make([]blevequery.Query, 0, len(SearchFields))
		for _, field := range SearchFields {
			pq := bleve.NewPrefixQuery(tok)
			pq.SetField(field)
			disjuncts = append(disjuncts, pq)
		}
		conjuncts = append(conjuncts, bleve.NewDisjunctionQuery(disjuncts...))
	}
	return bleve.NewConjunctionQuery(conjuncts...)
}

// Search returns the ids of all matching documents.
func (b *BleveIndex) Search(ctx context.Context, query string) ([]string, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to get doc count: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(b.buildQuery(query), int(count), 0, false)
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	ids := make([]string, len(results.Hits))
	for i, hit := range results.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// DocCount returns the total number of documents in the index.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Path returns the on-disk location, or "" for an in-memory index.
func (b *BleveIndex) Path() string {
	return b.path
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

// Destroy closes the index and removes its directory, if any.
func (b *BleveIndex) Destroy() error {
	if err := b.Close(); err != nil {
		return err
	}
	if b.path == "" {
		return nil
	}
	return os.RemoveAll(b.path)
}
