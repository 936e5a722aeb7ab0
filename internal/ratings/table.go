// Package ratings holds the instructor rating side-table: an immutable snapshot
// used for enrichment, its JSON file form, and the refresher that keeps the
// SQLite cache behind it current.
package ratings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/hyperjump/coursegraph/internal/models"
	"github.com/hyperjump/coursegraph/internal/normalize"
	"github.com/hyperjump/coursegraph/internal/storage"
)

// Table maps normalized instructor names to ratings. A Table is never modified
// after construction, so it can be shared by concurrent merges.
type Table struct {
	entries map[string]models.InstructorRating
}

// NewTable copies entries into a new Table, keyed by normalize.InstructorName so
// "Dr. John Smith" and "Smith, John" both join with the record name "john smith".
// Names that normalize to nothing are dropped. When several keys collapse to one
// name, a key already in canonical form wins, then the smallest raw key.
func NewTable(entries map[string]models.InstructorRating) Table {
	raw := make([]string, 0, len(entries))
	for name := range entries {
		raw = append(raw, name)
	}
	sort.Strings(raw)

	t := Table{entries: make(map[string]models.InstructorRating, len(entries))}
	exact := make(map[string]bool, len(entries))
	for _, name := range raw {
		key := normalize.InstructorName(name)
		if key == "" {
			continue
		}
		if _, ok := t.entries[key]; ok && (exact[key] || name != key) {
			continue
		}
		t.entries[key] = entries[name]
		exact[key] = name == key
	}
	return t
}

// Lookup returns the rating for a normalized name.
func (t Table) Lookup(name string) (models.InstructorRating, bool) {
	r, ok := t.entries[name]
	return r, ok
}

// Len returns the number of rated names.
func (t Table) Len() int {
	return len(t.entries)
}

// Names returns the rated names in ascending order.
func (t Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON encodes the table as {"<name>": {avg_rating, avg_difficulty, source_id}}.
func (t Table) MarshalJSON() ([]byte, error) {
	if t.entries == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(t.entries)
}

// UnmarshalJSON decodes the object form written by MarshalJSON.
func (t *Table) UnmarshalJSON(data []byte) error {
	var entries map[string]models.InstructorRating
	if err := json.Unmarshal(data, &entries); err != nil {
		return err
	}
	*t = NewTable(entries)
	return nil
}

// LoadFile reads a side-table file. A missing file yields an empty table so that
// ingestion can run before the first rating refresh.
func LoadFile(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewTable(nil), nil
	}
	if err != nil {
		return Table{}, fmt.Errorf("failed to read ratings file: %w", err)
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return Table{}, fmt.Errorf("failed to parse ratings file: %w", err)
	}
	return t, nil
}

// SaveFile replaces the side-table file as a whole.
func (t Table) SaveFile(path string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal ratings: %w", err)
	}
	return storage.WriteFileAtomic(path, data)
}

// CollectNames returns the distinct instructor names of records in ascending order.
func CollectNames(records []models.NormalizedCourseRecord) []string {
	seen := make(map[string]struct{})
	for i := range records {
		for _, name := range records[i].Instructors {
			seen[name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
