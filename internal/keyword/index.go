// Package keyword provides prefix text search over course records.
package keyword

import (
	"context"

	"github.com/hyperjump/coursegraph/internal/models"
)

// Indexed field names.
const (
	FieldCode          = "code"
	FieldCodeWithSpace = "code_with_space"
	FieldTitle         = "title"
	FieldDescription   = "description"
	FieldPrerequisites = "prerequisites"
	FieldInstructors   = "instructors"
)

// SearchFields are the fields a query token is matched against.
var SearchFields = []string{
	FieldCode,
	FieldCodeWithSpace,
	FieldTitle,
	FieldDescription,
	FieldPrerequisites,
	FieldInstructors,
}

// KeywordIndex defines prefix search operations over course documents.
type KeywordIndex interface {
	IndexBatch(ctx context.Context, docs []*CourseDocument) error
	// Search returns the ids of every document in which each query token prefixes
	// a token of at least one field. Order is unspecified.
	Search(ctx context.Context, query string) ([]string, error)
	// DocCount returns the total number of documents in the index.
	DocCount() (uint64, error)
	Close() error
}

// CourseDocument is the indexed projection of a course record.
type CourseDocument struct {
	ID            string
	Code          string
	CodeWithSpace string
	Title         string
	Description   string
	Prerequisites string
	Instructors   []string
}

// NewCourseDocument projects r for indexing.
func NewCourseDocument(r *models.EnrichedCourseRecord) *CourseDocument {
	return &CourseDocument{
		ID:            r.ID(),
		Code:          r.Code,
		CodeWithSpace: r.CodeWithSpace,
		Title:         r.Title,
		Description:   r.Description,
		Prerequisites: r.Prerequisites,
		Instructors:   r.InstructorNames(),
	}
}

func (d *CourseDocument) fields() map[string]interface{} {
	return map[string]interface{}{
		FieldCode:          d.Code,
		FieldCodeWithSpace: d.CodeWithSpace,
		FieldTitle:         d.Title,
		FieldDescription:   d.Description,
		FieldPrerequisites: d.Prerequisites,
		FieldInstructors:   d.Instructors,
	}
}
