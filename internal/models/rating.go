package models

// InstructorRating is the quality signal for one instructor, keyed by normalized name.
type InstructorRating struct {
	AvgRating     float64 `json:"avg_rating"`
	AvgDifficulty float64 `json:"avg_difficulty"`
	SourceID      string  `json:"source_id"`
}

// EnrichedInstructor is an instructor on a course with its rating, if one was found.
// Rated is always serialized; Rating is only present when Rated is true.
type EnrichedInstructor struct {
	Name   string            `json:"name"`
	Rated  bool              `json:"rated"`
	Rating *InstructorRating `json:"rating,omitempty"`
}
