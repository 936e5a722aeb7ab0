// Package merge deduplicates normalized records from collection shards and joins
// instructor ratings onto the result.
package merge

import (
	"sort"

	"github.com/hyperjump/coursegraph/internal/models"
	"github.com/hyperjump/coursegraph/internal/ratings"
)

// Shard is the normalized output of one collection shard. A shard whose load
// failed carries Err and contributes no records.
type Shard struct {
	Index   int
	Path    string
	Records []models.NormalizedCourseRecord
	Err     error
}

// Usable reports whether the shard contributes to a merge.
func (s *Shard) Usable() bool {
	return s.Err == nil && len(s.Records) > 0
}

// Merge combines the records of all shards, plus a previously published dataset,
// into one record per identity key. Among duplicates the record with the most
// non-empty fields wins; ties go to the later producer, where prior records come
// before shard 0 and shards are taken in Index order. The result is sorted by
// identity key, field by field, so equal inputs give equal outputs.
func Merge(shards []Shard, prior []models.EnrichedCourseRecord) []models.NormalizedCourseRecord {
	ordered := make([]*Shard, 0, len(shards))
	for i := range shards {
		if shards[i].Usable() {
			ordered = append(ordered, &shards[i])
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	best := make(map[models.IdentityKey]models.NormalizedCourseRecord)
	offer := func(r models.NormalizedCourseRecord) {
		cur, ok := best[r.Key]
		if !ok || r.FieldCount() >= cur.FieldCount() {
			best[r.Key] = r
		}
	}
	for i := range prior {
		offer(prior[i].Normalized())
	}
	for _, s := range ordered {
		for _, r := range s.Records {
			offer(r)
		}
	}

	out := make([]models.NormalizedCourseRecord, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Compare(out[j].Key) < 0 })
	return out
}

// Enrich attaches ratings to every instructor by normalized name. The table is
// only read.
func Enrich(records []models.NormalizedCourseRecord, table ratings.Table) []models.EnrichedCourseRecord {
	out := make([]models.EnrichedCourseRecord, len(records))
	for i, r := range records {
		out[i].NormalizedCourseRecord = r
		if r.Meetings == nil {
			out[i].Meetings = []models.MeetingTime{}
		}
		out[i].Instructors = make([]models.EnrichedInstructor, 0, len(r.Instructors))
		for _, name := range r.Instructors {
			inst := models.EnrichedInstructor{Name: name}
			if rating, ok := table.Lookup(name); ok {
				inst.Rated = true
				inst.Rating = &rating
			}
			out[i].Instructors = append(out[i].Instructors, inst)
		}
	}
	return out
}

// Stats counts what a merge consumed and produced.
type Stats struct {
	Shards       int `json:"shards"`
	FailedShards int `json:"failed_shards"`
	EmptyShards  int `json:"empty_shards"`
	InputRecords int `json:"input_records"`
	PriorRecords int `json:"prior_records"`
	Records      int `json:"records"`
	Rated        int `json:"rated_instructors"`
	Unrated      int `json:"unrated_instructors"`
}

// Summarize computes Stats for a finished merge.
func Summarize(shards []Shard, prior []models.EnrichedCourseRecord, out []models.EnrichedCourseRecord) Stats {
	st := Stats{Shards: len(shards), PriorRecords: len(prior), Records: len(out)}
	for i := range shards {
		switch {
		case shards[i].Err != nil:
			st.FailedShards++
		case len(shards[i].Records) == 0:
			st.EmptyShards++
		default:
			st.InputRecords += len(shards[i].Records)
		}
	}
	for i := range out {
		for _, inst := range out[i].Instructors {
			if inst.Rated {
				st.Rated++
			} else {
				st.Unrated++
			}
		}
	}
	return st
}
