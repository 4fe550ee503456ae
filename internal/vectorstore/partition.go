package vectorstore

import "time"

// Filter selects a subset of chunks by equality and membership predicates
// (spec.md §4.5): project equality, archived-flag equality, tag-set
// membership, memory-type-set membership, and a timestamp range.
type Filter struct {
	Project     string   // empty means any
	Archived    *bool    // nil means any
	Tags        []string // chunk must carry at least one of these
	MemoryTypes []string // chunk must carry at least one of these
	Since       time.Time
	Until       time.Time // zero means unbounded
}

// matches reports whether rec satisfies f.
func (f Filter) matches(rec ChunkRecord) bool {
	if f.Project != "" && rec.Project != f.Project {
		return false
	}
	if f.Archived != nil && rec.Archived != *f.Archived {
		return false
	}
	if len(f.Tags) > 0 && !anyMember(rec.Tags, f.Tags) {
		return false
	}
	if len(f.MemoryTypes) > 0 && !anyMember(rec.MemoryTypes, f.MemoryTypes) {
		return false
	}
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// anyMember reports whether haystack and needles share at least one element.
func anyMember(haystack, needles []string) bool {
	set := make(map[string]bool, len(haystack))
	for _, h := range haystack {
		set[h] = true
	}
	for _, n := range needles {
		if set[n] {
			return true
		}
	}
	return false
}
