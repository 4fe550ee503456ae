// Package registry implements the session registry (spec.md §4.6): the
// single JSON document of record for every session's metadata.
package registry

import "time"

// Session is one tracked transcript (spec.md §3 "Session").
type Session struct {
	SessionID    string    `json:"session_id"`
	Project      string    `json:"project"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	ChunkCount   int       `json:"chunk_count"`
	Tags         []string  `json:"tags"`
	Summary      string    `json:"summary,omitempty"`
	SummaryChunkCount int  `json:"summary_chunk_count,omitempty"`
	Archived     bool      `json:"archived"`
	LastSynced   time.Time `json:"last_synced,omitempty"`
	TranscriptPath string  `json:"transcript_path"`
}

// Update carries the partial-update fields for Update (spec.md §4.6
// "update (partial)"); a nil pointer means "leave unchanged".
type Update struct {
	MessageCount *int
	ChunkCount   *int
	Tags         *[]string
	Summary      *string
	SummaryChunkCount *int
	Archived     *bool
	LastSynced   *time.Time
}

// ListFilter narrows List (spec.md §4.6 "optional project/tag/archived
// filters").
type ListFilter struct {
	Project  string
	Tag      string
	Archived *bool
}

// Stats summarizes the registry for diagnostics (spec.md §4.6
// "get-stats").
type Stats struct {
	TotalSessions    int
	ArchivedSessions int
	TotalChunks      int
	Projects         []string
}
