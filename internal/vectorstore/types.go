// Package vectorstore implements the vector store adapter (spec.md §4.5):
// two named partitions ("active"/"archive") of scalar-metadata-tagged
// chunks, backed by internal/hnswstore.
package vectorstore

import "time"

// Partition names the two exposed vector partitions.
type Partition string

const (
	PartitionActive  Partition = "active"
	PartitionArchive Partition = "archive"
)

// ChunkRecord is one upserted chunk: the vector store owns chunk bodies and
// vectors (spec.md §3 "Ownership").
type ChunkRecord struct {
	ChunkID        string
	SessionID      string
	Project        string
	ChunkIndex     int
	Text           string
	TokenCount     int
	Timestamp      time.Time
	MessageStart   int
	MessageEnd     int
	MemoryTypes    []string
	Tags           []string
	Archived       bool
	Embedding      []float32
}

// Result is one scored search hit, joined back with its decoded metadata.
type Result struct {
	ChunkID   string
	Score     float32
	Distance  float32
	Partition Partition
	Record    ChunkRecord
}

// Stats summarizes partition occupancy (spec.md §4.5 "get_stats").
type Stats struct {
	ActiveChunks  int
	ArchiveChunks int
}
