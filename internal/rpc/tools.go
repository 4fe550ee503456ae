package rpc

// toolOutput is the Out type parameter for every handler registered via
// mcp.AddTool. spec.md §4.13 mandates a plain-text content item
// (`{content:[{type:"text", text:<str>}]}`) rather than a structured,
// schema-derived output — every handler here builds *mcp.CallToolResult
// directly with one TextContent and ignores this type; it exists only to
// satisfy the generic signature.
type toolOutput struct{}

// ForkDetectInput is fork-detect's argument shape (spec.md §4.13).
type ForkDetectInput struct {
	Query          string   `json:"query" jsonschema:"the search query describing what you're looking for"`
	Project        string   `json:"project,omitempty" jsonschema:"project name to scope to, applied when scope is project; matched literally, \"current\" is not resolved to an active project"`
	Scope          string   `json:"scope,omitempty" jsonschema:"all or project, default all"`
	Tags           []string `json:"tags,omitempty" jsonschema:"only return sessions carrying at least one of these tags"`
	TimeFrom       string   `json:"time_from,omitempty" jsonschema:"RFC3339 lower bound on session updated_at"`
	TimeUntil      string   `json:"time_until,omitempty" jsonschema:"RFC3339 upper bound on session updated_at"`
	IncludeArchive bool     `json:"include_archive,omitempty" jsonschema:"include archived sessions, default false"`
	Limit          int      `json:"limit,omitempty" jsonschema:"maximum number of sessions to return, default 5"`
}

// SessionIDInput is the argument shape shared by tools that take just a
// session_id (get-session-preview, list-session-tags, get-session-clusters).
type SessionIDInput struct {
	SessionID string `json:"session_id" jsonschema:"the session id to operate on"`
}

// ForkHistoryInput is get-fork-history's argument shape.
type ForkHistoryInput struct {
	SessionID string `json:"session_id,omitempty" jsonschema:"restrict to one session's fork history; omit for the global log"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of entries; 0 or omitted returns every recorded entry"`
}

// RecordForkInput is record-fork's argument shape.
type RecordForkInput struct {
	SessionID        string `json:"session_id" jsonschema:"the session id that was forked into"`
	Query            string `json:"query" jsonschema:"the query that produced the ranked list the user chose from"`
	SelectedPosition int    `json:"selected_position" jsonschema:"0-based index of the chosen session in that ranked list"`
}

// TagInput is the argument shape shared by add-session-tag and
// remove-session-tag.
type TagInput struct {
	SessionID string `json:"session_id" jsonschema:"the session id to tag"`
	Tag       string `json:"tag" jsonschema:"lowercase letters, numbers, hyphens, underscores only"`
}

// SummaryInput is get-session-summary's argument shape.
type SummaryInput struct {
	SessionID string `json:"session_id" jsonschema:"the session id to summarize"`
	TopN      int    `json:"top_n,omitempty" jsonschema:"number of sentences in the summary, default 5"`
}

// ClusterSessionsInput is cluster-sessions's argument shape.
type ClusterSessionsInput struct {
	K int `json:"k,omitempty" jsonschema:"number of clusters, default 10, clamped to the session count"`
}

// ClusterIDInput is get-cluster-sessions's argument shape.
type ClusterIDInput struct {
	ClusterID int `json:"cluster_id" jsonschema:"id of a cluster returned by cluster-sessions"`
}

// CompareSessionsInput is compare-sessions's argument shape.
type CompareSessionsInput struct {
	SessionA string `json:"session_a" jsonschema:"first session id"`
	SessionB string `json:"session_b" jsonschema:"second session id"`
}

// SimilarSessionsInput is get-similar-sessions's argument shape.
type SimilarSessionsInput struct {
	SessionID string `json:"session_id" jsonschema:"find sessions similar to this one"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of sessions to return, default 5"`
}

// toolDescriptions holds the registered description text for each tool
// name, used by both registerTools and ListTools-style diagnostics.
var toolDescriptions = map[string]string{
	"fork-detect": "Search prior coding-assistant sessions for ones relevant to a new task, ranked by semantic similarity, recency, and fork history. Use before starting work that might already have a prior session worth resuming or branching from.",
	"get-session-preview": "Fetch a short text preview of a session's most relevant content, for deciding whether to fork it.",
	"get-fork-history": "List prior fork-detect selections, newest first, optionally restricted to one session.",
	"record-fork": "Record that a session was chosen to fork from, feeding future ranking's preference boost.",
	"add-session-tag": "Attach a tag to a session.",
	"remove-session-tag": "Remove a tag from a session.",
	"list-session-tags": "List a session's current tags.",
	"get-session-summary": "Get (or regenerate, if stale) a session's extractive summary.",
	"cluster-sessions": "Group all sessions into k clusters by content similarity and persist the assignment.",
	"get-session-clusters": "Look up which cluster a session was last assigned to.",
	"get-cluster-sessions": "List every session in a given cluster.",
	"compare-sessions": "Semantically diff two sessions: shared vs. unique content and topic overlap.",
	"get-similar-sessions": "Find sessions most similar to a given session's content.",
}
