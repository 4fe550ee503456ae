package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/sessionmcp/sessionmcp/internal/aux"
	"github.com/sessionmcp/sessionmcp/internal/config"
	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
	"github.com/sessionmcp/sessionmcp/internal/rank"
	"github.com/sessionmcp/sessionmcp/internal/registry"
	"github.com/sessionmcp/sessionmcp/internal/search"
	"github.com/sessionmcp/sessionmcp/internal/vectorstore"
	"github.com/sessionmcp/sessionmcp/pkg/version"
)

// defaultToolTimeout bounds every tool call (spec.md §4.13 "A 30 s default
// tool-call timeout surfaces {code: -32000, message: "Request timeout"}").
const defaultToolTimeout = 30 * time.Second

// Server is the JSON-RPC/MCP dispatcher (spec.md §4.13): it bridges AI
// clients to the fork-detection search pipeline and the auxiliary
// services.
type Server struct {
	mcp *mcp.Server

	Orchestrator    *search.Orchestrator
	Registry        *registry.Registry
	ForkHistory     *aux.ForkHistory
	Tagger          *aux.Tagger
	Summarizer      *aux.Summarizer
	Differ          *aux.Differ
	Clusterer       *aux.Clusterer
	Clusters        *aux.ClusterSnapshot
	Config          *config.Config
	Logger          *slog.Logger
	ToolTimeout     time.Duration
}

// NewServer wires the dispatcher's collaborators and registers every tool
// (spec.md §4.13 tool set), rejecting a missing required collaborator up
// front rather than failing on the first tool call that needs it.
func NewServer(deps Server) (*Server, error) {
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("rpc: search orchestrator is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("rpc: session registry is required")
	}
	if deps.ForkHistory == nil {
		return nil, fmt.Errorf("rpc: fork history is required")
	}
	if deps.Tagger == nil {
		return nil, fmt.Errorf("rpc: tagger is required")
	}
	if deps.Summarizer == nil {
		return nil, fmt.Errorf("rpc: summarizer is required")
	}
	if deps.Differ == nil {
		return nil, fmt.Errorf("rpc: differ is required")
	}
	if deps.Clusterer == nil {
		return nil, fmt.Errorf("rpc: clusterer is required")
	}
	if deps.Clusters == nil {
		return nil, fmt.Errorf("rpc: cluster snapshot is required")
	}
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.ToolTimeout <= 0 {
		deps.ToolTimeout = defaultToolTimeout
	}

	s := deps
	s.mcp = mcp.NewServer(
		&mcp.Implementation{
			Name:    "sessionmcp",
			Version: version.Version,
		},
		nil,
	)
	s.registerTools()
	return &s, nil
}

// Serve runs the dispatcher over stdio until ctx is canceled (spec.md
// §4.13 "line-delimited request/response channel on standard input/
// output").
func (s *Server) Serve(ctx context.Context) error {
	s.Logger.Info("starting JSON-RPC dispatcher", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.Logger.Error("dispatcher stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.Logger.Info("dispatcher stopped")
	return nil
}

func (s *Server) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.ToolTimeout)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "fork-detect", Description: toolDescriptions["fork-detect"]}, s.handleForkDetect)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "get-session-preview", Description: toolDescriptions["get-session-preview"]}, s.handleSessionPreview)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "get-fork-history", Description: toolDescriptions["get-fork-history"]}, s.handleGetForkHistory)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "record-fork", Description: toolDescriptions["record-fork"]}, s.handleRecordFork)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "add-session-tag", Description: toolDescriptions["add-session-tag"]}, s.handleAddTag)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "remove-session-tag", Description: toolDescriptions["remove-session-tag"]}, s.handleRemoveTag)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "list-session-tags", Description: toolDescriptions["list-session-tags"]}, s.handleListTags)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "get-session-summary", Description: toolDescriptions["get-session-summary"]}, s.handleSummary)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "cluster-sessions", Description: toolDescriptions["cluster-sessions"]}, s.handleClusterSessions)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "get-session-clusters", Description: toolDescriptions["get-session-clusters"]}, s.handleGetSessionClusters)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "get-cluster-sessions", Description: toolDescriptions["get-cluster-sessions"]}, s.handleGetClusterSessions)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "compare-sessions", Description: toolDescriptions["compare-sessions"]}, s.handleCompareSessions)
	mcp.AddTool(s.mcp, &mcp.Tool{Name: "get-similar-sessions", Description: toolDescriptions["get-similar-sessions"]}, s.handleSimilarSessions)

	s.Logger.Info("registered JSON-RPC tools", slog.Int("count", len(toolDescriptions)))
}

// handleForkDetect is fork-detect's handler (spec.md §4.13).
func (s *Server) handleForkDetect(ctx context.Context, _ *mcp.CallToolRequest, in ForkDetectInput) (*mcp.CallToolResult, toolOutput, error) {
	if strings.TrimSpace(in.Query) == "" {
		return nil, toolOutput{}, MapError(sessionerrors.New(sessionerrors.KindConfigInvalid, "query is required"))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filters := search.Filters{
		Project:        in.Project,
		Scope:          in.Scope,
		Tags:           in.Tags,
		IncludeArchive: in.IncludeArchive,
	}
	if in.TimeFrom != "" {
		if t, err := time.Parse(time.RFC3339, in.TimeFrom); err == nil {
			filters.TimeRangeFrom = t
		}
	}
	if in.TimeUntil != "" {
		if t, err := time.Parse(time.RFC3339, in.TimeUntil); err == nil {
			filters.TimeRangeUntil = t
		}
	}

	limit := in.Limit
	if limit <= 0 {
		limit = s.Config.Search.TopNSessions
	}

	results, err := s.Orchestrator.Search(ctx, in.Query, filters, limit)
	if err != nil {
		return nil, toolOutput{}, MapError(err)
	}
	return textResult(FormatForkDetect(in.Query, results)), toolOutput{}, nil
}

// handleSessionPreview is get-session-preview's handler.
func (s *Server) handleSessionPreview(_ context.Context, _ *mcp.CallToolRequest, in SessionIDInput) (*mcp.CallToolResult, toolOutput, error) {
	if _, ok := s.Registry.Get(in.SessionID); !ok {
		return nil, toolOutput{}, MapError(sessionerrors.New(sessionerrors.KindNotFound, "session not found").WithQuery(in.SessionID))
	}
	preview := s.sessionPreview(in.SessionID, nil)
	return textResult(FormatSessionPreview(in.SessionID, preview)), toolOutput{}, nil
}

// handleGetForkHistory is get-fork-history's handler.
func (s *Server) handleGetForkHistory(_ context.Context, _ *mcp.CallToolRequest, in ForkHistoryInput) (*mcp.CallToolResult, toolOutput, error) {
	var entries []aux.ForkEntry
	if in.SessionID != "" {
		entries = s.ForkHistory.ForSession(in.SessionID)
	} else {
		entries = s.ForkHistory.List(in.Limit)
	}
	if in.Limit > 0 && len(entries) > in.Limit {
		entries = entries[:in.Limit]
	}
	return textResult(FormatForkHistory(entries)), toolOutput{}, nil
}

// handleRecordFork is record-fork's handler.
func (s *Server) handleRecordFork(_ context.Context, _ *mcp.CallToolRequest, in RecordForkInput) (*mcp.CallToolResult, toolOutput, error) {
	if strings.TrimSpace(in.SessionID) == "" || strings.TrimSpace(in.Query) == "" {
		return nil, toolOutput{}, MapError(sessionerrors.New(sessionerrors.KindConfigInvalid, "session_id and query are required"))
	}
	entry, err := s.ForkHistory.Record(in.SessionID, in.Query, in.SelectedPosition)
	if err != nil {
		return nil, toolOutput{}, MapError(err)
	}
	return textResult(FormatForkRecorded(entry)), toolOutput{}, nil
}

// handleAddTag is add-session-tag's handler.
func (s *Server) handleAddTag(_ context.Context, _ *mcp.CallToolRequest, in TagInput) (*mcp.CallToolResult, toolOutput, error) {
	if err := s.Tagger.AddTag(in.SessionID, in.Tag); err != nil {
		return nil, toolOutput{}, MapError(err)
	}
	return textResult(FormatTagChanged("Added", in.SessionID, strings.ToLower(strings.TrimSpace(in.Tag)))), toolOutput{}, nil
}

// handleRemoveTag is remove-session-tag's handler.
func (s *Server) handleRemoveTag(_ context.Context, _ *mcp.CallToolRequest, in TagInput) (*mcp.CallToolResult, toolOutput, error) {
	if err := s.Tagger.RemoveTag(in.SessionID, in.Tag); err != nil {
		return nil, toolOutput{}, MapError(err)
	}
	return textResult(FormatTagChanged("Removed", in.SessionID, strings.ToLower(strings.TrimSpace(in.Tag)))), toolOutput{}, nil
}

// handleListTags is list-session-tags's handler.
func (s *Server) handleListTags(_ context.Context, _ *mcp.CallToolRequest, in SessionIDInput) (*mcp.CallToolResult, toolOutput, error) {
	tags, err := s.Tagger.ListTags(in.SessionID)
	if err != nil {
		return nil, toolOutput{}, MapError(err)
	}
	return textResult(FormatTagList(in.SessionID, tags)), toolOutput{}, nil
}

// handleSummary is get-session-summary's handler. It regenerates the
// cached summary when missing or stale (spec.md §4.12 "regenerated when
// chunk count changes by >= 10%").
func (s *Server) handleSummary(_ context.Context, _ *mcp.CallToolRequest, in SummaryInput) (*mcp.CallToolResult, toolOutput, error) {
	sess, ok := s.Registry.Get(in.SessionID)
	if !ok {
		return nil, toolOutput{}, MapError(sessionerrors.New(sessionerrors.KindNotFound, "session not found").WithQuery(in.SessionID))
	}

	currentChunks := sess.ChunkCount
	stale := sess.Summary == "" || aux.NeedsRegeneration(sess.SummaryChunkCount, currentChunks, s.Config.Aux.SummaryRegenDeltaPercent)
	if stale {
		topN := in.TopN
		if topN <= 0 {
			topN = s.Config.Aux.SummaryTopSentences
		}
		summary := s.Summarizer.Summarize(in.SessionID, topN)
		if err := s.Registry.Update(in.SessionID, registry.Update{
			Summary:           &summary,
			SummaryChunkCount: &currentChunks,
		}); err != nil {
			return nil, toolOutput{}, MapError(err)
		}
		sess.Summary = summary
	}
	return textResult(FormatSummary(in.SessionID, sess.Summary)), toolOutput{}, nil
}

// handleClusterSessions is cluster-sessions's handler: recomputes and
// persists the cluster assignment (spec.md §4.12 "k-means on session-level
// embeddings").
func (s *Server) handleClusterSessions(_ context.Context, _ *mcp.CallToolRequest, in ClusterSessionsInput) (*mcp.CallToolResult, toolOutput, error) {
	k := in.K
	if k <= 0 {
		k = s.Config.Aux.ClusterK
	}
	clusters := s.Clusterer.Cluster(k)
	if err := s.Clusters.Replace(clusters); err != nil {
		return nil, toolOutput{}, MapError(err)
	}
	return textResult(FormatClusters(clusters)), toolOutput{}, nil
}

// handleGetSessionClusters is get-session-clusters's handler.
func (s *Server) handleGetSessionClusters(_ context.Context, _ *mcp.CallToolRequest, in SessionIDInput) (*mcp.CallToolResult, toolOutput, error) {
	c, ok := s.Clusters.ForSession(in.SessionID)
	return textResult(FormatClusterMembership(in.SessionID, c, ok)), toolOutput{}, nil
}

// handleGetClusterSessions is get-cluster-sessions's handler.
func (s *Server) handleGetClusterSessions(_ context.Context, _ *mcp.CallToolRequest, in ClusterIDInput) (*mcp.CallToolResult, toolOutput, error) {
	c, ok := s.Clusters.ByID(in.ClusterID)
	return textResult(FormatClusterSessions(c, ok)), toolOutput{}, nil
}

// handleCompareSessions is compare-sessions's handler.
func (s *Server) handleCompareSessions(_ context.Context, _ *mcp.CallToolRequest, in CompareSessionsInput) (*mcp.CallToolResult, toolOutput, error) {
	if _, ok := s.Registry.Get(in.SessionA); !ok {
		return nil, toolOutput{}, MapError(sessionerrors.New(sessionerrors.KindNotFound, "session not found").WithQuery(in.SessionA))
	}
	if _, ok := s.Registry.Get(in.SessionB); !ok {
		return nil, toolOutput{}, MapError(sessionerrors.New(sessionerrors.KindNotFound, "session not found").WithQuery(in.SessionB))
	}
	result := s.Differ.Compare(in.SessionA, in.SessionB)
	return textResult(FormatDiff(result)), toolOutput{}, nil
}

// handleSimilarSessions is get-similar-sessions's handler: a k-NN lookup
// seeded by the target session's own mean chunk embedding rather than a
// text query, reusing the vector store's Search directly instead of going
// through the orchestrator (spec.md §4.12 "get-similar-sessions").
func (s *Server) handleSimilarSessions(_ context.Context, _ *mcp.CallToolRequest, in SimilarSessionsInput) (*mcp.CallToolResult, toolOutput, error) {
	results, err := s.similarSessions(in.SessionID, in.Limit)
	if err != nil {
		return nil, toolOutput{}, MapError(err)
	}
	return textResult(FormatSimilarSessions(in.SessionID, results)), toolOutput{}, nil
}

func (s *Server) similarSessions(sessionID string, limit int) ([]search.Result, error) {
	store := s.Orchestrator.Store
	chunks := store.SessionChunks(sessionID)
	if len(chunks) == 0 {
		return nil, sessionerrors.New(sessionerrors.KindNotFound, "session has no indexed chunks").WithQuery(sessionID)
	}

	vecs := make([][]float32, len(chunks))
	for i, c := range chunks {
		vecs[i] = c.Embedding
	}
	mean := aux.MeanVector(vecs)

	k := s.Config.Search.KChunks
	hits, err := store.Search(mean, k, vectorstore.Filter{}, []vectorstore.Partition{vectorstore.PartitionActive})
	if err != nil {
		return nil, sessionerrors.Wrap(sessionerrors.KindStoreUnavailable, "search vector store", err)
	}

	type agg struct {
		best   float32
		count  int
		chunks []chunkHit
	}
	bySession := make(map[string]*agg)
	for _, h := range hits {
		if h.Record.SessionID == sessionID {
			continue
		}
		a, ok := bySession[h.Record.SessionID]
		if !ok {
			a = &agg{}
			bySession[h.Record.SessionID] = a
		}
		if h.Score > a.best {
			a.best = h.Score
		}
		a.count++
		a.chunks = append(a.chunks, chunkHit{id: h.ChunkID, score: h.Score})
	}

	type ranked struct {
		sessionID   string
		best        float32
		topChunkIDs []string
	}
	list := make([]ranked, 0, len(bySession))
	for sid, a := range bySession {
		sort.SliceStable(a.chunks, func(i, j int) bool { return a.chunks[i].score > a.chunks[j].score })
		if len(a.chunks) > maxPreviewChunks {
			a.chunks = a.chunks[:maxPreviewChunks]
		}
		ids := make([]string, len(a.chunks))
		for i, c := range a.chunks {
			ids[i] = c.id
		}
		list = append(list, ranked{sessionID: sid, best: a.best, topChunkIDs: ids})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].best > list[j].best })

	if limit <= 0 {
		limit = s.Config.Search.TopNSessions
	}
	if len(list) > limit {
		list = list[:limit]
	}

	out := make([]search.Result, 0, len(list))
	for _, r := range list {
		sess, ok := s.Registry.Get(r.sessionID)
		if !ok {
			continue
		}
		out = append(out, search.Result{
			Session: sess,
			Score:   rank.Score{Total: float64(r.best)},
			Preview: s.sessionPreview(r.sessionID, r.topChunkIDs),
		})
	}
	return out, nil
}

// maxPreviewChunks and chunkHit mirror internal/search's preview-selection
// helpers (spec.md §4.9 step 7 "select up to three highest-similarity
// chunks"), duplicated here because similarSessions runs its own k-NN
// search directly against the store rather than through the orchestrator.
const maxPreviewChunks = 3

type chunkHit struct {
	id    string
	score float32
}

// sessionPreview concatenates a session's highest-similarity chunks
// (topChunkIDs, already ranked by the caller) and trims to preview_length
// on a word boundary, mirroring search.Orchestrator.buildPreview. When
// topChunkIDs is empty — get-session-preview has no query or k-NN hits to
// rank by — it falls back to the session's most recently appended chunks.
func (s *Server) sessionPreview(sessionID string, topChunkIDs []string) string {
	store := s.Orchestrator.Store

	var chunks []vectorstore.ChunkRecord
	if len(topChunkIDs) > 0 {
		chunks = store.GetChunks(topChunkIDs)
	} else {
		chunks = store.SessionChunks(sessionID)
		if len(chunks) > maxPreviewChunks {
			chunks = chunks[len(chunks)-maxPreviewChunks:]
		}
	}
	if len(chunks) == 0 {
		return ""
	}

	texts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		texts = append(texts, strings.TrimSpace(c.Text))
	}

	previewLen := s.Config.Search.PreviewLength
	if previewLen <= 0 {
		previewLen = 280
	}
	return search.TrimPreview(strings.Join(texts, "\n…\n"), previewLen)
}
