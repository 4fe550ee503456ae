// Package config provides the typed, file-backed configuration record
// described in spec.md §4.14. It is loaded once at process start from
// config.json (temp+rename on every write, as every persisted artifact in
// this service is), falls back to defaults for missing keys, and rejects
// invalid values with errors.KindConfigInvalid.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sessionerrors "github.com/sessionmcp/sessionmcp/internal/errors"
)

// Config is the process-wide configuration record (spec.md §4.14).
type Config struct {
	Embedding EmbeddingConfig `json:"embedding"`
	Search    SearchConfig    `json:"search"`
	Chunking  ChunkingConfig  `json:"chunking"`
	Indexing  IndexingConfig  `json:"indexing"`
	Setup     SetupConfig     `json:"setup"`
	Memory    MemoryConfig    `json:"memory"`
	Cache     CacheConfig     `json:"cache"`
	Fork      ForkConfig      `json:"fork"`
	Aux       AuxConfig       `json:"aux"`
	StorageDir string         `json:"storage_dir"`
}

// EmbeddingConfig configures the embedding gateway (§4.4).
type EmbeddingConfig struct {
	ModelName    string `json:"model_name"`
	Dimension    int    `json:"dimension"`
	BatchSize    int    `json:"batch_size"`
	MaxBatchSize int    `json:"max_batch_size"`
	MinBatchSize int    `json:"min_batch_size"`
}

// SearchConfig configures the search orchestrator and ranker (§4.7, §4.9).
type SearchConfig struct {
	KChunks             int     `json:"k_chunks"`
	TopNSessions        int     `json:"top_n_sessions"`
	PreviewLength       int     `json:"preview_length"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	RecencyWeight       float64 `json:"recency_weight"`
}

// ChunkingConfig configures the chunker (§4.2).
type ChunkingConfig struct {
	TargetTokens  int `json:"target_tokens"`
	OverlapTokens int `json:"overlap_tokens"`
	MaxTokens     int `json:"max_tokens"`
}

// IndexingConfig configures the background indexer (§4.10).
type IndexingConfig struct {
	DebounceDelay      time.Duration `json:"debounce_delay"`
	CheckpointInterval int           `json:"checkpoint_interval"`
	Enabled            bool          `json:"enabled"`
	Workers            int           `json:"workers"`
}

// SetupConfig configures the initial-setup orchestrator (§4.11).
type SetupConfig struct {
	TimeoutPerSession time.Duration `json:"timeout_per_session"`
	BatchSize         int           `json:"batch_size"`
	Workers           int           `json:"workers"`
	UseCPU            bool          `json:"use_cpu"`
}

// MemoryConfig bounds process memory for the adaptive batch sizer (§4.4).
type MemoryConfig struct {
	MaxMemoryMB       int  `json:"max_memory_mb"`
	GCBetweenBatches  bool `json:"gc_between_batches"`
}

// CacheConfig configures the query/result caches (§4.8).
type CacheConfig struct {
	QueryCacheSize  int `json:"query_cache_size"`
	ResultCacheSize int `json:"result_cache_size"`
	TTLSeconds      int `json:"ttl_seconds"`
}

// ForkConfig configures fork-command generation (Open Question decision,
// SPEC_FULL.md §6.2): the producer's resume syntax is an opaque template.
type ForkConfig struct {
	CommandTemplate string `json:"command_template"`
}

// AuxConfig configures the auxiliary services (§4.12): summary
// regeneration, duplicate detection, clustering, and the archive sweep.
type AuxConfig struct {
	SummaryTopSentences     int     `json:"summary_top_sentences"`
	SummaryRegenDeltaPercent float64 `json:"summary_regen_delta_percent"`
	DuplicateThreshold      float64 `json:"duplicate_threshold"`
	DuplicateMinChunks      int     `json:"duplicate_min_chunks"`
	ClusterK                int     `json:"cluster_k"`
	ArchiveThresholdDays    int     `json:"archive_threshold_days"`
	ArchiveSweepEnabled     bool    `json:"archive_sweep_enabled"`
	ArchiveSweepCron        string  `json:"archive_sweep_cron"`
}

// Default returns the configuration defaults enumerated in spec.md §4.14.
func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			ModelName:    "static",
			Dimension:    256,
			BatchSize:    32,
			MaxBatchSize: 256,
			MinBatchSize: 1,
		},
		Search: SearchConfig{
			KChunks:             200,
			TopNSessions:        5,
			PreviewLength:       200,
			SimilarityThreshold: 0.3,
			RecencyWeight:       0.25,
		},
		Chunking: ChunkingConfig{
			TargetTokens:  750,
			OverlapTokens: 150,
			MaxTokens:     1000,
		},
		Indexing: IndexingConfig{
			DebounceDelay:      5 * time.Second,
			CheckpointInterval: 15,
			Enabled:            true,
			Workers:            1,
		},
		Setup: SetupConfig{
			TimeoutPerSession: 30 * time.Second,
			BatchSize:         5,
			Workers:           1,
			UseCPU:            false,
		},
		Memory: MemoryConfig{
			MaxMemoryMB:      2000,
			GCBetweenBatches: true,
		},
		Cache: CacheConfig{
			QueryCacheSize:  100,
			ResultCacheSize: 50,
			TTLSeconds:      300,
		},
		Fork: ForkConfig{
			CommandTemplate: "claude --resume {{.SessionID}}",
		},
		Aux: AuxConfig{
			SummaryTopSentences:      5,
			SummaryRegenDeltaPercent: 10,
			DuplicateThreshold:       0.85,
			DuplicateMinChunks:       3,
			ClusterK:                 10,
			ArchiveThresholdDays:     365,
			ArchiveSweepEnabled:      false,
			ArchiveSweepCron:         "0 3 * * *",
		},
		StorageDir: DefaultStorageDir(),
	}
}

// DefaultStorageDir returns the default user-scoped storage directory.
func DefaultStorageDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".sessionmcp")
}

// Validate rejects configuration values outside their sane ranges, per
// spec.md §4.14 "invalid values are rejected with ConfigInvalid".
func (c *Config) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "embedding.dimension must be positive")
	}
	if c.Embedding.MinBatchSize <= 0 || c.Embedding.MaxBatchSize < c.Embedding.MinBatchSize {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "embedding.min_batch_size/max_batch_size invalid")
	}
	if c.Search.KChunks <= 0 || c.Search.TopNSessions <= 0 {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "search.k_chunks/top_n_sessions must be positive")
	}
	if c.Search.SimilarityThreshold < 0 || c.Search.SimilarityThreshold > 1 {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "search.similarity_threshold must be in [0,1]")
	}
	if c.Chunking.OverlapTokens >= c.Chunking.TargetTokens {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "chunking.overlap_tokens must be smaller than target_tokens")
	}
	if c.Chunking.TargetTokens > c.Chunking.MaxTokens {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "chunking.target_tokens must not exceed max_tokens")
	}
	if c.Indexing.DebounceDelay <= 0 {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "indexing.debounce_delay must be positive")
	}
	if c.Setup.TimeoutPerSession <= 0 || c.Setup.BatchSize <= 0 {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "setup.timeout_per_session/batch_size must be positive")
	}
	if c.StorageDir == "" {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "storage_dir must not be empty")
	}
	if c.Aux.DuplicateThreshold < 0 || c.Aux.DuplicateThreshold > 1 {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "aux.duplicate_threshold must be in [0,1]")
	}
	if c.Aux.ClusterK <= 0 {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "aux.cluster_k must be positive")
	}
	if c.Aux.ArchiveThresholdDays <= 0 {
		return sessionerrors.New(sessionerrors.KindConfigInvalid, "aux.archive_threshold_days must be positive")
	}
	return nil
}

// Path returns the path to config.json under the storage directory.
func (c *Config) Path() string {
	return filepath.Join(c.StorageDir, "config.json")
}

// Load reads config.json from storageDir, applying defaults for any missing
// keys. If the file does not exist, defaults are returned and persisted.
func Load(storageDir string) (*Config, error) {
	cfg := Default()
	if storageDir != "" {
		cfg.StorageDir = storageDir
	}

	path := cfg.Path()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := Save(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, sessionerrors.Wrap(sessionerrors.KindIOError, "read config.json", err)
	}

	// Unmarshal over the defaults so missing keys keep their default value.
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, sessionerrors.Wrap(sessionerrors.KindConfigInvalid, "parse config.json", err)
	}
	if storageDir != "" {
		cfg.StorageDir = storageDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration atomically: encode to a temp file in the
// same directory, then rename over the final path.
func Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	path := cfg.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "create storage dir", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return sessionerrors.Wrap(sessionerrors.KindConfigInvalid, "encode config", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return sessionerrors.Wrap(sessionerrors.KindIOError, "write temp config", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return sessionerrors.Wrap(sessionerrors.KindIOError, "rename temp config", err)
	}
	return nil
}

// String renders the config for diagnostic display (e.g. `sessionmcp doctor`).
func (c *Config) String() string {
	return fmt.Sprintf("sessionmcp config @ %s (embedding=%s/%d)", c.StorageDir, c.Embedding.ModelName, c.Embedding.Dimension)
}
