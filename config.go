// Package clawmem wires the store, LLM gateway, splitter/indexer,
// A-MEM enrichment, graph builder, intent classifier, retrieval
// orchestrator, consolidation worker, and feedback loop into one
// personal agent-memory engine.
package clawmem

import (
	"os"
	"path/filepath"
	"time"
)

// Collection describes one indexed document tree.
type Collection struct {
	Name    string            `yaml:"name"`
	Path    string            `yaml:"path"`
	Pattern string            `yaml:"pattern"` // default "**/*.md"
	Context map[string]string `yaml:"context"` // prefix -> injected context string
	Update  string            `yaml:"update,omitempty"`
}

// Config holds all configuration for the ClawMem engine, loaded from
// ~/.config/clawmem/index.yml and environment variables.
type Config struct {
	Collections      []Collection `yaml:"collections"`
	GlobalContext    string       `yaml:"global_context"`
	DirectoryContext bool         `yaml:"directory_context"`

	// DBPath is the full path to the SQLite database file. If empty,
	// resolved from $XDG_CACHE_HOME/clawmem/index.sqlite (overridable
	// via INDEX_PATH).
	DBPath string `yaml:"db_path"`

	// LLM endpoints. Empty means "no remote backend, fall back local".
	EmbedURL  string `yaml:"embed_url"`
	LLMURL    string `yaml:"llm_url"`
	RerankURL string `yaml:"rerank_url"`

	EmbeddingDim int `yaml:"embedding_dim"`

	EnableAMEM            bool          `yaml:"enable_amem"`
	EnableConsolidation   bool          `yaml:"enable_consolidation"`
	ConsolidationInterval time.Duration `yaml:"consolidation_interval"`

	HeartbeatPatterns          []string      `yaml:"heartbeat_patterns"`
	DisableHeartbeatSuppression bool         `yaml:"disable_heartbeat_suppression"`
	HookDedupWindow            time.Duration `yaml:"hook_dedup_window"`

	// WeightSearch, WeightRecency and WeightConfidence hold composite-score
	// weights (search, recency, confidence). The retrieval package does not
	// read them; it uses its own built-in weight profiles.
	WeightSearch     float64 `yaml:"weight_search"`
	WeightRecency    float64 `yaml:"weight_recency"`
	WeightConfidence float64 `yaml:"weight_confidence"`

	MaxFindBytes int64 `yaml:"max_find_bytes"`
}

// DefaultConfig returns sane defaults for local operation with no
// remote LLM backend configured.
func DefaultConfig() Config {
	return Config{
		Collections: []Collection{
			{Name: "notes", Path: "~/clawmem-notes", Pattern: "**/*.md"},
		},
		DirectoryContext:      true,
		EmbeddingDim:          768,
		EnableAMEM:            true,
		EnableConsolidation:   true,
		ConsolidationInterval: 5 * time.Minute,
		HeartbeatPatterns:     []string{"<heartbeat>", "[heartbeat]"},
		HookDedupWindow:       600 * time.Second,
		WeightSearch:          0.5,
		WeightRecency:         0.25,
		WeightConfidence:      0.25,
		MaxFindBytes:          2 << 20,
	}
}

// ResolveDBPath computes the final database path: explicit DBPath,
// then INDEX_PATH, then $XDG_CACHE_HOME/clawmem/index.sqlite.
func (c *Config) ResolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}
	if p := os.Getenv("INDEX_PATH"); p != "" {
		return p
	}
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "clawmem-index.sqlite"
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	return filepath.Join(cacheDir, "clawmem", "index.sqlite")
}

// LoadEnvOverrides applies the CLAWMEM_*_URL, CLAWMEM_ENABLE_*,
// CLAWMEM_CONSOLIDATION_INTERVAL, CLAWMEM_HOOK_DEDUP_WINDOW_SEC and
// CLAWMEM_DISABLE_HEARTBEAT_SUPPRESSION environment variables on top
// of an already-loaded Config. INDEX_PATH is read by ResolveDBPath;
// CLAWMEM_HEARTBEAT_PATTERNS and NO_COLOR are not read.
func (c *Config) LoadEnvOverrides() {
	if v := os.Getenv("CLAWMEM_EMBED_URL"); v != "" {
		c.EmbedURL = v
	}
	if v := os.Getenv("CLAWMEM_LLM_URL"); v != "" {
		c.LLMURL = v
	}
	if v := os.Getenv("CLAWMEM_RERANK_URL"); v != "" {
		c.RerankURL = v
	}
	if v := os.Getenv("CLAWMEM_ENABLE_AMEM"); v != "" {
		c.EnableAMEM = v != "0" && v != "false"
	}
	if v := os.Getenv("CLAWMEM_ENABLE_CONSOLIDATION"); v != "" {
		c.EnableConsolidation = v != "0" && v != "false"
	}
	if v := os.Getenv("CLAWMEM_CONSOLIDATION_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ConsolidationInterval = d
		}
	}
	if v := os.Getenv("CLAWMEM_HOOK_DEDUP_WINDOW_SEC"); v != "" {
		if secs, err := time.ParseDuration(v + "s"); err == nil {
			c.HookDedupWindow = secs
		}
	}
	if os.Getenv("CLAWMEM_DISABLE_HEARTBEAT_SUPPRESSION") != "" {
		c.DisableHeartbeatSuppression = true
	}
}
