package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all hebbian configuration. Every learning, recall, decay and
// consolidation constant the engine uses lives here so it can be tuned
// without touching algorithm code.
type Config struct {
	Store         StoreConfig         `toml:"store"`
	Learning      LearningConfig      `toml:"learning"`
	Recall        RecallConfig        `toml:"recall"`
	Decay         DecayConfig         `toml:"decay"`
	Consolidation ConsolidationConfig `toml:"consolidation"`
	Tokens        TokenConfig         `toml:"tokens"`
	Server        ServerConfig        `toml:"server"`
	Embedding     EmbeddingConfig     `toml:"embedding"`
	Logging       LoggingConfig       `toml:"logging"`
	Privacy       PrivacyConfig       `toml:"privacy"`
}

type StoreConfig struct {
	Path           string `toml:"path"`             // empty = ~/.hebbian/hebbian.db
	BusyTimeoutMs  int    `toml:"busy_timeout_ms"`  // SQLite busy_timeout per connection
	MaxRetries     int    `toml:"max_retries"`      // transaction attempts on SQLITE_BUSY before StoreBusy
	RetryInitialMs int    `toml:"retry_initial_ms"` // first backoff interval
	RetryMaxMs     int    `toml:"retry_max_ms"`     // backoff interval ceiling
}

type LearningConfig struct {
	SeedMyelination  float64 `toml:"seed_myelination"`  // myelination of a brand new neuron
	LearningRate     float64 `toml:"learning_rate"`     // α in m += α(1-m)
	CoactivationRate float64 `toml:"coactivation_rate"` // β in w += β(1-w)
	FixRate          float64 `toml:"fix_rate"`          // error→file reinforcement on resolve
	WindowSize       int     `toml:"window_size"`       // neurons kept in a session window
	WindowSeconds    int     `toml:"window_seconds"`    // max age of a window entry
	ContextCap       int     `toml:"context_cap"`       // context snippets kept per neuron
	MaxContextChars  int     `toml:"max_context_chars"` // longer snippets are truncated
	Directed         bool    `toml:"directed"`          // synapses follow access order
}

type RecallConfig struct {
	MinQueryLen         int     `toml:"min_query_len"`
	MaxHops             int     `toml:"max_hops"`
	HopDecay            float64 `toml:"hop_decay"`
	ConfidenceFloor     float64 `toml:"confidence_floor"`
	SimilarityThreshold float64 `toml:"similarity_threshold"`
	MaxSeeds            int     `toml:"max_seeds"`
	MaxNeighbors        int     `toml:"max_neighbors"`
	MaxVectorScan       int     `toml:"max_vector_scan"`   // embedded neurons compared per recall, strongest first
	MyelinationBias     float64 `toml:"myelination_bias"`  // seed activation = strength * (bias + (1-bias)*m)
	MyelinationBlend    float64 `toml:"myelination_blend"` // confidence = (1-blend)*activation + blend*m
	DefaultLimit        int     `toml:"default_limit"`
	DefaultTokenBudget  int     `toml:"default_token_budget"` // 0 = unbounded
	ResultOverhead      int     `toml:"result_overhead"`      // tokens spent per returned result
}

type DecayConfig struct {
	SynapseHalfLifeHours     float64 `toml:"synapse_half_life_hours"`
	MyelinationHalfLifeHours float64 `toml:"myelination_half_life_hours"`
	PruneEpsilon             float64 `toml:"prune_epsilon"`
	OrphanGraceHours         float64 `toml:"orphan_grace_hours"`
}

type ConsolidationConfig struct {
	MinPathWeight         float64 `toml:"min_path_weight"`
	ShortcutRate          float64 `toml:"shortcut_rate"`
	MaxFanout             int     `toml:"max_fanout"`
	MergeSimilarity       float64 `toml:"merge_similarity"`
	DemoteBelow           float64 `toml:"demote_below"`
	DemoteGraceHours      float64 `toml:"demote_grace_hours"`
	SuperhighwayThreshold float64 `toml:"superhighway_threshold"`
}

// TokenConfig estimates what a result would have cost the agent to
// rediscover. 1 token ≈ 4 chars.
type TokenConfig struct {
	File          int `toml:"file"` // when no size hint is known
	Tool          int `toml:"tool"`
	Error         int `toml:"error"`
	Semantic      int `toml:"semantic"`
	CharsPerToken int `toml:"chars_per_token"`
	MaxFile       int `toml:"max_file"`
}

type ServerConfig struct {
	Bind               string   `toml:"bind"`
	Port               int      `toml:"port"`
	MaintenanceMinutes int      `toml:"maintenance_minutes"` // decay+consolidate interval for serve; 0 = off
	AllowedOrigins     []string `toml:"allowed_origins"`     // CORS origins for browser clients; empty = CORS off
}

type EmbeddingConfig struct {
	Provider          string  `toml:"provider"` // "none", "ollama", "tfidf"
	OllamaURL         string  `toml:"ollama_url"`
	Model             string  `toml:"model"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "console" or "json"
}

type PrivacyConfig struct {
	ScrubSecrets bool `toml:"scrub_secrets"`
}

// Default returns a Config with the documented defaults.
func Default() Config {
	return Config{
		Store: StoreConfig{
			BusyTimeoutMs:  5000,
			MaxRetries:     5,
			RetryInitialMs: 25,
			RetryMaxMs:     1000,
		},
		Learning: LearningConfig{
			SeedMyelination:  0.1,
			LearningRate:     0.1,
			CoactivationRate: 0.1,
			FixRate:          0.5,
			WindowSize:       5,
			WindowSeconds:    30 * 60,
			ContextCap:       5,
			MaxContextChars:  200,
			Directed:         false,
		},
		Recall: RecallConfig{
			MinQueryLen:         3,
			MaxHops:             2,
			HopDecay:            0.5,
			ConfidenceFloor:     0.15,
			SimilarityThreshold: 0.75,
			MaxSeeds:            50,
			MaxNeighbors:        20,
			MaxVectorScan:       5000,
			MyelinationBias:     0.5,
			MyelinationBlend:    0.2,
			DefaultLimit:        10,
			DefaultTokenBudget:  0,
			ResultOverhead:      20,
		},
		Decay: DecayConfig{
			SynapseHalfLifeHours:     7 * 24,
			MyelinationHalfLifeHours: 30 * 24,
			PruneEpsilon:             0.01,
			OrphanGraceHours:         14 * 24,
		},
		Consolidation: ConsolidationConfig{
			MinPathWeight:         0.5,
			ShortcutRate:          0.5,
			MaxFanout:             32,
			MergeSimilarity:       0.97,
			DemoteBelow:           0.12,
			DemoteGraceHours:      14 * 24,
			SuperhighwayThreshold: 0.8,
		},
		Tokens: TokenConfig{
			File:          1500,
			Tool:          150,
			Error:         300,
			Semantic:      200,
			CharsPerToken: 4,
			MaxFile:       25000,
		},
		Server: ServerConfig{
			Bind:               "127.0.0.1",
			Port:               37778,
			MaintenanceMinutes: 60,
			AllowedOrigins:     []string{"http://localhost:*", "http://127.0.0.1:*"},
		},
		Embedding: EmbeddingConfig{
			Provider:          "none",
			OllamaURL:         "http://localhost:11434",
			Model:             "nomic-embed-text",
			RequestsPerSecond: 10,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
		Privacy: PrivacyConfig{
			ScrubSecrets: true,
		},
	}
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// DefaultDir returns ~/.hebbian.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".hebbian"), nil
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	unit := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be in [0,1], got %v", name, v)
		}
		return nil
	}
	checks := []error{
		unit("learning.seed_myelination", c.Learning.SeedMyelination),
		unit("learning.learning_rate", c.Learning.LearningRate),
		unit("learning.coactivation_rate", c.Learning.CoactivationRate),
		unit("learning.fix_rate", c.Learning.FixRate),
		unit("recall.hop_decay", c.Recall.HopDecay),
		unit("recall.confidence_floor", c.Recall.ConfidenceFloor),
		unit("recall.similarity_threshold", c.Recall.SimilarityThreshold),
		unit("recall.myelination_bias", c.Recall.MyelinationBias),
		unit("recall.myelination_blend", c.Recall.MyelinationBlend),
		unit("decay.prune_epsilon", c.Decay.PruneEpsilon),
		unit("consolidation.min_path_weight", c.Consolidation.MinPathWeight),
		unit("consolidation.shortcut_rate", c.Consolidation.ShortcutRate),
		unit("consolidation.merge_similarity", c.Consolidation.MergeSimilarity),
		unit("consolidation.demote_below", c.Consolidation.DemoteBelow),
		unit("consolidation.superhighway_threshold", c.Consolidation.SuperhighwayThreshold),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	if c.Learning.LearningRate == 0 || c.Learning.LearningRate == 1 {
		return fmt.Errorf("learning.learning_rate must be strictly between 0 and 1")
	}
	if c.Learning.WindowSize < 1 {
		return fmt.Errorf("learning.window_size must be >= 1")
	}
	if c.Learning.ContextCap < 0 {
		return fmt.Errorf("learning.context_cap must be >= 0")
	}
	if c.Recall.MaxHops < 0 {
		return fmt.Errorf("recall.max_hops must be >= 0")
	}
	if c.Recall.MaxSeeds < 1 || c.Recall.MaxNeighbors < 1 || c.Recall.MaxVectorScan < 1 || c.Recall.DefaultLimit < 1 {
		return fmt.Errorf("recall.max_seeds, max_neighbors, max_vector_scan and default_limit must be >= 1")
	}
	if c.Decay.SynapseHalfLifeHours <= 0 || c.Decay.MyelinationHalfLifeHours <= 0 {
		return fmt.Errorf("decay half-lives must be positive")
	}
	if c.Tokens.CharsPerToken < 1 {
		return fmt.Errorf("tokens.chars_per_token must be >= 1")
	}
	if c.Store.MaxRetries < 1 {
		return fmt.Errorf("store.max_retries must be >= 1")
	}
	switch c.Embedding.Provider {
	case "none", "ollama", "tfidf":
	default:
		return fmt.Errorf("unknown embedding provider %q", c.Embedding.Provider)
	}
	return nil
}
