// Package config loads and validates the YAML configuration surface:
// adapters, deliberation defaults, decision-graph settings, and the
// per-adapter model allowlist.
package config

import (
	"time"

	"dev.aicounsel.server/internal/aierrors"
)

// AdapterType discriminates the adapter config union.
type AdapterType string

const (
	AdapterTypeCLI  AdapterType = "cli"
	AdapterTypeHTTP AdapterType = "http"
)

// HTTPShape mirrors adapter.Shape without importing the adapter
// package, keeping config a dependency-free leaf.
type HTTPShape string

const (
	HTTPShapeGenerate        HTTPShape = "generate"
	HTTPShapeOpenAICompat    HTTPShape = "openai_compat_local"
	HTTPShapeOpenAICompatRem HTTPShape = "openai_compat_hosted"
)

// AdapterConfig is one entry under the top-level `adapters` map.
type AdapterConfig struct {
	Type AdapterType `yaml:"type"`

	// CLI fields.
	Command            string   `yaml:"command"`
	Args               []string `yaml:"args"`
	ProjectContextFlag string   `yaml:"project_context_flag"`
	PermissionEscalation bool   `yaml:"permission_escalation"`
	PermissionFlagTemplate string `yaml:"permission_flag_template"`
	RefusalPhrase      string   `yaml:"refusal_phrase"`
	ModelSearchDirs    []string `yaml:"model_search_dirs"`

	// HTTP fields.
	URL    string    `yaml:"url"`
	Shape  HTTPShape `yaml:"shape"`
	APIKey string    `yaml:"api_key"`

	TimeoutSeconds  int `yaml:"timeout"`
	MaxPromptLength int `yaml:"max_prompt_length"`
	MaxRetries      int `yaml:"max_retries"`
}

// Defaults holds the top-level `defaults` block.
type Defaults struct {
	Mode            string `yaml:"mode"`
	Rounds          int    `yaml:"rounds"`
	MaxRounds       int    `yaml:"max_rounds"`
	TimeoutPerRound int    `yaml:"timeout_per_round"`
}

// ConvergenceConfig holds §4.8's configurable thresholds.
type ConvergenceConfig struct {
	MinRoundsBeforeCheck        int     `yaml:"min_rounds_before_check"`
	SemanticSimilarityThreshold float64 `yaml:"semantic_similarity_threshold"`
	DivergenceThreshold         float64 `yaml:"divergence_threshold"`
	ConsecutiveStableRounds     int     `yaml:"consecutive_stable_rounds"`
	StanceStabilityThreshold    float64 `yaml:"stance_stability_threshold"`
	ResponseLengthDropThreshold float64 `yaml:"response_length_drop_threshold"`
	ImpasseConsecutiveRounds    int     `yaml:"impasse_consecutive_rounds"`
}

// EarlyStoppingConfig holds §4.10's early-stopping policy knobs.
type EarlyStoppingConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Threshold float64 `yaml:"threshold"`
}

// ToolSecurityConfig holds the ToolExecutor's closed-set/path/size policy.
type ToolSecurityConfig struct {
	ExcludedPaths   []string `yaml:"excluded_paths"`
	MaxFileSizeKB   int      `yaml:"max_file_size_kb"`
}

// SummarizerConfig names the adapter+model invoked once at the end of
// a deliberation to produce the structured Summary. Left unset, the
// engine returns a placeholder summary rather than failing.
type SummarizerConfig struct {
	AdapterName string `yaml:"adapter_name"`
	ModelID     string `yaml:"model_id"`
}

// DeliberationConfig holds the top-level `deliberation` block.
type DeliberationConfig struct {
	ConvergenceDetection ConvergenceConfig   `yaml:"convergence_detection"`
	EarlyStopping        EarlyStoppingConfig `yaml:"early_stopping"`
	ToolSecurity         ToolSecurityConfig  `yaml:"tool_security"`
	Summarizer           SummarizerConfig    `yaml:"summarizer"`
}

// TierBoundaries partitions retrieved decisions for context formatting.
type TierBoundaries struct {
	Strong   float64 `yaml:"strong"`
	Moderate float64 `yaml:"moderate"`
}

// AdaptiveKConfig tunes the retriever's result-count heuristic: how
// many past decisions to surface, bucketed by decision-graph size.
type AdaptiveKConfig struct {
	SmallDBMax    int `yaml:"small_db_max"`
	MediumDBMax   int `yaml:"medium_db_max"`
	SmallResults  int `yaml:"small_results"`
	MediumResults int `yaml:"medium_results"`
	LargeResults  int `yaml:"large_results"`
}

// CacheConfig holds the L1/L2 capacity and TTL knobs.
type CacheConfig struct {
	L1Capacity int `yaml:"l1_capacity"`
	L2Capacity int `yaml:"l2_capacity"`
	L1TTLSeconds int `yaml:"l1_ttl_seconds"`
}

// DecisionGraphConfig holds the top-level `decision_graph` block.
type DecisionGraphConfig struct {
	Enabled              bool            `yaml:"enabled"`
	DBPath               string          `yaml:"db_path"`
	SimilarityThreshold  float64         `yaml:"similarity_threshold"` // deprecated, see §9
	TierBoundaries       TierBoundaries  `yaml:"tier_boundaries"`
	MaxContextDecisions  int             `yaml:"max_context_decisions"`
	ContextTokenBudget   int             `yaml:"context_token_budget"`
	QueryWindow          int             `yaml:"query_window"`
	AdaptiveK            AdaptiveKConfig `yaml:"adaptive_k"`
	Cache                CacheConfig     `yaml:"cache"`
	EdgeSimilarityThreshold float64      `yaml:"edge_similarity_threshold"`
}

// ModelEntry is one row of a per-adapter model allowlist.
type ModelEntry struct {
	ID      string `yaml:"id"`
	Label   string `yaml:"label"`
	Tier    string `yaml:"tier"`
	Default bool   `yaml:"default"`
	Note    string `yaml:"note"`
}

// Config is the root of the YAML configuration surface.
type Config struct {
	Adapters       map[string]AdapterConfig `yaml:"adapters"`
	Defaults       Defaults                 `yaml:"defaults"`
	Deliberation   DeliberationConfig       `yaml:"deliberation"`
	DecisionGraph  DecisionGraphConfig      `yaml:"decision_graph"`
	ModelRegistry  map[string][]ModelEntry  `yaml:"model_registry"`
}

// ApplyDefaults fills zero-valued optional fields with the reference
// configuration's defaults, matching the shape the original loader
// applies after environment substitution.
func (c *Config) ApplyDefaults() {
	if c.Defaults.Mode == "" {
		c.Defaults.Mode = "conference"
	}
	if c.Defaults.Rounds == 0 {
		c.Defaults.Rounds = 2
	}
	if c.Defaults.MaxRounds == 0 {
		c.Defaults.MaxRounds = 5
	}
	if c.Defaults.TimeoutPerRound == 0 {
		c.Defaults.TimeoutPerRound = 120
	}

	cv := &c.Deliberation.ConvergenceDetection
	if cv.MinRoundsBeforeCheck == 0 {
		cv.MinRoundsBeforeCheck = 2
	}
	if cv.SemanticSimilarityThreshold == 0 {
		cv.SemanticSimilarityThreshold = 0.85
	}
	if cv.DivergenceThreshold == 0 {
		cv.DivergenceThreshold = 0.3
	}
	if cv.ConsecutiveStableRounds == 0 {
		cv.ConsecutiveStableRounds = 2
	}
	if cv.ImpasseConsecutiveRounds == 0 {
		cv.ImpasseConsecutiveRounds = 3
	}
	if c.Deliberation.EarlyStopping.Threshold == 0 {
		c.Deliberation.EarlyStopping.Threshold = 0.66
	}
	if c.Deliberation.ToolSecurity.MaxFileSizeKB == 0 {
		c.Deliberation.ToolSecurity.MaxFileSizeKB = 256
	}

	dg := &c.DecisionGraph
	if dg.TierBoundaries.Strong == 0 {
		dg.TierBoundaries.Strong = 0.75
	}
	if dg.TierBoundaries.Moderate == 0 {
		dg.TierBoundaries.Moderate = 0.5
	}
	if dg.MaxContextDecisions == 0 {
		dg.MaxContextDecisions = 5
	}
	if dg.ContextTokenBudget == 0 {
		dg.ContextTokenBudget = 2000
	}
	if dg.QueryWindow == 0 {
		dg.QueryWindow = 1000
	}
	if dg.EdgeSimilarityThreshold == 0 {
		dg.EdgeSimilarityThreshold = 0.5
	}
	if dg.AdaptiveK.SmallDBMax == 0 {
		dg.AdaptiveK.SmallDBMax = 100
	}
	if dg.AdaptiveK.MediumDBMax == 0 {
		dg.AdaptiveK.MediumDBMax = 1000
	}
	if dg.AdaptiveK.SmallResults == 0 {
		dg.AdaptiveK.SmallResults = 5
	}
	if dg.AdaptiveK.MediumResults == 0 {
		dg.AdaptiveK.MediumResults = 3
	}
	if dg.AdaptiveK.LargeResults == 0 {
		dg.AdaptiveK.LargeResults = 2
	}
	if dg.Cache.L1Capacity == 0 {
		dg.Cache.L1Capacity = 256
	}
	if dg.Cache.L2Capacity == 0 {
		dg.Cache.L2Capacity = 2048
	}
	if dg.Cache.L1TTLSeconds == 0 {
		dg.Cache.L1TTLSeconds = 300
	}

	for name, a := range c.Adapters {
		if a.TimeoutSeconds == 0 {
			a.TimeoutSeconds = 60
		}
		if a.MaxRetries == 0 {
			a.MaxRetries = 3
		}
		c.Adapters[name] = a
	}
}

// L1TTL returns the L1 cache TTL as a time.Duration.
func (c *Config) L1TTL() time.Duration {
	return time.Duration(c.DecisionGraph.Cache.L1TTLSeconds) * time.Second
}

// Validate rejects a configuration that cannot be safely used: unknown
// adapter types, HTTP adapters missing a URL, CLI adapters missing a
// command, and rounds/max_rounds out of order.
func (c *Config) Validate() error {
	if len(c.Adapters) == 0 {
		return aierrors.NewValidationError("adapters", "at least one adapter must be configured")
	}
	for name, a := range c.Adapters {
		switch a.Type {
		case AdapterTypeCLI:
			if a.Command == "" {
				return aierrors.NewValidationError("adapters."+name+".command", "cli adapter requires a command")
			}
		case AdapterTypeHTTP:
			if a.URL == "" {
				return aierrors.NewValidationError("adapters."+name+".url", "http adapter requires a url")
			}
		default:
			return aierrors.NewValidationError("adapters."+name+".type", "must be \"cli\" or \"http\"")
		}
	}
	if c.Defaults.Rounds > c.Defaults.MaxRounds {
		return aierrors.NewValidationError("defaults.rounds", "rounds cannot exceed max_rounds")
	}
	return nil
}
