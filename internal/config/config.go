// Package config provides configuration loading and structs for the shitsumon query pipeline.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the pipeline and its server.
type Config struct {
	Debug         bool                `yaml:"debug"`
	Server        ServerConfig        `yaml:"server"`
	Classifier    ClassifierConfig    `yaml:"classifier"`
	Expansion     ExpansionConfig     `yaml:"expansion"`
	Quality       QualityConfig       `yaml:"quality"`
	Session       SessionConfig       `yaml:"session"`
	Cache         CacheConfig         `yaml:"cache"`
	Pool          PoolConfig          `yaml:"pool"`
	Batch         BatchConfig         `yaml:"batch"`
	Monitoring    MonitoringConfig    `yaml:"monitoring"`
	Stages        StagesConfig        `yaml:"stages"`
	Collaborators CollaboratorsConfig `yaml:"collaborators"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host" validate:"required"`
	Port           int           `yaml:"port" validate:"min=1,max=65535"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" validate:"min=1024"`
}

// ClassifierConfig holds pattern weights and thresholds for question-type classification.
type ClassifierConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" validate:"gt=0,lte=1"`
	PrimaryWeight       float64 `yaml:"primary_weight" validate:"gte=0"`
	SecondaryWeight     float64 `yaml:"secondary_weight" validate:"gte=0"`
	ContextualWeight    float64 `yaml:"contextual_weight" validate:"gte=0"`
	KeywordBonusPerHit  float64 `yaml:"keyword_bonus_per_hit" validate:"gte=0"`
	MaxKeywordBonus     float64 `yaml:"max_keyword_bonus" validate:"gte=0,lte=1"`
	ContinuityBonus     float64 `yaml:"continuity_bonus" validate:"gte=0,lte=1"`
	// LengthNormWords is the word count above which pattern sums are scaled down.
	LengthNormWords  int     `yaml:"length_norm_words" validate:"min=1"`
	MaxAlternatives  int     `yaml:"max_alternatives" validate:"min=0,max=5"`
	AlternativeRatio float64 `yaml:"alternative_ratio" validate:"gt=0,lte=1"`
}

// ExpansionConfig holds domain identification and expansion limits.
type ExpansionConfig struct {
	DomainThreshold     float64 `yaml:"domain_threshold" validate:"gte=0"`
	MaxDomains          int     `yaml:"max_domains" validate:"min=1,max=19"`
	MaxExpandedQueries  int     `yaml:"max_expanded_queries" validate:"min=1"`
	MaxInsights         int     `yaml:"max_insights" validate:"min=0"`
	MaxSuggestedDomains int     `yaml:"max_suggested_domains" validate:"min=0"`
	PreferredBoost      float64 `yaml:"preferred_boost" validate:"gte=0"`
	PriorBoost          float64 `yaml:"prior_boost" validate:"gte=0"`
	// Relations add to or override edges of the built-in domain relationship graph.
	Relations []RelationConfig `yaml:"relations" validate:"dive"`
}

// RelationConfig is one weighted edge between two business domains.
type RelationConfig struct {
	From     string  `yaml:"from" validate:"required"`
	To       string  `yaml:"to" validate:"required"`
	Strength float64 `yaml:"strength" validate:"gte=0,lte=1"`
	Insight  string  `yaml:"insight"`
}

// QualityConfig holds thresholds for strengths and improvement suggestions.
type QualityConfig struct {
	StrengthThreshold float64 `yaml:"strength_threshold" validate:"gt=0,lte=1"`
	WeaknessThreshold float64 `yaml:"weakness_threshold" validate:"gt=0,lte=1"`
	MaxStrengths      int     `yaml:"max_strengths" validate:"min=0"`
	MaxSuggestions    int     `yaml:"max_suggestions" validate:"min=0"`
	SpellCheck        *bool   `yaml:"spell_check"`
	// SpellMaxDistance is the edit distance allowed for words of six or more runes.
	SpellMaxDistance   int `yaml:"spell_max_distance" validate:"min=0,max=3"`
	SpellMinWordLength int `yaml:"spell_min_word_length" validate:"min=0"`
}

// SpellCheckOrDefault returns whether spelling hints feed the clarity score; defaults to true.
func (q *QualityConfig) SpellCheckOrDefault() bool {
	if q.SpellCheck != nil {
		return *q.SpellCheck
	}
	return true
}

// SessionConfig holds conversation memory settings.
type SessionConfig struct {
	Enabled       *bool         `yaml:"enabled"`
	MaxTurns      int           `yaml:"max_turns" validate:"min=1"`
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// EnabledOrDefault returns whether conversational memory is on; defaults to true.
func (s *SessionConfig) EnabledOrDefault() bool {
	if s.Enabled != nil {
		return *s.Enabled
	}
	return true
}

// CacheConfig holds adaptive cache settings.
type CacheConfig struct {
	Strategy      string        `yaml:"strategy" validate:"oneof=lru ttl hybrid"`
	MaxEntries    int           `yaml:"max_entries" validate:"min=1"`
	TTL           time.Duration `yaml:"ttl"`
	MaxMemoryMB   int           `yaml:"max_memory_mb" validate:"min=1"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// PoolConfig holds logical connection pool settings.
type PoolConfig struct {
	MinConnections  int           `yaml:"min_connections" validate:"min=0"`
	MaxConnections  int           `yaml:"max_connections" validate:"min=1,gtefield=MinConnections"`
	AcquireTimeout  time.Duration `yaml:"acquire_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// BatchConfig holds batch sizing, queueing and timeout settings.
type BatchConfig struct {
	MaxBatchSize int `yaml:"max_batch_size" validate:"min=1"`
	// QueueThreshold is the batch size at which the worker queue is used instead of direct fan-out.
	QueueThreshold   int           `yaml:"queue_threshold" validate:"min=1"`
	MaxConcurrent    int           `yaml:"max_concurrent" validate:"min=1"`
	OptimalBatchSize int           `yaml:"optimal_batch_size" validate:"min=1"`
	QueueCapacity    int           `yaml:"queue_capacity" validate:"min=1"`
	Workers          int           `yaml:"workers" validate:"min=1"`
	Timeout          time.Duration `yaml:"timeout"`
}

// MonitoringConfig holds monitor sampling and bottleneck thresholds.
type MonitoringConfig struct {
	Enabled        *bool         `yaml:"enabled"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	HistorySize    int           `yaml:"history_size" validate:"min=1"`
	Thresholds     Thresholds    `yaml:"thresholds"`
	Adaptive       bool          `yaml:"adaptive"`
	// AdaptiveInterval is how often adaptive mode reacts to the latest sample.
	AdaptiveInterval time.Duration `yaml:"adaptive_interval"`
}

// EnabledOrDefault returns whether the monitor runs; defaults to true.
func (m *MonitoringConfig) EnabledOrDefault() bool {
	if m.Enabled != nil {
		return *m.Enabled
	}
	return true
}

// Thresholds are the limits that flag a bottleneck when crossed.
type Thresholds struct {
	MaxAvgLatency   time.Duration `yaml:"max_avg_latency"`
	MinCacheHitRate float64       `yaml:"min_cache_hit_rate" validate:"gte=0,lte=1"`
	MaxQueueDepth   int           `yaml:"max_queue_depth" validate:"min=1"`
	// MaxMemoryRatio is relative to the cache memory ceiling.
	MaxMemoryRatio float64 `yaml:"max_memory_ratio" validate:"gt=0"`
	MaxCPURatio    float64 `yaml:"max_cpu_ratio" validate:"gt=0,lte=1"`
	MinThroughput  float64 `yaml:"min_throughput" validate:"gte=0"`
}

// StagesConfig holds per-stage timeouts.
type StagesConfig struct {
	ClassifierTimeout     time.Duration `yaml:"classifier_timeout"`
	ExpansionTimeout      time.Duration `yaml:"expansion_timeout"`
	QualityTimeout        time.Duration `yaml:"quality_timeout"`
	ConversationalTimeout time.Duration `yaml:"conversational_timeout"`
	EnrichmentTimeout     time.Duration `yaml:"enrichment_timeout"`
}

// CollaboratorsConfig configures the optional external collaborators.
type CollaboratorsConfig struct {
	NLP            NLPConfig            `yaml:"nlp"`
	KnowledgeGraph KnowledgeGraphConfig `yaml:"knowledge_graph"`
	LLM            LLMConfig            `yaml:"llm"`
}

// NLPConfig enables local entity extraction.
type NLPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// KnowledgeGraphConfig holds Neo4j connection settings.
type KnowledgeGraphConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URI      string `yaml:"uri" validate:"required_if=Enabled true"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	// Limit caps the number of entities returned per lookup.
	Limit int `yaml:"limit" validate:"min=0"`
}

// LLMConfig holds OpenAI-compatible chat completion settings.
type LLMConfig struct {
	Enabled     bool    `yaml:"enabled"`
	APIKey      string  `yaml:"api_key" validate:"required_if=Enabled true"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens" validate:"min=0"`
	Temperature float32 `yaml:"temperature" validate:"gte=0,lte=2"`
}

// Load reads and parses the config file at path, applies defaults and validates the result.
// ${VAR} references in the file are expanded from the environment before parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a fully defaulted config for library callers.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

var validate = validator.New()

// Validate checks field constraints. Durations must not be negative.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	durations := map[string]time.Duration{
		"session.ttl":                   cfg.Session.TTL,
		"session.sweep_interval":        cfg.Session.SweepInterval,
		"cache.ttl":                     cfg.Cache.TTL,
		"cache.sweep_interval":          cfg.Cache.SweepInterval,
		"pool.acquire_timeout":          cfg.Pool.AcquireTimeout,
		"pool.idle_timeout":             cfg.Pool.IdleTimeout,
		"batch.timeout":                 cfg.Batch.Timeout,
		"monitoring.sample_interval":    cfg.Monitoring.SampleInterval,
		"stages.classifier_timeout":     cfg.Stages.ClassifierTimeout,
		"stages.expansion_timeout":      cfg.Stages.ExpansionTimeout,
		"stages.quality_timeout":        cfg.Stages.QualityTimeout,
		"stages.conversational_timeout": cfg.Stages.ConversationalTimeout,
		"stages.enrichment_timeout":     cfg.Stages.EnrichmentTimeout,
	}
	for name, d := range durations {
		if d < 0 {
			return fmt.Errorf("invalid config: %s must not be negative", name)
		}
	}
	return nil
}
