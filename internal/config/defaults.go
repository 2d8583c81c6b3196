package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 4 << 20
	}

	c := &cfg.Classifier
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = 0.6
	}
	if c.PrimaryWeight == 0 {
		c.PrimaryWeight = 1.0
	}
	if c.SecondaryWeight == 0 {
		c.SecondaryWeight = 0.7
	}
	if c.ContextualWeight == 0 {
		c.ContextualWeight = 0.5
	}
	if c.KeywordBonusPerHit == 0 {
		c.KeywordBonusPerHit = 0.1
	}
	if c.MaxKeywordBonus == 0 {
		c.MaxKeywordBonus = 0.3
	}
	if c.ContinuityBonus == 0 {
		c.ContinuityBonus = 0.2
	}
	if c.LengthNormWords == 0 {
		c.LengthNormWords = 12
	}
	if c.MaxAlternatives == 0 {
		c.MaxAlternatives = 3
	}
	if c.AlternativeRatio == 0 {
		c.AlternativeRatio = 0.8
	}

	e := &cfg.Expansion
	if e.DomainThreshold == 0 {
		e.DomainThreshold = 0.1
	}
	if e.MaxDomains == 0 {
		e.MaxDomains = 5
	}
	if e.MaxExpandedQueries == 0 {
		e.MaxExpandedQueries = 5
	}
	if e.MaxInsights == 0 {
		e.MaxInsights = 3
	}
	if e.MaxSuggestedDomains == 0 {
		e.MaxSuggestedDomains = 5
	}
	if e.PreferredBoost == 0 {
		e.PreferredBoost = 1.0
	}
	if e.PriorBoost == 0 {
		e.PriorBoost = 0.5
	}

	q := &cfg.Quality
	if q.StrengthThreshold == 0 {
		q.StrengthThreshold = 0.7
	}
	if q.WeaknessThreshold == 0 {
		q.WeaknessThreshold = 0.6
	}
	if q.MaxStrengths == 0 {
		q.MaxStrengths = 3
	}
	if q.MaxSuggestions == 0 {
		q.MaxSuggestions = 5
	}
	if q.SpellMaxDistance == 0 {
		q.SpellMaxDistance = 2
	}
	if q.SpellMinWordLength == 0 {
		q.SpellMinWordLength = 4
	}

	if cfg.Session.MaxTurns == 0 {
		cfg.Session.MaxTurns = 20
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = 5 * time.Minute
	}

	if cfg.Cache.Strategy == "" {
		cfg.Cache.Strategy = "hybrid"
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 10000
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = time.Hour
	}
	if cfg.Cache.MaxMemoryMB == 0 {
		cfg.Cache.MaxMemoryMB = 256
	}
	if cfg.Cache.SweepInterval == 0 {
		cfg.Cache.SweepInterval = time.Minute
	}

	if cfg.Pool.MinConnections == 0 {
		cfg.Pool.MinConnections = 2
	}
	if cfg.Pool.MaxConnections == 0 {
		cfg.Pool.MaxConnections = 20
	}
	if cfg.Pool.AcquireTimeout == 0 {
		cfg.Pool.AcquireTimeout = 50 * time.Millisecond
	}
	if cfg.Pool.IdleTimeout == 0 {
		cfg.Pool.IdleTimeout = 5 * time.Minute
	}
	if cfg.Pool.CleanupInterval == 0 {
		cfg.Pool.CleanupInterval = time.Minute
	}

	b := &cfg.Batch
	if b.MaxBatchSize == 0 {
		b.MaxBatchSize = 1000
	}
	if b.QueueThreshold == 0 {
		b.QueueThreshold = 50
	}
	if b.MaxConcurrent == 0 {
		b.MaxConcurrent = 50
	}
	if b.OptimalBatchSize == 0 {
		b.OptimalBatchSize = 100
	}
	if b.QueueCapacity == 0 {
		b.QueueCapacity = 100
	}
	if b.Workers == 0 {
		b.Workers = 8
	}
	if b.Timeout == 0 {
		b.Timeout = 25 * time.Second
	}

	m := &cfg.Monitoring
	if m.SampleInterval == 0 {
		m.SampleInterval = time.Second
	}
	if m.HistorySize == 0 {
		m.HistorySize = 300
	}
	if m.AdaptiveInterval == 0 {
		m.AdaptiveInterval = 10 * time.Second
	}
	th := &m.Thresholds
	if th.MaxAvgLatency == 0 {
		th.MaxAvgLatency = time.Second
	}
	if th.MinCacheHitRate == 0 {
		th.MinCacheHitRate = 0.7
	}
	if th.MaxQueueDepth == 0 {
		th.MaxQueueDepth = 500
	}
	if th.MaxMemoryRatio == 0 {
		th.MaxMemoryRatio = 0.85
	}
	if th.MaxCPURatio == 0 {
		th.MaxCPURatio = 0.9
	}

	s := &cfg.Stages
	if s.ClassifierTimeout == 0 {
		s.ClassifierTimeout = 500 * time.Millisecond
	}
	if s.ExpansionTimeout == 0 {
		s.ExpansionTimeout = 500 * time.Millisecond
	}
	if s.QualityTimeout == 0 {
		s.QualityTimeout = 500 * time.Millisecond
	}
	if s.ConversationalTimeout == 0 {
		s.ConversationalTimeout = 5 * time.Second
	}
	if s.EnrichmentTimeout == 0 {
		s.EnrichmentTimeout = 300 * time.Millisecond
	}

	if cfg.Collaborators.KnowledgeGraph.Limit == 0 {
		cfg.Collaborators.KnowledgeGraph.Limit = 10
	}
	if cfg.Collaborators.KnowledgeGraph.Database == "" {
		cfg.Collaborators.KnowledgeGraph.Database = "neo4j"
	}
	if cfg.Collaborators.LLM.Model == "" {
		cfg.Collaborators.LLM.Model = "gpt-4o-mini"
	}
	if cfg.Collaborators.LLM.MaxTokens == 0 {
		cfg.Collaborators.LLM.MaxTokens = 256
	}
}
