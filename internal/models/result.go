package models

import "time"

// Stage names used in ComponentsUsed, StageTimings and ConfidenceScores.
const (
	StageClassifier     = "classifier"
	StageExpansion      = "expansion"
	StageQuality        = "quality"
	StageConversational = "conversational_engine"
	StageEntities       = "entity_extraction"
	StageKnowledgeGraph = "knowledge_graph"
)

// QueryFinderResult is the externally visible result of processing one query.
// Expansion and Quality are nil when the mode did not run those stages.
type QueryFinderResult struct {
	Query             string               `json:"query"`
	Mode              Mode                 `json:"mode"`
	SessionID         string               `json:"session_id,omitempty"`
	Classification    ClassificationResult `json:"classification"`
	Expansion         *ExpansionResult     `json:"expansion,omitempty"`
	Quality           *QualityAssessment   `json:"quality,omitempty"`
	Entities          []Entity             `json:"entities,omitempty"`
	SuggestedActions  []string             `json:"suggested_actions,omitempty"`
	EnhancedQuery     string               `json:"enhanced_query"`
	ComponentsUsed    []string             `json:"components_used"`
	StageTimings      map[string]float64   `json:"stage_timings_ms"`
	ConfidenceScores  map[string]float64   `json:"confidence_scores"`
	OverallConfidence float64              `json:"overall_confidence"`
	ProcessingTimeMS  float64              `json:"processing_time_ms"`
	ProcessedAt       time.Time            `json:"processed_at"`
	// Error is set on batch items that could not be processed (failure or batch timeout).
	Error string `json:"error,omitempty"`
}

// Size estimates the in-memory footprint of the result in bytes, for cache accounting.
func (r *QueryFinderResult) Size() int {
	if r == nil {
		return 0
	}
	n := 512 + len(r.Query) + len(r.EnhancedQuery) + len(r.Classification.Reasoning)
	for _, a := range r.SuggestedActions {
		n += len(a) + 16
	}
	if r.Expansion != nil {
		for _, eq := range r.Expansion.ExpandedQueries {
			n += 96 + len(eq.OriginalQuery) + len(eq.ExpandedText)
			for _, t := range eq.AddedTerms {
				n += len(t) + 16
			}
		}
		for _, s := range r.Expansion.CrossDomainInsights {
			n += len(s) + 16
		}
	}
	if r.Quality != nil {
		for _, d := range r.Quality.DimensionScores {
			n += 48 + len(d.Reasoning)
		}
		for _, s := range r.Quality.ImprovementSuggestions {
			n += len(s) + 16
		}
	}
	n += 64 * (len(r.StageTimings) + len(r.ConfidenceScores) + len(r.Entities))
	return n
}

// ErrorResult is the degraded per-item result used in batches.
func ErrorResult(query string, mode Mode, msg string) *QueryFinderResult {
	return &QueryFinderResult{
		Query:            query,
		Mode:             mode,
		Classification:   UnknownClassification(msg),
		EnhancedQuery:    query,
		ComponentsUsed:   []string{},
		StageTimings:     map[string]float64{},
		ConfidenceScores: map[string]float64{},
		ProcessedAt:      time.Now(),
		Error:            msg,
	}
}

// BatchProcessingResult aggregates the results of a batch.
// Results are in input order.
type BatchProcessingResult struct {
	BatchID             string                 `json:"batch_id"`
	Mode                Mode                   `json:"mode"`
	Results             []*QueryFinderResult   `json:"results"`
	Total               int                    `json:"total"`
	Succeeded           int                    `json:"succeeded"`
	Failed              int                    `json:"failed"`
	CacheHits           int                    `json:"cache_hits"`
	CacheHitRate        float64                `json:"cache_hit_rate"`
	DurationMS          float64                `json:"duration_ms"`
	Throughput          float64                `json:"throughput_qps"`
	GradeDistribution   map[Grade]int          `json:"grade_distribution"`
	TypeDistribution    map[QuestionType]int   `json:"type_distribution"`
	DomainDistribution  map[BusinessDomain]int `json:"domain_distribution"`
	AverageStageLatency map[string]float64     `json:"average_stage_latency_ms"`
	TimedOut            bool                   `json:"timed_out,omitempty"`
	// Strategy is "semaphore" for direct fan-out or "queue" for the worker queue.
	Strategy string `json:"strategy,omitempty"`
}
