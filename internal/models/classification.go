package models

// ScoredType pairs a question type with its classification score.
type ScoredType struct {
	Type  QuestionType `json:"type"`
	Score float64      `json:"score"`
}

// ClassificationResult is the outcome of classifying a single query.
type ClassificationResult struct {
	Type                QuestionType `json:"type"`
	Confidence          float64      `json:"confidence"`
	MatchedPatternCount int          `json:"matched_pattern_count"`
	// MatchedPatterns holds the pattern sources that fired for the winning type.
	MatchedPatterns []string     `json:"matched_patterns,omitempty"`
	Alternatives    []ScoredType `json:"alternatives,omitempty"`
	Reasoning       string       `json:"reasoning,omitempty"`
	// Degraded is set when the result is a default produced after an internal failure.
	Degraded bool `json:"degraded,omitempty"`
}

// UnknownClassification returns the default result for empty input or failures.
func UnknownClassification(reason string) ClassificationResult {
	return ClassificationResult{Type: QuestionUnknown, Reasoning: reason}
}
