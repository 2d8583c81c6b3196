package models

// Dimension is one axis of query quality.
type Dimension string

const (
	DimensionClarity       Dimension = "clarity"
	DimensionRelevance     Dimension = "relevance"
	DimensionCompleteness  Dimension = "completeness"
	DimensionActionability Dimension = "actionability"
	DimensionAccuracy      Dimension = "accuracy"
	DimensionSpecificity   Dimension = "specificity"
	DimensionComplexity    Dimension = "complexity"
)

// Dimensions lists the seven quality dimensions in reporting order.
var Dimensions = []Dimension{
	DimensionClarity,
	DimensionRelevance,
	DimensionCompleteness,
	DimensionActionability,
	DimensionAccuracy,
	DimensionSpecificity,
	DimensionComplexity,
}

// Grade is the letter grade derived from an overall quality score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// GradeFor maps an overall score to a grade: A>=0.9, B>=0.8, C>=0.7, D>=0.6, else F.
// It is the only function that assigns grades.
func GradeFor(score float64) Grade {
	switch {
	case score >= 0.9:
		return GradeA
	case score >= 0.8:
		return GradeB
	case score >= 0.7:
		return GradeC
	case score >= 0.6:
		return GradeD
	default:
		return GradeF
	}
}

// DimensionScore is the score and explanation for one dimension.
type DimensionScore struct {
	Dimension Dimension `json:"dimension"`
	Score     float64   `json:"score"`
	Reasoning string    `json:"reasoning"`
}

// QualityAssessment is the multi-dimensional quality evaluation of a query.
// Grade is always GradeFor(OverallScore).
type QualityAssessment struct {
	OverallScore           float64          `json:"overall_score"`
	Grade                  Grade            `json:"grade"`
	DimensionScores        []DimensionScore `json:"dimension_scores"`
	Strengths              []Dimension      `json:"strengths,omitempty"`
	ImprovementSuggestions []string         `json:"improvement_suggestions,omitempty"`
	Confidence             float64          `json:"confidence"`
	QuestionType           QuestionType     `json:"question_type"`
	Domain                 BusinessDomain   `json:"domain"`
	Degraded               bool             `json:"degraded,omitempty"`
}

// NewQualityAssessment builds an assessment with the grade derived from overall.
func NewQualityAssessment(overall float64, dims []DimensionScore) QualityAssessment {
	overall = Clamp01(overall)
	return QualityAssessment{
		OverallScore:    overall,
		Grade:           GradeFor(overall),
		DimensionScores: dims,
	}
}

// Score returns the score of dimension d, or 0 when absent.
func (a QualityAssessment) Score(d Dimension) float64 {
	for _, ds := range a.DimensionScores {
		if ds.Dimension == d {
			return ds.Score
		}
	}
	return 0
}

// Clamp01 clamps v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// FallbackAssessment is the degraded result used when quality scoring fails or times out:
// every dimension scores 0 with reason as its reasoning.
func FallbackAssessment(qtype QuestionType, domain BusinessDomain, reason string) QualityAssessment {
	if qtype == "" {
		qtype = QuestionUnknown
	}
	dims := make([]DimensionScore, 0, len(Dimensions))
	for _, d := range Dimensions {
		dims = append(dims, DimensionScore{Dimension: d, Reasoning: reason})
	}
	a := NewQualityAssessment(0, dims)
	a.QuestionType = qtype
	a.Domain = domain
	a.Degraded = true
	return a
}
