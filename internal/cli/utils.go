// Package cli provides CLI utilities for Shitsumon.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/shitsumon/internal/models"
	"github.com/hyperjump/shitsumon/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat returns the format named s; anything but "json" is text.
func ParseOutputFormat(s string) OutputFormat {
	if strings.EqualFold(strings.TrimSpace(s), string(OutputJSON)) {
		return OutputJSON
	}
	return OutputText
}

const rule = "─────────────────────────────────────────────────────────\n"

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteResult writes one query finder result to w in the given format.
func WriteResult(w io.Writer, res *models.QueryFinderResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	writeResultText(w, res)
	return nil
}

func writeResultText(w io.Writer, res *models.QueryFinderResult) {
	fmt.Fprint(w, rule)
	fmt.Fprintf(w, "Query: %s\n", res.Query)
	if res.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", res.Error)
		return
	}
	fmt.Fprintf(w, "Mode: %s | Confidence: %.2f | %.1fms\n", res.Mode, res.OverallConfidence, res.ProcessingTimeMS)
	if res.SessionID != "" {
		fmt.Fprintf(w, "Session: %s\n", res.SessionID)
	}
	writeClassificationText(w, res.Classification)
	if res.Expansion != nil {
		fmt.Fprintf(w, "Domains: %s\n", domainList(res.Expansion.PrimaryDomains))
	}
	if res.Quality != nil {
		fmt.Fprintf(w, "Quality: %s (%.2f)\n", res.Quality.Grade, res.Quality.OverallScore)
	}
	if len(res.Entities) > 0 {
		names := make([]string, len(res.Entities))
		for i, e := range res.Entities {
			names[i] = e.Text
		}
		fmt.Fprintf(w, "Entities: %s\n", strings.Join(names, ", "))
	}
	if res.EnhancedQuery != "" && res.EnhancedQuery != res.Query {
		fmt.Fprintf(w, "Enhanced: %s\n", utils.Truncate(res.EnhancedQuery, 200))
	}
	if len(res.SuggestedActions) > 0 {
		fmt.Fprintln(w, "Suggested actions:")
		for _, a := range res.SuggestedActions {
			fmt.Fprintf(w, "  - %s\n", a)
		}
	}
	fmt.Fprintln(w)
}

// WriteBatch writes a batch result to w in the given format.
func WriteBatch(w io.Writer, batch *models.BatchProcessingResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, batch)
	}
	fmt.Fprintf(w, "\nProcessed %d queries in %.0fms (%d ok, %d failed, %.0f%% cached, %.1f q/s, %s)\n",
		batch.Total, batch.DurationMS, batch.Succeeded, batch.Failed, batch.CacheHitRate*100, batch.Throughput, batch.Strategy)
	if batch.TimedOut {
		fmt.Fprintln(w, "Batch timed out; unfinished queries are reported as errors.")
	}
	if len(batch.TypeDistribution) > 0 {
		fmt.Fprintf(w, "Types: %s\n", countList(batch.TypeDistribution))
	}
	if len(batch.GradeDistribution) > 0 {
		fmt.Fprintf(w, "Grades: %s\n", countList(batch.GradeDistribution))
	}
	fmt.Fprintln(w)
	for _, res := range batch.Results {
		writeResultText(w, res)
	}
	return nil
}

// WriteClassification writes a classification result to w in the given format.
func WriteClassification(w io.Writer, res models.ClassificationResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	writeClassificationText(w, res)
	for _, alt := range res.Alternatives {
		fmt.Fprintf(w, "  alternative: %s (%.2f)\n", alt.Type, alt.Score)
	}
	if res.Reasoning != "" {
		fmt.Fprintf(w, "Reasoning: %s\n", res.Reasoning)
	}
	return nil
}

func writeClassificationText(w io.Writer, res models.ClassificationResult) {
	fmt.Fprintf(w, "Type: %s (%.2f, %d patterns)\n", res.Type, res.Confidence, res.MatchedPatternCount)
}

// WriteExpansion writes an expansion result to w in the given format.
func WriteExpansion(w io.Writer, res models.ExpansionResult, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Domains: %s (confidence %.2f)\n", domainList(res.PrimaryDomains), res.Confidence)
	for _, q := range res.ExpandedQueries {
		fmt.Fprintf(w, "  [%s %.2f] %s\n", q.ExpansionType, q.RelevanceScore, q.ExpandedText)
	}
	for _, s := range res.SuggestedDomains {
		fmt.Fprintf(w, "  related: %s (%.2f)\n", s.Domain, s.Strength)
	}
	for _, insight := range res.CrossDomainInsights {
		fmt.Fprintf(w, "  insight: %s\n", insight)
	}
	return nil
}

// WriteAssessment writes a quality assessment to w in the given format.
func WriteAssessment(w io.Writer, res models.QualityAssessment, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	fmt.Fprintf(w, "Grade: %s (%.2f, confidence %.2f)\n", res.Grade, res.OverallScore, res.Confidence)
	for _, d := range res.DimensionScores {
		fmt.Fprintf(w, "  %-13s %.2f  %s\n", d.Dimension, d.Score, d.Reasoning)
	}
	for _, s := range res.ImprovementSuggestions {
		fmt.Fprintf(w, "  suggestion: %s\n", s)
	}
	return nil
}

func domainList(ds []models.BusinessDomain) string {
	names := make([]string, len(ds))
	for i, d := range ds {
		names[i] = d.DisplayName()
	}
	return strings.Join(names, ", ")
}

// countList renders a distribution as "a=2, b=1", largest first.
func countList[K ~string](m map[K]int) string {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if m[keys[i]] != m[keys[j]] {
			return m[keys[i]] > m[keys[j]]
		}
		return keys[i] < keys[j]
	})
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, ", ")
}
