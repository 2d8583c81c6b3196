package finder

import (
	"strings"

	"github.com/hyperjump/shitsumon/internal/models"
)

// maxSuggestedActions caps QueryFinderResult.SuggestedActions.
const maxSuggestedActions = 6

// maxQualityActions is how many quality suggestions are carried over as actions.
const maxQualityActions = 2

var typeActions = map[models.QuestionType][]string{
	models.QuestionFactual: {
		"Verify the answer against a primary source",
	},
	models.QuestionAnalytical: {
		"Break the metric down by segment to find the drivers",
		"Look at the trend over several periods",
	},
	models.QuestionComparative: {
		"Build a side-by-side comparison table",
		"Agree on the criteria before comparing",
	},
	models.QuestionProcedural: {
		"Turn the answer into a step-by-step checklist",
	},
	models.QuestionCreative: {
		"Generate several alternatives before picking one",
	},
	models.QuestionDiagnostic: {
		"Check what changed when the problem started",
		"Rule out data quality issues first",
	},
	models.QuestionUnknown: {
		"Rephrase the question to state what you want to find out",
	},
}

// suggestedActions combines type-specific actions, the top quality suggestions and
// engine output, de-duplicated case-insensitively.
func suggestedActions(res *Result, engine []string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(a string) {
		a = strings.TrimSpace(a)
		key := strings.ToLower(a)
		if a == "" || seen[key] || len(out) >= maxSuggestedActions {
			return
		}
		seen[key] = true
		out = append(out, a)
	}

	for _, a := range typeActions[res.Classification.Type] {
		add(a)
	}
	if res.Quality != nil {
		for i, s := range res.Quality.ImprovementSuggestions {
			if i == maxQualityActions {
				break
			}
			add(s)
		}
	}
	for _, a := range engine {
		add(a)
	}
	return out
}
