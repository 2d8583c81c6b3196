package classifier

import (
	"regexp"

	"github.com/hyperjump/shitsumon/internal/models"
)

// Group is the strength tier of a pattern.
type Group int

const (
	// GroupPrimary patterns are strong, near-unambiguous signals.
	GroupPrimary Group = iota
	// GroupSecondary patterns are supporting signals.
	GroupSecondary
	// GroupContextual patterns are weak signals that only tip close calls.
	GroupContextual
)

// String returns a string representation of the group.
func (g Group) String() string {
	switch g {
	case GroupPrimary:
		return "primary"
	case GroupSecondary:
		return "secondary"
	case GroupContextual:
		return "contextual"
	default:
		return "unknown"
	}
}

// Pattern is a labelled regular expression in a weight group.
type Pattern struct {
	Group Group
	Label string
	Re    *regexp.Regexp
}

// PatternSet holds the patterns and semantic keywords for one question type.
type PatternSet struct {
	Patterns []Pattern
	// Keywords are matched against analyzer terms, so they must not be stop words.
	Keywords []string
}

func p(g Group, label, expr string) Pattern {
	return Pattern{Group: g, Label: label, Re: regexp.MustCompile(`(?i)` + expr)}
}

// DefaultPatterns returns the built-in pattern table. Each call returns a fresh copy.
func DefaultPatterns() map[models.QuestionType]PatternSet {
	return map[models.QuestionType]PatternSet{
		models.QuestionFactual: {
			Patterns: []Pattern{
				p(GroupPrimary, "what is", `^\s*what\s+(is|are|was|were)\b`),
				p(GroupPrimary, "who is", `^\s*who\s+(is|are|was|were)\b`),
				p(GroupPrimary, "when did", `^\s*when\s+(did|was|is|were|does)\b`),
				p(GroupPrimary, "where is", `^\s*where\s+(is|are|can|do)\b`),
				p(GroupPrimary, "define", `\bdefin(e|ition\s+of)\b`),
				p(GroupPrimary, "how many", `\bhow\s+(many|much)\b`),
				p(GroupSecondary, "what does", `\bwhat\s+does\b`),
				p(GroupSecondary, "meaning of", `\bmeaning\s+of\b`),
				p(GroupSecondary, "list of", `\blist\s+(of|the|all)\b`),
				p(GroupSecondary, "facts", `\bfacts?\s+(about|on)\b`),
				p(GroupContextual, "statistics", `\bstatistics?\b`),
				p(GroupContextual, "current", `\b(current(ly)?|latest)\b`),
				p(GroupContextual, "data on", `\bdata\s+(on|about)\b`),
			},
			Keywords: []string{"definition", "fact", "facts", "statistic", "statistics", "number", "date", "meaning", "figure", "total", "percentage", "size", "rate"},
		},
		models.QuestionAnalytical: {
			Patterns: []Pattern{
				p(GroupPrimary, "analyze", `\banaly[sz](e|ing)\b`),
				p(GroupPrimary, "analysis", `\banalysis\b`),
				p(GroupPrimary, "why does", `^\s*why\s+(is|are|do|does|did)\b`),
				p(GroupPrimary, "what factors", `\bwhat\s+(are\s+the\s+)?(impacts?|effects?|implications?|factors?|drivers?)\b`),
				p(GroupPrimary, "how does it affect", `\bhow\s+(does|do|did|will)\b.*\b(affect|influence|impact)\b`),
				p(GroupSecondary, "impact", `\bimpacts?\b`),
				p(GroupSecondary, "trends", `\btrends?\b`),
				p(GroupSecondary, "evaluate", `\b(evaluat(e|ion)|assess(ment)?)\b`),
				p(GroupSecondary, "correlation", `\bcorrelat(e|ion|ed)\b`),
				p(GroupSecondary, "drivers", `\b(drivers?|root\s+causes?\s+of\s+growth)\b`),
				p(GroupContextual, "insights", `\binsights?\b`),
				p(GroupContextual, "patterns", `\bpatterns?\b`),
				p(GroupContextual, "forecast", `\b(forecast|projection|outlook)s?\b`),
				p(GroupContextual, "performance", `\bperformance\b`),
			},
			Keywords: []string{"analysis", "impact", "trend", "trends", "factor", "factors", "cause", "effect", "correlation", "insight", "pattern", "performance", "driver", "implication", "roi"},
		},
		models.QuestionComparative: {
			Patterns: []Pattern{
				p(GroupPrimary, "compare", `\bcompar(e|ing)\b`),
				p(GroupPrimary, "comparison", `\bcomparison\b`),
				p(GroupPrimary, "vs", `\bvs\.?(\s|$)`),
				p(GroupPrimary, "versus", `\bversus\b`),
				p(GroupPrimary, "difference between", `\bdifferences?\s+between\b`),
				p(GroupSecondary, "better than", `\b(better|worse|cheaper|faster)\s+than\b`),
				p(GroupSecondary, "which is better", `\bwhich\s+(is|are|one\s+is)\s+(better|best|more|cheaper)\b`),
				p(GroupSecondary, "pros and cons", `\b(pros|advantages)\s+and\s+(cons|disadvantages)\b`),
				p(GroupSecondary, "between x and y", `\bbetween\s+\w+\s+and\s+\w+`),
				p(GroupContextual, "alternatives", `\balternatives?\b`),
				p(GroupContextual, "similar", `\bsimilar(ities)?\b`),
				p(GroupContextual, "benchmark", `\bbenchmark(s|ing)?\b`),
			},
			Keywords: []string{"compare", "comparison", "versus", "difference", "differences", "better", "alternative", "alternatives", "contrast", "tradeoff", "tradeoffs", "pros", "cons", "benchmark"},
		},
		models.QuestionProcedural: {
			Patterns: []Pattern{
				p(GroupPrimary, "how to", `\bhow\s+to\b`),
				p(GroupPrimary, "how do i", `\bhow\s+(do|can|should)\s+(i|we|you)\b`),
				p(GroupPrimary, "steps to", `\bsteps?\s+(to|for)\b`),
				p(GroupPrimary, "guide", `\b(guide|tutorial|walkthrough)\b`),
				p(GroupSecondary, "set up", `\bset\s*-?\s*up\b`),
				p(GroupSecondary, "implement", `\bimplement(ing)?\b`),
				p(GroupSecondary, "create", `\b(create|build|launch)\b`),
				p(GroupSecondary, "install", `\b(install|configure|deploy)\b`),
				p(GroupSecondary, "process for", `\bprocess\s+(of|for|to)\b`),
				p(GroupContextual, "best practices", `\bbest\s+practices?\b`),
				p(GroupContextual, "checklist", `\bchecklist\b`),
				p(GroupContextual, "workflow", `\bworkflows?\b`),
			},
			Keywords: []string{"steps", "step", "guide", "process", "setup", "implement", "install", "configure", "tutorial", "procedure", "workflow", "checklist", "instructions", "onboarding"},
		},
		models.QuestionCreative: {
			Patterns: []Pattern{
				p(GroupPrimary, "brainstorm", `\bbrainstorm(ing)?\b`),
				p(GroupPrimary, "ideas for", `\bideas?\s+(for|to|about|on)\b`),
				p(GroupPrimary, "come up with", `\bcome\s+up\s+with\b`),
				p(GroupPrimary, "write a", `\bwrite\s+(a|an|me|some)\b`),
				p(GroupPrimary, "generate", `\bgenerate\b`),
				p(GroupSecondary, "innovative", `\b(innovative|creative|original|novel)\b`),
				p(GroupSecondary, "slogan", `\b(slogans?|taglines?|headlines?)\b`),
				p(GroupSecondary, "names for", `\bnames?\s+for\b`),
				p(GroupSecondary, "design a", `\bdesign\s+(a|an|the)\b`),
				p(GroupContextual, "imagine", `\b(imagine|envision)\b`),
				p(GroupContextual, "what if", `\bwhat\s+if\b`),
				p(GroupContextual, "concepts", `\b(concepts?|inspiration|themes?)\b`),
			},
			Keywords: []string{"idea", "ideas", "brainstorm", "creative", "innovative", "novel", "unique", "slogan", "tagline", "concept", "inspiration", "story", "campaign"},
		},
		models.QuestionDiagnostic: {
			Patterns: []Pattern{
				p(GroupPrimary, "why is it failing", `\bwhy\s+(is|are|does|do|did)\b.*\b(not|n't|fail\w*|slow\w*|drop\w*|declin\w*|low|fall\w*|down)\b`),
				p(GroupPrimary, "troubleshoot", `\b(troubleshoot\w*|diagnos(e|is|ing)|debug\w*)\b`),
				p(GroupPrimary, "what's wrong", `\bwhat('?s|\s+is)\s+wrong\b`),
				p(GroupPrimary, "fix", `\b(fix|solve|resolve)\b`),
				p(GroupSecondary, "problem", `\b(errors?|issues?|problems?|bugs?|failures?|broken)\b`),
				p(GroupSecondary, "not working", `\b(not\s+working|doesn'?t\s+work|stopped\s+working)\b`),
				p(GroupSecondary, "declining", `\b(dropping|declining|decreasing|falling|shrinking)\b`),
				p(GroupContextual, "root cause", `\broot\s+causes?\b`),
				p(GroupContextual, "symptoms", `\bsymptoms?\b`),
				p(GroupContextual, "slow", `\b(slow(er|ly)?|crash(es|ing)?|outage)\b`),
			},
			Keywords: []string{"error", "issue", "problem", "bug", "failure", "broken", "fix", "troubleshoot", "diagnose", "crash", "slow", "decline", "drop", "churn", "outage"},
		},
	}
}
