package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperjump/shitsumon/internal/keyword"
	"github.com/hyperjump/shitsumon/internal/models"
)

// AssessContext carries the analysed query to every dimension assessor.
type AssessContext struct {
	Query        string
	Lower        string
	Words        []string
	Terms        []string
	Type         models.QuestionType
	Domain       models.BusinessDomain
	Context      *models.QueryContext
	DomainHits   []string
	Misspellings []keyword.Misspelling
}

// Assessor scores one quality dimension.
type Assessor interface {
	Dimension() models.Dimension
	Assess(ac *AssessContext) models.DimensionScore
}

// adjustment accumulates score deltas and the reasons behind them.
type adjustment struct {
	score   float64
	reasons []string
}

func newAdjustment(base float64) *adjustment {
	return &adjustment{score: base}
}

func (a *adjustment) add(delta float64, format string, args ...any) {
	a.score += delta
	sign, mag := "+", delta
	if delta < 0 {
		sign, mag = "-", -delta
	}
	a.reasons = append(a.reasons, fmt.Sprintf("%s (%s%.2f)", fmt.Sprintf(format, args...), sign, mag))
}

func (a *adjustment) result(d models.Dimension) models.DimensionScore {
	reasoning := "no strong signals"
	if len(a.reasons) > 0 {
		reasoning = strings.Join(a.reasons, "; ")
	}
	return models.DimensionScore{Dimension: d, Score: round3(models.Clamp01(a.score)), Reasoning: reasoning}
}

func re(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + expr)
}

var (
	directOpening = re(`^\s*(what|how|why|when|where|who|which|should|can|could|is|are|does|do|compare|analy[sz]e|explain|list|describe|create|write|find|show|identify|evaluate|calculate|design|draft|recommend|troubleshoot|diagnose|brainstorm|summari[sz]e|estimate)\b`)
	vagueWords    = re(`\b(thing|things|stuff|something|somehow|whatever|kind of|sort of|etc|maybe)\b`)
	offTopic      = re(`\b(weather|joke|lol|hello|hi there|horoscope)\b`)

	comparisonMarker = re(`\b(vs\.?|versus|compared (to|with)|difference between|better than)\b`)
	comparisonPair   = re(`\b[\w.+#-]+\s+(vs\.?|versus)\s+[\w.+#-]+|\bbetween\s+[\w.+#-]+\s+and\s+[\w.+#-]+`)
	constraintWords  = re(`\b(for|within|during|given|under|without|budget|audience|constraint|limit|requirement)\b`)
	timeFrame        = re(`\b(19|20)\d{2}\b|\bq[1-4]\b|\b(quarter|quarterly|month|monthly|year|yearly|annual|week|weekly|today|last|next|this)\b`)
	trailingOff      = re(`(\.\.\.|\betc\.?)\s*$`)

	actionVerbs   = re(`\b(how to|steps?|implement|improve|increase|reduce|optimi[sz]e|create|build|plan|fix|launch|set up|setup|migrate|deploy|design|prioriti[sz]e|decide)\b`)
	outcomeWords  = re(`\b(goal|target|result|outcome|kpi|roi|so that|in order to|grow|growth|conversion|retention)\b`)
	definitional  = re(`^\s*(what is|what are|define|who is)\b`)
	numbers       = re(`\b\d+(\.\d+)?%?`)
	evidenceWords = re(`\b(data|evidence|source|sources|statistics|stats|research|report|study|survey|benchmark|according to|metrics?)\b`)
	speculative   = re(`\b(rumou?r|guess|probably|always|never|everyone|nobody|best ever|definitely)\b`)
	loaded        = re(`\b(isn't it true|obviously|clearly|everybody knows)\b`)
	genericWords  = re(`\b(general|overall|anything|everything|stuff|things|any|all)\b`)
	properNoun    = regexp.MustCompile(`\s[A-Z][a-zA-Z0-9]+`)

	connectors     = re(`\b(and|or|while|whereas|because|if|then|across|between|versus|vs)\b`)
	analyticalWord = re(`\b(impact|relationship|trade-?offs?|correlat\w*|factors?|implications?|strategy|strategies|drivers?|root cause|dependencies|scenario)\b`)
)

func countMatches(r *regexp.Regexp, s string) int {
	return len(r.FindAllStringIndex(s, -1))
}

type clarityAssessor struct {
	maxSpellingPenalty float64
}

func (clarityAssessor) Dimension() models.Dimension { return models.DimensionClarity }

func (a clarityAssessor) Assess(ac *AssessContext) models.DimensionScore {
	adj := newAdjustment(0.5)
	n := len(ac.Words)

	if directOpening.MatchString(ac.Query) {
		adj.add(0.15, "opens with a direct question or instruction")
	}
	if vague := countMatches(vagueWords, ac.Lower); vague > 0 {
		adj.add(-min(0.3, 0.1*float64(vague)), "%d vague word(s)", vague)
	} else {
		adj.add(0.1, "no vague wording")
	}

	// Length sweet spot
	switch {
	case n < 3:
		adj.add(-0.15, "too short to be unambiguous")
	case n > 40:
		adj.add(-0.1, "very long")
	case n >= 4 && n <= 25:
		adj.add(0.1, "focused length")
	}

	if strings.Count(ac.Query, "?") > 1 {
		adj.add(-0.1, "several questions at once")
	}
	if len(ac.Misspellings) > 0 {
		penalty := min(a.maxSpellingPenalty, 0.05*float64(len(ac.Misspellings)))
		adj.add(-penalty, "%d likely misspelling(s)", len(ac.Misspellings))
	}
	return adj.result(models.DimensionClarity)
}

type relevanceAssessor struct{}

func (relevanceAssessor) Dimension() models.Dimension { return models.DimensionRelevance }

func (relevanceAssessor) Assess(ac *AssessContext) models.DimensionScore {
	adj := newAdjustment(0.5)

	switch terms := len(ac.Terms); {
	case terms == 0:
		adj.add(-0.2, "no content words")
	case terms >= 4:
		adj.add(0.15, "%d content words", terms)
	case terms >= 2:
		adj.add(0.1, "%d content words", terms)
	}

	if ac.Domain.Known() {
		if hits := len(ac.DomainHits); hits > 0 {
			adj.add(min(0.3, 0.1*float64(hits)), "%d %s term(s)", hits, ac.Domain.DisplayName())
		} else {
			adj.add(-0.05, "no %s vocabulary", ac.Domain.DisplayName())
		}
	}
	if offTopic.MatchString(ac.Lower) {
		adj.add(-0.2, "off-topic wording")
	}
	return adj.result(models.DimensionRelevance)
}

type completenessAssessor struct{}

func (completenessAssessor) Dimension() models.Dimension { return models.DimensionCompleteness }

func (completenessAssessor) Assess(ac *AssessContext) models.DimensionScore {
	adj := newAdjustment(0.5)

	if comparisonMarker.MatchString(ac.Lower) {
		adj.add(0.25, "names a comparison")
		if ac.Type == models.QuestionComparative && comparisonPair.MatchString(ac.Lower) {
			adj.add(0.15, "both sides of the comparison given")
		}
	}
	if constraintWords.MatchString(ac.Lower) {
		adj.add(0.1, "states context or constraints")
	}
	if timeFrame.MatchString(ac.Lower) {
		adj.add(0.1, "gives a time frame")
	}
	if ac.Context != nil && len(ac.Context.Entities) > 0 {
		adj.add(min(0.1, 0.05*float64(len(ac.Context.Entities))), "conversation supplies entities")
	}
	if len(ac.Words) < 3 {
		adj.add(-0.2, "missing detail")
	}
	if trailingOff.MatchString(ac.Query) {
		adj.add(-0.1, "trails off")
	}
	return adj.result(models.DimensionCompleteness)
}

type actionabilityAssessor struct{}

func (actionabilityAssessor) Dimension() models.Dimension { return models.DimensionActionability }

func (actionabilityAssessor) Assess(ac *AssessContext) models.DimensionScore {
	adj := newAdjustment(0.5)

	if actionVerbs.MatchString(ac.Lower) {
		adj.add(0.2, "asks for action")
	}
	if outcomeWords.MatchString(ac.Lower) {
		adj.add(0.1, "names an outcome")
	}
	switch ac.Type {
	case models.QuestionProcedural, models.QuestionDiagnostic:
		adj.add(0.1, "%s questions lead to concrete steps", ac.Type)
	}
	if definitional.MatchString(ac.Lower) {
		adj.add(-0.1, "definitional")
	}
	if len(ac.Words) < 3 {
		adj.add(-0.1, "too short to act on")
	}
	return adj.result(models.DimensionActionability)
}

type accuracyAssessor struct{}

func (accuracyAssessor) Dimension() models.Dimension { return models.DimensionAccuracy }

func (accuracyAssessor) Assess(ac *AssessContext) models.DimensionScore {
	adj := newAdjustment(0.5)

	if numbers.MatchString(ac.Lower) {
		adj.add(0.15, "includes figures")
	}
	if evidenceWords.MatchString(ac.Lower) {
		adj.add(0.1, "asks for evidence")
	}
	if timeFrame.MatchString(ac.Lower) {
		adj.add(0.1, "time-bounded")
	}
	if speculative.MatchString(ac.Lower) {
		adj.add(-0.15, "speculative or absolute wording")
	}
	if loaded.MatchString(ac.Lower) {
		adj.add(-0.1, "leading phrasing")
	}
	return adj.result(models.DimensionAccuracy)
}

type specificityAssessor struct{}

func (specificityAssessor) Dimension() models.Dimension { return models.DimensionSpecificity }

func (specificityAssessor) Assess(ac *AssessContext) models.DimensionScore {
	adj := newAdjustment(0.5)

	if comparisonPair.MatchString(ac.Lower) {
		adj.add(0.2, "names the items compared")
	}
	if numbers.MatchString(ac.Lower) {
		adj.add(0.1, "quantified")
	}
	if properNoun.MatchString(ac.Query) {
		adj.add(0.1, "mentions named things")
	}
	if ac.Context != nil && len(ac.Context.Entities) > 0 {
		adj.add(min(0.2, 0.05*float64(len(ac.Context.Entities))), "%d known entities", len(ac.Context.Entities))
	}
	if generic := countMatches(genericWords, ac.Lower); generic > 0 {
		adj.add(-min(0.3, 0.1*float64(generic)), "%d generic word(s)", generic)
	}
	if len(ac.Words) < 3 {
		adj.add(-0.1, "too brief")
	}
	return adj.result(models.DimensionSpecificity)
}

type complexityAssessor struct{}

func (complexityAssessor) Dimension() models.Dimension { return models.DimensionComplexity }

func (complexityAssessor) Assess(ac *AssessContext) models.DimensionScore {
	adj := newAdjustment(0.4)
	n := len(ac.Words)

	if c := countMatches(connectors, ac.Lower); c > 0 {
		adj.add(min(0.3, 0.1*float64(c)), "%d connected clause(s)", c)
	}
	if analyticalWord.MatchString(ac.Lower) {
		adj.add(0.1, "asks about relationships or impact")
	}
	switch {
	case n > 15:
		adj.add(0.1, "detailed")
	case n > 8:
		adj.add(0.05, "moderately detailed")
	case n < 4:
		adj.add(-0.1, "single-idea")
	}
	return adj.result(models.DimensionComplexity)
}

// DefaultAssessors returns one assessor per dimension, in models.Dimensions order.
func DefaultAssessors() []Assessor {
	return []Assessor{
		clarityAssessor{maxSpellingPenalty: 0.15},
		relevanceAssessor{},
		completenessAssessor{},
		actionabilityAssessor{},
		accuracyAssessor{},
		specificityAssessor{},
		complexityAssessor{},
	}
}
