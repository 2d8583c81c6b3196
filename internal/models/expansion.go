package models

// ExpansionType names the template that produced an expanded query.
type ExpansionType string

const (
	ExpansionContextSuffix   ExpansionType = "context_suffix"
	ExpansionTerminology     ExpansionType = "terminology_injection"
	ExpansionIndustryFraming ExpansionType = "industry_framing"
)

// ExpandedQuery is one domain-flavoured variant of the original query.
type ExpandedQuery struct {
	OriginalQuery  string         `json:"original_query"`
	ExpandedText   string         `json:"expanded_text"`
	Domain         BusinessDomain `json:"domain"`
	ExpansionType  ExpansionType  `json:"expansion_type"`
	RelevanceScore float64        `json:"relevance_score"`
	AddedTerms     []string       `json:"added_terms,omitempty"`
}

// DomainStrength pairs a domain with a relationship strength in [0,1].
type DomainStrength struct {
	Domain   BusinessDomain `json:"domain"`
	Strength float64        `json:"strength"`
}

// ExpansionResult is the outcome of expanding a query across business domains.
// PrimaryDomains always has at least one entry.
type ExpansionResult struct {
	PrimaryDomains      []BusinessDomain `json:"primary_domains"`
	ExpandedQueries     []ExpandedQuery  `json:"expanded_queries"`
	CrossDomainInsights []string         `json:"cross_domain_insights,omitempty"`
	Confidence          float64          `json:"confidence"`
	SuggestedDomains    []DomainStrength `json:"suggested_domains,omitempty"`
	// DomainScores holds the raw identification score for every primary domain.
	DomainScores map[BusinessDomain]float64 `json:"domain_scores,omitempty"`
	Degraded     bool                       `json:"degraded,omitempty"`
}

// PrimaryDomain returns the first primary domain, or General.
func (r ExpansionResult) PrimaryDomain() BusinessDomain {
	if len(r.PrimaryDomains) == 0 {
		return DomainGeneral
	}
	return r.PrimaryDomains[0]
}

// FallbackExpansion is the empty-but-valid result: General, no expansions, zero confidence.
func FallbackExpansion() ExpansionResult {
	return ExpansionResult{
		PrimaryDomains:  []BusinessDomain{DomainGeneral},
		ExpandedQueries: []ExpandedQuery{},
	}
}
