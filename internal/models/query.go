// Package models defines the data structures shared by the query pipeline stages.
package models

import (
	"fmt"
	"sort"
	"strings"
)

// QuestionType is the intent category assigned to a query.
type QuestionType string

const (
	QuestionFactual     QuestionType = "factual"
	QuestionAnalytical  QuestionType = "analytical"
	QuestionComparative QuestionType = "comparative"
	QuestionProcedural  QuestionType = "procedural"
	QuestionCreative    QuestionType = "creative"
	QuestionDiagnostic  QuestionType = "diagnostic"
	QuestionUnknown     QuestionType = "unknown"
)

// QuestionTypes lists the classifiable types in a stable order. Unknown is not included.
var QuestionTypes = []QuestionType{
	QuestionFactual,
	QuestionAnalytical,
	QuestionComparative,
	QuestionProcedural,
	QuestionCreative,
	QuestionDiagnostic,
}

// Known reports whether t is one of the six classifiable types.
func (t QuestionType) Known() bool {
	switch t {
	case QuestionFactual, QuestionAnalytical, QuestionComparative,
		QuestionProcedural, QuestionCreative, QuestionDiagnostic:
		return true
	default:
		return false
	}
}

// ParseQuestionType parses a type name case-insensitively. Unrecognized names map to Unknown.
func ParseQuestionType(s string) QuestionType {
	t := QuestionType(strings.ToLower(strings.TrimSpace(s)))
	if t.Known() {
		return t
	}
	return QuestionUnknown
}

// Mode selects which pipeline stages run for a query.
type Mode string

const (
	// ModeFast runs the classifier only.
	ModeFast Mode = "fast"
	// ModeStandard runs classification and domain expansion concurrently.
	ModeStandard Mode = "standard"
	// ModeComprehensive adds quality scoring and the conversational engine.
	ModeComprehensive Mode = "comprehensive"
	// ModeCustom is reserved for caller-selected stage subsets; it currently runs Comprehensive.
	ModeCustom Mode = "custom"
)

// ParseMode parses a mode name. An empty string yields ModeStandard.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeStandard, nil
	case ModeFast, ModeStandard, ModeComprehensive, ModeCustom:
		return m, nil
	default:
		return "", fmt.Errorf("unknown processing mode %q", s)
	}
}

// Query is a single request to the pipeline: the raw text, the processing mode and
// optional context.
type Query struct {
	Text    string        `json:"query"`
	Mode    Mode          `json:"mode,omitempty"`
	Context *QueryContext `json:"context,omitempty"`
}

// Validate checks the query and fills defaults. An empty mode becomes ModeStandard.
func (q *Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("query is required")
	}
	m, err := ParseMode(string(q.Mode))
	if err != nil {
		return err
	}
	q.Mode = m
	return nil
}

// Entity is a recognized named thing in a query (from NLP extraction or the knowledge graph).
type Entity struct {
	Text   string  `json:"text"`
	Label  string  `json:"label"`
	Source string  `json:"source"`
	Score  float64 `json:"score,omitempty"`
}

// QueryContext carries optional caller and session context for a query.
// All fields are optional; a nil *QueryContext is valid everywhere.
type QueryContext struct {
	SessionID        string            `json:"session_id,omitempty"`
	UserID           string            `json:"user_id,omitempty"`
	PriorType        QuestionType      `json:"prior_type,omitempty"`
	PriorDomains     []BusinessDomain  `json:"prior_domains,omitempty"`
	PreferredDomains []BusinessDomain  `json:"preferred_domains,omitempty"`
	Entities         []Entity          `json:"entities,omitempty"`
	Parameters       map[string]string `json:"parameters,omitempty"`
}

// Clone returns a deep copy of c. Clone of nil is an empty context.
func (c *QueryContext) Clone() *QueryContext {
	if c == nil {
		return &QueryContext{}
	}
	out := &QueryContext{
		SessionID: c.SessionID,
		UserID:    c.UserID,
		PriorType: c.PriorType,
	}
	out.PriorDomains = append([]BusinessDomain(nil), c.PriorDomains...)
	out.PreferredDomains = append([]BusinessDomain(nil), c.PreferredDomains...)
	out.Entities = append([]Entity(nil), c.Entities...)
	if len(c.Parameters) > 0 {
		out.Parameters = make(map[string]string, len(c.Parameters))
		for k, v := range c.Parameters {
			out.Parameters[k] = v
		}
	}
	return out
}

// Digest returns a stable textual digest of the context, used as part of cache keys.
// Two contexts with the same content produce the same digest regardless of map order.
// A nil or empty context digests to "".
func (c *QueryContext) Digest() string {
	if c.IsZero() {
		return ""
	}
	var b strings.Builder
	b.WriteString("s=" + c.SessionID)
	b.WriteString("|u=" + c.UserID)
	b.WriteString("|t=" + string(c.PriorType))
	b.WriteString("|pd=" + joinDomains(c.PriorDomains))
	b.WriteString("|pf=" + joinDomains(c.PreferredDomains))

	ents := make([]string, 0, len(c.Entities))
	for _, e := range c.Entities {
		ents = append(ents, strings.ToLower(e.Text)+":"+e.Label)
	}
	sort.Strings(ents)
	b.WriteString("|e=" + strings.Join(ents, ","))

	keys := make([]string, 0, len(c.Parameters))
	for k := range c.Parameters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b.WriteString("|p=")
	for _, k := range keys {
		b.WriteString(k + "=" + c.Parameters[k] + ";")
	}
	return b.String()
}

// IsZero reports whether c is nil or carries no context at all.
func (c *QueryContext) IsZero() bool {
	return c == nil || (c.SessionID == "" && c.UserID == "" && c.PriorType == "" &&
		len(c.PriorDomains) == 0 && len(c.PreferredDomains) == 0 &&
		len(c.Entities) == 0 && len(c.Parameters) == 0)
}

func joinDomains(ds []BusinessDomain) string {
	parts := make([]string, len(ds))
	for i, d := range ds {
		parts[i] = string(d)
	}
	return strings.Join(parts, ",")
}

// NormalizeQuery lowercases q and collapses runs of whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
