// Package keyword provides text tokenization and spelling hints shared by the pipeline stages.
package keyword

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// Tokenizer splits text into lowercase terms using Bleve's standard analyzer
// (unicode segmentation, lowercasing and English stop word removal).
// It is safe for concurrent use.
type Tokenizer struct {
	analyze func([]byte) analysis.TokenStream
}

// NewTokenizer builds a Tokenizer backed by the standard analyzer.
func NewTokenizer() (*Tokenizer, error) {
	im := bleve.NewIndexMapping()
	a := im.AnalyzerNamed(standard.Name)
	if a == nil {
		return nil, fmt.Errorf("bleve analyzer %q not registered", standard.Name)
	}
	return &Tokenizer{analyze: a.Analyze}, nil
}

// MustTokenizer is like NewTokenizer but panics on error.
// The standard analyzer is always registered, so it is safe in package initialisation.
func MustTokenizer() *Tokenizer {
	t, err := NewTokenizer()
	if err != nil {
		panic(err)
	}
	return t
}

// Terms returns the content terms of text: stop words and punctuation are dropped.
func (t *Tokenizer) Terms(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	stream := t.analyze([]byte(text))
	out := make([]string, 0, len(stream))
	for _, tok := range stream {
		if len(tok.Term) == 0 {
			continue
		}
		out = append(out, string(tok.Term))
	}
	return out
}

// TermSet returns the distinct content terms of text.
func (t *Tokenizer) TermSet(text string) map[string]struct{} {
	terms := t.Terms(text)
	set := make(map[string]struct{}, len(terms))
	for _, term := range terms {
		set[term] = struct{}{}
	}
	return set
}

// Words splits text into lowercase words with surrounding punctuation trimmed.
// Unlike Terms it keeps stop words, so it is suitable for length and phrase checks.
func Words(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
