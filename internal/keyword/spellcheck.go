package keyword

import (
	"sort"
	"strings"
	"sync"
)

// TermDictionary provides the known vocabulary for spell checking.
type TermDictionary interface {
	// GetAllTerms returns all known terms.
	GetAllTerms() ([]string, error)
	// GetTermFrequency returns how often the term occurs in the vocabulary sources.
	GetTermFrequency(term string) (int, error)
	// ContainsTerm reports whether the term is known.
	ContainsTerm(term string) (bool, error)
}

// Vocabulary is an in-memory TermDictionary. Safe for concurrent use after construction.
type Vocabulary struct {
	freq map[string]int
}

// NewVocabulary builds a vocabulary from phrases; every word of every phrase is a term.
// Repeated words increase the term frequency.
func NewVocabulary(phrases ...string) *Vocabulary {
	v := &Vocabulary{freq: make(map[string]int)}
	for _, p := range phrases {
		for _, w := range Words(p) {
			v.freq[w]++
		}
	}
	return v
}

func (v *Vocabulary) GetAllTerms() ([]string, error) {
	out := make([]string, 0, len(v.freq))
	for t := range v.freq {
		out = append(out, t)
	}
	sort.Strings(out)
	return out, nil
}

func (v *Vocabulary) GetTermFrequency(term string) (int, error) {
	return v.freq[strings.ToLower(term)], nil
}

func (v *Vocabulary) ContainsTerm(term string) (bool, error) {
	_, ok := v.freq[strings.ToLower(term)]
	return ok, nil
}

// Len returns the number of distinct terms.
func (v *Vocabulary) Len() int { return len(v.freq) }

// Suggestion is a candidate correction for a misspelled term.
type Suggestion struct {
	Term      string
	Distance  int
	Frequency int
	Score     float64
}

// Misspelling is a query word that is close to, but not in, the vocabulary.
type Misspelling struct {
	Word       string
	Suggestion Suggestion
}

// SpellChecker suggests vocabulary terms for words within a small edit distance.
type SpellChecker struct {
	dictionary     TermDictionary
	maxDistance    int
	minWordLength  int
	maxSuggestions int

	mu     sync.RWMutex
	terms  []string
	loaded bool
}

// SpellCheckerOption configures a SpellChecker.
type SpellCheckerOption func(*SpellChecker)

// WithMaxDistance sets the maximum edit distance for suggestions.
func WithMaxDistance(d int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if d > 0 {
			s.maxDistance = d
		}
	}
}

// WithMinWordLength sets the shortest word that is checked. Shorter words are never flagged.
func WithMinWordLength(n int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if n > 0 {
			s.minWordLength = n
		}
	}
}

// WithMaxSuggestions sets the maximum number of suggestions returned per word.
func WithMaxSuggestions(n int) SpellCheckerOption {
	return func(s *SpellChecker) {
		if n > 0 {
			s.maxSuggestions = n
		}
	}
}

// NewSpellChecker creates a SpellChecker over dict. Defaults: distance 2, words of 4+ runes, 3 suggestions.
func NewSpellChecker(dict TermDictionary, opts ...SpellCheckerOption) *SpellChecker {
	s := &SpellChecker{
		dictionary:     dict,
		maxDistance:    2,
		minWordLength:  4,
		maxSuggestions: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SpellChecker) loadTerms() []string {
	s.mu.RLock()
	if s.loaded {
		terms := s.terms
		s.mu.RUnlock()
		return terms
	}
	s.mu.RUnlock()

	terms, err := s.dictionary.GetAllTerms()
	if err != nil {
		return nil
	}
	s.mu.Lock()
	s.terms = terms
	s.loaded = true
	s.mu.Unlock()
	return terms
}

// Suggest returns vocabulary terms within the maximum edit distance of word,
// best first (smaller distance, then higher frequency, then alphabetical).
func (s *SpellChecker) Suggest(word string) []Suggestion {
	word = strings.ToLower(word)
	var out []Suggestion
	for _, term := range s.loadTerms() {
		if term == word || !WithinDistance(word, term, s.maxDistance) {
			continue
		}
		d := LevenshteinDistance(word, term)
		freq, err := s.dictionary.GetTermFrequency(term)
		if err != nil {
			continue
		}
		out = append(out, Suggestion{
			Term:      term,
			Distance:  d,
			Frequency: freq,
			Score:     float64(freq) / float64(d+1),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Frequency != out[j].Frequency {
			return out[i].Frequency > out[j].Frequency
		}
		return out[i].Term < out[j].Term
	})
	if len(out) > s.maxSuggestions {
		out = out[:s.maxSuggestions]
	}
	return out
}

// IsKnown reports whether word is in the vocabulary.
func (s *SpellChecker) IsKnown(word string) bool {
	ok, err := s.dictionary.ContainsTerm(strings.ToLower(word))
	return err == nil && ok
}

// Misspellings returns the words of text that are long enough, not in the vocabulary,
// and within edit distance of a vocabulary term. Words shorter than six runes get a
// single edit. Plain inflections of a known term are not reported. Each word is reported once.
func (s *SpellChecker) Misspellings(text string) []Misspelling {
	seen := make(map[string]struct{})
	var out []Misspelling
	for _, w := range Words(text) {
		if len([]rune(w)) < s.minWordLength || isNumeric(w) {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if s.IsKnown(w) {
			continue
		}
		for _, sugg := range s.Suggest(w) {
			if sugg.Distance > s.distanceFor(w) || isInflection(w, sugg.Term) {
				continue
			}
			out = append(out, Misspelling{Word: w, Suggestion: sugg})
			break
		}
	}
	return out
}

// distanceFor allows one edit for short words and the full distance otherwise.
func (s *SpellChecker) distanceFor(word string) int {
	if len([]rune(word)) < 6 {
		return 1
	}
	return s.maxDistance
}

var inflections = []string{"s", "es", "d", "ed", "ing", "er", "ers", "ly", "al"}

// isInflection reports whether one word is the other plus a common English suffix.
func isInflection(a, b string) bool {
	if len(a) < len(b) {
		a, b = b, a
	}
	if !strings.HasPrefix(a, b) {
		return false
	}
	rest := a[len(b):]
	for _, suf := range inflections {
		if rest == suf {
			return true
		}
	}
	return false
}

// CorrectedQuery returns text with each misspelled word replaced by its best suggestion.
// It returns text unchanged when nothing was corrected.
func (s *SpellChecker) CorrectedQuery(text string) string {
	miss := s.Misspellings(text)
	if len(miss) == 0 {
		return text
	}
	fix := make(map[string]string, len(miss))
	for _, m := range miss {
		fix[m.Word] = m.Suggestion.Term
	}
	words := Words(text)
	for i, w := range words {
		if r, ok := fix[w]; ok {
			words[i] = r
		}
	}
	return strings.Join(words, " ")
}

func isNumeric(w string) bool {
	for _, r := range w {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
