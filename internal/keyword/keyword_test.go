package keyword

import (
	"reflect"
	"sync"
	"testing"
)

func TestTokenizer_Terms(t *testing.T) {
	tok, err := NewTokenizer()
	if err != nil {
		t.Fatalf("NewTokenizer: %v", err)
	}

	terms := tok.Terms("How to set up a Marketing campaign?")
	set := make(map[string]bool, len(terms))
	for _, term := range terms {
		set[term] = true
	}
	for _, want := range []string{"marketing", "campaign"} {
		if !set[want] {
			t.Errorf("Terms missing %q: %v", want, terms)
		}
	}
	for _, stop := range []string{"to", "a", "how"} {
		if set[stop] {
			t.Errorf("Terms kept stop word %q: %v", stop, terms)
		}
	}
	if got := tok.Terms("   "); len(got) != 0 {
		t.Errorf("Terms(blank) = %v, want empty", got)
	}
}

func TestTokenizer_ConcurrentUse(t *testing.T) {
	tok := MustTokenizer()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if len(tok.Terms("quarterly revenue forecast for retail stores")) == 0 {
				t.Error("expected terms")
			}
		}()
	}
	wg.Wait()
}

func TestWords(t *testing.T) {
	got := Words("Compare React vs. Vue, (please)!")
	want := []string{"compare", "react", "vs", "vue", "please"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words = %v, want %v", got, want)
	}
}

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "hello", 5},
		{"hello", "", 5},
		{"cat", "bat", 1},
		{"cat", "cart", 1},
		{"kitten", "sitting", 3},
		{"marketing", "marketting", 1},
		{"café", "cafe", 1},
		{"ab", "ba", 2},
	}
	for _, tt := range tests {
		if got := LevenshteinDistance(tt.a, tt.b); got != tt.want {
			t.Errorf("LevenshteinDistance(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
		if got := LevenshteinDistance(tt.b, tt.a); got != tt.want {
			t.Errorf("LevenshteinDistance(%q, %q) not symmetric", tt.b, tt.a)
		}
	}
}

func TestWithinDistance(t *testing.T) {
	if !WithinDistance("revenue", "revnue", 2) {
		t.Error("expected revnue within 2 of revenue")
	}
	if WithinDistance("abc", "abcdefg", 2) {
		t.Error("length difference should reject")
	}
}

func TestSpellChecker_Misspellings(t *testing.T) {
	vocab := NewVocabulary("marketing campaign", "revenue forecast", "customer retention")
	sc := NewSpellChecker(vocab)

	tests := []struct {
		name      string
		text      string
		wantWords []string
		wantFix   string
	}{
		{"clean", "marketing campaign", nil, "marketing campaign"},
		{"one typo", "improve custmer retention", []string{"custmer"}, "improve customer retention"},
		{"two typos", "revnue forcast", []string{"revnue", "forcast"}, "revenue forecast"},
		{"short words ignored", "the cmp", nil, "the cmp"},
		{"numbers ignored", "revenue 2024", nil, "revenue 2024"},
		{"unrelated word", "zebra", nil, "zebra"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			miss := sc.Misspellings(tt.text)
			var words []string
			for _, m := range miss {
				words = append(words, m.Word)
			}
			if !reflect.DeepEqual(words, tt.wantWords) {
				t.Errorf("Misspellings(%q) = %v, want %v", tt.text, words, tt.wantWords)
			}
			if got := sc.CorrectedQuery(tt.text); got != tt.wantFix {
				t.Errorf("CorrectedQuery(%q) = %q, want %q", tt.text, got, tt.wantFix)
			}
		})
	}
}

func TestSpellChecker_SuggestOrdering(t *testing.T) {
	vocab := NewVocabulary("sales", "sales", "sales", "scales", "tales")
	sc := NewSpellChecker(vocab, WithMaxSuggestions(2))
	got := sc.Suggest("sale")
	if len(got) != 2 {
		t.Fatalf("Suggest returned %d, want 2", len(got))
	}
	if got[0].Term != "sales" {
		t.Errorf("best suggestion = %q, want sales", got[0].Term)
	}
}

func TestVocabulary(t *testing.T) {
	v := NewVocabulary("Supply Chain", "supply risk")
	if v.Len() != 3 {
		t.Errorf("Len = %d, want 3", v.Len())
	}
	if f, _ := v.GetTermFrequency("SUPPLY"); f != 2 {
		t.Errorf("frequency(supply) = %d, want 2", f)
	}
	if ok, _ := v.ContainsTerm("chain"); !ok {
		t.Error("expected chain to be known")
	}
}
