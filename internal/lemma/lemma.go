// Package lemma implements the Lemma Analyzer contract (C3): HTML or free
// text in, a mapping of lemma text to occurrence count out, with per-token
// language detection and function-word filtering.
//
// Stemming is grounded on github.com/kljensen/snowball, the real stemming
// library confirmed in _examples/other_examples/natyhl-go-search-engine__crawl.go
// and _examples/other_examples/Xhy51-project_changes__index.go. No
// part-of-speech tagger exists anywhere in the retrieved pack, so the
// functional-word filter (interjections, prepositions, conjunctions) is
// approximated with curated stop-word sets applied before stemming — see
// DESIGN.md Open Question #3.
package lemma

import (
	"errors"
	"regexp"
	"strings"

	"github.com/kljensen/snowball"

	"github.com/anvil-search/indexer/internal/htmlutil"
)

// ErrAnalyzerInit signals a one-time construction failure (e.g. a malformed
// embedded stop-word list).
var ErrAnalyzerInit = errors.New("analyzer init error")

var (
	cyrillicToken = regexp.MustCompile(`^[а-яё]+$`)
	latinToken    = regexp.MustCompile(`^[a-z]+$`)
	tokenSplitter = regexp.MustCompile(`[^a-zA-Zа-яёА-ЯЁ]+`)
)

// Analyzer extracts lemmas from text. It is pure, thread-safe, and performs
// no I/O after construction.
type Analyzer struct {
	englishStop map[string]struct{}
	russianStop map[string]struct{}
}

// New builds an Analyzer from the curated stop-word sets. Construction can
// fail once with ErrAnalyzerInit if either set is empty, which would silently
// defeat the functional-word filter.
func New() (*Analyzer, error) {
	if len(englishFunctionWords) == 0 || len(russianFunctionWords) == 0 {
		return nil, ErrAnalyzerInit
	}
	return &Analyzer{
		englishStop: toSet(englishFunctionWords),
		russianStop: toSet(russianFunctionWords),
	}, nil
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// Analyze implements the C3 algorithm over HTML content: strip to visible
// text, tokenize, route by detected script, filter function words, stem, and
// tally occurrence counts.
func (a *Analyzer) Analyze(htmlOrText string) (map[string]int, error) {
	text := htmlOrText
	if looksLikeHTML(htmlOrText) {
		text = htmlutil.VisibleText([]byte(htmlOrText))
	}
	counts := make(map[string]int)
	for _, token := range tokenSplitter.Split(strings.ToLower(text), -1) {
		if token == "" {
			continue
		}
		lemma, ok := a.lemmatize(token)
		if !ok {
			continue
		}
		counts[lemma]++
	}
	return counts, nil
}

// LemmaSet returns the distinct lemma set for text, the contract the
// out-of-scope search subsystem consumes (spec.md §4.3).
func (a *Analyzer) LemmaSet(htmlOrText string) (map[string]struct{}, error) {
	counts, err := a.Analyze(htmlOrText)
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, len(counts))
	for lemma := range counts {
		set[lemma] = struct{}{}
	}
	return set, nil
}

func (a *Analyzer) lemmatize(token string) (string, bool) {
	switch {
	case cyrillicToken.MatchString(token):
		if _, isFunction := a.russianStop[token]; isFunction {
			return "", false
		}
		stemmed, err := snowball.Stem(token, "russian", true)
		if err != nil || stemmed == "" {
			return "", false
		}
		return stemmed, true
	case latinToken.MatchString(token):
		if _, isFunction := a.englishStop[token]; isFunction {
			return "", false
		}
		stemmed, err := snowball.Stem(token, "english", true)
		if err != nil || stemmed == "" {
			return "", false
		}
		return stemmed, true
	default:
		// Mixed-script or non-letter tokens are dropped per spec.md §4.3c.
		return "", false
	}
}

func looksLikeHTML(s string) bool {
	trimmed := strings.TrimSpace(s)
	return strings.HasPrefix(trimmed, "<")
}
