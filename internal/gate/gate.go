// Package gate decides from the subject line alone whether a message is a
// policy question worth drafting a reply for.
package gate

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// MinPhraseLen is the shortest phrase matched as a substring. Shorter
// phrases would match inside unrelated words.
const MinPhraseLen = 5

// KeywordSet is the subject vocabulary. It is loaded once and never mutated.
type KeywordSet struct {
	Phrases  []string `json:"phrases"`
	Unigrams []string `json:"unigrams"`
}

// LoadKeywords reads a keyword set from a JSON file.
func LoadKeywords(path string) (KeywordSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return KeywordSet{}, fmt.Errorf("keywords json not found at %s: %w", path, err)
	}
	var kw KeywordSet
	if err := json.Unmarshal(data, &kw); err != nil {
		return KeywordSet{}, fmt.Errorf("parse keywords %s: %w", path, err)
	}
	return kw.Normalize(), nil
}

// Normalize lowercases and trims every keyword and drops empties.
func (kw KeywordSet) Normalize() KeywordSet {
	return KeywordSet{Phrases: normalizeAll(kw.Phrases), Unigrams: normalizeAll(kw.Unigrams)}
}

// Len returns the total number of keywords.
func (kw KeywordSet) Len() int {
	return len(kw.Phrases) + len(kw.Unigrams)
}

// Admit returns the sorted keywords matching subject. Phrases of at least
// MinPhraseLen characters match as substrings of the lowercased subject;
// unigrams match whole tokens split on non-alphanumeric runs.
func Admit(subject string, kw KeywordSet) []string {
	norm := strings.ToLower(subject)
	matched := make(map[string]struct{})

	for _, p := range kw.Phrases {
		p = strings.ToLower(p)
		if len(p) >= MinPhraseLen && strings.Contains(norm, p) {
			matched[p] = struct{}{}
		}
	}

	words := make(map[string]struct{})
	for _, w := range Tokens(norm) {
		words[w] = struct{}{}
	}
	for _, u := range kw.Unigrams {
		u = strings.ToLower(u)
		if _, ok := words[u]; ok {
			matched[u] = struct{}{}
		}
	}

	out := make([]string, 0, len(matched))
	for m := range matched {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Tokens splits lowercased text on runs of characters outside [a-z0-9].
func Tokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// Gate binds a keyword set for repeated admission checks.
type Gate struct {
	keywords KeywordSet
}

// New returns a gate over a normalized copy of kw.
func New(kw KeywordSet) *Gate {
	return &Gate{keywords: kw.Normalize()}
}

// Admit matches subject against the bound keyword set.
func (g *Gate) Admit(subject string) []string {
	return Admit(subject, g.keywords)
}

// Keywords returns the bound keyword set.
func (g *Gate) Keywords() KeywordSet {
	return g.keywords
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
