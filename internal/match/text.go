package match

import (
	"strings"
	"unicode"
)

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "at": {}, "for": {}, "in": {}, "of": {}, "on": {}, "or": {},
	"the": {}, "to": {}, "with": {}, "m": {}, "f": {}, "d": {}, "w": {}, "x": {},
}

// tokens lower-cases s and splits it into words. '+', '#' and inner dots stay
// part of a word so "c++", "c#" and "node.js" survive.
func tokens(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#' && r != '.'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// stems returns the stemmed content words of s as a set.
func stems(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokens(s) {
		if _, stop := stopWords[t]; stop {
			continue
		}
		set[stem(t)] = struct{}{}
	}
	return set
}

var suffixes = []string{"ations", "ation", "ings", "ing", "ists", "ist", "ers", "er", "ors", "or", "ies", "es", "s"}

// stem strips common English suffixes (at most two) keeping at least three
// letters, so "engineering" and "engineer" share a stem.
func stem(word string) string {
	for i := 0; i < 2; i++ {
		next := stripSuffix(word)
		if next == word {
			break
		}
		word = next
	}
	return word
}

func stripSuffix(word string) string {
	for _, suffix := range suffixes {
		if !strings.HasSuffix(word, suffix) {
			continue
		}
		base := strings.TrimSuffix(word, suffix)
		if len([]rune(base)) < 3 {
			continue
		}
		if suffix == "ies" {
			return base + "y"
		}
		return base
	}
	return word
}

// containsPhrase reports whether the token sequence phrase occurs in text.
func containsPhrase(text, phrase []string) bool {
	if len(phrase) == 0 || len(phrase) > len(text) {
		return false
	}
	for i := 0; i+len(phrase) <= len(text); i++ {
		match := true
		for j, p := range phrase {
			if text[i+j] != p {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
