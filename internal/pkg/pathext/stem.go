package pathext

import (
	"strings"

	porterstemmer "github.com/kiteco/go-porterstemmer"
)

// Stemmer reduces a word to the form used in path strings.
type Stemmer func(word string) string

// Stem is a cheap suffix-stripping heuristic for -ing, -ed and -s endings.
// It lowercases its input and handles doubled consonants ("running",
// "stopped") and y-substitution ("tried", "flies"). Short words are left
// as they are apart from case.
func Stem(word string) string {
	w := strings.ToLower(word)
	n := len(w)

	switch {
	case n > 4 && strings.HasSuffix(w, "ing"):
		if n > 5 && doubled(w, n-4) {
			return w[:n-4]
		}
		return w[:n-3]

	case n > 3 && strings.HasSuffix(w, "ed"):
		if strings.HasSuffix(w, "ied") {
			return w[:n-3] + "y"
		}
		if n > 4 && doubled(w, n-3) {
			return w[:n-3]
		}
		return w[:n-2]

	case n > 2 && strings.HasSuffix(w, "s"):
		if strings.HasSuffix(w, "ss") || strings.HasSuffix(w, "us") || strings.HasSuffix(w, "is") {
			return w
		}
		if strings.HasSuffix(w, "ies") {
			return w[:n-3] + "y"
		}
		if n > 3 && strings.HasSuffix(w, "es") && strings.IndexByte("sxzho", w[n-3]) >= 0 {
			return w[:n-2]
		}
		return w[:n-1]
	}
	return w
}

// doubled reports whether w[i] is a consonant repeated at w[i-1].
func doubled(w string, i int) bool {
	return isConsonant(w[i]) && w[i] == w[i-1]
}

func isConsonant(c byte) bool {
	return strings.IndexByte("aeiou", c) < 0
}

// PorterStem applies the Porter stemming algorithm to the lowercased word.
func PorterStem(word string) string {
	return porterstemmer.StemString(strings.ToLower(word))
}

// StemmerByName returns the stemmer registered under name. The empty name
// selects the default heuristic.
func StemmerByName(name string) (Stemmer, bool) {
	switch strings.ToLower(name) {
	case "", "heuristic", "simple":
		return Stem, true
	case "porter":
		return PorterStem, true
	}
	return nil, false
}
