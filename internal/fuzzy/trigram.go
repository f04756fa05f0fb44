// Package fuzzy provides approximate string matching primitives: trigram
// generation, Levenshtein edit distance, similarity scoring, and identifier
// extraction. These power the pattern search strategy and the query
// classifier's identifier/typo signals.
package fuzzy

import "strings"

// Trigram padding follows the pg_trgm convention: two leading blanks and one
// trailing blank, so word boundaries produce their own trigrams.
const (
	trigramLeadPad  = "  "
	trigramTailPad  = " "
	trigramWindow   = 3
	minTrigramShare = 0.3 // candidate must share this fraction of query trigrams
)

// GenerateTrigrams returns the deduplicated set of 3-codepoint windows over
// the padded input. Inputs shorter than 3 codepoints return a single-element
// set containing the whole string.
func GenerateTrigrams(text string) map[string]struct{} {
	set := make(map[string]struct{})
	runes := []rune(text)
	if len(runes) == 0 {
		return set
	}
	if len(runes) < trigramWindow {
		set[text] = struct{}{}
		return set
	}

	padded := []rune(trigramLeadPad + text + trigramTailPad)
	for i := 0; i+trigramWindow <= len(padded); i++ {
		set[string(padded[i:i+trigramWindow])] = struct{}{}
	}
	return set
}

// TrigramJaccard computes the Jaccard similarity of two trigram sets.
// Returns 0 when both sets are empty.
func TrigramJaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	// Iterate the smaller set
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}

	intersection := 0
	for t := range small {
		if _, ok := large[t]; ok {
			intersection++
		}
	}

	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// TrigramShare returns the fraction of query trigrams present in the
// candidate set. Used as a cheap prefilter before edit-distance rescoring.
func TrigramShare(query, candidate map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	shared := 0
	for t := range query {
		if _, ok := candidate[t]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(query))
}

// DefaultFuzzyThreshold is the minimum similarity for FuzzyMatch and the
// pattern strategy's rescoring cutoff.
const DefaultFuzzyThreshold = 0.7

// FuzzyMatch reports whether pattern approximately matches text.
// Case-insensitive substring containment matches immediately; otherwise the
// Jaccard similarity of the two trigram sets must meet threshold.
func FuzzyMatch(text, pattern string, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}

	lowerText := strings.ToLower(text)
	lowerPattern := strings.ToLower(pattern)

	if strings.Contains(lowerText, lowerPattern) {
		return true
	}

	return TrigramJaccard(GenerateTrigrams(lowerText), GenerateTrigrams(lowerPattern)) >= threshold
}

// MinTrigramShare is the prefilter cutoff used by the pattern strategy:
// candidates sharing fewer than this fraction of the query's trigrams are
// discarded before edit-distance rescoring.
func MinTrigramShare() float64 {
	return minTrigramShare
}
