package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshteinDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want int
	}{
		{"identical", "hello", "hello", 0},
		{"both empty", "", "", 0},
		{"empty vs nonempty", "", "abc", 3},
		{"single substitution", "cat", "bat", 1},
		{"single insertion", "cat", "cart", 1},
		{"single deletion", "cart", "cat", 1},
		{"kitten sitting", "kitten", "sitting", 3},
		{"case insensitive", "Hello", "hello", 0},
		{"unicode aware", "café", "cafe", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LevenshteinDistance(tt.a, tt.b))
		})
	}
}

func TestLevenshteinDistance_Symmetric(t *testing.T) {
	pairs := [][2]string{
		{"kitten", "sitting"},
		{"handler", "handlre"},
		{"", "abc"},
	}
	for _, p := range pairs {
		assert.Equal(t, LevenshteinDistance(p[0], p[1]), LevenshteinDistance(p[1], p[0]))
	}
}

func TestLevenshteinDistance_TriangleInequality(t *testing.T) {
	samples := []string{
		"", "a", "kitten", "sitting", "handler", "handlre",
		"authentication", "config.yaml", "getUserById",
	}
	for _, a := range samples {
		for _, b := range samples {
			for _, c := range samples {
				ac := LevenshteinDistance(a, c)
				detour := LevenshteinDistance(a, b) + LevenshteinDistance(b, c)
				assert.LessOrEqual(t, ac, detour, "d(%q,%q) > d(%q,%q)+d(%q,%q)", a, c, a, b, b, c)
			}
		}
	}
}

func TestSimilarityScore(t *testing.T) {
	assert.Equal(t, 1.0, SimilarityScore("same", "same"))
	assert.Equal(t, 1.0, SimilarityScore("", ""))
	assert.Equal(t, 0.0, SimilarityScore("", "abcd"))

	// One edit over length 7: 1 - 1/7.
	assert.InDelta(t, 1.0-1.0/7.0, SimilarityScore("handler", "handlers"), 1e-9)
}

func TestSimilarityScore_TypoAboveThreshold(t *testing.T) {
	// Transposition typo: two edits over 14 characters.
	sim := SimilarityScore("authentication", "authetnication")

	assert.GreaterOrEqual(t, sim, DefaultFuzzyThreshold)
}
