package fuzzy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func trigramSet(trigrams ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(trigrams))
	for _, t := range trigrams {
		set[t] = struct{}{}
	}
	return set
}

func TestGenerateTrigrams_PaddedWindows(t *testing.T) {
	got := GenerateTrigrams("abc")

	assert.Equal(t, trigramSet("  a", " ab", "abc", "bc "), got)
}

func TestGenerateTrigrams_ShortInput(t *testing.T) {
	assert.Equal(t, trigramSet("ab"), GenerateTrigrams("ab"))
	assert.Equal(t, trigramSet("a"), GenerateTrigrams("a"))
}

func TestGenerateTrigrams_Empty(t *testing.T) {
	assert.Empty(t, GenerateTrigrams(""))
}

func TestGenerateTrigrams_Dedupes(t *testing.T) {
	// "aaaa" produces the window "aaa" twice.
	got := GenerateTrigrams("aaaa")

	assert.Equal(t, trigramSet("  a", " aa", "aaa", "aa "), got)
}

func TestTrigramJaccard(t *testing.T) {
	a := GenerateTrigrams("hello")
	b := GenerateTrigrams("hello")

	assert.Equal(t, 1.0, TrigramJaccard(a, b))
	assert.Equal(t, 0.0, TrigramJaccard(a, GenerateTrigrams("xyz")))
	assert.Equal(t, 0.0, TrigramJaccard(a, map[string]struct{}{}))
	assert.Equal(t, 0.0, TrigramJaccard(map[string]struct{}{}, map[string]struct{}{}))
}

func TestTrigramJaccard_Symmetric(t *testing.T) {
	a := GenerateTrigrams("handler")
	b := GenerateTrigrams("handle")

	assert.Equal(t, TrigramJaccard(a, b), TrigramJaccard(b, a))
}

func TestTrigramShare(t *testing.T) {
	query := GenerateTrigrams("abc")

	assert.Equal(t, 1.0, TrigramShare(query, GenerateTrigrams("abc")))
	assert.Equal(t, 0.0, TrigramShare(query, GenerateTrigrams("xyz")))
	assert.Equal(t, 0.0, TrigramShare(map[string]struct{}{}, GenerateTrigrams("abc")))

	// "abcd" contains 3 of abc's 4 trigrams ("  a", " ab", "abc").
	assert.InDelta(t, 0.75, TrigramShare(query, GenerateTrigrams("abcd")), 1e-9)
}

func TestFuzzyMatch_SubstringShortCircuits(t *testing.T) {
	assert.True(t, FuzzyMatch("StreamingTextResponse", "textresponse", 0.7))
	assert.True(t, FuzzyMatch("getUserById", "GETUSERBYID", 0.7))
}

func TestFuzzyMatch_TrigramSimilarity(t *testing.T) {
	assert.True(t, FuzzyMatch("handler", "handlers", 0.5))
	assert.False(t, FuzzyMatch("handler", "zebra", 0.5))
}

func TestFuzzyMatch_DefaultThreshold(t *testing.T) {
	// threshold <= 0 falls back to DefaultFuzzyThreshold
	assert.True(t, FuzzyMatch("identical", "identical", 0))
	assert.False(t, FuzzyMatch("abc", "xyz", -1))
}

func TestMinTrigramShare(t *testing.T) {
	assert.Equal(t, 0.3, MinTrigramShare())
}
