package fuzzy

import "strings"

// LevenshteinDistance computes the edit distance between a and b with unit
// cost for insert, delete, and substitute. Comparison is case-insensitive and
// codepoint-aware. Memory is O(min(|a|,|b|)) via two rolling rows.
func LevenshteinDistance(a, b string) int {
	ra := []rune(strings.ToLower(a))
	rb := []rune(strings.ToLower(b))

	// Keep the shorter string as the row dimension
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}

	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := 0; j <= len(rb); j++ {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}

			del := prev[j] + 1
			ins := curr[j-1] + 1
			sub := prev[j-1] + cost

			min := del
			if ins < min {
				min = ins
			}
			if sub < min {
				min = sub
			}
			curr[j] = min
		}
		prev, curr = curr, prev
	}

	return prev[len(rb)]
}

// SimilarityScore converts edit distance to a similarity in [0,1]:
// 1 - distance/max(len(a), len(b)). Two empty strings are identical (1.0).
func SimilarityScore(a, b string) float64 {
	la := len([]rune(a))
	lb := len([]rune(b))

	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	if maxLen == 0 {
		return 1.0
	}

	return 1.0 - float64(LevenshteinDistance(a, b))/float64(maxLen)
}
