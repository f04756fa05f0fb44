package fuzzy

import (
	"regexp"
	"sort"
)

// Identifier patterns compiled at package init, most specific first.
// Scoped tokens must precede the plain classes so "@scope/name" is captured
// whole instead of as two kebab fragments.
var identifierPatterns = []*regexp.Regexp{
	// Scoped package names: @scope/name
	regexp.MustCompile(`@[a-zA-Z0-9_-]+/[a-zA-Z0-9._-]+`),
	// Dotted paths: pkg.Sub.Name, config.yaml
	regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)+\b`),
	// UPPER_SNAKE constants: MAX_RETRIES
	regexp.MustCompile(`\b[A-Z][A-Z0-9]*(?:_[A-Z0-9]+)+\b`),
	// snake_case: get_user_by_id
	regexp.MustCompile(`\b[a-z][a-z0-9]*(?:_[a-z0-9]+)+\b`),
	// kebab-case: my-service-name
	regexp.MustCompile(`\b[a-z][a-z0-9]*(?:-[a-z0-9]+)+\b`),
	// CamelCase / PascalCase: getUserById, StreamingTextResponse
	regexp.MustCompile(`\b[a-zA-Z][a-z0-9]*(?:[A-Z][a-z0-9]*)+\b`),
}

// ExtractIdentifiers finds code-like tokens in free text: CamelCase,
// snake_case, kebab-case, UPPER_SNAKE, dotted paths, and @scope/name tokens.
// Duplicates are removed; first-seen order (position in text) is preserved.
func ExtractIdentifiers(text string) []string {
	type hit struct {
		token      string
		start, end int
	}
	var hits []hit

	// Earlier (more specific) patterns claim their spans; later patterns skip
	// anything overlapping a claimed span, so "@scope/name" never also yields
	// its kebab fragments.
	for _, pattern := range identifierPatterns {
		for _, loc := range pattern.FindAllStringIndex(text, -1) {
			overlaps := false
			for _, h := range hits {
				if loc[0] < h.end && loc[1] > h.start {
					overlaps = true
					break
				}
			}
			if overlaps {
				continue
			}
			hits = append(hits, hit{token: text[loc[0]:loc[1]], start: loc[0], end: loc[1]})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].start < hits[j].start })

	seen := make(map[string]struct{}, len(hits))
	var out []string
	for _, h := range hits {
		if _, dup := seen[h.token]; dup {
			continue
		}
		seen[h.token] = struct{}{}
		out = append(out, h.token)
	}

	return out
}

// HasIdentifiers reports whether text contains at least one code-like token.
func HasIdentifiers(text string) bool {
	for _, pattern := range identifierPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}
