package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/quarrylabs/quarry/internal/fuzzy"
)

// Heuristic tunables. Both are ad hoc cutoffs without a documented
// derivation; treat them as replaceable, not as a frozen contract.
const (
	// patternMetaThreshold is the number of regex metacharacters that marks
	// a query as a pattern search.
	patternMetaThreshold = 2

	// typoConsonantRun is the length of a consonant-only run that marks a
	// query as likely misspelled.
	typoConsonantRun = 4
)

// relationshipPhrases mark queries about graph structure, checked first.
var relationshipPhrases = []string{
	"what uses", "who uses", "what calls", "what imports",
	"depends on", "dependency of", "dependencies of",
	"extends", "implements", "inherits from",
	"related to", "connected to", "references to",
}

// conceptualPhrases mark natural-language queries seeking meaning.
var conceptualPhrases = []string{
	"how do i", "how does", "how to", "what is", "what are",
	"why does", "why is", "explain", "describe", "overview of",
	"understand", "difference between",
}

// credentialPrefixes are token prefixes typical of leaked secrets; queries
// containing them are treated as pattern searches.
var credentialPrefixes = []string{
	"sk-", "pk-", "ghp-", "ghp_", "gho_", "github_pat_", "xoxb-", "xoxp-", "akia",
}

// regexMetaChars counted by the pattern-indicator check.
const regexMetaChars = `*+?[](){}|^$\`

var consonantRunPattern = regexp.MustCompile(
	fmt.Sprintf(`(?i)[bcdfghjklmnpqrstvwxz]{%d,}`, typoConsonantRun))

// HeuristicClassifier classifies queries with ordered pattern checks.
// It is the always-available fallback: zero external dependencies, never errs.
type HeuristicClassifier struct{}

// NewHeuristicClassifier creates the pattern-based fallback classifier.
func NewHeuristicClassifier() *HeuristicClassifier {
	return &HeuristicClassifier{}
}

// Classify determines the query type using ordered heuristics:
// relationship phrases, pattern indicators, identifiers, typo runs,
// conceptual phrases, then mixed. Confidence is always ConfidenceHeuristic.
func (h *HeuristicClassifier) Classify(_ context.Context, queryText string) Analysis {
	queryText = strings.TrimSpace(queryText)
	identifiers := fuzzy.ExtractIdentifiers(queryText)
	lower := strings.ToLower(queryText)

	qt, reasoning := h.classify(queryText, lower, identifiers)

	return Analysis{
		QueryType:           qt,
		Weights:             PresetWeights(qt),
		Reasoning:           reasoning,
		DetectedIdentifiers: identifiers,
		HasTypos:            qt == QueryTypeFuzzy,
		Confidence:          ConfidenceHeuristic,
	}
}

func (h *HeuristicClassifier) classify(queryText, lower string, identifiers []string) (QueryType, string) {
	if containsAny(lower, relationshipPhrases) {
		return QueryTypeRelationship, "relationship phrase detected"
	}

	if metaCount(queryText) >= patternMetaThreshold {
		return QueryTypePattern, "regex metacharacters detected"
	}
	if hasCredentialToken(lower) {
		return QueryTypePattern, "credential-like token detected"
	}

	conceptual := containsAny(lower, conceptualPhrases)

	if len(identifiers) > 0 && !conceptual {
		return QueryTypeIdentifier, "code identifiers detected"
	}

	if hasConsonantRun(lower) {
		return QueryTypeFuzzy, "long consonant run suggests a typo"
	}

	if conceptual {
		return QueryTypeConceptual, "conceptual phrasing detected"
	}

	return QueryTypeMixed, "no dominant signal"
}

// containsAny checks if s contains any of the given substrings.
func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// metaCount counts regex metacharacters in the query.
func metaCount(s string) int {
	count := 0
	for _, r := range s {
		if strings.ContainsRune(regexMetaChars, r) {
			count++
		}
	}
	return count
}

// hasCredentialToken checks whether any word starts with a known secret prefix.
func hasCredentialToken(lower string) bool {
	for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
		return unicode.IsSpace(r) || r == '"' || r == '\''
	}) {
		for _, prefix := range credentialPrefixes {
			if strings.HasPrefix(word, prefix) {
				return true
			}
		}
	}
	return false
}

// hasConsonantRun checks for a run of typoConsonantRun or more consonants.
func hasConsonantRun(lower string) bool {
	return consonantRunPattern.MatchString(lower)
}
