package query

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHeuristicClassifier_Classify(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  QueryType
	}{
		{"relationship phrase", "what uses PaymentService", QueryTypeRelationship},
		{"depends on", "modules that depends on the auth package", QueryTypeRelationship},
		{"regex metacharacters", "handle.*Error$", QueryTypePattern},
		{"credential token", "find sk-abc123 in the codebase", QueryTypePattern},
		{"identifier", "where is getUserById defined", QueryTypeIdentifier},
		{"snake identifier", "locate get_user_by_id", QueryTypeIdentifier},
		{"consonant run typo", "strng comparison", QueryTypeFuzzy},
		{"conceptual phrase", "how does authentication work", QueryTypeConceptual},
		{"explain", "explain the retry policy", QueryTypeConceptual},
		{"no dominant signal", "payment flow timeout", QueryTypeMixed},
		{"empty", "", QueryTypeMixed},
	}

	h := NewHeuristicClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := h.Classify(context.Background(), tt.query)

			assert.Equal(t, tt.want, got.QueryType)
			assert.Equal(t, PresetWeights(tt.want), got.Weights)
			assert.Equal(t, ConfidenceHeuristic, got.Confidence)
			assert.NotEmpty(t, got.Reasoning)
		})
	}
}

func TestHeuristicClassifier_RelationshipBeatsIdentifier(t *testing.T) {
	h := NewHeuristicClassifier()

	// "PaymentService" alone is an identifier query; the relationship phrase
	// takes precedence and the identifier is still reported.
	got := h.Classify(context.Background(), "what calls PaymentService")

	assert.Equal(t, QueryTypeRelationship, got.QueryType)
	assert.Equal(t, []string{"PaymentService"}, got.DetectedIdentifiers)
}

func TestHeuristicClassifier_ConceptualBeatsIdentifier(t *testing.T) {
	h := NewHeuristicClassifier()

	got := h.Classify(context.Background(), "how does getUserById work")

	assert.Equal(t, QueryTypeConceptual, got.QueryType)
	assert.Equal(t, []string{"getUserById"}, got.DetectedIdentifiers)
}

func TestHeuristicClassifier_SingleMetaCharIsNotPattern(t *testing.T) {
	h := NewHeuristicClassifier()

	got := h.Classify(context.Background(), "why is the build broken?")

	assert.NotEqual(t, QueryTypePattern, got.QueryType)
}

func TestHeuristicClassifier_TyposFlag(t *testing.T) {
	h := NewHeuristicClassifier()

	assert.True(t, h.Classify(context.Background(), "strng comparison").HasTypos)
	assert.False(t, h.Classify(context.Background(), "string comparison").HasTypos)
}
