package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/query"
	"github.com/quarrylabs/quarry/internal/search"
)

func TestToSearchOutput(t *testing.T) {
	resp := &search.Response{
		Query:    "payment retry",
		Analysis: query.Analysis{QueryType: query.QueryTypeMixed},
		Results: []*search.FusedResult{
			{
				ID:           "chunk-1",
				Repo:         "payments",
				Content:      "func retryPayment() error {",
				FusedScore:   0.0163,
				Sources:      map[string]int{"dense": 1, "sparse": 2},
				MatchedTerms: []string{"payment", "retry"},
				Explanation:  "2 source(s)",
			},
		},
		Coverage: map[string]float64{"dense": 1.0, "sparse": 1.0, "pattern": 0, "graph": 0},
	}

	out := toSearchOutput(resp)

	assert.Equal(t, "mixed", out.QueryType)
	assert.Nil(t, out.Degraded)
	require.Len(t, out.Results, 1)

	r := out.Results[0]
	assert.Equal(t, "chunk-1", r.ID)
	assert.Equal(t, "payments", r.Repo)
	assert.Equal(t, 0.0163, r.Score)
	assert.Equal(t, map[string]int{"dense": 1, "sparse": 2}, r.Sources)
	assert.Equal(t, []string{"payment", "retry"}, r.MatchedTerms)
	assert.Equal(t, "2 source(s)", r.Explanation)
}

func TestToSearchOutput_DegradedPassedThrough(t *testing.T) {
	resp := &search.Response{
		Analysis: query.Analysis{QueryType: query.QueryTypeConceptual},
		Metrics: search.Metrics{
			Degraded: map[string]string{"sparse": "index closed"},
		},
	}

	out := toSearchOutput(resp)

	assert.Equal(t, map[string]string{"sparse": "index closed"}, out.Degraded)
	assert.Empty(t, out.Results)
}
