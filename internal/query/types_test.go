package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSearchWeights_Valid(t *testing.T) {
	assert.True(t, SearchWeights{Dense: 0.25, Sparse: 0.25, Pattern: 0.25, Graph: 0.25}.Valid())
	assert.True(t, SearchWeights{Dense: 0.7, Sparse: 0.2, Pattern: 0.0, Graph: 0.1}.Valid())

	// Within tolerance of 1.0.
	assert.True(t, SearchWeights{Dense: 0.7, Sparse: 0.2, Pattern: 0.005, Graph: 0.1}.Valid())

	assert.False(t, SearchWeights{Dense: 0.5, Sparse: 0.5, Pattern: 0.5, Graph: 0.5}.Valid())
	assert.False(t, SearchWeights{}.Valid())
}

func TestSearchWeights_Normalize(t *testing.T) {
	t.Run("valid weights unchanged", func(t *testing.T) {
		w := SearchWeights{Dense: 0.7, Sparse: 0.2, Pattern: 0.0, Graph: 0.1}
		assert.Equal(t, w, w.Normalize())
	})

	t.Run("within tolerance unchanged", func(t *testing.T) {
		w := SearchWeights{Dense: 0.7, Sparse: 0.2, Pattern: 0.005, Graph: 0.1}
		assert.Equal(t, w, w.Normalize())
	})

	t.Run("preserves proportions", func(t *testing.T) {
		got := SearchWeights{Dense: 2, Sparse: 1, Pattern: 1, Graph: 0}.Normalize()

		assert.InDelta(t, 0.5, got.Dense, 1e-9)
		assert.InDelta(t, 0.25, got.Sparse, 1e-9)
		assert.InDelta(t, 0.25, got.Pattern, 1e-9)
		assert.InDelta(t, 0.0, got.Graph, 1e-9)
		assert.True(t, got.Valid())
	})

	t.Run("zero sum yields uniform", func(t *testing.T) {
		got := SearchWeights{}.Normalize()

		assert.Equal(t, SearchWeights{Dense: 0.25, Sparse: 0.25, Pattern: 0.25, Graph: 0.25}, got)
	})
}

func TestSearchWeights_For(t *testing.T) {
	w := SearchWeights{Dense: 0.1, Sparse: 0.2, Pattern: 0.3, Graph: 0.4}

	assert.Equal(t, 0.1, w.For(StrategyDense))
	assert.Equal(t, 0.2, w.For(StrategySparse))
	assert.Equal(t, 0.3, w.For(StrategyPattern))
	assert.Equal(t, 0.4, w.For(StrategyGraph))
	assert.Equal(t, 0.0, w.For("unknown"))
}

func TestPresetWeights_AllValid(t *testing.T) {
	types := []QueryType{
		QueryTypeConceptual, QueryTypeIdentifier, QueryTypeRelationship,
		QueryTypeFuzzy, QueryTypePattern, QueryTypeMixed,
	}
	for _, qt := range types {
		t.Run(string(qt), func(t *testing.T) {
			assert.True(t, PresetWeights(qt).Valid())
		})
	}
}

func TestPresetWeights_DominantStrategy(t *testing.T) {
	assert.Equal(t, 0.7, PresetWeights(QueryTypeConceptual).Dense)
	assert.Equal(t, 0.5, PresetWeights(QueryTypeIdentifier).Sparse)
	assert.Equal(t, 0.6, PresetWeights(QueryTypeRelationship).Graph)
	assert.Equal(t, 0.6, PresetWeights(QueryTypeFuzzy).Pattern)
	assert.Equal(t, 0.7, PresetWeights(QueryTypePattern).Pattern)
}

func TestPresetWeights_UnknownGetsMixed(t *testing.T) {
	assert.Equal(t, PresetWeights(QueryTypeMixed), PresetWeights(QueryType("bogus")))
}

func TestAdjustWeights_Renormalizes(t *testing.T) {
	base := PresetWeights(QueryTypeConceptual)
	graph := 0.5

	got := AdjustWeights(base, PartialWeights{Graph: &graph})

	// 0.7 + 0.2 + 0.0 + 0.5 = 1.4, then each component divides by the sum.
	assert.InDelta(t, 0.7/1.4, got.Dense, 1e-9)
	assert.InDelta(t, 0.2/1.4, got.Sparse, 1e-9)
	assert.InDelta(t, 0.5/1.4, got.Graph, 1e-9)
	assert.True(t, got.Valid())
}

func TestAdjustWeights_NoOverrides(t *testing.T) {
	base := PresetWeights(QueryTypeIdentifier)

	got := AdjustWeights(base, PartialWeights{})

	assert.InDelta(t, base.Dense, got.Dense, 1e-9)
	assert.InDelta(t, base.Sparse, got.Sparse, 1e-9)
	assert.InDelta(t, base.Pattern, got.Pattern, 1e-9)
	assert.InDelta(t, base.Graph, got.Graph, 1e-9)
}

func TestAdjustWeights_AllZeroYieldsUniform(t *testing.T) {
	zero := 0.0
	got := AdjustWeights(SearchWeights{Dense: 1.0}, PartialWeights{Dense: &zero})

	assert.Equal(t, SearchWeights{Dense: 0.25, Sparse: 0.25, Pattern: 0.25, Graph: 0.25}, got)
}

func TestValidQueryType(t *testing.T) {
	assert.True(t, ValidQueryType(QueryTypeConceptual))
	assert.True(t, ValidQueryType(QueryTypeMixed))
	assert.False(t, ValidQueryType(QueryType("semantic")))
	assert.False(t, ValidQueryType(QueryType("")))
}

func TestStrategies_CanonicalOrder(t *testing.T) {
	assert.Equal(t, []string{"dense", "sparse", "pattern", "graph"}, Strategies)
}
