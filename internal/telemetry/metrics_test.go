package telemetry

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrylabs/quarry/internal/query"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		latency time.Duration
		want    LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{49 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{250 * time.Millisecond, BucketP500},
		{500 * time.Millisecond, BucketP1000},
		{2 * time.Second, BucketP1000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.latency), tt.latency.String())
	}
}

func TestCircularBuffer_OldestFirst(t *testing.T) {
	buf := NewCircularBuffer[int](3)

	buf.Add(1)
	buf.Add(2)

	assert.Equal(t, 2, buf.Size())
	assert.Equal(t, []int{1, 2}, buf.Items())
}

func TestCircularBuffer_Wraparound(t *testing.T) {
	buf := NewCircularBuffer[int](3)

	for i := 1; i <= 5; i++ {
		buf.Add(i)
	}

	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, []int{3, 4, 5}, buf.Items())
}

func TestCircularBuffer_Empty(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	assert.Equal(t, 0, buf.Size())
	assert.Empty(t, buf.Items())
}

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics()

	m.Record(QueryEvent{
		Query:       "payment retry",
		QueryType:   query.QueryTypeMixed,
		ResultCount: 5,
		Latency:     8 * time.Millisecond,
	})
	m.Record(QueryEvent{
		Query:       "payment timeout",
		QueryType:   query.QueryTypeConceptual,
		ResultCount: 0,
		Degraded:    1,
		Latency:     120 * time.Millisecond,
	})

	snap := m.Snapshot()

	assert.Equal(t, int64(2), snap.TotalQueries)
	assert.Equal(t, int64(1), snap.QueryTypeCounts[query.QueryTypeMixed])
	assert.Equal(t, int64(1), snap.QueryTypeCounts[query.QueryTypeConceptual])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"payment timeout"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.DegradedCount)
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), snap.LatencyDistribution[BucketP500])
	assert.False(t, snap.Since.IsZero())
}

func TestMetrics_TopTermsSortedByCount(t *testing.T) {
	m := NewMetrics()

	m.Record(QueryEvent{Query: "payment retry", ResultCount: 1})
	m.Record(QueryEvent{Query: "payment timeout", ResultCount: 1})

	snap := m.Snapshot()

	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "payment", Count: 2}, snap.TopTerms[0])
}

func TestMetrics_ZeroResultQueriesBounded(t *testing.T) {
	m := NewMetricsWithConfig(Config{ZeroResultsCapacity: 2})

	for i := 0; i < 4; i++ {
		m.Record(QueryEvent{Query: fmt.Sprintf("query-%d", i), ResultCount: 0})
	}

	snap := m.Snapshot()

	assert.Equal(t, int64(4), snap.ZeroResultCount)
	assert.Equal(t, []string{"query-2", "query-3"}, snap.ZeroResultQueries)
}

func TestSnapshot_ZeroResultPercentage(t *testing.T) {
	empty := &Snapshot{}
	assert.Equal(t, 0.0, empty.ZeroResultPercentage())

	snap := &Snapshot{TotalQueries: 4, ZeroResultCount: 1}
	assert.Equal(t, 25.0, snap.ZeroResultPercentage())
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"payment", "retry"}, ExtractTerms("Payment is retry"))
	assert.Nil(t, ExtractTerms("a b"))
	assert.Nil(t, ExtractTerms("   "))
}
