// Package telemetry collects local query metrics for search tuning. Nothing
// leaves the process; snapshots feed the stats command and the MCP
// index_status tool.
package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/quarrylabs/quarry/internal/query"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one search call as seen by telemetry.
type QueryEvent struct {
	Query       string
	QueryType   query.QueryType
	ResultCount int
	Degraded    int // Number of strategies that failed
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult reports whether this query returned nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add appends an item, evicting the oldest when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the buffer contents oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}

	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// TermCount pairs a query term with its frequency.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable view of collected metrics.
type Snapshot struct {
	QueryTypeCounts     map[query.QueryType]int64 `json:"query_type_counts"`
	TopTerms            []TermCount               `json:"top_terms"`
	ZeroResultQueries   []string                  `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64   `json:"latency_distribution"`
	TotalQueries        int64                     `json:"total_queries"`
	ZeroResultCount     int64                     `json:"zero_result_count"`
	DegradedCount       int64                     `json:"degraded_count"`
	Since               time.Time                 `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Config tunes the metrics collector.
type Config struct {
	TopTermsCapacity    int // Max distinct terms tracked (default: 100)
	ZeroResultsCapacity int // Max zero-result queries kept (default: 100)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 100,
	}
}

// Metrics collects query telemetry in memory. Thread-safe.
type Metrics struct {
	mu sync.RWMutex

	queryTypes      map[query.QueryType]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	totalQueries    int64
	zeroResultCount int64
	degradedCount   int64
	startTime       time.Time
}

// NewMetrics creates a collector with default configuration.
func NewMetrics() *Metrics {
	return NewMetricsWithConfig(DefaultConfig())
}

// NewMetricsWithConfig creates a collector with custom configuration.
func NewMetricsWithConfig(cfg Config) *Metrics {
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = 100
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = 100
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	return &Metrics{
		queryTypes:  make(map[query.QueryType]int64),
		topTerms:    topTerms,
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:   make(map[LatencyBucket]int64),
		startTime:   time.Now(),
	}
}

// Record captures one query event. Non-blocking.
func (m *Metrics) Record(event QueryEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.queryTypes[event.QueryType]++
	m.totalQueries++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
	}

	if event.IsZeroResult() {
		m.zeroResults.Add(event.Query)
		m.zeroResultCount++
	}
	if event.Degraded > 0 {
		m.degradedCount++
	}

	m.latencies[LatencyToBucket(event.Latency)]++
}

// Snapshot returns the current metrics.
func (m *Metrics) Snapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	typeCounts := make(map[query.QueryType]int64, len(m.queryTypes))
	for k, v := range m.queryTypes {
		typeCounts[k] = v
	}

	var topTerms []TermCount
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sort.Slice(topTerms, func(i, j int) bool {
		if topTerms[i].Count != topTerms[j].Count {
			return topTerms[i].Count > topTerms[j].Count
		}
		return topTerms[i].Term < topTerms[j].Term
	})

	latencies := make(map[LatencyBucket]int64, len(m.latencies))
	for k, v := range m.latencies {
		latencies[k] = v
	}

	return &Snapshot{
		QueryTypeCounts:     typeCounts,
		TopTerms:            topTerms,
		ZeroResultQueries:   m.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        m.totalQueries,
		ZeroResultCount:     m.zeroResultCount,
		DegradedCount:       m.degradedCount,
		Since:               m.startTime,
	}
}

// ExtractTerms extracts lowercase terms of length >= 3 from a query.
func ExtractTerms(queryText string) []string {
	queryText = strings.ToLower(strings.TrimSpace(queryText))
	if queryText == "" {
		return nil
	}

	var terms []string
	for _, w := range strings.Fields(queryText) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	if len(terms) == 0 {
		return nil
	}
	return terms
}
