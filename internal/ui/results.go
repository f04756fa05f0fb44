package ui

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/quarrylabs/quarry/internal/query"
	"github.com/quarrylabs/quarry/internal/search"
	"github.com/quarrylabs/quarry/internal/telemetry"
)

// snippetLimit caps result content shown in the terminal.
const snippetLimit = 400

// RenderResponse writes a search response to w.
func RenderResponse(w io.Writer, resp *search.Response, styles Styles) {
	fmt.Fprintf(w, "%s %s\n",
		styles.Label.Render("query type:"),
		styles.Repo.Render(string(resp.Analysis.QueryType)))

	if len(resp.Metrics.Skipped) > 0 {
		fmt.Fprintf(w, "%s %s\n",
			styles.Label.Render("skipped:"),
			styles.Dim.Render(strings.Join(resp.Metrics.Skipped, ", ")))
	}
	for _, strategy := range query.Strategies {
		if msg, ok := resp.Metrics.Degraded[strategy]; ok {
			fmt.Fprintf(w, "%s %s: %s\n",
				styles.Warning.Render("degraded"), strategy, msg)
		}
	}
	fmt.Fprintln(w)

	if len(resp.Results) == 0 {
		fmt.Fprintf(w, "No results for %q\n", resp.Query)
		return
	}

	for i, r := range resp.Results {
		renderResult(w, i+1, r, styles)
	}

	fmt.Fprintf(w, "%s %d result(s) in %s\n",
		styles.Label.Render("total:"),
		len(resp.Results),
		resp.Metrics.Timings.Total.Round(millisecond))
}

// renderResult writes one fused result.
func renderResult(w io.Writer, num int, r *search.FusedResult, styles Styles) {
	title := r.ID
	if r.Repo != "" {
		title = fmt.Sprintf("%s  %s", r.ID, styles.Repo.Render("["+r.Repo+"]"))
	}
	fmt.Fprintf(w, "%s %s  %s\n",
		styles.Title.Render(fmt.Sprintf("%d.", num)),
		title,
		styles.Score.Render(fmt.Sprintf("%.5f", r.FusedScore)))

	fmt.Fprintf(w, "   %s %s\n",
		styles.Label.Render("via:"),
		styles.Source.Render(formatSources(r.Sources)))

	if len(r.MatchedTerms) > 0 {
		fmt.Fprintf(w, "   %s %s\n",
			styles.Label.Render("matched:"),
			strings.Join(r.MatchedTerms, ", "))
	}
	if r.Explanation != "" {
		fmt.Fprintf(w, "   %s %s\n",
			styles.Label.Render("why:"),
			styles.Dim.Render(r.Explanation))
	}

	for _, line := range strings.Split(snippet(r.Content), "\n") {
		fmt.Fprintf(w, "   %s\n", line)
	}
	fmt.Fprintln(w)
}

// formatSources renders "strategy#rank" pairs in canonical strategy order.
func formatSources(sources map[string]int) string {
	parts := make([]string, 0, len(sources))
	for _, strategy := range query.Strategies {
		if rank, ok := sources[strategy]; ok {
			parts = append(parts, fmt.Sprintf("%s#%d", strategy, rank))
		}
	}
	return strings.Join(parts, " ")
}

// snippet truncates content for terminal display.
func snippet(content string) string {
	content = strings.TrimSpace(content)
	if len(content) <= snippetLimit {
		return content
	}
	return content[:snippetLimit] + "..."
}

// RenderStats writes index statistics to w.
func RenderStats(w io.Writer, stats *search.EngineStats, styles Styles) {
	fmt.Fprintln(w, styles.Header.Render("Index"))
	fmt.Fprintf(w, "  %s %d\n", styles.Label.Render("chunks:"), stats.ChunkCount)
	fmt.Fprintf(w, "  %s %d\n", styles.Label.Render("vectors:"), stats.VectorCount)
	if stats.SparseStats != nil {
		fmt.Fprintf(w, "  %s %d docs, %d terms\n",
			styles.Label.Render("sparse:"),
			stats.SparseStats.DocumentCount, stats.SparseStats.TermCount)
	}
	fmt.Fprintf(w, "  %s %d terms\n", styles.Label.Render("patterns:"), stats.PatternTerms)
	fmt.Fprintf(w, "  %s %d entities, %d relations\n",
		styles.Label.Render("graph:"), stats.EntityCount, stats.RelationCount)

	fmt.Fprintln(w, styles.Header.Render("Embedder"))
	fmt.Fprintf(w, "  %s %s (%d dims)\n",
		styles.Label.Render("model:"), stats.EmbedderModel, stats.Dimensions)
}

// RenderMetrics writes a telemetry snapshot to w.
func RenderMetrics(w io.Writer, snap *telemetry.Snapshot, styles Styles) {
	fmt.Fprintln(w, styles.Header.Render("Queries"))
	fmt.Fprintf(w, "  %s %d (%.1f%% zero-result, %d degraded)\n",
		styles.Label.Render("total:"),
		snap.TotalQueries, snap.ZeroResultPercentage(), snap.DegradedCount)

	if len(snap.QueryTypeCounts) > 0 {
		types := make([]string, 0, len(snap.QueryTypeCounts))
		for qt := range snap.QueryTypeCounts {
			types = append(types, string(qt))
		}
		sort.Strings(types)
		fmt.Fprintln(w, styles.Header.Render("Query types"))
		for _, qt := range types {
			fmt.Fprintf(w, "  %s %d\n",
				styles.Label.Render(qt+":"),
				snap.QueryTypeCounts[query.QueryType(qt)])
		}
	}

	if len(snap.TopTerms) > 0 {
		fmt.Fprintln(w, styles.Header.Render("Top terms"))
		terms := snap.TopTerms
		if len(terms) > 10 {
			terms = terms[:10]
		}
		for _, tc := range terms {
			fmt.Fprintf(w, "  %s %d\n", styles.Label.Render(tc.Term+":"), tc.Count)
		}
	}

	if len(snap.LatencyDistribution) > 0 {
		fmt.Fprintln(w, styles.Header.Render("Latency"))
		for _, bucket := range []telemetry.LatencyBucket{
			telemetry.BucketP10, telemetry.BucketP50, telemetry.BucketP100,
			telemetry.BucketP500, telemetry.BucketP1000,
		} {
			if count, ok := snap.LatencyDistribution[bucket]; ok {
				fmt.Fprintf(w, "  %s %d\n", styles.Label.Render(string(bucket)+":"), count)
			}
		}
	}
}

const millisecond = 1000000 // nanoseconds
