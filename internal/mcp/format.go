package mcp

import (
	"github.com/quarrylabs/quarry/internal/search"
)

// toSearchOutput converts an engine response to the tool output schema.
func toSearchOutput(resp *search.Response) SearchOutput {
	output := SearchOutput{
		QueryType: string(resp.Analysis.QueryType),
		Results:   make([]SearchResultOutput, 0, len(resp.Results)),
		Coverage:  resp.Coverage,
	}
	if len(resp.Metrics.Degraded) > 0 {
		output.Degraded = resp.Metrics.Degraded
	}

	for _, r := range resp.Results {
		output.Results = append(output.Results, SearchResultOutput{
			ID:           r.ID,
			Repo:         r.Repo,
			Content:      r.Content,
			Score:        r.FusedScore,
			Sources:      r.Sources,
			MatchedTerms: r.MatchedTerms,
			Explanation:  r.Explanation,
		})
	}
	return output
}
