package store

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/quarrylabs/quarry/internal/fuzzy"
)

// patternTermRegex extracts candidate terms for the pattern index. It keeps
// identifier punctuation (underscores, dots, dashes) so tokens like
// "get_user_by_id" and "config.yaml" stay whole for edit-distance matching.
var patternTermRegex = regexp.MustCompile(`[A-Za-z0-9_@][A-Za-z0-9_.\-/]*`)

// patternMinTermLen filters out terms too short to match approximately.
const patternMinTermLen = 3

// TrigramIndex implements PatternIndex entirely in memory. It is rebuilt
// from the metadata store at startup rather than persisted; document terms
// feed a trigram inverted index used to prefilter candidates before the
// more expensive edit-distance rescoring.
type TrigramIndex struct {
	mu sync.RWMutex

	// term -> docIDs containing it
	termDocs map[string]map[string]struct{}

	// trigram -> terms containing it
	trigramTerms map[string]map[string]struct{}

	// docID -> terms, kept for deletion
	docTerms map[string]map[string]struct{}

	// docID -> repo, for repo scoping
	docRepo map[string]string

	closed bool
}

var _ PatternIndex = (*TrigramIndex)(nil)

// NewTrigramIndex creates an empty in-memory pattern index.
func NewTrigramIndex() *TrigramIndex {
	return &TrigramIndex{
		termDocs:     make(map[string]map[string]struct{}),
		trigramTerms: make(map[string]map[string]struct{}),
		docTerms:     make(map[string]map[string]struct{}),
		docRepo:      make(map[string]string),
	}
}

// Index adds documents, extracting and registering their terms. Re-indexing
// an existing document replaces its previous terms.
func (t *TrigramIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("index is closed")
	}

	for _, doc := range docs {
		if _, exists := t.docTerms[doc.ID]; exists {
			t.removeDocLocked(doc.ID)
		}

		terms := extractPatternTerms(doc.Content)
		docSet := make(map[string]struct{}, len(terms))
		for _, term := range terms {
			docSet[term] = struct{}{}
			t.addTermLocked(term, doc.ID)
		}
		t.docTerms[doc.ID] = docSet
		t.docRepo[doc.ID] = doc.Repo
	}

	return nil
}

// Search returns documents containing a term similar to the pattern.
// Candidate terms must share at least 30% of the pattern's trigrams before
// edit-distance rescoring; only terms at or above threshold survive, with a
// non-positive threshold selecting fuzzy.DefaultFuzzyThreshold. A
// document's similarity is the best over its matching terms. Results are
// ordered by descending similarity, then docID for determinism.
func (t *TrigramIndex) Search(ctx context.Context, pattern string, repos []string, limit int, threshold float64) ([]*PatternResult, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return nil, fmt.Errorf("index is closed")
	}

	pattern = strings.ToLower(strings.TrimSpace(pattern))
	if pattern == "" || limit <= 0 {
		return []*PatternResult{}, nil
	}
	if threshold <= 0 {
		threshold = fuzzy.DefaultFuzzyThreshold
	}

	queryTrigrams := fuzzy.GenerateTrigrams(pattern)
	if len(queryTrigrams) == 0 {
		return []*PatternResult{}, nil
	}

	// Trigram prefilter: count shared trigrams per candidate term.
	shared := make(map[string]int)
	for trigram := range queryTrigrams {
		for term := range t.trigramTerms[trigram] {
			shared[term]++
		}
	}

	repoSet := make(map[string]struct{}, len(repos))
	for _, repo := range repos {
		repoSet[repo] = struct{}{}
	}

	minShared := fuzzy.MinTrigramShare()
	docSim := make(map[string]float64)
	for term, count := range shared {
		if float64(count)/float64(len(queryTrigrams)) < minShared {
			continue
		}
		sim := fuzzy.SimilarityScore(pattern, term)
		if sim < threshold {
			continue
		}
		for docID := range t.termDocs[term] {
			if len(repoSet) > 0 {
				if _, ok := repoSet[t.docRepo[docID]]; !ok {
					continue
				}
			}
			if sim > docSim[docID] {
				docSim[docID] = sim
			}
		}
	}

	results := make([]*PatternResult, 0, len(docSim))
	for docID, sim := range docSim {
		results = append(results, &PatternResult{
			DocID:      docID,
			Repo:       t.docRepo[docID],
			Similarity: sim,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].DocID < results[j].DocID
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes documents and any terms that become orphaned.
func (t *TrigramIndex) Delete(ctx context.Context, docIDs []string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("index is closed")
	}

	for _, docID := range docIDs {
		t.removeDocLocked(docID)
	}
	return nil
}

// TermCount returns the number of distinct indexed terms.
func (t *TrigramIndex) TermCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed {
		return 0
	}
	return len(t.termDocs)
}

// Close releases the in-memory state.
func (t *TrigramIndex) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.termDocs = nil
	t.trigramTerms = nil
	t.docTerms = nil
	t.docRepo = nil
	return nil
}

func (t *TrigramIndex) addTermLocked(term, docID string) {
	docs, exists := t.termDocs[term]
	if !exists {
		docs = make(map[string]struct{})
		t.termDocs[term] = docs
		for trigram := range fuzzy.GenerateTrigrams(term) {
			terms, ok := t.trigramTerms[trigram]
			if !ok {
				terms = make(map[string]struct{})
				t.trigramTerms[trigram] = terms
			}
			terms[term] = struct{}{}
		}
	}
	docs[docID] = struct{}{}
}

func (t *TrigramIndex) removeDocLocked(docID string) {
	terms, exists := t.docTerms[docID]
	if !exists {
		return
	}

	for term := range terms {
		docs := t.termDocs[term]
		delete(docs, docID)
		if len(docs) == 0 {
			delete(t.termDocs, term)
			for trigram := range fuzzy.GenerateTrigrams(term) {
				if ts := t.trigramTerms[trigram]; ts != nil {
					delete(ts, term)
					if len(ts) == 0 {
						delete(t.trigramTerms, trigram)
					}
				}
			}
		}
	}

	delete(t.docTerms, docID)
	delete(t.docRepo, docID)
}

// extractPatternTerms pulls distinct lowercase terms out of document content.
func extractPatternTerms(content string) []string {
	raw := patternTermRegex.FindAllString(content, -1)
	seen := make(map[string]struct{}, len(raw))
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		lower := strings.ToLower(strings.Trim(token, "./-"))
		if len(lower) < patternMinTermLen {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		terms = append(terms, lower)
	}
	return terms
}
