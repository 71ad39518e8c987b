package docchat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"docchat/internal/api"
	"docchat/internal/model"
)

const (
	// MinSimilarity is the lowest similarity a search result may have.
	MinSimilarity = 0.10

	// PreviewLength is the number of characters shown for a collapsed result.
	PreviewLength = 300

	duplicatePrefixLength = 150
	duplicateScoreDelta   = 0.05
)

// SearchOptions are the inputs of a search.
type SearchOptions struct {
	Query  string
	Author string
	Title  string
	Limit  int
	Expand bool // show full content instead of a truncated preview
}

// SearchResult is one ranked search match.
type SearchResult struct {
	ID         string
	Content    string
	Preview    string
	Filename   string
	Title      string
	Author     string
	Similarity float64 // 0..1
}

// ActivityRecorder appends audit entries. *DocumentProvider implements it.
type ActivityRecorder interface {
	AddActivity(ctx context.Context, kind model.ActivityKind, message string) error
}

// Searcher runs semantic searches and ranks the results.
type Searcher struct {
	backend    SearchBackend
	activities ActivityRecorder
	logger     Logger
}

// NewSearcher creates a Searcher. activities may be nil.
func NewSearcher(backend SearchBackend, activities ActivityRecorder, logger Logger) *Searcher {
	return &Searcher{backend: backend, activities: activities, logger: logger}
}

// Search runs the query and returns ranked, de-duplicated results. A search
// activity is recorded when a user is signed in.
func (s *Searcher) Search(ctx context.Context, opts SearchOptions) ([]SearchResult, error) {
	query := strings.TrimSpace(opts.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	resp, err := s.backend.Search(ctx, api.SearchParams{
		Query:  query,
		Author: strings.TrimSpace(opts.Author),
		Title:  strings.TrimSpace(opts.Title),
		Limit:  opts.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("searching: %w", err)
	}

	results := RankResults(resp.Hits(), opts.Expand)
	s.logger.Debug("search ranked", "query", query, "hits", len(resp.Hits()), "kept", len(results))

	if s.activities != nil {
		msg := fmt.Sprintf("Searched for %q (%d results)", query, len(results))
		if err := s.activities.AddActivity(ctx, model.ActivitySearch, msg); err != nil && !errors.Is(err, ErrNotAuthenticated) {
			s.logger.Warn("recording search activity failed", "error", err)
		}
	}
	return results, nil
}

// RankResults converts raw hits into results: similarity is 1 - distance
// clamped to [0,1], results under MinSimilarity are dropped, the rest are
// sorted by similarity descending, and a result is dropped when its first
// 150 characters match an already-kept result whose similarity is within 0.05.
func RankResults(hits []api.SearchHit, expand bool) []SearchResult {
	candidates := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		similarity := clamp01(1 - h.Distance)
		if similarity < MinSimilarity {
			continue
		}
		candidates = append(candidates, SearchResult{
			ID:         h.ID,
			Content:    h.Content,
			Preview:    Preview(h.Content, expand),
			Filename:   metadataString(h.Metadata, "filename"),
			Title:      metadataString(h.Metadata, "title"),
			Author:     metadataString(h.Metadata, "author"),
			Similarity: similarity,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Similarity > candidates[j].Similarity
	})

	kept := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		if isNearDuplicate(c, kept) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func isNearDuplicate(c SearchResult, kept []SearchResult) bool {
	prefix := runePrefix(c.Content, duplicatePrefixLength)
	for _, k := range kept {
		if runePrefix(k.Content, duplicatePrefixLength) != prefix {
			continue
		}
		diff := k.Similarity - c.Similarity
		if diff < 0 {
			diff = -diff
		}
		if diff < duplicateScoreDelta {
			return true
		}
	}
	return false
}

// Preview collapses whitespace and, unless expand is set, truncates to
// PreviewLength characters with a trailing ellipsis.
func Preview(text string, expand bool) string {
	cleaned := strings.Join(strings.Fields(text), " ")
	if expand {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= PreviewLength {
		return cleaned
	}
	return strings.TrimRight(string(runes[:PreviewLength]), " ") + "..."
}

func runePrefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func metadataString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}
