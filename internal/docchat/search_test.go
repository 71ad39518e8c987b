package docchat_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"docchat/internal/api"
	"docchat/internal/docchat"
	"docchat/internal/model"
	"docchat/internal/testutil"
)

func hit(id, content string, distance float64) api.SearchHit {
	return api.SearchHit{
		ID:       id,
		Content:  content,
		Distance: distance,
		Metadata: map[string]any{"filename": id + ".pdf", "title": "Title " + id, "author": "Author"},
	}
}

func resultIDs(results []docchat.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}

func TestRankResults(t *testing.T) {
	shared := strings.Repeat("shared prefix ", 20) // longer than the duplicate prefix

	tests := []struct {
		name string
		hits []api.SearchHit
		want []string
	}{
		{
			name: "sorts by similarity descending",
			hits: []api.SearchHit{hit("a", "alpha", 0.6), hit("b", "beta", 0.2), hit("c", "gamma", 0.4)},
			want: []string{"b", "c", "a"},
		},
		{
			name: "drops results under the similarity floor",
			hits: []api.SearchHit{hit("a", "alpha", 0.95), hit("b", "beta", 0.85)},
			want: []string{"b"},
		},
		{
			name: "keeps result just above the floor",
			hits: []api.SearchHit{hit("a", "alpha", 0.89)},
			want: []string{"a"},
		},
		{
			name: "clamps negative distance",
			hits: []api.SearchHit{hit("a", "alpha", -0.5), hit("b", "beta", 0.1)},
			want: []string{"a", "b"},
		},
		{
			name: "drops near duplicates",
			hits: []api.SearchHit{hit("a", shared+"one", 0.20), hit("b", shared+"two", 0.22)},
			want: []string{"a"},
		},
		{
			name: "keeps same prefix with distant scores",
			hits: []api.SearchHit{hit("a", shared+"one", 0.20), hit("b", shared+"two", 0.40)},
			want: []string{"a", "b"},
		},
		{
			name: "keeps similar scores with different content",
			hits: []api.SearchHit{hit("a", "alpha", 0.20), hit("b", "beta", 0.21)},
			want: []string{"a", "b"},
		},
		{
			name: "no hits",
			hits: nil,
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resultIDs(docchat.RankResults(tt.hits, false))
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("RankResults() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRankResults_Fields(t *testing.T) {
	results := docchat.RankResults([]api.SearchHit{hit("a", "some   text\nhere", 0.25)}, false)
	if len(results) != 1 {
		t.Fatalf("got %d results", len(results))
	}
	r := results[0]
	if r.Similarity != 0.75 {
		t.Errorf("Similarity = %v, want 0.75", r.Similarity)
	}
	if r.Filename != "a.pdf" || r.Title != "Title a" || r.Author != "Author" {
		t.Errorf("metadata = %q %q %q", r.Filename, r.Title, r.Author)
	}
	if r.Preview != "some text here" {
		t.Errorf("Preview = %q", r.Preview)
	}
	if r.Content != "some   text\nhere" {
		t.Errorf("Content = %q", r.Content)
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("word ", 100)

	got := docchat.Preview(long, false)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("collapsed preview %q lacks ellipsis", got)
	}
	if n := len([]rune(strings.TrimSuffix(got, "..."))); n > docchat.PreviewLength {
		t.Errorf("preview has %d characters, want <= %d", n, docchat.PreviewLength)
	}

	if got := docchat.Preview(long, true); got != strings.TrimSpace(long) {
		t.Errorf("expanded preview truncated: %d chars", len(got))
	}
	if got := docchat.Preview("short", false); got != "short" {
		t.Errorf("Preview(short) = %q", got)
	}
}

type activityLog struct {
	kinds    []string
	messages []string
	err      error
}

func (l *activityLog) AddActivity(ctx context.Context, kind model.ActivityKind, message string) error {
	if l.err != nil {
		return l.err
	}
	l.kinds = append(l.kinds, string(kind))
	l.messages = append(l.messages, message)
	return nil
}

func TestSearcher_Search(t *testing.T) {
	ctx := context.Background()

	t.Run("ranks backend results and records activity", func(t *testing.T) {
		client, fake := newTestClient(t)
		fake.SetSearchHits(
			testutil.FakeSearchHit{ID: "1", Content: "low", Distance: 0.7, Filename: "a.pdf", Author: "Ann"},
			testutil.FakeSearchHit{ID: "2", Content: "high", Distance: 0.1, Filename: "b.pdf", Author: "Ann"},
			testutil.FakeSearchHit{ID: "3", Content: "noise", Distance: 0.95, Filename: "c.pdf", Author: "Ann"},
		)
		log := &activityLog{}
		s := docchat.NewSearcher(client, log, docchat.NewNopLogger())

		results, err := s.Search(ctx, docchat.SearchOptions{Query: " budget ", Author: "Ann", Limit: 5})
		if err != nil {
			t.Fatalf("Search() error = %v", err)
		}
		if got := resultIDs(results); strings.Join(got, ",") != "2,1" {
			t.Errorf("results = %v, want [2 1]", got)
		}

		q := fake.LastRequest("/search").Query
		if q.Get("query") != "budget" || q.Get("filter_author") != "Ann" || q.Get("n_results") != "5" {
			t.Errorf("search query = %v", q)
		}
		if len(log.messages) != 1 || log.kinds[0] != "search" || log.messages[0] != `Searched for "budget" (2 results)` {
			t.Errorf("activities = %v", log.messages)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		client, fake := newTestClient(t)
		s := docchat.NewSearcher(client, nil, docchat.NewNopLogger())
		if _, err := s.Search(ctx, docchat.SearchOptions{Query: "  "}); !errors.Is(err, docchat.ErrEmptyQuery) {
			t.Errorf("error = %v, want ErrEmptyQuery", err)
		}
		if fake.Count("/search") != 0 {
			t.Error("empty query reached the backend")
		}
	})

	t.Run("signed out activity is ignored", func(t *testing.T) {
		client, _ := newTestClient(t)
		s := docchat.NewSearcher(client, &activityLog{err: docchat.ErrNotAuthenticated}, docchat.NewNopLogger())
		if _, err := s.Search(ctx, docchat.SearchOptions{Query: "anything"}); err != nil {
			t.Errorf("Search() error = %v", err)
		}
	})
}
