package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/citegraph"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/domain"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/store"
)

type fakeGraph struct {
	mu        sync.Mutex
	papers    map[string]domain.Paper
	citations map[string][]domain.Citation
	failIDs   map[string]bool
	block     chan struct{}
	calls     []string
}

func (f *fakeGraph) GetPaper(ctx context.Context, id string) (*domain.Paper, error) {
	p, ok := f.papers[id]
	if !ok {
		return nil, domain.NewNotFoundError("paper", id)
	}
	return &p, nil
}

func (f *fakeGraph) GetCitations(ctx context.Context, paperID string, limit int) (*citegraph.CitationsResult, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls = append(f.calls, paperID)
	f.mu.Unlock()

	if f.failIDs[paperID] {
		return nil, domain.NewExternalAPIError("Semantic Scholar", 500, "boom", nil)
	}
	cits := f.citations[paperID]
	if limit < len(cits) {
		cits = cits[:limit]
	}
	return &citegraph.CitationsResult{Citations: cits}, nil
}

type fakeFetcher struct {
	mu      sync.Mutex
	results map[string]string
	errIDs  map[string]bool
	calls   []string
}

func (f *fakeFetcher) FetchAbstract(ctx context.Context, apiKey, doiURL, title string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, title)
	f.mu.Unlock()

	if f.errIDs[title] {
		return "", domain.NewExternalAPIError("Gemini", 503, "unavailable", nil)
	}
	return f.results[title], nil
}

type fakeCache struct {
	mu     sync.Mutex
	marked map[string]bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{marked: make(map[string]bool)}
}

func (f *fakeCache) MarkUnavailable(ctx context.Context, paperID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked[paperID] = true
	return nil
}

func (f *fakeCache) IsUnavailable(ctx context.Context, paperID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marked[paperID], nil
}

func citing(id string, count int) domain.Citation {
	return domain.Citation{PaperID: id, Title: "Paper " + id, CitationCount: count}
}

func withDOI(p domain.Paper) domain.Paper {
	p.ExternalIDs = &domain.ExternalIDs{DOI: "10.1/" + p.PaperID}
	return p
}

func newTestEngine(t *testing.T, graph *fakeGraph, fetcher *fakeFetcher, cache *fakeCache) (*Engine, *store.Store) {
	t.Helper()
	st := store.New()
	e := New(Config{EnrichDelay: time.Millisecond}, graph, fetcher, cache, st, zerolog.Nop(), nil)
	t.Cleanup(e.Close)
	return e, st
}

func TestSelectPaper(t *testing.T) {
	ctx := context.Background()

	t.Run("loads paper and first degree", func(t *testing.T) {
		graph := &fakeGraph{
			papers:    map[string]domain.Paper{"root": {PaperID: "root", Title: "Root"}},
			citations: map[string][]domain.Citation{"root": {citing("a", 1), citing("b", 0)}},
		}
		e, st := newTestEngine(t, graph, &fakeFetcher{}, newFakeCache())

		paper, err := e.SelectPaper(ctx, "root")
		require.NoError(t, err)
		assert.Equal(t, "Root", paper.Title)

		snap := st.Snapshot()
		require.NotNil(t, snap.SelectedPaper)
		assert.Len(t, snap.FirstDegree, 2)
	})

	t.Run("failed citation load leaves no partial state", func(t *testing.T) {
		graph := &fakeGraph{
			papers:  map[string]domain.Paper{"root": {PaperID: "root", Title: "Root"}},
			failIDs: map[string]bool{"root": true},
		}
		e, st := newTestEngine(t, graph, &fakeFetcher{}, newFakeCache())

		_, err := e.SelectPaper(ctx, "root")
		require.Error(t, err)

		snap := st.Snapshot()
		assert.Nil(t, snap.SelectedPaper)
		assert.Empty(t, snap.FirstDegree)
	})

	t.Run("unknown paper", func(t *testing.T) {
		e, _ := newTestEngine(t, &fakeGraph{papers: map[string]domain.Paper{}}, &fakeFetcher{}, newFakeCache())

		_, err := e.SelectPaper(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestExpandSecondDegree(t *testing.T) {
	ctx := context.Background()

	t.Run("filters zero-citation papers and records every eligible id", func(t *testing.T) {
		firstDegree := []domain.Citation{citing("a", 5), citing("b", 0), citing("c", 2)}
		graph := &fakeGraph{
			citations: map[string][]domain.Citation{
				"a": {citing("x", 0)},
				"c": {citing("y", 0), citing("z", 0)},
			},
		}
		e, st := newTestEngine(t, graph, &fakeFetcher{}, newFakeCache())
		st.SetFirstDegree(firstDegree)

		results, err := e.ExpandSecondDegree(ctx, firstDegree, nil)
		require.NoError(t, err)

		assert.Len(t, results, 2)
		assert.Contains(t, results, "a")
		assert.Contains(t, results, "c")
		assert.NotContains(t, results, "b", "zero-citation paper must be skipped")
		assert.Equal(t, []string{"a", "c"}, graph.calls)

		snap := st.Snapshot()
		assert.Len(t, snap.SecondDegree["c"], 2)
	})

	t.Run("per-item failure is isolated as empty list", func(t *testing.T) {
		firstDegree := []domain.Citation{citing("a", 1), citing("bad", 1), citing("c", 1)}
		graph := &fakeGraph{
			citations: map[string][]domain.Citation{
				"a": {citing("x", 0)},
				"c": {citing("y", 0)},
			},
			failIDs: map[string]bool{"bad": true},
		}
		e, st := newTestEngine(t, graph, &fakeFetcher{}, newFakeCache())
		st.SetFirstDegree(firstDegree)

		results, err := e.ExpandSecondDegree(ctx, firstDegree, nil)
		require.NoError(t, err, "item failures never fail the pass")

		require.Contains(t, results, "bad")
		assert.Empty(t, results["bad"])
		assert.Len(t, results["a"], 1)
		assert.Len(t, results["c"], 1)
	})

	t.Run("progress sequence", func(t *testing.T) {
		firstDegree := []domain.Citation{citing("a", 1), citing("b", 1)}
		graph := &fakeGraph{citations: map[string][]domain.Citation{}}
		e, st := newTestEngine(t, graph, &fakeFetcher{}, newFakeCache())
		st.SetFirstDegree(firstDegree)

		var updates []domain.ProgressState
		_, err := e.ExpandSecondDegree(ctx, firstDegree, func(p domain.ProgressState) {
			updates = append(updates, p)
		})
		require.NoError(t, err)

		require.Len(t, updates, 4)
		assert.Equal(t, domain.ProgressState{Current: 0, Total: 2}, updates[0])
		assert.Equal(t, "Paper a", updates[1].CurrentPaper)
		assert.Equal(t, 1, updates[2].Current)
		assert.Equal(t, domain.ProgressState{Current: 2, Total: 2, IsComplete: true}, updates[3])

		assert.True(t, st.Progress().IsComplete)
	})

	t.Run("empty eligible set completes immediately", func(t *testing.T) {
		firstDegree := []domain.Citation{citing("a", 0)}
		e, _ := newTestEngine(t, &fakeGraph{}, &fakeFetcher{}, newFakeCache())

		var final domain.ProgressState
		results, err := e.ExpandSecondDegree(ctx, firstDegree, func(p domain.ProgressState) { final = p })
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Equal(t, domain.ProgressState{Current: 0, Total: 0, IsComplete: true}, final)
	})

	t.Run("second pass rejected while one runs", func(t *testing.T) {
		block := make(chan struct{})
		graph := &fakeGraph{
			citations: map[string][]domain.Citation{},
			block:     block,
		}
		e, _ := newTestEngine(t, graph, &fakeFetcher{}, newFakeCache())

		started := make(chan struct{})
		go func() {
			close(started)
			_, _ = e.ExpandSecondDegree(ctx, []domain.Citation{citing("a", 1)}, nil)
		}()
		<-started
		time.Sleep(20 * time.Millisecond)

		_, err := e.ExpandSecondDegree(ctx, []domain.Citation{citing("b", 1)}, nil)
		assert.ErrorIs(t, err, domain.ErrPassActive)

		close(block)
	})
}

func TestEligibleForEnrichment(t *testing.T) {
	ctx := context.Background()
	cache := newFakeCache()
	require.NoError(t, cache.MarkUnavailable(ctx, "cached"))

	e, _ := newTestEngine(t, &fakeGraph{}, &fakeFetcher{}, cache)

	hasAbstract := withDOI(citing("withabs", 0))
	text := "existing"
	hasAbstract.Abstract = &text

	attempted := withDOI(citing("tried", 0))
	attempted.AbstractFetchedViaGemini = true

	papers := []domain.Paper{
		withDOI(citing("ok", 0)),
		hasAbstract,
		citing("nodoi", 0),
		attempted,
		withDOI(citing("cached", 0)),
	}

	eligible, err := e.EligibleForEnrichment(ctx, papers)
	require.NoError(t, err)
	require.Len(t, eligible, 1)
	assert.Equal(t, "ok", eligible[0].PaperID)
}

func TestBackfillAbstracts(t *testing.T) {
	ctx := context.Background()

	t.Run("classifies success, not found and failed", func(t *testing.T) {
		papers := []domain.Paper{
			withDOI(citing("good", 0)),
			withDOI(citing("missing", 0)),
			withDOI(citing("broken", 0)),
		}
		fetcher := &fakeFetcher{
			results: map[string]string{
				"Paper good":    "A real abstract.",
				"Paper missing": "abstract not found",
			},
			errIDs: map[string]bool{"Paper broken": true},
		}
		cache := newFakeCache()
		e, st := newTestEngine(t, &fakeGraph{}, fetcher, cache)
		st.SetFirstDegree(papers)

		results, err := e.BackfillAbstracts(ctx, papers, "key", nil)
		require.NoError(t, err)
		require.Len(t, results, 3)

		assert.Equal(t, domain.AbstractFetchSuccess, results[0].Status)
		assert.Equal(t, domain.AbstractFetchNotFound, results[1].Status)
		assert.Equal(t, domain.AbstractFetchFailed, results[2].Status)
		assert.NotEmpty(t, results[2].Error)

		// Negative markers persist for not_found and failed, never success.
		assert.False(t, cache.marked["good"])
		assert.True(t, cache.marked["missing"])
		assert.True(t, cache.marked["broken"])

		snap := st.Snapshot()
		require.NotNil(t, snap.FirstDegree[0].Abstract)
		assert.Equal(t, "A real abstract.", *snap.FirstDegree[0].Abstract)
		assert.Nil(t, snap.FirstDegree[1].Abstract)
		assert.True(t, snap.FirstDegree[1].AbstractFetchedViaGemini)
		assert.Nil(t, snap.FirstDegree[2].Abstract)
		assert.True(t, snap.FirstDegree[2].AbstractFetchedViaGemini)
	})

	t.Run("missing credential", func(t *testing.T) {
		e, _ := newTestEngine(t, &fakeGraph{}, &fakeFetcher{}, newFakeCache())

		_, err := e.BackfillAbstracts(ctx, []domain.Paper{withDOI(citing("a", 0))}, "", nil)
		assert.ErrorIs(t, err, domain.ErrMissingCredential)
	})

	t.Run("final progress reported even when every item fails", func(t *testing.T) {
		papers := []domain.Paper{withDOI(citing("a", 0)), withDOI(citing("b", 0))}
		fetcher := &fakeFetcher{errIDs: map[string]bool{"Paper a": true, "Paper b": true}}
		e, st := newTestEngine(t, &fakeGraph{}, fetcher, newFakeCache())
		st.SetFirstDegree(papers)

		results, err := e.BackfillAbstracts(ctx, papers, "key", nil)
		require.NoError(t, err)
		assert.Len(t, results, 2)
		assert.Equal(t, domain.ProgressState{Current: 2, Total: 2, IsComplete: true}, st.Progress())
	})

	t.Run("enrichment rejected while expansion runs", func(t *testing.T) {
		block := make(chan struct{})
		graph := &fakeGraph{citations: map[string][]domain.Citation{}, block: block}
		e, _ := newTestEngine(t, graph, &fakeFetcher{}, newFakeCache())

		go e.ExpandSecondDegree(ctx, []domain.Citation{citing("a", 1)}, nil)
		time.Sleep(20 * time.Millisecond)

		_, err := e.BackfillAbstracts(ctx, []domain.Paper{withDOI(citing("b", 0))}, "key", nil)
		assert.ErrorIs(t, err, domain.ErrPassActive)

		close(block)
	})
}

func TestPassGuardReleasesAfterCompletion(t *testing.T) {
	ctx := context.Background()
	graph := &fakeGraph{citations: map[string][]domain.Citation{}}
	e, _ := newTestEngine(t, graph, &fakeFetcher{}, newFakeCache())

	_, err := e.ExpandSecondDegree(ctx, []domain.Citation{citing("a", 1)}, nil)
	require.NoError(t, err)

	_, err = e.ExpandSecondDegree(ctx, []domain.Citation{citing("a", 1)}, nil)
	require.NoError(t, err, "guard must release once a pass finishes")
}

