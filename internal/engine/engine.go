// Package engine orchestrates the two-phase citation traversal and the
// independently paced abstract enrichment pass.
package engine

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/citegraph"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/domain"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/gemini"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/observability"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/ratelimit"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/store"
)

const (
	// DefaultFirstDegreeLimit caps citations loaded for the selected paper.
	DefaultFirstDegreeLimit = 300

	// DefaultSecondDegreeLimit caps citations loaded per first-degree paper.
	DefaultSecondDegreeLimit = 100

	// DefaultEnrichDelay spaces enrichment calls to stay near 15 requests
	// per minute.
	DefaultEnrichDelay = 4 * time.Second
)

// CitationSource loads papers and their citations from the graph API.
type CitationSource interface {
	GetPaper(ctx context.Context, id string) (*domain.Paper, error)
	GetCitations(ctx context.Context, paperID string, limit int) (*citegraph.CitationsResult, error)
}

// AbstractFetcher resolves a paper's abstract through the enrichment API.
type AbstractFetcher interface {
	FetchAbstract(ctx context.Context, apiKey, doiURL, title string) (string, error)
}

// NegativeCache remembers papers whose abstracts are known unavailable.
type NegativeCache interface {
	MarkUnavailable(ctx context.Context, paperID string) error
	IsUnavailable(ctx context.Context, paperID string) (bool, error)
}

// Config holds engine tuning. Zero values use the defaults above.
type Config struct {
	FirstDegreeLimit  int
	SecondDegreeLimit int
	// EnrichDelay is the fixed spacing between enrichment tasks.
	EnrichDelay time.Duration
}

// Engine runs expansion and enrichment passes against the shared store.
// At most one pass runs at a time; starting a second returns ErrPassActive.
type Engine struct {
	cfg     Config
	graph   CitationSource
	fetcher AbstractFetcher
	cache   NegativeCache
	store   *store.Store
	queue   *ratelimit.TaskQueue
	logger  zerolog.Logger
	metrics *observability.Metrics

	passActive atomic.Bool
}

// New builds an engine. The task queue is owned by the engine and stopped
// with Close.
func New(cfg Config, graph CitationSource, fetcher AbstractFetcher, cache NegativeCache, st *store.Store, logger zerolog.Logger, metrics *observability.Metrics) *Engine {
	if cfg.FirstDegreeLimit <= 0 {
		cfg.FirstDegreeLimit = DefaultFirstDegreeLimit
	}
	if cfg.SecondDegreeLimit <= 0 {
		cfg.SecondDegreeLimit = DefaultSecondDegreeLimit
	}
	if cfg.EnrichDelay <= 0 {
		cfg.EnrichDelay = DefaultEnrichDelay
	}

	return &Engine{
		cfg:     cfg,
		graph:   graph,
		fetcher: fetcher,
		cache:   cache,
		store:   st,
		queue:   ratelimit.NewTaskQueue(cfg.EnrichDelay),
		logger:  logger.With().Str("component", "engine").Logger(),
		metrics: metrics,
	}
}

// Close stops the enrichment task queue.
func (e *Engine) Close() {
	e.queue.Close()
}

// beginPass claims the single pass slot.
func (e *Engine) beginPass() error {
	if !e.passActive.CompareAndSwap(false, true) {
		return domain.ErrPassActive
	}
	return nil
}

func (e *Engine) endPass() {
	e.passActive.Store(false)
}

// SelectPaper clears all graph state, then loads the paper and its
// first-degree citations into the store. A failed load leaves the store
// empty rather than mixing old and new state.
func (e *Engine) SelectPaper(ctx context.Context, paperID string) (*domain.Paper, error) {
	e.store.Reset()

	paper, err := e.graph.GetPaper(ctx, paperID)
	if err != nil {
		return nil, fmt.Errorf("load selected paper: %w", err)
	}
	e.store.SetSelectedPaper(*paper)

	firstDegree, err := e.LoadFirstDegree(ctx, paperID)
	if err != nil {
		e.store.Reset()
		return nil, err
	}
	e.store.SetFirstDegree(firstDegree)
	return paper, nil
}

// LoadFirstDegree fetches the selected paper's citations in one call.
// Failure is fatal, no partial result is returned.
func (e *Engine) LoadFirstDegree(ctx context.Context, paperID string) ([]domain.Citation, error) {
	result, err := e.graph.GetCitations(ctx, paperID, e.cfg.FirstDegreeLimit)
	if err != nil {
		return nil, fmt.Errorf("load first-degree citations: %w", err)
	}
	e.logger.Info().Str("paper_id", paperID).Int("citations", len(result.Citations)).
		Msg("loaded first-degree citations")
	return result.Citations, nil
}

// ExpandSecondDegree fetches citations for every first-degree paper with a
// positive citation count. Per-item failures are recorded as empty lists
// and never abort the pass. The returned map has exactly one key per
// eligible paper. Only ErrPassActive is returned as an error.
func (e *Engine) ExpandSecondDegree(ctx context.Context, firstDegree []domain.Citation, onProgress domain.ProgressFunc) (map[string][]domain.Citation, error) {
	if err := e.beginPass(); err != nil {
		return nil, err
	}
	defer e.endPass()

	start := time.Now()

	eligible := make([]domain.Citation, 0, len(firstDegree))
	for _, c := range firstDegree {
		if c.CitationCount > 0 {
			eligible = append(eligible, c)
		}
	}
	total := len(eligible)

	e.report(onProgress, domain.ProgressState{Current: 0, Total: total})

	results := make(map[string][]domain.Citation, total)
	for i, paper := range eligible {
		e.report(onProgress, domain.ProgressState{
			Current:      i,
			Total:        total,
			CurrentPaper: paper.DisplayTitle(),
		})

		page, err := e.graph.GetCitations(ctx, paper.PaperID, e.cfg.SecondDegreeLimit)
		if err != nil {
			e.logger.Warn().Err(err).Str("paper_id", paper.PaperID).
				Msg("second-degree fetch failed, recording empty list")
			results[paper.PaperID] = []domain.Citation{}
			e.store.SetSecondDegree(paper.PaperID, nil)
			e.countExpansion("failed")
			continue
		}

		results[paper.PaperID] = page.Citations
		e.store.SetSecondDegree(paper.PaperID, page.Citations)
		e.countExpansion("ok")
	}

	e.report(onProgress, domain.ProgressState{Current: total, Total: total, IsComplete: true})

	if e.metrics != nil {
		e.metrics.ExpansionDuration.Observe(time.Since(start).Seconds())
	}
	e.logger.Info().Int("papers", total).Dur("elapsed", time.Since(start)).
		Msg("second-degree expansion complete")
	return results, nil
}

// EligibleForEnrichment filters papers to those worth sending to the
// enrichment API: no abstract, a DOI to search for, not already attempted,
// and no cached negative result.
func (e *Engine) EligibleForEnrichment(ctx context.Context, papers []domain.Paper) ([]domain.Paper, error) {
	eligible := make([]domain.Paper, 0, len(papers))
	for _, p := range papers {
		if p.HasAbstract() || p.AbstractFetchedViaGemini || p.DOI() == "" {
			continue
		}
		cached, err := e.cache.IsUnavailable(ctx, p.PaperID)
		if err != nil {
			return nil, fmt.Errorf("check negative cache: %w", err)
		}
		if cached {
			continue
		}
		eligible = append(eligible, p)
	}
	return eligible, nil
}

// BackfillAbstracts runs the enrichment pass over the given papers, one task
// at a time through the spacing queue. Item failures are absorbed into the
// per-item results; only a missing credential or an already running pass is
// an error.
func (e *Engine) BackfillAbstracts(ctx context.Context, papers []domain.Paper, apiKey string, onProgress domain.ProgressFunc) ([]domain.AbstractFetchResult, error) {
	if apiKey == "" {
		return nil, domain.ErrMissingCredential
	}
	if err := e.beginPass(); err != nil {
		return nil, err
	}
	defer e.endPass()

	total := len(papers)
	e.report(onProgress, domain.ProgressState{Current: 0, Total: total})

	results := make([]domain.AbstractFetchResult, 0, total)
	for i, paper := range papers {
		e.report(onProgress, domain.ProgressState{
			Current:      i,
			Total:        total,
			CurrentPaper: paper.DisplayTitle(),
		})

		result := domain.AbstractFetchResult{PaperID: paper.PaperID, Title: paper.DisplayTitle()}

		p := paper
		submitErr := e.queue.Submit(ctx, func() {
			result = e.enrichOne(ctx, p, apiKey)
		})
		if submitErr != nil {
			result.Status = domain.AbstractFetchFailed
			result.Error = submitErr.Error()
		}

		results = append(results, result)
		e.countEnrichment(result.Status)
	}

	e.report(onProgress, domain.ProgressState{Current: total, Total: total, IsComplete: true})
	return results, nil
}

// enrichOne fetches and classifies one paper's abstract, updating the store
// and the negative cache.
func (e *Engine) enrichOne(ctx context.Context, paper domain.Paper, apiKey string) domain.AbstractFetchResult {
	result := domain.AbstractFetchResult{PaperID: paper.PaperID, Title: paper.DisplayTitle()}
	logger := observability.WithPaperContext(e.logger, paper.PaperID, paper.DisplayTitle())

	text, err := e.fetcher.FetchAbstract(ctx, apiKey, paper.DOIURL(), paper.DisplayTitle())
	switch {
	case err != nil:
		// Failed fetches are suppressed from future passes the same way
		// confirmed misses are; the result keeps the error for reporting.
		result.Status = domain.AbstractFetchFailed
		result.Error = err.Error()
		e.markUnavailable(ctx, paper.PaperID, logger)
		e.store.ApplyAbstract(paper.PaperID, nil, true)
		logger.Warn().Err(err).Msg("abstract fetch failed")

	case gemini.IsAbstractNotFound(text):
		result.Status = domain.AbstractFetchNotFound
		e.markUnavailable(ctx, paper.PaperID, logger)
		e.store.ApplyAbstract(paper.PaperID, nil, true)
		logger.Debug().Msg("abstract reported not found")

	default:
		result.Status = domain.AbstractFetchSuccess
		e.store.ApplyAbstract(paper.PaperID, &text, true)
		logger.Debug().Int("length", len(text)).Msg("abstract backfilled")
	}
	return result
}

func (e *Engine) markUnavailable(ctx context.Context, paperID string, logger zerolog.Logger) {
	if err := e.cache.MarkUnavailable(ctx, paperID); err != nil {
		logger.Error().Err(err).Msg("failed to persist negative marker")
	}
}

// report publishes progress to the store and the optional callback.
func (e *Engine) report(onProgress domain.ProgressFunc, p domain.ProgressState) {
	e.store.SetProgress(p)
	if onProgress != nil {
		onProgress(p)
	}
}

func (e *Engine) countExpansion(outcome string) {
	if e.metrics != nil {
		e.metrics.ExpansionItems.WithLabelValues(outcome).Inc()
	}
}

func (e *Engine) countEnrichment(status domain.AbstractFetchStatus) {
	if e.metrics != nil {
		e.metrics.EnrichmentResults.WithLabelValues(string(status)).Inc()
	}
}
