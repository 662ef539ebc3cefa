package citegraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/domain"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/observability"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/ratelimit"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the server's per-request maximum for citation pages.
	DefaultPageSize = 100

	// DefaultSearchLimit is the default number of search results.
	DefaultSearchLimit = 10

	// DefaultSearchRetryCeiling bounds the total wall-clock time spent
	// retrying a rate-limited search before failing permanently.
	DefaultSearchRetryCeiling = 30 * time.Second

	// DefaultSearchMaxDelay caps the per-retry delay during a search.
	DefaultSearchMaxDelay = 5 * time.Second

	// apiKeyHeader is the header name for the Graph API key.
	apiKeyHeader = "x-api-key"

	// paperFields is the list of fields requested from the API.
	paperFields = "paperId,title,authors,year,venue,citationCount,url,abstract,externalIds"

	// sourceName is the human-readable name for this source.
	sourceName = "Semantic Scholar"
)

// Config contains configuration options for the Graph API client.
type Config struct {
	// BaseURL is the base URL for the API. Defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is the optional API key for authenticated requests.
	APIKey string

	// Timeout is the HTTP request timeout. Defaults to DefaultTimeout.
	Timeout time.Duration

	// MinInterval is the minimum spacing between API calls.
	// Defaults to one second (the unauthenticated service limit).
	MinInterval time.Duration

	// MaxRetries is the retry budget for rate-limited calls.
	MaxRetries int

	// PageSize is the citation page size. Defaults to DefaultPageSize.
	PageSize int

	// SearchRetryCeiling is the wall-clock retry budget for searches.
	SearchRetryCeiling time.Duration

	// SearchMaxDelay caps the per-retry delay for searches.
	SearchMaxDelay time.Duration
}

// SearchResult is the flattened result of a paper search.
type SearchResult struct {
	Papers []domain.Paper
	Total  int
}

// CitationsResult is the flattened, fully paginated result of a citation
// listing.
type CitationsResult struct {
	Citations []domain.Citation
}

// Client is the rate-limited Graph API client. Each Client owns its own
// Limiter; independent clients never share rate-limiting state.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	logger     zerolog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a Graph API client with the given configuration.
// The metrics parameter may be nil to disable instrumentation.
func NewClient(cfg Config, logger zerolog.Logger, metrics *observability.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.SearchRetryCeiling == 0 {
		cfg.SearchRetryCeiling = DefaultSearchRetryCeiling
	}
	if cfg.SearchMaxDelay == 0 {
		cfg.SearchMaxDelay = DefaultSearchMaxDelay
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			MinInterval: cfg.MinInterval,
			MaxRetries:  cfg.MaxRetries,
		}),
		logger:  logger.With().Str("component", "citegraph-client").Logger(),
		metrics: metrics,
	}
}

// SearchPapers queries the Graph API for papers matching query.
//
// Search is user-interactive, so instead of a fixed retry count it retries
// rate-limited attempts with an increasing delay (capped at SearchMaxDelay)
// until SearchRetryCeiling of wall-clock time has elapsed, then fails
// permanently. Non-rate-limit errors fail immediately.
func (c *Client) SearchPapers(ctx context.Context, query string, limit int) (*SearchResult, error) {
	if query == "" {
		return nil, domain.NewValidationError("query", "must not be empty")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	if c.metrics != nil {
		c.metrics.SearchesStarted.Inc()
	}
	start := time.Now()

	searchURL := fmt.Sprintf("%s/paper/search?query=%s&limit=%d&fields=%s",
		c.cfg.BaseURL, url.QueryEscape(query), limit, paperFields)

	delay := c.cfg.MinInterval
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var resp SearchResponse
		err := c.getJSON(ctx, searchURL, &resp)
		if err == nil {
			if c.metrics != nil {
				c.metrics.SearchDuration.Observe(time.Since(start).Seconds())
			}
			return &SearchResult{Papers: toPapers(resp.Data), Total: resp.Total}, nil
		}

		if !errors.Is(err, domain.ErrRateLimited) {
			if c.metrics != nil {
				c.metrics.SearchesFailed.Inc()
			}
			return nil, err
		}
		if c.metrics != nil {
			c.metrics.RateLimitRejections.WithLabelValues("graph").Inc()
		}

		if time.Since(start)+delay > c.cfg.SearchRetryCeiling {
			if c.metrics != nil {
				c.metrics.SearchesFailed.Inc()
			}
			return nil, domain.NewAppError(domain.ErrorKindRateLimit,
				fmt.Sprintf("search retry budget of %s exhausted", c.cfg.SearchRetryCeiling), err)
		}

		c.logger.Debug().Dur("delay", delay).Msg("search rate limited, retrying")
		if sleepErr := sleepCtx(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
		delay *= 2
		if delay > c.cfg.SearchMaxDelay {
			delay = c.cfg.SearchMaxDelay
		}
	}
}

// GetPaper retrieves a single paper by its Graph API identifier.
func (c *Client) GetPaper(ctx context.Context, id string) (*domain.Paper, error) {
	if id == "" {
		return nil, domain.NewValidationError("paperId", "must not be empty")
	}

	paperURL := fmt.Sprintf("%s/paper/%s?fields=%s", c.cfg.BaseURL, url.PathEscape(id), paperFields)

	result, err := ratelimit.Do(ctx, c.limiter, func(ctx context.Context) (*PaperResult, error) {
		var resp PaperResult
		if getErr := c.getJSON(ctx, paperURL, &resp); getErr != nil {
			return nil, getErr
		}
		return &resp, nil
	})
	if err != nil {
		return nil, err
	}

	paper := toPaper(*result)
	return &paper, nil
}

// GetCitations lists the papers citing paperID, transparently paginating the
// underlying page-limited endpoint until the requested limit is reached, a
// short page is returned, or the server signals no further pages. The result
// is truncated to exactly limit entries, in server page order, deduplicated
// by paper id. Each returned Citation is hoisted out of the API's nested
// citingPaper wrapper.
//
// Any page failure propagates to the caller; the orchestration layer decides
// whether that is fatal or degrades per item.
func (c *Client) GetCitations(ctx context.Context, paperID string, limit int) (*CitationsResult, error) {
	if paperID == "" {
		return nil, domain.NewValidationError("paperId", "must not be empty")
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}

	citations := make([]domain.Citation, 0, limit)
	seen := make(map[string]struct{}, limit)
	offset := 0

	for len(citations) < limit {
		pageSize := c.cfg.PageSize
		if remaining := limit - len(citations); remaining < pageSize {
			pageSize = remaining
		}

		pageURL := fmt.Sprintf("%s/paper/%s/citations?limit=%d&offset=%d&fields=%s",
			c.cfg.BaseURL, url.PathEscape(paperID), pageSize, offset, paperFields)

		page, err := ratelimit.Do(ctx, c.limiter, func(ctx context.Context) (*CitationsResponse, error) {
			var resp CitationsResponse
			if getErr := c.getJSON(ctx, pageURL, &resp); getErr != nil {
				return nil, getErr
			}
			return &resp, nil
		})
		if err != nil {
			return nil, err
		}

		if c.metrics != nil {
			c.metrics.CitationPagesFetched.Inc()
			c.metrics.CitationsFetched.Add(float64(len(page.Data)))
		}

		for _, entry := range page.Data {
			if entry.CitingPaper.PaperID == "" {
				continue
			}
			if _, dup := seen[entry.CitingPaper.PaperID]; dup {
				continue
			}
			seen[entry.CitingPaper.PaperID] = struct{}{}
			citations = append(citations, toPaper(entry.CitingPaper))
			if len(citations) == limit {
				break
			}
		}

		if len(page.Data) < pageSize || page.Next == nil {
			break
		}
		offset = *page.Next
	}

	return &CitationsResult{Citations: citations}, nil
}

// getJSON performs a single GET request and decodes the JSON response body.
// HTTP 429 is surfaced as a rate-limit error carrying any Retry-After hint;
// other non-2xx statuses become external API errors; transport failures are
// reported with status code zero.
func (c *Client) getJSON(ctx context.Context, rawURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return domain.NewExternalAPIError(sourceName, 0, "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.NewRateLimitError(sourceName, parseRetryAfter(resp))
	}
	if resp.StatusCode == http.StatusNotFound {
		_, _ = io.Copy(io.Discard, resp.Body)
		return domain.NewNotFoundError("paper", rawURL)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.errorFromResponse(resp)
	}

	// Limit body to 10MB to prevent resource exhaustion.
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(v); err != nil {
		return domain.NewAppError(domain.ErrorKindValidation,
			fmt.Sprintf("decoding %s response: %v", sourceName, err), err)
	}
	return nil
}

// errorFromResponse builds an ExternalAPIError from a non-2xx response.
func (c *Client) errorFromResponse(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.NewExternalAPIError(sourceName, resp.StatusCode, "failed to read error response", err)
	}

	var errResp ErrorResponse
	if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil {
		message := errResp.Error
		if message == "" {
			message = errResp.Message
		}
		if message != "" {
			return domain.NewExternalAPIError(sourceName, resp.StatusCode, message, nil)
		}
	}
	return domain.NewExternalAPIError(sourceName, resp.StatusCode, string(body), nil)
}

// parseRetryAfter reads the Retry-After header as seconds or an HTTP date.
func parseRetryAfter(resp *http.Response) time.Duration {
	retryAfter := resp.Header.Get("Retry-After")
	if retryAfter == "" {
		return 0
	}
	if seconds, err := strconv.ParseInt(retryAfter, 10, 64); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(retryAfter); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// toPapers converts a slice of API paper results to domain papers.
func toPapers(results []PaperResult) []domain.Paper {
	papers := make([]domain.Paper, 0, len(results))
	for _, result := range results {
		papers = append(papers, toPaper(result))
	}
	return papers
}

// toPaper converts a single API paper result to a domain paper.
func toPaper(result PaperResult) domain.Paper {
	paper := domain.Paper{
		PaperID:       result.PaperID,
		Title:         result.Title,
		Year:          result.Year,
		Venue:         result.Venue,
		CitationCount: result.CitationCount,
		URL:           result.URL,
		Abstract:      result.Abstract,
	}

	if len(result.Authors) > 0 {
		paper.Authors = make([]domain.Author, 0, len(result.Authors))
		for _, a := range result.Authors {
			paper.Authors = append(paper.Authors, domain.Author{
				AuthorID: a.AuthorID,
				Name:     a.Name,
			})
		}
	}

	if result.ExternalIDs != nil {
		paper.ExternalIDs = &domain.ExternalIDs{
			DOI:      result.ExternalIDs.DOI,
			ArXiv:    result.ExternalIDs.ArXiv,
			MAG:      result.ExternalIDs.MAG,
			ACL:      result.ExternalIDs.ACL,
			PubMed:   result.ExternalIDs.PubMed,
			CorpusID: result.ExternalIDs.CorpusID,
		}
	}

	return paper
}

// sleepCtx waits for d, respecting context cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
