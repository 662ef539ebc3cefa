// Package gemini talks to the Google Generative Language API for abstract
// backfill and topic labelling. The API key is supplied per call and never
// stored on the client.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/domain"
)

const (
	// DefaultBaseURL is the Generative Language API root.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// DefaultAbstractModel does abstract lookups with search grounding.
	DefaultAbstractModel = "gemini-2.0-flash"

	// DefaultTopicsModel does structured topic generation and assignment.
	DefaultTopicsModel = "gemini-2.5-flash-preview-05-20"

	// AbstractNotFoundSentinel is the literal the model is instructed to
	// return when no abstract exists. Compared case-insensitively after
	// trimming.
	AbstractNotFoundSentinel = "Abstract not found"

	// MaxTopics bounds the label set asked of the model.
	MaxTopics = 15

	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 2

	sourceName = "Gemini"
)

// IsAbstractNotFound reports whether text is the model's not-found sentinel.
func IsAbstractNotFound(text string) bool {
	return strings.EqualFold(strings.TrimSpace(text), AbstractNotFoundSentinel)
}

// Config holds client settings. Zero values use the defaults above.
type Config struct {
	BaseURL       string
	AbstractModel string
	TopicsModel   string
	Timeout       time.Duration
	// MaxRetries is the number of additional attempts after a failed call.
	MaxRetries int
	// RetryMinDelay and RetryMaxDelay bound the randomized wait between
	// attempts. Defaults: 2s and 5s.
	RetryMinDelay time.Duration
	RetryMaxDelay time.Duration
}

// Client is a stateless HTTP client for the generateContent endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient builds a client with defaults applied for unset config fields.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.AbstractModel == "" {
		cfg.AbstractModel = DefaultAbstractModel
	}
	if cfg.TopicsModel == "" {
		cfg.TopicsModel = DefaultTopicsModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryMinDelay <= 0 {
		cfg.RetryMinDelay = 2 * time.Second
	}
	if cfg.RetryMaxDelay < cfg.RetryMinDelay {
		cfg.RetryMaxDelay = cfg.RetryMinDelay + 3*time.Second
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		logger: logger.With().Str("component", "gemini").Logger(),
	}
}

// FetchAbstract asks the model to locate the paper at doiURL and return its
// verbatim abstract. The returned text may be the not-found sentinel; callers
// check with IsAbstractNotFound. Failed attempts are retried with a
// randomized delay.
func (c *Client) FetchAbstract(ctx context.Context, apiKey, doiURL, title string) (string, error) {
	if apiKey == "" {
		return "", domain.ErrMissingCredential
	}

	req := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: buildAbstractPrompt(doiURL, title)}},
		}},
		GenerationConfig: &generationConfig{
			Temperature:      0.25,
			TopP:             0.2,
			ResponseMIMEType: "text/plain",
			MaxOutputTokens:  1000,
		},
		Tools: []tool{{GoogleSearch: &googleSearch{}}},
	}

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.waitRetry(ctx); err != nil {
				return "", err
			}
			c.logger.Debug().Int("attempt", attempt+1).Str("title", title).
				Msg("retrying abstract fetch")
		}

		text, err := c.generate(ctx, apiKey, c.cfg.AbstractModel, req)
		if err == nil {
			return strings.TrimSpace(text), nil
		}
		lastErr = err
	}

	return "", fmt.Errorf("gemini: abstract fetch failed after %d attempts: %w",
		c.cfg.MaxRetries+1, lastErr)
}

// GenerateTopics derives at most MaxTopics short research-topic labels from
// the given papers.
func (c *Client) GenerateTopics(ctx context.Context, apiKey string, papers []domain.Paper) ([]string, error) {
	if apiKey == "" {
		return nil, domain.ErrMissingCredential
	}
	if len(papers) == 0 {
		return nil, domain.NewValidationError("papers", "at least one paper is required")
	}

	req := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: buildTopicsPrompt(papers, MaxTopics)}},
		}},
		GenerationConfig: &generationConfig{
			Temperature:      0.3,
			TopP:             0.9,
			ResponseMIMEType: "application/json",
			ResponseSchema:   topicsSchema,
		},
	}

	text, err := c.generate(ctx, apiKey, c.cfg.TopicsModel, req)
	if err != nil {
		return nil, err
	}

	var payload topicsPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, &domain.AppError{
			Kind:    domain.ErrorKindValidation,
			Message: "gemini: topic response is not valid JSON",
			Cause:   err,
		}
	}
	if len(payload.TopicLabel) > MaxTopics {
		payload.TopicLabel = payload.TopicLabel[:MaxTopics]
	}
	return payload.TopicLabel, nil
}

// AssignTopics maps each paper to labels drawn from topics. Papers the model
// leaves out or cannot place come back with an empty topic list.
func (c *Client) AssignTopics(ctx context.Context, apiKey string, papers []domain.Paper, topics []string) ([]TopicAssignment, error) {
	if apiKey == "" {
		return nil, domain.ErrMissingCredential
	}
	if len(papers) == 0 || len(topics) == 0 {
		return nil, domain.NewValidationError("papers/topics", "papers and topics must be non-empty")
	}

	prompt, err := buildAssignmentsPrompt(papers, topics)
	if err != nil {
		return nil, err
	}

	req := generateContentRequest{
		Contents: []content{{
			Role:  "user",
			Parts: []part{{Text: prompt}},
		}},
		GenerationConfig: &generationConfig{
			Temperature:      0.1,
			TopP:             1.0,
			ResponseMIMEType: "application/json",
			ResponseSchema:   assignmentsSchema,
		},
	}

	text, err := c.generate(ctx, apiKey, c.cfg.TopicsModel, req)
	if err != nil {
		return nil, err
	}

	var payload assignmentsPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, &domain.AppError{
			Kind:    domain.ErrorKindValidation,
			Message: "gemini: assignment response is not valid JSON",
			Cause:   err,
		}
	}
	return payload.Assignments, nil
}

// generate performs one generateContent call and returns the first text part
// of the first candidate.
func (c *Client) generate(ctx context.Context, apiKey, model string, req generateContentRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("gemini: encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.cfg.BaseURL, model, url.QueryEscape(apiKey))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.NewExternalAPIError(sourceName, 0, "request failed", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 10<<20))
	if err != nil {
		return "", domain.NewExternalAPIError(sourceName, 0, "read response body", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return "", domain.NewRateLimitError(sourceName, 0)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := string(respBody)
		var errResp apiErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return "", domain.NewExternalAPIError(sourceName, httpResp.StatusCode, msg, nil)
	}

	var resp generateContentResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", &domain.AppError{
			Kind:    domain.ErrorKindValidation,
			Message: "gemini: response is not valid JSON",
			Cause:   err,
		}
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", &domain.AppError{
			Kind:    domain.ErrorKindValidation,
			Message: "gemini: response contains no candidates",
		}
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// waitRetry sleeps a randomized duration in [RetryMinDelay, RetryMaxDelay].
func (c *Client) waitRetry(ctx context.Context) error {
	span := c.cfg.RetryMaxDelay - c.cfg.RetryMinDelay
	delay := c.cfg.RetryMinDelay
	if span > 0 {
		delay += rand.N(span)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
