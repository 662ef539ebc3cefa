package citegraph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/domain"
)

// newTestClient builds a client against a test server with fast timings.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Config{
		BaseURL:            srv.URL,
		MinInterval:        time.Millisecond,
		MaxRetries:         2,
		SearchRetryCeiling: 200 * time.Millisecond,
		SearchMaxDelay:     20 * time.Millisecond,
	}, zerolog.Nop(), nil)
}

func citationPage(entries []PaperResult, next *int) CitationsResponse {
	page := CitationsResponse{Next: next}
	for _, e := range entries {
		page.Data = append(page.Data, CitationEntry{CitingPaper: e})
	}
	return page
}

func paperN(n int) PaperResult {
	return PaperResult{
		PaperID:       fmt.Sprintf("p%03d", n),
		Title:         fmt.Sprintf("Paper %d", n),
		CitationCount: n,
	}
}

func TestSearchPapers(t *testing.T) {
	t.Run("returns mapped papers", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/paper/search", r.URL.Path)
			assert.Equal(t, "deep learning", r.URL.Query().Get("query"))
			assert.Equal(t, "10", r.URL.Query().Get("limit"))

			abstract := "An abstract."
			_ = json.NewEncoder(w).Encode(SearchResponse{
				Total: 1,
				Data: []PaperResult{{
					PaperID:       "abc",
					Title:         "Deep Learning",
					Abstract:      &abstract,
					Year:          2015,
					Venue:         "Nature",
					CitationCount: 1000,
					Authors:       []AuthorResult{{AuthorID: "a1", Name: "Y. LeCun"}},
					ExternalIDs:   &ExternalIDsResult{DOI: "10.1038/nature14539"},
				}},
			})
		}))

		result, err := c.SearchPapers(context.Background(), "deep learning", 10)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Total)
		require.Len(t, result.Papers, 1)

		p := result.Papers[0]
		assert.Equal(t, "abc", p.PaperID)
		assert.Equal(t, "Deep Learning", p.Title)
		require.NotNil(t, p.Abstract)
		assert.Equal(t, "An abstract.", *p.Abstract)
		assert.Equal(t, "10.1038/nature14539", p.DOI())
		require.Len(t, p.Authors, 1)
		assert.Equal(t, "Y. LeCun", p.Authors[0].Name)
	})

	t.Run("rejects empty query", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Fatal("no request expected")
		}))

		_, err := c.SearchPapers(context.Background(), "", 10)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("retries rate limit within wall-clock budget", func(t *testing.T) {
		attempts := 0
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			if attempts < 3 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			_ = json.NewEncoder(w).Encode(SearchResponse{Total: 0})
		}))

		result, err := c.SearchPapers(context.Background(), "q", 10)
		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Empty(t, result.Papers)
	})

	t.Run("gives up after retry budget exhausted", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))

		start := time.Now()
		_, err := c.SearchPapers(context.Background(), "q", 10)
		require.Error(t, err)

		var appErr *domain.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, domain.ErrorKindRateLimit, appErr.Kind)
		assert.Less(t, time.Since(start), time.Second,
			"search must give up within a predictable time")
	})

	t.Run("non-rate-limit error fails immediately", func(t *testing.T) {
		attempts := 0
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts++
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"server exploded"}`))
		}))

		_, err := c.SearchPapers(context.Background(), "q", 10)
		require.Error(t, err)
		assert.Equal(t, 1, attempts)

		var apiErr *domain.ExternalAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusInternalServerError, apiErr.StatusCode)
		assert.Equal(t, "server exploded", apiErr.Message)
	})
}

func TestGetPaper(t *testing.T) {
	t.Run("maps paper with null abstract", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/paper/abc", r.URL.Path)
			_, _ = w.Write([]byte(`{"paperId":"abc","title":"T","abstract":null,"citationCount":5}`))
		}))

		p, err := c.GetPaper(context.Background(), "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", p.PaperID)
		assert.Nil(t, p.Abstract)
		assert.False(t, p.AbstractFetchedViaGemini)
	})

	t.Run("404 maps to not found", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		_, err := c.GetPaper(context.Background(), "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestGetCitations(t *testing.T) {
	t.Run("flattens citingPaper wrapper", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/paper/root/citations", r.URL.Path)
			_ = json.NewEncoder(w).Encode(citationPage([]PaperResult{paperN(1), paperN(2)}, nil))
		}))

		result, err := c.GetCitations(context.Background(), "root", 100)
		require.NoError(t, err)
		require.Len(t, result.Citations, 2)
		assert.Equal(t, "p001", result.Citations[0].PaperID)
		assert.Equal(t, "p002", result.Citations[1].PaperID)
	})

	t.Run("paginates until limit in server page order without duplicates", func(t *testing.T) {
		// Three full pages of 100 available; client asks for 250.
		pages := 0
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pages++
			var start int
			fmt.Sscanf(r.URL.Query().Get("offset"), "%d", &start)
			limit := 0
			fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)

			entries := make([]PaperResult, 0, limit)
			for i := start; i < start+limit; i++ {
				entries = append(entries, paperN(i))
			}
			next := start + limit
			_ = json.NewEncoder(w).Encode(citationPage(entries, &next))
		}))

		result, err := c.GetCitations(context.Background(), "root", 250)
		require.NoError(t, err)
		assert.Equal(t, 3, pages)
		require.Len(t, result.Citations, 250)

		seen := make(map[string]bool)
		for i, cit := range result.Citations {
			assert.Equal(t, fmt.Sprintf("p%03d", i), cit.PaperID, "server page order must be kept")
			assert.False(t, seen[cit.PaperID], "duplicate id %s", cit.PaperID)
			seen[cit.PaperID] = true
		}
	})

	t.Run("short page stops pagination", func(t *testing.T) {
		pages := 0
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pages++
			next := 40
			_ = json.NewEncoder(w).Encode(citationPage([]PaperResult{paperN(1)}, &next))
		}))

		result, err := c.GetCitations(context.Background(), "root", 300)
		require.NoError(t, err)
		assert.Equal(t, 1, pages)
		assert.Len(t, result.Citations, 1)
	})

	t.Run("missing next stops pagination", func(t *testing.T) {
		pages := 0
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pages++
			limit := 0
			fmt.Sscanf(r.URL.Query().Get("limit"), "%d", &limit)
			entries := make([]PaperResult, 0, limit)
			for i := 0; i < limit; i++ {
				entries = append(entries, paperN(i))
			}
			_ = json.NewEncoder(w).Encode(citationPage(entries, nil))
		}))

		result, err := c.GetCitations(context.Background(), "root", 300)
		require.NoError(t, err)
		assert.Equal(t, 1, pages)
		assert.Len(t, result.Citations, 100)
	})

	t.Run("page failure propagates", func(t *testing.T) {
		c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))

		_, err := c.GetCitations(context.Background(), "root", 100)
		require.Error(t, err)
		var apiErr *domain.ExternalAPIError
		assert.ErrorAs(t, err, &apiErr)
	})
}
