package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
)

const (
	// maxQueryLength caps search queries before they reach the remote API.
	maxQueryLength = 500

	maxRequestBodySize = 1 << 20

	// geminiKeyHeader carries the per-session enrichment credential. It is
	// read per request and never stored.
	geminiKeyHeader = "X-Gemini-Api-Key"
)

// searchRequest is the JSON request body for paper search.
type searchRequest struct {
	Query string `json:"query" validate:"required"`
	Limit int    `json:"limit" validate:"gte=0,lte=100"`
}

// decodeJSON reads and decodes a bounded request body.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

// sanitizeQuery strips markup and control characters and caps the length, so
// pasted rich text cannot reach the remote API verbatim.
func sanitizeQuery(query string) string {
	var b strings.Builder
	b.Grow(len(query))
	inTag := false
	for _, r := range query {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case inTag:
		case unicode.IsControl(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	out := strings.Join(strings.Fields(b.String()), " ")
	if len(out) > maxQueryLength {
		out = out[:maxQueryLength]
	}
	return out
}

// searchPapers handles POST /api/v1/search.
func (s *Server) searchPapers(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, "query is required and limit must be between 0 and 100")
		return
	}

	query := sanitizeQuery(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is empty after sanitization")
		return
	}

	result, err := s.searcher.SearchPapers(r.Context(), query, req.Limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Papers: domainPapersToResponse(result.Papers),
		Total:  result.Total,
	})
}

// selectPaper handles POST /api/v1/papers/{paperID}/select. It replaces the
// whole graph state with the new selection and its first-degree citations.
func (s *Server) selectPaper(w http.ResponseWriter, r *http.Request) {
	paperID := strings.TrimSpace(chi.URLParam(r, "paperID"))
	if paperID == "" {
		writeError(w, http.StatusBadRequest, "paper id is required")
		return
	}

	paper, err := s.engine.SelectPaper(r.Context(), paperID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	snap := s.store.Snapshot()
	writeJSON(w, http.StatusOK, selectResponse{
		Paper:            domainPaperToResponse(*paper),
		FirstDegreeCount: len(snap.FirstDegree),
	})
}

// expandSecondDegree handles POST /api/v1/expand. The pass runs in the
// background; progress is observable through the store and the SSE stream.
func (s *Server) expandSecondDegree(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	if snap.SelectedPaper == nil {
		writeError(w, http.StatusBadRequest, "no paper selected")
		return
	}

	eligible := 0
	for _, c := range snap.FirstDegree {
		if c.CitationCount > 0 {
			eligible++
		}
	}

	firstDegree := snap.FirstDegree
	go func() {
		// The pass outlives the request; it has no cancellation point by
		// design, items run to completion.
		if _, err := s.engine.ExpandSecondDegree(context.WithoutCancel(r.Context()), firstDegree, nil); err != nil {
			s.logger.Warn().Err(err).Msg("second-degree expansion not started")
		}
	}()

	writeJSON(w, http.StatusAccepted, expandResponse{Started: true, Total: eligible})
}

// enrichAbstracts handles POST /api/v1/enrich. It runs synchronously and
// returns per-item results; the credential comes from a header and is held
// only for the duration of the request.
func (s *Server) enrichAbstracts(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get(geminiKeyHeader)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "An API credential is required for this operation.")
		return
	}

	eligible, err := s.engine.EligibleForEnrichment(r.Context(), s.store.AllPapers())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	results, err := s.engine.BackfillAbstracts(r.Context(), eligible, apiKey, nil)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := enrichResponse{Total: len(results), Results: make([]abstractFetchResponse, len(results))}
	for i, res := range results {
		resp.Results[i] = abstractFetchResponse{
			PaperID: res.PaperID,
			Title:   res.Title,
			Status:  string(res.Status),
			Error:   res.Error,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// assignTopics handles POST /api/v1/topics.
func (s *Server) assignTopics(w http.ResponseWriter, r *http.Request) {
	apiKey := r.Header.Get(geminiKeyHeader)
	if apiKey == "" {
		writeError(w, http.StatusUnauthorized, "An API credential is required for this operation.")
		return
	}

	result, err := s.labeller.AssignAll(r.Context(), apiKey)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// getGraph handles GET /api/v1/graph.
func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, snapshotToResponse(s.store.Snapshot()))
}
