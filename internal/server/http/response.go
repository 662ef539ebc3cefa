package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/domain"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/store"
)

// Response types for JSON serialization.

type paperResponse struct {
	PaperID       string           `json:"paper_id"`
	Title         string           `json:"title"`
	Authors       []authorResponse `json:"authors,omitempty"`
	Year          int              `json:"year,omitempty"`
	Venue         string           `json:"venue,omitempty"`
	CitationCount int              `json:"citation_count"`
	URL           string           `json:"url,omitempty"`
	// Abstract stays a pointer so "checked, none found" serializes as null.
	Abstract         *string `json:"abstract"`
	DOI              string  `json:"doi,omitempty"`
	AbstractViaFetch bool    `json:"abstract_via_fetch"`
}

type authorResponse struct {
	AuthorID string `json:"author_id,omitempty"`
	Name     string `json:"name"`
}

type searchResponse struct {
	Papers []paperResponse `json:"papers"`
	Total  int             `json:"total"`
}

type selectResponse struct {
	Paper            paperResponse `json:"paper"`
	FirstDegreeCount int           `json:"first_degree_count"`
}

type expandResponse struct {
	Started bool `json:"started"`
	// Total is the number of first-degree papers eligible for expansion.
	Total int `json:"total"`
}

type enrichResponse struct {
	Results []abstractFetchResponse `json:"results"`
	Total   int                     `json:"total"`
}

type abstractFetchResponse struct {
	PaperID string `json:"paper_id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

type graphResponse struct {
	SelectedPaper *paperResponse             `json:"selected_paper"`
	FirstDegree   []paperResponse            `json:"first_degree"`
	SecondDegree  map[string][]paperResponse `json:"second_degree"`
	Progress      progressResponse           `json:"progress"`
	Topics        []string                   `json:"topics,omitempty"`
	PaperTopics   map[string][]string        `json:"paper_topics,omitempty"`
}

type progressResponse struct {
	Current      int    `json:"current"`
	Total        int    `json:"total"`
	CurrentPaper string `json:"current_paper,omitempty"`
	IsComplete   bool   `json:"is_complete"`
}

// Converter functions

func domainPaperToResponse(p domain.Paper) paperResponse {
	authors := make([]authorResponse, len(p.Authors))
	for i, a := range p.Authors {
		authors[i] = authorResponse{AuthorID: a.AuthorID, Name: a.Name}
	}
	return paperResponse{
		PaperID:          p.PaperID,
		Title:            p.DisplayTitle(),
		Authors:          authors,
		Year:             p.Year,
		Venue:            p.Venue,
		CitationCount:    p.CitationCount,
		URL:              p.URL,
		Abstract:         p.Abstract,
		DOI:              p.DOI(),
		AbstractViaFetch: p.AbstractFetchedViaGemini,
	}
}

func domainPapersToResponse(papers []domain.Paper) []paperResponse {
	out := make([]paperResponse, len(papers))
	for i, p := range papers {
		out[i] = domainPaperToResponse(p)
	}
	return out
}

func domainProgressToResponse(p domain.ProgressState) progressResponse {
	return progressResponse{
		Current:      p.Current,
		Total:        p.Total,
		CurrentPaper: p.CurrentPaper,
		IsComplete:   p.IsComplete,
	}
}

func snapshotToResponse(snap store.Snapshot) graphResponse {
	resp := graphResponse{
		FirstDegree:  domainPapersToResponse(snap.FirstDegree),
		SecondDegree: make(map[string][]paperResponse, len(snap.SecondDegree)),
		Progress:     domainProgressToResponse(snap.Progress),
		Topics:       snap.Topics,
		PaperTopics:  snap.PaperTopics,
	}
	if snap.SelectedPaper != nil {
		p := domainPaperToResponse(*snap.SelectedPaper)
		resp.SelectedPaper = &p
	}
	for id, citations := range snap.SecondDegree {
		resp.SecondDegree[id] = domainPapersToResponse(citations)
	}
	return resp
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Best-effort; headers already sent.
		_ = err
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// writeDomainError maps normalized domain errors to HTTP status codes with a
// stable user-facing message. Diagnostic detail never reaches the client.
func writeDomainError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "The requested paper could not be found.")
		return
	case errors.Is(err, domain.ErrMissingCredential):
		writeError(w, http.StatusUnauthorized, "An API credential is required for this operation.")
		return
	case errors.Is(err, domain.ErrPassActive):
		writeError(w, http.StatusConflict, "Another pass is already running. Wait for it to finish.")
		return
	}

	appErr := domain.Normalize(err)
	status := http.StatusInternalServerError
	switch appErr.Kind {
	case domain.ErrorKindValidation:
		status = http.StatusBadRequest
	case domain.ErrorKindRateLimit:
		status = http.StatusTooManyRequests
	case domain.ErrorKindNetwork, domain.ErrorKindAPI:
		status = http.StatusBadGateway
	}
	writeError(w, status, appErr.UserMessage())
}
