// Package citegraph provides a typed, paginated, rate-limited client for the
// Semantic Scholar Graph API.
//
// API Documentation: https://api.semanticscholar.org/api-docs/
package citegraph

// SearchResponse represents the response from the paper search endpoint.
type SearchResponse struct {
	// Total is the total number of papers matching the query.
	Total int `json:"total"`

	// Offset is the current offset in the result set.
	Offset int `json:"offset"`

	// Next is the offset for the next page of results.
	// A value of 0 indicates no more results.
	Next int `json:"next"`

	// Data contains the list of papers returned by the search.
	Data []PaperResult `json:"data"`
}

// PaperResult represents a single paper in the Graph API response.
type PaperResult struct {
	// PaperID is the API's unique identifier for the paper.
	PaperID string `json:"paperId"`

	// Title is the title of the paper.
	Title string `json:"title"`

	// Abstract is the paper's abstract. The API returns null when no
	// abstract is on record; the pointer preserves that distinction.
	Abstract *string `json:"abstract"`

	// Year is the publication year.
	Year int `json:"year"`

	// Venue is the publication venue (conference, journal name, etc.).
	Venue string `json:"venue"`

	// Authors is the list of paper authors.
	Authors []AuthorResult `json:"authors"`

	// CitationCount is the number of citations this paper has received.
	CitationCount int `json:"citationCount"`

	// URL is the paper's canonical Semantic Scholar URL.
	URL string `json:"url"`

	// ExternalIDs contains external identifiers (DOI, ArXiv, etc.).
	ExternalIDs *ExternalIDsResult `json:"externalIds,omitempty"`
}

// AuthorResult represents a paper author in the Graph API.
type AuthorResult struct {
	// AuthorID is the API's unique identifier for the author.
	AuthorID string `json:"authorId,omitempty"`

	// Name is the author's name.
	Name string `json:"name"`
}

// ExternalIDsResult contains external identifiers for a paper.
type ExternalIDsResult struct {
	DOI      string `json:"DOI,omitempty"`
	ArXiv    string `json:"ArXiv,omitempty"`
	MAG      string `json:"MAG,omitempty"`
	ACL      string `json:"ACL,omitempty"`
	PubMed   string `json:"PubMed,omitempty"`
	CorpusID string `json:"CorpusId,omitempty"`
}

// CitationEntry is one element of a citations page. The API nests the
// citing paper inside a wrapper object; the client flattens it.
type CitationEntry struct {
	CitingPaper PaperResult `json:"citingPaper"`
}

// CitationsResponse represents one page of the paper citations endpoint.
type CitationsResponse struct {
	// Offset is the current offset in the result set.
	Offset int `json:"offset"`

	// Next is the offset of the next page. Nil means no further pages.
	Next *int `json:"next,omitempty"`

	// Data contains the citation entries for this page.
	Data []CitationEntry `json:"data"`
}

// ErrorResponse represents an error response from the Graph API.
type ErrorResponse struct {
	// Error is the error message from the API.
	Error string `json:"error,omitempty"`

	// Message is an alternative error message field.
	Message string `json:"message,omitempty"`
}
