// Package domain contains the core model for the citation exploration
// service: papers, citations, traversal progress, and the error taxonomy
// shared by all layers.
package domain

import "strings"

// UntitledPlaceholder is used when the upstream API returns a paper
// without a title.
const UntitledPlaceholder = "Untitled Paper"

// Author is a paper author as reported by the citation graph API.
type Author struct {
	// AuthorID is the graph API's identifier for the author, if known.
	AuthorID string `json:"authorId,omitempty"`

	// Name is the author's display name.
	Name string `json:"name"`
}

// ExternalIDs holds external identifiers for a paper (DOI, ArXiv, etc.).
type ExternalIDs struct {
	DOI      string `json:"DOI,omitempty"`
	ArXiv    string `json:"ArXiv,omitempty"`
	MAG      string `json:"MAG,omitempty"`
	ACL      string `json:"ACL,omitempty"`
	PubMed   string `json:"PubMed,omitempty"`
	CorpusID string `json:"CorpusId,omitempty"`
}

// Paper is a single academic paper in the citation graph.
//
// Abstract uses a pointer to distinguish three states: nil with
// AbstractFetchedViaGemini false means "not yet checked", nil with the flag
// true means "checked, not found", and non-nil is the abstract text.
type Paper struct {
	// PaperID is the opaque, stable identifier used across all API calls.
	PaperID string `json:"paperId"`

	// Title is the paper title. May be empty upstream; use DisplayTitle.
	Title string `json:"title"`

	// Authors in publication order.
	Authors []Author `json:"authors,omitempty"`

	// Year is the publication year, zero if unknown.
	Year int `json:"year,omitempty"`

	// Venue is the publication venue, empty if unknown.
	Venue string `json:"venue,omitempty"`

	// CitationCount is the total number of papers citing this one.
	CitationCount int `json:"citationCount"`

	// URL is the canonical URL for the paper, if any.
	URL string `json:"url,omitempty"`

	// Abstract is the abstract text; see the type comment for nil semantics.
	Abstract *string `json:"abstract"`

	// ExternalIDs holds DOI/ArXiv/etc identifiers, if any.
	ExternalIDs *ExternalIDs `json:"externalIds,omitempty"`

	// AbstractFetchedViaGemini marks that the enrichment pass has already
	// attempted (and resolved, one way or the other) this paper.
	AbstractFetchedViaGemini bool `json:"abstractFetchedViaGemini,omitempty"`
}

// Citation is a Paper seen from the perspective of "a paper that cites some
// other paper". The citer→citee relation is represented only by membership
// in the store's degree collections, never by a field on the entity.
type Citation = Paper

// DisplayTitle returns the title, or a placeholder when the API gave none.
func (p *Paper) DisplayTitle() string {
	if t := strings.TrimSpace(p.Title); t != "" {
		return t
	}
	return UntitledPlaceholder
}

// DOI returns the paper's DOI, or empty if it has none.
func (p *Paper) DOI() string {
	if p.ExternalIDs == nil {
		return ""
	}
	return strings.TrimSpace(p.ExternalIDs.DOI)
}

// DOIURL returns the resolvable doi.org URL for the paper, or empty if the
// paper has no DOI.
func (p *Paper) DOIURL() string {
	doi := p.DOI()
	if doi == "" {
		return ""
	}
	return "https://doi.org/" + doi
}

// HasAbstract reports whether the paper carries abstract text.
func (p *Paper) HasAbstract() bool {
	return p.Abstract != nil && strings.TrimSpace(*p.Abstract) != ""
}
