package domain

// ProgressState describes whichever long-running pass (second-degree
// expansion or abstract enrichment) is currently active. Only one pass is
// active at a time.
//
// IsComplete is set unconditionally when a pass finishes, even when every
// item in it failed; failures count toward completion so the caller's
// "in progress" state is always released.
type ProgressState struct {
	// Current is the number of items started so far.
	Current int `json:"current"`

	// Total is the number of items the pass will process.
	Total int `json:"total"`

	// CurrentPaper is the display title of the item being processed.
	CurrentPaper string `json:"currentPaper,omitempty"`

	// IsComplete is true once the pass has finished.
	IsComplete bool `json:"isComplete"`
}

// ProgressFunc receives progress updates during a pass. May be nil.
type ProgressFunc func(p ProgressState)

// AbstractFetchStatus is the per-item outcome of the enrichment pass.
type AbstractFetchStatus string

const (
	// AbstractFetchSuccess means the enrichment call returned abstract text.
	AbstractFetchSuccess AbstractFetchStatus = "success"

	// AbstractFetchNotFound means the enrichment call returned the
	// negative sentinel: the paper's page has no fetchable abstract.
	AbstractFetchNotFound AbstractFetchStatus = "not_found"

	// AbstractFetchFailed means every retry of the enrichment call raised
	// an error (network or API failure, distinct from a well-formed
	// negative answer).
	AbstractFetchFailed AbstractFetchStatus = "failed"
)

// AbstractFetchResult records the outcome of one enrichment attempt.
type AbstractFetchResult struct {
	PaperID string              `json:"paperId"`
	Title   string              `json:"title"`
	Status  AbstractFetchStatus `json:"status"`

	// Error carries the distinguishing error message for failed items.
	Error string `json:"error,omitempty"`
}
