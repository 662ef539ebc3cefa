// Package store holds the in-memory exploration state for one session: the
// selected paper, its first and second degree citations, enrichment progress
// and topic labels.
package store

import (
	"sync"

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/domain"
)

// Snapshot is an immutable copy of the store contents.
type Snapshot struct {
	SelectedPaper *domain.Paper               `json:"selectedPaper"`
	FirstDegree   []domain.Citation           `json:"firstDegree"`
	SecondDegree  map[string][]domain.Citation `json:"secondDegree"`
	Progress      domain.ProgressState        `json:"progress"`
	Topics        []string                    `json:"topics"`
	PaperTopics   map[string][]string         `json:"paperTopics"`
}

// Store is the single mutable session state. Each field has exactly one
// writing method; readers always go through Snapshot or Progress.
type Store struct {
	mu sync.RWMutex

	selectedPaper *domain.Paper
	firstDegree   []domain.Citation
	secondDegree  map[string][]domain.Citation
	progress      domain.ProgressState
	topics        []string
	paperTopics   map[string][]string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		secondDegree: make(map[string][]domain.Citation),
		paperTopics:  make(map[string][]string),
	}
}

// SetSelectedPaper replaces the root paper and clears everything derived from
// the previous selection.
func (s *Store) SetSelectedPaper(p domain.Paper) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := p
	s.selectedPaper = &cp
	s.firstDegree = nil
	s.secondDegree = make(map[string][]domain.Citation)
	s.progress = domain.ProgressState{}
	s.topics = nil
	s.paperTopics = make(map[string][]string)
}

// SetFirstDegree replaces the first-degree list and clears the second degree
// and progress, which were derived from the old list.
func (s *Store) SetFirstDegree(citations []domain.Citation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.firstDegree = append([]domain.Citation(nil), citations...)
	s.secondDegree = make(map[string][]domain.Citation)
	s.progress = domain.ProgressState{}
}

// SetSecondDegree records the citations of one first-degree paper. Ids not
// present in the first degree are ignored so the map never references papers
// outside the graph.
func (s *Store) SetSecondDegree(paperID string, citations []domain.Citation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.inFirstDegreeLocked(paperID) {
		return
	}
	s.secondDegree[paperID] = append([]domain.Citation(nil), citations...)
}

// SetProgress publishes the current pass progress.
func (s *Store) SetProgress(p domain.ProgressState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = p
}

// Progress returns the current pass progress.
func (s *Store) Progress() domain.ProgressState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// ApplyAbstract writes an enrichment result onto every occurrence of the
// paper. A nil abstract with viaGemini set records a checked-but-missing
// abstract.
func (s *Store) ApplyAbstract(paperID string, abstract *string, viaGemini bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	apply := func(p *domain.Paper) {
		if p.PaperID != paperID {
			return
		}
		if abstract != nil {
			text := *abstract
			p.Abstract = &text
		} else {
			p.Abstract = nil
		}
		p.AbstractFetchedViaGemini = viaGemini
	}

	if s.selectedPaper != nil {
		apply(s.selectedPaper)
	}
	for i := range s.firstDegree {
		apply(&s.firstDegree[i])
	}
	for _, citations := range s.secondDegree {
		for i := range citations {
			apply(&citations[i])
		}
	}
}

// SetTopics replaces the generated topic label set.
func (s *Store) SetTopics(topics []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics = append([]string(nil), topics...)
}

// SetPaperTopics replaces the per-paper topic assignments.
func (s *Store) SetPaperTopics(assignments map[string][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.paperTopics = make(map[string][]string, len(assignments))
	for id, topics := range assignments {
		s.paperTopics[id] = append([]string(nil), topics...)
	}
}

// Reset returns the store to its initial empty state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selectedPaper = nil
	s.firstDegree = nil
	s.secondDegree = make(map[string][]domain.Citation)
	s.progress = domain.ProgressState{}
	s.topics = nil
	s.paperTopics = make(map[string][]string)
}

// Snapshot returns a deep copy of the store contents.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		FirstDegree:  append([]domain.Citation(nil), s.firstDegree...),
		SecondDegree: make(map[string][]domain.Citation, len(s.secondDegree)),
		Progress:     s.progress,
		Topics:       append([]string(nil), s.topics...),
		PaperTopics:  make(map[string][]string, len(s.paperTopics)),
	}
	if s.selectedPaper != nil {
		cp := *s.selectedPaper
		snap.SelectedPaper = &cp
	}
	for id, citations := range s.secondDegree {
		snap.SecondDegree[id] = append([]domain.Citation(nil), citations...)
	}
	for id, topics := range s.paperTopics {
		snap.PaperTopics[id] = append([]string(nil), topics...)
	}
	return snap
}

// AllPapers returns the selected paper plus both citation degrees, deduplicated
// by id. Order is selected, first degree, then second degree.
func (s *Store) AllPapers() []domain.Paper {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var papers []domain.Paper
	add := func(p domain.Paper) {
		if p.PaperID == "" || seen[p.PaperID] {
			return
		}
		seen[p.PaperID] = true
		papers = append(papers, p)
	}

	if s.selectedPaper != nil {
		add(*s.selectedPaper)
	}
	for _, c := range s.firstDegree {
		add(c)
	}
	for _, citations := range s.secondDegree {
		for _, c := range citations {
			add(c)
		}
	}
	return papers
}

func (s *Store) inFirstDegreeLocked(paperID string) bool {
	for _, c := range s.firstDegree {
		if c.PaperID == paperID {
			return true
		}
	}
	return false
}
