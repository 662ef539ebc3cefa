// Package topics labels the explored papers with a small set of research
// topics produced by the enrichment API.
package topics

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/domain"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/gemini"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/store"
)

// UnlabelledTopic is assigned to papers the classifier left without labels,
// so downstream filtering never has to treat "no topics" specially.
const UnlabelledTopic = "Unlabelled"

// Classifier proposes topic labels and assigns them to papers.
type Classifier interface {
	GenerateTopics(ctx context.Context, apiKey string, papers []domain.Paper) ([]string, error)
	AssignTopics(ctx context.Context, apiKey string, papers []domain.Paper, topics []string) ([]gemini.TopicAssignment, error)
}

// Service runs the two-step labelling over the full store contents.
type Service struct {
	classifier Classifier
	store      *store.Store
	logger     zerolog.Logger
}

// New builds a topic service.
func New(classifier Classifier, st *store.Store, logger zerolog.Logger) *Service {
	return &Service{
		classifier: classifier,
		store:      st,
		logger:     logger.With().Str("component", "topics").Logger(),
	}
}

// Result holds the generated label set and the per-paper assignments.
type Result struct {
	Topics      []string            `json:"topics"`
	PaperTopics map[string][]string `json:"paperTopics"`
}

// AssignAll generates a label set from every paper in the store, assigns
// labels per paper, fills in the Unlabelled sentinel, and writes the outcome
// back to the store.
func (s *Service) AssignAll(ctx context.Context, apiKey string) (*Result, error) {
	papers := s.store.AllPapers()
	if len(papers) == 0 {
		return nil, domain.NewValidationError("papers", "no papers loaded to label")
	}

	topics, err := s.classifier.GenerateTopics(ctx, apiKey, papers)
	if err != nil {
		return nil, fmt.Errorf("generate topics: %w", err)
	}
	if len(topics) == 0 {
		return nil, &domain.AppError{
			Kind:    domain.ErrorKindValidation,
			Message: "classifier returned no topics",
		}
	}

	assignments, err := s.classifier.AssignTopics(ctx, apiKey, papers, topics)
	if err != nil {
		return nil, fmt.Errorf("assign topics: %w", err)
	}

	assigned := make(map[string][]string, len(papers))
	for _, a := range assignments {
		if len(a.Topics) > 0 {
			assigned[a.PaperID] = a.Topics
		}
	}
	// Every known paper gets at least the sentinel; ids the classifier
	// invented are dropped.
	paperTopics := make(map[string][]string, len(papers))
	for _, p := range papers {
		if labels, ok := assigned[p.PaperID]; ok {
			paperTopics[p.PaperID] = labels
		} else {
			paperTopics[p.PaperID] = []string{UnlabelledTopic}
		}
	}

	s.store.SetTopics(topics)
	s.store.SetPaperTopics(paperTopics)

	s.logger.Info().Int("topics", len(topics)).Int("papers", len(paperTopics)).
		Msg("topic assignment complete")
	return &Result{Topics: topics, PaperTopics: paperTopics}, nil
}
