package topics

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/domain"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/gemini"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/store"
)

type fakeClassifier struct {
	topics      []string
	topicsErr   error
	assignments []gemini.TopicAssignment
	assignErr   error

	generateCalls int
	assignCalls   int
	seenTopics    []string
}

func (f *fakeClassifier) GenerateTopics(ctx context.Context, apiKey string, papers []domain.Paper) ([]string, error) {
	f.generateCalls++
	return f.topics, f.topicsErr
}

func (f *fakeClassifier) AssignTopics(ctx context.Context, apiKey string, papers []domain.Paper, topics []string) ([]gemini.TopicAssignment, error) {
	f.assignCalls++
	f.seenTopics = topics
	return f.assignments, f.assignErr
}

func seedStore() *store.Store {
	st := store.New()
	st.SetSelectedPaper(domain.Paper{PaperID: "root", Title: "Root"})
	st.SetFirstDegree([]domain.Citation{
		{PaperID: "a", Title: "A"},
		{PaperID: "b", Title: "B"},
	})
	return st
}

func TestAssignAll(t *testing.T) {
	ctx := context.Background()

	t.Run("labels every paper with sentinel fallback", func(t *testing.T) {
		classifier := &fakeClassifier{
			topics: []string{"Reinforcement Learning", "Protein Folding"},
			assignments: []gemini.TopicAssignment{
				{PaperID: "root", Topics: []string{"Reinforcement Learning"}},
				{PaperID: "a", Topics: []string{}},
				{PaperID: "invented", Topics: []string{"Protein Folding"}},
			},
		}
		st := seedStore()
		svc := New(classifier, st, zerolog.Nop())

		result, err := svc.AssignAll(ctx, "key")
		require.NoError(t, err)

		assert.Equal(t, 1, classifier.generateCalls)
		assert.Equal(t, 1, classifier.assignCalls)
		assert.Equal(t, classifier.topics, classifier.seenTopics,
			"assignment must use the generated label set")

		assert.Equal(t, []string{"Reinforcement Learning"}, result.PaperTopics["root"])
		assert.Equal(t, []string{UnlabelledTopic}, result.PaperTopics["a"],
			"empty assignment falls back to the sentinel")
		assert.Equal(t, []string{UnlabelledTopic}, result.PaperTopics["b"],
			"omitted paper falls back to the sentinel")
		assert.NotContains(t, result.PaperTopics, "invented")

		snap := st.Snapshot()
		assert.Equal(t, result.Topics, snap.Topics)
		assert.Equal(t, result.PaperTopics, snap.PaperTopics)
	})

	t.Run("empty store", func(t *testing.T) {
		svc := New(&fakeClassifier{}, store.New(), zerolog.Nop())

		_, err := svc.AssignAll(ctx, "key")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("generation failure propagates", func(t *testing.T) {
		classifier := &fakeClassifier{topicsErr: domain.NewExternalAPIError("Gemini", 500, "boom", nil)}
		svc := New(classifier, seedStore(), zerolog.Nop())

		_, err := svc.AssignAll(ctx, "key")
		require.Error(t, err)
		assert.Equal(t, 0, classifier.assignCalls)
	})

	t.Run("empty label set is a validation error", func(t *testing.T) {
		classifier := &fakeClassifier{topics: nil}
		svc := New(classifier, seedStore(), zerolog.Nop())

		_, err := svc.AssignAll(ctx, "key")
		require.Error(t, err)
		assert.Equal(t, domain.ErrorKindValidation, domain.Normalize(err).Kind)
	})
}
