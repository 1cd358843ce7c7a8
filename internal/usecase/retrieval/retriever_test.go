package retrieval_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"classify-orchestrator/internal/domain"
	"classify-orchestrator/internal/usecase/retrieval"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leaf(sfCode, sfName string) domain.Leaf {
	return domain.Leaf{
		Sector:      domain.Level{Code: "01", Name: "LIQUIDES"},
		Rayon:       domain.Level{Code: "10", Name: "BOISSONS"},
		Famille:     domain.Level{Code: "100", Name: "JUS DE FRUITS"},
		SousFamille: domain.Level{Code: sfCode, Name: sfName},
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func newTestRetriever(t *testing.T, tax *domain.Taxonomy, opts ...retrieval.Option) *retrieval.Retriever {
	t.Helper()
	idx := retrieval.NewIndex(tax, domain.NewTitleNormalizer())
	return retrieval.NewRetriever(idx, retrieval.DefaultConfig(), testLogger(), opts...)
}

func TestRetriever_SignalOrdering(t *testing.T) {
	tax := &domain.Taxonomy{
		Leaves: []domain.Leaf{
			leaf("1001", "JUS ORANGE"),
			leaf("1002", "JUS ORANGES"),
			leaf("1003", "JUS ORANGEADE"),
		},
	}
	r := newTestRetriever(t, tax)

	got, err := r.GetCandidatesForTitle(context.Background(), "jus orange")
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Exact match first, then fuzzy hits by descending similarity.
	assert.Equal(t, "1001", got[0].SousFamilleCode)
	assert.Equal(t, 1.0, got[0].Scores.Exact)
	assert.Equal(t, 1.0, got[0].Scores.Fused)
	assert.Equal(t, "1002", got[1].SousFamilleCode)
	assert.Greater(t, got[1].Scores.Fuzzy, got[2].Scores.Fuzzy)
	assert.Equal(t, "1003", got[2].SousFamilleCode)
}

func TestRetriever_SynonymMatch(t *testing.T) {
	tax := &domain.Taxonomy{
		Leaves:   []domain.Leaf{leaf("1001", "JUS ORANGE")},
		Synonyms: map[string][]string{"JUS ORANGE": {"orange pressée"}},
	}
	r := newTestRetriever(t, tax)

	got, err := r.GetCandidatesForTitle(context.Background(), "orange pressee")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1001", got[0].SousFamilleCode)
	assert.Equal(t, 0.97, got[0].Scores.Synonym)
	assert.Equal(t, 0.97, got[0].Scores.Fused)
}

func TestRetriever_TokenSubtreeOnly(t *testing.T) {
	tax := &domain.Taxonomy{
		Leaves: []domain.Leaf{
			leaf("1001", "JUS ORANGE"),
			leaf("2001", "NECTAR AGRUMES"),
		},
	}
	r := newTestRetriever(t, tax)

	// "orange" shares a token with only one leaf; the other must never be
	// scored, let alone returned.
	got, err := r.GetCandidatesForTitle(context.Background(), "orange")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1001", got[0].SousFamilleCode)
}

func TestRetriever_FuzzyTopN(t *testing.T) {
	tax := &domain.Taxonomy{
		Leaves: []domain.Leaf{
			leaf("1001", "JUS ORANGE"),
			leaf("1002", "JUS ORANGES"),
			leaf("1003", "JUS ORANGER"),
			leaf("1004", "JUS ORANGEADE"),
			leaf("1005", "JUS ORANGETTE"),
		},
	}
	cfg := retrieval.DefaultConfig()
	cfg.FuzzyTopN = 3
	idx := retrieval.NewIndex(tax, domain.NewTitleNormalizer())
	r := retrieval.NewRetriever(idx, cfg, testLogger())

	got, err := r.GetCandidatesForTitle(context.Background(), "jus orangs")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(got), 3, "only the top-3 fuzzy hits participate")
	for _, c := range got {
		assert.Positive(t, c.Scores.Fuzzy)
	}
}

func TestRetriever_DeterministicTieBreak(t *testing.T) {
	a := leaf("2002", "BISCUITS")
	b := leaf("2001", "BISCUITS")
	tax := &domain.Taxonomy{Leaves: []domain.Leaf{a, b}}
	r := newTestRetriever(t, tax)

	got, err := r.GetCandidatesForTitle(context.Background(), "biscuits")
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Equal fused scores break on ascending leaf key.
	assert.Equal(t, "2001", got[0].SousFamilleCode)
	assert.Equal(t, "2002", got[1].SousFamilleCode)
}

func TestRetriever_NoMatchIsEmptyNotError(t *testing.T) {
	tax := &domain.Taxonomy{Leaves: []domain.Leaf{leaf("1001", "JUS ORANGE")}}
	r := newTestRetriever(t, tax)

	got, err := r.GetCandidatesForTitle(context.Background(), "perceuse sans fil")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = r.GetCandidatesForTitle(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetriever_NilIndexIsUnavailable(t *testing.T) {
	r := retrieval.NewRetriever(nil, retrieval.DefaultConfig(), testLogger())
	_, err := r.GetCandidatesForTitle(context.Background(), "jus orange")
	assert.ErrorIs(t, err, domain.ErrRetrievalUnavailable)
}

func TestRetriever_SwapIndex(t *testing.T) {
	norm := domain.NewTitleNormalizer()
	first := retrieval.NewIndex(&domain.Taxonomy{Leaves: []domain.Leaf{leaf("1001", "JUS ORANGE")}, Hash: "v1"}, norm)
	second := retrieval.NewIndex(&domain.Taxonomy{Leaves: []domain.Leaf{leaf("3001", "JUS CITRON")}, Hash: "v2"}, norm)

	r := retrieval.NewRetriever(first, retrieval.DefaultConfig(), testLogger())
	assert.Equal(t, "v1", r.TaxonomyHash())

	r.SwapIndex(second)
	assert.Equal(t, "v2", r.TaxonomyHash())

	got, err := r.GetCandidatesForTitle(context.Background(), "jus citron")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "3001", got[0].SousFamilleCode)
}

type stubEncoder struct {
	vectors [][]float32
	err     error
}

func (s *stubEncoder) Encode(ctx context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors, nil
}

func (s *stubEncoder) Version() string { return "stub" }

type stubVectorRepo struct {
	hits []domain.LeafVectorHit
	err  error
}

func (s *stubVectorRepo) SearchLeafVectors(ctx context.Context, vector []float32, limit int) ([]domain.LeafVectorHit, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.hits, nil
}

func TestRetriever_VectorSignalReordersFusion(t *testing.T) {
	l1 := leaf("1001", "JUS ORANGE")
	l3 := leaf("1003", "JUS ORANGEADE")
	tax := &domain.Taxonomy{Leaves: []domain.Leaf{l1, leaf("1002", "JUS ORANGES"), l3}}

	enc := &stubEncoder{vectors: [][]float32{{1, 0}}}
	repo := &stubVectorRepo{hits: []domain.LeafVectorHit{
		{LeafKey: l3.Key(), Cosine: 0.99},
		{LeafKey: l1.Key(), Cosine: 0.10},
	}}
	r := newTestRetriever(t, tax, retrieval.WithVectorSignal(enc, repo))

	got, err := r.GetCandidatesForTitle(context.Background(), "jus orange")
	require.NoError(t, err)
	require.Len(t, got, 3)

	// The strong cosine hit outweighs its weaker lexical score.
	assert.Equal(t, "1003", got[0].SousFamilleCode)
	assert.InDelta(t, 0.99, got[0].Scores.Vector, 1e-9)
	assert.Equal(t, "1001", got[1].SousFamilleCode)
}

func TestRetriever_VectorSignalFailureFailsRetrieval(t *testing.T) {
	tax := &domain.Taxonomy{Leaves: []domain.Leaf{leaf("1001", "JUS ORANGE")}}

	r := newTestRetriever(t, tax, retrieval.WithVectorSignal(&stubEncoder{err: errors.New("embedder down")}, &stubVectorRepo{}))

	_, err := r.GetCandidatesForTitle(context.Background(), "jus orange")
	assert.ErrorIs(t, err, domain.ErrRetrievalUnavailable)
}
