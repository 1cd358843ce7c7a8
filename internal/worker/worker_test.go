package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"classify-orchestrator/internal/domain"
	"classify-orchestrator/internal/infra/metrics"
	"classify-orchestrator/internal/usecase/retrieval"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubTaxonomyRepo struct {
	tax *domain.Taxonomy
	err error
}

func (s *stubTaxonomyRepo) Load(ctx context.Context) (*domain.Taxonomy, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.tax, nil
}

func testTaxonomy(hash string, sfCodes ...string) *domain.Taxonomy {
	tax := &domain.Taxonomy{Hash: hash}
	for _, code := range sfCodes {
		tax.Leaves = append(tax.Leaves, domain.Leaf{
			Sector:      domain.Level{Code: "01", Name: "LIQUIDES"},
			Rayon:       domain.Level{Code: "10", Name: "BOISSONS"},
			Famille:     domain.Level{Code: "100", Name: "JUS"},
			SousFamille: domain.Level{Code: code, Name: "SF " + code},
		})
	}
	return tax
}

func testRetriever(hash string, sfCodes ...string) *retrieval.Retriever {
	norm := domain.NewTitleNormalizer()
	idx := retrieval.NewIndex(testTaxonomy(hash, sfCodes...), norm)
	return retrieval.NewRetriever(idx, retrieval.DefaultConfig(), slog.New(slog.NewJSONHandler(io.Discard, nil)))
}

func newTestWorker(repo domain.TaxonomyRepository, r *retrieval.Retriever) *TaxonomyReloadWorker {
	norm := domain.NewTitleNormalizer()
	m := metrics.New(prometheus.NewRegistry())
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewTaxonomyReloadWorker(repo, r, norm, m, time.Minute, logger)
}

func TestTaxonomyReloadWorker_SwapsOnHashChange(t *testing.T) {
	r := testRetriever("v1", "1001")
	repo := &stubTaxonomyRepo{tax: testTaxonomy("v2", "1001", "1002")}
	w := newTestWorker(repo, r)

	w.reloadOnce()

	assert.Equal(t, "v2", r.TaxonomyHash())
	got, err := r.GetCandidatesForTitle(context.Background(), "sf 1002")
	require.NoError(t, err)
	assert.NotEmpty(t, got)
}

func TestTaxonomyReloadWorker_NoSwapOnSameHash(t *testing.T) {
	r := testRetriever("v1", "1001")
	// Same hash, different content: the worker must trust the hash.
	repo := &stubTaxonomyRepo{tax: testTaxonomy("v1", "9999")}
	w := newTestWorker(repo, r)

	w.reloadOnce()

	got, err := r.GetCandidatesForTitle(context.Background(), "sf 1001")
	require.NoError(t, err)
	assert.NotEmpty(t, got, "index must be untouched while the hash is unchanged")
}

func TestTaxonomyReloadWorker_BacksOffOnFailure(t *testing.T) {
	r := testRetriever("v1", "1001")
	repo := &stubTaxonomyRepo{err: errors.New("db down")}
	w := newTestWorker(repo, r)

	w.reloadOnce()
	first := w.backoff
	assert.Equal(t, initialBackoff, first)

	w.reloadOnce()
	assert.Equal(t, first*2, w.backoff)

	// Recovery resets the backoff.
	repo.err = nil
	repo.tax = testTaxonomy("v1", "1001")
	w.reloadOnce()
	assert.Equal(t, time.Duration(0), w.backoff)
}

func TestTaxonomyReloadWorker_StartStop(t *testing.T) {
	r := testRetriever("v1", "1001")
	w := newTestWorker(&stubTaxonomyRepo{tax: testTaxonomy("v1", "1001")}, r)
	w.Start()
	w.Stop()
}
