package worker

import (
	"context"
	"log/slog"
	"time"

	"classify-orchestrator/internal/domain"
	"classify-orchestrator/internal/infra/metrics"
	"classify-orchestrator/internal/usecase/retrieval"
)

const (
	defaultReloadInterval = 15 * time.Minute
	reloadTimeout         = 60 * time.Second
	initialBackoff        = 30 * time.Second
	maxBackoff            = 30 * time.Minute
)

// TaxonomyReloadWorker periodically re-reads the taxonomy source and swaps
// a freshly built index into the retriever when the content hash changed.
// In-flight retrievals keep the snapshot they started with.
type TaxonomyReloadWorker struct {
	taxonomyRepo domain.TaxonomyRepository
	retriever    *retrieval.Retriever
	normalizer   *domain.TitleNormalizer
	metrics      *metrics.Metrics
	interval     time.Duration
	logger       *slog.Logger
	stopChan     chan struct{}
	backoff      time.Duration
}

func NewTaxonomyReloadWorker(
	taxonomyRepo domain.TaxonomyRepository,
	retriever *retrieval.Retriever,
	normalizer *domain.TitleNormalizer,
	m *metrics.Metrics,
	interval time.Duration,
	logger *slog.Logger,
) *TaxonomyReloadWorker {
	if interval <= 0 {
		interval = defaultReloadInterval
	}
	return &TaxonomyReloadWorker{
		taxonomyRepo: taxonomyRepo,
		retriever:    retriever,
		normalizer:   normalizer,
		metrics:      m,
		interval:     interval,
		logger:       logger,
		stopChan:     make(chan struct{}),
	}
}

func (w *TaxonomyReloadWorker) Start() {
	w.logger.Info("Starting TaxonomyReloadWorker", "interval", w.interval)
	go w.run()
}

func (w *TaxonomyReloadWorker) Stop() {
	w.logger.Info("Stopping TaxonomyReloadWorker")
	close(w.stopChan)
}

func (w *TaxonomyReloadWorker) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.reloadOnce()
			if w.backoff > 0 {
				ticker.Reset(w.backoff)
			} else {
				ticker.Reset(w.interval)
			}
		}
	}
}

func (w *TaxonomyReloadWorker) reloadOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), reloadTimeout)
	defer cancel()

	tax, err := w.taxonomyRepo.Load(ctx)
	if err != nil {
		w.backoff = w.nextBackoff(w.backoff)
		w.logger.Warn("Taxonomy reload failed, backing off",
			"backoff", w.backoff, "error", err)
		return
	}
	w.backoff = 0

	if tax.Hash == w.retriever.TaxonomyHash() {
		return
	}

	idx := retrieval.NewIndex(tax, w.normalizer)
	w.retriever.SwapIndex(idx)
	w.metrics.TaxonomyLeaves.Set(float64(idx.Len()))
	w.logger.Info("Taxonomy index swapped",
		"hash", tax.Hash,
		"leaves", idx.Len())
}

func (w *TaxonomyReloadWorker) nextBackoff(current time.Duration) time.Duration {
	if current == 0 {
		return initialBackoff
	}
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
