package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"classify-orchestrator/internal/domain"
	"classify-orchestrator/internal/infra/metrics"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ClassifyBatchInput carries the caller-supplied title batch.
type ClassifyBatchInput struct {
	Items []domain.TitleItem
}

// ClassifiedItem is one adjudicated classification enriched with the
// orchestrator's bookkeeping: the normalized title, the chosen candidate's
// original rank (0 when the adjudicator's choice matched none of the sent
// candidates), and the confidence-gate verdict.
type ClassifiedItem struct {
	domain.ClassificationResult
	TitleNormalized      string             `json:"title_normalized"`
	Rank                 int                `json:"rank"`
	Decision             domain.Decision    `json:"decision"`
	RequiresConfirmation bool               `json:"requires_confirmation"`
	Alternatives         []domain.Candidate `json:"alternatives,omitempty"`
}

// Timings is the per-stage latency breakdown surfaced to callers.
type Timings struct {
	RetrievalMs int64 `json:"retrievalMs"`
	LLMMs       int64 `json:"llmMs"`
	TotalMs     int64 `json:"totalMs"`
}

// ClassifyBatchOutput is the full batch result: per-item classifications in
// input order, the timing breakdown, adjudication token usage, and the
// chosen-rank histogram used to tune retrieval fusion.
type ClassifyBatchOutput struct {
	Results       []ClassifiedItem   `json:"results"`
	Timings       Timings            `json:"timings"`
	Tokens        domain.TokenUsage  `json:"tokens"`
	RankHistogram map[string]int     `json:"rank_histogram"`
}

// ClassifyBatchUsecase classifies a batch of titles.
type ClassifyBatchUsecase interface {
	Execute(ctx context.Context, input ClassifyBatchInput) (*ClassifyBatchOutput, error)
}

// BatchConfig tunes the orchestrator.
type BatchConfig struct {
	// MaxItems caps the batch; longer batches are truncated server-side.
	MaxItems int
	// MaxConcurrency bounds concurrent candidate resolution.
	MaxConcurrency int
	// RetrievalTimeout bounds each retrieval call so a hung index read
	// surfaces as a retrieval failure instead of blocking the batch.
	RetrievalTimeout time.Duration
}

// DefaultBatchConfig mirrors the endpoint defaults.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxItems:         500,
		MaxConcurrency:   16,
		RetrievalTimeout: 5 * time.Second,
	}
}

type classifyBatchUsecase struct {
	normalizer  *domain.TitleNormalizer
	retriever   domain.CandidateRetriever
	cache       domain.CandidateCache
	adjudicator domain.Adjudicator
	metrics     *metrics.Metrics
	cfg         BatchConfig
	logger      *slog.Logger
}

// NewClassifyBatchUsecase wires the classification pipeline. The cache is
// injected, never ambient: its lifecycle belongs to the caller.
func NewClassifyBatchUsecase(
	normalizer *domain.TitleNormalizer,
	retriever domain.CandidateRetriever,
	cache domain.CandidateCache,
	adjudicator domain.Adjudicator,
	m *metrics.Metrics,
	cfg BatchConfig,
	logger *slog.Logger,
) ClassifyBatchUsecase {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultBatchConfig().MaxItems
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultBatchConfig().MaxConcurrency
	}
	if cfg.RetrievalTimeout <= 0 {
		cfg.RetrievalTimeout = DefaultBatchConfig().RetrievalTimeout
	}
	return &classifyBatchUsecase{
		normalizer:  normalizer,
		retriever:   retriever,
		cache:       cache,
		adjudicator: adjudicator,
		metrics:     m,
		cfg:         cfg,
		logger:      logger,
	}
}

func (u *classifyBatchUsecase) Execute(ctx context.Context, input ClassifyBatchInput) (*ClassifyBatchOutput, error) {
	started := time.Now()

	items := input.Items
	if len(items) > u.cfg.MaxItems {
		items = items[:u.cfg.MaxItems]
	}
	if err := validateBatch(items); err != nil {
		return nil, err
	}

	batchID := uuid.NewString()
	u.metrics.BatchSize.Observe(float64(len(items)))

	// Normalization is pure and cheap; candidate resolution is not, so
	// only the latter fans out.
	normalized := make([]domain.NormalizedTitle, len(items))
	for i, it := range items {
		normalized[i] = u.normalizer.Normalize(it.Title)
	}

	retrievalStart := time.Now()
	enriched := make([]domain.AdjudicationItem, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.cfg.MaxConcurrency)
	for i := range items {
		i := i
		g.Go(func() error {
			key := normalized[i].Normalized
			candidates, ok := u.cache.Get(key)
			if ok {
				u.metrics.CacheHits.Inc()
			} else {
				u.metrics.CacheMisses.Inc()
				rctx, cancel := context.WithTimeout(gctx, u.cfg.RetrievalTimeout)
				defer cancel()
				var err error
				candidates, err = u.retriever.GetCandidatesForTitle(rctx, key)
				if err != nil {
					return fmt.Errorf("resolve candidates for item %q: %w", items[i].ID, err)
				}
				u.cache.Set(key, candidates)
			}
			enriched[i] = domain.AdjudicationItem{
				ID:              items[i].ID,
				TitleNormalized: key,
				Candidates:      candidates,
			}
			return nil
		})
	}
	// One failed retrieval fails the whole batch: there is no
	// partial-success contract at this layer.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	retrievalMs := time.Since(retrievalStart).Milliseconds()
	u.metrics.RetrievalDuration.Observe(time.Since(retrievalStart).Seconds())

	llmStart := time.Now()
	adjudicated, err := u.adjudicator.Adjudicate(ctx, enriched)
	if err != nil {
		if !errors.Is(err, domain.ErrAdjudicationFailed) {
			err = fmt.Errorf("%w: %v", domain.ErrAdjudicationFailed, err)
		}
		return nil, err
	}
	llmMs := time.Since(llmStart).Milliseconds()
	u.metrics.AdjudicationDuration.Observe(time.Since(llmStart).Seconds())

	output := u.assemble(batchID, items, enriched, adjudicated)
	output.Timings = Timings{
		RetrievalMs: retrievalMs,
		LLMMs:       llmMs,
		TotalMs:     time.Since(started).Milliseconds(),
	}

	u.logger.Info("classify_batch_completed",
		slog.String("batch_id", batchID),
		slog.Int("items", len(items)),
		slog.Int64("retrieval_ms", output.Timings.RetrievalMs),
		slog.Int64("llm_ms", output.Timings.LLMMs),
		slog.Int64("total_ms", output.Timings.TotalMs),
		slog.Any("rank_counts", output.RankHistogram))

	return output, nil
}

// assemble maps adjudication results back onto the input order, computes
// chosen ranks against the candidate lists that were actually sent, and
// applies the confidence gate.
func (u *classifyBatchUsecase) assemble(
	batchID string,
	items []domain.TitleItem,
	enriched []domain.AdjudicationItem,
	adjudicated *domain.AdjudicationOutput,
) *ClassifyBatchOutput {
	resultByID := make(map[string]domain.ClassificationResult, len(adjudicated.Results))
	for _, r := range adjudicated.Results {
		resultByID[r.ID] = r
	}

	histogram := make(map[string]int)
	results := make([]ClassifiedItem, 0, len(items))

	for i := range items {
		sent := enriched[i]
		item := ClassifiedItem{
			TitleNormalized: sent.TitleNormalized,
			Decision:        domain.GateDecision(sent.Candidates),
		}

		if chosen, ok := resultByID[sent.ID]; ok {
			item.ClassificationResult = chosen
			item.Rank = chosenRank(sent.Candidates, chosen)
		} else {
			// The adjudicator dropped the item (typically the
			// retrieval-side empty-candidate case). Surface it rather
			// than losing the id.
			item.ClassificationResult = domain.ClassificationResult{ID: sent.ID}
			item.Rank = 0
			item.Decision = domain.DecisionAmbiguous
		}

		if item.Rank == 0 {
			u.logger.Warn("chosen_result_not_in_candidates",
				slog.String("batch_id", batchID),
				slog.String("item_id", sent.ID),
				slog.Int("candidates_sent", len(sent.Candidates)))
		}

		if item.Decision == domain.DecisionAmbiguous {
			item.RequiresConfirmation = true
			top := sent.Candidates
			if len(top) > 3 {
				top = top[:3]
			}
			item.Alternatives = top
		}

		histogram[fmt.Sprintf("%d", item.Rank)]++
		u.metrics.ChosenRank.WithLabelValues(fmt.Sprintf("%d", item.Rank)).Inc()
		results = append(results, item)
	}

	return &ClassifyBatchOutput{
		Results:       results,
		Tokens:        adjudicated.Tokens,
		RankHistogram: histogram,
	}
}

// chosenRank locates the chosen classification in the sent candidate list
// by full path plus sous-famille code. 1-based; 0 means no match.
func chosenRank(candidates []domain.Candidate, chosen domain.ClassificationResult) int {
	for i, c := range candidates {
		if c.FullPath == chosen.FullPath && c.SousFamilleCode == chosen.SousFamilleCode {
			return i + 1
		}
	}
	return 0
}

func validateBatch(items []domain.TitleItem) error {
	if len(items) == 0 {
		return fmt.Errorf("%w: items must not be empty", domain.ErrInvalidBatch)
	}
	seen := make(map[string]struct{}, len(items))
	for i, it := range items {
		if strings.TrimSpace(it.ID) == "" {
			return fmt.Errorf("%w: item %d has empty id", domain.ErrInvalidBatch, i)
		}
		if strings.TrimSpace(it.Title) == "" {
			return fmt.Errorf("%w: item %q has empty title", domain.ErrInvalidBatch, it.ID)
		}
		if _, dup := seen[it.ID]; dup {
			return fmt.Errorf("%w: duplicate item id %q", domain.ErrInvalidBatch, it.ID)
		}
		seen[it.ID] = struct{}{}
	}
	return nil
}
