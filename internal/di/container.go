package di

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"

	"classify-orchestrator/internal/adapter/adjudicator"
	"classify-orchestrator/internal/adapter/classify_http"
	"classify-orchestrator/internal/adapter/embedder"
	"classify-orchestrator/internal/adapter/taxonomy"
	"classify-orchestrator/internal/cache"
	"classify-orchestrator/internal/domain"
	"classify-orchestrator/internal/infra/config"
	"classify-orchestrator/internal/infra/httpclient"
	"classify-orchestrator/internal/infra/metrics"
	"classify-orchestrator/internal/usecase"
	"classify-orchestrator/internal/usecase/retrieval"
	"classify-orchestrator/internal/worker"
)

// ApplicationComponents holds all wired dependencies for the application.
type ApplicationComponents struct {
	TaxonomyRepo domain.TaxonomyRepository
	Retriever    *retrieval.Retriever
	Cache        *cache.RetrievalCache
	Metrics      *metrics.Metrics

	ClassifyUsecase usecase.ClassifyBatchUsecase
	Handler         *classify_http.Handler

	Worker *worker.TaxonomyReloadWorker
}

// NewApplicationComponents wires all dependencies from config. The pool may
// be nil when DB-backed features are disabled; the taxonomy then comes from
// the hierarchy file and the vector signal stays off.
func NewApplicationComponents(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log *slog.Logger) (*ApplicationComponents, error) {
	m := metrics.New(prometheus.DefaultRegisterer)
	normalizer := domain.NewTitleNormalizer()

	// Taxonomy source
	var taxonomyRepo domain.TaxonomyRepository
	if cfg.DB.Enabled && pool != nil {
		taxonomyRepo = taxonomy.NewPostgresRepository(pool)
	} else {
		taxonomyRepo = taxonomy.NewFileRepository(cfg.Taxonomy.HierarchyPath, cfg.Taxonomy.SynonymsPath)
	}

	// Initial index build. Startup fails hard on a broken taxonomy; only
	// reloads degrade gracefully.
	tax, err := taxonomyRepo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}
	idx := retrieval.NewIndex(tax, normalizer)
	m.TaxonomyLeaves.Set(float64(idx.Len()))
	log.Info("taxonomy_loaded",
		slog.String("hash", tax.Hash),
		slog.Int("leaves", idx.Len()))

	// Retriever, with the vector signal when the DB carries leaf embeddings.
	retrievalCfg := retrieval.Config{
		TopK:               cfg.Retrieval.TopK,
		FuzzyTopN:          cfg.Retrieval.FuzzyTopN,
		FuzzyMinSimilarity: cfg.Retrieval.FuzzyMinSimilarity,
		VectorWeight:       cfg.Vector.Weight,
		VectorLimit:        cfg.Vector.Limit,
	}
	var opts []retrieval.Option
	if cfg.Vector.Enabled && pool != nil {
		embedderHTTP := httpclient.NewPooledClient(time.Duration(cfg.Embedder.Timeout) * time.Second)
		encoder := embedder.NewOllamaEmbedder(cfg.Embedder.URL, cfg.Embedder.Model, embedderHTTP)
		leafVectors := taxonomy.NewLeafVectorRepository(pool)
		opts = append(opts, retrieval.WithVectorSignal(encoder, leafVectors))
		log.Info("vector_signal_enabled",
			slog.String("embedder_url", cfg.Embedder.URL),
			slog.String("embedder_model", cfg.Embedder.Model),
			slog.Float64("weight", cfg.Vector.Weight))
	}
	retriever := retrieval.NewRetriever(idx, retrievalCfg, log, opts...)

	// Retrieval cache
	retrievalCache := cache.New(cfg.Cache.Size, time.Duration(cfg.Cache.TTLMinutes)*time.Minute)

	// LLM adjudicator
	clientCfg := openai.DefaultConfig(cfg.OpenAI.APIKey)
	if cfg.OpenAI.BaseURL != "" {
		clientCfg.BaseURL = cfg.OpenAI.BaseURL
	}
	clientCfg.HTTPClient = httpclient.NewPooledClient(90 * time.Second)
	llmAdjudicator := adjudicator.NewOpenAIAdjudicator(
		openai.NewClientWithConfig(clientCfg),
		adjudicator.Config{
			Model:             cfg.OpenAI.Model,
			SubBatchSize:      cfg.OpenAI.SubBatchSize,
			MaxConcurrency:    cfg.OpenAI.MaxConcurrency,
			RequestsPerSecond: cfg.OpenAI.RequestsPerSecond,
		},
		log,
	)

	// Batch orchestrator
	classifyUsecase := usecase.NewClassifyBatchUsecase(
		normalizer,
		retriever,
		retrievalCache,
		llmAdjudicator,
		m,
		usecase.BatchConfig{
			MaxItems:         cfg.Batch.MaxItems,
			MaxConcurrency:   cfg.Batch.MaxConcurrency,
			RetrievalTimeout: time.Duration(cfg.Batch.RetrievalTimeoutSeconds) * time.Second,
		},
		log,
	)

	handler := classify_http.NewHandler(classifyUsecase, retriever)

	// Background taxonomy reload
	var reloadWorker *worker.TaxonomyReloadWorker
	if cfg.Taxonomy.ReloadMinutes > 0 {
		reloadWorker = worker.NewTaxonomyReloadWorker(
			taxonomyRepo, retriever, normalizer, m,
			time.Duration(cfg.Taxonomy.ReloadMinutes)*time.Minute, log,
		)
	}

	return &ApplicationComponents{
		TaxonomyRepo:    taxonomyRepo,
		Retriever:       retriever,
		Cache:           retrievalCache,
		Metrics:         m,
		ClassifyUsecase: classifyUsecase,
		Handler:         handler,
		Worker:          reloadWorker,
	}, nil
}
