package adjudicator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"classify-orchestrator/internal/domain"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const systemPrompt = `Tu es un expert en classification d'articles de grande distribution française.
Pour chaque article, choisis EXACTEMENT UNE sous-famille parmi les candidats fournis.
Règles strictes :
- Ne choisis JAMAIS une classification absente de la liste des candidats de l'article.
- Recopie les codes et les libellés à l'identique, sans les modifier ni les traduire.
- Si plusieurs candidats conviennent, choisis le plus spécifique.
Réponds UNIQUEMENT en JSON strict de la forme :
{"results":[{"id":"...","sector_code":"...","sector_name":"...","rayon_code":"...","rayon_name":"...","famille_code":"...","famille_name":"...","sous_famille_code":"...","sous_famille_name":"...","full_path":"..."}]}`

// chatClient is the slice of the OpenAI client the adjudicator needs.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config tunes sub-batching and backpressure toward the LLM backend.
type Config struct {
	Model string
	// SubBatchSize is how many items share one LLM call.
	SubBatchSize int
	// MaxConcurrency bounds in-flight LLM calls.
	MaxConcurrency int
	// RequestsPerSecond throttles calls across the whole process.
	RequestsPerSecond float64
}

// DefaultConfig matches the endpoint defaults.
func DefaultConfig() Config {
	return Config{
		Model:             openai.GPT4oMini,
		SubBatchSize:      25,
		MaxConcurrency:    4,
		RequestsPerSecond: 4,
	}
}

type OpenAIAdjudicator struct {
	client  chatClient
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewOpenAIAdjudicator wires an LLM-backed adjudicator. The circuit breaker
// keeps a flapping backend from burning the whole rate budget on timeouts.
func NewOpenAIAdjudicator(client chatClient, cfg Config, logger *slog.Logger) *OpenAIAdjudicator {
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}
	if cfg.SubBatchSize <= 0 {
		cfg.SubBatchSize = DefaultConfig().SubBatchSize
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultConfig().RequestsPerSecond
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "openai-adjudicator",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("adjudicator_breaker_state_changed",
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &OpenAIAdjudicator{
		client:  client,
		cfg:     cfg,
		breaker: breaker,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.MaxConcurrency),
		logger:  logger,
	}
}

// promptItem is the per-article payload sent to the model. Only the fields
// the model needs to decide are serialized; score breakdown stays internal
// except for the fused value, which helps it weigh near-ties.
type promptItem struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Candidates []promptCandidate `json:"candidates"`
}

type promptCandidate struct {
	SectorCode      string  `json:"sector_code"`
	SectorName      string  `json:"sector_name"`
	RayonCode       string  `json:"rayon_code"`
	RayonName       string  `json:"rayon_name"`
	FamilleCode     string  `json:"famille_code"`
	FamilleName     string  `json:"famille_name"`
	SousFamilleCode string  `json:"sous_famille_code"`
	SousFamilleName string  `json:"sous_famille_name"`
	FullPath        string  `json:"full_path"`
	Score           float64 `json:"score"`
}

type completionPayload struct {
	Results []domain.ClassificationResult `json:"results"`
}

func (a *OpenAIAdjudicator) Adjudicate(ctx context.Context, items []domain.AdjudicationItem) (*domain.AdjudicationOutput, error) {
	// Items without candidates have nothing to decide; the orchestrator
	// surfaces them as unmatched.
	withCandidates := make([]domain.AdjudicationItem, 0, len(items))
	for _, it := range items {
		if len(it.Candidates) > 0 {
			withCandidates = append(withCandidates, it)
		}
	}
	if len(withCandidates) == 0 {
		return &domain.AdjudicationOutput{}, nil
	}

	var (
		mu      sync.Mutex
		results []domain.ClassificationResult
		tokens  domain.TokenUsage
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.MaxConcurrency)
	for start := 0; start < len(withCandidates); start += a.cfg.SubBatchSize {
		end := min(start+a.cfg.SubBatchSize, len(withCandidates))
		sub := withCandidates[start:end]
		g.Go(func() error {
			payload, usage, err := a.adjudicateSubBatch(gctx, sub)
			if err != nil {
				return err
			}
			mu.Lock()
			results = append(results, payload...)
			tokens.Input += usage.PromptTokens
			tokens.Output += usage.CompletionTokens
			tokens.Total += usage.TotalTokens
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAdjudicationFailed, err)
	}

	return &domain.AdjudicationOutput{Results: results, Tokens: tokens}, nil
}

func (a *OpenAIAdjudicator) adjudicateSubBatch(ctx context.Context, sub []domain.AdjudicationItem) ([]domain.ClassificationResult, openai.Usage, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, openai.Usage{}, err
	}

	prompt := make([]promptItem, 0, len(sub))
	for _, it := range sub {
		candidates := make([]promptCandidate, 0, len(it.Candidates))
		for _, c := range it.Candidates {
			candidates = append(candidates, promptCandidate{
				SectorCode:      c.SectorCode,
				SectorName:      c.SectorName,
				RayonCode:       c.RayonCode,
				RayonName:       c.RayonName,
				FamilleCode:     c.FamilleCode,
				FamilleName:     c.FamilleName,
				SousFamilleCode: c.SousFamilleCode,
				SousFamilleName: c.SousFamilleName,
				FullPath:        c.FullPath,
				Score:           c.Scores.Fused,
			})
		}
		prompt = append(prompt, promptItem{ID: it.ID, Title: it.TitleNormalized, Candidates: candidates})
	}
	userContent, err := json.Marshal(map[string]any{"articles": prompt})
	if err != nil {
		return nil, openai.Usage{}, fmt.Errorf("failed to marshal prompt: %w", err)
	}

	start := time.Now()
	raw, err := a.breaker.Execute(func() (interface{}, error) {
		return a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       a.cfg.Model,
			Temperature: 0,
			ResponseFormat: &openai.ChatCompletionResponseFormat{
				Type: openai.ChatCompletionResponseFormatTypeJSONObject,
			},
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: string(userContent)},
			},
		})
	})
	if err != nil {
		a.logger.Error("adjudication_call_failed",
			slog.Int("items", len(sub)),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		return nil, openai.Usage{}, err
	}
	resp := raw.(openai.ChatCompletionResponse)

	if len(resp.Choices) == 0 {
		return nil, openai.Usage{}, fmt.Errorf("llm returned no choices")
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	var payload completionPayload
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, openai.Usage{}, fmt.Errorf("failed to parse llm response: %w", err)
	}

	// Drop results for ids the model invented. Missing ids are the
	// orchestrator's problem; foreign ids are ours.
	known := make(map[string]struct{}, len(sub))
	for _, it := range sub {
		known[it.ID] = struct{}{}
	}
	kept := payload.Results[:0]
	for _, r := range payload.Results {
		if _, ok := known[r.ID]; ok {
			kept = append(kept, r)
		} else {
			a.logger.Warn("adjudication_unknown_id_dropped", slog.String("id", r.ID))
		}
	}

	a.logger.Debug("adjudication_sub_batch_completed",
		slog.Int("items", len(sub)),
		slog.Int("results", len(kept)),
		slog.Int("total_tokens", resp.Usage.TotalTokens),
		slog.Duration("elapsed", time.Since(start)))

	return kept, resp.Usage, nil
}

var _ domain.Adjudicator = (*OpenAIAdjudicator)(nil)
