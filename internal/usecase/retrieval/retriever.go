package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"classify-orchestrator/internal/domain"

	"golang.org/x/sync/errgroup"
)

// Signal score constants: exact beats synonym beats fuzzy by construction.
const (
	exactScore   = 1.0
	synonymScore = 0.97
)

// Config tunes candidate retrieval.
type Config struct {
	// TopK bounds the returned candidate list.
	TopK int
	// FuzzyTopN bounds how many fuzzy hits participate in fusion.
	FuzzyTopN int
	// FuzzyMinSimilarity drops fuzzy hits below this similarity.
	FuzzyMinSimilarity float64
	// VectorWeight is the embedding share of the fused score when the
	// vector signal is enabled.
	VectorWeight float64
	// VectorLimit bounds the leaf-embedding search.
	VectorLimit int
}

// DefaultConfig mirrors the tuning the batch endpoint ships with.
func DefaultConfig() Config {
	return Config{
		TopK:               5,
		FuzzyTopN:          3,
		FuzzyMinSimilarity: 0.5,
		VectorWeight:       0.65,
		VectorLimit:        50,
	}
}

// Option configures optional retriever collaborators.
type Option func(*Retriever)

// WithVectorSignal enables the embedding-cosine signal using the given
// encoder and leaf-vector store. When enabled, a signal failure fails the
// retrieval rather than silently dropping the signal.
func WithVectorSignal(encoder domain.VectorEncoder, vectors domain.LeafVectorRepository) Option {
	return func(r *Retriever) {
		r.encoder = encoder
		r.vectors = vectors
	}
}

// Retriever resolves normalized titles to ranked taxonomy candidates by
// fusing exact, synonym, and fuzzy signals (plus an optional vector
// signal). The active index can be swapped atomically while requests are
// in flight.
type Retriever struct {
	cfg     Config
	idx     atomic.Pointer[Index]
	encoder domain.VectorEncoder
	vectors domain.LeafVectorRepository
	logger  *slog.Logger
}

// NewRetriever builds a retriever over the given index snapshot.
func NewRetriever(idx *Index, cfg Config, logger *slog.Logger, opts ...Option) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.FuzzyTopN <= 0 {
		cfg.FuzzyTopN = DefaultConfig().FuzzyTopN
	}
	if cfg.FuzzyMinSimilarity <= 0 {
		cfg.FuzzyMinSimilarity = DefaultConfig().FuzzyMinSimilarity
	}
	if cfg.VectorWeight <= 0 || cfg.VectorWeight >= 1 {
		cfg.VectorWeight = DefaultConfig().VectorWeight
	}
	if cfg.VectorLimit <= 0 {
		cfg.VectorLimit = DefaultConfig().VectorLimit
	}
	r := &Retriever{cfg: cfg, logger: logger}
	r.idx.Store(idx)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SwapIndex atomically replaces the active index snapshot.
func (r *Retriever) SwapIndex(idx *Index) {
	r.idx.Swap(idx)
}

// TaxonomyHash identifies the active snapshot.
func (r *Retriever) TaxonomyHash() string {
	if idx := r.idx.Load(); idx != nil {
		return idx.Hash()
	}
	return ""
}

type leafSignals struct {
	exact   float64
	synonym float64
	fuzzy   float64
	vector  float64
}

// GetCandidatesForTitle returns the ranked candidate list for an
// already-normalized title. Zero matches yield an empty list, not an error;
// an unavailable index or a failed enabled signal yields
// domain.ErrRetrievalUnavailable.
func (r *Retriever) GetCandidatesForTitle(ctx context.Context, normalizedTitle string) ([]domain.Candidate, error) {
	idx := r.idx.Load()
	if idx == nil {
		return nil, fmt.Errorf("%w: no taxonomy index loaded", domain.ErrRetrievalUnavailable)
	}
	if normalizedTitle == "" {
		return []domain.Candidate{}, nil
	}

	start := time.Now()
	hits := make(map[int]*leafSignals)
	signal := func(ord int) *leafSignals {
		h, ok := hits[ord]
		if !ok {
			h = &leafSignals{}
			hits[ord] = h
		}
		return h
	}

	// Vector signal runs concurrently with the in-memory lexical signals.
	vectorEnabled := r.encoder != nil && r.vectors != nil
	var vecByKey map[string]float64
	g, gctx := errgroup.WithContext(ctx)
	if vectorEnabled {
		g.Go(func() error {
			embeddings, err := r.encoder.Encode(gctx, []string{normalizedTitle})
			if err != nil {
				return fmt.Errorf("%w: encode title: %v", domain.ErrRetrievalUnavailable, err)
			}
			if len(embeddings) != 1 {
				return fmt.Errorf("%w: expected 1 embedding, got %d", domain.ErrRetrievalUnavailable, len(embeddings))
			}
			vecHits, err := r.vectors.SearchLeafVectors(gctx, embeddings[0], r.cfg.VectorLimit)
			if err != nil {
				return fmt.Errorf("%w: leaf vector search: %v", domain.ErrRetrievalUnavailable, err)
			}
			vecByKey = make(map[string]float64, len(vecHits))
			for _, h := range vecHits {
				vecByKey[h.LeafKey] = h.Cosine
			}
			return nil
		})
	}

	// 1) Exact label match.
	for _, ord := range idx.exact[normalizedTitle] {
		signal(ord).exact = exactScore
	}

	// 2) Synonym-table match.
	for _, ord := range idx.synonyms[normalizedTitle] {
		signal(ord).synonym = synonymScore
	}

	// 3) Fuzzy similarity, restricted to leaves sharing at least one token
	// with the query, keeping only the top-N.
	type fuzzyHit struct {
		ord int
		sim float64
	}
	var fuzzyHits []fuzzyHit
	for _, ord := range idx.tokenSubtree(strings.Fields(normalizedTitle)) {
		sim := Similarity(normalizedTitle, idx.labels[ord])
		if sim >= r.cfg.FuzzyMinSimilarity {
			fuzzyHits = append(fuzzyHits, fuzzyHit{ord: ord, sim: sim})
		}
	}
	sort.Slice(fuzzyHits, func(i, j int) bool {
		if fuzzyHits[i].sim != fuzzyHits[j].sim {
			return fuzzyHits[i].sim > fuzzyHits[j].sim
		}
		return idx.leaves[fuzzyHits[i].ord].Key() < idx.leaves[fuzzyHits[j].ord].Key()
	})
	if len(fuzzyHits) > r.cfg.FuzzyTopN {
		fuzzyHits = fuzzyHits[:r.cfg.FuzzyTopN]
	}
	for _, fh := range fuzzyHits {
		signal(fh.ord).fuzzy = fh.sim
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(hits) == 0 {
		return []domain.Candidate{}, nil
	}

	for ord, h := range hits {
		if vecByKey != nil {
			h.vector = vecByKey[idx.leaves[ord].Key()]
		}
	}

	candidates := r.fuse(idx, hits, vectorEnabled)
	if len(candidates) > r.cfg.TopK {
		candidates = candidates[:r.cfg.TopK]
	}

	r.logger.Debug("candidates_retrieved",
		slog.String("title", normalizedTitle),
		slog.Int("candidate_count", len(candidates)),
		slog.Bool("vector_signal", vectorEnabled),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	return candidates, nil
}

// fuse combines the per-leaf signals into one ranked list. The lexical
// score is max(exact, synonym, fuzzy); with the vector signal enabled,
// lexical and cosine are min-max normalized across the hit set and blended
// as VectorWeight*vector + (1-VectorWeight)*lexical. Ties break on
// ascending leaf key so output is deterministic across runs.
func (r *Retriever) fuse(idx *Index, hits map[int]*leafSignals, vectorEnabled bool) []domain.Candidate {
	type scored struct {
		ord    int
		key    string
		scores domain.SignalScores
	}

	list := make([]scored, 0, len(hits))
	minLex, maxLex := 1.0, 0.0
	minVec, maxVec := 1.0, 0.0
	for ord, h := range hits {
		lexical := h.exact
		if h.synonym > lexical {
			lexical = h.synonym
		}
		if h.fuzzy > lexical {
			lexical = h.fuzzy
		}
		if lexical < minLex {
			minLex = lexical
		}
		if lexical > maxLex {
			maxLex = lexical
		}
		if h.vector < minVec {
			minVec = h.vector
		}
		if h.vector > maxVec {
			maxVec = h.vector
		}
		list = append(list, scored{
			ord: ord,
			key: idx.leaves[ord].Key(),
			scores: domain.SignalScores{
				Exact:   h.exact,
				Synonym: h.synonym,
				Fuzzy:   h.fuzzy,
				Vector:  h.vector,
				Fused:   lexical,
			},
		})
	}

	if vectorEnabled {
		for i := range list {
			lex := minMax(list[i].scores.Fused, minLex, maxLex)
			vec := minMax(list[i].scores.Vector, minVec, maxVec)
			list[i].scores.Fused = r.cfg.VectorWeight*vec + (1-r.cfg.VectorWeight)*lex
		}
	}

	sort.Slice(list, func(i, j int) bool {
		if list[i].scores.Fused != list[j].scores.Fused {
			return list[i].scores.Fused > list[j].scores.Fused
		}
		return list[i].key < list[j].key
	})

	candidates := make([]domain.Candidate, 0, len(list))
	for _, s := range list {
		candidates = append(candidates, idx.leaves[s.ord].Candidate(s.scores))
	}
	return candidates
}

func minMax(v, min, max float64) float64 {
	if max <= min {
		return 0
	}
	return (v - min) / (max - min)
}

var _ domain.CandidateRetriever = (*Retriever)(nil)
