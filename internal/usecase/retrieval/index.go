package retrieval

import (
	"classify-orchestrator/internal/domain"
)

// Index is an immutable in-memory search structure over one taxonomy
// snapshot. Lookups run against normalized label forms; the inverted token
// postings let the fuzzy signal visit only leaves sharing vocabulary with
// the query instead of scanning the whole hierarchy.
//
// Indexes are never mutated after construction; the reload worker swaps in
// a fresh one atomically.
type Index struct {
	leaves   []domain.Leaf
	labels   []string         // normalized sous-famille label per leaf
	exact    map[string][]int // normalized label -> leaf ordinals
	synonyms map[string][]int // normalized synonym variant -> leaf ordinals
	postings map[string][]int // label token -> leaf ordinals
	byKey    map[string]int   // leaf key -> ordinal
	hash     string
}

// NewIndex builds the search structure for a taxonomy snapshot. Labels and
// synonyms pass through the same normalizer as incoming titles, which is
// what makes exact/synonym matching correct.
func NewIndex(tax *domain.Taxonomy, normalizer *domain.TitleNormalizer) *Index {
	idx := &Index{
		leaves:   tax.Leaves,
		labels:   make([]string, len(tax.Leaves)),
		exact:    make(map[string][]int),
		synonyms: make(map[string][]int),
		postings: make(map[string][]int),
		byKey:    make(map[string]int, len(tax.Leaves)),
		hash:     tax.Hash,
	}

	for i, leaf := range tax.Leaves {
		norm := normalizer.Normalize(leaf.SousFamille.Name)
		idx.labels[i] = norm.Normalized
		if norm.Normalized != "" {
			idx.exact[norm.Normalized] = append(idx.exact[norm.Normalized], i)
		}
		for _, tok := range norm.Tokens {
			idx.postings[tok] = append(idx.postings[tok], i)
		}
		idx.byKey[leaf.Key()] = i
	}

	for canonical, variants := range tax.Synonyms {
		canonNorm := normalizer.Normalize(canonical).Normalized
		ordinals := idx.exact[canonNorm]
		if len(ordinals) == 0 {
			continue
		}
		for _, variant := range variants {
			v := normalizer.Normalize(variant).Normalized
			if v == "" || v == canonNorm {
				continue
			}
			idx.synonyms[v] = append(idx.synonyms[v], ordinals...)
		}
	}

	return idx
}

// Hash identifies the taxonomy snapshot this index was built from.
func (idx *Index) Hash() string {
	return idx.hash
}

// Len reports the number of indexed leaves.
func (idx *Index) Len() int {
	return len(idx.leaves)
}

// tokenSubtree collects the ordinals of leaves sharing at least one token
// with the query, deduplicated, in leaf order.
func (idx *Index) tokenSubtree(tokens []string) []int {
	seen := make(map[int]struct{})
	var ordinals []int
	for _, tok := range tokens {
		for _, ord := range idx.postings[tok] {
			if _, ok := seen[ord]; ok {
				continue
			}
			seen[ord] = struct{}{}
			ordinals = append(ordinals, ord)
		}
	}
	return ordinals
}
