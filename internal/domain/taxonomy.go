package domain

import (
	"context"
	"fmt"
)

// Level is one node of the classification hierarchy (code + display name).
type Level struct {
	Code string
	Name string
}

// Leaf is one sous-famille with its full ancestor chain
// (sector > rayon > famille > sous-famille).
type Leaf struct {
	Sector      Level
	Rayon       Level
	Famille     Level
	SousFamille Level
}

// Key returns the globally unique leaf key built from the path codes.
// Keys sort in taxonomy-path order, which the retriever relies on for
// deterministic tie-breaking.
func (l Leaf) Key() string {
	return fmt.Sprintf("%s-%s-%s-%s", l.Sector.Code, l.Rayon.Code, l.Famille.Code, l.SousFamille.Code)
}

// FullPath renders the human-readable ancestor chain.
func (l Leaf) FullPath() string {
	return fmt.Sprintf("%s > %s > %s > %s", l.Sector.Name, l.Rayon.Name, l.Famille.Name, l.SousFamille.Name)
}

// Candidate materializes the leaf as a scored classification candidate.
func (l Leaf) Candidate(scores SignalScores) Candidate {
	return Candidate{
		SectorCode:      l.Sector.Code,
		SectorName:      l.Sector.Name,
		RayonCode:       l.Rayon.Code,
		RayonName:       l.Rayon.Name,
		FamilleCode:     l.Famille.Code,
		FamilleName:     l.Famille.Name,
		SousFamilleCode: l.SousFamille.Code,
		SousFamilleName: l.SousFamille.Name,
		FullPath:        l.FullPath(),
		Scores:          scores,
	}
}

// Taxonomy is a read-only snapshot of the classification hierarchy.
// Synonyms maps a canonical leaf label to its known variant spellings.
type Taxonomy struct {
	Leaves   []Leaf
	Synonyms map[string][]string
	Hash     string
}

// TaxonomyRepository loads taxonomy snapshots. Construction and storage of
// the hierarchy are owned elsewhere; this service only reads it.
type TaxonomyRepository interface {
	Load(ctx context.Context) (*Taxonomy, error)
}

// LeafVectorHit is one leaf scored by embedding similarity.
type LeafVectorHit struct {
	LeafKey string
	Cosine  float64
}

// LeafVectorRepository searches precomputed leaf embeddings by vector
// similarity. Optional collaborator for the vector retrieval signal.
type LeafVectorRepository interface {
	SearchLeafVectors(ctx context.Context, vector []float32, limit int) ([]LeafVectorHit, error)
}

// VectorEncoder embeds normalized titles for the vector retrieval signal.
type VectorEncoder interface {
	Encode(ctx context.Context, texts []string) ([][]float32, error)
	Version() string
}
