package taxonomy

import (
	"context"
	"fmt"

	"classify-orchestrator/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

type postgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository loads the taxonomy from the classification database.
func NewPostgresRepository(pool *pgxpool.Pool) domain.TaxonomyRepository {
	return &postgresRepository{pool: pool}
}

func (r *postgresRepository) Load(ctx context.Context) (*domain.Taxonomy, error) {
	leaves, err := r.loadLeaves(ctx)
	if err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return nil, fmt.Errorf("taxonomy_leaves is empty")
	}

	synonyms, err := r.loadSynonyms(ctx)
	if err != nil {
		return nil, err
	}

	hash, err := r.loadHash(ctx)
	if err != nil {
		return nil, err
	}

	return &domain.Taxonomy{Leaves: leaves, Synonyms: synonyms, Hash: hash}, nil
}

func (r *postgresRepository) loadLeaves(ctx context.Context) ([]domain.Leaf, error) {
	query := `
		SELECT secteur_code, secteur_name,
		       rayon_code, rayon_name,
		       famille_code, famille_name,
		       sous_famille_code, sous_famille_name
		FROM taxonomy_leaves
		ORDER BY secteur_code, rayon_code, famille_code, sous_famille_code
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query taxonomy leaves: %w", err)
	}
	defer rows.Close()

	var leaves []domain.Leaf
	for rows.Next() {
		var l domain.Leaf
		if err := rows.Scan(
			&l.Sector.Code, &l.Sector.Name,
			&l.Rayon.Code, &l.Rayon.Name,
			&l.Famille.Code, &l.Famille.Name,
			&l.SousFamille.Code, &l.SousFamille.Name,
		); err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy leaf: %w", err)
		}
		leaves = append(leaves, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return leaves, nil
}

func (r *postgresRepository) loadSynonyms(ctx context.Context) (map[string][]string, error) {
	query := `
		SELECT canonical_label, variant
		FROM taxonomy_synonyms
		ORDER BY canonical_label, variant
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query taxonomy synonyms: %w", err)
	}
	defer rows.Close()

	synonyms := map[string][]string{}
	for rows.Next() {
		var canonical, variant string
		if err := rows.Scan(&canonical, &variant); err != nil {
			return nil, fmt.Errorf("failed to scan taxonomy synonym: %w", err)
		}
		synonyms[canonical] = append(synonyms[canonical], variant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return synonyms, nil
}

// loadHash returns the version fingerprint maintained by the taxonomy import
// job. A changed fingerprint is what triggers an index rebuild.
func (r *postgresRepository) loadHash(ctx context.Context) (string, error) {
	var hash string
	err := r.pool.QueryRow(ctx, `SELECT content_hash FROM taxonomy_versions ORDER BY imported_at DESC LIMIT 1`).Scan(&hash)
	if err != nil {
		return "", fmt.Errorf("failed to query taxonomy version: %w", err)
	}
	return hash, nil
}

type leafVectorRepository struct {
	pool *pgxpool.Pool
}

// NewLeafVectorRepository searches precomputed sous-famille label embeddings.
func NewLeafVectorRepository(pool *pgxpool.Pool) domain.LeafVectorRepository {
	return &leafVectorRepository{pool: pool}
}

func (r *leafVectorRepository) SearchLeafVectors(ctx context.Context, vector []float32, limit int) ([]domain.LeafVectorHit, error) {
	query := `
		SELECT leaf_key, 1 - (embedding <=> $1) AS cosine
		FROM taxonomy_leaf_vectors
		ORDER BY embedding <=> $1
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search leaf vectors: %w", err)
	}
	defer rows.Close()

	var hits []domain.LeafVectorHit
	for rows.Next() {
		var h domain.LeafVectorHit
		if err := rows.Scan(&h.LeafKey, &h.Cosine); err != nil {
			return nil, fmt.Errorf("failed to scan leaf vector hit: %w", err)
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return hits, nil
}
