package taxonomy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"classify-orchestrator/internal/domain"
)

// leafRecord is one row of the hierarchy export file.
type leafRecord struct {
	SecteurCode     string `json:"secteur_code"`
	SecteurName     string `json:"secteur_name"`
	RayonCode       string `json:"rayon_code"`
	RayonName       string `json:"rayon_name"`
	FamilleCode     string `json:"famille_code"`
	FamilleName     string `json:"famille_name"`
	SousFamilleCode string `json:"sous_famille_code"`
	SousFamilleName string `json:"sous_famille_name"`
}

type fileRepository struct {
	hierarchyPath string
	synonymsPath  string
}

// NewFileRepository reads the taxonomy from a JSON hierarchy export plus an
// optional synonyms file (canonical sous-famille label to variant spellings).
// Pass an empty synonymsPath to load without synonyms.
func NewFileRepository(hierarchyPath, synonymsPath string) domain.TaxonomyRepository {
	return &fileRepository{hierarchyPath: hierarchyPath, synonymsPath: synonymsPath}
}

func (r *fileRepository) Load(ctx context.Context) (*domain.Taxonomy, error) {
	hierarchyData, err := os.ReadFile(r.hierarchyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read hierarchy file: %w", err)
	}

	var records []leafRecord
	if err := json.Unmarshal(hierarchyData, &records); err != nil {
		return nil, fmt.Errorf("failed to parse hierarchy file: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("hierarchy file %s contains no leaves", r.hierarchyPath)
	}

	leaves := make([]domain.Leaf, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, rec := range records {
		if rec.SousFamilleCode == "" || rec.SousFamilleName == "" {
			return nil, fmt.Errorf("hierarchy record %d is missing sous-famille code or name", i)
		}
		leaf := domain.Leaf{
			Sector:      domain.Level{Code: rec.SecteurCode, Name: rec.SecteurName},
			Rayon:       domain.Level{Code: rec.RayonCode, Name: rec.RayonName},
			Famille:     domain.Level{Code: rec.FamilleCode, Name: rec.FamilleName},
			SousFamille: domain.Level{Code: rec.SousFamilleCode, Name: rec.SousFamilleName},
		}
		key := leaf.Key()
		if _, dup := seen[key]; dup {
			return nil, fmt.Errorf("duplicate leaf key %s in hierarchy file", key)
		}
		seen[key] = struct{}{}
		leaves = append(leaves, leaf)
	}

	hash := sha256.New()
	hash.Write(hierarchyData)

	synonyms := map[string][]string{}
	if r.synonymsPath != "" {
		synonymsData, err := os.ReadFile(r.synonymsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read synonyms file: %w", err)
		}
		if err := json.Unmarshal(synonymsData, &synonyms); err != nil {
			return nil, fmt.Errorf("failed to parse synonyms file: %w", err)
		}
		hash.Write(synonymsData)
	}

	return &domain.Taxonomy{
		Leaves:   leaves,
		Synonyms: synonyms,
		Hash:     hex.EncodeToString(hash.Sum(nil)),
	}, nil
}
