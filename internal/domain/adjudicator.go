package domain

import "context"

// AdjudicationItem is one candidate-enriched title handed to the adjudicator.
type AdjudicationItem struct {
	ID              string      `json:"id"`
	TitleNormalized string      `json:"title"`
	Candidates      []Candidate `json:"candidates"`
}

// ClassificationResult is the adjudicator's chosen classification for one
// item. Every result must be traceable back to one of the candidates that
// were sent; results that match none are surfaced as rank 0 by the
// orchestrator, never silently swallowed.
type ClassificationResult struct {
	ID              string       `json:"id"`
	SectorCode      string       `json:"sector_code"`
	SectorName      string       `json:"sector_name"`
	RayonCode       string       `json:"rayon_code"`
	RayonName       string       `json:"rayon_name"`
	FamilleCode     string       `json:"famille_code"`
	FamilleName     string       `json:"famille_name"`
	SousFamilleCode string       `json:"sous_famille_code"`
	SousFamilleName string       `json:"sous_famille_name"`
	FullPath        string       `json:"full_path"`
	SourceScores    SignalScores `json:"source_scores"`
}

// TokenUsage accumulates LLM token counts across adjudication sub-batches.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

// AdjudicationOutput carries the per-item decisions plus token accounting.
type AdjudicationOutput struct {
	Results []ClassificationResult
	Tokens  TokenUsage
}

// Adjudicator picks a final classification per item from the ranked
// candidates the orchestrator sends. Its internal reasoning is a black box;
// the only behavioral requirement is that choices stay within the supplied
// candidate set. A failure fails the whole batch.
type Adjudicator interface {
	Adjudicate(ctx context.Context, items []AdjudicationItem) (*AdjudicationOutput, error)
}
