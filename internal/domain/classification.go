package domain

import "context"

// TitleItem is one raw article title submitted for classification.
// IDs are caller-supplied and must be unique within a batch.
type TitleItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SignalScores breaks a candidate's score out by matching signal so that
// fusion and thresholding can be applied uniformly downstream.
type SignalScores struct {
	Exact   float64 `json:"exact"`
	Synonym float64 `json:"synonym"`
	Fuzzy   float64 `json:"fuzzy"`
	Vector  float64 `json:"vector"`
	Fused   float64 `json:"fused"`
}

// Candidate is one taxonomy leaf proposed as a classification for a title,
// with its full ancestor chain materialized so callers never need a second
// lookup to render or verify it. Ordering within a candidate list is
// significant: index 0 is the best match.
type Candidate struct {
	SectorCode      string       `json:"sector_code"`
	SectorName      string       `json:"sector_name"`
	RayonCode       string       `json:"rayon_code"`
	RayonName       string       `json:"rayon_name"`
	FamilleCode     string       `json:"famille_code"`
	FamilleName     string       `json:"famille_name"`
	SousFamilleCode string       `json:"sous_famille_code"`
	SousFamilleName string       `json:"sous_famille_name"`
	FullPath        string       `json:"full_path"`
	Scores          SignalScores `json:"scores"`
}

// CandidateRetriever resolves a normalized title to a ranked candidate list.
// An empty list is a valid result (no match); an error means the hierarchy
// index could not be queried.
type CandidateRetriever interface {
	GetCandidatesForTitle(ctx context.Context, normalizedTitle string) ([]Candidate, error)
}

// CandidateCache is a bounded, time-expiring cache keyed by normalized title.
// It is strictly an optimization: absence is its only failure mode.
type CandidateCache interface {
	Get(key string) ([]Candidate, bool)
	Set(key string, value []Candidate)
}
