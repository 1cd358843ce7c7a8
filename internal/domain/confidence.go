package domain

// Decision is the confidence gate's verdict for an adjudicated item.
type Decision string

const (
	// DecisionConfident finalizes the top-1 candidate directly.
	DecisionConfident Decision = "confident"
	// DecisionAmbiguous requires explicit confirmation; the top-3
	// candidates are presented to the confirmer.
	DecisionAmbiguous Decision = "ambiguous"
)

// Gate thresholds are hard design constants enforcing the precision target.
// They are not deployment knobs.
const (
	ConfidenceThreshold = 0.85
	MarginThreshold     = 0.10
)

// gateEpsilon absorbs float rounding at the inclusive boundary.
const gateEpsilon = 1e-9

// GateDecision applies the confidence gate to a ranked candidate list:
// confident iff top-1 fused >= 0.85 and the margin to top-2 >= 0.10, both
// inclusive. An empty list is ambiguous by definition (the retrieval-side
// empty-result case is handled separately by the orchestrator).
func GateDecision(candidates []Candidate) Decision {
	if len(candidates) == 0 {
		return DecisionAmbiguous
	}
	top1 := candidates[0].Scores.Fused
	top2 := 0.0
	if len(candidates) > 1 {
		top2 = candidates[1].Scores.Fused
	}
	if top1+gateEpsilon >= ConfidenceThreshold && (top1-top2)+gateEpsilon >= MarginThreshold {
		return DecisionConfident
	}
	return DecisionAmbiguous
}
