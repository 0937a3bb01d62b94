// Package decision implements the stateless score verdict shared by the
// gating stage and the second-stage verifier.
//
// A verdict is computed from a [scorer.DetectionResult] and a [Thresholds] set.
// The same function is called with different threshold sets in a single cycle,
// so nothing here keeps state.
package decision

import "github.com/MrWong99/cryguard/pkg/provider/scorer"

// Thresholds is the parameter set consumed by [Passes].
type Thresholds struct {
	// Baby is the minimum target (baby cry) score.
	Baby float64

	// CatWeight scales the confusable score before it is subtracted from the
	// target score.
	CatWeight float64

	// Margin is the minimum value of target - CatWeight*confusable.
	Margin float64

	// CatSuppress is the confusable score at or above which dominance is checked.
	CatSuppress float64
}

// Margin returns target - catWeight*confusable for r.
func Margin(r scorer.DetectionResult, catWeight float64) float64 {
	return r.Baby - catWeight*r.Cat
}

// Dominated reports whether the confusable class dominates the target class.
//
// The rule is confusable >= catSuppress AND NOT(target > confusable AND
// target >= baby). When target == confusable the confusable class wins.
func Dominated(r scorer.DetectionResult, baby, catSuppress float64) bool {
	if r.Cat < catSuppress {
		return false
	}
	return !(r.Baby > r.Cat && r.Baby >= baby)
}

// Passes evaluates r against t. Rules are applied in order: target below the
// baby threshold fails, a margin below t.Margin fails, confusable dominance
// fails; anything else passes.
func Passes(r scorer.DetectionResult, t Thresholds) bool {
	if r.Baby < t.Baby {
		return false
	}
	if Margin(r, t.CatWeight) < t.Margin {
		return false
	}
	if Dominated(r, t.Baby, t.CatSuppress) {
		return false
	}
	return true
}
