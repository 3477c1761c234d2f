package drift

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// #region classify

// classify runs the ordered multi-signal decision tree over a detection
// result. The branch order matters: the conditions are not mutually
// exclusive, and a single-ratio heuristic collapses to covariate in almost
// every real run because post-normalization mean/std shifts are rarely zero.
func classify(result DriftResult) DriftType {
	total := len(result.FeatureDrifts)
	if total == 0 {
		return DriftNone
	}

	driftedCount := 0
	for _, d := range result.FeatureDrifts {
		if d.IsDrifted {
			driftedCount++
		}
	}
	driftRatio := float64(driftedCount) / float64(total)

	// 1. No meaningful drift
	if !result.IsDriftDetected || driftRatio < 0.05 {
		return DriftNone
	}

	// 2. Shift magnitudes over drifted features, PSI consistency over all
	var meanShiftSum, stdShiftSum float64
	for _, d := range result.FeatureDrifts {
		if d.IsDrifted {
			meanShiftSum += math.Abs(d.MeanShift)
			stdShiftSum += math.Abs(d.StdShift)
		}
	}
	avgMeanShift := meanShiftSum / float64(driftedCount)
	avgStdShift := stdShiftSum / float64(driftedCount)

	psiScores := make([]float64, total)
	for i, d := range result.FeatureDrifts {
		psiScores[i] = d.PSIScore
	}
	psiMean := stat.Mean(psiScores, nil)
	driftConsistency := 0.0
	if psiMean > 0 {
		driftConsistency = stat.PopStdDev(psiScores, nil) / psiMean
	}

	// 3. Few features, location-dominated shift → output distribution shift
	if driftRatio < 0.20 && avgMeanShift > 2.0*avgStdShift {
		return DriftPrior
	}

	// 4. Moderate + inconsistent, or shape-dominated → relationship change
	if (driftRatio >= 0.20 && driftRatio <= 0.50 && driftConsistency > 0.5) ||
		avgStdShift/math.Max(avgMeanShift, 0.01) > 2.0 {
		return DriftConcept
	}

	// 5. Broad, consistent shift → input distribution change
	if driftRatio > 0.50 && driftConsistency < 0.5 {
		return DriftCovariate
	}

	// 6. Ambiguous middle ground: tie-break purely on drift ratio
	switch {
	case driftRatio > 0.40:
		return DriftCovariate
	case driftRatio > 0.20:
		return DriftConcept
	default:
		return DriftPrior
	}
}

// #endregion classify
