package drift

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/danielpatrickdp/driftguard/internal/normalize"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// #region detect

// Detect computes per-feature drift scores over normalized matrices and the
// overall drift verdict with type classification. Matrices must already be
// standardized with reference statistics (see normalize.Normalize).
// Cancellation is checked between per-feature iterations.
func Detect(ctx context.Context, modelID string, normRef, normCur [][]float64, featureNames []string, config DriftConfig) (DriftResult, error) {
	if len(normRef) == 0 || len(normCur) == 0 {
		return DriftResult{}, &normalize.InsufficientDataError{Reason: "empty normalized matrix"}
	}
	if len(featureNames) != len(normRef[0]) || len(normRef[0]) != len(normCur[0]) {
		return DriftResult{}, &normalize.InsufficientDataError{
			Reason: fmt.Sprintf("feature count mismatch: %d names, %d reference columns, %d current columns",
				len(featureNames), len(normRef[0]), len(normCur[0])),
		}
	}
	for i, row := range normRef {
		if len(row) != len(featureNames) {
			return DriftResult{}, &normalize.InsufficientDataError{
				Reason: fmt.Sprintf("reference row %d has %d values, want %d", i, len(row), len(featureNames)),
			}
		}
	}
	for i, row := range normCur {
		if len(row) != len(featureNames) {
			return DriftResult{}, &normalize.InsufficientDataError{
				Reason: fmt.Sprintf("current row %d has %d values, want %d", i, len(row), len(featureNames)),
			}
		}
	}

	drifts := make([]FeatureDrift, len(featureNames))
	for j, name := range featureNames {
		if err := ctx.Err(); err != nil {
			return DriftResult{}, fmt.Errorf("detection cancelled at feature %d: %w", j, err)
		}

		refCol := normalize.Column(normRef, j)
		curCol := normalize.Column(normCur, j)

		psi := PSI(refCol, curCol, config.Bins)
		ks := KSStatistic(refCol, curCol)
		pValue := KSPValue(ks, len(refCol), len(curCol))

		refMean := stat.Mean(refCol, nil)
		curMean := stat.Mean(curCol, nil)
		refStd := stat.PopStdDev(refCol, nil)
		curStd := stat.PopStdDev(curCol, nil)

		drifted := psi > config.PSIThreshold ||
			(ks > config.KSThreshold && pValue < config.PValueThreshold)

		drifts[j] = FeatureDrift{
			FeatureName: name,
			PSIScore:    psi,
			KSStatistic: ks,
			PValue:      pValue,
			MeanShift:   curMean - refMean,
			StdShift:    curStd - refStd,
			IsDrifted:   drifted,
		}
	}

	score := aggregateScore(drifts, config.FeatureWeights)
	anyDrifted := false
	for _, d := range drifts {
		if d.IsDrifted {
			anyDrifted = true
			break
		}
	}
	detected := score > config.AggregateThreshold || anyDrifted

	result := DriftResult{
		ID:              uuid.New().String(),
		ModelID:         modelID,
		Timestamp:       time.Now().UTC(),
		DriftScore:      score,
		FeatureDrifts:   drifts,
		IsDriftDetected: detected,
		Threshold:       config.AggregateThreshold,
	}
	result.DriftType = classify(result)
	return result, nil
}

// #endregion detect

// #region aggregate-score

// aggregateScore combines per-feature PSI into a single [0,1] score.
// Weights default to uniform; the raw mean is squashed monotonically so
// unbounded PSI maps into the unit interval.
func aggregateScore(drifts []FeatureDrift, weights map[string]float64) float64 {
	if len(drifts) == 0 {
		return 0
	}
	var weightedSum, weightTotal float64
	for _, d := range drifts {
		w := 1.0
		if weights != nil {
			if fw, ok := weights[d.FeatureName]; ok && fw > 0 {
				w = fw
			}
		}
		weightedSum += w * d.PSIScore
		weightTotal += w
	}
	if weightTotal == 0 {
		return 0
	}
	return 1.0 - math.Exp(-weightedSum/weightTotal)
}

// #endregion aggregate-score
