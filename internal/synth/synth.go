package synth

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/danielpatrickdp/driftguard/internal/attribution"
	"github.com/danielpatrickdp/driftguard/internal/drift"
	"github.com/danielpatrickdp/driftguard/internal/normalize"
	"github.com/danielpatrickdp/driftguard/internal/patch"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

// #region synth-config

// SynthConfig holds candidate generation parameters.
type SynthConfig struct {
	TopK              int     // how many top-attribution features to target
	ClipLowerQuantile float64 // lower clipping percentile of the current distribution
	ClipUpperQuantile float64 // upper clipping percentile
	ThresholdStep     float64 // fraction of aggregate mean shift applied to the decision threshold
	OutlierCutoff     float64 // z-score cutoff for the outlier removal candidate
}

// DefaultSynthConfig returns the standard candidate parameters.
func DefaultSynthConfig() SynthConfig {
	return SynthConfig{
		TopK:              3,
		ClipLowerQuantile: 0.01,
		ClipUpperQuantile: 0.99,
		ThresholdStep:     0.05,
		OutlierCutoff:     3.0,
	}
}

// #endregion synth-config

// #region initial-safety

// Initial heuristic safety estimates per patch type, refined later by the
// validator. Bounded transforms score higher than parameter edits.
var initialSafety = map[patch.Type]float64{
	patch.TypeFeatureClipping:     0.8,
	patch.TypeThresholdTuning:     0.75,
	patch.TypeNormalizationUpdate: 0.7,
	patch.TypeFeatureReweighting:  0.6,
	patch.TypeOutlierRemoval:      0.5,
	patch.TypeModelUpdate:         0.4,
}

// #endregion initial-safety

// #region synthesize

// Synthesize produces candidate patches for a detection result, targeting
// the highest-attribution features. The current matrix supplies percentile
// bounds and replacement statistics. Candidates with malformed
// configurations are rejected here, before reaching the validator.
func Synthesize(result drift.DriftResult, ranking []attribution.Entry, currentMatrix [][]float64, featureNames []string, config SynthConfig) ([]patch.Patch, error) {
	if result.DriftType == drift.DriftNone {
		return nil, nil
	}
	if len(currentMatrix) == 0 {
		return nil, &normalize.InsufficientDataError{Reason: "current matrix has no rows"}
	}

	top := topFeatures(ranking, config.TopK)

	var configs []patch.Configuration
	switch result.DriftType {
	case drift.DriftPrior:
		configs = priorCandidates(result, top, config)
	case drift.DriftConcept:
		configs = conceptCandidates(result, ranking)
	case drift.DriftCovariate:
		configs = covariateCandidates(top, currentMatrix, featureNames, config)
	}

	patches := make([]patch.Patch, 0, len(configs))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("candidate %s: %w", cfg.Kind(), err)
		}
		patches = append(patches, patch.Patch{
			ID:            uuid.New().String(),
			ModelID:       result.ModelID,
			DriftResultID: result.ID,
			Type:          cfg.Kind(),
			Configuration: cfg,
			Status:        patch.StatusCreated,
			SafetyScore:   initialSafety[cfg.Kind()],
			CreatedAt:     time.Now().UTC(),
		})
	}
	return patches, nil
}

// #endregion synthesize

// #region prior

// priorCandidates counters an output-distribution shift: recalibrate the
// decision boundary, plus down-weight the one or two implicated features.
func priorCandidates(result drift.DriftResult, top []attribution.Entry, config SynthConfig) []patch.Configuration {
	var meanShiftSum float64
	count := 0
	implicated := top
	if len(implicated) > 2 {
		implicated = implicated[:2]
	}
	byName := driftsByName(result)
	for _, e := range implicated {
		if d, ok := byName[e.FeatureName]; ok {
			meanShiftSum += math.Abs(d.MeanShift)
			count++
		}
	}
	avgShift := 0.0
	if count > 0 {
		avgShift = meanShiftSum / float64(count)
	}

	threshold := clamp(0.5+config.ThresholdStep*avgShift, 0.05, 0.95)

	weights := make(map[string]float64, len(implicated))
	for _, e := range implicated {
		weights[e.FeatureName] = 1.0 / (1.0 + e.Contribution)
	}

	candidates := []patch.Configuration{
		{Threshold: &patch.ThresholdTuning{DecisionThreshold: threshold}},
	}
	if len(weights) > 0 {
		candidates = append(candidates, patch.Configuration{
			Reweighting: &patch.FeatureReweighting{Weights: weights},
		})
	}
	return candidates
}

// #endregion prior

// #region concept

// conceptCandidates addresses a relationship change: reweight every drifted
// feature, with a small model parameter update as a secondary candidate.
// Pure input correction is insufficient when the input→output mapping moved.
func conceptCandidates(result drift.DriftResult, ranking []attribution.Entry) []patch.Configuration {
	contributions := make(map[string]float64, len(ranking))
	for _, e := range ranking {
		contributions[e.FeatureName] = e.Contribution
	}

	weights := make(map[string]float64)
	deltas := make(map[string]float64)
	for _, d := range result.FeatureDrifts {
		if !d.IsDrifted {
			continue
		}
		c := contributions[d.FeatureName]
		weights[d.FeatureName] = 1.0 / (1.0 + c)
		deltas["w_"+d.FeatureName] = -0.1 * c
	}
	if len(weights) == 0 {
		return nil
	}
	return []patch.Configuration{
		{Reweighting: &patch.FeatureReweighting{Weights: weights}},
		{Model: &patch.ModelUpdate{ParameterDeltas: deltas}},
	}
}

// #endregion concept

// #region covariate

// covariateCandidates counters an input-distribution change: adopt the
// current distribution's statistics, bound outliers at current percentiles,
// and offer row-level outlier removal as a fallback.
func covariateCandidates(top []attribution.Entry, currentMatrix [][]float64, featureNames []string, config SynthConfig) []patch.Configuration {
	var candidates []patch.Configuration
	for _, e := range top {
		j := featureIndex(featureNames, e.FeatureName)
		if j < 0 {
			continue
		}
		col := normalize.Column(currentMatrix, j)
		sorted := make([]float64, len(col))
		copy(sorted, col)
		sort.Float64s(sorted)

		mean, std := normalize.ColumnStats(currentMatrix, j)
		lower := stat.Quantile(config.ClipLowerQuantile, stat.Empirical, sorted, nil)
		upper := stat.Quantile(config.ClipUpperQuantile, stat.Empirical, sorted, nil)

		candidates = append(candidates,
			patch.Configuration{Normalization: &patch.NormalizationUpdate{
				Feature: e.FeatureName,
				NewMean: mean,
				NewStd:  std,
			}},
			patch.Configuration{Clipping: &patch.FeatureClipping{
				Feature:    e.FeatureName,
				LowerBound: lower,
				UpperBound: upper,
			}},
		)
	}
	if len(top) > 0 {
		candidates = append(candidates, patch.Configuration{
			Outlier: &patch.OutlierRemoval{
				Feature:      top[0].FeatureName,
				ZScoreCutoff: config.OutlierCutoff,
			},
		})
	}
	return candidates
}

// #endregion covariate

// #region helpers

func topFeatures(ranking []attribution.Entry, k int) []attribution.Entry {
	var drifting []attribution.Entry
	for _, e := range ranking {
		if e.Contribution > 0 {
			drifting = append(drifting, e)
		}
	}
	if len(drifting) > k {
		drifting = drifting[:k]
	}
	return drifting
}

func driftsByName(result drift.DriftResult) map[string]drift.FeatureDrift {
	m := make(map[string]drift.FeatureDrift, len(result.FeatureDrifts))
	for _, d := range result.FeatureDrifts {
		m[d.FeatureName] = d
	}
	return m
}

func featureIndex(featureNames []string, name string) int {
	for j, n := range featureNames {
		if n == name {
			return j
		}
	}
	return -1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion helpers
