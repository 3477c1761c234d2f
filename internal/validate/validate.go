package validate

import (
	"context"
	"fmt"
	"math"

	"github.com/danielpatrickdp/driftguard/internal/drift"
	"github.com/danielpatrickdp/driftguard/internal/normalize"
	"github.com/danielpatrickdp/driftguard/internal/patch"
)

// Tier floors below the configurable standard gate. The gate is intentionally
// lenient: validation sets are often small and any net-positive patch has
// value, so a candidate is accepted unless proven harmful.
const (
	fastTrackSafetyFloor = 0.15
	hardSafetyFloor      = 0.10
)

// #region predict-func

// PredictFunc is the boundary to the external model inference collaborator.
// When cfg is non-nil the caller applies it to the inputs before prediction.
// Outputs must align 1:1 with input rows.
type PredictFunc func(ctx context.Context, inputs [][]float64, cfg *patch.Configuration) ([]float64, error)

// #endregion predict-func

// #region validation-config

// SafetyWeights are the tunable coefficients of the safety score. The exact
// weighting is a product knob, not a derived constant.
type SafetyWeights struct {
	Magnitude      float64
	Stability      float64
	DriftReduction float64
}

// ValidationConfig holds acceptance gate thresholds. Passed explicitly,
// never read from global state.
type ValidationConfig struct {
	SafetyFloor            float64
	DriftReductionFloor    float64
	FastTrackSampleCeiling int
	Weights                SafetyWeights
}

// DefaultValidationConfig returns the standard gate thresholds.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		SafetyFloor:            0.25,
		DriftReductionFloor:    0.05,
		FastTrackSampleCeiling: 30,
		Weights:                SafetyWeights{Magnitude: 0.4, Stability: 0.3, DriftReduction: 0.3},
	}
}

// #endregion validation-config

// #region validation-input

// ValidationInput bundles the datasets a validation run needs: the held-out
// validation set for model metrics and the raw reference/current matrices
// for the drift re-check.
type ValidationInput struct {
	Inputs           [][]float64
	Labels           []float64
	Reference        [][]float64
	Current          [][]float64
	FeatureNames     []string
	DriftConfig      drift.DriftConfig
	DriftScoreBefore float64
}

// #endregion validation-input

// #region validate

// Validate evaluates a CREATED patch against the validation set and the
// model's prediction function, attaches the result, and advances the patch
// to VALIDATED or FAILED.
func Validate(ctx context.Context, p *patch.Patch, in ValidationInput, predict PredictFunc, config ValidationConfig) (patch.ValidationResult, error) {
	if p.Status != patch.StatusCreated {
		return patch.ValidationResult{}, &patch.InvalidTransitionError{From: p.Status, Event: patch.EventValidatePass}
	}
	if len(in.Inputs) == 0 || len(in.Inputs) != len(in.Labels) {
		return patch.ValidationResult{}, &normalize.InsufficientDataError{
			Reason: fmt.Sprintf("validation set: %d inputs, %d labels", len(in.Inputs), len(in.Labels)),
		}
	}

	baseline, err := predict(ctx, in.Inputs, nil)
	if err != nil {
		return patch.ValidationResult{}, fmt.Errorf("baseline prediction: %w", err)
	}
	patched, err := predict(ctx, in.Inputs, &p.Configuration)
	if err != nil {
		return patch.ValidationResult{}, fmt.Errorf("patched prediction: %w", err)
	}
	if len(baseline) != len(in.Inputs) || len(patched) != len(in.Inputs) {
		return patch.ValidationResult{}, fmt.Errorf("prediction output length mismatch: %d baseline, %d patched, %d inputs",
			len(baseline), len(patched), len(in.Inputs))
	}

	_, _, _, baselineF1 := confusionMetrics(baseline, in.Labels)
	accuracy, precision, recall, f1 := confusionMetrics(patched, in.Labels)

	driftAfter, err := driftScoreAfter(ctx, p, in)
	if err != nil {
		return patch.ValidationResult{}, fmt.Errorf("drift re-check: %w", err)
	}
	driftReduction := in.DriftScoreBefore - driftAfter

	safety := safetyScore(p.Configuration, baselineF1, f1, driftReduction, in.DriftScoreBefore, config.Weights)

	result := patch.ValidationResult{
		Accuracy:         accuracy,
		Precision:        precision,
		Recall:           recall,
		F1:               f1,
		SafetyScore:      safety,
		DriftScoreBefore: in.DriftScoreBefore,
		DriftScoreAfter:  driftAfter,
	}

	// Tiered acceptance, most to least strict. Preserve this ordering.
	switch {
	case safety >= config.SafetyFloor && driftReduction >= config.DriftReductionFloor:
		result.IsValid = true
	case len(in.Inputs) < config.FastTrackSampleCeiling && safety >= fastTrackSafetyFloor && driftReduction > 0:
		result.IsValid = true
		result.Errors = append(result.Errors,
			fmt.Sprintf("fast-track acceptance on %d samples", len(in.Inputs)))
	case driftReduction < 0:
		result.IsValid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("patch worsens drift: %.4f → %.4f", in.DriftScoreBefore, driftAfter))
	case safety < hardSafetyFloor:
		result.IsValid = false
		result.Errors = append(result.Errors,
			fmt.Sprintf("safety score %.4f below hard floor %.2f", safety, hardSafetyFloor))
	default:
		result.IsValid = true
		result.Errors = append(result.Errors,
			fmt.Sprintf("accepted below standard gate: safety=%.4f reduction=%.4f", safety, driftReduction))
	}

	event := patch.EventValidatePass
	if !result.IsValid {
		event = patch.EventValidateFail
	}
	next, err := patch.Transition(p.Status, event)
	if err != nil {
		return patch.ValidationResult{}, err
	}
	p.Status = next
	p.SafetyScore = safety
	p.ValidationResult = &result

	return result, nil
}

// #endregion validate

// #region recheck-gate

// RecheckGate replays the tiered acceptance decision from a stored result.
// The fast-track tier needs the live sample count, which stored results do
// not carry, so it is not re-evaluated.
func RecheckGate(v patch.ValidationResult, config ValidationConfig) bool {
	reduction := v.DriftScoreBefore - v.DriftScoreAfter
	switch {
	case v.SafetyScore >= config.SafetyFloor && reduction >= config.DriftReductionFloor:
		return true
	case reduction < 0:
		return false
	case v.SafetyScore < hardSafetyFloor:
		return false
	default:
		return true
	}
}

// #endregion recheck-gate

// #region drift-recheck

// driftScoreAfter re-runs detection on the patched current data against the
// raw reference. Row-dropping patches shrink the current matrix; label
// alignment does not matter here because only distributions are compared.
func driftScoreAfter(ctx context.Context, p *patch.Patch, in ValidationInput) (float64, error) {
	patchedCurrent, _ := patch.ApplyToInputs(p.Configuration, in.FeatureNames, in.Current)
	normRef, normCur, _, err := normalize.Normalize(in.Reference, patchedCurrent)
	if err != nil {
		return 0, err
	}
	result, err := drift.Detect(ctx, p.ModelID, normRef, normCur, in.FeatureNames, in.DriftConfig)
	if err != nil {
		return 0, err
	}
	return result.DriftScore, nil
}

// #endregion drift-recheck

// #region confusion-metrics

// confusionMetrics computes accuracy, precision, recall, and F1 treating
// values >= 0.5 as positive. All ratios return 0 on a zero denominator.
func confusionMetrics(predictions, labels []float64) (accuracy, precision, recall, f1 float64) {
	var tp, tn, fp, fn float64
	for i, pred := range predictions {
		predPos := pred >= 0.5
		labelPos := labels[i] >= 0.5
		switch {
		case predPos && labelPos:
			tp++
		case predPos && !labelPos:
			fp++
		case !predPos && labelPos:
			fn++
		default:
			tn++
		}
	}

	total := tp + tn + fp + fn
	if total > 0 {
		accuracy = (tp + tn) / total
	}
	if tp+fp > 0 {
		precision = tp / (tp + fp)
	}
	if tp+fn > 0 {
		recall = tp / (tp + fn)
	}
	if precision+recall > 0 {
		f1 = 2 * precision * recall / (precision + recall)
	}
	return accuracy, precision, recall, f1
}

// #endregion confusion-metrics

// #region safety-score

// safetyScore blends bounded change magnitude, F1 stability against the
// unpatched baseline, and normalized drift reduction.
func safetyScore(cfg patch.Configuration, baselineF1, patchedF1, driftReduction, driftBefore float64, w SafetyWeights) float64 {
	magnitudeScore := 1.0 / (1.0 + cfg.Magnitude())
	stability := clamp01(1.0 - math.Abs(patchedF1-baselineF1))
	reduction := clamp01(driftReduction / math.Max(driftBefore, 0.01))

	score := w.Magnitude*magnitudeScore + w.Stability*stability + w.DriftReduction*reduction
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion safety-score
