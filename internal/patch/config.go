package patch

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// #region invalid-configuration

// InvalidConfigurationError reports a malformed patch configuration.
// Rejected at synthesis time, before a patch ever reaches the validator.
type InvalidConfigurationError struct {
	Reason string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("invalid patch configuration: %s", e.Reason)
}

// #endregion invalid-configuration

// #region variants

// FeatureClipping bounds one feature to [LowerBound, UpperBound].
type FeatureClipping struct {
	Feature    string  `json:"feature"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
}

// FeatureReweighting scales features by per-feature weights.
type FeatureReweighting struct {
	Weights map[string]float64 `json:"weights"`
}

// ThresholdTuning moves the model's decision boundary.
type ThresholdTuning struct {
	DecisionThreshold float64 `json:"decision_threshold"`
}

// NormalizationUpdate replaces one feature's normalization statistics.
type NormalizationUpdate struct {
	Feature string  `json:"feature"`
	NewMean float64 `json:"new_mean"`
	NewStd  float64 `json:"new_std"`
}

// OutlierRemoval drops samples whose z-score exceeds the cutoff.
type OutlierRemoval struct {
	Feature      string  `json:"feature"`
	ZScoreCutoff float64 `json:"z_score_cutoff"`
}

// ModelUpdate applies additive deltas to named model parameters.
type ModelUpdate struct {
	ParameterDeltas map[string]float64 `json:"parameter_deltas"`
}

// #endregion variants

// #region configuration

// Configuration is a tagged union: exactly one variant pointer is non-nil.
type Configuration struct {
	Clipping      *FeatureClipping     `json:"clipping,omitempty"`
	Reweighting   *FeatureReweighting  `json:"reweighting,omitempty"`
	Threshold     *ThresholdTuning     `json:"threshold,omitempty"`
	Normalization *NormalizationUpdate `json:"normalization,omitempty"`
	Outlier       *OutlierRemoval      `json:"outlier,omitempty"`
	Model         *ModelUpdate         `json:"model,omitempty"`
}

// Kind returns the patch type of the populated variant.
func (c Configuration) Kind() Type {
	switch {
	case c.Clipping != nil:
		return TypeFeatureClipping
	case c.Reweighting != nil:
		return TypeFeatureReweighting
	case c.Threshold != nil:
		return TypeThresholdTuning
	case c.Normalization != nil:
		return TypeNormalizationUpdate
	case c.Outlier != nil:
		return TypeOutlierRemoval
	default:
		return TypeModelUpdate
	}
}

// #endregion configuration

// #region validate-config

// Validate checks the configuration is well formed: exactly one variant set,
// and that variant's parameters internally consistent.
func (c Configuration) Validate() error {
	set := 0
	if c.Clipping != nil {
		set++
	}
	if c.Reweighting != nil {
		set++
	}
	if c.Threshold != nil {
		set++
	}
	if c.Normalization != nil {
		set++
	}
	if c.Outlier != nil {
		set++
	}
	if c.Model != nil {
		set++
	}
	if set != 1 {
		return &InvalidConfigurationError{Reason: fmt.Sprintf("expected exactly one variant, got %d", set)}
	}

	switch {
	case c.Clipping != nil:
		if c.Clipping.Feature == "" {
			return &InvalidConfigurationError{Reason: "clipping: empty feature name"}
		}
		if c.Clipping.LowerBound > c.Clipping.UpperBound {
			return &InvalidConfigurationError{
				Reason: fmt.Sprintf("clipping: lower bound %f exceeds upper bound %f",
					c.Clipping.LowerBound, c.Clipping.UpperBound),
			}
		}
	case c.Reweighting != nil:
		if len(c.Reweighting.Weights) == 0 {
			return &InvalidConfigurationError{Reason: "reweighting: no weights"}
		}
		for f, w := range c.Reweighting.Weights {
			if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
				return &InvalidConfigurationError{Reason: fmt.Sprintf("reweighting: non-positive weight %f for %s", w, f)}
			}
		}
	case c.Threshold != nil:
		if c.Threshold.DecisionThreshold <= 0 || c.Threshold.DecisionThreshold >= 1 {
			return &InvalidConfigurationError{
				Reason: fmt.Sprintf("threshold tuning: decision threshold %f outside (0,1)", c.Threshold.DecisionThreshold),
			}
		}
	case c.Normalization != nil:
		if c.Normalization.Feature == "" {
			return &InvalidConfigurationError{Reason: "normalization update: empty feature name"}
		}
		if c.Normalization.NewStd <= 0 {
			return &InvalidConfigurationError{
				Reason: fmt.Sprintf("normalization update: non-positive std %f", c.Normalization.NewStd),
			}
		}
	case c.Outlier != nil:
		if c.Outlier.Feature == "" {
			return &InvalidConfigurationError{Reason: "outlier removal: empty feature name"}
		}
		if c.Outlier.ZScoreCutoff <= 0 {
			return &InvalidConfigurationError{
				Reason: fmt.Sprintf("outlier removal: non-positive cutoff %f", c.Outlier.ZScoreCutoff),
			}
		}
	case c.Model != nil:
		if len(c.Model.ParameterDeltas) == 0 {
			return &InvalidConfigurationError{Reason: "model update: no parameter deltas"}
		}
	}
	return nil
}

// #endregion validate-config

// #region magnitude

// Magnitude estimates the size of the parameter change a configuration
// carries. Smaller magnitudes are safer to apply.
func (c Configuration) Magnitude() float64 {
	switch {
	case c.Clipping != nil:
		width := c.Clipping.UpperBound - c.Clipping.LowerBound
		return 1.0 / (1.0 + width)
	case c.Reweighting != nil:
		var sum float64
		for _, w := range c.Reweighting.Weights {
			sum += math.Abs(1.0 - w)
		}
		return sum / float64(len(c.Reweighting.Weights))
	case c.Threshold != nil:
		return 2.0 * math.Abs(c.Threshold.DecisionThreshold-0.5)
	case c.Normalization != nil:
		return math.Abs(c.Normalization.NewMean) + math.Abs(c.Normalization.NewStd-1.0)
	case c.Outlier != nil:
		return 1.0 / c.Outlier.ZScoreCutoff
	case c.Model != nil:
		var sumSq float64
		for _, d := range c.Model.ParameterDeltas {
			sumSq += d * d
		}
		return math.Sqrt(sumSq)
	default:
		return 0
	}
}

// #endregion magnitude

// #region apply-to-inputs

// ApplyToInputs simulates the patched input pipeline on a matrix. Returns
// the transformed matrix and, for row-dropping variants, the kept row
// indices (nil when all rows survive). The input matrix is not mutated.
func ApplyToInputs(c Configuration, featureNames []string, inputs [][]float64) ([][]float64, []int) {
	out := make([][]float64, len(inputs))
	for i, row := range inputs {
		cp := make([]float64, len(row))
		copy(cp, row)
		out[i] = cp
	}

	col := func(feature string) int {
		for j, name := range featureNames {
			if name == feature {
				return j
			}
		}
		return -1
	}

	switch {
	case c.Clipping != nil:
		j := col(c.Clipping.Feature)
		if j < 0 {
			return out, nil
		}
		for _, row := range out {
			if row[j] < c.Clipping.LowerBound {
				row[j] = c.Clipping.LowerBound
			}
			if row[j] > c.Clipping.UpperBound {
				row[j] = c.Clipping.UpperBound
			}
		}

	case c.Reweighting != nil:
		for feature, w := range c.Reweighting.Weights {
			j := col(feature)
			if j < 0 {
				continue
			}
			for _, row := range out {
				row[j] *= w
			}
		}

	case c.Normalization != nil:
		j := col(c.Normalization.Feature)
		if j < 0 {
			return out, nil
		}
		for _, row := range out {
			row[j] = (row[j] - c.Normalization.NewMean) / c.Normalization.NewStd
		}

	case c.Outlier != nil:
		j := col(c.Outlier.Feature)
		if j < 0 || len(out) == 0 {
			return out, nil
		}
		column := make([]float64, len(out))
		for i, row := range out {
			column[i] = row[j]
		}
		mean := stat.Mean(column, nil)
		std := stat.PopStdDev(column, nil)
		if std == 0 {
			return out, nil
		}
		var kept [][]float64
		var keepIdx []int
		for i, row := range out {
			if math.Abs((row[j]-mean)/std) <= c.Outlier.ZScoreCutoff {
				kept = append(kept, row)
				keepIdx = append(keepIdx, i)
			}
		}
		if len(kept) == len(out) {
			return out, nil
		}
		return kept, keepIdx
	}

	// ThresholdTuning and ModelUpdate act on the decision layer and model
	// parameters, not on inputs.
	return out, nil
}

// #endregion apply-to-inputs
