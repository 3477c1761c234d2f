package drift

import "time"

// #region drift-type

// DriftType classifies why the distributions diverged.
type DriftType string

const (
	DriftNone      DriftType = "none"
	DriftPrior     DriftType = "prior"     // output distribution shift
	DriftConcept   DriftType = "concept"   // input→output relationship shift
	DriftCovariate DriftType = "covariate" // input distribution shift
)

// #endregion drift-type

// #region feature-drift

// FeatureDrift is the per-feature detection result.
type FeatureDrift struct {
	FeatureName string  `json:"feature_name"`
	PSIScore    float64 `json:"psi_score"`
	KSStatistic float64 `json:"ks_statistic"`
	PValue      float64 `json:"p_value"`
	MeanShift   float64 `json:"mean_shift"`
	StdShift    float64 `json:"std_shift"`
	IsDrifted   bool    `json:"is_drifted"`
}

// #endregion feature-drift

// #region drift-result

// DriftResult is the immutable output of one detection run.
// FeatureDrifts are reordered by attribution rank after the ranking step.
type DriftResult struct {
	ID              string         `json:"id"`
	ModelID         string         `json:"model_id"`
	Timestamp       time.Time      `json:"timestamp"`
	DriftScore      float64        `json:"drift_score"`
	DriftType       DriftType      `json:"drift_type"`
	FeatureDrifts   []FeatureDrift `json:"feature_drifts"`
	IsDriftDetected bool           `json:"is_drift_detected"`
	Threshold       float64        `json:"threshold"`
}

// #endregion drift-result

// #region drift-config

// DriftConfig holds detection thresholds. Passed explicitly into Detect,
// never read from global state.
type DriftConfig struct {
	PSIThreshold       float64            // per-feature PSI drift threshold
	KSThreshold        float64            // per-feature KS statistic threshold
	PValueThreshold    float64            // KS significance level
	AggregateThreshold float64            // overall drift score threshold
	Bins               int                // quantile bins for PSI
	FeatureWeights     map[string]float64 // optional per-feature weights for the aggregate score
}

// DefaultDriftConfig returns the standard detection thresholds.
func DefaultDriftConfig() DriftConfig {
	return DriftConfig{
		PSIThreshold:       0.2,
		KSThreshold:        0.1,
		PValueThreshold:    0.05,
		AggregateThreshold: 0.3,
		Bins:               10,
	}
}

// #endregion drift-config
