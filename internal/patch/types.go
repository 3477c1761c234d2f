package patch

import "time"

// #region patch-type

// Type identifies the corrective transformation a patch carries.
type Type string

const (
	TypeFeatureClipping     Type = "feature_clipping"
	TypeFeatureReweighting  Type = "feature_reweighting"
	TypeThresholdTuning     Type = "threshold_tuning"
	TypeNormalizationUpdate Type = "normalization_update"
	TypeOutlierRemoval      Type = "outlier_removal"
	TypeModelUpdate         Type = "model_update"
)

// #endregion patch-type

// #region validation-result

// ValidationResult is attached to a patch at validation time. Immutable.
type ValidationResult struct {
	IsValid          bool     `json:"is_valid"`
	Accuracy         float64  `json:"accuracy"`
	Precision        float64  `json:"precision"`
	Recall           float64  `json:"recall"`
	F1               float64  `json:"f1"`
	SafetyScore      float64  `json:"safety_score"`
	DriftScoreBefore float64  `json:"drift_score_before"`
	DriftScoreAfter  float64  `json:"drift_score_after"`
	Errors           []string `json:"errors,omitempty"`
}

// #endregion validation-result

// #region patch

// Patch is a small, reversible corrective transformation. Status is mutated
// only through the Transition function; never set fields directly.
type Patch struct {
	ID               string            `json:"id"`
	ModelID          string            `json:"model_id"`
	DriftResultID    string            `json:"drift_result_id"`
	Type             Type              `json:"type"`
	Configuration    Configuration     `json:"configuration"`
	Status           Status            `json:"status"`
	SafetyScore      float64           `json:"safety_score"`
	ValidationResult *ValidationResult `json:"validation_result,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	AppliedAt        *time.Time        `json:"applied_at,omitempty"`
	RolledBackAt     *time.Time        `json:"rolled_back_at,omitempty"`
}

// #endregion patch

// #region snapshot

// Snapshot captures serialized live state immediately before a patch apply
// (and immediately after). Owned exclusively by the lifecycle engine and
// used only for rollback.
type Snapshot struct {
	ID             string    `json:"id"`
	PatchID        string    `json:"patch_id"`
	Timestamp      time.Time `json:"timestamp"`
	PreApplyState  []byte    `json:"pre_apply_state"`
	PostApplyState []byte    `json:"post_apply_state,omitempty"`
}

// #endregion snapshot
