package provenance

import "time"

// #region provenance-entry
// Entry is a single row in the provenance_log table.
type Entry struct {
	SubjectID   string // drift result ID or patch ID the decision is about
	ModelID     string
	TriggerType string // "detection" | "synthesis" | "validation" | "apply" | "rollback"
	DetailJSON  string
	Decision    string // "detected" | "clear" | "accept" | "reject" | "applied" | "apply_failed" | "rolled_back"
	Reason      string
	CreatedAt   time.Time
}

// #endregion provenance-entry

// #region validation-record
// ValidationRecord captures the complete validation inputs for a single patch.
// Serialized as JSON into provenance_log.detail_json for deterministic replay.
type ValidationRecord struct {
	PatchID   string `json:"patch_id"`
	ModelID   string `json:"model_id"`
	PatchType string `json:"patch_type"`

	// Exact metrics as evaluated at decision time
	Accuracy         float64 `json:"accuracy"`
	Precision        float64 `json:"precision"`
	Recall           float64 `json:"recall"`
	F1               float64 `json:"f1"`
	SafetyScore      float64 `json:"safety_score"`
	DriftScoreBefore float64 `json:"drift_score_before"`
	DriftScoreAfter  float64 `json:"drift_score_after"`
	SampleCount      int     `json:"sample_count"`

	// Thresholds active at decision time
	Thresholds ValidationThresholds `json:"thresholds"`

	// Gate output
	Accepted  bool   `json:"accepted"`
	FastTrack bool   `json:"fast_track"`
	Reason    string `json:"reason,omitempty"`
}

// ValidationThresholds captures the gate config active at decision time.
type ValidationThresholds struct {
	SafetyFloor            float64 `json:"safety_floor"`
	DriftReductionFloor    float64 `json:"drift_reduction_floor"`
	FastTrackSampleCeiling int     `json:"fast_track_sample_ceiling"`
}

// #endregion validation-record
