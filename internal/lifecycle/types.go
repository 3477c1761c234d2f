package lifecycle

import (
	"fmt"

	"github.com/danielpatrickdp/driftguard/internal/drift"
	"github.com/danielpatrickdp/driftguard/internal/patch"
)

// #region transform-state

// TransformState is the live, patchable input-pipeline and decision-layer
// state for one model. Snapshots serialize this struct; encoding/json sorts
// map keys, so serialization is deterministic and round-trips exactly.
type TransformState struct {
	Means             map[string]float64 `json:"means"`
	Stds              map[string]float64 `json:"stds"`
	ClipLower         map[string]float64 `json:"clip_lower"`
	ClipUpper         map[string]float64 `json:"clip_upper"`
	Weights           map[string]float64 `json:"weights"`
	OutlierCutoffs    map[string]float64 `json:"outlier_cutoffs"`
	DecisionThreshold float64            `json:"decision_threshold"`
	ParameterDeltas   map[string]float64 `json:"parameter_deltas"`
}

// NewTransformState returns an empty state with the neutral 0.5 decision
// threshold.
func NewTransformState() *TransformState {
	return &TransformState{
		Means:             map[string]float64{},
		Stds:              map[string]float64{},
		ClipLower:         map[string]float64{},
		ClipUpper:         map[string]float64{},
		Weights:           map[string]float64{},
		OutlierCutoffs:    map[string]float64{},
		DecisionThreshold: 0.5,
		ParameterDeltas:   map[string]float64{},
	}
}

// clone deep-copies the state so apply failures never leak partial edits.
func (s *TransformState) clone() *TransformState {
	cp := &TransformState{
		Means:             copyMap(s.Means),
		Stds:              copyMap(s.Stds),
		ClipLower:         copyMap(s.ClipLower),
		ClipUpper:         copyMap(s.ClipUpper),
		Weights:           copyMap(s.Weights),
		OutlierCutoffs:    copyMap(s.OutlierCutoffs),
		DecisionThreshold: s.DecisionThreshold,
		ParameterDeltas:   copyMap(s.ParameterDeltas),
	}
	return cp
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// #endregion transform-state

// #region errors

// ModelBusyError reports that another drift check or lifecycle operation is
// already in flight for the model. Callers should retry.
type ModelBusyError struct {
	ModelID string
}

func (e *ModelBusyError) Error() string {
	return fmt.Sprintf("model %s busy: another operation in flight", e.ModelID)
}

// SnapshotCorruptionError reports that rollback is impossible because the
// pre-apply snapshot is missing or unreadable. Fatal; never swallowed.
type SnapshotCorruptionError struct {
	PatchID string
	Reason  string
}

func (e *SnapshotCorruptionError) Error() string {
	return fmt.Sprintf("snapshot corruption for patch %s: %s", e.PatchID, e.Reason)
}

// #endregion errors

// #region store-interface

// Store is the narrow persistence boundary the engine depends on. Saves
// must be durable when they return.
type Store interface {
	SaveDriftResult(result drift.DriftResult) error
	SavePatch(p patch.Patch) error
	SaveSnapshot(snap patch.Snapshot) error
	DeleteSnapshot(id string) error
	LatestSnapshot(patchID string) (patch.Snapshot, bool, error)
}

// #endregion store-interface
