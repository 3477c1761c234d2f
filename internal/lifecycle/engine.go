package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/danielpatrickdp/driftguard/internal/attribution"
	"github.com/danielpatrickdp/driftguard/internal/drift"
	"github.com/danielpatrickdp/driftguard/internal/normalize"
	"github.com/danielpatrickdp/driftguard/internal/patch"
	"github.com/danielpatrickdp/driftguard/internal/validate"
	"github.com/google/uuid"
)

// #region engine

// Engine owns the patch state machine, snapshotting, application, and
// rollback, plus the per-model mutual exclusion required around them.
type Engine struct {
	store Store

	mu   sync.Mutex
	busy map[string]bool
	live map[string]*TransformState
}

// NewEngine creates an engine backed by the given store.
func NewEngine(store Store) *Engine {
	return &Engine{
		store: store,
		busy:  map[string]bool{},
		live:  map[string]*TransformState{},
	}
}

// #endregion engine

// #region model-lock

// acquire takes the per-model lock, failing fast instead of blocking.
func (e *Engine) acquire(modelID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.busy[modelID] {
		return &ModelBusyError{ModelID: modelID}
	}
	e.busy[modelID] = true
	return nil
}

func (e *Engine) release(modelID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.busy, modelID)
}

// #endregion model-lock

// #region live-state

// LiveState returns a copy of the model's current transform state,
// initializing an empty one on first use.
func (e *Engine) LiveState(modelID string) TransformState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return *e.liveLocked(modelID).clone()
}

func (e *Engine) liveLocked(modelID string) *TransformState {
	st, ok := e.live[modelID]
	if !ok {
		st = NewTransformState()
		e.live[modelID] = st
	}
	return st
}

// SeedNormalization installs reference-derived normalization statistics as
// the model's starting transform state. Features that already carry stats,
// whether seeded earlier or set by an applied normalization patch, are left
// untouched.
func (e *Engine) SeedNormalization(modelID string, featureNames []string, stats normalize.Stats) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := e.liveLocked(modelID)
	for j, name := range featureNames {
		if _, ok := st.Means[name]; ok {
			continue
		}
		st.Means[name] = stats.Means[j]
		st.Stds[name] = stats.Stds[j]
	}
}

// #endregion live-state

// #region run-detection

// RunDetection executes the full detection pipeline for one model run:
// normalize with reference statistics, detect, rank by attribution, persist.
// The returned result's FeatureDrifts are ordered by attribution rank.
func (e *Engine) RunDetection(ctx context.Context, modelID string, reference, current [][]float64, featureNames []string, config drift.DriftConfig) (drift.DriftResult, []attribution.Entry, error) {
	if err := e.acquire(modelID); err != nil {
		return drift.DriftResult{}, nil, err
	}
	defer e.release(modelID)

	normRef, normCur, stats, err := normalize.Normalize(reference, current)
	if err != nil {
		return drift.DriftResult{}, nil, err
	}

	result, err := drift.Detect(ctx, modelID, normRef, normCur, featureNames, config)
	if err != nil {
		return drift.DriftResult{}, nil, err
	}

	ordered, ranking := attribution.Rank(result.FeatureDrifts)
	result.FeatureDrifts = ordered

	if err := e.store.SaveDriftResult(result); err != nil {
		return drift.DriftResult{}, nil, fmt.Errorf("save drift result: %w", err)
	}

	e.SeedNormalization(modelID, featureNames, stats)

	log.Printf("[LIFECYCLE] detect: model=%s score=%.4f type=%s detected=%v",
		modelID, result.DriftScore, result.DriftType, result.IsDriftDetected)
	return result, ranking, nil
}

// #endregion run-detection

// #region validate

// Validate runs the acceptance gate on a CREATED patch under the model lock
// and persists the outcome.
func (e *Engine) Validate(ctx context.Context, p *patch.Patch, in validate.ValidationInput, predict validate.PredictFunc, config validate.ValidationConfig) (patch.ValidationResult, error) {
	if err := e.acquire(p.ModelID); err != nil {
		return patch.ValidationResult{}, err
	}
	defer e.release(p.ModelID)

	result, err := validate.Validate(ctx, p, in, predict, config)
	if err != nil {
		return patch.ValidationResult{}, err
	}
	if err := e.store.SavePatch(*p); err != nil {
		return patch.ValidationResult{}, fmt.Errorf("save patch: %w", err)
	}

	log.Printf("[LIFECYCLE] validate: patch=%s valid=%v safety=%.4f reduction=%.4f",
		p.ID, result.IsValid, result.SafetyScore, result.DriftScoreBefore-result.DriftScoreAfter)
	return result, nil
}

// #endregion validate

// #region apply

// Apply transitions a VALIDATED patch to APPLIED. The pre-apply snapshot is
// persisted before any state mutation becomes visible, so a crash mid-apply
// never leaves an applied patch without a retrievable snapshot. If applying
// the configuration fails, the snapshot is discarded and the patch stays
// VALIDATED.
func (e *Engine) Apply(p *patch.Patch) error {
	if err := e.acquire(p.ModelID); err != nil {
		return err
	}
	defer e.release(p.ModelID)

	if _, err := patch.Transition(p.Status, patch.EventApply); err != nil {
		return err
	}

	e.mu.Lock()
	current := e.liveLocked(p.ModelID).clone()
	e.mu.Unlock()

	pre, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("serialize pre-apply state: %w", err)
	}

	snap := patch.Snapshot{
		ID:            uuid.New().String(),
		PatchID:       p.ID,
		Timestamp:     time.Now().UTC(),
		PreApplyState: pre,
	}
	if err := e.store.SaveSnapshot(snap); err != nil {
		return fmt.Errorf("persist pre-apply snapshot: %w", err)
	}

	next, err := applyConfiguration(current, p.Configuration)
	if err != nil {
		if delErr := e.store.DeleteSnapshot(snap.ID); delErr != nil {
			log.Printf("[LIFECYCLE] discard snapshot %s: %v", snap.ID, delErr)
		}
		return fmt.Errorf("apply configuration: %w", err)
	}

	post, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("serialize post-apply state: %w", err)
	}
	snap.PostApplyState = post
	if err := e.store.SaveSnapshot(snap); err != nil {
		return fmt.Errorf("persist post-apply snapshot: %w", err)
	}

	status, err := patch.Transition(p.Status, patch.EventApply)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	p.Status = status
	p.AppliedAt = &now
	if err := e.store.SavePatch(*p); err != nil {
		return fmt.Errorf("save patch: %w", err)
	}

	e.mu.Lock()
	e.live[p.ModelID] = next
	e.mu.Unlock()

	log.Printf("[LIFECYCLE] apply: patch=%s model=%s type=%s", p.ID, p.ModelID, p.Type)
	return nil
}

// #endregion apply

// #region rollback

// Rollback restores live state from the patch's pre-apply snapshot and
// transitions APPLIED → ROLLED_BACK. A missing or unreadable snapshot is a
// SnapshotCorruptionError; this must never silently no-op.
func (e *Engine) Rollback(p *patch.Patch) error {
	if err := e.acquire(p.ModelID); err != nil {
		return err
	}
	defer e.release(p.ModelID)

	if _, err := patch.Transition(p.Status, patch.EventRollback); err != nil {
		return err
	}

	snap, found, err := e.store.LatestSnapshot(p.ID)
	if err != nil {
		return &SnapshotCorruptionError{PatchID: p.ID, Reason: err.Error()}
	}
	if !found || len(snap.PreApplyState) == 0 {
		return &SnapshotCorruptionError{PatchID: p.ID, Reason: "no pre-apply snapshot found"}
	}

	restored := NewTransformState()
	if err := json.Unmarshal(snap.PreApplyState, restored); err != nil {
		return &SnapshotCorruptionError{PatchID: p.ID, Reason: fmt.Sprintf("deserialize snapshot: %v", err)}
	}

	status, err := patch.Transition(p.Status, patch.EventRollback)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	p.Status = status
	p.RolledBackAt = &now
	if err := e.store.SavePatch(*p); err != nil {
		return fmt.Errorf("save patch: %w", err)
	}

	e.mu.Lock()
	e.live[p.ModelID] = restored
	e.mu.Unlock()

	log.Printf("[LIFECYCLE] rollback: patch=%s model=%s", p.ID, p.ModelID)
	return nil
}

// #endregion rollback

// #region apply-configuration

// applyConfiguration merges a patch configuration into a copy of the live
// state. The input state is not mutated on failure.
func applyConfiguration(st *TransformState, cfg patch.Configuration) (*TransformState, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	next := st.clone()
	switch {
	case cfg.Clipping != nil:
		next.ClipLower[cfg.Clipping.Feature] = cfg.Clipping.LowerBound
		next.ClipUpper[cfg.Clipping.Feature] = cfg.Clipping.UpperBound
	case cfg.Reweighting != nil:
		for f, w := range cfg.Reweighting.Weights {
			next.Weights[f] = w
		}
	case cfg.Threshold != nil:
		next.DecisionThreshold = cfg.Threshold.DecisionThreshold
	case cfg.Normalization != nil:
		next.Means[cfg.Normalization.Feature] = cfg.Normalization.NewMean
		next.Stds[cfg.Normalization.Feature] = cfg.Normalization.NewStd
	case cfg.Outlier != nil:
		next.OutlierCutoffs[cfg.Outlier.Feature] = cfg.Outlier.ZScoreCutoff
	case cfg.Model != nil:
		for k, d := range cfg.Model.ParameterDeltas {
			next.ParameterDeltas[k] += d
		}
	}
	return next, nil
}

// #endregion apply-configuration
