package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/driftguard/internal/drift"
	"github.com/danielpatrickdp/driftguard/internal/patch"
	"github.com/google/uuid"
)

func tempDB(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := NewStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleResult(modelID string) drift.DriftResult {
	return drift.DriftResult{
		ID:         uuid.NewString(),
		ModelID:    modelID,
		Timestamp:  time.Now().UTC(),
		DriftScore: 0.42,
		DriftType:  drift.DriftCovariate,
		FeatureDrifts: []drift.FeatureDrift{
			{FeatureName: "f0", PSIScore: 0.31, KSStatistic: 0.2, PValue: 0.01, IsDrifted: true, MeanShift: 1.1, StdShift: 0.1},
			{FeatureName: "f1", PSIScore: 0.05, KSStatistic: 0.04, PValue: 0.6, IsDrifted: false},
		},
		IsDriftDetected: true,
		Threshold:       0.3,
	}
}

func samplePatch(modelID, resultID string) patch.Patch {
	return patch.Patch{
		ID:            uuid.NewString(),
		ModelID:       modelID,
		DriftResultID: resultID,
		Type:          patch.TypeFeatureClipping,
		Configuration: patch.Configuration{
			Clipping: &patch.FeatureClipping{Feature: "f0", LowerBound: -2, UpperBound: 2},
		},
		Status:      patch.StatusCreated,
		SafetyScore: 0.8,
		CreatedAt:   time.Now().UTC(),
	}
}

func TestSaveAndGetDriftResult(t *testing.T) {
	s := tempDB(t)
	r := sampleResult("model-a")

	if err := s.SaveDriftResult(r); err != nil {
		t.Fatalf("SaveDriftResult: %v", err)
	}

	got, err := s.GetDriftResult(r.ID)
	if err != nil {
		t.Fatalf("GetDriftResult: %v", err)
	}
	if got.ModelID != r.ModelID {
		t.Fatalf("expected model %s, got %s", r.ModelID, got.ModelID)
	}
	if got.DriftType != drift.DriftCovariate {
		t.Fatalf("expected covariate, got %s", got.DriftType)
	}
	if !got.IsDriftDetected {
		t.Fatal("expected detected flag to survive round trip")
	}
	if len(got.FeatureDrifts) != 2 {
		t.Fatalf("expected 2 feature drifts, got %d", len(got.FeatureDrifts))
	}
	if got.FeatureDrifts[0].FeatureName != "f0" || got.FeatureDrifts[0].PSIScore != 0.31 {
		t.Fatalf("feature drift mismatch: %+v", got.FeatureDrifts[0])
	}
}

func TestListDriftResultsOrderedAndScoped(t *testing.T) {
	s := tempDB(t)

	base := time.Now().UTC()
	for i := 0; i < 3; i++ {
		r := sampleResult("model-a")
		r.Timestamp = base.Add(time.Duration(i) * time.Second)
		r.DriftScore = float64(i)
		if err := s.SaveDriftResult(r); err != nil {
			t.Fatalf("SaveDriftResult: %v", err)
		}
	}
	other := sampleResult("model-b")
	if err := s.SaveDriftResult(other); err != nil {
		t.Fatalf("SaveDriftResult: %v", err)
	}

	results, err := s.ListDriftResults("model-a", 2)
	if err != nil {
		t.Fatalf("ListDriftResults: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	// Newest first
	if results[0].DriftScore != 2 || results[1].DriftScore != 1 {
		t.Fatalf("unexpected order: %f, %f", results[0].DriftScore, results[1].DriftScore)
	}
	for _, r := range results {
		if r.ModelID != "model-a" {
			t.Fatalf("result from wrong model: %s", r.ModelID)
		}
	}
}

func TestPatchUpsertPreservesLifecycleFields(t *testing.T) {
	s := tempDB(t)
	r := sampleResult("model-a")
	if err := s.SaveDriftResult(r); err != nil {
		t.Fatalf("SaveDriftResult: %v", err)
	}
	p := samplePatch("model-a", r.ID)
	if err := s.SavePatch(p); err != nil {
		t.Fatalf("SavePatch: %v", err)
	}

	// Validation attaches a result and moves the status forward.
	p.Status = patch.StatusValidated
	p.ValidationResult = &patch.ValidationResult{
		IsValid:          true,
		DriftScoreBefore: 0.4,
		DriftScoreAfter:  0.1,
		SafetyScore:      0.7,
		Errors:           []string{"accuracy delta -0.02 within tolerance"},
	}
	if err := s.SavePatch(p); err != nil {
		t.Fatalf("SavePatch update: %v", err)
	}

	now := time.Now().UTC()
	p.Status = patch.StatusApplied
	p.AppliedAt = &now
	if err := s.SavePatch(p); err != nil {
		t.Fatalf("SavePatch apply: %v", err)
	}

	got, err := s.GetPatch(p.ID)
	if err != nil {
		t.Fatalf("GetPatch: %v", err)
	}
	if got.Status != patch.StatusApplied {
		t.Fatalf("expected applied, got %s", got.Status)
	}
	if got.AppliedAt == nil || !got.AppliedAt.Equal(now) {
		t.Fatalf("applied timestamp lost: %v", got.AppliedAt)
	}
	if got.ValidationResult == nil || !got.ValidationResult.IsValid {
		t.Fatal("validation result lost on round trip")
	}
	if len(got.ValidationResult.Errors) != 1 {
		t.Fatalf("errors lost: %+v", got.ValidationResult)
	}
	if got.Configuration.Kind() != patch.TypeFeatureClipping {
		t.Fatalf("configuration variant lost: %s", got.Configuration.Kind())
	}
	if got.RolledBackAt != nil {
		t.Fatal("rolled_back_at should be nil")
	}
}

func TestGetPatchMissing(t *testing.T) {
	s := tempDB(t)
	if _, err := s.GetPatch("nope"); err == nil {
		t.Fatal("expected error for missing patch")
	}
}

func TestListPatchesNewestFirst(t *testing.T) {
	s := tempDB(t)
	r := sampleResult("model-a")
	if err := s.SaveDriftResult(r); err != nil {
		t.Fatalf("SaveDriftResult: %v", err)
	}

	base := time.Now().UTC()
	var last string
	for i := 0; i < 3; i++ {
		p := samplePatch("model-a", r.ID)
		p.CreatedAt = base.Add(time.Duration(i) * time.Second)
		if err := s.SavePatch(p); err != nil {
			t.Fatalf("SavePatch: %v", err)
		}
		last = p.ID
	}

	patches, err := s.ListPatches("model-a", 10)
	if err != nil {
		t.Fatalf("ListPatches: %v", err)
	}
	if len(patches) != 3 {
		t.Fatalf("expected 3 patches, got %d", len(patches))
	}
	if patches[0].ID != last {
		t.Fatalf("expected newest patch first, got %s", patches[0].ID)
	}
}

func TestSnapshotLatestAndDelete(t *testing.T) {
	s := tempDB(t)
	r := sampleResult("model-a")
	if err := s.SaveDriftResult(r); err != nil {
		t.Fatalf("SaveDriftResult: %v", err)
	}
	p := samplePatch("model-a", r.ID)
	if err := s.SavePatch(p); err != nil {
		t.Fatalf("SavePatch: %v", err)
	}

	if _, ok, err := s.LatestSnapshot(p.ID); err != nil || ok {
		t.Fatalf("expected no snapshot yet, ok=%v err=%v", ok, err)
	}

	base := time.Now().UTC()
	first := patch.Snapshot{
		ID:            uuid.NewString(),
		PatchID:       p.ID,
		Timestamp:     base,
		PreApplyState: []byte(`{"v":1}`),
	}
	second := patch.Snapshot{
		ID:             uuid.NewString(),
		PatchID:        p.ID,
		Timestamp:      base.Add(time.Second),
		PreApplyState:  []byte(`{"v":2}`),
		PostApplyState: []byte(`{"v":3}`),
	}
	if err := s.SaveSnapshot(first); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s.SaveSnapshot(second); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	got, ok, err := s.LatestSnapshot(p.ID)
	if err != nil {
		t.Fatalf("LatestSnapshot: %v", err)
	}
	if !ok {
		t.Fatal("expected a snapshot")
	}
	if got.ID != second.ID {
		t.Fatalf("expected latest snapshot %s, got %s", second.ID, got.ID)
	}
	if string(got.PreApplyState) != `{"v":2}` {
		t.Fatalf("pre-apply state mismatch: %s", got.PreApplyState)
	}
	if string(got.PostApplyState) != `{"v":3}` {
		t.Fatalf("post-apply state mismatch: %s", got.PostApplyState)
	}

	if err := s.DeleteSnapshot(second.ID); err != nil {
		t.Fatalf("DeleteSnapshot: %v", err)
	}
	got, ok, err = s.LatestSnapshot(p.ID)
	if err != nil || !ok {
		t.Fatalf("expected first snapshot to remain, ok=%v err=%v", ok, err)
	}
	if got.ID != first.ID {
		t.Fatalf("expected %s, got %s", first.ID, got.ID)
	}
}

func TestSnapshotUpsertFillsPostState(t *testing.T) {
	s := tempDB(t)
	snap := patch.Snapshot{
		ID:            uuid.NewString(),
		PatchID:       "p1",
		Timestamp:     time.Now().UTC(),
		PreApplyState: []byte(`{"a":1}`),
	}
	if err := s.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	snap.PostApplyState = []byte(`{"a":2}`)
	if err := s.SaveSnapshot(snap); err != nil {
		t.Fatalf("SaveSnapshot upsert: %v", err)
	}

	got, ok, err := s.LatestSnapshot("p1")
	if err != nil || !ok {
		t.Fatalf("LatestSnapshot: ok=%v err=%v", ok, err)
	}
	if string(got.PreApplyState) != `{"a":1}` || string(got.PostApplyState) != `{"a":2}` {
		t.Fatalf("upsert lost state: pre=%s post=%s", got.PreApplyState, got.PostApplyState)
	}
}
