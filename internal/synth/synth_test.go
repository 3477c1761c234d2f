package synth

import (
	"testing"

	"github.com/danielpatrickdp/driftguard/internal/attribution"
	"github.com/danielpatrickdp/driftguard/internal/drift"
	"github.com/danielpatrickdp/driftguard/internal/patch"
)

func makeResult(driftType drift.DriftType, drifts []drift.FeatureDrift) drift.DriftResult {
	return drift.DriftResult{
		ID:              "dr-1",
		ModelID:         "model-1",
		DriftType:       driftType,
		FeatureDrifts:   drifts,
		IsDriftDetected: driftType != drift.DriftNone,
		DriftScore:      0.5,
	}
}

func makeMatrix(rows int, cols int, base float64) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		row := make([]float64, cols)
		for j := range row {
			row[j] = base + float64(i)*0.01
		}
		m[i] = row
	}
	return m
}

func TestSynthesizeNoneReturnsNothing(t *testing.T) {
	result := makeResult(drift.DriftNone, nil)
	patches, err := Synthesize(result, nil, makeMatrix(10, 1, 0), []string{"a"}, DefaultSynthConfig())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(patches) != 0 {
		t.Fatalf("expected no candidates for none, got %d", len(patches))
	}
}

func TestSynthesizePriorPrefersThresholdTuning(t *testing.T) {
	result := makeResult(drift.DriftPrior, []drift.FeatureDrift{
		{FeatureName: "a", PSIScore: 2.0, MeanShift: 3.0, IsDrifted: true},
		{FeatureName: "b", PSIScore: 0.0},
	})
	ranking := []attribution.Entry{
		{FeatureName: "a", Contribution: 1.0},
		{FeatureName: "b", Contribution: 0.0},
	}

	patches, err := Synthesize(result, ranking, makeMatrix(10, 2, 0), []string{"a", "b"}, DefaultSynthConfig())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(patches) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(patches))
	}
	if patches[0].Type != patch.TypeThresholdTuning {
		t.Fatalf("expected threshold_tuning first, got %s", patches[0].Type)
	}
	if patches[1].Type != patch.TypeFeatureReweighting {
		t.Fatalf("expected feature_reweighting second, got %s", patches[1].Type)
	}

	th := patches[0].Configuration.Threshold.DecisionThreshold
	if th <= 0.5 || th >= 1 {
		t.Fatalf("expected threshold shifted above 0.5, got %f", th)
	}

	w := patches[1].Configuration.Reweighting.Weights["a"]
	if w != 0.5 {
		t.Fatalf("expected weight 1/(1+1.0)=0.5, got %f", w)
	}

	for _, p := range patches {
		if p.Status != patch.StatusCreated {
			t.Fatalf("expected created status, got %s", p.Status)
		}
		if p.SafetyScore <= 0 {
			t.Fatal("expected positive initial safety score")
		}
		if p.DriftResultID != "dr-1" || p.ModelID != "model-1" {
			t.Fatal("candidate not linked to drift result")
		}
	}
}

func TestSynthesizeConceptReweightsAllDrifted(t *testing.T) {
	result := makeResult(drift.DriftConcept, []drift.FeatureDrift{
		{FeatureName: "a", PSIScore: 1.0, IsDrifted: true},
		{FeatureName: "b", PSIScore: 0.5, IsDrifted: true},
		{FeatureName: "c", PSIScore: 0.0},
	})
	ranking := []attribution.Entry{
		{FeatureName: "a", Contribution: 0.66},
		{FeatureName: "b", Contribution: 0.34},
		{FeatureName: "c", Contribution: 0.0},
	}

	patches, err := Synthesize(result, ranking, makeMatrix(10, 3, 0), []string{"a", "b", "c"}, DefaultSynthConfig())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(patches) != 2 {
		t.Fatalf("expected reweighting + model update, got %d", len(patches))
	}
	if patches[0].Type != patch.TypeFeatureReweighting {
		t.Fatalf("expected feature_reweighting first, got %s", patches[0].Type)
	}
	if patches[1].Type != patch.TypeModelUpdate {
		t.Fatalf("expected model_update second, got %s", patches[1].Type)
	}

	weights := patches[0].Configuration.Reweighting.Weights
	if len(weights) != 2 {
		t.Fatalf("expected weights for the 2 drifted features, got %d", len(weights))
	}
	if _, ok := weights["c"]; ok {
		t.Fatal("undrifted feature should not be reweighted")
	}
	if weights["a"] >= weights["b"] {
		t.Fatalf("heavier drift should get smaller weight: a=%f b=%f", weights["a"], weights["b"])
	}
}

func TestSynthesizeCovariateUsesCurrentPercentiles(t *testing.T) {
	result := makeResult(drift.DriftCovariate, []drift.FeatureDrift{
		{FeatureName: "a", PSIScore: 1.0, IsDrifted: true},
	})
	ranking := []attribution.Entry{{FeatureName: "a", Contribution: 1.0}}

	current := make([][]float64, 100)
	for i := range current {
		current[i] = []float64{float64(i)} // 0..99
	}

	patches, err := Synthesize(result, ranking, current, []string{"a"}, DefaultSynthConfig())
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(patches) != 3 {
		t.Fatalf("expected normalization + clipping + outlier candidates, got %d", len(patches))
	}

	norm := patches[0].Configuration.Normalization
	if norm == nil || norm.NewMean < 49 || norm.NewMean > 50 {
		t.Fatalf("expected current mean near 49.5, got %+v", norm)
	}

	clip := patches[1].Configuration.Clipping
	if clip == nil {
		t.Fatal("expected clipping candidate")
	}
	if clip.LowerBound > 5 || clip.UpperBound < 95 || clip.LowerBound >= clip.UpperBound {
		t.Fatalf("unexpected clip bounds [%f, %f]", clip.LowerBound, clip.UpperBound)
	}

	outlier := patches[2].Configuration.Outlier
	if outlier == nil || outlier.ZScoreCutoff != 3.0 {
		t.Fatalf("expected outlier removal with cutoff 3, got %+v", outlier)
	}
}

func TestSynthesizeEmptyCurrentMatrix(t *testing.T) {
	result := makeResult(drift.DriftCovariate, []drift.FeatureDrift{
		{FeatureName: "a", PSIScore: 1.0, IsDrifted: true},
	})
	_, err := Synthesize(result, []attribution.Entry{{FeatureName: "a", Contribution: 1}}, nil, []string{"a"}, DefaultSynthConfig())
	if err == nil {
		t.Fatal("expected error for empty current matrix")
	}
}
