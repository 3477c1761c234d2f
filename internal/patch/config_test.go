package patch

import (
	"errors"
	"math"
	"testing"
)

func TestValidateExactlyOneVariant(t *testing.T) {
	var invalidErr *InvalidConfigurationError

	empty := Configuration{}
	if err := empty.Validate(); !errors.As(err, &invalidErr) {
		t.Fatalf("expected InvalidConfigurationError for empty union, got %v", err)
	}

	double := Configuration{
		Clipping:  &FeatureClipping{Feature: "x", LowerBound: 0, UpperBound: 1},
		Threshold: &ThresholdTuning{DecisionThreshold: 0.5},
	}
	if err := double.Validate(); !errors.As(err, &invalidErr) {
		t.Fatalf("expected InvalidConfigurationError for two variants, got %v", err)
	}
}

func TestValidateClippingBounds(t *testing.T) {
	bad := Configuration{Clipping: &FeatureClipping{Feature: "x", LowerBound: 2, UpperBound: 1}}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected error for inverted bounds")
	}

	good := Configuration{Clipping: &FeatureClipping{Feature: "x", LowerBound: -1, UpperBound: 1}}
	if err := good.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if good.Kind() != TypeFeatureClipping {
		t.Fatalf("expected feature_clipping kind, got %s", good.Kind())
	}
}

func TestValidateThresholdRange(t *testing.T) {
	for _, v := range []float64{0, 1, -0.2, 1.5} {
		cfg := Configuration{Threshold: &ThresholdTuning{DecisionThreshold: v}}
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected error for threshold %f", v)
		}
	}
}

func TestValidateNormalizationStd(t *testing.T) {
	cfg := Configuration{Normalization: &NormalizationUpdate{Feature: "x", NewMean: 0, NewStd: 0}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero std")
	}
}

func TestApplyClipping(t *testing.T) {
	cfg := Configuration{Clipping: &FeatureClipping{Feature: "b", LowerBound: -1, UpperBound: 1}}
	inputs := [][]float64{{10, 5}, {10, -5}, {10, 0.5}}

	out, keep := ApplyToInputs(cfg, []string{"a", "b"}, inputs)
	if keep != nil {
		t.Fatal("clipping should not drop rows")
	}
	if out[0][1] != 1 || out[1][1] != -1 || out[2][1] != 0.5 {
		t.Fatalf("unexpected clipped column: %v %v %v", out[0][1], out[1][1], out[2][1])
	}
	if out[0][0] != 10 {
		t.Fatal("untargeted feature was modified")
	}
	if inputs[0][1] != 5 {
		t.Fatal("input matrix was mutated")
	}
}

func TestApplyReweighting(t *testing.T) {
	cfg := Configuration{Reweighting: &FeatureReweighting{Weights: map[string]float64{"a": 0.5}}}
	out, _ := ApplyToInputs(cfg, []string{"a"}, [][]float64{{4}, {8}})
	if out[0][0] != 2 || out[1][0] != 4 {
		t.Fatalf("unexpected reweighted column: %v %v", out[0][0], out[1][0])
	}
}

func TestApplyOutlierRemovalDropsRows(t *testing.T) {
	cfg := Configuration{Outlier: &OutlierRemoval{Feature: "a", ZScoreCutoff: 2.0}}
	inputs := [][]float64{{1}, {1.1}, {0.9}, {1.0}, {1.05}, {0.95}, {100}}

	out, keep := ApplyToInputs(cfg, []string{"a"}, inputs)
	if keep == nil {
		t.Fatal("expected rows dropped")
	}
	if len(out) != len(inputs)-1 {
		t.Fatalf("expected %d rows, got %d", len(inputs)-1, len(out))
	}
	for _, i := range keep {
		if i == 6 {
			t.Fatal("outlier row survived")
		}
	}
}

func TestMagnitudeOrdering(t *testing.T) {
	narrow := Configuration{Clipping: &FeatureClipping{Feature: "x", LowerBound: 0, UpperBound: 0.1}}
	wide := Configuration{Clipping: &FeatureClipping{Feature: "x", LowerBound: -10, UpperBound: 10}}
	if narrow.Magnitude() <= wide.Magnitude() {
		t.Fatalf("narrow clip should be larger change: %f vs %f", narrow.Magnitude(), wide.Magnitude())
	}

	neutral := Configuration{Threshold: &ThresholdTuning{DecisionThreshold: 0.5}}
	if neutral.Magnitude() != 0 {
		t.Fatalf("neutral threshold should have zero magnitude, got %f", neutral.Magnitude())
	}

	deltas := Configuration{Model: &ModelUpdate{ParameterDeltas: map[string]float64{"w0": 3, "w1": 4}}}
	if math.Abs(deltas.Magnitude()-5) > 1e-9 {
		t.Fatalf("expected L2 norm 5, got %f", deltas.Magnitude())
	}
}
