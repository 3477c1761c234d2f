package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/driftguard/internal/drift"
	"github.com/danielpatrickdp/driftguard/internal/synth"
	"github.com/danielpatrickdp/driftguard/internal/validate"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	ModelID         string                  `json:"model_id"`
	FeatureNames    []string                `json:"feature_names"`
	Reference       [][]float64             `json:"reference"`
	Config          FixtureConfig           `json:"config"`
	Episodes        []FixtureEpisode        `json:"episodes"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureEpisode mirrors replay.Episode with JSON tags.
type FixtureEpisode struct {
	EpisodeID string      `json:"episode_id"`
	Current   [][]float64 `json:"current"`
	Labels    []float64   `json:"labels"`
}

// FixtureExpectedResult captures the expected outcome per episode.
type FixtureExpectedResult struct {
	EpisodeID string `json:"episode_id"`
	DriftType string `json:"drift_type"`
	Action    string `json:"action"`
}

// FixtureConfig bundles all sub-configs for a replay run.
type FixtureConfig struct {
	DriftConfig      FixtureDriftConfig      `json:"drift_config"`
	SynthConfig      FixtureSynthConfig      `json:"synth_config"`
	ValidationConfig FixtureValidationConfig `json:"validation_config"`
}

// FixtureDriftConfig mirrors drift.DriftConfig with JSON tags.
type FixtureDriftConfig struct {
	PSIThreshold       float64            `json:"psi_threshold"`
	KSThreshold        float64            `json:"ks_threshold"`
	PValueThreshold    float64            `json:"p_value_threshold"`
	AggregateThreshold float64            `json:"aggregate_threshold"`
	Bins               int                `json:"bins"`
	FeatureWeights     map[string]float64 `json:"feature_weights,omitempty"`
}

// FixtureSynthConfig mirrors synth.SynthConfig with JSON tags.
type FixtureSynthConfig struct {
	TopK              int     `json:"top_k"`
	ClipLowerQuantile float64 `json:"clip_lower_quantile"`
	ClipUpperQuantile float64 `json:"clip_upper_quantile"`
	ThresholdStep     float64 `json:"threshold_step"`
	OutlierCutoff     float64 `json:"outlier_cutoff"`
}

// FixtureValidationConfig mirrors validate.ValidationConfig with JSON tags.
type FixtureValidationConfig struct {
	SafetyFloor            float64 `json:"safety_floor"`
	DriftReductionFloor    float64 `json:"drift_reduction_floor"`
	FastTrackSampleCeiling int     `json:"fast_track_sample_ceiling"`
	MagnitudeWeight        float64 `json:"magnitude_weight"`
	StabilityWeight        float64 `json:"stability_weight"`
	DriftReductionWeight   float64 `json:"drift_reduction_weight"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToEpisode converts a FixtureEpisode to a domain Episode.
func (fe *FixtureEpisode) ToEpisode() Episode {
	return Episode{
		EpisodeID: fe.EpisodeID,
		Current:   fe.Current,
		Labels:    fe.Labels,
	}
}

// ToReplayConfig converts a FixtureConfig to a domain ReplayConfig.
func (fc *FixtureConfig) ToReplayConfig(modelID string) ReplayConfig {
	return ReplayConfig{
		ModelID: modelID,
		DriftConfig: drift.DriftConfig{
			PSIThreshold:       fc.DriftConfig.PSIThreshold,
			KSThreshold:        fc.DriftConfig.KSThreshold,
			PValueThreshold:    fc.DriftConfig.PValueThreshold,
			AggregateThreshold: fc.DriftConfig.AggregateThreshold,
			Bins:               fc.DriftConfig.Bins,
			FeatureWeights:     fc.DriftConfig.FeatureWeights,
		},
		SynthConfig: synth.SynthConfig{
			TopK:              fc.SynthConfig.TopK,
			ClipLowerQuantile: fc.SynthConfig.ClipLowerQuantile,
			ClipUpperQuantile: fc.SynthConfig.ClipUpperQuantile,
			ThresholdStep:     fc.SynthConfig.ThresholdStep,
			OutlierCutoff:     fc.SynthConfig.OutlierCutoff,
		},
		ValidationConfig: validate.ValidationConfig{
			SafetyFloor:            fc.ValidationConfig.SafetyFloor,
			DriftReductionFloor:    fc.ValidationConfig.DriftReductionFloor,
			FastTrackSampleCeiling: fc.ValidationConfig.FastTrackSampleCeiling,
			Weights: validate.SafetyWeights{
				Magnitude:      fc.ValidationConfig.MagnitudeWeight,
				Stability:      fc.ValidationConfig.StabilityWeight,
				DriftReduction: fc.ValidationConfig.DriftReductionWeight,
			},
		},
	}
}

// FromReplayConfig converts a domain ReplayConfig into its fixture mirror.
// Used by the fixture exporter.
func FromReplayConfig(c ReplayConfig) FixtureConfig {
	return FixtureConfig{
		DriftConfig: FixtureDriftConfig{
			PSIThreshold:       c.DriftConfig.PSIThreshold,
			KSThreshold:        c.DriftConfig.KSThreshold,
			PValueThreshold:    c.DriftConfig.PValueThreshold,
			AggregateThreshold: c.DriftConfig.AggregateThreshold,
			Bins:               c.DriftConfig.Bins,
			FeatureWeights:     c.DriftConfig.FeatureWeights,
		},
		SynthConfig: FixtureSynthConfig{
			TopK:              c.SynthConfig.TopK,
			ClipLowerQuantile: c.SynthConfig.ClipLowerQuantile,
			ClipUpperQuantile: c.SynthConfig.ClipUpperQuantile,
			ThresholdStep:     c.SynthConfig.ThresholdStep,
			OutlierCutoff:     c.SynthConfig.OutlierCutoff,
		},
		ValidationConfig: FixtureValidationConfig{
			SafetyFloor:            c.ValidationConfig.SafetyFloor,
			DriftReductionFloor:    c.ValidationConfig.DriftReductionFloor,
			FastTrackSampleCeiling: c.ValidationConfig.FastTrackSampleCeiling,
			MagnitudeWeight:        c.ValidationConfig.Weights.Magnitude,
			StabilityWeight:        c.ValidationConfig.Weights.Stability,
			DriftReductionWeight:   c.ValidationConfig.Weights.DriftReduction,
		},
	}
}

// #endregion fixture-loader
