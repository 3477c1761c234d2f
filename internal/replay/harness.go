package replay

import (
	"context"
	"fmt"
	"math"

	"github.com/danielpatrickdp/driftguard/internal/attribution"
	"github.com/danielpatrickdp/driftguard/internal/drift"
	"github.com/danielpatrickdp/driftguard/internal/normalize"
	"github.com/danielpatrickdp/driftguard/internal/patch"
	"github.com/danielpatrickdp/driftguard/internal/synth"
	"github.com/danielpatrickdp/driftguard/internal/validate"
)

// #region types
// Episode represents a single recorded batch of current data for replay.
type Episode struct {
	EpisodeID string
	Current   [][]float64
	Labels    []float64
}

// ReplayConfig bundles detection, synthesis, and validation configs for a replay run.
type ReplayConfig struct {
	ModelID          string
	DriftConfig      drift.DriftConfig
	SynthConfig      synth.SynthConfig
	ValidationConfig validate.ValidationConfig
}

// DefaultReplayConfig returns sensible defaults for all three pipeline stages.
func DefaultReplayConfig() ReplayConfig {
	return ReplayConfig{
		ModelID:          "replay",
		DriftConfig:      drift.DefaultDriftConfig(),
		SynthConfig:      synth.DefaultSynthConfig(),
		ValidationConfig: validate.DefaultValidationConfig(),
	}
}

// ReplayResult captures the outcome of replaying one episode through the full pipeline.
type ReplayResult struct {
	EpisodeID  string
	Action     string // "clear" | "accept" | "reject" | "no_candidates"
	Reason     string
	DriftType  drift.DriftType
	DriftScore float64

	// Attribution stage (empty if no drift was detected)
	Ranking []attribution.Entry

	// Candidate stage
	Candidates int
	Rejected   int

	// Best accepted candidate (nil unless Action is "accept")
	Accepted *patch.Patch
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalEpisodes int
	Clears        int
	Accepts       int
	Rejects       int
	NoCandidates  int
}

// #endregion types

// #region replay
// Replay iterates through episodes, applying the full pipeline per episode:
// detect → rank → synthesize → validate. Operates entirely in-memory against
// a fixed reference distribution.
func Replay(ctx context.Context, reference [][]float64, featureNames []string, episodes []Episode, predict validate.PredictFunc, config ReplayConfig) ([]ReplayResult, error) {
	results := make([]ReplayResult, 0, len(episodes))

	for _, ep := range episodes {
		res, err := replayEpisode(ctx, reference, featureNames, ep, predict, config)
		if err != nil {
			return nil, fmt.Errorf("episode %s: %w", ep.EpisodeID, err)
		}
		results = append(results, res)
	}
	return results, nil
}

func replayEpisode(ctx context.Context, reference [][]float64, featureNames []string, ep Episode, predict validate.PredictFunc, config ReplayConfig) (ReplayResult, error) {
	normRef, normCur, _, err := normalize.Normalize(reference, ep.Current)
	if err != nil {
		return ReplayResult{}, err
	}

	// 1. Detect
	detection, err := drift.Detect(ctx, config.ModelID, normRef, normCur, featureNames, config.DriftConfig)
	if err != nil {
		return ReplayResult{}, err
	}

	res := ReplayResult{
		EpisodeID:  ep.EpisodeID,
		DriftType:  detection.DriftType,
		DriftScore: detection.DriftScore,
	}

	// 2. Clear check
	if !detection.IsDriftDetected {
		res.Action = "clear"
		res.Reason = fmt.Sprintf("drift score %.4f below threshold %.2f", detection.DriftScore, detection.Threshold)
		return res, nil
	}

	// 3. Rank
	ranked, ranking := attribution.Rank(detection.FeatureDrifts)
	detection.FeatureDrifts = ranked
	res.Ranking = ranking

	// 4. Synthesize
	candidates, err := synth.Synthesize(detection, ranking, ep.Current, featureNames, config.SynthConfig)
	if err != nil {
		return ReplayResult{}, err
	}
	res.Candidates = len(candidates)
	if len(candidates) == 0 {
		res.Action = "no_candidates"
		res.Reason = "drift detected but no candidate patches synthesized"
		return res, nil
	}

	// 5. Validate every candidate; keep the safest accepted one
	in := validate.ValidationInput{
		Inputs:           ep.Current,
		Labels:           ep.Labels,
		Reference:        reference,
		Current:          ep.Current,
		FeatureNames:     featureNames,
		DriftConfig:      config.DriftConfig,
		DriftScoreBefore: detection.DriftScore,
	}

	var best *patch.Patch
	for i := range candidates {
		cand := &candidates[i]
		if _, err := validate.Validate(ctx, cand, in, predict, config.ValidationConfig); err != nil {
			return ReplayResult{}, err
		}
		if cand.Status != patch.StatusValidated {
			res.Rejected++
			continue
		}
		if best == nil || cand.SafetyScore > best.SafetyScore {
			best = cand
		}
	}

	if best == nil {
		res.Action = "reject"
		res.Reason = fmt.Sprintf("all %d candidates failed validation", len(candidates))
		return res, nil
	}

	res.Action = "accept"
	res.Reason = fmt.Sprintf("%s accepted with safety %.4f", best.Type, best.SafetyScore)
	res.Accepted = best
	return res, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult) ReplaySummary {
	s := ReplaySummary{TotalEpisodes: len(results)}
	for _, r := range results {
		switch r.Action {
		case "clear":
			s.Clears++
		case "accept":
			s.Accepts++
		case "reject":
			s.Rejects++
		case "no_candidates":
			s.NoCandidates++
		}
	}
	return s
}

// #endregion replay

// #region offline-predict
// OfflinePredict is a deterministic stand-in scorer for fixture replay
// without a live inference service: a logistic over the row mean, after
// applying the candidate configuration the same way the service would.
func OfflinePredict(featureNames []string) validate.PredictFunc {
	return func(_ context.Context, inputs [][]float64, cfg *patch.Configuration) ([]float64, error) {
		rows := inputs
		if cfg != nil {
			transformed, kept := patch.ApplyToInputs(*cfg, featureNames, inputs)
			// Outputs align 1:1 with inputs, so row-dropping configs score raw rows.
			if kept == nil {
				rows = transformed
			}
		}
		scores := make([]float64, len(rows))
		for i, row := range rows {
			var sum float64
			for _, v := range row {
				sum += v
			}
			mean := 0.0
			if len(row) > 0 {
				mean = sum / float64(len(row))
			}
			scores[i] = 1.0 / (1.0 + math.Exp(-mean))
		}
		return scores, nil
	}
}

// #endregion offline-predict
