package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/danielpatrickdp/driftguard/internal/attribution"
	"github.com/danielpatrickdp/driftguard/internal/drift"
	"github.com/danielpatrickdp/driftguard/internal/inference"
	"github.com/danielpatrickdp/driftguard/internal/lifecycle"
	"github.com/danielpatrickdp/driftguard/internal/patch"
	"github.com/danielpatrickdp/driftguard/internal/provenance"
	"github.com/danielpatrickdp/driftguard/internal/replay"
	"github.com/danielpatrickdp/driftguard/internal/store"
	"github.com/danielpatrickdp/driftguard/internal/synth"
	"github.com/danielpatrickdp/driftguard/internal/validate"
)

// #region input-files

// referenceFile is the JSON layout of the training-time reference batch.
type referenceFile struct {
	FeatureNames []string    `json:"feature_names"`
	Matrix       [][]float64 `json:"matrix"`
}

// batchFile is the JSON layout of a production batch fed to `detect`.
type batchFile struct {
	Current [][]float64 `json:"current"`
	Labels  []float64   `json:"labels"`
}

// #endregion input-files

// #region session

// session holds the REPL state between commands.
type session struct {
	engine  *lifecycle.Engine
	st      *store.Store
	predict validate.PredictFunc
	modelID string

	featureNames []string
	reference    [][]float64

	lastResult *drift.DriftResult
	lastBatch  *batchFile
	candidates []patch.Patch
}

// #endregion session

// #region main
func main() {
	dbPath := envOr("DRIFTGUARD_DB", "driftguard.db")
	grpcAddr := envOr("INFERENCE_ADDR", "localhost:50051")
	modelID := envOr("DRIFTGUARD_MODEL", "default")
	refPath := envOr("DRIFTGUARD_REFERENCE", "reference.json")

	st, err := store.NewStore(dbPath)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer st.Close()

	ref, err := loadReference(refPath)
	if err != nil {
		log.Fatalf("failed to load reference batch: %v", err)
	}

	var predict validate.PredictFunc
	if os.Getenv("DRIFTGUARD_OFFLINE") != "" {
		log.Println("DRIFTGUARD_OFFLINE set, using deterministic offline scorer")
		predict = replay.OfflinePredict(ref.FeatureNames)
	} else {
		client, err := inference.NewClient(grpcAddr)
		if err != nil {
			log.Fatalf("failed to connect to inference service at %s: %v", grpcAddr, err)
		}
		defer client.Close()
		predict = client.AsPredictFunc()
	}

	s := &session{
		engine:       lifecycle.NewEngine(st),
		st:           st,
		predict:      predict,
		modelID:      modelID,
		featureNames: ref.FeatureNames,
		reference:    ref.Matrix,
	}

	fmt.Println("Drift Guard controller ready.")
	fmt.Printf("  DB: %s | Model: %s | Reference: %d samples × %d features\n",
		dbPath, modelID, len(ref.Matrix), len(ref.FeatureNames))
	fmt.Println("Commands: detect <batch.json> | candidates | validate <n> | apply <n> | rollback <n> | status | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "quit" || line == "exit" {
			break
		}
		s.dispatch(line)
	}
}

// #endregion main

// #region dispatch
func (s *session) dispatch(line string) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	var err error
	switch cmd {
	case "detect":
		err = s.runDetect(args)
	case "candidates":
		err = s.runCandidates()
	case "validate":
		err = s.runValidate(args)
	case "apply":
		err = s.runApply(args)
	case "rollback":
		err = s.runRollback(args)
	case "status":
		err = s.runStatus()
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		log.Printf("error: %v", err)
	}
}

// #endregion dispatch

// #region detect
func (s *session) runDetect(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: detect <batch.json>")
	}
	batch, err := loadBatch(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, ranking, err := s.engine.RunDetection(ctx, s.modelID, s.reference, batch.Current, s.featureNames, drift.DefaultDriftConfig())
	if err != nil {
		return err
	}
	s.lastResult = &result
	s.lastBatch = batch
	s.candidates = nil

	decision := "clear"
	if result.IsDriftDetected {
		decision = "detected"
	}
	if err := provenance.LogDecision(s.st.DB(), provenance.Entry{
		SubjectID:   result.ID,
		ModelID:     s.modelID,
		TriggerType: "detection",
		Decision:    decision,
		Reason:      fmt.Sprintf("score=%.4f type=%s", result.DriftScore, result.DriftType),
	}); err != nil {
		log.Printf("logging error: %v", err)
	}

	fmt.Printf("drift score %.4f (threshold %.2f) type=%s detected=%v\n",
		result.DriftScore, result.Threshold, result.DriftType, result.IsDriftDetected)
	printRanking(ranking)
	return nil
}

func printRanking(ranking []attribution.Entry) {
	if len(ranking) == 0 {
		return
	}
	fmt.Println("attribution:")
	for i, e := range ranking {
		if i >= 5 {
			break
		}
		fmt.Printf("  %-16s %6.2f%%\n", e.FeatureName, e.Contribution*100)
	}
}

// #endregion detect

// #region candidates
func (s *session) runCandidates() error {
	if s.lastResult == nil || !s.lastResult.IsDriftDetected {
		return fmt.Errorf("no drift detected yet, run detect first")
	}

	_, ranking := attribution.Rank(s.lastResult.FeatureDrifts)
	cands, err := synth.Synthesize(*s.lastResult, ranking, s.lastBatch.Current, s.featureNames, synth.DefaultSynthConfig())
	if err != nil {
		return err
	}
	s.candidates = cands

	if len(cands) == 0 {
		fmt.Println("no candidates synthesized")
		return nil
	}
	for i, c := range cands {
		fmt.Printf("  [%d] %-22s safety=%.2f status=%s\n", i, c.Type, c.SafetyScore, c.Status)
	}
	return nil
}

// #endregion candidates

// #region validate
func (s *session) runValidate(args []string) error {
	p, err := s.pickCandidate(args)
	if err != nil {
		return err
	}

	in := validate.ValidationInput{
		Inputs:           s.lastBatch.Current,
		Labels:           s.lastBatch.Labels,
		Reference:        s.reference,
		Current:          s.lastBatch.Current,
		FeatureNames:     s.featureNames,
		DriftConfig:      drift.DefaultDriftConfig(),
		DriftScoreBefore: s.lastResult.DriftScore,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	config := validate.DefaultValidationConfig()
	result, err := s.engine.Validate(ctx, p, in, s.predict, config)
	if err != nil {
		return err
	}

	decision := "accept"
	if !result.IsValid {
		decision = "reject"
	}
	fastTrack := false
	for _, msg := range result.Errors {
		if strings.HasPrefix(msg, "fast-track") {
			fastTrack = true
		}
	}
	detail, _ := json.Marshal(provenance.ValidationRecord{
		PatchID:          p.ID,
		ModelID:          s.modelID,
		PatchType:        string(p.Type),
		Accuracy:         result.Accuracy,
		Precision:        result.Precision,
		Recall:           result.Recall,
		F1:               result.F1,
		SafetyScore:      result.SafetyScore,
		DriftScoreBefore: result.DriftScoreBefore,
		DriftScoreAfter:  result.DriftScoreAfter,
		SampleCount:      len(in.Inputs),
		Thresholds: provenance.ValidationThresholds{
			SafetyFloor:            config.SafetyFloor,
			DriftReductionFloor:    config.DriftReductionFloor,
			FastTrackSampleCeiling: config.FastTrackSampleCeiling,
		},
		Accepted:  result.IsValid,
		FastTrack: fastTrack,
		Reason:    strings.Join(result.Errors, "; "),
	})
	if err := provenance.LogDecision(s.st.DB(), provenance.Entry{
		SubjectID:   p.ID,
		ModelID:     s.modelID,
		TriggerType: "validation",
		DetailJSON:  string(detail),
		Decision:    decision,
		Reason:      strings.Join(result.Errors, "; "),
	}); err != nil {
		log.Printf("logging error: %v", err)
	}

	fmt.Printf("status=%s safety=%.4f drift %.4f → %.4f f1=%.4f\n",
		p.Status, result.SafetyScore, result.DriftScoreBefore, result.DriftScoreAfter, result.F1)
	for _, msg := range result.Errors {
		fmt.Printf("  note: %s\n", msg)
	}
	return nil
}

// #endregion validate

// #region apply-rollback
func (s *session) runApply(args []string) error {
	p, err := s.pickCandidate(args)
	if err != nil {
		return err
	}
	if err := s.engine.Apply(p); err != nil {
		s.logLifecycle(p.ID, "apply", "apply_failed", err.Error())
		return err
	}
	s.logLifecycle(p.ID, "apply", "applied", "")
	fmt.Printf("patch %s applied\n", shortID(p.ID))
	return nil
}

func (s *session) runRollback(args []string) error {
	p, err := s.pickCandidate(args)
	if err != nil {
		return err
	}
	if err := s.engine.Rollback(p); err != nil {
		return err
	}
	s.logLifecycle(p.ID, "rollback", "rolled_back", "")
	fmt.Printf("patch %s rolled back\n", shortID(p.ID))
	return nil
}

func (s *session) logLifecycle(patchID, trigger, decision, reason string) {
	if err := provenance.LogDecision(s.st.DB(), provenance.Entry{
		SubjectID:   patchID,
		ModelID:     s.modelID,
		TriggerType: trigger,
		Decision:    decision,
		Reason:      reason,
	}); err != nil {
		log.Printf("logging error: %v", err)
	}
}

// #endregion apply-rollback

// #region status
func (s *session) runStatus() error {
	state := s.engine.LiveState(s.modelID)
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// #endregion status

// #region helpers
func (s *session) pickCandidate(args []string) (*patch.Patch, error) {
	if len(s.candidates) == 0 {
		return nil, fmt.Errorf("no candidates, run candidates first")
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: <command> <candidate index>")
	}
	i, err := strconv.Atoi(args[0])
	if err != nil || i < 0 || i >= len(s.candidates) {
		return nil, fmt.Errorf("candidate index out of range [0,%d)", len(s.candidates))
	}
	return &s.candidates[i], nil
}

func loadReference(path string) (*referenceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var ref referenceFile
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(ref.Matrix) == 0 || len(ref.FeatureNames) == 0 {
		return nil, fmt.Errorf("%s: empty reference batch", path)
	}
	return &ref, nil
}

func loadBatch(path string) (*batchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var b batchFile
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &b, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
