package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/driftguard/internal/drift"
	"github.com/danielpatrickdp/driftguard/internal/patch"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS drift_results (
	id             TEXT PRIMARY KEY,
	model_id       TEXT NOT NULL,
	timestamp      TEXT NOT NULL,
	drift_score    REAL NOT NULL,
	drift_type     TEXT NOT NULL,
	is_detected    INTEGER NOT NULL,
	threshold      REAL NOT NULL,
	feature_drifts TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS patches (
	id                TEXT PRIMARY KEY,
	model_id          TEXT NOT NULL,
	drift_result_id   TEXT NOT NULL,
	patch_type        TEXT NOT NULL,
	configuration     TEXT NOT NULL,
	status            TEXT NOT NULL,
	safety_score      REAL NOT NULL,
	validation_result TEXT,
	created_at        TEXT NOT NULL,
	applied_at        TEXT,
	rolled_back_at    TEXT
);

CREATE TABLE IF NOT EXISTS patch_snapshots (
	id               TEXT PRIMARY KEY,
	patch_id         TEXT NOT NULL,
	timestamp        TEXT NOT NULL,
	pre_apply_state  BLOB NOT NULL,
	post_apply_state BLOB
);

CREATE TABLE IF NOT EXISTS provenance_log (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	subject_id   TEXT NOT NULL,
	model_id     TEXT,
	trigger_type TEXT NOT NULL,
	detail_json  TEXT,
	decision     TEXT NOT NULL,
	reason       TEXT,
	created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_drift_results_model
ON drift_results(model_id, timestamp);

CREATE INDEX IF NOT EXISTS idx_patches_model
ON patches(model_id, created_at);

CREATE INDEX IF NOT EXISTS idx_snapshots_patch
ON patch_snapshots(patch_id, timestamp);
`

// #endregion schema

// #region store-struct

// Store persists drift results, patches, and snapshots in SQLite.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=FULL"); err != nil {
		return nil, fmt.Errorf("pragma sync: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. provenance).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion close

// #region drift-results

// SaveDriftResult persists one detection run.
func (s *Store) SaveDriftResult(r drift.DriftResult) error {
	driftsJSON, err := json.Marshal(r.FeatureDrifts)
	if err != nil {
		return fmt.Errorf("marshal feature drifts: %w", err)
	}
	detected := 0
	if r.IsDriftDetected {
		detected = 1
	}
	_, err = s.db.Exec(
		`INSERT INTO drift_results (id, model_id, timestamp, drift_score, drift_type, is_detected, threshold, feature_drifts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ModelID, r.Timestamp.Format(time.RFC3339Nano),
		r.DriftScore, string(r.DriftType), detected, r.Threshold, string(driftsJSON),
	)
	if err != nil {
		return fmt.Errorf("insert drift result: %w", err)
	}
	return nil
}

// GetDriftResult retrieves a detection run by ID.
func (s *Store) GetDriftResult(id string) (drift.DriftResult, error) {
	row := s.db.QueryRow(
		`SELECT id, model_id, timestamp, drift_score, drift_type, is_detected, threshold, feature_drifts
		 FROM drift_results WHERE id = ?`, id,
	)
	return scanDriftResult(row)
}

// ListDriftResults returns the most recent detection runs for a model.
func (s *Store) ListDriftResults(modelID string, limit int) ([]drift.DriftResult, error) {
	rows, err := s.db.Query(
		`SELECT id, model_id, timestamp, drift_score, drift_type, is_detected, threshold, feature_drifts
		 FROM drift_results WHERE model_id = ? ORDER BY timestamp DESC LIMIT ?`, modelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list drift results: %w", err)
	}
	defer rows.Close()

	var results []drift.DriftResult
	for rows.Next() {
		r, err := scanDriftResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDriftResult(row rowScanner) (drift.DriftResult, error) {
	var r drift.DriftResult
	var ts, driftType, driftsJSON string
	var detected int
	if err := row.Scan(&r.ID, &r.ModelID, &ts, &r.DriftScore, &driftType, &detected, &r.Threshold, &driftsJSON); err != nil {
		return drift.DriftResult{}, fmt.Errorf("scan drift result: %w", err)
	}
	r.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	r.DriftType = drift.DriftType(driftType)
	r.IsDriftDetected = detected == 1
	if err := json.Unmarshal([]byte(driftsJSON), &r.FeatureDrifts); err != nil {
		return drift.DriftResult{}, fmt.Errorf("unmarshal feature drifts: %w", err)
	}
	return r, nil
}

// #endregion drift-results

// #region patches

// SavePatch inserts or updates a patch row.
func (s *Store) SavePatch(p patch.Patch) error {
	cfgJSON, err := json.Marshal(p.Configuration)
	if err != nil {
		return fmt.Errorf("marshal configuration: %w", err)
	}
	var validationPtr any
	if p.ValidationResult != nil {
		vJSON, err := json.Marshal(p.ValidationResult)
		if err != nil {
			return fmt.Errorf("marshal validation result: %w", err)
		}
		validationPtr = string(vJSON)
	}

	_, err = s.db.Exec(
		`INSERT INTO patches (id, model_id, drift_result_id, patch_type, configuration, status, safety_score, validation_result, created_at, applied_at, rolled_back_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			safety_score = excluded.safety_score,
			validation_result = excluded.validation_result,
			applied_at = excluded.applied_at,
			rolled_back_at = excluded.rolled_back_at`,
		p.ID, p.ModelID, p.DriftResultID, string(p.Type), string(cfgJSON),
		string(p.Status), p.SafetyScore, validationPtr,
		p.CreatedAt.Format(time.RFC3339Nano),
		timePtr(p.AppliedAt), timePtr(p.RolledBackAt),
	)
	if err != nil {
		return fmt.Errorf("upsert patch: %w", err)
	}
	return nil
}

// GetPatch retrieves a patch by ID.
func (s *Store) GetPatch(id string) (patch.Patch, error) {
	row := s.db.QueryRow(
		`SELECT id, model_id, drift_result_id, patch_type, configuration, status, safety_score, validation_result, created_at, applied_at, rolled_back_at
		 FROM patches WHERE id = ?`, id,
	)
	return scanPatch(row)
}

// ListPatches returns the most recent patches for a model.
func (s *Store) ListPatches(modelID string, limit int) ([]patch.Patch, error) {
	rows, err := s.db.Query(
		`SELECT id, model_id, drift_result_id, patch_type, configuration, status, safety_score, validation_result, created_at, applied_at, rolled_back_at
		 FROM patches WHERE model_id = ? ORDER BY created_at DESC LIMIT ?`, modelID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list patches: %w", err)
	}
	defer rows.Close()

	var patches []patch.Patch
	for rows.Next() {
		p, err := scanPatch(rows)
		if err != nil {
			return nil, err
		}
		patches = append(patches, p)
	}
	return patches, rows.Err()
}

func scanPatch(row rowScanner) (patch.Patch, error) {
	var p patch.Patch
	var patchType, cfgJSON, status, createdStr string
	var validationJSON, appliedStr, rolledBackStr sql.NullString
	if err := row.Scan(&p.ID, &p.ModelID, &p.DriftResultID, &patchType, &cfgJSON, &status,
		&p.SafetyScore, &validationJSON, &createdStr, &appliedStr, &rolledBackStr); err != nil {
		return patch.Patch{}, fmt.Errorf("scan patch: %w", err)
	}
	p.Type = patch.Type(patchType)
	p.Status = patch.Status(status)
	if err := json.Unmarshal([]byte(cfgJSON), &p.Configuration); err != nil {
		return patch.Patch{}, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if validationJSON.Valid {
		var v patch.ValidationResult
		if err := json.Unmarshal([]byte(validationJSON.String), &v); err != nil {
			return patch.Patch{}, fmt.Errorf("unmarshal validation result: %w", err)
		}
		p.ValidationResult = &v
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	p.AppliedAt = parseTimePtr(appliedStr)
	p.RolledBackAt = parseTimePtr(rolledBackStr)
	return p, nil
}

// #endregion patches

// #region snapshots

// SaveSnapshot inserts or updates a snapshot. The row is committed before
// this returns, so a crash after SaveSnapshot never loses the pre-apply
// state of an applied patch.
func (s *Store) SaveSnapshot(snap patch.Snapshot) error {
	var postPtr any
	if len(snap.PostApplyState) > 0 {
		postPtr = snap.PostApplyState
	}
	_, err := s.db.Exec(
		`INSERT INTO patch_snapshots (id, patch_id, timestamp, pre_apply_state, post_apply_state)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET post_apply_state = excluded.post_apply_state`,
		snap.ID, snap.PatchID, snap.Timestamp.Format(time.RFC3339Nano),
		snap.PreApplyState, postPtr,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// DeleteSnapshot removes a snapshot discarded by a failed apply.
func (s *Store) DeleteSnapshot(id string) error {
	_, err := s.db.Exec(`DELETE FROM patch_snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}

// LatestSnapshot returns the most recent snapshot for a patch.
func (s *Store) LatestSnapshot(patchID string) (patch.Snapshot, bool, error) {
	var snap patch.Snapshot
	var ts string
	var post []byte
	err := s.db.QueryRow(
		`SELECT id, patch_id, timestamp, pre_apply_state, post_apply_state
		 FROM patch_snapshots WHERE patch_id = ? ORDER BY timestamp DESC LIMIT 1`, patchID,
	).Scan(&snap.ID, &snap.PatchID, &ts, &snap.PreApplyState, &post)
	if err == sql.ErrNoRows {
		return patch.Snapshot{}, false, nil
	}
	if err != nil {
		return patch.Snapshot{}, false, fmt.Errorf("get snapshot: %w", err)
	}
	snap.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
	snap.PostApplyState = post
	return snap, true, nil
}

// #endregion snapshots

// #region helpers

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339Nano)
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

// #endregion helpers
