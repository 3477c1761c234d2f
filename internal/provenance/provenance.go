package provenance

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-decision
// LogDecision writes a provenance entry to the provenance_log table.
func LogDecision(db *sql.DB, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO provenance_log (subject_id, model_id, trigger_type, detail_json, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.SubjectID,
		nullIfEmpty(entry.ModelID),
		entry.TriggerType,
		nullIfEmpty(entry.DetailJSON),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region list
// ListBySubject returns all provenance entries for a subject, oldest first.
func ListBySubject(db *sql.DB, subjectID string) ([]Entry, error) {
	rows, err := db.Query(
		`SELECT subject_id, COALESCE(model_id, ''), trigger_type, COALESCE(detail_json, ''), decision, COALESCE(reason, ''), created_at
		 FROM provenance_log WHERE subject_id = ? ORDER BY id ASC`, subjectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list provenance: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.SubjectID, &e.ModelID, &e.TriggerType, &e.DetailJSON, &e.Decision, &e.Reason, &ts); err != nil {
			return nil, fmt.Errorf("scan provenance: %w", err)
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339Nano, ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// #endregion list

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
