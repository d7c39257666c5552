package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// CurationLabel marks a beat-indexed choreography entry as a
// signature move (or other curation tag) for later replay.
type CurationLabel struct {
	ID          int64     `json:"id"`
	SongMapID   int64     `json:"song_map_id"`
	BeatIndex   int       `json:"beat_index"`
	LabelValue  string    `json:"label_value"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CurationJob tracks an async pattern-library rebuild triggered by
// new curation labels.
type CurationJob struct {
	ID           int64          `json:"id"`
	JobID        string         `json:"job_id"`
	Status       string         `json:"status"`
	Progress     float64        `json:"progress"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	LabelCounts  map[string]int `json:"label_counts,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// PatternLibraryVersion records a curated snapshot of signature-move
// labels as one versioned, activatable generation.
type PatternLibraryVersion struct {
	ID            int64          `json:"id"`
	Version       int            `json:"version"`
	IsActive      bool           `json:"is_active"`
	LabelCounts   map[string]int `json:"label_counts,omitempty"`
	CurationJobID string         `json:"curation_job_id,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// AddCurationLabel adds or updates a curation label for a beat.
func (d *DB) AddCurationLabel(ctx context.Context, label *CurationLabel) error {
	result, err := d.db.ExecContext(ctx, `
		INSERT INTO curation_labels (song_map_id, beat_index, label_value, source)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(song_map_id, beat_index) DO UPDATE SET
			label_value = excluded.label_value,
			source = excluded.source,
			updated_at = CURRENT_TIMESTAMP
	`, label.SongMapID, label.BeatIndex, label.LabelValue, label.Source)
	if err != nil {
		return fmt.Errorf("add curation label: %w", err)
	}
	id, _ := result.LastInsertId()
	label.ID = id
	return nil
}

// GetCurationLabels retrieves curation labels, optionally filtered by
// song map and/or label value.
func (d *DB) GetCurationLabels(ctx context.Context, songMapID *int64, labelValue *string) ([]CurationLabel, error) {
	query := `
		SELECT id, song_map_id, beat_index, label_value, source, created_at, updated_at
		FROM curation_labels WHERE 1=1
	`
	var args []any
	if songMapID != nil {
		query += " AND song_map_id = ?"
		args = append(args, *songMapID)
	}
	if labelValue != nil {
		query += " AND label_value = ?"
		args = append(args, *labelValue)
	}
	query += " ORDER BY song_map_id, beat_index"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query curation labels: %w", err)
	}
	defer rows.Close()

	var labels []CurationLabel
	for rows.Next() {
		var l CurationLabel
		if err := rows.Scan(&l.ID, &l.SongMapID, &l.BeatIndex, &l.LabelValue, &l.Source, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan curation label: %w", err)
		}
		labels = append(labels, l)
	}
	return labels, rows.Err()
}

// DeleteCurationLabel removes a curation label.
func (d *DB) DeleteCurationLabel(ctx context.Context, id int64) error {
	_, err := d.db.ExecContext(ctx, "DELETE FROM curation_labels WHERE id = ?", id)
	return err
}

// CreateCurationJob creates a new curation job.
func (d *DB) CreateCurationJob(ctx context.Context, jobID string, labelCounts map[string]int) error {
	countsJSON, _ := json.Marshal(labelCounts)
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO curation_jobs (job_id, status, label_counts_json, started_at)
		VALUES (?, 'pending', ?, CURRENT_TIMESTAMP)
	`, jobID, string(countsJSON))
	return err
}

// UpdateCurationJobProgress updates the progress of a curation job.
func (d *DB) UpdateCurationJobProgress(ctx context.Context, jobID, status string, progress float64) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE curation_jobs SET status = ?, progress = ? WHERE job_id = ?
	`, status, progress, jobID)
	return err
}

// CompleteCurationJob marks a curation job as completed.
func (d *DB) CompleteCurationJob(ctx context.Context, jobID string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE curation_jobs SET status = 'completed', progress = 1.0, completed_at = CURRENT_TIMESTAMP
		WHERE job_id = ?
	`, jobID)
	return err
}

// FailCurationJob marks a curation job as failed.
func (d *DB) FailCurationJob(ctx context.Context, jobID, errMsg string) error {
	_, err := d.db.ExecContext(ctx, `
		UPDATE curation_jobs SET status = 'failed', error_message = ?, completed_at = CURRENT_TIMESTAMP
		WHERE job_id = ?
	`, errMsg, jobID)
	return err
}

// GetCurationJob retrieves a curation job by id.
func (d *DB) GetCurationJob(ctx context.Context, jobID string) (*CurationJob, error) {
	var job CurationJob
	var labelCountsJSON sql.NullString
	var startedAt, completedAt sql.NullTime
	var errMsg sql.NullString

	err := d.db.QueryRowContext(ctx, `
		SELECT id, job_id, status, progress, error_message, label_counts_json, started_at, completed_at, created_at
		FROM curation_jobs WHERE job_id = ?
	`, jobID).Scan(&job.ID, &job.JobID, &job.Status, &job.Progress, &errMsg, &labelCountsJSON, &startedAt, &completedAt, &job.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if errMsg.Valid {
		job.ErrorMessage = &errMsg.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if labelCountsJSON.Valid {
		json.Unmarshal([]byte(labelCountsJSON.String), &job.LabelCounts)
	}
	return &job, nil
}

// AddPatternLibraryVersion records a new pattern library version.
func (d *DB) AddPatternLibraryVersion(ctx context.Context, v *PatternLibraryVersion) error {
	countsJSON, _ := json.Marshal(v.LabelCounts)
	result, err := d.db.ExecContext(ctx, `
		INSERT INTO pattern_library_versions (version, is_active, label_counts_json, curation_job_id)
		VALUES (?, ?, ?, ?)
	`, v.Version, v.IsActive, string(countsJSON), v.CurationJobID)
	if err != nil {
		return err
	}
	v.ID, _ = result.LastInsertId()
	return nil
}

// ActivatePatternLibraryVersion deactivates every other version and
// activates the given one.
func (d *DB) ActivatePatternLibraryVersion(ctx context.Context, version int) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE pattern_library_versions SET is_active = 0"); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, "UPDATE pattern_library_versions SET is_active = 1 WHERE version = ?", version)
	if err != nil {
		return err
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("pattern library version %d not found", version)
	}
	return tx.Commit()
}

// GetActivePatternLibraryVersion returns the currently active version.
func (d *DB) GetActivePatternLibraryVersion(ctx context.Context) (*PatternLibraryVersion, error) {
	var v PatternLibraryVersion
	var countsJSON sql.NullString
	err := d.db.QueryRowContext(ctx, `
		SELECT id, version, is_active, label_counts_json, curation_job_id, created_at
		FROM pattern_library_versions WHERE is_active = 1
	`).Scan(&v.ID, &v.Version, &v.IsActive, &countsJSON, &v.CurationJobID, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if countsJSON.Valid {
		json.Unmarshal([]byte(countsJSON.String), &v.LabelCounts)
	}
	return &v, nil
}
