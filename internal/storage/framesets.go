package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cartomix/choreo/internal/frame"
)

// FrameSet mirrors the frame_sets table: one row per ingested
// frame-set package (spec §6's "zip-like frame-set package").
type FrameSet struct {
	ID           int64
	Category     string
	ManifestHash string
	SourcePath   string
	CellWidth    int
	CellHeight   int
	AtlasWidth   int
	AtlasHeight  int
	AtlasHash    string
	FrameCount   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// FrameRecord is the durable form of frame.Frame, scoped to a frame set.
type FrameRecord struct {
	ID                   int64
	FrameSetID           int64
	FrameKey             string
	Pose                 string
	Energy               string
	Direction            string
	Type                 string
	Role                 string
	RectX, RectY         int
	RectW, RectH         int
	Weight               float64
	DerivedFrom          string
	DerivedOpKind        string
	DerivedOpFactor      float64
	DerivedOpOffsetY     float64
	PreferredTransitions []string
}

// UpsertFrameSet inserts or updates a frame set by manifest hash.
func (d *DB) UpsertFrameSet(fs *FrameSet) (int64, error) {
	result, err := d.db.Exec(`
		INSERT INTO frame_sets (category, manifest_hash, source_path, cell_width, cell_height, atlas_width, atlas_height, atlas_hash, frame_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(manifest_hash) DO UPDATE SET
			source_path = excluded.source_path,
			cell_width = excluded.cell_width,
			cell_height = excluded.cell_height,
			atlas_width = excluded.atlas_width,
			atlas_height = excluded.atlas_height,
			atlas_hash = excluded.atlas_hash,
			frame_count = excluded.frame_count,
			updated_at = CURRENT_TIMESTAMP
	`, fs.Category, fs.ManifestHash, fs.SourcePath, fs.CellWidth, fs.CellHeight, fs.AtlasWidth, fs.AtlasHeight, fs.AtlasHash, fs.FrameCount)
	if err != nil {
		return 0, err
	}

	id, err := result.LastInsertId()
	if err != nil || id == 0 {
		row := d.db.QueryRow("SELECT id FROM frame_sets WHERE manifest_hash = ?", fs.ManifestHash)
		if scanErr := row.Scan(&id); scanErr != nil {
			return 0, scanErr
		}
	}
	return id, nil
}

// GetFrameSetByManifestHash looks up a frame set by its manifest hash,
// letting callers like the scanner check whether a package was already
// ingested before doing the work of deriving and indexing its frames.
// Returns (nil, nil) if no row matches.
func (d *DB) GetFrameSetByManifestHash(hash string) (*FrameSet, error) {
	fs := &FrameSet{}
	row := d.db.QueryRow(`
		SELECT id, category, manifest_hash, source_path, cell_width, cell_height, atlas_width, atlas_height, atlas_hash, frame_count, created_at, updated_at
		FROM frame_sets WHERE manifest_hash = ?
	`, hash)
	if err := row.Scan(&fs.ID, &fs.Category, &fs.ManifestHash, &fs.SourcePath, &fs.CellWidth, &fs.CellHeight, &fs.AtlasWidth, &fs.AtlasHeight, &fs.AtlasHash, &fs.FrameCount, &fs.CreatedAt, &fs.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return fs, nil
}

// GetFrameSet retrieves a frame set by id.
func (d *DB) GetFrameSet(id int64) (*FrameSet, error) {
	fs := &FrameSet{}
	row := d.db.QueryRow(`
		SELECT id, category, manifest_hash, source_path, cell_width, cell_height, atlas_width, atlas_height, atlas_hash, frame_count, created_at, updated_at
		FROM frame_sets WHERE id = ?
	`, id)
	if err := row.Scan(&fs.ID, &fs.Category, &fs.ManifestHash, &fs.SourcePath, &fs.CellWidth, &fs.CellHeight, &fs.AtlasWidth, &fs.AtlasHeight, &fs.AtlasHash, &fs.FrameCount, &fs.CreatedAt, &fs.UpdatedAt); err != nil {
		return nil, err
	}
	return fs, nil
}

// ReplaceFrames deletes and re-inserts every frame row for a frame set,
// mirroring the Frame Pool Indexer's wholesale-reload invariant
// (spec §4.C: indices are rebuilt, never incrementally patched).
func (d *DB) ReplaceFrames(frameSetID int64, frames []*frame.Frame) error {
	tx, err := d.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM frames WHERE frame_set_id = ?", frameSetID); err != nil {
		return err
	}

	for _, f := range frames {
		opKind, factor, offsetY := "", 0.0, 0.0
		if f.DerivedOp != nil {
			opKind = string(f.DerivedOp.Kind)
			factor = f.DerivedOp.Factor
			offsetY = f.DerivedOp.OffsetY
		}
		preferredJSON, err := json.Marshal(f.PreferredTransitions)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO frames (frame_set_id, frame_key, pose, energy, direction, type, role, weight, derived_from, derived_op_kind, derived_op_factor, derived_op_offset_y, preferred_transitions_json)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, frameSetID, f.ID, f.Pose, string(f.Energy), string(f.Direction), string(f.Type), string(f.Role), f.Weight, f.DerivedFrom, opKind, factor, offsetY, string(preferredJSON)); err != nil {
			return err
		}
	}

	if _, err := tx.Exec("UPDATE frame_sets SET frame_count = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", len(frames), frameSetID); err != nil {
		return err
	}

	return tx.Commit()
}

// LoadFrames reconstructs every frame.Frame belonging to a frame set,
// ready to hand to frame.Pool.Load.
func (d *DB) LoadFrames(frameSetID int64) ([]*frame.Frame, error) {
	rows, err := d.db.Query(`
		SELECT frame_key, pose, energy, direction, type, role, weight, derived_from, derived_op_kind, derived_op_factor, derived_op_offset_y, preferred_transitions_json
		FROM frames WHERE frame_set_id = ?
	`, frameSetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var frames []*frame.Frame
	for rows.Next() {
		var id, pose, energy, direction, typ, role, opKind, derivedFrom string
		var weight, factor, offsetY float64
		var preferredJSON sql.NullString
		if err := rows.Scan(&id, &pose, &energy, &direction, &typ, &role, &weight, &derivedFrom, &opKind, &factor, &offsetY, &preferredJSON); err != nil {
			return nil, err
		}

		f := &frame.Frame{
			ID:          id,
			Pose:        pose,
			Energy:      frame.Energy(energy),
			Direction:   frame.Direction(direction),
			Type:        frame.Type(typ),
			Role:        frame.Role(role),
			Weight:      weight,
			DerivedFrom: derivedFrom,
		}
		if opKind != "" {
			f.DerivedOp = &frame.Operation{Kind: frame.OperationKind(opKind), Factor: factor, OffsetY: offsetY}
		}
		if preferredJSON.Valid && preferredJSON.String != "" {
			json.Unmarshal([]byte(preferredJSON.String), &f.PreferredTransitions)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// ListFrameSets returns every ingested frame set, most recent first.
func (d *DB) ListFrameSets() ([]*FrameSet, error) {
	rows, err := d.db.Query(`
		SELECT id, category, manifest_hash, source_path, cell_width, cell_height, atlas_width, atlas_height, atlas_hash, frame_count, created_at, updated_at
		FROM frame_sets ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*FrameSet
	for rows.Next() {
		fs := &FrameSet{}
		if err := rows.Scan(&fs.ID, &fs.Category, &fs.ManifestHash, &fs.SourcePath, &fs.CellWidth, &fs.CellHeight, &fs.AtlasWidth, &fs.AtlasHeight, &fs.AtlasHash, &fs.FrameCount, &fs.CreatedAt, &fs.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}
