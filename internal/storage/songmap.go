package storage

import (
	"encoding/json"
	"time"

	"github.com/cartomix/choreo/internal/choreoplan"
)

// Song mirrors the songs table: one row per distinct audio source the
// Choreography Planner has analyzed.
type Song struct {
	ID          int64
	ContentHash string
	Path        string
	Title       string
	Artist      string
	DurationMs  float64
	SampleRate  float64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UpsertSong inserts or updates a song row by content hash.
func (d *DB) UpsertSong(s *Song) (int64, error) {
	result, err := d.db.Exec(`
		INSERT INTO songs (content_hash, path, title, artist, duration_ms, sample_rate, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(content_hash) DO UPDATE SET
			path = excluded.path,
			title = excluded.title,
			artist = excluded.artist,
			duration_ms = excluded.duration_ms,
			sample_rate = excluded.sample_rate,
			updated_at = CURRENT_TIMESTAMP
	`, s.ContentHash, s.Path, s.Title, s.Artist, s.DurationMs, s.SampleRate)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil || id == 0 {
		row := d.db.QueryRow("SELECT id FROM songs WHERE content_hash = ?", s.ContentHash)
		if scanErr := row.Scan(&id); scanErr != nil {
			return 0, scanErr
		}
	}
	return id, nil
}

// GetSongByHash retrieves a song by content hash.
func (d *DB) GetSongByHash(hash string) (*Song, error) {
	s := &Song{}
	row := d.db.QueryRow(`
		SELECT id, content_hash, path, title, artist, duration_ms, sample_rate, created_at, updated_at
		FROM songs WHERE content_hash = ?
	`, hash)
	if err := row.Scan(&s.ID, &s.ContentHash, &s.Path, &s.Title, &s.Artist, &s.DurationMs, &s.SampleRate, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return s, nil
}

// UpsertSongMap persists a SongMap (the offline analysis result) under
// the caller-supplied version number for the song, along with every
// per-beat choreography entry from a plan, if one is supplied. A row
// that already exists for the same song and version is overwritten in
// place (its per-beat entries are replaced when a plan is supplied);
// rows stored under other version numbers are left untouched.
func (d *DB) UpsertSongMap(songID int64, version int, sm *choreoplan.SongMap, plan []choreoplan.BeatChoreography) (int64, error) {
	beatsJSON, _ := json.Marshal(sm.Beats)
	downbeatsJSON, _ := json.Marshal(sm.Downbeats)
	sectionsJSON, _ := json.Marshal(sm.Sections)
	patternsJSON, _ := json.Marshal(sm.RepeatedPatterns)
	energyJSON, _ := json.Marshal(sm.EnergyProfile)
	dropsJSON, _ := json.Marshal(sm.Drops)
	buildupsJSON, _ := json.Marshal(sm.Buildups)

	tx, err := d.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO song_maps (
			song_id, version, status, bpm, time_sig_num, time_sig_den, duration_ms,
			beats_json, downbeats_json, sections_json, repeated_patterns_json, energy_profile_json, drops_json, buildups_json, updated_at
		) VALUES (?, ?, 'complete', ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(song_id, version) DO UPDATE SET
			status = 'complete',
			bpm = excluded.bpm,
			time_sig_num = excluded.time_sig_num,
			time_sig_den = excluded.time_sig_den,
			duration_ms = excluded.duration_ms,
			beats_json = excluded.beats_json,
			downbeats_json = excluded.downbeats_json,
			sections_json = excluded.sections_json,
			repeated_patterns_json = excluded.repeated_patterns_json,
			energy_profile_json = excluded.energy_profile_json,
			drops_json = excluded.drops_json,
			buildups_json = excluded.buildups_json,
			updated_at = CURRENT_TIMESTAMP
	`, songID, version, sm.BPM, sm.TimeSignature[0], sm.TimeSignature[1], sm.DurationMs,
		string(beatsJSON), string(downbeatsJSON), string(sectionsJSON), string(patternsJSON), string(energyJSON), string(dropsJSON), string(buildupsJSON))
	if err != nil {
		return 0, err
	}

	songMapID, err := result.LastInsertId()
	if err != nil || songMapID == 0 {
		row := tx.QueryRow("SELECT id FROM song_maps WHERE song_id = ? AND version = ?", songID, version)
		if scanErr := row.Scan(&songMapID); scanErr != nil {
			return 0, scanErr
		}
	}

	if plan != nil {
		if _, err := tx.Exec("DELETE FROM choreography_beats WHERE song_map_id = ?", songMapID); err != nil {
			return 0, err
		}
		for _, b := range plan {
			isSignature := 0
			if b.IsSignatureMove {
				isSignature = 1
			}
			if _, err := tx.Exec(`
				INSERT INTO choreography_beats (
					song_map_id, beat_index, timestamp_ms, frame_id, transition_mode, transition_speed,
					target_rotation, target_squash, target_bounce, fx_mode, rgb_split, flash, phase,
					section_type, is_signature_move, pattern_id, expected_energy
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			`, songMapID, b.BeatIndex, b.TimestampMs, b.FrameID, b.TransitionMode, b.TransitionSpeed,
				b.TargetRotation, b.TargetSquash, b.TargetBounce, b.FxMode, b.RGBSplit, b.Flash, b.Phase,
				string(b.SectionType), isSignature, b.PatternID, b.ExpectedEnergy); err != nil {
				return 0, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return songMapID, nil
}

// LatestSongMap reconstructs the most recent SongMap for a song.
func (d *DB) LatestSongMap(songID int64) (*choreoplan.SongMap, int64, error) {
	row := d.db.QueryRow(`
		SELECT id, bpm, time_sig_num, time_sig_den, duration_ms,
		       beats_json, downbeats_json, sections_json, repeated_patterns_json, energy_profile_json, drops_json, buildups_json
		FROM song_maps WHERE song_id = ? ORDER BY version DESC LIMIT 1
	`, songID)

	var id int64
	var beatsJSON, downbeatsJSON, sectionsJSON, patternsJSON, energyJSON, dropsJSON, buildupsJSON string
	sm := &choreoplan.SongMap{}
	if err := row.Scan(&id, &sm.BPM, &sm.TimeSignature[0], &sm.TimeSignature[1], &sm.DurationMs,
		&beatsJSON, &downbeatsJSON, &sectionsJSON, &patternsJSON, &energyJSON, &dropsJSON, &buildupsJSON); err != nil {
		return nil, 0, err
	}

	json.Unmarshal([]byte(beatsJSON), &sm.Beats)
	json.Unmarshal([]byte(downbeatsJSON), &sm.Downbeats)
	json.Unmarshal([]byte(sectionsJSON), &sm.Sections)
	json.Unmarshal([]byte(patternsJSON), &sm.RepeatedPatterns)
	json.Unmarshal([]byte(energyJSON), &sm.EnergyProfile)
	json.Unmarshal([]byte(dropsJSON), &sm.Drops)
	json.Unmarshal([]byte(buildupsJSON), &sm.Buildups)

	return sm, id, nil
}

// LoadBeatChoreography reconstructs a song map's full per-beat plan.
func (d *DB) LoadBeatChoreography(songMapID int64) ([]choreoplan.BeatChoreography, error) {
	rows, err := d.db.Query(`
		SELECT beat_index, timestamp_ms, frame_id, transition_mode, transition_speed,
		       target_rotation, target_squash, target_bounce, fx_mode, rgb_split, flash, phase,
		       section_type, is_signature_move, pattern_id, expected_energy
		FROM choreography_beats WHERE song_map_id = ? ORDER BY beat_index ASC
	`, songMapID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []choreoplan.BeatChoreography
	for rows.Next() {
		var b choreoplan.BeatChoreography
		var sectionType string
		var isSignature int
		if err := rows.Scan(&b.BeatIndex, &b.TimestampMs, &b.FrameID, &b.TransitionMode, &b.TransitionSpeed,
			&b.TargetRotation, &b.TargetSquash, &b.TargetBounce, &b.FxMode, &b.RGBSplit, &b.Flash, &b.Phase,
			&sectionType, &isSignature, &b.PatternID, &b.ExpectedEnergy); err != nil {
			return nil, err
		}
		b.SectionType = choreoplan.SectionType(sectionType)
		b.IsSignatureMove = isSignature != 0
		out = append(out, b)
	}
	return out, rows.Err()
}
