package storage

import "time"

// FrameSimilarity caches a pairwise transition-affinity score between
// two frames, keyed by their string frame ids (not the autoincrement
// row id).
type FrameSimilarity struct {
	FrameAID            string
	FrameBID            string
	Score               float64
	DirectionOpposition bool
	TypeMatch           bool
	EnergyStep          int
	Explanation         string
	ComputedAt          time.Time
}

// PutFrameSimilarity upserts a computed affinity score for an ordered
// frame pair.
func (d *DB) PutFrameSimilarity(s *FrameSimilarity) error {
	_, err := d.db.Exec(`
		INSERT INTO frame_similarity (
			frame_a_id, frame_b_id, score, direction_opposition, type_match, energy_step, explanation, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(frame_a_id, frame_b_id) DO UPDATE SET
			score = excluded.score,
			direction_opposition = excluded.direction_opposition,
			type_match = excluded.type_match,
			energy_step = excluded.energy_step,
			explanation = excluded.explanation,
			computed_at = CURRENT_TIMESTAMP
	`, s.FrameAID, s.FrameBID, s.Score, boolToInt(s.DirectionOpposition), boolToInt(s.TypeMatch), s.EnergyStep, s.Explanation)
	return err
}

// GetFrameSimilarity retrieves a cached similarity score for an
// ordered frame pair, if one has been computed.
func (d *DB) GetFrameSimilarity(frameAID, frameBID string) (*FrameSimilarity, error) {
	s := &FrameSimilarity{}
	var directionOpp, typeMatch int
	row := d.db.QueryRow(`
		SELECT frame_a_id, frame_b_id, score, direction_opposition, type_match, energy_step, explanation, computed_at
		FROM frame_similarity WHERE frame_a_id = ? AND frame_b_id = ?
	`, frameAID, frameBID)
	if err := row.Scan(&s.FrameAID, &s.FrameBID, &s.Score, &directionOpp, &typeMatch, &s.EnergyStep, &s.Explanation, &s.ComputedAt); err != nil {
		return nil, err
	}
	s.DirectionOpposition = directionOpp != 0
	s.TypeMatch = typeMatch != 0
	return s, nil
}

// TopSimilarFrames returns the highest-scoring cached candidates for a
// given source frame, descending by score.
func (d *DB) TopSimilarFrames(frameAID string, limit int) ([]FrameSimilarity, error) {
	rows, err := d.db.Query(`
		SELECT frame_a_id, frame_b_id, score, direction_opposition, type_match, energy_step, explanation, computed_at
		FROM frame_similarity WHERE frame_a_id = ?
		ORDER BY score DESC LIMIT ?
	`, frameAID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FrameSimilarity
	for rows.Next() {
		var s FrameSimilarity
		var directionOpp, typeMatch int
		if err := rows.Scan(&s.FrameAID, &s.FrameBID, &s.Score, &directionOpp, &typeMatch, &s.EnergyStep, &s.Explanation, &s.ComputedAt); err != nil {
			return nil, err
		}
		s.DirectionOpposition = directionOpp != 0
		s.TypeMatch = typeMatch != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// ClearFrameSimilarity drops every cached score involving a frame, used
// when a frame set is reloaded and its frame ids are no longer valid.
func (d *DB) ClearFrameSimilarity(frameID string) error {
	_, err := d.db.Exec("DELETE FROM frame_similarity WHERE frame_a_id = ? OR frame_b_id = ?", frameID, frameID)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
