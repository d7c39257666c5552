// Package similarity provides explainable frame-to-frame transition
// affinity search: given a frame, rank the rest of a pool by how well
// they'd work as the next cut, with a human-readable rationale for
// each match. It scores the three factors a still frame actually
// carries — direction, type, and energy step — and is meant for
// interactive search (a curation UI asking "what goes well after this
// frame?"), not the mandatory per-frame indexing
// internal/frame.Pool.ComputeAffinities already does at ingestion time.
package similarity

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/cartomix/choreo/internal/frame"
	"github.com/cartomix/choreo/internal/storage"
)

// Weights for the combined similarity score.
const (
	WeightDirection = 0.5 // opposite-direction bonus (a cut reads best across a direction flip)
	WeightType      = 0.3 // same body-focus type
	WeightEnergy    = 0.2 // adjacent energy step
)

// energyStep orders energies so a step up/down/same is well-defined.
var energyStep = map[frame.Energy]int{frame.EnergyLow: 0, frame.EnergyMid: 1, frame.EnergyHigh: 2}

// Result represents a similarity match with its component breakdown.
type Result struct {
	FrameID             string  `json:"frame_id"`
	Pose                string  `json:"pose"`
	Score               float64 `json:"score"`
	Explanation         string  `json:"explanation"`
	DirectionMatch      float64 `json:"direction_match"` // 0-100
	TypeMatch           float64 `json:"type_match"`      // 0-100
	EnergyMatch         float64 `json:"energy_match"`    // 0-100
	DirectionOpposition bool    `json:"direction_opposition"`
	TypeEqual           bool    `json:"type_equal"`
	EnergyStepDelta     int     `json:"energy_step_delta"`
}

// FindSimilar ranks candidates by transition affinity to query.
func FindSimilar(query *frame.Frame, candidates []*frame.Frame, limit int) []Result {
	if query == nil || len(candidates) == 0 {
		return nil
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if c.ID == query.ID {
			continue
		}

		directionScore, opposite := computeDirectionSimilarity(query.Direction, c.Direction)
		typeScore, typeEqual := computeTypeSimilarity(query.Type, c.Type)
		energyScore, step := computeEnergySimilarity(query.Energy, c.Energy)

		score := WeightDirection*directionScore + WeightType*typeScore + WeightEnergy*energyScore

		results = append(results, Result{
			FrameID:             c.ID,
			Pose:                c.Pose,
			Score:               score,
			Explanation:         buildExplanation(opposite, typeEqual, step),
			DirectionMatch:      directionScore * 100,
			TypeMatch:           typeScore * 100,
			EnergyMatch:         energyScore * 100,
			DirectionOpposition: opposite,
			TypeEqual:           typeEqual,
			EnergyStepDelta:     step,
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].FrameID < results[j].FrameID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// computeDirectionSimilarity scores 1.0 for an opposite-direction pair
// (the transition a cut reads best across), 0.5 when either side faces
// center, 0 for same-direction.
func computeDirectionSimilarity(a, b frame.Direction) (float64, bool) {
	if a == frame.DirectionCenter || b == frame.DirectionCenter {
		return 0.5, false
	}
	if a != b {
		return 1.0, true
	}
	return 0.0, false
}

// computeTypeSimilarity scores 1.0 for a matching body-focus type, 0
// otherwise.
func computeTypeSimilarity(a, b frame.Type) (float64, bool) {
	if a == b {
		return 1.0, true
	}
	return 0.0, false
}

// computeEnergySimilarity scores by energy step: an adjacent step is
// the best transition (1.0), same energy is fine (0.6), a two-step
// jump is the weakest (0.0).
func computeEnergySimilarity(a, b frame.Energy) (float64, int) {
	step := energyStep[b] - energyStep[a]
	switch math.Abs(float64(step)) {
	case 0:
		return 0.6, step
	case 1:
		return 1.0, step
	default:
		return 0.0, step
	}
}

func buildExplanation(opposite, typeEqual bool, step int) string {
	var parts []string

	if opposite {
		parts = append(parts, "opposite direction")
	}
	if typeEqual {
		parts = append(parts, "same focus type")
	}
	switch step {
	case 0:
		parts = append(parts, "same energy")
	case 1:
		parts = append(parts, "energy step up")
	case -1:
		parts = append(parts, "energy step down")
	default:
		parts = append(parts, fmt.Sprintf("energy jump (%+d)", step))
	}

	return strings.Join(parts, "; ")
}

// ComputeAndCache computes FindSimilar for every frame in the pool
// against the rest of the pool and upserts the top `limit` matches per
// frame into storage's pairwise cache.
func ComputeAndCache(db *storage.DB, pool *frame.Pool, limit int) error {
	all := pool.All()
	for _, f := range all {
		for _, r := range FindSimilar(f, all, limit) {
			err := db.PutFrameSimilarity(&storage.FrameSimilarity{
				FrameAID:            f.ID,
				FrameBID:            r.FrameID,
				Score:               r.Score,
				DirectionOpposition: r.DirectionOpposition,
				TypeMatch:           r.TypeEqual,
				EnergyStep:          r.EnergyStepDelta,
				Explanation:         r.Explanation,
			})
			if err != nil {
				return fmt.Errorf("cache similarity %s->%s: %w", f.ID, r.FrameID, err)
			}
		}
	}
	return nil
}
