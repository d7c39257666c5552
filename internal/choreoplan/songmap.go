// Package choreoplan implements the offline Choreography Planner
// (spec §4.H): whole-song analysis into a song map, then a per-beat
// choreography plan over a loaded frame pool.
package choreoplan

// SectionType names a song-structure segment. Only the subset produced
// by section detection (intro/verse/chorus/breakdown/drop/outro) is
// ever assigned by AnalyzeSong; prechorus/bridge exist in the enum for
// manually-curated song maps (spec §3's full section type list).
type SectionType string

const (
	SectionIntro     SectionType = "intro"
	SectionVerse     SectionType = "verse"
	SectionPrechorus SectionType = "prechorus"
	SectionChorus    SectionType = "chorus"
	SectionBridge    SectionType = "bridge"
	SectionBreakdown SectionType = "breakdown"
	SectionDrop      SectionType = "drop"
	SectionOutro     SectionType = "outro"
)

// Section is one typed, timed segment of the song.
type Section struct {
	Type      SectionType `json:"type"`
	StartBeat int         `json:"start_beat"`
	EndBeat   int         `json:"end_beat"`
	Energy    float64     `json:"energy"`
	IsRepeat  bool        `json:"is_repeat"`
}

// RepeatedPattern groups beat windows whose energy fingerprints match
// closely enough to be considered the same dance pattern recurring.
type RepeatedPattern struct {
	ID            string  `json:"id"`
	Occurrences   []int   `json:"occurrences"` // start beat index of each occurrence
	DurationBeats int     `json:"duration_beats"`
	Energy        float64 `json:"energy"`
}

// Drop is a detected high-energy onset event.
type Drop struct {
	TimeMs    float64 `json:"time_ms"`
	Intensity float64 `json:"intensity"`
}

// Buildup precedes a Drop: the last time energy fell below the
// buildup threshold before the drop.
type Buildup struct {
	StartTimeMs float64 `json:"start_time_ms"`
	DropTimeMs  float64 `json:"drop_time_ms"`
}

// EnergySample is one 50ms-resolution energy-profile entry.
type EnergySample struct {
	TimeMs    float64 `json:"time_ms"`
	Bass      float64 `json:"bass"`
	Mid       float64 `json:"mid"`
	High      float64 `json:"high"`
	Composite float64 `json:"composite"`
}

// SongMap is the complete offline analysis of a song (spec §3).
type SongMap struct {
	DurationMs       float64           `json:"duration_ms"`
	BPM              float64           `json:"bpm"`
	TimeSignature    [2]int            `json:"time_signature"` // {4,4} assumed
	Beats            []float64         `json:"beats"`          // timestamps, ms
	Downbeats        []int             `json:"downbeats"`      // beat indices that are downbeats (every 4th)
	Sections         []Section         `json:"sections"`
	RepeatedPatterns []RepeatedPattern `json:"repeated_patterns"`
	EnergyProfile    []EnergySample    `json:"energy_profile"`
	Drops            []Drop            `json:"drops"`
	Buildups         []Buildup         `json:"buildups"`
}

// BeatChoreography is one beat's worth of planned output (spec §3).
type BeatChoreography struct {
	BeatIndex       int         `json:"beat_index"`
	TimestampMs     float64     `json:"timestamp_ms"`
	FrameID         string      `json:"frame_id"`
	TransitionMode  string      `json:"transition_mode"`
	TransitionSpeed float64     `json:"transition_speed"`
	TargetRotation  float64     `json:"target_rotation"`
	TargetSquash    float64     `json:"target_squash"`
	TargetBounce    float64     `json:"target_bounce"`
	FxMode          string      `json:"fx_mode"`
	RGBSplit        float64     `json:"rgb_split"`
	Flash           float64     `json:"flash"`
	Phase           string      `json:"phase"`
	SectionType     SectionType `json:"section_type"`
	IsSignatureMove bool        `json:"is_signature_move"`
	PatternID       string      `json:"pattern_id"`
	ExpectedEnergy  float64     `json:"expected_energy"`
}
