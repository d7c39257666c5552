// Package httpapi exposes the engine's control surface and telemetry
// over REST/JSON (spec §6's touch/input surface): deck/mixer control,
// engine/pattern mode, BPM, triggers, effects, the update tick,
// telemetry poll and stream, frame-set ingestion, and song
// analysis/planning. Requests are validated with
// github.com/go-playground/validator/v10 before reaching the engine.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/cartomix/choreo/internal/choreoexport"
	"github.com/cartomix/choreo/internal/choreoplan"
	"github.com/cartomix/choreo/internal/config"
	"github.com/cartomix/choreo/internal/engine"
	"github.com/cartomix/choreo/internal/frame"
	"github.com/cartomix/choreo/internal/kinetic"
	"github.com/cartomix/choreo/internal/mixer"
	"github.com/cartomix/choreo/internal/orchestrator"
	"github.com/cartomix/choreo/internal/pattern"
	"github.com/cartomix/choreo/internal/scanner"
	"github.com/cartomix/choreo/internal/similarity"
	"github.com/cartomix/choreo/internal/storage"
	"github.com/cartomix/choreo/internal/telemetry"
)

// Server provides HTTP REST endpoints over a live engine.
type Server struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *storage.DB
	eng     *engine.Engine
	orch    *orchestrator.Orchestrator
	scanner *scanner.Scanner
	planner *choreoplan.Planner
	hub     *telemetry.Hub

	validate *validator.Validate
	mux      *http.ServeMux
}

// NewServer creates a new HTTP API server over the given engine,
// orchestrator, and database. hub may be nil, in which case
// /api/telemetry/stream is not registered.
func NewServer(cfg *config.Config, logger *slog.Logger, db *storage.DB, eng *engine.Engine, orch *orchestrator.Orchestrator, hub *telemetry.Hub, rng *rand.Rand) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		eng:      eng,
		orch:     orch,
		scanner:  scanner.NewScanner(db, logger),
		planner:  choreoplan.NewPlanner(rng),
		hub:      hub,
		validate: validator.New(),
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("POST /api/decks/{id}/load", s.handleDeckLoad)
	s.mux.HandleFunc("POST /api/decks/{id}/mode", s.handleDeckMode)
	s.mux.HandleFunc("POST /api/decks/{id}/opacity", s.handleDeckOpacity)
	s.mux.HandleFunc("POST /api/crossfader", s.handleCrossfader)

	s.mux.HandleFunc("POST /api/engine/mode", s.handleEngineMode)
	s.mux.HandleFunc("POST /api/engine/pattern", s.handleEnginePattern)
	s.mux.HandleFunc("POST /api/engine/sequence-mode", s.handleSequenceMode)

	s.mux.HandleFunc("POST /api/bpm", s.handleSetBPM)
	s.mux.HandleFunc("POST /api/bpm/auto", s.handleAutoBPM)
	s.mux.HandleFunc("POST /api/bpm/tap", s.handleTapBeat)

	s.mux.HandleFunc("POST /api/triggers/{name}", s.handleTrigger)
	s.mux.HandleFunc("POST /api/effects/{name}", s.handleEffect)

	s.mux.HandleFunc("POST /api/update", s.handleUpdate)

	s.mux.HandleFunc("GET /api/telemetry", s.handleTelemetry)
	if s.hub != nil {
		s.mux.HandleFunc("GET /api/telemetry/stream", s.hub.ServeWS)
	}

	s.mux.HandleFunc("POST /api/reset", s.handleReset)

	s.mux.HandleFunc("POST /api/songs/{hash}/analyze", s.handleAnalyzeSong)
	s.mux.HandleFunc("POST /api/songs/{hash}/plan", s.handlePlanSong)

	s.mux.HandleFunc("POST /api/frame-sets", s.handleIngestFrameSets)
	s.mux.HandleFunc("GET /api/frame-sets/{id}", s.handleGetFrameSet)

	s.mux.HandleFunc("GET /api/frames/{id}/similar", s.handleFrameSimilar)

	s.mux.HandleFunc("POST /api/export", s.handleExport)

	s.mux.HandleFunc("POST /api/scan", s.handleEnqueueScan)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)

	s.mux.HandleFunc("POST /api/curation/labels", s.handleAddCurationLabel)
	s.mux.HandleFunc("GET /api/curation/labels", s.handleGetCurationLabels)
	s.mux.HandleFunc("DELETE /api/curation/labels/{id}", s.handleDeleteCurationLabel)

	s.mux.HandleFunc("POST /api/pattern-library/versions", s.handleCreatePatternLibraryVersion)
	s.mux.HandleFunc("POST /api/pattern-library/activate", s.handleActivatePatternLibraryVersion)
	s.mux.HandleFunc("GET /api/pattern-library/active", s.handleGetActivePatternLibraryVersion)
	s.mux.HandleFunc("GET /api/curation/jobs/{id}", s.handleGetCurationJob)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeAndValidate decodes the request body into dst and runs struct
// validation. An empty body decodes to dst's zero value so handlers
// with no required fields can be called with no body at all.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error())
		return false
	}
	return true
}

func pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

func pathInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return v, true
}

// --- Deck / mixer control ---

type deckLoadRequest struct {
	FrameIDs []string `json:"frame_ids" validate:"required,min=1,dive,required"`
}

func (s *Server) handleDeckLoad(w http.ResponseWriter, r *http.Request) {
	deckID, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req deckLoadRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	loadID, ok := s.eng.LoadDeck(deckID, req.FrameIDs)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid deck id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"load_id": loadID})
}

type deckModeRequest struct {
	Role string `json:"role" validate:"required,oneof=sequencer layer off"`
}

func (s *Server) handleDeckMode(w http.ResponseWriter, r *http.Request) {
	deckID, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req deckModeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if !s.eng.SetDeckMode(deckID, mixer.Role(req.Role)) {
		writeError(w, http.StatusBadRequest, "invalid deck id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deck mode set"})
}

type deckOpacityRequest struct {
	Opacity float64 `json:"opacity" validate:"min=0"`
}

func (s *Server) handleDeckOpacity(w http.ResponseWriter, r *http.Request) {
	deckID, ok := pathInt(w, r, "id")
	if !ok {
		return
	}
	var req deckOpacityRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if !s.eng.SetDeckOpacity(deckID, req.Opacity) {
		writeError(w, http.StatusBadRequest, "invalid deck id")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "deck opacity set"})
}

type crossfaderRequest struct {
	Position float64 `json:"position"`
}

func (s *Server) handleCrossfader(w http.ResponseWriter, r *http.Request) {
	var req crossfaderRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	s.eng.SetCrossfader(req.Position)
	writeJSON(w, http.StatusOK, map[string]string{"message": "crossfader set"})
}

// --- Engine / pattern / sequence mode ---

var enginePatternNames = map[pattern.Name]bool{
	pattern.PingPong: true, pattern.ABAB: true, pattern.AABB: true, pattern.ABAC: true,
	pattern.Stutter: true, pattern.SnareRoll: true, pattern.BuildDrop: true, pattern.Impact: true,
	pattern.Vogue: true, pattern.Flow: true, pattern.Chaos: true, pattern.Minimal: true,
	pattern.Groove: true, pattern.Emote: true, pattern.Footwork: true,
}

type engineModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=kinetic pattern"`
}

func (s *Server) handleEngineMode(w http.ResponseWriter, r *http.Request) {
	var req engineModeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	s.eng.SetMode(engine.Mode(req.Mode))
	writeJSON(w, http.StatusOK, map[string]string{"message": "engine mode set"})
}

type enginePatternRequest struct {
	Pattern string `json:"pattern" validate:"required"`
}

func (s *Server) handleEnginePattern(w http.ResponseWriter, r *http.Request) {
	var req enginePatternRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	name := pattern.Name(req.Pattern)
	if !enginePatternNames[name] {
		writeError(w, http.StatusBadRequest, "unknown pattern: "+req.Pattern)
		return
	}
	s.eng.SetPattern(name)
	writeJSON(w, http.StatusOK, map[string]string{"message": "pattern set"})
}

type sequenceModeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=groove emote impact footwork"`
}

func (s *Server) handleSequenceMode(w http.ResponseWriter, r *http.Request) {
	var req sequenceModeRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	s.eng.SetSequenceMode(kinetic.SequenceMode(req.Mode))
	writeJSON(w, http.StatusOK, map[string]string{"message": "sequence mode set"})
}

// --- BPM ---

type bpmRequest struct {
	BPM float64 `json:"bpm" validate:"required,gt=0"`
}

func (s *Server) handleSetBPM(w http.ResponseWriter, r *http.Request) {
	var req bpmRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	s.eng.SetBPM(req.BPM)
	writeJSON(w, http.StatusOK, map[string]string{"message": "bpm set"})
}

type bpmAutoRequest struct {
	Auto bool `json:"auto"`
}

func (s *Server) handleAutoBPM(w http.ResponseWriter, r *http.Request) {
	var req bpmAutoRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	s.eng.SetAutoBPM(req.Auto)
	writeJSON(w, http.StatusOK, map[string]string{"message": "auto bpm set"})
}

type tapBeatRequest struct {
	NowMs float64 `json:"now_ms"`
}

func (s *Server) handleTapBeat(w http.ResponseWriter, r *http.Request) {
	var req tapBeatRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"registered": s.eng.TapBeat(req.NowMs)})
}

// --- Triggers / effects ---

var validTriggers = map[string]bool{"stutter": true, "reverse": true, "glitch": true, "burst": true, "freeze": true}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !validTriggers[name] {
		writeError(w, http.StatusBadRequest, "unknown trigger: "+name)
		return
	}
	if !s.eng.SetTrigger(engine.Trigger(name)) {
		writeError(w, http.StatusBadRequest, "trigger rejected: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "trigger armed"})
}

type effectRequest struct {
	Value float64 `json:"value"`
}

func (s *Server) handleEffect(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	var req effectRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if !s.eng.SetEffect(name, req.Value) {
		writeError(w, http.StatusBadRequest, "unknown effect channel: "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "effect applied"})
}

// --- Update tick / telemetry / reset ---

type updateRequest struct {
	Samples []float64 `json:"samples"`
	NowMs   float64   `json:"now_ms"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Update(req.Samples, req.NowMs))
}

func (s *Server) handleTelemetry(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.GetTelemetry())
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.eng.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"message": "engine reset"})
}

// --- Songs: offline analysis and planning ---

type analyzeSongRequest struct {
	Path       string    `json:"path"`
	Samples    []float64 `json:"samples" validate:"required,min=1"`
	SampleRate float64   `json:"sample_rate" validate:"required,gt=0"`
}

// handleAnalyzeSong runs the offline analyzer over pre-decoded PCM
// samples and persists the resulting song map under the path hash.
// Audio decoding stays outside the engine's boundary: callers hand in
// samples, not file bytes, the same way frame-set ingestion takes
// already-unpacked manifests rather than decoding images itself.
func (s *Server) handleAnalyzeSong(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	var req analyzeSongRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	sm := choreoplan.AnalyzeSong(req.Samples, req.SampleRate)

	songID, err := s.db.UpsertSong(&storage.Song{
		ContentHash: hash,
		Path:        req.Path,
		DurationMs:  sm.DurationMs,
		SampleRate:  req.SampleRate,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist song: "+err.Error())
		return
	}
	if _, err := s.db.UpsertSongMap(songID, 1, sm, nil); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist song map: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, sm)
}

func (s *Server) handlePlanSong(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")

	song, err := s.db.GetSongByHash(hash)
	if err != nil {
		writeError(w, http.StatusNotFound, "song not found")
		return
	}
	sm, _, err := s.db.LatestSongMap(song.ID)
	if err != nil {
		writeError(w, http.StatusPreconditionFailed, "song has not been analyzed yet")
		return
	}
	pool := s.eng.ActivePool()
	if pool == nil {
		writeError(w, http.StatusPreconditionFailed, "no frame pool loaded to plan against")
		return
	}

	plan := s.planner.Plan(sm, pool)
	if _, err := s.db.UpsertSongMap(song.ID, 1, sm, plan); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to persist plan: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, plan)
}

// --- Frame-set ingestion ---

type ingestFrameSetsRequest struct {
	Roots       []string `json:"roots" validate:"required,min=1,dive,required"`
	ForceRescan bool     `json:"force_rescan"`
	Activate    bool     `json:"activate"`
}

type frameSetSummary struct {
	FrameSetID int64  `json:"frame_set_id"`
	Category   string `json:"category"`
	FrameCount int    `json:"frame_count"`
}

type ingestFrameSetsResponse struct {
	Processed int64             `json:"processed"`
	Total     int64             `json:"total"`
	Ingested  []frameSetSummary `json:"ingested"`
}

// handleIngestFrameSets drains the scanner.Scan progress channel,
// collecting every newly-discovered frame set and, if requested,
// loading the combined result straight onto the engine's active pool.
func (s *Server) handleIngestFrameSets(w http.ResponseWriter, r *http.Request) {
	var req ingestFrameSetsRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Minute)
	defer cancel()

	progress := make(chan scanner.ScanProgress)
	var scanErr error
	var ingestedIDs []int64

	go func() {
		scanErr = s.scanner.Scan(ctx, req.Roots, req.ForceRescan, progress)
	}()

	var lastProcessed, lastTotal int64
	for p := range progress {
		lastProcessed, lastTotal = p.Processed, p.Total
		if p.IsNew && p.FrameSetID != 0 {
			ingestedIDs = append(ingestedIDs, p.FrameSetID)
		}
	}

	if scanErr != nil && !errors.Is(scanErr, context.Canceled) {
		writeError(w, http.StatusInternalServerError, "scan failed: "+scanErr.Error())
		return
	}

	summaries := make([]frameSetSummary, 0, len(ingestedIDs))
	var toActivate []*frame.Frame
	activateCategory := frame.CategoryCharacter
	for i, id := range ingestedIDs {
		fs, err := s.db.GetFrameSet(id)
		if err != nil {
			s.logger.Warn("failed to reload ingested frame set", "id", id, "error", err)
			continue
		}
		summaries = append(summaries, frameSetSummary{FrameSetID: fs.ID, Category: fs.Category, FrameCount: fs.FrameCount})

		if req.Activate {
			if i == 0 {
				activateCategory = frame.Category(fs.Category)
			}
			frames, err := s.db.LoadFrames(id)
			if err != nil {
				s.logger.Warn("failed to load frames for activation", "id", id, "error", err)
				continue
			}
			toActivate = append(toActivate, frames...)
		}
	}

	if req.Activate && len(toActivate) > 0 {
		pool := frame.NewPool(activateCategory)
		pool.Load(toActivate)
		s.eng.LoadFramePool(pool)
	}

	writeJSON(w, http.StatusOK, ingestFrameSetsResponse{
		Processed: lastProcessed,
		Total:     lastTotal,
		Ingested:  summaries,
	})
}

type frameSetResponse struct {
	ID           int64          `json:"id"`
	Category     string         `json:"category"`
	ManifestHash string         `json:"manifest_hash"`
	SourcePath   string         `json:"source_path"`
	AtlasWidth   int            `json:"atlas_width"`
	AtlasHeight  int            `json:"atlas_height"`
	FrameCount   int            `json:"frame_count"`
	Frames       []*frame.Frame `json:"frames"`
}

func (s *Server) handleGetFrameSet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	fs, err := s.db.GetFrameSet(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "frame set not found")
		return
	}
	frames, err := s.db.LoadFrames(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load frames: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, frameSetResponse{
		ID:           fs.ID,
		Category:     fs.Category,
		ManifestHash: fs.ManifestHash,
		SourcePath:   fs.SourcePath,
		AtlasWidth:   fs.AtlasWidth,
		AtlasHeight:  fs.AtlasHeight,
		FrameCount:   fs.FrameCount,
		Frames:       frames,
	})
}

// --- Frame similarity search ---

// handleFrameSimilar ranks the active pool by transition affinity to
// the named frame, for an interactive curation UI asking "what goes
// well after this frame?" (distinct from the mandatory per-frame
// indexing internal/frame.Pool.ComputeAffinities runs at ingestion).
func (s *Server) handleFrameSimilar(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	pool := s.eng.ActivePool()
	if pool == nil {
		writeError(w, http.StatusPreconditionFailed, "no frame pool loaded")
		return
	}
	query, ok := pool.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "frame not found in active pool")
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	results := similarity.FindSimilar(query, pool.All(), limit)
	if err := similarity.ComputeAndCache(s.db, pool, limit); err != nil {
		s.logger.Warn("failed to cache frame similarity", "error", err)
	}
	writeJSON(w, http.StatusOK, results)
}

// --- Choreography export ---

type exportRequest struct {
	SongHashes []string `json:"song_hashes" validate:"required,min=1,dive,required"`
	OutputDir  string   `json:"output_dir"`
	Name       string   `json:"name"`
}

// handleExport bundles each requested song's persisted song map and
// latest plan into a JSON timeline, CSV beat-sheet, checksum manifest,
// and tar.gz bundle on disk.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	outputDir := req.OutputDir
	if outputDir == "" {
		outputDir = filepath.Join(s.cfg.DataDir, "exports")
	}

	songs := make([]choreoexport.SongExport, 0, len(req.SongHashes))
	for _, hash := range req.SongHashes {
		song, err := s.db.GetSongByHash(hash)
		if err != nil {
			writeError(w, http.StatusNotFound, "song not found: "+hash)
			return
		}
		sm, songMapID, err := s.db.LatestSongMap(song.ID)
		if err != nil {
			writeError(w, http.StatusPreconditionFailed, "song has not been analyzed yet: "+hash)
			return
		}
		plan, err := s.db.LoadBeatChoreography(songMapID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load plan: "+err.Error())
			return
		}
		songs = append(songs, choreoexport.SongExport{Path: song.Path, SongMap: sm, Plan: plan})
	}

	result, err := choreoexport.WriteBundle(outputDir, req.Name, songs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "export failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// --- Async scan jobs ---

type scanRequest struct {
	Roots    []string `json:"roots" validate:"required,min=1,dive,required"`
	Priority int      `json:"priority"`
}

// handleEnqueueScan records a scan job instead of walking the directory
// tree inline, so a large library scan doesn't hold the request open;
// a background worker (cmd/engine's scan worker) claims and runs it.
func (s *Server) handleEnqueueScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	jobID, err := s.scanner.EnqueueScan(req.Roots, req.Priority)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue scan: "+err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int64{"job_id": jobID})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	job, err := s.db.GetJob(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// --- Curation labels / pattern library versions ---

type curationLabelRequest struct {
	SongMapID  int64  `json:"song_map_id" validate:"required"`
	BeatIndex  int    `json:"beat_index"`
	LabelValue string `json:"label_value" validate:"required"`
	Source     string `json:"source"`
}

func (s *Server) handleAddCurationLabel(w http.ResponseWriter, r *http.Request) {
	var req curationLabelRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	label := &storage.CurationLabel{
		SongMapID:  req.SongMapID,
		BeatIndex:  req.BeatIndex,
		LabelValue: req.LabelValue,
		Source:     req.Source,
	}
	if err := s.db.AddCurationLabel(r.Context(), label); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to add curation label: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, label)
}

func (s *Server) handleGetCurationLabels(w http.ResponseWriter, r *http.Request) {
	var songMapID *int64
	if v := r.URL.Query().Get("song_map_id"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid song_map_id")
			return
		}
		songMapID = &n
	}
	var labelValue *string
	if v := r.URL.Query().Get("label_value"); v != "" {
		labelValue = &v
	}

	labels, err := s.db.GetCurationLabels(r.Context(), songMapID, labelValue)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list curation labels: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, labels)
}

func (s *Server) handleDeleteCurationLabel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathInt64(w, r, "id")
	if !ok {
		return
	}
	if err := s.db.DeleteCurationLabel(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete curation label: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "curation label deleted"})
}

// handleCreatePatternLibraryVersion snapshots the current curation
// labels as the next versioned generation, one past whatever is
// currently active. The snapshot is tracked as a curation job so a
// client can poll its progress even though, today, the rebuild itself
// runs to completion before the request returns.
func (s *Server) handleCreatePatternLibraryVersion(w http.ResponseWriter, r *http.Request) {
	labels, err := s.db.GetCurationLabels(r.Context(), nil, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list curation labels: "+err.Error())
		return
	}
	counts := make(map[string]int, len(labels))
	for _, l := range labels {
		counts[l.LabelValue]++
	}

	jobID := uuid.NewString()
	if err := s.db.CreateCurationJob(r.Context(), jobID, counts); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create curation job: "+err.Error())
		return
	}
	s.db.UpdateCurationJobProgress(r.Context(), jobID, "running", 0.5)

	active, err := s.db.GetActivePatternLibraryVersion(r.Context())
	if err != nil {
		s.db.FailCurationJob(r.Context(), jobID, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to read active version: "+err.Error())
		return
	}
	version := 1
	if active != nil {
		version = active.Version + 1
	}

	v := &storage.PatternLibraryVersion{Version: version, LabelCounts: counts, CurationJobID: jobID}
	if err := s.db.AddPatternLibraryVersion(r.Context(), v); err != nil {
		s.db.FailCurationJob(r.Context(), jobID, err.Error())
		writeError(w, http.StatusInternalServerError, "failed to record pattern library version: "+err.Error())
		return
	}
	if err := s.db.CompleteCurationJob(r.Context(), jobID); err != nil {
		s.logger.Error("mark curation job complete", "job_id", jobID, "error", err)
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleGetCurationJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.db.GetCurationJob(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read curation job: "+err.Error())
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "curation job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

type activatePatternLibraryRequest struct {
	Version int `json:"version" validate:"required,gt=0"`
}

func (s *Server) handleActivatePatternLibraryVersion(w http.ResponseWriter, r *http.Request) {
	var req activatePatternLibraryRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}
	if err := s.db.ActivatePatternLibraryVersion(r.Context(), req.Version); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "pattern library version activated"})
}

func (s *Server) handleGetActivePatternLibraryVersion(w http.ResponseWriter, r *http.Request) {
	v, err := s.db.GetActivePatternLibraryVersion(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read active version: "+err.Error())
		return
	}
	if v == nil {
		writeError(w, http.StatusNotFound, "no active pattern library version")
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
