package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cartomix/choreo/internal/choreoplan"
	"github.com/cartomix/choreo/internal/engine"
	"github.com/cartomix/choreo/internal/frame"
	"github.com/cartomix/choreo/internal/orchestrator"
	"github.com/cartomix/choreo/internal/similarity"
	"github.com/cartomix/choreo/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := storage.Open(t.TempDir(), slog.Default())
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	eng := engine.New(slog.Default(), 44100, rand.New(rand.NewSource(1)))
	orch := orchestrator.New(slog.Default(), eng, 44100, rand.New(rand.NewSource(1)))
	return NewServer(nil, slog.Default(), db, eng, orch, nil, rand.New(rand.NewSource(1)))
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), "GET", "/api/health", nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("expected status ok, got %s", resp["status"])
	}
}

func TestCORSMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := corsMiddleware(inner)

	req := httptest.NewRequest("OPTIONS", "/api/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200 for OPTIONS, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("expected CORS header to allow all origins")
	}
}

func TestDeckLoadAndMode(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, "POST", "/api/decks/1/load", deckLoadRequest{FrameIDs: []string{"f1", "f2"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("load: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var loadResp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &loadResp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loadResp["load_id"] == "" {
		t.Error("expected non-empty load_id")
	}

	rec = doJSON(t, h, "POST", "/api/decks/1/mode", deckModeRequest{Role: "layer"})
	if rec.Code != http.StatusOK {
		t.Fatalf("mode: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, "POST", "/api/decks/1/mode", deckModeRequest{Role: "bogus"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for invalid role, got %d", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/api/decks/9/mode", deckModeRequest{Role: "layer"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for out-of-range deck id, got %d", rec.Code)
	}
}

func TestTriggerEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	for _, name := range []string{"stutter", "reverse", "glitch", "burst", "freeze"} {
		rec := doJSON(t, h, "POST", "/api/triggers/"+name, nil)
		if rec.Code != http.StatusOK {
			t.Errorf("trigger %s: expected 200, got %d: %s", name, rec.Code, rec.Body.String())
		}
	}

	rec := doJSON(t, h, "POST", "/api/triggers/nonsense", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown trigger, got %d", rec.Code)
	}
}

func TestEnginePatternEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, "POST", "/api/engine/pattern", enginePatternRequest{Pattern: "vogue"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, "POST", "/api/engine/pattern", enginePatternRequest{Pattern: "not_a_pattern"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown pattern, got %d", rec.Code)
	}
}

func TestBPMEndpoints(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, "POST", "/api/bpm", bpmRequest{BPM: 128})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/api/bpm", bpmRequest{BPM: 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for zero bpm, got %d", rec.Code)
	}

	rec = doJSON(t, h, "POST", "/api/bpm/tap", tapBeatRequest{NowMs: 1000})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestTelemetryEndpoint(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), "GET", "/api/telemetry", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var tel engine.Telemetry
	if err := json.Unmarshal(rec.Body.Bytes(), &tel); err != nil {
		t.Fatalf("decode telemetry: %v", err)
	}
	if tel.EngineMode != engine.ModeKinetic {
		t.Errorf("expected default engine mode kinetic, got %s", tel.EngineMode)
	}
}

func TestUpdateEndpoint(t *testing.T) {
	s := newTestServer(t)
	samples := make([]float64, 2048)
	rec := doJSON(t, s.Handler(), "POST", "/api/update", updateRequest{Samples: samples, NowMs: 16})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var decision engine.RenderDecision
	if err := json.Unmarshal(rec.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decode render decision: %v", err)
	}
}

func TestAnalyzeAndPlanSong(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	pool := frame.NewPool(frame.CategoryCharacter)
	pool.Load([]*frame.Frame{
		{ID: "a", Energy: frame.EnergyLow, Direction: frame.DirectionCenter, Type: frame.TypeBody, Role: frame.RoleBase, Weight: 1},
		{ID: "b", Energy: frame.EnergyHigh, Direction: frame.DirectionCenter, Type: frame.TypeBody, Role: frame.RoleBase, Weight: 1},
	})
	s.eng.LoadFramePool(pool)

	samples := make([]float64, 44100*2)
	rec := doJSON(t, h, "POST", "/api/songs/deadbeef/analyze", analyzeSongRequest{
		Samples:    samples,
		SampleRate: 44100,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("analyze: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, "POST", "/api/songs/deadbeef/plan", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("plan: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestPlanSongWithoutAnalysisFails(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), "POST", "/api/songs/nonexistent/plan", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown song, got %d", rec.Code)
	}
}

func TestIngestFrameSetsRequestJSON(t *testing.T) {
	req := ingestFrameSetsRequest{
		Roots:       []string{"/frames/characters"},
		ForceRescan: true,
		Activate:    true,
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded ingestFrameSetsRequest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(decoded.Roots) != 1 || decoded.Roots[0] != "/frames/characters" {
		t.Errorf("roots mismatch: %v", decoded.Roots)
	}
	if !decoded.ForceRescan || !decoded.Activate {
		t.Error("expected force_rescan and activate to round-trip true")
	}
}

func TestGetFrameSetNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), "GET", "/api/frame-sets/12345", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestFrameSimilarEndpoint(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	pool := frame.NewPool(frame.CategoryCharacter)
	pool.Load([]*frame.Frame{
		{ID: "a", Energy: frame.EnergyLow, Direction: frame.DirectionCenter, Type: frame.TypeBody, Role: frame.RoleBase, Weight: 1},
		{ID: "b", Energy: frame.EnergyHigh, Direction: frame.DirectionLeft, Type: frame.TypeBody, Role: frame.RoleBase, Weight: 1},
	})
	s.eng.LoadFramePool(pool)

	rec := doJSON(t, h, "GET", "/api/frames/a/similar", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var results []similarity.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(results) != 1 || results[0].FrameID != "b" {
		t.Fatalf("expected one result for frame b, got %+v", results)
	}
}

func TestFrameSimilarWithoutPoolFails(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), "GET", "/api/frames/a/similar", nil)
	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("expected 412 with no pool loaded, got %d", rec.Code)
	}
}

func TestEnqueueScanAndPollJob(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	rec := doJSON(t, h, "POST", "/api/scan", scanRequest{Roots: []string{"/frames"}, Priority: 1})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var enqueued map[string]int64
	if err := json.Unmarshal(rec.Body.Bytes(), &enqueued); err != nil {
		t.Fatalf("decode: %v", err)
	}
	jobID := enqueued["job_id"]
	if jobID == 0 {
		t.Fatal("expected non-zero job_id")
	}

	rec = doJSON(t, h, "GET", fmt.Sprintf("/api/jobs/%d", jobID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var job storage.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode job: %v", err)
	}
	if job.Type != storage.JobTypeScan {
		t.Errorf("expected job type scan, got %s", job.Type)
	}
}

func TestGetJobNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), "GET", "/api/jobs/99999", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestCurationLabelsAndPatternLibrary(t *testing.T) {
	s := newTestServer(t)
	h := s.Handler()

	songID, err := s.db.UpsertSong(&storage.Song{ContentHash: "deadbeef", DurationMs: 60000, SampleRate: 44100})
	if err != nil {
		t.Fatalf("UpsertSong: %v", err)
	}
	songMapID, err := s.db.UpsertSongMap(songID, 1, &choreoplan.SongMap{}, nil)
	if err != nil {
		t.Fatalf("UpsertSongMap: %v", err)
	}

	rec := doJSON(t, h, "POST", "/api/curation/labels", curationLabelRequest{
		SongMapID:  songMapID,
		BeatIndex:  4,
		LabelValue: "signature_move",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("add label: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var label storage.CurationLabel
	if err := json.Unmarshal(rec.Body.Bytes(), &label); err != nil {
		t.Fatalf("decode label: %v", err)
	}

	rec = doJSON(t, h, "GET", fmt.Sprintf("/api/curation/labels?song_map_id=%d", songMapID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list labels: expected 200, got %d", rec.Code)
	}
	var labels []storage.CurationLabel
	if err := json.Unmarshal(rec.Body.Bytes(), &labels); err != nil {
		t.Fatalf("decode labels: %v", err)
	}
	if len(labels) != 1 {
		t.Fatalf("expected 1 label, got %d", len(labels))
	}

	rec = doJSON(t, h, "POST", "/api/pattern-library/versions", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create version: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var version storage.PatternLibraryVersion
	if err := json.Unmarshal(rec.Body.Bytes(), &version); err != nil {
		t.Fatalf("decode version: %v", err)
	}
	if version.Version != 1 || version.CurationJobID == "" {
		t.Fatalf("expected version 1 with a curation job id, got %+v", version)
	}

	rec = doJSON(t, h, "GET", fmt.Sprintf("/api/curation/jobs/%s", version.CurationJobID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get curation job: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var job storage.CurationJob
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode curation job: %v", err)
	}
	if job.Status != "completed" {
		t.Errorf("expected curation job status completed, got %s", job.Status)
	}

	rec = doJSON(t, h, "POST", "/api/pattern-library/activate", activatePatternLibraryRequest{Version: version.Version})
	if rec.Code != http.StatusOK {
		t.Fatalf("activate: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, "GET", "/api/pattern-library/active", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get active: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var active storage.PatternLibraryVersion
	if err := json.Unmarshal(rec.Body.Bytes(), &active); err != nil {
		t.Fatalf("decode active: %v", err)
	}
	if active.Version != version.Version {
		t.Errorf("expected active version %d, got %d", version.Version, active.Version)
	}

	rec = doJSON(t, h, "DELETE", fmt.Sprintf("/api/curation/labels/%d", label.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete label: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetActivePatternLibraryVersionWithoutAnyFails(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Handler(), "GET", "/api/pattern-library/active", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 with no active version, got %d", rec.Code)
	}
}
