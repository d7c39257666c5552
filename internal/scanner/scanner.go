// Package scanner walks a directory tree for frame-set packages (spec
// §6): zip containers of meta.json, manifest.json, and atlas.webp. New
// packages are hashed, validated, ingested through the Frame Pool
// Indexer (internal/frame), and persisted; already-known packages are
// skipped unless a rescan is forced. Progress is reported with
// percent/ETA/byte fields suitable for a polling or streaming client.
package scanner

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cartomix/choreo/internal/frame"
	"github.com/cartomix/choreo/internal/storage"
)

// frameSetExt is the only extension a frame-set package is recognized
// under. Spec §6 calls the container "a ZIP-like container"; there is
// only the one format to support.
const frameSetExt = ".zip"

// Scanner recursively scans directories for frame-set packages.
type Scanner struct {
	db     *storage.DB
	logger *slog.Logger
}

// NewScanner creates a new frame-set scanner.
func NewScanner(db *storage.DB, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{db: db, logger: logger}
}

// ScanResult holds the outcome of ingesting a single package.
type ScanResult struct {
	Path         string
	ManifestHash string
	FrameSetID   int64
	Category     frame.Category
	FrameCount   int
	IsNew        bool
	Error        error
}

// ScanProgress reports scanning progress with enhanced details: overall
// percent, ETA, and per-run new/cached counts alongside the current file.
type ScanProgress struct {
	Path         string
	Status       string // queued, processing, done, skipped, error
	Error        string
	Processed    int64
	Total        int64
	FrameSetID   int64
	IsNew        bool
	ManifestHash string

	CurrentFile       string  // filename being processed, without path
	Percent           float32 // overall progress 0-100
	ElapsedMs         int64
	ETAMs             int64
	NewFrameSetsFound int64
	SkippedCached     int64
	BytesProcessed    int64
	BytesTotal        int64
}

// Scan recursively scans the given roots for frame-set packages.
// Progress is reported via the progress channel; the channel is closed
// when the scan completes or ctx is cancelled.
func (s *Scanner) Scan(ctx context.Context, roots []string, forceRescan bool, progress chan<- ScanProgress) error {
	defer close(progress)

	startTime := time.Now()

	var total int64
	var bytesTotal int64
	for _, root := range roots {
		count, bytes, err := s.countPackages(root)
		if err != nil {
			s.logger.Warn("failed to count packages in root", "root", root, "error", err)
			continue
		}
		total += count
		bytesTotal += bytes
	}

	var processed int64
	var newFrameSetsFound int64
	var skippedCached int64
	var bytesProcessed int64

	for _, root := range roots {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if d.IsDir() || !isFrameSetPackage(path) {
				return nil
			}

			info, _ := d.Info()
			var fileSize int64
			if info != nil {
				fileSize = info.Size()
			}

			result := s.processPackage(path, forceRescan)
			processed++
			bytesProcessed += fileSize

			status := "done"
			errMsg := ""
			switch {
			case result.Error != nil:
				status = "error"
				errMsg = result.Error.Error()
				s.logger.Warn("rejected frame-set package", "path", path, "error", result.Error)
			case !result.IsNew:
				status = "skipped"
				skippedCached++
			default:
				newFrameSetsFound++
			}

			elapsedMs := time.Since(startTime).Milliseconds()
			var etaMs int64
			var percent float32
			if total > 0 {
				percent = float32(processed) / float32(total) * 100
				if processed > 0 {
					avgTimePerFile := float64(elapsedMs) / float64(processed)
					etaMs = int64(avgTimePerFile * float64(total-processed))
				}
			}

			select {
			case progress <- ScanProgress{
				Path:              path,
				Status:            status,
				Error:             errMsg,
				Processed:         processed,
				Total:             total,
				FrameSetID:        result.FrameSetID,
				IsNew:             result.IsNew,
				ManifestHash:      result.ManifestHash,
				CurrentFile:       filepath.Base(path),
				Percent:           percent,
				ElapsedMs:         elapsedMs,
				ETAMs:             etaMs,
				NewFrameSetsFound: newFrameSetsFound,
				SkippedCached:     skippedCached,
				BytesProcessed:    bytesProcessed,
				BytesTotal:        bytesTotal,
			}:
			case <-ctx.Done():
				return ctx.Err()
			}

			return nil
		})

		if err != nil && err != context.Canceled {
			s.logger.Error("scan error", "root", root, "error", err)
		}
	}

	return nil
}

func isFrameSetPackage(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == frameSetExt
}

func (s *Scanner) countPackages(root string) (int64, int64, error) {
	var count int64
	var totalBytes int64
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isFrameSetPackage(path) {
			return nil
		}
		count++
		if info, err := d.Info(); err == nil {
			totalBytes += info.Size()
		}
		return nil
	})
	return count, totalBytes, err
}

// metaFile mirrors meta.json (spec §6).
type metaFile struct {
	Version    int    `json:"version"`
	Name       string `json:"name"`
	Category   string `json:"category"`
	Created    string `json:"created"`
	Generator  string `json:"generator"`
	FrameCount int    `json:"frameCount"`
}

// manifestFile mirrors manifest.json (spec §6).
type manifestFile struct {
	AtlasWidth  int             `json:"atlasWidth"`
	AtlasHeight int             `json:"atlasHeight"`
	CellSize    int             `json:"cellSize"`
	Frames      []manifestFrame `json:"frames"`
}

type manifestFrame struct {
	Pose      string `json:"pose"`
	Energy    string `json:"energy"`
	Type      string `json:"type"`
	Direction string `json:"direction"`
	Role      string `json:"role"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	W         int    `json:"w"`
	H         int    `json:"h"`
}

// processPackage opens, validates, and (if new) ingests a single
// frame-set package. Validation failures are MalformedPackage (spec
// §7): reported back in ScanResult.Error, nothing persisted.
func (s *Scanner) processPackage(path string, forceRescan bool) ScanResult {
	result := ScanResult{Path: path}

	meta, manifestBytes, manifest, atlasBytes, err := readPackage(path)
	if err != nil {
		result.Error = err
		return result
	}
	if err := validateManifest(manifest, atlasBytes); err != nil {
		result.Error = err
		return result
	}

	hash := ComputeManifestHash(manifestBytes)
	result.ManifestHash = hash

	if !forceRescan {
		existing, err := s.db.GetFrameSetByManifestHash(hash)
		if err != nil {
			result.Error = err
			return result
		}
		if existing != nil {
			result.FrameSetID = existing.ID
			result.Category = frame.Category(existing.Category)
			result.FrameCount = existing.FrameCount
			result.IsNew = false
			return result
		}
	}

	category := frame.Category(strings.ToLower(meta.Category))
	pool := frame.NewPool(category)
	pool.Load(buildFrames(manifest))
	pool.Derive()
	pool.ComputeWeights()
	pool.ComputeAffinities()

	fsID, err := s.db.UpsertFrameSet(&storage.FrameSet{
		Category:     string(category),
		ManifestHash: hash,
		SourcePath:   path,
		CellWidth:    manifest.CellSize,
		CellHeight:   manifest.CellSize,
		AtlasWidth:   manifest.AtlasWidth,
		AtlasHeight:  manifest.AtlasHeight,
		FrameCount:   pool.Len(),
	})
	if err != nil {
		result.Error = fmt.Errorf("upsert frame set: %w", err)
		return result
	}

	atlasHash, err := s.db.PutBlob(storage.BlobTypeAtlas, fsID, atlasBytes)
	if err != nil {
		result.Error = fmt.Errorf("store atlas blob: %w", err)
		return result
	}
	if _, err := s.db.PutBlob(storage.BlobTypeManifest, fsID, manifestBytes); err != nil {
		result.Error = fmt.Errorf("store manifest blob: %w", err)
		return result
	}
	if _, err := s.db.UpsertFrameSet(&storage.FrameSet{
		Category:     string(category),
		ManifestHash: hash,
		SourcePath:   path,
		CellWidth:    manifest.CellSize,
		CellHeight:   manifest.CellSize,
		AtlasWidth:   manifest.AtlasWidth,
		AtlasHeight:  manifest.AtlasHeight,
		AtlasHash:    atlasHash,
		FrameCount:   pool.Len(),
	}); err != nil {
		result.Error = fmt.Errorf("update frame set atlas hash: %w", err)
		return result
	}

	if err := s.db.ReplaceFrames(fsID, pool.All()); err != nil {
		result.Error = fmt.Errorf("replace frames: %w", err)
		return result
	}

	result.FrameSetID = fsID
	result.Category = category
	result.FrameCount = pool.Len()
	result.IsNew = true
	return result
}

// readPackage opens a zip frame-set package and extracts its three
// named members. A missing meta.json or manifest.json is a
// MalformedPackage error (spec §7).
func readPackage(path string) (*metaFile, []byte, *manifestFile, []byte, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("open frame-set package: %w", err)
	}
	defer r.Close()

	var metaBytes, manifestBytes, atlasBytes []byte
	for _, f := range r.File {
		switch f.Name {
		case "meta.json":
			metaBytes, err = readZipFile(f)
		case "manifest.json":
			manifestBytes, err = readZipFile(f)
		case "atlas.webp":
			atlasBytes, err = readZipFile(f)
		}
		if err != nil {
			return nil, nil, nil, nil, fmt.Errorf("read %s: %w", f.Name, err)
		}
	}

	if metaBytes == nil {
		return nil, nil, nil, nil, fmt.Errorf("malformed package: missing meta.json")
	}
	if manifestBytes == nil {
		return nil, nil, nil, nil, fmt.Errorf("malformed package: missing manifest.json")
	}
	if atlasBytes == nil {
		return nil, nil, nil, nil, fmt.Errorf("malformed package: missing atlas.webp")
	}

	var meta metaFile
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("malformed package: meta.json: %w", err)
	}
	var manifest manifestFile
	if err := json.Unmarshal(manifestBytes, &manifest); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("malformed package: manifest.json: %w", err)
	}

	return &meta, manifestBytes, &manifest, atlasBytes, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// validateManifest checks the structural invariants the core can rely
// on for the rest of ingestion (spec §7 MalformedPackage): every frame
// rect must sit inside the declared atlas bounds. We cannot decode
// atlas.webp's actual pixel dimensions without a WebP codec dependency,
// so "atlas size != declared" is checked as internal consistency
// between the declared bounds and the rects addressing them rather
// than against the decoded image.
func validateManifest(manifest *manifestFile, atlasBytes []byte) error {
	if manifest.AtlasWidth <= 0 || manifest.AtlasHeight <= 0 {
		return fmt.Errorf("malformed package: non-positive atlas dimensions %dx%d", manifest.AtlasWidth, manifest.AtlasHeight)
	}
	if len(atlasBytes) == 0 {
		return fmt.Errorf("malformed package: empty atlas.webp")
	}
	if len(manifest.Frames) == 0 {
		return fmt.Errorf("malformed package: manifest declares no frames")
	}
	for i, f := range manifest.Frames {
		if f.W <= 0 || f.H <= 0 {
			return fmt.Errorf("malformed package: frame %d has non-positive size", i)
		}
		if f.X < 0 || f.Y < 0 || f.X+f.W > manifest.AtlasWidth || f.Y+f.H > manifest.AtlasHeight {
			return fmt.Errorf("malformed package: frame %d rect (%d,%d,%d,%d) out of atlas bounds %dx%d",
				i, f.X, f.Y, f.W, f.H, manifest.AtlasWidth, manifest.AtlasHeight)
		}
	}
	return nil
}

// buildFrames converts manifest rows into frame.Frame values ready for
// frame.Pool.Load. Frame ids are derived from pose + index since
// manifest.json carries no id field of its own.
func buildFrames(manifest *manifestFile) []*frame.Frame {
	frames := make([]*frame.Frame, 0, len(manifest.Frames))
	for i, mf := range manifest.Frames {
		role := frame.Role(strings.ToLower(mf.Role))
		switch role {
		case frame.RoleBase, frame.RoleAlt, frame.RoleFlourish, frame.RoleSmooth:
		default:
			role = frame.RoleBase
		}
		frames = append(frames, &frame.Frame{
			ID:        frameID(mf.Pose, i),
			Image:     fmt.Sprintf("atlas#%d", i),
			Energy:    frame.Energy(strings.ToLower(mf.Energy)),
			Direction: frame.Direction(strings.ToLower(mf.Direction)),
			Type:      frame.NormalizeType(mf.Type),
			Role:      role,
			Pose:      mf.Pose,
			Weight:    1,
		})
	}
	return frames
}

func frameID(pose string, index int) string {
	slug := strings.ReplaceAll(strings.ToLower(pose), " ", "_")
	if slug == "" {
		slug = "frame"
	}
	return fmt.Sprintf("%s_%03d", slug, index)
}

// ComputeManifestHash hashes manifest.json's raw bytes. A frame-set
// manifest is compact JSON text, so the full content is hashed rather
// than sampled.
func ComputeManifestHash(manifestBytes []byte) string {
	h := sha256.Sum256(manifestBytes)
	return hex.EncodeToString(h[:])
}

// HashCache provides a simple in-memory cache for manifest hashes,
// keyed by path and modification time.
type HashCache struct {
	cache map[string]cacheEntry
}

type cacheEntry struct {
	hash    string
	modTime time.Time
}

// NewHashCache creates a new hash cache.
func NewHashCache() *HashCache {
	return &HashCache{cache: make(map[string]cacheEntry)}
}

// Get returns a cached hash if the file hasn't been modified.
func (c *HashCache) Get(path string, modTime time.Time) (string, bool) {
	entry, ok := c.cache[path]
	if !ok {
		return "", false
	}
	if !entry.modTime.Equal(modTime) {
		return "", false
	}
	return entry.hash, true
}

// Set caches a hash for a file.
func (c *HashCache) Set(path string, hash string, modTime time.Time) {
	c.cache[path] = cacheEntry{hash: hash, modTime: modTime}
}

// EnqueueScan records a background scan job, letting the HTTP layer
// track a long-running directory scan through the jobs table instead
// of holding the request open.
func (s *Scanner) EnqueueScan(roots []string, priority int) (int64, error) {
	return s.db.CreateJob(storage.JobTypeScan, priority, map[string]any{
		"roots": roots,
	})
}

// RunWorker polls the job queue for pending scan jobs enqueued through
// EnqueueScan and runs them one at a time until ctx is cancelled.
func (s *Scanner) RunWorker(ctx context.Context, pollInterval time.Duration) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runNextQueuedScan(ctx)
		}
	}
}

func (s *Scanner) runNextQueuedScan(ctx context.Context) {
	job, err := s.db.ClaimJob(storage.JobTypeScan)
	if err != nil {
		s.logger.Error("claim scan job", "error", err)
		return
	}
	if job == nil {
		return
	}

	roots := stringsFromAny(job.Payload["roots"])
	progress := make(chan ScanProgress)
	var scanErr error
	go func() {
		scanErr = s.Scan(ctx, roots, false, progress)
	}()

	var processed, total, newFound int64
	for p := range progress {
		processed, total, newFound = p.Processed, p.Total, p.NewFrameSetsFound
	}

	if scanErr != nil {
		s.logger.Error("scan job failed", "job_id", job.ID, "error", scanErr)
		if err := s.db.FailJob(job.ID, scanErr.Error()); err != nil {
			s.logger.Error("mark scan job failed", "job_id", job.ID, "error", err)
		}
		return
	}

	if err := s.db.CompleteJob(job.ID, map[string]any{
		"processed": processed, "total": total, "new_frame_sets": newFound,
	}); err != nil {
		s.logger.Error("mark scan job complete", "job_id", job.ID, "error", err)
	}
}

func stringsFromAny(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if str, ok := it.(string); ok {
			out = append(out, str)
		}
	}
	return out
}
