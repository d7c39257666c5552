// Package choreoexport bundles a song's offline choreography (spec
// §4.H's output) into shareable artifacts: a JSON timeline, a CSV
// beat-sheet, and a checksummed tar.gz of both.
package choreoexport

import (
	"archive/tar"
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cartomix/choreo/internal/choreoplan"
)

// SongExport bundles one song's path with its song map and plan.
type SongExport struct {
	Path    string
	SongMap *choreoplan.SongMap
	Plan    []choreoplan.BeatChoreography
}

// Result contains paths to generated export artifacts.
type Result struct {
	TimelineJSONPath string
	BeatSheetCSVPath string
	BundlePath       string
	ChecksumsPath    string
}

// WriteBundle writes a JSON timeline, CSV beat-sheet, checksum
// manifest, and tar.gz bundle of all three for the given songs.
func WriteBundle(outputDir, name string, songs []SongExport) (*Result, error) {
	if len(songs) == 0 {
		return nil, fmt.Errorf("no songs to export")
	}
	if name == "" {
		name = "choreography"
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}

	result := &Result{
		TimelineJSONPath: filepath.Join(outputDir, name+"-timeline.json"),
		BeatSheetCSVPath: filepath.Join(outputDir, name+"-beatsheet.csv"),
		BundlePath:       filepath.Join(outputDir, name+"-bundle.tar.gz"),
		ChecksumsPath:    filepath.Join(outputDir, name+"-checksums.txt"),
	}

	if err := writeTimelineJSON(result.TimelineJSONPath, songs); err != nil {
		return nil, err
	}
	if err := writeBeatSheetCSV(result.BeatSheetCSVPath, songs); err != nil {
		return nil, err
	}
	if err := writeChecksums(result.ChecksumsPath, result.TimelineJSONPath, result.BeatSheetCSVPath); err != nil {
		return nil, err
	}
	if err := writeBundle(result.BundlePath, result.TimelineJSONPath, result.BeatSheetCSVPath, result.ChecksumsPath); err != nil {
		return nil, err
	}

	return result, nil
}

func writeTimelineJSON(path string, songs []SongExport) error {
	data, err := json.MarshalIndent(songs, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func writeBeatSheetCSV(path string, songs []SongExport) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"song_path", "beat_index", "timestamp_ms", "frame_id", "transition_mode",
		"section_type", "is_signature_move", "pattern_id", "expected_energy",
	}); err != nil {
		return err
	}

	for _, s := range songs {
		for _, beat := range s.Plan {
			if err := writer.Write([]string{
				s.Path,
				strconv.Itoa(beat.BeatIndex),
				fmt.Sprintf("%.3f", beat.TimestampMs),
				beat.FrameID,
				beat.TransitionMode,
				string(beat.SectionType),
				strconv.FormatBool(beat.IsSignatureMove),
				beat.PatternID,
				fmt.Sprintf("%.4f", beat.ExpectedEnergy),
			}); err != nil {
				return err
			}
		}
	}

	writer.Flush()
	return writer.Error()
}

// writeChecksums writes a SHA256 manifest for the exported artifacts.
func writeChecksums(path string, files ...string) error {
	var b strings.Builder
	for _, fp := range files {
		sum, err := FileSHA256(fp)
		if err != nil {
			return err
		}
		b.WriteString(fmt.Sprintf("%s  %s\n", sum, filepath.Base(fp)))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// writeBundle creates a tar.gz containing the primary artifacts for
// quick sharing.
func writeBundle(bundlePath string, files ...string) error {
	f, err := os.Create(bundlePath)
	if err != nil {
		return err
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	defer gw.Close()

	tw := tar.NewWriter(gw)
	defer tw.Close()

	for _, fp := range files {
		info, err := os.Stat(fp)
		if err != nil {
			return err
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.Base(fp)

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		data, err := os.ReadFile(fp)
		if err != nil {
			return err
		}
		if _, err := tw.Write(data); err != nil {
			return err
		}
	}

	return nil
}
