package main

import (
	"flag"
	"log"
	"log/slog"

	"github.com/cartomix/choreo/internal/config"
	"github.com/cartomix/choreo/internal/storage"
)

// backup creates or restores a tar.gz snapshot of the engine's SQLite
// database (frame sets, song maps, curation labels).
func main() {
	restore := flag.String("restore", "", "path to a backup archive to restore instead of creating a new one")
	outDir := flag.String("out", "", "directory to write the backup into (defaults to <data-dir>/backups)")
	flag.Parse()

	cfg := config.Parse()
	logger := slog.Default()

	if *restore != "" {
		meta, err := storage.RestoreBackup(*restore, cfg.DataDir)
		if err != nil {
			log.Fatalf("restore failed: %v", err)
		}
		log.Printf("restored backup: %d frame sets, %d songs, schema v%d", meta.FrameSetCount, meta.SongCount, meta.SchemaVersion)
		return
	}

	db, err := storage.Open(cfg.DataDir, logger)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	dir := *outDir
	if dir == "" {
		dir = cfg.DataDir + "/backups"
	}

	path, meta, err := db.CreateBackup(dir)
	if err != nil {
		log.Fatalf("backup failed: %v", err)
	}
	log.Printf("backup written to %s (%d frame sets, %d songs, %.2f MB)", path, meta.FrameSetCount, meta.SongCount, float64(meta.DatabaseSize)/(1024*1024))
}
