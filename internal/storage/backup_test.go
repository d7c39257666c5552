package storage

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateAndRestoreBackup(t *testing.T) {
	dataDir := t.TempDir()
	backupDir := t.TempDir()
	db := newTestDBAt(t, dataDir)

	if _, err := db.UpsertFrameSet(&FrameSet{Category: "character", ManifestHash: "backup-hash", FrameCount: 1}); err != nil {
		t.Fatalf("UpsertFrameSet: %v", err)
	}

	backupPath, meta, err := db.CreateBackup(backupDir)
	if err != nil {
		t.Fatalf("CreateBackup: %v", err)
	}
	if meta.FrameSetCount != 1 {
		t.Errorf("FrameSetCount = %d, want 1", meta.FrameSetCount)
	}
	if _, err := os.Stat(backupPath); err != nil {
		t.Fatalf("backup file missing: %v", err)
	}

	db.Close()

	restoreDir := t.TempDir()
	restoredMeta, err := RestoreBackup(backupPath, restoreDir)
	if err != nil {
		t.Fatalf("RestoreBackup: %v", err)
	}
	if restoredMeta.FrameSetCount != 1 {
		t.Errorf("restored FrameSetCount = %d, want 1", restoredMeta.FrameSetCount)
	}

	if _, err := os.Stat(filepath.Join(restoreDir, "choreo.db")); err != nil {
		t.Fatalf("restored db missing: %v", err)
	}
}

func TestDatabaseInfoCountsRows(t *testing.T) {
	db := newTestDB(t)

	if _, err := db.UpsertSong(&Song{ContentHash: "info-1", Path: "/a.wav"}); err != nil {
		t.Fatalf("UpsertSong: %v", err)
	}
	if _, err := db.UpsertSong(&Song{ContentHash: "info-2", Path: "/b.wav"}); err != nil {
		t.Fatalf("UpsertSong: %v", err)
	}

	info, err := db.DatabaseInfo()
	if err != nil {
		t.Fatalf("DatabaseInfo: %v", err)
	}
	if info.SongCount != 2 {
		t.Errorf("SongCount = %d, want 2", info.SongCount)
	}
	if info.SchemaVersion != 1 {
		t.Errorf("SchemaVersion = %d, want 1", info.SchemaVersion)
	}
}

func TestIntegrityCheckPasses(t *testing.T) {
	db := newTestDB(t)
	if err := db.IntegrityCheck(); err != nil {
		t.Errorf("IntegrityCheck: %v", err)
	}
}

func TestVacuumDatabase(t *testing.T) {
	db := newTestDB(t)
	if err := db.VacuumDatabase(); err != nil {
		t.Errorf("VacuumDatabase: %v", err)
	}
}
