package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// BlobType defines the kind of content-addressed blob stored.
type BlobType string

const (
	BlobTypeAtlas    BlobType = "atlas"
	BlobTypeManifest BlobType = "manifest"
)

// Blob is a content-addressed artifact attached to a frame set — the
// atlas image bytes a frame set's rects index into.
type Blob struct {
	Hash       string
	Type       BlobType
	FrameSetID int64
	Data       []byte
	Size       int
	CreatedAt  time.Time
}

// PutBlob stores a blob keyed by its sha256 hash, deduplicating
// identical content automatically via the INSERT OR IGNORE below.
func (d *DB) PutBlob(blobType BlobType, frameSetID int64, data []byte) (string, error) {
	hash := hashData(data)

	_, err := d.db.Exec(`
		INSERT OR IGNORE INTO blobs (hash, type, frame_set_id, data, size)
		VALUES (?, ?, ?, ?, ?)
	`, hash, string(blobType), frameSetID, data, len(data))
	if err != nil {
		return "", err
	}

	return hash, nil
}

// GetBlob retrieves a blob by hash.
func (d *DB) GetBlob(hash string) (*Blob, error) {
	b := &Blob{}
	var blobType string
	row := d.db.QueryRow(`
		SELECT hash, type, frame_set_id, data, size, created_at
		FROM blobs WHERE hash = ?
	`, hash)
	if err := row.Scan(&b.Hash, &blobType, &b.FrameSetID, &b.Data, &b.Size, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Type = BlobType(blobType)
	return b, nil
}

// GetBlobsForFrameSet retrieves every blob attached to a frame set,
// optionally filtered by type.
func (d *DB) GetBlobsForFrameSet(frameSetID int64, blobType BlobType) ([]*Blob, error) {
	query := "SELECT hash, type, frame_set_id, data, size, created_at FROM blobs WHERE frame_set_id = ?"
	args := []any{frameSetID}

	if blobType != "" {
		query += " AND type = ?"
		args = append(args, string(blobType))
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var blobs []*Blob
	for rows.Next() {
		b := &Blob{}
		var bt string
		if err := rows.Scan(&b.Hash, &bt, &b.FrameSetID, &b.Data, &b.Size, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.Type = BlobType(bt)
		blobs = append(blobs, b)
	}
	return blobs, rows.Err()
}

// DeleteBlobsForFrameSet deletes all blobs for a frame set.
func (d *DB) DeleteBlobsForFrameSet(frameSetID int64) error {
	_, err := d.db.Exec("DELETE FROM blobs WHERE frame_set_id = ?", frameSetID)
	return err
}

func hashData(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
