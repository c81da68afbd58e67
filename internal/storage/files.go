package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	Component      = "mod_jupyter"
	AreaPackage    = "package"
	AreaAssignment = "assignment"
)

var ErrNoFile = errors.New("storage: no file in area")

// FileRef addresses one file the way the activity sees it.
type FileRef struct {
	ContextID int64
	Component string
	Area      string
	ItemID    int64
	Filename  string
}

type File struct {
	ID int64
	FileRef
	ContentHash string
	Size        int64
	CreatedAt   time.Time
}

// FileStore keeps file records in SQL and their bytes in a content-addressed
// blob store. Identical content is stored once.
type FileStore struct {
	db    *sql.DB
	blobs BlobStore
}

func NewFileStore(db *sql.DB, blobs BlobStore) *FileStore {
	return &FileStore{db: db, blobs: blobs}
}

// Store writes content under ref, replacing an existing file of the same name.
func (s *FileStore) Store(ctx context.Context, ref FileRef, content []byte) (File, error) {
	if ref.Filename == "" {
		return File{}, errors.New("storage: filename required")
	}
	if ref.Component == "" {
		ref.Component = Component
	}
	sum := blake2b.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	if _, err := s.blobs.Put(blobKey(hash), bytes.NewReader(content)); err != nil {
		return File{}, fmt.Errorf("storage: put blob: %w", err)
	}
	now := time.Now()
	f := File{FileRef: ref, ContentHash: hash, Size: int64(len(content)), CreatedAt: now}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO files (context_id, component, filearea, itemid, filename, contenthash, filesize, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (context_id, component, filearea, itemid, filename)
		DO UPDATE SET contenthash=EXCLUDED.contenthash, filesize=EXCLUDED.filesize
		RETURNING id`,
		ref.ContextID, ref.Component, ref.Area, ref.ItemID, ref.Filename, hash, f.Size, now.Unix()).
		Scan(&f.ID)
	if err != nil {
		return File{}, fmt.Errorf("storage: insert record: %w", err)
	}
	return f, nil
}

// List returns the files of an area ordered by id.
func (s *FileStore) List(ctx context.Context, contextID int64, component, area string, itemID int64) ([]File, error) {
	if component == "" {
		component = Component
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, context_id, component, filearea, itemid, filename, contenthash, filesize, created_at
		FROM files
		WHERE context_id=$1 AND component=$2 AND filearea=$3 AND itemid=$4
		ORDER BY id`, contextID, component, area, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []File
	for rows.Next() {
		var f File
		var created int64
		if err := rows.Scan(&f.ID, &f.ContextID, &f.Component, &f.Area, &f.ItemID, &f.Filename, &f.ContentHash, &f.Size, &created); err != nil {
			return nil, err
		}
		f.CreatedAt = time.Unix(created, 0)
		out = append(out, f)
	}
	return out, rows.Err()
}

// First returns the lowest-id file of an area, or ErrNoFile.
func (s *FileStore) First(ctx context.Context, contextID int64, component, area string, itemID int64) (File, error) {
	files, err := s.List(ctx, contextID, component, area, itemID)
	if err != nil {
		return File{}, err
	}
	if len(files) == 0 {
		return File{}, fmt.Errorf("%w: %d/%s", ErrNoFile, contextID, area)
	}
	return files[0], nil
}

func (s *FileStore) Content(_ context.Context, f File) ([]byte, error) {
	rc, err := s.blobs.Get(blobKey(f.ContentHash))
	if err != nil {
		return nil, fmt.Errorf("storage: open blob %s: %w", f.Filename, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// DeleteArea drops every file record of an area. Blobs are shared by hash and
// stay on disk.
func (s *FileStore) DeleteArea(ctx context.Context, contextID int64, component, area string) error {
	if component == "" {
		component = Component
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM files WHERE context_id=$1 AND component=$2 AND filearea=$3`,
		contextID, component, area)
	return err
}

func blobKey(hash string) string {
	return path.Join(hash[0:2], hash[2:4], hash)
}
