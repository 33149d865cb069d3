package app

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS workspaces (
	id TEXT PRIMARY KEY,
	topic TEXT NOT NULL,
	phase TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	message_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_workspaces_created ON workspaces(created_at);
`

// Index is a SQLite metadata cache over the file store, used for fast listing.
// The workspace directories remain the source of truth; the index can always be
// rebuilt from disk.
type Index struct {
	mu sync.Mutex
	db *sql.DB
}

func OpenIndex(root string) (*Index, error) {
	db, err := sql.Open("sqlite", filepath.Join(root, "index.db"))
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(context.Background(), indexSchema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Index{db: db}, nil
}

func (ix *Index) Close() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.db.Close()
}

func (ix *Index) Upsert(ws *Workspace) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, err := ix.db.Exec(`
INSERT INTO workspaces (id, topic, phase, created_at, updated_at, message_count)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	topic = excluded.topic,
	phase = excluded.phase,
	updated_at = excluded.updated_at,
	message_count = excluded.message_count`,
		ws.ID, ws.Topic, string(ws.Phase),
		ws.CreatedAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		len(ws.History))
	return err
}

func (ix *Index) Remove(id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, err := ix.db.Exec(`DELETE FROM workspaces WHERE id = ?`, id)
	return err
}

func (ix *Index) List() ([]WorkspaceInfo, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	rows, err := ix.db.Query(`
SELECT id, topic, phase, created_at, message_count
FROM workspaces ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []WorkspaceInfo
	for rows.Next() {
		var info WorkspaceInfo
		var phase, created string
		if err := rows.Scan(&info.ID, &info.Topic, &phase, &created, &info.MessageCount); err != nil {
			return nil, err
		}
		if p, ok := ParsePhase(phase); ok {
			info.Phase = p
		}
		if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
			info.CreatedAt = t
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Rebuild repopulates the index from the file store.
func (ix *Index) Rebuild(store *Store) error {
	infos, err := store.List()
	if err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	tx, err := ix.db.Begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM workspaces`); err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, info := range infos {
		if _, err := tx.Exec(`
INSERT INTO workspaces (id, topic, phase, created_at, updated_at, message_count)
VALUES (?, ?, ?, ?, ?, ?)`,
			info.ID, info.Topic, string(info.Phase),
			info.CreatedAt.UTC().Format(time.RFC3339Nano),
			time.Now().UTC().Format(time.RFC3339Nano),
			info.MessageCount); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
