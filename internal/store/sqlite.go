package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, no CGO
)

// SQLiteStore implements MetadataStore and GraphStore on a single SQLite
// database. Chunks, entities, relations, and runtime state share one file
// so index metadata stays transactionally consistent.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var (
	_ MetadataStore = (*SQLiteStore)(nil)
	_ GraphStore    = (*SQLiteStore)(nil)
)

// NewSQLiteStore opens (or creates) the metadata database at path. An empty
// path creates an in-memory store for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id         TEXT PRIMARY KEY,
		repo       TEXT NOT NULL,
		path       TEXT NOT NULL DEFAULT '',
		content    TEXT NOT NULL,
		metadata   TEXT NOT NULL DEFAULT '{}',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_repo ON chunks(repo);

	CREATE TABLE IF NOT EXISTS entities (
		id         TEXT PRIMARY KEY,
		repo       TEXT NOT NULL,
		name       TEXT NOT NULL,
		kind       TEXT NOT NULL DEFAULT '',
		properties TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_entities_name ON entities(name COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_entities_repo ON entities(repo);

	CREATE TABLE IF NOT EXISTS relations (
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		repo      TEXT NOT NULL,
		kind      TEXT NOT NULL DEFAULT '',
		weight    REAL NOT NULL DEFAULT 0,
		PRIMARY KEY (source_id, target_id, kind)
	);
	CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_id);
	CREATE INDEX IF NOT EXISTS idx_relations_target ON relations(target_id);

	CREATE TABLE IF NOT EXISTS state (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveChunks upserts chunks in one transaction.
func (s *SQLiteStore) SaveChunks(ctx context.Context, chunks []*Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks (id, repo, path, content, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			repo = excluded.repo,
			path = excluded.path,
			content = excluded.content,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare chunk statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().Unix()
	for _, chunk := range chunks {
		metadata, err := json.Marshal(chunk.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata for %s: %w", chunk.ID, err)
		}

		createdAt := chunk.CreatedAt.Unix()
		if chunk.CreatedAt.IsZero() {
			createdAt = now
		}

		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.Repo, chunk.Path,
			chunk.Content, string(metadata), createdAt, now); err != nil {
			return fmt.Errorf("save chunk %s: %w", chunk.ID, err)
		}
	}

	return tx.Commit()
}

// GetChunk retrieves a single chunk by ID. Returns sql.ErrNoRows when absent.
func (s *SQLiteStore) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, repo, path, content, metadata, created_at, updated_at
		FROM chunks WHERE id = ?`, id)

	return scanChunk(row)
}

// GetChunks retrieves chunks by ID in one query. Missing IDs are skipped.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []string) ([]*Chunk, error) {
	if len(ids) == 0 {
		return []*Chunk{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, repo, path, content, metadata, created_at, updated_at
		FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chunks []*Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// ListDocuments returns all chunks as documents, optionally scoped to repos.
// The pattern index rebuilds its in-memory state from this at startup.
func (s *SQLiteStore) ListDocuments(ctx context.Context, repos []string) ([]*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}

	query := `SELECT id, repo, content FROM chunks`
	var args []any
	if len(repos) > 0 {
		placeholders := make([]string, len(repos))
		for i, repo := range repos {
			placeholders[i] = "?"
			args = append(args, repo)
		}
		query += fmt.Sprintf(" WHERE repo IN (%s)", strings.Join(placeholders, ","))
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*Document
	for rows.Next() {
		doc := &Document{}
		if err := rows.Scan(&doc.ID, &doc.Repo, &doc.Content); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// DeleteChunks removes chunks by ID.
func (s *SQLiteStore) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	_, err := s.db.ExecContext(ctx, fmt.Sprintf(
		"DELETE FROM chunks WHERE id IN (%s)", strings.Join(placeholders, ",")), args...)
	return err
}

// ChunkCount returns the number of stored chunks.
func (s *SQLiteStore) ChunkCount(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, fmt.Errorf("store is closed")
	}

	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count)
	return count, err
}

// SaveEntities upserts graph entities in one transaction.
func (s *SQLiteStore) SaveEntities(ctx context.Context, entities []*Entity) error {
	if len(entities) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entities (id, repo, name, kind, properties)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			repo = excluded.repo,
			name = excluded.name,
			kind = excluded.kind,
			properties = excluded.properties`)
	if err != nil {
		return fmt.Errorf("prepare entity statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, entity := range entities {
		props, err := json.Marshal(entity.Properties)
		if err != nil {
			return fmt.Errorf("marshal properties for %s: %w", entity.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, entity.ID, entity.Repo, entity.Name,
			entity.Kind, string(props)); err != nil {
			return fmt.Errorf("save entity %s: %w", entity.ID, err)
		}
	}

	return tx.Commit()
}

// SaveRelations upserts graph relations in one transaction.
func (s *SQLiteStore) SaveRelations(ctx context.Context, relations []*Relation) error {
	if len(relations) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO relations (source_id, target_id, repo, kind, weight)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, target_id, kind) DO UPDATE SET
			repo = excluded.repo,
			weight = excluded.weight`)
	if err != nil {
		return fmt.Errorf("prepare relation statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, rel := range relations {
		if _, err := stmt.ExecContext(ctx, rel.SourceID, rel.TargetID,
			rel.Repo, rel.Kind, rel.Weight); err != nil {
			return fmt.Errorf("save relation %s->%s: %w", rel.SourceID, rel.TargetID, err)
		}
	}

	return tx.Commit()
}

// Search finds entities whose name matches any term (case-insensitive,
// substring), then appends their one-hop neighbors. Direct matches come
// first; within each group the order is deterministic by entity ID.
func (s *SQLiteStore) Search(ctx context.Context, terms []string, repos []string, limit int) ([]*GraphResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(terms) == 0 || limit <= 0 {
		return []*GraphResult{}, nil
	}

	direct, err := s.matchEntities(ctx, terms, repos, limit)
	if err != nil {
		return nil, err
	}

	results := make([]*GraphResult, 0, limit)
	seen := make(map[string]struct{}, limit)
	for _, entity := range direct {
		if len(results) >= limit {
			return results, nil
		}
		seen[entity.ID] = struct{}{}
		results = append(results, &GraphResult{Entity: entity})
	}

	// One-hop expansion from the direct matches, in both edge directions.
	for _, root := range direct {
		if len(results) >= limit {
			break
		}
		neighbors, err := s.neighbors(ctx, root.ID, limit-len(results)+len(seen))
		if err != nil {
			return nil, err
		}
		for _, n := range neighbors {
			if len(results) >= limit {
				break
			}
			if _, dup := seen[n.Entity.ID]; dup {
				continue
			}
			seen[n.Entity.ID] = struct{}{}
			results = append(results, n)
		}
	}

	return results, nil
}

// matchEntities finds entities whose name contains any of the terms.
func (s *SQLiteStore) matchEntities(ctx context.Context, terms []string, repos []string, limit int) ([]*Entity, error) {
	var clauses []string
	var args []any
	for _, term := range terms {
		clauses = append(clauses, `name LIKE ? ESCAPE '\' COLLATE NOCASE`)
		args = append(args, "%"+escapeLike(term)+"%")
	}

	query := fmt.Sprintf(`
		SELECT id, repo, name, kind, properties
		FROM entities WHERE (%s)`, strings.Join(clauses, " OR "))

	if len(repos) > 0 {
		placeholders := make([]string, len(repos))
		for i, repo := range repos {
			placeholders[i] = "?"
			args = append(args, repo)
		}
		query += fmt.Sprintf(" AND repo IN (%s)", strings.Join(placeholders, ","))
	}

	query += " ORDER BY id LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []*Entity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	return entities, rows.Err()
}

// neighbors returns entities one hop away from entityID, with the edge kind
// and weight that connected them.
func (s *SQLiteStore) neighbors(ctx context.Context, entityID string, limit int) ([]*GraphResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.repo, e.name, e.kind, e.properties, r.kind, r.weight
		FROM relations r
		JOIN entities e ON e.id = CASE WHEN r.source_id = ? THEN r.target_id ELSE r.source_id END
		WHERE r.source_id = ? OR r.target_id = ?
		ORDER BY r.weight DESC, e.id
		LIMIT ?`, entityID, entityID, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("query neighbors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*GraphResult
	for rows.Next() {
		entity := &Entity{}
		var props string
		var relKind string
		var weight float64
		if err := rows.Scan(&entity.ID, &entity.Repo, &entity.Name, &entity.Kind,
			&props, &relKind, &weight); err != nil {
			return nil, fmt.Errorf("scan neighbor: %w", err)
		}
		if err := json.Unmarshal([]byte(props), &entity.Properties); err != nil {
			return nil, fmt.Errorf("unmarshal properties for %s: %w", entity.ID, err)
		}
		results = append(results, &GraphResult{
			Entity:       entity,
			Relationship: relKind,
			Weight:       weight,
		})
	}

	return results, rows.Err()
}

// Counts returns entity and relation counts.
func (s *SQLiteStore) Counts(ctx context.Context) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, 0, fmt.Errorf("store is closed")
	}

	var entities, relations int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities`).Scan(&entities); err != nil {
		return 0, 0, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relations`).Scan(&relations); err != nil {
		return 0, 0, err
	}
	return entities, relations, nil
}

// GetState reads a runtime state value. Returns empty string when unset.
func (s *SQLiteStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", fmt.Errorf("store is closed")
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetState writes a runtime state value.
func (s *SQLiteStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChunk(row rowScanner) (*Chunk, error) {
	chunk := &Chunk{}
	var metadata string
	var createdAt, updatedAt int64
	if err := row.Scan(&chunk.ID, &chunk.Repo, &chunk.Path, &chunk.Content,
		&metadata, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metadata), &chunk.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata for %s: %w", chunk.ID, err)
	}
	chunk.CreatedAt = time.Unix(createdAt, 0)
	chunk.UpdatedAt = time.Unix(updatedAt, 0)
	return chunk, nil
}

func scanEntity(row rowScanner) (*Entity, error) {
	entity := &Entity{}
	var props string
	if err := row.Scan(&entity.ID, &entity.Repo, &entity.Name, &entity.Kind, &props); err != nil {
		return nil, fmt.Errorf("scan entity: %w", err)
	}
	if err := json.Unmarshal([]byte(props), &entity.Properties); err != nil {
		return nil, fmt.Errorf("unmarshal properties for %s: %w", entity.ID, err)
	}
	return entity, nil
}

// escapeLike escapes SQL LIKE wildcards in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}
