package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, no CGO
)

// SQLiteSparseIndex implements SparseIndex using SQLite FTS5 with BM25
// scoring. WAL mode allows concurrent readers across processes.
type SQLiteSparseIndex struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	config    SparseConfig
	closed    bool
	stopWords map[string]struct{}
}

var _ SparseIndex = (*SQLiteSparseIndex)(nil)

// validateSQLiteIntegrity checks an FTS5 index before opening it.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer func() { _ = db.Close() }()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
                       WHERE type='table' AND name='fts_content'`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("FTS5 table 'fts_content' missing")
	}

	return nil
}

// NewSQLiteSparseIndex creates an FTS5-backed sparse index. An empty path
// creates an in-memory index for testing. Corrupt index files are cleared
// and recreated; the caller must reindex afterwards.
func NewSQLiteSparseIndex(path string, config SparseConfig) (*SQLiteSparseIndex, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			slog.Warn("sparse_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, fmt.Errorf("sparse index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			slog.Info("sparse_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Single writer prevents lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores some DSN params, so set pragmas explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	idx := &SQLiteSparseIndex{
		db:        db,
		path:      path,
		config:    config,
		stopWords: BuildStopWordMap(config.StopWords),
	}

	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return idx, nil
}

func (s *SQLiteSparseIndex) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	-- doc_id and repo are stored but not searchable; content holds
	-- pre-tokenized text (camelCase and snake_case already split)
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		repo UNINDEXED,
		content,
		tokenize='unicode61'
	);

	-- FTS5 does not expose rowids reliably, so IDs are tracked separately
	CREATE TABLE IF NOT EXISTS doc_ids (
		doc_id TEXT PRIMARY KEY,
		repo TEXT NOT NULL DEFAULT ''
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Index adds documents. Content is pre-tokenized with the code tokenizer.
// Existing document IDs are updated via delete + insert since FTS5 virtual
// tables do not support REPLACE.
func (s *SQLiteSparseIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	deleteStmt, err := tx.PrepareContext(ctx,
		`DELETE FROM fts_content WHERE doc_id = ?`)
	if err != nil {
		return fmt.Errorf("prepare delete statement: %w", err)
	}
	defer func() { _ = deleteStmt.Close() }()

	insertStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO fts_content(doc_id, repo, content) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert statement: %w", err)
	}
	defer func() { _ = insertStmt.Close() }()

	idStmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO doc_ids(doc_id, repo) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare ID statement: %w", err)
	}
	defer func() { _ = idStmt.Close() }()

	for _, doc := range docs {
		tokens := TokenizeCode(doc.Content)
		tokens = FilterStopWords(tokens, s.stopWords)
		processedContent := strings.Join(tokens, " ")

		if _, err := deleteStmt.ExecContext(ctx, doc.ID); err != nil {
			return fmt.Errorf("delete existing document %s: %w", doc.ID, err)
		}
		if _, err := insertStmt.ExecContext(ctx, doc.ID, doc.Repo, processedContent); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
		if _, err := idStmt.ExecContext(ctx, doc.ID, doc.Repo); err != nil {
			return fmt.Errorf("track document ID %s: %w", doc.ID, err)
		}
	}

	return tx.Commit()
}

// Search returns documents matching the query, best first. The query is
// tokenized the same way as indexed content.
func (s *SQLiteSparseIndex) Search(ctx context.Context, queryStr string, repos []string, limit int) ([]*SparseResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*SparseResult{}, nil
	}

	tokens := TokenizeCode(queryStr)
	tokens = FilterStopWords(tokens, s.stopWords)
	if len(tokens) == 0 {
		return []*SparseResult{}, nil
	}
	processedQuery := strings.Join(tokens, " ")

	// FTS5 bm25() is negative where lower means a better match, so ORDER BY
	// score ascending puts the best matches first.
	query := `
		SELECT doc_id, bm25(fts_content) AS score
		FROM fts_content
		WHERE content MATCH ?`
	args := []any{processedQuery}

	if len(repos) > 0 {
		placeholders := make([]string, len(repos))
		for i, repo := range repos {
			placeholders[i] = "?"
			args = append(args, repo)
		}
		query += fmt.Sprintf(" AND repo IN (%s)", strings.Join(placeholders, ","))
	}

	query += " ORDER BY score LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		// FTS5 errors on malformed match syntax; treat as no results.
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []*SparseResult{}, nil
		}
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*SparseResult
	for rows.Next() {
		var docID string
		var score float64
		if err := rows.Scan(&docID, &score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, &SparseResult{
			DocID:        docID,
			Score:        -score,
			MatchedTerms: tokens,
		})
	}

	return results, rows.Err()
}

// Delete removes documents from the index.
func (s *SQLiteSparseIndex) Delete(ctx context.Context, docIDs []string) error {
	if len(docIDs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(docIDs))
	args := make([]any, len(docIDs))
	for i, id := range docIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM fts_content WHERE doc_id IN (%s)", inClause), args...); err != nil {
		return fmt.Errorf("delete from FTS: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM doc_ids WHERE doc_id IN (%s)", inClause), args...); err != nil {
		return fmt.Errorf("delete from doc_ids: %w", err)
	}

	return tx.Commit()
}

// Stats returns index statistics. FTS5 does not expose term counts cheaply,
// so only the document count is populated.
func (s *SQLiteSparseIndex) Stats() *IndexStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return &IndexStats{}
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&count); err != nil {
		return &IndexStats{}
	}

	return &IndexStats{DocumentCount: count}
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteSparseIndex) Close() error {
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
