package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// SparseBackend selects the sparse index implementation.
type SparseBackend string

const (
	// SparseBackendSQLite uses SQLite FTS5 (default). WAL mode allows
	// concurrent multi-process access.
	SparseBackendSQLite SparseBackend = "sqlite"

	// SparseBackendBleve uses Bleve v2. BoltDB holds an exclusive lock,
	// so this backend is single-process only.
	SparseBackendBleve SparseBackend = "bleve"
)

// NewSparseIndexWithBackend creates a SparseIndex using the given backend.
// basePath is the index path without extension; the backend appends .db or
// .bleve. An empty basePath creates an in-memory index for testing.
func NewSparseIndexWithBackend(basePath string, config SparseConfig, backend string) (SparseIndex, error) {
	switch backend {
	case string(SparseBackendSQLite), "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewSQLiteSparseIndex(path, config)

	case string(SparseBackendBleve):
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveSparseIndex(path, config)

	default:
		return nil, fmt.Errorf("unknown sparse backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// DetectSparseBackend reports which backend an existing index uses, based on
// which files exist. Returns empty when no index exists yet.
func DetectSparseBackend(basePath string) SparseBackend {
	if fileExists(basePath + ".db") {
		return SparseBackendSQLite
	}
	if dirExists(basePath + ".bleve") {
		return SparseBackendBleve
	}
	return ""
}

// SparseIndexPath returns the full on-disk path for the given backend.
func SparseIndexPath(dataDir, backend string) string {
	basePath := filepath.Join(dataDir, "sparse")
	if backend == string(SparseBackendBleve) {
		return basePath + ".bleve"
	}
	return basePath + ".db"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
