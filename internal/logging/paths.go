package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns the directory for quarry log files (~/.quarry/logs).
// Falls back to the system temp directory if the home directory is unknown.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "quarry", "logs")
	}
	return filepath.Join(home, ".quarry", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "quarry.log")
}

// EnsureLogDir creates the log directory if it does not exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
