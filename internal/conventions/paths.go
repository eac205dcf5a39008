package conventions

import "path/filepath"

const (
	// DefaultDataDir is the default fyctl data directory name (relative to home).
	DefaultDataDir = ".fyctl"
	// DBFile is the SQLite database filename of the task history and search cache.
	DBFile = "fyctl.db"
	// ConfigFile is the YAML configuration filename.
	ConfigFile = "config.yaml"
)

// DataDir returns the fyctl data directory under a home directory.
func DataDir(home string) string {
	return filepath.Join(home, DefaultDataDir)
}

// DBPath returns the database path inside a data directory.
func DBPath(dataDir string) string {
	return filepath.Join(dataDir, DBFile)
}

// ConfigPath returns the configuration file path inside a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, ConfigFile)
}
