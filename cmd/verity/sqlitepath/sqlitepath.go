// Package sqlitepath resolves where verity keeps its transcript database.
// Every subcommand resolves it the same way, so what ask, batch, mcp and
// serve record is what merge and push read.
package sqlitepath

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/papercomputeco/verity/pkg/config"
)

// ErrNotConfigured is returned by RequireSQLitePath when no database is set.
var ErrNotConfigured = fmt.Errorf("no transcript database configured: pass --sqlite, set %s or transcripts.sqlite in the config file", config.EnvSQLite)

// ResolveSQLitePath returns override when set, otherwise transcripts.sqlite
// from cfg (which $VERITY_SQLITE already overrides). An empty result means
// transcripts are not persisted.
func ResolveSQLitePath(override string, cfg *config.Config) string {
	if override != "" {
		return override
	}
	if cfg != nil {
		return cfg.Transcripts.SQLite
	}
	return ""
}

// RequireSQLitePath is ResolveSQLitePath for commands that only make sense
// against a database on disk. The parent directory is created if missing.
func RequireSQLitePath(override string, cfg *config.Config) (string, error) {
	path := ResolveSQLitePath(override, cfg)
	if path == "" {
		return "", ErrNotConfigured
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("could not create %s: %w", dir, err)
	}
	return path, nil
}
