package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ghost-forensics/ghost/internal/domain"
	_ "modernc.org/sqlite"
)

// sqlitePragmas tunes the file store for a single-examiner workstation:
// WAL so reads do not block the writer, a busy timeout instead of
// immediate SQLITE_BUSY errors, and enforced foreign keys.
const sqlitePragmas = "_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"

// openSQLite opens the standalone tier evidence store. The driver is
// pure Go (modernc.org/sqlite), so standalone builds need no CGO.
func openSQLite(cfg domain.RepositoryConfig) (*sql.DB, error) {
	path := cfg.SQLitePath
	if path == "" {
		path = "./ghost.db"
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?%s", path, sqlitePragmas))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}
