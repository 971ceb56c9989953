// Package db opens the workspace-local SQLite store. Everything Backbeat
// persists lives in a single database file under the workspace's .backbeat
// directory; configs and profiles are rows, not files.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const (
	storeDir  = ".backbeat"
	storeFile = "backbeat.db"
)

type Config struct {
	Workspace string
}

// EnsureWorkspace creates the .backbeat directory if missing and returns
// its path.
func EnsureWorkspace(workspace string) (string, error) {
	dir := filepath.Join(workspace, storeDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// Open opens the store with foreign keys enabled, creating the workspace
// directory on first use.
func Open(cfg Config) (*sql.DB, error) {
	if _, err := EnsureWorkspace(cfg.Workspace); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=foreign_keys(1)", Path(cfg.Workspace))
	return sql.Open("sqlite", dsn)
}

// Path reports where the workspace's store file lives.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, storeDir, storeFile)
}
