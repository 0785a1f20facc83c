package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// migrationLock serializes schema migrations between forgotyet processes that
// share one database, e.g. a running watch and a one-shot events add.
type migrationLock struct {
	path string
	f    *os.File
}

func lockPathFor(dbPath string) string {
	return dbPath + ".migrate.lock"
}

// acquireMigrationLock blocks until the lock next to dbPath is held.
func acquireMigrationLock(dbPath string) (*migrationLock, error) {
	path := lockPathFor(dbPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // G304: path derived from the resolved db path
	if err != nil {
		return nil, fmt.Errorf("open lock file %s: %w", path, err)
	}
	if err := lockFD(f); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	return &migrationLock{path: path, f: f}, nil
}

// release drops the lock. Nil-safe.
func (l *migrationLock) release() {
	if l == nil || l.f == nil {
		return
	}
	_ = unlockFD(l.f)
	_ = l.f.Close()
	l.f = nil
}
