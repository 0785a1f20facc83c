package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/dotcommander/forgotyet/internal/app"
)

// defaultBusyTimeoutMS is the SQLite busy_timeout in milliseconds.
// Override with FORGOTYET_BUSY_TIMEOUT_MS.
const defaultBusyTimeoutMS = 5000

// Open opens the client database at dbPath in WAL mode and brings its schema
// up to date. The parent directory is created when missing.
func Open(ctx context.Context, dbPath string) (*sql.DB, error) {
	if _, err := app.EnsureDBDir(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", normalizeSQLiteDSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// One client process, one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range pragmas(busyTimeoutMS()) {
		if err := RetryWithBackoff(ctx, func() error {
			_, err := db.ExecContext(ctx, pragma)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	if err := RetryWithBackoff(ctx, func() error { return MigrateDB(db, dbPath) }); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

// pragmas lists connection settings in apply order. busy_timeout goes first
// so the WAL switch waits on locks held by a concurrent watch or record.
func pragmas(busyTimeout int) []string {
	return []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
	}
}

func busyTimeoutMS() int {
	if v := os.Getenv("FORGOTYET_BUSY_TIMEOUT_MS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			return parsed
		}
	}
	return defaultBusyTimeoutMS
}

// normalizeSQLiteDSN turns a plain path into a read/write/create file: URI.
// modernc.org/sqlite opens some plain paths read-only otherwise.
func normalizeSQLiteDSN(dbPath string) string {
	switch {
	case strings.HasPrefix(dbPath, "file:"):
		return dbPath
	case dbPath == ":memory:":
		return "file::memory:?cache=shared"
	}
	return "file:" + dbPath + "?mode=rwc"
}
