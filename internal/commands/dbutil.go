package commands

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/dotcommander/forgotyet/internal/actions"
	"github.com/dotcommander/forgotyet/internal/app"
	"github.com/dotcommander/forgotyet/internal/output"
	"github.com/dotcommander/forgotyet/internal/store"
)

// DB is an alias so command code doesn't need to import database/sql.
type DB = sql.DB

type printedError struct {
	err error
}

func (e printedError) Error() string {
	// The JSON error response is the output.
	return "error already printed"
}

func (e printedError) Unwrap() error { return e.err }

func openDB(ctx context.Context) (*DB, func(), error) {
	dbPath, err := app.GetDBPath()
	if err != nil {
		return nil, nil, err
	}

	db, err := store.Open(ctx, dbPath)
	if err != nil {
		return nil, nil, err
	}

	return db, func() { _ = db.Close() }, nil
}

// runtimeOptions lets tests substitute the audio device and clock.
var runtimeOptions []actions.Option

// withRuntime opens the database and wires a Runtime around it. Errors from fn
// are printed together with any notices raised along the way.
func withRuntime(ctx context.Context, fn func(ctx context.Context, rt *actions.Runtime) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	db, closeDB, err := openDB(ctx)
	if err != nil {
		return cmdErr(err)
	}
	defer closeDB()

	rt, err := actions.Open(db, app.EffectiveClientSettings(), runtimeOptions...)
	if err != nil {
		return cmdErr(err)
	}
	defer rt.Close()

	if err := fn(ctx, rt); err != nil {
		return printErr(err, rt.Shown())
	}
	return nil
}

func printOK(rt *actions.Runtime, data any) error {
	return output.Print(output.Success(data).WithNotices(rt.Shown()))
}

func cmdErr(err error) error {
	return printErr(err, nil)
}

func printErr(err error, notices []output.Notice) error {
	if err == nil {
		return nil
	}
	var pe printedError
	if errors.As(err, &pe) {
		return err
	}
	attrs := []any{"error", err.Error()}
	type slogAttrError interface {
		SlogAttrs() []any
	}
	var detailed slogAttrError
	if errors.As(err, &detailed) {
		attrs = append(attrs, detailed.SlogAttrs()...)
	}
	slog.Error("command error", attrs...)
	_ = output.Print(output.Error(err).WithNotices(notices))
	return printedError{err: err}
}
