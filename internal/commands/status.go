package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotcommander/forgotyet/internal/actions"
	"github.com/dotcommander/forgotyet/internal/app"
	"github.com/dotcommander/forgotyet/internal/store"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, session and cache overview",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, dbSource, err := app.ResolveDBPathDetailed()
			if err != nil {
				return cmdErr(err)
			}
			return withRuntime(cmd.Context(), func(_ context.Context, rt *actions.Runtime) error {
				current, latest, err := store.SchemaVersion(rt.DB)
				if err != nil {
					return err
				}

				type resp struct {
					DBPath         string                   `json:"db_path"`
					DBSource       string                   `json:"db_source"`
					SchemaVersion  int64                    `json:"schema_version"`
					SchemaLatest   int64                    `json:"schema_latest"`
					Settings       app.ClientSettings       `json:"settings"`
					Session        actions.AuthStatusResult `json:"session"`
					CachedEvents   int                      `json:"cached_events"`
					CacheFetchedAt *time.Time               `json:"cache_fetched_at,omitempty"`
				}
				r := resp{
					DBPath:        dbPath,
					DBSource:      dbSource,
					SchemaVersion: current,
					SchemaLatest:  latest,
					Settings:      rt.Settings,
					Session:       actions.AuthStatus(rt),
					CachedEvents:  len(rt.Events.Events()),
				}
				if at := rt.Events.FetchedAt(); !at.IsZero() {
					r.CacheFetchedAt = &at
				}
				return printOK(rt, r)
			})
		},
	}
}
