package commands

import (
	"github.com/spf13/cobra"

	"github.com/dotcommander/forgotyet/internal/app"
	"github.com/dotcommander/forgotyet/internal/capture"
	"github.com/dotcommander/forgotyet/internal/output"
	"github.com/dotcommander/forgotyet/internal/store"
)

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, database and audio input",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, dbSource, err := app.ResolveDBPathDetailed()
			if err != nil {
				return cmdErr(err)
			}
			settings := app.EffectiveClientSettings()

			var (
				dbOK     bool
				dbErr    string
				queryOK  bool
				queryErr string
			)

			db, err := store.Open(cmd.Context(), dbPath)
			if err != nil {
				dbErr = err.Error()
			} else {
				dbOK = true
				defer db.Close()
			}

			if dbOK {
				var one int
				if err := db.QueryRowContext(cmd.Context(), "SELECT 1").Scan(&one); err != nil {
					queryErr = err.Error()
				} else {
					queryOK = true
				}
			} else {
				queryErr = "db not available"
			}

			var (
				devices  []capture.DeviceInfo
				audioErr string
			)
			mic := &capture.MalgoDevice{Name: settings.AudioDevice}
			if devices, err = mic.Devices(); err != nil {
				audioErr = err.Error()
			}

			type resp struct {
				DBPath       string               `json:"db_path"`
				DBSource     string               `json:"db_source"`
				DBOK         bool                 `json:"db_ok"`
				DBErr        string               `json:"db_error,omitempty"`
				QueryOK      bool                 `json:"query_ok"`
				QueryErr     string               `json:"query_error,omitempty"`
				APIBaseURL   string               `json:"api_base_url"`
				AudioDevices []capture.DeviceInfo `json:"audio_devices"`
				AudioErr     string               `json:"audio_error,omitempty"`
				Hint         string               `json:"hint,omitempty"`
			}
			hint := ""
			if !dbOK {
				hint = "Set db_path to a writable location or use --db-path."
			}
			return output.PrintSuccess(resp{
				DBPath:       dbPath,
				DBSource:     dbSource,
				DBOK:         dbOK,
				DBErr:        dbErr,
				QueryOK:      queryOK,
				QueryErr:     queryErr,
				APIBaseURL:   settings.APIBaseURL,
				AudioDevices: devices,
				AudioErr:     audioErr,
				Hint:         hint,
			})
		},
	}
}
