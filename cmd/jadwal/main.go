// Command jadwal manages the school schedule data of SMPN 3 Pacet and keeps
// it in sync with the remote store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configDir string
	logFile   string
	quiet     bool
	offline   bool
	roleFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "jadwal",
	Short: "School schedule and records with remote sync",
	Long: `jadwal keeps the teacher workload, schedule, student roster and classroom
records of the school in a local cache and syncs them with a remote store.

The remote store is either the spreadsheet web app (backend: sheet) or a
jadwal hub (backend: realtime). Without an endpoint everything works
locally and nothing is sent.

Every command that changes data loads the remote document first, applies
the change, and writes the changed sections back before it exits.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := setupLogging(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Data commands:"},
		&cobra.Group{ID: "sync", Title: "Sync commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced commands:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configDir, "config-dir", "", "Configuration directory (default: ./.jadwal)")
	flags.StringVar(&logFile, "log-file", "", "Write component logs to a rotated file instead of stderr")
	flags.BoolVarP(&quiet, "quiet", "q", false, "Discard component logs")
	flags.BoolVar(&offline, "offline", false, "Work on the local cache only; never contact the remote store")
	flags.StringVar(&roleFlag, "role", "", "Session role for this command: admin, teacher or none (default: from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
