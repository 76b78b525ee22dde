package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/smpn3pacet/jadwal/internal/backup"
	"github.com/smpn3pacet/jadwal/internal/ui"
)

// backupDir returns the --dir flag or <data_dir>/backups.
func backupDir(cmd *cobra.Command, a *app) string {
	if dir, _ := cmd.Flags().GetString("dir"); dir != "" {
		return dir
	}
	return filepath.Join(a.cfg.DataDir, "backups")
}

// confirm asks a yes/no question on the terminal. Without a terminal it
// refuses, so scripts must pass --yes.
func confirm(title, description string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("no terminal to confirm on; pass --yes")
	}
	var ok bool
	err := huh.NewConfirm().
		Title(title).
		Description(description).
		Affirmative("Yes").
		Negative("No").
		Value(&ok).
		Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}

var backupCmd = &cobra.Command{
	Use:     "backup",
	GroupID: "data",
	Short:   "Save the whole document to a JSON file",
	Long: `Write every section of the current document to
Backup_Sistem_Guru_YYYY-MM-DD.json. The file can be restored with
"jadwal restore".`,
	Run: func(cmd *cobra.Command, args []string) {
		run(func(ctx context.Context, a *app) error {
			path, err := backup.Write(backupDir(cmd, a), a.container.Snapshot(), time.Now())
			if err != nil {
				return err
			}
			fmt.Printf("%s Backup written to %s\n", ui.RenderPass("✓"), path)
			return nil
		})
	},
}

var restoreCmd = &cobra.Command{
	Use:     "restore FILE",
	GroupID: "data",
	Short:   "Replace sections from a backup file",
	Long: `Replace every section the backup defines. Sections the backup does not
define are kept. The current document is saved to the backup directory
first, and the restored sections are written to the remote store.

  jadwal restore Backup_Sistem_Guru_2025-01-15.json
  jadwal restore old.json --dry-run`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		data, err := os.ReadFile(args[0])
		if err != nil {
			fatalf("failed to read %s: %v", args[0], err)
		}
		// Validate before touching the remote store.
		if _, err := backup.Parse(data); err != nil {
			fatalf("%s: %v", args[0], err)
		}

		run(func(ctx context.Context, a *app) error {
			opts := backup.RestoreOptions{
				Data:   data,
				DryRun: dryRun,
				Confirm: func(p *backup.Parsed) (bool, error) {
					date := "unknown date"
					if !p.Date.IsZero() {
						date = p.Date.Local().Format("2006-01-02 15:04")
					}
					fmt.Printf("%s Backup from %s\n", ui.RenderAccent("📦"), date)
					fmt.Printf("   Sections: %s\n", strings.Join(p.Sections, ", "))
					if len(p.Ignored) > 0 {
						fmt.Printf("   %s %s\n", ui.RenderWarn("Ignored:"), strings.Join(p.Ignored, ", "))
					}
					if yes || dryRun {
						return true, nil
					}
					return confirm("Replace these sections?", "Current data in these sections will be overwritten.")
				},
			}
			if !dryRun {
				opts.BackupDir = backupDir(cmd, a)
			}

			result, err := backup.Restore(a.container, opts)
			if errors.Is(err, backup.ErrNotConfirmed) {
				fmt.Println("Restore cancelled")
				return nil
			}
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Printf("%s Dry run: %d sections would be replaced\n", ui.RenderWarn("○"), len(result.Parsed.Sections))
				return nil
			}
			if result.BackupCreated != "" {
				fmt.Printf("   Previous data saved to %s\n", result.BackupCreated)
			}
			fmt.Printf("%s Restored %d sections\n", ui.RenderPass("✓"), len(result.Replaced))
			return nil
		})
	},
}

func init() {
	backupCmd.Flags().String("dir", "", "Directory for backup files (default: <data_dir>/backups)")
	restoreCmd.Flags().String("dir", "", "Directory for the pre-restore backup (default: <data_dir>/backups)")
	restoreCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	restoreCmd.Flags().Bool("dry-run", false, "Validate and show the backup without applying it")

	rootCmd.AddCommand(backupCmd)
	rootCmd.AddCommand(restoreCmd)
}
