package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/smpn3pacet/jadwal/internal/export"
	"github.com/smpn3pacet/jadwal/internal/remote"
	"github.com/smpn3pacet/jadwal/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "sync",
	Short:   "Send the report tables to the remote store",
	Long: `Build the Guru, Siswa, Ijin Guru and Kalender tables from the current
document and send them to the remote store, replacing the sheets of the
same name. The tables are also kept in the local cache.`,
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		run(func(ctx context.Context, a *app) error {
			doc := a.container.Snapshot()
			tables, err := export.Build(doc)
			if err != nil {
				return err
			}
			if err := a.cache.SaveTables(ctx, tables); err != nil {
				return err
			}

			var rows [][]string
			for _, name := range export.Names() {
				rows = append(rows, []string{name, strconv.Itoa(len(tables[name]))})
			}
			fmt.Println(ui.Table([]string{"TABLE", "ROWS"}, rows))

			if !yes {
				ok, err := confirm("Send these tables?", "The remote sheets with these names are replaced.")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Println("Export cancelled")
					return nil
				}
			}

			if _, err := export.Send(ctx, a.store, doc); err != nil {
				if errors.Is(err, remote.ErrNotConfigured) {
					fmt.Printf("%s No remote endpoint; tables kept in the local cache only\n", ui.RenderWarn("○"))
					return nil
				}
				return err
			}
			fmt.Printf("%s Tables sent\n", ui.RenderPass("✓"))
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(exportCmd)
}
