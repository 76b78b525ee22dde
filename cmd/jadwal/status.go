package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/syncer"
	"github.com/smpn3pacet/jadwal/internal/ui"
)

// printSyncLine prints the sync outcome after a command to stderr, so
// stdout carries only the command output.
func printSyncLine(a *app) {
	st := a.session.State()
	switch {
	case !st.Configured:
		fmt.Fprintf(os.Stderr, "%s Local only %s\n", ui.RenderWarn("○"), ui.RenderMuted("(no remote endpoint)"))
	case st.Status == syncer.StatusError:
		fmt.Fprintf(os.Stderr, "%s Sync failed: %v\n", ui.RenderFail("✗"), st.LastError)
		fmt.Fprintf(os.Stderr, "   %s\n", ui.RenderMuted("Local changes are kept in the cache and sent with the next change."))
	default:
		fmt.Fprintf(os.Stderr, "%s Sync %s\n", ui.RenderPass("✓"), ui.RenderStatus(st.Status.String()))
	}
	if n := a.bridge.Dropped(); st.Configured && n > 0 {
		fmt.Fprintf(os.Stderr, "%s %d change(s) kept locally: role %s may not write them\n", ui.RenderWarn("!"), n, a.role)
	}
}

// sectionSize describes a section value for listings: the item count of
// arrays and objects.
func sectionSize(raw json.RawMessage) string {
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return strconv.Itoa(len(list)) + " items"
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		return strconv.Itoa(len(obj)) + " keys"
	}
	return "-"
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync status and local data",
	Long: `Load the remote document and show the sync status.

Shows:
  - Backend, endpoint and where the endpoint came from
  - Session role
  - Load outcome and the last recorded sync
  - Size of every section in the local cache`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(false)
		if err != nil {
			fatalf("%v", err)
		}
		last, hasLast, err := a.cache.LastSync(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}

		start := time.Now()
		phase := a.load(ctx)
		elapsed := time.Since(start)

		endpoint, layer := a.resolver.Resolve()
		if offline {
			endpoint = ""
		}
		if endpoint == "" {
			endpoint = "(none)"
		}

		fmt.Printf("\n%s Jadwal Sync Status\n\n", ui.RenderAccent("📊"))
		fmt.Printf("Backend:  %s\n", a.cfg.Backend)
		fmt.Printf("Endpoint: %s %s\n", endpoint, ui.RenderMuted("("+string(layer)+")"))
		fmt.Printf("Role:     %s\n", a.role)
		fmt.Printf("Cache:    %s\n", a.cache.Path())
		fmt.Printf("Load:     %s in %v\n", phase, elapsed.Round(time.Millisecond))
		fmt.Printf("Status:   %s\n", ui.RenderStatus(a.session.Status().String()))
		if err := a.session.LastError(); err != nil {
			fmt.Printf("Error:    %v\n", err)
		}
		if hasLast {
			line := fmt.Sprintf("%s at %s", last.Status, last.At.Local().Format("2006-01-02 15:04:05"))
			if last.Error != "" {
				line += " (" + last.Error + ")"
			}
			fmt.Printf("Previous: %s\n", line)
		}
		fmt.Println()

		doc := a.container.Snapshot()
		var rows [][]string
		for _, key := range document.Keys() {
			size := "-"
			if raw, ok := doc.Get(key); ok {
				size = sectionSize(raw)
			}
			writable := "no"
			if a.role.CanWrite(key) {
				writable = "yes"
			}
			rows = append(rows, []string{key, size, writable})
		}
		fmt.Println(ui.Table([]string{"SECTION", "SIZE", "WRITABLE"}, rows))

		err = a.finish(ctx)
		a.close()
		if err != nil {
			fatalf("failed to update cache: %v", err)
		}
	},
}

var pullCmd = &cobra.Command{
	Use:     "pull",
	GroupID: "sync",
	Short:   "Load the remote document into the local cache",
	Long: `Fetch the remote document and replace every section it defines in the
local cache. Sections the remote does not define keep their local value.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()
		a, err := openApp(false)
		if err != nil {
			fatalf("%v", err)
		}
		before := a.container.Snapshot()
		fmt.Printf("%s Loading remote document...\n", ui.RenderAccent("🔄"))
		start := time.Now()
		phase := a.load(ctx)

		err = a.finish(ctx)
		after := a.container.Snapshot()
		if err != nil {
			a.close()
			fatalf("failed to update cache: %v", err)
		}
		defer a.close()

		switch phase {
		case syncer.PhaseReadySynced:
			changed := document.Diff(before, after)
			fmt.Printf("%s Loaded in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
			if len(changed) == 0 {
				fmt.Println("   Local cache was already up to date")
			}
			for _, key := range changed {
				fmt.Printf("   Updated: %s\n", key)
			}
		default:
			printSyncLine(a)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(pullCmd)
}
