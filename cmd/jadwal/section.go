package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smpn3pacet/jadwal/internal/document"
	"github.com/smpn3pacet/jadwal/internal/ui"
)

var sectionCmd = &cobra.Command{
	Use:     "section",
	GroupID: "advanced",
	Short:   "Read or replace a raw document section",
	Long: `Read or replace one section of the document as JSON.

Sections: ` + strings.Join(document.Keys(), ", "),
}

var sectionGetCmd = &cobra.Command{
	Use:   "get SECTION",
	Short: "Print a section as indented JSON",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		if !document.IsSection(key) {
			fatalf("unknown section %q", key)
		}
		run(func(ctx context.Context, a *app) error {
			raw, ok := a.container.Section(key)
			if !ok {
				return fmt.Errorf("section %s is not set", key)
			}
			var out bytes.Buffer
			if err := json.Indent(&out, raw, "", "  "); err != nil {
				return err
			}
			out.WriteByte('\n')
			_, err := os.Stdout.Write(out.Bytes())
			return err
		})
	},
}

var sectionSetCmd = &cobra.Command{
	Use:   "set SECTION FILE",
	Short: "Replace a section with the JSON in FILE (- for stdin)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		key := args[0]
		if !document.IsSection(key) {
			fatalf("unknown section %q", key)
		}

		var (
			data []byte
			err  error
		)
		if args[1] == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(args[1])
		}
		if err != nil {
			fatalf("failed to read %s: %v", args[1], err)
		}

		var compact bytes.Buffer
		if err := json.Compact(&compact, bytes.TrimSpace(data)); err != nil {
			fatalf("%s: not valid JSON: %v", args[1], err)
		}

		run(func(ctx context.Context, a *app) error {
			if err := a.container.ReplaceSection(key, compact.Bytes()); err != nil {
				return err
			}
			fmt.Printf("%s Replaced %s\n", ui.RenderPass("✓"), key)
			return nil
		})
	},
}

func init() {
	sectionCmd.AddCommand(sectionGetCmd)
	sectionCmd.AddCommand(sectionSetCmd)
	rootCmd.AddCommand(sectionCmd)
}
