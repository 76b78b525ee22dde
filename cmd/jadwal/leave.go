package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/smpn3pacet/jadwal/internal/schema"
	"github.com/smpn3pacet/jadwal/internal/ui"
)

const dateLayout = "2006-01-02"

var dateParser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// parseDate accepts YYYY-MM-DD or a natural expression such as "today",
// "tomorrow" or "next monday", relative to now.
func parseDate(s string, now time.Time) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return now.Format(dateLayout), nil
	}
	if t, err := time.ParseInLocation(dateLayout, s, now.Location()); err == nil {
		return t.Format(dateLayout), nil
	}
	r, err := dateParser.Parse(s, now)
	if err != nil {
		return "", fmt.Errorf("failed to parse date %q: %w", s, err)
	}
	if r == nil {
		return "", fmt.Errorf("unrecognized date %q (use YYYY-MM-DD)", s)
	}
	return r.Time.Format(dateLayout), nil
}

var leaveCmd = &cobra.Command{
	Use:     "leave",
	GroupID: "data",
	Short:   "Record teacher absences",
}

var leaveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded absences",
	Run: func(cmd *cobra.Command, args []string) {
		run(func(ctx context.Context, a *app) error {
			leaves, err := a.container.Leaves()
			if err != nil {
				return err
			}
			if len(leaves) == 0 {
				fmt.Println("No absences recorded")
				return nil
			}
			var rows [][]string
			for _, l := range leaves {
				rows = append(rows, []string{l.ID, l.Date, strconv.Itoa(l.TeacherID), l.TeacherName, string(l.Type), l.Description})
			}
			fmt.Println(ui.Table([]string{"ID", "DATE", "TEACHER", "NAME", "TYPE", "DESCRIPTION"}, rows))
			return nil
		})
	},
}

var leaveAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record an absence",
	Long: `Record that a teacher is absent on a date. The date accepts YYYY-MM-DD or
expressions such as "today", "tomorrow" or "next monday".

  jadwal leave add --teacher 3 --date tomorrow --type SAKIT --desc "Demam"`,
	Run: func(cmd *cobra.Command, args []string) {
		teacherID, _ := cmd.Flags().GetInt("teacher")
		dateArg, _ := cmd.Flags().GetString("date")
		typeArg, _ := cmd.Flags().GetString("type")
		desc, _ := cmd.Flags().GetString("desc")

		date, err := parseDate(dateArg, time.Now())
		if err != nil {
			fatalf("%v", err)
		}
		leaveType, err := schema.ParseLeaveType(typeArg)
		if err != nil {
			fatalf("%v", err)
		}

		run(func(ctx context.Context, a *app) error {
			added, err := a.container.AddLeave(schema.TeacherLeave{
				TeacherID:   teacherID,
				Date:        date,
				Type:        leaveType,
				Description: desc,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s Recorded %s for %s on %s\n", ui.RenderPass("✓"), added.Type, added.TeacherName, added.Date)
			return nil
		})
	},
}

var leaveDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove a recorded absence",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run(func(ctx context.Context, a *app) error {
			if err := a.container.DeleteLeave(args[0]); err != nil {
				return err
			}
			fmt.Printf("%s Deleted absence %s\n", ui.RenderPass("✓"), args[0])
			return nil
		})
	},
}

func init() {
	leaveAddCmd.Flags().Int("teacher", 0, "Teacher id")
	leaveAddCmd.Flags().String("date", "today", "Date of the absence")
	leaveAddCmd.Flags().String("type", string(schema.LeavePermit), "SAKIT, IZIN or DINAS_LUAR")
	leaveAddCmd.Flags().String("desc", "", "Description")
	_ = leaveAddCmd.MarkFlagRequired("teacher")

	leaveCmd.AddCommand(leaveListCmd)
	leaveCmd.AddCommand(leaveAddCmd)
	leaveCmd.AddCommand(leaveDeleteCmd)
	rootCmd.AddCommand(leaveCmd)
}
