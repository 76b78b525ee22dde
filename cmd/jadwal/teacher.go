package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smpn3pacet/jadwal/internal/schema"
	"github.com/smpn3pacet/jadwal/internal/ui"
)

// parseHours parses "VII A=4,VIII B=2" into per-class hours on t. Classes
// not named keep their current hours.
func parseHours(t *schema.Teacher, list string) error {
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		class, value, ok := strings.Cut(part, "=")
		if !ok {
			return fmt.Errorf("invalid hours %q (want CLASS=HOURS, e.g. \"VII A=4\")", part)
		}
		class = strings.Join(strings.Fields(strings.ToUpper(class)), " ")
		if !schema.IsClass(class) {
			return fmt.Errorf("unknown class %q", class)
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return fmt.Errorf("invalid hours for %s: %q", class, value)
		}
		grade, letter, _ := strings.Cut(class, " ")
		var block *schema.ClassHours
		switch grade {
		case "VII":
			block = &t.HoursVII
		case "VIII":
			block = &t.HoursVIII
		default:
			block = &t.HoursIX
		}
		switch letter {
		case "A":
			block.A = n
		case "B":
			block.B = n
		default:
			block.C = n
		}
	}
	return nil
}

// applyTeacherFlags copies the teacher flags that were set onto t.
func applyTeacherFlags(cmd *cobra.Command, t *schema.Teacher) error {
	flags := cmd.Flags()
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("name", &t.Name)
	str("code", &t.Code)
	str("rank", &t.Rank)
	str("gol", &t.Gol)
	str("subject", &t.Subject)
	str("task", &t.AdditionalTask)
	if flags.Changed("extra-hours") {
		t.AdditionalHours, _ = flags.GetInt("extra-hours")
	}
	if flags.Changed("hours") {
		list, _ := flags.GetString("hours")
		if err := parseHours(t, list); err != nil {
			return err
		}
	}
	return nil
}

func parseTeacherID(arg string) (int, error) {
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid teacher id %q", arg)
	}
	return id, nil
}

var teacherCmd = &cobra.Command{
	Use:     "teacher",
	GroupID: "data",
	Short:   "Manage the teacher workload table",
}

var teacherListCmd = &cobra.Command{
	Use:   "list",
	Short: "List teachers with their teaching hours",
	Run: func(cmd *cobra.Command, args []string) {
		run(func(ctx context.Context, a *app) error {
			teachers, err := a.container.Teachers()
			if err != nil {
				return err
			}
			if len(teachers) == 0 {
				fmt.Println("No teachers")
				return nil
			}
			headers := []string{"ID", "NO", "NAME", "CODE", "SUBJECT"}
			headers = append(headers, schema.Classes()...)
			headers = append(headers, "EXTRA", "TOTAL")
			var rows [][]string
			for _, t := range teachers {
				row := []string{strconv.Itoa(t.ID), strconv.Itoa(t.No), t.Name, t.Code, t.Subject}
				for _, class := range schema.Classes() {
					row = append(row, strconv.Itoa(t.HoursFor(class)))
				}
				row = append(row, strconv.Itoa(t.AdditionalHours), strconv.Itoa(t.TotalHours))
				rows = append(rows, row)
			}
			fmt.Println(ui.Table(headers, rows))
			return nil
		})
	},
}

var teacherAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a teacher",
	Long: `Add a teacher to the workload table. The id and row number are assigned
automatically and the total hours are computed from the class hours.

  jadwal teacher add --name "Siti Aminah, S.Pd" --code 07 --subject IPA \
      --hours "VII A=4,VII B=4,VIII A=5"`,
	Run: func(cmd *cobra.Command, args []string) {
		run(func(ctx context.Context, a *app) error {
			var t schema.Teacher
			if err := applyTeacherFlags(cmd, &t); err != nil {
				return err
			}
			added, err := a.container.AddTeacher(t)
			if err != nil {
				return err
			}
			fmt.Printf("%s Added teacher %d: %s (%d hours)\n", ui.RenderPass("✓"), added.ID, added.Name, added.TotalHours)
			return nil
		})
	},
}

var teacherEditCmd = &cobra.Command{
	Use:   "edit ID",
	Short: "Change a teacher's fields",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseTeacherID(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		run(func(ctx context.Context, a *app) error {
			teachers, err := a.container.Teachers()
			if err != nil {
				return err
			}
			for _, t := range teachers {
				if t.ID != id {
					continue
				}
				if err := applyTeacherFlags(cmd, &t); err != nil {
					return err
				}
				if err := a.container.EditTeacher(t); err != nil {
					return err
				}
				fmt.Printf("%s Updated teacher %d: %s (%d hours)\n", ui.RenderPass("✓"), t.ID, t.Name, t.ComputeTotal())
				return nil
			}
			return fmt.Errorf("teacher %d not found", id)
		})
	},
}

var teacherDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove a teacher",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseTeacherID(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		run(func(ctx context.Context, a *app) error {
			if err := a.container.DeleteTeacher(id); err != nil {
				return err
			}
			fmt.Printf("%s Deleted teacher %d\n", ui.RenderPass("✓"), id)
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{teacherAddCmd, teacherEditCmd} {
		c.Flags().String("name", "", "Full name with title")
		c.Flags().String("code", "", "Teacher code used in the schedule")
		c.Flags().String("rank", "", "Civil service rank (pangkat)")
		c.Flags().String("gol", "", "Civil service grade (golongan)")
		c.Flags().String("subject", "", "Subject taught")
		c.Flags().String("hours", "", "Weekly hours per class, e.g. \"VII A=4,VIII B=2\"")
		c.Flags().String("task", "", "Additional task, e.g. Wali Kelas VII A")
		c.Flags().Int("extra-hours", 0, "Hours credited for the additional task")
	}

	teacherCmd.AddCommand(teacherListCmd)
	teacherCmd.AddCommand(teacherAddCmd)
	teacherCmd.AddCommand(teacherEditCmd)
	teacherCmd.AddCommand(teacherDeleteCmd)
	rootCmd.AddCommand(teacherCmd)
}
