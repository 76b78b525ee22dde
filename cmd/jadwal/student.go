package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smpn3pacet/jadwal/internal/schema"
	"github.com/smpn3pacet/jadwal/internal/ui"
)

// normalizeClass turns " vii  a" into "VII A".
func normalizeClass(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// readStudentCSV reads a roster with a name column and an optional class
// column. Rows without a class get defaultClass. Blank rows are skipped.
func readStudentCSV(r io.Reader, defaultClass string) ([]schema.Student, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	nameCol, classCol := -1, -1
	for i, h := range header {
		switch strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "NAMA", "NAMA SISWA", "NAME":
			nameCol = i
		case "KELAS", "CLASS":
			classCol = i
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("no name column (want Nama, Nama Siswa or Name)")
	}
	if classCol < 0 && defaultClass == "" {
		return nil, fmt.Errorf("no class column; use --class to set one for every row")
	}

	var students []schema.Student
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		name := ""
		if nameCol < len(record) {
			name = strings.TrimSpace(record[nameCol])
		}
		if name == "" {
			continue
		}
		class := defaultClass
		if classCol >= 0 && classCol < len(record) && strings.TrimSpace(record[classCol]) != "" {
			class = record[classCol]
		}
		class = normalizeClass(class)
		if !schema.IsClass(class) {
			return nil, fmt.Errorf("line %d: unknown class %q", line, class)
		}
		students = append(students, schema.Student{Name: name, ClassName: class})
	}
	return students, nil
}

var studentCmd = &cobra.Command{
	Use:     "student",
	GroupID: "data",
	Short:   "Manage the student roster",
}

var studentListCmd = &cobra.Command{
	Use:   "list",
	Short: "List students",
	Run: func(cmd *cobra.Command, args []string) {
		class, _ := cmd.Flags().GetString("class")
		class = normalizeClass(class)
		run(func(ctx context.Context, a *app) error {
			students, err := a.container.Students()
			if err != nil {
				return err
			}
			var rows [][]string
			for _, s := range students {
				if class != "" && s.ClassName != class {
					continue
				}
				rows = append(rows, []string{strconv.Itoa(len(rows) + 1), s.ID, s.Name, s.ClassName})
			}
			if len(rows) == 0 {
				fmt.Println("No students")
				return nil
			}
			fmt.Println(ui.Table([]string{"NO", "ID", "NAME", "CLASS"}, rows))
			return nil
		})
	},
}

var studentAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Add a student",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		class, _ := cmd.Flags().GetString("class")
		run(func(ctx context.Context, a *app) error {
			added, err := a.container.AddStudent(schema.Student{Name: args[0], ClassName: normalizeClass(class)})
			if err != nil {
				return err
			}
			fmt.Printf("%s Added %s to %s (%s)\n", ui.RenderPass("✓"), added.Name, added.ClassName, added.ID)
			return nil
		})
	},
}

var studentDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Remove a student",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		run(func(ctx context.Context, a *app) error {
			if err := a.container.DeleteStudent(args[0]); err != nil {
				return err
			}
			fmt.Printf("%s Deleted student %s\n", ui.RenderPass("✓"), args[0])
			return nil
		})
	},
}

var studentImportCmd = &cobra.Command{
	Use:   "import FILE.csv",
	Short: "Add every student in a CSV roster",
	Long: `Add the students of a CSV roster in one change. The header row must name a
Nama (or Nama Siswa) column; a Kelas column is used when present, otherwise
--class applies to every row.

  jadwal student import kelas7a.csv --class "VII A"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		class, _ := cmd.Flags().GetString("class")
		f, err := os.Open(args[0])
		if err != nil {
			fatalf("failed to open %s: %v", args[0], err)
		}
		students, err := readStudentCSV(f, class)
		_ = f.Close()
		if err != nil {
			fatalf("%s: %v", args[0], err)
		}
		if len(students) == 0 {
			fatalf("%s: no students found", args[0])
		}

		run(func(ctx context.Context, a *app) error {
			added, err := a.container.BulkAddStudents(students)
			if err != nil {
				return err
			}
			fmt.Printf("%s Imported %d students\n", ui.RenderPass("✓"), len(added))
			return nil
		})
	},
}

func init() {
	studentListCmd.Flags().String("class", "", "Only list this class, e.g. \"VII A\"")
	studentAddCmd.Flags().String("class", "", "Class name, e.g. \"VII A\"")
	_ = studentAddCmd.MarkFlagRequired("class")
	studentImportCmd.Flags().String("class", "", "Class for rows without a Kelas column")

	studentCmd.AddCommand(studentListCmd)
	studentCmd.AddCommand(studentAddCmd)
	studentCmd.AddCommand(studentDeleteCmd)
	studentCmd.AddCommand(studentImportCmd)
	rootCmd.AddCommand(studentCmd)
}
