package cmd

import (
	"fmt"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/encodings"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Inspect the student roster",
}

var rosterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered students",
	Long: `List the students in the roster CSV together with whether a face encoding
exists for their roll number.`,
	RunE: runRosterList,
}

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.AddCommand(rosterListCmd)

	rosterListCmd.Flags().Bool("json", false, "Output as JSON")
}

type rosterRow struct {
	Roll    string `json:"roll"`
	Name    string `json:"name"`
	Encoded bool   `json:"encoded"`
}

func runRosterList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rosterStore, encodingStore, _ := stores(cfg)

	students, err := rosterStore.Load()
	if err != nil {
		return err
	}

	known := &encodings.KnownFaces{}
	if encodingStore.Exists() {
		if known, err = encodingStore.Read(); err != nil {
			return err
		}
	}

	rows := buildRosterRows(students, known)

	if mustGetBool(cmd, "json") {
		return outputJSON(rows)
	}

	if len(rows) == 0 {
		fmt.Printf("Roster %s is empty\n", rosterStore.Path())
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ROLL\tNAME\tENCODED")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%t\n", r.Roll, r.Name, r.Encoded)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d students, %d known faces\n", len(rows), known.Len())
	return nil
}

// buildRosterRows returns the roster sorted by roll number.
func buildRosterRows(students map[string]string, known *encodings.KnownFaces) []rosterRow {
	rows := make([]rosterRow, 0, len(students))
	for roll, name := range students {
		rows = append(rows, rosterRow{Roll: roll, Name: name, Encoded: known.Contains(roll)})
	}
	slices.SortFunc(rows, func(a, b rosterRow) int {
		switch {
		case a.Roll < b.Roll:
			return -1
		case a.Roll > b.Roll:
			return 1
		}
		return 0
	})
	return rows
}
