package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/constants"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect and reset attendance snapshots",
}

var attendanceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved attendance snapshot",
	RunE:  runAttendanceShow,
}

var attendanceClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset the saved attendance snapshot",
	Long: `Overwrite the attendance file with an empty snapshot.
When DATABASE_URL is set, the previous snapshot is archived first.
Do not run this while the server is running; use the web page instead.`,
	RunE: runAttendanceClear,
}

var attendanceHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived attendance snapshots (requires DATABASE_URL)",
	RunE:  runAttendanceHistory,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceShowCmd)
	attendanceCmd.AddCommand(attendanceClearCmd)
	attendanceCmd.AddCommand(attendanceHistoryCmd)

	attendanceShowCmd.Flags().Bool("json", false, "Output as JSON")
	attendanceHistoryCmd.Flags().Int("limit", constants.DefaultHistoryLimit, "Maximum number of snapshots")
	attendanceHistoryCmd.Flags().Bool("json", false, "Output as JSON")
}

func runAttendanceShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, _, writer := stores(cfg)

	snap, err := writer.Read()
	if errors.Is(err, fs.ErrNotExist) {
		fmt.Printf("No attendance saved yet (%s)\n", writer.Path())
		return nil
	}
	if err != nil {
		return err
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(snap)
	}
	printSnapshot(*snap)
	return nil
}

func runAttendanceClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	_, _, writer := stores(cfg)
	ctx := context.Background()

	previous, err := writer.Read()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if previous != nil && len(previous.Present) > 0 {
		pool, archive, err := openArchive(ctx, cfg)
		if err != nil {
			return err
		}
		if pool != nil {
			defer pool.Close()
			archived, err := archive.Archive(ctx, attendance.ReasonClear, *previous)
			if err != nil {
				return fmt.Errorf("archiving previous snapshot: %w", err)
			}
			fmt.Printf("Archived previous snapshot as %s\n", archived.ID)
		}
	}

	now := time.Now()
	empty := attendance.NewTracker().Snapshot(nil, now)
	if err := writer.Write(empty); err != nil {
		return err
	}
	fmt.Printf("Attendance cleared (%s)\n", writer.Path())
	return nil
}

func runAttendanceHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL environment variable is required")
	}
	limit := mustGetInt(cmd, "limit")
	if limit <= 0 {
		limit = constants.DefaultHistoryLimit
	}

	ctx := context.Background()
	pool, archive, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	history, err := archive.History(ctx, limit)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	if mustGetBool(cmd, "json") {
		return outputJSON(history)
	}
	if len(history) == 0 {
		fmt.Println("No archived snapshots")
		return nil
	}
	for _, h := range history {
		fmt.Printf("%s  %-5s  archived %s\n", h.ID, h.Reason, h.ArchivedAt.Local().Format(time.DateTime))
		printSnapshot(h.Snapshot)
		fmt.Println()
	}
	return nil
}

func printSnapshot(snap attendance.Snapshot) {
	fmt.Printf("Date: %s  Time: %s  Present: %d\n", snap.Date, snap.Time, len(snap.Present))
	for _, e := range snap.Present {
		fmt.Printf("  %-12s %s\n", e.Roll, e.Name)
	}
}
