package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/metrics"
	"github.com/kozaktomas/face-attendance/internal/session"
	"github.com/kozaktomas/face-attendance/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Attendance web server.
The page at / streams webcam frames to /process_frame, lists present students
and offers registration of unknown faces. The attendance snapshot is written
on shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

// resolveServeHostPort applies --host and --port over the loaded config.
func resolveServeHostPort(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	resolveServeHostPort(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := os.MkdirAll(cfg.Data.ImagesDir(), 0o755); err != nil {
		return fmt.Errorf("creating images directory: %w", err)
	}

	recognizer, err := newRecognizer(cfg)
	if err != nil {
		return fmt.Errorf("initializing recognizer: %w", err)
	}
	defer recognizer.Close()

	pool, archive, err := openArchive(ctx, cfg)
	if err != nil {
		return err
	}
	opts := session.Options{}
	if pool != nil {
		defer pool.Close()
		opts.Archive = archive
		if n, err := archive.Count(ctx); err == nil {
			fmt.Printf("Attendance history enabled (PostgreSQL, %d snapshots archived)\n", n)
		}
	}

	m := metrics.NewManager()
	rosterStore, encodingStore, writer := stores(cfg)

	opts.Roster = rosterStore
	opts.Encodings = encodingStore
	opts.Attendance = writer
	opts.ImagesDir = cfg.Data.ImagesDir()
	opts.Recognizer = recognizer
	opts.MatchPolicy = cfg.Recognition.MatchPolicy
	opts.Tolerance = cfg.Recognition.Tolerance
	opts.CropMargin = cfg.Recognition.CropMargin
	opts.Metrics = m
	opts.Logger = slog.Default()

	if !encodingStore.Exists() {
		fmt.Printf("No saved encodings, scanning %s...\n", cfg.Data.ImagesDir())
	}
	sess, warnings, err := session.New(ctx, opts)
	if err != nil {
		return fmt.Errorf("loading session: %w", err)
	}
	for _, w := range warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	stats := sess.Stats()
	fmt.Printf("Loaded %d known faces, %d students in roster\n", stats.KnownFaces, stats.RosterSize)

	server := web.NewServer(cfg, sess, m)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Attendance on http://%s\n", cfg.Web.Addr())
	fmt.Println("Press Ctrl+C to stop")

	serveErr := server.Start()

	// The snapshot is written however the server stopped.
	saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer saveCancel()
	snap, err := sess.SaveAttendance(saveCtx)
	if err != nil {
		fmt.Printf("Error saving attendance: %v\n", err)
	} else {
		fmt.Printf("Attendance saved to %s (%d present)\n", writer.Path(), len(snap.Present))
	}

	if serveErr != nil {
		return fmt.Errorf("starting server: %w", serveErr)
	}
	return nil
}
