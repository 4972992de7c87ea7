package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database/postgres"
	"github.com/kozaktomas/face-attendance/internal/encodings"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/kozaktomas/face-attendance/internal/roster"
)

// loadConfig loads the configuration and installs the default logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

// stores builds the file stores under the data directory.
func stores(cfg *config.Config) (*roster.Store, *encodings.Store, *attendance.Writer) {
	return roster.New(cfg.Data.RosterFile()),
		encodings.New(cfg.Data.EncodingsFile(), cfg.Data.ImagesDir()),
		attendance.NewWriter(cfg.Data.AttendanceFile())
}

// newRecognizer creates the configured recognition backend.
func newRecognizer(cfg *config.Config) (recognition.Recognizer, error) {
	switch cfg.Recognition.Backend {
	case config.RecognizerService:
		fmt.Printf("Using face embedding service at %s\n", cfg.Recognition.ServiceURL)
		return recognition.NewServiceRecognizer(cfg.Recognition.ServiceURL), nil
	default:
		fmt.Printf("Loading dlib models from %s (%s detector)...\n", cfg.Recognition.ModelsDir, cfg.Recognition.Detector)
		return newDlibRecognizer(cfg.Recognition.ModelsDir, cfg.Recognition.Detector)
	}
}

// openArchive connects to PostgreSQL when DATABASE_URL is set.
// It returns nil without error when no database is configured.
func openArchive(ctx context.Context, cfg *config.Config) (*postgres.Pool, *postgres.SnapshotRepository, error) {
	if cfg.Database.URL == "" {
		return nil, nil, nil
	}
	fmt.Printf("Connecting to PostgreSQL database...\n")
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return pool, postgres.NewSnapshotRepository(pool), nil
}

// outputJSON writes data to stdout as indented JSON.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
