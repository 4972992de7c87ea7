package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll",
	Short: "Encode reference images into the known-face blob",
	Long: `Encode every reference image in <data>/images and save the face encodings.
Each image contributes its first detected face under the file name without
extension, which is the student's roll number. Images without a usable face
are skipped with a warning.

Without --force an existing encodings file is left untouched.`,
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().Bool("force", false, "Rebuild even if an encodings file already exists")
}

func runEnroll(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	force := mustGetBool(cmd, "force")

	_, encodingStore, _ := stores(cfg)
	if encodingStore.Exists() && !force {
		known, err := encodingStore.Read()
		if err != nil {
			return fmt.Errorf("reading %s: %w (use --force to rebuild)", encodingStore.Path(), err)
		}
		fmt.Printf("%s already holds %d encodings, use --force to rebuild\n", encodingStore.Path(), known.Len())
		return nil
	}

	if err := os.MkdirAll(cfg.Data.ImagesDir(), 0o755); err != nil {
		return fmt.Errorf("creating images directory: %w", err)
	}
	files, err := encodingStore.ReferenceImages()
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Printf("No reference images in %s\n", cfg.Data.ImagesDir())
	}

	recognizer, err := newRecognizer(cfg)
	if err != nil {
		return fmt.Errorf("initializing recognizer: %w", err)
	}
	defer recognizer.Close()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Encoding faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	known, warnings, err := encodingStore.Rebuild(context.Background(), recognizer, func(string) {
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return fmt.Errorf("rebuilding encodings: %w", err)
	}

	for _, w := range warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	fmt.Printf("Saved %d encodings to %s (%d skipped)\n", known.Len(), encodingStore.Path(), len(warnings))
	return nil
}
