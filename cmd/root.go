package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "face-attendance",
	Short: "Webcam attendance with face recognition",
	Long: `Face Attendance serves a web page that streams webcam frames to the server,
recognizes registered students and keeps track of who is present.
Unknown faces can be registered from the page with a roll number and a name.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (overrides CONFIG_FILE)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	if configFile != "" {
		_ = os.Setenv("CONFIG_FILE", configFile)
	}
}
