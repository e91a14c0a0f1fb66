// Command imageproxy runs the OpenAI-compatible image generation proxy and
// offers offline access to its generation history.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/sofatutor/imagegen-proxy/internal/config"
	"github.com/spf13/cobra"
)

// For testing
var (
	osExit = os.Exit
)

var envFile string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		osExit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "imageproxy",
		Short:         "OpenAI-compatible image generation proxy",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			loadEnvFile(envFile)
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env", config.EnvOrDefault("ENV", ".env"), "Path to .env file")

	root.AddCommand(newServerCmd())
	root.AddCommand(newHistoryCmd())
	return root
}

// loadEnvFile loads path when it exists. Variables already set in the
// environment win.
func loadEnvFile(path string) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	if err := godotenv.Load(path); err != nil {
		log.Printf("Warning: Error loading %s file: %v", path, err)
	}
}
