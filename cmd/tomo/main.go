package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags)
var Version = "dev"

var (
	configFile    string
	assistantFile string
)

var rootCmd = &cobra.Command{
	Use:   "tomo",
	Short: "Conversational agent runtime",
	Long: `tomo runs LLM-driven assistants defined in YAML: it extracts intents
and slots from user messages, routes them to policies, and executes
the actions those policies decide on.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c",
		getEnv("TOMO_CONFIG", ""), "runtime configuration file")
	rootCmd.PersistentFlags().StringVarP(&assistantFile, "assistant", "a",
		getEnv("TOMO_ASSISTANT", "config/assistant.yaml"), "assistant definition file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(shellCmd)
	rootCmd.AddCommand(validateCmd)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
