// Command fluxd exposes the core messaging and coordination
// primitives — the wire codec, KVS commit engine, and bootstrap tree —
// as a single binary: a rootCmd with bootstrap/kvs/serve subcommands
// and cobra.OnInitialize wiring config load to logger setup.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flux-framework/flux-core-go/pkg/config"
	"github.com/flux-framework/flux-core-go/pkg/log"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

var (
	cfgFile string
	cfg     config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fluxd",
	Short:   "flux-core-go - message codec, KVS commit engine, and bootstrap tree",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("fluxd version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to a fluxd YAML config file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "", "Content store data directory (overrides config file)")

	cobra.OnInitialize(initConfig, initLogging)

	rootCmd.AddCommand(bootstrapCmd)
	rootCmd.AddCommand(kvsCmd)
	rootCmd.AddCommand(serveCmd)
}

func initConfig() {
	loaded, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	loaded.ApplyEnv()
	if dataDir, _ := rootCmd.PersistentFlags().GetString("data-dir"); dataDir != "" {
		loaded.DataDir = dataDir
	}
	cfg = loaded
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
