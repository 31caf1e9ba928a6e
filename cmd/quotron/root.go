package main

import (
	"os"

	"github.com/spf13/cobra"
)

const (
	configEnv          = "QUOTRON_CONFIG"
	fallbackConfigPath = "./quotron.yaml"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "quotron",
	Short: "Resilient market data access service",
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to configuration file (env "+configEnv+")")
}

// resolveConfigPath prefers the flag, then the environment, then the working directory.
func resolveConfigPath() string {
	if cfgPath != "" {
		return cfgPath
	}

	if p := os.Getenv(configEnv); p != "" {
		return p
	}

	return fallbackConfigPath
}
