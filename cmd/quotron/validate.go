package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/starwalkn/quotron"
)

var validateCmd = &cobra.Command{
	Use:          "validate",
	Short:        "Validates configuration file",
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	Run: func(_ *cobra.Command, _ []string) {
		if _, err := quotron.LoadConfig(resolveConfigPath()); err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}

		fmt.Println("OK")
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
