package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gantryio/gantry/internal/adapters/file"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan.yaml>...",
	Short: "Check plan files for consistency",
	Long: `Parses plan files and reports structural problems: invalid parent/child
pairings, predecessor references that are not siblings, and predecessor
cycles.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		failed := false
		for _, path := range args {
			tmpls, err := file.LoadPlan(path)
			if err != nil {
				fmt.Printf("%s: %v\n", path, err)
				failed = true
				continue
			}
			fmt.Printf("%s: valid (%d templates)\n", path, len(tmpls))
		}
		if failed {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
