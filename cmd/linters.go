package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/flanksource/lintsvc/internal/registry"
	"github.com/flanksource/lintsvc/internal/runner"
)

var lintersCmd = &cobra.Command{
	Use:   "linters",
	Short: "List registered linters and whether they're available on this host",
	RunE:  runLinters,
}

func init() {
	rootCmd.AddCommand(lintersCmd)
}

func runLinters(cmd *cobra.Command, args []string) error {
	reg := registry.New()
	r := runner.New(reg)

	statuses := r.GetAllLinterStatus()
	for _, st := range statuses {
		if st.Available {
			version := st.Version
			if version == "" {
				version = "unknown version"
			}
			fmt.Printf("%s %s (%s)\n", color.GreenString("✓"), color.New(color.Bold).Sprint(st.Name), version)
		} else {
			fmt.Printf("%s %s %s\n", color.RedString("✗"), color.New(color.Bold).Sprint(st.Name), color.YellowString("not found on PATH"))
		}
	}
	return nil
}
