package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"arxindle/internal/pipeline"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify that the external tools are installed",
	Long: `Check looks up the LaTeX engine, bibtex and the rotation tool, and rotates a
generated sample PDF to confirm the rotation tool works. The rotation tool is
only required when landscape output is configured.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolP("landscape", "l", false, "treat the rotation tool as required")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	results := pipeline.Preflight(cmd.Context(), manager.GetConfig())

	out := cmd.OutOrStdout()
	for _, r := range results {
		status := "ok"
		switch {
		case !r.OK && r.Required:
			status = "MISSING"
		case !r.OK:
			status = "missing (optional)"
		}
		fmt.Fprintf(out, "%-24s %s\n", r.Name, status)
		if r.Detail != "" {
			fmt.Fprintf(out, "  %s\n", r.Detail)
		}
	}
	if !pipeline.Passed(results) {
		return errors.New("required tools are missing")
	}
	return nil
}
