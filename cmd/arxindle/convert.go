package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"arxindle/internal/logger"
	"arxindle/internal/pipeline"
	"arxindle/internal/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert <dir>",
	Short: "Convert one unpacked LaTeX source directory",
	Long: `Convert rewrites the LaTeX sources in <dir> in place for the configured page
size, compiles them and writes the PDF next to the root document, or to
--output when given. Landscape output is compiled on a swapped page and
rotated afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	addPageFlags(convertCmd)
	convertCmd.Flags().StringP("output", "o", "", "copy the final PDF to this file or directory")
	convertCmd.Flags().String("report", "", "write a YAML diagnostics report to this file")

	rootCmd.AddCommand(convertCmd)
}

func addPageFlags(cmd *cobra.Command) {
	cmd.Flags().Float64P("width", "W", 0, "page width in inches (default 4)")
	cmd.Flags().Float64P("height", "H", 0, "page height in inches (default 6)")
	cmd.Flags().Float64P("margin", "m", 0, "margin in inches, between 0 and 1 (default 0.2)")
	cmd.Flags().BoolP("landscape", "l", false, "rotate the output for landscape reading")
}

func runConvert(cmd *cobra.Command, args []string) error {
	cfg := manager.GetConfig()
	output, _ := cmd.Flags().GetString("output")
	reportPath, _ := cmd.Flags().GetString("report")

	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}
	job := pipeline.Job{Dir: args[0], Spec: cfg.PageSpec(), Output: output}
	artifact, runErr := p.RunJob(cmd.Context(), job)

	if reportPath != "" {
		if err := pipeline.WriteReportFile(reportPath, artifact, runErr); err != nil {
			logger.Error("failed to write report", err, logger.String("path", reportPath))
		}
	}
	if runErr != nil {
		if artifact != nil && artifact.Path != "" {
			fmt.Fprintf(os.Stderr, "Unrotated PDF: %s\n", artifact.Path)
		}
		return runErr
	}
	printArtifact(cmd.OutOrStdout(), artifact)
	return nil
}

func printArtifact(w io.Writer, a *types.Artifact) {
	fmt.Fprintln(w, a.Path)
	if a.Info != nil {
		fmt.Fprintf(w, "  %d page(s), %.2fx%.2fin, %d bytes\n",
			a.Info.PageCount, a.Info.WidthIn, a.Info.HeightIn, a.Info.FileSize)
	}
	if a.Compile != nil {
		fmt.Fprintf(w, "  %d attempt(s), %d pass(es)\n", len(a.Compile.Attempts), a.Compile.Passes)
	}
	for _, warning := range a.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", warning)
	}
}
