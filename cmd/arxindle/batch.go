package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"arxindle/internal/pipeline"
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>...",
	Short: "Convert several source directories in parallel",
	Long: `Batch converts every given directory with the same page settings. Jobs run
concurrently up to --concurrency; a failing job does not stop the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	addPageFlags(batchCmd)
	batchCmd.Flags().IntP("concurrency", "j", 0, "parallel jobs (default 2)")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg := manager.GetConfig()
	p, err := pipeline.New(cfg)
	if err != nil {
		return err
	}

	spec := cfg.PageSpec()
	jobs := make([]pipeline.Job, len(args))
	for i, dir := range args {
		jobs[i] = pipeline.Job{Dir: dir, Spec: spec}
	}

	results, err := p.RunBatch(cmd.Context(), jobs)
	if err != nil && results == nil {
		return err
	}

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s\n", r.Job.Dir)
			printError(out, r.Err)
			continue
		}
		fmt.Fprintf(out, "OK   %s -> %s\n", r.Job.Dir, r.Artifact.Path)
	}
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d job(s) failed", failed, len(jobs))
	}
	return nil
}
