package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"arxindle/internal/logger"
	"arxindle/internal/types"
)

// BatchResult is the outcome of one job in a batch.
type BatchResult struct {
	Job      Job
	Artifact *types.Artifact
	Err      error
}

// RunBatch runs jobs with bounded concurrency. Each job must own a distinct
// directory tree: equal, nested or symlinked directories are rejected. One
// failing job does not stop the others; results keep the order of jobs.
func (p *Pipeline) RunBatch(ctx context.Context, jobs []Job) ([]BatchResult, error) {
	dirs := make([]string, 0, len(jobs))
	for _, job := range jobs {
		dir, err := resolveDir(job.Dir)
		if err != nil {
			return nil, types.NewStageError(types.StageValidate, types.ErrConfig, err)
		}
		for _, other := range dirs {
			if within(other, dir) || within(dir, other) {
				return nil, &types.AppError{
					Code:    types.ErrConfig,
					Stage:   types.StageValidate,
					Message: "overlapping source directories in batch",
					Details: other + " and " + dir,
				}
			}
		}
		dirs = append(dirs, dir)
	}

	results := make([]BatchResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	logger.Info("batch started", logger.Int("jobs", len(jobs)), logger.Int("concurrency", p.concurrency))

	for i, job := range jobs {
		i, job := i, job
		g.Go(func() error {
			artifact, err := p.RunJob(gctx, job)
			results[i] = BatchResult{Job: job, Artifact: artifact, Err: err}
			if err != nil {
				logger.Warn("batch job failed", logger.String("dir", job.Dir), logger.Err(err))
			}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Info("batch finished", logger.Int("jobs", len(jobs)), logger.Int("failed", failed))
	return results, ctx.Err()
}

// resolveDir returns the absolute path of dir with symlinks resolved. A
// directory that does not exist keeps its absolute path and fails later.
func resolveDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	return abs, nil
}

// within reports whether child is parent or lies below it.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
