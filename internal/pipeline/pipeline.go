// Package pipeline sequences rewrite, compile, reorientation and delivery
// for one LaTeX source directory.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"arxindle/internal/compiler"
	"arxindle/internal/logger"
	"arxindle/internal/orient"
	"arxindle/internal/pdf"
	"arxindle/internal/rewriter"
	"arxindle/internal/types"
)

// Job is one conversion request.
type Job struct {
	Dir  string
	Spec types.PageSpec
	// Output is an optional file or directory the final PDF is copied to.
	Output string
}

// Pipeline runs jobs. It holds no per-run state and is safe for concurrent
// use on distinct directories.
type Pipeline struct {
	rewriter    *rewriter.Rewriter
	driver      *compiler.Driver
	rotator     orient.Rotator
	concurrency int
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithRewriter replaces the rewriter.
func WithRewriter(r *rewriter.Rewriter) Option {
	return func(p *Pipeline) { p.rewriter = r }
}

// WithDriver replaces the compile driver.
func WithDriver(d *compiler.Driver) Option {
	return func(p *Pipeline) { p.driver = d }
}

// WithRotator replaces the landscape rotator.
func WithRotator(r orient.Rotator) Option {
	return func(p *Pipeline) { p.rotator = r }
}

// WithConcurrency bounds RunBatch. Values below 1 mean 1.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n < 1 {
			n = 1
		}
		p.concurrency = n
	}
}

// New builds a pipeline from cfg. Options override the configured parts.
func New(cfg *types.Config, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{concurrency: 1}
	if cfg != nil {
		p.rewriter = rewriter.New(rewriter.WithStrict(cfg.StrictClass))
		p.driver = compiler.NewDriver(
			compiler.NewExecEngine(cfg.Compiler, cfg.BibTeX, cfg.CompileTimeout),
			compiler.WithMaxAttempts(cfg.MaxAttempts),
			compiler.WithMinPasses(cfg.MinPasses),
		)
		rotator, err := orient.New(cfg.RotateTool, cfg.RotateTimeout)
		if err != nil {
			return nil, types.NewStageError(types.StageValidate, types.ErrConfig, err)
		}
		p.rotator = rotator
		WithConcurrency(cfg.Concurrency)(p)
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.rewriter == nil {
		p.rewriter = rewriter.New()
	}
	if p.driver == nil {
		p.driver = compiler.NewDriver(compiler.NewExecEngine("", "", 0))
	}
	if p.rotator == nil {
		p.rotator = orient.NewPdftk(0)
	}
	return p, nil
}

// Run converts the source tree in dir for spec.
func (p *Pipeline) Run(ctx context.Context, dir string, spec types.PageSpec) (*types.Artifact, error) {
	return p.RunJob(ctx, Job{Dir: dir, Spec: spec})
}

// RunJob runs one job. The returned artifact is nil only when the job
// failed before compiling; after that it carries the compile history, and
// after a post-process failure it also carries the unrotated PDF.
func (p *Pipeline) RunJob(ctx context.Context, job Job) (*types.Artifact, error) {
	runID := uuid.New().String()
	log := func(msg string, fields ...logger.Field) {
		logger.Info(msg, append([]logger.Field{logger.String("run", runID)}, fields...)...)
	}

	if err := job.Spec.Validate(); err != nil {
		return nil, types.NewStageError(types.StageValidate, types.ErrConfig, err)
	}
	if job.Spec.Orientation == "" {
		job.Spec.Orientation = types.OrientationPortrait
	}
	if job.Spec.NeedsRotation() {
		if err := p.rotator.Available(); err != nil {
			logger.Warn("rotation tool unavailable, landscape output will fail",
				logger.String("run", runID), logger.Err(err))
		}
	}

	effective := job.Spec.Effective()
	log("pipeline started",
		logger.String("dir", job.Dir),
		logger.String("orientation", string(job.Spec.Orientation)),
		logger.Float64("width", effective.Width),
		logger.Float64("height", effective.Height))

	rw, err := p.rewriter.Rewrite(ctx, job.Dir, effective)
	if err != nil {
		return nil, stageError(types.StageRewrite, err)
	}

	artifact := &types.Artifact{
		RunID:        runID,
		RootDocument: rw.RootPath,
		Spec:         job.Spec,
		Warnings:     rw.Warnings,
	}

	if err := ctx.Err(); err != nil {
		return artifact, stageError(types.StageCompile, err)
	}
	result, err := p.driver.Compile(ctx, job.Dir, rw.RootPath)
	artifact.Compile = result
	if err != nil {
		return artifact, stageError(types.StageCompile, err)
	}
	artifact.Path = result.PDFPath

	if job.Spec.NeedsRotation() {
		rotated, err := orient.Reorient(ctx, p.rotator, result.PDFPath)
		if err != nil {
			artifact.Warnings = append(artifact.Warnings, "PDF was not rotated")
			return artifact, stageError(types.StageReorient, err)
		}
		artifact.Path = rotated
		artifact.Rotated = true
	}

	if job.Output != "" {
		delivered, err := deliver(artifact.Path, job.Output)
		if err != nil {
			return artifact, stageError(types.StageDeliver, err)
		}
		artifact.Path = delivered
	}

	if info, err := pdf.Inspect(artifact.Path); err != nil {
		logger.Warn("failed to inspect output PDF", logger.String("run", runID), logger.Err(err))
	} else {
		artifact.Info = info
	}

	log("pipeline finished",
		logger.String("pdf", artifact.Path),
		logger.Int("attempts", len(result.Attempts)),
		logger.Bool("rotated", artifact.Rotated))
	return artifact, nil
}

func stageError(stage types.Stage, err error) error {
	code := types.ErrInternal
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		code = types.ErrCancelled
	}
	return types.NewStageError(stage, code, err)
}

// deliver copies pdfPath to output. When output is a directory the file
// keeps its name; a file name without extension gets ".pdf".
func deliver(pdfPath, output string) (string, error) {
	dst := output
	switch info, err := os.Stat(output); {
	case err == nil && info.IsDir(), strings.HasSuffix(output, string(filepath.Separator)):
		dst = filepath.Join(output, filepath.Base(pdfPath))
	case filepath.Ext(output) == "":
		dst = output + ".pdf"
	}
	if filepath.Clean(dst) == filepath.Clean(pdfPath) {
		return dst, nil
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to create output directory", err)
	}

	src, err := os.Open(pdfPath)
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to open PDF", err)
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to create output file", err)
	}
	n, err := io.Copy(out, src)
	if err != nil {
		out.Close()
		return "", types.NewAppError(types.ErrInternal, fmt.Sprintf("failed to copy PDF to %s", dst), err)
	}
	if err := out.Close(); err != nil {
		return "", types.NewAppError(types.ErrInternal, "failed to close output file", err)
	}
	logger.Info("PDF delivered", logger.String("path", dst), logger.Int64("bytes", n))
	return dst, nil
}
