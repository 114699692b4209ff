// Package compiler drives the external LaTeX engine through a bounded
// retry loop.
//
// Each attempt is classified into Success, Retryable(fix) or Fatal. A
// retryable outcome applies its fix to the source tree and runs again until
// the attempt budget is spent. After the first success the document is
// compiled a few more times (with BibTeX when needed) so cross references
// settle.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"arxindle/internal/logger"
	"arxindle/internal/types"
)

const (
	// DefaultMaxAttempts bounds the retry loop.
	DefaultMaxAttempts = 5
	// DefaultMinPasses is the number of engine runs on a clean document.
	DefaultMinPasses = 2
	// bibPasses is the number of engine runs when BibTeX ran.
	bibPasses = 3
	// logTailLines is how much of the last log an error carries.
	logTailLines = 20
)

var (
	// DefaultFlags make the first attempts stop at the first error.
	DefaultFlags = []string{"-interaction=nonstopmode", "-halt-on-error", "-file-line-error"}
	// ForcedFlags push the engine past every error without prompting.
	ForcedFlags = []string{"-interaction=batchmode", "-file-line-error"}

	// bannerRe matches the engine banner, which carries a timestamp.
	bannerRe = regexp.MustCompile(`(?m)^This is .*TeX.*$`)
)

// Driver runs the compile state machine.
type Driver struct {
	engine      Engine
	maxAttempts int
	minPasses   int
}

// Option configures a Driver.
type Option func(*Driver)

// WithMaxAttempts sets the attempt budget. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(d *Driver) {
		if n >= 1 {
			d.maxAttempts = n
		}
	}
}

// WithMinPasses sets the number of engine runs after the first success,
// that run included. Values below 1 are ignored.
func WithMinPasses(n int) Option {
	return func(d *Driver) {
		if n >= 1 {
			d.minPasses = n
		}
	}
}

// NewDriver creates a Driver around engine.
func NewDriver(engine Engine, opts ...Option) *Driver {
	d := &Driver{
		engine:      engine,
		maxAttempts: DefaultMaxAttempts,
		minPasses:   DefaultMinPasses,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Compile runs the loop for root, a document inside the source tree dir.
// The returned result is never nil; err is non-nil exactly when the result
// is Failed.
func (d *Driver) Compile(ctx context.Context, dir, root string) (*types.CompileResult, error) {
	base := strings.TrimSuffix(filepath.Base(root), filepath.Ext(root))
	rootDir := filepath.Dir(root)
	pdfPath := filepath.Join(rootDir, base+".pdf")

	result := &types.CompileResult{}
	flags := DefaultFlags
	forced := false
	prevLog := ""

	logger.Info("starting compile loop",
		logger.String("root", filepath.Base(root)),
		logger.Int("maxAttempts", d.maxAttempts))

	for i := 1; i <= d.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return d.fail(result, types.FailureCancelled, "cancelled before attempt "+fmt.Sprint(i), err)
		}

		// A PDF left by an earlier attempt must not count as output.
		_ = os.Remove(pdfPath)

		run, err := d.engine.Compile(ctx, root, flags)
		if err != nil {
			if ctx.Err() != nil {
				return d.fail(result, types.FailureCancelled, "cancelled during attempt "+fmt.Sprint(i), ctx.Err())
			}
			result.Status = types.CompileFailed
			return result, types.NewStageError(types.StageCompile, types.ErrInternal, err)
		}

		outcome := Classify(Evidence{
			Log:        run.Log,
			ExitCode:   run.ExitCode,
			TimedOut:   run.TimedOut,
			PDFPresent: fileExists(pdfPath),
			Forced:     forced,
		})
		result.Attempts = append(result.Attempts, types.CompileAttempt{
			Index:    i,
			Flags:    append([]string(nil), flags...),
			ExitCode: run.ExitCode,
			TimedOut: run.TimedOut,
			Outcome:  outcome,
			Duration: run.Duration,
			Log:      run.Log,
		})
		result.LastLog = run.Log

		logger.Info("compile attempt finished",
			logger.Int("attempt", i),
			logger.Int("exitCode", run.ExitCode),
			logger.String("outcome", outcome.String()),
			logger.Duration("duration", run.Duration))

		switch outcome.Kind {
		case types.OutcomeSuccess:
			return d.settle(ctx, result, root, flags, pdfPath)
		case types.OutcomeFatal:
			return d.fail(result, types.FailureFatal, outcome.Reason, nil)
		}

		if i > 1 && sameLog(prevLog, run.Log) {
			return d.fail(result, types.FailureNoProgress, "identical log on consecutive attempts", nil)
		}
		prevLog = run.Log

		switch outcome.Fix {
		case types.FixStripOrSkip:
			desc, err := StripOrSkip(dir, root, outcome.Missing)
			if err != nil {
				result.Status = types.CompileFailed
				return result, types.NewStageError(types.StageCompile, types.ErrInternal, err)
			}
			if desc == "" {
				return d.fail(result, types.FailureFatal, "cannot remove reference to missing file "+outcome.Missing, nil)
			}
			logger.Info("applied fix before retry", logger.String("fix", desc))
		case types.FixForceContinue:
			forced = true
			flags = ForcedFlags
			logger.Info("retrying in batch mode", logger.String("reason", outcome.Reason))
		}
	}

	return d.fail(result, types.FailureAttemptsExhausted,
		fmt.Sprintf("no success within %d attempts", d.maxAttempts), nil)
}

// settle runs BibTeX when the document cites, then extra passes so
// references stabilize. Intermediate logs are dropped.
func (d *Driver) settle(ctx context.Context, result *types.CompileResult, root string, flags []string, pdfPath string) (*types.CompileResult, error) {
	rootDir := filepath.Dir(root)
	base := strings.TrimSuffix(filepath.Base(pdfPath), ".pdf")
	passes := d.minPasses

	if needsBibtex(filepath.Join(rootDir, base+".aux"), rootDir) {
		if _, err := d.engine.BibTeX(ctx, rootDir, base); err != nil {
			logger.Warn("bibtex failed, references may be incomplete", logger.Err(err))
		} else if passes < bibPasses {
			passes = bibPasses
		}
	}

	result.Passes = 1
	for result.Passes < passes {
		if err := ctx.Err(); err != nil {
			return d.fail(result, types.FailureCancelled, "cancelled between passes", err)
		}
		run, err := d.engine.Compile(ctx, root, flags)
		if err != nil {
			if ctx.Err() != nil {
				return d.fail(result, types.FailureCancelled, "cancelled during pass", ctx.Err())
			}
			result.Status = types.CompileFailed
			return result, types.NewStageError(types.StageCompile, types.ErrInternal, err)
		}
		result.Passes++
		result.LastLog = run.Log
	}

	if !fileExists(pdfPath) {
		return d.fail(result, types.FailureFatal, "PDF disappeared during extra passes", nil)
	}

	result.Status = types.CompileSucceeded
	result.PDFPath = pdfPath
	logger.Info("compilation succeeded",
		logger.String("pdf", pdfPath),
		logger.Int("attempts", len(result.Attempts)),
		logger.Int("passes", result.Passes))
	return result, nil
}

func (d *Driver) fail(result *types.CompileResult, reason types.FailureReason, detail string, cause error) (*types.CompileResult, error) {
	result.Status = types.CompileFailed
	result.Reason = reason
	result.Detail = detail

	code := types.ErrCompileFatal
	switch reason {
	case types.FailureAttemptsExhausted:
		code = types.ErrAttemptsExhausted
	case types.FailureNoProgress:
		code = types.ErrProgressStall
	case types.FailureCancelled:
		code = types.ErrCancelled
	}

	logger.Warn("compilation failed",
		logger.String("reason", string(reason)),
		logger.String("detail", detail),
		logger.Int("attempts", len(result.Attempts)))

	return result, &types.AppError{
		Code:     code,
		Stage:    types.StageCompile,
		Message:  "compilation failed",
		Details:  detail,
		Attempts: len(result.Attempts),
		LogTail:  types.TailLines(result.LastLog, logTailLines),
		Cause:    cause,
	}
}

// needsBibtex checks the .aux for citations and the directory for .bib files.
func needsBibtex(auxPath, dir string) bool {
	if aux, err := os.ReadFile(auxPath); err == nil {
		s := string(aux)
		if strings.Contains(s, `\citation{`) || strings.Contains(s, `\bibdata{`) {
			return true
		}
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.bib"))
	return len(matches) > 0
}

// sameLog compares two logs, ignoring the timestamped engine banner.
func sameLog(a, b string) bool {
	return bannerRe.ReplaceAllString(a, "") == bannerRe.ReplaceAllString(b, "")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
