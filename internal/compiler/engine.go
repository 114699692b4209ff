package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"arxindle/internal/logger"
	"arxindle/internal/proc"
	"arxindle/internal/types"
)

const (
	// CompilerPDFLaTeX is the pdflatex compiler
	CompilerPDFLaTeX = "pdflatex"
	// CompilerXeLaTeX is the xelatex compiler
	CompilerXeLaTeX = "xelatex"
	// CompilerLuaLaTeX is the lualatex compiler
	CompilerLuaLaTeX = "lualatex"
)

// DefaultTimeout is the default compilation timeout
const DefaultTimeout = 5 * time.Minute

// bibtexTimeout bounds a single bibtex run.
const bibtexTimeout = 2 * time.Minute

// RunResult is the raw outcome of one engine invocation.
type RunResult struct {
	ExitCode int
	Log      string
	TimedOut bool
	Duration time.Duration
}

// Engine runs the external tools. Implementations must honour ctx.
type Engine interface {
	// Compile runs the LaTeX engine on texPath from its own directory.
	Compile(ctx context.Context, texPath string, flags []string) (*RunResult, error)
	// BibTeX runs bibtex for the job base in dir.
	BibTeX(ctx context.Context, dir, base string) (*RunResult, error)
}

// ExecEngine runs a real TeX installation through os/exec.
type ExecEngine struct {
	compiler string
	bibtex   string
	timeout  time.Duration
}

// NewExecEngine creates an ExecEngine. Empty values fall back to pdflatex,
// bibtex and DefaultTimeout.
func NewExecEngine(compiler, bibtex string, timeout time.Duration) *ExecEngine {
	if compiler == "" {
		compiler = CompilerPDFLaTeX
	}
	if bibtex == "" {
		bibtex = "bibtex"
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &ExecEngine{
		compiler: compiler,
		bibtex:   bibtex,
		timeout:  timeout,
	}
}

// Compiler returns the engine binary name.
func (e *ExecEngine) Compiler() string {
	return e.compiler
}

// Check verifies that the compiler binary is installed.
func (e *ExecEngine) Check() error {
	return lookPath(e.compiler)
}

// CheckBibTeX verifies that the bibtex binary is installed.
func (e *ExecEngine) CheckBibTeX() error {
	return lookPath(e.bibtex)
}

// Compile implements Engine.
func (e *ExecEngine) Compile(ctx context.Context, texPath string, flags []string) (*RunResult, error) {
	if err := lookPath(e.compiler); err != nil {
		return nil, err
	}
	texDir := filepath.Dir(texPath)
	texFile := filepath.Base(texPath)
	logPath := filepath.Join(texDir, strings.TrimSuffix(texFile, filepath.Ext(texFile))+".log")

	// A stale log would hide what this run printed in batch mode.
	_ = os.Remove(logPath)

	args := append(append([]string{}, flags...), texFile)
	// The trailing separator keeps the default search path.
	texInputs := fmt.Sprintf("TEXINPUTS=.%c%s%c", filepath.ListSeparator, texDir, filepath.ListSeparator)

	res, err := e.run(ctx, e.timeout, texDir, []string{texInputs}, e.compiler, args...)
	if err != nil {
		return nil, err
	}
	// The .log file holds everything TeX printed, also in batch mode.
	if data, readErr := os.ReadFile(logPath); readErr == nil {
		res.Log = string(data)
	}
	return res, nil
}

// BibTeX implements Engine.
func (e *ExecEngine) BibTeX(ctx context.Context, dir, base string) (*RunResult, error) {
	if err := lookPath(e.bibtex); err != nil {
		return nil, err
	}
	sep := string(filepath.ListSeparator)
	env := []string{
		"BIBINPUTS=" + dir + sep,
		"BSTINPUTS=" + dir + sep,
	}
	return e.run(ctx, bibtexTimeout, dir, env, e.bibtex, base)
}

func (e *ExecEngine) run(ctx context.Context, timeout time.Duration, dir string, env []string, name string, args ...string) (*RunResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := proc.Command(runCtx, name, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("running external tool",
		logger.String("tool", name),
		logger.Strings("args", args),
		logger.String("dir", dir))

	start := time.Now()
	err := cmd.Run()
	res := &RunResult{
		Log:      combineOutput(stdout.String(), stderr.String()),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ExitCode = -1
		logger.Warn("external tool timed out", logger.String("tool", name), logger.Duration("timeout", timeout))
		return res, nil
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		return nil, types.NewAppError(types.ErrInternal, "failed to run "+name, err)
	}
	return res, nil
}

func lookPath(tool string) error {
	if _, err := exec.LookPath(tool); err != nil {
		return types.NewAppErrorWithDetails(types.ErrToolUnavailable,
			"external tool not found", tool, fmt.Errorf("%w: %v", types.ErrToolMissing, err))
	}
	return nil
}

// combineOutput combines stdout and stderr into a single log string
func combineOutput(stdout, stderr string) string {
	var parts []string
	if stdout != "" {
		parts = append(parts, stdout)
	}
	if stderr != "" {
		parts = append(parts, stderr)
	}
	return strings.Join(parts, "\n")
}
