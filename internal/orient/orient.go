// Package orient rotates a compiled PDF for landscape reading.
//
// The compiler already laid the pages out at swapped width and height, so
// only the presentation changes: every page is turned by 90 degrees
// clockwise.
package orient

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"arxindle/internal/logger"
	"arxindle/internal/proc"
	"arxindle/internal/types"
)

const (
	// ToolPdftk rotates through the external pdftk binary.
	ToolPdftk = "pdftk"
	// ToolPDFCPU rotates in process.
	ToolPDFCPU = "pdfcpu"

	// DefaultTimeout bounds one external rotation.
	DefaultTimeout = time.Minute

	suffix = "-landscape"
)

// Rotator turns every page of in by 90 degrees and writes out.
type Rotator interface {
	// Name returns the tool name.
	Name() string
	// Available reports an error when the rotator cannot run on this system.
	Available() error
	Rotate(ctx context.Context, in, out string) error
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return proc.Command(ctx, name, args...).CombinedOutput()
}

var defaultExec = &osExecutor{}

// New returns the rotator for tool.
func New(tool string, timeout time.Duration) (Rotator, error) {
	switch tool {
	case "", ToolPdftk:
		return NewPdftk(timeout), nil
	case ToolPDFCPU:
		return NewPDFCPU(), nil
	}
	return nil, types.NewAppErrorWithDetails(types.ErrConfig, "unknown rotate tool", tool, nil)
}

// Pdftk rotates with `pdftk in cat 1-endeast output out`.
type Pdftk struct {
	bin     string
	timeout time.Duration
	exec    executor
}

// NewPdftk creates a pdftk rotator. A zero timeout means DefaultTimeout.
func NewPdftk(timeout time.Duration) *Pdftk {
	return newPdftk(defaultExec, timeout)
}

func newPdftk(exec executor, timeout time.Duration) *Pdftk {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Pdftk{bin: ToolPdftk, timeout: timeout, exec: exec}
}

func (p *Pdftk) Name() string { return p.bin }

func (p *Pdftk) Available() error {
	if _, err := p.exec.LookPath(p.bin); err != nil {
		return types.NewAppErrorWithDetails(types.ErrToolUnavailable, "external tool not found", p.bin,
			fmt.Errorf("%w: %v", types.ErrToolMissing, err))
	}
	return nil
}

func (p *Pdftk) Rotate(ctx context.Context, in, out string) error {
	if err := p.Available(); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	output, err := p.exec.Run(runCtx, p.bin, in, "cat", "1-endeast", "output", out)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return types.NewAppErrorWithDetails(types.ErrPostProcess, "pdftk timed out", p.timeout.String(), runCtx.Err())
	}
	if err != nil {
		return types.NewAppErrorWithDetails(types.ErrPostProcess, "pdftk failed",
			strings.TrimSpace(types.TailLines(string(output), 5)), err)
	}
	return nil
}

// PDFCPU rotates in process with pdfcpu. It is always available.
type PDFCPU struct {
	conf *model.Configuration
}

// NewPDFCPU creates a pdfcpu rotator.
func NewPDFCPU() *PDFCPU {
	return &PDFCPU{conf: model.NewDefaultConfiguration()}
}

func (p *PDFCPU) Name() string { return ToolPDFCPU }

func (p *PDFCPU) Available() error { return nil }

func (p *PDFCPU) Rotate(ctx context.Context, in, out string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := api.RotateFile(in, out, 90, nil, p.conf); err != nil {
		return types.NewAppError(types.ErrPostProcess, "pdfcpu rotation failed", err)
	}
	return nil
}

// OutputPath returns where the landscape copy of pdfPath is written.
func OutputPath(pdfPath string) string {
	ext := filepath.Ext(pdfPath)
	return strings.TrimSuffix(pdfPath, ext) + suffix + ext
}

// Reorient rotates pdfPath with r and returns the path of the rotated copy.
// Every failure, a missing tool included, is reported as a post-process
// error whose cause keeps the underlying code.
func Reorient(ctx context.Context, r Rotator, pdfPath string) (string, error) {
	out := OutputPath(pdfPath)
	logger.Info("rotating PDF", logger.String("tool", r.Name()), logger.String("pdf", filepath.Base(pdfPath)))

	if err := r.Rotate(ctx, pdfPath, out); err != nil {
		_ = os.Remove(out)
		if ctx.Err() != nil {
			return "", types.NewAppError(types.ErrCancelled, "rotation cancelled", err)
		}
		if types.IsCode(err, types.ErrPostProcess) {
			return "", err
		}
		return "", types.NewAppErrorWithDetails(types.ErrPostProcess, "rotation failed", err.Error(), err)
	}

	if info, err := os.Stat(out); err != nil || info.Size() == 0 {
		return "", types.NewAppErrorWithDetails(types.ErrPostProcess, "rotation produced no output", r.Name(), err)
	}
	logger.Info("PDF rotated", logger.String("output", filepath.Base(out)))
	return out, nil
}
