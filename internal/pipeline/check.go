package pipeline

import (
	"context"
	"os"
	"path/filepath"

	"arxindle/internal/compiler"
	"arxindle/internal/orient"
	"arxindle/internal/pdf"
	"arxindle/internal/types"
)

// CheckResult is the outcome of one preflight probe.
type CheckResult struct {
	Name   string `yaml:"name"`
	OK     bool   `yaml:"ok"`
	Detail string `yaml:"detail,omitempty"`
	// Required checks fail the run; the others only degrade features.
	Required bool `yaml:"required"`
}

// Preflight probes the external tools named in cfg.
func Preflight(ctx context.Context, cfg *types.Config) []CheckResult {
	engine := compiler.NewExecEngine(cfg.Compiler, cfg.BibTeX, cfg.CompileTimeout)
	results := []CheckResult{
		probe("compiler "+engine.Compiler(), true, engine.Check()),
		probe("bibtex", false, engine.CheckBibTeX()),
	}

	rotator, err := orient.New(cfg.RotateTool, cfg.RotateTimeout)
	if err != nil {
		return append(results, probe("rotate tool", cfg.Landscape, err))
	}
	name := "rotate " + rotator.Name()
	if err := rotator.Available(); err != nil {
		return append(results, probe(name, cfg.Landscape, err))
	}
	return append(results, probe(name, cfg.Landscape, sampleRotation(ctx, rotator)))
}

// Passed reports whether every required check succeeded.
func Passed(results []CheckResult) bool {
	for _, r := range results {
		if r.Required && !r.OK {
			return false
		}
	}
	return true
}

func probe(name string, required bool, err error) CheckResult {
	r := CheckResult{Name: name, OK: err == nil, Required: required}
	if err != nil {
		r.Detail = err.Error()
	}
	return r
}

// sampleRotation rotates a generated two page PDF and checks the result.
func sampleRotation(ctx context.Context, r orient.Rotator) error {
	dir, err := os.MkdirTemp("", "arxindle-check-")
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to create temp dir", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "sample.pdf")
	if err := os.WriteFile(in, pdf.Sample(2, 432, 288), 0644); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to write sample PDF", err)
	}
	out, err := orient.Reorient(ctx, r, in)
	if err != nil {
		return err
	}
	n, err := pdf.PageCount(out)
	if err != nil {
		return err
	}
	if n != 2 {
		return types.NewAppErrorWithDetails(types.ErrPostProcess, "rotated sample lost pages", r.Name(), nil)
	}
	return nil
}
