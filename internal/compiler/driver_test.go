package compiler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arxindle/internal/types"
)

// step scripts one fake engine invocation.
type step struct {
	exit     int
	log      string
	pdf      bool
	timedOut bool
	err      error
}

// fakeEngine replays steps; the last step repeats once the script runs out.
type fakeEngine struct {
	steps   []step
	calls   int
	flags   [][]string
	bibtex  int
	onCall  func(call int)
	bibErr  error
	sources []string
}

func (f *fakeEngine) Compile(_ context.Context, texPath string, flags []string) (*RunResult, error) {
	f.calls++
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	f.flags = append(f.flags, flags)
	if data, err := os.ReadFile(texPath); err == nil {
		f.sources = append(f.sources, string(data))
	}

	s := f.steps[len(f.steps)-1]
	if f.calls <= len(f.steps) {
		s = f.steps[f.calls-1]
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.pdf {
		pdf := strings.TrimSuffix(texPath, filepath.Ext(texPath)) + ".pdf"
		if err := os.WriteFile(pdf, []byte("%PDF-1.4\n"), 0644); err != nil {
			return nil, err
		}
	}
	return &RunResult{ExitCode: s.exit, Log: s.log, TimedOut: s.timedOut}, nil
}

func (f *fakeEngine) BibTeX(_ context.Context, _, _ string) (*RunResult, error) {
	f.bibtex++
	if f.bibErr != nil {
		return nil, f.bibErr
	}
	return &RunResult{}, nil
}

var success = step{log: "Output written on main.pdf (1 page).", pdf: true}

func newTree(t *testing.T, root string, extra map[string]string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "main.tex")
	require.NoError(t, os.WriteFile(path, []byte(root), 0644))
	for name, content := range extra {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir, path
}

const simpleDoc = "\\documentclass{article}\n\\begin{document}\nHi\n\\end{document}\n"

func TestCompileCleanDocument(t *testing.T) {
	dir, root := newTree(t, simpleDoc, nil)
	engine := &fakeEngine{steps: []step{success}}

	result, err := NewDriver(engine).Compile(context.Background(), dir, root)
	require.NoError(t, err)
	assert.True(t, result.Succeeded())
	assert.Equal(t, filepath.Join(dir, "main.pdf"), result.PDFPath)
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, DefaultMinPasses, result.Passes)
	assert.Equal(t, DefaultMinPasses, engine.calls)
	assert.Zero(t, engine.bibtex)
	assert.Equal(t, DefaultFlags, engine.flags[0])
}

func TestCompileRunsBibtex(t *testing.T) {
	dir, root := newTree(t, simpleDoc, map[string]string{"refs.bib": "@article{a,}"})
	engine := &fakeEngine{steps: []step{success}}

	result, err := NewDriver(engine).Compile(context.Background(), dir, root)
	require.NoError(t, err)
	assert.Equal(t, 1, engine.bibtex)
	assert.Equal(t, 3, result.Passes)
	assert.Len(t, result.Attempts, 1, "extra passes are not attempts")
}

func TestCompileCitationsInAux(t *testing.T) {
	dir, root := newTree(t, simpleDoc, nil)
	engine := &fakeEngine{steps: []step{success}}
	engine.onCall = func(call int) {
		if call == 1 {
			_ = os.WriteFile(filepath.Join(dir, "main.aux"), []byte("\\citation{knuth}\n"), 0644)
		}
	}

	result, err := NewDriver(engine, WithMinPasses(1)).Compile(context.Background(), dir, root)
	require.NoError(t, err)
	assert.Equal(t, 1, engine.bibtex)
	assert.Equal(t, 3, result.Passes)
}

func TestCompileBibtexFailureIsNotFatal(t *testing.T) {
	dir, root := newTree(t, simpleDoc, map[string]string{"refs.bib": ""})
	engine := &fakeEngine{steps: []step{success}, bibErr: errors.New("bibtex missing")}

	result, err := NewDriver(engine).Compile(context.Background(), dir, root)
	require.NoError(t, err)
	assert.Equal(t, DefaultMinPasses, result.Passes)
}

func TestCompileMissingClass(t *testing.T) {
	dir, root := newTree(t, "\\documentclass[conference]{IEEEtran}\n\\begin{document}\n\\end{document}\n", nil)
	engine := &fakeEngine{steps: []step{
		{exit: 1, log: "! LaTeX Error: File 'ieeetran.cls' not found."},
		success,
	}}

	result, err := NewDriver(engine).Compile(context.Background(), dir, root)
	require.NoError(t, err)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, types.FixStripOrSkip, result.Attempts[0].Outcome.Fix)
	assert.Equal(t, types.OutcomeSuccess, result.Attempts[1].Outcome.Kind)
	assert.Contains(t, engine.sources[1], "\\documentclass[conference]{article}")
}

func TestCompileMissingPackage(t *testing.T) {
	doc := "\\documentclass{article}\n\\usepackage{amsmath,fancyx}\n\\begin{document}\n\\end{document}\n"
	dir, root := newTree(t, doc, nil)
	engine := &fakeEngine{steps: []step{
		{exit: 1, log: "! LaTeX Error: File `fancyx.sty' not found."},
		success,
	}}

	result, err := NewDriver(engine).Compile(context.Background(), dir, root)
	require.NoError(t, err)
	assert.Len(t, result.Attempts, 2)
	assert.Contains(t, engine.sources[1], "\\usepackage{amsmath}\n")
}

func TestCompileFatalStopsAfterOneAttempt(t *testing.T) {
	dir, root := newTree(t, simpleDoc, nil)
	engine := &fakeEngine{steps: []step{{exit: 1, log: "./main.tex:3: Undefined control sequence."}}}

	result, err := NewDriver(engine, WithMaxAttempts(5)).Compile(context.Background(), dir, root)
	require.Error(t, err)
	assert.Equal(t, types.CompileFailed, result.Status)
	assert.Equal(t, types.FailureFatal, result.Reason)
	assert.Len(t, result.Attempts, 1)
	assert.Equal(t, 1, engine.calls)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCompileFatal, appErr.Code)
	assert.Equal(t, types.StageCompile, appErr.Stage)
	assert.Equal(t, 1, appErr.Attempts)
	assert.Contains(t, appErr.LogTail, "Undefined control sequence")
}

func TestCompileNoProgress(t *testing.T) {
	dir, root := newTree(t, "\\documentclass{article}\n\\usepackage{fancyx}\n\\begin{document}\n\\end{document}\n", nil)
	log := "This is pdfTeX, Version 3.14 %d\n! LaTeX Error: File `fancyx.sty' not found."
	calls := 0
	engine := &fakeEngine{steps: []step{{exit: 1}}}
	engine.onCall = func(int) {
		calls++
		engine.steps[0].log = fmt.Sprintf(log, calls)
	}

	result, err := NewDriver(engine).Compile(context.Background(), dir, root)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrProgressStall))
	assert.Equal(t, types.FailureNoProgress, result.Reason)
	assert.Len(t, result.Attempts, 2)
}

func TestCompileForceContinue(t *testing.T) {
	dir, root := newTree(t, simpleDoc, nil)
	engine := &fakeEngine{steps: []step{
		{exit: 1, log: "Overfull \\hbox"},
		{exit: 1, log: "./main.tex:9: Missing number.", pdf: true},
	}}

	result, err := NewDriver(engine, WithMinPasses(1)).Compile(context.Background(), dir, root)
	require.NoError(t, err)
	assert.Len(t, result.Attempts, 2)
	assert.Equal(t, types.FixForceContinue, result.Attempts[0].Outcome.Fix)
	assert.Equal(t, ForcedFlags, engine.flags[1])
	assert.NotContains(t, engine.flags[1], "-halt-on-error")
}

func TestCompileTimeoutThenFatal(t *testing.T) {
	dir, root := newTree(t, simpleDoc, nil)
	engine := &fakeEngine{steps: []step{
		{exit: -1, log: "(./main.tex", timedOut: true},
		{exit: -1, log: "(./main.tex [1]", timedOut: true},
	}}

	result, err := NewDriver(engine).Compile(context.Background(), dir, root)
	require.Error(t, err)
	assert.Equal(t, types.FailureFatal, result.Reason)
	assert.Len(t, result.Attempts, 2)
	assert.Equal(t, types.FixForceContinue, result.Attempts[0].Outcome.Fix)
	assert.Equal(t, types.OutcomeFatal, result.Attempts[1].Outcome.Kind)
}

func TestCompileTerminatesWithinBudget(t *testing.T) {
	var pkgs []string
	for i := 0; i < 10; i++ {
		pkgs = append(pkgs, fmt.Sprintf("\\usepackage{pkg%d}\n", i))
	}
	doc := "\\documentclass{article}\n" + strings.Join(pkgs, "") + "\\begin{document}\n\\end{document}\n"
	dir, root := newTree(t, doc, nil)

	engine := &fakeEngine{steps: []step{{exit: 1}}}
	engine.onCall = func(call int) {
		engine.steps[0].log = fmt.Sprintf("! LaTeX Error: File `pkg%d.sty' not found.", call-1)
	}

	result, err := NewDriver(engine, WithMaxAttempts(5)).Compile(context.Background(), dir, root)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrAttemptsExhausted))
	assert.Equal(t, types.FailureAttemptsExhausted, result.Reason)
	assert.Len(t, result.Attempts, 5)
	assert.Equal(t, 5, engine.calls)
}

func TestCompileUnfixableMissingFile(t *testing.T) {
	dir, root := newTree(t, simpleDoc, nil)
	engine := &fakeEngine{steps: []step{{exit: 1, log: "! LaTeX Error: File `ghost.sty' not found."}}}

	result, err := NewDriver(engine).Compile(context.Background(), dir, root)
	require.Error(t, err)
	assert.Equal(t, types.FailureFatal, result.Reason)
	assert.Contains(t, result.Detail, "ghost.sty")
	assert.Len(t, result.Attempts, 1)
}

func TestCompileCancelled(t *testing.T) {
	dir, root := newTree(t, simpleDoc, nil)
	engine := &fakeEngine{steps: []step{success}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := NewDriver(engine).Compile(ctx, dir, root)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCancelled))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.FailureCancelled, result.Reason)
	assert.Zero(t, engine.calls)
}

func TestCompileToolUnavailable(t *testing.T) {
	dir, root := newTree(t, simpleDoc, nil)
	missing := types.NewAppError(types.ErrToolUnavailable, "external tool not found", types.ErrToolMissing)
	engine := &fakeEngine{steps: []step{{err: missing}}}

	result, err := NewDriver(engine).Compile(context.Background(), dir, root)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrToolUnavailable))
	assert.ErrorIs(t, err, types.ErrToolMissing)
	assert.Equal(t, types.CompileFailed, result.Status)
}

func TestSameLog(t *testing.T) {
	a := "This is pdfTeX, Version 3.141592653 (TeX Live 2023) 19 OCT 2026 10:31\n! error"
	b := "This is pdfTeX, Version 3.141592653 (TeX Live 2023) 19 OCT 2026 10:32\n! error"
	assert.True(t, sameLog(a, b))
	assert.False(t, sameLog(a, "! other"))
}
