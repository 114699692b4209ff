//go:build !windows

package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arxindle/internal/types"
)

// fakeTool writes an executable shell script and returns its path.
func fakeTool(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "faketex")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func texSource(t *testing.T) (dir, texPath string) {
	t.Helper()
	dir = t.TempDir()
	texPath = filepath.Join(dir, "main.tex")
	require.NoError(t, os.WriteFile(texPath, []byte("\\documentclass{article}\n"), 0644))
	return dir, texPath
}

func TestExecEngineCompile(t *testing.T) {
	dir, texPath := texSource(t)
	bin := fakeTool(t, `echo "TEXINPUTS=$TEXINPUTS" > main.log
echo "args: $*" >> main.log
echo "terminal noise"
: > main.pdf`)

	res, err := NewExecEngine(bin, "", time.Minute).Compile(context.Background(), texPath, DefaultFlags)
	require.NoError(t, err)
	assert.Zero(t, res.ExitCode)
	assert.False(t, res.TimedOut)
	assert.Contains(t, res.Log, fmt.Sprintf("TEXINPUTS=.%c%s%c", filepath.ListSeparator, dir, filepath.ListSeparator))
	assert.Contains(t, res.Log, "args: -interaction=nonstopmode -halt-on-error -file-line-error main.tex")
	assert.NotContains(t, res.Log, "terminal noise", "the .log file replaces console output")
	assert.FileExists(t, filepath.Join(dir, "main.pdf"))
}

func TestExecEngineExitCode(t *testing.T) {
	_, texPath := texSource(t)
	bin := fakeTool(t, `echo "./main.tex:3: Undefined control sequence." > main.log
exit 3`)

	res, err := NewExecEngine(bin, "", time.Minute).Compile(context.Background(), texPath, DefaultFlags)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "./main.tex:3: Undefined control sequence.\n", res.Log)
}

func TestExecEngineIgnoresStaleLog(t *testing.T) {
	dir, texPath := texSource(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.log"), []byte("stale run"), 0644))
	bin := fakeTool(t, `echo "! Emergency stop."
exit 1`)

	res, err := NewExecEngine(bin, "", time.Minute).Compile(context.Background(), texPath, DefaultFlags)
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)
	assert.Contains(t, res.Log, "! Emergency stop.")
	assert.NotContains(t, res.Log, "stale run")
}

func TestExecEngineTimeout(t *testing.T) {
	_, texPath := texSource(t)
	// The shell forks sleep, which keeps the output pipes open.
	bin := fakeTool(t, "sleep 6; true")

	start := time.Now()
	res, err := NewExecEngine(bin, "", 300*time.Millisecond).Compile(context.Background(), texPath, DefaultFlags)
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Equal(t, -1, res.ExitCode)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestExecEngineCancelled(t *testing.T) {
	_, texPath := texSource(t)
	bin := fakeTool(t, "sleep 6")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := NewExecEngine(bin, "", time.Minute).Compile(ctx, texPath, DefaultFlags)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestExecEngineMissingTool(t *testing.T) {
	_, texPath := texSource(t)
	engine := NewExecEngine("arxindle-no-such-latex", "", time.Minute)

	_, err := engine.Compile(context.Background(), texPath, DefaultFlags)
	assert.True(t, types.IsCode(err, types.ErrToolUnavailable))
	assert.ErrorIs(t, err, types.ErrToolMissing)
	assert.ErrorIs(t, engine.Check(), types.ErrToolMissing)
}

func TestExecEngineBibTeX(t *testing.T) {
	dir, _ := texSource(t)
	bib := fakeTool(t, `echo "BIBINPUTS=$BIBINPUTS job=$1"`)

	res, err := NewExecEngine("", bib, time.Minute).BibTeX(context.Background(), dir, "main")
	require.NoError(t, err)
	assert.Zero(t, res.ExitCode)
	assert.Contains(t, res.Log, fmt.Sprintf("BIBINPUTS=%s%c job=main", dir, filepath.ListSeparator))
	assert.NoError(t, NewExecEngine("", bib, 0).CheckBibTeX())
}
