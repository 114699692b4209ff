//go:build !windows

package orient

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arxindle/internal/types"
)

func TestPdftkTimeoutKillsChildren(t *testing.T) {
	in := samplePDF(t)
	bin := filepath.Join(t.TempDir(), "pdftk")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\nsleep 6; true\n"), 0755))
	rotator := &Pdftk{bin: bin, timeout: 300 * time.Millisecond, exec: defaultExec}

	start := time.Now()
	_, err := Reorient(context.Background(), rotator, in)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrPostProcess))
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestPdftkWithRealExecutor(t *testing.T) {
	in := samplePDF(t)
	bin := filepath.Join(t.TempDir(), "pdftk")
	// Copies argument 1 to the last argument like a pass-through pdftk.
	script := "#!/bin/sh\nin=$1\nfor a; do last=$a; done\ncp \"$in\" \"$last\"\n"
	require.NoError(t, os.WriteFile(bin, []byte(script), 0755))
	rotator := &Pdftk{bin: bin, timeout: time.Minute, exec: defaultExec}

	out, err := Reorient(context.Background(), rotator, in)
	require.NoError(t, err)
	assert.Equal(t, OutputPath(in), out)
	assert.FileExists(t, out)
}
