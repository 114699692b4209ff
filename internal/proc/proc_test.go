//go:build !windows

package proc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandKillsDescendants(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// sh forks sleep, which inherits the output pipe.
	start := time.Now()
	_, err := Command(ctx, "/bin/sh", "-c", "sleep 6; true").CombinedOutput()
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestCommandRunsToCompletion(t *testing.T) {
	dir := t.TempDir()
	cmd := Command(context.Background(), "/bin/sh", "-c", "echo ok > out.txt")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ok\n", string(data))
}
