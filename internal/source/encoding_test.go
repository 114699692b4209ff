package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEncoding(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"plain ascii", []byte(`\documentclass{article}`), EncodingUTF8},
		{"utf8 with umlaut", []byte("Schr\xc3\xb6dinger"), EncodingUTF8},
		{"utf8 bom", append([]byte{0xEF, 0xBB, 0xBF}, 'a'), EncodingUTF8BOM},
		{"utf16 le", []byte{0xFF, 0xFE, 'a', 0}, EncodingUTF16LE},
		{"utf16 be", []byte{0xFE, 0xFF, 0, 'a'}, EncodingUTF16BE},
		{"latin1", []byte("Schr\xf6dinger"), EncodingLegacy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectEncoding(tt.data))
		})
	}
}

func TestToUTF8(t *testing.T) {
	out, err := ToUTF8([]byte{0xFF, 0xFE, '\\', 0, 'a', 0}, EncodingUTF16LE)
	require.NoError(t, err)
	assert.Equal(t, `\a`, string(out))

	out, err = ToUTF8([]byte{0xFE, 0xFF, 0, 'x'}, EncodingUTF16BE)
	require.NoError(t, err)
	assert.Equal(t, "x", string(out))

	out, err = ToUTF8([]byte{0xEF, 0xBB, 0xBF, 'o', 'k'}, EncodingUTF8BOM)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(out))

	_, err = ToUTF8([]byte("x"), "EBCDIC")
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	dir := t.TempDir()
	bom := filepath.Join(dir, "main.tex")
	require.NoError(t, os.WriteFile(bom, []byte("\xEF\xBB\xBF\\documentclass{article}"), 0644))
	latin := filepath.Join(dir, "old.sty")
	require.NoError(t, os.WriteFile(latin, []byte("caf\xe9"), 0644))

	tree, err := Open(dir)
	require.NoError(t, err)
	fixed, err := tree.Normalize()
	require.NoError(t, err)
	assert.Equal(t, 1, fixed)

	data, err := os.ReadFile(bom)
	require.NoError(t, err)
	assert.Equal(t, `\documentclass{article}`, string(data))

	data, err = os.ReadFile(latin)
	require.NoError(t, err)
	assert.Equal(t, "caf\xe9", string(data), "legacy encodings are left alone")
}
