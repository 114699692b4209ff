package source

import (
	"bytes"
	"fmt"
	"os"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"arxindle/internal/logger"
)

// Encoding names reported by DetectEncoding.
const (
	EncodingUTF8    = "UTF-8"
	EncodingUTF8BOM = "UTF-8-BOM"
	EncodingUTF16LE = "UTF-16LE"
	EncodingUTF16BE = "UTF-16BE"
	// EncodingLegacy is any non-UTF-8 8-bit encoding (latin1, cp1252, ...).
	// Such files are left untouched because their inputenc declaration
	// depends on the original bytes.
	EncodingLegacy = "LEGACY"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectEncoding classifies raw file content.
func DetectEncoding(data []byte) string {
	switch {
	case bytes.HasPrefix(data, utf8BOM):
		return EncodingUTF8BOM
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return EncodingUTF16LE
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return EncodingUTF16BE
	case utf8.Valid(data):
		return EncodingUTF8
	}
	return EncodingLegacy
}

// ToUTF8 converts content in the given encoding to UTF-8 without BOM.
func ToUTF8(data []byte, enc string) ([]byte, error) {
	switch enc {
	case EncodingUTF8, EncodingLegacy:
		return data, nil
	case EncodingUTF8BOM:
		return data[len(utf8BOM):], nil
	case EncodingUTF16LE:
		return decode(data, unicode.UTF16(unicode.LittleEndian, unicode.UseBOM))
	case EncodingUTF16BE:
		return decode(data, unicode.UTF16(unicode.BigEndian, unicode.UseBOM))
	}
	return nil, fmt.Errorf("unsupported source encoding: %s", enc)
}

func decode(data []byte, enc encoding.Encoding) ([]byte, error) {
	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	return out, err
}

// NormalizeFile rewrites path as UTF-8 without BOM when it is BOM-prefixed
// or UTF-16. It reports whether the file changed.
func NormalizeFile(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("failed to read file: %w", err)
	}

	enc := DetectEncoding(data)
	if enc == EncodingUTF8 || enc == EncodingLegacy {
		return false, nil
	}

	converted, err := ToUTF8(data, enc)
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, converted, 0644); err != nil {
		return false, fmt.Errorf("failed to write file: %w", err)
	}
	logger.Info("normalized file encoding", logger.String("file", path), logger.String("from", enc))
	return true, nil
}

// Normalize applies NormalizeFile to every .tex, .sty and .cls file.
func (t *Tree) Normalize() (int, error) {
	tex, err := t.TexFiles()
	if err != nil {
		return 0, err
	}
	styles, err := t.StyleFiles()
	if err != nil {
		return 0, err
	}

	fixed := 0
	for _, f := range append(tex, styles...) {
		changed, err := NormalizeFile(f)
		if err != nil {
			logger.Warn("failed to normalize encoding", logger.String("file", f), logger.Err(err))
			continue
		}
		if changed {
			fixed++
		}
	}
	return fixed, nil
}
