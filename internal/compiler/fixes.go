package compiler

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"arxindle/internal/logger"
	"arxindle/internal/rewriter"
	"arxindle/internal/source"
	"arxindle/internal/types"
)

// FallbackClass replaces a document class that is not installed.
const FallbackClass = "article"

// placeholder stands in for a missing image.
const placeholder = `\framebox[0.8\textwidth]{\centering missing figure}`

var graphicExts = map[string]bool{
	".pdf": true, ".png": true, ".jpg": true, ".jpeg": true,
	".eps": true, ".ps": true, ".svg": true, ".gif": true,
}

// StripOrSkip removes the construct that loads the missing file. It
// returns a short description of what changed, or "" when nothing in the
// tree references the file any more.
func StripOrSkip(dir, root, missing string) (string, error) {
	tree, err := source.Open(dir)
	if err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(missing))
	stem := strings.TrimSuffix(missing, filepath.Ext(missing))

	switch {
	case ext == ".sty":
		return stripPackage(tree, filepath.Base(stem))
	case ext == ".cls":
		return swapClass(root)
	case graphicExts[ext]:
		return placeholderFor(tree, stem)
	case ext == ".tex":
		return skipInput(tree, stem)
	case ext == "":
		// Unqualified names are either \input targets or images.
		if desc, err := skipInput(tree, stem); desc != "" || err != nil {
			return desc, err
		}
		return placeholderFor(tree, stem)
	}
	return "", nil
}

func stripPackage(tree *source.Tree, name string) (string, error) {
	files, err := sourceFiles(tree)
	if err != nil {
		return "", err
	}
	return editFiles(files, "removed package "+name, func(content string) string {
		out, _ := rewriter.RemovePackage(content, name)
		return out
	})
}

func swapClass(root string) (string, error) {
	return editFiles([]string{root}, "swapped class for "+FallbackClass, func(content string) string {
		out, _ := rewriter.SwapClass(content, FallbackClass)
		return out
	})
}

func placeholderFor(tree *source.Tree, stem string) (string, error) {
	re := regexp.MustCompile(`\\includegraphics\s*(?:\[[^\]]*\])?\s*\{\s*` + regexp.QuoteMeta(stem) + `(?:\.[A-Za-z0-9]+)?\s*\}`)
	files, err := tree.TexFiles()
	if err != nil {
		return "", err
	}
	return editFiles(files, "replaced figure "+stem, func(content string) string {
		return re.ReplaceAllLiteralString(content, placeholder)
	})
}

func skipInput(tree *source.Tree, stem string) (string, error) {
	re := regexp.MustCompile(`\\(?:input|include)\s*\{\s*` + regexp.QuoteMeta(stem) + `(?:\.tex)?\s*\}`)
	files, err := tree.TexFiles()
	if err != nil {
		return "", err
	}
	return editFiles(files, "skipped input "+stem, func(content string) string {
		return re.ReplaceAllString(content, "% arxindle: skipped missing input")
	})
}

func sourceFiles(tree *source.Tree) ([]string, error) {
	tex, err := tree.TexFiles()
	if err != nil {
		return nil, err
	}
	styles, err := tree.StyleFiles()
	if err != nil {
		return nil, err
	}
	return append(tex, styles...), nil
}

// editFiles applies edit to every file and writes back the changed ones.
func editFiles(files []string, desc string, edit func(string) string) (string, error) {
	changed := 0
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return "", types.NewAppError(types.ErrInternal, "failed to read "+filepath.Base(f), err)
		}
		out := edit(string(data))
		if out == string(data) {
			continue
		}
		if err := os.WriteFile(f, []byte(out), 0644); err != nil {
			return "", types.NewAppError(types.ErrInternal, "failed to write "+filepath.Base(f), err)
		}
		logger.Debug("applied fix", logger.String("file", filepath.Base(f)), logger.String("fix", desc))
		changed++
	}
	if changed == 0 {
		return "", nil
	}
	return desc, nil
}
