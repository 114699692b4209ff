// Package source locates the files of an unpacked LaTeX source directory
// and identifies its root document.
package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"arxindle/internal/logger"
	"arxindle/internal/types"
)

// Tree is a writable directory holding LaTeX sources and their assets.
type Tree struct {
	Dir string
}

// Open returns a Tree for dir after checking that it is a directory.
func Open(dir string) (*Tree, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, types.NewAppError(types.ErrSourceStructure, "invalid source directory", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, types.NewAppError(types.ErrSourceStructure, "source directory not accessible", err)
	}
	if !info.IsDir() {
		return nil, types.NewAppErrorWithDetails(types.ErrSourceStructure, "source path is not a directory", abs, nil)
	}
	return &Tree{Dir: abs}, nil
}

// TexFiles returns every .tex file in the tree.
func (t *Tree) TexFiles() ([]string, error) {
	return t.files(".tex")
}

// StyleFiles returns the local .sty and .cls files.
func (t *Tree) StyleFiles() ([]string, error) {
	return t.files(".sty", ".cls")
}

// files walks the tree, skipping hidden directories, and returns matches
// ordered by depth, then path. The order is what makes root discovery
// deterministic.
func (t *Tree) files(exts ...string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(t.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != t.Dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range exts {
			if ext == e {
				out = append(out, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", t.Dir, err)
	}

	sort.SliceStable(out, func(i, j int) bool {
		di, dj := depth(t.Dir, out[i]), depth(t.Dir, out[j])
		if di != dj {
			return di < dj
		}
		return out[i] < out[j]
	})
	return out, nil
}

func depth(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	return strings.Count(filepath.ToSlash(rel), "/")
}

// FindRoot returns the .tex file with an uncommented \documentclass. Among
// several, a conventional name such as main.tex at the top level wins, then
// the first in depth and lexical order.
func (t *Tree) FindRoot() (string, error) {
	files, err := t.TexFiles()
	if err != nil {
		return "", types.NewAppError(types.ErrSourceStructure, "failed to list tex files", err)
	}

	var candidates []string
	for _, f := range files {
		content, err := os.ReadFile(f)
		if err != nil {
			logger.Warn("failed to read tex file", logger.String("file", f), logger.Err(err))
			continue
		}
		if HasDocumentClass(string(content)) {
			candidates = append(candidates, f)
		}
	}

	if len(candidates) == 0 {
		return "", types.NewAppErrorWithDetails(types.ErrSourceStructure, "root document not found",
			t.Dir, types.ErrRootNotFound)
	}
	root := preferredRoot(t.Dir, candidates)
	if len(candidates) > 1 {
		logger.Warn("several files declare \\documentclass",
			logger.String("root", filepath.Base(root)),
			logger.Int("candidates", len(candidates)))
	}
	logger.Debug("root document found", logger.String("path", root))
	return root, nil
}

// preferredRootNames are conventional root file names in order of preference.
var preferredRootNames = []string{
	"main.tex",
	"paper.tex",
	"article.tex",
	"manuscript.tex",
	"document.tex",
}

// preferredRoot picks a conventional name among the shallowest candidates,
// otherwise the first candidate. Candidates are sorted by depth.
func preferredRoot(dir string, candidates []string) string {
	top := depth(dir, candidates[0])
	for _, name := range preferredRootNames {
		for _, c := range candidates {
			if depth(dir, c) != top {
				break
			}
			if strings.EqualFold(filepath.Base(c), name) {
				return c
			}
		}
	}
	return candidates[0]
}

// HasDocumentClass reports whether content declares a document class
// outside of a comment.
func HasDocumentClass(content string) bool {
	for _, line := range strings.Split(content, "\n") {
		if strings.Contains(StripComment(line), `\documentclass`) {
			return true
		}
	}
	return false
}

// StripComment removes a trailing % comment, honoring \% escapes.
func StripComment(line string) string {
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			i++
		case '%':
			return line[:i]
		}
	}
	return line
}
