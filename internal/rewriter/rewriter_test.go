package rewriter

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arxindle/internal/types"
)

var kindle = types.PageSpec{Width: 4, Height: 6, Margin: 0.2, Orientation: types.OrientationPortrait}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

const twoColumnPaper = `\documentclass[10pt,twocolumn,letterpaper]{article}
\usepackage[margin=1in]{geometry}
\usepackage{graphicx}
\begin{document}
\begin{figure*}[t]
\includegraphics[width=0.9\linewidth]{plot}
\end{figure*}
\end{document}
`

func TestRewriteTwoColumnPaper(t *testing.T) {
	dir := writeTree(t, map[string]string{"main.tex": twoColumnPaper})

	result, err := New().Rewrite(context.Background(), dir, kindle)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "main.tex"), result.RootPath)
	assert.Equal(t, "article", result.Class)
	assert.Empty(t, result.Warnings)

	want := `\documentclass[onecolumn]{article}
% arxindle: removed package geometry
\usepackage{graphicx}
% arxindle:begin
\pagestyle{empty}
\usepackage{times}
\makeatletter\@ifpackageloaded{geometry}{}{\usepackage{geometry}}\makeatother
\geometry{paperwidth=4in,paperheight=6in,margin=0.2in}
% arxindle:end
\begin{document}
\begin{figure}[!htbp]
\includegraphics[width=0.9\textwidth,height=0.9\textheight,keepaspectratio]{plot}
\end{figure}
\end{document}
`
	assert.Equal(t, want, readFile(t, dir, "main.tex"))
}

func TestRewriteIsIdempotent(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.tex": twoColumnPaper,
		"sec/body.tex": "\\begin{multicols}{2}\nText\n\\columnbreak\nMore\n\\end{multicols}\n" +
			"\\twocolumn[\\section{Wide}]\n",
		"conf.sty": "\\RequirePackage{geometry}\n\\geometry{a4paper}\n",
	})
	rw := New()

	_, err := rw.Rewrite(context.Background(), dir, kindle)
	require.NoError(t, err)
	first := map[string]string{
		"main.tex":     readFile(t, dir, "main.tex"),
		"sec/body.tex": readFile(t, dir, "sec/body.tex"),
		"conf.sty":     readFile(t, dir, "conf.sty"),
	}

	second, err := rw.Rewrite(context.Background(), dir, kindle)
	require.NoError(t, err)
	assert.Empty(t, second.Applied, "second pass must not change anything")
	for name, content := range first {
		assert.Equal(t, content, readFile(t, dir, name), name)
	}
	assert.Equal(t, 1, strings.Count(first["main.tex"], `\geometry{`))
	assert.Equal(t, 1, strings.Count(first["main.tex"], "% arxindle:begin"))
}

func TestRewriteReplacesManagedBlock(t *testing.T) {
	dir := writeTree(t, map[string]string{"main.tex": twoColumnPaper})
	rw := New()

	_, err := rw.Rewrite(context.Background(), dir, kindle)
	require.NoError(t, err)
	_, err = rw.Rewrite(context.Background(), dir, types.PageSpec{Width: 6, Height: 4, Margin: 0.25})
	require.NoError(t, err)

	out := readFile(t, dir, "main.tex")
	assert.Equal(t, 1, strings.Count(out, `\geometry{`))
	assert.Contains(t, out, `\geometry{paperwidth=6in,paperheight=4in,margin=0.25in}`)
	assert.NotContains(t, out, "paperwidth=4in")
}

func TestRewriteBodyFiles(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.tex": "\\documentclass{article}\n\\begin{document}\n\\input{sec}\n\\end{document}\n",
		"sec.tex": "\\begin{multicols}{2}[\\section{Intro}]\nText\n\\columnbreak\nMore\n\\end{multicols}\n" +
			"\\begin{table*}[h]\n\\end{table*}\n\\newgeometry{margin=2cm}\n",
	})

	_, err := New().Rewrite(context.Background(), dir, kindle)
	require.NoError(t, err)

	out := readFile(t, dir, "sec.tex")
	assert.Contains(t, out, "\\section{Intro}\nText\n% arxindle: removed columnbreak\nMore\n% arxindle: removed multicols\n")
	assert.Contains(t, out, "\\begin{table}[!htbp]\n\\end{table}\n")
	assert.Contains(t, out, "% arxindle: removed geometry call\n")
	assert.NotContains(t, out, "multicols}")
}

func TestRewriteStyleFiles(t *testing.T) {
	dir := writeTree(t, map[string]string{
		"main.tex": "\\documentclass{article}\n\\usepackage{conf}\n\\begin{document}\n\\end{document}\n",
		"conf.sty": "\\RequirePackage[a4paper]{geometry}\n" +
			"\\@ifpackageloaded{geometry}{\\PackageError{conf}{geometry not allowed}{}}{}\n" +
			"\\twocolumn\n",
	})

	_, err := New().Rewrite(context.Background(), dir, kindle)
	require.NoError(t, err)

	want := "% arxindle: removed package geometry\n" +
		"\\@secondoftwo{\\relax}{}\n" +
		"\\onecolumn\n"
	assert.Equal(t, want, readFile(t, dir, "conf.sty"))
}

func TestRewriteMissingBeginDocument(t *testing.T) {
	dir := writeTree(t, map[string]string{"main.tex": "\\documentclass{article}\n% \\begin{document}\n"})

	_, err := New().Rewrite(context.Background(), dir, kindle)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrSourceStructure))
	assert.True(t, errors.Is(err, types.ErrNoBeginDocument))
}

func TestRewriteNoRoot(t *testing.T) {
	dir := writeTree(t, map[string]string{"notes.tex": "\\section{x}\n"})

	_, err := New().Rewrite(context.Background(), dir, kindle)
	assert.True(t, errors.Is(err, types.ErrRootNotFound))
}

func TestRewriteUnsupportedClass(t *testing.T) {
	src := map[string]string{"slides.tex": "\\documentclass{beamer}\n\\begin{document}\n\\end{document}\n"}

	result, err := New().Rewrite(context.Background(), writeTree(t, src), kindle)
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "beamer")

	_, err = New(WithStrict(true)).Rewrite(context.Background(), writeTree(t, src), kindle)
	assert.True(t, errors.Is(err, types.ErrUnsupportedClass))
}

func TestRewriteCancelled(t *testing.T) {
	dir := writeTree(t, map[string]string{"main.tex": twoColumnPaper})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Rewrite(ctx, dir, kindle)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, twoColumnPaper, readFile(t, dir, "main.tex"))
}

func TestRewriteCustomRules(t *testing.T) {
	marker := RuleFunc{RuleName: "marker", Fn: func(content string, _ types.PageSpec) string {
		if strings.Contains(content, "% marked") {
			return content
		}
		return content + "% marked\n"
	}}
	dir := writeTree(t, map[string]string{"main.tex": "\\documentclass{article}\n\\begin{document}\n\\end{document}\n"})

	result, err := New(WithRules(ScopeBody), WithExtraRules(ScopeBody, marker)).Rewrite(context.Background(), dir, kindle)
	require.NoError(t, err)
	assert.Contains(t, result.Applied, "main.tex: marker")
	assert.True(t, strings.HasSuffix(readFile(t, dir, "main.tex"), "% marked\n"))
}

func TestGeometryBlock(t *testing.T) {
	block := GeometryBlock(types.PageSpec{Width: 4.5, Height: 6, Margin: 0.125})
	assert.True(t, strings.HasPrefix(block, "% arxindle:begin\n"))
	assert.True(t, strings.HasSuffix(block, "% arxindle:end\n"))
	assert.Contains(t, block, `\geometry{paperwidth=4.5in,paperheight=6in,margin=0.125in}`)
	assert.Contains(t, block, `\pagestyle{empty}`)
	assert.Contains(t, block, "\\usepackage{times}\n")
}
