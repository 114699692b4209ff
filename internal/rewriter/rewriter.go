// Package rewriter mutates an unpacked LaTeX source tree so that it
// compiles to a small single-column page.
//
// Every change is an idempotent rule. The page geometry itself is written
// into one managed block right before \begin{document}; a rerun removes
// the old block before inserting the new one, so the geometry directive
// exists exactly once no matter how often the tree is rewritten.
package rewriter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"arxindle/internal/logger"
	"arxindle/internal/source"
	"arxindle/internal/types"
)

const (
	blockBegin = "% arxindle:begin"
	blockEnd   = "% arxindle:end"
)

var (
	managedBlockRe = regexp.MustCompile(`(?s)` + regexp.QuoteMeta(blockBegin) + `\n.*?` + regexp.QuoteMeta(blockEnd) + `\n`)

	// unsupportedClasses are classes whose layout does not survive a
	// geometry override. They are rewritten best-effort.
	unsupportedClasses = map[string]bool{
		"beamer":     true,
		"letter":     true,
		"standalone": true,
		"tikzposter": true,
		"a0poster":   true,
		"sciposter":  true,
		"baposter":   true,
	}
)

// Result describes a finished rewrite.
type Result struct {
	RootPath string
	Class    string
	// Applied lists "file: rule" for every rule that changed a file.
	Applied  []string
	Warnings []string
}

// Rewriter applies preamble, body and style rules to a source tree.
type Rewriter struct {
	rules  map[Scope][]Rule
	strict bool
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithRules replaces the rules of one scope.
func WithRules(scope Scope, rules ...Rule) Option {
	return func(r *Rewriter) {
		r.rules[scope] = rules
	}
}

// WithExtraRules appends rules to a scope.
func WithExtraRules(scope Scope, rules ...Rule) Option {
	return func(r *Rewriter) {
		r.rules[scope] = append(r.rules[scope], rules...)
	}
}

// WithStrict makes unsupported document classes an error.
func WithStrict(strict bool) Option {
	return func(r *Rewriter) {
		r.strict = strict
	}
}

// New creates a Rewriter with the default rule set.
func New(opts ...Option) *Rewriter {
	r := &Rewriter{
		rules: map[Scope][]Rule{
			ScopePreamble: DefaultPreambleRules(),
			ScopeBody:     DefaultBodyRules(),
			ScopeStyle:    DefaultStyleRules(),
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rewrite finds the root document of dir and rewrites the tree in place
// for spec. The spec is used as given; landscape swapping is the caller's
// concern.
func (r *Rewriter) Rewrite(ctx context.Context, dir string, spec types.PageSpec) (*Result, error) {
	tree, err := source.Open(dir)
	if err != nil {
		return nil, err
	}
	if n, err := tree.Normalize(); err != nil {
		logger.Warn("encoding normalization failed", logger.Err(err))
	} else if n > 0 {
		logger.Info("normalized source encodings", logger.Int("files", n))
	}

	root, err := tree.FindRoot()
	if err != nil {
		return nil, err
	}

	result := &Result{RootPath: root}

	rootContent, err := os.ReadFile(root)
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to read root document", err)
	}
	if _, class, ok := ClassOptions(string(rootContent)); ok {
		result.Class = class
		if unsupportedClasses[class] {
			if r.strict {
				return nil, types.NewAppErrorWithDetails(types.ErrSourceStructure,
					"unsupported document class", class, types.ErrUnsupportedClass)
			}
			msg := fmt.Sprintf("document class %q may not reflow well, continuing", class)
			logger.Warn(msg, logger.String("root", root))
			result.Warnings = append(result.Warnings, msg)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.rewriteRoot(root, spec, result); err != nil {
		return nil, err
	}

	texFiles, err := tree.TexFiles()
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to list tex files", err)
	}
	for _, f := range texFiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.rewriteFile(f, ScopeBody, spec, result); err != nil {
			return nil, err
		}
	}

	styles, err := tree.StyleFiles()
	if err != nil {
		return nil, types.NewAppError(types.ErrInternal, "failed to list style files", err)
	}
	for _, f := range styles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := r.rewriteFile(f, ScopeStyle, spec, result); err != nil {
			return nil, err
		}
	}

	logger.Info("rewrite completed",
		logger.String("root", filepath.Base(root)),
		logger.String("class", result.Class),
		logger.Int("changes", len(result.Applied)))
	return result, nil
}

// rewriteRoot applies the preamble rules and (re)inserts the managed block.
func (r *Rewriter) rewriteRoot(root string, spec types.PageSpec, result *Result) error {
	data, err := os.ReadFile(root)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to read root document", err)
	}
	content := managedBlockRe.ReplaceAllString(string(data), "")

	begin := beginDocumentIndex(content)
	if begin < 0 {
		return types.NewAppErrorWithDetails(types.ErrSourceStructure, "missing \\begin{document}",
			root, types.ErrNoBeginDocument)
	}

	preamble, body := content[:begin], content[begin:]
	preamble = r.apply(filepath.Base(root), ScopePreamble, preamble, spec, result)
	rewritten := preamble + GeometryBlock(spec) + body

	return writeIfChanged(root, string(data), rewritten)
}

func (r *Rewriter) rewriteFile(path string, scope Scope, spec types.PageSpec, result *Result) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to read "+scope.String()+" file", err)
	}
	content := string(data)

	name := filepath.Base(path)

	// The managed block is never subject to rules.
	if loc := managedBlockRe.FindStringIndex(content); loc != nil {
		head := r.apply(name, scope, content[:loc[0]], spec, result)
		tail := r.apply(name, scope, content[loc[1]:], spec, result)
		return writeIfChanged(path, content, head+content[loc[0]:loc[1]]+tail)
	}

	return writeIfChanged(path, content, r.apply(name, scope, content, spec, result))
}

func (r *Rewriter) apply(file string, scope Scope, content string, spec types.PageSpec, result *Result) string {
	for _, rule := range r.rules[scope] {
		out, changed := rule.Apply(content, spec)
		if !changed {
			continue
		}
		logger.Debug("rewrite rule applied",
			logger.String("file", file),
			logger.String("scope", scope.String()),
			logger.String("rule", rule.Name()))
		result.Applied = append(result.Applied, file+": "+rule.Name())
		content = out
	}
	return content
}

// GeometryBlock renders the managed preamble block for spec.
func GeometryBlock(spec types.PageSpec) string {
	var sb strings.Builder
	sb.WriteString(blockBegin + "\n")
	sb.WriteString(`\pagestyle{empty}` + "\n")
	sb.WriteString(`\usepackage{times}` + "\n")
	sb.WriteString(`\makeatletter\@ifpackageloaded{geometry}{}{\usepackage{geometry}}\makeatother` + "\n")
	fmt.Fprintf(&sb, "\\geometry{paperwidth=%sin,paperheight=%sin,margin=%sin}\n",
		inches(spec.Width), inches(spec.Height), inches(spec.Margin))
	sb.WriteString(blockEnd + "\n")
	return sb.String()
}

func inches(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// beginDocumentIndex returns the offset of the first uncommented
// \begin{document}, or -1.
func beginDocumentIndex(content string) int {
	const marker = `\begin{document}`
	offset := 0
	for _, line := range strings.SplitAfter(content, "\n") {
		if i := strings.Index(source.StripComment(line), marker); i >= 0 {
			return offset + i
		}
		offset += len(line)
	}
	return -1
}

func writeIfChanged(path, before, after string) error {
	if before == after {
		return nil
	}
	mode := os.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(after), mode); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to write "+filepath.Base(path), err)
	}
	return nil
}
