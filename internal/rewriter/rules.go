package rewriter

import (
	"regexp"
	"strings"

	"arxindle/internal/source"
	"arxindle/internal/types"
)

// Rule is one idempotent textual transformation. Apply returns the new
// content and whether anything changed; applying a rule to its own output
// must change nothing.
type Rule interface {
	Name() string
	Apply(content string, spec types.PageSpec) (string, bool)
}

// RuleFunc adapts a plain function to the Rule interface.
type RuleFunc struct {
	RuleName string
	Fn       func(content string, spec types.PageSpec) string
}

// Name returns the rule name.
func (r RuleFunc) Name() string { return r.RuleName }

// Apply runs the function and reports whether it changed the content.
func (r RuleFunc) Apply(content string, spec types.PageSpec) (string, bool) {
	out := r.Fn(content, spec)
	return out, out != content
}

// Scope selects which files a rule runs on.
type Scope int

const (
	// ScopePreamble rules see the root document's preamble only.
	ScopePreamble Scope = iota
	// ScopeBody rules see every .tex file in full.
	ScopeBody
	// ScopeStyle rules see local .sty and .cls files.
	ScopeStyle
)

// String returns the scope name.
func (s Scope) String() string {
	switch s {
	case ScopePreamble:
		return "preamble"
	case ScopeBody:
		return "body"
	case ScopeStyle:
		return "style"
	}
	return "unknown"
}

const (
	// optArg matches a bracketed optional argument with one level of nested brackets.
	optArg = `\[((?:[^\[\]]|\[[^\[\]]*\])*)\]`
	// braceArg matches a braced argument with one level of nested braces.
	braceArg = `\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`
)

var (
	documentClassRe = regexp.MustCompile(`\\documentclass\s*(?:\[([^\]]*)\])?\s*\{([^}]*)\}`)
	packageLoadRe   = regexp.MustCompile(`\\(usepackage|RequirePackage)\s*(\[[^\]]*\])?\s*\{([^}]*)\}`)
	geometryCallRe  = regexp.MustCompile(`\\(?:geometry|newgeometry)\s*` + braceArg)
	restoreGeomRe   = regexp.MustCompile(`\\restoregeometry\b`)
	twoColumnRe     = regexp.MustCompile(`\\twocolumn\b(?:\s*` + optArg + `)?`)
	beginMulticolRe = regexp.MustCompile(`\\begin\{multicols\*?\}\s*\{[^}]*\}(?:\s*` + optArg + `)?`)
	endMulticolRe   = regexp.MustCompile(`\\end\{multicols\*?\}`)
	columnBreakRe   = regexp.MustCompile(`\\columnbreak\b`)
	starFloatRe     = regexp.MustCompile(`\\(begin|end)\{(figure|table)\*\}`)
	floatPlaceRe    = regexp.MustCompile(`\\begin\{(figure|table)\}\s*\[[^\]]*\]`)
	graphicsWidthRe = regexp.MustCompile(`\\includegraphics\s*\[\s*width\s*=\s*([.\d]*)\s*\\(?:line|text|column)width\s*\]`)
	ifGeometryRe    = regexp.MustCompile(`\\@ifpackageloaded\s*\{geometry\}`)
	geometryErrorRe = regexp.MustCompile(`(?i)\\(?:Package|Class)Error\s*\{[^}]*\}\s*\{[^}]*geometry[^}]*\}\s*\{[^}]*\}`)
	columnOptionRe  = regexp.MustCompile(`^\w*column$`)
	paperOptionRe   = regexp.MustCompile(`^\w*paper$`)
	fontSizeRe      = regexp.MustCompile(`^\d+(?:\.\d+)?pt$`)
)

// DefaultPreambleRules returns the rules applied to the root preamble.
func DefaultPreambleRules() []Rule {
	return []Rule{
		RuleFunc{"documentclass", singleColumnClass},
		RuleFunc{"font-size", dropFontSize},
		RuleFunc{"geometry", disableGeometry},
	}
}

// DefaultBodyRules returns the rules applied to every .tex file.
func DefaultBodyRules() []Rule {
	return []Rule{
		RuleFunc{"twocolumn", oneColumnCommands},
		RuleFunc{"multicols", dropMulticols},
		RuleFunc{"included-geometry", disableGeometry},
		RuleFunc{"floats", tightenFloats},
		RuleFunc{"graphics", scaleGraphics},
	}
}

// DefaultStyleRules returns the rules applied to local .sty/.cls files.
func DefaultStyleRules() []Rule {
	return []Rule{
		RuleFunc{"style-geometry", disableGeometry},
		RuleFunc{"style-twocolumn", oneColumnCommands},
		RuleFunc{"style-geometry-guards", disableGeometryGuards},
	}
}

// ClassOptions returns the option list and class name of the first
// \documentclass in content.
func ClassOptions(content string) (opts []string, class string, ok bool) {
	loc := findClass(content)
	if loc == nil {
		return nil, "", false
	}
	m := groups(content, loc)
	return splitList(m[1]), strings.TrimSpace(m[2]), true
}

// findClass locates the first \documentclass that is not commented out.
func findClass(content string) []int {
	for _, loc := range documentClassRe.FindAllStringSubmatchIndex(content, -1) {
		if !inComment(content, loc[0]) {
			return loc
		}
	}
	return nil
}

// inComment reports whether pos lies after a % on its line.
func inComment(content string, pos int) bool {
	lineStart := strings.LastIndexByte(content[:pos], '\n') + 1
	prefix := content[lineStart:pos]
	return source.StripComment(prefix) != prefix
}

// rewriteClass re-renders the first \documentclass with edited options.
func rewriteClass(content string, edit func(opts []string) []string) string {
	loc := findClass(content)
	if loc == nil {
		return content
	}
	var raw string
	if loc[2] >= 0 {
		raw = content[loc[2]:loc[3]]
	}
	class := strings.TrimSpace(content[loc[4]:loc[5]])
	opts := edit(splitList(raw))

	var sb strings.Builder
	sb.WriteString(`\documentclass`)
	if len(opts) > 0 {
		sb.WriteString("[")
		sb.WriteString(strings.Join(opts, ","))
		sb.WriteString("]")
	}
	sb.WriteString("{")
	sb.WriteString(class)
	sb.WriteString("}")

	return content[:loc[0]] + sb.String() + content[loc[1]:]
}

// singleColumnClass drops column, paper-size and landscape class options
// and puts onecolumn first.
func singleColumnClass(content string, _ types.PageSpec) string {
	return rewriteClass(content, func(opts []string) []string {
		kept := []string{"onecolumn"}
		for _, o := range opts {
			if columnOptionRe.MatchString(o) || paperOptionRe.MatchString(o) || o == "landscape" {
				continue
			}
			kept = append(kept, o)
		}
		return kept
	})
}

// dropFontSize removes explicit point sizes so the class falls back to its
// default, which is the smallest standard size.
func dropFontSize(content string, _ types.PageSpec) string {
	return rewriteClass(content, func(opts []string) []string {
		kept := opts[:0:0]
		for _, o := range opts {
			if !fontSizeRe.MatchString(o) {
				kept = append(kept, o)
			}
		}
		return kept
	})
}

// disableGeometry removes every load of the geometry package and every
// \geometry call so the managed block is the only geometry directive.
func disableGeometry(content string, spec types.PageSpec) string {
	content, _ = RemovePackage(content, "geometry")
	return disableGeometryCalls(content, spec)
}

func disableGeometryCalls(content string, _ types.PageSpec) string {
	content = neutralize(content, geometryCallRe, "geometry call", nil)
	return neutralize(content, restoreGeomRe, "restoregeometry", nil)
}

// oneColumnCommands turns \twocolumn[X] into \onecolumn X.
func oneColumnCommands(content string, _ types.PageSpec) string {
	return replaceSubmatch(content, twoColumnRe, func(groups []string) string {
		if arg := strings.TrimSpace(groups[1]); arg != "" {
			return `\onecolumn ` + arg
		}
		return `\onecolumn`
	})
}

// dropMulticols unwraps multicols environments, keeping the optional heading.
func dropMulticols(content string, _ types.PageSpec) string {
	content = neutralize(content, beginMulticolRe, "multicols", func(groups []string) string {
		return strings.TrimSpace(groups[1])
	})
	content = neutralize(content, endMulticolRe, "multicols", nil)
	return neutralize(content, columnBreakRe, "columnbreak", nil)
}

// tightenFloats turns wide floats into regular ones and relaxes placement
// to [!htbp].
func tightenFloats(content string, _ types.PageSpec) string {
	content = starFloatRe.ReplaceAllString(content, `\$1{$2}`)
	return floatPlaceRe.ReplaceAllString(content, `\begin{$1}[!htbp]`)
}

// scaleGraphics bounds relative-width images by the text height as well.
func scaleGraphics(content string, _ types.PageSpec) string {
	return replaceSubmatch(content, graphicsWidthRe, func(groups []string) string {
		f := groups[1]
		return `\includegraphics[width=` + f + `\textwidth,height=` + f + `\textheight,keepaspectratio]`
	})
}

// disableGeometryGuards makes class checks for a loaded geometry package
// take their "not loaded" branch and drops geometry-related errors.
func disableGeometryGuards(content string, _ types.PageSpec) string {
	content = ifGeometryRe.ReplaceAllString(content, `\@secondoftwo`)
	return geometryErrorRe.ReplaceAllString(content, `\relax`)
}

// SwapClass replaces the class name of the first \documentclass, keeping
// its options. It reports whether the class changed.
func SwapClass(content, class string) (string, bool) {
	loc := findClass(content)
	if loc == nil || strings.TrimSpace(content[loc[4]:loc[5]]) == class {
		return content, false
	}
	return content[:loc[4]] + class + content[loc[5]:], true
}

// RemovePackage removes name from every \usepackage/\RequirePackage list.
// A directive left with no packages is neutralized. It returns the new
// content and the number of directives touched.
func RemovePackage(content, name string) (string, int) {
	touched := 0
	var sb strings.Builder
	last := 0
	for _, loc := range packageLoadRe.FindAllStringSubmatchIndex(content, -1) {
		pkgs := splitList(content[loc[6]:loc[7]])
		kept := pkgs[:0:0]
		for _, p := range pkgs {
			if p != name {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(pkgs) {
			continue
		}
		touched++
		sb.WriteString(content[last:loc[0]])
		if len(kept) == 0 {
			sb.WriteString(removal(content, loc[0], loc[1], "package "+name))
		} else {
			sb.WriteString(`\` + content[loc[2]:loc[3]])
			if loc[4] >= 0 {
				sb.WriteString(content[loc[4]:loc[5]])
			}
			sb.WriteString("{" + strings.Join(kept, ",") + "}")
		}
		last = loc[1]
	}
	if touched == 0 {
		return content, 0
	}
	sb.WriteString(content[last:])
	return sb.String(), touched
}

// neutralize removes every match of re. A match that fills its line(s) is
// replaced by a marker comment so the removal stays visible in the source;
// one embedded in other text is replaced by keep(groups) or dropped.
func neutralize(content string, re *regexp.Regexp, label string, keep func(groups []string) string) string {
	locs := re.FindAllStringSubmatchIndex(content, -1)
	if locs == nil {
		return content
	}
	var sb strings.Builder
	last := 0
	for _, loc := range locs {
		sb.WriteString(content[last:loc[0]])
		replacement := ""
		if keep != nil {
			replacement = keep(groups(content, loc))
		}
		if replacement == "" {
			sb.WriteString(removal(content, loc[0], loc[1], label))
		} else {
			sb.WriteString(replacement)
		}
		last = loc[1]
	}
	sb.WriteString(content[last:])
	return sb.String()
}

// removal returns the text replacing content[start:end] when a directive
// is dropped.
func removal(content string, start, end int, label string) string {
	lineStart := strings.LastIndexByte(content[:start], '\n') + 1
	lineEnd := strings.IndexByte(content[end:], '\n')
	if lineEnd < 0 {
		lineEnd = len(content)
	} else {
		lineEnd += end
	}
	if strings.TrimSpace(content[lineStart:start]) == "" && strings.TrimSpace(content[end:lineEnd]) == "" {
		return "% arxindle: removed " + label
	}
	return ""
}

func replaceSubmatch(content string, re *regexp.Regexp, repl func(groups []string) string) string {
	locs := re.FindAllStringSubmatchIndex(content, -1)
	if locs == nil {
		return content
	}
	var sb strings.Builder
	last := 0
	for _, loc := range locs {
		sb.WriteString(content[last:loc[0]])
		sb.WriteString(repl(groups(content, loc)))
		last = loc[1]
	}
	sb.WriteString(content[last:])
	return sb.String()
}

// groups expands a submatch index slice; unmatched groups become "".
func groups(content string, loc []int) []string {
	out := make([]string, len(loc)/2)
	for i := range out {
		if loc[2*i] >= 0 {
			out[i] = content[loc[2*i]:loc[2*i+1]]
		}
	}
	return out
}

// splitList splits a LaTeX comma list, ignoring % comments inside it.
func splitList(s string) []string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = source.StripComment(line)
	}
	var out []string
	for _, part := range strings.Split(strings.Join(lines, ""), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
