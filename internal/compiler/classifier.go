package compiler

import (
	"regexp"
	"strings"

	"arxindle/internal/types"
)

// Evidence is everything the classifier looks at for one attempt.
type Evidence struct {
	Log        string
	ExitCode   int
	TimedOut   bool
	PDFPresent bool
	// Forced is set when the attempt already ran in batch mode.
	Forced bool
}

var (
	// Order matters: the most specific pattern wins.
	missingFilePatterns = []*regexp.Regexp{
		regexp.MustCompile("LaTeX Error: File [`']([^'`\\s]+)' not found"),
		regexp.MustCompile("! I can't find file [`']([^'`\\s]+)'"),
		regexp.MustCompile("File [`']([^'`\\s]+)' not found"),
	}

	// promptRe matches TeX asking for terminal input.
	promptRe = regexp.MustCompile(`(?m)^(?:Please type a command or say|Please type the name of your input file|Enter file name:|Press Enter to retry|Type X to quit)`)

	// errorLineRe matches TeX error lines in both the classic "! msg"
	// form and the -file-line-error "file:line: msg" form.
	errorLineRe = regexp.MustCompile(`(?m)^(?:! .*|[^\s:]+\.(?:tex|sty|cls|bbl|aux):\d+: .*)$`)
)

// Classify maps the evidence of one compile attempt to an outcome. It is a
// pure function of its input.
func Classify(ev Evidence) types.Outcome {
	if ev.PDFPresent && !ev.TimedOut && (ev.ExitCode == 0 || ev.Forced) {
		return types.Outcome{Kind: types.OutcomeSuccess}
	}

	if missing := MissingFile(ev.Log); missing != "" {
		return types.Outcome{
			Kind:    types.OutcomeRetryable,
			Fix:     types.FixStripOrSkip,
			Missing: missing,
			Reason:  "missing file " + missing,
		}
	}

	errLine := FirstError(ev.Log)
	var reason string
	switch {
	case ev.TimedOut:
		reason = "compiler timed out"
	case promptRe.MatchString(ev.Log):
		reason = "compiler waited for terminal input"
	case ev.ExitCode != 0 && errLine == "":
		reason = "non-zero exit without error lines"
	}
	if reason != "" {
		if ev.Forced {
			return types.Outcome{Kind: types.OutcomeFatal, Reason: reason + " in batch mode"}
		}
		return types.Outcome{Kind: types.OutcomeRetryable, Fix: types.FixForceContinue, Reason: reason}
	}

	if errLine == "" {
		errLine = "no PDF was produced"
	}
	return types.Outcome{Kind: types.OutcomeFatal, Reason: errLine}
}

// MissingFile returns the first file the log reports as not found.
func MissingFile(log string) string {
	for _, re := range missingFilePatterns {
		if m := re.FindStringSubmatch(log); m != nil {
			return strings.TrimSuffix(m[1], ".")
		}
	}
	return ""
}

// FirstError returns the first TeX error line of log, trimmed.
func FirstError(log string) string {
	return strings.TrimSpace(errorLineRe.FindString(log))
}
