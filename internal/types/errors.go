package types

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	ErrConfig            ErrorCode = "CONFIG_ERROR"
	ErrToolUnavailable   ErrorCode = "TOOL_UNAVAILABLE"
	ErrSourceStructure   ErrorCode = "SOURCE_STRUCTURE_ERROR"
	ErrCompileFatal      ErrorCode = "COMPILE_FATAL"
	ErrAttemptsExhausted ErrorCode = "ATTEMPTS_EXHAUSTED"
	ErrProgressStall     ErrorCode = "PROGRESS_STALL"
	ErrPostProcess       ErrorCode = "POST_PROCESS_ERROR"
	ErrCancelled         ErrorCode = "CANCELLED"
	ErrInternal          ErrorCode = "INTERNAL_ERROR"
)

// Stage names the pipeline stage an error originated from.
type Stage string

const (
	StageValidate Stage = "validate"
	StageRewrite  Stage = "rewrite"
	StageCompile  Stage = "compile"
	StageReorient Stage = "reorient"
	StageDeliver  Stage = "deliver"
)

// Sentinel causes. Wrapped into AppError.Cause so callers can use errors.Is.
var (
	ErrRootNotFound     = errors.New("no root document: no file contains \\documentclass")
	ErrNoBeginDocument  = errors.New("root document has no \\begin{document}")
	ErrUnsupportedClass = errors.New("document class is not reflow-compatible")
	ErrToolMissing      = errors.New("external tool not found")
)

// AppError 应用错误
type AppError struct {
	Code     ErrorCode `json:"code"`
	Stage    Stage     `json:"stage,omitempty"`
	Message  string    `json:"message"`
	Details  string    `json:"details,omitempty"`
	Attempts int       `json:"attempts,omitempty"`
	// LogTail holds the last lines of the final compiler log.
	LogTail string `json:"log_tail,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	var sb strings.Builder
	if e.Stage != "" {
		sb.WriteString(string(e.Stage))
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Details != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Details)
	}
	if e.Attempts > 0 {
		fmt.Fprintf(&sb, " (after %d attempt(s))", e.Attempts)
	}
	return sb.String()
}

// Unwrap returns the underlying cause of the error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Hint returns user-facing guidance for the error, or "" when there is none.
func (e *AppError) Hint() string {
	switch e.Code {
	case ErrToolUnavailable:
		return "install the missing tool or choose another one in the configuration"
	case ErrPostProcess:
		if errors.Is(e.Cause, ErrToolMissing) {
			return "install pdftk or set rotate_tool to pdfcpu; the compiled PDF exists but was not rotated"
		}
		return "the compiled PDF exists but was not rotated"
	case ErrSourceStructure:
		return "make sure the directory holds the unpacked LaTeX source"
	case ErrCompileFatal, ErrAttemptsExhausted, ErrProgressStall:
		if pkg := missingFromTail(e.LogTail); pkg != "" {
			return "install package " + pkg
		}
		return "inspect the compiler log excerpt above"
	case ErrConfig:
		return "check the page size, margin and orientation"
	}
	return ""
}

// missingFileRe matches "File `x.sty' not found" and "File 'x.cls' not found".
var missingFileRe = regexp.MustCompile("File [`']([^'`\\s]+)' not found")

func missingFromTail(tail string) string {
	if m := missingFileRe.FindStringSubmatch(tail); m != nil {
		return m[1]
	}
	return ""
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// NewStageError attaches a stage to err. An existing AppError keeps its code
// and gains the stage if it has none; any other error becomes defaultCode.
func NewStageError(stage Stage, defaultCode ErrorCode, err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Stage == "" {
			appErr.Stage = stage
		}
		return appErr
	}
	return &AppError{
		Code:    defaultCode,
		Stage:   stage,
		Message: err.Error(),
		Cause:   err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// TailLines returns the last n non-empty lines of text.
func TailLines(text string, n int) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		kept = append(kept, lines[i])
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}
