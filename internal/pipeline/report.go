package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"arxindle/internal/types"
)

// Report is the diagnostics document written after a run.
type Report struct {
	Artifact *types.Artifact `yaml:"artifact,omitempty"`
	Error    *ReportError    `yaml:"error,omitempty"`
}

// ReportError is the YAML view of a failed run.
type ReportError struct {
	Code     types.ErrorCode `yaml:"code"`
	Stage    types.Stage     `yaml:"stage,omitempty"`
	Message  string          `yaml:"message"`
	Attempts int             `yaml:"attempts,omitempty"`
	Hint     string          `yaml:"hint,omitempty"`
	LogTail  string          `yaml:"log_tail,omitempty"`
}

// NewReport builds a report from the result of Run.
func NewReport(artifact *types.Artifact, runErr error) *Report {
	r := &Report{Artifact: artifact}
	if runErr == nil {
		return r
	}
	var appErr *types.AppError
	if !errors.As(runErr, &appErr) {
		r.Error = &ReportError{Code: types.ErrInternal, Message: runErr.Error()}
		return r
	}
	r.Error = &ReportError{
		Code:     appErr.Code,
		Stage:    appErr.Stage,
		Message:  appErr.Error(),
		Attempts: appErr.Attempts,
		Hint:     appErr.Hint(),
		LogTail:  appErr.LogTail,
	}
	return r
}

// WriteReport renders the run as YAML to w.
func WriteReport(w io.Writer, artifact *types.Artifact, runErr error) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(NewReport(artifact, runErr)); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

// WriteReportFile writes the YAML report to path.
func WriteReportFile(path string, artifact *types.Artifact, runErr error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := WriteReport(f, artifact, runErr); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
