// Package types defines core data types and enums for the arxindle pipeline.
package types

import (
	"fmt"
	"time"
)

// Orientation 页面方向
type Orientation string

const (
	OrientationPortrait  Orientation = "portrait"
	OrientationLandscape Orientation = "landscape"
)

// PageSpec describes the target physical page in inches.
type PageSpec struct {
	Width       float64     `json:"width" yaml:"width"`
	Height      float64     `json:"height" yaml:"height"`
	Margin      float64     `json:"margin" yaml:"margin"`
	Orientation Orientation `json:"orientation" yaml:"orientation"`
}

// Validate checks the ranges of the page spec.
// Margin must lie in (0,1) and both dimensions must be positive.
func (s PageSpec) Validate() error {
	if s.Width <= 0 || s.Height <= 0 {
		return NewAppErrorWithDetails(ErrConfig, "invalid page size",
			fmt.Sprintf("width=%g height=%g, both must be > 0", s.Width, s.Height), nil)
	}
	if s.Margin <= 0 || s.Margin >= 1 {
		return NewAppErrorWithDetails(ErrConfig, "invalid margin",
			fmt.Sprintf("margin=%g, must be between 0 and 1", s.Margin), nil)
	}
	switch s.Orientation {
	case "", OrientationPortrait, OrientationLandscape:
	default:
		return NewAppErrorWithDetails(ErrConfig, "invalid orientation", string(s.Orientation), nil)
	}
	return nil
}

// NeedsRotation reports whether the compiled PDF must be post-processed.
func (s PageSpec) NeedsRotation() bool {
	return s.Orientation == OrientationLandscape
}

// Effective returns the spec handed to the compiler. Landscape swaps
// width and height; the rotation step restores the visual orientation.
func (s PageSpec) Effective() PageSpec {
	if s.NeedsRotation() {
		s.Width, s.Height = s.Height, s.Width
	}
	return s
}

// OutcomeKind 编译结果分类
type OutcomeKind string

const (
	OutcomeSuccess   OutcomeKind = "success"
	OutcomeRetryable OutcomeKind = "retryable"
	OutcomeFatal     OutcomeKind = "fatal"
)

// FixKind names the repair applied before a retry.
type FixKind string

const (
	FixNone          FixKind = ""
	FixStripOrSkip   FixKind = "strip_or_skip"
	FixForceContinue FixKind = "force_continue"
)

// Outcome is the classified result of a single compile attempt.
type Outcome struct {
	Kind OutcomeKind `json:"kind" yaml:"kind"`
	Fix  FixKind     `json:"fix,omitempty" yaml:"fix,omitempty"`
	// Missing is the file name reported as not found, for FixStripOrSkip.
	Missing string `json:"missing,omitempty" yaml:"missing,omitempty"`
	Reason  string `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// String returns a compact human readable form, e.g. "retryable(strip_or_skip)".
func (o Outcome) String() string {
	if o.Kind == OutcomeRetryable {
		return fmt.Sprintf("%s(%s)", o.Kind, o.Fix)
	}
	if o.Kind == OutcomeFatal && o.Reason != "" {
		return fmt.Sprintf("%s(%s)", o.Kind, o.Reason)
	}
	return string(o.Kind)
}

// CompileAttempt 单次编译尝试
type CompileAttempt struct {
	Index    int           `json:"index" yaml:"index"`
	Flags    []string      `json:"flags" yaml:"flags"`
	ExitCode int           `json:"exit_code" yaml:"exit_code"`
	TimedOut bool          `json:"timed_out,omitempty" yaml:"timed_out,omitempty"`
	Outcome  Outcome       `json:"outcome" yaml:"outcome"`
	Duration time.Duration `json:"duration" yaml:"duration"`
	Log      string        `json:"-" yaml:"-"`
}

// CompileStatus is the terminal state of the compile loop.
type CompileStatus string

const (
	CompileSucceeded CompileStatus = "succeeded"
	CompileFailed    CompileStatus = "failed"
)

// FailureReason explains a failed compile loop.
type FailureReason string

const (
	FailureNone              FailureReason = ""
	FailureFatal             FailureReason = "fatal_error"
	FailureAttemptsExhausted FailureReason = "attempts_exhausted"
	FailureNoProgress        FailureReason = "no_progress"
	FailureCancelled         FailureReason = "cancelled"
)

// CompileResult 编译结果
type CompileResult struct {
	Status   CompileStatus    `json:"status" yaml:"status"`
	PDFPath  string           `json:"pdf_path,omitempty" yaml:"pdf_path,omitempty"`
	Reason   FailureReason    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Detail   string           `json:"detail,omitempty" yaml:"detail,omitempty"`
	Attempts []CompileAttempt `json:"attempts" yaml:"attempts"`
	// Passes counts every engine invocation after the first success,
	// including the successful attempt itself.
	Passes  int    `json:"passes" yaml:"passes"`
	LastLog string `json:"-" yaml:"-"`
}

// Succeeded reports whether the loop ended in Success.
func (r *CompileResult) Succeeded() bool {
	return r != nil && r.Status == CompileSucceeded
}

// PDFInfo 编译产物信息
type PDFInfo struct {
	PageCount int     `json:"page_count" yaml:"page_count"`
	WidthIn   float64 `json:"width_in" yaml:"width_in"`
	HeightIn  float64 `json:"height_in" yaml:"height_in"`
	FileSize  int64   `json:"file_size" yaml:"file_size"`
}

// Artifact is the final output of a pipeline run.
type Artifact struct {
	RunID        string         `json:"run_id" yaml:"run_id"`
	Path         string         `json:"path" yaml:"path"`
	RootDocument string         `json:"root_document" yaml:"root_document"`
	Spec         PageSpec       `json:"spec" yaml:"spec"`
	Rotated      bool           `json:"rotated" yaml:"rotated"`
	Warnings     []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Compile      *CompileResult `json:"compile" yaml:"compile"`
	Info         *PDFInfo       `json:"info,omitempty" yaml:"info,omitempty"`
}
