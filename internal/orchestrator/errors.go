package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/brensch/annualreview/internal/util"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrTransientAcquisition = errors.New("transient acquisition failure")
	ErrAcquisitionFailed    = errors.New("acquisition failed")
	ErrRender               = errors.New("render failure")
	ErrArchivalMove         = errors.New("archival move failure")
	ErrNotification         = errors.New("notification failure")
)

// AcquisitionError is the terminal failure returned once every attempt is exhausted.
type AcquisitionError struct {
	Attempts []Attempt
	Cause    error // Last attempt's failure, joined with any context error
}

func (e *AcquisitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "data download failed after %d attempts", len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; attempt %d: %s", a.Seq, util.FormatTimestamp(a.At))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

func (e *AcquisitionError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrAcquisitionFailed}
	}
	return []error{ErrAcquisitionFailed, e.Cause}
}

// attemptError is the per-attempt failure fed back into the retry loop.
type attemptError struct {
	Seq    int
	Reason string
	Cause  error
}

func (e *attemptError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("attempt %d: %s: %v", e.Seq, e.Reason, e.Cause)
	}
	return fmt.Sprintf("attempt %d: %s", e.Seq, e.Reason)
}

func (e *attemptError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrTransientAcquisition}
	}
	return []error{ErrTransientAcquisition, e.Cause}
}

// RenderError explains why a report is absent. It is logged, never propagated as fatal.
type RenderError struct {
	Kind   ReportKind
	Reason string
	Cause  error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("report %s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("report %s: %s", e.Kind, e.Reason)
}

func (e *RenderError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrRender}
	}
	return []error{ErrRender, e.Cause}
}

// MoveError reports one file that could not be relocated. The source is left in place.
type MoveError struct {
	Source      string
	Destination string
	Cause       error
}

func (e *MoveError) Error() string {
	return fmt.Sprintf("move %s -> %s: %v", e.Source, e.Destination, e.Cause)
}

func (e *MoveError) Unwrap() []error { return []error{ErrArchivalMove, e.Cause} }

// NotificationError wraps a delivery failure. Runs never fail because of it.
type NotificationError struct {
	Decision Decision
	Cause    error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Decision, e.Cause)
}

func (e *NotificationError) Unwrap() []error { return []error{ErrNotification, e.Cause} }
