// © 2026 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package apperrors defines the failure classes of the action.
//
// Every failure is fatal to the job. Callers classify errors with [errors.Is]
// against the sentinels below.
package apperrors

import (
	"errors"
	"fmt"
)

// Sentinel errors for classification via errors.Is().
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrInstall           = errors.New("install error")
	ErrMissingCredential = errors.New("missing credential")
	ErrCommandFailed     = errors.New("command failed")
	ErrArtifactNotFound  = errors.New("artifact not found")
)

// Error is a classified failure.
type Error struct {
	Sentinel error  // wrapped sentinel for errors.Is() classification
	Message  string // human-readable message
	Input    string // offending input name, for configuration errors
	Op       string // operation that failed (e.g. "pip install")
	Output   string // raw output of the external process, if any
	Cause    error  // underlying error
}

// Error returns the human-readable error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the sentinel and the cause.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Sentinel, e.Cause}
	}
	return []error{e.Sentinel}
}

// Configuration reports an invalid or missing input.
func Configuration(input, format string, args ...any) error {
	return &Error{
		Sentinel: ErrConfiguration,
		Message:  fmt.Sprintf("input %q: %s", input, fmt.Sprintf(format, args...)),
		Input:    input,
	}
}

// Install reports a failed installation of the release tool or its plugins.
func Install(op, output string, cause error) error {
	return &Error{
		Sentinel: ErrInstall,
		Message:  op + " failed",
		Op:       op,
		Output:   output,
		Cause:    cause,
	}
}

// MissingCredential reports a token required by a command that is not set.
func MissingCredential(format string, args ...any) error {
	return &Error{
		Sentinel: ErrMissingCredential,
		Message:  fmt.Sprintf(format, args...),
	}
}

// CommandFailed reports a failure of the release tool. Output is the tool's
// own diagnostic output, surfaced verbatim.
func CommandFailed(op, output string, cause error) error {
	return &Error{
		Sentinel: ErrCommandFailed,
		Message:  op + " failed",
		Op:       op,
		Output:   output,
		Cause:    cause,
	}
}

// ArtifactNotFound reports that the named artifact is missing.
func ArtifactNotFound(name string, cause error) error {
	return &Error{
		Sentinel: ErrArtifactNotFound,
		Message: fmt.Sprintf("artifact %q not found; check that artifact-name matches the one used by the check job "+
			"and that this job needs the job running check", name),
		Cause: cause,
	}
}

// OutputOf returns the raw process output carried by err, if any.
func OutputOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Output
	}
	return ""
}
