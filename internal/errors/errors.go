// Package errors provides structured error types and exit codes for cargox.
package errors

import (
	"fmt"
)

// Exit codes returned by the cargox CLI.
const (
	ExitSuccess          = 0 // Success
	ExitRuntimeError     = 1 // Runtime error (target failed, process died, etc.)
	ExitConfigError      = 2 // Configuration error (bad manifest, bad config file)
	ExitEnvironmentError = 3 // Environment error (missing toolchain executable)
)

// ErrorKind represents the type of error.
type ErrorKind int

const (
	KindRuntime ErrorKind = iota
	KindConfig
	KindManifestNotFound
	KindWorkspaceParse
	KindToolInvocation
	KindToolchainMissing
	KindProcessNotFound
	KindPlugin
)

// Error is the base error type for cargox.
type Error struct {
	Kind    ErrorKind
	Message string
	Target  string // Target name if applicable
	Cause   error  // Underlying error
}

func (e *Error) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("[%s] %s", e.Target, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error.
func (e *Error) ExitCode() int {
	switch e.Kind {
	case KindConfig, KindManifestNotFound, KindWorkspaceParse:
		return ExitConfigError
	case KindToolchainMissing:
		return ExitEnvironmentError
	default:
		return ExitRuntimeError
	}
}

// New creates a new runtime error.
func New(message string) *Error {
	return &Error{
		Kind:    KindRuntime,
		Message: message,
	}
}

// Newf creates a new runtime error with formatting.
func Newf(format string, args ...interface{}) *Error {
	return New(fmt.Sprintf(format, args...))
}

// ManifestNotFound reports that no Cargo.toml was found walking upward from dir.
func ManifestNotFound(dir string) *Error {
	return &Error{
		Kind:    KindManifestNotFound,
		Message: fmt.Sprintf("no Cargo.toml found in %s or any parent directory", dir),
	}
}

// WorkspaceParse wraps a workspace manifest parse failure. The error is fatal
// for that manifest only; sibling manifests keep collecting.
func WorkspaceParse(manifestPath string, cause error) *Error {
	return &Error{
		Kind:    KindWorkspaceParse,
		Message: fmt.Sprintf("failed to parse workspace manifest %s", manifestPath),
		Cause:   cause,
	}
}

// ToolInvocation reports a failed build-tool enumeration for one manifest.
func ToolInvocation(manifestPath string, cause error) *Error {
	return &Error{
		Kind:    KindToolInvocation,
		Message: fmt.Sprintf("cargo invocation failed for %s", manifestPath),
		Cause:   cause,
	}
}

// ToolchainMissing reports a required external executable that is not on PATH.
func ToolchainMissing(executable, targetName string) *Error {
	return &Error{
		Kind:    KindToolchainMissing,
		Target:  targetName,
		Message: fmt.Sprintf("required executable %q not found in PATH; install it to run this target", executable),
	}
}

// ProcessNotFound reports an operation on an untracked pid. This is a
// programming-contract violation, not an environment condition.
func ProcessNotFound(pid int) *Error {
	return &Error{
		Kind:    KindProcessNotFound,
		Message: fmt.Sprintf("process handle with pid %d not found", pid),
	}
}

// Plugin wraps a plugin failure. Plugin errors skip that plugin for the
// current project and never abort collection as a whole.
func Plugin(name string, cause error) *Error {
	return &Error{
		Kind:    KindPlugin,
		Message: fmt.Sprintf("plugin %q failed", name),
		Cause:   cause,
	}
}

// Config creates a new configuration error.
func Config(message string) *Error {
	return &Error{
		Kind:    KindConfig,
		Message: message,
	}
}

// Configf creates a new configuration error with formatting.
func Configf(format string, args ...interface{}) *Error {
	return Config(fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) *Error {
	return &Error{
		Kind:    KindRuntime,
		Message: message,
		Cause:   err,
	}
}

// GetExitCode returns the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if ce, ok := err.(*Error); ok {
		return ce.ExitCode()
	}
	return ExitRuntimeError
}
