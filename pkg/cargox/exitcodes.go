// Package cargox provides public constants for external tools integrating
// with the cargox CLI.
package cargox

// Exit codes returned by the cargox CLI.
// These constants allow external tools to check exit codes symbolically
// rather than using magic numbers.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitFailure indicates a runtime failure (target failed, process killed, etc.).
	ExitFailure = 1

	// ExitConfigError indicates a configuration error (missing manifest, bad config file, etc.).
	ExitConfigError = 2

	// ExitEnvError indicates an environment error (missing toolchain executable, etc.).
	ExitEnvError = 3
)
