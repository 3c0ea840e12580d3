package cargox

import (
	"testing"

	"github.com/tobyg/cargox/internal/errors"
)

// TestExitCodesMatchInternal verifies the public constants stay in sync with
// the internal error package.
func TestExitCodesMatchInternal(t *testing.T) {
	t.Parallel()

	if ExitSuccess != errors.ExitSuccess {
		t.Errorf("ExitSuccess = %d, internal = %d", ExitSuccess, errors.ExitSuccess)
	}
	if ExitFailure != errors.ExitRuntimeError {
		t.Errorf("ExitFailure = %d, internal = %d", ExitFailure, errors.ExitRuntimeError)
	}
	if ExitConfigError != errors.ExitConfigError {
		t.Errorf("ExitConfigError = %d, internal = %d", ExitConfigError, errors.ExitConfigError)
	}
	if ExitEnvError != errors.ExitEnvironmentError {
		t.Errorf("ExitEnvError = %d, internal = %d", ExitEnvError, errors.ExitEnvironmentError)
	}
}
