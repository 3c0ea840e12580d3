package collect

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// workspaceErrorMarker is the cargo diagnostic emitted when a package
// manifest is wrongly treated as a workspace member.
const workspaceErrorMarker = "current package believes it's in a workspace when it's not:"

// Runner invokes the build tool for one manifest and returns its captured
// stdout and stderr. Injectable so collection logic is testable without a
// cargo installation.
type Runner func(args []string, manifestPath string) (stdout, stderr string, err error)

// CargoRunner is the default Runner: it invokes `cargo <args> --manifest-path
// <manifest>` and captures output. A non-zero exit is not an error here;
// target enumeration relies on cargo's failure diagnostics.
func CargoRunner(args []string, manifestPath string) (string, string, error) {
	full := append(append([]string{}, args...), "--manifest-path", manifestPath)
	cmd := exec.Command("cargo", full...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); !ok {
			return "", "", err
		}
	}
	return stdout.String(), stderr.String(), nil
}

// optOutGuard captures a manifest's original content before the workspace
// opt-out patch and guarantees restoration on every exit path. Leaving the
// manifest mutated is a correctness violation, so Restore failures are
// surfaced as errors rather than logged.
type optOutGuard struct {
	path     string
	original []byte
	active   bool
}

// patchWorkspaceOptOut appends an empty [workspace] table to the manifest at
// path. If the manifest already contains a [workspace] section the guard is
// inert.
func patchWorkspaceOptOut(path string) (*optOutGuard, error) {
	original, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g := &optOutGuard{path: path, original: original}
	if strings.Contains(string(original), "[workspace]") {
		return g, nil
	}
	patched := string(original) + "\n[workspace]\n"
	if err := os.WriteFile(path, []byte(patched), 0o644); err != nil {
		return nil, err
	}
	g.active = true
	return g, nil
}

// Restore writes the original manifest content back. Safe to call more than
// once.
func (g *optOutGuard) Restore() error {
	if !g.active {
		return nil
	}
	g.active = false
	if err := os.WriteFile(g.path, g.original, 0o644); err != nil {
		return fmt.Errorf("failed to restore manifest %s after workspace opt-out: %w", g.path, err)
	}
	return nil
}

// runCargoWithOptOut runs a cargo command and, when cargo reports the known
// spurious-workspace defect, patches the manifest with an empty [workspace]
// table, re-runs the command, and restores the original file content
// unconditionally before returning.
func runCargoWithOptOut(run Runner, args []string, manifestPath string) (stdout, stderr string, err error) {
	stdout, stderr, err = run(args, manifestPath)
	if err != nil {
		return stdout, stderr, err
	}
	if !strings.Contains(stderr, workspaceErrorMarker) {
		return stdout, stderr, nil
	}

	guard, err := patchWorkspaceOptOut(manifestPath)
	if err != nil {
		return stdout, stderr, err
	}
	// Restoration must happen on every exit path, including panics in the
	// injected runner.
	defer func() {
		if restoreErr := guard.Restore(); restoreErr != nil && err == nil {
			err = restoreErr
		}
	}()
	if !guard.active {
		// Manifest already opts out; the original output stands.
		return stdout, stderr, nil
	}
	stdout, stderr, err = run(args, manifestPath)
	return stdout, stderr, err
}
