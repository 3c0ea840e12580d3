// Package command translates a target into the executable invocation that
// builds and runs it.
package command

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/tobyg/cargox/internal/errors"
	"github.com/tobyg/cargox/internal/manifest"
	"github.com/tobyg/cargox/internal/target"
)

// Options carries the run-time flags applied on top of the target's base
// invocation.
type Options struct {
	Quiet   bool
	Release bool
	// Extra is passed through to the target program after a "--" separator.
	Extra []string
}

// Builder assembles a command line incrementally. Errors are sticky: the
// first failure is reported by Build and later calls are no-ops.
type Builder struct {
	program    string
	subcommand string
	args       []string
	// execDir overrides the working directory (alt-toolchain targets run from
	// their project directory rather than the invocation directory).
	execDir string
	// suppressQuiet is set for kinds whose tool rejects or misinterprets a
	// quiet flag.
	suppressQuiet bool
	err           error
}

// NewBuilder returns a Builder targeting cargo.
func NewBuilder() *Builder {
	return &Builder{program: "cargo"}
}

// WithTarget sets the base invocation for t. Unknown and plugin kinds
// produce no invocation; plugin targets are executed through their plugin.
func (b *Builder) WithTarget(t target.Target) *Builder {
	if b.err != nil {
		return b
	}
	switch t.Kind {
	case target.KindExample, target.KindExtendedExample:
		b.subcommand = "run"
		b.args = []string{"--example", t.Name, "--manifest-path", t.ManifestPath}
	case target.KindBinary, target.KindExtendedBinary:
		b.subcommand = "run"
		b.args = []string{"--bin", t.Name, "--manifest-path", t.ManifestPath}
	case target.KindTest:
		b.subcommand = "test"
		b.args = []string{"--test", t.Name, "--manifest-path", t.ManifestPath}
	case target.KindBench:
		b.subcommand = "bench"
		b.args = []string{"--bench", t.Name, "--manifest-path", t.ManifestPath}
	case target.KindManifest:
		// Run the subproject's sole package. cargo prints nothing useful
		// under --quiet here, so quiet is not forwarded.
		b.subcommand = "run"
		b.args = []string{"--manifest-path", t.ManifestPath}
		b.suppressQuiet = true
	case target.KindManifestTauri, target.KindManifestTauriExample:
		// `cargo tauri` is provided by the cargo-tauri subcommand binary.
		b.requireExecutable("cargo-tauri", t.Name)
		b.subcommand = "tauri"
		b.args = []string{"dev"}
		if t.Kind == target.KindManifestTauriExample {
			b.args = append(b.args, "--example", t.Name)
		}
		b.execDir = tauriProjectDir(t.ManifestPath)
	case target.KindManifestDioxus, target.KindManifestDioxusExample:
		b.requireExecutable("dx", t.Name)
		b.program = "dx"
		b.subcommand = "serve"
		b.args = nil
		if t.Kind == target.KindManifestDioxusExample {
			b.args = []string{"--example", t.Name}
		}
		b.execDir = filepath.Dir(t.ManifestPath)
	case target.KindManifestLeptos:
		b.requireExecutable("trunk", t.Name)
		b.program = "trunk"
		b.subcommand = "serve"
		b.args = nil
		b.execDir = filepath.Dir(t.ManifestPath)
	case target.KindUnknown, target.KindPlugin:
		// No invocation; callers route these elsewhere.
	}
	return b
}

// WithRequiredFeatures appends --features when the target's manifest entry
// declares required-features.
func (b *Builder) WithRequiredFeatures(t target.Target) *Builder {
	if b.err != nil || b.program != "cargo" || b.subcommand == "" {
		return b
	}
	if features, ok := manifest.RequiredFeatures(t.ManifestPath, t.Kind, t.Name); ok {
		b.args = append(b.args, "--features", features)
	}
	return b
}

// WithOptions applies run-time flags. Tool flags are inserted directly after
// the subcommand so they are never mistaken for target-program arguments;
// extra arguments go after a "--" separator.
func (b *Builder) WithOptions(opts Options) *Builder {
	if b.err != nil || b.subcommand == "" {
		return b
	}
	var flags []string
	if opts.Quiet && !b.suppressQuiet {
		flags = append(flags, "--quiet")
	}
	if opts.Release && b.program == "cargo" && b.subcommand != "bench" {
		flags = append(flags, "--release")
	}
	if len(flags) > 0 {
		b.args = append(flags, b.args...)
	}
	if len(opts.Extra) > 0 {
		b.args = append(b.args, "--")
		b.args = append(b.args, opts.Extra...)
	}
	return b
}

// Build returns the full argv including the program name, or nil when the
// target produced no invocation.
func (b *Builder) Build() []string {
	if b.subcommand == "" {
		return nil
	}
	argv := []string{b.program, b.subcommand}
	return append(argv, b.args...)
}

// Err returns the first error recorded while building.
func (b *Builder) Err() error {
	return b.err
}

// BuildCommand materializes the invocation as an exec.Cmd with inherited
// environment and the appropriate working directory.
func (b *Builder) BuildCommand() (*exec.Cmd, error) {
	if b.err != nil {
		return nil, b.err
	}
	argv := b.Build()
	if argv == nil {
		return nil, errors.New("target has no runnable invocation")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = b.execDir
	cmd.Env = os.Environ()
	return cmd, nil
}

// requireExecutable records a toolchain error when exe is not on PATH.
func (b *Builder) requireExecutable(exe, targetName string) {
	if _, err := exec.LookPath(exe); err != nil {
		b.err = errors.ToolchainMissing(exe, targetName)
	}
}

// tauriProjectDir finds the directory `cargo tauri dev` must run from: the
// one containing tauri.conf.json, looked for in the manifest directory, its
// parent, and its grandparent. Falls back to the manifest directory.
func tauriProjectDir(manifestPath string) string {
	dir := filepath.Dir(manifestPath)
	for _, candidate := range []string{dir, filepath.Dir(dir), filepath.Dir(filepath.Dir(dir))} {
		if _, err := os.Stat(filepath.Join(candidate, "tauri.conf.json")); err == nil {
			return candidate
		}
	}
	return dir
}
