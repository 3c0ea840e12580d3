package plugin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tetratelabs/wazero"

	"github.com/tobyg/cargox/internal/errors"
)

// Artifact is a plugin backed by a built artifact rather than a script or
// protocol executable. WebAssembly modules are introspected: each exported
// function becomes a target. Shared libraries are opaque and contribute a
// single target named after the file.
type Artifact struct {
	path string
	name string
	// exports is nil for opaque artifacts.
	exports []string
}

// LoadArtifact inspects a .wasm, .so, or .dll file.
func LoadArtifact(path string) (*Artifact, error) {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	a := &Artifact{path: path, name: name}

	if filepath.Ext(path) != ".wasm" {
		if _, err := os.Stat(path); err != nil {
			return nil, errors.Plugin(name, err)
		}
		return a, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Plugin(name, err)
	}
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)
	compiled, err := rt.CompileModule(ctx, data)
	if err != nil {
		return nil, errors.Plugin(name, err)
	}
	defer compiled.Close(ctx)
	for export := range compiled.ExportedFunctions() {
		// The canonical WASI entrypoint is reported under the module name,
		// not as a separate target.
		if export == "_start" {
			continue
		}
		a.exports = append(a.exports, export)
	}
	sort.Strings(a.exports)
	return a, nil
}

func (a *Artifact) Name() string    { return a.name }
func (a *Artifact) Version() string { return "" }
func (a *Artifact) Source() string  { return a.path }

// Matches reports true for every directory; an artifact's targets are
// intrinsic to the artifact, not the project.
func (a *Artifact) Matches(dir string) (bool, error) {
	return true, nil
}

// CollectTargets lists the artifact's targets.
func (a *Artifact) CollectTargets(dir string) ([]PluginTarget, error) {
	if filepath.Ext(a.path) != ".wasm" {
		return []PluginTarget{{
			Name:     a.name,
			Metadata: map[string]interface{}{"path": a.path, "opaque": true},
		}}, nil
	}
	targets := make([]PluginTarget, 0, len(a.exports))
	for _, export := range a.exports {
		targets = append(targets, PluginTarget{
			Name:     export,
			Metadata: map[string]interface{}{"path": a.path},
		})
	}
	return targets, nil
}

// Run spawns the target's build command and captures its output.
func (a *Artifact) Run(dir string, t PluginTarget) ([]string, int, error) {
	spec, err := a.BuildCommand(dir, t)
	if err != nil {
		return nil, 0, err
	}
	return RunSpec(spec, dir)
}

// BuildCommand runs a wasm export through wasmtime. Opaque shared libraries
// have no runnable invocation.
func (a *Artifact) BuildCommand(dir string, t PluginTarget) (CommandSpec, error) {
	if filepath.Ext(a.path) != ".wasm" {
		return CommandSpec{}, errors.Plugin(a.name, fmt.Errorf("shared library %s is not directly runnable", a.path))
	}
	return CommandSpec{
		Prog: "wasmtime",
		Args: []string{a.path, "--invoke", t.Name},
		Cwd:  dir,
	}, nil
}
