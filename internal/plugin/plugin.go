// Package plugin extends target collection with out-of-tree providers:
// external executables speaking an argv/JSON protocol, Lua scripts, and
// introspected WebAssembly or shared-library artifacts.
package plugin

import (
	"os/exec"
	"strings"

	"github.com/tobyg/cargox/internal/target"
)

// ClientVersion is the protocol version advertised to external plugins.
const ClientVersion = "0.1"

// PluginTarget is a target as reported by a plugin, before resolution into
// the shared target model.
type PluginTarget struct {
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// CommandSpec is the invocation a plugin returns for running one of its
// targets.
type CommandSpec struct {
	Prog string   `json:"prog"`
	Args []string `json:"args,omitempty"`
	Cwd  string   `json:"cwd,omitempty"`
}

// Command materializes the spec as an exec.Cmd. When the spec does not name
// a working directory, defaultDir is used.
func (s CommandSpec) Command(defaultDir string) *exec.Cmd {
	cmd := exec.Command(s.Prog, s.Args...)
	cmd.Dir = s.Cwd
	if cmd.Dir == "" {
		cmd.Dir = defaultDir
	}
	return cmd
}

// Plugin is a target provider. Implementations must tolerate being asked
// about directories they do not apply to.
type Plugin interface {
	// Name identifies the plugin in display output and errors.
	Name() string
	// Version reports the plugin's own version string.
	Version() string
	// Matches reports whether the plugin applies to the project at dir.
	Matches(dir string) (bool, error)
	// CollectTargets lists the plugin's targets for the project at dir.
	CollectTargets(dir string) ([]PluginTarget, error)
	// BuildCommand returns the invocation for one collected target.
	BuildCommand(dir string, t PluginTarget) (CommandSpec, error)
	// Run executes one collected target, returning its captured stdout lines
	// and exit code. Backends without an in-process runtime spawn
	// BuildCommand's spec via RunSpec; the Lua backend honors a
	// script-provided run function instead.
	Run(dir string, t PluginTarget) ([]string, int, error)
	// Source is the file the plugin was loaded from.
	Source() string
}

// RunSpec is the default Run implementation: execute the spec, capture its
// stdout as lines, and report the exit code. A non-zero exit is a result,
// not an error.
func RunSpec(spec CommandSpec, defaultDir string) ([]string, int, error) {
	cmd := spec.Command(defaultDir)
	var stdout strings.Builder
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			return splitLines(stdout.String()), ee.ExitCode(), nil
		}
		return nil, 0, err
	}
	return splitLines(stdout.String()), 0, nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Resolve converts a plugin-reported target into the shared model.
func Resolve(p Plugin, pt PluginTarget) target.Target {
	reported := ""
	if v, ok := pt.Metadata["path"].(string); ok {
		reported = v
	}
	return target.Target{
		Name:        pt.Name,
		DisplayName: p.Name() + " > " + pt.Name,
		Kind:        target.KindPlugin,
		Extended:    true,
		Origin: target.Origin{
			Kind:       target.OriginPlugin,
			Name:       pt.Name,
			PluginPath: p.Source(),
			Reported:   reported,
		},
	}
}

// CollectFrom asks every matching plugin for its targets. A plugin failure
// skips that plugin; it never aborts collection.
func CollectFrom(plugins []Plugin, dir string, onError func(name string, err error)) []target.Target {
	var targets []target.Target
	for _, p := range plugins {
		ok, err := p.Matches(dir)
		if err != nil {
			if onError != nil {
				onError(p.Name(), err)
			}
			continue
		}
		if !ok {
			continue
		}
		pts, err := p.CollectTargets(dir)
		if err != nil {
			if onError != nil {
				onError(p.Name(), err)
			}
			continue
		}
		for _, pt := range pts {
			targets = append(targets, Resolve(p, pt))
		}
	}
	return targets
}
