package plugin

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tobyg/cargox/internal/errors"
	"github.com/tobyg/cargox/internal/schema"
)

// External is a plugin backed by a standalone executable speaking the argv
// protocol: every invocation receives the client protocol version, then an
// operation and its arguments, and replies on stdout. collect-targets and
// build-command reply with JSON validated against the embedded schemas.
type External struct {
	path    string
	name    string
	version string
}

// LoadExternal probes an executable for its identity. An executable that
// fails the identity queries is not a usable plugin.
func LoadExternal(path string) (*External, error) {
	e := &External{path: path}
	name, err := e.invoke("--name")
	if err != nil {
		return nil, errors.Plugin(path, err)
	}
	e.name = strings.TrimSpace(name)
	if e.name == "" {
		return nil, errors.Plugin(path, fmt.Errorf("plugin reported an empty name"))
	}
	version, err := e.invoke("--version")
	if err != nil {
		return nil, errors.Plugin(e.name, err)
	}
	e.version = strings.TrimSpace(version)
	return e, nil
}

func (e *External) Name() string    { return e.name }
func (e *External) Version() string { return e.version }
func (e *External) Source() string  { return e.path }

// Matches asks the plugin whether it applies to dir. The protocol allows
// "true" or "1" as an affirmative reply; anything else is a non-match.
func (e *External) Matches(dir string) (bool, error) {
	out, err := e.invoke("matches", dir)
	if err != nil {
		return false, errors.Plugin(e.name, err)
	}
	switch strings.TrimSpace(out) {
	case "true", "1":
		return true, nil
	default:
		return false, nil
	}
}

// CollectTargets asks the plugin for its targets in dir.
func (e *External) CollectTargets(dir string) ([]PluginTarget, error) {
	out, err := e.invoke("collect-targets", dir)
	if err != nil {
		return nil, errors.Plugin(e.name, err)
	}
	data := []byte(out)
	if err := schema.ValidatePluginTargets(data); err != nil {
		return nil, errors.Plugin(e.name, err)
	}
	var targets []PluginTarget
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, errors.Plugin(e.name, err)
	}
	return targets, nil
}

// BuildCommand asks the plugin how to run one of its targets.
func (e *External) BuildCommand(dir string, t PluginTarget) (CommandSpec, error) {
	out, err := e.invoke("build-command", dir, t.Name)
	if err != nil {
		return CommandSpec{}, errors.Plugin(e.name, err)
	}
	data := []byte(out)
	if err := schema.ValidateCommandSpec(data); err != nil {
		return CommandSpec{}, errors.Plugin(e.name, err)
	}
	var spec CommandSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return CommandSpec{}, errors.Plugin(e.name, err)
	}
	return spec, nil
}

// Run spawns the target's build command and captures its output.
func (e *External) Run(dir string, t PluginTarget) ([]string, int, error) {
	spec, err := e.BuildCommand(dir, t)
	if err != nil {
		return nil, 0, err
	}
	return RunSpec(spec, dir)
}

// invoke runs the plugin executable with the protocol preamble and the given
// operation, returning its stdout.
func (e *External) invoke(op string, args ...string) (string, error) {
	argv := append([]string{"--client-version", ClientVersion, op}, args...)
	cmd := exec.Command(e.path, argv...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("%s: %s", op, msg)
		}
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return stdout.String(), nil
}
