package plugin

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/tobyg/cargox/internal/target"
)

// fakePluginScript speaks the external argv protocol: args[1] and args[2]
// are always --client-version and its value, args[3] is the operation.
const fakePluginScript = `#!/bin/sh
op="$3"
case "$op" in
  --name) echo "fakeplug" ;;
  --version) echo "1.2.3" ;;
  matches)
    case "$4" in
      */match-me) echo "true" ;;
      *) echo "false" ;;
    esac ;;
  collect-targets) echo '[{"name": "alpha"}, {"name": "beta", "metadata": {"path": "/x/beta"}}]' ;;
  build-command) echo "{\"prog\": \"echo\", \"args\": [\"$5\"]}" ;;
  *) echo "unknown op" >&2; exit 2 ;;
esac
`

func writeExternalPlugin(t *testing.T, dir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script plugins require a POSIX shell")
	}
	path := filepath.Join(dir, "fakeplug")
	if err := os.WriteFile(path, []byte(fakePluginScript), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExternalIdentity(t *testing.T) {
	t.Parallel()
	path := writeExternalPlugin(t, t.TempDir())
	p, err := LoadExternal(path)
	if err != nil {
		t.Fatal(err)
	}
	if p.Name() != "fakeplug" || p.Version() != "1.2.3" {
		t.Errorf("got name=%q version=%q", p.Name(), p.Version())
	}
	if p.Source() != path {
		t.Errorf("got source %q", p.Source())
	}
}

func TestExternalMatches(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p, err := LoadExternal(writeExternalPlugin(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	matchDir := filepath.Join(dir, "match-me")
	if ok, err := p.Matches(matchDir); err != nil || !ok {
		t.Errorf("got ok=%v err=%v, want match", ok, err)
	}
	if ok, err := p.Matches(filepath.Join(dir, "other")); err != nil || ok {
		t.Errorf("got ok=%v err=%v, want no match", ok, err)
	}
}

// TestExternalMatchesNumericReply verifies the protocol's numeric match
// replies: "1" is affirmative, "0" is not.
func TestExternalMatchesNumericReply(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if runtime.GOOS == "windows" {
		t.Skip("shell script plugins require a POSIX shell")
	}
	path := filepath.Join(dir, "numplug")
	script := `#!/bin/sh
case "$3" in
  --name) echo "numplug" ;;
  --version) echo "0" ;;
  matches)
    case "$4" in
      */yes) echo "1" ;;
      *) echo "0" ;;
    esac ;;
esac
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	p, err := LoadExternal(path)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := p.Matches(filepath.Join(dir, "yes")); err != nil || !ok {
		t.Errorf("got ok=%v err=%v, want numeric reply 1 treated as match", ok, err)
	}
	if ok, err := p.Matches(filepath.Join(dir, "no")); err != nil || ok {
		t.Errorf("got ok=%v err=%v, want numeric reply 0 treated as non-match", ok, err)
	}
}

func TestExternalCollectTargets(t *testing.T) {
	t.Parallel()
	p, err := LoadExternal(writeExternalPlugin(t, t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	targets, err := p.CollectTargets("/any")
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 || targets[0].Name != "alpha" || targets[1].Name != "beta" {
		t.Fatalf("got %+v", targets)
	}
	if targets[1].Metadata["path"] != "/x/beta" {
		t.Errorf("got metadata %+v", targets[1].Metadata)
	}
}

func TestExternalBuildCommand(t *testing.T) {
	t.Parallel()
	p, err := LoadExternal(writeExternalPlugin(t, t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	spec, err := p.BuildCommand("/proj", PluginTarget{Name: "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if spec.Prog != "echo" || len(spec.Args) != 1 || spec.Args[0] != "alpha" {
		t.Errorf("got %+v", spec)
	}
	cmd := spec.Command("/proj")
	if cmd.Dir != "/proj" {
		t.Errorf("got dir %q", cmd.Dir)
	}
}

func TestExternalRunCapturesOutput(t *testing.T) {
	t.Parallel()
	p, err := LoadExternal(writeExternalPlugin(t, t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	lines, code, err := p.Run("/tmp", PluginTarget{Name: "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if code != 0 {
		t.Errorf("got exit code %d", code)
	}
	if len(lines) != 1 || lines[0] != "alpha" {
		t.Errorf("got lines %v", lines)
	}
}

func TestExternalRejectsBadPayload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if runtime.GOOS == "windows" {
		t.Skip("shell script plugins require a POSIX shell")
	}
	path := filepath.Join(dir, "badplug")
	script := `#!/bin/sh
case "$3" in
  --name) echo "badplug" ;;
  --version) echo "0" ;;
  collect-targets) echo '[{"nombre": "oops"}]' ;;
esac
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	p, err := LoadExternal(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.CollectTargets("/any"); err == nil {
		t.Error("expected schema validation error")
	}
}

const fakeLuaPlugin = `
return {
  name = "luaplug",
  version = "0.9",
  matches = function(dir)
    return string.find(dir, "match") ~= nil
  end,
  collect_targets = function(dir)
    return '[{"name": "script-target"}]'
  end,
  build_command = function(dir, name)
    return '{"prog": "lua", "args": ["run", "' .. name .. '"], "cwd": "' .. dir .. '"}'
  end,
}
`

func writeLuaPlugin(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "luaplug.lua")
	if err := os.WriteFile(path, []byte(fakeLuaPlugin), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLuaPlugin(t *testing.T) {
	t.Parallel()
	p, err := LoadLua(writeLuaPlugin(t, t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	if p.Name() != "luaplug" || p.Version() != "0.9" {
		t.Errorf("got name=%q version=%q", p.Name(), p.Version())
	}
	if ok, err := p.Matches("/proj/match"); err != nil || !ok {
		t.Errorf("got ok=%v err=%v", ok, err)
	}
	if ok, err := p.Matches("/other"); err != nil || ok {
		t.Errorf("got ok=%v err=%v", ok, err)
	}

	targets, err := p.CollectTargets("/proj/match")
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 || targets[0].Name != "script-target" {
		t.Fatalf("got %+v", targets)
	}

	spec, err := p.BuildCommand("/proj/match", targets[0])
	if err != nil {
		t.Fatal(err)
	}
	if spec.Prog != "lua" || spec.Cwd != "/proj/match" {
		t.Errorf("got %+v", spec)
	}
}

// TestLuaRunInProcess verifies a script-provided run function executes
// without spawning anything.
func TestLuaRunInProcess(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "runner.lua")
	script := `
return {
  name = "runnerplug",
  version = "1",
  matches = function(dir) return true end,
  collect_targets = function(dir) return '[{"name": "inproc"}]' end,
  build_command = function(dir, name) return '{"prog": "false"}' end,
  run = function(dir, name)
    return { "ran " .. name .. " in " .. dir, "done" }, 7
  end,
}
`
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadLua(path)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	lines, code, err := p.Run("/proj", PluginTarget{Name: "inproc"})
	if err != nil {
		t.Fatal(err)
	}
	if code != 7 {
		t.Errorf("got exit code %d, want 7", code)
	}
	if len(lines) != 2 || lines[0] != "ran inproc in /proj" || lines[1] != "done" {
		t.Errorf("got lines %v", lines)
	}
}

// TestLuaRunFallsBackToSpawn verifies scripts without a run function fall
// back to spawning the build command.
func TestLuaRunFallsBackToSpawn(t *testing.T) {
	t.Parallel()
	if runtime.GOOS == "windows" {
		t.Skip("spawned command requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "spawn.lua")
	script := `
return {
  name = "spawnplug",
  version = "1",
  matches = function(dir) return true end,
  collect_targets = function(dir) return '[{"name": "spawned"}]' end,
  build_command = function(dir, name)
    return '{"prog": "sh", "args": ["-c", "echo fell-back; exit 5"]}'
  end,
}
`
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := LoadLua(path)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	lines, code, err := p.Run(t.TempDir(), PluginTarget{Name: "spawned"})
	if err != nil {
		t.Fatal(err)
	}
	if code != 5 {
		t.Errorf("got exit code %d, want 5", code)
	}
	if len(lines) != 1 || lines[0] != "fell-back" {
		t.Errorf("got lines %v", lines)
	}
}

func TestLoadLuaRejectsNonTable(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bad.lua")
	if err := os.WriteFile(path, []byte(`return 42`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadLua(path); err == nil {
		t.Error("expected error for non-table plugin")
	}
}

func TestResolve(t *testing.T) {
	t.Parallel()
	p, err := LoadLua(writeLuaPlugin(t, t.TempDir()))
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	tgt := Resolve(p, PluginTarget{Name: "x", Metadata: map[string]interface{}{"path": "/reported"}})
	if tgt.Kind != target.KindPlugin || !tgt.Extended {
		t.Errorf("got kind=%s extended=%v", tgt.Kind, tgt.Extended)
	}
	if tgt.Origin.Kind != target.OriginPlugin || tgt.Origin.Reported != "/reported" {
		t.Errorf("got origin %+v", tgt.Origin)
	}
	if tgt.DisplayName != "luaplug > x" {
		t.Errorf("got display name %q", tgt.DisplayName)
	}
}

func TestCollectFromSkipsFailingPlugin(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	good, err := LoadLua(writeLuaPlugin(t, dir))
	if err != nil {
		t.Fatal(err)
	}
	defer good.Close()

	badPath := filepath.Join(dir, "bad2.lua")
	bad := `
return {
  name = "badplug",
  matches = function(dir) return true end,
  collect_targets = function(dir) error("boom") end,
}
`
	if err := os.WriteFile(badPath, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	badPlug, err := LoadLua(badPath)
	if err != nil {
		t.Fatal(err)
	}
	defer badPlug.Close()

	var failures []string
	targets := CollectFrom([]Plugin{badPlug, good}, "/proj/match", func(name string, err error) {
		failures = append(failures, name)
	})
	if len(targets) != 1 || targets[0].Name != "script-target" {
		t.Fatalf("got %+v", targets)
	}
	if len(failures) != 1 || failures[0] != "badplug" {
		t.Errorf("got failures %v", failures)
	}
}

func TestLoadAllSkipsUnknownFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeLuaPlugin(t, dir)
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("docs"), 0o644); err != nil {
		t.Fatal(err)
	}

	var failures []string
	plugins := LoadAll([]string{dir, filepath.Join(dir, "missing")}, func(path string, err error) {
		failures = append(failures, path)
	})
	if len(plugins) != 1 || plugins[0].Name() != "luaplug" {
		t.Fatalf("got %d plugins", len(plugins))
	}
	if len(failures) != 0 {
		t.Errorf("got failures %v", failures)
	}
}
