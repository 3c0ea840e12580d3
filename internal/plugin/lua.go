package plugin

import (
	"encoding/json"
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/tobyg/cargox/internal/errors"
	"github.com/tobyg/cargox/internal/schema"
)

// Lua is a plugin implemented as a Lua script. The script must return a
// table with name and version fields and matches, collect_targets, and
// build_command functions. Structured results cross the boundary as JSON
// strings and are validated the same way external plugin replies are.
type Lua struct {
	path    string
	name    string
	version string

	// The Lua state is not safe for concurrent use.
	mu sync.Mutex
	L  *lua.LState
	tb *lua.LTable
}

// LoadLua evaluates a plugin script and captures its table.
func LoadLua(path string) (*Lua, error) {
	L := lua.NewState()
	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, errors.Plugin(path, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	tb, ok := ret.(*lua.LTable)
	if !ok {
		L.Close()
		return nil, errors.Plugin(path, fmt.Errorf("script did not return a table"))
	}

	p := &Lua{path: path, L: L, tb: tb}
	p.name = lua.LVAsString(L.GetField(tb, "name"))
	if p.name == "" {
		L.Close()
		return nil, errors.Plugin(path, fmt.Errorf("plugin table has no name field"))
	}
	p.version = lua.LVAsString(L.GetField(tb, "version"))
	return p, nil
}

// Close releases the Lua state.
func (p *Lua) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.L.Close()
}

func (p *Lua) Name() string    { return p.name }
func (p *Lua) Version() string { return p.version }
func (p *Lua) Source() string  { return p.path }

// Matches calls the script's matches function.
func (p *Lua) Matches(dir string) (bool, error) {
	ret, err := p.call("matches", lua.LString(dir))
	if err != nil {
		return false, err
	}
	return lua.LVAsBool(ret), nil
}

// CollectTargets calls collect_targets, which returns a JSON array of
// targets as a string.
func (p *Lua) CollectTargets(dir string) ([]PluginTarget, error) {
	ret, err := p.call("collect_targets", lua.LString(dir))
	if err != nil {
		return nil, err
	}
	data := []byte(lua.LVAsString(ret))
	if err := schema.ValidatePluginTargets(data); err != nil {
		return nil, errors.Plugin(p.name, err)
	}
	var targets []PluginTarget
	if err := json.Unmarshal(data, &targets); err != nil {
		return nil, errors.Plugin(p.name, err)
	}
	return targets, nil
}

// BuildCommand calls build_command, which returns a JSON command spec as a
// string.
func (p *Lua) BuildCommand(dir string, t PluginTarget) (CommandSpec, error) {
	ret, err := p.call("build_command", lua.LString(dir), lua.LString(t.Name))
	if err != nil {
		return CommandSpec{}, err
	}
	data := []byte(lua.LVAsString(ret))
	if err := schema.ValidateCommandSpec(data); err != nil {
		return CommandSpec{}, errors.Plugin(p.name, err)
	}
	var spec CommandSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return CommandSpec{}, errors.Plugin(p.name, err)
	}
	return spec, nil
}

// Run executes a target in-process through the script's run function when
// one is declared; otherwise it falls back to spawning the build command.
// run returns a table of output lines and an optional numeric exit code.
func (p *Lua) Run(dir string, t PluginTarget) ([]string, int, error) {
	p.mu.Lock()
	hasRun := p.L.GetField(p.tb, "run").Type() == lua.LTFunction
	p.mu.Unlock()
	if !hasRun {
		spec, err := p.BuildCommand(dir, t)
		if err != nil {
			return nil, 0, err
		}
		return RunSpec(spec, dir)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	f := p.L.GetField(p.tb, "run")
	if err := p.L.CallByParam(lua.P{Fn: f, NRet: 2, Protect: true}, lua.LString(dir), lua.LString(t.Name)); err != nil {
		return nil, 0, errors.Plugin(p.name, err)
	}
	codeVal := p.L.Get(-1)
	linesVal := p.L.Get(-2)
	p.L.Pop(2)

	var lines []string
	switch v := linesVal.(type) {
	case *lua.LTable:
		for i := 1; i <= v.Len(); i++ {
			lines = append(lines, lua.LVAsString(v.RawGetInt(i)))
		}
	case lua.LString:
		lines = splitLines(string(v))
	}
	code := 0
	if n, ok := codeVal.(lua.LNumber); ok {
		code = int(n)
	}
	return lines, code, nil
}

// call invokes a function field of the plugin table and returns its single
// result.
func (p *Lua) call(fn string, args ...lua.LValue) (lua.LValue, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	f := p.L.GetField(p.tb, fn)
	if f.Type() != lua.LTFunction {
		return lua.LNil, errors.Plugin(p.name, fmt.Errorf("plugin table has no %s function", fn))
	}
	if err := p.L.CallByParam(lua.P{Fn: f, NRet: 1, Protect: true}, args...); err != nil {
		return lua.LNil, errors.Plugin(p.name, err)
	}
	ret := p.L.Get(-1)
	p.L.Pop(1)
	return ret, nil
}
