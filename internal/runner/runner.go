// Package runner executes targets: it builds the invocation, spawns and
// tracks the process, streams its output through the diagnostic
// dispatchers, and records the run in history.
package runner

import (
	"bufio"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/tobyg/cargox/internal/command"
	"github.com/tobyg/cargox/internal/diagnostics"
	"github.com/tobyg/cargox/internal/dispatch"
	"github.com/tobyg/cargox/internal/errors"
	"github.com/tobyg/cargox/internal/history"
	"github.com/tobyg/cargox/internal/output"
	"github.com/tobyg/cargox/internal/plugin"
	"github.com/tobyg/cargox/internal/process"
	"github.com/tobyg/cargox/internal/target"
)

// Runner executes targets against a shared process manager and diagnostic
// session.
type Runner struct {
	Manager *process.Manager
	Out     *output.Writer
	Stats   *dispatch.Stats
	// HistoryPath receives one line per started run; empty disables history.
	HistoryPath string
	// Plugins routes KindPlugin targets back to their provider.
	Plugins []plugin.Plugin
	// Echo forwards the child's output lines to the user in addition to
	// dispatching them.
	Echo bool
}

// New returns a Runner with a fresh manager and session statistics.
func New(out *output.Writer) *Runner {
	return &Runner{
		Manager: process.NewManager(),
		Out:     out,
		Stats:   &dispatch.Stats{},
		Echo:    true,
	}
}

// Result describes one finished target run.
type Result struct {
	Target   target.Target
	ExitCode int
	// Interrupted is set when the run ended because of a signal rather than
	// a normal exit.
	Interrupted bool
}

// RunTarget executes one target to completion. projectDir anchors plugin
// commands that do not name their own working directory.
func (r *Runner) RunTarget(t target.Target, opts command.Options, projectDir string) (Result, error) {
	cmd, err := r.buildCommand(t, opts, projectDir)
	if err != nil {
		return Result{Target: t}, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{Target: t}, errors.Wrap(err, "failed to open stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{Target: t}, errors.Wrap(err, "failed to open stderr pipe")
	}

	r.Out.TargetStart(t.Kind.Label(), t.DisplayName)
	if err := cmd.Start(); err != nil {
		return Result{Target: t}, errors.Wrap(err, fmt.Sprintf("failed to start %s", t.Name))
	}
	// The watcher must not Wait (and close the pipes) until both stream
	// consumers have drained.
	readersDone := make(chan struct{})
	handle := r.Manager.Register(cmd, readersDone)

	if r.HistoryPath != "" {
		if err := history.Record(r.HistoryPath, t.Name); err != nil {
			r.Out.Warning("failed to record run history: %v", err)
		}
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := r.consume(diagnostics.NewStdoutDispatcher(r.Stats), stdout, r.Out.Println); err != nil {
			r.Out.Warning("stdout stream read failed: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := r.consume(diagnostics.NewStderrDispatcher(r.Stats), stderr, r.Out.Errorln); err != nil {
			r.Out.Warning("stderr stream read failed: %v", err)
		}
	}()
	wg.Wait()
	close(readersDone)

	res := r.Manager.WaitHandle(handle)
	code := res.ExitCode
	if !res.Exited {
		// No exit status means the process was killed or signalled.
		code = errors.ExitRuntimeError
	}
	result := Result{Target: t, ExitCode: code, Interrupted: !res.Exited}
	if code != 0 && res.Exited {
		r.Out.TargetFailed(t.DisplayName, fmt.Errorf("exit code %d", code))
	}
	return result, nil
}

// RunAll executes targets sequentially with a fresh diagnostic session and
// returns per-target results. Execution stops early when the manager has
// been interrupted.
func (r *Runner) RunAll(targets []target.Target, opts command.Options, projectDir string) ([]Result, error) {
	r.Stats.Reset()
	var results []Result
	for _, t := range targets {
		if r.Manager.Interrupted() {
			break
		}
		res, err := r.RunTarget(t, opts, projectDir)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Summarize prints the diagnostic counters accumulated over the session.
func (r *Runner) Summarize() {
	snap := r.Stats.Snapshot()
	if snap.Errors == 0 && snap.Warnings == 0 {
		return
	}
	r.Out.Info("%d error(s), %d warning(s)", snap.Errors, snap.Warnings)
}

// buildCommand routes plugin targets to their provider and everything else
// through the cargo command builder.
func (r *Runner) buildCommand(t target.Target, opts command.Options, projectDir string) (*exec.Cmd, error) {
	if t.Kind == target.KindPlugin {
		return r.buildPluginCommand(t, projectDir)
	}
	return command.NewBuilder().
		WithTarget(t).
		WithRequiredFeatures(t).
		WithOptions(opts).
		BuildCommand()
}

func (r *Runner) buildPluginCommand(t target.Target, projectDir string) (*exec.Cmd, error) {
	for _, p := range r.Plugins {
		if p.Source() != t.Origin.PluginPath {
			continue
		}
		spec, err := p.BuildCommand(projectDir, plugin.PluginTarget{Name: t.Origin.Name})
		if err != nil {
			return nil, err
		}
		return spec.Command(projectDir), nil
	}
	return nil, errors.Plugin(t.Origin.PluginPath, fmt.Errorf("provider for target %q is not loaded", t.Name))
}

// consume dispatches one output stream line by line, echoing lines when
// enabled and surfacing recognized server URLs. A non-nil error means the
// stream broke mid-read and lines may be missing.
func (r *Runner) consume(d *dispatch.Dispatcher, stream io.Reader, echo func(format string, args ...interface{})) error {
	scanner := bufio.NewScanner(stream)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if r.Echo {
			echo("%s", line)
		}
		for _, resp := range d.Dispatch(line) {
			if resp.Type == dispatch.TypeOpenedUrl {
				r.Out.Info("server running at %s", resp.Message)
			}
		}
	}
	return scanner.Err()
}
