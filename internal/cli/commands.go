package cli

import (
	"path/filepath"
	"sort"
	"strconv"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tobyg/cargox/internal/collect"
	"github.com/tobyg/cargox/internal/config"
	"github.com/tobyg/cargox/internal/errors"
	"github.com/tobyg/cargox/internal/history"
	"github.com/tobyg/cargox/internal/plugin"
	"github.com/tobyg/cargox/internal/runner"
	"github.com/tobyg/cargox/internal/target"
)

var titleCaser = cases.Title(language.English)

// session holds everything a command needs after collection.
type session struct {
	projectDir  string
	targets     []target.Target
	plugins     []plugin.Plugin
	historyPath string
}

// openSession collects targets and loads plugins for the current project.
func openSession(opts *GlobalOptions) (*session, error) {
	res, err := collect.CollectAllTargets(collectOpts(opts))
	if err != nil {
		return nil, err
	}

	projectDir := opts.Dir
	if opts.ManifestPath != "" {
		projectDir = filepath.Dir(opts.ManifestPath)
	}

	cfg, _ := config.Load(projectDir)
	plugins := plugin.LoadAll(plugin.Dirs(projectDir, cfg.PluginDirs), func(path string, err error) {
		out.Warning("skipping plugin %s: %v", path, err)
	})
	targets := append(res.Targets, plugin.CollectFrom(plugins, projectDir, func(name string, err error) {
		out.Warning("plugin %s: %v", name, err)
	})...)

	historyPath := cfg.HistoryPath
	if historyPath == "" {
		historyPath = history.DefaultPath(projectDir)
	}

	return &session{
		projectDir:  projectDir,
		targets:     targets,
		plugins:     plugins,
		historyPath: historyPath,
	}, nil
}

func (s *session) close() {
	for _, p := range s.plugins {
		if c, ok := p.(*plugin.Lua); ok {
			c.Close()
		}
	}
}

func cmdList(opts *GlobalOptions) int {
	s, err := openSession(opts)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.GetExitCode(err)
	}
	defer s.close()

	if len(s.targets) == 0 {
		out.Info("no targets found")
		return errors.ExitSuccess
	}

	counts, err := history.Read(s.historyPath)
	if err != nil {
		out.Warning("failed to read run history: %v", err)
		counts = map[string]int{}
	}

	groups := map[string][]target.Target{}
	var order []string
	for _, t := range s.targets {
		label := t.Kind.Label()
		if _, seen := groups[label]; !seen {
			order = append(order, label)
		}
		groups[label] = append(groups[label], t)
	}
	sort.Strings(order)

	for _, label := range order {
		out.Section(titleCaser.String(label))
		var rows [][]string
		for _, t := range groups[label] {
			runs := ""
			if n := counts[t.Name]; n > 0 {
				runs = strconv.Itoa(n)
			}
			rows = append(rows, []string{t.DisplayLabel(), t.DisplayName, runs})
		}
		out.Table([]string{"kind", "name", "runs"}, rows)
	}
	return errors.ExitSuccess
}

func cmdRun(args []string, opts *GlobalOptions) int {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}

	s, err := openSession(opts)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.GetExitCode(err)
	}
	defer s.close()

	t, err := selectTarget(s.targets, name)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.GetExitCode(err)
	}

	r := runner.New(out)
	r.Plugins = s.plugins
	r.HistoryPath = s.historyPath
	r.Manager.InstallSignalHandler()
	defer r.Manager.StopSignalHandler()

	res, err := r.RunTarget(t, commandOpts(opts), s.projectDir)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.GetExitCode(err)
	}
	r.Summarize()
	return res.ExitCode
}

func cmdRunAll(opts *GlobalOptions) int {
	s, err := openSession(opts)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.GetExitCode(err)
	}
	defer s.close()

	r := runner.New(out)
	r.Plugins = s.plugins
	r.HistoryPath = s.historyPath
	r.Manager.InstallSignalHandler()
	defer r.Manager.StopSignalHandler()

	results, err := r.RunAll(s.targets, commandOpts(opts), s.projectDir)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.GetExitCode(err)
	}
	r.Summarize()

	failed := 0
	for _, res := range results {
		if res.ExitCode != 0 {
			failed++
		}
	}
	if failed > 0 {
		out.Errorln("%d of %d targets failed", failed, len(results))
		return errors.ExitRuntimeError
	}
	out.Success("%d targets passed", len(results))
	return errors.ExitSuccess
}
