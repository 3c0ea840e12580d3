// Package collect enumerates targets across one manifest or a whole
// workspace: it queries cargo for declared binaries and examples, merges
// statically discovered targets, and deduplicates the result.
package collect

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/tobyg/cargox/internal/discovery"
	"github.com/tobyg/cargox/internal/errors"
	"github.com/tobyg/cargox/internal/manifest"
	"github.com/tobyg/cargox/internal/output"
	"github.com/tobyg/cargox/internal/target"
)

const (
	// minWorkers prevents semaphore deadlock if CPU detection fails in
	// containerized environments.
	minWorkers = 1
	maxWorkers = 256
)

// Options configures a collection pass.
type Options struct {
	// Dir is the directory collection starts from. Defaults to ".".
	Dir string
	// ManifestPath is an explicit base manifest; when empty the nearest
	// manifest above Dir is used.
	ManifestPath string
	// Workspace forces workspace mode. Workspace mode is also entered when
	// the base manifest itself declares a workspace.
	Workspace bool
	// Concurrency bounds the worker pool; 0 means available parallelism.
	Concurrency int
	// Runner overrides the cargo invocation (tests inject fakes here).
	Runner Runner
	// Out receives progress and per-manifest failure warnings.
	Out *output.Writer
}

// job is one manifest to enumerate.
type job struct {
	prefix       string
	manifestPath string
	extended     bool
}

// CollectBinaries enumerates the binaries cargo reports for one manifest by
// running `cargo run --bin` with the name omitted and parsing the
// available-items listing from stderr.
func CollectBinaries(run Runner, prefix, manifestPath string, extended bool) ([]target.Target, error) {
	_, stderr, err := runCargoWithOptOut(run, []string{"run", "--bin"}, manifestPath)
	if err != nil {
		return nil, errors.ToolInvocation(manifestPath, err)
	}
	names := ParseAvailable(stderr, "binaries")

	kind := target.KindBinary
	if filepath.Base(filepath.Dir(manifestPath)) == "src-tauri" {
		kind = target.KindManifestTauri
	} else if extended {
		kind = target.KindExtendedBinary
	}

	targets := make([]target.Target, 0, len(names))
	for _, name := range names {
		targets = append(targets, target.Target{
			Name:         name,
			DisplayName:  displayName(prefix, "binary", name, extended),
			ManifestPath: manifestPath,
			Kind:         kind,
			Extended:     extended,
			Origin:       target.Origin{Kind: target.OriginSubProject, Path: manifestPath},
		})
	}
	return targets, nil
}

// CollectExamples enumerates the examples cargo reports for one manifest.
// Examples listed by cargo are by definition declared targets, so they are
// marked toml-specified.
func CollectExamples(run Runner, prefix, manifestPath string, extended bool) ([]target.Target, error) {
	_, stderr, err := runCargoWithOptOut(run, []string{"run", "--example"}, manifestPath)
	if err != nil {
		return nil, errors.ToolInvocation(manifestPath, err)
	}
	names := ParseAvailable(stderr, "examples")

	kind := target.KindExample
	if extended {
		kind = target.KindExtendedExample
	}

	targets := make([]target.Target, 0, len(names))
	for _, name := range names {
		targets = append(targets, target.Target{
			Name:          name,
			DisplayName:   displayName(prefix, "example", name, extended),
			ManifestPath:  manifestPath,
			Kind:          kind,
			Extended:      extended,
			TomlSpecified: true,
			Origin:        target.Origin{Kind: target.OriginSubProject, Path: manifestPath},
		})
	}
	return targets, nil
}

func displayName(prefix, section, name string, extended bool) string {
	switch {
	case strings.HasPrefix(prefix, "$"):
		return fmt.Sprintf("%s > %s > %s", prefix, section, name)
	case !extended && strings.HasPrefix(prefix, "builtin"):
		return fmt.Sprintf("builtin %s: %s", section, name)
	default:
		return fmt.Sprintf("%s %s", prefix, name)
	}
}

// Result is the outcome of one collection pass.
type Result struct {
	Targets []target.Target
	// WorkspaceMode records whether workspace precedence was applied during
	// deduplication.
	WorkspaceMode bool
}

// CollectAllTargets resolves the base manifest, enumerates every collection
// job (root plus workspace members plus ext/ subprojects) on a bounded
// worker pool, and returns the deduplicated target list.
//
// A failed enumeration for one manifest does not abort the others; its
// targets are simply absent from the result. The final list is sorted by
// (name, kind); pre-dedup arrival order depends on job completion order and
// is not observable.
func CollectAllTargets(opts Options) (Result, error) {
	run := opts.Runner
	if run == nil {
		run = CargoRunner
	}
	out := opts.Out
	if out == nil {
		out = output.NewWithWriters(io.Discard, io.Discard, false)
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	base := opts.ManifestPath
	if base == "" {
		located, err := manifest.LocateManifest(dir, false)
		if err != nil {
			return Result{}, err
		}
		base = located
	}

	workspaceMode := opts.Workspace || manifest.IsWorkspaceManifest(base)

	jobs := []job{{prefix: "builtin", manifestPath: base, extended: false}}
	if workspaceMode {
		ws := base
		if opts.Workspace && !manifest.IsWorkspaceManifest(base) {
			located, err := manifest.LocateManifest(filepath.Dir(base), true)
			if err != nil {
				return Result{}, err
			}
			ws = located
		}
		members, err := manifest.WorkspaceMemberManifestPaths(ws)
		if err != nil {
			out.Warning("%v", err)
		}
		for _, m := range members {
			jobs = append(jobs, job{prefix: m.Name, manifestPath: m.ManifestPath, extended: true})
		}
	}

	all := runJobs(jobs, run, out, workerCount(opts.Concurrency))
	all = target.PreferSingleFileOrigins(all)

	return Result{
		Targets:       target.Dedup(all, workspaceMode),
		WorkspaceMode: workspaceMode,
	}, nil
}

// runJobs executes collection jobs concurrently with a channel-as-semaphore
// worker pool. Results are appended under a single mutex; ordering is
// resolved later by the dedup sort.
func runJobs(jobs []job, run Runner, out *output.Writer, workers int) []target.Target {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		all []target.Target
	)
	sem := make(chan struct{}, workers)

	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			targets := collectOne(j, run, out)
			mu.Lock()
			all = append(all, targets...)
			mu.Unlock()
		}(j)
	}
	wg.Wait()
	return all
}

// collectOne gathers every target visible from a single manifest: cargo's
// declared binaries and examples, the static filesystem scan, and the ext/
// extended-targets directory.
func collectOne(j job, run Runner, out *output.Writer) []target.Target {
	var targets []target.Target

	bins, err := CollectBinaries(run, j.prefix, j.manifestPath, j.extended)
	if err != nil {
		out.Warning("%v", err)
	}
	targets = append(targets, bins...)

	examples, err := CollectExamples(run, j.prefix, j.manifestPath, j.extended)
	if err != nil {
		out.Warning("%v", err)
	}
	targets = append(targets, examples...)

	targets = append(targets, discovery.ScanExamplesDir(j.manifestPath, j.extended)...)
	targets = append(targets, discovery.ScanBinDir(j.manifestPath, j.extended)...)
	targets = append(targets, discovery.ScanTestsDir(j.manifestPath)...)
	if t, ok := discovery.DefaultBinaryTarget(j.manifestPath, j.extended); ok {
		targets = append(targets, t)
	}

	root := filepath.Dir(j.manifestPath)
	for _, extManifest := range discovery.ScanExtendedDir(root) {
		prefix := "$" + filepath.Base(filepath.Dir(extManifest))
		bins, err := CollectBinaries(run, prefix, extManifest, true)
		if err != nil {
			out.Warning("%v", err)
		}
		targets = append(targets, bins...)
		examples, err := CollectExamples(run, prefix, extManifest, true)
		if err != nil {
			out.Warning("%v", err)
		}
		targets = append(targets, examples...)
	}

	return targets
}

// workerCount clamps the requested concurrency, defaulting to the number of
// CPUs.
func workerCount(requested int) int {
	if requested >= minWorkers && requested <= maxWorkers {
		return requested
	}
	n := runtime.NumCPU()
	if n < minWorkers {
		return minWorkers
	}
	return n
}
