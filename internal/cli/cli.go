// Package cli provides the command-line interface for cargox.
package cli

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tobyg/cargox/internal/collect"
	"github.com/tobyg/cargox/internal/command"
	"github.com/tobyg/cargox/internal/config"
	"github.com/tobyg/cargox/internal/errors"
	"github.com/tobyg/cargox/internal/output"
	"github.com/tobyg/cargox/internal/target"
)

// Version is set at build time.
var Version = "dev"

var out = output.New()

// Run executes the CLI with the given arguments and returns an exit code.
func Run(args []string) int {
	if len(args) > 0 {
		switch args[0] {
		case "-h", "--help", "help":
			printUsage()
			return errors.ExitSuccess
		case "--version", "version":
			fmt.Printf("cargox %s\n", Version)
			return errors.ExitSuccess
		}
	}

	opts, remaining, err := parseGlobalFlags(args)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.ExitConfigError
	}

	cfg, err := config.Load(opts.Dir)
	if err != nil {
		out.ErrorPrefix("%v", err)
		return errors.GetExitCode(err)
	}
	opts.applyConfig(cfg)
	out.SetQuiet(opts.Quiet)

	if len(remaining) == 0 {
		return cmdList(opts)
	}
	cmd := remaining[0]
	cmdArgs := remaining[1:]

	switch cmd {
	case "list", "targets":
		return cmdList(opts)
	case "run":
		return cmdRun(cmdArgs, opts)
	case "run-all":
		return cmdRunAll(opts)
	default:
		// A bare target name is shorthand for run.
		return cmdRun(remaining, opts)
	}
}

// GlobalOptions holds parsed global flags, with configuration defaults
// applied underneath.
type GlobalOptions struct {
	Dir          string
	ManifestPath string
	Workspace    bool
	Quiet        bool
	Release      bool
	Concurrency  int
	// Extra is passed through to the target program.
	Extra []string

	quietSet     bool
	releaseSet   bool
	workspaceSet bool
}

func (o *GlobalOptions) applyConfig(cfg config.Config) {
	if !o.quietSet {
		o.Quiet = cfg.Quiet
	}
	if !o.releaseSet {
		o.Release = cfg.Release
	}
	if !o.workspaceSet {
		o.Workspace = cfg.Workspace
	}
	if o.Concurrency == 0 {
		o.Concurrency = cfg.Concurrency
	}
}

// parseGlobalFlags manually parses global flags from arguments.
//
// Manual parsing is used instead of the stdlib flag package because flags
// can appear anywhere in the argument list and everything after -- must be
// preserved verbatim for the target program.
func parseGlobalFlags(args []string) (*GlobalOptions, []string, error) {
	opts := &GlobalOptions{Dir: "."}
	var remaining []string

	i := 0
	for i < len(args) {
		arg := args[i]

		switch {
		case arg == "-q" || arg == "--quiet":
			opts.Quiet = true
			opts.quietSet = true
			i++
		case arg == "-r" || arg == "--release":
			opts.Release = true
			opts.releaseSet = true
			i++
		case arg == "-w" || arg == "--workspace":
			opts.Workspace = true
			opts.workspaceSet = true
			i++
		case arg == "--manifest-path":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--manifest-path requires a value")
			}
			opts.ManifestPath = args[i+1]
			i += 2
		case strings.HasPrefix(arg, "--manifest-path="):
			opts.ManifestPath = strings.TrimPrefix(arg, "--manifest-path=")
			i++
		case arg == "--dir":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--dir requires a value")
			}
			opts.Dir = args[i+1]
			i += 2
		case arg == "--concurrency":
			if i+1 >= len(args) {
				return nil, nil, fmt.Errorf("--concurrency requires a value")
			}
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n < 1 {
				return nil, nil, fmt.Errorf("invalid --concurrency value %q", args[i+1])
			}
			opts.Concurrency = n
			i += 2
		case arg == "--":
			opts.Extra = append(opts.Extra, args[i+1:]...)
			i = len(args)
		case strings.HasPrefix(arg, "-") && arg != "-":
			return nil, nil, fmt.Errorf("unknown flag %q", arg)
		default:
			remaining = append(remaining, arg)
			i++
		}
	}

	if opts.ManifestPath != "" && opts.Dir == "." {
		opts.Dir = filepath.Dir(opts.ManifestPath)
	}
	return opts, remaining, nil
}

// selectTarget picks the target to run: an explicit name must match exactly,
// and with no name a sole target or the default binary is chosen.
func selectTarget(targets []target.Target, name string) (target.Target, error) {
	if name != "" {
		var matches []target.Target
		for _, t := range targets {
			if t.Name == name {
				matches = append(matches, t)
			}
		}
		switch len(matches) {
		case 0:
			return target.Target{}, errors.Newf("no target named %q; run 'cargox list' to see available targets", name)
		case 1:
			return matches[0], nil
		default:
			var kinds []string
			for _, m := range matches {
				kinds = append(kinds, m.Kind.Label())
			}
			return target.Target{}, errors.Newf("target name %q is ambiguous (%s)", name, strings.Join(kinds, ", "))
		}
	}

	if len(targets) == 1 {
		return targets[0], nil
	}
	for _, t := range targets {
		if t.Origin.Kind == target.OriginDefaultBinary {
			return t, nil
		}
	}
	return target.Target{}, errors.New("no target name given and no default binary found; run 'cargox list'")
}

// collectOpts translates CLI options into a collection request.
func collectOpts(opts *GlobalOptions) collect.Options {
	return collect.Options{
		Dir:          opts.Dir,
		ManifestPath: opts.ManifestPath,
		Workspace:    opts.Workspace,
		Concurrency:  opts.Concurrency,
		Out:          out,
	}
}

func commandOpts(opts *GlobalOptions) command.Options {
	return command.Options{
		Quiet:   opts.Quiet,
		Release: opts.Release,
		Extra:   opts.Extra,
	}
}

func printUsage() {
	out.Println("cargox %s - cargo target orchestration", Version)
	out.Println("")
	out.Println("Usage:")
	out.Println("  cargox [flags]                List available targets")
	out.Println("  cargox run [name] [-- args]   Run a target (default binary when omitted)")
	out.Println("  cargox run-all [flags]        Run every collected target")
	out.Println("  cargox list                   List available targets")
	out.Println("")
	out.Println("Flags:")
	out.Println("  -q, --quiet             Suppress tool output")
	out.Println("  -r, --release           Build in release mode")
	out.Println("  -w, --workspace         Collect across the whole workspace")
	out.Println("      --manifest-path <p> Use an explicit Cargo.toml")
	out.Println("      --dir <d>           Start collection from a directory")
	out.Println("      --concurrency <n>   Bound the collection worker pool")
	out.Println("")
	out.Println("Arguments after -- are passed to the target program.")
}
