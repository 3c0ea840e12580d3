// Package target defines the Target model produced by collection and
// consumed by the command builder and runner.
package target

import (
	"sort"
)

// Kind identifies how a target is built and run.
type Kind string

const (
	KindUnknown        Kind = "unknown"
	KindExample        Kind = "example"
	KindExtendedExample Kind = "extended-example"
	KindBinary         Kind = "binary"
	KindExtendedBinary Kind = "extended-binary"
	KindTest           Kind = "test"
	KindBench          Kind = "bench"
	// KindManifest is a package-level target: run the whole manifest.
	KindManifest Kind = "manifest"
	// Alt-toolchain kinds. These are not run through plain `cargo run`;
	// see the command builder for the executables they require.
	KindManifestTauri         Kind = "tauri"
	KindManifestTauriExample  Kind = "tauri-example"
	KindManifestDioxus        Kind = "dioxus"
	KindManifestDioxusExample Kind = "dioxus-example"
	KindManifestLeptos        Kind = "leptos"
	// KindPlugin marks a target contributed by an external plugin.
	KindPlugin Kind = "plugin"
)

// Section returns the Cargo.toml section that may declare required-features
// for this kind, or "" when the kind has no such section.
func (k Kind) Section() string {
	switch k {
	case KindExample, KindExtendedExample, KindManifestTauriExample, KindManifestDioxusExample:
		return "example"
	case KindBinary, KindExtendedBinary, KindManifestTauri, KindManifestDioxus, KindManifestLeptos:
		return "bin"
	case KindTest:
		return "test"
	case KindBench:
		return "bench"
	default:
		return ""
	}
}

// Label returns the short presentation label for this kind.
func (k Kind) Label() string {
	switch k {
	case KindExample:
		return "ex."
	case KindExtendedExample:
		return "exx"
	case KindBinary:
		return "bin"
	case KindExtendedBinary:
		return "binx"
	case KindTest:
		return "test"
	case KindBench:
		return "bench"
	case KindManifest:
		return "manifest"
	case KindManifestTauri:
		return "tauri"
	case KindManifestTauriExample:
		return "tauri-e"
	case KindManifestDioxus:
		return "dioxus"
	case KindManifestDioxusExample:
		return "dioxus-e"
	case KindManifestLeptos:
		return "leptos"
	case KindPlugin:
		return "plugin"
	default:
		return "unknown"
	}
}

// IsExample reports whether the kind selects an example target.
func (k Kind) IsExample() bool {
	switch k {
	case KindExample, KindExtendedExample, KindManifestTauriExample, KindManifestDioxusExample:
		return true
	}
	return false
}

// OriginKind identifies where a target was discovered.
type OriginKind string

const (
	OriginSingleFile    OriginKind = "single-file"
	OriginMultiFile     OriginKind = "multi-file"
	OriginSubProject    OriginKind = "sub-project"
	OriginDefaultBinary OriginKind = "default-binary"
	OriginNamed         OriginKind = "named"
	OriginPlugin        OriginKind = "plugin"
)

// Origin records the discovery source of a target.
type Origin struct {
	Kind OriginKind
	// Path is the source file, directory, or manifest the target came from.
	// For OriginNamed it is empty and Name carries the identifier.
	Path string
	Name string
	// Plugin origins carry the plugin file and the path the plugin reported.
	PluginPath string
	Reported   string
}

// Target is a discovered runnable/buildable unit. Targets are created fresh
// on every collection pass and never persisted.
type Target struct {
	Name         string
	DisplayName  string
	ManifestPath string
	Kind         Kind
	// Extended marks a target discovered outside the primary manifest's own
	// target list (workspace member, ext/ subproject, plugin).
	Extended bool
	// TomlSpecified marks a target explicitly declared in the manifest, as
	// opposed to inferred from filesystem convention.
	TomlSpecified bool
	Origin        Origin
}

// DisplayLabel returns the kind label, with a '*' suffix when the target is
// explicitly declared in its manifest.
func (t Target) DisplayLabel() string {
	label := t.Kind.Label()
	if t.TomlSpecified {
		label += "*"
	}
	return label
}

// key is the uniqueness triple for deduplication.
type key struct {
	name     string
	kind     Kind
	extended bool
}

// Dedup removes duplicate targets. Two passes:
//
//  1. Name-collision precedence: when the same name appears both extended and
//     non-extended, workspace mode keeps the extended (member-declared) entry
//     and non-workspace mode keeps the builtin entry. Running from inside a
//     single crate should prefer that crate's own targets; running across a
//     workspace should prefer member-declared targets.
//  2. Triple uniqueness: at most one entry per (name, kind, extended),
//     keeping the first.
//
// The result is sorted by name then kind so that output does not depend on
// collection-job completion order.
func Dedup(targets []Target, workspaceMode bool) []Target {
	drop := make(map[key]bool)
	byName := make(map[string][]Target)
	for _, t := range targets {
		byName[t.Name] = append(byName[t.Name], t)
	}
	for _, group := range byName {
		hasExtended, hasBuiltin := false, false
		for _, t := range group {
			if t.Extended {
				hasExtended = true
			} else {
				hasBuiltin = true
			}
		}
		if !hasExtended || !hasBuiltin {
			continue
		}
		for _, t := range group {
			if workspaceMode && !t.Extended {
				drop[key{t.Name, t.Kind, t.Extended}] = true
			}
			if !workspaceMode && t.Extended {
				drop[key{t.Name, t.Kind, t.Extended}] = true
			}
		}
	}

	seen := make(map[key]bool)
	result := make([]Target, 0, len(targets))
	for _, t := range targets {
		k := key{t.Name, t.Kind, t.Extended}
		if drop[k] || seen[k] {
			continue
		}
		seen[k] = true
		result = append(result, t)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Kind < result[j].Kind
	})
	return result
}

// PreferSingleFileOrigins drops DefaultBinary targets whose source file is
// also claimed by a SingleFile target of the same path. A file explicitly
// discovered as a single-file target carries more information than the
// default-binary fallback.
func PreferSingleFileOrigins(targets []Target) []Target {
	singles := make(map[string]bool)
	for _, t := range targets {
		if t.Origin.Kind == OriginSingleFile {
			singles[t.Origin.Path] = true
		}
	}
	result := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t.Origin.Kind == OriginDefaultBinary && singles[t.Origin.Path] {
			continue
		}
		result = append(result, t)
	}
	return result
}
