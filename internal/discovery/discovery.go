// Package discovery performs the static filesystem scan of a project root,
// producing candidate targets from conventional locations: the examples
// directory, src/bin, the default binary, tests, and subprojects carrying
// their own manifest.
package discovery

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/tobyg/cargox/internal/manifest"
	"github.com/tobyg/cargox/internal/target"
)

// ExtendedDirName is the conventional directory probed for additional
// subprojects outside the primary manifest's own target list.
const ExtendedDirName = "ext"

// DetermineKind classifies a source file. Alt-toolchain markers near the
// manifest take precedence; otherwise a file that contains fn main is an
// example or binary depending on the example flag, and anything else is
// Unknown.
func DetermineKind(manifestPath, filePath, contents string, example, extended bool) target.Kind {
	manifestDir := filepath.Dir(manifestPath)

	if filepath.Base(manifestDir) == "src-tauri" || fileExists(filepath.Join(manifestDir, "tauri.conf.json")) {
		if example {
			return target.KindManifestTauriExample
		}
		return target.KindManifestTauri
	}
	if fileExists(filepath.Join(manifestDir, "Dioxus.toml")) || strings.Contains(contents, "dioxus::") {
		if example {
			return target.KindManifestDioxusExample
		}
		return target.KindManifestDioxus
	}
	if fileExists(filepath.Join(manifestDir, "Trunk.toml")) || strings.Contains(contents, "leptos::") {
		return target.KindManifestLeptos
	}

	if !strings.Contains(contents, "fn main") {
		return target.KindUnknown
	}
	switch {
	case example && extended:
		return target.KindExtendedExample
	case example:
		return target.KindExample
	case extended:
		return target.KindExtendedBinary
	default:
		return target.KindBinary
	}
}

// FromSourceFile builds a target for one source file, or false when the file
// cannot be classified.
func FromSourceFile(filePath, manifestPath string, example, extended bool) (target.Target, bool) {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		return target.Target{}, false
	}
	kind := DetermineKind(manifestPath, filePath, string(contents), example, extended)
	if kind == target.KindUnknown {
		return target.Target{}, false
	}
	stem := strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	name := stem
	if stem == "main" {
		// src/main.rs and examples/<dir>/main.rs are named after their
		// enclosing project or example directory.
		parent := filepath.Dir(filePath)
		if filepath.Base(parent) == "src" {
			parent = filepath.Dir(parent)
		}
		name = filepath.Base(parent)
	}
	return target.Target{
		Name:         name,
		DisplayName:  name,
		ManifestPath: manifestPath,
		Kind:         kind,
		Extended:     extended,
		Origin:       target.Origin{Kind: target.OriginSingleFile, Path: filePath},
	}, true
}

// ScanExamplesDir scans the examples directory next to the manifest:
// top-level .rs files become single-file targets, subdirectories with a
// main.rs become multi-file targets, and subdirectories with their own
// Cargo.toml become subproject manifest targets.
func ScanExamplesDir(manifestPath string, extended bool) []target.Target {
	dir := filepath.Join(filepath.Dir(manifestPath), "examples")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var targets []target.Target
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if !e.IsDir() {
			if filepath.Ext(e.Name()) != ".rs" {
				continue
			}
			if t, ok := FromSourceFile(path, manifestPath, true, extended); ok {
				targets = append(targets, t)
			}
			continue
		}
		if subManifest := filepath.Join(path, manifest.FileName); fileExists(subManifest) {
			targets = append(targets, manifestTarget(e.Name(), subManifest))
			continue
		}
		if mainFile := filepath.Join(path, "main.rs"); fileExists(mainFile) {
			if t, ok := FromSourceFile(mainFile, manifestPath, true, extended); ok {
				t.Name = e.Name()
				t.DisplayName = e.Name()
				t.Origin = target.Origin{Kind: target.OriginMultiFile, Path: path}
				targets = append(targets, t)
			}
		}
	}
	return targets
}

// ScanBinDir scans src/bin for binary source files and directories.
func ScanBinDir(manifestPath string, extended bool) []target.Target {
	dir := filepath.Join(filepath.Dir(manifestPath), "src", "bin")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var targets []target.Target
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if e.IsDir() {
			if mainFile := filepath.Join(path, "main.rs"); fileExists(mainFile) {
				if t, ok := FromSourceFile(mainFile, manifestPath, false, extended); ok {
					t.Name = e.Name()
					t.DisplayName = e.Name()
					t.Origin = target.Origin{Kind: target.OriginMultiFile, Path: path}
					targets = append(targets, t)
				}
			}
			continue
		}
		if filepath.Ext(e.Name()) != ".rs" {
			continue
		}
		if t, ok := FromSourceFile(path, manifestPath, false, extended); ok {
			targets = append(targets, t)
		}
	}
	return targets
}

// DefaultBinaryTarget returns the src/main.rs default binary, named after
// the package (falling back to the project directory name).
func DefaultBinaryTarget(manifestPath string, extended bool) (target.Target, bool) {
	mainFile := filepath.Join(filepath.Dir(manifestPath), "src", "main.rs")
	if !fileExists(mainFile) {
		return target.Target{}, false
	}
	t, ok := FromSourceFile(mainFile, manifestPath, false, extended)
	if !ok {
		return target.Target{}, false
	}
	if name, found := manifest.PackageName(manifestPath); found {
		t.Name = name
		t.DisplayName = name
	}
	t.Origin = target.Origin{Kind: target.OriginDefaultBinary, Path: mainFile}
	return t, true
}

// ScanTestsDir lists tests/*.rs as test targets.
func ScanTestsDir(manifestPath string) []target.Target {
	dir := filepath.Join(filepath.Dir(manifestPath), "tests")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var targets []target.Target
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".rs" {
			continue
		}
		name := strings.TrimSuffix(e.Name(), ".rs")
		targets = append(targets, target.Target{
			Name:         name,
			DisplayName:  name,
			ManifestPath: manifestPath,
			Kind:         target.KindTest,
			Origin:       target.Origin{Kind: target.OriginSingleFile, Path: filepath.Join(dir, e.Name())},
		})
	}
	return targets
}

// ScanSubProjectManifests returns the manifest paths of direct subdirectories
// of root that carry their own Cargo.toml.
func ScanSubProjectManifests(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var manifests []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") || e.Name() == "target" {
			continue
		}
		subManifest := filepath.Join(root, e.Name(), manifest.FileName)
		if fileExists(subManifest) {
			manifests = append(manifests, subManifest)
		}
	}
	return manifests
}

// ScanExtendedDir probes the ext/ directory under root for subprojects with
// their own manifest. Targets collected from these manifests are extended.
func ScanExtendedDir(root string) []string {
	return ScanSubProjectManifests(filepath.Join(root, ExtendedDirName))
}

// manifestTarget builds a Manifest-kind target for a subproject.
func manifestTarget(name, manifestPath string) target.Target {
	return target.Target{
		Name:         name,
		DisplayName:  name,
		ManifestPath: manifestPath,
		Kind:         target.KindManifest,
		Extended:     true,
		Origin:       target.Origin{Kind: target.OriginSubProject, Path: manifestPath},
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
