// Package manifest locates and inspects Cargo.toml files: nearest-manifest
// resolution, workspace membership, and required-feature lookup.
package manifest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/tobyg/cargox/internal/errors"
	"github.com/tobyg/cargox/internal/target"
)

// FileName is the package manifest file name.
const FileName = "Cargo.toml"

// document mirrors the manifest tables cargox cares about. Everything else
// in the manifest is ignored.
type document struct {
	Package   *packageTable   `toml:"package"`
	Workspace *workspaceTable `toml:"workspace"`
	Bin       []targetEntry   `toml:"bin"`
	Example   []targetEntry   `toml:"example"`
	Test      []targetEntry   `toml:"test"`
	Bench     []targetEntry   `toml:"bench"`
}

type packageTable struct {
	Name string `toml:"name"`
}

type workspaceTable struct {
	Members []string `toml:"members"`
}

type targetEntry struct {
	Name             string   `toml:"name"`
	Path             string   `toml:"path"`
	RequiredFeatures []string `toml:"required-features"`
}

// FindManifestDirFrom walks up from start until it finds a directory
// containing Cargo.toml.
func FindManifestDirFrom(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.ManifestNotFound(start)
		}
		dir = parent
	}
}

// LocateManifest returns the path of the nearest Cargo.toml walking upward
// from startDir. With workspace set, it keeps walking until it finds a
// workspace-level manifest and fails if none exists.
func LocateManifest(startDir string, workspace bool) (string, error) {
	dir, err := FindManifestDirFrom(startDir)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName)
	if !workspace {
		return path, nil
	}
	for {
		if IsWorkspaceManifest(path) {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", errors.ManifestNotFound(startDir)
		}
		dir, err = FindManifestDirFrom(parent)
		if err != nil {
			return "", errors.ManifestNotFound(startDir)
		}
		path = filepath.Join(dir, FileName)
	}
}

// IsWorkspaceManifest reports whether the Cargo.toml at path declares a
// [workspace] section. A line scan is deliberate: the manifest may be
// malformed TOML and this check must still work.
func IsWorkspaceManifest(path string) bool {
	content, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(content), "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "[workspace]") {
			return true
		}
	}
	return false
}

// Member is one workspace member: its derived name and manifest path.
type Member struct {
	Name         string
	ManifestPath string
}

// WorkspaceMemberManifestPaths parses the workspace member list of the
// manifest at path. Glob-suffixed entries ("dir/*") are expanded by scanning
// dir for subdirectories that contain their own Cargo.toml. Returns
// (nil, nil) when no members resolve.
func WorkspaceMemberManifestPaths(path string) ([]Member, error) {
	var doc document
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, errors.WorkspaceParse(path, err)
	}
	if doc.Workspace == nil {
		return nil, nil
	}
	root := filepath.Dir(path)

	var members []Member
	for _, entry := range doc.Workspace.Members {
		if strings.Contains(entry, "*") {
			members = append(members, expandMemberGlob(root, entry)...)
			continue
		}
		memberManifest := filepath.Join(root, filepath.FromSlash(entry), FileName)
		if _, err := os.Stat(memberManifest); err != nil {
			continue
		}
		members = append(members, Member{
			Name:         filepath.Base(filepath.FromSlash(entry)),
			ManifestPath: memberManifest,
		})
	}
	if len(members) == 0 {
		return nil, nil
	}
	return members, nil
}

// expandMemberGlob expands a "dir/*" member entry by scanning dir for
// subdirectories that contain a Cargo.toml.
func expandMemberGlob(root, entry string) []Member {
	base := strings.TrimSuffix(entry, "/*")
	dir := filepath.Join(root, filepath.FromSlash(base))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var members []Member
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		memberManifest := filepath.Join(dir, e.Name(), FileName)
		if _, err := os.Stat(memberManifest); err != nil {
			continue
		}
		members = append(members, Member{Name: e.Name(), ManifestPath: memberManifest})
	}
	return members
}

// PackageName returns the [package] name declared in the manifest.
func PackageName(path string) (string, bool) {
	var doc document
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return "", false
	}
	if doc.Package == nil || doc.Package.Name == "" {
		return "", false
	}
	return doc.Package.Name, true
}

// RequiredFeatures returns the comma-separated required-features list
// declared for the named target in the section matching its kind. When the
// manifest is a workspace manifest and the target is not declared locally,
// workspace members are searched recursively.
func RequiredFeatures(manifestPath string, kind target.Kind, name string) (string, bool) {
	section := kind.Section()
	if section == "" {
		return "", false
	}
	var doc document
	if _, err := toml.DecodeFile(manifestPath, &doc); err != nil {
		return "", false
	}
	var entries []targetEntry
	switch section {
	case "bin":
		entries = doc.Bin
	case "example":
		entries = doc.Example
	case "test":
		entries = doc.Test
	case "bench":
		entries = doc.Bench
	}
	for _, entry := range entries {
		if entry.Name == name && len(entry.RequiredFeatures) > 0 {
			return strings.Join(entry.RequiredFeatures, ","), true
		}
	}

	if doc.Workspace != nil {
		members, err := WorkspaceMemberManifestPaths(manifestPath)
		if err != nil {
			return "", false
		}
		for _, m := range members {
			if feats, ok := RequiredFeatures(m.ManifestPath, kind, name); ok {
				return feats, true
			}
		}
	}
	return "", false
}
