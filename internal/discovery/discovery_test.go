package discovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tobyg/cargox/internal/target"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newProject(t *testing.T) (root, manifestPath string) {
	t.Helper()
	root = t.TempDir()
	manifestPath = filepath.Join(root, "Cargo.toml")
	writeFile(t, manifestPath, "[package]\nname = \"demo\"\n")
	return root, manifestPath
}

func TestDetermineKind(t *testing.T) {
	t.Parallel()
	_, manifestPath := newProject(t)
	tests := []struct {
		name     string
		contents string
		example  bool
		extended bool
		want     target.Kind
	}{
		{"example", "fn main() {}", true, false, target.KindExample},
		{"extended example", "fn main() {}", true, true, target.KindExtendedExample},
		{"binary", "fn main() {}", false, false, target.KindBinary},
		{"extended binary", "fn main() {}", false, true, target.KindExtendedBinary},
		{"no main", "pub fn lib() {}", false, false, target.KindUnknown},
		{"dioxus marker", "use dioxus::prelude::*;\nfn main() {}", false, false, target.KindManifestDioxus},
		{"leptos marker", "use leptos::*;\nfn main() {}", false, false, target.KindManifestLeptos},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DetermineKind(manifestPath, "x.rs", tt.contents, tt.example, tt.extended)
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDetermineKindTauriDir(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	manifestPath := filepath.Join(root, "src-tauri", "Cargo.toml")
	writeFile(t, manifestPath, "[package]\nname = \"app\"\n")

	got := DetermineKind(manifestPath, "main.rs", "fn main() {}", false, false)
	if got != target.KindManifestTauri {
		t.Errorf("got %s, want %s", got, target.KindManifestTauri)
	}
	got = DetermineKind(manifestPath, "demo.rs", "fn main() {}", true, false)
	if got != target.KindManifestTauriExample {
		t.Errorf("got %s, want %s", got, target.KindManifestTauriExample)
	}
}

func TestScanExamplesDir(t *testing.T) {
	t.Parallel()
	root, manifestPath := newProject(t)
	writeFile(t, filepath.Join(root, "examples", "one.rs"), "fn main() {}")
	writeFile(t, filepath.Join(root, "examples", "notes.txt"), "not a target")
	writeFile(t, filepath.Join(root, "examples", "multi", "main.rs"), "fn main() {}")
	writeFile(t, filepath.Join(root, "examples", "subproj", "Cargo.toml"), "[package]\nname = \"subproj\"\n")

	targets := ScanExamplesDir(manifestPath, false)
	if len(targets) != 3 {
		t.Fatalf("got %d targets, want 3: %+v", len(targets), targets)
	}
	byName := make(map[string]target.Target)
	for _, tgt := range targets {
		byName[tgt.Name] = tgt
	}
	if tgt := byName["one"]; tgt.Kind != target.KindExample || tgt.Origin.Kind != target.OriginSingleFile {
		t.Errorf("one: got kind=%s origin=%s", tgt.Kind, tgt.Origin.Kind)
	}
	if tgt := byName["multi"]; tgt.Kind != target.KindExample || tgt.Origin.Kind != target.OriginMultiFile {
		t.Errorf("multi: got kind=%s origin=%s", tgt.Kind, tgt.Origin.Kind)
	}
	if tgt := byName["subproj"]; tgt.Kind != target.KindManifest || !tgt.Extended {
		t.Errorf("subproj: got kind=%s extended=%v", tgt.Kind, tgt.Extended)
	}
}

func TestScanBinDir(t *testing.T) {
	t.Parallel()
	root, manifestPath := newProject(t)
	writeFile(t, filepath.Join(root, "src", "bin", "tool.rs"), "fn main() {}")
	writeFile(t, filepath.Join(root, "src", "bin", "nested", "main.rs"), "fn main() {}")

	targets := ScanBinDir(manifestPath, false)
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2", len(targets))
	}
	names := map[string]bool{}
	for _, tgt := range targets {
		names[tgt.Name] = true
		if tgt.Kind != target.KindBinary {
			t.Errorf("%s: got kind %s, want %s", tgt.Name, tgt.Kind, target.KindBinary)
		}
	}
	if !names["tool"] || !names["nested"] {
		t.Errorf("missing expected targets: %v", names)
	}
}

func TestDefaultBinaryTarget(t *testing.T) {
	t.Parallel()
	root, manifestPath := newProject(t)
	writeFile(t, filepath.Join(root, "src", "main.rs"), "fn main() {}")

	tgt, ok := DefaultBinaryTarget(manifestPath, false)
	if !ok {
		t.Fatal("expected default binary target")
	}
	if tgt.Name != "demo" {
		t.Errorf("got name %q, want package name demo", tgt.Name)
	}
	if tgt.Origin.Kind != target.OriginDefaultBinary {
		t.Errorf("got origin %s, want %s", tgt.Origin.Kind, target.OriginDefaultBinary)
	}
}

func TestDefaultBinaryTargetAbsent(t *testing.T) {
	t.Parallel()
	_, manifestPath := newProject(t)
	if _, ok := DefaultBinaryTarget(manifestPath, false); ok {
		t.Error("no src/main.rs: expected no default binary")
	}
}

func TestScanTestsDir(t *testing.T) {
	t.Parallel()
	root, manifestPath := newProject(t)
	writeFile(t, filepath.Join(root, "tests", "integration.rs"), "#[test]\nfn ok() {}")

	targets := ScanTestsDir(manifestPath)
	if len(targets) != 1 {
		t.Fatalf("got %d targets, want 1", len(targets))
	}
	if targets[0].Name != "integration" || targets[0].Kind != target.KindTest {
		t.Errorf("got %s/%s", targets[0].Name, targets[0].Kind)
	}
}

func TestScanExtendedDir(t *testing.T) {
	t.Parallel()
	root, _ := newProject(t)
	writeFile(t, filepath.Join(root, "ext", "extra", "Cargo.toml"), "[package]\nname = \"extra\"\n")
	writeFile(t, filepath.Join(root, "ext", "plain", "README.md"), "no manifest here")

	manifests := ScanExtendedDir(root)
	if len(manifests) != 1 {
		t.Fatalf("got %d manifests, want 1: %v", len(manifests), manifests)
	}
	if filepath.Base(filepath.Dir(manifests[0])) != "extra" {
		t.Errorf("unexpected manifest %q", manifests[0])
	}
}
