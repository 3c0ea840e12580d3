package plugin

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DirName is the per-user and per-project plugin directory name.
const DirName = ".cargox"

// Dirs returns the plugin search path: the user's home plugin directory, the
// project's plugin directory, then any extra configured directories.
// Missing directories are fine; the loader skips them.
func Dirs(projectDir string, extra []string) []string {
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, DirName, "plugins"))
	}
	if projectDir != "" {
		dirs = append(dirs, filepath.Join(projectDir, DirName, "plugins"))
	}
	return append(dirs, extra...)
}

// LoadAll loads every plugin found in dirs. A file that fails to load is
// reported through onError and skipped; loading never fails as a whole.
func LoadAll(dirs []string, onError func(path string, err error)) []Plugin {
	var plugins []Plugin
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(dir, e.Name())
			p, err := load(path)
			if err != nil {
				if onError != nil {
					onError(path, err)
				}
				continue
			}
			if p != nil {
				plugins = append(plugins, p)
			}
		}
	}
	return plugins
}

// load dispatches on the file's extension. Unrecognized files are ignored
// rather than treated as errors so plugin directories can hold docs and
// support files.
func load(path string) (Plugin, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".lua":
		return LoadLua(path)
	case ".wasm", ".so", ".dll", ".dylib":
		return LoadArtifact(path)
	case "", ".exe":
		if !isExecutable(path) {
			return nil, nil
		}
		return LoadExternal(path)
	default:
		return nil, nil
	}
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return strings.EqualFold(filepath.Ext(path), ".exe")
	}
	return info.Mode()&0o111 != 0
}
