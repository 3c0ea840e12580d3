// Package history records which targets have been run, one name per line,
// so repeat runs can be surfaced in listings.
package history

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// DefaultFileName is the history file kept in the project's .cargox
// directory.
const DefaultFileName = "run_history.txt"

// DefaultPath returns the history file path for a project directory.
func DefaultPath(projectDir string) string {
	return filepath.Join(projectDir, ".cargox", DefaultFileName)
}

// Read returns run counts per target name. A missing file is an empty
// history, not an error.
func Read(path string) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]int{}, nil
		}
		return nil, err
	}
	defer f.Close()

	counts := map[string]int{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name := strings.TrimSpace(scanner.Text())
		if name != "" {
			counts[name]++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}

// Record appends one run to the history file, creating the directory and
// file as needed.
func Record(path, name string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(name + "\n")
	return err
}
