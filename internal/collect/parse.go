package collect

import "strings"

// ParseAvailable extracts available items (binaries or examples) from cargo's
// diagnostic output. Invoking `cargo run --bin` or `cargo run --example`
// without a name makes cargo print a marker of the form "Available <item>:"
// followed by one indented name per line.
func ParseAvailable(stderr, item string) []string {
	marker := "Available " + item + ":"
	var available []string
	collecting := false
	for _, line := range strings.Split(stderr, "\n") {
		if collecting {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" {
				available = append(available, trimmed)
			}
		}
		if strings.Contains(line, marker) {
			collecting = true
		}
	}
	return available
}
