// Package diagnostics configures output dispatchers with the patterns cargo
// and rustc emit: compiler errors with their multiline bodies, warnings,
// source locations, notes, help text, suggestion lines, panics, and dev
// server URLs.
package diagnostics

import (
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/tobyg/cargox/internal/dispatch"
)

var (
	errorCodeRe  = regexp.MustCompile(`^error\[E\d+\]: (.*)`)
	plainErrorRe = regexp.MustCompile(`^error: (.*)`)
	warningRe    = regexp.MustCompile(`^warning: (.*)`)
	locationRe   = regexp.MustCompile(`-->\s+(\S+?):(\d+):(\d+)`)
	noteRe       = regexp.MustCompile(`^\s*note: (.*)`)
	helpRe       = regexp.MustCompile(`^\s*help: (.*)`)
	suggestionRe = regexp.MustCompile(`^\s*(\d+)\s*\|\s?(.*)`)
	panicRe      = regexp.MustCompile(`thread '([^']*)' panicked at (.*)`)
	serverURLRe  = regexp.MustCompile(`(https?://(?:localhost|127\.0\.0\.1|0\.0\.0\.0)[^\s]*)`)
	phaseRe      = regexp.MustCompile(`^\s*(Compiling|Finished|Running)\b`)
)

// NewStderrDispatcher builds the dispatcher for the compiler/runtime stderr
// stream.
func NewStderrDispatcher(stats *dispatch.Stats) *dispatch.Dispatcher {
	d := dispatch.NewDispatcher(stats)

	// Cargo's phase headers mark build progress; only the first occurrence
	// of each phase is timed.
	d.AddCallback(phaseRe, func(line string, caps []string, ml *atomic.Bool, st *dispatch.Stats) *dispatch.Response {
		st.MarkPhase(caps[1])
		return nil
	})

	// error[Exxxx] starts a multiline diagnostic; everything until the next
	// blank line belongs to it.
	d.AddCallback(errorCodeRe, func(line string, caps []string, ml *atomic.Bool, st *dispatch.Stats) *dispatch.Response {
		if ml.Load() {
			if strings.TrimSpace(line) == "" {
				ml.Store(false)
				return nil
			}
			return &dispatch.Response{Type: dispatch.TypeLevelMessage, Message: line}
		}
		ml.Store(true)
		return &dispatch.Response{Type: dispatch.TypeError, Message: caps[1]}
	})

	d.AddCallback(panicRe, func(line string, caps []string, ml *atomic.Bool, st *dispatch.Stats) *dispatch.Response {
		return &dispatch.Response{
			Type:    dispatch.TypeError,
			Message: "thread '" + caps[1] + "' panicked at " + caps[2],
		}
	})

	d.AddCallback(plainErrorRe, func(line string, caps []string, ml *atomic.Bool, st *dispatch.Stats) *dispatch.Response {
		if strings.HasPrefix(line, "error[") {
			// Coded errors are handled above.
			return nil
		}
		return &dispatch.Response{Type: dispatch.TypeError, Message: caps[1]}
	})

	d.AddCallback(warningRe, func(line string, caps []string, ml *atomic.Bool, st *dispatch.Stats) *dispatch.Response {
		return &dispatch.Response{Type: dispatch.TypeWarning, Message: caps[1]}
	})

	d.AddCallback(locationRe, func(line string, caps []string, ml *atomic.Bool, st *dispatch.Stats) *dispatch.Response {
		lineNo, _ := strconv.Atoi(caps[2])
		col, _ := strconv.Atoi(caps[3])
		return &dispatch.Response{
			Type:   dispatch.TypeLocation,
			File:   caps[1],
			Line:   lineNo,
			Column: col,
		}
	})

	d.AddCallback(noteRe, func(line string, caps []string, ml *atomic.Bool, st *dispatch.Stats) *dispatch.Response {
		return &dispatch.Response{Type: dispatch.TypeNote, Message: caps[1]}
	})

	d.AddCallback(helpRe, func(line string, caps []string, ml *atomic.Bool, st *dispatch.Stats) *dispatch.Response {
		return &dispatch.Response{Type: dispatch.TypeHelp, Message: caps[1]}
	})

	// "N | source" gutter lines carry the suggested or offending source.
	d.AddCallback(suggestionRe, func(line string, caps []string, ml *atomic.Bool, st *dispatch.Stats) *dispatch.Response {
		return &dispatch.Response{Type: dispatch.TypeSuggestion, Suggestion: caps[2]}
	})

	return d
}

// NewStdoutDispatcher builds the dispatcher for the target's stdout stream.
// Dev server URLs are reported as responses; nothing is launched on the
// user's behalf.
func NewStdoutDispatcher(stats *dispatch.Stats) *dispatch.Dispatcher {
	d := dispatch.NewDispatcher(stats)
	d.AddCallback(serverURLRe, func(line string, caps []string, ml *atomic.Bool, st *dispatch.Stats) *dispatch.Response {
		return &dispatch.Response{Type: dispatch.TypeOpenedUrl, Message: caps[1]}
	})
	return d
}
