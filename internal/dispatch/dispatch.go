// Package dispatch routes process output lines through pattern-matched
// callbacks that classify diagnostics and report them as structured
// responses.
package dispatch

import (
	"bufio"
	"io"
	"regexp"
	"sync"
	"sync/atomic"
	"time"
)

// ResponseType classifies what a callback recognized in a line.
type ResponseType string

const (
	TypeLevelMessage ResponseType = "level-message"
	TypeWarning      ResponseType = "warning"
	TypeError        ResponseType = "error"
	TypeHelp         ResponseType = "help"
	TypeNote         ResponseType = "note"
	TypeLocation     ResponseType = "location"
	TypeOpenedUrl    ResponseType = "opened-url"
	TypeSuggestion   ResponseType = "suggestion"
	TypeUnspecified  ResponseType = "unspecified"
)

// TerminalStatus describes whether the line's context has a terminal to
// interact with.
type TerminalStatus string

const (
	TerminalNotConnected TerminalStatus = "not-connected"
	TerminalNone         TerminalStatus = "no-terminal"
	TerminalNoError      TerminalStatus = "no-error"
)

// Response is what a callback reports about a recognized line.
type Response struct {
	Type    ResponseType
	Message string
	// Location fields, populated for TypeLocation and file-bearing errors.
	File   string
	Line   int
	Column int
	// Suggestion carries recognized source-line suggestions.
	Suggestion string
	Terminal   TerminalStatus
}

// Callback inspects one line. captures holds the regexp submatches for the
// entry's pattern. Setting multiline keeps the entry capturing every
// subsequent line, pattern match or not, until the callback clears it.
type Callback func(line string, captures []string, multiline *atomic.Bool, stats *Stats) *Response

// entry pairs a pattern with its callback and the per-entry multiline flag.
type entry struct {
	pattern   *regexp.Regexp
	callback  Callback
	multiline atomic.Bool
}

// Stats counts classified lines over a run session and records when each
// build phase was first seen.
type Stats struct {
	mu          sync.Mutex
	start       time.Time
	phases      map[string]time.Duration
	Errors      int
	Warnings    int
	Notes       int
	Helps       int
	Locations   int
	Suggestions int
	URLs        int
}

// Count increments the counter for a response type.
func (s *Stats) Count(t ResponseType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.start.IsZero() {
		s.start = time.Now()
	}
	switch t {
	case TypeError:
		s.Errors++
	case TypeWarning:
		s.Warnings++
	case TypeNote:
		s.Notes++
	case TypeHelp:
		s.Helps++
	case TypeLocation:
		s.Locations++
	case TypeSuggestion:
		s.Suggestions++
	case TypeOpenedUrl:
		s.URLs++
	}
}

// MarkPhase records how long after the session started a build phase was
// first seen. Later occurrences of the same phase are ignored.
func (s *Stats) MarkPhase(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.start.IsZero() {
		s.start = time.Now()
	}
	if s.phases == nil {
		s.phases = make(map[string]time.Duration)
	}
	if _, seen := s.phases[name]; !seen {
		s.phases[name] = time.Since(s.start)
	}
}

// Snapshot is a point-in-time copy of the counters and timings.
type Snapshot struct {
	Errors      int
	Warnings    int
	Notes       int
	Helps       int
	Locations   int
	Suggestions int
	URLs        int
	// Elapsed is the time since the session's first recorded event.
	Elapsed time.Duration
	// Phases maps build phase names to the offset of their first occurrence.
	Phases map[string]time.Duration
}

// Snapshot returns a copy of the counters and timings.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Errors:      s.Errors,
		Warnings:    s.Warnings,
		Notes:       s.Notes,
		Helps:       s.Helps,
		Locations:   s.Locations,
		Suggestions: s.Suggestions,
		URLs:        s.URLs,
	}
	if !s.start.IsZero() {
		snap.Elapsed = time.Since(s.start)
	}
	if len(s.phases) > 0 {
		snap.Phases = make(map[string]time.Duration, len(s.phases))
		for name, offset := range s.phases {
			snap.Phases[name] = offset
		}
	}
	return snap
}

// Reset zeroes the counters and timings for a new run session.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Errors, s.Warnings, s.Notes, s.Helps = 0, 0, 0, 0
	s.Locations, s.Suggestions, s.URLs = 0, 0, 0
	s.start = time.Time{}
	s.phases = nil
}

// Dispatcher holds an ordered list of callback entries for one output
// stream.
type Dispatcher struct {
	entries []*entry
	stats   *Stats
}

// NewDispatcher returns a Dispatcher recording into stats.
func NewDispatcher(stats *Stats) *Dispatcher {
	if stats == nil {
		stats = &Stats{}
	}
	return &Dispatcher{stats: stats}
}

// Stats returns the dispatcher's session statistics.
func (d *Dispatcher) Stats() *Stats {
	return d.stats
}

// AddCallback registers a pattern and its callback. Entries fire in
// registration order.
func (d *Dispatcher) AddCallback(pattern *regexp.Regexp, cb Callback) {
	d.entries = append(d.entries, &entry{pattern: pattern, callback: cb})
}

// Dispatch feeds one line to every entry whose pattern matches, or whose
// multiline flag is set. Each entry contributes at most one response per
// line; response order follows registration order.
func (d *Dispatcher) Dispatch(line string) []Response {
	var responses []Response
	for _, e := range d.entries {
		var captures []string
		if e.multiline.Load() {
			captures = []string{line}
		} else {
			captures = e.pattern.FindStringSubmatch(line)
			if captures == nil {
				continue
			}
		}
		if resp := e.callback(line, captures, &e.multiline, d.stats); resp != nil {
			d.stats.Count(resp.Type)
			responses = append(responses, *resp)
		}
	}
	return responses
}

// ProcessStream reads r line by line, dispatching each line in order, and
// invokes emit for every response. Returns when the stream closes.
func (d *Dispatcher) ProcessStream(r io.Reader, emit func(Response)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		for _, resp := range d.Dispatch(scanner.Text()) {
			if emit != nil {
				emit(resp)
			}
		}
	}
	return scanner.Err()
}
