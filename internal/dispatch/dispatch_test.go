package dispatch

import (
	"regexp"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDispatchOneResponsePerMatchingEntry(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(nil)
	d.AddCallback(regexp.MustCompile(`^warning:`), func(line string, caps []string, ml *atomic.Bool, st *Stats) *Response {
		return &Response{Type: TypeWarning, Message: line}
	})
	d.AddCallback(regexp.MustCompile(`warning`), func(line string, caps []string, ml *atomic.Bool, st *Stats) *Response {
		return &Response{Type: TypeUnspecified, Message: line}
	})
	d.AddCallback(regexp.MustCompile(`^error`), func(line string, caps []string, ml *atomic.Bool, st *Stats) *Response {
		return &Response{Type: TypeError, Message: line}
	})

	got := d.Dispatch("warning: unused variable")
	if len(got) != 2 {
		t.Fatalf("got %d responses, want 2", len(got))
	}
	if got[0].Type != TypeWarning || got[1].Type != TypeUnspecified {
		t.Errorf("responses out of registration order: %+v", got)
	}
}

func TestDispatchNoMatch(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(nil)
	d.AddCallback(regexp.MustCompile(`^error`), func(line string, caps []string, ml *atomic.Bool, st *Stats) *Response {
		return &Response{Type: TypeError}
	})
	if got := d.Dispatch("all good"); got != nil {
		t.Errorf("got %v, want no responses", got)
	}
}

func TestDispatchCallbackMayDecline(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(nil)
	d.AddCallback(regexp.MustCompile(`.`), func(line string, caps []string, ml *atomic.Bool, st *Stats) *Response {
		return nil
	})
	if got := d.Dispatch("anything"); got != nil {
		t.Errorf("nil callback response should produce no responses, got %v", got)
	}
}

func TestMultilineCapturesUntilCleared(t *testing.T) {
	t.Parallel()
	var collected []string
	d := NewDispatcher(nil)
	d.AddCallback(regexp.MustCompile(`^error\[E\d+\]`), func(line string, caps []string, ml *atomic.Bool, st *Stats) *Response {
		if ml.Load() {
			if strings.TrimSpace(line) == "" {
				ml.Store(false)
				return nil
			}
			collected = append(collected, line)
			return nil
		}
		ml.Store(true)
		collected = append(collected, line)
		return nil
	})

	lines := []string{
		"error[E0308]: mismatched types",
		" --> src/main.rs:2:5",
		"  |",
		"",
		"warning: unrelated",
	}
	for _, l := range lines {
		d.Dispatch(l)
	}
	want := []string{
		"error[E0308]: mismatched types",
		" --> src/main.rs:2:5",
		"  |",
	}
	if len(collected) != len(want) {
		t.Fatalf("got %d collected lines, want %d: %v", len(collected), len(want), collected)
	}
	for i := range want {
		if collected[i] != want[i] {
			t.Errorf("line %d: got %q, want %q", i, collected[i], want[i])
		}
	}
}

func TestStatsCounting(t *testing.T) {
	t.Parallel()
	stats := &Stats{}
	d := NewDispatcher(stats)
	d.AddCallback(regexp.MustCompile(`^warning`), func(line string, caps []string, ml *atomic.Bool, st *Stats) *Response {
		return &Response{Type: TypeWarning}
	})
	d.AddCallback(regexp.MustCompile(`^error`), func(line string, caps []string, ml *atomic.Bool, st *Stats) *Response {
		return &Response{Type: TypeError}
	})

	d.Dispatch("warning: a")
	d.Dispatch("warning: b")
	d.Dispatch("error: c")

	snap := stats.Snapshot()
	if snap.Warnings != 2 || snap.Errors != 1 {
		t.Errorf("got warnings=%d errors=%d", snap.Warnings, snap.Errors)
	}

	stats.Reset()
	snap = stats.Snapshot()
	if snap.Warnings != 0 || snap.Errors != 0 {
		t.Errorf("reset left counters: %+v", snap)
	}
}

func TestStatsPhaseTimings(t *testing.T) {
	t.Parallel()
	stats := &Stats{}

	stats.MarkPhase("Compiling")
	time.Sleep(10 * time.Millisecond)
	first := stats.Snapshot().Phases["Compiling"]
	stats.MarkPhase("Compiling")
	stats.MarkPhase("Finished")

	snap := stats.Snapshot()
	if len(snap.Phases) != 2 {
		t.Fatalf("got phases %v", snap.Phases)
	}
	if snap.Phases["Compiling"] != first {
		t.Errorf("repeated phase overwrote first occurrence: %v != %v", snap.Phases["Compiling"], first)
	}
	if snap.Phases["Finished"] < snap.Phases["Compiling"] {
		t.Errorf("Finished at %v before Compiling at %v", snap.Phases["Finished"], snap.Phases["Compiling"])
	}
	if snap.Elapsed <= 0 {
		t.Errorf("got elapsed %v", snap.Elapsed)
	}

	stats.Reset()
	snap = stats.Snapshot()
	if snap.Phases != nil || snap.Elapsed != 0 {
		t.Errorf("reset left timings: %+v", snap)
	}
}

func TestProcessStreamOrder(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(nil)
	d.AddCallback(regexp.MustCompile(`^line`), func(line string, caps []string, ml *atomic.Bool, st *Stats) *Response {
		return &Response{Type: TypeUnspecified, Message: line}
	})

	input := "line one\nskip\nline two\nline three\n"
	var got []string
	err := d.ProcessStream(strings.NewReader(input), func(r Response) {
		got = append(got, r.Message)
	})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"line one", "line two", "line three"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestCapturesPassedToCallback(t *testing.T) {
	t.Parallel()
	d := NewDispatcher(nil)
	var file string
	var lineNo string
	d.AddCallback(regexp.MustCompile(`--> (\S+):(\d+):(\d+)`), func(line string, caps []string, ml *atomic.Bool, st *Stats) *Response {
		file, lineNo = caps[1], caps[2]
		return &Response{Type: TypeLocation, File: caps[1]}
	})
	d.Dispatch(" --> src/lib.rs:14:9")
	if file != "src/lib.rs" || lineNo != "14" {
		t.Errorf("got file=%q line=%q", file, lineNo)
	}
}
