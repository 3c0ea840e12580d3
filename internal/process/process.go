// Package process tracks spawned target processes, waits for their results,
// and terminates them on demand or on an interrupt signal.
package process

import (
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/tobyg/cargox/internal/errors"
)

// waitPollInterval is the cadence at which Wait re-checks a handle for a
// recorded result.
const waitPollInterval = 100 * time.Millisecond

// Result describes a finished process.
type Result struct {
	ExitCode  int
	Exited    bool
	StartTime time.Time
	EndTime   time.Time
}

// Handle tracks one spawned process. The watcher goroutine writes the result
// exactly once and closes done.
type Handle struct {
	Cmd       *exec.Cmd
	StartTime time.Time

	mu     sync.Mutex
	result *Result
	done   chan struct{}
}

// Result returns the recorded result, or false while the process is still
// running.
func (h *Handle) Result() (Result, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.result == nil {
		return Result{}, false
	}
	return *h.result, true
}

// Done returns a channel closed when the process result is recorded.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

func (h *Handle) record(exitCode int, exited bool) {
	h.mu.Lock()
	h.result = &Result{
		ExitCode:  exitCode,
		Exited:    exited,
		StartTime: h.StartTime,
		EndTime:   time.Now(),
	}
	h.mu.Unlock()
	close(h.done)
}

// Manager owns the table of live process handles. All table operations are
// safe for concurrent use; kill operations never hold the table lock while
// signalling.
type Manager struct {
	mu      sync.Mutex
	handles map[int]*Handle
	// finished retains the last result per pid so Wait works even when the
	// watcher already removed the live handle.
	finished map[int]Result

	sigCh     chan os.Signal
	stopRelay chan struct{}

	signalled sync.Once
	// interrupted counts received interrupt signals; a second interrupt
	// while cleanup is in flight exits immediately.
	interruptCount int
	countMu        sync.Mutex
}

// NewManager returns an empty Manager.
func NewManager() *Manager {
	return &Manager{
		handles:  make(map[int]*Handle),
		finished: make(map[int]Result),
	}
}

// Register starts tracking a started command and spawns its watcher. The
// watcher records the exit status and removes the handle from the table.
//
// cmd.Wait closes the command's pipes, so when the caller reads the
// command's StdoutPipe or StderrPipe it must pass a readersDone channel and
// close it once reading finishes; the watcher does not call Wait before
// then. Callers that attach no pipes pass nil.
func (m *Manager) Register(cmd *exec.Cmd, readersDone <-chan struct{}) *Handle {
	h := &Handle{
		Cmd:       cmd,
		StartTime: time.Now(),
		done:      make(chan struct{}),
	}
	pid := cmd.Process.Pid

	m.mu.Lock()
	// A reused pid must not surface the previous process's result.
	delete(m.finished, pid)
	m.handles[pid] = h
	m.mu.Unlock()

	go func() {
		if readersDone != nil {
			<-readersDone
		}
		err := cmd.Wait()
		code, exited := 0, true
		if err != nil {
			if ee, ok := err.(*exec.ExitError); ok {
				code = ee.ExitCode()
				// A negative code means the process was signalled rather
				// than exiting on its own.
				if code < 0 {
					code, exited = 1, false
				}
			} else {
				code, exited = 1, false
			}
		}
		h.record(code, exited)

		m.mu.Lock()
		delete(m.handles, pid)
		res, _ := h.Result()
		m.finished[pid] = res
		m.mu.Unlock()
	}()

	return h
}

// Get returns the live handle for pid.
func (m *Manager) Get(pid int) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[pid]
	return h, ok
}

// List returns the pids currently tracked.
func (m *Manager) List() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	pids := make([]int, 0, len(m.handles))
	for pid := range m.handles {
		pids = append(pids, pid)
	}
	return pids
}

// Count returns the number of live handles.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

// Wait blocks until the process with pid finishes and returns its result. An
// untracked pid with no recorded result is an error.
func (m *Manager) Wait(pid int) (Result, error) {
	for {
		m.mu.Lock()
		h, live := m.handles[pid]
		res, done := m.finished[pid]
		m.mu.Unlock()
		if done {
			return res, nil
		}
		if !live {
			return Result{}, errors.ProcessNotFound(pid)
		}
		select {
		case <-h.Done():
			res, _ := h.Result()
			return res, nil
		case <-time.After(waitPollInterval):
		}
	}
}

// WaitHandle blocks on a handle directly, tolerating the watcher having
// already removed it from the table.
func (m *Manager) WaitHandle(h *Handle) Result {
	<-h.Done()
	res, _ := h.Result()
	return res
}

// KillOne terminates the process with pid.
func (m *Manager) KillOne(pid int) error {
	m.mu.Lock()
	h, ok := m.handles[pid]
	m.mu.Unlock()
	if !ok {
		return errors.ProcessNotFound(pid)
	}
	return kill(h)
}

// KillAll terminates every tracked process and waits for their watchers to
// record results. Handles are collected under the lock but signalled outside
// it, so watcher cleanup cannot deadlock against the table.
func (m *Manager) KillAll() {
	m.mu.Lock()
	victims := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		victims = append(victims, h)
	}
	m.mu.Unlock()

	for _, h := range victims {
		_ = kill(h)
	}
	for _, h := range victims {
		<-h.Done()
	}
}

// InstallSignalHandler relays interrupt signals to a dedicated goroutine
// that kills all tracked processes. The second interrupt exits immediately
// with the runtime error code. Idempotent.
func (m *Manager) InstallSignalHandler() {
	m.signalled.Do(func() {
		m.sigCh = make(chan os.Signal, 1)
		m.stopRelay = make(chan struct{})
		signal.Notify(m.sigCh, os.Interrupt, syscall.SIGTERM)
		go m.relay()
	})
}

// StopSignalHandler detaches the signal relay.
func (m *Manager) StopSignalHandler() {
	if m.sigCh == nil {
		return
	}
	signal.Stop(m.sigCh)
	close(m.stopRelay)
}

func (m *Manager) relay() {
	for {
		select {
		case <-m.sigCh:
			m.countMu.Lock()
			m.interruptCount++
			n := m.interruptCount
			m.countMu.Unlock()
			if n > 1 {
				os.Exit(errors.ExitRuntimeError)
			}
			m.KillAll()
		case <-m.stopRelay:
			return
		}
	}
}

// Interrupted reports whether an interrupt signal has been received.
func (m *Manager) Interrupted() bool {
	m.countMu.Lock()
	defer m.countMu.Unlock()
	return m.interruptCount > 0
}

// kill terminates one process, escalating from SIGTERM to SIGKILL if the
// process does not exit promptly.
func kill(h *Handle) error {
	if h.Cmd.Process == nil {
		return nil
	}
	if _, done := h.Result(); done {
		return nil
	}
	_ = h.Cmd.Process.Signal(syscall.SIGTERM)
	select {
	case <-h.Done():
		return nil
	case <-time.After(2 * time.Second):
	}
	return h.Cmd.Process.Kill()
}
