// Package recorder implements the graph recorder session described in
// spec §4.1: a process-wide, strictly thread-local gate between
// tracing-scalar arithmetic and graph construction.
package recorder

import (
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"forge/graph"
)

// Recorder mediates between tracing-scalar operations and a Graph. At most
// one Recorder may be active per OS thread at a time; recording sessions do
// not nest within a thread (spec §4.1, §5).
type Recorder struct {
	g *graph.Graph
}

var (
	activeMu sync.Mutex
	// active maps OS-thread id -> the Recorder currently installed on it.
	// Go has no native thread-local storage; Start pins the calling
	// goroutine to its OS thread for the session's duration (see Start),
	// which makes the thread id a faithful stand-in for a native TLS slot.
	active = make(map[int]*Recorder)
)

// New returns an idle Recorder backed by its own Graph.
func New() *Recorder {
	return &Recorder{g: graph.NewGraph()}
}

// Active returns the Recorder installed on the calling OS thread, or nil if
// none is active. Tracing-scalar operations call this on every operator
// invocation; when it returns nil, arithmetic is passive and no IR is
// emitted (spec §4.1).
func Active() *Recorder {
	tid := unix.Gettid()
	activeMu.Lock()
	defer activeMu.Unlock()
	return active[tid]
}

// Start requires no Recorder is active on the calling thread. It clears the
// owned Graph, pins the calling goroutine to its current OS thread (so the
// "active recorder" slot stays associated with one physical thread for the
// session, mirroring a native thread-local), and installs r as that
// thread's active recorder.
func (r *Recorder) Start() error {
	runtime.LockOSThread()
	tid := unix.Gettid()

	activeMu.Lock()
	defer activeMu.Unlock()
	if active[tid] != nil {
		runtime.UnlockOSThread()
		return graph.ErrRecorderAlreadyActive
	}

	r.g.Clear()
	active[tid] = r
	return nil
}

// Stop requires r to be the active recorder on the calling thread. It
// verifies at least one output has been marked, clears the thread's active
// slot, unpins the goroutine, freezes the Graph, and returns it. Whether it
// succeeds or fails, the thread's active slot is cleared first: a failed
// Stop always leaves the recorder idle rather than stuck active (spec §8,
// scenario 6), so the caller must Start a fresh session to retry.
func (r *Recorder) Stop() (*graph.Graph, error) {
	tid := unix.Gettid()

	activeMu.Lock()
	if active[tid] != r {
		activeMu.Unlock()
		return nil, graph.ErrRecordingNotActive
	}
	delete(active, tid)
	activeMu.Unlock()
	runtime.UnlockOSThread()

	if r.g.Empty() || len(r.g.Outputs()) == 0 {
		return nil, graph.ErrNoOutputsMarked
	}
	if err := r.g.Validate(); err != nil {
		return nil, err
	}

	r.g.Freeze()
	return r.g, nil
}

// Graph returns the Graph being built by this recording session. Valid to
// call only while the session is active; once Stop returns, use its
// returned *graph.Graph instead.
func (r *Recorder) Graph() *graph.Graph { return r.g }
