// Package hub fans out the encoded frames of in-flight chat runs to tail
// subscribers.
package hub

import "sync"

const defaultBufferCap = 2048

// run holds the state for a single chat run.
type run struct {
	buf     []string // circular buffer
	pos     int      // next write position
	clients map[chan string]struct{}
	done    bool
}

// frames returns the buffered frames in order from oldest to newest.
func (r *run) frames() []string {
	n := len(r.buf)
	if n == 0 || r.pos == 0 {
		// Empty, partially filled, or pos just wrapped to 0: buf[:n] is in order.
		return r.buf
	}
	out := make([]string, n)
	copy(out, r.buf[r.pos:])
	copy(out[n-r.pos:], r.buf[:r.pos])
	return out
}

// append adds a frame to the circular buffer. O(1) regardless of size.
func (r *run) append(frame string) {
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, frame)
	} else {
		r.buf[r.pos] = frame
	}
	r.pos = (r.pos + 1) % cap(r.buf)
}

// Hub fans out run frames to multiple SSE subscribers. It buffers the last
// bufferCap frames per run so late-joining clients receive catchup output
// before live streaming.
type Hub struct {
	mu        sync.Mutex
	runs      map[string]*run
	bufferCap int
}

// New creates a Hub ready for use.
func New() *Hub {
	return NewWithCap(defaultBufferCap)
}

// NewWithCap creates a Hub that buffers up to n frames per run.
func NewWithCap(n int) *Hub {
	if n <= 0 {
		n = defaultBufferCap
	}
	return &Hub{
		runs:      make(map[string]*run),
		bufferCap: n,
	}
}

// Open registers a run. Publishing to or subscribing to a run that was
// never opened is a no-op.
func (h *Hub) Open(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.runs[runID]; ok {
		return
	}
	h.runs[runID] = &run{
		buf:     make([]string, 0, h.bufferCap),
		clients: make(map[chan string]struct{}),
	}
}

// Publish sends a frame to all current subscribers of the run and appends
// it to the run buffer.
func (h *Hub) Publish(runID, frame string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.runs[runID]
	if !ok || r.done {
		return
	}

	r.append(frame)

	// A subscriber that cannot keep up is dropped rather than sent a
	// stream with gaps in it.
	for ch := range r.clients {
		select {
		case ch <- frame:
		default:
			delete(r.clients, ch)
			close(ch)
		}
	}
}

// Subscribe returns a channel that receives the run's buffered frames
// followed by live ones, and an unsubscribe function. If the run is already
// done the channel is closed after the buffered frames. ok is false when
// the run is unknown.
func (h *Hub) Subscribe(runID string) (frames <-chan string, unsubscribe func(), ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.runs[runID]
	if !ok {
		return nil, func() {}, false
	}

	// Buffer enough for catchup + some live headroom.
	ch := make(chan string, h.bufferCap+64)

	for _, f := range r.frames() {
		ch <- f
	}

	if r.done {
		close(ch)
		return ch, func() {}, true
	}

	r.clients[ch] = struct{}{}

	unsubscribe = func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, live := r.clients[ch]; live {
			delete(r.clients, ch)
			close(ch)
		}
	}

	return ch, unsubscribe, true
}

// Close marks the run as done and closes all subscriber channels.
// Subsequent Publish calls for this run are no-ops. New subscribers
// receive the full buffer and a closed channel.
func (h *Hub) Close(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.runs[runID]
	if !ok {
		return
	}

	r.done = true
	for ch := range r.clients {
		close(ch)
	}
	r.clients = map[chan string]struct{}{}
}

// Remove deletes a run entirely, freeing its buffer memory.
// Any remaining subscribers are closed first.
func (h *Hub) Remove(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.runs[runID]
	if !ok {
		return
	}

	for ch := range r.clients {
		close(ch)
	}
	r.clients = map[chan string]struct{}{}
	delete(h.runs, runID)
}

// IsActive returns true if the run exists and has not been closed.
func (h *Hub) IsActive(runID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.runs[runID]
	if !ok {
		return false
	}
	return !r.done
}

// Len returns the number of runs the hub is holding.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.runs)
}
