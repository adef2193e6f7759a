package gateway

import "sync"

// replayEntry holds one broadcast envelope.
type replayEntry struct {
	Seq  uint64
	Data []byte
}

// ReplayBuffer is a fixed-size ring of recent envelopes, in seq order,
// letting a reconnecting client catch up on what it missed.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 1000
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity)}
}

// Push appends an envelope, overwriting the oldest when full. data must
// not be modified afterwards.
func (rb *ReplayBuffer) Push(seq uint64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buf[rb.pos] = replayEntry{Seq: seq, Data: data}
	rb.pos = (rb.pos + 1) % len(rb.buf)
	if rb.pos == 0 {
		rb.full = true
	}
}

// Since returns entries with seq > after, oldest first.
func (rb *ReplayBuffer) Since(after uint64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	for i, n := 0, rb.len(); i < n; i++ {
		if e := rb.buf[rb.index(i)]; e.Seq > after {
			out = append(out, e)
		}
	}
	return out
}

// Oldest returns the lowest buffered seq, 0 when empty.
func (rb *ReplayBuffer) Oldest() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.len() == 0 {
		return 0
	}
	return rb.buf[rb.index(0)].Seq
}

// Len returns the number of buffered entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return len(rb.buf)
	}
	return rb.pos
}

// index converts a logical index (0 = oldest) to a physical one.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % len(rb.buf)
	}
	return logical
}
