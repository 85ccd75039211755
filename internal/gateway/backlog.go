package gateway

import "sync"

type backlogEntry struct {
	seq  int64
	data []byte
}

// Backlog is a fixed-size ring of recently broadcast envelopes. Clients that
// reconnect pass the last sequence number they saw and get everything newer
// replayed before live traffic resumes.
type Backlog struct {
	mu   sync.RWMutex
	ring []backlogEntry
	next int
	full bool
}

func NewBacklog(capacity int) *Backlog {
	if capacity <= 0 {
		capacity = 256
	}
	return &Backlog{ring: make([]backlogEntry, capacity)}
}

// Push records an envelope under seq, evicting the oldest entry when full.
func (b *Backlog) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	b.mu.Lock()
	b.ring[b.next] = backlogEntry{seq: seq, data: cp}
	b.next = (b.next + 1) % len(b.ring)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()
}

// Since returns every buffered envelope with a sequence number greater than
// seq, oldest first.
func (b *Backlog) Since(seq int64) [][]byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := b.next
	if b.full {
		n = len(b.ring)
	}
	var out [][]byte
	for i := 0; i < n; i++ {
		idx := i
		if b.full {
			idx = (b.next + i) % len(b.ring)
		}
		if e := b.ring[idx]; e.seq > seq {
			out = append(out, e.data)
		}
	}
	return out
}

// Len returns the number of buffered envelopes.
func (b *Backlog) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.full {
		return len(b.ring)
	}
	return b.next
}
