// internal/stream/drip.go
package stream

import (
	"sync"
	"unicode/utf8"
)

// DefaultDripChunk is how many runes a single drain emits.
const DefaultDripChunk = 24

// Drip simulates token streaming for vendors that deliver whole text
// blocks at once. Received text queues up and is released a chunk at a
// time; the owner drives the cadence by calling DrainTick on its own
// ticker, and FlushAll releases the remainder in one piece when the
// turn result arrives. Splitting happens on rune boundaries only, so
// the concatenation of everything emitted is byte-identical to
// everything added.
type Drip struct {
	mu    sync.Mutex
	queue []byte
	chunk int
}

// NewDrip creates a drip feeder emitting chunkRunes runes per drain.
// Values below 1 fall back to the default.
func NewDrip(chunkRunes int) *Drip {
	if chunkRunes < 1 {
		chunkRunes = DefaultDripChunk
	}
	return &Drip{chunk: chunkRunes}
}

// Add queues text for release.
func (d *Drip) Add(text string) {
	if text == "" {
		return
	}
	d.mu.Lock()
	d.queue = append(d.queue, text...)
	d.mu.Unlock()
}

// DrainTick removes and returns the next chunk, or "" when the queue
// is empty.
func (d *Drip) DrainTick() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return ""
	}

	end := 0
	for i := 0; i < d.chunk && end < len(d.queue); i++ {
		_, size := utf8.DecodeRune(d.queue[end:])
		end += size
	}
	out := string(d.queue[:end])
	d.queue = d.queue[end:]
	return out
}

// FlushAll removes and returns everything still queued.
func (d *Drip) FlushAll() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.queue) == 0 {
		return ""
	}
	out := string(d.queue)
	d.queue = nil
	return out
}

// Len returns the number of queued bytes.
func (d *Drip) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}
