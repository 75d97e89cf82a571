package vision

import (
	"context"
	"sync"
)

// Source is a frame source. Start begins the acquisition loop and returns
// immediately; a device that cannot be opened at all is reported here and is
// fatal for the session. Latest never blocks: it returns the most recent
// frame, or false if capture has not produced one yet. Stop terminates
// acquisition and releases the device; it is idempotent.
type Source interface {
	Start(ctx context.Context) error
	Latest() (Frame, bool)
	Stop() error
}

// frameSlot is the single-slot latest-frame buffer shared between one
// acquisition goroutine (writer) and the processing loop (reader). Writes
// replace the whole value; there is no queue and no backpressure, a frame
// that was never read is simply overwritten.
type frameSlot struct {
	mu    sync.Mutex
	frame Frame
	ok    bool
	seq   uint64
}

func (s *frameSlot) put(f Frame) {
	s.mu.Lock()
	s.seq++
	f.Seq = s.seq
	s.frame = f
	s.ok = true
	s.mu.Unlock()
}

func (s *frameSlot) get() (Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame, s.ok
}
