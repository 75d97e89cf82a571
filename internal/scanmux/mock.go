package scanmux

import (
	"context"
	"io"
	"sync"
	"time"
)

// MockPort implements Porter for testing and dev mode.
type MockPort struct {
	io.ReadCloser
}

// NewMock creates a ScanMux backed by a fake scanner that "scans" the given
// code at the given interval. Used with -dev so the whole scan path can be
// exercised without hardware.
func NewMock(code string, every time.Duration) *ScanMux[*MockPort] {
	r, w := io.Pipe()

	go func() {
		defer w.Close()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for range ticker.C {
			if _, err := io.WriteString(w, code+"\r\n"); err != nil {
				return
			}
		}
	}()

	return New(&MockPort{ReadCloser: r})
}

// Disabled is a no-op Muxer used when no scanner hardware is attached. It
// tracks subscribers so their channels close deterministically on
// Unsubscribe or Close, letting readers unblock predictably at shutdown.
type Disabled struct {
	mu          sync.Mutex
	subscribers map[string]chan string
	closing     bool
}

// NewDisabled returns a Muxer that never produces a scan.
func NewDisabled() *Disabled {
	return &Disabled{subscribers: make(map[string]chan string)}
}

func (d *Disabled) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string)

	d.mu.Lock()
	if d.closing {
		// already closing: hand back a closed channel so callers don't block
		close(ch)
		d.mu.Unlock()
		return id, ch
	}
	d.subscribers[id] = ch
	d.mu.Unlock()
	return id, ch
}

func (d *Disabled) Unsubscribe(id string) {
	d.mu.Lock()
	if ch, ok := d.subscribers[id]; ok {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
}

func (d *Disabled) Monitor(ctx context.Context) error { <-ctx.Done(); return ctx.Err() }

func (d *Disabled) Close() error {
	d.mu.Lock()
	if d.closing {
		d.mu.Unlock()
		return nil
	}
	d.closing = true
	for id, ch := range d.subscribers {
		close(ch)
		delete(d.subscribers, id)
	}
	d.mu.Unlock()
	return nil
}
