// Package scanmux provides an abstraction over a serial-attached handheld
// barcode scanner with the ability for multiple clients to subscribe to the
// codes it reads. A kiosk usually has one consumer (the processing loop),
// but the status server can also tail scans for debugging.
package scanmux

import (
	"bufio"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"io"
	"strings"
	"sync"
)

// Porter defines the minimal interface needed for a scanner port. The
// abstraction enables unit testing without real scanner hardware.
type Porter interface {
	io.Reader
	io.Closer
}

// Muxer is the scanner multiplexer contract shared by the real, mock, and
// disabled implementations.
type Muxer interface {
	// Subscribe creates a new channel receiving one decoded code per scan.
	// The returned ID identifies the channel when unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes and closes a subscriber channel.
	Unsubscribe(id string)
	// Monitor reads codes from the scanner and fans them out to
	// subscribers until the context is cancelled or the port fails.
	Monitor(ctx context.Context) error
	// Close closes all subscriber channels and the underlying port.
	Close() error
}

// ScanMux fans scanner reads out to subscribers.
type ScanMux[T Porter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// New creates a ScanMux backed by the given port.
func New[T Porter](port T) *ScanMux[T] {
	return &ScanMux[T]{
		port:        port,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *ScanMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, 1)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the mux.
func (s *ScanMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Monitor reads codes from the scanner and sends them to subscribers. A
// scanner in keyboard-wedge-off serial mode emits one code per line,
// CR/LF terminated; blank lines are dropped.
func (s *ScanMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// The blocking scan.Scan runs in its own goroutine so it cannot
	// interfere with the outer loop awaiting lines and cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			// closed channel means the port hit EOF
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}

			code := strings.TrimSpace(line)
			if code == "" {
				continue
			}

			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- code:
				default:
					// a slow subscriber drops codes rather than
					// blocking the fan-out
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *ScanMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}
