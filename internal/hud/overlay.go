// Package hud holds the operator-facing view of the scanner: what the last
// processed frame contained, plus a transient message line for accepts and
// suggestions. The kiosk build renders this in a browser via the status
// endpoint; headless builds get a periodic log line instead.
package hud

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/smartretail/scanpos/internal/detect"
	"github.com/smartretail/scanpos/internal/pipeline"
	"github.com/smartretail/scanpos/internal/timeutil"
)

// State is one snapshot of the overlay.
type State struct {
	FrameSeq   uint64             `json:"frame_seq"`
	Barcode    *detect.Barcode    `json:"barcode,omitempty"`
	Detections []detect.Detection `json:"detections"`
	Message    string             `json:"message,omitempty"`
}

// Overlay implements the processing loop's display surface. All methods
// return immediately; rendering happens elsewhere off a Snapshot.
type Overlay struct {
	mu         sync.Mutex
	clock      timeutil.Clock
	messageTTL time.Duration

	seq        uint64
	barcode    *detect.Barcode
	detections []detect.Detection
	message    string
	messageAt  time.Time

	bell io.Writer
}

// NewOverlay creates an overlay whose transient messages expire after ttl.
func NewOverlay(clock timeutil.Clock, ttl time.Duration) *Overlay {
	return &Overlay{clock: clock, messageTTL: ttl}
}

// SetBell directs the accept chime to w, typically the kiosk terminal. With no
// writer accepts are silent, which is what tests want.
func (o *Overlay) SetBell(w io.Writer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bell = w
}

// ShowFrame replaces the per-frame content.
func (o *Overlay) ShowFrame(seq uint64, barcode *detect.Barcode, detections []detect.Detection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq = seq
	o.barcode = barcode
	o.detections = detections
}

// ShowSuggestion flashes a below-threshold detection for the operator.
func (o *Overlay) ShowSuggestion(label string, confidence float64) {
	o.flash(fmt.Sprintf("Suggestion: %s (%.0f%%)", label, confidence*100))
}

// ShowAccept flashes an admitted scan and sounds the bell. Both happen
// regardless of whether the cart call later succeeds; the acknowledgment is
// local.
func (o *Overlay) ShowAccept(name string, p pipeline.Provenance) {
	o.flash(fmt.Sprintf("Added: %s [%s]", name, p))

	o.mu.Lock()
	bell := o.bell
	o.mu.Unlock()
	if bell != nil {
		io.WriteString(bell, "\a")
	}
}

func (o *Overlay) flash(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.message = msg
	o.messageAt = o.clock.Now()
}

// Snapshot returns the current overlay state. Expired messages are omitted.
func (o *Overlay) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()

	s := State{
		FrameSeq:   o.seq,
		Barcode:    o.barcode,
		Detections: append([]detect.Detection(nil), o.detections...),
	}
	if o.message != "" && o.clock.Since(o.messageAt) < o.messageTTL {
		s.Message = o.message
	}
	return s
}
