// Package vision owns frame acquisition: the Frame type, the Source contract
// and its implementations. Acquisition runs on its own goroutine at device
// rate, overwriting a single-slot buffer, so the processing loop never waits
// on camera I/O; a slow consumer just reads a slightly stale frame.
package vision

import (
	"image"
	"time"
)

// Frame is one captured image. It is immutable after capture: the acquisition
// loop replaces the buffered Frame value wholesale and never mutates a stored
// image, so a reader's snapshot is safe to use from any goroutine.
type Frame struct {
	Image      image.Image
	Width      int
	Height     int
	Seq        uint64
	CapturedAt time.Time
}

// NewFrame wraps a decoded image with its capture metadata. Seq is assigned
// by the latest-frame slot when the frame is published.
func NewFrame(img image.Image, at time.Time) Frame {
	b := img.Bounds()
	return Frame{
		Image:      img,
		Width:      b.Dx(),
		Height:     b.Dy(),
		CapturedAt: at,
	}
}
