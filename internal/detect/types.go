// Package detect wraps the two identification modalities behind injected
// capability interfaces: a barcode Decoder and an object-detection
// Classifier. Both are pure per-frame calls with no shared mutable state, and
// both degrade to empty results when their underlying capability is absent.
package detect

import (
	"context"
	"image"

	"github.com/smartretail/scanpos/internal/vision"
)

// Barcode is one decoded 1-D symbol and the region it was found in. At most
// one is produced per frame: the first symbol the decoder finds wins. When
// several symbols are visible in a frame, which one is "first" is a known
// limitation, not a ranking.
type Barcode struct {
	Code   string
	Region image.Rectangle
}

// Detection is one object the classifier found. Barcode is resolved at
// construction from the class label (exact, then lowercased); empty means the
// label is unmapped and the detection can be displayed but never dispatched.
type Detection struct {
	Label      string
	Confidence float64
	Box        image.Rectangle
	Barcode    string
}

// Mapped reports whether the detection's label resolved to a barcode.
func (d Detection) Mapped() bool {
	return d.Barcode != ""
}

// Decoder decodes a barcode from a frame. A nil result means no symbol was
// found; decoding never fails the pipeline.
type Decoder interface {
	Decode(f vision.Frame) *Barcode
}

// Classifier runs the object detector over a frame and returns every
// detection at or above the configured display-confidence floor. An error is
// a transient inference failure; the caller logs it and moves on to the next
// frame.
type Classifier interface {
	Classify(ctx context.Context, f vision.Frame) ([]Detection, error)

	// Enabled reports whether the AI capability is currently usable.
	Enabled() bool

	// Reload re-probes the underlying model. Used by the operator "reload"
	// control after a sidecar restart or model swap.
	Reload(ctx context.Context) error
}

// LabelResolver maps a class label to a barcode. The catalog cache satisfies
// this.
type LabelResolver interface {
	BarcodeForLabel(label string) (string, bool)
}
