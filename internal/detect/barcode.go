package detect

import (
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"

	"github.com/smartretail/scanpos/internal/vision"
)

// ZXingDecoder decodes 1-D retail barcodes (EAN/UPC family) from
// frames using the pure-Go ZXing port. The reader converts the frame to a
// luminance bitmap internally, so no frame preprocessing is needed here.
type ZXingDecoder struct {
	reader gozxing.Reader
}

// NewZXingDecoder creates a decoder for the supported EAN/UPC formats.
func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{reader: oned.NewMultiFormatUPCEANReader(nil)}
}

// Decode returns the first 1-D symbol found in the frame, or nil if none.
func (d *ZXingDecoder) Decode(f vision.Frame) *Barcode {
	if f.Image == nil {
		return nil
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(f.Image)
	if err != nil {
		return nil
	}

	result, err := d.reader.Decode(bmp, nil)
	if err != nil || result == nil {
		// NotFoundException is the common case: most frames simply have no
		// barcode in view.
		return nil
	}

	return &Barcode{
		Code:   result.GetText(),
		Region: regionFromPoints(result.GetResultPoints(), f.Width, f.Height),
	}
}

// regionFromPoints computes a bounding rectangle over the decoder's result
// points, clamped to the frame. ZXing reports the symbol's edge points, not a
// box; for a 1-D code the points sit on the scan line, so the rect is grown a
// little vertically to be visible on the HUD.
func regionFromPoints(points []gozxing.ResultPoint, w, h int) image.Rectangle {
	if len(points) == 0 {
		return image.Rectangle{}
	}

	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		minX = math.Min(minX, p.GetX())
		maxX = math.Max(maxX, p.GetX())
		minY = math.Min(minY, p.GetY())
		maxY = math.Max(maxY, p.GetY())
	}

	const pad = 10
	r := image.Rect(int(minX), int(minY)-pad, int(maxX), int(maxY)+pad)
	return r.Intersect(image.Rect(0, 0, w, h))
}

// DisabledDecoder is the no-barcode-capability decoder: every frame decodes
// to nothing. Installed when the decoder cannot be constructed, so the
// pipeline keeps running on AI alone.
type DisabledDecoder struct{}

// Decode always returns nil.
func (DisabledDecoder) Decode(vision.Frame) *Barcode { return nil }
