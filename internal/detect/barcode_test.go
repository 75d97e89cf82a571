package detect

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"

	"github.com/smartretail/scanpos/internal/testutil"
	"github.com/smartretail/scanpos/internal/vision"
)

// barcodeFrame renders a valid EAN-13 symbol into a frame.
func barcodeFrame(t *testing.T, code string) vision.Frame {
	t.Helper()

	writer := oned.NewEAN13Writer()
	matrix, err := writer.Encode(code, gozxing.BarcodeFormat_EAN_13, 400, 120, nil)
	if err != nil {
		t.Fatalf("encode %q: %v", code, err)
	}

	img := image.NewGray(image.Rect(0, 0, matrix.GetWidth(), matrix.GetHeight()))
	for y := 0; y < matrix.GetHeight(); y++ {
		for x := 0; x < matrix.GetWidth(); x++ {
			if matrix.Get(x, y) {
				img.SetGray(x, y, color.Gray{Y: 0})
			} else {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return vision.NewFrame(img, time.Now())
}

func TestZXingDecoderDecodesEAN13(t *testing.T) {
	const code = "8998866200318"
	d := NewZXingDecoder()

	got := d.Decode(barcodeFrame(t, code))
	if got == nil {
		t.Fatal("no barcode decoded")
	}
	if got.Code != code {
		t.Errorf("code = %q, want %q", got.Code, code)
	}
	if got.Region.Empty() {
		t.Error("decoded barcode has empty region")
	}
}

func TestZXingDecoderNoSymbol(t *testing.T) {
	d := NewZXingDecoder()
	frame := vision.NewFrame(testutil.GreyFrame(200, 100), time.Now())

	if got := d.Decode(frame); got != nil {
		t.Errorf("decoded %q from a blank frame", got.Code)
	}
}

func TestZXingDecoderNilImage(t *testing.T) {
	d := NewZXingDecoder()
	if got := d.Decode(vision.Frame{}); got != nil {
		t.Errorf("decoded %q from an empty frame", got.Code)
	}
}

func TestDisabledDecoder(t *testing.T) {
	d := DisabledDecoder{}
	if got := d.Decode(barcodeFrame(t, "8998866200318")); got != nil {
		t.Error("disabled decoder must never decode")
	}
}
