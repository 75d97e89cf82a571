package testutil

import (
	"net/http"
	"testing"
)

func TestGreyFrame(t *testing.T) {
	img := GreyFrame(8, 6)
	b := img.Bounds()
	if b.Dx() != 8 || b.Dy() != 6 {
		t.Errorf("bounds = %v, want 8x6", b)
	}
	r, g, bl, a := img.At(3, 3).RGBA()
	if r != g || g != bl || a == 0 {
		t.Errorf("pixel not uniform grey: %d %d %d %d", r, g, bl, a)
	}
}

func TestNewTestRequest(t *testing.T) {
	req := NewTestRequest(http.MethodPost, "/api/sync")
	if req.Method != http.MethodPost || req.URL.Path != "/api/sync" {
		t.Errorf("request = %s %s", req.Method, req.URL.Path)
	}
}
