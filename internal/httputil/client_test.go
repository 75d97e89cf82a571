package httputil

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestStandardClientDefaults(t *testing.T) {
	c := NewStandardClient(nil)
	if c.Client != http.DefaultClient {
		t.Error("nil client should fall back to http.DefaultClient")
	}
}

func TestMockClientQueuedResponses(t *testing.T) {
	m := NewMockHTTPClient()
	m.AddResponse(http.StatusOK, `{"ok":true}`)
	m.AddResponse(http.StatusNotFound, "missing")

	resp, err := m.Get("http://backend/api/product_mapping")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != `{"ok":true}` {
		t.Errorf("first response = %d %q", resp.StatusCode, body)
	}

	resp, err = m.Get("http://backend/api/product_mapping")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("second response = %d, want 404", resp.StatusCode)
	}
}

func TestMockClientExhaustedQueueReturnsOK(t *testing.T) {
	m := NewMockHTTPClient()
	resp, err := m.Get("http://backend/api/status")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestMockClientErrorResponse(t *testing.T) {
	m := NewMockHTTPClient()
	m.AddErrorResponse(fmt.Errorf("connection refused"))

	if _, err := m.Get("http://backend/api/scan"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMockClientRecordsRequestBodies(t *testing.T) {
	m := NewMockHTTPClient()

	_, err := m.Post("http://backend/api/scan", "application/json", strings.NewReader(`{"code":"123"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if m.RequestCount() != 1 {
		t.Fatalf("recorded %d requests, want 1", m.RequestCount())
	}
	if got := m.GetRequestBody(0); got != `{"code":"123"}` {
		t.Errorf("body = %q", got)
	}
	if req := m.GetRequest(0); req.Header.Get("Content-Type") != "application/json" {
		t.Errorf("content type = %q", req.Header.Get("Content-Type"))
	}
	if m.GetRequest(5) != nil {
		t.Error("out-of-range request should be nil")
	}
}

func TestMockClientReset(t *testing.T) {
	m := NewMockHTTPClient()
	m.AddResponse(http.StatusTeapot, "")
	m.Get("http://backend/x")
	m.Reset()

	if m.RequestCount() != 0 {
		t.Errorf("requests after reset = %d", m.RequestCount())
	}
	resp, _ := m.Get("http://backend/x")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status after reset = %d, want default 200", resp.StatusCode)
	}
}
