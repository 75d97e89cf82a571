// Package dispatch sends accepted scans to the remote cart service. Sends
// are fire-and-forget: each one runs in its own goroutine with a bounded
// timeout, and a failure is logged but never blocks or fails the detection
// loop. The remote cart owns scan history; nothing is queued or retried
// here, a lost scan just means the operator scans the item again.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smartretail/scanpos/internal/httputil"
	"github.com/smartretail/scanpos/internal/monitoring"
	"github.com/smartretail/scanpos/internal/pipeline"
)

// scanRequest is the cart endpoint's wire format.
type scanRequest struct {
	Code string `json:"code"`
}

// Dispatcher posts admitted decisions to the cart endpoint.
type Dispatcher struct {
	url     string
	client  httputil.HTTPClient
	timeout time.Duration

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher for the given cart endpoint. timeout
// bounds each send so a hung backend cannot accumulate goroutines forever.
func NewDispatcher(url string, client httputil.HTTPClient, timeout time.Duration) *Dispatcher {
	return &Dispatcher{url: url, client: client, timeout: timeout}
}

// Send posts the decision to the cart endpoint asynchronously and returns
// immediately. Each send carries a fresh request ID so a retried scan can be
// told apart from a duplicate in the backend's logs.
func (d *Dispatcher) Send(dec pipeline.Decision) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.post(dec, uuid.NewString())
	}()
}

func (d *Dispatcher) post(dec pipeline.Decision, requestID string) {
	body, err := json.Marshal(scanRequest{Code: dec.Code})
	if err != nil {
		monitoring.Logf("dispatch %s: encode: %v", requestID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		monitoring.Logf("dispatch %s: build request: %v", requestID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := d.client.Do(req)
	if err != nil {
		monitoring.Logf("dispatch %s: send %s: %v", requestID, dec.Code, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		// 404 is the backend's way of saying the product is not registered.
		monitoring.Logf("dispatch %s: cart rejected %s: status %d", requestID, dec.Code, resp.StatusCode)
		return
	}
	monitoring.Logf("dispatch %s: %s (%s) added to cart", requestID, dec.Code, dec.Name)
}

// Wait blocks until all in-flight sends have finished. Called during
// shutdown; each send is already bounded by the dispatch timeout, so Wait
// cannot hang indefinitely.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
