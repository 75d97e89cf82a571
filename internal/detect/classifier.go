package detect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"

	"github.com/smartretail/scanpos/internal/httputil"
	"github.com/smartretail/scanpos/internal/monitoring"
	"github.com/smartretail/scanpos/internal/vision"
)

// inferenceResponse is the detection-server wire format: one row per box,
// corners as [x1,y1,x2,y2] in frame pixels.
type inferenceResponse struct {
	Detections []inferenceRow `json:"detections"`
}

type inferenceRow struct {
	Label      string     `json:"label"`
	Confidence float64    `json:"confidence"`
	Box        [4]float64 `json:"box"`
}

// RemoteClassifier runs frames through a YOLO inference sidecar over HTTP.
// The trained model artifact lives with the sidecar; this side only ships
// JPEG frames and parses detection rows, so the model stays an opaque
// capability. If the sidecar is unreachable at startup the classifier
// degrades to disabled and every Classify returns empty results.
type RemoteClassifier struct {
	baseURL      string
	displayFloor float64
	client       httputil.HTTPClient
	resolver     LabelResolver
	enabled      atomic.Bool
}

// NewRemoteClassifier probes the sidecar at baseURL and returns the
// classifier. A failed probe is not an error: AI capability degrades to
// absent, the pipeline continues barcode-only.
func NewRemoteClassifier(ctx context.Context, baseURL string, displayFloor float64, client httputil.HTTPClient, resolver LabelResolver) *RemoteClassifier {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	c := &RemoteClassifier{
		baseURL:      baseURL,
		displayFloor: displayFloor,
		client:       client,
		resolver:     resolver,
	}
	if err := c.Reload(ctx); err != nil {
		monitoring.Logf("AI detector disabled: %v", err)
	}
	return c
}

// Enabled reports whether the sidecar answered its last probe.
func (c *RemoteClassifier) Enabled() bool {
	return c.enabled.Load()
}

// Reload re-probes the sidecar health endpoint and re-enables the classifier
// if it answers. Operator control "reload model" lands here.
func (c *RemoteClassifier) Reload(ctx context.Context) error {
	healthURL, err := url.JoinPath(c.baseURL, "healthz")
	if err != nil {
		c.enabled.Store(false)
		return fmt.Errorf("bad inference URL %q: %w", c.baseURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL, nil)
	if err != nil {
		c.enabled.Store(false)
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.enabled.Store(false)
		return fmt.Errorf("inference sidecar unreachable: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.enabled.Store(false)
		return fmt.Errorf("inference sidecar health returned %d", resp.StatusCode)
	}

	c.enabled.Store(true)
	return nil
}

// Classify posts the frame and returns all detections at or above the
// display floor, each with its barcode resolved from the class label. When
// disabled it returns empty results with no error.
func (c *RemoteClassifier) Classify(ctx context.Context, f vision.Frame) ([]Detection, error) {
	if !c.enabled.Load() {
		return nil, nil
	}
	if f.Image == nil {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, nil); err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	detectURL, err := url.JoinPath(c.baseURL, "detect")
	if err != nil {
		return nil, err
	}
	detectURL += "?min_conf=" + strconv.FormatFloat(c.displayFloor, 'f', -1, 64)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, detectURL, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference call failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference returned status %d", resp.StatusCode)
	}

	var parsed inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("bad inference response: %w", err)
	}

	detections := make([]Detection, 0, len(parsed.Detections))
	for _, row := range parsed.Detections {
		if row.Confidence < c.displayFloor {
			continue
		}
		detections = append(detections, newDetection(row, c.resolver))
	}
	return detections, nil
}

func newDetection(row inferenceRow, resolver LabelResolver) Detection {
	d := Detection{
		Label:      row.Label,
		Confidence: row.Confidence,
		Box:        image.Rect(int(row.Box[0]), int(row.Box[1]), int(row.Box[2]), int(row.Box[3])),
	}
	if resolver != nil {
		if code, ok := resolver.BarcodeForLabel(row.Label); ok {
			d.Barcode = code
		}
	}
	return d
}

// DisabledClassifier is the no-AI-capability classifier.
type DisabledClassifier struct{}

// Classify always returns no detections.
func (DisabledClassifier) Classify(context.Context, vision.Frame) ([]Detection, error) {
	return nil, nil
}

// Enabled always reports false.
func (DisabledClassifier) Enabled() bool { return false }

// Reload is a no-op; there is nothing to probe.
func (DisabledClassifier) Reload(context.Context) error { return nil }
