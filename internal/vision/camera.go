package vision

import (
	"context"
	"fmt"
	"image/jpeg"
	"mime"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"github.com/smartretail/scanpos/internal/httputil"
	"github.com/smartretail/scanpos/internal/monitoring"
	"github.com/smartretail/scanpos/internal/timeutil"
)

// reconnectBackoff is the fixed wait between attempts to reopen a dropped
// camera stream. Kept short: a kiosk camera that hiccups should come back
// within a frame or two of becoming reachable again.
const reconnectBackoff = time.Second

// Camera captures frames from an MJPEG-over-HTTP stream, the protocol spoken
// by IP-webcam apps and most network cameras (multipart/x-mixed-replace with
// one JPEG per part). The acquisition loop runs at stream rate and overwrites
// the latest-frame slot; individual bad parts are skipped and the previous
// frame retained, a dropped stream is reopened with a bounded backoff.
type Camera struct {
	url    string
	client httputil.HTTPClient
	clock  timeutil.Clock

	slot     frameSlot
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewCamera creates a Camera reading the MJPEG stream at url. The client must
// not enforce a whole-request timeout: the stream is open for the lifetime of
// the session.
func NewCamera(url string, client httputil.HTTPClient, clock timeutil.Clock) *Camera {
	if client == nil {
		client = httputil.NewStandardClient(&http.Client{})
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Camera{url: url, client: client, clock: clock}
}

// Start opens the stream and begins the acquisition loop. An unreachable
// camera is reported here so the caller can treat it as fatal; once started,
// stream drops are handled internally and never surface.
func (c *Camera) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	resp, err := c.open(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to open camera stream %s: %w", c.url, err)
	}

	c.wg.Add(1)
	go c.acquire(ctx, resp)
	return nil
}

// Latest returns the most recently captured frame. It never blocks on the
// stream; before the first frame arrives it returns false.
func (c *Camera) Latest() (Frame, bool) {
	return c.slot.get()
}

// Stop terminates acquisition and closes the stream. Idempotent.
func (c *Camera) Stop() error {
	c.stopOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
	})
	return nil
}

func (c *Camera) open(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("camera returned status %d", resp.StatusCode)
	}
	return resp, nil
}

// acquire reads JPEG parts off the stream until the context is cancelled,
// reopening the stream after a short backoff whenever it drops.
func (c *Camera) acquire(ctx context.Context, resp *http.Response) {
	defer c.wg.Done()

	for {
		c.consumeStream(ctx, resp)
		resp.Body.Close()

		if ctx.Err() != nil {
			return
		}

		c.clock.Sleep(reconnectBackoff)
		if ctx.Err() != nil {
			return
		}

		var err error
		resp, err = c.open(ctx)
		if err != nil {
			monitoring.Logf("camera reconnect failed: %v", err)
			// Fabricate a closed response so the next loop iteration retries.
			resp = &http.Response{Body: http.NoBody}
		}
	}
}

// consumeStream decodes frames from one open stream response. Returns when
// the stream ends or the context is cancelled. A part that fails to decode is
// skipped; the previous frame stays current.
func (c *Camera) consumeStream(ctx context.Context, resp *http.Response) {
	if resp.Body == http.NoBody {
		return
	}

	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || params["boundary"] == "" {
		monitoring.Logf("camera stream has no multipart boundary: %v", err)
		return
	}

	reader := multipart.NewReader(resp.Body, params["boundary"])
	for ctx.Err() == nil {
		part, err := reader.NextPart()
		if err != nil {
			return
		}

		img, err := jpeg.Decode(part)
		part.Close()
		if err != nil {
			// One bad frame must not interrupt the pipeline.
			continue
		}

		c.slot.put(NewFrame(img, c.clock.Now()))
	}
}
