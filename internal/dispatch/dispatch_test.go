package dispatch

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartretail/scanpos/internal/httputil"
	"github.com/smartretail/scanpos/internal/pipeline"
)

func TestSendPostsDecision(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	client.AddResponse(200, `{"status":"success"}`)
	d := NewDispatcher("http://127.0.0.1:5000/api/scan", client, 2*time.Second)

	d.Send(pipeline.Decision{
		Code:       "8998866200318",
		Name:       "Instant Noodles",
		Provenance: pipeline.ProvenanceBarcode,
	})
	d.Wait()

	require.Equal(t, 1, client.RequestCount())
	req := client.GetRequest(0)
	assert.Equal(t, "POST", req.Method)
	assert.Equal(t, "http://127.0.0.1:5000/api/scan", req.URL.String())
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.NotEmpty(t, req.Header.Get("X-Request-ID"))

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(client.GetRequestBody(0)), &payload))
	assert.Equal(t, map[string]string{"code": "8998866200318"}, payload)
}

func TestSendDoesNotBlockCaller(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	client.DefaultError = errors.New("backend hung up")
	d := NewDispatcher("http://127.0.0.1:5000/api/scan", client, 2*time.Second)

	done := make(chan struct{})
	go func() {
		d.Send(pipeline.Decision{Code: "a"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked the caller")
	}
	d.Wait()
}

func TestSendFailureIsNonFatal(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	client.AddErrorResponse(errors.New("connection refused"))
	client.AddResponse(200, "")
	d := NewDispatcher("http://127.0.0.1:5000/api/scan", client, 2*time.Second)

	d.Send(pipeline.Decision{Code: "a"})
	d.Wait()
	d.Send(pipeline.Decision{Code: "b"})
	d.Wait()

	// The failed send changed nothing; the next one still goes out.
	assert.Equal(t, 2, client.RequestCount())
}

func TestSendRejectedStatusLoggedNotFatal(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	client.AddResponse(404, `{"status":"error","message":"Barang tidak terdaftar"}`)
	d := NewDispatcher("http://127.0.0.1:5000/api/scan", client, 2*time.Second)

	d.Send(pipeline.Decision{Code: "unregistered"})
	d.Wait()

	assert.Equal(t, 1, client.RequestCount())
}

func TestSendUniqueRequestIDs(t *testing.T) {
	client := httputil.NewMockHTTPClient()
	d := NewDispatcher("http://127.0.0.1:5000/api/scan", client, 2*time.Second)

	for i := 0; i < 5; i++ {
		d.Send(pipeline.Decision{Code: "a"})
	}
	d.Wait()

	require.Equal(t, 5, client.RequestCount())
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		id := client.GetRequest(i).Header.Get("X-Request-ID")
		assert.False(t, seen[id], "request IDs must be unique")
		seen[id] = true
	}
}
