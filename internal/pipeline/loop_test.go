package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartretail/scanpos/internal/catalog"
	"github.com/smartretail/scanpos/internal/detect"
	"github.com/smartretail/scanpos/internal/testutil"
	"github.com/smartretail/scanpos/internal/timeutil"
	"github.com/smartretail/scanpos/internal/vision"
)

// scriptedSource hands out a fixed frame on every Latest call.
type scriptedSource struct {
	frame vision.Frame
	ok    bool
}

func (s *scriptedSource) Start(ctx context.Context) error { return nil }
func (s *scriptedSource) Latest() (vision.Frame, bool)    { return s.frame, s.ok }
func (s *scriptedSource) Stop() error                     { return nil }

// scriptedDecoder returns its queued results in order, then nil.
type scriptedDecoder struct {
	results []*detect.Barcode
}

func (d *scriptedDecoder) Decode(f vision.Frame) *detect.Barcode {
	if len(d.results) == 0 {
		return nil
	}
	r := d.results[0]
	d.results = d.results[1:]
	return r
}

// scriptedClassifier returns the same detections on every call.
type scriptedClassifier struct {
	detections []detect.Detection
	err        error
	reloads    int
}

func (c *scriptedClassifier) Classify(ctx context.Context, f vision.Frame) ([]detect.Detection, error) {
	return c.detections, c.err
}
func (c *scriptedClassifier) Enabled() bool { return true }
func (c *scriptedClassifier) Reload(ctx context.Context) error {
	c.reloads++
	return nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []Decision
}

func (s *recordingSender) Send(d Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, d)
}

func (s *recordingSender) decisions() []Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Decision, len(s.sent))
	copy(out, s.sent)
	return out
}

type recordingStats struct {
	frames      int
	accepts     map[Provenance]int
	suggestions int
}

func newRecordingStats() *recordingStats {
	return &recordingStats{accepts: map[Provenance]int{}}
}

func (s *recordingStats) RecordFrame(at time.Time)  { s.frames++ }
func (s *recordingStats) RecordAccept(p Provenance) { s.accepts[p]++ }
func (s *recordingStats) RecordSuggestion()         { s.suggestions++ }

type recordingDisplay struct {
	frames      int
	detections  []detect.Detection
	suggestions []Suggestion
	accepts     []string
}

func (d *recordingDisplay) ShowFrame(seq uint64, barcode *detect.Barcode, detections []detect.Detection) {
	d.frames++
	d.detections = detections
}

func (d *recordingDisplay) ShowSuggestion(label string, confidence float64) {
	d.suggestions = append(d.suggestions, Suggestion{Label: label, Confidence: confidence})
}

func (d *recordingDisplay) ShowAccept(name string, p Provenance) {
	d.accepts = append(d.accepts, name)
}

type recordingSyncer struct {
	calls atomic.Int32
	err   error
}

func (s *recordingSyncer) Sync(ctx context.Context) error {
	s.calls.Add(1)
	return s.err
}

type loopHarness struct {
	loop       *Loop
	clock      *timeutil.MockClock
	decoder    *scriptedDecoder
	classifier *scriptedClassifier
	sender     *recordingSender
	stats      *recordingStats
	display    *recordingDisplay
	syncer     *recordingSyncer
	cache      *catalog.Cache
	scans      chan string
}

func newLoopHarness(t *testing.T) *loopHarness {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	cache := catalog.NewCache()
	h := &loopHarness{
		clock:      clock,
		decoder:    &scriptedDecoder{},
		classifier: &scriptedClassifier{},
		sender:     &recordingSender{},
		stats:      newRecordingStats(),
		display:    &recordingDisplay{},
		syncer:     &recordingSyncer{},
		cache:      cache,
		scans:      make(chan string, 1),
	}
	h.loop = NewLoop(LoopConfig{
		Source: &scriptedSource{
			frame: vision.Frame{Image: testutil.GreyFrame(32, 32), Width: 32, Height: 32, Seq: 1},
			ok:    true,
		},
		Decoder:    h.decoder,
		Classifier: h.classifier,
		Policy:     NewPolicy(0.80, 0.45, cache),
		Gate:       NewGate(2*time.Second, 300*time.Millisecond, clock),
		Sender:     h.sender,
		Stats:      h.stats,
		Display:    h.display,
		Syncer:     h.syncer,
		Clock:      clock,
		Interval:   33 * time.Millisecond,
		Scans:      h.scans,
	})
	return h
}

func TestLoopBarcodeWithEmptyCatalog(t *testing.T) {
	h := newLoopHarness(t)
	h.decoder.results = []*detect.Barcode{{Code: "8998866200318"}}

	h.loop.processFrame(context.Background())

	sent := h.sender.decisions()
	require.Len(t, sent, 1)
	assert.Equal(t, "8998866200318", sent[0].Code)
	assert.Equal(t, "Unknown (8998866200318)", sent[0].Name)
	assert.Equal(t, ProvenanceBarcode, sent[0].Provenance)
	assert.Equal(t, 1, h.stats.accepts[ProvenanceBarcode])
	assert.Equal(t, []string{"Unknown (8998866200318)"}, h.display.accepts)
}

func TestLoopSameItemCooldownSuppressesRepeat(t *testing.T) {
	h := newLoopHarness(t)
	h.cache.Replace(nil, map[string]string{"mouse": "478384ghhd39ej"})
	h.classifier.detections = []detect.Detection{
		{Label: "mouse", Confidence: 0.85, Barcode: "478384ghhd39ej"},
	}

	h.loop.processFrame(context.Background())
	require.Len(t, h.sender.decisions(), 1)
	assert.Equal(t, ProvenanceAI, h.sender.decisions()[0].Provenance)

	// The same item half a second later is inside the 2s same-item window.
	h.clock.Advance(500 * time.Millisecond)
	h.loop.processFrame(context.Background())
	assert.Len(t, h.sender.decisions(), 1, "repeat inside cooldown must not dispatch")

	h.clock.Advance(2 * time.Second)
	h.loop.processFrame(context.Background())
	assert.Len(t, h.sender.decisions(), 2)
}

func TestLoopUnmappedDetectionNeverDispatches(t *testing.T) {
	h := newLoopHarness(t)
	h.classifier.detections = []detect.Detection{
		{Label: "banana", Confidence: 0.99},
	}

	h.loop.processFrame(context.Background())

	assert.Empty(t, h.sender.decisions())
	// The detection still reaches the operator display as unmapped.
	require.Len(t, h.display.detections, 1)
	assert.False(t, h.display.detections[0].Mapped())
	require.Len(t, h.display.suggestions, 1)
	assert.Equal(t, "banana", h.display.suggestions[0].Label)
}

func TestLoopSuggestionDoesNotTouchGate(t *testing.T) {
	h := newLoopHarness(t)
	h.cache.Replace(nil, map[string]string{"mouse": "478384ghhd39ej"})
	h.classifier.detections = []detect.Detection{
		{Label: "mouse", Confidence: 0.50, Barcode: "478384ghhd39ej"},
	}

	h.loop.processFrame(context.Background())

	assert.Empty(t, h.sender.decisions())
	assert.Equal(t, 1, h.stats.suggestions)
	require.Len(t, h.display.suggestions, 1)
	assert.InDelta(t, 0.50, h.display.suggestions[0].Confidence, 1e-9)

	// A real decision right after must be admitted: the suggestion left the
	// cooldown state untouched.
	h.decoder.results = []*detect.Barcode{{Code: "8998866200318"}}
	h.classifier.detections = nil
	h.loop.processFrame(context.Background())
	assert.Len(t, h.sender.decisions(), 1)
}

func TestLoopBarcodeBeatsHigherConfidenceAI(t *testing.T) {
	h := newLoopHarness(t)
	h.cache.Replace(nil, map[string]string{"mouse": "478384ghhd39ej"})
	h.decoder.results = []*detect.Barcode{{Code: "8998866200318"}}
	h.classifier.detections = []detect.Detection{
		{Label: "mouse", Confidence: 1.0, Barcode: "478384ghhd39ej"},
	}

	h.loop.processFrame(context.Background())

	sent := h.sender.decisions()
	require.Len(t, sent, 1)
	assert.Equal(t, ProvenanceBarcode, sent[0].Provenance)
	assert.Equal(t, "8998866200318", sent[0].Code)

	// One signal per frame: the dispatched decision leaves no suggestion.
	assert.Empty(t, h.display.suggestions)
	assert.Equal(t, 0, h.stats.suggestions)
}

func TestLoopClassifierErrorIsNonFatal(t *testing.T) {
	h := newLoopHarness(t)
	h.classifier.err = context.DeadlineExceeded
	h.decoder.results = []*detect.Barcode{{Code: "8998866200318"}}

	h.loop.processFrame(context.Background())

	// The barcode path still works when inference fails.
	assert.Len(t, h.sender.decisions(), 1)
	assert.Equal(t, 1, h.stats.frames)
}

func TestLoopNoFrameIsNoOp(t *testing.T) {
	h := newLoopHarness(t)
	h.loop.source = &scriptedSource{ok: false}

	h.loop.processFrame(context.Background())

	assert.Equal(t, 0, h.stats.frames)
	assert.Equal(t, 0, h.display.frames)
}

func TestLoopHardwareScanGoesThroughGate(t *testing.T) {
	h := newLoopHarness(t)
	h.cache.Replace(map[string]string{"8998866200318": "Instant Noodles"}, nil)

	h.loop.handleScan("8998866200318")
	sent := h.sender.decisions()
	require.Len(t, sent, 1)
	assert.Equal(t, "Instant Noodles", sent[0].Name)
	assert.Equal(t, ProvenanceBarcode, sent[0].Provenance)

	// A camera read of the same item right after is still one cart line.
	h.decoder.results = []*detect.Barcode{{Code: "8998866200318"}}
	h.loop.processFrame(context.Background())
	assert.Len(t, h.sender.decisions(), 1)

	h.loop.handleScan("")
	assert.Len(t, h.sender.decisions(), 1, "blank scanner lines are ignored")
}

func TestLoopCommands(t *testing.T) {
	h := newLoopHarness(t)

	h.loop.handleCommand(context.Background(), CommandSync)
	assert.EqualValues(t, 1, h.syncer.calls.Load())

	h.loop.handleCommand(context.Background(), CommandReload)
	assert.Equal(t, 1, h.classifier.reloads)

	require.True(t, h.loop.gate.Admit("a"))
	h.loop.handleCommand(context.Background(), CommandResetGate)
	assert.True(t, h.loop.gate.Admit("a"), "reset clears the cooldown")
}

func TestLoopSubmitNeverBlocks(t *testing.T) {
	h := newLoopHarness(t)

	for i := 0; i < cap(h.loop.commands); i++ {
		assert.True(t, h.loop.Submit(CommandSync))
	}
	assert.False(t, h.loop.Submit(CommandSync), "full queue reports busy instead of blocking")
}

func TestLoopRunStopsOnCancel(t *testing.T) {
	h := newLoopHarness(t)
	h.decoder.results = []*detect.Barcode{{Code: "8998866200318"}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.loop.Run(ctx)
		close(done)
	}()

	h.loop.Submit(CommandSync)

	// Drive ticks through the mock clock until the loop has consumed both
	// the frame and the command.
	require.Eventually(t, func() bool {
		h.clock.Advance(40 * time.Millisecond)
		return len(h.sender.decisions()) == 1 && h.syncer.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop did not stop on context cancellation")
	}
}
