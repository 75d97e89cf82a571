// Package stats tracks scanner telemetry: a rolling frame-rate window and
// counters for accepted scans by provenance. Policy never reads these; they
// exist for the HUD, the status endpoint, and Prometheus.
package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gonum.org/v1/gonum/stat"

	"github.com/smartretail/scanpos/internal/pipeline"
)

// Snapshot is a point-in-time copy of the tracker, safe to hand to the HUD
// or serialize on the status endpoint.
type Snapshot struct {
	FPS          float64 `json:"fps"`
	Frames       uint64  `json:"frames"`
	BarcodeScans uint64  `json:"barcode_scans"`
	AIScans      uint64  `json:"ai_scans"`
	Suggestions  uint64  `json:"suggestions"`
}

// Tracker implements the processing loop's telemetry sink. Safe for
// concurrent use: the loop writes, the HUD and the status server read.
type Tracker struct {
	mu         sync.Mutex
	frameTimes []time.Time // ring, oldest evicted on overflow
	window     int
	frames     uint64
	barcode    uint64
	ai         uint64
	suggest    uint64

	framesTotal      prometheus.Counter
	suggestionsTotal prometheus.Counter
	scansTotal       *prometheus.CounterVec
}

// NewTracker creates a tracker whose frame-rate estimate covers the last
// window frames. Pass a prometheus.Registerer to export counters, or nil to
// skip registration.
func NewTracker(window int, reg prometheus.Registerer) *Tracker {
	t := &Tracker{
		frameTimes: make([]time.Time, 0, window),
		window:     window,
		framesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanpos_frames_processed_total",
			Help: "Frames pulled from the camera and processed.",
		}),
		suggestionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanpos_suggestions_total",
			Help: "Display-only suggestions below the auto-accept threshold.",
		}),
		scansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanpos_scans_accepted_total",
			Help: "Scans admitted past the cooldown gate, by provenance.",
		}, []string{"provenance"}),
	}
	if reg != nil {
		reg.MustRegister(t.framesTotal, t.suggestionsTotal, t.scansTotal)
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "scanpos_fps",
			Help: "Processing frame rate over the rolling window.",
		}, func() float64 { return t.Snapshot().FPS }))
	}
	return t
}

// RecordFrame notes one processed frame at the given time.
func (t *Tracker) RecordFrame(at time.Time) {
	t.mu.Lock()
	if len(t.frameTimes) == t.window {
		copy(t.frameTimes, t.frameTimes[1:])
		t.frameTimes = t.frameTimes[:t.window-1]
	}
	t.frameTimes = append(t.frameTimes, at)
	t.frames++
	t.mu.Unlock()
	t.framesTotal.Inc()
}

// RecordAccept counts one admitted scan.
func (t *Tracker) RecordAccept(p pipeline.Provenance) {
	t.mu.Lock()
	switch p {
	case pipeline.ProvenanceBarcode:
		t.barcode++
	case pipeline.ProvenanceAI:
		t.ai++
	}
	t.mu.Unlock()
	t.scansTotal.WithLabelValues(string(p)).Inc()
}

// RecordSuggestion counts one display-only suggestion.
func (t *Tracker) RecordSuggestion() {
	t.mu.Lock()
	t.suggest++
	t.mu.Unlock()
	t.suggestionsTotal.Inc()
}

// Snapshot returns the current telemetry. FPS is the reciprocal of the mean
// inter-frame interval over the window, 0 until two frames have been seen.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return Snapshot{
		FPS:          fps(t.frameTimes),
		Frames:       t.frames,
		BarcodeScans: t.barcode,
		AIScans:      t.ai,
		Suggestions:  t.suggest,
	}
}

// FrameTimes returns a copy of the rolling window, for the debug chart.
func (t *Tracker) FrameTimes() []time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Time, len(t.frameTimes))
	copy(out, t.frameTimes)
	return out
}

func fps(times []time.Time) float64 {
	if len(times) < 2 {
		return 0
	}
	intervals := make([]float64, 0, len(times)-1)
	for i := 1; i < len(times); i++ {
		intervals = append(intervals, times[i].Sub(times[i-1]).Seconds())
	}
	mean := stat.Mean(intervals, nil)
	if mean <= 0 {
		return 0
	}
	return 1 / mean
}
