package pipeline

import (
	"context"
	"time"

	"github.com/smartretail/scanpos/internal/detect"
	"github.com/smartretail/scanpos/internal/monitoring"
	"github.com/smartretail/scanpos/internal/timeutil"
	"github.com/smartretail/scanpos/internal/vision"
)

// Sender receives admitted decisions. The send is fire-and-forget: the loop
// never waits on it.
type Sender interface {
	Send(d Decision)
}

// Recorder receives processing telemetry.
type Recorder interface {
	RecordFrame(at time.Time)
	RecordAccept(p Provenance)
	RecordSuggestion()
}

// Display is the operator-facing surface. Every method must return quickly;
// it runs on the processing goroutine.
type Display interface {
	ShowFrame(seq uint64, barcode *detect.Barcode, detections []detect.Detection)
	ShowSuggestion(label string, confidence float64)
	ShowAccept(name string, p Provenance)
}

// Syncer refreshes the catalog on demand.
type Syncer interface {
	Sync(ctx context.Context) error
}

// Command is an out-of-band request handled between frames on the
// processing goroutine, so command handlers never race frame processing.
type Command int

const (
	// CommandSync re-fetches the product catalog.
	CommandSync Command = iota
	// CommandReload re-probes the inference sidecar so a restarted model
	// server is picked up without restarting the kiosk.
	CommandReload
	// CommandResetGate clears the cooldown state, used when the cart is
	// emptied at checkout.
	CommandResetGate
)

// Loop is the single processing goroutine: on every tick it pulls the
// latest frame, runs both detectors, fuses, gates, and dispatches. All
// mutable decision state (the gate, the policy's catalog reads) is touched
// only from Run, which is what makes the whole pipeline lock-free above the
// frame slot.
type Loop struct {
	source     vision.Source
	decoder    detect.Decoder
	classifier detect.Classifier
	policy     *Policy
	gate       *Gate
	sender     Sender
	stats      Recorder
	display    Display
	syncer     Syncer
	clock      timeutil.Clock
	interval   time.Duration

	// scans delivers raw codes from a hardware scanner. May be nil, in
	// which case the case blocks forever and costs nothing.
	scans    <-chan string
	commands chan Command
}

// LoopConfig carries the loop's collaborators. All fields except Scans are
// required.
type LoopConfig struct {
	Source     vision.Source
	Decoder    detect.Decoder
	Classifier detect.Classifier
	Policy     *Policy
	Gate       *Gate
	Sender     Sender
	Stats      Recorder
	Display    Display
	Syncer     Syncer
	Clock      timeutil.Clock
	Interval   time.Duration
	Scans      <-chan string
}

// NewLoop creates a processing loop from its collaborators.
func NewLoop(cfg LoopConfig) *Loop {
	return &Loop{
		source:     cfg.Source,
		decoder:    cfg.Decoder,
		classifier: cfg.Classifier,
		policy:     cfg.Policy,
		gate:       cfg.Gate,
		sender:     cfg.Sender,
		stats:      cfg.Stats,
		display:    cfg.Display,
		syncer:     cfg.Syncer,
		clock:      cfg.Clock,
		interval:   cfg.Interval,
		scans:      cfg.Scans,
		commands:   make(chan Command, 4),
	}
}

// Submit queues a command for the processing goroutine. It never blocks; if
// the queue is full the command is dropped and reported false, which a
// caller can surface as "busy, retry".
func (l *Loop) Submit(cmd Command) bool {
	select {
	case l.commands <- cmd:
		return true
	default:
		return false
	}
}

// Run processes frames until ctx is cancelled. It is the only goroutine
// that touches the gate or issues decisions.
func (l *Loop) Run(ctx context.Context) {
	ticker := l.clock.NewTicker(l.interval)
	defer ticker.Stop()

	monitoring.Logf("pipeline: processing loop started, interval %s", l.interval)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("pipeline: processing loop stopped")
			return
		case cmd := <-l.commands:
			l.handleCommand(ctx, cmd)
		case code := <-l.scans:
			l.handleScan(code)
		case <-ticker.C():
			l.processFrame(ctx)
		}
	}
}

func (l *Loop) processFrame(ctx context.Context) {
	frame, ok := l.source.Latest()
	if !ok {
		return
	}
	l.stats.RecordFrame(l.clock.Now())

	// Both detectors see every frame. The classifier output still feeds the
	// HUD even when a decoded symbol settles the decision.
	barcode := l.decoder.Decode(frame)
	detections, err := l.classifier.Classify(ctx, frame)
	if err != nil {
		monitoring.Logf("pipeline: classify frame %d: %v", frame.Seq, err)
	}

	l.display.ShowFrame(frame.Seq, barcode, detections)

	// At most one signal leaves a frame: a decision or a suggestion,
	// never both.
	decision, suggestion := l.policy.Resolve(Observation{Barcode: barcode, Detections: detections})
	if decision != nil {
		l.admit(*decision)
	} else if suggestion != nil {
		l.stats.RecordSuggestion()
		l.display.ShowSuggestion(suggestion.Label, suggestion.Confidence)
	}
}

// handleScan turns a raw hardware-scanner code into a decision. It goes
// through the same gate as camera decisions so a handheld scan and a camera
// read of the same item within the cooldown window still ring up once.
func (l *Loop) handleScan(code string) {
	if code == "" {
		return
	}
	l.admit(*l.policy.ResolveCode(code))
}

func (l *Loop) admit(d Decision) {
	if !l.gate.Admit(d.Code) {
		return
	}
	l.sender.Send(d)
	l.stats.RecordAccept(d.Provenance)
	l.display.ShowAccept(d.Name, d.Provenance)
	monitoring.Logf("pipeline: accepted %s (%s) via %s", d.Code, d.Name, d.Provenance)
}

func (l *Loop) handleCommand(ctx context.Context, cmd Command) {
	switch cmd {
	case CommandSync:
		if err := l.syncer.Sync(ctx); err != nil {
			monitoring.Logf("pipeline: catalog sync failed: %v", err)
		}
	case CommandReload:
		if err := l.classifier.Reload(ctx); err != nil {
			monitoring.Logf("pipeline: classifier reload failed: %v", err)
		}
	case CommandResetGate:
		l.gate.Reset()
		monitoring.Logf("pipeline: cooldown gate reset")
	}
}
