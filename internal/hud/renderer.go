package hud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smartretail/scanpos/internal/monitoring"
	"github.com/smartretail/scanpos/internal/stats"
	"github.com/smartretail/scanpos/internal/timeutil"
)

// StatsSource supplies telemetry for the status line.
type StatsSource interface {
	Snapshot() stats.Snapshot
}

// LogRenderer writes a periodic one-line status to the log. It is the
// headless stand-in for the kiosk's on-screen overlay.
type LogRenderer struct {
	overlay  *Overlay
	stats    StatsSource
	clock    timeutil.Clock
	interval time.Duration
}

// NewLogRenderer creates a renderer that logs every interval.
func NewLogRenderer(overlay *Overlay, stats StatsSource, clock timeutil.Clock, interval time.Duration) *LogRenderer {
	return &LogRenderer{overlay: overlay, stats: stats, clock: clock, interval: interval}
}

// Run logs until ctx is cancelled.
func (r *LogRenderer) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			monitoring.Logf("hud: %s", r.Line())
		}
	}
}

// Line formats one status line from the current state.
func (r *LogRenderer) Line() string {
	st := r.overlay.Snapshot()
	snap := r.stats.Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "%.1f fps | %d BC | %d AI", snap.FPS, snap.BarcodeScans, snap.AIScans)
	if st.Barcode != nil {
		fmt.Fprintf(&b, " | barcode %s", st.Barcode.Code)
	}
	for _, d := range st.Detections {
		fmt.Fprintf(&b, " | %s %.0f%%", d.Label, d.Confidence*100)
		if !d.Mapped() {
			b.WriteString(" [NO MAP]")
		}
	}
	if st.Message != "" {
		fmt.Fprintf(&b, " | %s", st.Message)
	}
	return b.String()
}
