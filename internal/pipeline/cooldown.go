package pipeline

import (
	"time"

	"github.com/smartretail/scanpos/internal/timeutil"
)

// Gate debounces accepted decisions so one product lingering in front of the
// camera does not ring up repeatedly. Re-admitting the same code requires a
// longer quiet period than switching to a different code: the operator
// scanning two items back to back is normal, the same item twice within two
// seconds almost never is.
//
// Gate is owned by the single processing goroutine, so Admit's
// check-and-update needs no lock.
type Gate struct {
	sameItem      time.Duration
	differentItem time.Duration
	clock         timeutil.Clock

	lastCode string
	lastAt   time.Time
	hasLast  bool
}

// NewGate creates a cooldown gate. sameItem should be the longer of the two
// windows.
func NewGate(sameItem, differentItem time.Duration, clock timeutil.Clock) *Gate {
	return &Gate{sameItem: sameItem, differentItem: differentItem, clock: clock}
}

// Admit reports whether a decision for code may be dispatched now, and if so
// records it as the most recent admission. The first decision after startup
// or Reset is always admitted. The comparison is strict: a decision arriving
// exactly at the window boundary is rejected.
func (g *Gate) Admit(code string) bool {
	now := g.clock.Now()
	if g.hasLast {
		required := g.differentItem
		if code == g.lastCode {
			required = g.sameItem
		}
		if now.Sub(g.lastAt) <= required {
			return false
		}
	}
	g.lastCode = code
	g.lastAt = now
	g.hasLast = true
	return true
}

// Reset clears the gate to its startup state. Used when the operator clears
// the cart, so the next scan of any item is admitted immediately.
func (g *Gate) Reset() {
	g.lastCode = ""
	g.lastAt = time.Time{}
	g.hasLast = false
}
