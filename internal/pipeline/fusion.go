// Package pipeline is the decision core of the scanner: the fusion policy
// that reconciles the two detection modalities, the cooldown gate that
// debounces repeated scans, and the processing loop that owns both.
package pipeline

import (
	"github.com/smartretail/scanpos/internal/catalog"
	"github.com/smartretail/scanpos/internal/detect"
)

// Provenance records which modality produced a decision.
type Provenance string

const (
	ProvenanceBarcode Provenance = "BARCODE"
	ProvenanceAI      Provenance = "AI"
)

// Decision is one accepted product identification headed for the cooldown
// gate. At most one is produced per processed frame.
type Decision struct {
	Code       string
	Name       string
	Provenance Provenance
}

// Suggestion is a display-only signal: an AI detection confident enough to
// show the operator but not confident enough to act on. It never reaches the
// gate or the dispatcher.
type Suggestion struct {
	Label      string
	Confidence float64
}

// Observation is one frame's worth of detector output, a tagged union
// consumed by Policy.Resolve: a decoded barcode, a set of AI detections,
// both, or neither. Keeping the branch in one place keeps the precedence
// rule auditable.
type Observation struct {
	Barcode    *detect.Barcode
	Detections []detect.Detection
}

// Policy fuses one frame's detections into at most one decision.
//
// Precedence is strict: a decoded barcode always wins, because a physically
// printed code is ground truth and must never be overridden by a
// probabilistic classifier. An AI detection only becomes a decision when its
// confidence clears the auto-accept threshold AND its label maps to a
// barcode; the cart API is keyed by barcode, so an unmapped label fails
// closed rather than guessing.
type Policy struct {
	autoAccept float64
	suggestion float64
	catalog    *catalog.Cache
}

// NewPolicy creates a fusion policy. The display floor is not a parameter
// here: the classifier already applied it.
func NewPolicy(autoAccept, suggestion float64, cache *catalog.Cache) *Policy {
	return &Policy{autoAccept: autoAccept, suggestion: suggestion, catalog: cache}
}

// Resolve evaluates one frame's observation. It returns at most one of a
// decision or a suggestion; both nil means nothing actionable was seen.
func (p *Policy) Resolve(obs Observation) (*Decision, *Suggestion) {
	if obs.Barcode != nil {
		// Barcode this frame: AI detections are ignored entirely.
		return p.ResolveCode(obs.Barcode.Code), nil
	}

	if len(obs.Detections) == 0 {
		return nil, nil
	}

	// Highest confidence wins; strict > keeps the first-seen detection on a
	// tie, so selection is deterministic for a given input order.
	best := obs.Detections[0]
	for _, d := range obs.Detections[1:] {
		if d.Confidence > best.Confidence {
			best = d
		}
	}

	if best.Confidence >= p.autoAccept && best.Mapped() {
		return &Decision{
			Code:       best.Barcode,
			Name:       best.Label,
			Provenance: ProvenanceAI,
		}, nil
	}
	if best.Confidence >= p.suggestion {
		return nil, &Suggestion{Label: best.Label, Confidence: best.Confidence}
	}
	return nil, nil
}

// ResolveCode builds a barcode-provenance decision for a raw code, resolving
// its display name from the catalog. Used for decoded symbols and for lines
// from a hardware scanner, which are ground truth the same way.
func (p *Policy) ResolveCode(code string) *Decision {
	return &Decision{
		Code:       code,
		Name:       p.catalog.DisplayName(code),
		Provenance: ProvenanceBarcode,
	}
}
