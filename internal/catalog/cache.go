// Package catalog holds the product mappings the scanner resolves against:
// barcode to display name, and detector class label to barcode. The cache is
// refreshed wholesale from the backend and optionally snapshotted to a local
// sqlite file so a cold start without network still resolves names.
package catalog

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// mapping is one immutable generation of the catalog. Replace swaps the
// whole struct behind an atomic pointer, so readers never observe a
// half-replaced catalog and no lock is needed on the read path.
type mapping struct {
	names  map[string]string // barcode -> display name
	labels map[string]string // class label -> barcode
}

// Cache is the process-wide catalog. Safe for concurrent use: the processing
// loop and dispatch goroutines read while a sync replaces.
type Cache struct {
	m atomic.Pointer[mapping]
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	c := &Cache{}
	c.m.Store(&mapping{names: map[string]string{}, labels: map[string]string{}})
	return c
}

// Replace installs a new catalog generation. The maps are copied, so the
// caller may keep mutating its own.
func (c *Cache) Replace(names, labels map[string]string) {
	next := &mapping{
		names:  make(map[string]string, len(names)),
		labels: make(map[string]string, len(labels)),
	}
	for k, v := range names {
		next.names[k] = v
	}
	for k, v := range labels {
		next.labels[k] = v
	}
	c.m.Store(next)
}

// Name returns the display name for a barcode.
func (c *Cache) Name(code string) (string, bool) {
	name, ok := c.m.Load().names[code]
	return name, ok
}

// DisplayName returns the display name for a barcode, or "Unknown (<code>)"
// when the catalog has no entry. A stale or empty catalog degrades to more
// unknowns, never to an error.
func (c *Cache) DisplayName(code string) string {
	if name, ok := c.Name(code); ok {
		return name
	}
	return fmt.Sprintf("Unknown (%s)", code)
}

// BarcodeForLabel resolves a detector class label to a barcode, trying the
// exact label first and then its lowercased form.
func (c *Cache) BarcodeForLabel(label string) (string, bool) {
	labels := c.m.Load().labels
	if code, ok := labels[label]; ok {
		return code, true
	}
	code, ok := labels[strings.ToLower(label)]
	return code, ok
}

// Len returns the number of barcode->name entries.
func (c *Cache) Len() int {
	return len(c.m.Load().names)
}

// Snapshot returns copies of both mappings, for the snapshot store and the
// debug endpoint.
func (c *Cache) Snapshot() (names, labels map[string]string) {
	m := c.m.Load()
	names = make(map[string]string, len(m.names))
	labels = make(map[string]string, len(m.labels))
	for k, v := range m.names {
		names[k] = v
	}
	for k, v := range m.labels {
		labels[k] = v
	}
	return names, labels
}
