package catalog

import (
	"fmt"
	"sync"
	"testing"
)

func TestCacheEmptyDefaults(t *testing.T) {
	c := NewCache()

	if got := c.DisplayName("8998866200318"); got != "Unknown (8998866200318)" {
		t.Errorf("DisplayName on empty cache = %q", got)
	}
	if _, ok := c.BarcodeForLabel("mouse"); ok {
		t.Error("empty cache resolved a label")
	}
	if c.Len() != 0 {
		t.Errorf("Len = %d, want 0", c.Len())
	}
}

func TestCacheReplaceAndLookup(t *testing.T) {
	c := NewCache()
	c.Replace(
		map[string]string{"8998866200318": "Mie Sedap Soto"},
		map[string]string{"mie sedap soto": "8998866200318"},
	)

	if got := c.DisplayName("8998866200318"); got != "Mie Sedap Soto" {
		t.Errorf("DisplayName = %q", got)
	}
	if code, ok := c.BarcodeForLabel("mie sedap soto"); !ok || code != "8998866200318" {
		t.Errorf("BarcodeForLabel = %q, %v", code, ok)
	}
}

func TestCacheLabelLookupLowercases(t *testing.T) {
	c := NewCache()
	c.Replace(nil, map[string]string{"mouse": "478384ghhd39ej"})

	// Detector labels sometimes come back capitalised; the lowercased form
	// must still resolve.
	if code, ok := c.BarcodeForLabel("Mouse"); !ok || code != "478384ghhd39ej" {
		t.Errorf("BarcodeForLabel(Mouse) = %q, %v", code, ok)
	}
}

func TestCacheReplaceCopiesInput(t *testing.T) {
	names := map[string]string{"111": "Widget"}
	c := NewCache()
	c.Replace(names, nil)

	names["111"] = "Mutated"
	if got := c.DisplayName("111"); got != "Widget" {
		t.Errorf("cache observed caller mutation: %q", got)
	}
}

func TestCacheSnapshotIsACopy(t *testing.T) {
	c := NewCache()
	c.Replace(map[string]string{"111": "Widget"}, map[string]string{"widget": "111"})

	names, labels := c.Snapshot()
	names["222"] = "Injected"
	delete(labels, "widget")

	if _, ok := c.Name("222"); ok {
		t.Error("snapshot mutation leaked into cache")
	}
	if _, ok := c.BarcodeForLabel("widget"); !ok {
		t.Error("snapshot deletion leaked into cache")
	}
}

func TestCacheConcurrentReplaceAndRead(t *testing.T) {
	c := NewCache()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			code := fmt.Sprintf("%d", i)
			c.Replace(map[string]string{code: "Item " + code}, map[string]string{"item": code})
		}
	}()

	// Readers must always see a complete generation: a label that resolves
	// must resolve to a code that is present in the same generation's names.
	for i := 0; i < 1000; i++ {
		if code, ok := c.BarcodeForLabel("item"); ok {
			if _, found := c.Name(code); !found {
				// A miss here is legal (a newer generation may have landed
				// between the two reads) but the name map itself must be
				// intact, which Name already proved by not racing.
				continue
			}
		}
	}
	close(stop)
	wg.Wait()
}
