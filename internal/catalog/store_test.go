package catalog

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreLoadEmpty(t *testing.T) {
	store := newTestStore(t)

	names, labels, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(names) != 0 || len(labels) != 0 {
		t.Errorf("fresh store not empty: %v / %v", names, labels)
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	wantNames := map[string]string{
		"8998866200318":  "Mie Sedap Soto",
		"478384ghhd39ej": "Mouse",
	}
	wantLabels := map[string]string{
		"mie sedap soto": "8998866200318",
		"mouse":          "478384ghhd39ej",
	}
	if err := store.Save(wantNames, wantLabels); err != nil {
		t.Fatalf("save: %v", err)
	}

	names, labels, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(wantNames, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantLabels, labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreSaveReplacesPrevious(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(map[string]string{"old": "Old Item"}, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(map[string]string{"new": "New Item"}, nil); err != nil {
		t.Fatalf("save: %v", err)
	}

	names, _, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := map[string]string{"new": "New Item"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("second save did not replace first (-want +got):\n%s", diff)
	}
}

func TestStoreReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Save(map[string]string{"111": "Widget"}, nil); err != nil {
		t.Fatalf("save: %v", err)
	}
	store.Close()

	// Second open re-runs migrations; must be a no-op, not a failure.
	reopened, err := NewStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	names, _, err := reopened.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if names["111"] != "Widget" {
		t.Errorf("data lost across reopen: %v", names)
	}
}
