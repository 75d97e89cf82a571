package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/smartretail/scanpos/internal/httputil"
	"github.com/smartretail/scanpos/internal/monitoring"
)

// Syncer pulls the catalog from the backend and replaces the cache
// wholesale. It runs at startup and on operator command only; re-trying on a
// timer is left to whoever owns scheduling. A failed sync leaves the previous
// cache untouched.
type Syncer struct {
	mappingURL string // GET: flat {barcode: name} document
	classURL   string // GET: flat {class label: barcode} document; "" = skip
	client     httputil.HTTPClient
	cache      *Cache
	store      *Store // optional snapshot persistence
}

// NewSyncer creates a Syncer. store may be nil when local snapshots are not
// configured.
func NewSyncer(mappingURL, classURL string, client httputil.HTTPClient, cache *Cache, store *Store) *Syncer {
	if client == nil {
		client = httputil.NewStandardClient(nil)
	}
	return &Syncer{
		mappingURL: mappingURL,
		classURL:   classURL,
		client:     client,
		cache:      cache,
		store:      store,
	}
}

// Sync fetches both mappings and replaces the cache. Any fetch failure
// aborts the whole sync before the cache is touched, so N failed syncs in a
// row leave the cache byte-identical to before the first one. A successful
// sync is also written to the snapshot store; a store failure is logged and
// does not fail the sync.
func (s *Syncer) Sync(ctx context.Context) error {
	names, err := s.fetchMap(ctx, s.mappingURL)
	if err != nil {
		return fmt.Errorf("catalog sync failed: %w", err)
	}

	_, labels := s.cache.Snapshot()
	if s.classURL != "" {
		labels, err = s.fetchMap(ctx, s.classURL)
		if err != nil {
			return fmt.Errorf("class mapping sync failed: %w", err)
		}
	}

	s.cache.Replace(names, labels)
	monitoring.Logf("catalog synced: %d products, %d class mappings", len(names), len(labels))

	if s.store != nil {
		if err := s.store.Save(names, labels); err != nil {
			monitoring.Logf("failed to snapshot catalog: %v", err)
		}
	}
	return nil
}

// Restore loads the last snapshot from the store into the cache. Used once
// at startup, before the first network sync. No store or an empty snapshot
// is not an error.
func (s *Syncer) Restore() error {
	if s.store == nil {
		return nil
	}
	names, labels, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("failed to restore catalog snapshot: %w", err)
	}
	if len(names) == 0 && len(labels) == 0 {
		return nil
	}
	s.cache.Replace(names, labels)
	monitoring.Logf("catalog restored from snapshot: %d products, %d class mappings", len(names), len(labels))
	return nil
}

func (s *Syncer) fetchMap(ctx context.Context, url string) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("%s returned status %d", url, resp.StatusCode)
	}

	var m map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("bad mapping document from %s: %w", url, err)
	}
	return m, nil
}
