package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/eduvpn/eduvpn-core/internal/log"
	"github.com/eduvpn/eduvpn-core/internal/reconcile"
	"github.com/eduvpn/eduvpn-core/internal/util"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentRefreshes limits the number of documents that are fetched at the same time
const maxConcurrentRefreshes = 4

// Result is the result of refreshing a single document
type Result struct {
	Document Document
	Diff     reconcile.Diff
	Err      error
}

// RefreshAll refreshes the documents concurrently
// A failure of one document does not stop the others, the returned error is the first failure
func (d *Discovery) RefreshAll(ctx context.Context, docs []Document) ([]Result, error) {
	results := make([]Result, len(docs))
	var g errgroup.Group
	g.SetLimit(maxConcurrentRefreshes)
	for i, doc := range docs {
		g.Go(func() error {
			diff, err := d.Refresh(ctx, doc)
			results[i] = Result{Document: doc, Diff: diff, Err: err}
			if err != nil {
				return fmt.Errorf("refreshing '%s': %w", doc, err)
			}
			return nil
		})
	}
	return results, g.Wait()
}

// Manager loads the cached documents and refreshes the outdated ones in the background
type Manager struct {
	disco *Discovery

	mu     sync.Mutex
	cancel context.CancelFunc
	wait   sync.WaitGroup
}

// NewManager creates a manager for 'disco'
func NewManager(disco *Discovery) *Manager {
	return &Manager{disco: disco}
}

// Discovery returns the managed discovery
func (m *Manager) Discovery() *Discovery {
	return m.disco
}

// Cancel cancels the background refresh and waits for it to stop
func (m *Manager) Cancel() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.mu.Unlock()
	m.wait.Wait()
}

// Startup loads the cached copies of docs and then refreshes the ones that are due in the background
// cb is called for every refreshed document unless the manager was cancelled, it may be nil
// It returns the results of loading the caches
func (m *Manager) Startup(ctx context.Context, docs []Document, cb func(Result)) []Result {
	var loaded []Result
	var due []Document
	for _, doc := range docs {
		ok, diff, err := m.disco.LoadCached(ctx, doc)
		if err != nil {
			log.Logger.Warningf("ignoring discovery cache of: '%s': %v", doc, err)
		}
		if ok {
			loaded = append(loaded, Result{Document: doc, Diff: diff})
		}
		if m.disco.ShouldRefresh(doc, util.CurrentTime()) {
			due = append(due, doc)
		}
	}
	if len(due) == 0 {
		return loaded
	}

	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.cancel = cancel
	m.mu.Unlock()

	m.wait.Add(1)
	go func() {
		defer m.wait.Done()
		results, err := m.disco.RefreshAll(ctx, due)
		if err != nil {
			// already logged per document
			log.Logger.Debugf("startup refresh finished with error: %v", err)
		}
		for _, r := range results {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if cb != nil {
				cb(r)
			}
		}
	}()
	return loaded
}
