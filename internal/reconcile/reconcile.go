// Package reconcile merges discovery documents into the persisted server records
//
// The records of a discovery group are joined with the entries of a freshly verified document on their ID.
// Records that are still in the document are updated in place, new entries are inserted and
// records that are no longer in the document are deleted. The changes are committed atomically per group.
package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/eduvpn/eduvpn-core/internal/log"
	"github.com/eduvpn/eduvpn-core/types/server"
	"github.com/go-errors/errors"
)

// Diff are the changes of a reconciliation
type Diff struct {
	Updated  []Record
	Inserted []Record
	Deleted  []Record
}

// Empty returns whether nothing was inserted or deleted
// Updates are always applied so they do not count
func (d Diff) Empty() bool {
	return len(d.Inserted) == 0 && len(d.Deleted) == 0
}

// IDs returns the IDs of the records that exist after the diff is committed, sorted
func (d Diff) IDs() []string {
	ids := make([]string, 0, len(d.Updated)+len(d.Inserted))
	for _, r := range d.Updated {
		ids = append(ids, r.ID)
	}
	for _, r := range d.Inserted {
		ids = append(ids, r.ID)
	}
	sort.Strings(ids)
	return ids
}

// Plan computes the diff of the existing records of a group and the entries from discovery
// newPath is called for every inserted record to get its local storage path
// If an ID occurs multiple times in entries, the first one is used
func Plan(group string, existing []Record, entries []Entry, newPath func() string) Diff {
	incoming := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if _, ok := incoming[e.ID]; !ok {
			incoming[e.ID] = e
		}
	}

	var d Diff
	present := make(map[string]bool, len(existing))
	for _, r := range existing {
		e, ok := incoming[r.ID]
		if !ok || present[r.ID] {
			d.Deleted = append(d.Deleted, r)
			continue
		}
		present[r.ID] = true
		e.apply(&r)
		d.Updated = append(d.Updated, r)
	}

	for _, e := range entries {
		if present[e.ID] {
			continue
		}
		present[e.ID] = true
		d.Inserted = append(d.Inserted, e.record(group, newPath()))
	}

	// children of deleted parents lose their parent
	gone := make(map[string]bool)
	for _, r := range d.Deleted {
		if r.IsParent {
			gone[r.ID] = true
		}
	}
	if len(gone) > 0 {
		for i := range d.Updated {
			if gone[d.Updated[i].Parent] {
				d.Updated[i].Parent = ""
			}
		}
	}
	return d
}

// Store is a persistent store of records
type Store interface {
	// Records returns the records of a group
	Records(group string) ([]Record, error)
	// Commit applies the diff to the records of a group
	// Either the whole diff is applied or nothing is
	Commit(group string, d Diff) error
}

// CommitError is returned when committing a diff fails
// The store still has the records from before the reconciliation
type CommitError struct {
	Group string
	Err   error
}

func (e *CommitError) Error() string {
	return fmt.Sprintf("failed committing reconciliation for group: '%s' with error: %v", e.Group, e.Err)
}

func (e *CommitError) Unwrap() error {
	return e.Err
}

// Reconciler reconciles discovery groups with a store
// Reconciliations of the same group are serialized, different groups run concurrently
type Reconciler struct {
	store Store

	// NewStoragePath returns the local storage path for a new record
	NewStoragePath func() string

	mu     sync.Mutex
	groups map[string]*sync.Mutex
}

// New creates a reconciler for a store
func New(store Store) *Reconciler {
	return &Reconciler{
		store:          store,
		NewStoragePath: server.NewLocalStoragePath,
		groups:         make(map[string]*sync.Mutex),
	}
}

func (r *Reconciler) lock(group string) func() {
	r.mu.Lock()
	m, ok := r.groups[group]
	if !ok {
		m = &sync.Mutex{}
		r.groups[group] = m
	}
	r.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Records returns the records of a group
func (r *Reconciler) Records(group string) ([]Record, error) {
	return r.store.Records(group)
}

// Reconcile merges the entries into the records of the group
// If ctx is done before the commit, nothing is written and the context error is returned
func (r *Reconciler) Reconcile(ctx context.Context, group string, entries []Entry) (Diff, error) {
	unlock := r.lock(group)
	defer unlock()

	existing, err := r.store.Records(group)
	if err != nil {
		return Diff{}, errors.WrapPrefix(err, fmt.Sprintf("failed getting records for group: '%s'", group), 0)
	}
	d := Plan(group, existing, entries, r.NewStoragePath)

	// a superseded reconciliation must never write
	if err := ctx.Err(); err != nil {
		return Diff{}, err
	}
	if err := r.store.Commit(group, d); err != nil {
		return Diff{}, &CommitError{Group: group, Err: err}
	}
	log.Logger.Debugf("reconciled group: '%s', updated: %d, inserted: %d, deleted: %d",
		group, len(d.Updated), len(d.Inserted), len(d.Deleted))
	return d, nil
}
