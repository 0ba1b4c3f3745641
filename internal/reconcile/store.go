package reconcile

import (
	"fmt"
	"sort"
	"sync"
)

func sortRecords(records []Record) {
	sort.SliceStable(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}

func validate(group string, r Record) error {
	if r.LocalStoragePath == "" {
		return fmt.Errorf("record: '%s' has no local storage path", r.ID)
	}
	if r.Group != group {
		return fmt.Errorf("record: '%s' belongs to group: '%s', not: '%s'", r.ID, r.Group, group)
	}
	return nil
}

// apply applies a diff to the records of a group keyed by local storage path
func apply(group string, records map[string]Record, d Diff) (map[string]Record, error) {
	res := make(map[string]Record, len(records)+len(d.Inserted))
	for k, v := range records {
		res[k] = v
	}
	for _, r := range d.Deleted {
		delete(res, r.LocalStoragePath)
	}
	for _, r := range d.Updated {
		if err := validate(group, r); err != nil {
			return nil, err
		}
		if _, ok := res[r.LocalStoragePath]; !ok {
			return nil, fmt.Errorf("updated record: '%s' does not exist", r.ID)
		}
		res[r.LocalStoragePath] = r
	}
	for _, r := range d.Inserted {
		if err := validate(group, r); err != nil {
			return nil, err
		}
		if _, ok := res[r.LocalStoragePath]; ok {
			return nil, fmt.Errorf("inserted record: '%s' already exists", r.ID)
		}
		res[r.LocalStoragePath] = r
	}
	return res, nil
}

// MemoryStore is a store that keeps the records in memory
type MemoryStore struct {
	mu     sync.RWMutex
	groups map[string]map[string]Record
}

// NewMemoryStore creates an empty memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{groups: make(map[string]map[string]Record)}
}

// Records returns the records of a group sorted by ID
func (m *MemoryStore) Records(group string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]Record, 0, len(m.groups[group]))
	for _, r := range m.groups[group] {
		records = append(records, r)
	}
	sortRecords(records)
	return records, nil
}

// Commit applies the diff on a copy of the group and then swaps it in
func (m *MemoryStore) Commit(group string, d Diff) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, err := apply(group, m.groups[group], d)
	if err != nil {
		return err
	}
	m.groups[group] = res
	return nil
}
