// Package rows computes the changes between two sorted lists of rows
// so that a list UI can animate the changes instead of reloading everything
package rows

import "sort"

// Kind is the kind of a row, rows are sorted by kind first
type Kind int8

const (
	KindAddingServerByURLHeader Kind = iota
	KindAddingServerByURL
	KindInstituteAccessHeader
	KindInstituteAccess
	KindSecureInternetOrgHeader
	KindSecureInternetOrg
	// KindSecureInternetServer is a secure internet location or a server of an organization
	KindSecureInternetServer
	// KindNoResults is shown instead of an empty list
	KindNoResults
)

// Row is a single row in a list
type Row struct {
	Kind        Kind
	DisplayName string
	// ID identifies the thing the row represents, it is not used for ordering
	ID string
}

// Less orders by kind, then by display name
func Less(a, b Row) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.DisplayName < b.DisplayName
}

func same(a, b Row) bool {
	return a.Kind == b.Kind && a.DisplayName == b.DisplayName
}

// Sort sorts rows in place
func Sort(r []Row) {
	sort.SliceStable(r, func(i, j int) bool { return Less(r[i], r[j]) })
}

// Insertion is a row inserted at an index of the new list
type Insertion struct {
	Index int
	Row   Row
}

// Difference are the changes from an old to a new list
type Difference struct {
	// Deleted are indices in the old list, ascending
	Deleted []int
	// Inserted are insertions with indices in the new list, ascending
	Inserted []Insertion
}

// Empty returns whether nothing changed
func (d Difference) Empty() bool {
	return len(d.Deleted) == 0 && len(d.Inserted) == 0
}

// Diff computes the difference between two sorted lists
func Diff(old []Row, updated []Row) Difference {
	var d Difference
	i, j := 0, 0
	for j < len(updated) && i < len(old) {
		switch {
		case Less(old[i], updated[j]):
			d.Deleted = append(d.Deleted, i)
			i++
		case Less(updated[j], old[i]):
			d.Inserted = append(d.Inserted, Insertion{Index: j, Row: updated[j]})
			j++
		default:
			i++
			j++
		}
	}
	for ; i < len(old); i++ {
		d.Deleted = append(d.Deleted, i)
	}
	for ; j < len(updated); j++ {
		d.Inserted = append(d.Inserted, Insertion{Index: j, Row: updated[j]})
	}
	return d
}

// Apply applies the difference to the old list
// Deletions are done first, then the insertions in ascending order
func (d Difference) Apply(old []Row) []Row {
	deleted := make(map[int]bool, len(d.Deleted))
	for _, i := range d.Deleted {
		deleted[i] = true
	}
	res := make([]Row, 0, len(old)+len(d.Inserted))
	for i, r := range old {
		if !deleted[i] {
			res = append(res, r)
		}
	}
	for _, ins := range d.Inserted {
		res = append(res, Row{})
		copy(res[ins.Index+1:], res[ins.Index:])
		res[ins.Index] = ins.Row
	}
	return res
}

// Equal returns whether two lists have the same rows by kind and display name
func Equal(a, b []Row) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !same(a[i], b[i]) {
			return false
		}
	}
	return true
}
