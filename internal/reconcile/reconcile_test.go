package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/eduvpn/eduvpn-core/types/discovery"
	"github.com/eduvpn/eduvpn-core/types/server"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	b, err := OpenBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"bolt":   b,
	}
}

func entries(ids ...string) []Entry {
	var res []Entry
	for _, id := range ids {
		res = append(res, Entry{
			ID:          id,
			DisplayName: discovery.NewString("name " + id),
			Type:        server.TypeInstituteAccess,
		})
	}
	return res
}

func ids(t *testing.T, s Store, group string) []string {
	records, err := s.Records(group)
	require.NoError(t, err)
	res := []string{}
	for _, r := range records {
		res = append(res, r.ID)
	}
	return res
}

func paths(t *testing.T, s Store, group string) map[string]string {
	records, err := s.Records(group)
	require.NoError(t, err)
	res := make(map[string]string)
	for _, r := range records {
		res[r.ID] = r.LocalStoragePath
	}
	return res
}

func TestReconcileDiff(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := New(s)
			_, err := r.Reconcile(ctx, GroupInstituteAccess, entries("A", "B", "C"))
			require.NoError(t, err)
			before := paths(t, s, GroupInstituteAccess)

			in := entries("B", "C", "D")
			in[0].DisplayName = discovery.NewString("renamed")
			d, err := r.Reconcile(ctx, GroupInstituteAccess, in)
			require.NoError(t, err)

			require.Len(t, d.Deleted, 1)
			require.Equal(t, "A", d.Deleted[0].ID)
			require.Len(t, d.Inserted, 1)
			require.Equal(t, "D", d.Inserted[0].ID)
			require.Len(t, d.Updated, 2)
			require.Equal(t, []string{"B", "C", "D"}, d.IDs())
			require.Equal(t, []string{"B", "C", "D"}, ids(t, s, GroupInstituteAccess))

			// updated in place: the identity stays the same
			after := paths(t, s, GroupInstituteAccess)
			require.Equal(t, before["B"], after["B"])
			require.Equal(t, before["C"], after["C"])
			records, err := s.Records(GroupInstituteAccess)
			require.NoError(t, err)
			require.Equal(t, "renamed", records[0].DisplayName.String())
		})
	}
}

func TestReconcileIdempotent(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := New(s)
			in := entries("https://a.example.org/", "https://b.example.org/")
			d, err := r.Reconcile(ctx, GroupInstituteAccess, in)
			require.NoError(t, err)
			require.Len(t, d.Inserted, 2)

			d, err = r.Reconcile(ctx, GroupInstituteAccess, in)
			require.NoError(t, err)
			require.True(t, d.Empty())
			require.Empty(t, d.Inserted)
			require.Empty(t, d.Deleted)
			require.Len(t, d.Updated, 2)
		})
	}
}

func TestReconcileGroupsIndependent(t *testing.T) {
	s := NewMemoryStore()
	r := New(s)
	ctx := context.Background()
	_, err := r.Reconcile(ctx, GroupInstituteAccess, entries("A"))
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, GroupSecureInternet, entries("B"))
	require.NoError(t, err)
	require.Equal(t, []string{"A"}, ids(t, s, GroupInstituteAccess))
	require.Equal(t, []string{"B"}, ids(t, s, GroupSecureInternet))
}

func TestReconcileAtomic(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := New(s)
			_, err := r.Reconcile(ctx, GroupInstituteAccess, entries("A", "B"))
			require.NoError(t, err)

			// the second insertion gets an invalid local storage path so the commit fails halfway
			n := 0
			r.NewStoragePath = func() string {
				n++
				if n == 2 {
					return ""
				}
				return fmt.Sprintf("path-%d", n)
			}
			_, err = r.Reconcile(ctx, GroupInstituteAccess, entries("C", "D"))
			var ce *CommitError
			require.True(t, errors.As(err, &ce), "got error: %v", err)
			require.Equal(t, GroupInstituteAccess, ce.Group)

			// nothing was applied
			require.Equal(t, []string{"A", "B"}, ids(t, s, GroupInstituteAccess))
		})
	}
}

func TestReconcileCancelled(t *testing.T) {
	s := NewMemoryStore()
	r := New(s)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Reconcile(ctx, GroupInstituteAccess, entries("A"))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, ids(t, s, GroupInstituteAccess))
}

func TestReconcileConcurrent(t *testing.T) {
	s := NewMemoryStore()
	r := New(s)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Reconcile(ctx, GroupInstituteAccess, entries("A", "B"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	// serialized reconciliations never insert an ID twice
	require.Equal(t, []string{"A", "B"}, ids(t, s, GroupInstituteAccess))
}

func TestPlanParent(t *testing.T) {
	home := "https://home.example.org/"
	servers := &discovery.Servers{SecureInternet: map[string]discovery.SecureInternetServer{
		home:                      {BaseURL: home, CountryCode: "NL"},
		"https://de.example.org/": {BaseURL: "https://de.example.org/", CountryCode: "DE"},
	}}
	group := OrganizationGroup("org")
	n := 0
	newPath := func() string {
		n++
		return fmt.Sprintf("p%d", n)
	}
	d := Plan(group, nil, OrganizationServerEntries(home, servers), newPath)
	require.Len(t, d.Inserted, 2)
	require.True(t, d.Inserted[0].IsParent)
	require.Equal(t, home, d.Inserted[1].Parent)

	existing := append([]Record{}, d.Inserted...)
	// the home server is no longer in the list, its child loses the parent
	delete(servers.SecureInternet, home)
	d = Plan(group, existing, OrganizationServerEntries(home, servers), newPath)
	require.Len(t, d.Deleted, 1)
	require.Equal(t, home, d.Deleted[0].ID)
	require.Len(t, d.Updated, 1)
	require.Equal(t, "", d.Updated[0].Parent)
	require.Empty(t, d.Inserted)
}

func TestPlanDuplicates(t *testing.T) {
	in := append(entries("A"), entries("A")...)
	in[1].DisplayName = discovery.NewString("second")
	d := Plan(GroupInstituteAccess, nil, in, func() string { return "p" })
	require.Len(t, d.Inserted, 1)
	require.Equal(t, "name A", d.Inserted[0].DisplayName.String())
}

func TestRecordJSON(t *testing.T) {
	r := Record{
		Group:            GroupOrganizations,
		ID:               "https://idp.example.org/",
		DisplayName:      discovery.NewMap(map[string]string{"en": "Example"}),
		Type:             server.TypeSecureInternet,
		SupportContact:   []string{},
		LocalStoragePath: "x",
	}
	b, err := json.Marshal(r)
	require.NoError(t, err)
	var got Record
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, r, got)
}

func TestEntries(t *testing.T) {
	var s discovery.Servers
	require.NoError(t, json.Unmarshal([]byte(`{"server_list": [
		{"server_type": "institute_access", "base_url": "https://a.example.org/", "display_name": "A"},
		{"server_type": "secure_internet", "base_url": "https://nl.example.org/", "country_code": "NL"}
	]}`), &s))
	ia := InstituteEntries(&s)
	require.Len(t, ia, 1)
	require.Equal(t, server.TypeInstituteAccess, ia[0].Type)
	si := SecureInternetEntries(&s)
	require.Len(t, si, 1)
	require.Equal(t, "NL", si[0].CountryCode)

	orgs := &discovery.Organizations{List: []discovery.Organization{{OrgID: "o", SecureInternetHome: "https://nl.example.org/"}}}
	oe := OrganizationEntries(orgs)
	require.Len(t, oe, 1)
	require.Equal(t, "https://nl.example.org/", oe[0].SecureInternetHome)
}
