package client

import (
	"strings"

	"github.com/eduvpn/eduvpn-core/internal/discovery"
	"github.com/eduvpn/eduvpn-core/internal/rows"
	"github.com/eduvpn/eduvpn-core/internal/util"
	discotypes "github.com/eduvpn/eduvpn-core/types/discovery"
	"golang.org/x/text/language"
)

// RowsChanged is called with the difference from the previous rows and the new rows
type RowsChanged func(diff rows.Difference, current []rows.Row)

// Search is a list of servers and organizations filtered by a query
// All of its state lives on the client queue
type Search struct {
	c                    *Client
	includeOrganizations bool
	onChange             RowsChanged

	query string
	rows  []rows.Row
}

// NewSearch creates a search that calls onChange on the client queue whenever its rows change
// Organizations are only listed if includeOrganizations is set, e.g. when no secure internet server was added yet
func (c *Client) NewSearch(includeOrganizations bool, onChange RowsChanged) *Search {
	s := &Search{
		c:                    c,
		includeOrganizations: includeOrganizations,
		onChange:             onChange,
	}
	c.queue.Dispatch(func() {
		c.searches[s] = struct{}{}
		s.update()
	})
	return s
}

// SetQuery changes the query of the search
func (s *Search) SetQuery(query string) {
	s.c.queue.Dispatch(func() {
		s.query = query
		s.update()
	})
}

// Rows returns a copy of the current rows
func (s *Search) Rows() []rows.Row {
	var r []rows.Row
	s.c.sync(func() {
		r = append(r, s.rows...)
	})
	return r
}

// Close stops updating the search
func (s *Search) Close() {
	s.c.sync(func() {
		delete(s.c.searches, s)
	})
}

func (s *Search) update() {
	d := s.c.manager.Discovery()
	var orgs *discotypes.Organizations
	if s.includeOrganizations {
		orgs = d.Organizations()
	}
	updated := buildRows(d.InstituteAccess(), orgs, s.query, s.c.Language)
	diff := rows.Diff(s.rows, updated)
	s.rows = updated
	if diff.Empty() || s.onChange == nil {
		return
	}
	s.onChange(diff, append([]rows.Row(nil), updated...))
}

func (c *Client) updateSearches() {
	for s := range c.searches {
		s.update()
	}
	for g := range c.groups {
		g.update()
	}
}

// serverURL returns the URL to add a server by URL for a query
// A query is only considered a URL if it has at least two dots
func serverURL(query string) (string, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if strings.Count(q, ".") < 2 {
		return "", false
	}
	u, err := util.EnsureValidURL(q)
	if err != nil {
		return "", false
	}
	return u, true
}

// buildRows returns the sorted rows for a query
// Each section has a header row if it has any rows, if there are no rows at all a single no results row is returned
func buildRows(servers *discotypes.Servers, orgs *discotypes.Organizations, query string, tag language.Tag) []rows.Row {
	var r []rows.Row
	if u, ok := serverURL(query); ok {
		r = append(r,
			rows.Row{Kind: rows.KindAddingServerByURLHeader},
			rows.Row{Kind: rows.KindAddingServerByURL, DisplayName: u, ID: u},
		)
	}
	if ia := discovery.SearchInstitutes(servers, query); len(ia) > 0 {
		r = append(r, rows.Row{Kind: rows.KindInstituteAccessHeader})
		for _, srv := range ia {
			r = append(r, rows.Row{
				Kind:        rows.KindInstituteAccess,
				DisplayName: srv.DisplayName.StringFor(tag),
				ID:          srv.BaseURL,
			})
		}
	}
	if o := discovery.SearchOrganizations(orgs, query); len(o) > 0 {
		r = append(r, rows.Row{Kind: rows.KindSecureInternetOrgHeader})
		for _, org := range o {
			r = append(r, rows.Row{
				Kind:        rows.KindSecureInternetOrg,
				DisplayName: org.DisplayName.StringFor(tag),
				ID:          org.OrgID,
			})
		}
	}
	if len(r) == 0 {
		return []rows.Row{{Kind: rows.KindNoResults}}
	}
	rows.Sort(r)
	return r
}
