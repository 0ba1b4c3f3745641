package client

import (
	"github.com/eduvpn/eduvpn-core/internal/log"
	"github.com/eduvpn/eduvpn-core/internal/reconcile"
	"github.com/eduvpn/eduvpn-core/internal/rows"
	"golang.org/x/text/language"
)

// GroupRows is the list of persisted servers of a single discovery group
// Like Search, all of its state lives on the client queue
type GroupRows struct {
	c        *Client
	group    string
	onChange RowsChanged

	rows []rows.Row
}

// NewGroupRows creates the rows of a discovery group, see Records for the groups
// onChange is called on the client queue whenever a refresh changed the rows of the group
func (c *Client) NewGroupRows(group string, onChange RowsChanged) *GroupRows {
	g := &GroupRows{
		c:        c,
		group:    group,
		onChange: onChange,
	}
	c.queue.Dispatch(func() {
		c.groups[g] = struct{}{}
		g.update()
	})
	return g
}

// Rows returns a copy of the current rows
func (g *GroupRows) Rows() []rows.Row {
	var r []rows.Row
	g.c.sync(func() {
		r = append(r, g.rows...)
	})
	return r
}

// Close stops updating the rows
func (g *GroupRows) Close() {
	g.c.sync(func() {
		delete(g.c.groups, g)
	})
}

func (g *GroupRows) update() {
	records, err := g.c.reconciler.Records(g.group)
	if err != nil {
		log.Logger.Warningf("failed getting records of group: '%s': %v", g.group, err)
		return
	}
	updated := recordRows(records, g.c.Language)
	diff := rows.Diff(g.rows, updated)
	g.rows = updated
	if diff.Empty() || g.onChange == nil {
		return
	}
	g.onChange(diff, append([]rows.Row(nil), updated...))
}

// recordRows returns the sorted rows of records
// Secure internet servers are named by their country code
func recordRows(records []reconcile.Record, tag language.Tag) []rows.Row {
	r := make([]rows.Row, 0, len(records))
	for _, rec := range records {
		row := rows.Row{ID: rec.ID}
		switch {
		case rec.Group == reconcile.GroupInstituteAccess:
			row.Kind = rows.KindInstituteAccess
			row.DisplayName = rec.DisplayName.StringFor(tag)
		case rec.Group == reconcile.GroupOrganizations:
			row.Kind = rows.KindSecureInternetOrg
			row.DisplayName = rec.DisplayName.StringFor(tag)
		case rec.CountryCode != "":
			row.Kind = rows.KindSecureInternetServer
			row.DisplayName = rec.CountryCode
		default:
			row.Kind = rows.KindSecureInternetServer
			row.DisplayName = rec.DisplayName.StringFor(tag)
		}
		r = append(r, row)
	}
	rows.Sort(r)
	return r
}
