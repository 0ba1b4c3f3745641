package client

import (
	"context"

	"github.com/eduvpn/eduvpn-core/i18nerr"
	"github.com/eduvpn/eduvpn-core/internal/config"
	"github.com/eduvpn/eduvpn-core/internal/discovery"
	"github.com/eduvpn/eduvpn-core/internal/log"
	discotypes "github.com/eduvpn/eduvpn-core/types/discovery"
	"github.com/go-errors/errors"
)

func listName(doc discovery.Document) string {
	switch doc.Kind {
	case config.GroupOrganizations:
		return "organizations"
	case config.GroupSecureInternet:
		return "secure internet servers"
	case config.GroupOrganizationServers:
		return "servers of your organization"
	default:
		return "servers"
	}
}

func refreshError(doc discovery.Document, err error) error {
	if errors.Is(err, discovery.ErrNotVerified) {
		return i18nerr.Wrapf(err, "The list of %s could not be verified", listName(doc))
	}
	return i18nerr.Wrapf(err, "Failed to refresh the list of %s", listName(doc))
}

func (c *Client) discoveryNotSupported() error {
	return i18nerr.New("Server/organization discovery with this client ID is not supported")
}

// Refresh fetches, verifies and reconciles a single discovery document
// The searches are updated if the document was accepted
func (c *Client) Refresh(ctx context.Context, doc discovery.Document) (err error) {
	if !c.hasDiscovery() {
		return c.discoveryNotSupported()
	}
	diff, err := c.manager.Discovery().Refresh(ctx, doc)
	if err != nil {
		return refreshError(doc, err)
	}
	log.Logger.Debugf("refreshed: '%s', changed: %v", doc, !diff.Empty())
	c.queue.Dispatch(c.updateSearches)
	return nil
}

// RefreshAll refreshes the server list and the organization list concurrently
// Every document that verifies is accepted, even if another one fails
// The returned error is the first failure
func (c *Client) RefreshAll(ctx context.Context) error {
	if !c.hasDiscovery() {
		return c.discoveryNotSupported()
	}
	results, _ := c.manager.Discovery().RefreshAll(ctx, startupDocuments())
	var first error
	for _, r := range results {
		if r.Err != nil && first == nil {
			first = refreshError(r.Document, r.Err)
		}
	}
	c.queue.Dispatch(c.updateSearches)
	return first
}

// RefreshOrganization refreshes the server list of the organization with ID 'orgID'
// The organization list must have been loaded first
func (c *Client) RefreshOrganization(ctx context.Context, orgID string) error {
	if !c.hasDiscovery() {
		return c.discoveryNotSupported()
	}
	org, err := c.manager.Discovery().Organizations().ByID(orgID)
	if err != nil {
		return i18nerr.Wrapf(err, "No organization found with ID: '%s'", orgID)
	}
	return c.Refresh(ctx, discovery.OrganizationServers(org.OrgID, org.SecureInternetHome))
}

// InstituteAccess returns the institute access servers that match the query, best match first
func (c *Client) InstituteAccess(query string) []discotypes.InstituteAccessServer {
	return discovery.SearchInstitutes(c.manager.Discovery().InstituteAccess(), query)
}

// Organizations returns the organizations that match the query, best match first
func (c *Client) Organizations(query string) []discotypes.Organization {
	return discovery.SearchOrganizations(c.manager.Discovery().Organizations(), query)
}

// SecureLocations returns the country codes of the secure internet servers
func (c *Client) SecureLocations() []string {
	srvs := c.manager.Discovery().SecureInternet()
	if srvs == nil {
		return nil
	}
	return srvs.SecureLocations()
}

// SecureHome returns the organization with ID 'orgID' and its secure internet home server
func (c *Client) SecureHome(orgID string) (*discotypes.Organization, *discotypes.SecureInternetServer, error) {
	d := c.manager.Discovery()
	org, srv, err := discotypes.SecureHome(d.Organizations(), d.SecureInternet(), orgID)
	if err == nil {
		return org, srv, nil
	}
	var nf *discotypes.NotFoundError
	if errors.As(err, &nf) && nf.Kind == "organization" {
		return nil, nil, i18nerr.Wrapf(err, "No organization found with ID: '%s'", orgID)
	}
	return nil, nil, i18nerr.Wrapf(err, "No secure internet server found for organization: '%s'", orgID)
}
