package discovery

import (
	"encoding/base64"
	"encoding/json"

	"github.com/eduvpn/eduvpn-core/internal/config"
	"github.com/eduvpn/eduvpn-core/internal/reconcile"
	"github.com/eduvpn/eduvpn-core/types/discovery"
	"github.com/go-errors/errors"
)

// Document is a discovery document that can be refreshed
type Document struct {
	// Kind is one of the config.Group* kinds
	Kind string
	// OrgID is the organization of an organization server list
	OrgID string
	// Home is the secure internet home of the organization
	// In an organization server list it becomes the parent of the other servers
	Home string
}

// InstituteAccess is the document with the institute access servers
func InstituteAccess() Document {
	return Document{Kind: config.GroupInstituteAccess}
}

// SecureInternet is the document with the secure internet servers
func SecureInternet() Document {
	return Document{Kind: config.GroupSecureInternet}
}

// Organizations is the organization list
func Organizations() Document {
	return Document{Kind: config.GroupOrganizations}
}

// OrganizationServers is the server list of an organization with secure internet home 'home'
func OrganizationServers(orgID string, home string) Document {
	return Document{Kind: config.GroupOrganizationServers, OrgID: orgID, Home: home}
}

// Group returns the reconcile group of the document
func (d Document) Group() string {
	if d.Kind == config.GroupOrganizationServers {
		return reconcile.OrganizationGroup(d.OrgID)
	}
	return d.Kind
}

func (d Document) String() string {
	return d.Group()
}

// cacheName is the file name of the cache without extension
// Organization IDs are URLs so they are encoded
func (d Document) cacheName() string {
	if d.Kind == config.GroupOrganizationServers {
		return "organization_" + base64.RawURLEncoding.EncodeToString([]byte(d.OrgID))
	}
	return d.Kind
}

// decoded is a decoded document, only one of the fields is set
type decoded struct {
	servers *discovery.Servers
	orgs    *discovery.Organizations
}

// decode decodes the document and returns the entries to reconcile
func (d Document) decode(body []byte) (decoded, []reconcile.Entry, error) {
	switch d.Kind {
	case config.GroupOrganizations:
		var o discovery.Organizations
		if err := json.Unmarshal(body, &o); err != nil {
			return decoded{}, nil, err
		}
		return decoded{orgs: &o}, reconcile.OrganizationEntries(&o), nil
	case config.GroupInstituteAccess, config.GroupSecureInternet, config.GroupOrganizationServers:
		var s discovery.Servers
		if err := json.Unmarshal(body, &s); err != nil {
			return decoded{}, nil, err
		}
		var entries []reconcile.Entry
		switch d.Kind {
		case config.GroupInstituteAccess:
			entries = reconcile.InstituteEntries(&s)
		case config.GroupSecureInternet:
			entries = reconcile.SecureInternetEntries(&s)
		default:
			entries = reconcile.OrganizationServerEntries(d.Home, &s)
		}
		return decoded{servers: &s}, entries, nil
	default:
		return decoded{}, nil, errors.Errorf("unknown discovery document kind: '%s'", d.Kind)
	}
}
