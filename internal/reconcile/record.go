package reconcile

import (
	"github.com/eduvpn/eduvpn-core/types/discovery"
	"github.com/eduvpn/eduvpn-core/types/server"
)

const (
	// GroupInstituteAccess is the group of the institute access servers from the server list
	GroupInstituteAccess = "institute_access"
	// GroupSecureInternet is the group of the secure internet servers from the server list
	GroupSecureInternet = "secure_internet"
	// GroupOrganizations is the group of the organizations from the organization list
	GroupOrganizations = "organizations"
)

// OrganizationGroup returns the group of the server list of an organization
func OrganizationGroup(orgID string) string {
	return "organization:" + orgID
}

// Record is a persisted server record that belongs to a discovery group
type Record struct {
	// Group is the discovery group this record belongs to
	Group string `json:"group"`
	// ID is the join key with discovery: the base URL or the org id for organizations
	// It is compared as an opaque string
	ID             string                          `json:"id"`
	DisplayName    discovery.LanguageMappedString  `json:"display_name"`
	KeywordList    *discovery.LanguageMappedString `json:"keyword_list,omitempty"`
	Type           server.Type                     `json:"server_type"`
	CountryCode    string                          `json:"country_code,omitempty"`
	SupportContact []string                        `json:"support_contact"`
	// SecureInternetHome is the home server of an organization
	SecureInternetHome string `json:"secure_internet_home,omitempty"`
	// IsParent is set for the home server in an organization server list
	IsParent bool `json:"is_parent,omitempty"`
	// Parent is the ID of the parent record in the same group
	Parent string `json:"parent,omitempty"`
	// LocalStoragePath is the identity of the record, it never changes after creation
	LocalStoragePath string `json:"local_storage_path"`
}

// Entry is a discovery entry that should be represented by a record
type Entry struct {
	ID                 string
	DisplayName        discovery.LanguageMappedString
	KeywordList        *discovery.LanguageMappedString
	Type               server.Type
	CountryCode        string
	SupportContact     []string
	SecureInternetHome string
	IsParent           bool
	Parent             string
}

// apply sets the fields from discovery on the record
// Identity and parent/child linkage are kept
func (e Entry) apply(r *Record) {
	r.DisplayName = e.DisplayName
	r.KeywordList = e.KeywordList
	r.Type = e.Type
	r.CountryCode = e.CountryCode
	r.SupportContact = e.SupportContact
	r.SecureInternetHome = e.SecureInternetHome
}

func (e Entry) record(group string, path string) Record {
	r := Record{
		Group:            group,
		ID:               e.ID,
		IsParent:         e.IsParent,
		Parent:           e.Parent,
		LocalStoragePath: path,
	}
	e.apply(&r)
	return r
}

// InstituteEntries returns the entries for the institute access servers in the server list
func InstituteEntries(s *discovery.Servers) []Entry {
	entries := make([]Entry, 0, len(s.InstituteAccess))
	for _, srv := range s.InstituteAccess {
		entries = append(entries, Entry{
			ID:             srv.BaseURL,
			DisplayName:    srv.DisplayName,
			KeywordList:    srv.KeywordList,
			Type:           server.TypeInstituteAccess,
			SupportContact: srv.SupportContact,
		})
	}
	return entries
}

func secureEntry(srv discovery.SecureInternetServer) Entry {
	return Entry{
		ID: srv.BaseURL,
		// secure internet servers have no display name in discovery
		DisplayName:    discovery.NewString(srv.CountryCode),
		Type:           server.TypeSecureInternet,
		CountryCode:    srv.CountryCode,
		SupportContact: srv.SupportContact,
	}
}

// SecureInternetEntries returns the entries for the secure internet servers in the server list
// They are ordered by base URL
func SecureInternetEntries(s *discovery.Servers) []Entry {
	entries := make([]Entry, 0, len(s.SecureInternet))
	for _, u := range s.SecureInternetBaseURLs() {
		entries = append(entries, secureEntry(s.SecureInternet[u]))
	}
	return entries
}

// OrganizationEntries returns the entries for the organizations in the organization list
func OrganizationEntries(o *discovery.Organizations) []Entry {
	entries := make([]Entry, 0, len(o.List))
	for _, org := range o.List {
		entries = append(entries, Entry{
			ID:                 org.OrgID,
			DisplayName:        org.DisplayName,
			KeywordList:        org.KeywordList,
			Type:               server.TypeSecureInternet,
			SecureInternetHome: org.SecureInternetHome,
		})
	}
	return entries
}

// OrganizationServerEntries returns the entries of the server list of an organization
// The home server is the parent, the other secure internet servers are its peers
// If the home server is not in the list, no entry is a parent
func OrganizationServerEntries(home string, s *discovery.Servers) []Entry {
	var entries []Entry
	_, hasHome := s.SecureInternet[home]
	if hasHome {
		e := secureEntry(s.SecureInternet[home])
		e.IsParent = true
		entries = append(entries, e)
	}
	for _, u := range s.SecureInternetBaseURLs() {
		if u == home {
			continue
		}
		e := secureEntry(s.SecureInternet[u])
		if hasHome {
			e.Parent = home
		}
		entries = append(entries, e)
	}
	return entries
}
