package discovery

import (
	"github.com/eduvpn/eduvpn-core/internal/levenshtein"
	"github.com/eduvpn/eduvpn-core/types/discovery"
)

func keywords(l *discovery.LanguageMappedString) map[string]string {
	if l == nil {
		return nil
	}
	return l.Values()
}

// SearchOrganizations returns the organizations that match the query, best match first
// An empty query returns all organizations in document order
func SearchOrganizations(orgs *discovery.Organizations, query string) []discovery.Organization {
	if orgs == nil {
		return nil
	}
	return levenshtein.Rank(query, orgs.List, func(o discovery.Organization) (map[string]string, map[string]string) {
		return o.DisplayName.Values(), keywords(o.KeywordList)
	})
}

// SearchInstitutes returns the institute access servers that match the query, best match first
// An empty query returns all servers in document order
func SearchInstitutes(servers *discovery.Servers, query string) []discovery.InstituteAccessServer {
	if servers == nil {
		return nil
	}
	return levenshtein.Rank(query, servers.InstituteAccess, func(s discovery.InstituteAccessServer) (map[string]string, map[string]string) {
		return s.DisplayName.Values(), keywords(s.KeywordList)
	})
}
