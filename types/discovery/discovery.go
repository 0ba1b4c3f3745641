// Package discovery defines the data model of the signed discovery documents
// Defined in URL: "https://disco.eduvpn.org/v2/server_list.json" and "https://disco.eduvpn.org/v2/organization_list.json"
package discovery

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/go-errors/errors"
)

const (
	// TypeInstituteAccess is the server type of an institute access server
	TypeInstituteAccess = "institute_access"
	// TypeSecureInternet is the server type of a secure internet server
	TypeSecureInternet = "secure_internet"
)

// MissingFieldError is returned when a required field is absent in a discovery document
type MissingFieldError struct {
	// Field is the JSON key
	Field string
	// Index is the index of the entry in the list, -1 for a top level field
	Index int
}

func (e *MissingFieldError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("discovery document is missing required field: '%s'", e.Field)
	}
	return fmt.Sprintf("discovery entry %d is missing required field: '%s'", e.Index, e.Field)
}

// InstituteAccessServer is a server that gives access to the network of an institute
type InstituteAccessServer struct {
	BaseURL        string                `json:"base_url"`
	DisplayName    LanguageMappedString  `json:"display_name"`
	KeywordList    *LanguageMappedString `json:"keyword_list,omitempty"`
	SupportContact []string              `json:"support_contact"`
}

// SecureInternetServer is a server in a country that organizations can use as a secure internet location
type SecureInternetServer struct {
	BaseURL                   string   `json:"base_url"`
	CountryCode               string   `json:"country_code"`
	AuthenticationURLTemplate string   `json:"authentication_url_template,omitempty"`
	SupportContact            []string `json:"support_contact"`
}

// Servers is the decoded server list
type Servers struct {
	// Version is the "v" field, zero if absent
	Version uint64
	// InstituteAccess is the list of institute access servers in document order
	InstituteAccess []InstituteAccessServer
	// SecureInternet maps the base URL of a secure internet server to the server
	SecureInternet map[string]SecureInternetServer
}

type serverEntry struct {
	Type                      *string               `json:"server_type"`
	BaseURL                   *string               `json:"base_url"`
	DisplayName               *LanguageMappedString `json:"display_name"`
	KeywordList               *LanguageMappedString `json:"keyword_list"`
	CountryCode               *string               `json:"country_code"`
	AuthenticationURLTemplate string                `json:"authentication_url_template"`
	SupportContact            []string              `json:"support_contact"`
}

// UnmarshalJSON decodes a server list
// Entries with an unknown server type are skipped
// Institute access entries without a display name and secure internet entries without a country code are skipped as well
func (s *Servers) UnmarshalJSON(data []byte) error {
	var doc struct {
		Version *uint64        `json:"v"`
		List    *[]serverEntry `json:"server_list"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.WrapPrefix(err, "failed decoding server list", 0)
	}
	if doc.List == nil {
		return &MissingFieldError{Field: "server_list", Index: -1}
	}
	res := Servers{SecureInternet: make(map[string]SecureInternetServer)}
	if doc.Version != nil {
		res.Version = *doc.Version
	}
	for i, e := range *doc.List {
		if e.Type == nil {
			return &MissingFieldError{Field: "server_type", Index: i}
		}
		if e.BaseURL == nil {
			return &MissingFieldError{Field: "base_url", Index: i}
		}
		sc := e.SupportContact
		if sc == nil {
			sc = []string{}
		}
		switch *e.Type {
		case TypeInstituteAccess:
			if e.DisplayName == nil {
				continue
			}
			res.InstituteAccess = append(res.InstituteAccess, InstituteAccessServer{
				BaseURL:        *e.BaseURL,
				DisplayName:    *e.DisplayName,
				KeywordList:    e.KeywordList,
				SupportContact: sc,
			})
		case TypeSecureInternet:
			if e.CountryCode == nil {
				continue
			}
			res.SecureInternet[*e.BaseURL] = SecureInternetServer{
				BaseURL:                   *e.BaseURL,
				CountryCode:               *e.CountryCode,
				AuthenticationURLTemplate: e.AuthenticationURLTemplate,
				SupportContact:            sc,
			}
		default:
			continue
		}
	}
	*s = res
	return nil
}

// SecureInternetBaseURLs returns the base URLs of the secure internet servers, sorted
func (s *Servers) SecureInternetBaseURLs() []string {
	urls := make([]string, 0, len(s.SecureInternet))
	for u := range s.SecureInternet {
		urls = append(urls, u)
	}
	sort.Strings(urls)
	return urls
}

// SecureLocations returns the unique country codes of the secure internet servers, sorted
func (s *Servers) SecureLocations() []string {
	seen := make(map[string]bool)
	var codes []string
	for _, srv := range s.SecureInternet {
		if seen[srv.CountryCode] {
			continue
		}
		seen[srv.CountryCode] = true
		codes = append(codes, srv.CountryCode)
	}
	sort.Strings(codes)
	return codes
}

// SecureInternetByCountry returns the secure internet server for a country code
// If there are multiple, the one with the lowest base URL is returned
func (s *Servers) SecureInternetByCountry(code string) (*SecureInternetServer, error) {
	for _, u := range s.SecureInternetBaseURLs() {
		srv := s.SecureInternet[u]
		if srv.CountryCode == code {
			return &srv, nil
		}
	}
	return nil, &NotFoundError{Kind: "secure internet location", ID: code}
}

// Organization is an organization in the organization list
type Organization struct {
	OrgID              string                `json:"org_id"`
	DisplayName        LanguageMappedString  `json:"display_name"`
	KeywordList        *LanguageMappedString `json:"keyword_list,omitempty"`
	SecureInternetHome string                `json:"secure_internet_home"`
}

type organizationEntry struct {
	OrgID              *string               `json:"org_id"`
	DisplayName        *LanguageMappedString `json:"display_name"`
	KeywordList        *LanguageMappedString `json:"keyword_list"`
	SecureInternetHome *string               `json:"secure_internet_home"`
}

func (e organizationEntry) organization(i int) (Organization, error) {
	switch {
	case e.OrgID == nil:
		return Organization{}, &MissingFieldError{Field: "org_id", Index: i}
	case e.DisplayName == nil:
		return Organization{}, &MissingFieldError{Field: "display_name", Index: i}
	case e.SecureInternetHome == nil:
		return Organization{}, &MissingFieldError{Field: "secure_internet_home", Index: i}
	}
	return Organization{
		OrgID:              *e.OrgID,
		DisplayName:        *e.DisplayName,
		KeywordList:        e.KeywordList,
		SecureInternetHome: *e.SecureInternetHome,
	}, nil
}

// Organizations is the decoded organization list
type Organizations struct {
	// Version is the "v" field
	// It is kept as a string, in the document it can be a number or a string
	Version string
	List    []Organization
}

// UnmarshalJSON decodes an organization list
// All fields are required except the keyword list
func (o *Organizations) UnmarshalJSON(data []byte) error {
	var doc struct {
		Version json.RawMessage      `json:"v"`
		List    *[]organizationEntry `json:"organization_list"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.WrapPrefix(err, "failed decoding organization list", 0)
	}
	if doc.List == nil {
		return &MissingFieldError{Field: "organization_list", Index: -1}
	}
	v, err := versionString(doc.Version)
	if err != nil {
		return err
	}
	res := Organizations{Version: v, List: make([]Organization, 0, len(*doc.List))}
	for i, e := range *doc.List {
		org, err := e.organization(i)
		if err != nil {
			return err
		}
		res.List = append(res.List, org)
	}
	*o = res
	return nil
}

func versionString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", &MissingFieldError{Field: "v", Index: -1}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", errors.WrapPrefix(err, "failed decoding organization list version", 0)
	}
	return n.String(), nil
}

// ByID returns the organization with the org id
func (o *Organizations) ByID(orgID string) (*Organization, error) {
	if o == nil {
		return nil, &NotFoundError{Kind: "organization", ID: orgID}
	}
	for i := range o.List {
		if o.List[i].OrgID == orgID {
			return &o.List[i], nil
		}
	}
	return nil, &NotFoundError{Kind: "organization", ID: orgID}
}

// SecureHome returns the organization with the org id and its secure internet home server
func SecureHome(orgs *Organizations, servers *Servers, orgID string) (*Organization, *SecureInternetServer, error) {
	org, err := orgs.ByID(orgID)
	if err != nil {
		return nil, nil, err
	}
	var srv SecureInternetServer
	ok := false
	if servers != nil {
		srv, ok = servers.SecureInternet[org.SecureInternetHome]
	}
	if !ok {
		return nil, nil, &NotFoundError{Kind: "secure internet home", ID: org.SecureInternetHome}
	}
	return org, &srv, nil
}

// NotFoundError is returned when something could not be found in a discovery document
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s: '%s' not found in discovery", e.Kind, e.ID)
}
