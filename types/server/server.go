// Package server defines the server instances that are persisted and the profiles of a server
package server

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/eduvpn/eduvpn-core/types/discovery"
	"github.com/google/uuid"
	"golang.org/x/net/idna"
)

// Type is the kind of server
type Type int8

const (
	// TypeUnknown is a server of which we do not know the type
	TypeUnknown Type = iota
	// TypeInstituteAccess is an institute access server from discovery
	TypeInstituteAccess
	// TypeSecureInternet is a secure internet server from discovery
	TypeSecureInternet
	// TypeCustom is a server added by URL
	TypeCustom
)

var typeNames = map[Type]string{
	TypeUnknown:         "unknown",
	TypeInstituteAccess: "institute_access",
	TypeSecureInternet:  "secure_internet",
	TypeCustom:          "custom_server",
}

func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return fmt.Sprintf("Type(%d)", int8(t))
}

// MarshalJSON encodes the type as a string
func (t Type) MarshalJSON() ([]byte, error) {
	if _, ok := typeNames[t]; !ok {
		return nil, fmt.Errorf("invalid server type: %d", int8(t))
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes the type from a string or from a number
// Unknown strings and numbers out of range are an error
func (t *Type) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		for k, v := range typeNames {
			if v == s {
				*t = k
				return nil
			}
		}
		return fmt.Errorf("invalid server type: %s", s)
	}
	var n int8
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid server type: %s", data)
	}
	if _, ok := typeNames[Type(n)]; !ok {
		return fmt.Errorf("invalid server type: %d", n)
	}
	*t = Type(n)
	return nil
}

// Profile is a VPN profile of a server
type Profile struct {
	ID          string                         `json:"profile_id"`
	DisplayName discovery.LanguageMappedString `json:"display_name"`
}

// Instance is a server that we can connect to
type Instance interface {
	// APIBaseURL is the URL of the VPN API
	APIBaseURL() string
	// AuthBaseURL is the URL where the authorization happens
	AuthBaseURL() string
	// StoragePath is the name of the local storage directory of the server
	StoragePath() string
}

// SimpleInstance is an institute access server or a server added by URL
type SimpleInstance struct {
	BaseURL          string `json:"base_url"`
	LocalStoragePath string `json:"local_storage_path"`
}

func (s *SimpleInstance) APIBaseURL() string  { return s.BaseURL }
func (s *SimpleInstance) AuthBaseURL() string { return s.BaseURL }
func (s *SimpleInstance) StoragePath() string { return s.LocalStoragePath }

// SecureInternetInstance is a secure internet server, authorization happens at the home server of the organization
type SecureInternetInstance struct {
	APIBase          string `json:"api_base_url"`
	AuthBase         string `json:"auth_base_url"`
	OrgID            string `json:"org_id"`
	LocalStoragePath string `json:"local_storage_path"`
}

func (s *SecureInternetInstance) APIBaseURL() string  { return s.APIBase }
func (s *SecureInternetInstance) AuthBaseURL() string { return s.AuthBase }
func (s *SecureInternetInstance) StoragePath() string { return s.LocalStoragePath }

// NewLocalStoragePath returns a new unique name for a local storage directory
func NewLocalStoragePath() string {
	return uuid.NewString()
}

// DisplayHost returns the host of a base URL for display
// Punycode hosts are converted to unicode
func DisplayHost(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(baseURL, "/")
	}
	h, err := idna.Display.ToUnicode(u.Hostname())
	if err != nil {
		return u.Hostname()
	}
	return h
}
