// Package config implements the configuration that is passed to every component
// It is read from a JSON file, missing fields get their default value
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eduvpn/eduvpn-core/internal/log"
	"github.com/eduvpn/eduvpn-core/internal/reconcile"
	"github.com/eduvpn/eduvpn-core/internal/util"
	"github.com/eduvpn/eduvpn-core/internal/verify"
	"github.com/go-errors/errors"
)

// DefaultDiscoveryURL is the eduVPN discovery server
const DefaultDiscoveryURL = "https://disco.eduvpn.org/v2/"

// DefaultPublicKeys are the keys that sign the eduVPN discovery files
var DefaultPublicKeys = []string{
	"RWRtBSX1alxyGX+Xn3LuZnWUT0w//B6EmTJvgaAxBMYzlQeI+jdrO6KF",
	"RWQKqtqvd0R7rUDp0rWzbtYPA3towPWcLDCl7eY9pBMMI/ohCmrS0WiM",
}

// Paths are the paths of the discovery documents relative to the discovery base URL
// The per organization paths have an @ORG_ID@ placeholder
type Paths struct {
	InstituteAccess                 string `json:"path_institute_access"`
	InstituteAccessSignature        string `json:"path_institute_access_signature"`
	SecureInternet                  string `json:"path_secure_internet"`
	SecureInternetSignature         string `json:"path_secure_internet_signature"`
	Organizations                   string `json:"path_organizations"`
	OrganizationsSignature          string `json:"path_organizations_signature"`
	OrganizationServerList          string `json:"path_organization_server_list"`
	OrganizationServerListSignature string `json:"path_organization_server_list_signature"`
}

// Discovery is the discovery server configuration
type Discovery struct {
	// BaseURL is the URL the paths are relative to
	BaseURL string `json:"server"`
	Paths
}

// Document returns the document and signature URL for a discovery group
// orgID is only used for the per organization server lists
func (d *Discovery) Document(group string, orgID string) (doc string, sig string, err error) {
	var dp, sp string
	switch group {
	case GroupInstituteAccess:
		dp, sp = d.InstituteAccess, d.InstituteAccessSignature
	case GroupSecureInternet:
		dp, sp = d.SecureInternet, d.SecureInternetSignature
	case GroupOrganizations:
		dp, sp = d.Organizations, d.OrganizationsSignature
	case GroupOrganizationServers:
		if orgID == "" {
			return "", "", errors.New("no organization ID given for the organization server list")
		}
		dp, sp = d.OrganizationServerList, d.OrganizationServerListSignature
	default:
		return "", "", errors.Errorf("unknown discovery group: '%s'", group)
	}
	if doc, err = util.JoinURLPath(d.BaseURL, dp); err != nil {
		return "", "", err
	}
	if sig, err = util.JoinURLPath(d.BaseURL, sp); err != nil {
		return "", "", err
	}
	// replaced after joining as the escaped ID must not be escaped again
	return util.ReplaceOrgID(doc, orgID), util.ReplaceOrgID(sig, orgID), nil
}

// The kinds of discovery documents
// Except for the organization server lists, these are also the reconcile groups
const (
	GroupInstituteAccess     = reconcile.GroupInstituteAccess
	GroupSecureInternet      = reconcile.GroupSecureInternet
	GroupOrganizations       = reconcile.GroupOrganizations
	GroupOrganizationServers = "organization_servers"
)

// Duration is a time.Duration that is written as a string such as "1h30m"
type Duration time.Duration

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON reads a duration string or a number of seconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return errors.WrapPrefix(err, fmt.Sprintf("invalid duration: '%s'", s), 0)
		}
		*d = Duration(v)
		return nil
	}
	var secs int64
	if err := json.Unmarshal(data, &secs); err != nil {
		return errors.Errorf("invalid duration: %s", string(data))
	}
	*d = Duration(time.Duration(secs) * time.Second)
	return nil
}

// Config is the configuration of the core
type Config struct {
	// Directory is the state directory, the log, caches, server database and connection attempt live here
	Directory string `json:"directory"`
	// Discovery is the discovery server
	Discovery Discovery `json:"discovery"`
	// SignaturePublicKeys are the base64 minisign public keys that are trusted for discovery documents
	SignaturePublicKeys []string `json:"signature_public_keys"`
	// LegacySignatureAllowed allows signatures over the raw message ("Ed")
	LegacySignatureAllowed bool `json:"legacy_signature_allowed"`
	// TrustedCommentCheck enables the trusted comment, file name and sign time checks
	TrustedCommentCheck bool `json:"trusted_comment_check"`
	// RefreshInterval is how old a cached document may be before it is fetched again
	RefreshInterval Duration `json:"refresh_interval"`
	// LogLevel is e.g. "debug" or "info"
	LogLevel string `json:"log_level"`
}

// Default returns the default configuration with state directory 'dir'
func Default(dir string) *Config {
	return &Config{
		Directory: dir,
		Discovery: Discovery{
			BaseURL: DefaultDiscoveryURL,
			Paths: Paths{
				InstituteAccess:                 "server_list.json",
				InstituteAccessSignature:        "server_list.json.minisig",
				SecureInternet:                  "server_list.json",
				SecureInternetSignature:         "server_list.json.minisig",
				Organizations:                   "organization_list.json",
				OrganizationsSignature:          "organization_list.json.minisig",
				OrganizationServerList:          "organization/@ORG_ID@/server_list.json",
				OrganizationServerListSignature: "organization/@ORG_ID@/server_list.json.minisig",
			},
		},
		SignaturePublicKeys:    append([]string(nil), DefaultPublicKeys...),
		LegacySignatureAllowed: true,
		TrustedCommentCheck:    false,
		RefreshInterval:        Duration(time.Hour),
		LogLevel:               "info",
	}
}

// Load reads the configuration from a JSON file
// Fields that are not in the file keep their default value
// A relative directory is relative to the directory of the file
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapPrefix(err, "failed reading configuration", 0)
	}
	cfg := Default("")
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, errors.WrapPrefix(err, fmt.Sprintf("failed decoding configuration: '%s'", path), 0)
	}
	if cfg.Directory != "" && !filepath.IsAbs(cfg.Directory) {
		cfg.Directory = filepath.Join(filepath.Dir(path), cfg.Directory)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns an error if the configuration cannot be used
func (c *Config) Validate() error {
	if c.Directory == "" {
		return errors.New("no state directory configured")
	}
	u, err := url.Parse(c.Discovery.BaseURL)
	if err != nil {
		return errors.WrapPrefix(err, "invalid discovery base URL", 0)
	}
	if u.Scheme != "https" || u.Host == "" {
		return errors.Errorf("discovery base URL: '%s' is not an absolute https URL", c.Discovery.BaseURL)
	}
	for _, p := range []string{c.Discovery.OrganizationServerList, c.Discovery.OrganizationServerListSignature} {
		if !strings.Contains(p, "@ORG_ID@") {
			return errors.Errorf("organization server list path: '%s' has no @ORG_ID@ placeholder", p)
		}
	}
	if _, err := c.PublicKeys(); err != nil {
		return err
	}
	if time.Duration(c.RefreshInterval) < 0 {
		return errors.New("refresh interval cannot be negative")
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// PublicKeys returns the decoded 42 byte public keys
func (c *Config) PublicKeys() ([][]byte, error) {
	if len(c.SignaturePublicKeys) == 0 {
		return nil, errors.New("no signature public keys configured")
	}
	keys := make([][]byte, 0, len(c.SignaturePublicKeys))
	for _, k := range c.SignaturePublicKeys {
		b, err := verify.ParsePublicKey(k)
		if err != nil {
			return nil, errors.WrapPrefix(err, fmt.Sprintf("invalid signature public key: '%s'", k), 0)
		}
		keys = append(keys, b)
	}
	return keys, nil
}
