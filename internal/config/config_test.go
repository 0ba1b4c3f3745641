package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eduvpn/eduvpn-core/internal/test"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestDefault(t *testing.T) {
	cfg := Default("/tmp/state")
	require.NoError(t, cfg.Validate())
	require.True(t, cfg.LegacySignatureAllowed)
	require.False(t, cfg.TrustedCommentCheck)
	require.Equal(t, Duration(time.Hour), cfg.RefreshInterval)

	keys, err := cfg.PublicKeys()
	require.NoError(t, err)
	require.Len(t, keys, 2)
	for _, k := range keys {
		require.Len(t, k, 42)
	}
}

func TestLoad(t *testing.T) {
	signer := test.NewSigner(t)
	p := writeConfig(t, `{
		"directory": "state",
		"discovery": {"server": "https://disco.example.org/v3/", "path_organizations": "orgs.json"},
		"signature_public_keys": ["`+signer.PublicKeyString()+`"],
		"legacy_signature_allowed": false,
		"refresh_interval": "30m"
	}`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(filepath.Dir(p), "state"), cfg.Directory)
	require.Equal(t, "https://disco.example.org/v3/", cfg.Discovery.BaseURL)
	require.Equal(t, "orgs.json", cfg.Discovery.Organizations)
	// not in the file so the default is kept
	require.Equal(t, "server_list.json", cfg.Discovery.InstituteAccess)
	require.Equal(t, []string{signer.PublicKeyString()}, cfg.SignaturePublicKeys)
	require.False(t, cfg.LegacySignatureAllowed)
	require.Equal(t, Duration(30*time.Minute), cfg.RefreshInterval)

	// seconds are accepted as well
	p = writeConfig(t, `{"directory": "/abs", "refresh_interval": 60}`)
	cfg, err = Load(p)
	require.NoError(t, err)
	require.Equal(t, "/abs", cfg.Directory)
	require.Equal(t, Duration(time.Minute), cfg.RefreshInterval)
}

func TestLoadInvalid(t *testing.T) {
	cases := []string{
		`{`,
		`{"directory": ""}`,
		`{"directory": "s", "discovery": {"server": "http://disco.example.org/"}}`,
		`{"directory": "s", "discovery": {"path_organization_server_list": "servers.json"}}`,
		`{"directory": "s", "signature_public_keys": []}`,
		`{"directory": "s", "signature_public_keys": ["notakey"]}`,
		`{"directory": "s", "refresh_interval": "soon"}`,
		`{"directory": "s", "log_level": "loud"}`,
	}
	for _, c := range cases {
		_, err := Load(writeConfig(t, c))
		require.Error(t, err, "config: %s", c)
	}
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestDocument(t *testing.T) {
	d := Default("s").Discovery
	cases := []struct {
		group   string
		orgID   string
		doc     string
		sig     string
		wantErr bool
	}{
		{
			group: GroupInstituteAccess,
			doc:   "https://disco.eduvpn.org/v2/server_list.json",
			sig:   "https://disco.eduvpn.org/v2/server_list.json.minisig",
		},
		{
			group: GroupOrganizations,
			doc:   "https://disco.eduvpn.org/v2/organization_list.json",
			sig:   "https://disco.eduvpn.org/v2/organization_list.json.minisig",
		},
		{
			group: GroupOrganizationServers,
			orgID: "https://idp.example.org/",
			doc:   "https://disco.eduvpn.org/v2/organization/https:%2F%2Fidp.example.org%2F/server_list.json",
			sig:   "https://disco.eduvpn.org/v2/organization/https:%2F%2Fidp.example.org%2F/server_list.json.minisig",
		},
		{group: GroupOrganizationServers, wantErr: true},
		{group: "unknown", wantErr: true},
	}
	for _, c := range cases {
		doc, sig, err := d.Document(c.group, c.orgID)
		if c.wantErr {
			require.Error(t, err)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, c.doc, doc)
		require.Equal(t, c.sig, sig)
	}
}
