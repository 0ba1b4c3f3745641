package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eduvpn/eduvpn-core/types/discovery"
	"github.com/eduvpn/eduvpn-core/types/server"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func state() PreConnectionState {
	auth := time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)
	return PreConnectionState{
		Profiles: []server.Profile{
			{ID: "internet", DisplayName: discovery.NewString("Internet")},
			{ID: "office", DisplayName: discovery.NewMap(map[string]string{"en": "Office", "nl": "Kantoor"})},
		},
		SelectedProfileID:    "office",
		CertificateValidFrom: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		CertificateExpiresAt: time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
		AuthenticatedAt:      &auth,
	}
}

func TestRoundTrip(t *testing.T) {
	servers := []server.Instance{
		&server.SimpleInstance{BaseURL: "https://vpn.example.org/", LocalStoragePath: server.NewLocalStoragePath()},
		&server.SecureInternetInstance{
			APIBase:          "https://nl.example.org/",
			AuthBase:         "https://home.example.org/",
			OrgID:            "https://idp.example.org/",
			LocalStoragePath: server.NewLocalStoragePath(),
		},
	}
	for _, srv := range servers {
		a, err := New(srv, state())
		require.NoError(t, err)
		require.NotEqual(t, uuid.Nil, a.AttemptID)

		b, err := json.Marshal(a)
		require.NoError(t, err)
		var got ConnectionAttempt
		require.NoError(t, json.Unmarshal(b, &got))
		require.Equal(t, *a, got)
	}

	// no authentication time
	st := state()
	st.AuthenticatedAt = nil
	a, err := New(servers[0], st)
	require.NoError(t, err)
	b, err := json.Marshal(a)
	require.NoError(t, err)
	require.NotContains(t, string(b), "authenticated_at")
	var got ConnectionAttempt
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, *a, got)
}

func TestEncoding(t *testing.T) {
	id := uuid.MustParse("5a3a1c3e-4a5b-4c6d-8e9f-0a1b2c3d4e5f")
	a := &ConnectionAttempt{
		Server:             &server.SimpleInstance{BaseURL: "https://vpn.example.org/", LocalStoragePath: "p"},
		PreConnectionState: state(),
		AttemptID:          id,
	}
	b, err := json.Marshal(a)
	require.NoError(t, err)
	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &raw))
	require.Contains(t, raw, "simple_server")
	require.NotContains(t, raw, "secure_internet_server")
	require.JSONEq(t, `{"base_url": "https://vpn.example.org/", "local_storage_path": "p"}`, string(raw["simple_server"]))
	require.JSONEq(t, `"5a3a1c3e-4a5b-4c6d-8e9f-0a1b2c3d4e5f"`, string(raw["attempt_id"]))
}

func TestNewInvalidProfile(t *testing.T) {
	st := state()
	st.SelectedProfileID = "missing"
	_, err := New(&server.SimpleInstance{BaseURL: "https://vpn.example.org/"}, st)
	require.ErrorIs(t, err, ErrInvalidProfile)

	st.Profiles = nil
	_, err = New(&server.SimpleInstance{BaseURL: "https://vpn.example.org/"}, st)
	require.ErrorIs(t, err, ErrInvalidProfile)
}

func TestUnknownServerInstance(t *testing.T) {
	doc := `{"ovpn_config": {"name": "x"}, "pre_connection_state": {}, "attempt_id": "5a3a1c3e-4a5b-4c6d-8e9f-0a1b2c3d4e5f"}`
	var a ConnectionAttempt
	err := json.Unmarshal([]byte(doc), &a)
	var unknown *UnknownServerInstanceError
	require.True(t, errors.As(err, &unknown), "got error: %v", err)
	require.Equal(t, []string{"attempt_id", "ovpn_config", "pre_connection_state"}, unknown.Keys)

	_, err = New(nil, state())
	require.True(t, errors.As(err, &unknown))
}

func TestDecodeMissing(t *testing.T) {
	for _, doc := range []string{
		`{"simple_server": {"base_url": "a", "local_storage_path": "b"}, "attempt_id": "5a3a1c3e-4a5b-4c6d-8e9f-0a1b2c3d4e5f"}`,
		`{"simple_server": {"base_url": "a", "local_storage_path": "b"}, "pre_connection_state": {"profiles": [{"profile_id": "x", "display_name": "X"}], "selected_profile_id": "x"}}`,
		`{"simple_server": {"base_url": "a", "local_storage_path": "b"}, "pre_connection_state": {"profiles": [], "selected_profile_id": "x"}, "attempt_id": "5a3a1c3e-4a5b-4c6d-8e9f-0a1b2c3d4e5f"}`,
		`{"simple_server": 5}`,
	} {
		var a ConnectionAttempt
		require.Error(t, json.Unmarshal([]byte(doc), &a), "doc: %s", doc)
	}
}

func TestStore(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)

	a, err := s.Load()
	require.NoError(t, err)
	require.Nil(t, a)
	require.NoError(t, s.Remove())

	first, err := New(&server.SimpleInstance{BaseURL: "https://a.example.org/", LocalStoragePath: "a"}, state())
	require.NoError(t, err)
	require.NoError(t, s.Save(first))
	second, err := New(&server.SimpleInstance{BaseURL: "https://b.example.org/", LocalStoragePath: "b"}, state())
	require.NoError(t, err)
	require.NoError(t, s.Save(second))

	got, err := s.Load()
	require.NoError(t, err)
	require.Equal(t, second, got)

	fi, err := os.Stat(filepath.Join(dir, Filename))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	require.NoError(t, s.Remove())
	require.NoError(t, s.Remove())
	got, err = s.Load()
	require.NoError(t, err)
	require.Nil(t, got)
}

type fakeVPN struct {
	enabled  bool
	id       uuid.UUID
	disabled bool
}

func (f *fakeVPN) Enabled(context.Context) (bool, uuid.UUID, error) {
	return f.enabled, f.id, nil
}

func (f *fakeVPN) Disable(context.Context) error {
	f.disabled = true
	f.enabled = false
	return nil
}

func TestRestore(t *testing.T) {
	ctx := context.Background()
	stored, err := New(&server.SimpleInstance{BaseURL: "https://a.example.org/", LocalStoragePath: "a"}, state())
	require.NoError(t, err)

	cases := []struct {
		name     string
		vpn      *fakeVPN
		save     bool
		corrupt  bool
		outcome  Outcome
		disabled bool
		kept     bool
	}{
		{name: "not enabled", vpn: &fakeVPN{}, save: true, outcome: OutcomeNotEnabled, kept: true},
		{name: "matching", vpn: &fakeVPN{enabled: true, id: stored.AttemptID}, save: true, outcome: OutcomeRestored, kept: true},
		{name: "mismatch", vpn: &fakeVPN{enabled: true, id: uuid.New()}, save: true, outcome: OutcomeStaleDisabled, disabled: true},
		{name: "no tag", vpn: &fakeVPN{enabled: true}, save: true, outcome: OutcomeStaleDisabled, disabled: true},
		{name: "no attempt", vpn: &fakeVPN{enabled: true, id: stored.AttemptID}, outcome: OutcomeStaleDisabled, disabled: true},
		{name: "corrupt attempt", vpn: &fakeVPN{enabled: true, id: stored.AttemptID}, corrupt: true, outcome: OutcomeStaleDisabled, disabled: true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dir := t.TempDir()
			s := NewStore(dir)
			if c.save {
				require.NoError(t, s.Save(stored))
			}
			if c.corrupt {
				require.NoError(t, os.WriteFile(filepath.Join(dir, Filename), []byte(`{"ovpn_config": {}}`), 0o600))
			}
			got, outcome, err := Restore(ctx, s, c.vpn)
			require.NoError(t, err)
			require.Equal(t, c.outcome, outcome)
			require.Equal(t, c.disabled, c.vpn.disabled)
			if c.outcome == OutcomeRestored {
				require.Equal(t, stored, got)
			} else {
				require.Nil(t, got)
			}
			_, err = os.Stat(filepath.Join(dir, Filename))
			require.Equal(t, c.kept, err == nil)
		})
	}
}
