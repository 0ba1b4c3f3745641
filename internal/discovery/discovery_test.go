package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eduvpn/eduvpn-core/internal/config"
	"github.com/eduvpn/eduvpn-core/internal/fsm"
	"github.com/eduvpn/eduvpn-core/internal/reconcile"
	"github.com/eduvpn/eduvpn-core/internal/test"
	"github.com/eduvpn/eduvpn-core/internal/verify"
	"github.com/eduvpn/eduvpn-core/types/discovery"
	"github.com/stretchr/testify/require"
)

type env struct {
	files  *test.Files
	srv    *test.Server
	signer *test.Signer
	cfg    *config.Config
	store  *reconcile.MemoryStore
	disco  *Discovery
}

func newEnv(t *testing.T, handler func(http.Handler) http.Handler) *env {
	t.Helper()
	e := &env{
		files:  test.NewFiles(nil),
		signer: test.NewSigner(t),
	}
	var h http.Handler = e.files
	if handler != nil {
		h = handler(h)
	}
	e.srv = test.NewServer(h)
	t.Cleanup(e.srv.Close)

	e.cfg = config.Default(t.TempDir())
	e.cfg.Discovery.BaseURL = e.srv.URL + "/v2/"
	e.cfg.SignaturePublicKeys = []string{e.signer.PublicKeyString()}
	e.restart(t)
	return e
}

// restart creates a new discovery with an empty store using the same state directory
func (e *env) restart(t *testing.T) {
	t.Helper()
	client, err := e.srv.Client()
	require.NoError(t, err)
	e.store = reconcile.NewMemoryStore()
	e.disco, err = New(e.cfg, client, reconcile.New(e.store))
	require.NoError(t, err)
}

func (e *env) publish(name string, body []byte, signTime uint64, prehash bool) {
	e.files.Set("/v2/"+name, body)
	e.files.Set("/v2/"+name+".minisig", []byte(e.signer.SignatureFile(body, name, signTime, prehash)))
}

func (e *env) ids(t *testing.T, group string) []string {
	t.Helper()
	records, err := e.store.Records(group)
	require.NoError(t, err)
	ids := []string{}
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func institutes(urls ...string) []byte {
	var entries []string
	for _, u := range urls {
		entries = append(entries, fmt.Sprintf(
			`{"server_type": "institute_access", "base_url": %q, "display_name": {"en": "Institute %s"}, "support_contact": ["mailto:help@example.org"]}`,
			u, u))
	}
	return []byte(`{"v": 1, "server_list": [` + strings.Join(entries, ",") + `]}`)
}

func TestRefresh(t *testing.T) {
	e := newEnv(t, nil)
	body := []byte(`{"v": 1, "server_list": [{"server_type": "institute_access", "base_url": "https://vpn.example.org/", "display_name": "Example"}]}`)
	e.publish("server_list.json", body, 1, true)

	var states []string
	e.disco.OnTransition = func(doc Document, _ fsm.StateID, to fsm.StateID) {
		require.Equal(t, InstituteAccess(), doc)
		states = append(states, StateName(to))
	}
	diff, err := e.disco.Refresh(context.Background(), InstituteAccess())
	require.NoError(t, err)
	require.Len(t, diff.Inserted, 1)
	require.Empty(t, diff.Updated)
	require.Empty(t, diff.Deleted)
	require.Equal(t, "https://vpn.example.org/", diff.Inserted[0].ID)
	require.NotEmpty(t, diff.Inserted[0].LocalStoragePath)
	require.Equal(t, []string{
		"FetchingSignature",
		"VerifyingSignature",
		"FetchingDocument",
		"VerifyingDocument",
		"Decoding",
		"Reconciling",
		"Done",
	}, states)

	servers := e.disco.InstituteAccess()
	require.NotNil(t, servers)
	require.Len(t, servers.InstituteAccess, 1)
	require.Equal(t, "https://vpn.example.org/", servers.InstituteAccess[0].BaseURL)
	require.Equal(t, []string{"https://vpn.example.org/"}, e.ids(t, reconcile.GroupInstituteAccess))

	_, err = os.Stat(filepath.Join(e.cfg.Directory, "discovery", "institute_access.json"))
	require.NoError(t, err)
	require.False(t, e.disco.ShouldRefresh(InstituteAccess(), time.Now()))
	require.True(t, e.disco.ShouldRefresh(InstituteAccess(), time.Now().Add(time.Hour)))
	require.True(t, e.disco.ShouldRefresh(Organizations(), time.Now()))
}

func TestRefreshReconcile(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	e.publish("server_list.json", institutes("A", "B", "C"), 1, true)
	_, err := e.disco.Refresh(ctx, InstituteAccess())
	require.NoError(t, err)
	before, err := e.store.Records(reconcile.GroupInstituteAccess)
	require.NoError(t, err)

	e.publish("server_list.json", institutes("B", "C", "D"), 2, true)
	diff, err := e.disco.Refresh(ctx, InstituteAccess())
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C", "D"}, diff.IDs())
	require.Len(t, diff.Deleted, 1)
	require.Equal(t, "A", diff.Deleted[0].ID)
	require.Equal(t, []string{"B", "C", "D"}, e.ids(t, reconcile.GroupInstituteAccess))

	after, err := e.store.Records(reconcile.GroupInstituteAccess)
	require.NoError(t, err)
	// B keeps its identity
	require.Equal(t, before[1].ID, after[0].ID)
	require.Equal(t, before[1].LocalStoragePath, after[0].LocalStoragePath)

	// the same document again does not insert or delete
	diff, err = e.disco.Refresh(ctx, InstituteAccess())
	require.NoError(t, err)
	require.True(t, diff.Empty())
}

func TestRefreshFailures(t *testing.T) {
	other := test.NewSigner(t)
	body := institutes("A")
	cases := []struct {
		name         string
		publish      func(e *env)
		legacy       bool
		wantVerified bool
		wantErr      error
	}{
		{
			name: "unknown key",
			publish: func(e *env) {
				e.files.Set("/v2/server_list.json", body)
				e.files.Set("/v2/server_list.json.minisig", []byte(other.SignatureFile(body, "server_list.json", 1, true)))
			},
			legacy:  true,
			wantErr: ErrNotVerified,
		},
		{
			name: "tampered",
			publish: func(e *env) {
				e.publish("server_list.json", body, 1, true)
				e.files.Set("/v2/server_list.json", institutes("B"))
			},
			legacy:  true,
			wantErr: verify.ErrInvalid,
		},
		{
			name: "legacy not allowed",
			publish: func(e *env) {
				e.publish("server_list.json", body, 1, false)
			},
			wantErr: verify.ErrLegacySignatureNotAllowed,
		},
		{
			name: "garbage signature",
			publish: func(e *env) {
				e.files.Set("/v2/server_list.json", body)
				e.files.Set("/v2/server_list.json.minisig", []byte("only one line"))
			},
			legacy:  true,
			wantErr: verify.ErrFetchFailed,
		},
		{
			name: "missing document",
			publish: func(e *env) {
				e.publish("server_list.json", body, 1, true)
				e.files.Set("/v2/server_list.json", nil)
			},
			legacy:       true,
			wantVerified: true,
		},
		{
			name: "undecodable",
			publish: func(e *env) {
				e.publish("server_list.json", []byte(`{"v": 1}`), 1, true)
			},
			legacy:       true,
			wantVerified: true,
			wantErr:      &discovery.MissingFieldError{Field: "server_list", Index: -1},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := newEnv(t, nil)
			e.cfg.LegacySignatureAllowed = c.legacy
			// a previous document that must survive the failure
			e.publish("server_list.json", institutes("Z"), 1, true)
			_, err := e.disco.Refresh(context.Background(), InstituteAccess())
			require.NoError(t, err)

			c.publish(e)
			var last string
			e.disco.OnTransition = func(_ Document, _ fsm.StateID, to fsm.StateID) {
				last = StateName(to)
			}
			_, err = e.disco.Refresh(context.Background(), InstituteAccess())
			require.Error(t, err)
			require.Equal(t, "Failed", last)
			require.Equal(t, !c.wantVerified, errors.Is(err, ErrNotVerified), "error: %v", err)
			var missing *discovery.MissingFieldError
			switch want := c.wantErr.(type) {
			case nil:
			case *discovery.MissingFieldError:
				require.True(t, errors.As(err, &missing), "error: %v", err)
				require.Equal(t, want, missing)
			default:
				require.ErrorIs(t, err, want)
			}

			require.Equal(t, []string{"Z"}, e.ids(t, reconcile.GroupInstituteAccess))
			require.Len(t, e.disco.InstituteAccess().InstituteAccess, 1)
		})
	}
}

func TestTrustedCommentCheck(t *testing.T) {
	e := newEnv(t, nil)
	e.cfg.TrustedCommentCheck = true
	ctx := context.Background()

	e.publish("server_list.json", institutes("A"), 100, true)
	_, err := e.disco.Refresh(ctx, InstituteAccess())
	require.NoError(t, err)

	// an older document is a rollback
	e.publish("server_list.json", institutes("B"), 50, true)
	_, err = e.disco.Refresh(ctx, InstituteAccess())
	var earlier *verify.SigTimeEarlierError
	require.True(t, errors.As(err, &earlier), "error: %v", err)
	require.Equal(t, uint64(100), earlier.MinSigTime)

	// the minimum sign time survives a restart through the cache
	e.restart(t)
	_, err = e.disco.Refresh(ctx, InstituteAccess())
	require.True(t, errors.As(err, &earlier), "error: %v", err)

	// signed for another file
	body := institutes("C")
	e.files.Set("/v2/server_list.json", body)
	e.files.Set("/v2/server_list.json.minisig", []byte(e.signer.SignatureFile(body, "organization_list.json", 200, true)))
	_, err = e.disco.Refresh(ctx, InstituteAccess())
	var wrong *verify.WrongSigFilenameError
	require.True(t, errors.As(err, &wrong), "error: %v", err)

	e.publish("server_list.json", institutes("D"), 200, true)
	_, err = e.disco.Refresh(ctx, InstituteAccess())
	require.NoError(t, err)
	require.Equal(t, []string{"D"}, e.ids(t, reconcile.GroupInstituteAccess))
}

func TestLoadCached(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	ok, _, err := e.disco.LoadCached(ctx, InstituteAccess())
	require.NoError(t, err)
	require.False(t, ok)

	e.publish("server_list.json", institutes("A", "B"), 1, true)
	_, err = e.disco.Refresh(ctx, InstituteAccess())
	require.NoError(t, err)

	e.restart(t)
	require.Nil(t, e.disco.InstituteAccess())
	require.True(t, e.disco.ShouldRefresh(InstituteAccess(), time.Now()))
	ok, diff, err := e.disco.LoadCached(ctx, InstituteAccess())
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, diff.Inserted, 2)
	require.Len(t, e.disco.InstituteAccess().InstituteAccess, 2)
	require.False(t, e.disco.ShouldRefresh(InstituteAccess(), time.Now()))

	// a cache that does not verify is ignored but kept
	p := filepath.Join(e.cfg.Directory, "discovery", "institute_access.json")
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	e.signer = test.NewSigner(t)
	e.cfg.SignaturePublicKeys = []string{e.signer.PublicKeyString()}
	e.restart(t)
	ok, _, err = e.disco.LoadCached(ctx, InstituteAccess())
	require.ErrorIs(t, err, ErrNotVerified)
	require.False(t, ok)
	require.Nil(t, e.disco.InstituteAccess())
	got, err := os.ReadFile(p)
	require.NoError(t, err)
	require.Equal(t, b, got)
}

type blocking struct {
	next    http.Handler
	path    string
	once    sync.Once
	entered chan struct{}
}

func (b *blocking) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	first := false
	if r.URL.Path == b.path {
		b.once.Do(func() { first = true })
	}
	if first {
		close(b.entered)
		<-r.Context().Done()
		return
	}
	b.next.ServeHTTP(w, r)
}

func TestRefreshSuperseded(t *testing.T) {
	b := &blocking{path: "/v2/server_list.json.minisig", entered: make(chan struct{})}
	e := newEnv(t, func(next http.Handler) http.Handler {
		b.next = next
		return b
	})
	e.publish("server_list.json", institutes("A"), 1, true)
	ctx := context.Background()

	errc := make(chan error, 1)
	go func() {
		_, err := e.disco.Refresh(ctx, InstituteAccess())
		errc <- err
	}()
	<-b.entered

	// a different group is not affected
	e.publish("organization_list.json", []byte(`{"v": "1", "organization_list": []}`), 1, true)
	_, err := e.disco.Refresh(ctx, Organizations())
	require.NoError(t, err)

	diff, err := e.disco.Refresh(ctx, InstituteAccess())
	require.NoError(t, err)
	require.Len(t, diff.Inserted, 1)

	require.ErrorIs(t, <-errc, ErrSuperseded)
	require.Equal(t, []string{"A"}, e.ids(t, reconcile.GroupInstituteAccess))
}

func TestRefreshAll(t *testing.T) {
	e := newEnv(t, nil)
	servers := []byte(`{"v": 1, "server_list": [
		{"server_type": "institute_access", "base_url": "https://ia.example.org/", "display_name": "IA"},
		{"server_type": "secure_internet", "base_url": "https://nl.example.org/", "country_code": "NL"},
		{"server_type": "secure_internet", "base_url": "https://de.example.org/", "country_code": "DE"}
	]}`)
	orgs := []byte(`{"v": "1", "organization_list": [
		{"org_id": "idp.example.org", "display_name": {"en": "Example University", "nl": "Voorbeeld Universiteit"}, "keyword_list": "example uni", "secure_internet_home": "https://nl.example.org/"}
	]}`)
	e.publish("server_list.json", servers, 1, true)
	e.publish("organization_list.json", orgs, 1, true)
	e.publish("organization/idp.example.org/server_list.json", servers, 1, true)

	results, err := e.disco.RefreshAll(context.Background(), []Document{
		InstituteAccess(),
		SecureInternet(),
		Organizations(),
		OrganizationServers("idp.example.org", "https://nl.example.org/"),
		// not published
		OrganizationServers("missing.example.org", ""),
	})
	require.Error(t, err)
	require.Len(t, results, 5)
	for _, r := range results[:4] {
		require.NoError(t, r.Err, "document: %s", r.Document)
	}
	require.Error(t, results[4].Err)
	require.Equal(t, OrganizationServers("missing.example.org", ""), results[4].Document)

	require.Equal(t, []string{"https://ia.example.org/"}, e.ids(t, reconcile.GroupInstituteAccess))
	require.Equal(t, []string{"https://de.example.org/", "https://nl.example.org/"}, e.ids(t, reconcile.GroupSecureInternet))
	require.Equal(t, []string{"idp.example.org"}, e.ids(t, reconcile.GroupOrganizations))

	records, err := e.store.Records(reconcile.OrganizationGroup("idp.example.org"))
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		if r.ID == "https://nl.example.org/" {
			require.True(t, r.IsParent)
			require.Empty(t, r.Parent)
		} else {
			require.False(t, r.IsParent)
			require.Equal(t, "https://nl.example.org/", r.Parent)
		}
	}
	require.NotNil(t, e.disco.OrganizationServers("idp.example.org"))
	require.Nil(t, e.disco.OrganizationServers("missing.example.org"))
	require.Equal(t, []string{"DE", "NL"}, e.disco.SecureInternet().SecureLocations())

	found := SearchOrganizations(e.disco.Organizations(), "voorbeeld")
	require.Len(t, found, 1)
	require.Len(t, SearchOrganizations(e.disco.Organizations(), "uni"), 1)
	require.Empty(t, SearchOrganizations(e.disco.Organizations(), "nothing"))
	require.Len(t, SearchInstitutes(e.disco.InstituteAccess(), ""), 1)
	require.Nil(t, SearchInstitutes(nil, "ia"))
}

func TestManager(t *testing.T) {
	e := newEnv(t, nil)
	e.publish("server_list.json", institutes("A"), 1, true)
	m := NewManager(e.disco)

	done := make(chan Result, 1)
	loaded := m.Startup(context.Background(), []Document{InstituteAccess()}, func(r Result) {
		done <- r
	})
	require.Empty(t, loaded)
	r := <-done
	require.NoError(t, r.Err)
	require.Len(t, r.Diff.Inserted, 1)
	m.Cancel()
	require.Equal(t, 1, e.files.Hits("/v2/server_list.json"))

	// the cache is fresh so nothing is fetched
	e.restart(t)
	m = NewManager(e.disco)
	loaded = m.Startup(context.Background(), []Document{InstituteAccess()}, func(Result) {
		t.Error("unexpected refresh")
	})
	m.Cancel()
	require.Len(t, loaded, 1)
	require.Len(t, loaded[0].Diff.Inserted, 1)
	require.Equal(t, 1, e.files.Hits("/v2/server_list.json"))
}

func TestGraph(t *testing.T) {
	g := Graph()
	require.Contains(t, g, "FetchingSignature(FetchingSignature) -->|Signature fetched| VerifyingSignature\n")
	require.Contains(t, g, "Reconciling(Reconciling) -->|Committed| Done\n")
	require.Contains(t, g, "style Idle fill:cyan")
}
