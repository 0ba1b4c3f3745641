// Package discovery refreshes the signed discovery documents
//
// A refresh fetches the signature, fetches the document, verifies it with the trusted keys,
// decodes it and reconciles it with the persisted server records.
// The last verified copy of every document is cached on disk.
package discovery

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/eduvpn/eduvpn-core/internal/config"
	"github.com/eduvpn/eduvpn-core/internal/fsm"
	"github.com/eduvpn/eduvpn-core/internal/http"
	"github.com/eduvpn/eduvpn-core/internal/log"
	"github.com/eduvpn/eduvpn-core/internal/reconcile"
	"github.com/eduvpn/eduvpn-core/internal/util"
	"github.com/eduvpn/eduvpn-core/internal/verify"
	"github.com/eduvpn/eduvpn-core/types/discovery"
	"github.com/go-errors/errors"
)

var (
	// ErrNotVerified is returned when no trusted key verifies a document
	ErrNotVerified = errors.New("discovery document could not be verified")
	// ErrSuperseded is returned when a newer refresh of the same document was started
	ErrSuperseded = errors.New("discovery refresh was superseded by a newer one")
)

// TransitionFunc is called on every state change of a refresh
type TransitionFunc func(doc Document, from fsm.StateID, to fsm.StateID)

// Discovery refreshes discovery documents and keeps the last decoded ones
type Discovery struct {
	cfg        *config.Config
	keys       [][]byte
	client     *http.Client
	reconciler *reconcile.Reconciler
	cache      *Cache

	// OnTransition is called on every state change, it may be nil
	OnTransition TransitionFunc

	mu       sync.Mutex
	inflight map[string]*flight
	groups   map[string]*sync.Mutex

	docsMu  sync.RWMutex
	docs    map[string]decoded
	fetched map[string]time.Time
	signed  map[string]uint64
}

type flight struct {
	cancel context.CancelCauseFunc
}

// New creates a discovery that reconciles into 'reconciler'
// The cache is stored in the discovery directory of the state directory
func New(cfg *config.Config, client *http.Client, reconciler *reconcile.Reconciler) (*Discovery, error) {
	keys, err := cfg.PublicKeys()
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.NewClient()
	}
	return &Discovery{
		cfg:        cfg,
		keys:       keys,
		client:     client,
		reconciler: reconciler,
		cache:      NewCache(filepath.Join(cfg.Directory, "discovery")),
		inflight:   make(map[string]*flight),
		groups:     make(map[string]*sync.Mutex),
		docs:       make(map[string]decoded),
		fetched:    make(map[string]time.Time),
		signed:     make(map[string]uint64),
	}, nil
}

// InstituteAccess returns the last institute access server list, nil if there is none
func (d *Discovery) InstituteAccess() *discovery.Servers {
	return d.servers(config.GroupInstituteAccess)
}

// SecureInternet returns the last secure internet server list, nil if there is none
func (d *Discovery) SecureInternet() *discovery.Servers {
	return d.servers(config.GroupSecureInternet)
}

// OrganizationServers returns the last server list of an organization, nil if there is none
func (d *Discovery) OrganizationServers(orgID string) *discovery.Servers {
	return d.servers(reconcile.OrganizationGroup(orgID))
}

// Organizations returns the last organization list, nil if there is none
func (d *Discovery) Organizations() *discovery.Organizations {
	d.docsMu.RLock()
	defer d.docsMu.RUnlock()
	return d.docs[config.GroupOrganizations].orgs
}

func (d *Discovery) servers(group string) *discovery.Servers {
	d.docsMu.RLock()
	defer d.docsMu.RUnlock()
	return d.docs[group].servers
}

func (d *Discovery) set(doc Document, dec decoded, c *cached) {
	d.docsMu.Lock()
	defer d.docsMu.Unlock()
	g := doc.Group()
	d.docs[g] = dec
	d.fetched[g] = c.Fetched
	if c.SignTime > 0 {
		d.signed[g] = c.SignTime
	}
}

// ShouldRefresh returns whether the document was never fetched or the last fetch is older than the refresh interval
// The server list SHOULD be refreshed once an hour, see https://github.com/eduvpn/documentation/blob/v3/SERVER_DISCOVERY.md
func (d *Discovery) ShouldRefresh(doc Document, now time.Time) bool {
	d.docsMu.RLock()
	f, ok := d.fetched[doc.Group()]
	d.docsMu.RUnlock()
	if !ok || f.IsZero() {
		return true
	}
	return !now.Before(f.Add(time.Duration(d.cfg.RefreshInterval)))
}

// minSignTime is the sign time of the last accepted copy of the document
func (d *Discovery) minSignTime(doc Document) uint64 {
	d.docsMu.RLock()
	t, ok := d.signed[doc.Group()]
	d.docsMu.RUnlock()
	if ok {
		return t
	}
	c, err := d.cache.load(doc)
	if err != nil || c == nil {
		return 0
	}
	return c.SignTime
}

// supersede cancels the refresh of the same group that is in flight
// The returned function must be called when the refresh is done
func (d *Discovery) supersede(ctx context.Context, group string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	f := &flight{cancel: cancel}
	d.mu.Lock()
	if prev, ok := d.inflight[group]; ok {
		log.Logger.Debugf("superseding refresh of: '%s'", group)
		prev.cancel(ErrSuperseded)
	}
	d.inflight[group] = f
	d.mu.Unlock()
	return ctx, func() {
		d.mu.Lock()
		if d.inflight[group] == f {
			delete(d.inflight, group)
		}
		d.mu.Unlock()
		cancel(nil)
	}
}

func (d *Discovery) lock(group string) func() {
	d.mu.Lock()
	m, ok := d.groups[group]
	if !ok {
		m = &sync.Mutex{}
		d.groups[group] = m
	}
	d.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// cancelled maps the error of a cancelled refresh to ErrSuperseded if a newer refresh cancelled it
func cancelled(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(context.Cause(ctx), ErrSuperseded) {
		return ErrSuperseded
	}
	return err
}

// verifyDocument verifies body with the signature file and returns the sign time
// The sign time is zero if the trusted comment is not checked
func (d *Discovery) verifyDocument(doc Document, docURL string, sig []byte, body []byte, minSignTime uint64) (uint64, error) {
	if d.cfg.TrustedCommentCheck {
		u, err := url.Parse(docURL)
		if err != nil {
			return 0, errors.WrapPrefix(err, "failed parsing document URL", 0)
		}
		t, err := verify.VerifyFile(string(sig), body, path.Base(u.Path), minSignTime,
			d.cfg.SignaturePublicKeys, !d.cfg.LegacySignatureAllowed)
		if err != nil {
			return 0, d.notVerified(doc, err)
		}
		return t, nil
	}
	if err := verify.VerifyWithKeys(sig, body, d.keys, d.cfg.LegacySignatureAllowed); err != nil {
		return 0, d.notVerified(doc, err)
	}
	return 0, nil
}

func (d *Discovery) notVerified(doc Document, err error) error {
	log.Logger.Security().Warningf("discovery document: '%s' failed verification: %v", doc, err)
	return fmt.Errorf("%w: %w", ErrNotVerified, err)
}

// Refresh fetches, verifies, decodes and reconciles a document
//
// A refresh of a document supersedes the refresh of the same document that is still in flight,
// the superseded refresh returns ErrSuperseded and never writes.
// On failure the previous records and cache stay as they are.
func (d *Discovery) Refresh(ctx context.Context, doc Document) (reconcile.Diff, error) {
	ctx, done := d.supersede(ctx, doc.Group())
	defer done()

	machine := newMachine(func(from fsm.StateID, to fsm.StateID, _ interface{}) bool {
		log.Logger.Debugf("discovery refresh: '%s', %s -> %s", doc, StateName(from), StateName(to))
		if d.OnTransition != nil {
			d.OnTransition(doc, from, to)
		}
		return true
	})
	diff, err := d.refresh(ctx, doc, &machine)
	if err != nil {
		err = cancelled(ctx, err)
		if _, terr := machine.GoTransition(StateFailed); terr != nil {
			log.Logger.Debugf("failed transitioning to failed state: %v", terr)
		}
		if errors.Is(err, ErrSuperseded) {
			log.Logger.Debugf("refresh of: '%s' was superseded", doc)
		} else {
			log.Logger.Warningf("failed refreshing: '%s': %v", doc, err)
		}
		return reconcile.Diff{}, err
	}
	return diff, nil
}

func (d *Discovery) refresh(ctx context.Context, doc Document, machine *fsm.FSM) (reconcile.Diff, error) {
	var empty reconcile.Diff
	docURL, sigURL, err := d.cfg.Discovery.Document(doc.Kind, doc.OrgID)
	if err != nil {
		return empty, err
	}

	if _, err := machine.GoTransition(StateFetchingSignature); err != nil {
		return empty, err
	}
	sig, err := d.client.Get(ctx, sigURL)
	if err != nil {
		return empty, errors.WrapPrefix(err, "failed fetching signature", 0)
	}

	if _, err := machine.GoTransition(StateVerifyingSignature); err != nil {
		return empty, err
	}
	if _, err := verify.ExtractSignature(sig); err != nil {
		return empty, d.notVerified(doc, err)
	}

	if _, err := machine.GoTransition(StateFetchingDocument); err != nil {
		return empty, err
	}
	body, err := d.client.Get(ctx, docURL)
	if err != nil {
		return empty, errors.WrapPrefix(err, "failed fetching document", 0)
	}

	if _, err := machine.GoTransition(StateVerifyingDocument); err != nil {
		return empty, err
	}
	signTime, err := d.verifyDocument(doc, docURL, sig, body, d.minSignTime(doc))
	if err != nil {
		return empty, err
	}

	if _, err := machine.GoTransition(StateDecoding); err != nil {
		return empty, err
	}
	dec, entries, err := doc.decode(body)
	if err != nil {
		return empty, errors.WrapPrefix(err, fmt.Sprintf("failed decoding: '%s'", doc), 0)
	}

	if _, err := machine.GoTransition(StateReconciling); err != nil {
		return empty, err
	}
	diff, err := d.commit(ctx, doc, dec, entries, &cached{
		Raw:       body,
		Signature: sig,
		SignTime:  signTime,
		Fetched:   util.CurrentTime(),
	})
	if err != nil {
		return empty, err
	}

	if _, err := machine.GoTransition(StateDone); err != nil {
		return empty, err
	}
	return diff, nil
}

// commit reconciles the entries and then writes the cache
// Commits of the same group are serialized so that the cache always matches the last commit
func (d *Discovery) commit(ctx context.Context, doc Document, dec decoded, entries []reconcile.Entry, c *cached) (reconcile.Diff, error) {
	unlock := d.lock(doc.Group())
	defer unlock()

	diff, err := d.reconciler.Reconcile(ctx, doc.Group(), entries)
	if err != nil {
		return reconcile.Diff{}, err
	}
	d.set(doc, dec, c)
	if err := d.cache.save(doc, c); err != nil {
		// the records are committed, the next refresh writes the cache again
		log.Logger.Warningf("failed writing discovery cache for: '%s': %v", doc, err)
	}
	return diff, nil
}

// LoadCached loads the cached copy of a document so that it can be shown before a refresh completes
// The copy is verified again and reconciled, a copy that fails verification is ignored but kept on disk
// It returns false if there is no cached copy
func (d *Discovery) LoadCached(ctx context.Context, doc Document) (bool, reconcile.Diff, error) {
	c, err := d.cache.load(doc)
	if err != nil {
		return false, reconcile.Diff{}, err
	}
	if c == nil {
		return false, reconcile.Diff{}, nil
	}
	docURL, _, err := d.cfg.Discovery.Document(doc.Kind, doc.OrgID)
	if err != nil {
		return false, reconcile.Diff{}, err
	}
	// the cached copy itself set the minimum sign time
	if _, err := d.verifyDocument(doc, docURL, c.Signature, c.Raw, 0); err != nil {
		return false, reconcile.Diff{}, err
	}
	dec, entries, err := doc.decode(c.Raw)
	if err != nil {
		return false, reconcile.Diff{}, errors.WrapPrefix(err, fmt.Sprintf("failed decoding cached: '%s'", doc), 0)
	}

	unlock := d.lock(doc.Group())
	defer unlock()
	d.docsMu.RLock()
	last := d.fetched[doc.Group()]
	d.docsMu.RUnlock()
	// a refresh already committed a newer copy
	if last.After(c.Fetched) {
		return true, reconcile.Diff{}, nil
	}
	diff, err := d.reconciler.Reconcile(ctx, doc.Group(), entries)
	if err != nil {
		return false, reconcile.Diff{}, err
	}
	d.set(doc, dec, c)
	return true, diff, nil
}
