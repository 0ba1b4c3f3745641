// Package client implements the public interface for creating eduVPN/Let's Connect! clients
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/eduvpn/eduvpn-core/i18nerr"
	"github.com/eduvpn/eduvpn-core/internal/attempt"
	"github.com/eduvpn/eduvpn-core/internal/config"
	"github.com/eduvpn/eduvpn-core/internal/discovery"
	"github.com/eduvpn/eduvpn-core/internal/expiry"
	"github.com/eduvpn/eduvpn-core/internal/http"
	"github.com/eduvpn/eduvpn-core/internal/log"
	"github.com/eduvpn/eduvpn-core/internal/queue"
	"github.com/eduvpn/eduvpn-core/internal/reconcile"
	corever "github.com/eduvpn/eduvpn-core/internal/version"
	"github.com/go-errors/errors"
	"golang.org/x/text/language"
)

// hasDiscovery returns whether the client uses server discovery, Let's Connect! does not
func (c *Client) hasDiscovery() bool {
	// see https://git.sr.ht/~fkooman/vpn-user-portal/tree/v3/item/src/OAuth/VpnClientDb.php
	return strings.HasPrefix(c.Name, "org.eduvpn.app")
}

// isAllowedClientID checks if the 'clientID' is in the list of allowed client IDs
func isAllowedClientID(clientID string) bool {
	allowList := []string{
		// eduVPN
		"org.eduvpn.app.windows",
		"org.eduvpn.app.android",
		"org.eduvpn.app.ios",
		"org.eduvpn.app.macos",
		"org.eduvpn.app.linux",
		// Let's Connect!
		"org.letsconnect-vpn.app.windows",
		"org.letsconnect-vpn.app.android",
		"org.letsconnect-vpn.app.ios",
		"org.letsconnect-vpn.app.macos",
		"org.letsconnect-vpn.app.linux",
	}
	for _, x := range allowList {
		if x == clientID {
			return true
		}
	}
	return false
}

func userAgentName(clientID string) string {
	switch clientID {
	case "org.eduvpn.app.windows":
		return "eduVPN for Windows"
	case "org.eduvpn.app.android":
		return "eduVPN for Android"
	case "org.eduvpn.app.ios":
		return "eduVPN for iOS"
	case "org.eduvpn.app.macos":
		return "eduVPN for macOS"
	case "org.eduvpn.app.linux":
		return "eduVPN for Linux"
	case "org.letsconnect-vpn.app.windows":
		return "Let's Connect! for Windows"
	case "org.letsconnect-vpn.app.android":
		return "Let's Connect! for Android"
	case "org.letsconnect-vpn.app.ios":
		return "Let's Connect! for iOS"
	case "org.letsconnect-vpn.app.macos":
		return "Let's Connect! for macOS"
	case "org.letsconnect-vpn.app.linux":
		return "Let's Connect! for Linux"
	default:
		return "unknown"
	}
}

// Client is the main struct for the VPN client
type Client struct {
	// Name is the client ID
	Name string
	// Language is used for display names and error messages
	Language language.Tag

	cfg        *config.Config
	store      *reconcile.BoltStore
	reconciler *reconcile.Reconciler
	manager    *discovery.Manager
	queue      *queue.Queue
	attempts   *attempt.Store
	vpn        attempt.VPN

	// searches and groups are only used on the queue
	searches map[*Search]struct{}
	groups   map[*GroupRows]struct{}

	mu        sync.Mutex
	scheduler *expiry.Scheduler
}

// New creates a client with the following parameters:
//   - name: the client ID, e.g. "org.eduvpn.app.linux"
//   - version: the version of the app, used in the user agent
//   - cfg: the configuration, see config.Load
//   - vpn: the system VPN, used to restore a connection attempt on launch
//
// The returned client must be closed
func New(name string, version string, cfg *config.Config, vpn attempt.VPN) (*Client, error) {
	if !isAllowedClientID(name) {
		return nil, i18nerr.Newf("The client ID: '%s' is not allowed", name)
	}
	http.UserAgent = fmt.Sprintf("%s/%s eduvpn-core/%s", userAgentName(name), version, corever.Version)
	return newClient(name, cfg, vpn, nil)
}

func newClient(name string, cfg *config.Config, vpn attempt.VPN, hc *http.Client) (c *Client, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, i18nerr.Wrap(err, "The client is not configured correctly")
	}
	lvl, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, i18nerr.Wrap(err, "The client is not configured correctly")
	}
	if err := log.Logger.Init(lvl, cfg.Directory); err != nil {
		return nil, i18nerr.Wrap(err, "The client is not configured correctly")
	}

	store, err := reconcile.OpenBoltStore(cfg.Directory)
	if err != nil {
		return nil, i18nerr.Wrapf(err, "Failed to open the server database in directory: '%s'", cfg.Directory)
	}
	defer func() {
		if err != nil {
			_ = store.Close()
		}
	}()

	rec := reconcile.New(store)
	disco, err := discovery.New(cfg, hc, rec)
	if err != nil {
		return nil, i18nerr.Wrap(err, "The client is not configured correctly")
	}
	c = &Client{
		Name:       name,
		Language:   language.English,
		cfg:        cfg,
		store:      store,
		reconciler: rec,
		manager:    discovery.NewManager(disco),
		queue:      queue.New(),
		attempts:   attempt.NewStore(cfg.Directory),
		vpn:        vpn,
		searches:   make(map[*Search]struct{}),
		groups:     make(map[*GroupRows]struct{}),
	}
	log.Logger.Infof("client: '%s' initialized with directory: '%s'", name, cfg.Directory)
	return c, nil
}

// Close stops the background work and closes the server database
func (c *Client) Close() error {
	c.manager.Cancel()
	c.StopExpiry()
	c.queue.Close()
	err := c.store.Close()
	log.Logger.Close()
	if err != nil {
		return errors.WrapPrefix(err, "failed closing server database", 0)
	}
	return nil
}

// Records returns the persisted server records of a discovery group
// The groups are the reconcile.Group* constants and reconcile.OrganizationGroup
func (c *Client) Records(group string) ([]reconcile.Record, error) {
	return c.reconciler.Records(group)
}

// Dispatch runs f on the main queue of the client
// Callbacks of the client are called on this queue as well
func (c *Client) Dispatch(f func()) bool {
	return c.queue.Dispatch(f)
}

// sync runs f on the queue and waits for it
func (c *Client) sync(f func()) {
	if !c.queue.Sync(f) {
		log.Logger.Debugf("client queue closed, not running task")
	}
}

// Startup loads the cached discovery documents and refreshes the ones that are due in the background
// The searches are updated whenever a document changed
func (c *Client) Startup(ctx context.Context) {
	if !c.hasDiscovery() {
		log.Logger.Infof("client: '%s' does not use discovery", c.Name)
		return
	}
	loaded := c.manager.Startup(ctx, startupDocuments(), func(r discovery.Result) {
		if r.Err != nil {
			log.Logger.Warningf("refreshing: '%s' at startup failed: %v", r.Document, r.Err)
			return
		}
		c.queue.Dispatch(c.updateSearches)
	})
	if len(loaded) > 0 {
		c.queue.Dispatch(c.updateSearches)
	}
}

func startupDocuments() []discovery.Document {
	return []discovery.Document{
		discovery.InstituteAccess(),
		discovery.SecureInternet(),
		discovery.Organizations(),
	}
}
