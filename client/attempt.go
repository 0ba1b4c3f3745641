package client

import (
	"context"
	"time"

	"github.com/eduvpn/eduvpn-core/i18nerr"
	"github.com/eduvpn/eduvpn-core/internal/attempt"
	"github.com/eduvpn/eduvpn-core/internal/expiry"
	"github.com/eduvpn/eduvpn-core/internal/log"
	"github.com/eduvpn/eduvpn-core/types/server"
	"github.com/go-errors/errors"
)

// SaveAttempt stores a new connection attempt for a server right before the VPN is enabled
// The VPN configuration should be tagged with the attempt ID of the returned attempt
func (c *Client) SaveAttempt(srv server.Instance, state attempt.PreConnectionState) (*attempt.ConnectionAttempt, error) {
	a, err := attempt.New(srv, state)
	if err != nil {
		if errors.Is(err, attempt.ErrInvalidProfile) {
			return nil, i18nerr.Wrap(err, "The selected profile is not available")
		}
		return nil, i18nerr.Wrap(err, "Failed to save the connection attempt")
	}
	if err := c.attempts.Save(a); err != nil {
		return nil, i18nerr.Wrap(err, "Failed to save the connection attempt")
	}
	return a, nil
}

// RestoreAttempt checks the stored connection attempt against the system VPN, this should be done on launch
// If the attempt is restored, the expiry handler is started for its certificate, handler may be nil
// A stale VPN is disabled, in that case no attempt is returned
func (c *Client) RestoreAttempt(ctx context.Context, handler expiry.Handler) (*attempt.ConnectionAttempt, error) {
	if c.vpn == nil {
		return nil, i18nerr.Wrap(errors.New("no system VPN configured"), "Failed to restore the connection attempt")
	}
	a, outcome, err := attempt.Restore(ctx, c.attempts, c.vpn)
	log.Logger.Infof("restoring connection attempt: %s", outcome)
	if err != nil {
		return nil, i18nerr.Wrap(err, "Failed to restore the connection attempt")
	}
	if a == nil {
		return nil, nil
	}
	if handler != nil {
		state := a.PreConnectionState
		c.StartExpiry(state.CertificateExpiresAt, state.AuthenticatedAt, handler)
	}
	return a, nil
}

// Attempt returns the stored connection attempt without checking the VPN, nil if there is none
func (c *Client) Attempt() (*attempt.ConnectionAttempt, error) {
	a, err := c.attempts.Load()
	if err != nil {
		return nil, i18nerr.Wrap(err, "Failed to restore the connection attempt")
	}
	return a, nil
}

// RemoveAttempt removes the stored connection attempt, e.g. when the user disconnects
func (c *Client) RemoveAttempt() error {
	c.StopExpiry()
	if err := c.attempts.Remove(); err != nil {
		return i18nerr.Wrap(err, "Failed to remove the connection attempt")
	}
	return nil
}

// StartExpiry calls handler on the client queue on every refresh point of a session that expires at 'expires'
// A running expiry schedule is stopped first
func (c *Client) StartExpiry(expires time.Time, authenticatedAt *time.Time, handler expiry.Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduler != nil {
		c.scheduler.Stop()
	}
	c.scheduler = expiry.Start(c.queue, expires, authenticatedAt, handler)
}

// StopExpiry stops the running expiry schedule, if any
func (c *Client) StopExpiry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.scheduler != nil {
		c.scheduler.Stop()
		c.scheduler = nil
	}
}

// NotificationTimes returns when to notify the user about the certificate of a connection attempt expiring
func (c *Client) NotificationTimes(a *attempt.ConnectionAttempt) expiry.Notifications {
	if a == nil {
		return expiry.Notifications{}
	}
	state := a.PreConnectionState
	return expiry.NotificationTimes(state.CertificateValidFrom, state.CertificateExpiresAt)
}
