package attempt

import (
	"context"

	"github.com/eduvpn/eduvpn-core/internal/log"
	"github.com/go-errors/errors"
	"github.com/google/uuid"
)

// VPN is the system VPN configuration
type VPN interface {
	// Enabled returns whether a VPN configuration is enabled
	// and the attempt ID that the configuration was tagged with, uuid.Nil if there is none
	Enabled(ctx context.Context) (bool, uuid.UUID, error)
	// Disable disables the VPN configuration
	Disable(ctx context.Context) error
}

// Outcome is the result of a restore
type Outcome int8

const (
	// OutcomeNotEnabled means the VPN is not enabled, nothing was done
	OutcomeNotEnabled Outcome = iota
	// OutcomeRestored means the VPN belongs to the stored attempt
	OutcomeRestored
	// OutcomeStaleDisabled means the VPN did not belong to a stored attempt and was disabled
	OutcomeStaleDisabled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNotEnabled:
		return "not enabled"
	case OutcomeRestored:
		return "restored"
	case OutcomeStaleDisabled:
		return "stale disabled"
	default:
		return "unknown"
	}
}

// Restore checks the stored attempt against the system VPN on launch
//
// If the VPN is enabled and it was tagged with the ID of the stored attempt, the attempt is returned so that the UI can be restored.
// If there is no valid stored attempt or the IDs differ, the VPN is disabled and the stored attempt is removed.
func Restore(ctx context.Context, store *Store, vpn VPN) (*ConnectionAttempt, Outcome, error) {
	enabled, id, err := vpn.Enabled(ctx)
	if err != nil {
		return nil, OutcomeNotEnabled, errors.WrapPrefix(err, "failed getting VPN status", 0)
	}
	if !enabled {
		return nil, OutcomeNotEnabled, nil
	}

	a, err := store.Load()
	if err != nil {
		// an attempt that cannot be decoded is the same as no attempt
		log.Logger.Warningf("ignoring connection attempt that could not be loaded: %v", err)
		a = nil
	}
	if a != nil && id != uuid.Nil && a.AttemptID == id {
		return a, OutcomeRestored, nil
	}

	if a == nil {
		log.Logger.Infof("VPN is enabled but there is no connection attempt, disabling")
	} else {
		log.Logger.Infof("VPN attempt id: '%s' does not match stored attempt: '%s', disabling", id, a.AttemptID)
	}
	if err := vpn.Disable(ctx); err != nil {
		return nil, OutcomeStaleDisabled, errors.WrapPrefix(err, "failed disabling stale VPN", 0)
	}
	if err := store.Remove(); err != nil {
		return nil, OutcomeStaleDisabled, err
	}
	return nil, OutcomeStaleDisabled, nil
}
