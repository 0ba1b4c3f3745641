// Package attempt persists the last connection attempt
// On launch it is used to restore the connection UI when the VPN is still enabled
package attempt

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/eduvpn/eduvpn-core/types/server"
	"github.com/go-errors/errors"
	"github.com/google/uuid"
)

// ErrInvalidProfile is returned when the selected profile is not one of the profiles
var ErrInvalidProfile = errors.New("selected profile is not in the profile list")

// UnknownServerInstanceError is returned when the stored attempt has no known server
type UnknownServerInstanceError struct {
	// Keys are the top level keys that were found
	Keys []string
}

func (e *UnknownServerInstanceError) Error() string {
	return fmt.Sprintf("connection attempt has no known server instance, keys: %v", e.Keys)
}

// PreConnectionState is the state before the connection was attempted
type PreConnectionState struct {
	Profiles             []server.Profile `json:"profiles"`
	SelectedProfileID    string           `json:"selected_profile_id"`
	CertificateValidFrom time.Time        `json:"certificate_valid_from"`
	CertificateExpiresAt time.Time        `json:"certificate_expires_at"`
	// AuthenticatedAt is when the user authorized, if known
	// It is used to know when the session can be renewed
	AuthenticatedAt *time.Time `json:"authenticated_at,omitempty"`
}

func (p *PreConnectionState) validate() error {
	for _, pr := range p.Profiles {
		if pr.ID == p.SelectedProfileID {
			return nil
		}
	}
	return ErrInvalidProfile
}

// SelectedProfile returns the selected profile
func (p *PreConnectionState) SelectedProfile() server.Profile {
	for _, pr := range p.Profiles {
		if pr.ID == p.SelectedProfileID {
			return pr
		}
	}
	return server.Profile{}
}

// ConnectionAttempt is the most recent attempt to connect
type ConnectionAttempt struct {
	// Server is a *server.SimpleInstance or a *server.SecureInternetInstance
	Server             server.Instance
	PreConnectionState PreConnectionState
	// AttemptID is unique for every attempt
	// The VPN configuration is tagged with it so that we can detect a stale VPN
	AttemptID uuid.UUID
}

// New creates a connection attempt with a new attempt ID
// The selected profile must be one of the profiles
func New(srv server.Instance, state PreConnectionState) (*ConnectionAttempt, error) {
	switch srv.(type) {
	case *server.SimpleInstance, *server.SecureInternetInstance:
	default:
		return nil, &UnknownServerInstanceError{}
	}
	if err := state.validate(); err != nil {
		return nil, err
	}
	return &ConnectionAttempt{
		Server:             srv,
		PreConnectionState: state,
		AttemptID:          uuid.New(),
	}, nil
}

type attemptJSON struct {
	SimpleServer         *server.SimpleInstance         `json:"simple_server,omitempty"`
	SecureInternetServer *server.SecureInternetInstance `json:"secure_internet_server,omitempty"`
	PreConnectionState   *PreConnectionState            `json:"pre_connection_state"`
	AttemptID            *uuid.UUID                     `json:"attempt_id"`
}

// MarshalJSON encodes the attempt with the server tagged by its kind
func (a *ConnectionAttempt) MarshalJSON() ([]byte, error) {
	v := attemptJSON{
		PreConnectionState: &a.PreConnectionState,
		AttemptID:          &a.AttemptID,
	}
	switch s := a.Server.(type) {
	case *server.SimpleInstance:
		v.SimpleServer = s
	case *server.SecureInternetInstance:
		v.SecureInternetServer = s
	default:
		return nil, &UnknownServerInstanceError{}
	}
	return json.Marshal(v)
}

// UnmarshalJSON decodes an attempt
// An attempt without a known server gives an *UnknownServerInstanceError
func (a *ConnectionAttempt) UnmarshalJSON(data []byte) error {
	var v attemptJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return errors.WrapPrefix(err, "failed decoding connection attempt", 0)
	}
	var res ConnectionAttempt
	switch {
	case v.SimpleServer != nil:
		res.Server = v.SimpleServer
	case v.SecureInternetServer != nil:
		res.Server = v.SecureInternetServer
	default:
		var keys map[string]json.RawMessage
		_ = json.Unmarshal(data, &keys)
		e := &UnknownServerInstanceError{}
		for k := range keys {
			e.Keys = append(e.Keys, k)
		}
		sort.Strings(e.Keys)
		return e
	}
	if v.PreConnectionState == nil {
		return errors.New("connection attempt has no pre connection state")
	}
	if v.AttemptID == nil {
		return errors.New("connection attempt has no attempt id")
	}
	if err := v.PreConnectionState.validate(); err != nil {
		return err
	}
	res.PreConnectionState = *v.PreConnectionState
	res.AttemptID = *v.AttemptID
	*a = res
	return nil
}
