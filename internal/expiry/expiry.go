// Package expiry computes when the session expiry status changes
// so that a countdown can be updated without polling every second and the renew action is enabled at the right moment
package expiry

import (
	"fmt"
	"time"
)

const (
	// BrowserSessionValidity is the time after authenticating during which renewing silently fails
	// The browser session at the server is still considered fresh
	BrowserSessionValidity = 32 * time.Minute

	showDaysHours    = 24 * time.Hour
	showHoursMinutes = time.Hour
	showMinutesOnly  = 2 * time.Minute
)

// Status is the status of a session
type Status struct {
	// Expired is true if the session has expired
	Expired bool
	// Remaining is the time until the session expires, zero if expired
	Remaining time.Duration
	// CanRenew is true if renewing the session would work
	CanRenew bool
}

// ShouldShowRenewSessionButton returns whether the renew action should be available
// It is not shown in the first minutes after authenticating
func (s Status) ShouldShowRenewSessionButton() bool {
	return s.Expired || s.CanRenew
}

func (s Status) String() string {
	if s.Expired {
		return "expired"
	}
	return fmt.Sprintf("valid for %s (can renew: %t)", s.Remaining, s.CanRenew)
}

// CanRenewAt returns when renewing becomes possible
// It is nil if the authentication time is unknown, renewing is then always possible
func CanRenewAt(authenticatedAt *time.Time) *time.Time {
	if authenticatedAt == nil {
		return nil
	}
	t := authenticatedAt.Add(BrowserSessionValidity)
	return &t
}

// StatusAt returns the status at time at
func StatusAt(at time.Time, expiry time.Time, canRenewAt *time.Time) Status {
	remaining := expiry.Sub(at)
	if remaining <= 0 {
		return Status{Expired: true}
	}
	return Status{
		Remaining: remaining,
		CanRenew:  canRenewAt == nil || !at.Before(*canRenewAt),
	}
}

// RefreshPoint is a time at which the status changes in a way that should be shown
type RefreshPoint struct {
	At     time.Time
	Status Status
}

// step returns the time until the next refresh point
// The points are at whole hours before expiry if more than a day is left,
// at whole minutes if more than two minutes are left and every second otherwise
func step(remaining time.Duration) time.Duration {
	boundary := func(unit time.Duration) time.Duration {
		if r := remaining % unit; r > 0 {
			return r
		}
		return unit
	}
	switch {
	case remaining > showDaysHours:
		return boundary(time.Hour)
	case remaining > showMinutesOnly:
		return boundary(time.Minute)
	default:
		return time.Second
	}
}

// ComputeRefreshTimes computes the refresh points from now until expiry
// The points are in increasing order, the last one is at expiry with an expired status
// If authenticatedAt is given, there is a point exactly when renewing becomes possible
func ComputeRefreshTimes(now time.Time, expiry time.Time, authenticatedAt *time.Time) []RefreshPoint {
	canRenewAt := CanRenewAt(authenticatedAt)
	var points []RefreshPoint
	add := func(at time.Time) {
		points = append(points, RefreshPoint{At: at, Status: StatusAt(at, expiry, canRenewAt)})
	}

	var prev *time.Time
	for cur := now; cur.Before(expiry); cur = cur.Add(step(expiry.Sub(cur))) {
		if canRenewAt != nil && prev != nil && prev.Before(*canRenewAt) && canRenewAt.Before(cur) {
			add(*canRenewAt)
		}
		add(cur)
		c := cur
		prev = &c
	}
	add(expiry)
	return points
}
