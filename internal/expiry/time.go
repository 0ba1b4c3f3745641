package expiry

import "time"

// Notifications are the times at which an app can notify the user about a session that ends at a certificate expiry
// The renew action itself follows Status.ShouldShowRenewSessionButton
type Notifications struct {
	// Countdown is when the remaining time should be shown, the start if the session is a day or shorter
	Countdown time.Time
	// Expiring are the times to notify that the session expires soon, latest first
	Expiring []time.Time
}

// notifyBefore are the durations before expiry at which to notify
var notifyBefore = []time.Duration{
	0,
	1 * time.Hour,
	2 * time.Hour,
	4 * time.Hour,
}

// NotificationTimes returns the notification times for a session from st to et
// Implemented according to: https://github.com/eduvpn/documentation/blob/cdf4d054f7652d74e4192494e8bb0e21040e46ac/API.md#session-expiry
func NotificationTimes(st time.Time, et time.Time) Notifications {
	d := et.Sub(st)
	n := Notifications{Countdown: st}
	if d > 24*time.Hour {
		n.Countdown = et.Add(-24 * time.Hour)
	}
	for _, b := range notifyBefore {
		if b > d {
			break
		}
		n.Expiring = append(n.Expiring, et.Add(-b))
	}
	return n
}
