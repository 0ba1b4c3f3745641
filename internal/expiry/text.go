package expiry

import (
	"strings"
	"time"

	"golang.org/x/text/feature/plural"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

type unit struct {
	d     time.Duration
	key   string
	one   string
	other string
	nlOne string
	nlOth string
}

var units = []unit{
	{d: 24 * time.Hour, key: "%d days", one: "%d day", other: "%d days", nlOne: "%d dag", nlOth: "%d dagen"},
	{d: time.Hour, key: "%d hours", one: "%d hour", other: "%d hours", nlOne: "%d uur", nlOth: "%d uur"},
	{d: time.Minute, key: "%d minutes", one: "%d minute", other: "%d minutes", nlOne: "%d minuut", nlOth: "%d minuten"},
	{d: time.Second, key: "%d seconds", one: "%d second", other: "%d seconds", nlOne: "%d seconde", nlOth: "%d seconden"},
}

func init() {
	for _, u := range units {
		_ = message.Set(language.English, u.key, plural.Selectf(1, "%d", plural.One, u.one, plural.Other, u.other))
		_ = message.Set(language.Dutch, u.key, plural.Selectf(1, "%d", plural.One, u.nlOne, plural.Other, u.nlOth))
	}
	_ = message.SetString(language.Dutch, "Valid for %s", "Geldig voor %s")
	_ = message.SetString(language.Dutch, "This session has expired", "Deze sessie is verlopen")
	_ = message.SetString(language.Dutch, "an unknown amount of time", "een onbekende tijd")
}

// formatDuration formats d with the two units starting at units[from]
// Only one unit is used when to is from
func formatDuration(p *message.Printer, d time.Duration, from int, to int) string {
	var parts []string
	for i := from; i <= to; i++ {
		u := units[i]
		n := int64(d / u.d)
		d -= time.Duration(n) * u.d
		if n == 0 {
			continue
		}
		parts = append(parts, p.Sprintf(u.key, n))
	}
	if len(parts) == 0 {
		return p.Sprintf(units[to].key, 0)
	}
	return strings.Join(parts, ", ")
}

// Text returns the status as text in the language of tag
// e.g. "Valid for 2 hours, 5 minutes"
func (s Status) Text(tag language.Tag) string {
	p := message.NewPrinter(tag)
	if s.Expired {
		return p.Sprintf("This session has expired")
	}
	var left string
	switch r := s.Remaining; {
	case r > showDaysHours:
		left = formatDuration(p, r, 0, 1)
	case r > showHoursMinutes:
		left = formatDuration(p, r, 1, 2)
	case r > showMinutesOnly:
		left = formatDuration(p, r, 2, 2)
	case r >= 0:
		left = formatDuration(p, r, 2, 3)
	default:
		left = p.Sprintf("an unknown amount of time")
	}
	return p.Sprintf("Valid for %s", left)
}
