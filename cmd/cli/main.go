package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/docopt/docopt-go"
	"github.com/eduvpn/eduvpn-core/client"
	"github.com/eduvpn/eduvpn-core/i18nerr"
	"github.com/eduvpn/eduvpn-core/internal/config"
	"github.com/eduvpn/eduvpn-core/internal/discovery"
	"github.com/eduvpn/eduvpn-core/internal/expiry"
	"github.com/eduvpn/eduvpn-core/internal/reconcile"
	"github.com/eduvpn/eduvpn-core/internal/rows"
	"github.com/eduvpn/eduvpn-core/internal/version"
	"github.com/eduvpn/eduvpn-core/types/server"
	"golang.org/x/text/language"
)

const clientID = "org.eduvpn.app.linux"

const usage = `eduvpn-cli: inspect eduVPN server discovery and the connection state.

Usage:
  eduvpn-cli refresh [options]
  eduvpn-cli list [options]
  eduvpn-cli search [--organizations] [options] <query>
  eduvpn-cli attempt show [options]
  eduvpn-cli attempt clear [options]
  eduvpn-cli expiry [--authenticated=<time>] [--lang=<tag>] <expires>
  eduvpn-cli graph
  eduvpn-cli -h | --help
  eduvpn-cli --version

Options:
  -h --help                 Show this screen.
  --version                 Show the version.
  --config=<file>           Read the configuration from a JSON file.
  --dir=<directory>         The state directory, ignored if a config file is given.
  --lang=<tag>              The language for names and messages [default: en].
  --organizations           Also search the organizations.
  --authenticated=<time>    When the user authorized, RFC3339.

The expiry command prints the times at which the session status changes for a
certificate that expires at <expires> (RFC3339), followed by the notification times.
`

func main() {
	os.Exit(run())
}

func run() int {
	arguments, err := docopt.ParseArgs(usage, os.Args[1:], version.Version)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	tag := language.English
	if l, _ := arguments.String("--lang"); l != "" {
		if tag, err = language.Parse(l); err != nil {
			fmt.Fprintf(os.Stderr, "invalid language: '%s': %v\n", l, err)
			return 1
		}
	}

	if b, _ := arguments.Bool("graph"); b {
		fmt.Print(discovery.Graph())
		return 0
	}
	if b, _ := arguments.Bool("expiry"); b {
		return printExpiry(arguments, tag)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c, err := newClient(arguments)
	if err != nil {
		printError(err, tag)
		return 1
	}
	defer func() {
		if err := c.Close(); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}()
	c.Language = tag

	switch {
	case flag(arguments, "refresh"):
		err = c.RefreshAll(ctx)
	case flag(arguments, "list"):
		err = list(c)
	case flag(arguments, "search"):
		query, _ := arguments.String("<query>")
		search(ctx, c, query, flag(arguments, "--organizations"))
	case flag(arguments, "attempt") && flag(arguments, "show"):
		err = showAttempt(c)
	case flag(arguments, "attempt") && flag(arguments, "clear"):
		err = c.RemoveAttempt()
	}
	if err != nil {
		printError(err, tag)
		return 1
	}
	return 0
}

func flag(arguments docopt.Opts, key string) bool {
	b, _ := arguments.Bool(key)
	return b
}

func printError(err error, tag language.Tag) {
	if ie, ok := err.(*i18nerr.Error); ok {
		fmt.Fprintln(os.Stderr, ie.Translated(tag))
		return
	}
	fmt.Fprintln(os.Stderr, err)
}

func newClient(arguments docopt.Opts) (*client.Client, error) {
	var cfg *config.Config
	if p, _ := arguments.String("--config"); p != "" {
		var err error
		if cfg, err = config.Load(p); err != nil {
			return nil, err
		}
	} else {
		dir, _ := arguments.String("--dir")
		if dir == "" {
			base, err := os.UserConfigDir()
			if err != nil {
				return nil, err
			}
			dir = filepath.Join(base, "eduvpn-cli")
		}
		cfg = config.Default(dir)
	}
	return client.New(clientID, version.Version, cfg, nil)
}

func list(c *client.Client) error {
	groups := []struct {
		name  string
		group string
	}{
		{"Institute access", reconcile.GroupInstituteAccess},
		{"Secure internet", reconcile.GroupSecureInternet},
		{"Organizations", reconcile.GroupOrganizations},
	}
	for _, g := range groups {
		records, err := c.Records(g.group)
		if err != nil {
			return err
		}
		fmt.Printf("%s (%d):\n", g.name, len(records))
		for _, r := range records {
			name := r.DisplayName.StringFor(c.Language)
			if g.group == reconcile.GroupSecureInternet {
				name = r.CountryCode
			}
			fmt.Printf("  %s\t%s\t%s\n", r.ID, name, r.LocalStoragePath)
		}
	}
	return nil
}

func search(ctx context.Context, c *client.Client, query string, organizations bool) {
	// only the cached lists are used, run refresh first to update them
	c.Startup(ctx)
	s := c.NewSearch(organizations, nil)
	defer s.Close()
	s.SetQuery(query)
	for _, r := range s.Rows() {
		switch r.Kind {
		case rows.KindAddingServerByURLHeader:
			fmt.Println("Add server by URL:")
		case rows.KindInstituteAccessHeader:
			fmt.Println("Institute access:")
		case rows.KindSecureInternetOrgHeader:
			fmt.Println("Secure internet:")
		case rows.KindNoResults:
			fmt.Println("No results")
		case rows.KindAddingServerByURL:
			fmt.Printf("  %s\n", server.DisplayHost(r.ID))
		default:
			fmt.Printf("  %s\t%s\n", r.DisplayName, r.ID)
		}
	}
}

func showAttempt(c *client.Client) error {
	a, err := c.Attempt()
	if err != nil {
		return err
	}
	if a == nil {
		fmt.Println("No connection attempt")
		return nil
	}
	state := a.PreConnectionState
	fmt.Printf("Attempt:  %s\n", a.AttemptID)
	fmt.Printf("Server:   %s (%s)\n", a.Server.APIBaseURL(), a.Server.StoragePath())
	fmt.Printf("Profile:  %s\n", state.SelectedProfile().DisplayName.StringFor(c.Language))
	fmt.Printf("Expires:  %s\n", state.CertificateExpiresAt.Format(time.RFC3339))
	fmt.Printf("Status:   %s\n", expiry.StatusAt(time.Now(), state.CertificateExpiresAt, expiry.CanRenewAt(state.AuthenticatedAt)).Text(c.Language))
	printNotifications(c.NotificationTimes(a))
	return nil
}

func printNotifications(n expiry.Notifications) {
	fmt.Printf("Countdown from: %s\n", n.Countdown.Format(time.RFC3339))
	for _, t := range n.Expiring {
		fmt.Printf("Notify at:      %s\n", t.Format(time.RFC3339))
	}
}

func printExpiry(arguments docopt.Opts, tag language.Tag) int {
	e, _ := arguments.String("<expires>")
	expires, err := time.Parse(time.RFC3339, e)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid expiry time: '%s': %v\n", e, err)
		return 1
	}
	var auth *time.Time
	start := time.Now()
	if a, _ := arguments.String("--authenticated"); a != "" {
		t, err := time.Parse(time.RFC3339, a)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid authentication time: '%s': %v\n", a, err)
			return 1
		}
		auth = &t
		start = t
	}
	for _, p := range expiry.ComputeRefreshTimes(time.Now(), expires, auth) {
		renew := ""
		if p.Status.ShouldShowRenewSessionButton() {
			renew = " (renew)"
		}
		fmt.Printf("%s\t%s%s\n", p.At.Format(time.RFC3339), p.Status.Text(tag), renew)
	}
	printNotifications(expiry.NotificationTimes(start, expires))
	return 0
}
