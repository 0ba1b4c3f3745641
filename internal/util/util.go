// Package util implements small helpers shared by the other packages
package util

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-errors/errors"
)

// CurrentTime returns the current time
// It is a variable so that tests can override it
var CurrentTime = time.Now

// EnsureDirectory creates a directory with permission 700
func EnsureDirectory(directory string) error {
	// Create with 700 permissions, read, write, execute only for the owner
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return errors.WrapPrefix(err, fmt.Sprintf("failed to create directory '%s'", directory), 0)
	}
	return nil
}

// ReplaceOrgID replaces the @ORG_ID@ placeholder in a template path
// The organization ID is path escaped
func ReplaceOrgID(template string, orgID string) string {
	return strings.ReplaceAll(template, "@ORG_ID@", url.PathEscape(orgID))
}

// EnsureValidURL parses a URL and makes sure it uses https, has a clean path and a trailing slash
func EnsureValidURL(s string) (string, error) {
	pu, err := url.Parse(s)
	if err != nil {
		return "", errors.WrapPrefix(err, fmt.Sprintf("failed parsing url: '%s'", s), 0)
	}
	// "example.com/" is parsed as a path without a host
	if pu.Host == "" && pu.Path != "" {
		pu, err = url.Parse("https://" + s)
		if err != nil {
			return "", errors.WrapPrefix(err, fmt.Sprintf("failed parsing url: '%s'", s), 0)
		}
	}
	pu.Scheme = "https"
	if pu.Path != "" {
		pu.Path = path.Clean(pu.Path)
	}
	if !strings.HasSuffix(pu.Path, "/") {
		pu.Path += "/"
	}
	return pu.String(), nil
}

// JoinURLPath joins a relative path onto a base URL
// The result never has a trailing slash
func JoinURLPath(u string, p string) (string, error) {
	pu, err := url.Parse(u)
	if err != nil {
		return "", errors.WrapPrefix(err, fmt.Sprintf("failed parsing url: '%s' for joining", u), 0)
	}
	pu.Path = path.Join(pu.Path, path.Clean("/"+p))
	return pu.String(), nil
}
