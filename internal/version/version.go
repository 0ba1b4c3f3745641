// Package version defines the version of the library
// It is part of the user agent of discovery requests
package version

// Version is the latest version
// Update this when releasing
const Version = "0.3.0"
