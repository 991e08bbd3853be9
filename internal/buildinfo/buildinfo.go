// Package buildinfo holds version metadata stamped at compile time via
// ldflags, and derives the User-Agent string the transport sends on every
// request.
package buildinfo

import "fmt"

// Version is set at build time via -ldflags; "dev" outside a release build.
var Version = "dev"

// UserAgent returns the HTTP User-Agent string for outgoing RPC requests.
func UserAgent() string {
	return fmt.Sprintf("cosmopolite-go/%s", Version)
}
