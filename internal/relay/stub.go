//go:build !linux

package relay

import "errors"

// OpenLine is not available on non-Linux platforms.
func OpenLine(string, int, int) (Line, error) {
	return nil, errors.New("relay: gpio not supported on this platform (requires Linux)")
}
