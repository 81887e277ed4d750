//go:build linux

package relay

import (
	"github.com/warthog618/go-gpiocdev"
)

// OpenLine requests a line on a GPIO character device as an output.
func OpenLine(chip string, offset int, initial int) (Line, error) {
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(initial))
	if err != nil {
		return nil, err
	}
	return l, nil
}
