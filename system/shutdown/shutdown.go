package shutdown

import (
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// RelayBank is the part of the relay bank needed to leave heaters off.
type RelayBank interface {
	AllOff() error
	Close() error
}

// Shutdown stops the controllers, switches every relay off and closes the
// remaining resources in order.
func Shutdown(stopControllers func(), relays RelayBank, closers ...io.Closer) {
	if stopControllers != nil {
		stopControllers()
		log.Info().Msg("Unit controllers stopped")
	}

	if relays != nil {
		if err := relays.AllOff(); err != nil {
			log.Error().Err(err).Msg("Failed to switch relays off")
		} else {
			log.Info().Msg("Relays deactivated")
		}
		if err := relays.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to release relay lines")
		}
	}

	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
}

// ShutdownWithError logs the error, releases resources and exits non-zero.
func ShutdownWithError(err error, msg string, stopControllers func(), relays RelayBank, closers ...io.Closer) {
	log.Error().Err(err).Msg(msg)
	Shutdown(stopControllers, relays, closers...)
	os.Exit(1)
}
