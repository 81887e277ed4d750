// Package broker runs an optional in-process MQTT broker for installations
// that do not already have one next to Home Assistant.
package broker

import (
	"fmt"

	mqttv2 "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog/log"
)

type Broker struct {
	server *mqttv2.Server
}

// Start serves MQTT on address. An empty address runs the broker with only
// the inline client, which is what the tests use.
func Start(address string) (*Broker, error) {
	server := mqttv2.New(&mqttv2.Options{
		InlineClient: true,
	})

	// Allow all connections.
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		return nil, fmt.Errorf("add auth hook: %w", err)
	}

	if address != "" {
		tcp := listeners.NewTCP(listeners.Config{ID: "tcp", Address: address})
		if err := server.AddListener(tcp); err != nil {
			return nil, fmt.Errorf("add listener %s: %w", address, err)
		}
	}

	if err := server.Serve(); err != nil {
		return nil, fmt.Errorf("serve: %w", err)
	}

	log.Info().Str("address", address).Msg("Embedded MQTT broker started")
	return &Broker{server: server}, nil
}

func (b *Broker) Close() error {
	log.Info().Msg("Stopping embedded MQTT broker")
	return b.server.Close()
}
