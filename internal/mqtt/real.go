package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-controller/internal/model"
)

type Options struct {
	Broker            string
	ClientID          string
	StatestreamPrefix string
	StatusPrefix      string

	// OnReconnect runs after every connection except the first. State
	// changes published while disconnected are lost.
	OnReconnect func()
}

// RealClient talks to an actual MQTT broker.
type RealClient struct {
	client paho.Client
	opts   Options

	mu        sync.Mutex
	handler   StateHandler
	connected bool
}

// NewRealClient connects to the broker. Subscriptions are restored on every
// reconnect.
func NewRealClient(opts Options) (*RealClient, error) {
	c := &RealClient{opts: opts}

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(StatusTopic(opts.StatusPrefix, "availability"), "offline", 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Str("broker", opts.Broker).Msg("MQTT connection lost")
		})

	c.client = paho.NewClient(po)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

func (c *RealClient) onConnect(client paho.Client) {
	log.Info().Str("broker", c.opts.Broker).Msg("MQTT connected")
	client.Publish(StatusTopic(c.opts.StatusPrefix, "availability"), 1, true, "online")

	c.mu.Lock()
	h := c.handler
	reconnect := c.connected
	c.connected = true
	c.mu.Unlock()
	if h != nil {
		c.subscribe(client, h)
	}
	if reconnect && c.opts.OnReconnect != nil {
		c.opts.OnReconnect()
	}
}

func (c *RealClient) subscribe(client paho.Client, h StateHandler) {
	filter := StateTopicFilter(c.opts.StatestreamPrefix)
	token := client.Subscribe(filter, 1, func(_ paho.Client, msg paho.Message) {
		id, ok := EntityFromTopic(c.opts.StatestreamPrefix, msg.Topic())
		if !ok {
			return
		}
		h(id, ParseStatePayload(msg.Payload()))
	})
	go func() {
		if !token.WaitTimeout(10 * time.Second) {
			log.Error().Str("filter", filter).Msg("MQTT subscribe timeout")
			return
		}
		if err := token.Error(); err != nil {
			log.Error().Err(err).Str("filter", filter).Msg("MQTT subscribe failed")
			return
		}
		log.Info().Str("filter", filter).Msg("Subscribed to statestream")
	}()
}

func (c *RealClient) Subscribe(handler StateHandler) error {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()

	if !c.client.IsConnectionOpen() {
		// onConnect subscribes once the connection is back
		return nil
	}
	c.subscribe(c.client, handler)
	return nil
}

// PublishStatus does not wait for the broker, it runs on the event loop.
func (c *RealClient) PublishStatus(snap model.UnitSnapshot) error {
	payload, err := FormatStatus(snap)
	if err != nil {
		return fmt.Errorf("format status: %w", err)
	}
	topic := StatusTopic(c.opts.StatusPrefix, snap.Unit)
	token := c.client.Publish(topic, 0, true, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", topic).Msg("Failed to publish unit status")
		}
	}()
	return nil
}

// Observe publishes the snapshot of every recompute pass.
func (c *RealClient) Observe(ev model.UnitEvent) {
	if err := c.PublishStatus(ev.Snapshot); err != nil {
		log.Warn().Err(err).Str("unit", ev.Snapshot.Unit).Msg("Failed to publish unit status")
	}
}

func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *RealClient) Close() error {
	token := c.client.Publish(StatusTopic(c.opts.StatusPrefix, "availability"), 1, true, "offline")
	token.WaitTimeout(time.Second)
	c.client.Disconnect(1000)
	return nil
}
