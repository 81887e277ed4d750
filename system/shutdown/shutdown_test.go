package shutdown

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/thatsimonsguy/climate-controller/internal/config"
	"github.com/thatsimonsguy/climate-controller/internal/relay"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestShutdown_Order(t *testing.T) {
	opener := relay.NewFakeOpener()
	bank, err := relay.NewBank([]config.Relay{
		{Entity: "switch.bathroom_floor", Chip: "gpiochip0", Line: 17, ActiveHigh: true},
	}, opener.Open, false)
	assert.NoError(t, err)
	assert.NoError(t, bank.Set("switch.bathroom_floor", true))

	var order []string
	Shutdown(
		func() { order = append(order, "controllers") },
		bank,
		closerFunc(func() error { order = append(order, "mqtt"); return nil }),
		nil,
		closerFunc(func() error { order = append(order, "db"); return errors.New("busy") }),
	)

	assert.Equal(t, []string{"controllers", "mqtt", "db"}, order)
	assert.Equal(t, []int{0, 1, 0}, opener.Lines[17].Values)
	assert.True(t, opener.Lines[17].Closed)
}

func TestShutdown_NothingConfigured(t *testing.T) {
	assert.NotPanics(t, func() { Shutdown(nil, nil, []io.Closer{}...) })
}
