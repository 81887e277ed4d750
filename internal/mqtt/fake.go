package mqtt

import (
	"github.com/thatsimonsguy/climate-controller/internal/model"
)

// FakeClient records published snapshots and lets tests inject messages.
type FakeClient struct {
	Prefix string

	Handler StateHandler

	// Statuses contains every snapshot that was published.
	Statuses []model.UnitSnapshot

	PublishError error

	Connected bool
	Closed    bool
}

func NewFakeClient(prefix string) *FakeClient {
	return &FakeClient{Prefix: prefix, Connected: true}
}

func (f *FakeClient) Subscribe(handler StateHandler) error {
	f.Handler = handler
	return nil
}

// Deliver simulates a broker message on topic.
func (f *FakeClient) Deliver(topic string, payload []byte) {
	if f.Handler == nil {
		return
	}
	id, ok := EntityFromTopic(f.Prefix, topic)
	if !ok {
		return
	}
	f.Handler(id, ParseStatePayload(payload))
}

func (f *FakeClient) PublishStatus(snap model.UnitSnapshot) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Statuses = append(f.Statuses, snap)
	return nil
}

func (f *FakeClient) Observe(ev model.UnitEvent) {
	_ = f.PublishStatus(ev.Snapshot)
}

func (f *FakeClient) IsConnected() bool {
	return f.Connected
}

func (f *FakeClient) Close() error {
	f.Closed = true
	return nil
}
