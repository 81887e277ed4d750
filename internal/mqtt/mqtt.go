// Package mqtt receives entity state changes from Home Assistant's
// mqtt_statestream integration and publishes unit status snapshots.
package mqtt

import (
	"encoding/json"
	"strings"

	"github.com/thatsimonsguy/climate-controller/internal/model"
)

// StateHandler receives one raw entity state per statestream message.
type StateHandler func(entityID, raw string)

// Client is the broker connection used by the controller.
type Client interface {
	// Subscribe starts delivering state messages below the statestream prefix.
	Subscribe(handler StateHandler) error

	// PublishStatus sends a retained unit snapshot.
	PublishStatus(snap model.UnitSnapshot) error

	IsConnected() bool

	Close() error
}

// StateTopicFilter is the subscription filter for every entity state.
func StateTopicFilter(prefix string) string {
	return strings.TrimRight(prefix, "/") + "/+/+/state"
}

// StatusTopic is where the snapshot of a unit is published.
func StatusTopic(prefix, unit string) string {
	return strings.TrimRight(prefix, "/") + "/" + unit + "/state"
}

// EntityFromTopic maps "<prefix>/<domain>/<object_id>/state" to
// "<domain>.<object_id>". Attribute topics are not states and are rejected.
func EntityFromTopic(prefix, topic string) (string, bool) {
	p := strings.TrimRight(prefix, "/") + "/"
	if !strings.HasPrefix(topic, p) {
		return "", false
	}
	parts := strings.Split(strings.TrimPrefix(topic, p), "/")
	if len(parts) != 3 || parts[2] != "state" || parts[0] == "" || parts[1] == "" {
		return "", false
	}
	return parts[0] + "." + parts[1], true
}

// ParseStatePayload returns the raw state. Statestream sends plain values,
// some setups JSON encode them as strings.
func ParseStatePayload(payload []byte) string {
	s := strings.TrimSpace(string(payload))
	if strings.HasPrefix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal([]byte(s), &unquoted); err == nil {
			return unquoted
		}
	}
	return s
}

// FormatStatus creates the JSON payload for a unit snapshot.
func FormatStatus(snap model.UnitSnapshot) ([]byte, error) {
	return json.Marshal(snap)
}
