package notifications

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-controller/internal/model"
)

const DefaultBaseURL = "https://ntfy.sh"

// Notifier posts alerts to an ntfy topic.
type Notifier struct {
	client  *http.Client
	baseURL string
	topic   string

	mu      sync.Mutex
	failing map[string]bool
}

// New returns nil when no topic is configured. A nil Notifier drops alerts.
func New(topic, baseURL string) *Notifier {
	if topic == "" {
		log.Warn().Msg("Ntfy topic not configured - notifications disabled")
		return nil
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	log.Info().
		Str("topic", topic).
		Msg("Ntfy notifications initialized")

	return &Notifier{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		topic:   topic,
		failing: make(map[string]bool),
	}
}

// Send sends a notification to ntfy
func (n *Notifier) Send(title, message string) error {
	if n == nil {
		return fmt.Errorf("notifications not initialized")
	}

	payload := map[string]interface{}{
		"topic":   n.topic,
		"title":   title,
		"message": message,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	// ntfy accepts JSON publishing on the root url, the topic is in the body
	req, err := http.NewRequest("POST", n.baseURL+"/", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned non-success status: %d", resp.StatusCode)
	}

	log.Debug().
		Str("title", title).
		Int("status", resp.StatusCode).
		Msg("Notification sent successfully")

	return nil
}

// Observe alerts when a unit starts failing to reach its device and when it
// recovers. It runs on the event loop, so sending happens in the background.
func (n *Notifier) Observe(ev model.UnitEvent) {
	if n == nil || ev.Dispatched == nil {
		return
	}
	unit := ev.Snapshot.Unit
	failed := ev.Err != nil

	n.mu.Lock()
	changed := n.failing[unit] != failed
	n.failing[unit] = failed
	n.mu.Unlock()
	if !changed {
		return
	}

	title := fmt.Sprintf("Climate unit %s recovered", unit)
	msg := fmt.Sprintf("%s accepted commands again", ev.Snapshot.Device.ID)
	if failed {
		title = fmt.Sprintf("Climate unit %s failing", unit)
		msg = fmt.Sprintf("Could not command %s: %v", ev.Snapshot.Device.ID, ev.Err)
	}
	go n.sendLogged(title, msg)
}

func (n *Notifier) sendLogged(title, msg string) {
	if err := n.Send(title, msg); err != nil {
		log.Warn().Err(err).Str("title", title).Msg("Failed to send notification")
	}
}
