// Package hass talks to the Home Assistant REST API: it reads entity states
// and calls services to drive climate devices, switches and number inputs.
package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/climate-controller/internal/model"
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// State is the subset of /api/states/<entity_id> used here.
type State struct {
	EntityID    string                 `json:"entity_id"`
	State       string                 `json:"state"`
	Attributes  map[string]interface{} `json:"attributes"`
	LastChanged time.Time              `json:"last_changed"`
}

// New creates a client. address may be a bare host:port or a full URL.
func New(address, token string) *Client {
	base := address
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("could not encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("could not create request: %w", err)
	}
	if c.token != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	return data, nil
}

// GetState fetches the current state of a single entity.
func (c *Client) GetState(ctx context.Context, entityID string) (State, error) {
	var st State
	data, err := c.do(ctx, http.MethodGet, "/api/states/"+entityID, nil)
	if err != nil {
		return st, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("could not parse state of %s: %w", entityID, err)
	}
	return st, nil
}

// CallService invokes /api/services/<domain>/<service> with a JSON body.
func (c *Client) CallService(ctx context.Context, domain, service string, data map[string]interface{}) error {
	log.Debug().
		Str("domain", domain).
		Str("service", service).
		Interface("data", data).
		Msg("Calling Home Assistant service")

	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/services/%s/%s", domain, service), data)
	return err
}

func (c *Client) SetSwitchState(ctx context.Context, entityID string, on bool) error {
	service := "turn_off"
	if on {
		service = "turn_on"
	}
	return c.CallService(ctx, "homeassistant", service, map[string]interface{}{"entity_id": entityID})
}

// SetClimateState sets the setpoint together with the HVAC mode, then the
// preset mode when one is given.
func (c *Client) SetClimateState(ctx context.Context, entityID string, st model.ClimateState) error {
	if st.Setpoint != nil || st.HVACMode != "" {
		data := map[string]interface{}{"entity_id": entityID}
		if st.Setpoint != nil {
			data["temperature"] = *st.Setpoint
		}
		if st.HVACMode != "" {
			data["hvac_mode"] = st.HVACMode
		}
		if err := c.CallService(ctx, "climate", "set_temperature", data); err != nil {
			return err
		}
	}
	if st.PresetMode != "" {
		return c.CallService(ctx, "climate", "set_preset_mode", map[string]interface{}{
			"entity_id":   entityID,
			"preset_mode": st.PresetMode,
		})
	}
	return nil
}

// SetInputValue writes to an input_number or number entity.
func (c *Client) SetInputValue(ctx context.Context, entityID string, value float64) error {
	domain := "number"
	if i := strings.Index(entityID, "."); i > 0 {
		domain = entityID[:i]
	}
	return c.CallService(ctx, domain, "set_value", map[string]interface{}{
		"entity_id": entityID,
		"value":     value,
	})
}
