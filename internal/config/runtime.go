package config

import (
	"fmt"

	"github.com/koding/multiconfig"
	"github.com/rs/zerolog"
)

// Runtime holds process settings. Values come from struct defaults,
// environment variables and command line flags, in that order.
type Runtime struct {
	ConfigFile string `default:"/etc/climate-controller/config.yaml"`
	LogLevel   string `default:"info"`
	LogFile    string

	Broker            string `default:"tcp://localhost:1883"`
	ClientID          string `default:"climate-controller"`
	StatestreamPrefix string `default:"homeassistant/statestream"`
	StatusPrefix      string `default:"climate-controller"`
	EmbeddedBroker    string

	HassAddress string `default:"localhost:8123"`
	HassToken   string

	DBPath   string `default:"data/climate.db"`
	HTTPAddr string `default:":7001"`

	EnableDatadog bool
	DDAgentAddr   string `default:"127.0.0.1:8125"`
	DDNamespace   string `default:"climate."`
	DDTags        []string

	NtfyTopic string

	SafeMode bool
}

// EnvPrefix prefixes the environment variables read by LoadRuntime, e.g.
// CLIMATE_HASS_TOKEN.
const EnvPrefix = "CLIMATE"

func LoadRuntime() (*Runtime, error) {
	return loadRuntime(multiconfig.MultiLoader(
		&multiconfig.TagLoader{},
		&multiconfig.EnvironmentLoader{Prefix: EnvPrefix, CamelCase: true},
		&multiconfig.FlagLoader{CamelCase: true},
	))
}

func loadRuntime(loader multiconfig.Loader) (*Runtime, error) {
	rt := &Runtime{}
	if err := loader.Load(rt); err != nil {
		return nil, fmt.Errorf("load runtime config: %w", err)
	}
	return rt, nil
}

func (r *Runtime) Level() zerolog.Level {
	return parseLogLevel(r.LogLevel)
}

func parseLogLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
