package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// DefaultPort is the documented default listening port.
const DefaultPort = "6736"

// TurnServer is one TURN entry published to browser clients.
type TurnServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username"`
	Credential string   `json:"credential"`
}

// ICEServers holds the STUN and TURN configuration for the station.
type ICEServers struct {
	STUN []string     `json:"stun"`
	TURN []TurnServer `json:"turn"`
}

// Signaling holds the externally reachable signaling URL clients connect to.
type Signaling struct {
	URL string `json:"url"`
}

// Sink is the shoutcast-style HTTP endpoint the streaming relay uploads to.
// Credentials may be overridden from the environment so the manifest can be
// committed without secrets.
type Sink struct {
	URL         string `json:"url"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	ContentType string `json:"contentType"`
}

// Station is the on-disk station manifest, read once at startup and served
// (minus sink credentials) at GET /api/station.
type Station struct {
	StationID   string     `json:"stationId"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Public      bool       `json:"public"`
	Signaling   Signaling  `json:"signaling"`
	ICE         ICEServers `json:"ice"`
	Sink        *Sink      `json:"sink,omitempty"`
}

// Config holds the validated process configuration: environment plus the
// station manifest.
type Config struct {
	Station *Station

	Port            string
	LogLevel        string
	DevelopmentMode bool
	AllowedOrigins  string
	StationPath     string
	OTELCollector   string
}

// Load validates the environment and reads the station manifest. Any failure
// here refuses startup.
func Load() (*Config, error) {
	cfg, err := validateEnv()
	if err != nil {
		return nil, err
	}

	station, err := LoadStation(cfg.StationPath)
	if err != nil {
		return nil, err
	}
	cfg.Station = station

	// Environment overrides for sink credentials.
	if station.Sink != nil {
		if u := os.Getenv("SINK_USERNAME"); u != "" {
			station.Sink.Username = u
		}
		if p := os.Getenv("SINK_PASSWORD"); p != "" {
			station.Sink.Password = p
		}
	}

	return cfg, nil
}

// validateEnv validates all environment variables and returns a Config.
// Returns an error listing every invalid variable at once.
func validateEnv() (*Config, error) {
	cfg := &Config{}
	var errs []string

	// Optional: PORT (defaults to 6736)
	cfg.Port = os.Getenv("PORT")
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	} else {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil || port < 1 || port > 65535 {
			errs = append(errs, fmt.Sprintf("PORT must be a valid port number between 1 and 65535 (got '%s')", cfg.Port))
		}
	}

	// Optional: LOG_LEVEL (defaults to "info")
	cfg.LogLevel = os.Getenv("LOG_LEVEL")
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	cfg.DevelopmentMode = os.Getenv("DEVELOPMENT_MODE") == "true"
	cfg.AllowedOrigins = os.Getenv("ALLOWED_ORIGINS")
	cfg.OTELCollector = os.Getenv("OTEL_COLLECTOR_ADDR")

	// Optional: STATION_CONFIG (defaults to ./station.json)
	cfg.StationPath = os.Getenv("STATION_CONFIG")
	if cfg.StationPath == "" {
		cfg.StationPath = "station.json"
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("environment validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return cfg, nil
}

// LoadStation reads and semantically validates the station manifest.
func LoadStation(path string) (*Station, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("station manifest %s: %w", path, err)
	}

	var station Station
	if err := json.Unmarshal(data, &station); err != nil {
		return nil, fmt.Errorf("station manifest %s: %w", path, err)
	}

	if errs := station.validate(); len(errs) > 0 {
		return nil, fmt.Errorf("station manifest %s invalid:\n  - %s", path, strings.Join(errs, "\n  - "))
	}

	return &station, nil
}

func (s *Station) validate() []string {
	var errs []string

	if s.StationID == "" {
		errs = append(errs, "stationId is required")
	}
	if s.Name == "" {
		errs = append(errs, "name is required")
	}
	if s.Signaling.URL == "" {
		errs = append(errs, "signaling.url is required")
	}
	if len(s.ICE.STUN) == 0 && len(s.ICE.TURN) == 0 {
		errs = append(errs, "ice must list at least one STUN or TURN server")
	}
	for i, turn := range s.ICE.TURN {
		if len(turn.URLs) == 0 {
			errs = append(errs, fmt.Sprintf("ice.turn[%d].urls must be non-empty", i))
		}
	}
	if s.Sink != nil {
		if s.Sink.URL == "" {
			errs = append(errs, "sink.url is required when sink is configured")
		}
		if s.Sink.ContentType == "" {
			s.Sink.ContentType = "audio/webm"
		}
	}

	return errs
}
