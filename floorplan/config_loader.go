package floorplan

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	DefaultStorageDir    = "./static/floorplans"
	DefaultStateFile     = "floorplans.json"
	DefaultHTTPPort      = 8080
	DefaultRateLimit     = 120
	DefaultWorkers       = 2
	DefaultQueueSize     = 64
	DefaultPublishPrefix = "blemap"
	DefaultMerakiBaseURL = "https://api.meraki.com/api/v1"
)

// DefaultConfig returns a config with every default applied
func DefaultConfig() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// LoadConfig loads the configuration from a YAML file and applies defaults
// and environment overrides. An empty path skips the file and builds the
// config from defaults and the environment alone.
func LoadConfig(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("parsing config YAML: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Render.FontSize <= 0 {
		c.Render.FontSize = DefaultFontSize
	}
	if c.Render.AnnotatedPrefix == "" {
		c.Render.AnnotatedPrefix = DefaultAnnotatedPrefix
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = DefaultStorageDir
	}
	if c.Storage.StateFile == "" {
		c.Storage.StateFile = DefaultStateFile
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = DefaultHTTPPort
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = DefaultRateLimit
	}
	if c.Worker.Count == 0 {
		c.Worker.Count = DefaultWorkers
	}
	if c.Worker.QueueSize == 0 {
		c.Worker.QueueSize = DefaultQueueSize
	}
	if c.MQTT.PublishPrefix == "" {
		c.MQTT.PublishPrefix = DefaultPublishPrefix
	}
	if c.Meraki.BaseURL == "" {
		c.Meraki.BaseURL = DefaultMerakiBaseURL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// applyEnv lets the environment override file values
func (c *Config) applyEnv() error {
	setString := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString(&c.Meraki.APIKey, "MERAKI_DASHBOARD_API_KEY")
	setString(&c.Meraki.Validator, "MERAKI_VALIDATION_KEY")
	setString(&c.Meraki.Secret, "MERAKI_LOCATION_DATA_SECRET")
	setString(&c.Meraki.Organization, "MERAKI_ORGANIZATION_NAME")
	setString(&c.Filter.UUID, "MERAKI_BLE_UUID_FILTER")
	setString(&c.MQTT.Broker, "MQTT_BROKER")
	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.Logging.Format, "LOG_FORMAT")

	if v := os.Getenv("MERAKI_FILTER_BLE_TAGS"); v != "" {
		enabled, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MERAKI_FILTER_BLE_TAGS: %w", err)
		}
		c.Filter.Enabled = enabled
	}
	if v := os.Getenv("MERAKI_DASHBOARD_FONT_SIZE"); v != "" {
		size, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("MERAKI_DASHBOARD_FONT_SIZE: %w", err)
		}
		c.Render.FontSize = size
	}
	return nil
}

func (c *Config) validate() error {
	if c.Render.FontSize <= 0 {
		return fmt.Errorf("render.fontSize must be positive")
	}
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if c.Worker.Count < 0 {
		return fmt.Errorf("worker.count must not be negative")
	}
	if c.Worker.QueueSize < 0 {
		return fmt.Errorf("worker.queueSize must not be negative")
	}
	if c.Filter.Enabled && c.Filter.UUID == "" {
		return fmt.Errorf("filter.uuid is required when filter.enabled is set")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// ValidateWebhook checks the values the webhook receiver needs
func (c *Config) ValidateWebhook() error {
	if c.Meraki.Validator == "" {
		return fmt.Errorf("meraki.validator is required")
	}
	if c.Meraki.Secret == "" {
		return fmt.Errorf("meraki.secret is required")
	}
	return nil
}

// ValidateSync checks the values the dashboard sync needs
func (c *Config) ValidateSync() error {
	if c.Meraki.APIKey == "" {
		return fmt.Errorf("meraki.apiKey is required for floor plan sync")
	}
	if c.Meraki.Organization == "" {
		return fmt.Errorf("meraki.organization is required for floor plan sync")
	}
	return nil
}

// StatePath resolves the state file. A bare filename lives in the storage dir.
func (c *Config) StatePath() string {
	if c.Storage.StateFile == "" || filepath.Base(c.Storage.StateFile) != c.Storage.StateFile {
		return c.Storage.StateFile
	}
	return filepath.Join(c.Storage.Dir, c.Storage.StateFile)
}
