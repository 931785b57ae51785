package floorplan

// Config represents the full configuration file
type Config struct {
	Meraki  MerakiConfig  `yaml:"meraki" json:"meraki"`
	Filter  FilterConfig  `yaml:"filter" json:"filter"`
	Render  RenderConfig  `yaml:"render" json:"render"`
	Storage StorageConfig `yaml:"storage" json:"storage"`
	HTTP    HTTPConfig    `yaml:"http" json:"http"`
	MQTT    MQTTConfig    `yaml:"mqtt" json:"mqtt"`
	Worker  WorkerConfig  `yaml:"worker" json:"worker"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// MerakiConfig holds dashboard credentials and the webhook shared values
type MerakiConfig struct {
	APIKey       string `yaml:"apiKey,omitempty" json:"-"`
	Validator    string `yaml:"validator" json:"validator"`
	Secret       string `yaml:"secret,omitempty" json:"-"`
	Organization string `yaml:"organization" json:"organization"`
	BaseURL      string `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	Sync         bool   `yaml:"sync" json:"sync"` // download floor plans on service start
}

// FilterConfig restricts drawn devices to UUIDs containing a substring
type FilterConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	UUID    string `yaml:"uuid" json:"uuid"`
}

// RenderConfig controls the annotated outputs
type RenderConfig struct {
	FontSize        int    `yaml:"fontSize" json:"fontSize"`
	AnnotatedPrefix string `yaml:"annotatedPrefix" json:"annotatedPrefix"`
	SVGOverlay      bool   `yaml:"svgOverlay" json:"svgOverlay"`
	GeoJSON         bool   `yaml:"geojson" json:"geojson"`
}

// StorageConfig locates floor images and persisted metadata
type StorageConfig struct {
	Dir       string `yaml:"dir" json:"dir"`
	StateFile string `yaml:"stateFile" json:"stateFile"`
}

// HTTPConfig holds webhook server settings
type HTTPConfig struct {
	Port      int `yaml:"port" json:"port"`
	RateLimit int `yaml:"rateLimit" json:"rateLimit"` // webhook requests per minute per IP
}

// MQTTConfig holds MQTT connection settings. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker        string `yaml:"broker" json:"broker"`
	PublishPrefix string `yaml:"publishPrefix" json:"publishPrefix"`
	IngestTopic   string `yaml:"ingestTopic,omitempty" json:"ingestTopic,omitempty"`
	ClientID      string `yaml:"clientId" json:"clientId"`
	Username      string `yaml:"username,omitempty" json:"username,omitempty"`
	Password      string `yaml:"password,omitempty" json:"-"`
}

// WorkerConfig sizes the render dispatcher
type WorkerConfig struct {
	Count     int `yaml:"count" json:"count"`
	QueueSize int `yaml:"queueSize" json:"queueSize"`
}

// LoggingConfig selects log level and output format
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// UUIDFilter returns the placement filter described by the config
func (c *Config) UUIDFilter() UUIDFilter {
	return UUIDFilter{Enabled: c.Filter.Enabled, Substring: c.Filter.UUID}
}
