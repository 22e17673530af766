package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	NATS          NATSConfig          `yaml:"nats"`
	Directory     DirectoryConfig     `yaml:"directory"`
	Presence      PresenceConfig      `yaml:"presence"`
	Resolver      ResolverConfig      `yaml:"resolver"`
	LiveView      LiveViewConfig      `yaml:"liveview"`
	Cache         CacheConfig         `yaml:"cache"`
	API           APIConfig           `yaml:"api"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type NATSConfig struct {
	URL             string    `yaml:"url"`
	CredentialsFile string    `yaml:"credentials_file"`
	NKeySeedFile    string    `yaml:"nkey_seed_file"`
	TLS             TLSConfig `yaml:"tls"`
	ConnectionName  string    `yaml:"connection_name"`
	MaxReconnects   int       `yaml:"max_reconnects"`
	ReconnectWait   Duration  `yaml:"reconnect_wait"`
}

type TLSConfig struct {
	CAFile   string `yaml:"ca_file"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// DirectoryConfig selects and configures the entity fetcher backend.
type DirectoryConfig struct {
	Backend        string      `yaml:"backend"` // "nats" or "redis"
	SubjectPrefix  string      `yaml:"subject_prefix"`
	RequestTimeout Duration    `yaml:"request_timeout"`
	Redis          RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// PresenceConfig configures the presence service client and event stream.
type PresenceConfig struct {
	SubjectPrefix  string   `yaml:"subject_prefix"`
	EventsSubject  string   `yaml:"events_subject"`
	RequestTimeout Duration `yaml:"request_timeout"`
	EventBuffer    int      `yaml:"event_buffer"`
}

// ResolverConfig controls the Key -> InternalID derivation.
type ResolverConfig struct {
	StripPrefix string `yaml:"strip_prefix"`
	Lowercase   bool   `yaml:"lowercase"`
}

type LiveViewConfig struct {
	SubscriberBuffer  int  `yaml:"subscriber_buffer"`
	CacheWriteThrough bool `yaml:"cache_write_through"`
}

type CacheConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	NoSync  bool   `yaml:"no_sync"`
}

type APIConfig struct {
	Enabled       bool                `yaml:"enabled"`
	Listen        string              `yaml:"listen"`
	JWTSecret     string              `yaml:"jwt_secret"`
	NATSResponder NATSResponderConfig `yaml:"nats_responder"`
}

type NATSResponderConfig struct {
	Enabled       bool   `yaml:"enabled"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
	Health  HealthConfig  `yaml:"health"`
	Logging LoggingConfig `yaml:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

type HealthConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Listen        string `yaml:"listen"`
	LivenessPath  string `yaml:"liveness_path"`
	ReadinessPath string `yaml:"readiness_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.NATS.URL == "" {
		return fmt.Errorf("nats.url is required")
	}

	switch c.Directory.Backend {
	case "nats":
		if c.Directory.SubjectPrefix == "" {
			return fmt.Errorf("directory.subject_prefix is required for the nats backend")
		}
	case "redis":
		if c.Directory.Redis.Addr == "" {
			return fmt.Errorf("directory.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("directory.backend must be %q or %q, got %q", "nats", "redis", c.Directory.Backend)
	}

	if c.Presence.SubjectPrefix == "" {
		return fmt.Errorf("presence.subject_prefix is required")
	}
	if c.Presence.EventsSubject == "" {
		return fmt.Errorf("presence.events_subject is required")
	}
	if c.Presence.RequestTimeout <= 0 {
		return fmt.Errorf("presence.request_timeout must be > 0")
	}

	if c.LiveView.SubscriberBuffer <= 0 {
		return fmt.Errorf("liveview.subscriber_buffer must be > 0")
	}

	if c.Cache.Enabled && c.Cache.Path == "" {
		return fmt.Errorf("cache.path is required when cache is enabled")
	}

	return nil
}

// Duration wraps time.Duration for YAML unmarshaling of strings like "5s", "2m".
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}
