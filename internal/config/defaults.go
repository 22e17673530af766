package config

import "time"

func DefaultConfig() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			ConnectionName: "presence-liveview",
			MaxReconnects:  -1,
			ReconnectWait:  Duration(2 * time.Second),
		},
		Directory: DirectoryConfig{
			Backend:        "nats",
			SubjectPrefix:  "directory",
			RequestTimeout: Duration(5 * time.Second),
			Redis: RedisConfig{
				KeyPrefix: "entity:",
			},
		},
		Presence: PresenceConfig{
			SubjectPrefix:  "presence",
			EventsSubject:  "presence.events.>",
			RequestTimeout: Duration(5 * time.Second),
			EventBuffer:    256,
		},
		Resolver: ResolverConfig{
			Lowercase: true,
		},
		LiveView: LiveViewConfig{
			SubscriberBuffer:  16,
			CacheWriteThrough: true,
		},
		Cache: CacheConfig{
			Enabled: false,
			Path:    "/var/lib/plv/cache.db",
		},
		API: APIConfig{
			Enabled: true,
			Listen:  ":8080",
			NATSResponder: NATSResponderConfig{
				Enabled:       false,
				SubjectPrefix: "plv",
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
				Listen:  ":9090",
				Path:    "/metrics",
			},
			Health: HealthConfig{
				Enabled:       true,
				Listen:        ":8081",
				LivenessPath:  "/healthz",
				ReadinessPath: "/readyz",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
				Output: "stderr",
			},
		},
	}
}
