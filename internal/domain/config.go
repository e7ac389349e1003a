package domain

// Config holds the complete Sentinel configuration.
type Config struct {
	// Server settings
	Server ServerConfig `json:"server"`

	// Tier determines feature availability
	Tier Tier `json:"tier"`

	// Component configurations
	GraphStore GraphStoreConfig `json:"graphStore"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`
	Model      ModelConfig      `json:"model"`
	Scan       ScanConfig       `json:"scan"`

	// Observability
	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// ModelConfig holds settings for the external risk model service.
type ModelConfig struct {
	// URL is the scoring endpoint.
	URL string `json:"url"`

	// TimeoutSecs bounds each scoring call. The model is on the
	// per-transaction critical path; a hung call must not hang the
	// caller.
	TimeoutSecs int `json:"timeoutSecs"`
}

// ScanConfig holds pattern-detection thresholds and scheduling.
type ScanConfig struct {
	// Detector thresholds, in currency units.
	CycleFloor     float64 `json:"cycleFloor"`
	DecayHighFloor float64 `json:"decayHighFloor"`
	DecayLowFloor  float64 `json:"decayLowFloor"`
	DecayTolerance float64 `json:"decayTolerance"`

	// IntervalSecs between background scans (worker).
	IntervalSecs int `json:"intervalSecs"`

	// TimeoutSecs bounds a single full-graph scan so a slow scan
	// never blocks transaction approval.
	TimeoutSecs int `json:"timeoutSecs"`

	// CacheTTLSecs for cached scan and stats results.
	CacheTTLSecs int `json:"cacheTtlSecs"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the product tier.
type Tier string

const (
	// TierCommunity is the free tier with SQLite + channels
	TierCommunity Tier = "community"

	// TierPro is the paid tier with PostgreSQL + NATS + Redis
	TierPro Tier = "pro"

	// TierEnterprise includes multi-node, SSO, etc.
	TierEnterprise Tier = "enterprise"
)

// DefaultConfig returns a default configuration for Community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
		},
		Tier: TierCommunity,
		GraphStore: GraphStoreConfig{
			Driver:         "sqlite",
			SQLitePath:     "./sentinel.db",
			ConnectRetries: 3,
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     300, // 5 minutes
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Model: ModelConfig{
			URL:         "http://localhost:8000/predict",
			TimeoutSecs: 3,
		},
		Scan: ScanConfig{
			CycleFloor:     50000,
			DecayHighFloor: 90000,
			DecayLowFloor:  80000,
			DecayTolerance: 5000,
			IntervalSecs:   300,
			TimeoutSecs:    60,
			CacheTTLSecs:   30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "sentinel",
		},
	}
}

// ProConfig returns a configuration for Pro tier.
// Pro adds PostgreSQL, Redis two-phase caching, NATS and the
// background scan worker.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.GraphStore = GraphStoreConfig{
		Driver:         "postgres",
		PostgresHost:   "localhost",
		PostgresPort:   5432,
		PostgresDB:     "sentinel",
		ConnectRetries: 3,
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
	}
	cfg.Tracing.Enabled = true
	return cfg
}
