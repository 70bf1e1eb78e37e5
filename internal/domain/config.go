package domain

import "time"

// Config holds the complete GHOST configuration.
type Config struct {
	Server ServerConfig `json:"server"`

	// Tier picks the deployment shape; Mode picks the analysis depth.
	// Triage is score + escalation only (golden-hour first pass); full
	// adds correlation and case analytics.
	Tier Tier         `json:"tier"`
	Mode AnalysisMode `json:"mode"`

	// Engine knobs
	Analysis AnalysisConfig `json:"analysis"`

	// Backing services
	Repository RepositoryConfig `json:"repository"`
	Cache      CacheConfig      `json:"cache"`
	EventBus   EventBusConfig   `json:"eventBus"`

	Logging LoggingConfig `json:"logging"`
	Tracing TracingConfig `json:"tracing"`
}

// AnalysisMode determines how deep a run goes.
type AnalysisMode string

const (
	// ModeTriage skips correlation for the fastest possible first read of
	// a device. Use during the golden hour after seizure.
	ModeTriage AnalysisMode = "triage"

	// ModeFull runs the whole pipeline including correlation and case
	// analytics. Use for evidentiary reports.
	ModeFull AnalysisMode = "full"
)

// AnalysisConfig holds the engine performance and scoring knobs.
type AnalysisConfig struct {
	// MaxWorkers bounds the scoring worker pool. 0 means NumCPU.
	MaxWorkers int `json:"maxWorkers"`

	// ChunkSize bounds records per intake chunk.
	ChunkSize int `json:"chunkSize"`

	// MemoryLimitMB bounds retained tracker window state.
	MemoryLimitMB int `json:"memoryLimitMb"`

	// TimeoutSeconds cancels a run cooperatively. 0 disables.
	TimeoutSeconds int `json:"timeoutSeconds"`

	// CorrelationWindowHours is the cross-conversation link window.
	CorrelationWindowHours int `json:"correlationWindowHours"`

	// MinTextLength skips keyword/pattern scanning below it.
	MinTextLength int `json:"minTextLength"`

	// Thresholds is the global score-to-tier table.
	Thresholds RiskThresholds `json:"thresholds"`
}

// ServerConfig tunes the HTTP listener.
type ServerConfig struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	ReadTimeout  int    `json:"readTimeout"`  // seconds
	WriteTimeout int    `json:"writeTimeout"` // seconds
}

// LoggingConfig tunes the structured logger.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// TracingConfig tunes OpenTelemetry export.
type TracingConfig struct {
	Enabled      bool   `json:"enabled"`
	ServiceName  string `json:"serviceName"`
	ExporterType string `json:"exporterType"` // stdout, otlp, jaeger
	Endpoint     string `json:"endpoint"`
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierStandalone is a single-examiner workstation: SQLite + channels.
	TierStandalone Tier = "standalone"

	// TierLab is a shared lab server: PostgreSQL + NATS + Redis.
	TierLab Tier = "lab"
)

// DefaultConfig returns a standalone-tier configuration: everything
// in-process, full analysis depth.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 60,
		},
		Tier: TierStandalone,
		Mode: ModeFull,
		Analysis: AnalysisConfig{
			MaxWorkers:             8,
			ChunkSize:              1000,
			MemoryLimitMB:          512,
			TimeoutSeconds:         300,
			CorrelationWindowHours: 24,
			MinTextLength:          2,
			Thresholds:             DefaultRiskThresholds(),
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./ghost.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "ghost",
		},
	}
}

// LabConfig returns a lab-tier configuration for a shared analysis server.
func LabConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierLab
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "ghost",
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
