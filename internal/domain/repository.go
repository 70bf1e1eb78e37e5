// Package domain defines the core interfaces and types for GHOST.
package domain

import (
	"context"
	"time"
)

// Repository persists runs, their flattened findings, and per-case module
// rule books. Every method takes the caseID so that evidence from one
// investigation can never leak into another through the storage layer.
type Repository interface {
	// Module rule books. Saving an existing (case, name) pair replaces it.
	SaveModuleConfig(ctx context.Context, caseID string, cfg *ModuleConfig) error
	GetModuleConfig(ctx context.Context, caseID string, name ModuleName) (*ModuleConfig, error)
	ListModuleConfigs(ctx context.Context, caseID string) ([]*ModuleConfig, error)
	DeleteModuleConfig(ctx context.Context, caseID string, name ModuleName) error

	// Analysis runs. GetRun loads the full stored summary; ListRuns returns
	// headers only.
	SaveRun(ctx context.Context, caseID string, run *Run) error
	GetRun(ctx context.Context, caseID string, runID string) (*Run, error)
	ListRuns(ctx context.Context, caseID string, since time.Time) ([]*Run, error)

	// Alerts flattened out of a run's summary so they can be queried
	// without decoding the whole document.
	SaveAlerts(ctx context.Context, caseID string, runID string, alerts []Alert) error
	ListAlerts(ctx context.Context, caseID string, runID string) ([]Alert, error)

	// Cross-conversation correlation links, stored per run.
	SaveLinks(ctx context.Context, caseID string, runID string, links []CorrelationLink) error
	ListLinks(ctx context.Context, caseID string, runID string) ([]CorrelationLink, error)

	Ping(ctx context.Context) error
	Close() error
}

// RepositoryConfig selects and tunes the storage driver.
type RepositoryConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string

	// SQLitePath is the database file for the standalone tier.
	SQLitePath string

	// PostgreSQL settings for the lab tier.
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool limits. Zero leaves the driver default in place.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
