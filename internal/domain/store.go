package domain

import (
	"context"
	"time"
)

// GraphStore is the narrow query interface to the transaction graph.
// Implementations own connection lifecycle: connectivity is verified
// at construction (fail fast) and every query runs in a scoped session
// released on all exit paths.
type GraphStore interface {
	// Write path: a transaction node with its PERFORMED / USING_DEVICE /
	// FROM_LOCATION edges, and SENT_TO transfer edges.
	SaveAnalysis(ctx context.Context, tx *Transaction) error
	SaveTransfer(ctx context.Context, t *Transfer) error

	// Read path
	GetTransaction(ctx context.Context, id string) (*Transaction, error)
	ListAccounts(ctx context.Context) ([]*Account, error)
	ListDevices(ctx context.Context) ([]*Device, error)
	RecentTransactions(ctx context.Context, limit int) ([]*Transaction, error)
	HighRiskTransactions(ctx context.Context, threshold float64) ([]*Transaction, error)

	// TransfersAbove returns all SENT_TO edges with amount strictly
	// above the floor, for pattern detection.
	TransfersAbove(ctx context.Context, floor float64) ([]Transfer, error)

	// DashboardCounts returns null-safe aggregates over the full
	// transaction set.
	DashboardCounts(ctx context.Context, highRiskThreshold float64) (*StatsRow, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// GraphStoreConfig holds configuration for graph store initialization.
type GraphStoreConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Startup connectivity check retries (transient failures only)
	ConnectRetries int
}
