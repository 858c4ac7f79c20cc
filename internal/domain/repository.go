package domain

import (
	"context"
	"time"
)

// Repository is the persistence collaborator for profiles, transaction
// batches, alerts, interventions, audit logs, and scoring settings.
// Profile writes use upsert-by-id semantics; the caller is responsible
// for serializing concurrent upserts for the same customer id.
type Repository interface {
	// Profile operations
	SaveProfile(ctx context.Context, p *CustomerProfile) error
	GetProfile(ctx context.Context, customerID string) (*CustomerProfile, error)
	ListProfiles(ctx context.Context) ([]*CustomerProfile, error)

	// Transaction batch operations. ReplaceTransactions supersedes the
	// previous batch for the customer wholesale.
	ReplaceTransactions(ctx context.Context, customerID string, txns []Transaction) error
	GetTransactions(ctx context.Context, customerID string) ([]Transaction, error)

	// Alert operations. ListAlerts returns newest first; customerID ""
	// lists across all customers.
	AddAlerts(ctx context.Context, alerts []Alert) error
	ListAlerts(ctx context.Context, customerID string) ([]Alert, error)
	MarkAlertRead(ctx context.Context, alertID string) error
	ClearReadAlerts(ctx context.Context) error

	// Intervention operations, newest first.
	AddInterventions(ctx context.Context, logs []InterventionLog) error
	ListInterventions(ctx context.Context, customerID string) ([]InterventionLog, error)
	UpdateInterventionStatus(ctx context.Context, interventionID string, status InterventionStatus) error

	// Audit log operations, newest first.
	AppendAuditLog(ctx context.Context, entry *AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]AuditLog, error)

	// Scoring settings. GetSettings returns defaults when nothing has
	// been saved yet.
	GetSettings(ctx context.Context) (*Settings, error)
	SaveSettings(ctx context.Context, s *Settings) error

	// Custom alert rule configurations.
	SaveAlertRule(ctx context.Context, rule *AlertRuleConfig) error
	ListAlertRules(ctx context.Context) ([]*AlertRuleConfig, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
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
}
