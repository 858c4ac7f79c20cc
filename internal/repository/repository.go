// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// defaultAuditLimit caps audit listings when the caller does not ask for
// a specific count.
const defaultAuditLimit = 500

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveProfile upserts a customer profile by id.
func (r *SQLRepository) SaveProfile(ctx context.Context, p *domain.CustomerProfile) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: profile with customer id is required", ErrInvalidInput)
	}

	features, _ := json.Marshal(p.Features)
	history, _ := json.Marshal(p.UploadHistory)

	query := `
		INSERT INTO customers (
			id, name, segment, risk_score, band, default_probability,
			days_to_delinquency, features, data_confidence,
			intervention_tier, intervention_text, notes, status,
			last_updated, upload_history
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			segment = excluded.segment,
			risk_score = excluded.risk_score,
			band = excluded.band,
			default_probability = excluded.default_probability,
			days_to_delinquency = excluded.days_to_delinquency,
			features = excluded.features,
			data_confidence = excluded.data_confidence,
			intervention_tier = excluded.intervention_tier,
			intervention_text = excluded.intervention_text,
			notes = excluded.notes,
			status = excluded.status,
			last_updated = excluded.last_updated,
			upload_history = excluded.upload_history
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.Name, p.Segment, p.RiskScore, p.Band,
		p.PredictedDefaultProbability, p.EstimatedDaysToDelinquency,
		string(features), p.DataConfidenceScore,
		p.RecommendedInterventionTier, p.RecommendedInterventionText,
		p.Notes, p.Status, p.LastUpdated, string(history),
	)
	return err
}

func scanProfile(scan func(dest ...any) error) (*domain.CustomerProfile, error) {
	var p domain.CustomerProfile
	var features, history string

	err := scan(
		&p.ID, &p.Name, &p.Segment, &p.RiskScore, &p.Band,
		&p.PredictedDefaultProbability, &p.EstimatedDaysToDelinquency,
		&features, &p.DataConfidenceScore,
		&p.RecommendedInterventionTier, &p.RecommendedInterventionText,
		&p.Notes, &p.Status, &p.LastUpdated, &history,
	)
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(features), &p.Features)
	json.Unmarshal([]byte(history), &p.UploadHistory)
	return &p, nil
}

const profileColumns = `id, name, segment, risk_score, band, default_probability,
	days_to_delinquency, features, data_confidence,
	intervention_tier, intervention_text, notes, status,
	last_updated, upload_history`

// GetProfile retrieves a customer profile by id.
func (r *SQLRepository) GetProfile(ctx context.Context, customerID string) (*domain.CustomerProfile, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customerID is required", ErrInvalidInput)
	}

	query := `SELECT ` + profileColumns + ` FROM customers WHERE id = ?`

	row := r.db.QueryRowContext(ctx, r.rebind(query), customerID)
	p, err := scanProfile(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProfiles retrieves all customer profiles, highest risk first.
func (r *SQLRepository) ListProfiles(ctx context.Context) ([]*domain.CustomerProfile, error) {
	query := `SELECT ` + profileColumns + ` FROM customers ORDER BY risk_score DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.CustomerProfile
	for rows.Next() {
		p, err := scanProfile(rows.Scan)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// ReplaceTransactions supersedes the customer's stored batch wholesale.
// The seq column preserves the validated batch order across round-trips.
func (r *SQLRepository) ReplaceTransactions(ctx context.Context, customerID string, txns []domain.Transaction) error {
	if customerID == "" {
		return fmt.Errorf("%w: customerID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM transactions WHERE customer_id = ?`), customerID); err != nil {
		return err
	}

	insert := r.rebind(`
		INSERT INTO transactions (
			id, customer_id, date, amount, type, category, balance, merchant, channel, seq
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for i, t := range txns {
		if _, err := tx.ExecContext(ctx, insert,
			t.ID, customerID, t.Date, t.Amount, t.Type,
			t.Category, t.Balance, t.Merchant, t.Channel, i,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetTransactions retrieves the customer's current batch in stored order.
func (r *SQLRepository) GetTransactions(ctx context.Context, customerID string) ([]domain.Transaction, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customerID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, customer_id, date, amount, type, category, balance, merchant, channel
		FROM transactions
		WHERE customer_id = ?
		ORDER BY seq
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(
			&t.ID, &t.CustomerID, &t.Date, &t.Amount, &t.Type,
			&t.Category, &t.Balance, &t.Merchant, &t.Channel,
		); err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

// AddAlerts appends generated alerts.
func (r *SQLRepository) AddAlerts(ctx context.Context, alerts []domain.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert := r.rebind(`
		INSERT INTO alerts (
			id, customer_id, level, title, detail, signals,
			created_at, read, action, priority_score
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for _, a := range alerts {
		signals, _ := json.Marshal(a.Signals)
		read := 0
		if a.Read {
			read = 1
		}
		if _, err := tx.ExecContext(ctx, insert,
			a.ID, a.CustomerID, a.Level, a.Title, a.Detail, string(signals),
			a.CreatedAt, read, a.Action, a.PriorityScore,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListAlerts returns alerts newest first. An empty customerID lists
// across all customers.
func (r *SQLRepository) ListAlerts(ctx context.Context, customerID string) ([]domain.Alert, error) {
	query := `
		SELECT id, customer_id, level, title, detail, signals,
			   created_at, read, action, priority_score
		FROM alerts
	`
	var args []any
	if customerID != "" {
		query += ` WHERE customer_id = ?`
		args = append(args, customerID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []domain.Alert
	for rows.Next() {
		var a domain.Alert
		var signals string
		var read int
		if err := rows.Scan(
			&a.ID, &a.CustomerID, &a.Level, &a.Title, &a.Detail, &signals,
			&a.CreatedAt, &read, &a.Action, &a.PriorityScore,
		); err != nil {
			return nil, err
		}
		a.Read = read == 1
		json.Unmarshal([]byte(signals), &a.Signals)
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// MarkAlertRead flips the read flag on one alert.
func (r *SQLRepository) MarkAlertRead(ctx context.Context, alertID string) error {
	if alertID == "" {
		return fmt.Errorf("%w: alertID is required", ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx, r.rebind(`UPDATE alerts SET read = 1 WHERE id = ?`), alertID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ClearReadAlerts bulk-deletes read alerts; unread alerts survive.
func (r *SQLRepository) ClearReadAlerts(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM alerts WHERE read = 1`)
	return err
}

// AddInterventions appends intervention log entries.
func (r *SQLRepository) AddInterventions(ctx context.Context, logs []domain.InterventionLog) error {
	if len(logs) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	insert := r.rebind(`
		INSERT INTO interventions (
			id, customer_id, tier, channel, message, created_at, status, operator
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for _, l := range logs {
		if _, err := tx.ExecContext(ctx, insert,
			l.ID, l.CustomerID, l.Tier, l.Channel, l.Message,
			l.CreatedAt, l.Status, l.Operator,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ListInterventions returns intervention logs newest first. An empty
// customerID lists across all customers.
func (r *SQLRepository) ListInterventions(ctx context.Context, customerID string) ([]domain.InterventionLog, error) {
	query := `
		SELECT id, customer_id, tier, channel, message, created_at, status, operator
		FROM interventions
	`
	var args []any
	if customerID != "" {
		query += ` WHERE customer_id = ?`
		args = append(args, customerID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.InterventionLog
	for rows.Next() {
		var l domain.InterventionLog
		if err := rows.Scan(
			&l.ID, &l.CustomerID, &l.Tier, &l.Channel, &l.Message,
			&l.CreatedAt, &l.Status, &l.Operator,
		); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

// UpdateInterventionStatus moves one intervention through its delivery
// lifecycle.
func (r *SQLRepository) UpdateInterventionStatus(ctx context.Context, interventionID string, status domain.InterventionStatus) error {
	if interventionID == "" {
		return fmt.Errorf("%w: interventionID is required", ErrInvalidInput)
	}

	result, err := r.db.ExecContext(ctx,
		r.rebind(`UPDATE interventions SET status = ? WHERE id = ?`), status, interventionID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// AppendAuditLog stores one audit record.
func (r *SQLRepository) AppendAuditLog(ctx context.Context, entry *domain.AuditLog) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("%w: audit entry with id is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(entry.Metadata)

	query := `
		INSERT INTO audit_logs (id, type, actor, description, timestamp, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, entry.Type, entry.Actor, entry.Description,
		entry.Timestamp, string(metadata),
	)
	return err
}

// ListAuditLogs returns audit records newest first, capped at limit.
func (r *SQLRepository) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditLog, error) {
	if limit <= 0 {
		limit = defaultAuditLimit
	}

	query := `
		SELECT id, type, actor, description, timestamp, metadata
		FROM audit_logs
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditLog
	for rows.Next() {
		var e domain.AuditLog
		var metadata string
		if err := rows.Scan(&e.ID, &e.Type, &e.Actor, &e.Description, &e.Timestamp, &metadata); err != nil {
			return nil, err
		}
		if metadata != "" {
			json.Unmarshal([]byte(metadata), &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetSettings returns the stored scoring settings, or the defaults when
// none have been saved yet.
func (r *SQLRepository) GetSettings(ctx context.Context) (*domain.Settings, error) {
	var weights, toggles string

	err := r.db.QueryRowContext(ctx,
		r.rebind(`SELECT weights, toggles FROM settings WHERE id = ?`), 1,
	).Scan(&weights, &toggles)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.DefaultSettings(), nil
	}
	if err != nil {
		return nil, err
	}

	s := domain.DefaultSettings()
	json.Unmarshal([]byte(weights), &s.Weights)
	json.Unmarshal([]byte(toggles), &s.Toggles)
	return s, nil
}

// SaveSettings upserts the single scoring settings row.
func (r *SQLRepository) SaveSettings(ctx context.Context, s *domain.Settings) error {
	if s == nil {
		return fmt.Errorf("%w: settings are required", ErrInvalidInput)
	}

	weights, _ := json.Marshal(s.Weights)
	toggles, _ := json.Marshal(s.Toggles)

	query := `
		INSERT INTO settings (id, weights, toggles, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			weights = excluded.weights,
			toggles = excluded.toggles,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		1, string(weights), string(toggles), time.Now().UTC())
	return err
}

// SaveAlertRule upserts a custom alert rule configuration.
func (r *SQLRepository) SaveAlertRule(ctx context.Context, rule *domain.AlertRuleConfig) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule with id is required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO alert_rules (
			id, name, description, expression, level, action,
			title, detail, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			level = excluded.level,
			action = excluded.action,
			title = excluded.title,
			detail = excluded.detail,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`
	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		rule.Level, rule.Action, rule.Title, rule.Detail,
		enabled, now, now,
	)
	return err
}

// ListAlertRules retrieves all alert rule configurations.
func (r *SQLRepository) ListAlertRules(ctx context.Context) ([]*domain.AlertRuleConfig, error) {
	query := `
		SELECT id, name, description, expression, level, action, title, detail, enabled
		FROM alert_rules
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.AlertRuleConfig
	for rows.Next() {
		var cfg domain.AlertRuleConfig
		var enabled int
		if err := rows.Scan(
			&cfg.ID, &cfg.Name, &cfg.Description, &cfg.Expression,
			&cfg.Level, &cfg.Action, &cfg.Title, &cfg.Detail, &enabled,
		); err != nil {
			return nil, err
		}
		cfg.Enabled = enabled == 1
		rules = append(rules, &cfg)
	}
	return rules, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
