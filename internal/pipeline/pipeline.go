// Package pipeline orchestrates the ingestion flow: parse, extract,
// score, persist, alert, and audit. It is the only writer of customer
// profiles; the API layer delegates every mutation here so audit
// attribution stays consistent.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/alerting"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// ErrUploadRejected marks an upload that failed structural validation.
// The IngestResult carries the per-row error messages.
var ErrUploadRejected = errors.New("upload rejected")

// profileNames backs the synthetic display name assigned on first
// ingestion of a customer id. Existing names are never overwritten.
var profileNames = []string{"Arjun Sharma", "Priya Patel", "Vikram Mehta", "Sneha Rao", "Rahul Gupta"}

const profileCacheTTL = 5 * time.Minute

// Pipeline wires the ingestion stages to their collaborators.
type Pipeline struct {
	repo   domain.Repository
	cache  domain.Cache
	bus    domain.EventBus
	rules  *alerting.RuleEngine
	logger *slog.Logger

	// now is swappable for deterministic tests.
	now func() time.Time

	mu            sync.Mutex
	customerLocks map[string]*sync.Mutex
}

// New creates a pipeline. The rule engine may be nil when custom alert
// rules are not configured.
func New(repo domain.Repository, cache domain.Cache, eventBus domain.EventBus, rules *alerting.RuleEngine, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		repo:          repo,
		cache:         cache,
		bus:           eventBus,
		rules:         rules,
		logger:        logger,
		now:           time.Now,
		customerLocks: make(map[string]*sync.Mutex),
	}
}

// lockCustomer serializes ingestions per customer id. Uploads for
// different customers proceed in parallel.
func (p *Pipeline) lockCustomer(customerID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.customerLocks[customerID]
	if !ok {
		l = &sync.Mutex{}
		p.customerLocks[customerID] = l
	}
	return l
}

// IngestResult is the outcome of one upload: either a scored customer
// with its alerts, or the validation errors that rejected it.
type IngestResult struct {
	Customer *domain.CustomerProfile `json:"customer,omitempty"`
	Alerts   []domain.Alert          `json:"alerts,omitempty"`
	Errors   []string                `json:"errors,omitempty"`
	Warnings []string                `json:"warnings,omitempty"`
	TxnCount int                     `json:"txnCount"`
}

// Ingest runs the full pipeline over one CSV upload on behalf of actor.
// A validation failure returns ErrUploadRejected with the messages in
// the result; nothing is persisted in that case.
func (p *Pipeline) Ingest(ctx context.Context, actor string, r io.Reader) (*IngestResult, error) {
	if actor == "" {
		actor = "system"
	}

	parsed := ingest.Parse(r)
	result := &IngestResult{
		Errors:   parsed.Errors,
		Warnings: parsed.Warnings,
		TxnCount: len(parsed.Transactions),
	}
	if perr := parsed.Err(); perr != nil {
		return result, errors.Join(ErrUploadRejected, perr)
	}

	txns := parsed.Transactions
	customerID := txns[0].CustomerID

	lock := p.lockCustomer(customerID)
	lock.Lock()
	defer lock.Unlock()

	settings, err := p.repo.GetSettings(ctx)
	if err != nil {
		return result, fmt.Errorf("load settings: %w", err)
	}

	fv := features.Extract(txns)
	score := scoring.Score(&fv, settings)
	band := scoring.BandFor(score)
	tier := scoring.TierFor(band)
	now := p.now()

	existing, err := p.repo.GetProfile(ctx, customerID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return result, fmt.Errorf("load profile: %w", err)
	}

	profile := &domain.CustomerProfile{
		ID:                          customerID,
		Name:                        profileNames[int(customerID[len(customerID)-1])%len(profileNames)],
		Segment:                     features.DetectSegment(txns),
		RiskScore:                   score,
		Band:                        band,
		PredictedDefaultProbability: scoring.DefaultProbability(score),
		EstimatedDaysToDelinquency:  scoring.DaysToDelinquency(score),
		Features:                    fv,
		DataConfidenceScore:         features.DataConfidence(txns),
		RecommendedInterventionTier: tier,
		RecommendedInterventionText: alerting.TierText(tier),
		Status:                      domain.StatusActive,
		LastUpdated:                 now,
	}
	if existing != nil {
		profile.Name = existing.Name
		profile.Notes = existing.Notes
		profile.Status = existing.Status
		profile.UploadHistory = existing.UploadHistory
	}
	profile.UploadHistory = append(profile.UploadHistory, domain.UploadHistoryEntry{
		UploadID:  genID("UP"),
		Timestamp: now,
		RiskScore: score,
		Band:      band,
		TxnCount:  len(txns),
	})

	if err := p.repo.SaveProfile(ctx, profile); err != nil {
		return result, fmt.Errorf("save profile: %w", err)
	}
	if err := p.repo.ReplaceTransactions(ctx, customerID, txns); err != nil {
		return result, fmt.Errorf("save transactions: %w", err)
	}

	alerts := alerting.GenerateAlerts(profile, now)
	if p.rules != nil {
		alerts = append(alerts, p.rules.EvaluateAll(ctx, profile, now)...)
	}
	if err := p.repo.AddAlerts(ctx, alerts); err != nil {
		return result, fmt.Errorf("save alerts: %w", err)
	}

	if err := p.cache.SetProfile(ctx, profile, profileCacheTTL); err != nil {
		p.logger.Warn("profile cache write failed", "customer_id", customerID, "error", err)
	}

	p.audit(ctx, actor, domain.AuditUpload, domain.TopicUpload,
		fmt.Sprintf("CSV uploaded for customer %s", customerID),
		map[string]any{"txnCount": len(txns)})
	p.audit(ctx, actor, domain.AuditRiskScore, domain.TopicRiskScore,
		fmt.Sprintf("Risk scored: %s => %s (%.1f)", customerID, band, score*100),
		map[string]any{"riskScore": score, "band": band})
	alertIDs := make([]string, len(alerts))
	for i, a := range alerts {
		alertIDs[i] = a.ID
	}
	p.audit(ctx, actor, domain.AuditAlertGenerated, domain.TopicAlertGenerated,
		fmt.Sprintf("%d alerts generated for %s", len(alerts), customerID),
		map[string]any{"alertIds": alertIDs})

	p.logger.Info("ingestion complete",
		"customer_id", customerID,
		"actor", actor,
		"txn_count", len(txns),
		"risk_score", score,
		"band", band,
		"alerts", len(alerts),
	)

	result.Customer = profile
	result.Alerts = alerts
	return result, nil
}

// TriggerInterventions instantiates the outreach playbook for the
// customer's recommended tier and moves the profile to Under
// Intervention. Tier 0 produces no log entries but still transitions
// the status.
func (p *Pipeline) TriggerInterventions(ctx context.Context, actor, customerID string) ([]domain.InterventionLog, error) {
	if actor == "" {
		actor = "system"
	}

	lock := p.lockCustomer(customerID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := p.repo.GetProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}

	now := p.now()
	logs := alerting.GenerateInterventions(profile, actor, now)
	if err := p.repo.AddInterventions(ctx, logs); err != nil {
		return nil, fmt.Errorf("save interventions: %w", err)
	}

	profile.Status = domain.StatusUnderIntervention
	profile.LastUpdated = now
	if err := p.repo.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	if err := p.cache.SetProfile(ctx, profile, profileCacheTTL); err != nil {
		p.logger.Warn("profile cache write failed", "customer_id", customerID, "error", err)
	}

	p.audit(ctx, actor, domain.AuditInterventionTriggered, domain.TopicInterventionTriggered,
		fmt.Sprintf("Interventions triggered for %s", customerID),
		map[string]any{"tier": profile.RecommendedInterventionTier, "count": len(logs)})

	p.logger.Info("interventions triggered",
		"customer_id", customerID,
		"actor", actor,
		"tier", profile.RecommendedInterventionTier,
		"count", len(logs),
	)

	return logs, nil
}

// UpdateCustomer applies operator edits to the mutable profile fields.
// Nil arguments leave the corresponding field untouched.
func (p *Pipeline) UpdateCustomer(ctx context.Context, actor, customerID string, notes *string, status *domain.CustomerStatus) (*domain.CustomerProfile, error) {
	if actor == "" {
		actor = "system"
	}

	lock := p.lockCustomer(customerID)
	lock.Lock()
	defer lock.Unlock()

	profile, err := p.repo.GetProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}

	if notes != nil {
		profile.Notes = *notes
	}
	if status != nil {
		profile.Status = *status
	}
	profile.LastUpdated = p.now()

	if err := p.repo.SaveProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	if err := p.cache.SetProfile(ctx, profile, profileCacheTTL); err != nil {
		p.logger.Warn("profile cache write failed", "customer_id", customerID, "error", err)
	}

	p.audit(ctx, actor, domain.AuditCustomerUpdated, "",
		fmt.Sprintf("Notes updated for %s", customerID), map[string]any{})

	return profile, nil
}

// GetProfile serves a profile read, preferring the cache.
func (p *Pipeline) GetProfile(ctx context.Context, customerID string) (*domain.CustomerProfile, error) {
	if cached, err := p.cache.GetProfile(ctx, customerID); err == nil && cached != nil {
		return cached, nil
	}

	profile, err := p.repo.GetProfile(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if err := p.cache.SetProfile(ctx, profile, profileCacheTTL); err != nil {
		p.logger.Warn("profile cache write failed", "customer_id", customerID, "error", err)
	}
	return profile, nil
}

// ReloadRules replaces the loaded custom alert rules from the
// repository's enabled rule configurations.
func (p *Pipeline) ReloadRules(ctx context.Context) (int, error) {
	if p.rules == nil {
		return 0, nil
	}
	configs, err := p.repo.ListAlertRules(ctx)
	if err != nil {
		return 0, fmt.Errorf("load alert rules: %w", err)
	}
	if err := p.rules.ReloadRules(configs); err != nil {
		return 0, err
	}
	return p.rules.RulesCount(), nil
}

// audit writes one repository audit record and mirrors it on the event
// bus. Neither failure aborts the calling operation.
func (p *Pipeline) audit(ctx context.Context, actor string, eventType domain.AuditEventType, topic, description string, metadata map[string]any) {
	entry := &domain.AuditLog{
		ID:          genID("LOG"),
		Type:        eventType,
		Actor:       actor,
		Description: description,
		Timestamp:   p.now(),
		Metadata:    metadata,
	}

	if err := p.repo.AppendAuditLog(ctx, entry); err != nil {
		p.logger.Warn("audit log write failed", "type", eventType, "error", err)
	}

	if topic == "" {
		return
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := p.bus.Publish(ctx, topic, payload); err != nil {
		p.logger.Warn("audit event publish failed", "topic", topic, "error", err)
	}
}

func genID(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}
