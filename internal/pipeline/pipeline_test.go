package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/repository"
)

const validCSV = `customer_id,date,amount,type,category,balance,merchant,channel
CUST-1001,2025-01-05,50000,credit,salary,60000,Employer Corp,NetBanking
CUST-1001,2025-02-15,40000,credit,salary,55000,Employer Corp,NetBanking
CUST-1001,2025-02-16,2000,debit,grocery,53000,Big Bazaar,UPI
`

const invalidCSV = `customer_id,date,amount,type
CUST-1001,2025-01-05,50000,transferred
`

func newTestPipeline(t *testing.T) (*Pipeline, domain.Repository) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-pipeline-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	c := cache.NewLRUCache(100)
	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p := New(repo, c, b, nil, logger)
	p.now = func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) }

	return p, repo
}

func TestIngestValidUpload(t *testing.T) {
	p, repo := newTestPipeline(t)
	ctx := context.Background()

	result, err := p.Ingest(ctx, "ops-anita", strings.NewReader(validCSV))
	if err != nil {
		t.Fatalf("Ingest failed: %v", err)
	}

	if result.TxnCount != 3 {
		t.Errorf("expected 3 transactions, got %d", result.TxnCount)
	}
	if result.Customer == nil {
		t.Fatal("expected a scored customer")
	}
	if result.Customer.ID != "CUST-1001" {
		t.Errorf("unexpected customer id: %s", result.Customer.ID)
	}
	if result.Customer.Name != "Rahul Gupta" {
		t.Errorf("expected deterministic display name, got %s", result.Customer.Name)
	}
	if result.Customer.Segment != domain.SegmentSalaried {
		t.Errorf("expected Salaried segment, got %s", result.Customer.Segment)
	}
	if result.Customer.Status != domain.StatusActive {
		t.Errorf("expected Active status, got %s", result.Customer.Status)
	}
	if len(result.Customer.UploadHistory) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(result.Customer.UploadHistory))
	}

	// Ten days of salary delay crosses the alert threshold.
	found := false
	for _, a := range result.Alerts {
		if a.Title == "Salary Delay Spike Detected" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected salary delay alert, got %v", result.Alerts)
	}

	// Everything persisted.
	stored, err := repo.GetProfile(ctx, "CUST-1001")
	if err != nil {
		t.Fatalf("profile not persisted: %v", err)
	}
	if stored.RiskScore != result.Customer.RiskScore {
		t.Errorf("persisted score mismatch: %.2f vs %.2f", stored.RiskScore, result.Customer.RiskScore)
	}

	txns, _ := repo.GetTransactions(ctx, "CUST-1001")
	if len(txns) != 3 {
		t.Errorf("expected 3 persisted transactions, got %d", len(txns))
	}

	logs, _ := repo.ListAuditLogs(ctx, 0)
	if len(logs) != 3 {
		t.Fatalf("expected 3 audit entries, got %d", len(logs))
	}
	for _, l := range logs {
		if l.Actor != "ops-anita" {
			t.Errorf("expected actor attribution on %s, got %s", l.Type, l.Actor)
		}
	}
}

func TestIngestRejectedUploadPersistsNothing(t *testing.T) {
	p, repo := newTestPipeline(t)
	ctx := context.Background()

	result, err := p.Ingest(ctx, "ops-anita", strings.NewReader(invalidCSV))
	if !errors.Is(err, ErrUploadRejected) {
		t.Fatalf("expected ErrUploadRejected, got %v", err)
	}
	if len(result.Errors) == 0 {
		t.Error("expected validation errors in result")
	}
	if result.Customer != nil {
		t.Error("rejected upload must not produce a customer")
	}

	profiles, _ := repo.ListProfiles(ctx)
	if len(profiles) != 0 {
		t.Errorf("rejected upload must persist nothing, found %d profiles", len(profiles))
	}
	logs, _ := repo.ListAuditLogs(ctx, 0)
	if len(logs) != 0 {
		t.Errorf("rejected upload must not audit, found %d entries", len(logs))
	}
}

func TestReingestPreservesOperatorFields(t *testing.T) {
	p, repo := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, "ops-anita", strings.NewReader(validCSV)); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}

	notes := "spoke to customer, payment plan agreed"
	status := domain.StatusUnderIntervention
	if _, err := p.UpdateCustomer(ctx, "ops-anita", "CUST-1001", &notes, &status); err != nil {
		t.Fatalf("UpdateCustomer failed: %v", err)
	}

	result, err := p.Ingest(ctx, "ops-anita", strings.NewReader(validCSV))
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}

	if result.Customer.Notes != notes {
		t.Errorf("expected notes to survive re-ingestion, got %q", result.Customer.Notes)
	}
	if result.Customer.Status != status {
		t.Errorf("expected status to survive re-ingestion, got %s", result.Customer.Status)
	}
	if len(result.Customer.UploadHistory) != 2 {
		t.Errorf("expected 2 history entries, got %d", len(result.Customer.UploadHistory))
	}

	stored, _ := repo.GetProfile(ctx, "CUST-1001")
	if len(stored.UploadHistory) != 2 {
		t.Errorf("expected persisted history of 2, got %d", len(stored.UploadHistory))
	}
}

func TestTriggerInterventions(t *testing.T) {
	p, repo := newTestPipeline(t)
	ctx := context.Background()

	profile := &domain.CustomerProfile{
		ID:                          "CUST-3003",
		Name:                        "Sneha Rao",
		Segment:                     domain.SegmentSalaried,
		RiskScore:                   0.62,
		Band:                        domain.BandHigh,
		RecommendedInterventionTier: domain.Tier2,
		Status:                      domain.StatusActive,
		LastUpdated:                 time.Now().UTC(),
	}
	if err := repo.SaveProfile(ctx, profile); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	logs, err := p.TriggerInterventions(ctx, "ops-anita", "CUST-3003")
	if err != nil {
		t.Fatalf("TriggerInterventions failed: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("expected 3 tier-2 interventions, got %d", len(logs))
	}
	for _, l := range logs {
		if l.Operator != "ops-anita" {
			t.Errorf("expected operator attribution, got %s", l.Operator)
		}
	}

	stored, _ := repo.GetProfile(ctx, "CUST-3003")
	if stored.Status != domain.StatusUnderIntervention {
		t.Errorf("expected Under Intervention status, got %s", stored.Status)
	}

	persisted, _ := repo.ListInterventions(ctx, "CUST-3003")
	if len(persisted) != 3 {
		t.Errorf("expected 3 persisted interventions, got %d", len(persisted))
	}
}

func TestTriggerInterventionsTierZeroIsEmpty(t *testing.T) {
	p, repo := newTestPipeline(t)
	ctx := context.Background()

	profile := &domain.CustomerProfile{
		ID:                          "CUST-4004",
		Name:                        "Arjun Sharma",
		Segment:                     domain.SegmentStudent,
		RiskScore:                   0.05,
		Band:                        domain.BandLow,
		RecommendedInterventionTier: domain.Tier0,
		Status:                      domain.StatusActive,
		LastUpdated:                 time.Now().UTC(),
	}
	repo.SaveProfile(ctx, profile)

	logs, err := p.TriggerInterventions(ctx, "ops-anita", "CUST-4004")
	if err != nil {
		t.Fatalf("TriggerInterventions failed: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("tier 0 should produce no interventions, got %d", len(logs))
	}

	// The status still transitions.
	stored, _ := repo.GetProfile(ctx, "CUST-4004")
	if stored.Status != domain.StatusUnderIntervention {
		t.Errorf("expected Under Intervention status, got %s", stored.Status)
	}
}

func TestTriggerInterventionsUnknownCustomer(t *testing.T) {
	p, _ := newTestPipeline(t)

	_, err := p.TriggerInterventions(context.Background(), "ops-anita", "CUST-MISSING")
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestGetProfileServedFromCache(t *testing.T) {
	p, repo := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, "ops-anita", strings.NewReader(validCSV)); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	got, err := p.GetProfile(ctx, "CUST-1001")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.ID != "CUST-1001" {
		t.Errorf("unexpected profile: %+v", got)
	}

	// Repository and cached reads agree.
	stored, _ := repo.GetProfile(ctx, "CUST-1001")
	if got.RiskScore != stored.RiskScore {
		t.Errorf("cache and repository disagree: %.2f vs %.2f", got.RiskScore, stored.RiskScore)
	}
}

func TestUpdateCustomerPartial(t *testing.T) {
	p, _ := newTestPipeline(t)
	ctx := context.Background()

	if _, err := p.Ingest(ctx, "ops-anita", strings.NewReader(validCSV)); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}

	notes := "first contact made"
	updated, err := p.UpdateCustomer(ctx, "ops-anita", "CUST-1001", &notes, nil)
	if err != nil {
		t.Fatalf("UpdateCustomer failed: %v", err)
	}
	if updated.Notes != notes {
		t.Errorf("expected notes update, got %q", updated.Notes)
	}
	if updated.Status != domain.StatusActive {
		t.Errorf("nil status must leave status untouched, got %s", updated.Status)
	}
}
