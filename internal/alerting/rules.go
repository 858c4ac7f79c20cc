package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// RuleEngine evaluates operator-authored CEL predicates against scored
// profiles. Rules are compiled once at load time and evaluated in
// parallel on each ingestion; a true predicate emits one alert shaped by
// the rule config.
type RuleEngine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*compiledRule
	maxWorkers    int
}

type compiledRule struct {
	Config  *domain.AlertRuleConfig
	Program cel.Program
}

// NewRuleEngine creates the engine with its CEL environment. The
// environment exposes the composite score, band, tier, flags, and every
// raw feature value under snake_case names.
func NewRuleEngine(maxWorkers int) (*RuleEngine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("customer_id", cel.StringType),
		cel.Variable("score", cel.DoubleType),
		cel.Variable("band", cel.StringType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("segment", cel.StringType),
		cel.Variable("flags", cel.ListType(cel.StringType)),
		cel.Variable("salary_delay_days", cel.DoubleType),
		cel.Variable("salary_drop_percent", cel.DoubleType),
		cel.Variable("savings_drawdown_percent", cel.DoubleType),
		cel.Variable("utility_delay_days", cel.DoubleType),
		cel.Variable("lending_app_txn_count", cel.DoubleType),
		cel.Variable("atm_withdrawal_spike_ratio", cel.DoubleType),
		cel.Variable("discretionary_spend_drop_percent", cel.DoubleType),
		cel.Variable("failed_auto_debit_count", cel.DoubleType),
		cel.Variable("spending_volatility_index", cel.DoubleType),
		cel.Variable("debt_burden_ratio", cel.DoubleType),
		cel.Variable("net_cashflow", cel.DoubleType),
		cel.Variable("gambling_spend_ratio", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &RuleEngine{
		env:           env,
		compiledRules: make(map[string]*compiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

func (e *RuleEngine) compileRule(cfg *domain.AlertRuleConfig) (*compiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", cfg.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	return &compiledRule{Config: cfg, Program: program}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *RuleEngine) ValidateRule(cfg *domain.AlertRuleConfig) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads one rule.
func (e *RuleEngine) LoadRule(cfg *domain.AlertRuleConfig) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}
	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules loads every enabled rule in the list.
func (e *RuleEngine) LoadRules(configs []*domain.AlertRuleConfig) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded rule set. Used for
// hot-reloading rules from the repository.
func (e *RuleEngine) ReloadRules(configs []*domain.AlertRuleConfig) error {
	newRules := make(map[string]*compiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}
		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.mu.Lock()
	e.compiledRules = newRules
	e.mu.Unlock()
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *RuleEngine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// LoadedRules returns the currently loaded rule configurations.
func (e *RuleEngine) LoadedRules() []*domain.AlertRuleConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.AlertRuleConfig, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

func activationFor(p *domain.CustomerProfile) map[string]any {
	f := p.Features
	flags := make([]string, len(f.Flags))
	copy(flags, f.Flags)
	return map[string]any{
		"customer_id":                      p.ID,
		"score":                            p.RiskScore,
		"band":                             string(p.Band),
		"tier":                             string(p.RecommendedInterventionTier),
		"segment":                          string(p.Segment),
		"flags":                            flags,
		"salary_delay_days":                f.SalaryDelayDays,
		"salary_drop_percent":              f.SalaryDropPercent,
		"savings_drawdown_percent":         f.SavingsDrawdownPercent,
		"utility_delay_days":               f.UtilityDelayDays,
		"lending_app_txn_count":            f.LendingAppTxnCount,
		"atm_withdrawal_spike_ratio":       f.ATMWithdrawalSpikeRatio,
		"discretionary_spend_drop_percent": f.DiscretionarySpendDropPercent,
		"failed_auto_debit_count":          f.FailedAutoDebitCount,
		"spending_volatility_index":        f.SpendingVolatilityIndex,
		"debt_burden_ratio":                f.DebtBurdenRatio,
		"net_cashflow":                     f.NetCashflow,
		"gambling_spend_ratio":             f.GamblingSpendRatio,
	}
}

// EvaluateAll runs every loaded rule against the profile in parallel and
// returns one alert per rule that fired. Evaluation errors mute the rule
// for that profile rather than failing the ingestion.
func (e *RuleEngine) EvaluateAll(ctx context.Context, p *domain.CustomerProfile, now time.Time) []domain.Alert {
	e.mu.RLock()
	rules := make([]*compiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := activationFor(p)
	priority := priorityScore(p)

	fired := make([]bool, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *compiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			out, _, err := r.Program.Eval(activation)
			if err != nil {
				return
			}
			if b, ok := out.(types.Bool); ok && bool(b) {
				fired[idx] = true
			}
		}(i, rule)
	}
	wg.Wait()

	var alerts []domain.Alert
	for i, rule := range rules {
		if !fired[i] {
			continue
		}
		cfg := rule.Config
		alerts = append(alerts, domain.Alert{
			ID:            genID("ALT"),
			CustomerID:    p.ID,
			Level:         cfg.Level,
			Title:         cfg.Title,
			Detail:        cfg.Detail,
			Signals:       []string{cfg.Name},
			CreatedAt:     now,
			Read:          false,
			Action:        cfg.Action,
			PriorityScore: priority,
		})
	}
	return alerts
}

// Close clears the loaded rules.
func (e *RuleEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*compiledRule)
	return nil
}
