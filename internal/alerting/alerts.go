// Package alerting generates operator alerts and intervention
// recommendations from scored customer profiles. The built-in alert
// conditions are fixed; operator-authored CEL rules layer on top.
package alerting

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func genID(prefix string) string {
	return prefix + "-" + strings.ToUpper(uuid.NewString()[:8])
}

// priorityScore ranks an alert for operator triage. The formula is a
// fixed linear heuristic over the profile, identical for every alert the
// profile produces.
func priorityScore(p *domain.CustomerProfile) int {
	return int(math.Round(p.RiskScore*100 +
		p.Features.FailedAutoDebitCount*20 +
		p.Features.SalaryDelayDays*2))
}

// GenerateAlerts evaluates the built-in alert conditions against a scored
// profile. Conditions are independent: one profile can produce several
// alerts in one pass, in fixed evaluation order.
func GenerateAlerts(p *domain.CustomerProfile, now time.Time) []domain.Alert {
	var alerts []domain.Alert
	priority := priorityScore(p)

	add := func(level domain.AlertLevel, title, detail string, signals []string, action domain.AlertAction) {
		alerts = append(alerts, domain.Alert{
			ID:            genID("ALT"),
			CustomerID:    p.ID,
			Level:         level,
			Title:         title,
			Detail:        detail,
			Signals:       signals,
			CreatedAt:     now,
			Read:          false,
			Action:        action,
			PriorityScore: priority,
		})
	}

	switch p.Band {
	case domain.BandCritical:
		add(domain.AlertCritical,
			fmt.Sprintf("Critical Delinquency Risk — %s", p.ID),
			fmt.Sprintf("Customer risk score is %.0f/100. Estimated %d days to potential default.",
				p.RiskScore*100, p.EstimatedDaysToDelinquency),
			p.Flags(), domain.ActionIntervene)
	case domain.BandHigh:
		add(domain.AlertHigh,
			fmt.Sprintf("High Risk Detected — %s", p.ID),
			fmt.Sprintf("Customer shows multiple stress signals. Risk score: %.0f/100.", p.RiskScore*100),
			p.Flags(), domain.ActionIntervene)
	}

	f := p.Features

	if f.SalaryDelayDays > 5 {
		add(domain.AlertHigh,
			"Salary Delay Spike Detected",
			fmt.Sprintf("Salary credited %.1f days late. Baseline breached significantly.", f.SalaryDelayDays),
			[]string{"Salary Delay Signal"}, domain.ActionIntervene)
	}

	if f.FailedAutoDebitCount >= 1 {
		add(domain.AlertCritical,
			"Auto-Debit Failure Risk",
			fmt.Sprintf("%.0f expected repayment(s) not detected. Immediate intervention required.", f.FailedAutoDebitCount),
			[]string{"Repayment Missed Risk"}, domain.ActionIntervene)
	}

	if f.LendingAppTxnCount >= 4 {
		add(domain.AlertHigh,
			"Borrowing App Dependence",
			fmt.Sprintf("%.0f lending app transactions in 14 days. Customer may be bridging income gaps with informal credit.", f.LendingAppTxnCount),
			[]string{"Lending App Spike"}, domain.ActionIntervene)
	}

	if f.SavingsDrawdownPercent > 15 {
		add(domain.AlertHigh,
			"Savings Drain Detected",
			fmt.Sprintf("Account balance eroded by %.1f%% week-over-week.", f.SavingsDrawdownPercent),
			[]string{"Savings Drawdown Signal"}, domain.ActionReview)
	}

	if f.NetCashflow < 0 {
		add(domain.AlertMedium,
			"Negative Cashflow Detected",
			fmt.Sprintf("Customer spent more than received in the last 30 days. Net cashflow: ₹%.0f.", f.NetCashflow),
			[]string{"Negative Cashflow"}, domain.ActionReview)
	}

	if f.DebtBurdenRatio > 0.4 {
		add(domain.AlertMedium,
			"High Debt-to-Income Ratio",
			fmt.Sprintf("Debt burden ratio of %.0f%% exceeds safe threshold of 35%%.", f.DebtBurdenRatio*100),
			[]string{"High Debt Burden"}, domain.ActionReview)
	}

	return alerts
}
