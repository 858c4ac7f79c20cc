package alerting

import (
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

type interventionTemplate struct {
	Channel domain.InterventionChannel
	Message string
}

// interventionsByTier holds the fixed outreach playbook per tier. Tier 0
// deliberately has no templates: triggering it is a no-op.
var interventionsByTier = map[domain.InterventionTier][]interventionTemplate{
	domain.Tier0: {},
	domain.Tier1: {
		{domain.InterventionSMS, "Friendly reminder: Your EMI of ₹{amount} is due on {date}. Ensure your account has sufficient balance."},
		{domain.InterventionApp, "📊 Your personalized budgeting report is ready. View insights to improve financial health."},
		{domain.InterventionEmail, "We've prepared a savings plan tailored to your income pattern. Explore options in your app."},
	},
	domain.Tier2: {
		{domain.InterventionSMS, "We understand you may need flexibility. You can shift your EMI date by up to 7 days. Call us or use the app."},
		{domain.InterventionApp, "Partial payment option now enabled for your account. Pay what you can today to avoid penalties."},
		{domain.InterventionEmail, "Based on your spending patterns, we recommend a temporary credit limit adjustment to help manage your finances."},
	},
	domain.Tier3: {
		{domain.InterventionCall, "A relationship manager will call you within 24 hours to discuss a payment restructuring plan."},
		{domain.InterventionSMS, "You are eligible for a 1-month payment holiday. No penalties will apply. Contact us to activate."},
		{domain.InterventionEmail, "We've prepared a debt restructuring proposal based on your financial situation. Review it in your portal."},
	},
}

// GenerateInterventions instantiates the playbook for the profile's
// recommended tier. The operator is recorded on every log entry for
// audit attribution.
func GenerateInterventions(p *domain.CustomerProfile, operator string, now time.Time) []domain.InterventionLog {
	templates := interventionsByTier[p.RecommendedInterventionTier]
	logs := make([]domain.InterventionLog, 0, len(templates))
	for _, t := range templates {
		logs = append(logs, domain.InterventionLog{
			ID:         genID("INT"),
			CustomerID: p.ID,
			Tier:       p.RecommendedInterventionTier,
			Channel:    t.Channel,
			Message:    t.Message,
			CreatedAt:  now,
			Status:     domain.InterventionTriggered,
			Operator:   operator,
		})
	}
	return logs
}

var tierTexts = map[domain.InterventionTier]string{
	domain.Tier0: "No immediate action required. Continue monitoring.",
	domain.Tier1: "Soft digital nudge: Send budgeting insights, EMI reminder via SMS and App Notification.",
	domain.Tier2: "Offer flexible EMI date shift, enable partial payment, and adjust credit limit temporarily.",
	domain.Tier3: "Assign relationship manager call, offer payment holiday, initiate debt restructuring plan.",
}

// TierText returns the one-line recommendation summary for a tier.
func TierText(tier domain.InterventionTier) string {
	return tierTexts[tier]
}
