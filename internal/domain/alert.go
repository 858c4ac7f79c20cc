package domain

import "time"

// AlertLevel is the severity of a generated alert.
type AlertLevel string

const (
	AlertCritical AlertLevel = "critical"
	AlertHigh     AlertLevel = "high"
	AlertMedium   AlertLevel = "medium"
	AlertLow      AlertLevel = "low"
)

// AlertAction is the suggested operator response.
type AlertAction string

const (
	ActionIntervene AlertAction = "Intervene"
	ActionReview    AlertAction = "Review"
)

// Alert is an independent event produced by the alert generator. Alerts
// are mutated only to flip the read flag and are never deleted
// individually; the collaborator bulk-clears read alerts.
type Alert struct {
	ID         string      `json:"alertId"`
	CustomerID string      `json:"customerId"`
	Level      AlertLevel  `json:"level"`
	Title      string      `json:"title"`
	Detail     string      `json:"detail"`
	Signals    []string    `json:"signals"`
	CreatedAt  time.Time   `json:"createdAt"`
	Read       bool        `json:"read"`
	Action     AlertAction `json:"action"`

	// PriorityScore is a fixed linear heuristic used for sorting and
	// highlighting, not for any decision logic.
	PriorityScore int `json:"priorityScore"`
}

// InterventionChannel is the outreach delivery channel.
type InterventionChannel string

const (
	InterventionSMS   InterventionChannel = "SMS"
	InterventionEmail InterventionChannel = "Email"
	InterventionCall  InterventionChannel = "Call"
	InterventionApp   InterventionChannel = "App Notification"
)

// InterventionStatus is the delivery state of an outreach action.
type InterventionStatus string

const (
	InterventionTriggered    InterventionStatus = "Triggered"
	InterventionDelivered    InterventionStatus = "Delivered"
	InterventionAcknowledged InterventionStatus = "Acknowledged"
)

// InterventionLog records one outreach action. Created only on explicit
// operator trigger, never automatically on ingestion; append-only.
type InterventionLog struct {
	ID         string              `json:"interventionId"`
	CustomerID string              `json:"customerId"`
	Tier       InterventionTier    `json:"tier"`
	Channel    InterventionChannel `json:"channel"`
	Message    string              `json:"message"`
	CreatedAt  time.Time           `json:"createdAt"`
	Status     InterventionStatus  `json:"status"`
	Operator   string              `json:"operator"`
}
