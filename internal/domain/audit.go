package domain

import "time"

// AuditEventType names a discrete audit event emitted by the pipeline.
type AuditEventType string

const (
	AuditUpload                AuditEventType = "UPLOAD"
	AuditRiskScore             AuditEventType = "RISK_SCORE"
	AuditAlertGenerated        AuditEventType = "ALERT_GENERATED"
	AuditInterventionTriggered AuditEventType = "INTERVENTION_TRIGGERED"
	AuditCustomerUpdated       AuditEventType = "CUSTOMER_UPDATED"
)

// AuditLog is one attributed audit record. The actor is threaded
// explicitly through pipeline calls rather than read from ambient state.
type AuditLog struct {
	ID          string         `json:"logId"`
	Type        AuditEventType `json:"type"`
	Actor       string         `json:"actor"`
	Description string         `json:"description"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}
