package domain

// AlertRuleConfig defines an operator-authored alert rule. The CEL
// expression is evaluated against a scored customer profile and must
// return bool; a true result emits one alert with the configured shape.
type AlertRuleConfig struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// Expression is the CEL predicate over profile variables
	// (score, band, tier, flags, and the raw feature values).
	Expression string `json:"expression"`

	Level  AlertLevel  `json:"level"`
	Action AlertAction `json:"action"`
	Title  string      `json:"title"`
	Detail string      `json:"detail"`

	Enabled bool `json:"enabled"`
}
