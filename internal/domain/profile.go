package domain

import "time"

// RiskBand is the categorical risk classification derived from the score.
type RiskBand string

const (
	BandLow      RiskBand = "Low"
	BandMedium   RiskBand = "Medium"
	BandHigh     RiskBand = "High"
	BandCritical RiskBand = "Critical"
)

// InterventionTier is the recommended outreach intensity, mapped 1:1 from
// the risk band.
type InterventionTier string

const (
	Tier0 InterventionTier = "Tier 0"
	Tier1 InterventionTier = "Tier 1"
	Tier2 InterventionTier = "Tier 2"
	Tier3 InterventionTier = "Tier 3"
)

// CustomerStatus is the profile lifecycle state.
type CustomerStatus string

const (
	StatusActive            CustomerStatus = "Active"
	StatusUnderIntervention CustomerStatus = "Under Intervention"
	StatusResolved          CustomerStatus = "Resolved"
)

// UploadHistoryEntry records one scored ingestion batch, appended
// chronologically to the profile.
type UploadHistoryEntry struct {
	UploadID  string    `json:"uploadId"`
	Timestamp time.Time `json:"timestamp"`
	RiskScore float64   `json:"riskScore"`
	Band      RiskBand  `json:"band"`
	TxnCount  int       `json:"txnCount"`
}

// CustomerProfile is the system of record per customer. It is created on
// the first ingestion for a customer id and overwritten in place on every
// subsequent one; notes, status, and upload history survive overwrites.
type CustomerProfile struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Segment Segment `json:"segment"`

	RiskScore                   float64  `json:"riskScore"`
	Band                        RiskBand `json:"band"`
	PredictedDefaultProbability int      `json:"predictedDefaultProbability"`
	EstimatedDaysToDelinquency  int      `json:"estimatedDaysToDelinquency"`

	// Features holds the raw extracted values, denormalized onto the
	// profile for display.
	Features FeatureVector `json:"features"`

	DataConfidenceScore float64 `json:"dataConfidenceScore"`

	RecommendedInterventionTier InterventionTier `json:"recommendedInterventionTier"`
	RecommendedInterventionText string           `json:"recommendedInterventionText"`

	Notes  string         `json:"notes"`
	Status CustomerStatus `json:"status"`

	LastUpdated   time.Time            `json:"lastUpdated"`
	UploadHistory []UploadHistoryEntry `json:"uploadHistory"`
}

// Flags returns the triggered signal flag names for this profile.
func (p *CustomerProfile) Flags() []string {
	return p.Features.Flags
}

// RiskDriver is one ranked, explained contribution to the final score.
type RiskDriver struct {
	DriverName      string  `json:"driverName"`
	FeatureKey      Signal  `json:"featureKey"`
	Value           float64 `json:"value"`
	NormalizedValue float64 `json:"normalizedValue"`
	Contribution    float64 `json:"contribution"`
	Explanation     string  `json:"explanation"`
}
