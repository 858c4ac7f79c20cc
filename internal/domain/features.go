package domain

// FeatureVector is the behavioral snapshot computed from one ingestion
// batch. It is a pure function of the transaction list: recomputed fresh
// on every upload, never mutated afterwards.
type FeatureVector struct {
	SalaryDelayDays               float64 `json:"salaryDelayDays"`
	SalaryDropPercent             float64 `json:"salaryDropPercent"`
	SavingsDrawdownPercent        float64 `json:"savingsDrawdownPercent"`
	UtilityDelayDays              float64 `json:"utilityDelayDays"`
	LendingAppTxnCount            float64 `json:"lendingAppTxnCount"`
	ATMWithdrawalSpikeRatio       float64 `json:"atmWithdrawalSpikeRatio"`
	DiscretionarySpendDropPercent float64 `json:"discretionarySpendDropPercent"`
	FailedAutoDebitCount          float64 `json:"failedAutoDebitCount"`
	SpendingVolatilityIndex       float64 `json:"spendingVolatilityIndex"`
	DebtBurdenRatio               float64 `json:"debtBurdenRatio"`
	NetCashflow                   float64 `json:"netCashflow"`
	GamblingSpendRatio            float64 `json:"gamblingSpendRatio"`

	// Flags holds the names of signals that crossed their individual
	// thresholds, in fixed evaluation order.
	Flags []string `json:"flags"`
}

// Segment is a coarse, demographic-free customer classification derived
// from transaction behavior only.
type Segment string

const (
	SegmentSalaried     Segment = "Salaried"
	SegmentSelfEmployed Segment = "Self-employed"
	SegmentStudent      Segment = "Student"
	SegmentRetired      Segment = "Retired"
)
