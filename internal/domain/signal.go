package domain

import "fmt"

// Signal identifies one scoring-eligible behavioral signal family.
type Signal string

const (
	SignalSalaryDelay       Signal = "salaryDelay"
	SignalSalaryDrop        Signal = "salaryDrop"
	SignalSavingsDrawdown   Signal = "savingsDrawdown"
	SignalUtilityDelay      Signal = "utilityDelay"
	SignalLendingAppSpike   Signal = "lendingAppSpike"
	SignalATMSpike          Signal = "atmSpike"
	SignalDiscretionaryDrop Signal = "discretionaryDrop"
	SignalFailedAutoDebit   Signal = "failedAutoDebit"
	SignalVolatility        Signal = "volatility"
)

// SignalSpec is one row of the signal registry: everything scoring,
// explainability, and settings need to know about a signal family.
type SignalSpec struct {
	Key           Signal
	Label         string
	Unit          string
	DefaultWeight float64

	// Saturation is the raw value at which the normalized signal clamps
	// to 1.0. Band thresholds were tuned against these exact constants.
	Saturation float64

	// Value extracts the signal's raw value from a feature vector.
	Value func(f *FeatureVector) float64

	// Explain renders the driver explanation from the raw value.
	Explain func(v float64) string
}

// signalRegistry is the single source of truth for the nine scoring
// signals. Order here fixes normalization, driver, and settings ordering.
var signalRegistry = []SignalSpec{
	{
		Key:           SignalSalaryDelay,
		Label:         "Salary Delay",
		Unit:          "days",
		DefaultWeight: 0.18,
		Saturation:    10,
		Value:         func(f *FeatureVector) float64 { return f.SalaryDelayDays },
		Explain: func(v float64) string {
			return fmt.Sprintf("Salary credited %.1f days later than baseline. Delayed income inflow is a strong predictor of missed payments.", v)
		},
	},
	{
		Key:           SignalSalaryDrop,
		Label:         "Salary Drop",
		Unit:          "%",
		DefaultWeight: 0.12,
		Saturation:    40,
		Value:         func(f *FeatureVector) float64 { return f.SalaryDropPercent },
		Explain: func(v float64) string {
			return fmt.Sprintf("Salary amount dropped by %.1f%%. A significant income reduction often precedes financial stress.", v)
		},
	},
	{
		Key:           SignalSavingsDrawdown,
		Label:         "Savings Drawdown",
		Unit:          "%",
		DefaultWeight: 0.18,
		Saturation:    30,
		Value:         func(f *FeatureVector) float64 { return f.SavingsDrawdownPercent },
		Explain: func(v float64) string {
			return fmt.Sprintf("Account balance eroded by %.1f%% week-over-week, indicating depletion of liquidity cushion.", v)
		},
	},
	{
		Key:           SignalUtilityDelay,
		Label:         "Utility Payment Delay",
		Unit:          "days",
		DefaultWeight: 0.08,
		Saturation:    10,
		Value:         func(f *FeatureVector) float64 { return f.UtilityDelayDays },
		Explain: func(v float64) string {
			return fmt.Sprintf("Utility bills paid %.1f days later than usual. Delayed essential payments signal cash scarcity.", v)
		},
	},
	{
		Key:           SignalLendingAppSpike,
		Label:         "Lending App Activity",
		Unit:          "txns",
		DefaultWeight: 0.12,
		Saturation:    8,
		Value:         func(f *FeatureVector) float64 { return f.LendingAppTxnCount },
		Explain: func(v float64) string {
			return fmt.Sprintf("%.0f lending app transactions in last 14 days, suggesting active borrowing to cover expenses.", v)
		},
	},
	{
		Key:           SignalATMSpike,
		Label:         "ATM Cash Spike",
		Unit:          "ratio",
		DefaultWeight: 0.08,
		Saturation:    3,
		Value:         func(f *FeatureVector) float64 { return f.ATMWithdrawalSpikeRatio },
		Explain: func(v float64) string {
			return fmt.Sprintf("ATM withdrawals %.2fx above baseline. Cash hoarding behavior associated with financial anxiety.", v)
		},
	},
	{
		Key:           SignalDiscretionaryDrop,
		Label:         "Discretionary Spend Drop",
		Unit:          "%",
		DefaultWeight: 0.07,
		Saturation:    50,
		Value:         func(f *FeatureVector) float64 { return f.DiscretionarySpendDropPercent },
		Explain: func(v float64) string {
			return fmt.Sprintf("Discretionary spending fell %.1f%%. Customers cut non-essentials before missing debt payments.", v)
		},
	},
	{
		Key:           SignalFailedAutoDebit,
		Label:         "Missed Repayment Risk",
		Unit:          "count",
		DefaultWeight: 0.12,
		Saturation:    2,
		Value:         func(f *FeatureVector) float64 { return f.FailedAutoDebitCount },
		Explain: func(v float64) string {
			return fmt.Sprintf("%.0f expected loan repayment(s) not detected. Auto-debit failures are a direct delinquency signal.", v)
		},
	},
	{
		Key:           SignalVolatility,
		Label:         "Spending Volatility",
		Unit:          "index",
		DefaultWeight: 0.05,
		Saturation:    2,
		Value:         func(f *FeatureVector) float64 { return f.SpendingVolatilityIndex },
		Explain: func(v float64) string {
			return fmt.Sprintf("Spending volatility index of %.2f. Erratic cash flows indicate financial instability.", v)
		},
	},
}

// SignalRegistry returns the scoring signal specs in canonical order.
func SignalRegistry() []SignalSpec {
	return signalRegistry
}

// SignalSpecFor looks up the registry entry for a signal key.
func SignalSpecFor(key Signal) (SignalSpec, bool) {
	for _, spec := range signalRegistry {
		if spec.Key == key {
			return spec, true
		}
	}
	return SignalSpec{}, false
}

// Weights maps signal keys to their configured scoring weight. The sum is
// intended to be near 1.0 but is not enforced; scoring does not renormalize.
type Weights map[Signal]float64

// Toggles maps signal keys to their enabled state. A disabled signal
// contributes zero to the score regardless of its weight.
type Toggles map[Signal]bool

// DefaultWeights returns the registry's default weight per signal.
func DefaultWeights() Weights {
	w := make(Weights, len(signalRegistry))
	for _, spec := range signalRegistry {
		w[spec.Key] = spec.DefaultWeight
	}
	return w
}

// DefaultToggles enables every signal.
func DefaultToggles() Toggles {
	t := make(Toggles, len(signalRegistry))
	for _, spec := range signalRegistry {
		t[spec.Key] = true
	}
	return t
}

// Total sums the configured weights. Surfaced to operators so they can
// see when the weights drift away from 1.0.
func (w Weights) Total() float64 {
	var total float64
	for _, v := range w {
		total += v
	}
	return total
}

// Settings bundles the scoring configuration supplied by the operator.
type Settings struct {
	Weights Weights `json:"weights"`
	Toggles Toggles `json:"toggles"`
}

// DefaultSettings returns the out-of-the-box scoring configuration.
func DefaultSettings() *Settings {
	return &Settings{
		Weights: DefaultWeights(),
		Toggles: DefaultToggles(),
	}
}
