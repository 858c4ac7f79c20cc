// Package features computes the behavioral feature vector from a
// customer's transaction history. Extraction is deterministic and pure:
// the same batch always yields the same vector, and all rolling windows
// are anchored on the last transaction date rather than wall-clock time.
package features

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Category keyword sets. Matching is case-sensitive substring matching
// against the lower-cased category field, so "loan" also matches
// "loan_repayment"; threshold calibration accounts for that overlap.
var (
	salaryCategories        = []string{"salary", "income", "payroll"}
	utilityCategories       = []string{"utility", "electricity", "water", "gas", "mobile", "internet", "telecom"}
	lendingCategories       = []string{"lending_app", "loan_app", "instant_loan", "lending", "loan"}
	atmCategories           = []string{"atm_withdrawal", "atm", "cash_withdrawal"}
	discretionaryCategories = []string{"entertainment", "shopping", "dining", "restaurant", "travel", "leisure"}
	loanRepaymentCategories = []string{"loan_repayment", "emi", "repayment", "mortgage"}
	gamblingCategories      = []string{"gambling", "lottery", "casino", "betting"}
)

func matchesAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// isSalaryTxn reports whether a credit looks like a salary deposit:
// salary-like category or merchant, or any credit above 20000.
func isSalaryTxn(t domain.Transaction) bool {
	if t.Type != domain.DirectionCredit {
		return false
	}
	return matchesAny(t.Category, salaryCategories) ||
		matchesAny(strings.ToLower(t.Merchant), salaryCategories) ||
		t.Amount > 20000
}

func monthKey(t domain.Transaction) string {
	return t.Date.Format("2006-01")
}

// groupByMonth buckets transactions by calendar month and returns the
// buckets plus the sorted month keys.
func groupByMonth(txns []domain.Transaction) (map[string][]domain.Transaction, []string) {
	byMonth := make(map[string][]domain.Transaction)
	for _, t := range txns {
		mk := monthKey(t)
		byMonth[mk] = append(byMonth[mk], t)
	}
	keys := make([]string, 0, len(byMonth))
	for mk := range byMonth {
		keys = append(keys, mk)
	}
	sort.Strings(keys)
	return byMonth, keys
}

// earliestDay returns the smallest day-of-month in the bucket.
func earliestDay(txns []domain.Transaction) float64 {
	day := math.MaxInt32
	for _, t := range txns {
		if d := t.Date.Day(); d < day {
			day = d
		}
	}
	return float64(day)
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// stdDev is the population standard deviation; fewer than two samples
// yield zero.
func stdDev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	var variance float64
	for _, v := range vals {
		variance += (v - m) * (v - m)
	}
	variance /= float64(len(vals))
	return math.Sqrt(variance)
}

func sumAmounts(txns []domain.Transaction) float64 {
	var sum float64
	for _, t := range txns {
		sum += t.Amount
	}
	return sum
}

func filterTxns(txns []domain.Transaction, keep func(domain.Transaction) bool) []domain.Transaction {
	var out []domain.Transaction
	for _, t := range txns {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

func byCategory(keywords []string) func(domain.Transaction) bool {
	return func(t domain.Transaction) bool {
		return matchesAny(t.Category, keywords)
	}
}

// window returns the transactions dated on or after the cutoff.
func window(txns []domain.Transaction, cutoff time.Time) []domain.Transaction {
	return filterTxns(txns, func(t domain.Transaction) bool {
		return !t.Date.Before(cutoff)
	})
}

// between returns the transactions with from <= date < to.
func between(txns []domain.Transaction, from, to time.Time) []domain.Transaction {
	return filterTxns(txns, func(t domain.Transaction) bool {
		return !t.Date.Before(from) && t.Date.Before(to)
	})
}

// Extract computes all twelve behavioral signals over the transaction
// batch. Windows are anchored on the last (most recent) transaction so
// historical uploads score identically whenever they are processed.
func Extract(txns []domain.Transaction) domain.FeatureVector {
	var fv domain.FeatureVector
	if len(txns) == 0 {
		return fv
	}

	sorted := make([]domain.Transaction, len(txns))
	copy(sorted, txns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	lastDate := sorted[len(sorted)-1].Date

	daysAgo := func(n int) time.Time { return lastDate.AddDate(0, 0, -n) }

	last14 := window(sorted, daysAgo(14))
	prev14 := between(sorted, daysAgo(28), daysAgo(14))
	last30 := window(sorted, daysAgo(30))
	last60 := window(sorted, daysAgo(60))

	flag := func(name string) { fv.Flags = append(fv.Flags, name) }

	// 1. Salary delay: earliest salary day of the latest month vs the
	// average earliest day across prior months.
	salaryByMonth, salaryMonths := groupByMonth(filterTxns(sorted, isSalaryTxn))
	if len(salaryMonths) >= 2 {
		prevDays := make([]float64, 0, len(salaryMonths)-1)
		for _, mk := range salaryMonths[:len(salaryMonths)-1] {
			prevDays = append(prevDays, earliestDay(salaryByMonth[mk]))
		}
		baseline := mean(prevDays)
		currentDay := earliestDay(salaryByMonth[salaryMonths[len(salaryMonths)-1]])
		fv.SalaryDelayDays = math.Max(0, currentDay-baseline)
		if fv.SalaryDelayDays > 3 {
			flag("Salary Delay Signal")
		}
	}

	// 2. Salary drop: latest month's salary total vs the average of
	// prior months.
	if len(salaryMonths) >= 2 {
		prevTotals := make([]float64, 0, len(salaryMonths)-1)
		for _, mk := range salaryMonths[:len(salaryMonths)-1] {
			prevTotals = append(prevTotals, sumAmounts(salaryByMonth[mk]))
		}
		avgPrev := mean(prevTotals)
		current := sumAmounts(salaryByMonth[salaryMonths[len(salaryMonths)-1]])
		if avgPrev > 0 {
			fv.SalaryDropPercent = math.Max(0, (avgPrev-current)/avgPrev*100)
			if fv.SalaryDropPercent > 10 {
				flag("Salary Drop Signal")
			}
		}
	}

	// 3. Savings drawdown: average balance last week vs the week before.
	lastWeek := window(sorted, daysAgo(7))
	prevWeek := between(sorted, daysAgo(14), daysAgo(7))
	if len(lastWeek) > 0 && len(prevWeek) > 0 {
		avgBalance := func(ts []domain.Transaction) float64 {
			var sum float64
			for _, t := range ts {
				sum += t.Balance
			}
			return sum / float64(len(ts))
		}
		avgLast, avgPrev := avgBalance(lastWeek), avgBalance(prevWeek)
		if avgPrev > 0 {
			fv.SavingsDrawdownPercent = math.Max(0, (avgPrev-avgLast)/avgPrev*100)
			if fv.SavingsDrawdownPercent > 8 {
				flag("Savings Drawdown Signal")
			}
		}
	}

	// 4. Utility payment delay, same month-over-month day comparison as
	// salary delay.
	utilityByMonth, utilityMonths := groupByMonth(filterTxns(sorted, byCategory(utilityCategories)))
	if len(utilityMonths) >= 2 {
		prevDays := make([]float64, 0, len(utilityMonths)-1)
		for _, mk := range utilityMonths[:len(utilityMonths)-1] {
			prevDays = append(prevDays, earliestDay(utilityByMonth[mk]))
		}
		baseline := mean(prevDays)
		currentDay := earliestDay(utilityByMonth[utilityMonths[len(utilityMonths)-1]])
		fv.UtilityDelayDays = math.Max(0, currentDay-baseline)
		if fv.UtilityDelayDays > 4 {
			flag("Late Utility Payments")
		}
	}

	// 5. Lending app activity over the last 14 days vs the 14 before.
	lendingLast14 := len(filterTxns(last14, byCategory(lendingCategories)))
	lendingPrev14 := len(filterTxns(prev14, byCategory(lendingCategories)))
	fv.LendingAppTxnCount = float64(lendingLast14)
	var lendingSpikeRatio float64
	switch {
	case lendingPrev14 > 0:
		lendingSpikeRatio = float64(lendingLast14) / float64(lendingPrev14)
	case lendingLast14 > 0:
		lendingSpikeRatio = 3
	}
	if lendingSpikeRatio > 1.5 || lendingLast14 >= 3 {
		flag("Lending App Spike")
	}

	// 6. ATM withdrawal spike: last-14-day count against half the
	// 30-day count as a same-length baseline.
	isATM := func(t domain.Transaction) bool {
		return matchesAny(t.Category, atmCategories) || t.Channel == domain.ChannelATM
	}
	atmLast14 := float64(len(filterTxns(last14, isATM)))
	atmBaseline := float64(len(filterTxns(last30, isATM))) / 2
	if atmBaseline > 0 {
		fv.ATMWithdrawalSpikeRatio = atmLast14 / atmBaseline
	}
	if fv.ATMWithdrawalSpikeRatio > 1.7 {
		flag("Cash Hoarding Behavior")
	}

	// 7. Discretionary spend drop, 14-day window over the previous one.
	discLast14 := sumAmounts(filterTxns(last14, byCategory(discretionaryCategories)))
	discPrev14 := sumAmounts(filterTxns(prev14, byCategory(discretionaryCategories)))
	if discPrev14 > 0 {
		fv.DiscretionarySpendDropPercent = math.Max(0, (discPrev14-discLast14)/discPrev14*100)
	}
	if fv.DiscretionarySpendDropPercent > 20 {
		flag("Discretionary Spend Drop")
	}

	// 8. Failed auto-debit proxy: the latest loan repayment landed more
	// than a week after the historical earliest-day average.
	repayByMonth, repayMonths := groupByMonth(filterTxns(sorted, byCategory(loanRepaymentCategories)))
	if len(repayMonths) >= 2 {
		prevDays := make([]float64, 0, len(repayMonths)-1)
		for _, mk := range repayMonths[:len(repayMonths)-1] {
			prevDays = append(prevDays, earliestDay(repayByMonth[mk]))
		}
		expectedDay := mean(prevDays)
		actualDay := earliestDay(repayByMonth[repayMonths[len(repayMonths)-1]])
		if actualDay-expectedDay > 7 {
			fv.FailedAutoDebitCount = 1
		}
	}
	if fv.FailedAutoDebitCount >= 1 {
		flag("Repayment Missed Risk")
	}

	// 9. Spending volatility: coefficient of variation of daily debit
	// totals over the last 30 days.
	dailyDebits := make(map[string]float64)
	for _, t := range last30 {
		if t.Type == domain.DirectionDebit {
			dailyDebits[t.DateString()] += t.Amount
		}
	}
	debitTotals := make([]float64, 0, len(dailyDebits))
	for _, v := range dailyDebits {
		debitTotals = append(debitTotals, v)
	}
	if m := mean(debitTotals); m > 0 {
		fv.SpendingVolatilityIndex = stdDev(debitTotals) / m
	}
	if fv.SpendingVolatilityIndex > 0.8 {
		flag("High Volatility Spend")
	}

	// 10. Debt burden: 30-day loan repayments over 60-day salary inflow.
	loanRepay30 := sumAmounts(filterTxns(last30, byCategory(loanRepaymentCategories)))
	salary60 := sumAmounts(filterTxns(last60, isSalaryTxn))
	if salary60 > 0 {
		fv.DebtBurdenRatio = loanRepay30 / salary60
	}
	if fv.DebtBurdenRatio > 0.35 {
		flag("High Debt Burden")
	}

	// 11. Net cashflow over the last 30 days.
	var credits30, debits30 float64
	for _, t := range last30 {
		if t.Type == domain.DirectionCredit {
			credits30 += t.Amount
		} else {
			debits30 += t.Amount
		}
	}
	fv.NetCashflow = credits30 - debits30
	if fv.NetCashflow < 0 {
		flag("Negative Cashflow")
	}

	// 12. Gambling spend ratio, 30-day window over the previous one.
	gamblingLast30 := sumAmounts(filterTxns(last30, byCategory(gamblingCategories)))
	prev30 := between(sorted, daysAgo(60), daysAgo(30))
	gamblingPrev30 := sumAmounts(filterTxns(prev30, byCategory(gamblingCategories)))
	if gamblingPrev30 > 0 {
		fv.GamblingSpendRatio = gamblingLast30 / gamblingPrev30
	}
	if fv.GamblingSpendRatio > 2 {
		flag("High Gambling Spend")
	}

	return fv
}

// DetectSegment classifies the customer from behavior alone. Any
// salary-category credit means Salaried; otherwise the average credit
// amount sets the bucket.
func DetectSegment(txns []domain.Transaction) domain.Segment {
	for _, t := range txns {
		if t.Type == domain.DirectionCredit && matchesAny(t.Category, salaryCategories) {
			return domain.SegmentSalaried
		}
	}
	var creditTotal float64
	for _, t := range txns {
		if t.Type == domain.DirectionCredit {
			creditTotal += t.Amount
		}
	}
	avg := creditTotal / math.Max(float64(len(txns)), 1)
	switch {
	case avg < 5000:
		return domain.SegmentStudent
	case avg > 15000:
		return domain.SegmentSelfEmployed
	default:
		return domain.SegmentRetired
	}
}

// DataConfidence maps transaction count to a confidence step for the
// compliance narrative.
func DataConfidence(txns []domain.Transaction) float64 {
	switch n := len(txns); {
	case n >= 90:
		return 0.95
	case n >= 60:
		return 0.85
	case n >= 30:
		return 0.75
	case n >= 15:
		return 0.60
	default:
		return 0.40
	}
}
