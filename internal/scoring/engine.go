// Package scoring turns a feature vector into a risk score, band,
// intervention tier, and ranked explainability drivers. Every function is
// pure so a score can always be reproduced from its inputs.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Normalize maps each registered signal's raw value into [0, 1] by
// dividing by its saturation point and clamping.
func Normalize(f *domain.FeatureVector) map[domain.Signal]float64 {
	norm := make(map[domain.Signal]float64, len(domain.SignalRegistry()))
	for _, spec := range domain.SignalRegistry() {
		norm[spec.Key] = math.Min(spec.Value(f)/spec.Saturation, 1)
	}
	return norm
}

// Score computes the weighted composite risk score in [0, 1]. Disabled
// signals contribute nothing; weights are applied as configured without
// renormalization.
func Score(f *domain.FeatureVector, settings *domain.Settings) float64 {
	norm := Normalize(f)
	var score float64
	for _, spec := range domain.SignalRegistry() {
		if !settings.Toggles[spec.Key] {
			continue
		}
		score += norm[spec.Key] * settings.Weights[spec.Key]
	}
	return math.Max(0, math.Min(1, score))
}

// BandFor maps a score to its risk band.
func BandFor(score float64) domain.RiskBand {
	switch {
	case score < 0.30:
		return domain.BandLow
	case score < 0.55:
		return domain.BandMedium
	case score < 0.75:
		return domain.BandHigh
	default:
		return domain.BandCritical
	}
}

// TierFor maps a band to its intervention tier.
func TierFor(band domain.RiskBand) domain.InterventionTier {
	switch band {
	case domain.BandLow:
		return domain.Tier0
	case domain.BandMedium:
		return domain.Tier1
	case domain.BandHigh:
		return domain.Tier2
	default:
		return domain.Tier3
	}
}

// DaysToDelinquency estimates days until first missed payment, linear in
// the score from 28 days down to 14.
func DaysToDelinquency(score float64) int {
	return int(math.Round(28 - score*14))
}

// DefaultProbability is the score expressed as a whole percentage.
func DefaultProbability(score float64) int {
	return int(math.Round(score * 100))
}

// Drivers returns the top five enabled signals ranked by contribution,
// each with its raw value, normalized value, and explanation.
func Drivers(f *domain.FeatureVector, settings *domain.Settings) []domain.RiskDriver {
	norm := Normalize(f)
	var drivers []domain.RiskDriver
	for _, spec := range domain.SignalRegistry() {
		if !settings.Toggles[spec.Key] {
			continue
		}
		raw := spec.Value(f)
		nv := norm[spec.Key]
		drivers = append(drivers, domain.RiskDriver{
			DriverName:      spec.Label,
			FeatureKey:      spec.Key,
			Value:           raw,
			NormalizedValue: nv,
			Contribution:    nv * settings.Weights[spec.Key],
			Explanation:     spec.Explain(raw),
		})
	}
	sort.SliceStable(drivers, func(i, j int) bool {
		return drivers[i].Contribution > drivers[j].Contribution
	})
	if len(drivers) > 5 {
		drivers = drivers[:5]
	}
	return drivers
}

var tierDescriptions = map[domain.RiskBand]string{
	domain.BandLow:      "Tier 0 (No Immediate Action)",
	domain.BandMedium:   "Tier 1 (Soft Intervention)",
	domain.BandHigh:     "Tier 2 (Proactive Restructuring)",
	domain.BandCritical: "Tier 3 (Urgent Human Outreach)",
}

// ComplianceNarrative renders the audit-ready scoring explanation. It
// names the top three drivers and always carries the no-demographics and
// human-review statements.
func ComplianceNarrative(customerID string, band domain.RiskBand, drivers []domain.RiskDriver, score float64) string {
	names := make([]string, 0, 3)
	for i, d := range drivers {
		if i >= 3 {
			break
		}
		names = append(names, strings.ToLower(d.DriverName))
	}
	return fmt.Sprintf("Customer %s has been classified as %s risk with a composite risk score of %.1f/100. ",
		customerID, strings.ToUpper(string(band)), score*100) +
		fmt.Sprintf("The primary risk drivers are: %s. ", strings.Join(names, ", ")) +
		"This assessment was generated using a weighted ensemble of behavioral financial signals with full feature transparency. " +
		fmt.Sprintf("Recommended intervention: %s. ", tierDescriptions[band]) +
		"No protected demographic attributes were used in this scoring. " +
		"A human review is required before any credit action. This report is generated in compliance with model explainability requirements."
}
