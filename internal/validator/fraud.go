package validator

import (
	"fmt"
	"time"

	"github.com/opensource-finance/txguard/internal/domain"
	"github.com/shopspring/decimal"
)

// Built-in signal names.
const (
	SignalRoundNumber  = "round_number"
	SignalHighValue    = "high_value"
	SignalOffHours     = "off_hours"
	SignalWireTransfer = "wire_transfer"
	SignalVelocity     = "velocity"
)

const maxFraudScore = 100

// FraudAssessment is the output of FraudScorer.
type FraudAssessment struct {
	Score     int
	Signals   []domain.FraudSignal
	Breakdown domain.RiskBreakdown
}

// Warnings returns the warning text of every triggered signal, in order.
func (a FraudAssessment) Warnings() []string {
	warnings := make([]string, 0, len(a.Signals))
	for _, s := range a.Signals {
		warnings = append(warnings, s.Warning)
	}
	return warnings
}

// FraudScorer combines independent heuristics into a 0-100 score.
// Contributions are additive and the total is clamped to 100.
type FraudScorer struct {
	weights domain.FraudWeights
	extra   []domain.FraudHeuristics
}

// NewFraudScorer creates a scorer. extra heuristics run in order after the
// built-in ones; nil entries are ignored.
func NewFraudScorer(weights domain.FraudWeights, extra ...domain.FraudHeuristics) *FraudScorer {
	if weights.OffHoursLocation == nil {
		weights.OffHoursLocation = time.UTC
	}
	s := &FraudScorer{weights: weights}
	for _, h := range extra {
		if h != nil {
			s.extra = append(s.extra, h)
		}
	}
	return s
}

// Score evaluates tx. recentCount is the optional velocity signal from an
// external history store; nil contributes nothing.
func (s *FraudScorer) Score(tx *domain.Transaction, recentCount *int64) FraudAssessment {
	var signals []domain.FraudSignal
	add := func(sig *domain.FraudSignal) {
		if sig != nil {
			signals = append(signals, *sig)
		}
	}

	add(s.roundNumber(tx))
	add(s.highValue(tx))
	add(s.offHours(tx))
	add(s.wireTransfer(tx))
	add(s.velocity(recentCount))

	for _, h := range s.extra {
		for _, sig := range h.Evaluate(tx) {
			if sig.Weight < 0 {
				sig.Weight = 0
			}
			signals = append(signals, sig)
		}
	}

	return assess(signals)
}

func assess(signals []domain.FraudSignal) FraudAssessment {
	var breakdown domain.RiskBreakdown
	total := 0
	for _, sig := range signals {
		total += sig.Weight
		switch sig.Family {
		case domain.FamilyAmount:
			breakdown.AmountRisk += sig.Weight
		case domain.FamilyTime:
			breakdown.TimeRisk += sig.Weight
		case domain.FamilyVelocity:
			breakdown.VelocityRisk += sig.Weight
		default:
			breakdown.PatternRisk += sig.Weight
		}
	}
	if total > maxFraudScore {
		total = maxFraudScore
	}
	breakdown.TotalScore = total

	return FraudAssessment{
		Score:     total,
		Signals:   signals,
		Breakdown: breakdown,
	}
}

func (s *FraudScorer) roundNumber(tx *domain.Transaction) *domain.FraudSignal {
	w := s.weights
	if tx.Amount.LessThan(w.RoundLargeThreshold) || !tx.Amount.Mod(w.RoundUnit).IsZero() {
		return nil
	}
	return &domain.FraudSignal{
		Name:    SignalRoundNumber,
		Family:  domain.FamilyPattern,
		Weight:  w.RoundWeight,
		Warning: fmt.Sprintf("round-number structuring: amount %s is a multiple of %s", tx.Amount.StringFixed(2), w.RoundUnit),
	}
}

// highValue adds HighValueWeight once the threshold is exceeded, then
// HighValueStepWeight per full HighValueStep beyond it, up to HighValueMaxWeight.
func (s *FraudScorer) highValue(tx *domain.Transaction) *domain.FraudSignal {
	w := s.weights
	if !tx.Amount.GreaterThan(w.HighValueThreshold) {
		return nil
	}

	weight := w.HighValueWeight
	if w.HighValueStep.IsPositive() && w.HighValueStepWeight > 0 {
		steps := tx.Amount.Sub(w.HighValueThreshold).Div(w.HighValueStep).Floor()
		ceiling := max(w.HighValueMaxWeight, w.HighValueWeight)
		extra := steps.Mul(decimal.NewFromInt(int64(w.HighValueStepWeight)))
		if extra.GreaterThan(decimal.NewFromInt(int64(ceiling - weight))) {
			weight = ceiling
		} else {
			weight += int(extra.IntPart())
		}
	}

	return &domain.FraudSignal{
		Name:    SignalHighValue,
		Family:  domain.FamilyAmount,
		Weight:  weight,
		Warning: fmt.Sprintf("high-value transaction: amount %s exceeds %s", tx.Amount.StringFixed(2), w.HighValueThreshold),
	}
}

func (s *FraudScorer) offHours(tx *domain.Transaction) *domain.FraudSignal {
	w := s.weights
	local := tx.Timestamp.In(w.OffHoursLocation)
	if !inHourWindow(local.Hour(), w.OffHoursStart, w.OffHoursEnd) {
		return nil
	}
	return &domain.FraudSignal{
		Name:    SignalOffHours,
		Family:  domain.FamilyTime,
		Weight:  w.OffHoursWeight,
		Warning: fmt.Sprintf("off-hours transaction at %s", local.Format("15:04 MST")),
	}
}

func (s *FraudScorer) wireTransfer(tx *domain.Transaction) *domain.FraudSignal {
	w := s.weights
	if tx.Type != domain.TypeWireTransfer || !tx.Amount.GreaterThan(w.WireTransferThreshold) {
		return nil
	}
	return &domain.FraudSignal{
		Name:    SignalWireTransfer,
		Family:  domain.FamilyPattern,
		Weight:  w.WireTransferWeight,
		Warning: fmt.Sprintf("wire transfer above %s flagged for review", w.WireTransferThreshold),
	}
}

func (s *FraudScorer) velocity(recentCount *int64) *domain.FraudSignal {
	w := s.weights
	if recentCount == nil || *recentCount <= w.VelocityLimit {
		return nil
	}
	return &domain.FraudSignal{
		Name:    SignalVelocity,
		Family:  domain.FamilyVelocity,
		Weight:  w.VelocityWeight,
		Warning: fmt.Sprintf("high velocity: %d transactions in the last %s", *recentCount, w.VelocityWindow),
	}
}

// inHourWindow reports whether hour lies in [start, end), wrapping past
// midnight when start > end.
func inHourWindow(hour, start, end int) bool {
	switch {
	case start == end:
		return false
	case start < end:
		return hour >= start && hour < end
	default:
		return hour >= start || hour < end
	}
}
