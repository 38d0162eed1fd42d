package analytics

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

const daysPerMonth = 30.0

// Score computes the delinquency risk of one client from its ordered invoices.
// A client without usable history scores 0 (low).
func (e *Engine) Score(client models.Client, history []models.Invoice, asOf time.Time) models.RiskScore {
	score := models.RiskScore{
		ClientID:   client.ID,
		ClientName: client.Name,
		Level:      models.RiskLow,
		Reasons:    []string{},
		Factors: models.RiskFactors{
			OverdueAmount: decimal.Zero,
			Exposure:      decimal.Zero,
		},
	}

	var (
		f             = &score.Factors
		delaySum      float64
		weightedDelay float64
	)

	for _, inv := range history {
		if err := e.validateInvoice(inv); err != nil {
			score.SkippedRecords++
			continue
		}
		score.TotalInvoices++

		switch inv.Status(asOf) {
		case models.InvoiceStatusPaid:
			score.PaidInvoices++
			if score.LastPayment == nil || inv.PaidDate.After(*score.LastPayment) {
				paid := *inv.PaidDate
				score.LastPayment = &paid
			}
		case models.InvoiceStatusPending:
			score.PendingInvoices++
			f.Exposure = f.Exposure.Add(inv.Outstanding(asOf))
		case models.InvoiceStatusOverdue:
			outstanding := inv.Outstanding(asOf)
			days := float64(inv.DaysOverdue(asOf))
			weight := math.Pow(e.policy.Decay, days/daysPerMonth)

			f.OverdueCount++
			f.OverdueAmount = f.OverdueAmount.Add(outstanding)
			f.Exposure = f.Exposure.Add(outstanding)
			delaySum += days

			f.WeightedOverdueCount += weight
			f.WeightedOverdueAmount += weight * outstanding.InexactFloat64()
			weightedDelay += weight * days
		}
	}

	if f.OverdueCount > 0 {
		f.AvgDelayDays = delaySum / float64(f.OverdueCount)
		f.WeightedDelayDays = weightedDelay / float64(f.OverdueCount)
	}

	score.Score = e.combine(*f)
	score.Level = e.policy.Level(score.Score)
	score.Reasons = e.reasons(score, asOf)
	return score
}

// combine normalises the weighted factors and maps their weighted sum to [0,100].
func (e *Engine) combine(f models.RiskFactors) int {
	w, s := e.policy.Weights, e.policy.Scales
	raw := w.OverdueCount*clamp01(f.WeightedOverdueCount/s.OverdueCount) +
		w.OverdueAmount*clamp01(f.WeightedOverdueAmount/s.OverdueAmount) +
		w.DelayDays*clamp01(f.WeightedDelayDays/s.DelayDays) +
		w.Exposure*clamp01(f.Exposure.InexactFloat64()/s.Exposure)

	score := int(math.Floor(raw*100 + 0.5))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// validateInvoice rejects records that cannot take part in a computation.
func (e *Engine) validateInvoice(inv models.Invoice) error {
	if inv.DueDate.IsZero() {
		return fmt.Errorf("%w: invoice %d has no due date", ErrInvalidRecord, inv.ID)
	}
	if !inv.Amount.IsPositive() {
		return fmt.Errorf("%w: invoice %d has non-positive amount %s", ErrInvalidRecord, inv.ID, inv.Amount)
	}
	if inv.PaidAmount.Valid && inv.PaidAmount.Decimal.IsNegative() {
		return fmt.Errorf("%w: invoice %d has negative paid amount", ErrInvalidRecord, inv.ID)
	}
	if inv.PaidDate != nil {
		early := models.DaysBetween(*inv.PaidDate, inv.DueDate)
		if early > e.policy.MaxEarlyPaymentDays {
			return fmt.Errorf("%w: invoice %d paid %d days before due date", ErrInvalidRecord, inv.ID, early)
		}
	}
	return nil
}

// InvoiceWarnings lists the malformed invoices of a batch.
func (e *Engine) InvoiceWarnings(invoices []models.Invoice) []RecordWarning {
	var warnings []RecordWarning
	for _, inv := range invoices {
		if err := e.validateInvoice(inv); err != nil {
			warnings = append(warnings, RecordWarning{Kind: WarningInvalidRecord, RecordID: inv.ID, Reason: err.Error()})
		}
	}
	return warnings
}

func (e *Engine) reasons(score models.RiskScore, asOf time.Time) []string {
	f := score.Factors
	reasons := []string{}

	if f.OverdueCount > 0 {
		reasons = append(reasons, fmt.Sprintf("%d overdue invoice(s) totalling %s", f.OverdueCount, f.OverdueAmount.StringFixed(2)))
		reasons = append(reasons, fmt.Sprintf("average delay of %.0f days", f.AvgDelayDays))
	}
	if score.LastPayment == nil && f.OverdueCount > 0 {
		reasons = append(reasons, "no payment recorded")
	} else if score.LastPayment != nil {
		since := models.DaysBetween(*score.LastPayment, asOf)
		if since > 90 && f.OverdueCount > 0 {
			reasons = append(reasons, fmt.Sprintf("last payment %d days ago", since))
		}
	}
	if f.Exposure.IsPositive() {
		reasons = append(reasons, fmt.Sprintf("open exposure of %s", f.Exposure.StringFixed(2)))
	}
	if score.SkippedRecords > 0 {
		reasons = append(reasons, fmt.Sprintf("%d malformed invoice(s) ignored", score.SkippedRecords))
	}
	return reasons
}
