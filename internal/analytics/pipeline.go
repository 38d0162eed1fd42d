package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

// AnalyzePipeline summarises open opportunities by stage with probability-weighted values.
// Stale deals stay in the totals and are additionally listed.
func (e *Engine) AnalyzePipeline(opportunities []models.Opportunity, asOf time.Time) models.PipelineSummary {
	summary := models.PipelineSummary{
		AsOf:               asOf,
		TotalOpenValue:     decimal.Zero,
		WeightedValue:      decimal.Zero,
		StaleOpportunities: []models.Opportunity{},
	}

	byStage := make(map[models.Stage]*models.StageSummary, len(models.Stages))
	for _, stage := range models.Stages {
		byStage[stage] = &models.StageSummary{
			Stage:         stage,
			TotalValue:    decimal.Zero,
			WeightedValue: decimal.Zero,
			Probability:   e.policy.StageProbabilities[stage],
		}
	}

	staleBefore := models.Day(asOf).AddDate(0, 0, -e.policy.StaleAfterDays)

	for _, o := range opportunities {
		if err := e.validateOpportunity(o); err != nil {
			summary.SkippedRecords++
			continue
		}

		weighted := e.weightedValue(o)
		stage := byStage[o.Stage]
		stage.Count++
		stage.TotalValue = stage.TotalValue.Add(o.ExpectedValue)
		stage.WeightedValue = stage.WeightedValue.Add(weighted)

		switch o.Stage {
		case models.StageWon:
			summary.WonCount++
			continue
		case models.StageLost:
			summary.LostCount++
			continue
		}

		summary.OpenCount++
		summary.TotalOpenValue = summary.TotalOpenValue.Add(o.ExpectedValue)
		summary.WeightedValue = summary.WeightedValue.Add(weighted)
		if models.Day(o.LastActivity).Before(staleBefore) {
			summary.StaleOpportunities = append(summary.StaleOpportunities, o)
		}
	}

	for _, stage := range models.Stages {
		summary.Stages = append(summary.Stages, *byStage[stage])
	}

	sort.Slice(summary.StaleOpportunities, func(i, j int) bool {
		a, b := summary.StaleOpportunities[i], summary.StaleOpportunities[j]
		if !a.LastActivity.Equal(b.LastActivity) {
			return a.LastActivity.Before(b.LastActivity)
		}
		return a.ID < b.ID
	})

	summary.ConversionRate = conversionRate(summary.WonCount, summary.LostCount)
	return summary
}

func conversionRate(won, lost int) float64 {
	if won+lost == 0 {
		return 0
	}
	return float64(won) / float64(won+lost)
}

// weightedValue is expected value times win probability.
func (e *Engine) weightedValue(o models.Opportunity) decimal.Decimal {
	return o.ExpectedValue.Mul(decimal.NewFromFloat(e.policy.WinProbability(o)))
}

func (e *Engine) validateOpportunity(o models.Opportunity) error {
	if !o.Stage.Valid() {
		return fmt.Errorf("%w: opportunity %d has unknown stage %q", ErrInvalidRecord, o.ID, o.Stage)
	}
	if o.ExpectedValue.IsNegative() {
		return fmt.Errorf("%w: opportunity %d has negative expected value", ErrInvalidRecord, o.ID)
	}
	if p := o.WinProbability; p != nil && (*p < 0 || *p > 1) {
		return fmt.Errorf("%w: opportunity %d has win probability %v outside [0,1]", ErrInvalidRecord, o.ID, *p)
	}
	return nil
}

// OpportunityWarnings lists the malformed opportunities of a batch.
func (e *Engine) OpportunityWarnings(opportunities []models.Opportunity) []RecordWarning {
	var warnings []RecordWarning
	for _, o := range opportunities {
		if err := e.validateOpportunity(o); err != nil {
			warnings = append(warnings, RecordWarning{Kind: WarningInvalidRecord, RecordID: o.ID, Reason: err.Error()})
		}
	}
	return warnings
}
