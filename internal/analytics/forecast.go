package analytics

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

// Confidence labels of a forecast month.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// ForecastInput is the snapshot slice a monthly forecast works on.
type ForecastInput struct {
	Invoices      []models.Invoice
	Levels        map[int64]models.RiskLevel // clients missing here count as low risk
	Opportunities []models.Opportunity
	AsOf          time.Time
	HorizonMonths int
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// monthIndex counts calendar months from base to t; negative when t is earlier.
func monthIndex(base, t time.Time) int {
	t = t.UTC()
	return (t.Year()-base.Year())*12 + int(t.Month()) - int(base.Month())
}

// Forecast projects revenue for HorizonMonths months starting with the month of AsOf.
func (e *Engine) Forecast(in ForecastInput) ([]models.ForecastMonth, error) {
	if in.HorizonMonths < 1 {
		return nil, fmt.Errorf("%w: horizon must be at least 1 month, got %d", ErrInvalidArgument, in.HorizonMonths)
	}

	base := monthStart(in.AsOf)
	months := make([]models.ForecastMonth, in.HorizonMonths)
	for m := range months {
		start := base.AddDate(0, m, 0)
		months[m] = models.ForecastMonth{
			MonthIndex:       m,
			Year:             start.Year(),
			Month:            start.Month(),
			Confirmed:        decimal.Zero,
			RiskAdjusted:     decimal.Zero,
			PipelineWeighted: decimal.Zero,
		}
	}

	one := decimal.NewFromInt(1)
	for _, inv := range in.Invoices {
		if e.validateInvoice(inv) != nil || inv.IsPaid(in.AsOf) {
			continue
		}
		outstanding := inv.Outstanding(in.AsOf)
		if !outstanding.IsPositive() {
			continue
		}

		m := monthIndex(base, inv.DueDate)
		if m < 0 {
			if e.policy.OverdueForecast == OverdueExclude {
				continue
			}
			m = 0
		}
		if m >= in.HorizonMonths {
			continue
		}

		level, ok := in.Levels[inv.ClientID]
		if !ok {
			level = models.RiskLow
		}
		keep := one.Sub(decimal.NewFromFloat(e.policy.LossRate(level)))

		months[m].Confirmed = months[m].Confirmed.Add(outstanding)
		months[m].RiskAdjusted = months[m].RiskAdjusted.Add(outstanding.Mul(keep))
		months[m].InvoiceCount++
	}

	for _, o := range in.Opportunities {
		if e.validateOpportunity(o) != nil || o.Stage.Closed() {
			continue
		}
		m := monthIndex(base, o.ExpectedClose)
		if m < 0 || m >= in.HorizonMonths {
			continue
		}
		months[m].PipelineWeighted = months[m].PipelineWeighted.Add(e.weightedValue(o))
		months[m].OpportunityCount++
	}

	history := e.settledByMonth(in.Invoices, in.AsOf)
	for m := range months {
		months[m].Total = months[m].RiskAdjusted.Add(months[m].PipelineWeighted)
		months[m].Projected, months[m].Trend = history.project(months[m])
		switch {
		case months[m].Confirmed.IsPositive():
			months[m].Confidence = ConfidenceHigh
		case m < 3:
			months[m].Confidence = ConfidenceMedium
		default:
			months[m].Confidence = ConfidenceLow
		}
	}
	return months, nil
}

// settledRevenue holds amounts received on invoices settled by asOf, keyed by the
// year and month of their due date.
type settledRevenue struct {
	base    time.Time
	byMonth map[time.Time]decimal.Decimal
}

func (e *Engine) settledByMonth(invoices []models.Invoice, asOf time.Time) settledRevenue {
	h := settledRevenue{base: monthStart(asOf), byMonth: map[time.Time]decimal.Decimal{}}
	for _, inv := range invoices {
		if e.validateInvoice(inv) != nil || !inv.IsPaid(asOf) {
			continue
		}
		key := monthStart(inv.DueDate)
		h.byMonth[key] = h.byMonth[key].Add(received(inv))
	}
	return h
}

// project falls back to the last twelve months' settled revenue for the same
// calendar month when a month has no confirmed billing, then compares the result
// with the same month one year earlier.
func (h settledRevenue) project(month models.ForecastMonth) (decimal.Decimal, float64) {
	start := time.Date(month.Year, month.Month, 1, 0, 0, 0, 0, time.UTC)

	projected := month.Confirmed
	if !projected.IsPositive() {
		projected = decimal.Zero
		for back := 1; back <= 12; back++ {
			past := h.base.AddDate(0, -back, 0)
			if past.Month() == month.Month {
				projected = h.byMonth[past]
				break
			}
		}
	}

	lastYear := h.byMonth[start.AddDate(-1, 0, 0)]
	if !lastYear.IsPositive() {
		return projected, 0
	}
	trend := projected.Sub(lastYear).Div(lastYear).Mul(decimal.NewFromInt(100)).Round(1)
	return projected, trend.InexactFloat64()
}

func received(inv models.Invoice) decimal.Decimal {
	if inv.PaidAmount.Valid {
		return inv.PaidAmount.Decimal
	}
	return inv.Amount
}

// ForecastSummary reports horizon totals, the confirmed-versus-pipeline split and
// trailing revenue figures. Risk levels come from the portfolio scores.
func (e *Engine) ForecastSummary(snapshot models.Snapshot, portfolio PortfolioScores, asOf time.Time, horizonMonths int) (models.ForecastSummary, error) {
	if horizonMonths < 1 {
		return models.ForecastSummary{}, fmt.Errorf("%w: horizon must be at least 1 month, got %d", ErrInvalidArgument, horizonMonths)
	}

	// Months are computed independently, so a longer run can be truncated.
	span := horizonMonths
	if span < 3 {
		span = 3
	}
	months, err := e.Forecast(ForecastInput{
		Invoices:      snapshot.Invoices,
		Levels:        portfolio.Levels(),
		Opportunities: snapshot.Opportunities,
		AsOf:          asOf,
		HorizonMonths: span,
	})
	if err != nil {
		return models.ForecastSummary{}, err
	}

	summary := models.ForecastSummary{
		AsOf:                 asOf,
		HorizonMonths:        horizonMonths,
		TotalConfirmed:       decimal.Zero,
		TotalRiskAdjusted:    decimal.Zero,
		TotalPipeline:        decimal.Zero,
		TotalProjected:       decimal.Zero,
		ExpectedCurrentMonth: months[0].Confirmed,
		ExpectedNextMonth:    months[1].Confirmed,
		ExpectedQuarter:      months[0].Confirmed.Add(months[1].Confirmed).Add(months[2].Confirmed),
		Months:               months[:horizonMonths],
	}

	for _, m := range summary.Months {
		summary.TotalConfirmed = summary.TotalConfirmed.Add(m.Confirmed)
		summary.TotalRiskAdjusted = summary.TotalRiskAdjusted.Add(m.RiskAdjusted)
		summary.TotalPipeline = summary.TotalPipeline.Add(m.PipelineWeighted)
		summary.TotalProjected = summary.TotalProjected.Add(m.Total)
	}
	if summary.TotalProjected.IsPositive() {
		summary.ConfirmedShare = summary.TotalRiskAdjusted.Div(summary.TotalProjected).InexactFloat64()
		summary.PipelineShare = summary.TotalPipeline.Div(summary.TotalProjected).InexactFloat64()
	}

	summary.LastMonthRevenue, summary.AverageMonthlyRevenue = e.trailingRevenue(snapshot.Invoices, asOf)
	summary.DueInvoiceCount = e.countDueThisQuarter(snapshot.Invoices, asOf)

	pipeline := e.AnalyzePipeline(snapshot.Opportunities, asOf)
	summary.ConversionRate = pipeline.ConversionRate
	summary.OpenOpportunityCount = pipeline.OpenCount
	return summary, nil
}

// trailingRevenue sums payments received in the previous month and averages
// the three months before the month of asOf.
func (e *Engine) trailingRevenue(invoices []models.Invoice, asOf time.Time) (lastMonth, average decimal.Decimal) {
	base := monthStart(asOf)
	lastMonth, threeMonths := decimal.Zero, decimal.Zero

	for _, inv := range invoices {
		if e.validateInvoice(inv) != nil || !inv.IsPaid(asOf) {
			continue
		}
		switch m := monthIndex(base, *inv.PaidDate); {
		case m == -1:
			lastMonth = lastMonth.Add(received(inv))
			threeMonths = threeMonths.Add(received(inv))
		case m == -2 || m == -3:
			threeMonths = threeMonths.Add(received(inv))
		}
	}
	return lastMonth, threeMonths.Div(decimal.NewFromInt(3))
}

// countDueThisQuarter counts unpaid invoices due from asOf until the end of the third month.
func (e *Engine) countDueThisQuarter(invoices []models.Invoice, asOf time.Time) int {
	from, until := models.Day(asOf), monthStart(asOf).AddDate(0, 3, 0)
	count := 0
	for _, inv := range invoices {
		if e.validateInvoice(inv) != nil || inv.IsPaid(asOf) {
			continue
		}
		due := models.Day(inv.DueDate)
		if !due.Before(from) && due.Before(until) {
			count++
		}
	}
	return count
}
