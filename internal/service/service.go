package service

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Dan9191/portfolio-analytics/internal/analytics"
	"github.com/Dan9191/portfolio-analytics/internal/metrics"
	"github.com/Dan9191/portfolio-analytics/internal/models"
	"github.com/Dan9191/portfolio-analytics/internal/repository"
)

// Service loads snapshots from storage and runs the analytics engine over them
type Service struct {
	repo    repository.Storage
	engine  *analytics.Engine
	log     *logrus.Logger
	metrics *metrics.Metrics
}

// NewService initializes a new service
func NewService(repo repository.Storage, engine *analytics.Engine, log *logrus.Logger, m *metrics.Metrics) *Service {
	return &Service{repo: repo, engine: engine, log: log, metrics: m}
}

// Engine exposes the engine for callers that analyse snapshots outside storage
func (s *Service) Engine() *analytics.Engine {
	return s.engine
}

// PortfolioRiskSummary scores every client and aggregates the result
func (s *Service) PortfolioRiskSummary(ctx context.Context, asOf time.Time) (summary models.PortfolioRiskSummary, err error) {
	defer s.observe("risk_summary", time.Now(), &err)

	snap, err := s.load(ctx)
	if err != nil {
		return models.PortfolioRiskSummary{}, err
	}
	portfolio := s.scorePortfolio(snap, asOf)
	summary = s.engine.Summarize(portfolio, asOf)
	s.metrics.ObservePortfolio(summary)

	s.log.WithFields(logrus.Fields{
		"operation":     "risk_summary",
		"as_of":         asOf.Format("2006-01-02"),
		"clients":       summary.TotalClientsAnalyzed,
		"at_risk":       summary.AtRiskClients,
		"skipped":       summary.SkippedRecords,
		"orphaned":      summary.OrphanedRecords,
		"value_at_risk": summary.ValueAtRisk.StringFixed(2),
	}).Info("Portfolio risk summary computed")
	return summary, nil
}

// ListClientRisk returns every client's score, highest risk first
func (s *Service) ListClientRisk(ctx context.Context, asOf time.Time) (scores []models.RiskScore, err error) {
	defer s.observe("risk_clients", time.Now(), &err)

	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return analytics.Rank(s.scorePortfolio(snap, asOf).Scores), nil
}

// ClientRisk returns the detailed risk view of one client
func (s *Service) ClientRisk(ctx context.Context, clientID int64, asOf time.Time) (detail models.ClientRiskDetail, err error) {
	defer s.observe("risk_client", time.Now(), &err)

	snap, err := s.load(ctx)
	if err != nil {
		return models.ClientRiskDetail{}, err
	}
	detail, err = s.engine.ClientRisk(snap, clientID, asOf)
	if err != nil {
		return models.ClientRiskDetail{}, err
	}
	s.log.Infof("Client %d scored %d (%s)", clientID, detail.Score, detail.Level)
	return detail, nil
}

// ForecastSummary projects revenue over the horizon; zero months selects the policy default
func (s *Service) ForecastSummary(ctx context.Context, asOf time.Time, months int) (summary models.ForecastSummary, err error) {
	defer s.observe("forecast_summary", time.Now(), &err)

	snap, err := s.load(ctx)
	if err != nil {
		return models.ForecastSummary{}, err
	}
	summary, err = s.engine.ForecastSummary(snap, s.scorePortfolio(snap, asOf), asOf, s.horizon(months))
	if err != nil {
		return models.ForecastSummary{}, err
	}

	s.log.WithFields(logrus.Fields{
		"operation": "forecast_summary",
		"as_of":     asOf.Format("2006-01-02"),
		"months":    summary.HorizonMonths,
		"projected": summary.TotalProjected.StringFixed(2),
	}).Info("Revenue forecast computed")
	return summary, nil
}

// ForecastMonthly returns the per-month projection
func (s *Service) ForecastMonthly(ctx context.Context, asOf time.Time, months int) (result []models.ForecastMonth, err error) {
	defer s.observe("forecast_monthly", time.Now(), &err)

	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return s.engine.Forecast(analytics.ForecastInput{
		Invoices:      snap.Invoices,
		Levels:        s.scorePortfolio(snap, asOf).Levels(),
		Opportunities: snap.Opportunities,
		AsOf:          asOf,
		HorizonMonths: s.horizon(months),
	})
}

// PipelineSummary analyses the sales pipeline
func (s *Service) PipelineSummary(ctx context.Context, asOf time.Time) (summary models.PipelineSummary, err error) {
	defer s.observe("pipeline_summary", time.Now(), &err)

	snap, err := s.load(ctx)
	if err != nil {
		return models.PipelineSummary{}, err
	}
	s.logWarnings(s.engine.OpportunityWarnings(snap.Opportunities))
	summary = s.engine.AnalyzePipeline(snap.Opportunities, asOf)
	if len(summary.StaleOpportunities) > 0 {
		s.log.Warnf("%d opportunities without activity for more than %d days",
			len(summary.StaleOpportunities), s.engine.Policy().StaleAfterDays)
	}
	return summary, nil
}

// DueInvoices lists unpaid invoices due within days; a positive limit truncates the list
func (s *Service) DueInvoices(ctx context.Context, asOf time.Time, days, limit int) (list models.DueInvoiceList, err error) {
	defer s.observe("due_invoices", time.Now(), &err)

	if limit < 0 {
		return models.DueInvoiceList{}, fmt.Errorf("%w: limit must not be negative, got %d", analytics.ErrInvalidArgument, limit)
	}
	snap, err := s.load(ctx)
	if err != nil {
		return models.DueInvoiceList{}, err
	}
	list, err = s.engine.DueInvoices(snap.Invoices, snap.Clients, asOf, days)
	if err != nil {
		return models.DueInvoiceList{}, err
	}
	if limit > 0 && len(list.Items) > limit {
		list.Items = list.Items[:limit]
	}
	return list, nil
}

// RecordRiskSnapshot computes the portfolio summary and persists it as a history row
func (s *Service) RecordRiskSnapshot(ctx context.Context, asOf time.Time) (*models.RiskSnapshot, models.PortfolioRiskSummary, error) {
	summary, err := s.PortfolioRiskSummary(ctx, asOf)
	if err != nil {
		return nil, models.PortfolioRiskSummary{}, err
	}

	snapshot := &models.RiskSnapshot{
		AsOf:                 asOf,
		TotalClientsAnalyzed: summary.TotalClientsAnalyzed,
		LowRiskClients:       summary.LowRiskClients,
		MediumRiskClients:    summary.MediumRiskClients,
		HighRiskClients:      summary.HighRiskClients,
		CriticalRiskClients:  summary.CriticalRiskClients,
		ValueAtRisk:          summary.ValueAtRisk,
	}
	if err := s.repo.SaveRiskSnapshot(ctx, snapshot); err != nil {
		return nil, models.PortfolioRiskSummary{}, err
	}
	s.log.Infof("Risk snapshot %s recorded", snapshot.ID)
	return snapshot, summary, nil
}

// RiskSnapshots lists persisted summaries, newest first
func (s *Service) RiskSnapshots(ctx context.Context, limit int) ([]models.RiskSnapshot, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative, got %d", analytics.ErrInvalidArgument, limit)
	}
	return s.repo.ListRiskSnapshots(ctx, limit)
}

// ImportInvoices stores invoices received from the bank, updating settled ones
func (s *Service) ImportInvoices(ctx context.Context, invoices []models.Invoice) (int, error) {
	s.logWarnings(s.engine.InvoiceWarnings(invoices))
	if err := s.repo.SaveInvoices(ctx, invoices); err != nil {
		return 0, err
	}
	s.metrics.ImportedRecords.Add(float64(len(invoices)))
	s.log.Infof("Imported %d invoices", len(invoices))
	return len(invoices), nil
}

// ImportSnapshot stores a complete roster, billing history and pipeline
func (s *Service) ImportSnapshot(ctx context.Context, snap models.Snapshot) error {
	if err := s.repo.SaveClients(ctx, snap.Clients); err != nil {
		return err
	}
	if _, err := s.ImportInvoices(ctx, snap.Invoices); err != nil {
		return err
	}
	if err := s.repo.SaveOpportunities(ctx, snap.Opportunities); err != nil {
		return err
	}
	s.log.Infof("Imported %d clients and %d opportunities", len(snap.Clients), len(snap.Opportunities))
	return nil
}

func (s *Service) load(ctx context.Context) (models.Snapshot, error) {
	snap, err := s.repo.LoadSnapshot(ctx)
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}

func (s *Service) scorePortfolio(snap models.Snapshot, asOf time.Time) analytics.PortfolioScores {
	portfolio := s.engine.ScorePortfolio(snap, asOf)
	s.logWarnings(portfolio.Warnings)
	return portfolio
}

func (s *Service) horizon(months int) int {
	if months == 0 {
		return s.engine.Policy().DefaultHorizonMonths
	}
	return months
}

func (s *Service) logWarnings(warnings []analytics.RecordWarning) {
	for _, w := range warnings {
		s.metrics.SkippedRecords.WithLabelValues(w.Kind).Inc()
		s.log.WithFields(logrus.Fields{
			"kind":      w.Kind,
			"record_id": w.RecordID,
		}).Warn(w.Reason)
	}
}

func (s *Service) observe(operation string, start time.Time, err *error) {
	s.metrics.QueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	if *err != nil {
		s.metrics.QueryErrors.WithLabelValues(operation).Inc()
		return
	}
	s.metrics.QueriesServed.WithLabelValues(operation).Inc()
}
