package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RiskLevel is the categorical delinquency risk of a client
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// RiskFactors holds the raw and recency-weighted inputs of a risk score
type RiskFactors struct {
	OverdueCount          int             `json:"overdue_count"`
	OverdueAmount         decimal.Decimal `json:"overdue_amount"`
	AvgDelayDays          float64         `json:"avg_delay_days"`
	Exposure              decimal.Decimal `json:"exposure"`
	WeightedOverdueCount  float64         `json:"weighted_overdue_count"`
	WeightedOverdueAmount float64         `json:"weighted_overdue_amount"`
	WeightedDelayDays     float64         `json:"weighted_delay_days"`
}

// RiskScore represents the delinquency risk of a single client
type RiskScore struct {
	ClientID        int64       `json:"client_id"`
	ClientName      string      `json:"client_name"`
	Score           int         `json:"score"` // 0..100
	Level           RiskLevel   `json:"level"`
	Factors         RiskFactors `json:"factors"`
	TotalInvoices   int         `json:"total_invoices"`
	PaidInvoices    int         `json:"paid_invoices"`
	PendingInvoices int         `json:"pending_invoices"`
	LastPayment     *time.Time  `json:"last_payment,omitempty"`
	Reasons         []string    `json:"reasons"`
	SkippedRecords  int         `json:"skipped_records"`
}

// ClientRiskDetail extends a risk score with recommendations and recent invoices
type ClientRiskDetail struct {
	RiskScore
	Recommendations []string              `json:"recommendations"`
	RecentInvoices  []InvoiceHistoryEntry `json:"recent_invoices"`
}

// PortfolioRiskSummary represents risk analytics over the whole client base
type PortfolioRiskSummary struct {
	AsOf                 time.Time       `json:"as_of"`
	TotalClientsAnalyzed int             `json:"total_clients_analyzed"`
	LowRiskClients       int             `json:"low_risk_clients"`
	MediumRiskClients    int             `json:"medium_risk_clients"`
	HighRiskClients      int             `json:"high_risk_clients"`
	CriticalRiskClients  int             `json:"critical_risk_clients"`
	AtRiskClients        int             `json:"at_risk_clients"` // high + critical
	ValueAtRisk          decimal.Decimal `json:"value_at_risk"`
	TopClients           []RiskScore     `json:"top_clients"`
	SkippedRecords       int             `json:"skipped_records"`
	OrphanedRecords      int             `json:"orphaned_records"`
}

// ForecastMonth represents projected revenue for one month of the horizon
type ForecastMonth struct {
	MonthIndex       int             `json:"month_index"`
	Year             int             `json:"year"`
	Month            time.Month      `json:"month"`
	Confirmed        decimal.Decimal `json:"confirmed"`
	RiskAdjusted     decimal.Decimal `json:"risk_adjusted"`
	PipelineWeighted decimal.Decimal `json:"pipeline_weighted"`
	Total            decimal.Decimal `json:"total"`
	InvoiceCount     int             `json:"invoice_count"`
	OpportunityCount int             `json:"opportunity_count"`
	Confidence       string          `json:"confidence"`
	// Projected is Confirmed, or the settled revenue of the same calendar month over
	// the last twelve months when nothing is billed yet. It is not part of Total.
	Projected        decimal.Decimal `json:"projected"`
	// Trend is the percent change of Projected against the same month a year earlier,
	// 0 when that month has no settled revenue.
	Trend            float64         `json:"trend"`
}

// ForecastSummary represents horizon totals of the revenue forecast
type ForecastSummary struct {
	AsOf                  time.Time       `json:"as_of"`
	HorizonMonths         int             `json:"horizon_months"`
	TotalConfirmed        decimal.Decimal `json:"total_confirmed"`
	TotalRiskAdjusted     decimal.Decimal `json:"total_risk_adjusted"`
	TotalPipeline         decimal.Decimal `json:"total_pipeline"`
	TotalProjected        decimal.Decimal `json:"total_projected"`
	ConfirmedShare        float64         `json:"confirmed_share"`
	PipelineShare         float64         `json:"pipeline_share"`
	ExpectedCurrentMonth  decimal.Decimal `json:"expected_current_month"`
	ExpectedNextMonth     decimal.Decimal `json:"expected_next_month"`
	ExpectedQuarter       decimal.Decimal `json:"expected_quarter"`
	LastMonthRevenue      decimal.Decimal `json:"last_month_revenue"`
	AverageMonthlyRevenue decimal.Decimal `json:"average_monthly_revenue"`
	ConversionRate        float64         `json:"conversion_rate"`
	DueInvoiceCount       int             `json:"due_invoice_count"`
	OpenOpportunityCount  int             `json:"open_opportunity_count"`
	Months                []ForecastMonth `json:"months"`
}

// RiskSnapshot is a persisted point-in-time portfolio summary
type RiskSnapshot struct {
	ID                   uuid.UUID       `json:"id"`
	AsOf                 time.Time       `json:"as_of"`
	TotalClientsAnalyzed int             `json:"total_clients_analyzed"`
	LowRiskClients       int             `json:"low_risk_clients"`
	MediumRiskClients    int             `json:"medium_risk_clients"`
	HighRiskClients      int             `json:"high_risk_clients"`
	CriticalRiskClients  int             `json:"critical_risk_clients"`
	ValueAtRisk          decimal.Decimal `json:"value_at_risk"`
	CreatedAt            time.Time       `json:"created_at"`
}
