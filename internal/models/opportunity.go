package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stage is a sales pipeline stage
type Stage string

const (
	StageProspecting   Stage = "prospecting"
	StageQualification Stage = "qualification"
	StageProposal      Stage = "proposal"
	StageNegotiation   Stage = "negotiation"
	StageWon           Stage = "won"
	StageLost          Stage = "lost"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageProspecting,
	StageQualification,
	StageProposal,
	StageNegotiation,
	StageWon,
	StageLost,
}

// Valid reports whether s is a known stage
func (s Stage) Valid() bool {
	for _, known := range Stages {
		if s == known {
			return true
		}
	}
	return false
}

// Closed reports whether the deal has left the open pipeline
func (s Stage) Closed() bool {
	return s == StageWon || s == StageLost
}

// Opportunity represents a sales pipeline deal
type Opportunity struct {
	ID             int64           `json:"id"`
	ClientID       int64           `json:"client_id"`
	Title          string          `json:"title"`
	ExpectedValue  decimal.Decimal `json:"expected_value"`
	Stage          Stage           `json:"stage"`
	WinProbability *float64        `json:"win_probability,omitempty"` // overrides the stage default
	ExpectedClose  time.Time       `json:"expected_close"`
	LastActivity   time.Time       `json:"last_activity"`
}

// StageSummary aggregates the pipeline for one stage
type StageSummary struct {
	Stage         Stage           `json:"stage"`
	Count         int             `json:"count"`
	TotalValue    decimal.Decimal `json:"total_value"`
	WeightedValue decimal.Decimal `json:"weighted_value"`
	Probability   float64         `json:"probability"`
}

// PipelineSummary represents the probability-weighted sales pipeline
type PipelineSummary struct {
	AsOf               time.Time       `json:"as_of"`
	OpenCount          int             `json:"open_count"`
	TotalOpenValue     decimal.Decimal `json:"total_open_value"`
	WeightedValue      decimal.Decimal `json:"weighted_value"`
	Stages             []StageSummary  `json:"stages"`
	StaleOpportunities []Opportunity   `json:"stale_opportunities"`
	WonCount           int             `json:"won_count"`
	LostCount          int             `json:"lost_count"`
	ConversionRate     float64         `json:"conversion_rate"` // won / (won + lost)
	SkippedRecords     int             `json:"skipped_records"`
}
