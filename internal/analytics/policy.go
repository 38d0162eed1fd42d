package analytics

import (
	"fmt"
	"math"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

// Overdue forecast policies.
const (
	OverdueRollForward = "roll-forward"
	OverdueExclude     = "exclude"
)

// ScoreWeights are the shares of each normalised factor in the score. They must sum to 1.
type ScoreWeights struct {
	OverdueCount  float64 `yaml:"overdueCount"`
	OverdueAmount float64 `yaml:"overdueAmount"`
	DelayDays     float64 `yaml:"delayDays"`
	Exposure      float64 `yaml:"exposure"`
}

// ScoreScales are the ceilings at which a factor saturates to 1.
type ScoreScales struct {
	OverdueCount  float64 `yaml:"overdueCount"`
	OverdueAmount float64 `yaml:"overdueAmount"`
	DelayDays     float64 `yaml:"delayDays"`
	Exposure      float64 `yaml:"exposure"`
}

// LevelBands holds the lowest score of each level above low.
// Low covers [0, Medium), medium [Medium, High), high [High, Critical), critical [Critical, 100].
type LevelBands struct {
	Medium   int `yaml:"medium"`
	High     int `yaml:"high"`
	Critical int `yaml:"critical"`
}

// LossRates is the expected share of confirmed revenue lost per risk level.
type LossRates struct {
	Low      float64 `yaml:"low"`
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// Policy carries every tunable of the risk and forecast engine.
type Policy struct {
	// Decay is the per-month weight applied to older delinquency, in (0,1).
	Decay   float64      `yaml:"decay"`
	Weights ScoreWeights `yaml:"weights"`
	Scales  ScoreScales  `yaml:"scales"`
	Bands   LevelBands   `yaml:"bands"`
	// LossRates must strictly increase from low to critical.
	LossRates LossRates `yaml:"lossRates"`
	// StageProbabilities are default win probabilities when a deal has no override.
	StageProbabilities map[models.Stage]float64 `yaml:"stageProbabilities"`
	StaleAfterDays     int                      `yaml:"staleAfterDays"`
	// OverdueForecast is roll-forward or exclude.
	OverdueForecast string `yaml:"overdueForecast"`
	// MaxEarlyPaymentDays bounds how long before its due date an invoice may be paid
	// before the record is treated as malformed.
	MaxEarlyPaymentDays    int `yaml:"maxEarlyPaymentDays"`
	TopN                   int `yaml:"topN"`
	DefaultHorizonMonths   int `yaml:"defaultHorizonMonths"`
	RecentInvoicesInDetail int `yaml:"recentInvoicesInDetail"`
}

// DefaultPolicy returns the policy used when no policy file is configured.
func DefaultPolicy() Policy {
	return Policy{
		Decay: 0.9,
		Weights: ScoreWeights{
			OverdueCount:  0.30,
			OverdueAmount: 0.35,
			DelayDays:     0.25,
			Exposure:      0.10,
		},
		Scales: ScoreScales{
			OverdueCount:  5,
			OverdueAmount: 50000,
			DelayDays:     90,
			Exposure:      100000,
		},
		Bands: LevelBands{Medium: 30, High: 60, Critical: 80},
		LossRates: LossRates{
			Low:      0.02,
			Medium:   0.10,
			High:     0.25,
			Critical: 0.50,
		},
		StageProbabilities: map[models.Stage]float64{
			models.StageProspecting:   0.10,
			models.StageQualification: 0.30,
			models.StageProposal:      0.50,
			models.StageNegotiation:   0.70,
			models.StageWon:           1,
			models.StageLost:          0,
		},
		StaleAfterDays:         30,
		OverdueForecast:        OverdueRollForward,
		MaxEarlyPaymentDays:    365,
		TopN:                   5,
		DefaultHorizonMonths:   12,
		RecentInvoicesInDetail: 10,
	}
}

// Validate checks the policy for internal consistency
func (p Policy) Validate() error {
	if !(p.Decay > 0 && p.Decay < 1) {
		return fmt.Errorf("%w: decay must be in (0,1), got %v", ErrInvalidPolicy, p.Decay)
	}

	w := p.Weights
	for name, v := range map[string]float64{
		"overdueCount": w.OverdueCount, "overdueAmount": w.OverdueAmount,
		"delayDays": w.DelayDays, "exposure": w.Exposure,
	} {
		if v < 0 {
			return fmt.Errorf("%w: weight %s is negative", ErrInvalidPolicy, name)
		}
	}
	if sum := w.OverdueCount + w.OverdueAmount + w.DelayDays + w.Exposure; math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("%w: weights must sum to 1, got %v", ErrInvalidPolicy, sum)
	}

	s := p.Scales
	if s.OverdueCount <= 0 || s.OverdueAmount <= 0 || s.DelayDays <= 0 || s.Exposure <= 0 {
		return fmt.Errorf("%w: scales must be positive", ErrInvalidPolicy)
	}

	b := p.Bands
	if !(0 < b.Medium && b.Medium < b.High && b.High < b.Critical && b.Critical <= 100) {
		return fmt.Errorf("%w: bands must satisfy 0 < medium < high < critical <= 100, got %d/%d/%d",
			ErrInvalidPolicy, b.Medium, b.High, b.Critical)
	}

	l := p.LossRates
	if !(0 <= l.Low && l.Low < l.Medium && l.Medium < l.High && l.High < l.Critical && l.Critical <= 1) {
		return fmt.Errorf("%w: loss rates must strictly increase within [0,1]", ErrInvalidPolicy)
	}

	for _, stage := range models.Stages {
		prob, ok := p.StageProbabilities[stage]
		if !ok {
			return fmt.Errorf("%w: missing probability for stage %s", ErrInvalidPolicy, stage)
		}
		if prob < 0 || prob > 1 {
			return fmt.Errorf("%w: probability for stage %s must be in [0,1]", ErrInvalidPolicy, stage)
		}
	}
	for stage := range p.StageProbabilities {
		if !stage.Valid() {
			return fmt.Errorf("%w: unknown stage %q", ErrInvalidPolicy, stage)
		}
	}

	if p.StaleAfterDays < 0 {
		return fmt.Errorf("%w: staleAfterDays must not be negative", ErrInvalidPolicy)
	}
	if p.OverdueForecast != OverdueRollForward && p.OverdueForecast != OverdueExclude {
		return fmt.Errorf("%w: overdueForecast must be %q or %q", ErrInvalidPolicy, OverdueRollForward, OverdueExclude)
	}
	if p.MaxEarlyPaymentDays < 0 || p.TopN < 0 || p.RecentInvoicesInDetail < 0 {
		return fmt.Errorf("%w: maxEarlyPaymentDays, topN and recentInvoicesInDetail must not be negative", ErrInvalidPolicy)
	}
	if p.DefaultHorizonMonths < 1 {
		return fmt.Errorf("%w: defaultHorizonMonths must be at least 1", ErrInvalidPolicy)
	}
	return nil
}

// Level maps an integer score to its band.
func (p Policy) Level(score int) models.RiskLevel {
	switch {
	case score >= p.Bands.Critical:
		return models.RiskCritical
	case score >= p.Bands.High:
		return models.RiskHigh
	case score >= p.Bands.Medium:
		return models.RiskMedium
	default:
		return models.RiskLow
	}
}

// LossRate returns the expected collection loss for a level; unknown levels count as low.
func (p Policy) LossRate(level models.RiskLevel) float64 {
	switch level {
	case models.RiskCritical:
		return p.LossRates.Critical
	case models.RiskHigh:
		return p.LossRates.High
	case models.RiskMedium:
		return p.LossRates.Medium
	default:
		return p.LossRates.Low
	}
}

// WinProbability returns the override when present, else the stage default.
func (p Policy) WinProbability(o models.Opportunity) float64 {
	if o.WinProbability != nil {
		return *o.WinProbability
	}
	return p.StageProbabilities[o.Stage]
}
