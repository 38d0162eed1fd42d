// Package analytics implements delinquency risk scoring, portfolio aggregation,
// pipeline analysis and revenue forecasting over an in-memory snapshot.
//
// Every operation is a pure function of its inputs and an explicit asOf instant.
// An Engine holds only its validated policy and is safe for concurrent use.
package analytics

import (
	"github.com/Dan9191/portfolio-analytics/internal/models"
)

// Engine runs the risk and forecast computations under a fixed policy.
type Engine struct {
	policy Policy
}

// NewEngine validates the policy and builds an engine around a private copy of it.
func NewEngine(policy Policy) (*Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	probs := make(map[models.Stage]float64, len(policy.StageProbabilities))
	for stage, p := range policy.StageProbabilities {
		probs[stage] = p
	}
	policy.StageProbabilities = probs
	return &Engine{policy: policy}, nil
}

// Policy returns the engine's policy. Callers must not modify its map.
func (e *Engine) Policy() Policy {
	return e.policy
}
