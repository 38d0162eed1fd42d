package analytics

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

func TestAnalyzePipeline(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	stale := opportunity(1, models.StageQualification, 10000, 2, -45)
	fresh := opportunity(2, models.StageNegotiation, 20000, 1, -3)
	override := opportunity(3, models.StageProspecting, 1000, 1, -60)
	override.WinProbability = prob(0.9)
	won := opportunity(4, models.StageWon, 7000, -1, -90)
	lost := opportunity(5, models.StageLost, 3000, -1, -90)
	bad := opportunity(6, models.Stage("unknown"), 100, 1, 0)
	negative := opportunity(7, models.StageProposal, -5, 1, 0)

	summary := e.AnalyzePipeline([]models.Opportunity{stale, fresh, override, won, lost, bad, negative}, asOf)

	if summary.OpenCount != 3 {
		t.Errorf("Expected 3 open opportunities, got %d", summary.OpenCount)
	}
	if !summary.TotalOpenValue.Equal(decimal.NewFromInt(31000)) {
		t.Errorf("Expected open value 31000, got %s", summary.TotalOpenValue)
	}
	// 10000*0.3 + 20000*0.7 + 1000*0.9
	if !summary.WeightedValue.Equal(decimal.NewFromInt(17900)) {
		t.Errorf("Expected weighted value 17900, got %s", summary.WeightedValue)
	}
	if summary.SkippedRecords != 2 {
		t.Errorf("Expected 2 skipped records, got %d", summary.SkippedRecords)
	}
	if len(summary.StaleOpportunities) != 2 || summary.StaleOpportunities[0].ID != 3 || summary.StaleOpportunities[1].ID != 1 {
		t.Errorf("Expected stale opportunities [3 1], got %+v", summary.StaleOpportunities)
	}
	if summary.WonCount != 1 || summary.LostCount != 1 || summary.ConversionRate != 0.5 {
		t.Errorf("Unexpected conversion figures: won=%d lost=%d rate=%v", summary.WonCount, summary.LostCount, summary.ConversionRate)
	}
	if len(summary.Stages) != len(models.Stages) {
		t.Fatalf("Expected %d stage rows, got %d", len(models.Stages), len(summary.Stages))
	}
	for i, s := range summary.Stages {
		if s.Stage != models.Stages[i] {
			t.Errorf("Stage row %d: expected %s, got %s", i, models.Stages[i], s.Stage)
		}
	}
	if q := summary.Stages[1]; q.Count != 1 || !q.WeightedValue.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("Unexpected qualification row %+v", q)
	}
}
