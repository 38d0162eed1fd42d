package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

// PortfolioScores is the result of scoring every rostered client.
type PortfolioScores struct {
	Scores   []models.RiskScore
	Orphaned int
	Warnings []RecordWarning
}

// Levels returns each client's risk level keyed by client ID.
func (p PortfolioScores) Levels() map[int64]models.RiskLevel {
	levels := make(map[int64]models.RiskLevel, len(p.Scores))
	for _, s := range p.Scores {
		levels[s.ClientID] = s.Level
	}
	return levels
}

// Skipped returns the number of malformed invoices excluded across all clients.
func (p PortfolioScores) Skipped() int {
	total := 0
	for _, s := range p.Scores {
		total += s.SkippedRecords
	}
	return total
}

// ScorePortfolio scores every client of the snapshot, in roster order.
func (e *Engine) ScorePortfolio(snapshot models.Snapshot, asOf time.Time) PortfolioScores {
	idx := BuildHistoryIndex(snapshot.Clients, snapshot.Invoices)

	result := PortfolioScores{
		Scores:   make([]models.RiskScore, 0, len(idx.Clients())),
		Orphaned: idx.Orphaned(),
		Warnings: append([]RecordWarning{}, idx.Warnings()...),
	}
	for _, c := range idx.Clients() {
		history, _ := idx.History(c.ID)
		result.Scores = append(result.Scores, e.Score(c, history, asOf))
		result.Warnings = append(result.Warnings, e.InvoiceWarnings(history)...)
	}
	return result
}

// Rank returns a copy of scores ordered by score desc, exposure desc, client ID asc.
func Rank(scores []models.RiskScore) []models.RiskScore {
	ranked := make([]models.RiskScore, len(scores))
	copy(ranked, scores)
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if c := a.Factors.Exposure.Cmp(b.Factors.Exposure); c != 0 {
			return c > 0
		}
		return a.ClientID < b.ClientID
	})
	return ranked
}

// Summarize aggregates portfolio scores into level counts and a ranked top list.
func (e *Engine) Summarize(portfolio PortfolioScores, asOf time.Time) models.PortfolioRiskSummary {
	summary := models.PortfolioRiskSummary{
		AsOf:                 asOf,
		TotalClientsAnalyzed: len(portfolio.Scores),
		ValueAtRisk:          decimal.Zero,
		SkippedRecords:       portfolio.Skipped(),
		OrphanedRecords:      portfolio.Orphaned,
	}

	for _, s := range portfolio.Scores {
		switch s.Level {
		case models.RiskCritical:
			summary.CriticalRiskClients++
		case models.RiskHigh:
			summary.HighRiskClients++
		case models.RiskMedium:
			summary.MediumRiskClients++
		default:
			summary.LowRiskClients++
		}
		if s.Level != models.RiskLow {
			summary.ValueAtRisk = summary.ValueAtRisk.Add(s.Factors.OverdueAmount)
		}
	}
	summary.AtRiskClients = summary.HighRiskClients + summary.CriticalRiskClients

	ranked := Rank(portfolio.Scores)
	if n := e.policy.TopN; len(ranked) > n {
		ranked = ranked[:n]
	}
	summary.TopClients = ranked
	return summary
}

// ClientRisk re-scores a single client of the snapshot.
func (e *Engine) ClientRisk(snapshot models.Snapshot, clientID int64, asOf time.Time) (models.ClientRiskDetail, error) {
	var (
		client models.Client
		found  bool
	)
	for _, c := range snapshot.Clients {
		if c.ID == clientID {
			client, found = c, true
			break
		}
	}
	if !found {
		return models.ClientRiskDetail{}, fmt.Errorf("client %d: %w", clientID, ErrNotFound)
	}

	var history []models.Invoice
	for _, inv := range snapshot.Invoices {
		if inv.ClientID == clientID {
			history = append(history, inv)
		}
	}
	sortByDueDate(history)

	score := e.Score(client, history, asOf)
	return models.ClientRiskDetail{
		RiskScore:       score,
		Recommendations: recommendations(score),
		RecentInvoices:  e.recentInvoices(history, asOf),
	}, nil
}

// recentInvoices lists the latest valid invoices, newest due date first.
func (e *Engine) recentInvoices(history []models.Invoice, asOf time.Time) []models.InvoiceHistoryEntry {
	entries := []models.InvoiceHistoryEntry{}
	for i := len(history) - 1; i >= 0 && len(entries) < e.policy.RecentInvoicesInDetail; i-- {
		inv := history[i]
		if e.validateInvoice(inv) != nil {
			continue
		}
		entries = append(entries, models.InvoiceHistoryEntry{
			ID:          inv.ID,
			Amount:      inv.Amount,
			DueDate:     inv.DueDate,
			Status:      inv.Status(asOf),
			DaysOverdue: inv.DaysOverdue(asOf),
		})
	}
	return entries
}

func recommendations(score models.RiskScore) []string {
	var recs []string
	switch score.Level {
	case models.RiskCritical, models.RiskHigh:
		recs = append(recs, "contact the client urgently", "schedule a renegotiation meeting")
		if score.Factors.AvgDelayDays > 90 {
			recs = append(recs, "evaluate legal collection measures")
		}
	case models.RiskMedium:
		recs = append(recs, "send a payment reminder", "schedule a preventive follow-up")
	default:
		recs = append(recs, "client is current, keep regular follow-up")
	}
	if n := score.Factors.OverdueCount; n > 0 {
		recs = append(recs, fmt.Sprintf("negotiate an installment plan for %d overdue invoice(s)", n))
	}
	return recs
}
