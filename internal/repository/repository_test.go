package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "portfolio.db")
	repo, err := Open(context.Background(), "sqlite3", dsn)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	repo := newTestRepository(t)
	ctx := context.Background()

	due := time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	paid := time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC)
	probability := 0.45

	clients := []models.Client{
		{ID: 2, Name: "Borges & Filhos", Document: "12.345.678/0001-90", BranchID: 1},
		{ID: 1, Name: "Acme Ltda"},
	}
	invoices := []models.Invoice{
		{ID: 10, ClientID: 1, DueDate: due, Amount: decimal.RequireFromString("1234.56")},
		{ID: 11, ClientID: 2, DueDate: due, Amount: decimal.NewFromInt(800), PaidDate: &paid,
			PaidAmount: decimal.NewNullDecimal(decimal.RequireFromString("800.00"))},
	}
	opportunities := []models.Opportunity{
		{ID: 5, ClientID: 1, Title: "Renewal", ExpectedValue: decimal.NewFromInt(15000),
			Stage: models.StageProposal, WinProbability: &probability, ExpectedClose: due, LastActivity: due},
		{ID: 6, ClientID: 2, Title: "Upsell", ExpectedValue: decimal.NewFromInt(3000),
			Stage: models.StageQualification, ExpectedClose: due, LastActivity: due},
	}

	if err := repo.SaveClients(ctx, clients); err != nil {
		t.Fatalf("SaveClients returned error: %v", err)
	}
	if err := repo.SaveInvoices(ctx, invoices); err != nil {
		t.Fatalf("SaveInvoices returned error: %v", err)
	}
	if err := repo.SaveOpportunities(ctx, opportunities); err != nil {
		t.Fatalf("SaveOpportunities returned error: %v", err)
	}

	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot returned error: %v", err)
	}

	if len(snap.Clients) != 2 || snap.Clients[0].ID != 1 || snap.Clients[1].Document != "12.345.678/0001-90" {
		t.Errorf("Unexpected clients %+v", snap.Clients)
	}
	if len(snap.Invoices) != 2 {
		t.Fatalf("Expected 2 invoices, got %d", len(snap.Invoices))
	}
	if got := snap.Invoices[0]; !got.Amount.Equal(decimal.RequireFromString("1234.56")) || got.PaidDate != nil || got.PaidAmount.Valid {
		t.Errorf("Unexpected open invoice %+v", got)
	}
	if got := snap.Invoices[1]; got.PaidDate == nil || !got.PaidDate.Equal(paid) || !got.PaidAmount.Decimal.Equal(decimal.NewFromInt(800)) {
		t.Errorf("Unexpected paid invoice %+v", got)
	}
	if !snap.Invoices[0].DueDate.Equal(due) {
		t.Errorf("Expected due date %s, got %s", due, snap.Invoices[0].DueDate)
	}
	if len(snap.Opportunities) != 2 {
		t.Fatalf("Expected 2 opportunities, got %d", len(snap.Opportunities))
	}
	if o := snap.Opportunities[0]; o.WinProbability == nil || *o.WinProbability != 0.45 || o.Stage != models.StageProposal {
		t.Errorf("Unexpected opportunity %+v", o)
	}
	if o := snap.Opportunities[1]; o.WinProbability != nil {
		t.Errorf("Expected no probability override, got %v", *o.WinProbability)
	}
}

func TestSaveInvoicesUpserts(t *testing.T) {
	t.Parallel()
	repo := newTestRepository(t)
	ctx := context.Background()

	due := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)
	inv := models.Invoice{ID: 1, ClientID: 1, DueDate: due, Amount: decimal.NewFromInt(500)}
	if err := repo.SaveInvoices(ctx, []models.Invoice{inv}); err != nil {
		t.Fatalf("SaveInvoices returned error: %v", err)
	}

	paid := due.AddDate(0, 0, 3)
	inv.PaidDate = &paid
	if err := repo.SaveInvoices(ctx, []models.Invoice{inv}); err != nil {
		t.Fatalf("SaveInvoices returned error: %v", err)
	}

	snap, err := repo.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot returned error: %v", err)
	}
	if len(snap.Invoices) != 1 {
		t.Fatalf("Expected 1 invoice after upsert, got %d", len(snap.Invoices))
	}
	if snap.Invoices[0].PaidDate == nil || !snap.Invoices[0].PaidDate.Equal(paid) {
		t.Errorf("Expected paid date %s, got %v", paid, snap.Invoices[0].PaidDate)
	}
}

func TestRiskSnapshots(t *testing.T) {
	t.Parallel()
	repo := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, time.March, 1, 7, 0, 0, 0, time.UTC)
	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		s := &models.RiskSnapshot{
			AsOf:                 base.AddDate(0, 0, i),
			TotalClientsAnalyzed: 10 + i,
			HighRiskClients:      i,
			ValueAtRisk:          decimal.NewFromInt(int64(1000 * i)),
			CreatedAt:            base.AddDate(0, 0, i),
		}
		if err := repo.SaveRiskSnapshot(ctx, s); err != nil {
			t.Fatalf("SaveRiskSnapshot returned error: %v", err)
		}
		if s.ID == uuid.Nil {
			t.Fatalf("Expected an ID to be assigned")
		}
		ids = append(ids, s.ID)
	}

	list, err := repo.ListRiskSnapshots(ctx, 2)
	if err != nil {
		t.Fatalf("ListRiskSnapshots returned error: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(list))
	}
	if list[0].ID != ids[2] || list[1].ID != ids[1] {
		t.Errorf("Expected newest first, got %s, %s", list[0].ID, list[1].ID)
	}
	if !list[0].ValueAtRisk.Equal(decimal.NewFromInt(2000)) || list[0].TotalClientsAnalyzed != 12 {
		t.Errorf("Unexpected snapshot %+v", list[0])
	}

	all, err := repo.ListRiskSnapshots(ctx, 0)
	if err != nil || len(all) != 3 {
		t.Errorf("Expected 3 snapshots without limit, got %d (err=%v)", len(all), err)
	}
}
