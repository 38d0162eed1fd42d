package analytics

import (
	"errors"
	"testing"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

func TestDueInvoices(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t)

	clients := []models.Client{{ID: 1, Name: "Acme"}}
	malformed := invoice(9, 1, 5, 0)
	invoices := []models.Invoice{
		invoice(2, 1, 20, 200),
		invoice(1, 1, 10, 500),
		invoice(3, 1, 45, 900),
		invoice(4, 1, -1, 900),
		paidInvoice(5, 1, 15, -2, 100),
		invoice(6, 1, 20, 800),
		malformed,
	}

	list, err := e.DueInvoices(invoices, clients, asOf, 30)
	if err != nil {
		t.Fatalf("DueInvoices returned error: %v", err)
	}
	want := []int64{1, 6, 2}
	if len(list.Items) != len(want) {
		t.Fatalf("Expected %d invoices, got %d", len(want), len(list.Items))
	}
	for i, id := range want {
		if list.Items[i].ID != id {
			t.Errorf("Position %d: expected invoice %d, got %d", i, id, list.Items[i].ID)
		}
	}
	if list.Items[0].DaysUntilDue != 10 || list.Items[0].ClientName != "Acme" {
		t.Errorf("Unexpected first item %+v", list.Items[0])
	}
	if list.SkippedRecords != 1 {
		t.Errorf("Expected 1 skipped record, got %d", list.SkippedRecords)
	}

	list, err = e.DueInvoices(invoices, clients, asOf, 0)
	if err != nil || len(list.Items) != 0 {
		t.Errorf("Expected empty list for zero window, got %v (err=%v)", list.Items, err)
	}

	if _, err := e.DueInvoices(invoices, clients, asOf, -1); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument, got %v", err)
	}
}
