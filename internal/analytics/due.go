package analytics

import (
	"fmt"
	"sort"
	"time"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

// DueInvoices lists unpaid invoices due within [asOf, asOf+windowDays], earliest first,
// larger amounts first on the same day.
func (e *Engine) DueInvoices(invoices []models.Invoice, clients []models.Client, asOf time.Time, windowDays int) (models.DueInvoiceList, error) {
	if windowDays < 0 {
		return models.DueInvoiceList{}, fmt.Errorf("%w: window must not be negative, got %d days", ErrInvalidArgument, windowDays)
	}

	names := make(map[int64]string, len(clients))
	for _, c := range clients {
		if _, ok := names[c.ID]; !ok {
			names[c.ID] = c.Name
		}
	}

	from := models.Day(asOf)
	until := from.AddDate(0, 0, windowDays)
	list := models.DueInvoiceList{Items: []models.DueInvoice{}}

	for _, inv := range invoices {
		if e.validateInvoice(inv) != nil {
			list.SkippedRecords++
			continue
		}
		if inv.IsPaid(asOf) {
			continue
		}
		due := models.Day(inv.DueDate)
		if due.Before(from) || due.After(until) {
			continue
		}
		list.Items = append(list.Items, models.DueInvoice{
			Invoice:      inv,
			ClientName:   names[inv.ClientID],
			DaysUntilDue: models.DaysBetween(from, due),
		})
	}

	sort.Slice(list.Items, func(i, j int) bool {
		a, b := list.Items[i], list.Items[j]
		if da, db := models.Day(a.DueDate), models.Day(b.DueDate); !da.Equal(db) {
			return da.Before(db)
		}
		if c := a.Amount.Cmp(b.Amount); c != 0 {
			return c > 0
		}
		return a.ID < b.ID
	})
	return list, nil
}
