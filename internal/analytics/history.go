package analytics

import (
	"fmt"
	"sort"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

// HistoryIndex maps each rostered client to its invoices in due-date order.
// It is built once per analysis run and never mutated afterwards.
type HistoryIndex struct {
	clients  []models.Client
	byClient map[int64][]models.Invoice
	warnings []RecordWarning
}

// BuildHistoryIndex groups invoices by client. Every rostered client gets an entry,
// possibly empty; invoices of unknown clients are excluded as orphaned records.
func BuildHistoryIndex(clients []models.Client, invoices []models.Invoice) *HistoryIndex {
	idx := &HistoryIndex{
		clients:  make([]models.Client, 0, len(clients)),
		byClient: make(map[int64][]models.Invoice, len(clients)),
	}

	for _, c := range clients {
		if _, dup := idx.byClient[c.ID]; dup {
			continue
		}
		idx.clients = append(idx.clients, c)
		idx.byClient[c.ID] = []models.Invoice{}
	}

	for _, inv := range invoices {
		history, ok := idx.byClient[inv.ClientID]
		if !ok {
			idx.warnings = append(idx.warnings, RecordWarning{
				Kind:     WarningOrphanedRecord,
				RecordID: inv.ID,
				Reason:   fmt.Sprintf("invoice references unknown client %d", inv.ClientID),
			})
			continue
		}
		idx.byClient[inv.ClientID] = append(history, inv)
	}

	for id, history := range idx.byClient {
		sortByDueDate(history)
		idx.byClient[id] = history
	}

	return idx
}

func sortByDueDate(invoices []models.Invoice) {
	sort.Slice(invoices, func(i, j int) bool {
		a, b := invoices[i], invoices[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		return a.ID < b.ID
	})
}

// Clients returns the roster in input order, duplicates removed.
func (h *HistoryIndex) Clients() []models.Client {
	return h.clients
}

// Client looks up a rostered client.
func (h *HistoryIndex) Client(id int64) (models.Client, bool) {
	if _, ok := h.byClient[id]; !ok {
		return models.Client{}, false
	}
	for _, c := range h.clients {
		if c.ID == id {
			return c, true
		}
	}
	return models.Client{}, false
}

// History returns the ordered invoices of a client. The slice must not be modified.
func (h *HistoryIndex) History(clientID int64) ([]models.Invoice, bool) {
	history, ok := h.byClient[clientID]
	return history, ok
}

// Orphaned returns the number of invoices that referenced unknown clients.
func (h *HistoryIndex) Orphaned() int {
	return len(h.warnings)
}

// Warnings lists the orphaned records.
func (h *HistoryIndex) Warnings() []RecordWarning {
	return h.warnings
}
