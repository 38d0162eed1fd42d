package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus is derived from due date, paid date and the evaluation instant
type InvoiceStatus string

const (
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusOverdue InvoiceStatus = "overdue"
	InvoiceStatusPending InvoiceStatus = "pending"
)

// Invoice represents a single billing installment (boleto) owed by a client
type Invoice struct {
	ID         int64               `json:"id"`
	ClientID   int64               `json:"client_id"`
	DueDate    time.Time           `json:"due_date"`
	Amount     decimal.Decimal     `json:"amount"`
	PaidDate   *time.Time          `json:"paid_date,omitempty"`
	PaidAmount decimal.NullDecimal `json:"paid_amount"`
}

// Day truncates t to midnight UTC so that statuses compare calendar days.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateIn returns the calendar date of t as seen in loc, as midnight UTC.
func DateIn(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween counts calendar days from the day of from to the day of to.
// Unix seconds are used so that dates centuries apart do not overflow a time.Duration.
func DaysBetween(from, to time.Time) int {
	return int((Day(to).Unix() - Day(from).Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// IsPaid reports whether the invoice was settled on or before asOf.
func (i Invoice) IsPaid(asOf time.Time) bool {
	return i.PaidDate != nil && !Day(*i.PaidDate).After(Day(asOf))
}

// Status classifies the invoice relative to asOf
func (i Invoice) Status(asOf time.Time) InvoiceStatus {
	if i.IsPaid(asOf) {
		return InvoiceStatusPaid
	}
	if Day(i.DueDate).Before(Day(asOf)) {
		return InvoiceStatusOverdue
	}
	return InvoiceStatusPending
}

// Outstanding returns the unpaid part of the invoice as of asOf.
// Partial payments recorded without a settlement date reduce it.
func (i Invoice) Outstanding(asOf time.Time) decimal.Decimal {
	if i.IsPaid(asOf) {
		return decimal.Zero
	}
	remaining := i.Amount
	if i.PaidAmount.Valid {
		remaining = remaining.Sub(i.PaidAmount.Decimal)
	}
	if remaining.IsNegative() {
		return decimal.Zero
	}
	return remaining
}

// DaysOverdue returns whole days past due, 0 when paid or not yet due
func (i Invoice) DaysOverdue(asOf time.Time) int {
	if i.Status(asOf) != InvoiceStatusOverdue {
		return 0
	}
	return DaysBetween(i.DueDate, asOf)
}

// InvoiceHistoryEntry is a compact view of an invoice in a client's risk detail
type InvoiceHistoryEntry struct {
	ID          int64           `json:"id"`
	Amount      decimal.Decimal `json:"amount"`
	DueDate     time.Time       `json:"due_date"`
	Status      InvoiceStatus   `json:"status"`
	DaysOverdue int             `json:"days_overdue"`
}

// DueInvoice is an unpaid invoice falling due inside a query window
type DueInvoice struct {
	Invoice
	ClientName   string `json:"client_name"`
	DaysUntilDue int    `json:"days_until_due"`
}

// DueInvoiceList holds due invoices plus the count of malformed records skipped
type DueInvoiceList struct {
	Items          []DueInvoice `json:"items"`
	SkippedRecords int          `json:"skipped_records"`
}
