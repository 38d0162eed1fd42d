// Package snapshotfile reads portfolio snapshots kept in YAML files for offline analysis.
package snapshotfile

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

const dateLayout = "2006-01-02"

type fileClient struct {
	ID       int64  `yaml:"id"`
	Name     string `yaml:"name"`
	Document string `yaml:"document"`
	BranchID int64  `yaml:"branch"`
}

type fileInvoice struct {
	ID         int64  `yaml:"id"`
	ClientID   int64  `yaml:"client"`
	Due        string `yaml:"due"`
	Amount     string `yaml:"amount"`
	Paid       string `yaml:"paid"`
	PaidAmount string `yaml:"paidAmount"`
}

type fileOpportunity struct {
	ID           int64    `yaml:"id"`
	ClientID     int64    `yaml:"client"`
	Title        string   `yaml:"title"`
	Value        string   `yaml:"value"`
	Stage        string   `yaml:"stage"`
	Probability  *float64 `yaml:"probability"`
	Close        string   `yaml:"close"`
	LastActivity string   `yaml:"lastActivity"`
}

type file struct {
	Clients       []fileClient      `yaml:"clients"`
	Invoices      []fileInvoice     `yaml:"invoices"`
	Opportunities []fileOpportunity `yaml:"opportunities"`
}

// Load reads a snapshot file from disk
func Load(path string) (models.Snapshot, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return models.Snapshot{}, nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	snap, issues, err := Parse(raw)
	if err != nil {
		return models.Snapshot{}, nil, fmt.Errorf("snapshot %s: %w", path, err)
	}
	return snap, issues, nil
}

// invalid marks a record whose fields could not be decoded. A negative amount or
// value fails record validation, so the engine skips and counts it.
var invalid = decimal.NewFromInt(-1)

// Parse decodes a YAML snapshot. Amounts are decimal strings and dates are YYYY-MM-DD.
// Only malformed YAML fails the call; a field that cannot be decoded marks its record
// invalid and is described in the returned issues.
func Parse(raw []byte) (models.Snapshot, []string, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return models.Snapshot{}, nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}

	snap := models.Snapshot{
		Clients:       make([]models.Client, 0, len(f.Clients)),
		Invoices:      make([]models.Invoice, 0, len(f.Invoices)),
		Opportunities: make([]models.Opportunity, 0, len(f.Opportunities)),
	}
	var issues []string

	for _, c := range f.Clients {
		snap.Clients = append(snap.Clients, models.Client{ID: c.ID, Name: c.Name, Document: c.Document, BranchID: c.BranchID})
	}

	for _, fi := range f.Invoices {
		d := decoder{record: fmt.Sprintf("invoice %d", fi.ID)}
		inv := models.Invoice{
			ID:       fi.ID,
			ClientID: fi.ClientID,
			DueDate:  d.date("due date", fi.Due),
			Amount:   d.amount("amount", fi.Amount),
		}
		if fi.Paid != "" {
			paid := d.date("paid date", fi.Paid)
			inv.PaidDate = &paid
		}
		if fi.PaidAmount != "" {
			inv.PaidAmount = decimal.NewNullDecimal(d.amount("paid amount", fi.PaidAmount))
		}
		if d.failed() {
			inv.Amount = invalid
			issues = append(issues, d.issues...)
		}
		snap.Invoices = append(snap.Invoices, inv)
	}

	for _, fo := range f.Opportunities {
		d := decoder{record: fmt.Sprintf("opportunity %d", fo.ID)}
		o := models.Opportunity{
			ID:             fo.ID,
			ClientID:       fo.ClientID,
			Title:          fo.Title,
			ExpectedValue:  d.amount("value", fo.Value),
			Stage:          models.Stage(fo.Stage),
			WinProbability: fo.Probability,
			ExpectedClose:  d.date("close date", fo.Close),
			LastActivity:   d.date("last activity", fo.LastActivity),
		}
		if d.failed() {
			o.ExpectedValue = invalid
			issues = append(issues, d.issues...)
		}
		snap.Opportunities = append(snap.Opportunities, o)
	}
	return snap, issues, nil
}

// decoder collects field errors of one record
type decoder struct {
	record string
	issues []string
}

func (d *decoder) amount(field, raw string) decimal.Decimal {
	v, err := decimal.NewFromString(raw)
	if err != nil {
		d.issues = append(d.issues, fmt.Sprintf("%s: %s %q is not a decimal", d.record, field, raw))
		return decimal.Zero
	}
	return v
}

func (d *decoder) date(field, raw string) time.Time {
	t, err := parseDate(raw)
	if err != nil {
		d.issues = append(d.issues, fmt.Sprintf("%s: %s %q is not YYYY-MM-DD", d.record, field, raw))
		return time.Time{}
	}
	return t
}

func (d *decoder) failed() bool {
	return len(d.issues) > 0
}

// parseDate accepts an empty string as the zero time so malformed records reach the engine
func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, raw)
}
