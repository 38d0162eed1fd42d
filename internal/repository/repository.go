package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Dan9191/portfolio-analytics/internal/models"
)

// Storage is the persistence the service layer depends on.
type Storage interface {
	LoadSnapshot(ctx context.Context) (models.Snapshot, error)
	SaveClients(ctx context.Context, clients []models.Client) error
	SaveInvoices(ctx context.Context, invoices []models.Invoice) error
	SaveOpportunities(ctx context.Context, opportunities []models.Opportunity) error
	SaveRiskSnapshot(ctx context.Context, snapshot *models.RiskSnapshot) error
	ListRiskSnapshots(ctx context.Context, limit int) ([]models.RiskSnapshot, error)
}

// Repository provides database operations over postgres or sqlite3
type Repository struct {
	db *sql.DB
	sb sq.StatementBuilderType
}

var _ Storage = (*Repository)(nil)

// NewRepository initializes a new repository for the given driver name
func NewRepository(db *sql.DB, driver string) *Repository {
	var placeholder sq.PlaceholderFormat = sq.Dollar
	if driver == "sqlite3" {
		placeholder = sq.Question
	}
	return &Repository{db: db, sb: sq.StatementBuilder.PlaceholderFormat(placeholder)}
}

// Open connects to the database, checks the connection and creates missing tables.
func Open(ctx context.Context, driver, dsn string) (*Repository, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	r := NewRepository(db, driver)
	if err := r.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close releases the underlying connection pool
func (r *Repository) Close() error {
	return r.db.Close()
}

// InitSchema creates the tables if they don't already exist.
// Money columns are TEXT so no precision is lost on either driver.
func (r *Repository) InitSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS clients (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		document TEXT NOT NULL DEFAULT '',
		branch_id BIGINT NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS invoices (
		id BIGINT PRIMARY KEY,
		client_id BIGINT NOT NULL,
		due_date TIMESTAMP NOT NULL,
		amount TEXT NOT NULL,
		paid_date TIMESTAMP,
		paid_amount TEXT
	);
	CREATE TABLE IF NOT EXISTS opportunities (
		id BIGINT PRIMARY KEY,
		client_id BIGINT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		expected_value TEXT NOT NULL,
		stage TEXT NOT NULL,
		win_probability DOUBLE PRECISION,
		expected_close TIMESTAMP NOT NULL,
		last_activity TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS risk_snapshots (
		id TEXT PRIMARY KEY,
		as_of TIMESTAMP NOT NULL,
		total_clients INTEGER NOT NULL,
		low_risk INTEGER NOT NULL,
		medium_risk INTEGER NOT NULL,
		high_risk INTEGER NOT NULL,
		critical_risk INTEGER NOT NULL,
		value_at_risk TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// LoadSnapshot reads the whole roster, billing history and pipeline
func (r *Repository) LoadSnapshot(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	var err error

	if snap.Clients, err = r.listClients(ctx); err != nil {
		return models.Snapshot{}, err
	}
	if snap.Invoices, err = r.listInvoices(ctx); err != nil {
		return models.Snapshot{}, err
	}
	if snap.Opportunities, err = r.listOpportunities(ctx); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}

func (r *Repository) listClients(ctx context.Context) ([]models.Client, error) {
	query, args, err := r.sb.Select("id", "name", "document", "branch_id").
		From("clients").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build clients query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients: %w", err)
	}
	defer rows.Close()

	clients := []models.Client{}
	for rows.Next() {
		var c models.Client
		if err := rows.Scan(&c.ID, &c.Name, &c.Document, &c.BranchID); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate clients: %w", err)
	}
	return clients, nil
}

func (r *Repository) listInvoices(ctx context.Context) ([]models.Invoice, error) {
	query, args, err := r.sb.Select("id", "client_id", "due_date", "amount", "paid_date", "paid_amount").
		From("invoices").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build invoices query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		var inv models.Invoice
		var paidDate sql.NullTime
		if err := rows.Scan(&inv.ID, &inv.ClientID, &inv.DueDate, &inv.Amount, &paidDate, &inv.PaidAmount); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		inv.DueDate = inv.DueDate.UTC()
		if paidDate.Valid {
			paid := paidDate.Time.UTC()
			inv.PaidDate = &paid
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoices: %w", err)
	}
	return invoices, nil
}

func (r *Repository) listOpportunities(ctx context.Context) ([]models.Opportunity, error) {
	query, args, err := r.sb.Select("id", "client_id", "title", "expected_value", "stage",
		"win_probability", "expected_close", "last_activity").
		From("opportunities").OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build opportunities query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query opportunities: %w", err)
	}
	defer rows.Close()

	opportunities := []models.Opportunity{}
	for rows.Next() {
		var o models.Opportunity
		var stage string
		var probability sql.NullFloat64
		if err := rows.Scan(&o.ID, &o.ClientID, &o.Title, &o.ExpectedValue, &stage,
			&probability, &o.ExpectedClose, &o.LastActivity); err != nil {
			return nil, fmt.Errorf("failed to scan opportunity: %w", err)
		}
		o.Stage = models.Stage(stage)
		if probability.Valid {
			p := probability.Float64
			o.WinProbability = &p
		}
		o.ExpectedClose = o.ExpectedClose.UTC()
		o.LastActivity = o.LastActivity.UTC()
		opportunities = append(opportunities, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate opportunities: %w", err)
	}
	return opportunities, nil
}

// SaveClients upserts roster entries
func (r *Repository) SaveClients(ctx context.Context, clients []models.Client) error {
	return r.upsert(ctx, "clients", len(clients), func(i int) sq.InsertBuilder {
		c := clients[i]
		return r.sb.Insert("clients").
			Columns("id", "name", "document", "branch_id").
			Values(c.ID, c.Name, c.Document, c.BranchID).
			Suffix(`ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name,
				document = EXCLUDED.document, branch_id = EXCLUDED.branch_id`)
	})
}

// SaveInvoices upserts invoices; a settled invoice overwrites its open version.
func (r *Repository) SaveInvoices(ctx context.Context, invoices []models.Invoice) error {
	return r.upsert(ctx, "invoices", len(invoices), func(i int) sq.InsertBuilder {
		inv := invoices[i]
		var paidDate sql.NullTime
		if inv.PaidDate != nil {
			paidDate = sql.NullTime{Time: inv.PaidDate.UTC(), Valid: true}
		}
		return r.sb.Insert("invoices").
			Columns("id", "client_id", "due_date", "amount", "paid_date", "paid_amount").
			Values(inv.ID, inv.ClientID, inv.DueDate.UTC(), inv.Amount, paidDate, inv.PaidAmount).
			Suffix(`ON CONFLICT (id) DO UPDATE SET client_id = EXCLUDED.client_id,
				due_date = EXCLUDED.due_date, amount = EXCLUDED.amount,
				paid_date = EXCLUDED.paid_date, paid_amount = EXCLUDED.paid_amount`)
	})
}

// SaveOpportunities upserts pipeline deals
func (r *Repository) SaveOpportunities(ctx context.Context, opportunities []models.Opportunity) error {
	return r.upsert(ctx, "opportunities", len(opportunities), func(i int) sq.InsertBuilder {
		o := opportunities[i]
		var probability sql.NullFloat64
		if o.WinProbability != nil {
			probability = sql.NullFloat64{Float64: *o.WinProbability, Valid: true}
		}
		return r.sb.Insert("opportunities").
			Columns("id", "client_id", "title", "expected_value", "stage",
				"win_probability", "expected_close", "last_activity").
			Values(o.ID, o.ClientID, o.Title, o.ExpectedValue, string(o.Stage),
				probability, o.ExpectedClose.UTC(), o.LastActivity.UTC()).
			Suffix(`ON CONFLICT (id) DO UPDATE SET client_id = EXCLUDED.client_id,
				title = EXCLUDED.title, expected_value = EXCLUDED.expected_value,
				stage = EXCLUDED.stage, win_probability = EXCLUDED.win_probability,
				expected_close = EXCLUDED.expected_close, last_activity = EXCLUDED.last_activity`)
	})
}

// upsert runs n insert statements in a single transaction
func (r *Repository) upsert(ctx context.Context, table string, n int, build func(i int) sq.InsertBuilder) error {
	if n == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin %s transaction: %w", table, err)
	}
	defer tx.Rollback()

	for i := 0; i < n; i++ {
		query, args, err := build(i).ToSql()
		if err != nil {
			return fmt.Errorf("failed to build %s upsert: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", table, err)
	}
	return nil
}

// SaveRiskSnapshot stores a point-in-time portfolio summary, assigning ID and CreatedAt when unset
func (r *Repository) SaveRiskSnapshot(ctx context.Context, s *models.RiskSnapshot) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}

	query, args, err := r.sb.Insert("risk_snapshots").
		Columns("id", "as_of", "total_clients", "low_risk", "medium_risk", "high_risk",
			"critical_risk", "value_at_risk", "created_at").
		Values(s.ID.String(), s.AsOf.UTC(), s.TotalClientsAnalyzed, s.LowRiskClients, s.MediumRiskClients,
			s.HighRiskClients, s.CriticalRiskClients, s.ValueAtRisk, s.CreatedAt.UTC()).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build risk snapshot insert: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save risk snapshot: %w", err)
	}
	return nil
}

// ListRiskSnapshots returns the latest snapshots, newest first
func (r *Repository) ListRiskSnapshots(ctx context.Context, limit int) ([]models.RiskSnapshot, error) {
	builder := r.sb.Select("id", "as_of", "total_clients", "low_risk", "medium_risk", "high_risk",
		"critical_risk", "value_at_risk", "created_at").
		From("risk_snapshots").OrderBy("created_at DESC", "id")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build risk snapshot query: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query risk snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := []models.RiskSnapshot{}
	for rows.Next() {
		var s models.RiskSnapshot
		var id string
		if err := rows.Scan(&id, &s.AsOf, &s.TotalClientsAnalyzed, &s.LowRiskClients, &s.MediumRiskClients,
			&s.HighRiskClients, &s.CriticalRiskClients, &s.ValueAtRisk, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan risk snapshot: %w", err)
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("invalid risk snapshot id %q: %w", id, err)
		}
		s.AsOf, s.CreatedAt = s.AsOf.UTC(), s.CreatedAt.UTC()
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate risk snapshots: %w", err)
	}
	return snapshots, nil
}
