package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/Dan9191/portfolio-analytics/internal/analytics"
	"github.com/Dan9191/portfolio-analytics/internal/config"
	"github.com/Dan9191/portfolio-analytics/internal/integrations/bankreturn"
	"github.com/Dan9191/portfolio-analytics/internal/metrics"
	"github.com/Dan9191/portfolio-analytics/internal/models"
	"github.com/Dan9191/portfolio-analytics/internal/repository"
	"github.com/Dan9191/portfolio-analytics/internal/service"
	"github.com/Dan9191/portfolio-analytics/internal/snapshotfile"
)

// in-memory database shared by every connection of the pool
const memoryDSN = "file:riskctl?mode=memory&cache=shared"

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "riskctl",
		Usage:     "delinquency risk and revenue forecast for a client portfolio",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "snapshot", Usage: "YAML snapshot file to analyse"},
			&cli.StringFlag{Name: "db-driver", Value: "postgres", Usage: "postgres or sqlite3", EnvVars: []string{"DB_DRIVER"}},
			&cli.StringFlag{Name: "dsn", Usage: "database connection string", EnvVars: []string{"DB_CONN"}},
			&cli.StringFlag{Name: "policy", Usage: "YAML risk policy file", EnvVars: []string{"RISK_POLICY_PATH"}},
			&cli.StringFlag{Name: "as-of", Usage: "evaluation date YYYY-MM-DD (default today in --timezone)"},
			&cli.StringFlag{Name: "timezone", Value: config.DefaultTimezone, EnvVars: []string{"TIMEZONE"}},
			&cli.StringFlag{Name: "log-level", Value: "warn", EnvVars: []string{"LOG_LEVEL"}},
		},
		Commands: []*cli.Command{
			{
				Name:  "summary",
				Usage: "portfolio risk summary",
				Action: withService(func(c *cli.Context, svc *service.Service, asOf time.Time) (interface{}, error) {
					return svc.PortfolioRiskSummary(c.Context, asOf)
				}),
			},
			{
				Name:  "clients",
				Usage: "every client's risk score, highest first",
				Action: withService(func(c *cli.Context, svc *service.Service, asOf time.Time) (interface{}, error) {
					return svc.ListClientRisk(c.Context, asOf)
				}),
			},
			{
				Name:  "client",
				Usage: "detailed risk of one client",
				Flags: []cli.Flag{&cli.Int64Flag{Name: "id", Required: true}},
				Action: withService(func(c *cli.Context, svc *service.Service, asOf time.Time) (interface{}, error) {
					return svc.ClientRisk(c.Context, c.Int64("id"), asOf)
				}),
			},
			{
				Name:  "forecast",
				Usage: "revenue forecast",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "months", Usage: "horizon in months (default from policy)"},
					&cli.BoolFlag{Name: "monthly", Usage: "print the per-month projection only"},
				},
				Action: withService(func(c *cli.Context, svc *service.Service, asOf time.Time) (interface{}, error) {
					if c.IsSet("months") && c.Int("months") < 1 {
						return nil, fmt.Errorf("%w: months must be at least 1", analytics.ErrInvalidArgument)
					}
					if c.Bool("monthly") {
						return svc.ForecastMonthly(c.Context, asOf, c.Int("months"))
					}
					return svc.ForecastSummary(c.Context, asOf, c.Int("months"))
				}),
			},
			{
				Name:  "pipeline",
				Usage: "probability-weighted sales pipeline",
				Action: withService(func(c *cli.Context, svc *service.Service, asOf time.Time) (interface{}, error) {
					return svc.PipelineSummary(c.Context, asOf)
				}),
			},
			{
				Name:  "due",
				Usage: "unpaid invoices due soon",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "days", Value: 30},
					&cli.IntFlag{Name: "limit"},
				},
				Action: withService(func(c *cli.Context, svc *service.Service, asOf time.Time) (interface{}, error) {
					return svc.DueInvoices(c.Context, asOf, c.Int("days"), c.Int("limit"))
				}),
			},
			{
				Name:  "import",
				Usage: "store a YAML snapshot and/or a bank return file in the database",
				Flags: []cli.Flag{&cli.StringFlag{Name: "bank-return", Usage: "XML settlement return file"}},
				Action: func(c *cli.Context) error {
					if c.String("dsn") == "" {
						return fmt.Errorf("--dsn is required for import")
					}
					svc, closeFn, err := openService(c, false)
					if err != nil {
						return err
					}
					defer closeFn()
					return importFiles(c, svc)
				},
			},
		},
	}
}

type query func(c *cli.Context, svc *service.Service, asOf time.Time) (interface{}, error)

func withService(q query) cli.ActionFunc {
	return func(c *cli.Context) error {
		asOf, err := parseAsOf(c.String("as-of"), c.String("timezone"), time.Now())
		if err != nil {
			return err
		}
		svc, closeFn, err := openService(c, true)
		if err != nil {
			return err
		}
		defer closeFn()

		result, err := q(c, svc, asOf)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
}

// openService connects to the configured database, or loads --snapshot into an
// in-memory sqlite database when loadSnapshot is set and no DSN is given.
func openService(c *cli.Context, loadSnapshot bool) (*service.Service, func(), error) {
	log := logrus.New()
	log.SetOutput(c.App.ErrWriter)
	log.SetFormatter(&logrus.JSONFormatter{})
	if level, err := logrus.ParseLevel(c.String("log-level")); err == nil {
		log.SetLevel(level)
	}

	policy, err := config.LoadPolicy(c.String("policy"))
	if err != nil {
		return nil, nil, err
	}
	engine, err := analytics.NewEngine(policy)
	if err != nil {
		return nil, nil, err
	}

	driver, dsn := c.String("db-driver"), c.String("dsn")
	inMemory := dsn == ""
	if inMemory {
		if !loadSnapshot || c.String("snapshot") == "" {
			return nil, nil, fmt.Errorf("either --snapshot or --dsn is required")
		}
		driver, dsn = "sqlite3", memoryDSN
	}

	repo, err := repository.Open(c.Context, driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	svc := service.NewService(repo, engine, log, metrics.New())

	if inMemory {
		snap, issues, err := snapshotfile.Load(c.String("snapshot"))
		if err == nil {
			reportIssues(c, issues)
			err = svc.ImportSnapshot(c.Context, snap)
		}
		if err != nil {
			repo.Close()
			return nil, nil, err
		}
	}
	return svc, func() { repo.Close() }, nil
}

func importFiles(c *cli.Context, svc *service.Service) error {
	imported := false
	if path := c.String("snapshot"); path != "" {
		snap, issues, err := snapshotfile.Load(path)
		if err != nil {
			return err
		}
		reportIssues(c, issues)
		if err := svc.ImportSnapshot(c.Context, snap); err != nil {
			return err
		}
		imported = true
	}
	if path := c.String("bank-return"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read bank return %s: %w", path, err)
		}
		file, err := bankreturn.Parse(raw)
		if err != nil {
			return err
		}
		reportIssues(c, file.Rejected)
		n, err := svc.ImportInvoices(c.Context, file.Invoices)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "imported %d invoices from bank %s\n", n, file.Bank)
		imported = true
	}
	if !imported {
		return fmt.Errorf("nothing to import: pass --snapshot or --bank-return")
	}
	return nil
}

func reportIssues(c *cli.Context, issues []string) {
	for _, issue := range issues {
		fmt.Fprintf(c.App.ErrWriter, "rejected: %s\n", issue)
	}
}

// parseAsOf reads --as-of, defaulting to the date of now in the named zone.
func parseAsOf(raw, timezone string, now time.Time) (time.Time, error) {
	if raw == "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: invalid timezone %q", analytics.ErrInvalidArgument, timezone)
		}
		return models.DateIn(now, loc), nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: --as-of must be YYYY-MM-DD", analytics.ErrInvalidArgument)
	}
	return t, nil
}
