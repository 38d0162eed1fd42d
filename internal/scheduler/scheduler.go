package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/portfolio-analytics/internal/integrations/bankreturn"
	"github.com/Dan9191/portfolio-analytics/internal/metrics"
	"github.com/Dan9191/portfolio-analytics/internal/models"
	"github.com/Dan9191/portfolio-analytics/internal/service"
)

// ReturnFetcher downloads the bank settlement return file
type ReturnFetcher interface {
	Fetch(ctx context.Context) (*bankreturn.ReturnFile, error)
}

// DigestMailer delivers the digest
type DigestMailer interface {
	SendRiskDigest(summary models.PortfolioRiskSummary, forecast models.ForecastSummary) error
}

// Digest imports settlements, records a risk snapshot and mails the result.
// Fetcher and Mailer are optional.
type Digest struct {
	svc     *service.Service
	fetcher ReturnFetcher
	mailer  DigestMailer
	metrics *metrics.Metrics
	log     *logrus.Logger
	loc     *time.Location
	now     func() time.Time
}

// NewDigest creates the digest job
func NewDigest(svc *service.Service, fetcher ReturnFetcher, mailer DigestMailer, m *metrics.Metrics, log *logrus.Logger, loc *time.Location) *Digest {
	return &Digest{svc: svc, fetcher: fetcher, mailer: mailer, metrics: m, log: log, loc: loc, now: time.Now}
}

// Run executes one digest cycle for today's date in the configured zone
func (d *Digest) Run(ctx context.Context) (err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = "failure"
		}
		d.metrics.DigestRuns.WithLabelValues(result).Inc()
	}()

	asOf := models.DateIn(d.now(), d.loc)

	if d.fetcher != nil {
		file, err := d.fetcher.Fetch(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch bank return: %w", err)
		}
		if _, err := d.svc.ImportInvoices(ctx, file.Invoices); err != nil {
			return fmt.Errorf("failed to import bank return: %w", err)
		}
	}

	snapshot, summary, err := d.svc.RecordRiskSnapshot(ctx, asOf)
	if err != nil {
		return fmt.Errorf("failed to record risk snapshot: %w", err)
	}

	if d.mailer == nil {
		d.log.Infof("Digest %s recorded, mail delivery disabled", snapshot.ID)
		return nil
	}

	forecast, err := d.svc.ForecastSummary(ctx, asOf, 0)
	if err != nil {
		return fmt.Errorf("failed to compute forecast: %w", err)
	}
	if err := d.mailer.SendRiskDigest(summary, forecast); err != nil {
		return err
	}
	d.log.Infof("Digest %s recorded and mailed", snapshot.ID)
	return nil
}

// Scheduler runs the digest on a cron schedule
type Scheduler struct {
	cron *cron.Cron
	log  *logrus.Logger
}

// NewScheduler registers the digest under a standard five-field cron spec
func NewScheduler(spec string, loc *time.Location, digest *Digest, log *logrus.Logger) (*Scheduler, error) {
	c := cron.New(
		cron.WithLocation(loc),
		cron.WithLogger(cron.PrintfLogger(log)),
		cron.WithChain(cron.Recover(cron.PrintfLogger(log)), cron.SkipIfStillRunning(cron.PrintfLogger(log))),
	)

	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if err := digest.Run(ctx); err != nil {
			log.Errorf("Digest run failed: %v", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid digest schedule %q: %w", spec, err)
	}
	return &Scheduler{cron: c, log: log}, nil
}

// Start begins running scheduled jobs in the background
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Infof("Digest scheduler started, next run at %s", s.cron.Entries()[0].Next.Format(time.RFC3339))
}

// Stop halts the scheduler and waits for a running digest until ctx is done
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("Digest scheduler stop timed out")
	}
}
