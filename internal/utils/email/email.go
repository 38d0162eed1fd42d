package email

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/jordan-wright/email"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/portfolio-analytics/internal/config"
	"github.com/Dan9191/portfolio-analytics/internal/models"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
	send   func(e *email.Email, addr string, auth smtp.Auth) error
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
		send: func(e *email.Email, addr string, auth smtp.Auth) error {
			return e.Send(addr, auth)
		},
	}
}

// SendRiskDigest mails the portfolio summary and revenue outlook to the configured recipients
func (s *Sender) SendRiskDigest(summary models.PortfolioRiskSummary, forecast models.ForecastSummary) error {
	if len(s.cfg.DigestRecipients) == 0 {
		return fmt.Errorf("no digest recipients configured")
	}

	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = s.cfg.DigestRecipients
	e.Subject, e.Text = BuildDigest(summary, forecast)

	// Send email
	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := s.send(e, addr, auth); err != nil {
		s.logger.Errorf("Failed to send risk digest to %v: %v", e.To, err)
		return fmt.Errorf("failed to send risk digest: %w", err)
	}

	s.logger.Infof("Email sent to %v: %s", e.To, e.Subject)
	return nil
}

// BuildDigest renders the subject and plain-text body of the daily digest
func BuildDigest(summary models.PortfolioRiskSummary, forecast models.ForecastSummary) (string, []byte) {
	subject := fmt.Sprintf("Portfolio risk digest %s: %d clients at risk",
		summary.AsOf.Format("2006-01-02"), summary.AtRiskClients)

	var b strings.Builder
	fmt.Fprintf(&b, "Portfolio risk as of %s\n\n", summary.AsOf.Format("2006-01-02"))
	fmt.Fprintf(&b, "Clients analyzed: %d\n", summary.TotalClientsAnalyzed)
	fmt.Fprintf(&b, "Low / medium / high / critical: %d / %d / %d / %d\n",
		summary.LowRiskClients, summary.MediumRiskClients, summary.HighRiskClients, summary.CriticalRiskClients)
	fmt.Fprintf(&b, "Value at risk: %s\n", summary.ValueAtRisk.StringFixed(2))
	if summary.SkippedRecords+summary.OrphanedRecords > 0 {
		fmt.Fprintf(&b, "Records excluded: %d malformed, %d without a client\n",
			summary.SkippedRecords, summary.OrphanedRecords)
	}

	if len(summary.TopClients) > 0 {
		b.WriteString("\nHighest risk clients:\n")
		for i, c := range summary.TopClients {
			fmt.Fprintf(&b, "%d. %s (#%d) score %d, %s, overdue %s\n",
				i+1, c.ClientName, c.ClientID, c.Score, c.Level, c.Factors.OverdueAmount.StringFixed(2))
		}
	}

	if len(forecast.Months) > 0 {
		fmt.Fprintf(&b, "\nRevenue outlook (%d months)\n", forecast.HorizonMonths)
		fmt.Fprintf(&b, "Expected this month: %s\n", forecast.ExpectedCurrentMonth.StringFixed(2))
		fmt.Fprintf(&b, "Expected next month: %s\n", forecast.ExpectedNextMonth.StringFixed(2))
		fmt.Fprintf(&b, "Projected total: %s (%.0f%% confirmed, %.0f%% pipeline)\n",
			forecast.TotalProjected.StringFixed(2), forecast.ConfirmedShare*100, forecast.PipelineShare*100)
	}

	b.WriteString("\nBest regards,\nPortfolio Analytics")
	return subject, []byte(b.String())
}
