package email

import (
	"errors"
	"io"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/portfolio-analytics/internal/config"
	"github.com/Dan9191/portfolio-analytics/internal/models"
)

func sampleSummary() models.PortfolioRiskSummary {
	return models.PortfolioRiskSummary{
		AsOf:                 time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC),
		TotalClientsAnalyzed: 3,
		LowRiskClients:       2,
		CriticalRiskClients:  1,
		AtRiskClients:        1,
		ValueAtRisk:          decimal.NewFromInt(150000),
		TopClients: []models.RiskScore{
			{ClientID: 1, ClientName: "Acme Ltda", Score: 90, Level: models.RiskCritical,
				Factors: models.RiskFactors{OverdueAmount: decimal.NewFromInt(150000)}},
		},
	}
}

func TestBuildDigest(t *testing.T) {
	t.Parallel()

	forecast := models.ForecastSummary{
		HorizonMonths:        12,
		ExpectedCurrentMonth: decimal.NewFromInt(1000),
		TotalProjected:       decimal.NewFromInt(5000),
		ConfirmedShare:       0.8,
		PipelineShare:        0.2,
		Months:               make([]models.ForecastMonth, 12),
	}
	subject, body := BuildDigest(sampleSummary(), forecast)

	if subject != "Portfolio risk digest 2026-03-15: 1 clients at risk" {
		t.Errorf("Unexpected subject %q", subject)
	}
	for _, want := range []string{
		"Value at risk: 150000.00",
		"1. Acme Ltda (#1) score 90, critical, overdue 150000.00",
		"Projected total: 5000.00 (80% confirmed, 20% pipeline)",
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Expected body to contain %q, got:\n%s", want, body)
		}
	}
}

func TestSendRiskDigest(t *testing.T) {
	t.Parallel()

	log := logrus.New()
	log.SetOutput(io.Discard)
	cfg := &config.Config{
		SMTPHost:         "smtp.example.com",
		SMTPPort:         "587",
		SenderEmail:      "risk@example.com",
		DigestRecipients: []string{"cfo@example.com"},
	}

	s := NewSender(cfg, log)
	var sentTo, sentAddr string
	s.send = func(e *email.Email, addr string, auth smtp.Auth) error {
		sentTo, sentAddr = e.To[0], addr
		return nil
	}
	if err := s.SendRiskDigest(sampleSummary(), models.ForecastSummary{}); err != nil {
		t.Fatalf("SendRiskDigest returned error: %v", err)
	}
	if sentTo != "cfo@example.com" || sentAddr != "smtp.example.com:587" {
		t.Errorf("Unexpected delivery to %s via %s", sentTo, sentAddr)
	}

	s.send = func(e *email.Email, addr string, auth smtp.Auth) error { return errors.New("connection refused") }
	if err := s.SendRiskDigest(sampleSummary(), models.ForecastSummary{}); err == nil {
		t.Errorf("Expected delivery error")
	}

	cfg.DigestRecipients = nil
	if err := NewSender(cfg, log).SendRiskDigest(sampleSummary(), models.ForecastSummary{}); err == nil {
		t.Errorf("Expected error without recipients")
	}
}
