package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Dan9191/portfolio-analytics/internal/analytics"
)

// Config holds application configuration
type Config struct {
	Port                 string
	DBDriver             string
	DBConn               string
	LogLevel             string
	JWTSecret            string
	OperatorUsername     string
	OperatorPasswordHash string
	BankReturnURL        string
	DigestCron           string
	Timezone             string
	SMTPHost             string
	SMTPPort             string
	SMTPUsername         string
	SMTPPassword         string
	SenderEmail          string
	DigestRecipients     []string
	RiskPolicyPath       string

	// Policy is the validated risk policy, defaults overlaid with RiskPolicyPath.
	Policy analytics.Policy
}

// NewConfig loads configuration from environment variables
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		DBDriver:             getEnv("DB_DRIVER", "postgres"),
		DBConn:               getEnv("DB_CONN", "host=localhost port=5436 user=test password=test dbname=portfolio sslmode=disable"),
		LogLevel:             getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:            getEnv("JWT_SECRET", "secret"),
		OperatorUsername:     getEnv("OPERATOR_USERNAME", "analyst"),
		OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
		BankReturnURL:        getEnv("BANK_RETURN_URL", ""),
		DigestCron:           getEnv("DIGEST_CRON", "0 7 * * *"),
		Timezone:             getEnv("TIMEZONE", DefaultTimezone),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             getEnv("SMTP_PORT", "587"),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		SenderEmail:          getEnv("SENDER_EMAIL", "risk@localhost"),
		DigestRecipients:     splitList(getEnv("DIGEST_RECIPIENTS", "")),
		RiskPolicyPath:       getEnv("RISK_POLICY_PATH", ""),
	}

	if cfg.DBConn == "" {
		return nil, fmt.Errorf("DB_CONN is required")
	}
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite3" {
		return nil, fmt.Errorf("DB_DRIVER must be postgres or sqlite3, got %q", cfg.DBDriver)
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	policy, err := LoadPolicy(cfg.RiskPolicyPath)
	if err != nil {
		return nil, err
	}
	cfg.Policy = policy

	return cfg, nil
}

// DefaultTimezone is the zone whose calendar decides "today" when no date is given.
const DefaultTimezone = "America/Sao_Paulo"

// Location returns the time zone used for the digest schedule and for "today".
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SMTPEnabled reports whether the digest can be mailed.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && len(c.DigestRecipients) > 0
}

// LoadPolicy reads a YAML risk policy and lays it over the defaults.
// Keys missing from the file keep their default values. An empty path yields the defaults.
func LoadPolicy(path string) (analytics.Policy, error) {
	policy := analytics.DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return analytics.Policy{}, fmt.Errorf("failed to read risk policy %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return analytics.Policy{}, fmt.Errorf("failed to parse risk policy %s: %w", path, err)
	}
	if err := policy.Validate(); err != nil {
		return analytics.Policy{}, fmt.Errorf("risk policy %s: %w", path, err)
	}
	return policy, nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
