// Package config loads process configuration from the environment, an
// optional .env file and an optional koperasi.yaml.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

type Config struct {
	// HTTP server
	Port               string
	RateLimitPerMinute int

	// Ledger backend
	DataBackend     string
	SQLiteDBPath    string
	DatabaseURL     string
	DBSlowThreshold time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets mirror
	GoogleSpreadsheetID      string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleTabPrefix          string

	// Daily report
	SMTPHost         string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SMTPFrom         string
	ReportRecipients []string
	ReportTime       string

	// Auth
	AuthJWTSecret         string
	AuthStaffEmail        string
	AuthStaffPasswordHash string
	AuthTokenTTL          time.Duration

	// Worker
	SyncInterval time.Duration

	Timezone         string
	LogLevel         string
	SingleActiveLoan bool
}

var validBackends = []string{"memory", "sqlite", "postgres"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8081")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 120)
	v.SetDefault("DATA_BACKEND", "memory")
	v.SetDefault("SQLITE_DB_PATH", "./data/koperasi.db")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_SLOW_THRESHOLD", "200ms")
	v.SetDefault("AMQP_URL", "")
	v.SetDefault("AMQP_EXCHANGE", "koperasi")
	v.SetDefault("AMQP_QUEUE", "ledger_changes")
	v.SetDefault("GOOGLE_SPREADSHEET_ID", "")
	v.SetDefault("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	v.SetDefault("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	v.SetDefault("GOOGLE_TAB_PREFIX", "")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("REPORT_RECIPIENTS", "")
	v.SetDefault("REPORT_TIME", "17:00")
	v.SetDefault("AUTH_JWT_SECRET", "")
	v.SetDefault("AUTH_STAFF_EMAIL", "")
	v.SetDefault("AUTH_STAFF_PASSWORD_HASH", "")
	v.SetDefault("AUTH_TOKEN_TTL", "12h")
	v.SetDefault("SYNC_INTERVAL", "15m")
	v.SetDefault("TIMEZONE", "Asia/Jakarta")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SINGLE_ACTIVE_LOAN", true)
}

// Load reads koperasi.yaml from the working directory when present and lets
// environment variables override it.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("koperasi")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	return FromViper(v), nil
}

// FromViper builds a Config from v with defaults and environment applied.
func FromViper(v *viper.Viper) *Config {
	setDefaults(v)
	v.AutomaticEnv()

	return &Config{
		Port:               v.GetString("PORT"),
		RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),

		DataBackend:     strings.ToLower(v.GetString("DATA_BACKEND")),
		SQLiteDBPath:    v.GetString("SQLITE_DB_PATH"),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		DBSlowThreshold: v.GetDuration("DB_SLOW_THRESHOLD"),

		AMQPURL:      v.GetString("AMQP_URL"),
		AMQPExchange: v.GetString("AMQP_EXCHANGE"),
		AMQPQueue:    v.GetString("AMQP_QUEUE"),

		GoogleSpreadsheetID:      v.GetString("GOOGLE_SPREADSHEET_ID"),
		GoogleServiceAccountJSON: v.GetString("GOOGLE_SERVICE_ACCOUNT_JSON"),
		GoogleServiceAccountFile: v.GetString("GOOGLE_SERVICE_ACCOUNT_FILE"),
		GoogleTabPrefix:          v.GetString("GOOGLE_TAB_PREFIX"),

		SMTPHost:         v.GetString("SMTP_HOST"),
		SMTPPort:         v.GetInt("SMTP_PORT"),
		SMTPUsername:     v.GetString("SMTP_USERNAME"),
		SMTPPassword:     v.GetString("SMTP_PASSWORD"),
		SMTPFrom:         v.GetString("SMTP_FROM"),
		ReportRecipients: splitList(v.GetString("REPORT_RECIPIENTS")),
		ReportTime:       v.GetString("REPORT_TIME"),

		AuthJWTSecret:         v.GetString("AUTH_JWT_SECRET"),
		AuthStaffEmail:        v.GetString("AUTH_STAFF_EMAIL"),
		AuthStaffPasswordHash: v.GetString("AUTH_STAFF_PASSWORD_HASH"),
		AuthTokenTTL:          v.GetDuration("AUTH_TOKEN_TTL"),

		SyncInterval: v.GetDuration("SYNC_INTERVAL"),

		Timezone:         v.GetString("TIMEZONE"),
		LogLevel:         v.GetString("LOG_LEVEL"),
		SingleActiveLoan: v.GetBool("SINGLE_ACTIVE_LOAN"),
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ReportEnabled reports whether the daily report has somewhere to go.
func (c *Config) ReportEnabled() bool {
	return c.SMTPHost != "" && len(c.ReportRecipients) > 0
}

// SheetsEnabled reports whether the spreadsheet mirror is configured.
func (c *Config) SheetsEnabled() bool {
	return c.GoogleSpreadsheetID != ""
}

// Validate checks settings shared by every binary and returns all problems
// at once.
func (c *Config) Validate() error {
	return joinProblems(c.common())
}

// ValidateServer adds the checks the HTTP server needs.
func (c *Config) ValidateServer() error {
	problems := c.common()

	if len(c.AuthJWTSecret) < 16 {
		problems = append(problems, "AUTH_JWT_SECRET must be at least 16 characters")
	}
	if c.AuthStaffEmail == "" {
		problems = append(problems, "AUTH_STAFF_EMAIL is required")
	}
	if c.AuthStaffPasswordHash == "" {
		problems = append(problems, "AUTH_STAFF_PASSWORD_HASH is required")
	}
	if c.AuthTokenTTL < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid token TTL %v: must be at least 1 minute", c.AuthTokenTTL))
	}
	if c.RateLimitPerMinute < 1 {
		problems = append(problems, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}
	return joinProblems(problems)
}

// ValidateWorker adds the checks the background worker needs.
func (c *Config) ValidateWorker() error {
	problems := c.common()

	if c.AMQPURL == "" {
		problems = append(problems, "AMQP_URL is required for the worker")
	}
	if c.DataBackend == "memory" {
		problems = append(problems, "the worker cannot read the memory backend of another process; use sqlite or postgres")
	}
	if c.SyncInterval < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid sync interval %v: must be at least 1 minute", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		problems = append(problems, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	if c.SheetsEnabled() && c.GoogleServiceAccountJSON == "" && c.GoogleServiceAccountFile == "" {
		problems = append(problems, "either GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE must be provided with GOOGLE_SPREADSHEET_ID")
	}
	if c.GoogleServiceAccountFile != "" {
		if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	if c.ReportEnabled() {
		if c.SMTPFrom == "" {
			problems = append(problems, "SMTP_FROM is required when REPORT_RECIPIENTS is set")
		}
		if c.SMTPPort < 1 || c.SMTPPort > 65535 {
			problems = append(problems, fmt.Sprintf("invalid SMTP port %d", c.SMTPPort))
		}
	}
	return joinProblems(problems)
}

func (c *Config) common() []string {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	valid := false
	for _, b := range validBackends {
		if c.DataBackend == b {
			valid = true
			break
		}
	}
	if !valid {
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		if c.SQLiteDBPath == "" {
			problems = append(problems, "SQLite database path cannot be empty when using sqlite backend")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					problems = append(problems, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	case "postgres":
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required when using postgres backend")
		}
	}

	if c.AMQPURL != "" {
		if parsed, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsed.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil {
		problems = append(problems, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}
	if _, err := time.Parse("15:04", c.ReportTime); err != nil {
		problems = append(problems, fmt.Sprintf("invalid report time '%s': must be HH:MM", c.ReportTime))
	}
	return problems
}

func joinProblems(problems []string) error {
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
}
