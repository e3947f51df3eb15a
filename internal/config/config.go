package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"caixa/internal/auth"
	"caixa/internal/log"
	"caixa/internal/scheduler"
	"caixa/internal/services"

	"github.com/robfig/cron/v3"
)

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend string
	DataDir     string

	// Database
	SQLiteDBPath string

	// Password gate
	SitePassword           string
	SessionTTL             time.Duration
	LoginAttemptsPerMinute int

	// Ledger
	LedgerSequencing    string
	LedgerClosedWeekday string
	LedgerMaxLookback   int
	ReportMaxDays       int
	Timezone            string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets export
	GoogleSpreadsheetID string
	GoogleSheetName     string

	// Worker
	RolloverSchedule string
	AuditInterval    time.Duration
	AuditWindowDays  int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend: getEnv("DATA_BACKEND", "sqlite"),
		DataDir:     getEnv("DATA_DIR", "./data"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/caixa.db"),

		SitePassword:           getEnv("SITE_PASSWORD", ""),
		SessionTTL:             getEnvDuration("SESSION_TTL", 12*time.Hour),
		LoginAttemptsPerMinute: getEnvInt("LOGIN_ATTEMPTS_PER_MINUTE", 5),

		LedgerSequencing:    getEnv("LEDGER_SEQUENCING", services.SequencingCalendar),
		LedgerClosedWeekday: getEnv("LEDGER_CLOSED_WEEKDAY", "sunday"),
		LedgerMaxLookback:   getEnvInt("LEDGER_MAX_LOOKBACK", services.DefaultMaxLookback),
		ReportMaxDays:       getEnvInt("REPORT_MAX_DAYS", services.DefaultReportMaxDays),
		Timezone:            getEnv("TIMEZONE", "America/Sao_Paulo"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "caixa"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "day_updated"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSheetName:     getEnv("GOOGLE_SHEET_NAME", "Caixa"),

		RolloverSchedule: getEnv("ROLLOVER_SCHEDULE", scheduler.DefaultRolloverSchedule),
		AuditInterval:    getEnvDuration("AUDIT_INTERVAL", time.Hour),
		AuditWindowDays:  getEnvInt("AUDIT_WINDOW_DAYS", 7),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", log.FormatText),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	// Validate data backend
	validBackends := []string{"memory", "sqlite"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.DataBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if len(c.SitePassword) > 72 && !auth.IsHash(c.SitePassword) {
		errors = append(errors, "site password is too long: bcrypt uses at most 72 bytes")
	}
	if c.SessionTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid session TTL %v: must be at least 1 minute", c.SessionTTL))
	}
	if c.LoginAttemptsPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid login attempts per minute %d: must be at least 1", c.LoginAttemptsPerMinute))
	}

	// Ledger policy
	if _, err := c.Sequencer(); err != nil {
		errors = append(errors, err.Error())
	}
	if c.LedgerMaxLookback < 1 {
		errors = append(errors, fmt.Sprintf("invalid ledger max lookback %d: must be at least 1", c.LedgerMaxLookback))
	}
	if c.ReportMaxDays < 1 {
		errors = append(errors, fmt.Sprintf("invalid report max days %d: must be at least 1", c.ReportMaxDays))
	}
	if _, err := c.Location(); err != nil {
		errors = append(errors, fmt.Sprintf("invalid timezone '%s': %v", c.Timezone, err))
	}

	// Validate AMQP URL if provided
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleSheetName == "" {
		errors = append(errors, "Google Sheet name is required when a spreadsheet ID is set")
	}

	// Worker
	if _, err := cron.ParseStandard(c.RolloverSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("invalid rollover schedule '%s': %v", c.RolloverSchedule, err))
	}
	if c.AuditInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid audit interval %v: must be at least 1 minute", c.AuditInterval))
	} else if c.AuditInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid audit interval %v: must be at most 24 hours", c.AuditInterval))
	}
	if c.AuditWindowDays < 1 {
		errors = append(errors, fmt.Sprintf("invalid audit window %d: must be at least 1 day", c.AuditWindowDays))
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errors = append(errors, err.Error())
	}
	if f := strings.ToLower(c.LogFormat); f != log.FormatText && f != log.FormatJSON {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be text or json", c.LogFormat))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

// Sequencer builds the day-sequencing policy named by LEDGER_SEQUENCING.
func (c *Config) Sequencer() (services.Sequencer, error) {
	closed, err := services.ParseWeekday(c.LedgerClosedWeekday)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger closed weekday: %w", err)
	}
	return services.NewSequencer(c.LedgerSequencing, closed)
}

// Location loads TIMEZONE. Business dates are derived in this location.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// LedgerOptions collects the engine tuning knobs.
func (c *Config) LedgerOptions() (services.Options, error) {
	seq, err := c.Sequencer()
	if err != nil {
		return services.Options{}, err
	}
	return services.Options{
		Sequencer:     seq,
		MaxLookback:   c.LedgerMaxLookback,
		ReportMaxDays: c.ReportMaxDays,
	}, nil
}

// AuditorConfig maps the AUDIT_* keys to the cache auditor settings.
func (c *Config) AuditorConfig() services.CacheAuditorConfig {
	return services.CacheAuditorConfig{
		PollInterval: c.AuditInterval,
		WindowDays:   c.AuditWindowDays,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
