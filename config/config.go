/*
Package config loads server settings from the environment.

Every variable carries the RESERVATIONS_ prefix, e.g. RESERVATIONS_ADDR,
RESERVATIONS_DB_DRIVER, RESERVATIONS_JWT_SECRET. cmd/server lets -addr and
-db flags override the loaded values.
*/
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const Prefix = "RESERVATIONS"

type Config struct {
	Addr string `envconfig:"ADDR" default:":8080"`

	DBDriver string `envconfig:"DB_DRIVER" default:"sqlite3"`
	DBDSN    string `envconfig:"DB_DSN" default:"./data/reservations.db"`

	// Empty secret disables token verification: every request is a guest.
	JWTSecret string `envconfig:"JWT_SECRET"`

	// Empty URL logs notifications instead of publishing them.
	AMQPURL      string `envconfig:"AMQP_URL"`
	AMQPExchange string `envconfig:"AMQP_EXCHANGE" default:"reservations"`

	TimeZone  string `envconfig:"TIME_ZONE" default:"Europe/Prague"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"text"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	// Discount only the first reservation of a day.
	DiscountFirstOfDayOnly bool `envconfig:"DISCOUNT_FIRST_OF_DAY_ONLY" default:"false"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	// Zero disables the periodic counter audit.
	AuditInterval time.Duration `envconfig:"AUDIT_INTERVAL" default:"1h"`
}

// Load reads the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("config: DB_DRIVER must be sqlite3 or pgx, got %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("config: DB_DSN is required")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if c.AuditInterval < 0 {
		return fmt.Errorf("config: AUDIT_INTERVAL must not be negative, got %s", c.AuditInterval)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("config: LOG_LEVEL: %w", err)
	}
	return level, nil
}

// Location loads TimeZone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("config: TIME_ZONE: %w", err)
	}
	return loc, nil
}
