// Package config loads service configuration from the environment and an
// optional .env file. Invalid values are errors; nothing falls back silently.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Jelela/mishorasmed/billing"
	"github.com/Jelela/mishorasmed/logging"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds application configuration.
type Config struct {
	Port               int
	StoreDriver        string
	SQLitePath         string
	PostgresURL        string
	LogLevel           string
	LogFormat          string
	Timezone           *time.Location
	HistoryCutoff      billing.Date
	MonthEnd           billing.MonthEndPolicy
	UngroupedLabel     string
	UngroupedSortOrder int
	CORSAllowedOrigins []string
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	// A missing .env file is fine.
	_ = godotenv.Load()
	return FromViper(newViper())
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("PORT", 8080)
	v.SetDefault("STORE_DRIVER", DriverSQLite)
	v.SetDefault("SQLITE_PATH", "closings.db")
	v.SetDefault("PGSQL_URL", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("TIMEZONE", "UTC")
	v.SetDefault("HISTORY_CUTOFF", billing.DefaultHistoryCutoff.String())
	v.SetDefault("MONTH_END_POLICY", "clamp")
	v.SetDefault("UNGROUPED_LABEL", billing.DefaultUngroupedLabel)
	v.SetDefault("UNGROUPED_SORT_ORDER", billing.DefaultUngroupedSortOrder)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.AutomaticEnv()
	return v
}

// FromViper builds and validates a Config from v.
func FromViper(v *viper.Viper) (*Config, error) {
	var errs []error
	fail := func(key string, err error) {
		errs = append(errs, fmt.Errorf("%s: %w", key, err))
	}

	cfg := &Config{
		StoreDriver:    strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		SQLitePath:     v.GetString("SQLITE_PATH"),
		PostgresURL:    v.GetString("PGSQL_URL"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFormat:      v.GetString("LOG_FORMAT"),
		UngroupedLabel: v.GetString("UNGROUPED_LABEL"),
	}

	port, err := intValue(v, "PORT")
	if err != nil || port < 1 || port > 65535 {
		fail("PORT", fmt.Errorf("invalid port %q", v.GetString("PORT")))
	}
	cfg.Port = port

	switch cfg.StoreDriver {
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			fail("SQLITE_PATH", errors.New("required for the sqlite driver"))
		}
	case DriverPostgres:
		if cfg.PostgresURL == "" {
			fail("PGSQL_URL", errors.New("required for the postgres driver"))
		}
	case DriverMemory:
	default:
		fail("STORE_DRIVER", fmt.Errorf("unknown driver %q", cfg.StoreDriver))
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		fail("LOG_LEVEL", err)
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		fail("LOG_FORMAT", fmt.Errorf("unknown format %q", cfg.LogFormat))
	}

	if cfg.Timezone, err = time.LoadLocation(v.GetString("TIMEZONE")); err != nil {
		fail("TIMEZONE", err)
	}
	if cfg.HistoryCutoff, err = billing.ParseDate(v.GetString("HISTORY_CUTOFF")); err != nil {
		fail("HISTORY_CUTOFF", err)
	}
	if cfg.MonthEnd, err = billing.ParseMonthEndPolicy(v.GetString("MONTH_END_POLICY")); err != nil {
		fail("MONTH_END_POLICY", err)
	}

	if strings.TrimSpace(cfg.UngroupedLabel) == "" {
		fail("UNGROUPED_LABEL", errors.New("must not be blank"))
	}
	if cfg.UngroupedSortOrder, err = intValue(v, "UNGROUPED_SORT_ORDER"); err != nil {
		fail("UNGROUPED_SORT_ORDER", err)
	}

	for _, origin := range strings.Split(v.GetString("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORSAllowedOrigins = append(cfg.CORSAllowedOrigins, origin)
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return cfg, nil
}

// intValue parses an integer setting strictly; viper's GetInt maps garbage to 0.
func intValue(v *viper.Viper, key string) (int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	var n int
	if _, err := fmt.Sscan(raw, &n); err != nil || fmt.Sprint(n) != raw {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return n, nil
}

// PeriodCalculator returns the calculator for the configured policies.
func (c *Config) PeriodCalculator() billing.PeriodCalculator {
	return billing.PeriodCalculator{MonthEnd: c.MonthEnd, HistoryCutoff: c.HistoryCutoff}
}

// AggregateOptions returns the configured ungrouped presentation.
func (c *Config) AggregateOptions() billing.AggregateOptions {
	return billing.AggregateOptions{UngroupedLabel: c.UngroupedLabel, UngroupedSortOrder: c.UngroupedSortOrder}
}

// Today is the calendar date of now in the configured timezone.
func (c *Config) Today(now time.Time) billing.Date {
	return billing.DateOf(now.In(c.Timezone))
}
