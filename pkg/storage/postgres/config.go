package postgres

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds PostgreSQL connection and pool settings for the usage ledger.
type Config struct {
	// DSN is a libpq connection string or URL.
	DSN string

	// Pool sizing. Zero values mean 10 max, 1 min, 5m lifetime.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration

	// StatementTimeout is sent as the session statement_timeout. Zero means
	// 5s; ledger queries are small.
	StatementTimeout time.Duration

	// MigrateOnStart applies the embedded schema migrations in New.
	MigrateOnStart bool
}

const applicationName = "claudepipe"

// poolConfig parses the DSN and applies pool and session settings. Runtime
// parameters already present in the DSN win.
func (c Config) poolConfig() (*pgxpool.Config, error) {
	if c.DSN == "" {
		return nil, errors.New("postgres: DSN is required")
	}
	pc, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	pc.MaxConns = orDefault(c.MaxConns, 10)
	pc.MinConns = min(orDefault(c.MinConns, 1), pc.MaxConns)
	pc.MaxConnLifetime = orDefault(c.MaxConnLifetime, 5*time.Minute)

	params := pc.ConnConfig.RuntimeParams
	if _, ok := params["application_name"]; !ok {
		params["application_name"] = applicationName
	}
	if _, ok := params["statement_timeout"]; !ok {
		params["statement_timeout"] = strconv.FormatInt(orDefault(c.StatementTimeout, 5*time.Second).Milliseconds(), 10)
	}
	return pc, nil
}

func orDefault[T int32 | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}
