package sqlgw

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dlmiddlecote/sqlstats"
	zerologadapter "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/prometheus/client_golang/prometheus"

	// Drivers selectable in the configuration.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	log "github.com/manifoldrouter/manifold/internal/logging"
	"github.com/manifoldrouter/manifold/pkg/announce"
	"github.com/manifoldrouter/manifold/pkg/gateway"
)

// Config is the configuration of a SQL platform.
type Config struct {
	// Driver is one of sqlite3, pgx or mysql.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`

	// MaxOpenConns limits the connections to the database when positive.
	MaxOpenConns int `yaml:"max_open_conns"`

	// Announce is the path of the announcement file of the platform.
	Announce string `yaml:"announce"`

	// Announcement is an inline announcement, used when Announce is empty.
	Announcement string `yaml:"announcement"`

	// Tables maps objects to the name of their table, when it differs.
	Tables map[string]string `yaml:"tables"`

	// Metrics registers the connection pool statistics of the database
	// with prometheus, labelled with the platform name.
	Metrics bool `yaml:"metrics"`
}

// Register adds the SQL gateway factory to the registry.
func Register(r gateway.Registry) {
	r.Register(Type, Factory)
}

// Factory builds a SQL gateway from its configuration.
func Factory(platform string, raw map[string]any) (gateway.Gateway, error) {
	var config Config
	if err := gateway.DecodeConfig(raw, &config); err != nil {
		return nil, fmt.Errorf("invalid configuration of platform `%s`: %w", platform, err)
	}
	return Open(platform, config)
}

// Open connects to the database of the platform.
func Open(platform string, config Config) (*Gateway, error) {
	if config.Driver == "" || config.DSN == "" {
		return nil, fmt.Errorf("platform `%s` needs a driver and a dsn", platform)
	}

	parsed, err := announce.Load(config.Announce, config.Announcement, platform)
	if err != nil {
		return nil, fmt.Errorf("announcement of platform `%s`: %w", platform, err)
	}

	db, err := openDB(config.Driver, config.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening the database of platform `%s`: %w", platform, err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}

	g, err := New(platform, db, config.Driver, parsed.Tables, config.Tables)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	if config.Metrics {
		collector := sqlstats.NewStatsCollector(platform, db)
		if err := prometheus.Register(collector); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("registering the metrics of platform `%s`: %w", platform, err)
		}
		g.collector = collector
	}
	return g, nil
}

// openDB opens the database. pgx connections log their statements through
// the global logger.
func openDB(driver, dsn string) (*sql.DB, error) {
	if driver != "pgx" {
		return sql.Open(driver, dsn)
	}

	connConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	logger := zerologadapter.NewLogger(log.Logger, zerologadapter.WithoutPGXModule(), zerologadapter.WithSubDictionary("pgx"))
	connConfig.Tracer = &tracelog.TraceLog{
		Logger: tracelog.LoggerFunc(func(ctx context.Context, level tracelog.LogLevel, msg string, data map[string]any) {
			if level == tracelog.LogLevelInfo {
				level = tracelog.LogLevelDebug
			}
			logger.Log(ctx, level, msg, data)
		}),
		LogLevel: tracelog.LogLevelInfo,
	}
	return stdlib.OpenDB(*connConfig), nil
}
