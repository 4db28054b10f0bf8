package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	pgxzerolog "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog/log"

	"github.com/tdrizzle0202/hiddencash/common/config"
	"github.com/tdrizzle0202/hiddencash/common/redis"
)

// DB provides access to the database
type DB struct {
	Pool  *pgxpool.Pool
	Redis *redis.RedisClient
}

// New creates a new DB instance
func New(pool *pgxpool.Pool, redisClient *redis.RedisClient) (*DB, error) {
	if pool == nil {
		return nil, errors.New("cannot use nil database pool")
	}
	return &DB{
		Pool:  pool,
		Redis: redisClient,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks if the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// SetupDatabase initializes the database connection
func SetupDatabase(ctx context.Context, cfg config.Config) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.PgSql.ConnStr())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolConfig.MaxConns = 20
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	// Query tracing via zerolog; scrape_events writes come from the log
	// hook itself, so they are filtered out to avoid log recursion.
	logger := pgxzerolog.NewLogger(log.Logger)
	poolConfig.ConnConfig.Tracer = &FilteredTracer{
		inner: &tracelog.TraceLog{
			Logger:   logger,
			LogLevel: tracelog.LogLevelInfo,
		},
		skipTable: "scrape_events",
	}

	pgsqlClient, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pgsqlClient.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := Migrate(ctx, cfg.PgSql.ConnStr()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	var redisClient *redis.RedisClient
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("creating Redis client: %w", err)
		}
	} else {
		log.Warn().Msg("Redis disabled, drip runs are unserialized and entitlement checks hit the provider every time")
	}

	dbConn, err := New(pgsqlClient, redisClient)
	if err != nil {
		return nil, fmt.Errorf("creating DB handler: %w", err)
	}

	return dbConn, nil
}
