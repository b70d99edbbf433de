// package postgres stores request metrics in a postgres database using bun
package postgres

import (
	"context"
	"crypto/tls"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"github.com/uptrace/bun/migrate"

	"github.com/kava-labs/kava-rpc-gateway/clients/database"
	"github.com/kava-labs/kava-rpc-gateway/logging"
)

var (
	ErrNoDatabase      = errors.New("postgres client has no database connection")
	ErrMissingAddress  = errors.New("database endpoint url must not be empty")
	ErrMissingDatabase = errors.New("database name must not be empty")
	ErrMissingUsername = errors.New("database username must not be empty")
)

// DatabaseConfig contains values for creating a
// new connection to a postgres database
type DatabaseConfig struct {
	DatabaseName               string
	DatabaseEndpointURL        string
	DatabaseUsername           string
	DatabasePassword           string
	ReadTimeoutSeconds         int64
	DatabaseMaxIdleConnections int64
	DatabaseMaxOpenConnections int64
	SSLEnabled                 bool
	QueryLoggingEnabled        bool
	Logger                     *logging.ServiceLogger
}

// Client wraps a connection to a postgres database
type Client struct {
	db     *bun.DB
	logger *logging.ServiceLogger
}

var _ database.MetricsDatabase = (*Client)(nil)

// NewClient returns a new connection to the specified
// postgres data and error (if any)
func NewClient(config DatabaseConfig) (*Client, error) {
	if config.DatabaseEndpointURL == "" {
		return nil, ErrMissingAddress
	}
	if config.DatabaseName == "" {
		return nil, ErrMissingDatabase
	}
	if config.DatabaseUsername == "" {
		return nil, ErrMissingUsername
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	options := []pgdriver.Option{
		pgdriver.WithAddr(config.DatabaseEndpointURL),
		pgdriver.WithUser(config.DatabaseUsername),
		pgdriver.WithPassword(config.DatabasePassword),
		pgdriver.WithDatabase(config.DatabaseName),
		pgdriver.WithReadTimeout(time.Second * time.Duration(config.ReadTimeoutSeconds)),
	}
	if config.SSLEnabled {
		options = append(options, pgdriver.WithTLSConfig(&tls.Config{InsecureSkipVerify: false}))
	} else {
		options = append(options, pgdriver.WithInsecure(true))
	}

	connector := pgdriver.NewConnector(options...)

	logger.Debug().
		Str("address", config.DatabaseEndpointURL).
		Str("database", config.DatabaseName).
		Bool("ssl", config.SSLEnabled).
		Msg("creating database client")

	sqldb := sql.OpenDB(connector)

	// https://go.dev/doc/database/manage-connections#connection_pool_properties
	sqldb.SetMaxIdleConns(int(config.DatabaseMaxIdleConnections))
	sqldb.SetMaxOpenConns(int(config.DatabaseMaxOpenConnections))

	db := bun.NewDB(sqldb, pgdialect.New())

	if config.QueryLoggingEnabled {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	return &Client{
		db:     db,
		logger: logger,
	}, nil
}

// HealthCheck returns an error if the database can not
// be connected to and queried, nil otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	if c.db == nil {
		return ErrNoDatabase
	}

	_, err := c.db.ExecContext(ctx, `SELECT 1;`)
	return err
}

// Close closes every connection of the client
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Migrate sets up and runs all migrations that haven't been run
// on the database, returning the status of every migration and error (if any).
// A failed migration group is rolled back so it can be re-attempted.
func (c *Client) Migrate(ctx context.Context, migrations *migrate.Migrations) (*migrate.MigrationSlice, error) {
	if c.db == nil {
		return &migrate.MigrationSlice{}, ErrNoDatabase
	}

	migrator := migrate.NewMigrator(c.db, migrations)

	// create / verify tables used to track migrations
	if err := migrator.Init(ctx); err != nil {
		return &migrate.MigrationSlice{}, err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		rolledBack, rollbackErr := migrator.Rollback(ctx)
		if rollbackErr != nil {
			return &migrate.MigrationSlice{}, fmt.Errorf("error %s rolling back after original error %s", rollbackErr, err)
		}

		if rolledBack.ID == 0 {
			return &migrate.MigrationSlice{}, fmt.Errorf("no groups to rollback after migration error %s", err)
		}

		return &migrate.MigrationSlice{}, fmt.Errorf("rolled back after migration error %s", err)
	}

	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return &migrate.MigrationSlice{}, err
	}

	if group.ID == 0 {
		c.logger.Debug().Msg("there are no new migrations to run")
	} else {
		c.logger.Info().Int64("group", group.ID).Msg("ran database migrations")
	}

	return &ms, nil
}
