package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/example/payhero/internal/models"
)

type Options struct {
	// Namespace prefixes every table name, letting several deployments share one database.
	Namespace string
	// Verbose logs every SQL statement.
	Verbose bool
	// CreateDatabase creates the target database when it does not exist yet.
	CreateDatabase bool
}

// Connect opens the Postgres connection pool.
func Connect(ctx context.Context, dsn string, opts Options) (*gorm.DB, error) {
	if opts.CreateDatabase {
		if err := ensureDatabase(ctx, dsn); err != nil {
			return nil, fmt.Errorf("ensure database: %w", err)
		}
	}

	level := logger.Warn
	if opts.Verbose {
		level = logger.Info
	}

	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		NamingStrategy: schema.NamingStrategy{TablePrefix: opts.Namespace},
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}
	return conn, nil
}

// Migrate creates or updates the payment tables.
func Migrate(conn *gorm.DB) error {
	migrations := []interface{}{
		&models.PaymentIntent{},
		&models.BalanceEntry{},
	}

	for _, migration := range migrations {
		if err := conn.AutoMigrate(migration); err != nil {
			return err
		}
	}
	log.Info("[Database] migrations applied")
	return nil
}

func ensureDatabase(ctx context.Context, dsn string) error {
	if !strings.HasPrefix(dsn, "postgres://") && !strings.HasPrefix(dsn, "postgresql://") {
		return nil
	}

	parsed, err := url.Parse(dsn)
	if err != nil {
		return err
	}

	dbName := strings.TrimPrefix(parsed.Path, "/")
	if dbName == "" || dbName == "postgres" {
		return nil
	}

	parsed.Path = "/postgres"
	sqlDB, err := sql.Open("postgres", parsed.String())
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var exists bool
	if err := sqlDB.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", dbName).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return nil
	}

	log.Infow("[Database] creating database", "name", dbName)
	_, err = sqlDB.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName))
	return err
}
