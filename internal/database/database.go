package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/thespeedingatom/soviario-app-sub000/migrations"
)

type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func DefaultOptions() Options {
	return Options{MaxOpenConns: 20, MaxIdleConns: 10, ConnMaxLifetime: 30 * time.Minute}
}

// Open connects gorm to MySQL. The DSN must carry parseTime=true.
func Open(dsn string, opts Options) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	return db, nil
}

func newProvider() error {
	goose.SetBaseFS(migrations.FS)
	return goose.SetDialect("mysql")
}

// MigrateUp applies every pending embedded migration.
func MigrateUp(db *sql.DB) error {
	if err := newProvider(); err != nil {
		return err
	}
	if err := goose.Up(db, "."); err != nil && !errors.Is(err, goose.ErrNoNextVersion) {
		return fmt.Errorf("database: migrate up: %w", err)
	}
	return nil
}

func MigrateDown(db *sql.DB) error {
	if err := newProvider(); err != nil {
		return err
	}
	if err := goose.Down(db, "."); err != nil {
		return fmt.Errorf("database: migrate down: %w", err)
	}
	return nil
}

func MigrateStatus(db *sql.DB) error {
	if err := newProvider(); err != nil {
		return err
	}
	return goose.Status(db, ".")
}
